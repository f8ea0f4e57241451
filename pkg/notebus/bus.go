// Package notebus implements the in-process FIFO note queue the Graph
// Engine and the Restarter Core use to talk to each other.
package notebus

import "github.com/core-tools/hsu-svcmgr-go/pkg/domain"

// Bus is a single in-process FIFO of notes. It is not a channel: notes
// posted by a handler while DrainAll is running must be appended to the
// same drain rather than wait for the next call, so that notes emitted
// during processing of one external event are fully drained before the
// next external event is handled, without an extra loop at the call
// site.
type Bus struct {
	queue []domain.Note
}

// New returns an empty Bus.
func New() *Bus {
	return &Bus{}
}

// Post appends a note to the tail of the queue. Safe to call from within
// a DrainAll handler.
func (b *Bus) Post(note domain.Note) {
	b.queue = append(b.queue, note)
}

// DrainAll calls handler for every queued note, in emission order, until
// the queue is empty -- including notes the handler itself posts while
// draining.
func (b *Bus) DrainAll(handler func(domain.Note)) {
	for len(b.queue) > 0 {
		note := b.queue[0]
		b.queue = b.queue[1:]
		handler(note)
	}
}

// Empty reports whether the queue currently holds no notes.
func (b *Bus) Empty() bool {
	return len(b.queue) == 0
}
