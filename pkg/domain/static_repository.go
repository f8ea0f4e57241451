package domain

import (
	"sync"

	"github.com/core-tools/hsu-svcmgr-go/pkg/errors"
)

// StaticRepository is an in-memory Repository that turns a parsed
// config file straight into in-memory descriptors with no further
// indirection. It is the repository the bootstrap CLI and the test
// suite use; a real deployment would back Repository with a persisted
// catalog instead.
type StaticRepository struct {
	mutex       sync.RWMutex
	descriptors map[ServicePath]ServiceDescriptor
	subscribers map[int]func()
	nextSubID   int
}

// NewStaticRepository builds an empty repository.
func NewStaticRepository() *StaticRepository {
	return &StaticRepository{
		descriptors: make(map[ServicePath]ServiceDescriptor),
		subscribers: make(map[int]func()),
	}
}

// Put installs or replaces a descriptor and notifies subscribers.
func (r *StaticRepository) Put(desc ServiceDescriptor) {
	r.mutex.Lock()
	r.descriptors[desc.Path] = desc
	subs := make([]func(), 0, len(r.subscribers))
	for _, f := range r.subscribers {
		subs = append(subs, f)
	}
	r.mutex.Unlock()

	for _, f := range subs {
		f()
	}
}

func (r *StaticRepository) Lookup(path ServicePath) (ServiceDescriptor, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	desc, ok := r.descriptors[path]
	if !ok {
		return ServiceDescriptor{}, errors.NewNotFoundError("service descriptor not found", nil).WithContext("path", path.String())
	}
	return desc, nil
}

func (r *StaticRepository) Subscribe(onChange func()) func() {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	id := r.nextSubID
	r.nextSubID++
	r.subscribers[id] = onChange

	return func() {
		r.mutex.Lock()
		defer r.mutex.Unlock()
		delete(r.subscribers, id)
	}
}
