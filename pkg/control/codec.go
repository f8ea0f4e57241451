// Package control implements the administrative control surface: a
// line-delimited JSON-RPC-ish transport for the Note envelope, and a
// minimal read-only HTTP introspection surface alongside it (see
// DESIGN.md for why this sits on JSON-over-Unix-socket rather than
// gRPC).
package control

import (
	"bufio"
	"encoding/json"
	"io"

	"github.com/core-tools/hsu-svcmgr-go/pkg/domain"
)

// Codec reads and writes domain.Note values as newline-delimited JSON
// over rw, one Note envelope per line.
type Codec struct {
	r *bufio.Scanner
	w io.Writer
}

// NewCodec wraps rw for reading and writing Notes one per line.
func NewCodec(rw io.ReadWriter) *Codec {
	scanner := bufio.NewScanner(rw)
	scanner.Buffer(make([]byte, 0, 4096), 1<<20)
	return &Codec{r: scanner, w: rw}
}

// ReadNote blocks for the next newline-delimited Note. It returns
// io.EOF when the underlying reader is exhausted.
func (c *Codec) ReadNote() (domain.Note, error) {
	if !c.r.Scan() {
		if err := c.r.Err(); err != nil {
			return domain.Note{}, err
		}
		return domain.Note{}, io.EOF
	}
	var note domain.Note
	if err := json.Unmarshal(c.r.Bytes(), &note); err != nil {
		return domain.Note{}, err
	}
	return note, nil
}

// WriteNote writes note as one JSON line terminated by '\n'.
func (c *Codec) WriteNote(note domain.Note) error {
	data, err := json.Marshal(note)
	if err != nil {
		return err
	}
	data = append(data, '\n')
	_, err = c.w.Write(data)
	return err
}
