// Package sse frames and unframes the event stream spoken by the chat stream
// endpoint: blocks separated by a blank line, each with an optional event:
// line and one or more data: lines carrying JSON.
package sse

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

const defaultEventName = "message"

var delimiter = []byte("\n\n")

type Event struct {
	Name string
	Data string
}

// Decode parses the event payload as JSON into v.
func (e Event) Decode(v any) error {
	if err := json.Unmarshal([]byte(e.Data), v); err != nil {
		return &DecodeError{Event: e.Name, Data: e.Data, Err: err}
	}
	return nil
}

// DecodeError reports a block whose payload is not valid JSON.
type DecodeError struct {
	Event string
	Data  string
	Err   error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("malformed %q event payload: %v", e.Event, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Framer accumulates raw chunks and cuts complete blocks out of them. A block
// is emitted only after its trailing blank line has arrived.
type Framer struct {
	buf []byte
}

// Push appends chunk and returns every event completed by it, in order.
func (f *Framer) Push(chunk []byte) []Event {
	f.buf = append(f.buf, chunk...)

	var events []Event
	for {
		idx := bytes.Index(f.buf, delimiter)
		if idx < 0 {
			break
		}
		block := string(f.buf[:idx])
		f.buf = f.buf[idx+len(delimiter):]

		if ev, ok := parseBlock(block); ok {
			events = append(events, ev)
		}
	}

	// Drop the consumed prefix so the backing array does not grow forever.
	if len(f.buf) == 0 {
		f.buf = nil
	}
	return events
}

// Pending reports how many bytes are buffered without a closing delimiter.
func (f *Framer) Pending() int {
	return len(f.buf)
}

func parseBlock(block string) (Event, bool) {
	name := defaultEventName
	var data []string

	for _, line := range strings.Split(block, "\n") {
		switch {
		case strings.HasPrefix(line, "event:"):
			name = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			data = append(data, strings.TrimSpace(strings.TrimPrefix(line, "data:")))
		}
	}

	payload := strings.Join(data, "\n")
	if payload == "" {
		// keep-alive or comment-only block
		return Event{}, false
	}
	return Event{Name: name, Data: payload}, true
}

// Decoder turns a byte stream into events. It is single-use: once Next has
// returned an error it keeps returning that error.
type Decoder struct {
	r       io.Reader
	framer  Framer
	queue   []Event
	chunk   []byte
	err     error
	chunks  int
	dropped int
}

const readChunkSize = 4096

func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: r, chunk: make([]byte, readChunkSize)}
}

// Next blocks until the next complete event is available. It returns io.EOF
// when the stream ends; bytes left without a trailing blank line are dropped.
func (d *Decoder) Next() (Event, error) {
	for len(d.queue) == 0 {
		if d.err != nil {
			return Event{}, d.err
		}

		n, err := d.r.Read(d.chunk)
		if n > 0 {
			d.chunks++
			d.queue = append(d.queue, d.framer.Push(d.chunk[:n])...)
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				d.dropped = d.framer.Pending()
				d.err = io.EOF
			} else {
				d.err = err
			}
		}
	}

	ev := d.queue[0]
	d.queue = d.queue[1:]
	return ev, nil
}

// Dropped returns the number of trailing bytes discarded at end of stream.
func (d *Decoder) Dropped() int {
	return d.dropped
}

// Chunks returns how many non-empty reads the decoder has performed.
func (d *Decoder) Chunks() int {
	return d.chunks
}
