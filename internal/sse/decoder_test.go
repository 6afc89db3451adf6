package sse

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleStream = "event: delta\ndata: {\"delta\":\"Hel\"}\n\n" +
	"event: image\ndata: {\"url\":\"/gen_imgs/a.png\"}\n\n" +
	": heartbeat\n\n" +
	"data: {\"note\":\"no event line\"}\n\n" +
	"event: delta\ndata: {\"delta\":\"lo\"}\n\n"

func collect(t *testing.T, r io.Reader) []Event {
	t.Helper()
	d := NewDecoder(r)
	var events []Event
	for {
		ev, err := d.Next()
		if errors.Is(err, io.EOF) {
			return events
		}
		require.NoError(t, err)
		events = append(events, ev)
	}
}

func TestDecoder_ParsesBlocks(t *testing.T) {
	events := collect(t, strings.NewReader(sampleStream))

	require.Len(t, events, 4)
	assert.Equal(t, Event{Name: "delta", Data: `{"delta":"Hel"}`}, events[0])
	assert.Equal(t, Event{Name: "image", Data: `{"url":"/gen_imgs/a.png"}`}, events[1])
	assert.Equal(t, "message", events[2].Name)
	assert.Equal(t, Event{Name: "delta", Data: `{"delta":"lo"}`}, events[3])
}

func TestFramer_ChunkBoundariesDoNotMatter(t *testing.T) {
	var whole Framer
	want := whole.Push([]byte(sampleStream))

	for split := 1; split < len(sampleStream); split++ {
		var f Framer
		got := f.Push([]byte(sampleStream[:split]))
		got = append(got, f.Push([]byte(sampleStream[split:]))...)
		require.Equal(t, want, got, "split at %d", split)
	}

	// one byte at a time through the reader path as well
	got := collect(t, iotest.OneByteReader(strings.NewReader(sampleStream)))
	assert.Equal(t, want, got)
}

func TestFramer_HoldsPartialBlock(t *testing.T) {
	var f Framer
	assert.Empty(t, f.Push([]byte("event: delta\ndata: {\"delta\":\"a\"}\n")))
	assert.Positive(t, f.Pending())

	events := f.Push([]byte("\n"))
	require.Len(t, events, 1)
	assert.Equal(t, "delta", events[0].Name)
	assert.Zero(t, f.Pending())
}

func TestDecoder_DiscardsTrailingPartialBlock(t *testing.T) {
	d := NewDecoder(strings.NewReader("event: delta\ndata: {\"delta\":\"a\"}\n\nevent: delta\ndata: {\"delta\":\"b\"}"))

	ev, err := d.Next()
	require.NoError(t, err)
	assert.Equal(t, `{"delta":"a"}`, ev.Data)

	_, err = d.Next()
	assert.ErrorIs(t, err, io.EOF)
	assert.Positive(t, d.Dropped())

	// stays terminated
	_, err = d.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestDecoder_JoinsMultipleDataLines(t *testing.T) {
	events := collect(t, strings.NewReader("event: note\ndata: first\ndata:  second \n\n"))

	require.Len(t, events, 1)
	assert.Equal(t, "first\nsecond", events[0].Data)
}

func TestDecoder_PassesThroughUnknownEvents(t *testing.T) {
	events := collect(t, strings.NewReader("event: status\ndata: {\"type\":\"processing_start\"}\n\n"))

	require.Len(t, events, 1)
	assert.Equal(t, "status", events[0].Name)
}

func TestDecoder_PropagatesReadErrors(t *testing.T) {
	boom := errors.New("connection reset")
	d := NewDecoder(io.MultiReader(strings.NewReader("event: delta\ndata: {}\n\n"), iotest.ErrReader(boom)))

	_, err := d.Next()
	require.NoError(t, err)

	_, err = d.Next()
	assert.ErrorIs(t, err, boom)
}

func TestEvent_DecodeError(t *testing.T) {
	var payload struct {
		Delta string `json:"delta"`
	}
	err := Event{Name: "delta", Data: "{not json"}.Decode(&payload)

	var decodeErr *DecodeError
	require.ErrorAs(t, err, &decodeErr)
	assert.Equal(t, "delta", decodeErr.Event)
}

func TestWriter_RoundTrip(t *testing.T) {
	rec := httptest.NewRecorder()
	w := NewWriter(rec)

	require.NoError(t, w.WriteJSON("delta", map[string]string{"delta": "hi"}))
	require.NoError(t, w.Comment("heartbeat"))
	require.NoError(t, w.Write("note", "line one\nline two"))
	require.NoError(t, w.Write("", `{"x":1}`))

	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	events := collect(t, rec.Body)
	require.Len(t, events, 3)
	assert.Equal(t, Event{Name: "delta", Data: `{"delta":"hi"}`}, events[0])
	assert.Equal(t, Event{Name: "note", Data: "line one\nline two"}, events[1])
	assert.Equal(t, Event{Name: "message", Data: `{"x":1}`}, events[2])
}
