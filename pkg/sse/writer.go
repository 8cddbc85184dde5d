package sse

import (
	"encoding/json"
	"net/http"
)

// Writer emits the outward framing: one `data: <JSON>` line per event,
// blank-line separated, flushed immediately so the browser sees each event
// as it happens.
type Writer struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

// NewWriter prepares w for event streaming and sends the headers.
func NewWriter(w http.ResponseWriter) *Writer {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher, _ := w.(http.Flusher)
	return &Writer{w: w, flusher: flusher}
}

// WriteEvent marshals v and writes it as one event.
func (sw *Writer) WriteEvent(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return sw.writeFrame(b)
}

// WriteDone emits the literal sentinel frame.
func (sw *Writer) WriteDone() error {
	return sw.writeFrame([]byte(DoneSentinel))
}

func (sw *Writer) writeFrame(payload []byte) error {
	if _, err := sw.w.Write([]byte("data: ")); err != nil {
		return err
	}
	if _, err := sw.w.Write(payload); err != nil {
		return err
	}
	if _, err := sw.w.Write([]byte("\n\n")); err != nil {
		return err
	}
	if sw.flusher != nil {
		sw.flusher.Flush()
	}
	return nil
}
