package sse

import (
	"errors"
	"io"
	"strings"
	"testing"
)

func collectLines(d *LineDecoder, chunks [][]byte) []string {
	var out []string
	for _, c := range chunks {
		out = append(out, d.Feed(c)...)
	}
	if tail, ok := d.Flush(); ok {
		out = append(out, tail)
	}
	return out
}

func TestLineDecoderChunkingInvariance(t *testing.T) {
	// Includes a multi-byte sequence so splits can land mid-rune.
	text := "data: {\"text\":\"héllo 世界\"}\ndata: 第二行\n\ndata: tail"
	raw := []byte(text)

	var want []string
	{
		var d LineDecoder
		want = collectLines(&d, [][]byte{raw})
	}

	for split := 1; split < len(raw); split++ {
		var d LineDecoder
		got := collectLines(&d, [][]byte{raw[:split], raw[split:]})
		if len(got) != len(want) {
			t.Fatalf("split %d: got %d lines, want %d", split, len(got), len(want))
		}
		for i := range got {
			if got[i] != want[i] {
				t.Fatalf("split %d line %d: got %q want %q", split, i, got[i], want[i])
			}
		}
	}
}

func TestLineDecoderTrailingLineEmittedOnce(t *testing.T) {
	var d LineDecoder
	lines := d.Feed([]byte("data: a\ndata: b"))
	if len(lines) != 1 || lines[0] != "data: a" {
		t.Fatalf("unexpected complete lines: %#v", lines)
	}
	tail, ok := d.Flush()
	if !ok || tail != "data: b" {
		t.Fatalf("expected trailing line once, got %q ok=%v", tail, ok)
	}
	if _, ok := d.Flush(); ok {
		t.Fatalf("trailing line surfaced twice")
	}
}

func TestDataPayload(t *testing.T) {
	if _, ok := DataPayload("   "); ok {
		t.Fatalf("blank line should carry no payload")
	}
	if _, ok := DataPayload("event: message"); ok {
		t.Fatalf("non-data line should carry no payload")
	}
	payload, ok := DataPayload("data: {\"x\":1}\r")
	if !ok || payload != "{\"x\":1}" {
		t.Fatalf("unexpected payload %q ok=%v", payload, ok)
	}
}

func TestScannerStopsAtDoneSentinel(t *testing.T) {
	body := "data: {\"a\":1}\n\ndata: [DONE]\n\ndata: {\"after\":true}\n\n"
	s := NewScanner(strings.NewReader(body))

	payload, ok := s.Next()
	if !ok || payload != "{\"a\":1}" {
		t.Fatalf("unexpected first payload %q ok=%v", payload, ok)
	}
	if _, ok := s.Next(); ok {
		t.Fatalf("scanner continued past [DONE]")
	}
	if !s.SawDone() {
		t.Fatalf("expected SawDone")
	}
	if _, ok := s.Next(); ok {
		t.Fatalf("scanner restarted after termination")
	}
}

func TestScannerFlushesUnterminatedFinalLine(t *testing.T) {
	s := NewScanner(strings.NewReader("data: {\"a\":1}\n\ndata: {\"b\":2}"))
	first, ok := s.Next()
	if !ok || first != "{\"a\":1}" {
		t.Fatalf("unexpected first payload %q", first)
	}
	second, ok := s.Next()
	if !ok || second != "{\"b\":2}" {
		t.Fatalf("trailing unterminated payload lost: %q ok=%v", second, ok)
	}
	if _, ok := s.Next(); ok {
		t.Fatalf("expected end of stream")
	}
	if s.Err() != nil {
		t.Fatalf("unexpected error: %v", s.Err())
	}
}

type failingReader struct {
	data []byte
	err  error
	sent bool
}

func (r *failingReader) Read(p []byte) (int, error) {
	if !r.sent {
		r.sent = true
		n := copy(p, r.data)
		return n, nil
	}
	return 0, r.err
}

func TestScannerSurfacesReadError(t *testing.T) {
	wantErr := errors.New("connection reset")
	s := NewScanner(&failingReader{data: []byte("data: {\"a\":1}\n"), err: wantErr})
	if payload, ok := s.Next(); !ok || payload != "{\"a\":1}" {
		t.Fatalf("unexpected payload %q ok=%v", payload, ok)
	}
	if _, ok := s.Next(); ok {
		t.Fatalf("expected stream end on error")
	}
	if !errors.Is(s.Err(), wantErr) {
		t.Fatalf("expected %v, got %v", wantErr, s.Err())
	}
}

func TestScannerEOFWithoutSentinel(t *testing.T) {
	s := NewScanner(io.MultiReader(strings.NewReader("data: {\"a\":1}\n\n")))
	if _, ok := s.Next(); !ok {
		t.Fatalf("expected one payload")
	}
	if _, ok := s.Next(); ok {
		t.Fatalf("expected clean end")
	}
	if s.SawDone() {
		t.Fatalf("no sentinel was sent")
	}
}
