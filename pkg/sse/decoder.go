// Package sse implements incremental decoding of text/event-stream bodies
// and the outward data-line framing used by the streaming endpoints.
package sse

import (
	"bytes"
	"strings"
)

// DoneSentinel is the payload upstreams send as an in-band end-of-stream marker.
const DoneSentinel = "[DONE]"

const dataPrefix = "data:"

// LineDecoder reassembles logical lines from arbitrarily chunked bytes.
// Buffering happens at the byte level, so a chunk boundary in the middle of a
// multi-byte UTF-8 sequence cannot corrupt the decoded text: the same bytes
// split at any boundary produce the same line sequence.
type LineDecoder struct {
	pending []byte
}

// Feed appends chunk to the internal buffer and returns all complete lines
// found so far, in order. The trailing piece after the last newline is
// retained for the next call.
func (d *LineDecoder) Feed(chunk []byte) []string {
	if len(chunk) == 0 {
		return nil
	}
	d.pending = append(d.pending, chunk...)
	var lines []string
	for {
		idx := bytes.IndexByte(d.pending, '\n')
		if idx < 0 {
			return lines
		}
		lines = append(lines, string(d.pending[:idx]))
		d.pending = d.pending[idx+1:]
	}
}

// Flush returns the retained partial line, if any. A non-terminated final
// line is still surfaced exactly once at stream end.
func (d *LineDecoder) Flush() (string, bool) {
	if len(d.pending) == 0 {
		return "", false
	}
	line := string(d.pending)
	d.pending = nil
	return line, true
}

// DataPayload extracts the payload of one SSE data line. Blank lines are
// record separators and lines without the data marker carry no payload;
// both report ok=false.
func DataPayload(line string) (string, bool) {
	line = strings.TrimSpace(strings.TrimSuffix(line, "\r"))
	if line == "" || !strings.HasPrefix(line, dataPrefix) {
		return "", false
	}
	return strings.TrimSpace(strings.TrimPrefix(line, dataPrefix)), true
}
