package sse

import (
	"errors"
	"io"
)

// Scanner pulls decoded data payloads from an upstream event-stream body.
// It is a lazy, finite, non-restartable sequence: each Next call suspends on
// the next read, lines are surfaced strictly in arrival order, and the
// sentinel payload terminates the sequence without further reads.
type Scanner struct {
	r       io.Reader
	dec     LineDecoder
	queued  []string
	buf     [8192]byte
	done    bool
	sawDone bool
	err     error
}

func NewScanner(r io.Reader) *Scanner {
	return &Scanner{r: r}
}

// Next returns the next data payload. ok=false means the stream is finished,
// either cleanly (EOF or [DONE]) or because of a read error (see Err).
func (s *Scanner) Next() (string, bool) {
	for {
		for len(s.queued) > 0 {
			line := s.queued[0]
			s.queued = s.queued[1:]
			payload, ok := DataPayload(line)
			if !ok {
				continue
			}
			if payload == DoneSentinel {
				s.done = true
				s.sawDone = true
				s.queued = nil
				return "", false
			}
			return payload, true
		}
		if s.done {
			return "", false
		}
		n, err := s.r.Read(s.buf[:])
		if n > 0 {
			s.queued = s.dec.Feed(s.buf[:n])
		}
		if err != nil {
			s.done = true
			if !errors.Is(err, io.EOF) {
				s.err = err
				return "", false
			}
			// Best effort on a non-terminated trailing line.
			if tail, ok := s.dec.Flush(); ok {
				s.queued = append(s.queued, tail)
			}
		}
	}
}

// SawDone reports whether the stream ended via the [DONE] sentinel.
func (s *Scanner) SawDone() bool { return s.sawDone }

// Err returns the read error that ended the stream, if any. EOF is not an error.
func (s *Scanner) Err() error { return s.err }
