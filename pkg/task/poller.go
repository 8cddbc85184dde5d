// Package task drives asynchronous upstream generation jobs to a terminal
// state: fixed-interval status polling with a bounded attempt budget,
// at most one active poll loop per task id, and cancel semantics that
// re-check the upstream state right before the delete.
package task

import (
	"context"
	"sync"
	"time"

	log "github.com/charmbracelet/log"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/genrelay/genrelay/pkg/provider"
)

const (
	DefaultInterval    = 5 * time.Second
	DefaultMaxAttempts = 60

	resultCacheSize = 512
	resultCacheTTL  = time.Hour
)

// StatusClient is the slice of the upstream client the poller needs.
type StatusClient interface {
	QueryTask(ctx context.Context, id string) (provider.Task, error)
	CancelTask(ctx context.Context, id string) (success bool, message string, err error)
}

// OutcomeKind classifies how a poll loop ended.
type OutcomeKind int

const (
	OutcomeSucceeded OutcomeKind = iota
	OutcomeFailed
	OutcomeCancelled
	// OutcomeUnknown: upstream reported a status outside the known set;
	// polling stops and the status is surfaced unclassified.
	OutcomeUnknown
	// OutcomeTimedOut: the attempt budget ran out with the task still
	// non-terminal. Distinct from failure; the task may yet finish upstream.
	OutcomeTimedOut
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSucceeded:
		return "succeeded"
	case OutcomeFailed:
		return "failed"
	case OutcomeCancelled:
		return "cancelled"
	case OutcomeTimedOut:
		return "timed_out"
	default:
		return "unknown"
	}
}

// Outcome is the terminal result of one poll loop.
type Outcome struct {
	Kind     OutcomeKind
	Task     provider.Task
	Attempts int
}

type pollHandle struct {
	cancel context.CancelFunc
}

// Poller owns the per-task polling loops. Interval and MaxAttempts may be
// adjusted before first use.
type Poller struct {
	Interval    time.Duration
	MaxAttempts int

	client  StatusClient
	mu      sync.Mutex
	active  map[string]*pollHandle
	results *expirable.LRU[string, Outcome]
}

func NewPoller(client StatusClient) *Poller {
	return &Poller{
		Interval:    DefaultInterval,
		MaxAttempts: DefaultMaxAttempts,
		client:      client,
		active:      map[string]*pollHandle{},
		results:     expirable.NewLRU[string, Outcome](resultCacheSize, nil, resultCacheTTL),
	}
}

// Wait polls the task until terminal, timeout, or context cancellation.
// onUpdate, if non-nil, receives every successfully fetched snapshot in
// order. Starting Wait for an id cancels any poll loop already running for
// the same id, so there is never more than one timer per task.
func (p *Poller) Wait(ctx context.Context, id string, onUpdate func(provider.Task)) (Outcome, error) {
	if out, ok := p.results.Get(id); ok {
		return out, nil
	}

	ctx, cancel := context.WithCancel(ctx)
	handle := &pollHandle{cancel: cancel}
	p.mu.Lock()
	if prev, ok := p.active[id]; ok {
		prev.cancel()
	}
	p.active[id] = handle
	p.mu.Unlock()
	defer func() {
		cancel()
		p.mu.Lock()
		if p.active[id] == handle {
			delete(p.active, id)
		}
		p.mu.Unlock()
	}()

	timer := time.NewTimer(p.Interval)
	defer timer.Stop()

	for attempt := 1; ; attempt++ {
		select {
		case <-ctx.Done():
			return Outcome{}, ctx.Err()
		case <-timer.C:
		}

		snapshot, err := p.client.QueryTask(ctx, id)
		if err != nil {
			// Transport failures are retried on the same cadence and
			// consume the same attempt budget as non-terminal polls.
			log.Warn("task poll failed", "task", id, "attempt", attempt, "err", err)
		} else {
			if onUpdate != nil {
				onUpdate(snapshot)
			}
			switch snapshot.Status {
			case provider.StatusSucceeded:
				return p.finish(id, Outcome{Kind: OutcomeSucceeded, Task: snapshot, Attempts: attempt}), nil
			case provider.StatusFailed:
				return p.finish(id, Outcome{Kind: OutcomeFailed, Task: snapshot, Attempts: attempt}), nil
			case provider.StatusCancelled:
				return p.finish(id, Outcome{Kind: OutcomeCancelled, Task: snapshot, Attempts: attempt}), nil
			case provider.StatusQueued, provider.StatusRunning, provider.StatusProcessing:
				// keep polling
			default:
				return Outcome{Kind: OutcomeUnknown, Task: snapshot, Attempts: attempt}, nil
			}
		}

		if attempt >= p.MaxAttempts {
			return Outcome{Kind: OutcomeTimedOut, Task: provider.Task{ID: id}, Attempts: attempt}, nil
		}
		timer.Reset(p.Interval)
	}
}

// Query returns the current task snapshot, serving cached terminal results
// without touching the upstream.
func (p *Poller) Query(ctx context.Context, id string) (provider.Task, error) {
	if out, ok := p.results.Get(id); ok && out.Task.ID != "" {
		return out.Task, nil
	}
	snapshot, err := p.client.QueryTask(ctx, id)
	if err != nil {
		return provider.Task{}, err
	}
	if provider.Terminal(snapshot.Status) {
		p.cacheTerminal(id, snapshot)
	}
	return snapshot, nil
}

func (p *Poller) finish(id string, out Outcome) Outcome {
	p.results.Add(id, out)
	return out
}

func (p *Poller) cacheTerminal(id string, snapshot provider.Task) {
	kind := OutcomeUnknown
	switch snapshot.Status {
	case provider.StatusSucceeded:
		kind = OutcomeSucceeded
	case provider.StatusFailed:
		kind = OutcomeFailed
	case provider.StatusCancelled:
		kind = OutcomeCancelled
	default:
		return
	}
	p.results.Add(id, Outcome{Kind: kind, Task: snapshot})
}

// stopPolling cancels the active loop for id, if any.
func (p *Poller) stopPolling(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if h, ok := p.active[id]; ok {
		h.cancel()
		delete(p.active, id)
	}
}
