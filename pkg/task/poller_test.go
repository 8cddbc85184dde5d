package task

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/genrelay/genrelay/pkg/provider"
)

// scriptedClient replays a fixed sequence of task snapshots, then repeats
// the last one. It records every cancel it receives.
type scriptedClient struct {
	mu        sync.Mutex
	script    []provider.Task
	errs      []error
	queries   int
	cancels   int
	cancelOK  bool
	cancelMsg string
}

func (c *scriptedClient) QueryTask(_ context.Context, id string) (provider.Task, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	i := c.queries
	c.queries++
	if i < len(c.errs) && c.errs[i] != nil {
		return provider.Task{}, c.errs[i]
	}
	if len(c.script) == 0 {
		return provider.Task{ID: id, Status: provider.StatusRunning}, nil
	}
	if i >= len(c.script) {
		i = len(c.script) - 1
	}
	t := c.script[i]
	if t.ID == "" {
		t.ID = id
	}
	return t, nil
}

func (c *scriptedClient) CancelTask(_ context.Context, _ string) (bool, string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancels++
	return c.cancelOK, c.cancelMsg, nil
}

func (c *scriptedClient) counts() (queries, cancels int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.queries, c.cancels
}

func newTestPoller(c StatusClient) *Poller {
	p := NewPoller(c)
	p.Interval = time.Millisecond
	return p
}

func TestWaitStopsOnFirstTerminalStatus(t *testing.T) {
	client := &scriptedClient{script: []provider.Task{
		{Status: provider.StatusQueued},
		{Status: provider.StatusQueued},
		{Status: provider.StatusRunning},
		{Status: provider.StatusSucceeded, Content: &provider.TaskContent{VideoURL: "https://cdn.example/v.mp4"}},
	}}
	p := newTestPoller(client)

	var seen []string
	out, err := p.Wait(context.Background(), "task-1", func(t provider.Task) {
		seen = append(seen, t.Status)
	})
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if out.Kind != OutcomeSucceeded {
		t.Fatalf("outcome = %s, want succeeded", out.Kind)
	}
	if out.Attempts != 4 {
		t.Fatalf("attempts = %d, want 4", out.Attempts)
	}
	if queries, _ := client.counts(); queries != 4 {
		t.Fatalf("upstream queried %d times, want 4", queries)
	}
	if urls := out.Task.ResultURLs(); len(urls) != 1 || urls[0] != "https://cdn.example/v.mp4" {
		t.Fatalf("result urls = %v", urls)
	}
	if len(seen) != 4 || seen[0] != provider.StatusQueued || seen[3] != provider.StatusSucceeded {
		t.Fatalf("updates = %v", seen)
	}
}

func TestWaitTimesOutAfterAttemptBudget(t *testing.T) {
	client := &scriptedClient{script: []provider.Task{{Status: provider.StatusRunning}}}
	p := newTestPoller(client)
	p.MaxAttempts = 60

	out, err := p.Wait(context.Background(), "task-2", nil)
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if out.Kind != OutcomeTimedOut {
		t.Fatalf("outcome = %s, want timed_out", out.Kind)
	}
	if out.Attempts != 60 {
		t.Fatalf("attempts = %d, want 60", out.Attempts)
	}
	if queries, _ := client.counts(); queries != 60 {
		t.Fatalf("upstream queried %d times, want 60", queries)
	}
}

func TestWaitCountsTransportErrorsTowardBudget(t *testing.T) {
	client := &scriptedClient{
		errs:   []error{errors.New("connection reset"), nil},
		script: []provider.Task{{}, {Status: provider.StatusSucceeded}},
	}
	p := newTestPoller(client)

	out, err := p.Wait(context.Background(), "task-3", nil)
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if out.Kind != OutcomeSucceeded || out.Attempts != 2 {
		t.Fatalf("outcome = %s after %d attempts, want succeeded after 2", out.Kind, out.Attempts)
	}
}

func TestWaitTreatsUnknownStatusAsTerminal(t *testing.T) {
	client := &scriptedClient{script: []provider.Task{{Status: "paused"}}}
	p := newTestPoller(client)

	out, err := p.Wait(context.Background(), "task-4", nil)
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if out.Kind != OutcomeUnknown || out.Attempts != 1 {
		t.Fatalf("outcome = %s after %d attempts, want unknown after 1", out.Kind, out.Attempts)
	}
	if out.Task.Status != "paused" {
		t.Fatalf("status = %q, want paused", out.Task.Status)
	}
}

func TestWaitReturnsCachedTerminalOutcome(t *testing.T) {
	client := &scriptedClient{script: []provider.Task{{Status: provider.StatusFailed, Error: &provider.TaskError{Code: "E1", Message: "bad"}}}}
	p := newTestPoller(client)

	if _, err := p.Wait(context.Background(), "task-5", nil); err != nil {
		t.Fatalf("first Wait: %v", err)
	}
	out, err := p.Wait(context.Background(), "task-5", nil)
	if err != nil {
		t.Fatalf("second Wait: %v", err)
	}
	if out.Kind != OutcomeFailed {
		t.Fatalf("outcome = %s, want failed", out.Kind)
	}
	if queries, _ := client.counts(); queries != 1 {
		t.Fatalf("upstream queried %d times, want 1 (cached)", queries)
	}
}

func TestWaitHonorsContextCancellation(t *testing.T) {
	client := &scriptedClient{script: []provider.Task{{Status: provider.StatusRunning}}}
	p := newTestPoller(client)
	p.Interval = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(5 * time.Millisecond)
		cancel()
	}()
	_, err := p.Wait(ctx, "task-6", nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestCancelRunningIssuesNoUpstreamDelete(t *testing.T) {
	client := &scriptedClient{script: []provider.Task{{Status: provider.StatusRunning}}}
	p := newTestPoller(client)

	res, err := p.Cancel(context.Background(), "task-7")
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if res.Status != CancelNotCancellable {
		t.Fatalf("status = %d, want not-cancellable", res.Status)
	}
	if _, cancels := client.counts(); cancels != 0 {
		t.Fatalf("upstream delete issued %d times, want 0", cancels)
	}
}

func TestCancelQueuedDeletesAndCachesOutcome(t *testing.T) {
	client := &scriptedClient{
		script:   []provider.Task{{Status: provider.StatusQueued}},
		cancelOK: true,
	}
	p := newTestPoller(client)

	res, err := p.Cancel(context.Background(), "task-8")
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if res.Status != CancelOK || res.Task != provider.StatusCancelled {
		t.Fatalf("result = %+v", res)
	}
	if _, cancels := client.counts(); cancels != 1 {
		t.Fatalf("upstream delete issued %d times, want 1", cancels)
	}

	out, err := p.Wait(context.Background(), "task-8", nil)
	if err != nil {
		t.Fatalf("Wait after cancel: %v", err)
	}
	if out.Kind != OutcomeCancelled {
		t.Fatalf("outcome = %s, want cancelled", out.Kind)
	}
}

func TestCancelRejectedUpstreamReportsStateChange(t *testing.T) {
	client := &scriptedClient{
		script:   []provider.Task{{Status: provider.StatusQueued}},
		cancelOK: false,
	}
	p := newTestPoller(client)

	res, err := p.Cancel(context.Background(), "task-9")
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if res.Status != CancelStateChanged {
		t.Fatalf("status = %d, want state-changed", res.Status)
	}
	if res.Message == "" {
		t.Fatal("expected a message explaining the rejection")
	}
}

func TestCancelAlreadyTerminal(t *testing.T) {
	client := &scriptedClient{script: []provider.Task{{Status: provider.StatusSucceeded}}}
	p := newTestPoller(client)

	res, err := p.Cancel(context.Background(), "task-10")
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if res.Status != CancelAlreadyTerminal {
		t.Fatalf("status = %d, want already-terminal", res.Status)
	}
	if _, cancels := client.counts(); cancels != 0 {
		t.Fatalf("upstream delete issued %d times, want 0", cancels)
	}
}

func TestWaitSupersedesPreviousLoopForSameID(t *testing.T) {
	client := &scriptedClient{script: []provider.Task{{Status: provider.StatusRunning}}}
	p := newTestPoller(client)
	p.Interval = 2 * time.Millisecond
	p.MaxAttempts = 1000

	errCh := make(chan error, 1)
	go func() {
		_, err := p.Wait(context.Background(), "task-11", nil)
		errCh <- err
	}()
	time.Sleep(10 * time.Millisecond)

	// Second Wait for the same id must cancel the first loop.
	done := make(chan struct{})
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		_, _ = p.Wait(ctx, "task-11", nil)
		close(done)
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("first loop ended with %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("first poll loop was not superseded")
	}
	cancel()
	<-done
}
