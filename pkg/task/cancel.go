package task

import (
	"context"

	"github.com/genrelay/genrelay/pkg/provider"
)

// CancelStatus classifies the result of a cancel request.
type CancelStatus int

const (
	// CancelOK: the upstream accepted the delete.
	CancelOK CancelStatus = iota
	// CancelNotCancellable: the task was running or processing at re-check
	// time; no delete was sent upstream.
	CancelNotCancellable
	// CancelAlreadyTerminal: the task had already finished.
	CancelAlreadyTerminal
	// CancelStateChanged: the task looked cancellable at re-check but the
	// upstream rejected the delete, meaning its state moved in between.
	CancelStateChanged
)

// CancelResult reports what happened to a cancel request and the task
// status observed immediately before it.
type CancelResult struct {
	Status  CancelStatus
	Task    string
	Message string
}

// Cancel re-checks the task's current status and only then issues the
// upstream delete. Only queued tasks are cancellable; anything already
// running is left alone.
func (p *Poller) Cancel(ctx context.Context, id string) (CancelResult, error) {
	snapshot, err := p.client.QueryTask(ctx, id)
	if err != nil {
		return CancelResult{}, err
	}

	switch snapshot.Status {
	case provider.StatusRunning, provider.StatusProcessing:
		return CancelResult{
			Status:  CancelNotCancellable,
			Task:    snapshot.Status,
			Message: "task is already " + snapshot.Status + " and cannot be cancelled",
		}, nil
	case provider.StatusSucceeded, provider.StatusFailed, provider.StatusCancelled:
		p.cacheTerminal(id, snapshot)
		return CancelResult{
			Status:  CancelAlreadyTerminal,
			Task:    snapshot.Status,
			Message: "task already " + snapshot.Status,
		}, nil
	case provider.StatusQueued:
	default:
		return CancelResult{
			Status:  CancelNotCancellable,
			Task:    snapshot.Status,
			Message: "task status " + snapshot.Status + " cannot be cancelled",
		}, nil
	}

	success, message, err := p.client.CancelTask(ctx, id)
	if err != nil {
		return CancelResult{}, err
	}
	if !success {
		if message == "" {
			message = "task state changed before cancellation"
		}
		return CancelResult{Status: CancelStateChanged, Task: snapshot.Status, Message: message}, nil
	}

	p.stopPolling(id)
	p.results.Add(id, Outcome{
		Kind: OutcomeCancelled,
		Task: provider.Task{ID: id, Status: provider.StatusCancelled},
	})
	return CancelResult{Status: CancelOK, Task: provider.StatusCancelled, Message: message}, nil
}
