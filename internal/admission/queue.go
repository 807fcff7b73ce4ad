package admission

import (
	"context"
	"sort"
	"sync"

	"github.com/predictdesk/polyrisk/pkg/types"
)

// Evaluator runs the evaluate-and-commit section for one admitted signal.
// The queue guarantees calls never overlap, so the evaluator always sees
// the fully committed effects of every earlier admission.
type Evaluator func(ctx context.Context, signal types.Signal) types.ExecutionResult

type request struct {
	ctx    context.Context
	signal types.Signal
	result chan types.ExecutionResult
}

// Queue serializes concurrent signal arrivals into a single evaluation
// sequence over the shared ledger and breaker state, closing the
// check-then-act race between signals competing for the same risk budget.
//
// Arrivals drain in batches: everything pending when the dispatcher wakes
// is treated as simultaneous and ordered by (confidence desc, signal id
// asc) — a deterministic tie-break. Signals may be withdrawn while still
// pending; once handed to the evaluator they run to a terminal decision.
type Queue struct {
	mu      sync.Mutex
	pending []*request
	wake    chan struct{}

	halted     bool
	haltReason string
}

// New creates an admission queue. Run must be started for submissions to
// make progress.
func New() *Queue {
	return &Queue{wake: make(chan struct{}, 1)}
}

// Run drains the queue until ctx is cancelled. It is the only goroutine
// that invokes eval.
func (q *Queue) Run(ctx context.Context, eval Evaluator) {
	for {
		select {
		case <-ctx.Done():
			q.failPending("admission queue stopped")
			return
		case <-q.wake:
		}

		for {
			batch := q.takeBatch()
			if len(batch) == 0 {
				break
			}
			for _, req := range batch {
				if ctx.Err() != nil {
					req.deliver(failedResult(req.signal.ID, "admission queue stopped"))
					continue
				}
				if q.Halted() {
					req.deliver(failedResult(req.signal.ID, q.HaltReason()))
					continue
				}
				if req.ctx.Err() != nil {
					// Withdrawn by its source before admission.
					req.deliver(types.ExecutionResult{SignalID: req.signal.ID, Status: types.ExecutionWithdrawn})
					continue
				}
				req.deliver(eval(req.ctx, req.signal))
			}
		}
	}
}

// Submit enqueues a signal and blocks until its terminal result. Cancelling
// ctx before admission withdraws the signal with no effect; cancellation
// after admission does not interrupt the evaluation.
func (q *Queue) Submit(ctx context.Context, signal types.Signal) types.ExecutionResult {
	q.mu.Lock()
	if q.halted {
		reason := q.haltReason
		q.mu.Unlock()
		return failedResult(signal.ID, reason)
	}
	req := &request{
		ctx:    ctx,
		signal: signal,
		result: make(chan types.ExecutionResult, 1),
	}
	q.pending = append(q.pending, req)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}

	select {
	case res := <-req.result:
		return res
	case <-ctx.Done():
		if q.remove(req) {
			return types.ExecutionResult{SignalID: signal.ID, Status: types.ExecutionWithdrawn}
		}
		// Already admitted: the evaluation runs to completion.
		return <-req.result
	}
}

// Withdraw removes a still-pending signal by id. Returns false if the
// signal was already admitted (or never queued).
func (q *Queue) Withdraw(signalID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i, req := range q.pending {
		if req.signal.ID == signalID {
			q.pending = append(q.pending[:i], q.pending[i+1:]...)
			req.deliver(types.ExecutionResult{SignalID: signalID, Status: types.ExecutionWithdrawn})
			return true
		}
	}
	return false
}

// Halt fails all pending and future submissions. Used when a ledger
// invariant violation makes continued trading unsafe; only a restart with
// manual intervention resumes admission.
func (q *Queue) Halt(reason string) {
	q.mu.Lock()
	q.halted = true
	q.haltReason = reason
	q.mu.Unlock()
	q.failPending(reason)
}

// Halted reports whether the queue has been fail-safed.
func (q *Queue) Halted() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.halted
}

// HaltReason returns why the queue halted, if it did.
func (q *Queue) HaltReason() string {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.haltReason
}

// takeBatch removes and orders everything currently pending.
func (q *Queue) takeBatch() []*request {
	q.mu.Lock()
	defer q.mu.Unlock()

	batch := q.pending
	q.pending = nil

	sort.SliceStable(batch, func(i, j int) bool {
		a, b := batch[i].signal, batch[j].signal
		if a.Confidence != b.Confidence {
			return a.Confidence > b.Confidence
		}
		return a.ID < b.ID
	})
	return batch
}

func (q *Queue) remove(target *request) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i, req := range q.pending {
		if req == target {
			q.pending = append(q.pending[:i], q.pending[i+1:]...)
			return true
		}
	}
	return false
}

func (q *Queue) failPending(reason string) {
	q.mu.Lock()
	pending := q.pending
	q.pending = nil
	q.mu.Unlock()

	for _, req := range pending {
		req.deliver(failedResult(req.signal.ID, reason))
	}
}

func (r *request) deliver(res types.ExecutionResult) {
	select {
	case r.result <- res:
	default:
	}
}

func failedResult(signalID, cause string) types.ExecutionResult {
	return types.ExecutionResult{
		SignalID:     signalID,
		Status:       types.ExecutionFailed,
		FailureCause: cause,
	}
}
