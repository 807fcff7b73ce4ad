package admission

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/predictdesk/polyrisk/pkg/types"
)

func signal(id string, confidence float64) types.Signal {
	return types.Signal{
		ID:         id,
		Strategy:   "test",
		MarketID:   "0xmkt",
		Side:       types.SideYes,
		Confidence: confidence,
	}
}

func TestSubmit_EvaluationsNeverOverlap(t *testing.T) {
	q := New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	inFlight, maxInFlight := 0, 0

	go q.Run(ctx, func(_ context.Context, sig types.Signal) types.ExecutionResult {
		mu.Lock()
		inFlight++
		if inFlight > maxInFlight {
			maxInFlight = inFlight
		}
		mu.Unlock()

		time.Sleep(time.Millisecond)

		mu.Lock()
		inFlight--
		mu.Unlock()
		return types.ExecutionResult{SignalID: sig.ID, Status: types.ExecutionCommitted}
	})

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			res := q.Submit(ctx, signal(string(rune('a'+n)), 0.5))
			assert.Equal(t, types.ExecutionCommitted, res.Status)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, maxInFlight, "evaluations must serialize")
}

func TestSubmit_BatchOrderedByConfidenceThenID(t *testing.T) {
	q := New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var order []string

	started := make(chan struct{})
	release := make(chan struct{})

	go q.Run(ctx, func(_ context.Context, sig types.Signal) types.ExecutionResult {
		if sig.ID == "blocker" {
			close(started)
			<-release
		} else {
			mu.Lock()
			order = append(order, sig.ID)
			mu.Unlock()
		}
		return types.ExecutionResult{SignalID: sig.ID, Status: types.ExecutionCommitted}
	})

	// Occupy the evaluation slot so the rest queue up as one batch.
	go q.Submit(ctx, signal("blocker", 1.0))
	<-started

	batch := []types.Signal{
		signal("sig-c", 0.70),
		signal("sig-a", 0.70), // ties with sig-c; id breaks the tie
		signal("sig-b", 0.90),
		signal("sig-d", 0.55),
	}
	var wg sync.WaitGroup
	for _, sig := range batch {
		wg.Add(1)
		go func(s types.Signal) {
			defer wg.Done()
			q.Submit(ctx, s)
		}(sig)
	}

	// Let all four reach the pending list before the slot frees up.
	require.Eventually(t, func() bool {
		q.mu.Lock()
		defer q.mu.Unlock()
		return len(q.pending) == 4
	}, time.Second, time.Millisecond)

	close(release)
	wg.Wait()

	assert.Equal(t, []string{"sig-b", "sig-a", "sig-c", "sig-d"}, order)
}

func TestWithdraw_BeforeAdmission(t *testing.T) {
	q := New()

	// No dispatcher running: the signal stays pending.
	done := make(chan types.ExecutionResult, 1)
	go func() {
		done <- q.Submit(context.Background(), signal("sig-w", 0.5))
	}()

	require.Eventually(t, func() bool {
		q.mu.Lock()
		defer q.mu.Unlock()
		return len(q.pending) == 1
	}, time.Second, time.Millisecond)

	assert.True(t, q.Withdraw("sig-w"))

	res := <-done
	assert.Equal(t, types.ExecutionWithdrawn, res.Status)
}

func TestWithdraw_UnknownSignal(t *testing.T) {
	q := New()
	assert.False(t, q.Withdraw("never-queued"))
}

func TestSubmit_ContextCancelBeforeAdmissionWithdraws(t *testing.T) {
	q := New()

	subCtx, subCancel := context.WithCancel(context.Background())
	done := make(chan types.ExecutionResult, 1)
	go func() {
		done <- q.Submit(subCtx, signal("sig-x", 0.5))
	}()

	require.Eventually(t, func() bool {
		q.mu.Lock()
		defer q.mu.Unlock()
		return len(q.pending) == 1
	}, time.Second, time.Millisecond)

	subCancel()
	res := <-done
	assert.Equal(t, types.ExecutionWithdrawn, res.Status)

	q.mu.Lock()
	assert.Empty(t, q.pending)
	q.mu.Unlock()
}

func TestHalt_FailsPendingAndFuture(t *testing.T) {
	q := New()

	done := make(chan types.ExecutionResult, 1)
	go func() {
		done <- q.Submit(context.Background(), signal("sig-h", 0.5))
	}()

	require.Eventually(t, func() bool {
		q.mu.Lock()
		defer q.mu.Unlock()
		return len(q.pending) == 1
	}, time.Second, time.Millisecond)

	q.Halt("ledger invariant violation")

	res := <-done
	assert.Equal(t, types.ExecutionFailed, res.Status)
	assert.Equal(t, "ledger invariant violation", res.FailureCause)

	later := q.Submit(context.Background(), signal("sig-i", 0.5))
	assert.Equal(t, types.ExecutionFailed, later.Status)
	assert.True(t, q.Halted())
}

func TestRun_StopFailsPending(t *testing.T) {
	q := New()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan types.ExecutionResult, 1)
	go func() {
		done <- q.Submit(context.Background(), signal("sig-s", 0.5))
	}()

	require.Eventually(t, func() bool {
		q.mu.Lock()
		defer q.mu.Unlock()
		return len(q.pending) == 1
	}, time.Second, time.Millisecond)

	runDone := make(chan struct{})
	go func() {
		q.Run(ctx, func(_ context.Context, sig types.Signal) types.ExecutionResult {
			return types.ExecutionResult{SignalID: sig.ID, Status: types.ExecutionCommitted}
		})
		close(runDone)
	}()

	// The pending signal may be evaluated or failed depending on which
	// select branch wins; either way Submit must return a terminal result.
	cancel()
	<-runDone
	select {
	case res := <-done:
		assert.Contains(t, []types.ExecutionStatus{types.ExecutionCommitted, types.ExecutionFailed}, res.Status)
	case <-time.After(time.Second):
		t.Fatal("submit did not terminate after Run stopped")
	}
}
