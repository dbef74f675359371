package engine_test

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/havryliv/jobtree/internal/domain"
	"github.com/havryliv/jobtree/internal/engine"
)

func newTestScheduler(threads int) *engine.Scheduler {
	return engine.New(engine.Config{ThreadCount: threads, NumPools: 2, IdleBackoff: time.Millisecond})
}

func TestScheduler_SubmitRunsJob(t *testing.T) {
	s := newTestScheduler(2)
	defer s.Terminate()

	var ran atomic.Bool
	s.Submit(func(domain.Ctx) { ran.Store(true) })
	s.Wait()

	assert.True(t, ran.Load())
}

// A parent job's completion waits for every child it submitted, however
// deep the tree goes.
func TestScheduler_ParentWaitsForChildren(t *testing.T) {
	s := newTestScheduler(4)
	defer s.Terminate()

	var grandchildRan atomic.Bool
	var parentDone atomic.Bool

	s.Submit(func(ctx domain.Ctx) {
		ctx.SubmitChild(func(ctx domain.Ctx) {
			ctx.SubmitChild(func(domain.Ctx) {
				time.Sleep(10 * time.Millisecond)
				grandchildRan.Store(true)
			})
		})
		ctx.OnFinishedAdd(func(domain.Ctx) { parentDone.Store(grandchildRan.Load()) })
	})

	s.Wait()
	assert.True(t, grandchildRan.Load())
	assert.True(t, parentDone.Load(), "the parent's successor saw the grandchild already finished")
}

// OnFinishedAdd's successor only runs after the whole subtree, not just
// the job that registered it, has finished.
func TestScheduler_SuccessorRunsAfterSubtree(t *testing.T) {
	s := newTestScheduler(4)
	defer s.Terminate()

	var childFinishedBeforeSuccessor atomic.Bool
	childDone := make(chan struct{})

	s.Submit(func(ctx domain.Ctx) {
		ctx.SubmitChild(func(domain.Ctx) {
			time.Sleep(15 * time.Millisecond)
			close(childDone)
		})
		ctx.OnFinishedAdd(func(domain.Ctx) {
			select {
			case <-childDone:
				childFinishedBeforeSuccessor.Store(true)
			default:
			}
		})
	})

	s.Wait()
	assert.True(t, childFinishedBeforeSuccessor.Load())
}

// With more jobs than workers, idle workers steal from busy ones instead
// of sitting idle for the whole run.
func TestScheduler_WorkStealingDistributesLoad(t *testing.T) {
	s := newTestScheduler(4)
	defer s.Terminate()

	const n = 200
	var completed atomic.Int64
	var perWorker [4]atomic.Int64
	fns := make([]domain.Func, n)
	for i := 0; i < n; i++ {
		fns[i] = func(ctx domain.Ctx) {
			time.Sleep(time.Millisecond)
			perWorker[ctx.WorkerIndex()].Add(1)
			completed.Add(1)
		}
	}
	s.SubmitBatch(fns)

	waitForCondition(t, 5*time.Second, func() bool { return completed.Load() == n })
	for i := range perWorker {
		assert.Positive(t, perWorker[i].Load(), "worker %d ran no jobs", i)
	}
}

// Playback re-runs every recorded job body, including the root, but the
// SubmitChild calls in the re-run root body are no-ops: the recorded
// structure is replayed by walking the stored child/sibling links directly,
// and the completion job fires once every recorded job has run.
func TestScheduler_PlaybackReplaysRecordedChildren(t *testing.T) {
	s := newTestScheduler(2)
	defer s.Terminate()

	var recordCalls atomic.Int32
	var execCount atomic.Int32

	s.Submit(func(ctx domain.Ctx) {
		recordCalls.Add(1)
		ctx.SubmitChild(func(domain.Ctx) { execCount.Add(1) })
		ctx.SubmitChild(func(domain.Ctx) { execCount.Add(1) })
	}, 7)
	s.Wait()
	require.EqualValues(t, 1, recordCalls.Load())
	require.EqualValues(t, 2, execCount.Load())

	var done atomic.Bool
	s.Playback(7, func(domain.Ctx) { done.Store(true) })
	s.Wait()

	assert.EqualValues(t, 2, recordCalls.Load(), "the recorded root body runs again during playback")
	assert.EqualValues(t, 4, execCount.Load(), "the two recorded children ran again")
	assert.True(t, done.Load())
}

// Playback of a pool nothing was ever recorded into still fires its
// completion job, instead of hanging.
func TestScheduler_PlaybackOfEmptyPoolFiresCompletionDirectly(t *testing.T) {
	s := newTestScheduler(2)
	defer s.Terminate()

	var done atomic.Bool
	s.Playback(1, func(domain.Ctx) { done.Store(true) })
	s.Wait()
	assert.True(t, done.Load())
}

// Playback of a pool id that was never created at all is a programmer
// error.
func TestScheduler_PlaybackOfUnknownPoolPanics(t *testing.T) {
	s := engine.New(engine.Config{ThreadCount: 1})
	defer s.Terminate()

	assert.Panics(t, func() {
		s.Playback(999, nil)
	})
}

// A panicking job body does not prevent the parent/successor/quiescence
// protocol from running.
func TestScheduler_RecoversPanickingJobBody(t *testing.T) {
	s := newTestScheduler(2)
	defer s.Terminate()

	var successorRan atomic.Bool
	s.Submit(func(ctx domain.Ctx) {
		ctx.OnFinishedAdd(func(domain.Ctx) { successorRan.Store(true) })
		panic("boom")
	})

	s.Wait()
	assert.True(t, successorRan.Load())
}

func TestScheduler_TerminateUnblocksWaitEvenWithOutstandingJobs(t *testing.T) {
	s := newTestScheduler(1)

	block := make(chan struct{})
	s.Submit(func(domain.Ctx) { <-block })

	done := make(chan struct{})
	go func() {
		s.Wait()
		close(done)
	}()

	s.Terminate()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Wait did not return after Terminate")
	}
	close(block)
}
