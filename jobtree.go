// Package jobtree is an in-process, multi-threaded scheduler for
// fine-grained, short-lived jobs that form dynamic parent/child trees, with
// a record-and-replay facility that lets a previously executed job graph be
// captured into a pool and re-run on later frames without re-recording the
// structure.
//
// A Scheduler owns a fixed pool of worker goroutines and a set of pools
// (arenas) that jobs are allocated from. Submitting a job never blocks:
// Submit and Ctx.SubmitChild allocate a slot and hand it to a random
// worker's queue, and workers pull work from their own queue first,
// stealing from a random peer when theirs runs dry.
//
// Example usage:
//
//	sched := jobtree.New(jobtree.Config{ThreadCount: 4, NumPools: 2})
//	defer func() {
//		sched.Terminate()
//		sched.Join()
//	}()
//
//	sched.Submit(func(ctx jobtree.Ctx) {
//		ctx.SubmitChild(func(jobtree.Ctx) { /* work */ })
//		ctx.SubmitChild(func(jobtree.Ctx) { /* work */ })
//	})
//	sched.Wait()
package jobtree

import (
	"github.com/havryliv/jobtree/internal/domain"
	"github.com/havryliv/jobtree/internal/engine"
	apperr "github.com/havryliv/jobtree/internal/error"
	"github.com/havryliv/jobtree/internal/monitor"
)

// Config controls a Scheduler's shape: thread count, pre-allocated pool
// count, and the stealing/backoff/logging/monitoring knobs.
type Config = engine.Config

// Scheduler owns the workers, queues, and pools of one job-tree instance.
type Scheduler = engine.Scheduler

// Func is the body of a job.
type Func = domain.Func

// Ctx is handed to a Func by the worker executing it, and is how the body
// submits children, registers a successor, or replays a recorded pool.
type Ctx = domain.Ctx

// JobRef identifies a job by its (pool, slot) coordinates.
type JobRef = domain.JobRef

// Monitoring receives a CompletionRecord each time a job and all of its
// descendants finish.
type Monitoring = domain.Monitoring

// CompletionRecord describes one finished job tree.
type CompletionRecord = domain.CompletionRecord

// Sentinel errors wrapped (via fmt.Errorf's %w) into the panics raised for
// programmer errors: playback of a pool that was never initialized, and
// re-entrant playback of a pool that is already replaying.
var (
	ErrUnknownPool       = apperr.ErrUnknownPool
	ErrReentrantPlayback = apperr.ErrReentrantPlayback
)

// New constructs a Scheduler: it pre-allocates cfg.NumPools pools and
// spawns cfg.ThreadCount worker goroutines, which are already running by
// the time New returns.
func New(cfg Config) *Scheduler {
	return engine.New(cfg)
}

// NewDefaultMonitoring returns the in-memory Monitoring implementation a
// Scheduler uses when Config.Monitoring is left nil.
func NewDefaultMonitoring() Monitoring {
	return monitor.NewDefault()
}
