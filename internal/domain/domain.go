// Package domain holds the leaf types shared by every other package in the
// scheduler: the arena reference type, the job function signature, and the
// interfaces a job body uses to talk back to the engine that is running it.
//
// Nothing in this package depends on the engine, the pool, or the queue, so
// it can be imported from anywhere without risk of an import cycle.
package domain

import "time"

// JobRef identifies a Job slot inside a Pool. It is a value type, not a
// pointer: jobs are addressed by (pool, slot) coordinates through the
// owning Pool's segment table, which keeps the allocator free of Go
// pointer/lifetime concerns entirely.
type JobRef struct {
	Pool uint32
	Slot uint32

	// Valid is false for the zero value, so "no parent" / "no successor"
	// is just JobRef{}.
	Valid bool
}

// NoJob is the explicit zero value, spelled out for readability at call
// sites that build up a JobRef field by field.
var NoJob = JobRef{}

// Func is the body of a Job. It receives a Ctx bound to the job currently
// executing on the calling worker, through which it can submit children,
// register a successor, or inspect its own place in the tree.
type Func func(ctx Ctx)

// Ctx is handed to a Func by the worker that is executing it. Its methods
// are only meaningful while the owning Func is still on the stack; holding
// on to a Ctx past that point and calling its methods has undefined
// scheduling effects.
type Ctx interface {
	// Self returns the reference of the job currently executing.
	Self() JobRef

	// PoolID returns the pool the current job was allocated in.
	PoolID() uint32

	// WorkerIndex returns the index of the worker goroutine running the
	// current job. Stable for the lifetime of the call.
	WorkerIndex() int

	// IsPlayback reports whether the current job is running as part of a
	// pool playback rather than its original recording pass.
	IsPlayback() bool

	// SubmitChild creates a child of the currently running job and
	// schedules it for execution. If poolID is given, the child is
	// allocated there instead of the caller's own pool. A no-op, returning
	// the zero JobRef, when the target pool is mid-playback.
	SubmitChild(fn Func, poolID ...uint32) JobRef

	// OnFinishedAdd registers fn as the successor of the currently
	// running job: once the job and every descendant of it have finished,
	// fn is scheduled on its own. A no-op, returning the zero JobRef, when
	// the caller's pool is mid-playback.
	OnFinishedAdd(fn Func) JobRef

	// Playback replays the recorded job graph in playPoolID. The
	// completion job inherits the calling job's parent and pool, so it
	// becomes a sibling of the caller rather than a child of it.
	Playback(playPoolID uint32, onDone Func) JobRef
}

// CompletionRecord describes one job, and everything beneath it in the
// tree, finishing. Passed to Monitoring.RecordCompletion.
type CompletionRecord struct {
	Pool      uint32
	Slot      uint32
	Duration  time.Duration
	Recovered bool
}

// Monitoring receives a CompletionRecord every time a job fully completes.
// Implementations must be safe for concurrent use: workers call
// RecordCompletion from their own goroutines with no external locking.
type Monitoring interface {
	RecordCompletion(rec CompletionRecord)
}

// Defaults mirrored by engine.Config.withDefaults.
const (
	DefaultStealAttempts = 5
	DefaultIdleBackoff   = 100 * time.Microsecond
	DefaultNumPools      = 1
)

// SegmentSize is the fixed number of Job slots per arena segment. It is a
// compile-time constant, not a runtime knob, because segments are backed by
// fixed-size arrays so that slot addresses never move once allocated.
const SegmentSize = 4096
