// Package job defines the Job slot stored in each arena segment. A Job is
// pure data plus the handful of atomics needed to make allocation and
// completion-counting lock-free; it has no notion of workers, queues, or
// pools, and never calls back into them. The engine package owns the
// execution protocol that operates on Jobs.
package job

import (
	"sync"
	"sync/atomic"

	"github.com/havryliv/jobtree/internal/domain"
)

// Job is one slot in a Pool's arena. Its tree-links (Parent, FirstChild,
// LastChild, NextSibling, OnFinished) are written when the slot is
// allocated and while a running job adds a child or successor; each read
// and write of a field is guarded by a plain mutex rather than anything
// fancier.
type Job struct {
	mu sync.Mutex

	fn     domain.Func
	poolID uint32
	parent domain.JobRef

	onFinished  domain.JobRef
	firstChild  domain.JobRef
	lastChild   domain.JobRef
	nextSibling domain.JobRef

	available  atomic.Bool
	unfinished atomic.Int32
	startedAt  atomic.Int64
	recovered  atomic.Bool
}

// TryClaim atomically transitions the slot from available to in-use. Only
// one caller among concurrent probers of the same slot will ever see true.
func (j *Job) TryClaim() bool {
	return j.available.CompareAndSwap(true, false)
}

// MarkAvailable returns the slot to the allocator's free pool. Used both
// when a job finishes (its own completion) and by Pool.Reset (bulk
// recycling between frames).
func (j *Job) MarkAvailable() {
	j.available.Store(true)
}

// Reset reinitializes a freshly claimed slot for poolID/parent/fn. Per the
// allocator's reuse contract, this is the only place tree-links are
// cleared: a slot keeps its stale links until it is claimed again.
func (j *Job) Reset(poolID uint32, parent domain.JobRef, fn domain.Func) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.fn = fn
	j.poolID = poolID
	j.parent = parent
	j.onFinished = domain.NoJob
	j.firstChild = domain.NoJob
	j.lastChild = domain.NoJob
	j.nextSibling = domain.NoJob
	j.unfinished.Store(0)
}

func (j *Job) Fn() domain.Func {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.fn
}

func (j *Job) PoolID() uint32 {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.poolID
}

func (j *Job) Parent() domain.JobRef {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.parent
}

func (j *Job) OnFinished() domain.JobRef {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.onFinished
}

func (j *Job) SetOnFinished(ref domain.JobRef) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.onFinished = ref
}

func (j *Job) FirstChild() domain.JobRef {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.firstChild
}

func (j *Job) SetFirstChild(ref domain.JobRef) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.firstChild = ref
}

func (j *Job) LastChild() domain.JobRef {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.lastChild
}

func (j *Job) SetLastChild(ref domain.JobRef) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.lastChild = ref
}

func (j *Job) NextSibling() domain.JobRef {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.nextSibling
}

func (j *Job) SetNextSibling(ref domain.JobRef) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.nextSibling = ref
}

// SetUnfinished sets the completion counter outright. Called once, at the
// start of execution, to seed it at 1 (accounting for the job's own body)
// before any SubmitChild call can add to it.
func (j *Job) SetUnfinished(n int32) {
	j.unfinished.Store(n)
}

// AddUnfinished adjusts the completion counter and returns the new value.
// A child increments its parent by 1 at submission time; any job
// decrements its own counter by 1 once, at the end of its own execution.
func (j *Job) AddUnfinished(delta int32) int32 {
	return j.unfinished.Add(delta)
}

// SetStarted records when this job's body began running, in UnixNano. Read
// back by whichever goroutine later finds the job's (and its descendants')
// completion count reaching zero, to compute the full-subtree duration a
// Monitoring implementation reports against.
func (j *Job) SetStarted(t int64) {
	j.startedAt.Store(t)
}

func (j *Job) Started() int64 {
	return j.startedAt.Load()
}

// SetRecovered records whether this job's own body panicked (and was
// recovered). Read back at subtree-completion time by a Monitoring
// implementation.
func (j *Job) SetRecovered(v bool) {
	j.recovered.Store(v)
}

func (j *Job) Recovered() bool {
	return j.recovered.Load()
}
