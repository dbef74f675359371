// Package engine wires the job, pool, and queue packages together into the
// running scheduler: it owns the worker goroutines, the per-worker queues,
// the pool table, the global quiescence counter, and the job execution and
// playback protocols that operate across all of them. It exists as its own
// package, separate from job/pool/queue, the same way xraph-dispatch keeps
// an engine package above its worker/queue packages: those stay simple,
// single-purpose data structures, and only engine is allowed to know about
// all of them at once.
package engine

import (
	"fmt"
	"math/rand/v2"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/havryliv/jobtree/internal/domain"
	apperr "github.com/havryliv/jobtree/internal/error"
	"github.com/havryliv/jobtree/internal/job"
	"github.com/havryliv/jobtree/internal/monitor"
	"github.com/havryliv/jobtree/internal/pool"
	"github.com/havryliv/jobtree/internal/queue"
)

// Config controls a Scheduler's shape. The zero value is valid: every
// field falls back to a sensible default via withDefaults.
type Config struct {
	// ThreadCount is the number of worker goroutines. 0 means
	// runtime.NumCPU().
	ThreadCount int

	// NumPools is how many pools to pre-create at startup, so the first
	// Submit/Playback against any of them never takes the lazy-create
	// path under a hot loop.
	NumPools int

	// StealAttempts bounds how many random peers a worker tries before
	// backing off. 0 means domain.DefaultStealAttempts.
	StealAttempts int

	// IdleBackoff is how long an idle worker sleeps after a full
	// steal-round failure. 0 means domain.DefaultIdleBackoff.
	IdleBackoff time.Duration

	// Logger receives operational and fatal diagnostics. Defaults to
	// zap.NewNop().
	Logger *zap.Logger

	// Monitoring receives a CompletionRecord per finished job tree.
	// Defaults to an in-memory monitor.Default.
	Monitoring domain.Monitoring
}

func (c Config) withDefaults() Config {
	if c.ThreadCount <= 0 {
		c.ThreadCount = runtime.NumCPU()
	}
	if c.NumPools <= 0 {
		c.NumPools = domain.DefaultNumPools
	}
	if c.StealAttempts <= 0 {
		c.StealAttempts = domain.DefaultStealAttempts
	}
	if c.IdleBackoff <= 0 {
		c.IdleBackoff = domain.DefaultIdleBackoff
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	return c
}

// Scheduler owns every worker, queue, and pool in the system, plus the
// global quiescence counter. There is no current-job registry: the running
// job is handed to its body through the Ctx it receives. It is an explicit
// handle rather than a package-level singleton, so embedding code can run
// more than one independently of another.
type Scheduler struct {
	cfg    Config
	logger *zap.Logger
	mon    domain.Monitoring

	poolsMu sync.RWMutex
	pools   map[uint32]*pool.Pool

	queues []*queue.Queue

	linkMu sync.Mutex

	globalCount atomic.Int64
	terminated  atomic.Bool

	mu   sync.Mutex
	cond *sync.Cond

	g      *errgroup.Group
	errMu  sync.Mutex
	allErr error
}

// New constructs a Scheduler, pre-allocates cfg.NumPools pools, and spawns
// cfg.ThreadCount worker goroutines. There is no separate Start: workers
// are running by the time New returns.
func New(cfg Config) *Scheduler {
	cfg = cfg.withDefaults()
	if cfg.Monitoring == nil {
		cfg.Monitoring = monitor.NewDefault()
	}

	s := &Scheduler{
		cfg:    cfg,
		logger: cfg.Logger,
		mon:    cfg.Monitoring,
		pools:  make(map[uint32]*pool.Pool, cfg.NumPools),
		queues: make([]*queue.Queue, cfg.ThreadCount),
		g:      &errgroup.Group{},
	}
	s.cond = sync.NewCond(&s.mu)

	for i := 0; i < cfg.ThreadCount; i++ {
		s.queues[i] = queue.New()
	}
	for i := uint32(0); i < uint32(cfg.NumPools); i++ {
		s.pools[i] = pool.New(i)
	}

	for i := 0; i < cfg.ThreadCount; i++ {
		idx := i
		s.logger.Debug("starting worker", zap.Int("worker", idx))
		s.g.Go(func() error {
			return s.workerLoop(idx)
		})
	}

	return s
}

func (s *Scheduler) randomWorker() int {
	if len(s.queues) == 1 {
		return 0
	}
	return rand.IntN(len(s.queues))
}

func (s *Scheduler) enqueue(ref domain.JobRef, workerIdx int) {
	s.globalCount.Add(1)
	s.queues[workerIdx].Push(ref)
}

// pool returns the pool for id, lazily creating it if it has never been
// touched before.
func (s *Scheduler) pool(id uint32) *pool.Pool {
	s.poolsMu.RLock()
	p, ok := s.pools[id]
	s.poolsMu.RUnlock()
	if ok {
		return p
	}

	s.poolsMu.Lock()
	defer s.poolsMu.Unlock()
	if p, ok := s.pools[id]; ok {
		return p
	}
	p = pool.New(id)
	s.pools[id] = p
	return p
}

// existingPool returns the pool for id only if it has already been
// created; it never creates one.
func (s *Scheduler) existingPool(id uint32) (*pool.Pool, bool) {
	s.poolsMu.RLock()
	defer s.poolsMu.RUnlock()
	p, ok := s.pools[id]
	return p, ok
}

func (s *Scheduler) jobAt(ref domain.JobRef) *job.Job {
	p, ok := s.existingPool(ref.Pool)
	if !ok {
		panic(apperr.New(apperr.ErrUnknownPool, fmt.Sprintf("pool %d", ref.Pool)))
	}
	return p.Slot(ref.Slot)
}

// linkChild appends childRef to parentRef's child list. Called by the
// worker executing parentRef's body (SubmitChild) and also by a worker
// executing one of parentRef's children (Ctx.Playback links the completion
// job under the caller's parent), so the read-then-append is serialized by
// linkMu.
func (s *Scheduler) linkChild(parentRef, childRef domain.JobRef) {
	s.linkMu.Lock()
	defer s.linkMu.Unlock()
	parent := s.jobAt(parentRef)
	if !parent.FirstChild().Valid {
		parent.SetFirstChild(childRef)
		parent.SetLastChild(childRef)
		return
	}
	prevLast := s.jobAt(parent.LastChild())
	prevLast.SetNextSibling(childRef)
	parent.SetLastChild(childRef)
}

// Submit creates a parent-less top-level job in the given pool (pool 0 if
// omitted) and schedules it. Unlike Ctx.SubmitChild, this never makes the
// new job a child of a currently running one, even when called from
// inside a job body.
func (s *Scheduler) Submit(fn domain.Func, poolID ...uint32) domain.JobRef {
	pid := uint32(0)
	if len(poolID) > 0 {
		pid = poolID[0]
	}
	ref := s.pool(pid).Allocate(domain.NoJob, fn)
	s.enqueue(ref, s.randomWorker())
	return ref
}

// SubmitBatch submits every fn in fns as independent parent-less top-level
// jobs in the given pool, in one call. Sugar over repeated Submit calls.
func (s *Scheduler) SubmitBatch(fns []domain.Func, poolID ...uint32) []domain.JobRef {
	refs := make([]domain.JobRef, len(fns))
	for i, fn := range fns {
		refs[i] = s.Submit(fn, poolID...)
	}
	return refs
}

// ResetPool recycles every slot pool id has allocated since its last
// reset. Panics if id has never been touched: resetting a pool that was
// never created is almost certainly a caller bug.
func (s *Scheduler) ResetPool(id uint32) {
	p, ok := s.existingPool(id)
	if !ok {
		panic(apperr.New(apperr.ErrUnknownPool, fmt.Sprintf("pool %d", id)))
	}
	p.Reset()
}

// Playback replays the job graph recorded in playPoolID, as if called from
// outside any job body: the completion job is parent-less, in pool 0.
// Assumes a single-root recording reachable from slot 0's child/successor
// links; a pool with orphan top-level jobs recorded alongside the root
// leaves jobsLeftToPlay unsatisfied and playback never completes.
func (s *Scheduler) Playback(playPoolID uint32, onDone domain.Func) domain.JobRef {
	return s.playback(domain.NoJob, 0, playPoolID, onDone)
}

// Wait blocks until the global job count reaches zero or Terminate is
// called, whichever happens first. The second exit condition resolves the
// documented Wait/Terminate race: without it, a Terminate issued while
// jobs are still in flight would let Wait hang forever.
func (s *Scheduler) Wait() {
	s.mu.Lock()
	for s.globalCount.Load() != 0 && !s.terminated.Load() {
		s.cond.Wait()
	}
	s.mu.Unlock()
}

// Terminate signals every worker to stop after its current job, and wakes
// any goroutine blocked in Wait. It does not drain outstanding queues.
func (s *Scheduler) Terminate() {
	s.terminated.Store(true)
	s.mu.Lock()
	s.cond.Broadcast()
	s.mu.Unlock()
}

// Join blocks until every worker goroutine has returned, which only
// happens after Terminate. It returns the first worker error, if any
// worker's goroutine recovered a panic outside of a job body; Errors
// returns the full aggregate.
func (s *Scheduler) Join() error {
	return s.g.Wait()
}

// Errors returns every worker-goroutine error collected over the
// Scheduler's lifetime, aggregated with multierr, regardless of which one
// Join happened to surface first.
func (s *Scheduler) Errors() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.allErr
}

func (s *Scheduler) appendErr(err error) {
	s.errMu.Lock()
	s.allErr = multierr.Append(s.allErr, err)
	s.errMu.Unlock()
}
