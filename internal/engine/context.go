package engine

import (
	"github.com/havryliv/jobtree/internal/domain"
	"github.com/havryliv/jobtree/internal/pool"
)

// jobCtx is the concrete domain.Ctx handed to a Func while it runs. It can
// only be constructed by runJob, which is what makes "submit_child called
// outside a job body" structurally impossible here rather than a runtime
// check: there is simply no way to get hold of a Ctx without being one.
type jobCtx struct {
	sched  *Scheduler
	self   domain.JobRef
	pool   *pool.Pool
	worker int
}

func (c *jobCtx) Self() domain.JobRef { return c.self }
func (c *jobCtx) PoolID() uint32      { return c.self.Pool }
func (c *jobCtx) WorkerIndex() int    { return c.worker }
func (c *jobCtx) IsPlayback() bool    { return c.pool.IsPlayingBack() }

func (c *jobCtx) SubmitChild(fn domain.Func, poolID ...uint32) domain.JobRef {
	pid := c.self.Pool
	if len(poolID) > 0 {
		pid = poolID[0]
	}
	target := c.sched.pool(pid)
	if target.IsPlayingBack() {
		return domain.JobRef{}
	}

	ref := target.Allocate(c.self, fn)
	c.sched.jobAt(c.self).AddUnfinished(1)
	c.sched.linkChild(c.self, ref)
	c.sched.enqueue(ref, c.sched.randomWorker())
	return ref
}

func (c *jobCtx) OnFinishedAdd(fn domain.Func) domain.JobRef {
	if c.pool.IsPlayingBack() {
		return domain.JobRef{}
	}
	ref := c.pool.Allocate(domain.NoJob, fn)
	c.sched.jobAt(c.self).SetOnFinished(ref)
	return ref
}

func (c *jobCtx) Playback(playPoolID uint32, onDone domain.Func) domain.JobRef {
	return c.sched.playback(c.sched.jobAt(c.self).Parent(), c.self.Pool, playPoolID, onDone)
}
