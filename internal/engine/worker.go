package engine

import (
	"fmt"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"

	"github.com/havryliv/jobtree/internal/domain"
	"github.com/havryliv/jobtree/internal/job"
	"github.com/havryliv/jobtree/internal/pool"
)

// workerLoop is the body of one worker goroutine: pop its own queue, steal
// from random peers on a miss, back off when even stealing comes up empty,
// run whatever it found. It returns once the Scheduler has been
// terminated; a panic escaping the loop itself (as opposed to a job body,
// which is recovered inside runJob) is recovered here and reported through
// Join/Errors instead of taking the whole process down.
func (s *Scheduler) workerLoop(idx int) (err error) {
	defer func() {
		if r := recover(); r != nil {
			wrapped := fmt.Errorf("worker %d panicked: %v", idx, r)
			s.logger.Error("worker goroutine panicked", zap.Int("worker", idx), zap.Any("panic", r))
			s.appendErr(wrapped)
			err = wrapped
		}
	}()

	for !s.terminated.Load() {
		ref, ok := s.queues[idx].Pop()
		if !ok {
			ref, ok = s.steal(idx)
		}
		if !ok {
			time.Sleep(s.cfg.IdleBackoff)
			continue
		}
		s.runJob(ref, idx)
	}
	return nil
}

func (s *Scheduler) steal(idx int) (domain.JobRef, bool) {
	n := len(s.queues)
	if n <= 1 {
		return domain.JobRef{}, false
	}
	for attempt := 0; attempt < s.cfg.StealAttempts; attempt++ {
		victim := idx
		for victim == idx {
			victim = rand.IntN(n)
		}
		if ref, ok := s.queues[victim].Steal(); ok {
			return ref, true
		}
	}
	return domain.JobRef{}, false
}

// runJob executes one job to completion: seed its own slice of the
// completion count at 1, run its body (which may add to that count via
// SubmitChild), replay any recorded children if the pool is mid-playback,
// then release its own slice of the count and, on the last release,
// cascade into the parent/successor/quiescence protocol.
func (s *Scheduler) runJob(ref domain.JobRef, workerIdx int) {
	j := s.jobAt(ref)
	pl := s.pool(ref.Pool)
	recovered := false

	j.SetUnfinished(1)
	j.SetStarted(time.Now().UnixNano())

	if fn := j.Fn(); fn != nil {
		func() {
			defer func() {
				if r := recover(); r != nil {
					recovered = true
					s.logger.Error("job body panicked",
						zap.Any("panic", r),
						zap.Uint32("pool", ref.Pool),
						zap.Uint32("slot", ref.Slot),
					)
				}
			}()
			fn(&jobCtx{sched: s, self: ref, pool: pl, worker: workerIdx})
		}()
	}

	if pl.IsPlayingBack() {
		s.replayChildren(pl, j)
		if onDone, fired := pl.DecrementPlayback(); fired {
			s.logger.Debug("playback finished", zap.Uint32("pool", ref.Pool))
			if onDone.Valid {
				s.enqueue(onDone, s.randomWorker())
			}
		}
	}

	j.SetRecovered(recovered)

	if remaining := j.AddUnfinished(-1); remaining == 0 {
		s.onFinishedCallback(ref, j)
	}
}

// replayChildren walks the child list j recorded during its original
// execution, re-enqueuing each one without re-running the SubmitChild call
// that originally produced it.
func (s *Scheduler) replayChildren(pl *pool.Pool, j *job.Job) {
	child := j.FirstChild()
	for child.Valid {
		cj := s.jobAt(child)
		j.AddUnfinished(1)
		s.enqueue(child, s.randomWorker())
		child = cj.NextSibling()
	}
}

// onFinishedCallback runs once a job's completion count reaches zero:
// decrement the parent (recursing if that was the parent's last
// outstanding child too), enqueue any registered successor, release the
// slot, and decrement the global quiescence count.
func (s *Scheduler) onFinishedCallback(ref domain.JobRef, j *job.Job) {
	if parent := j.Parent(); parent.Valid {
		pj := s.jobAt(parent)
		if pj.AddUnfinished(-1) == 0 {
			s.onFinishedCallback(parent, pj)
		}
	}

	if succ := j.OnFinished(); succ.Valid {
		s.enqueue(succ, s.randomWorker())
	}

	s.mon.RecordCompletion(domain.CompletionRecord{
		Pool:      ref.Pool,
		Slot:      ref.Slot,
		Duration:  time.Duration(time.Now().UnixNano() - j.Started()),
		Recovered: j.Recovered(),
	})

	j.MarkAvailable()

	if s.globalCount.Add(-1) == 0 {
		s.mu.Lock()
		s.cond.Broadcast()
		s.mu.Unlock()
	}
}
