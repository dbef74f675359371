package engine

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/havryliv/jobtree/internal/domain"
	apperr "github.com/havryliv/jobtree/internal/error"
)

// playback is the shared implementation behind Scheduler.Playback and
// Ctx.Playback. callerParent/callerPoolID describe the job the caller was
// running when it asked for playback (zero value / pool 0 for the
// outside-a-job-body case); the completion job inherits both, so it ends
// up a sibling of the caller rather than a child of it.
func (s *Scheduler) playback(callerParent domain.JobRef, callerPoolID, playPoolID uint32, onDone domain.Func) domain.JobRef {
	callerPool := s.pool(callerPoolID)
	completion := callerPool.Allocate(callerParent, onDone)
	if callerParent.Valid {
		s.jobAt(callerParent).AddUnfinished(1)
		s.linkChild(callerParent, completion)
	}

	playPool, ok := s.existingPool(playPoolID)
	if !ok {
		panic(apperr.New(apperr.ErrUnknownPool, fmt.Sprintf("playback target pool %d was never initialized", playPoolID)))
	}

	next := playPool.NextIndex()
	if next == 0 {
		// Nothing was ever recorded into this pool: fire the completion
		// job directly, as if playback had zero jobs to replay.
		s.enqueue(completion, s.randomWorker())
		return completion
	}

	if !playPool.BeginPlayback(int32(next), completion) {
		panic(apperr.New(apperr.ErrReentrantPlayback, fmt.Sprintf("pool %d", playPoolID)))
	}
	s.logger.Debug("playback started", zap.Uint32("pool", playPoolID), zap.Uint64("jobs", next))
	s.enqueue(domain.JobRef{Pool: playPoolID, Slot: 0, Valid: true}, s.randomWorker())
	return completion
}
