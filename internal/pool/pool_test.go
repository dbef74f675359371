package pool_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/havryliv/jobtree/internal/domain"
	"github.com/havryliv/jobtree/internal/pool"
)

func TestPool_AllocateAssignsSequentialSlots(t *testing.T) {
	p := pool.New(0)
	a := p.Allocate(domain.NoJob, nil)
	b := p.Allocate(domain.NoJob, nil)
	assert.EqualValues(t, 0, a.Slot)
	assert.EqualValues(t, 1, b.Slot)
	assert.EqualValues(t, 2, p.NextIndex())
}

func TestPool_GrowsAcrossSegments(t *testing.T) {
	p := pool.New(0)
	for i := 0; i < domain.SegmentSize+5; i++ {
		ref := p.Allocate(domain.NoJob, nil)
		require.EqualValues(t, i, ref.Slot)
	}
	assert.EqualValues(t, domain.SegmentSize+5, p.NextIndex())
}

func TestPool_ResetRecyclesWithoutTouchingLinks(t *testing.T) {
	p := pool.New(0)
	parent := p.Allocate(domain.NoJob, nil)
	child := p.Allocate(parent, nil)
	p.Slot(parent.Slot).SetFirstChild(child)

	p.Reset()
	assert.EqualValues(t, 0, p.NextIndex())
	assert.True(t, p.Slot(parent.Slot).FirstChild().Valid, "reset must not clear tree links")

	again := p.Allocate(domain.NoJob, nil)
	assert.Equal(t, parent.Slot, again.Slot, "reset slots are reused in FIFO order")
	assert.False(t, p.Slot(again.Slot).FirstChild().Valid, "reallocation clears the stale link")
}

func TestPool_PlaybackLifecycle(t *testing.T) {
	p := pool.New(0)
	completion := domain.JobRef{Pool: 0, Slot: 99, Valid: true}

	require.True(t, p.BeginPlayback(2, completion))
	assert.True(t, p.IsPlayingBack())
	assert.False(t, p.BeginPlayback(2, completion), "playback is not reentrant")

	_, fired := p.DecrementPlayback()
	assert.False(t, fired)
	assert.True(t, p.IsPlayingBack())

	done, fired := p.DecrementPlayback()
	assert.True(t, fired)
	assert.Equal(t, completion, done)
	assert.False(t, p.IsPlayingBack())
}
