// Package pool implements the Job arena: a segmented, append-only table of
// job.Job slots, bump-allocated and FIFO-recycled, plus the per-pool
// playback bookkeeping (is_playing_back / jobs_left_to_play /
// on_playback_finished) that the engine's playback path drives.
package pool

import (
	"math"
	"sync"
	"sync/atomic"

	"github.com/havryliv/jobtree/internal/domain"
	apperr "github.com/havryliv/jobtree/internal/error"
	"github.com/havryliv/jobtree/internal/job"
)

type segment [domain.SegmentSize]job.Job

// Pool is one arena: a growable list of fixed-size segments. Segment
// pointers, once published, never move or get freed, so a Slot() result
// stays valid for the lifetime of the Pool.
type Pool struct {
	id uint32

	segments atomic.Pointer[[]*segment]
	segMu    sync.Mutex

	nextIndex atomic.Uint64

	playingBack    atomic.Bool
	jobsLeftToPlay atomic.Int32

	playbackMu sync.Mutex
	onDone     domain.JobRef
}

func New(id uint32) *Pool {
	p := &Pool{id: id}
	empty := []*segment{}
	p.segments.Store(&empty)
	return p
}

func (p *Pool) ID() uint32 { return p.id }

// Slot dereferences a global slot index to its Job. Grows the segment
// table if the index has never been touched before, so it is also how new
// segments come into existence during allocation.
func (p *Pool) Slot(i uint32) *job.Job {
	return p.slot(uint64(i))
}

func (p *Pool) slot(i uint64) *job.Job {
	segIdx := i / domain.SegmentSize
	slotIdx := i % domain.SegmentSize
	segs := p.ensureSegment(segIdx)
	return &(*segs)[segIdx][slotIdx]
}

func (p *Pool) ensureSegment(segIdx uint64) *[]*segment {
	segs := p.segments.Load()
	if uint64(len(*segs)) > segIdx {
		return segs
	}

	p.segMu.Lock()
	defer p.segMu.Unlock()

	segs = p.segments.Load()
	if uint64(len(*segs)) > segIdx {
		return segs
	}

	grown := append([]*segment{}, (*segs)...)
	for uint64(len(grown)) <= segIdx {
		seg := &segment{}
		for i := range seg {
			seg[i].MarkAvailable()
		}
		grown = append(grown, seg)
	}
	p.segments.Store(&grown)
	return &grown
}

// Allocate bump-allocates a slot for a job with the given parent and body,
// probing forward from the reserved index until it finds (and wins the CAS
// on) a slot already marked available — fresh slots start out available,
// recycled ones become available again on Reset. The probe, not the
// initial reservation, is what actually decides which slot a caller gets;
// this is what gives reuse its FIFO character.
func (p *Pool) Allocate(parent domain.JobRef, fn domain.Func) domain.JobRef {
	start := p.nextIndex.Add(1) - 1
	if start > math.MaxUint32 {
		panic(apperr.New(apperr.ErrSegmentAllocFailed, "pool exhausted its uint32 slot index space"))
	}
	for i := start; ; i++ {
		if i > math.MaxUint32 {
			panic(apperr.New(apperr.ErrSegmentAllocFailed, "pool exhausted its uint32 slot index space"))
		}
		j := p.slot(i)
		if j.TryClaim() {
			j.Reset(p.id, parent, fn)
			return domain.JobRef{Pool: p.id, Slot: uint32(i), Valid: true}
		}
	}
}

// NextIndex reports how many slots have been reserved since the last
// Reset, i.e. how many jobs were recorded. Zero means there is nothing to
// replay.
func (p *Pool) NextIndex() uint64 {
	return p.nextIndex.Load()
}

// Reset recycles every slot reserved so far and rewinds the allocation
// cursor, without touching any job's tree-links — those are overwritten
// only when a slot is claimed again by a future Allocate.
func (p *Pool) Reset() {
	n := p.nextIndex.Swap(0)
	for i := uint64(0); i < n; i++ {
		p.slot(i).MarkAvailable()
	}
}

// IsPlayingBack reports whether the pool is currently replaying a
// previously recorded graph.
func (p *Pool) IsPlayingBack() bool {
	return p.playingBack.Load()
}

// BeginPlayback transitions the pool into playback mode, returning false
// if it was already playing back (a programmer error the caller should
// turn into a panic).
func (p *Pool) BeginPlayback(total int32, onDone domain.JobRef) bool {
	if !p.playingBack.CompareAndSwap(false, true) {
		return false
	}
	p.playbackMu.Lock()
	p.onDone = onDone
	p.playbackMu.Unlock()
	p.jobsLeftToPlay.Store(total)
	return true
}

// DecrementPlayback records that one recorded job finished executing
// during playback. On the last one, it clears playback mode and returns
// the completion job reference to enqueue, with fired=true.
func (p *Pool) DecrementPlayback() (onDone domain.JobRef, fired bool) {
	remaining := p.jobsLeftToPlay.Add(-1)
	if remaining != 0 {
		return domain.JobRef{}, false
	}
	p.playbackMu.Lock()
	ref := p.onDone
	p.onDone = domain.JobRef{}
	p.playbackMu.Unlock()
	p.playingBack.Store(false)
	return ref, true
}
