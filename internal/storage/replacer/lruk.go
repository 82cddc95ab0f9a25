// Package replacer implements the LRU-K frame replacement policy: a frame
// accessed fewer than K times is evicted on a plain FIFO (oldest-access-
// first) basis; once a frame has K or more recorded accesses, it is evicted
// by largest backward K-distance, i.e. the frame whose K-th most recent
// access happened longest ago.
package replacer

import (
	"log/slog"
	"sync"

	"github.com/lethanhphong/pagebuffer/internal/logging"
	util "github.com/lethanhphong/pagebuffer/internal/utils"
)

// LRUKReplacer tracks which frames are eligible for eviction and selects the
// next victim according to the LRU-K policy. It only tracks frames that have
// been explicitly recorded with RecordAccess; the buffer pool manager is
// responsible for calling SetEvictable(frame, false) while a frame is pinned.
type LRUKReplacer struct {
	mu sync.Mutex

	k                int
	replacerSize     int
	currentTimestamp uint64

	count      map[util.FrameID]int
	timestamps map[util.FrameID][]uint64 // up to k most recent access timestamps, oldest first
	evictable  map[util.FrameID]bool
	history    []util.FrameID // FIFO order of frames with count < k, oldest first

	log *slog.Logger
}

// NewLRUKReplacer builds a replacer for a pool of numFrames frames, using k
// as the LRU-K history depth. k must be >= 1.
func NewLRUKReplacer(numFrames, k int, logger *slog.Logger) *LRUKReplacer {
	if k < 1 {
		k = 1
	}
	return &LRUKReplacer{
		k:            k,
		replacerSize: numFrames,
		count:        make(map[util.FrameID]int),
		timestamps:   make(map[util.FrameID][]uint64),
		evictable:    make(map[util.FrameID]bool),
		log:          logging.WithComponent(logging.Default(logger), "lru_k_replacer"),
	}
}

// RecordAccess notes that frameID was accessed at the current logical time,
// advancing the replacer's clock. A frame's first access marks it evictable
// by default. Once a frame crosses the k-access threshold it moves from
// history (FIFO) tracking to K-distance tracking.
func (r *LRUKReplacer) RecordAccess(frameID util.FrameID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if int(frameID) < 0 || int(frameID) >= r.replacerSize {
		return util.ErrOutBoundOfFrame
	}

	r.count[frameID]++
	c := r.count[frameID]

	if c > r.k {
		ts := r.timestamps[frameID]
		ts = append(ts[1:], r.currentTimestamp)
		r.timestamps[frameID] = ts
		r.currentTimestamp++
		return nil
	}

	if c == 1 {
		r.history = append(r.history, frameID)
		r.evictable[frameID] = true
	}
	r.timestamps[frameID] = append(r.timestamps[frameID], r.currentTimestamp)

	if c == r.k {
		r.removeFromHistory(frameID)
	}

	r.currentTimestamp++
	return nil
}

// SetEvictable marks frameID as a candidate (or not) for Evict. It fails
// fast on an out-of-range frameID, matching RecordAccess. A frameID that is
// in range but has never been recorded is a no-op, matching the buffer pool
// manager calling it speculatively on frames it hasn't necessarily touched.
func (r *LRUKReplacer) SetEvictable(frameID util.FrameID, evictable bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if int(frameID) < 0 || int(frameID) >= r.replacerSize {
		return util.ErrOutBoundOfFrame
	}

	if _, ok := r.count[frameID]; !ok {
		return nil
	}
	r.evictable[frameID] = evictable
	return nil
}

// Evict selects and removes the best eviction candidate: the oldest
// evictable frame with fewer than k accesses if one exists, otherwise the
// evictable frame with the largest backward k-distance. Reports false if no
// frame is evictable.
func (r *LRUKReplacer) Evict() (util.FrameID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, fid := range r.history {
		if r.evictable[fid] {
			r.removeFrame(fid)
			r.log.Debug("evicted from history", "frame_id", int(fid))
			return fid, true
		}
	}

	best := util.InvalidFrameID
	var bestFront uint64
	for fid, c := range r.count {
		if c < r.k || !r.evictable[fid] {
			continue
		}
		front := r.timestamps[fid][0]
		if best == util.InvalidFrameID || front < bestFront {
			best = fid
			bestFront = front
		}
	}
	if best == util.InvalidFrameID {
		return util.InvalidFrameID, false
	}
	r.removeFrame(best)
	r.log.Debug("evicted from cache", "frame_id", int(best))
	return best, true
}

// Remove stops tracking frameID entirely, e.g. when its page is deleted.
// It is a no-op if the frame isn't tracked, and returns an error if the
// frame is tracked but still pinned (not evictable) — removing a pinned
// frame from the replacer is a caller bug.
func (r *LRUKReplacer) Remove(frameID util.FrameID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.count[frameID]; !ok {
		return nil
	}
	if !r.evictable[frameID] {
		return util.ErrFrameNotEvictable
	}
	r.removeFrame(frameID)
	return nil
}

// Size returns the number of currently evictable frames.
func (r *LRUKReplacer) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, ok := range r.evictable {
		if ok {
			n++
		}
	}
	return n
}

func (r *LRUKReplacer) removeFrame(frameID util.FrameID) {
	r.removeFromHistory(frameID)
	delete(r.count, frameID)
	delete(r.timestamps, frameID)
	delete(r.evictable, frameID)
}

func (r *LRUKReplacer) removeFromHistory(frameID util.FrameID) {
	for i, fid := range r.history {
		if fid == frameID {
			r.history = append(r.history[:i], r.history[i+1:]...)
			return
		}
	}
}
