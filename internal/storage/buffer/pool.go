// Package buffer implements the buffer pool manager: the component that
// brokers every access to a page between callers and disk, keeping a fixed
// number of pages memory-resident, tracking pin counts, and deciding which
// page to evict (via an LRU-K replacer) when the pool is full.
package buffer

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/lethanhphong/pagebuffer/internal/logging"
	"github.com/lethanhphong/pagebuffer/internal/storage/disk"
	"github.com/lethanhphong/pagebuffer/internal/storage/hash"
	"github.com/lethanhphong/pagebuffer/internal/storage/page"
	"github.com/lethanhphong/pagebuffer/internal/storage/replacer"
	util "github.com/lethanhphong/pagebuffer/internal/utils"
)

// Frame is one slot of the buffer pool: a cached page plus its pin count.
// Dirty state lives on the page's header so it survives being handed out of
// FetchPage/NewPage unchanged.
type Frame struct {
	Page     page.Page
	PinCount int32
}

// BufferPoolManager is the single entry point for reading and writing pages.
// Callers must pin a page (via NewPage/FetchPage) before touching its data
// and Unpin it when done; a pinned page is never evicted.
type BufferPoolManager struct {
	mu sync.Mutex

	frames    []Frame
	freeList  []util.FrameID
	pageTable *hash.Table[util.PageID, util.FrameID]
	replacer  *replacer.LRUKReplacer
	disk      *disk.Manager

	poolSize   int
	instanceID uuid.UUID
	log        *slog.Logger
}

// InstanceID returns the random id generated for this manager at
// construction time, useful for correlating log lines across multiple
// independent pool instances.
func (this *BufferPoolManager) InstanceID() uuid.UUID {
	return this.instanceID
}

func pageIDHash(id util.PageID) uint64 {
	return uint64(id)
}

// NewBufferPoolManager opens (or creates) the backing file named by
// cfg.Path and constructs a pool of cfg.PoolSize frames over it. An invalid
// pool size is a programming error and panics, matching this package's
// historical convention; any other configuration problem is returned as an
// error.
func NewBufferPoolManager(cfg util.Config, logger *slog.Logger) (*BufferPoolManager, error) {
	if cfg.PoolSize <= 0 {
		panic(util.ErrInvalidPoolSize)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", util.ErrInvalidConfig, err)
	}

	dm, err := disk.NewManager(cfg.Path, cfg.InitialPages, cfg.SyncWrites, logger)
	if err != nil {
		return nil, fmt.Errorf("open disk manager: %w", err)
	}

	instanceID := uuid.New()
	bpm := &BufferPoolManager{
		frames:     make([]Frame, cfg.PoolSize),
		freeList:   make([]util.FrameID, cfg.PoolSize),
		pageTable:  hash.New[util.PageID, util.FrameID](cfg.BucketSize, pageIDHash),
		replacer:   replacer.NewLRUKReplacer(cfg.PoolSize, cfg.ReplacerK, logger),
		disk:       dm,
		poolSize:   cfg.PoolSize,
		instanceID: instanceID,
		log:        logging.WithComponent(logging.Default(logger), "buffer_pool_manager").With("instance_id", instanceID.String()),
	}
	for i := range bpm.freeList {
		bpm.freeList[i] = util.FrameID(i)
	}
	for i := range bpm.frames {
		bpm.frames[i].Page.Header.PageID = util.InvalidPageID
	}
	return bpm, nil
}

// PoolSize returns the number of frames this manager holds.
func (this *BufferPoolManager) PoolSize() int {
	return this.poolSize
}

// DiskSize returns the current extent of the backing memory-mapped file.
func (this *BufferPoolManager) DiskSize() int64 {
	return this.disk.Size()
}

// NewPage allocates a fresh page id, pins it in a frame, and returns it.
// The caller must Unpin it when done.
func (this *BufferPoolManager) NewPage() (*page.Page, error) {
	this.mu.Lock()
	defer this.mu.Unlock()

	if len(this.freeList) == 0 && this.replacer.Size() == 0 {
		return nil, util.ErrNoFreeFrame
	}

	frameID, err := this.acquireFrame()
	if err != nil {
		return nil, err
	}

	pageID := this.disk.AllocatePage()
	this.pageTable.Insert(pageID, frameID)

	frame := &this.frames[frameID]
	frame.Page.Reset()
	frame.Page.Header.PageID = pageID
	frame.PinCount = 1

	this.replacer.RecordAccess(frameID)
	this.replacer.SetEvictable(frameID, false)

	this.log.Debug("new page", "page_id", int64(pageID), "frame_id", int(frameID))
	return &frame.Page, nil
}

// FetchPage pins and returns the page for pageID, reading it from disk if
// it isn't already resident. The caller must Unpin it when done.
func (this *BufferPoolManager) FetchPage(pageID util.PageID) (*page.Page, error) {
	this.mu.Lock()
	defer this.mu.Unlock()

	if frameID, ok := this.pageTable.Find(pageID); ok {
		frame := &this.frames[frameID]
		frame.PinCount++
		this.replacer.RecordAccess(frameID)
		this.replacer.SetEvictable(frameID, false)
		return &frame.Page, nil
	}

	if len(this.freeList) == 0 && this.replacer.Size() == 0 {
		return nil, util.ErrNoFreeFrame
	}

	frameID, err := this.acquireFrame()
	if err != nil {
		return nil, err
	}

	p, err := this.disk.ReadPage(pageID)
	if err != nil {
		return nil, fmt.Errorf("read page %d: %w", pageID, err)
	}

	this.pageTable.Insert(pageID, frameID)
	frame := &this.frames[frameID]
	frame.Page = *p
	// A page region that was allocated but never flushed decodes with
	// InvalidPageID (see page.Deserialize); the page table key, not the
	// on-disk header, is the source of truth for which page this frame now
	// holds.
	frame.Page.Header.PageID = pageID
	// The stored Flags may carry the dirty bit of the flush that wrote them;
	// a page just read from disk is clean.
	frame.Page.Header.ClearDirtyFlag()
	frame.PinCount = 1

	this.replacer.RecordAccess(frameID)
	this.replacer.SetEvictable(frameID, false)

	this.log.Debug("fetched page", "page_id", int64(pageID), "frame_id", int(frameID))
	return &frame.Page, nil
}

// UnpinPage decrements pageID's pin count. isDirty, if true, marks the page
// dirty; it can never clear an existing dirty mark, since a concurrent
// unpinner that saw real modifications must not have its dirty flag erased
// by one that didn't. Once the pin count reaches zero the frame becomes a
// candidate for eviction.
func (this *BufferPoolManager) UnpinPage(pageID util.PageID, isDirty bool) error {
	this.mu.Lock()
	defer this.mu.Unlock()

	frameID, ok := this.pageTable.Find(pageID)
	if !ok {
		return util.ErrPageNotFound
	}
	frame := &this.frames[frameID]
	if frame.PinCount <= 0 {
		return util.ErrPageNotPinned
	}

	frame.PinCount--
	if isDirty {
		frame.Page.Header.SetDirtyFlag()
	}
	if frame.PinCount == 0 {
		this.replacer.SetEvictable(frameID, true)
	}
	return nil
}

// FlushPage writes pageID's resident frame to disk unconditionally and
// clears its dirty flag, regardless of pin state.
func (this *BufferPoolManager) FlushPage(pageID util.PageID) error {
	this.mu.Lock()
	defer this.mu.Unlock()

	frameID, ok := this.pageTable.Find(pageID)
	if !ok {
		return util.ErrPageNotFound
	}
	return this.flushFrame(frameID)
}

// FlushAllPages flushes every resident page. Unlike a naive fixed-size scan
// over every frame slot, it skips frames that have never held a page, since
// those carry InvalidPageID and would otherwise be flushed to a bogus
// negative offset.
func (this *BufferPoolManager) FlushAllPages() error {
	this.mu.Lock()
	defer this.mu.Unlock()

	var all error
	for i := range this.frames {
		if this.frames[i].Page.Header.PageID == util.InvalidPageID {
			continue
		}
		if err := this.flushFrame(util.FrameID(i)); err != nil {
			all = errors.Join(all, err)
		}
	}
	return all
}

// DeletePage removes pageID from the pool and frees its frame, refusing to
// do so while the page is pinned. Deleting a page that isn't resident is a
// no-op, matching the idempotent semantics callers expect when cleaning up.
func (this *BufferPoolManager) DeletePage(pageID util.PageID) error {
	this.mu.Lock()
	defer this.mu.Unlock()

	frameID, ok := this.pageTable.Find(pageID)
	if !ok {
		return nil
	}
	frame := &this.frames[frameID]
	if frame.PinCount > 0 {
		return util.ErrPageAlreadyPinned
	}

	this.pageTable.Remove(pageID)
	if err := this.replacer.Remove(frameID); err != nil {
		return err
	}

	frame.Page.Reset()
	frame.PinCount = 0
	this.freeList = append(this.freeList, frameID)
	this.disk.DeallocatePage(pageID)

	this.log.Debug("deleted page", "page_id", int64(pageID), "frame_id", int(frameID))
	return nil
}

// Close flushes every resident page and releases the backing disk manager.
func (this *BufferPoolManager) Close() error {
	if err := this.FlushAllPages(); err != nil {
		return err
	}
	return this.disk.Close()
}

// acquireFrame returns a frame ready to hold a new page: either one from the
// free list, or one reclaimed by evicting the replacer's chosen victim
// (flushing it first if dirty, and removing its old page-table entry).
func (this *BufferPoolManager) acquireFrame() (util.FrameID, error) {
	if n := len(this.freeList); n > 0 {
		frameID := this.freeList[n-1]
		this.freeList = this.freeList[:n-1]
		return frameID, nil
	}

	frameID, ok := this.replacer.Evict()
	if !ok {
		return util.InvalidFrameID, util.ErrNoFreeFrame
	}

	frame := &this.frames[frameID]
	if frame.Page.Header.IsDirty() {
		if err := this.flushFrame(frameID); err != nil {
			return util.InvalidFrameID, fmt.Errorf("flush evicted frame: %w", err)
		}
	}
	this.pageTable.Remove(frame.Page.Header.PageID)
	return frameID, nil
}

func (this *BufferPoolManager) flushFrame(frameID util.FrameID) error {
	frame := &this.frames[frameID]
	if err := this.disk.WritePage(&frame.Page); err != nil {
		return fmt.Errorf("write page %d: %w", int64(frame.Page.Header.PageID), err)
	}
	frame.Page.Header.ClearDirtyFlag()
	return nil
}
