// Package disk implements the DiskManager: the only component in this core
// that touches the backing file. It memory-maps the file and grows the
// mapping geometrically as pages are written past its current extent,
// following the same approach the buffer package's predecessor used for its
// FileManager.
package disk

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/klauspost/crc32"

	"github.com/lethanhphong/pagebuffer/internal/logging"
	"github.com/lethanhphong/pagebuffer/internal/storage/page"
	util "github.com/lethanhphong/pagebuffer/internal/utils"

	"log/slog"
)

// Manager reads and writes fixed-size pages against a single backing file,
// kept memory-mapped for the lifetime of the Manager. It is the only
// component in this core allowed to perform actual disk I/O.
type Manager struct {
	mu   sync.Mutex
	file *os.File
	data []byte
	size int64

	nextPageID util.PageID
	syncWrites bool
	log        *slog.Logger
}

// NewManager opens (creating if absent) the file at path, maps it to memory,
// and pre-sizes it to hold at least initialPages pages. If syncWrites is
// true, every WritePage fsyncs the file before returning, trading write
// throughput for a guarantee that a flushed page survives a crash.
func NewManager(path string, initialPages int, syncWrites bool, logger *slog.Logger) (*Manager, error) {
	if initialPages <= 0 {
		return nil, util.ErrInvalidInitialPages
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o666)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}

	m := &Manager{
		file:       f,
		syncWrites: syncWrites,
		log:        logging.WithComponent(logging.Default(logger), "disk_manager"),
	}

	initialSize := int64(initialPages) * int64(util.PageSize)
	if fi, err := f.Stat(); err == nil && fi.Size() > initialSize {
		initialSize = fi.Size()
	}
	if err := mmap(m, initialSize); err != nil {
		f.Close()
		return nil, fmt.Errorf("map file: %w", err)
	}

	return m, nil
}

// ReadPage reads and deserializes the page stored at pageID's offset.
func (m *Manager) ReadPage(pageID util.PageID) (*page.Page, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	offset := int64(pageID) * int64(util.PageSize)
	if offset < 0 || offset+int64(util.PageSize) > m.size {
		return nil, util.ErrPageOutOfBounds
	}

	p, err := page.Deserialize(m.data[offset : offset+int64(util.PageSize)])
	if err != nil {
		return nil, fmt.Errorf("deserialize page %d: %w", pageID, err)
	}
	return p, nil
}

// WritePage serializes p and writes it to its page-id-determined offset,
// growing the mapping first if the offset falls past the current extent.
func (m *Manager) WritePage(p *page.Page) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	offset := int64(p.Header.PageID) * int64(util.PageSize)
	if offset+int64(util.PageSize) > m.size {
		newSize := max(m.size*2, offset+int64(util.PageSize))
		if newSize > util.MaxMapSize {
			return util.ErrMaxMapSizeExceeded
		}

		m.log.Debug("growing mapping", "old_size", m.size, "new_size", newSize)
		if err := munmap(m); err != nil {
			return fmt.Errorf("unmap: %w", err)
		}
		if err := mmap(m, newSize); err != nil {
			return fmt.Errorf("map: %w", err)
		}
	}

	copy(m.data[offset:], p.Serialize())

	if m.syncWrites {
		if err := m.file.Sync(); err != nil {
			return fmt.Errorf("sync: %w", err)
		}
	}
	return nil
}

// Size returns the current extent of the memory-mapped file in bytes.
func (m *Manager) Size() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.size
}

// AllocatePage hands out the next page id from a monotonic counter private
// to this Manager. Page ids are never reused within a Manager's lifetime.
func (m *Manager) AllocatePage() util.PageID {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextPageID
	m.nextPageID++
	return id
}

// DeallocatePage is a hook for a future free-space map. This core never
// reclaims page ids or disk space; it exists so callers have a single place
// to record deallocation intent without depending on that being implemented.
func (m *Manager) DeallocatePage(pageID util.PageID) {
	m.log.Debug("deallocate (no-op)", "page_id", int64(pageID))
}

// Checksum exposes the DiskManager's checksum algorithm so callers (notably
// tests) can validate pages independently of Serialize/Deserialize.
func Checksum(data []byte) uint32 {
	return crc32.ChecksumIEEE(data)
}

// Close unmaps the file and syncs and closes the underlying descriptor.
func (m *Manager) Close() error {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var err error
	if m.data != nil {
		if e := munmap(m); e != nil {
			err = errors.Join(err, fmt.Errorf("unmap: %w", e))
		}
	}
	if m.file != nil {
		if e := m.file.Sync(); e != nil {
			err = errors.Join(err, fmt.Errorf("sync: %w", e))
		}
		if e := m.file.Close(); e != nil {
			err = errors.Join(err, fmt.Errorf("close: %w", e))
		}
		m.file = nil
	}
	return err
}
