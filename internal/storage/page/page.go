// Package page defines the fixed-size on-disk page layout cached by the
// buffer pool: a small metadata header plus an opaque data payload.
package page

import (
	"encoding/binary"

	"github.com/klauspost/crc32"

	util "github.com/lethanhphong/pagebuffer/internal/utils"
)

const (
	// HeaderSize is the size in bytes of the serialized PageHeader:
	// PageID(8) + Checksum(4) + Flags(2) + padding(2).
	HeaderSize = 16

	flagDirty  uint16 = 1 << 0
	flagPinned uint16 = 1 << 1
)

// Page is the unit read from and written to disk, and the unit cached by a
// single buffer pool frame.
type Page struct {
	Header PageHeader
	Data   [util.PageSize - HeaderSize]byte
}

// PageHeader carries the metadata persisted alongside a page's payload.
// The buffer pool manager uses the dirty bit of Flags as a resident page's
// live dirty mark, while the pin count lives in buffer.Frame and the pinned
// bit is not used by the manager. Flags are serialized as they stand at the
// time of the write.
type PageHeader struct {
	PageID   util.PageID // 8 bytes
	Checksum uint32      // 4 bytes
	Flags    uint16      // 2 bytes
	_        uint16      // 2 bytes padding
}

// IsDirty reports whether the dirty flag bit is set.
func (h *PageHeader) IsDirty() bool {
	return h.Flags&flagDirty != 0
}

// SetDirtyFlag sets the dirty flag bit.
func (h *PageHeader) SetDirtyFlag() {
	h.Flags |= flagDirty
}

// ClearDirtyFlag clears the dirty flag bit.
func (h *PageHeader) ClearDirtyFlag() {
	h.Flags &^= flagDirty
}

// IsPinned reports whether the pinned flag bit is set.
func (h *PageHeader) IsPinned() bool {
	return h.Flags&flagPinned != 0
}

// SetPinnedFlag sets the pinned flag bit.
func (h *PageHeader) SetPinnedFlag() {
	h.Flags |= flagPinned
}

// ClearPinnedFlag clears the pinned flag bit.
func (h *PageHeader) ClearPinnedFlag() {
	h.Flags &^= flagPinned
}

// Serialize packs the page into a PageSize-length byte slice suitable for
// writing to disk. The checksum is computed over the data payload only, so
// it stays stable across header fields (pin/dirty) that only matter while
// the page lives in memory.
func (p *Page) Serialize() []byte {
	p.Header.Checksum = crc32.ChecksumIEEE(p.Data[:])

	buf := make([]byte, util.PageSize)
	binary.LittleEndian.PutUint64(buf[0:8], uint64(p.Header.PageID))
	binary.LittleEndian.PutUint32(buf[8:12], p.Header.Checksum)
	binary.LittleEndian.PutUint16(buf[12:14], p.Header.Flags)
	copy(buf[HeaderSize:], p.Data[:])

	return buf
}

// Deserialize unpacks a PageSize-length byte slice into a Page, validating
// the stored checksum against the decoded payload.
//
// A region that was allocated but never written (the common case for a page
// evicted clean, or one read back immediately after AllocatePage) is all
// zero bytes on disk, including a zero Checksum field. crc32.ChecksumIEEE of
// an all-zero payload is not itself zero, so that region would otherwise
// always fail the checksum check below even though nothing is corrupt. That
// case is detected up front and treated as a valid, empty page rather than
// ErrChecksumMismatch.
func Deserialize(data []byte) (*Page, error) {
	if len(data) != util.PageSize {
		return nil, util.ErrInvalidPageSize
	}

	if isAllZero(data) {
		return &Page{Header: PageHeader{PageID: util.InvalidPageID}}, nil
	}

	p := &Page{
		Header: PageHeader{
			PageID:   util.PageID(binary.LittleEndian.Uint64(data[0:8])),
			Checksum: binary.LittleEndian.Uint32(data[8:12]),
			Flags:    binary.LittleEndian.Uint16(data[12:14]),
		},
	}
	copy(p.Data[:], data[HeaderSize:])

	if crc32.ChecksumIEEE(p.Data[:]) != p.Header.Checksum {
		return nil, util.ErrChecksumMismatch
	}

	return p, nil
}

func isAllZero(data []byte) bool {
	for _, b := range data {
		if b != 0 {
			return false
		}
	}
	return true
}

// Reset zeroes the page's metadata and payload in place, for reuse by a
// different PageID in the same frame.
func (p *Page) Reset() {
	p.Header = PageHeader{PageID: util.InvalidPageID}
	for i := range p.Data {
		p.Data[i] = 0
	}
}
