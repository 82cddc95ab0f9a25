package util

import "errors"

var (
	ErrInvalidPageSize     = errors.New("invalid page size")
	ErrChecksumMismatch    = errors.New("checksum mismatch")
	ErrInvalidInitialPages = errors.New("initial pages must be positive")
	ErrMaxMapSizeExceeded  = errors.New("size exceeds maximum mapping size")
	ErrPageAlreadyPinned   = errors.New("page is already pinned")
	ErrPageNotPinned       = errors.New("page is not pinned")
	ErrPageOutOfBounds     = errors.New("page out of bounds")
	ErrFileManagerNil      = errors.New("file manager is nil")
	ErrInvalidPoolSize     = errors.New("invalid pool size")
	ErrOutBoundOfFrame     = errors.New("frame idx out of bound")
	ErrNoFreeFrame         = errors.New("no free frames")

	// ErrPageNotFound is returned when a PageId has no resident frame and the
	// caller required one to exist.
	ErrPageNotFound = errors.New("page not found in buffer pool")
	// ErrFrameNotEvictable is the programming-error kind raised by Remove on
	// a tracked-but-pinned frame; it is a contract violation by the caller
	// and is not meant to be recovered from.
	ErrFrameNotEvictable = errors.New("frame is tracked but not evictable")
	// ErrInvalidConfig is returned by NewBufferPoolManager when the supplied
	// Config fails validation.
	ErrInvalidConfig = errors.New("invalid buffer pool configuration")
)
