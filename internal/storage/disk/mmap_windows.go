//go:build windows

package disk

import (
	"fmt"
	"os"
	"syscall"
	"unsafe"

	util "github.com/lethanhphong/pagebuffer/internal/utils"
)

// Based on: https://github.com/etcd-io/bbolt/blob/main/bolt_windows.go

func mmap(m *Manager, size int64) error {
	if m.file == nil {
		return util.ErrFileManagerNil
	}
	if size <= 0 {
		return util.ErrInvalidInitialPages
	}
	if size > util.MaxMapSize {
		return util.ErrMaxMapSizeExceeded
	}

	if err := m.file.Truncate(size); err != nil {
		return fmt.Errorf("truncate to %d: %w", size, err)
	}

	sizehi := uint32(size >> 32)
	sizelo := uint32(size)
	h, err := syscall.CreateFileMapping(syscall.Handle(m.file.Fd()), nil, syscall.PAGE_READWRITE, sizehi, sizelo, nil)
	if err != nil {
		return fmt.Errorf("create mapping: %w", err)
	}
	ptr, err := syscall.MapViewOfFile(h, syscall.FILE_MAP_WRITE, 0, 0, uintptr(size))
	if err != nil {
		if e := syscall.CloseHandle(h); e != nil {
			return os.NewSyscallError("CloseHandle", e)
		}
		return fmt.Errorf("map view: %w", err)
	}
	if err := syscall.CloseHandle(h); err != nil {
		return os.NewSyscallError("CloseHandle", err)
	}

	m.data = (*[util.MaxMapSize]byte)(unsafe.Pointer(ptr))[:size:size]
	m.size = size
	return nil
}

func munmap(m *Manager) error {
	if m.file == nil {
		return util.ErrFileManagerNil
	}
	if m.data == nil {
		return nil
	}

	addr := uintptr(unsafe.Pointer(&m.data[0]))
	var err error
	if e := syscall.UnmapViewOfFile(addr); e != nil {
		err = fmt.Errorf("unmap: %w", e)
	}

	m.data = nil
	m.size = 0
	return err
}
