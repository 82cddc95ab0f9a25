//go:build !windows

package disk

import (
	"fmt"

	"golang.org/x/sys/unix"

	util "github.com/lethanhphong/pagebuffer/internal/utils"
)

// Based on: https://github.com/etcd-io/bbolt/blob/main/bolt_unix.go

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

	b, err := unix.Mmap(int(m.file.Fd()), 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return fmt.Errorf("mmap: %w", err)
	}

	m.data = b
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

	err := unix.Munmap(m.data)
	m.data = nil
	m.size = 0
	if err != nil {
		return fmt.Errorf("munmap: %w", err)
	}
	return nil
}
