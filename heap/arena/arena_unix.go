//go:build unix

package arena

import (
	"errors"

	"golang.org/x/sys/unix"
)

// NewMapped returns an arena backed by an anonymous private mapping.
// The mapping is released by Close.
func NewMapped(size int) (*Arena, error) {
	if size <= 0 {
		return New(0), nil
	}
	data, err := unix.Mmap(
		-1,
		0,
		size,
		unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_PRIVATE|unix.MAP_ANON,
	)
	if err != nil {
		return nil, err
	}
	return &Arena{
		data: data,
		unmap: func() error {
			err := unix.Munmap(data)
			if errors.Is(err, unix.EINVAL) {
				// Treat double-unmap as no-op for callers.
				return nil
			}
			return err
		},
	}, nil
}
