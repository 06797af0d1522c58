//go:build unix

package experience

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

// allocate maps an anonymous shared region of n float32 values.
func allocate(n int) ([]float32, func() error, error) {
	b, err := unix.Mmap(-1, 0, n*4, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_SHARED)
	if err != nil {
		return nil, nil, err
	}
	mem := unsafe.Slice((*float32)(unsafe.Pointer(unsafe.SliceData(b))), n)
	return mem, func() error { return unix.Munmap(b) }, nil
}
