package regmap

import (
	"os"
	"sync/atomic"
	"unsafe"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// Window maps a physical register range through /dev/mem. Accesses go
// through sync/atomic so the compiler cannot elide or reorder them.
type Window struct {
	f   *os.File
	mem []byte
}

// OpenWindow maps size bytes of physical address space starting at
// base. The base and size must be page aligned.
func OpenWindow(base uint64, size int) (*Window, error) {
	f, err := os.OpenFile("/dev/mem", os.O_RDWR|os.O_SYNC, 0)
	if err != nil {
		return nil, errors.Wrap(err, "open /dev/mem")
	}
	mem, err := unix.Mmap(int(f.Fd()), int64(base), size,
		unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, errors.Wrapf(err, "map %d bytes at %#x", size, base)
	}
	return &Window{f: f, mem: mem}, nil
}

// Read32 returns the register at the given byte offset.
func (w *Window) Read32(offset uint32) uint32 {
	return atomic.LoadUint32((*uint32)(unsafe.Pointer(&w.mem[offset])))
}

// Write32 stores value into the register at the given byte offset.
func (w *Window) Write32(offset uint32, value uint32) {
	atomic.StoreUint32((*uint32)(unsafe.Pointer(&w.mem[offset])), value)
}

// Close unmaps the window.
func (w *Window) Close() error {
	if w.mem != nil {
		if err := unix.Munmap(w.mem); err != nil {
			return errors.Wrap(err, "unmap register window")
		}
		w.mem = nil
	}
	return w.f.Close()
}
