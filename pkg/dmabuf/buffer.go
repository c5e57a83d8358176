// Package dmabuf allocates the contiguous, cache-enabled frame memory
// shared between the capture DMA engine and its consumers. Buffers are
// reference counted: the queue owner holds one reference and every
// caller mapping holds another; the backing memory is released when
// the last reference drops.
//
// Frame memory is non-coherent on purpose: leaving the CPU cache
// enabled makes consumer reads fast, at the price of an explicit
// Finish before reading device-written data.
package dmabuf

import (
	"golang.org/x/sys/unix"

	"github.com/pkg/errors"
)

// ErrOutOfMemory is returned when the physical allocation or the
// device mapping fails. No partial state is left behind.
var ErrOutOfMemory = errors.New("dmabuf: out of memory")

// Buffer is one frame-sized region of contiguous memory with an
// established device DMA mapping.
type Buffer struct {
	mapper Mapper
	mem    []byte // whole page-aligned mapping
	fd     int    // backing memfd, kept for caller mappings
	size   int    // requested (frame) size
	addr   uint32 // bus address
	dir    Direction

	refs refcount
}

// Alloc acquires a page-aligned contiguous region of at least size
// bytes, maps it for the device and returns a buffer with reference
// count 1.
func Alloc(m Mapper, size int, dir Direction) (*Buffer, error) {
	if size <= 0 {
		return nil, errors.Errorf("dmabuf: invalid buffer size %d", size)
	}

	mem, fd, err := allocShared(size)
	if err != nil {
		return nil, errors.WithMessage(ErrOutOfMemory, err.Error())
	}

	addr, err := m.MapSingle(mem, dir)
	if err != nil {
		// The pages must not outlive a failed mapping.
		unix.Munmap(mem)
		unix.Close(fd)
		return nil, errors.WithMessage(ErrOutOfMemory, err.Error())
	}

	b := &Buffer{
		mapper: m,
		mem:    mem,
		fd:     fd,
		size:   size,
		addr:   addr,
		dir:    dir,
	}
	b.refs.set(1)
	return b, nil
}

// Retain adds a reference. Safe from any context.
func (b *Buffer) Retain() {
	b.refs.inc()
}

// Release drops a reference; the final release unmaps the device
// mapping and frees the memory. Releasing more times than retained is
// a logic fault and panics rather than double-freeing.
func (b *Buffer) Release() {
	n := b.refs.dec()
	switch {
	case n > 0:
		return
	case n < 0:
		panic("dmabuf: buffer released more times than retained")
	}

	b.mapper.Unmap(b.mem, b.dir)
	unix.Munmap(b.mem)
	unix.Close(b.fd)
	b.mem = nil
}

// Bytes returns the CPU view of the frame, sized to the requested
// length. Call Finish first if the device may have written since the
// last sync.
func (b *Buffer) Bytes() []byte {
	return b.mem[:b.size]
}

// Size returns the usable byte size.
func (b *Buffer) Size() int {
	return b.size
}

// Cookie returns the bus address programmed into DMA descriptors.
func (b *Buffer) Cookie() uint32 {
	return b.addr
}

// Direction returns the buffer's transfer direction.
func (b *Buffer) Direction() Direction {
	return b.dir
}

// NumUsers returns the current reference count.
func (b *Buffer) NumUsers() int {
	return b.refs.get()
}

// Prepare readies the buffer for device access. Capture buffers carry
// no CPU-written data the device reads, so there is nothing to write
// back.
func (b *Buffer) Prepare() {}

// Finish makes device-written data visible to the CPU. For a pure
// to-device buffer there is nothing the device could have written and
// this is a no-op; in every direction that permits device writes the
// cache maintenance is mandatory.
func (b *Buffer) Finish() error {
	if b.dir == DirToDevice {
		return nil
	}
	return b.mapper.SyncForCPU(b.mem, b.dir)
}
