package dmabuf

import (
	"os"

	mmap "github.com/edsrzf/mmap-go"
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// Mapping is a caller-visible view of a buffer's pages: the same
// physical memory mapped a second time, no copy. The mapping holds a
// reference on the buffer until Unmap.
type Mapping struct {
	buf *Buffer
	mm  mmap.MMap
}

// MapToCaller maps the buffer's pages into the calling address space.
// The mapping is fixed size and excluded from core dumps; data written
// by the device becomes visible after Finish.
func (b *Buffer) MapToCaller() (*Mapping, error) {
	// mmap-go wants an *os.File; dup the backing fd so the os.File
	// lifecycle cannot touch the buffer's own descriptor.
	fd, err := unix.Dup(b.fd)
	if err != nil {
		return nil, errors.Wrap(err, "dmabuf: dup backing fd")
	}
	f := os.NewFile(uintptr(fd), "isi-frame")
	defer f.Close() // the mapping survives the descriptor

	mm, err := mmap.MapRegion(f, len(b.mem), mmap.RDWR, 0, 0)
	if err != nil {
		return nil, errors.Wrap(err, "dmabuf: map buffer for caller")
	}

	// Fixed mapping of device memory: keep it out of core dumps.
	if err := unix.Madvise(mm, unix.MADV_DONTDUMP); err != nil {
		mm.Unmap()
		return nil, errors.Wrap(err, "dmabuf: madvise caller mapping")
	}

	b.Retain()
	return &Mapping{buf: b, mm: mm}, nil
}

// Bytes returns the mapped view, sized to the frame.
func (m *Mapping) Bytes() []byte {
	return m.mm[:m.buf.size]
}

// Unmap removes the caller mapping and drops its buffer reference.
func (m *Mapping) Unmap() error {
	if m.mm == nil {
		return nil
	}
	err := m.mm.Unmap()
	m.mm = nil
	m.buf.Release()
	return err
}
