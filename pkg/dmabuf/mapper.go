package dmabuf

import (
	"encoding/binary"
	"os"
	"sync"
	"unsafe"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// Direction is the DMA transfer direction of a buffer.
type Direction int

const (
	DirBidirectional Direction = iota
	DirToDevice
	DirFromDevice
)

// Coherent is one device-visible allocation whose CPU and device views
// need no explicit cache maintenance. The descriptor pool lives in one
// of these.
type Coherent struct {
	Mem  []byte
	Addr uint32

	free func() error
}

// NewCoherent wraps an already device-visible region. free, if not
// nil, runs once on Close.
func NewCoherent(mem []byte, addr uint32, free func() error) *Coherent {
	return &Coherent{Mem: mem, Addr: addr, free: free}
}

// Close releases the allocation.
func (c *Coherent) Close() error {
	if c.free == nil {
		return nil
	}
	f := c.free
	c.free = nil
	return f()
}

// Mapper establishes and tears down device DMA mappings for CPU
// memory. The production implementation is PagemapMapper; tests use a
// fake that hands out addresses from a counter.
type Mapper interface {
	// MapSingle pins buf and returns the bus address the device uses
	// to reach it. buf must be page aligned.
	MapSingle(buf []byte, dir Direction) (uint32, error)

	// Unmap releases the mapping established by MapSingle.
	Unmap(buf []byte, dir Direction) error

	// SyncForCPU makes device-written data in buf visible to CPU
	// reads. Called before the CPU consumes a finished frame.
	SyncForCPU(buf []byte, dir Direction) error

	// AllocCoherent allocates size bytes of coherent, device-visible
	// memory.
	AllocCoherent(size int) (*Coherent, error)
}

// pagemap entry layout: bit 63 = present, bits 0-54 = page frame number.
const (
	pagemapEntrySize = 8
	pagemapPresent   = uint64(1) << 63
	pagemapPfnMask   = (uint64(1) << 55) - 1
)

// PagemapMapper resolves bus addresses by pinning pages with mlock and
// reading their frame numbers from /proc/self/pagemap. It requires the
// platform's DMA view of memory to be the physical address (no IOMMU),
// which holds on the SoCs this module targets.
type PagemapMapper struct {
	mu     sync.Mutex
	f      *os.File
	cohFds map[*byte]int
}

// NewPagemapMapper opens the calling process's pagemap.
func NewPagemapMapper() (*PagemapMapper, error) {
	f, err := os.Open("/proc/self/pagemap")
	if err != nil {
		return nil, errors.Wrap(err, "open pagemap")
	}
	return &PagemapMapper{f: f, cohFds: make(map[*byte]int)}, nil
}

// Close releases the pagemap handle.
func (m *PagemapMapper) Close() error {
	return m.f.Close()
}

func (m *PagemapMapper) physAddr(addr uintptr) (uint64, error) {
	pageSize := uintptr(os.Getpagesize())
	var entry [pagemapEntrySize]byte
	off := int64(addr/pageSize) * pagemapEntrySize
	if _, err := m.f.ReadAt(entry[:], off); err != nil {
		return 0, errors.Wrap(err, "read pagemap entry")
	}
	e := binary.LittleEndian.Uint64(entry[:])
	if e&pagemapPresent == 0 {
		return 0, errors.Errorf("page at %#x not present", addr)
	}
	pfn := e & pagemapPfnMask
	return pfn*uint64(pageSize) + uint64(addr%pageSize), nil
}

// MapSingle pins buf and verifies it is physically contiguous, the
// contract the chained-descriptor DMA engines rely on.
func (m *PagemapMapper) MapSingle(buf []byte, dir Direction) (uint32, error) {
	if err := unix.Mlock(buf); err != nil {
		return 0, errors.Wrap(err, "pin buffer")
	}

	base := uintptr(unsafe.Pointer(&buf[0]))
	pageSize := uintptr(os.Getpagesize())

	m.mu.Lock()
	defer m.mu.Unlock()

	phys, err := m.physAddr(base)
	if err != nil {
		unix.Munlock(buf)
		return 0, err
	}
	for off := pageSize; off < uintptr(len(buf)); off += pageSize {
		p, err := m.physAddr(base + off)
		if err != nil {
			unix.Munlock(buf)
			return 0, err
		}
		if p != phys+uint64(off) {
			unix.Munlock(buf)
			return 0, errors.Errorf("buffer not physically contiguous at offset %#x", off)
		}
	}
	return uint32(phys), nil
}

func (m *PagemapMapper) Unmap(buf []byte, dir Direction) error {
	return unix.Munlock(buf)
}

// SyncForCPU flushes the shared mapping so CPU reads observe what the
// device wrote behind the cache.
func (m *PagemapMapper) SyncForCPU(buf []byte, dir Direction) error {
	if err := unix.Msync(buf, unix.MS_SYNC|unix.MS_INVALIDATE); err != nil {
		return errors.Wrap(err, "sync buffer for cpu")
	}
	return nil
}

// AllocCoherent carves a pinned, contiguous region out of a fresh
// shared mapping. Descriptor slabs are small (a page covers the
// maximum pool), so single-page contiguity is all that is needed.
func (m *PagemapMapper) AllocCoherent(size int) (*Coherent, error) {
	mem, fd, err := allocShared(size)
	if err != nil {
		return nil, err
	}
	addr, err := m.MapSingle(mem, DirBidirectional)
	if err != nil {
		unix.Munmap(mem)
		unix.Close(fd)
		return nil, err
	}

	m.mu.Lock()
	m.cohFds[&mem[0]] = fd
	m.mu.Unlock()

	c := &Coherent{Mem: mem, Addr: addr}
	c.free = func() error {
		m.mu.Lock()
		fd := m.cohFds[&mem[0]]
		delete(m.cohFds, &mem[0])
		m.mu.Unlock()

		m.Unmap(mem, DirBidirectional)
		if err := unix.Munmap(mem); err != nil {
			return errors.Wrap(err, "unmap coherent region")
		}
		return unix.Close(fd)
	}
	return c, nil
}

// allocShared creates a page-aligned shared anonymous region backed by
// a memfd, so further mappings of the same pages can be handed out to
// callers without copying.
func allocShared(size int) ([]byte, int, error) {
	pageSize := os.Getpagesize()
	aligned := (size + pageSize - 1) / pageSize * pageSize

	fd, err := unix.MemfdCreate("isi-dma", unix.MFD_CLOEXEC)
	if err != nil {
		return nil, -1, errors.Wrap(err, "create backing memfd")
	}
	if err := unix.Ftruncate(fd, int64(aligned)); err != nil {
		unix.Close(fd)
		return nil, -1, errors.Wrap(err, "size backing memfd")
	}
	mem, err := unix.Mmap(fd, 0, aligned,
		unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		unix.Close(fd)
		return nil, -1, errors.Wrap(err, "map backing memfd")
	}
	return mem, fd, nil
}
