package capture

import (
	"sync"

	"github.com/emergingrobotics/go-isi/pkg/dmabuf"
	"github.com/emergingrobotics/go-isi/pkg/isihw"
)

// Descriptor is one hardware DMA descriptor slot inside the pool's
// coherent slab. The slot contents are written by the HAL in whichever
// layout the active controller uses.
type Descriptor struct {
	index int
	slot  []byte
	addr  uint32
}

// Slot returns the descriptor's coherent memory.
func (d *Descriptor) Slot() []byte {
	return d.slot
}

// DMAAddr returns the bus address programmed into the controller's
// descriptor pointer register.
func (d *Descriptor) DMAAddr() uint32 {
	return d.addr
}

// Pool hands out DMA descriptors from a single coherent allocation.
// Its size bounds the number of in-flight buffers. Acquire and Release
// must be balanced per descriptor: releasing a descriptor twice
// corrupts the free list, so attachment state is tracked per frame
// buffer, not here.
type Pool struct {
	mu   sync.Mutex
	coh  *dmabuf.Coherent
	desc []Descriptor
	free []int // index stack, LIFO
}

// NewPool allocates a coherent slab for count descriptors and seeds
// the free list.
func NewPool(m dmabuf.Mapper, count int) (*Pool, error) {
	if count <= 0 {
		return nil, NewError(StatusInvalidArgument, "descriptor pool size")
	}

	coh, err := m.AllocCoherent(count * isihw.DescriptorSize)
	if err != nil {
		return nil, NewErrorWithCause(StatusOutOfMemory, "descriptor pool", err)
	}

	p := &Pool{
		coh:  coh,
		desc: make([]Descriptor, count),
		free: make([]int, 0, count),
	}
	for i := 0; i < count; i++ {
		off := i * isihw.DescriptorSize
		p.desc[i] = Descriptor{
			index: i,
			slot:  coh.Mem[off : off+isihw.DescriptorSize],
			addr:  coh.Addr + uint32(off),
		}
		p.free = append(p.free, i)
	}
	return p, nil
}

// Acquire pops a descriptor from the free list. The failure is
// transient: the caller may retry after buffers are cleaned up.
func (p *Pool) Acquire() (*Descriptor, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.free) == 0 {
		return nil, NewError(StatusDescriptorsExhausted, "acquire descriptor")
	}
	i := p.free[len(p.free)-1]
	p.free = p.free[:len(p.free)-1]
	return &p.desc[i], nil
}

// Release returns a descriptor to the free list.
func (p *Pool) Release(d *Descriptor) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.free = append(p.free, d.index)
}

// Available returns the number of free descriptors.
func (p *Pool) Available() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.free)
}

// Close frees the coherent slab.
func (p *Pool) Close() error {
	return p.coh.Close()
}
