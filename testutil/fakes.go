package testutil

import (
	"errors"
	"sync"

	"github.com/emergingrobotics/go-isi/pkg/dmabuf"
)

// Write records one register write seen by the fake bus.
type Write struct {
	Offset uint32
	Value  uint32
}

// IntcLayout tells the fake bus where the interrupt controller
// registers live so it can model the enable/disable/mask coupling and
// the clear-on-read status behavior both capture controllers share.
type IntcLayout struct {
	Enable      uint32
	Disable     uint32
	Mask        uint32
	Status      uint32
	ClearOnRead bool
}

// FakeBus implements a mock register bus for testing. Plain offsets
// behave as memory; the interrupt controller offsets follow the
// write-one-to-enable, write-one-to-disable convention, and the status
// register latches bits raised by the test until read.
type FakeBus struct {
	mu     sync.Mutex
	regs   map[uint32]uint32
	intc   *IntcLayout
	writes []Write
}

// NewFakeBus creates a fake bus with no interrupt controller model.
func NewFakeBus() *FakeBus {
	return &FakeBus{regs: make(map[uint32]uint32)}
}

// NewFakeBusWithIntc creates a fake bus modelling the given interrupt
// controller layout.
func NewFakeBusWithIntc(layout IntcLayout) *FakeBus {
	return &FakeBus{regs: make(map[uint32]uint32), intc: &layout}
}

// Read32 returns the register value at offset.
func (b *FakeBus) Read32(offset uint32) uint32 {
	b.mu.Lock()
	defer b.mu.Unlock()

	v := b.regs[offset]
	if b.intc != nil && offset == b.intc.Status && b.intc.ClearOnRead {
		b.regs[offset] = 0
	}
	return v
}

// Write32 stores value at offset and records it in the write history.
func (b *FakeBus) Write32(offset, value uint32) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.writes = append(b.writes, Write{Offset: offset, Value: value})

	if b.intc != nil {
		switch offset {
		case b.intc.Enable:
			b.regs[b.intc.Mask] |= value
			return
		case b.intc.Disable:
			b.regs[b.intc.Mask] &^= value
			return
		}
	}
	b.regs[offset] = value
}

// RaiseStatus latches interrupt cause bits into the status register.
func (b *FakeBus) RaiseStatus(bits uint32) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.intc == nil {
		return
	}
	b.regs[b.intc.Status] |= bits
}

// SetReg sets a register value directly, bypassing the intc model.
func (b *FakeBus) SetReg(offset, value uint32) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.regs[offset] = value
}

// Reg returns the current value of a register.
func (b *FakeBus) Reg(offset uint32) uint32 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.regs[offset]
}

// Writes returns a copy of the write history.
func (b *FakeBus) Writes() []Write {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Write, len(b.writes))
	copy(out, b.writes)
	return out
}

// LastWrite returns the most recent value written to offset.
func (b *FakeBus) LastWrite(offset uint32) (uint32, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := len(b.writes) - 1; i >= 0; i-- {
		if b.writes[i].Offset == offset {
			return b.writes[i].Value, true
		}
	}
	return 0, false
}

// ClearWrites resets the write history.
func (b *FakeBus) ClearWrites() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.writes = b.writes[:0]
}

// FakeMapper implements a mock bus-address mapper. Addresses are bump
// allocated from a fake bus address space so every mapping is unique
// and deterministic.
type FakeMapper struct {
	mu       sync.Mutex
	next     uint32
	mapped   map[*byte]uint32
	syncs    int
	failMap  bool
	failColl bool
}

// NewFakeMapper creates a fake mapper.
func NewFakeMapper() *FakeMapper {
	return &FakeMapper{
		next:   0x1000_0000,
		mapped: make(map[*byte]uint32),
	}
}

// MapSingle assigns buf a fake bus address.
func (m *FakeMapper) MapSingle(buf []byte, dir dmabuf.Direction) (uint32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failMap {
		return 0, errors.New("fake map error")
	}
	if len(buf) == 0 {
		return 0, errors.New("empty buffer")
	}
	addr := m.next
	m.next += uint32((len(buf) + 4095) &^ 4095)
	m.mapped[&buf[0]] = addr
	return addr, nil
}

// Unmap releases a mapping created by MapSingle.
func (m *FakeMapper) Unmap(buf []byte, dir dmabuf.Direction) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(buf) == 0 {
		return errors.New("empty buffer")
	}
	if _, ok := m.mapped[&buf[0]]; !ok {
		return errors.New("buffer not mapped")
	}
	delete(m.mapped, &buf[0])
	return nil
}

// SyncForCPU counts cache synchronization requests.
func (m *FakeMapper) SyncForCPU(buf []byte, dir dmabuf.Direction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.syncs++
	return nil
}

// AllocCoherent hands out a plain slice with a fake bus address.
func (m *FakeMapper) AllocCoherent(size int) (*dmabuf.Coherent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failColl {
		return nil, errors.New("fake coherent alloc error")
	}
	if size <= 0 {
		return nil, errors.New("invalid size")
	}
	mem := make([]byte, size)
	addr := m.next
	m.next += uint32((size + 4095) &^ 4095)
	m.mapped[&mem[0]] = addr
	return dmabuf.NewCoherent(mem, addr, func() error {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.mapped, &mem[0])
		return nil
	}), nil
}

// MappedCount returns the number of live mappings.
func (m *FakeMapper) MappedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.mapped)
}

// SyncCount returns how many times SyncForCPU was called.
func (m *FakeMapper) SyncCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.syncs
}

// SetFailOnMap makes MapSingle fail.
func (m *FakeMapper) SetFailOnMap(fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failMap = fail
}

// SetFailOnAllocCoherent makes AllocCoherent fail.
func (m *FakeMapper) SetFailOnAllocCoherent(fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failColl = fail
}
