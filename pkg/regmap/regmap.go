// Package regmap provides 32-bit register access to memory-mapped
// peripheral blocks. The capture HAL is written against the Bus
// interface so the same code drives real silicon through a /dev/mem
// window or a simulated register file in tests.
package regmap

// Bus is a window onto a peripheral's register block. Offsets are in
// bytes relative to the block's base address and must be word aligned.
type Bus interface {
	Read32(offset uint32) uint32
	Write32(offset uint32, value uint32)
}
