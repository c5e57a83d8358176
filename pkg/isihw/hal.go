// Package isihw drives the two generations of Atmel image sensor
// capture controllers: the ISI found on the at91sam9g45 series and the
// ISC introduced with the sama5d2. Both share the same buffer, queue
// and interrupt control algorithm; only the register layout and the
// DMA descriptor shape differ, so the difference is confined to the
// Ops interface implemented once per controller.
package isihw

import "time"

// InterruptKind selects which hardware acknowledgment to arm: the
// software reset handshake or the capture disable handshake.
type InterruptKind int

const (
	WaitReset InterruptKind = iota
	WaitDisable
)

// Event is the decoded set of pending interrupt causes, computed from
// the controller's status and mask registers.
type Event struct {
	ResetDone   bool
	DisableDone bool
	FrameDone   bool
}

// Ops is the capability set the streaming engine needs from a capture
// controller. Implementations must not block except in Uninitialize
// and SetClock, which are documented to wait (bounded) on hardware.
type Ops interface {
	// Initialize programs the static bus configuration. Called after
	// the reset handshake completes, before Configure.
	Initialize()

	// Uninitialize drains the in-flight frame, bounded by one frame
	// interval plus margin (timeout is logged, not fatal), and masks
	// the transfer-done interrupt sources.
	Uninitialize()

	// Configure programs geometry and color pipeline for the format.
	Configure(f FrameFormat)

	// StartDMA programs the descriptor at descAddr (and the frame base
	// frameAddr where the controller wants it redundantly) and starts
	// the transfer, optionally arming the transfer-done interrupts.
	StartDMA(descAddr, frameAddr uint32, enableIRQ bool)

	// BuildDescriptor encodes the controller's hardware descriptor
	// into slot, pointing the DMA engine at frameAddr. slot is at
	// least DescriptorSize bytes of coherent memory.
	BuildDescriptor(slot []byte, frameAddr, nextDescAddr uint32)

	// EnableInterrupt arms the reset or disable acknowledgment
	// interrupt and issues the corresponding hardware command.
	EnableInterrupt(kind InterruptKind)

	// Ack masks the reset or disable acknowledgment source after the
	// interrupt handler has consumed it.
	Ack(kind InterruptKind)

	// Pending reads status and mask and decodes the pending causes.
	// On both controllers reading status clears the latched bits, so
	// this must be called exactly once per interrupt.
	Pending() Event

	// SetClock enables or disables the controller's master clock. The
	// ISI's peripheral clock is sequenced by platform power management
	// and this is a no-op there.
	SetClock(enable bool)

	// FormatSupported reports whether the controller can produce the
	// given target pixel format.
	FormatSupported(pixFormat uint32) bool
}

// DescriptorSize is the coherent slot size for one DMA descriptor,
// sized for the larger of the two hardware layouts (the ISC's four
// word view descriptor; the ISI uses three words).
const DescriptorSize = 16

// BusConfig carries the platform's parallel bus parameters, normally
// taken from board description data by the integration layer.
type BusConfig struct {
	HsyncActiveLow  bool
	VsyncActiveLow  bool
	PclkFallingEdge bool
	EmbeddedSync    bool // sync codes embedded in the data stream (BT.656)
	FullMode        bool
	FrameRateDiv    uint32 // capture every (1+div)th frame
}

// minFrameRate bounds how long Uninitialize waits for the in-flight
// frame: slower sensors than this are not supported.
const minFrameRate = 15

// frameInterval is the drain bound for Uninitialize, one frame at the
// minimum rate plus scheduling margin.
const frameInterval = time.Second/minFrameRate + 10*time.Millisecond

// drainPollInterval is how often the drain wait samples the status bit.
const drainPollInterval = time.Millisecond
