package isihw

import (
	"encoding/binary"
	"log"

	"github.com/emergingrobotics/go-isi/pkg/completion"
	"github.com/emergingrobotics/go-isi/pkg/regmap"
)

// ISI drives the at91sam9g45-series image sensor interface. Frames
// move either through the codec path (straight capture) or, for RGB
// targets, through the preview path which performs the color space
// conversion in hardware.
type ISI struct {
	bus regmap.Bus
	cfg BusConfig

	// previewPath is set by Configure when the target format needs the
	// hardware YUV-to-RGB conversion.
	previewPath bool
}

// NewISI returns an ISI controller on the given register bus.
func NewISI(bus regmap.Bus, cfg BusConfig) *ISI {
	return &ISI{bus: bus, cfg: cfg}
}

func (c *ISI) Initialize() {
	// Mask everything and discard stale status before touching CFG1.
	c.bus.Write32(ISIIntDis, ^uint32(0))
	c.bus.Read32(ISIStatus)

	cfg1 := uint32(ISICfg1ThMaskBeats16 | ISICfg1Discr)
	if c.cfg.HsyncActiveLow {
		cfg1 |= ISICfg1HsyncActiveLow
	}
	if c.cfg.VsyncActiveLow {
		cfg1 |= ISICfg1VsyncActiveLow
	}
	if c.cfg.PclkFallingEdge {
		cfg1 |= ISICfg1PixclkFalling
	}
	if c.cfg.EmbeddedSync {
		cfg1 |= ISICfg1EmbSync
	}
	if c.cfg.FullMode {
		cfg1 |= ISICfg1FullMode
	}
	cfg1 |= (c.cfg.FrameRateDiv << 8) & ISICfg1FrateDivMask

	c.bus.Write32(ISICtrl, ISICtrlDis)
	c.bus.Write32(ISICfg1, cfg1)
}

// yccSwap returns the CFG2 swap mode that makes the sensor's YUV byte
// order match the target format. The codec path performs no conversion
// so YUYV targets need the sensor order rewritten to YUYV; the preview
// path converts from UYVY so RGB targets need the order rewritten to
// UYVY.
func (c *ISI) yccSwap(f FrameFormat) uint32 {
	switch f.PixFormat {
	case PixFmtYUYV:
		switch f.Code {
		case BusFmtVYUY8:
			return ISICfg2YccSwapMode3
		case BusFmtUYVY8:
			return ISICfg2YccSwapMode2
		case BusFmtYVYU8:
			return ISICfg2YccSwapMode1
		}
	case PixFmtRGB565:
		switch f.Code {
		case BusFmtVYUY8:
			return ISICfg2YccSwapMode1
		case BusFmtYUYV8:
			return ISICfg2YccSwapMode2
		case BusFmtYVYU8:
			return ISICfg2YccSwapMode3
		}
	}
	return ISICfg2YccSwapNone
}

func (c *ISI) Configure(f FrameFormat) {
	c.previewPath = f.PixFormat == PixFmtRGB565 || f.PixFormat == PixFmtRGB32

	var cfg2 uint32
	switch f.Code {
	case BusFmtVYUY8, BusFmtUYVY8, BusFmtYVYU8, BusFmtYUYV8:
		cfg2 = ISICfg2ColSpaceYCbCr | c.yccSwap(f)
	default:
		// Greyscale sensors and anything unrecognized.
		cfg2 = ISICfg2Grayscale | ISICfg2ColSpaceYCbCr
	}

	c.bus.Write32(ISICtrl, ISICtrlDis)

	cfg2 |= ((f.Width - 1) << ISICfg2IMHSizeOffset) & ISICfg2IMHSizeMask
	cfg2 |= ((f.Height - 1) << ISICfg2IMVSizeOffset) & ISICfg2IMVSizeMask
	c.bus.Write32(ISICfg2, cfg2)

	// Preview output size equals the sensor size: no downsampling.
	psize := ((f.Width - 1) << ISIPSizeHOffset) & ISIPSizeHMask
	psize |= ((f.Height - 1) << ISIPSizeVOffset) & ISIPSizeVMask
	c.bus.Write32(ISIPSize, psize)
	c.bus.Write32(ISIPDecf, ISIPDecfNoSampling)
}

func (c *ISI) StartDMA(descAddr, frameAddr uint32, enableIRQ bool) {
	if enableIRQ {
		c.bus.Write32(ISIIntEn, ISISrCxfrDone|ISISrPxfrDone)
	}

	if !c.previewPath {
		c.bus.Write32(ISIDmaCDscr, descAddr)
		c.bus.Write32(ISIDmaCCtrl, ISIDmaCtrlFetch|ISIDmaCtrlDone)
		c.bus.Write32(ISIDmaCher, ISIDmaChsrCCh)
	} else {
		c.bus.Write32(ISIDmaPDscr, descAddr)
		c.bus.Write32(ISIDmaPCtrl, ISIDmaCtrlFetch|ISIDmaCtrlDone)
		c.bus.Write32(ISIDmaCher, ISIDmaChsrPCh)
	}

	ctrl := uint32(ISICtrlEn)
	if !c.previewPath {
		ctrl |= ISICtrlCdc
	}
	c.bus.Write32(ISICtrl, ctrl)
}

// BuildDescriptor encodes the legacy three word chained descriptor:
// frame address, DMA control, next descriptor address.
func (c *ISI) BuildDescriptor(slot []byte, frameAddr, nextDescAddr uint32) {
	binary.LittleEndian.PutUint32(slot[0:4], frameAddr)
	binary.LittleEndian.PutUint32(slot[4:8], ISIDmaCtrlWB)
	binary.LittleEndian.PutUint32(slot[8:12], nextDescAddr)
}

func (c *ISI) EnableInterrupt(kind InterruptKind) {
	if kind == WaitReset {
		c.bus.Write32(ISIIntEn, ISICtrlSrst)
		c.bus.Write32(ISICtrl, ISICtrlSrst)
	} else {
		c.bus.Write32(ISIIntEn, ISICtrlDis)
		c.bus.Write32(ISICtrl, ISICtrlDis)
	}
}

func (c *ISI) Ack(kind InterruptKind) {
	if kind == WaitReset {
		c.bus.Write32(ISIIntDis, ISICtrlSrst)
	} else {
		c.bus.Write32(ISIIntDis, ISICtrlDis)
	}
}

func (c *ISI) Pending() Event {
	status := c.bus.Read32(ISIStatus)
	mask := c.bus.Read32(ISIIntMask)
	pending := status & mask

	return Event{
		ResetDone:   pending&ISISrSrst != 0,
		DisableDone: pending&ISISrDisDone != 0,
		FrameDone:   pending&(ISISrCxfrDone|ISISrPxfrDone) != 0,
	}
}

func (c *ISI) Uninitialize() {
	if !c.previewPath {
		// Let the codec request for the current frame finish.
		done := completion.Poll(func() bool {
			return c.bus.Read32(ISIStatus)&ISICtrlCdc == 0
		}, frameInterval, drainPollInterval)
		if !done {
			log.Printf("[isihw] timeout waiting for codec request to finish")
		}
	}
	c.bus.Write32(ISIIntDis, ISISrCxfrDone|ISISrPxfrDone)
}

// SetClock is a no-op: the ISI peripheral clock is sequenced by
// platform power management outside this module.
func (c *ISI) SetClock(enable bool) {}

func (c *ISI) FormatSupported(pixFormat uint32) bool {
	switch pixFormat {
	case PixFmtGrey, PixFmtYUYV, PixFmtUYVY, PixFmtYVYU, PixFmtVYUY,
		PixFmtRGB565:
		return true
	}
	return false
}
