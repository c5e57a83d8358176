package isihw

import (
	"encoding/binary"
	"log"
	"time"

	"github.com/emergingrobotics/go-isi/pkg/completion"
	"github.com/emergingrobotics/go-isi/pkg/regmap"
)

// ISC drives the sama5d2 image sensor controller. Unlike the ISI it
// has a single DMA channel fed by view descriptors, an internal color
// pipeline (CFA interpolation, gamma, rounding) and its own clock
// tree.
type ISC struct {
	bus regmap.Bus
	cfg BusConfig
}

// NewISC returns an ISC controller on the given register bus.
func NewISC(bus regmap.Bus, cfg BusConfig) *ISC {
	return &ISC{bus: bus, cfg: cfg}
}

func (c *ISC) Initialize() {
	pfe := uint32(ISCPfeModeProgressive | ISCPfeContVideo | ISCPfeBps8Bit)
	if c.cfg.HsyncActiveLow {
		pfe |= ISCPfeHsyncActiveLow
	}
	if c.cfg.VsyncActiveLow {
		pfe |= ISCPfeVsyncActiveLow
	}
	if c.cfg.PclkFallingEdge {
		pfe |= ISCPfePixClkFalling
	}
	c.bus.Write32(ISCPfeCfg0, pfe)
}

// Configure programs the color pipeline. Geometry comes from the
// sensor's timing on the ISC, so only the processing stages are set
// here: YUV and grey sensors pass through packed, a Bayer sensor is
// demosaiced to RGB565 when that is the target.
func (c *ISC) Configure(f FrameFormat) {
	switch f.Code {
	case BusFmtSBGGR8:
		if f.PixFormat == PixFmtRGB565 {
			c.bus.Write32(ISCCfaCtrl, ISCCfaEnable)
			c.bus.Write32(ISCCfaCfg, ISCCfaCfgBGBG|ISCCfaCfgEdgeInt)
			c.bus.Write32(ISCGamCtrl, ISCGamEnable|ISCGamEnableAllChan)
			c.bus.Write32(ISCRlpCfg, ISCRlpModeRGB565)
			c.bus.Write32(ISCDCfg, ISCDCfgIModePacked16)
			return
		}
		// Raw Bayer out.
		fallthrough
	default:
		c.bus.Write32(ISCCfaCtrl, 0)
		c.bus.Write32(ISCGamCtrl, 0)
		c.bus.Write32(ISCRlpCfg, ISCRlpModeDat8)
		c.bus.Write32(ISCDCfg, ISCDCfgIModePacked8)
	}
}

func (c *ISC) StartDMA(descAddr, frameAddr uint32, enableIRQ bool) {
	if enableIRQ {
		c.bus.Write32(ISCIntEn, ISCIntDmaDone)
	}

	c.bus.Write32(ISCDnda, descAddr)
	c.bus.Write32(ISCDCtrl, ISCDCtrlDescEnable|ISCDCtrlDviewPacked|
		ISCDCtrlDoneIntEn|ISCDCtrlWriteBack)
	c.bus.Write32(ISCDad0, frameAddr)

	c.bus.Write32(ISCCtrlEn, ISCCtrlCapture)
}

// BuildDescriptor encodes the four word view descriptor: control, next
// descriptor address, frame address, stride.
func (c *ISC) BuildDescriptor(slot []byte, frameAddr, nextDescAddr uint32) {
	binary.LittleEndian.PutUint32(slot[0:4], ISCDCtrlDescEnable|ISCDCtrlDviewPacked)
	binary.LittleEndian.PutUint32(slot[4:8], nextDescAddr)
	binary.LittleEndian.PutUint32(slot[8:12], frameAddr)
	binary.LittleEndian.PutUint32(slot[12:16], 0)
}

func (c *ISC) EnableInterrupt(kind InterruptKind) {
	if kind == WaitReset {
		c.bus.Write32(ISCIntEn, ISCIntSwrstComplete)
		c.bus.Write32(ISCCtrlDis, ISCCtrlSwrst)
	} else {
		c.bus.Write32(ISCIntEn, ISCIntDisableComplete)
		c.bus.Write32(ISCCtrlDis, ISCCtrlCapture)
	}
}

func (c *ISC) Ack(kind InterruptKind) {
	if kind == WaitReset {
		c.bus.Write32(ISCIntDis, ISCIntSwrstComplete)
	} else {
		c.bus.Write32(ISCIntDis, ISCIntDisableComplete)
	}
}

func (c *ISC) Pending() Event {
	status := c.bus.Read32(ISCIntSr)
	mask := c.bus.Read32(ISCIntMask)
	pending := status & mask

	return Event{
		ResetDone:   pending&ISCIntSwrstComplete != 0,
		DisableDone: pending&ISCIntDisableComplete != 0,
		FrameDone:   pending&ISCIntDmaDone != 0,
	}
}

func (c *ISC) Uninitialize() {
	done := completion.Poll(func() bool {
		return c.bus.Read32(ISCCtrlSr)&ISCCtrlCapture == 0
	}, frameInterval, drainPollInterval)
	if !done {
		log.Printf("[isihw] timeout waiting for capture to finish")
	}
	c.bus.Write32(ISCIntDis, ISCIntDmaDone)
}

// clockSyncTimeout bounds the CLKCFG synchronization busy bit.
const clockSyncTimeout = 10 * time.Millisecond

func (c *ISC) waitClockSync() {
	ok := completion.Poll(func() bool {
		return c.bus.Read32(ISCClkSr)&ISCClkSip == 0
	}, clockSyncTimeout, 10*time.Microsecond)
	if !ok {
		log.Printf("[isihw] clock configuration synchronization stuck")
	}
}

// SetClock brings the ISC master clock and pipeline clock up or down.
// Both run from hclock; the pixel clock is sampled at full frequency
// to support fast sensors.
func (c *ISC) SetClock(enable bool) {
	if !enable {
		c.bus.Write32(ISCClkDis, ISCClkMaster|ISCClkIsp)
		return
	}

	cfg := (uint32(6) << ISCClkCfgMCDivOffset) & ISCClkCfgMCDivMask
	cfg |= ISCClkCfgMasterHclock
	c.bus.Write32(ISCClkCfg, cfg)
	c.waitClockSync()
	c.bus.Write32(ISCClkEn, ISCClkMaster)

	cfg |= (uint32(1) << ISCClkCfgICDivOffset) & ISCClkCfgICDivMask
	cfg |= ISCClkCfgIspHclock
	c.bus.Write32(ISCClkCfg, cfg)
	c.waitClockSync()
	c.bus.Write32(ISCClkEn, ISCClkIsp)
}

func (c *ISC) FormatSupported(pixFormat uint32) bool {
	switch pixFormat {
	case PixFmtGrey, PixFmtYUYV, PixFmtUYVY, PixFmtYVYU, PixFmtVYUY,
		PixFmtRGB565, PixFmtSBGGR8:
		return true
	}
	return false
}
