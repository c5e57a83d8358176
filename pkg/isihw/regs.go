package isihw

// AT91SAM9G45-series Image Sensor Interface register map. Offsets and
// bit positions follow the datasheet; they are a correctness contract
// with the silicon, not a design choice.

// register offsets
const (
	ISICfg1     = 0x0000 // ISI_CFG1: bus timing, sync polarity, frame rate
	ISICfg2     = 0x0004 // ISI_CFG2: image geometry, color space, YCC swap
	ISIPSize    = 0x0008 // ISI_PSIZE: preview path output size
	ISIPDecf    = 0x000c // ISI_PDECF: preview path decimation factor
	ISIY2RSet0  = 0x0010 // ISI_Y2R_SET0: YCbCr to RGB coefficients
	ISIY2RSet1  = 0x0014 // ISI_Y2R_SET1
	ISIR2YSet0  = 0x0018 // ISI_R2Y_SET0: RGB to YCbCr coefficients
	ISIR2YSet1  = 0x001c // ISI_R2Y_SET1
	ISIR2YSet2  = 0x0020 // ISI_R2Y_SET2
	ISICtrl     = 0x0024 // ISI_CR: enable, disable, software reset
	ISIStatus   = 0x0028 // ISI_SR: status, interrupt sources (clear on read)
	ISIIntEn    = 0x002c // ISI_IER: interrupt enable (write only)
	ISIIntDis   = 0x0030 // ISI_IDR: interrupt disable (write only)
	ISIIntMask  = 0x0034 // ISI_IMR: interrupt mask (read only)
	ISIDmaCher  = 0x0038 // ISI_DMA_CHER: DMA channel enable
	ISIDmaChdr  = 0x003c // ISI_DMA_CHDR: DMA channel disable
	ISIDmaChsr  = 0x0040 // ISI_DMA_CHSR: DMA channel status
	ISIDmaPAddr = 0x0044 // ISI_DMA_P_ADDR: preview frame base address
	ISIDmaPCtrl = 0x0048 // ISI_DMA_P_CTRL: preview descriptor control
	ISIDmaPDscr = 0x004c // ISI_DMA_P_DSCR: preview descriptor address
	ISIDmaCAddr = 0x0050 // ISI_DMA_C_ADDR: codec frame base address
	ISIDmaCCtrl = 0x0054 // ISI_DMA_C_CTRL: codec descriptor control
	ISIDmaCDscr = 0x0058 // ISI_DMA_C_DSCR: codec descriptor address
)

// ISI_CR bits. The DIS and SRST command bits reappear at the same
// positions in ISI_SR as the matching completion status bits.
const (
	ISICtrlEn   = 1 << 0 // ISI_CR_ISI_EN
	ISICtrlDis  = 1 << 1 // ISI_CR_ISI_DIS
	ISICtrlSrst = 1 << 2 // ISI_CR_ISI_SRST
	ISICtrlCdc  = 1 << 8 // ISI_CR_ISI_CDC: codec datapath request
)

// ISI_SR bits
const (
	ISISrDisDone  = 1 << 1  // disable completed
	ISISrSrst     = 1 << 2  // software reset completed
	ISISrCdcPnd   = 1 << 8  // codec request pending
	ISISrVsync    = 1 << 10 // vertical sync
	ISISrPxfrDone = 1 << 16 // preview DMA transfer done
	ISISrCxfrDone = 1 << 17 // codec DMA transfer done
	ISISrPOvr     = 1 << 24 // preview FIFO overflow
	ISISrCOvr     = 1 << 25 // codec FIFO overflow
	ISISrCrcErr   = 1 << 26 // embedded sync CRC error
	ISISrFrOvr    = 1 << 27 // frame rate overrun
)

// ISI_CFG1 bits
const (
	ISICfg1HsyncActiveLow  = 1 << 2
	ISICfg1VsyncActiveLow  = 1 << 3
	ISICfg1PixclkFalling   = 1 << 4
	ISICfg1EmbSync         = 1 << 6
	ISICfg1CrcSync         = 1 << 7
	ISICfg1FrateDivMask    = 7 << 8
	ISICfg1Discr           = 1 << 11 // disable codec request after each frame
	ISICfg1FullMode        = 1 << 12
	ISICfg1ThMaskBeats4    = 0 << 13
	ISICfg1ThMaskBeats8    = 1 << 13
	ISICfg1ThMaskBeats16   = 2 << 13
	ISICfg1FrateCaptureAll = 0 << 8
)

// ISI_CFG2 bits
const (
	ISICfg2IMVSizeOffset = 0
	ISICfg2IMVSizeMask   = 0x7ff << 0
	ISICfg2Grayscale     = 1 << 13
	ISICfg2ColSpaceYCbCr = 0 << 15
	ISICfg2ColSpaceRGB   = 1 << 15
	ISICfg2IMHSizeOffset = 16
	ISICfg2IMHSizeMask   = 0x7ff << 16
	ISICfg2YccSwapOffset = 28
	ISICfg2YccSwapMask   = 3 << 28
	ISICfg2YccSwapNone   = 0 << 28
	ISICfg2YccSwapMode1  = 1 << 28
	ISICfg2YccSwapMode2  = 2 << 28
	ISICfg2YccSwapMode3  = 3 << 28
)

// ISI_PSIZE fields and ISI_PDECF values
const (
	ISIPSizeVOffset    = 0
	ISIPSizeVMask      = 0x3ff << 0
	ISIPSizeHOffset    = 16
	ISIPSizeHMask      = 0x3ff << 16
	ISIPDecfNoSampling = 0x10 // DEC_FACTOR=16: no downsampling
)

// DMA channel and descriptor control bits
const (
	ISIDmaChsrPCh = 1 << 0 // preview channel
	ISIDmaChsrCCh = 1 << 1 // codec channel

	ISIDmaCtrlFetch = 1 << 0 // descriptor fetch enable
	ISIDmaCtrlWB    = 1 << 1 // write back operation
	ISIDmaCtrlIEN   = 1 << 2 // transfer done interrupt disable
	ISIDmaCtrlDone  = 1 << 3 // transfer done flag
)
