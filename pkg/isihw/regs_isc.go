package isihw

// SAMA5D2 Image Sensor Controller register map, limited to the blocks
// the capture pipeline programs (control, clocks, interrupts, the CFA/
// gamma/rounding stages and the DMA configuration block).

// register offsets
const (
	ISCCtrlEn  = 0x0000 // ISC_CTRLEN: capture/update enable commands
	ISCCtrlDis = 0x0004 // ISC_CTRLDIS: capture disable, software reset
	ISCCtrlSr  = 0x0008 // ISC_CTRLSR: capture status
	ISCPfeCfg0 = 0x000c // ISC_PFE_CFG0: parallel front end configuration
	ISCClkEn   = 0x0018 // ISC_CLKEN: clock enable
	ISCClkDis  = 0x001c // ISC_CLKDIS: clock disable
	ISCClkSr   = 0x0020 // ISC_CLKSR: clock status
	ISCClkCfg  = 0x0024 // ISC_CLKCFG: clock divider/source selection
	ISCIntEn   = 0x0028 // ISC_INTEN: interrupt enable (write only)
	ISCIntDis  = 0x002c // ISC_INTDIS: interrupt disable (write only)
	ISCIntMask = 0x0030 // ISC_INTMASK: interrupt mask (read only)
	ISCIntSr   = 0x0034 // ISC_INTSR: interrupt status (clear on read)
	ISCCfaCtrl = 0x0070 // ISC_CFA_CTRL: color filter array interpolation
	ISCCfaCfg  = 0x0074 // ISC_CFA_CFG: Bayer pattern configuration
	ISCGamCtrl = 0x0078 // ISC_GAM_CTRL: gamma correction
	ISCRlpCfg  = 0x03d0 // ISC_RLP_CFG: rounding/limiting/packing mode
	ISCDCfg    = 0x03e0 // ISC_DCFG: DMA configuration
	ISCDCtrl   = 0x03e4 // ISC_DCTRL: DMA control
	ISCDnda    = 0x03e8 // ISC_DNDA: DMA next descriptor address
	ISCDad0    = 0x03ec // ISC_DAD0: DMA address, channel 0
	ISCDst0    = 0x03f0 // ISC_DST0: DMA stride, channel 0
)

// ISC_CTRLEN / ISC_CTRLDIS / ISC_CTRLSR bits
const (
	ISCCtrlCapture = 1 << 0 // CAPTURE in all three registers
	ISCCtrlSwrst   = 1 << 8 // SWRST, ISC_CTRLDIS only
)

// ISC_INT* bits
const (
	ISCIntVd              = 1 << 0 // vertical sync detected
	ISCIntSwrstComplete   = 1 << 4 // software reset completed
	ISCIntDisableComplete = 1 << 5 // capture disable completed
	ISCIntDmaDone         = 1 << 8 // DMA transfer done
)

// ISC_PFE_CFG0 bits
const (
	ISCPfeHsyncActiveLow   = 1 << 2
	ISCPfeVsyncActiveLow   = 1 << 3
	ISCPfePixClkFalling    = 1 << 4
	ISCPfeModeProgressive  = 0 << 0
	ISCPfeContVideo        = 1 << 7
	ISCPfeBps8Bit          = 0 << 28
)

// ISC_CLK* bits and ISC_CLKCFG fields
const (
	ISCClkMaster = 1 << 0  // master clock (ISC_MCK output)
	ISCClkIsp    = 1 << 1  // internal pipeline clock
	ISCClkSip    = 1 << 31 // synchronization in progress

	ISCClkCfgMCDivOffset  = 0
	ISCClkCfgMCDivMask    = 0xff << 0
	ISCClkCfgMasterHclock = 1 << 8 // master clock source: hclock
	ISCClkCfgICDivOffset  = 16
	ISCClkCfgICDivMask    = 0xff << 16
	ISCClkCfgIspHclock    = 1 << 24 // pipeline clock source: hclock
)

// CFA, gamma and rounding stage values
const (
	ISCCfaEnable     = 1 << 0
	ISCCfaCfgBGBG    = 0x3    // Bayer pattern starts blue-green
	ISCCfaCfgEdgeInt = 1 << 4 // edge interpolation

	ISCGamEnable        = 1 << 0
	ISCGamEnableAllChan = 0xe // B, G, R channel enables

	ISCRlpModeDat8   = 0x0
	ISCRlpModeRGB565 = 0xb
)

// ISC_DCFG / ISC_DCTRL values
const (
	ISCDCfgIModePacked8  = 0x0
	ISCDCfgIModePacked16 = 0x1

	ISCDCtrlDescEnable  = 1 << 0 // descriptor fetch enable
	ISCDCtrlDviewPacked = 0 << 1 // packed memory layout
	ISCDCtrlDoneIntEn   = 1 << 4 // DMA done interrupt enable
	ISCDCtrlWriteBack   = 1 << 5 // descriptor write back
)
