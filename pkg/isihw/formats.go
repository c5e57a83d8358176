package isihw

import "fmt"

// FourCC packs a V4L2-style four character pixel format code.
func FourCC(a, b, c, d byte) uint32 {
	return uint32(a) | uint32(b)<<8 | uint32(c)<<16 | uint32(d)<<24
}

// Target pixel formats the two controllers can produce.
var (
	PixFmtGrey   = FourCC('G', 'R', 'E', 'Y') // 8-bit greyscale
	PixFmtYUYV   = FourCC('Y', 'U', 'Y', 'V') // packed YUV 4:2:2
	PixFmtUYVY   = FourCC('U', 'Y', 'V', 'Y')
	PixFmtYVYU   = FourCC('Y', 'V', 'Y', 'U')
	PixFmtVYUY   = FourCC('V', 'Y', 'U', 'Y')
	PixFmtRGB565 = FourCC('R', 'G', 'B', 'P') // RGB 5:6:5
	PixFmtRGB32  = FourCC('R', 'G', 'B', '4') // RGB 8:8:8:8
	PixFmtSBGGR8 = FourCC('B', 'A', '8', '1') // 8-bit Bayer BGGR
)

// BusCode identifies the sensor's output format on the parallel bus,
// matching the media bus code numbering.
type BusCode uint32

const (
	BusFmtY8     BusCode = 0x2001 // Y8_1X8
	BusFmtUYVY8  BusCode = 0x2006 // UYVY8_2X8
	BusFmtVYUY8  BusCode = 0x2007 // VYUY8_2X8
	BusFmtYUYV8  BusCode = 0x2008 // YUYV8_2X8
	BusFmtYVYU8  BusCode = 0x2009 // YVYU8_2X8
	BusFmtSBGGR8 BusCode = 0x3001 // SBGGR8_1X8
)

// FrameFormat describes one negotiated capture configuration: the
// sensor's bus output, the target pixel format and the geometry.
// Format negotiation itself happens outside this module.
type FrameFormat struct {
	Width     uint32
	Height    uint32
	PixFormat uint32  // target fourcc
	Code      BusCode // sensor output on the bus
}

// FrameSize returns the byte size of one frame in the target format.
func (f FrameFormat) FrameSize() int {
	bpp := 2
	switch f.PixFormat {
	case PixFmtGrey, PixFmtSBGGR8:
		bpp = 1
	case PixFmtRGB32:
		bpp = 4
	}
	return int(f.Width) * int(f.Height) * bpp
}

func (f FrameFormat) String() string {
	return fmt.Sprintf("%dx%d %c%c%c%c", f.Width, f.Height,
		byte(f.PixFormat), byte(f.PixFormat>>8), byte(f.PixFormat>>16), byte(f.PixFormat>>24))
}
