package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/emergingrobotics/go-isi/pkg/capture"
	"github.com/emergingrobotics/go-isi/pkg/dmabuf"
	"github.com/emergingrobotics/go-isi/pkg/isihw"
	"github.com/emergingrobotics/go-isi/pkg/regmap"
	"github.com/emergingrobotics/go-isi/testutil"
)

// Version information (set by ldflags)
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		return
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "sim":
		runSim(args)
	case "formats":
		printFormats()
	case "probe":
		if len(args) < 1 {
			fmt.Println("Usage: isicap probe <base-address>")
			os.Exit(1)
		}
		probe(args[0])
	case "version":
		printVersion()
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Image sensor capture CLI")
	fmt.Println()
	fmt.Println("Usage: isicap <command> [options]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  sim [options]      Run a simulated capture session")
	fmt.Println("  formats            List supported pixel formats per controller")
	fmt.Println("  probe <base>       Map controller registers at a physical base address")
	fmt.Println("  version            Print version information")
	fmt.Println("  help               Show this help")
}

func printVersion() {
	fmt.Printf("isicap version %s\n", Version)
	fmt.Printf("  Build time: %s\n", BuildTime)
}

func printFormats() {
	formats := []struct {
		name string
		fcc  uint32
	}{
		{"GREY", isihw.PixFmtGrey},
		{"YUYV", isihw.PixFmtYUYV},
		{"UYVY", isihw.PixFmtUYVY},
		{"YVYU", isihw.PixFmtYVYU},
		{"VYUY", isihw.PixFmtVYUY},
		{"RGBP", isihw.PixFmtRGB565},
		{"RGB4", isihw.PixFmtRGB32},
		{"BA81", isihw.PixFmtSBGGR8},
	}

	isi := isihw.NewISI(testutil.NewFakeBus(), isihw.BusConfig{})
	isc := isihw.NewISC(testutil.NewFakeBus(), isihw.BusConfig{})

	fmt.Println("Format  ISI  ISC")
	for _, f := range formats {
		fmt.Printf("%-6s  %-3s  %-3s\n", f.name,
			yesNo(isi.FormatSupported(f.fcc)), yesNo(isc.FormatSupported(f.fcc)))
	}
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

// probe maps the controller register window to verify /dev/mem access
// and the device tree base address, without touching any register.
func probe(baseArg string) {
	var base uint64
	if _, err := fmt.Sscanf(baseArg, "0x%x", &base); err != nil {
		if _, err := fmt.Sscanf(baseArg, "%d", &base); err != nil {
			fmt.Printf("Invalid base address: %s\n", baseArg)
			os.Exit(1)
		}
	}

	w, err := regmap.OpenWindow(base, 0x1000)
	if err != nil {
		fmt.Printf("Error mapping registers at %#x: %v\n", base, err)
		os.Exit(1)
	}
	defer w.Close()

	fmt.Printf("Mapped 4 KiB register window at %#x\n", base)
}

func runSim(args []string) {
	fs := flag.NewFlagSet("sim", flag.ExitOnError)
	controller := fs.String("controller", "isi", "controller model (isi or isc)")
	width := fs.Uint("width", 640, "frame width in pixels")
	height := fs.Uint("height", 480, "frame height in pixels")
	frames := fs.Int("frames", 10, "number of frames to capture")
	buffers := fs.Int("buffers", 4, "number of frame buffers")
	format := fs.String("format", "yuyv", "target format (grey, yuyv, rgb565, rgb32, bayer)")
	trigger := fs.Bool("trigger", false, "externally triggered single-shot mode")
	fs.Parse(args)

	f := isihw.FrameFormat{Width: uint32(*width), Height: uint32(*height)}
	switch *format {
	case "grey":
		f.PixFormat, f.Code = isihw.PixFmtGrey, isihw.BusFmtY8
	case "yuyv":
		f.PixFormat, f.Code = isihw.PixFmtYUYV, isihw.BusFmtYUYV8
	case "rgb565":
		f.PixFormat, f.Code = isihw.PixFmtRGB565, isihw.BusFmtYUYV8
	case "rgb32":
		f.PixFormat, f.Code = isihw.PixFmtRGB32, isihw.BusFmtYUYV8
	case "bayer":
		f.PixFormat, f.Code = isihw.PixFmtSBGGR8, isihw.BusFmtSBGGR8
	default:
		fmt.Printf("Unknown format: %s\n", *format)
		os.Exit(1)
	}

	var (
		hal  isihw.Ops
		bus  *testutil.FakeBus
		intc simIntc
	)
	switch *controller {
	case "isi":
		bus = testutil.NewFakeBusWithIntc(testutil.IntcLayout{
			Enable:      isihw.ISIIntEn,
			Disable:     isihw.ISIIntDis,
			Mask:        isihw.ISIIntMask,
			Status:      isihw.ISIStatus,
			ClearOnRead: true,
		})
		hal = isihw.NewISI(bus, isihw.BusConfig{})
		intc = simIntc{
			mask:    isihw.ISIIntMask,
			reset:   isihw.ISISrSrst,
			disable: isihw.ISISrDisDone,
			frame:   isihw.ISISrCxfrDone,
		}
	case "isc":
		bus = testutil.NewFakeBusWithIntc(testutil.IntcLayout{
			Enable:      isihw.ISCIntEn,
			Disable:     isihw.ISCIntDis,
			Mask:        isihw.ISCIntMask,
			Status:      isihw.ISCIntSr,
			ClearOnRead: true,
		})
		hal = isihw.NewISC(bus, isihw.BusConfig{})
		intc = simIntc{
			mask:    isihw.ISCIntMask,
			reset:   isihw.ISCIntSwrstComplete,
			disable: isihw.ISCIntDisableComplete,
			frame:   isihw.ISCIntDmaDone,
		}
	default:
		fmt.Printf("Unknown controller: %s\n", *controller)
		os.Exit(1)
	}

	if !hal.FormatSupported(f.PixFormat) {
		fmt.Printf("Controller %s cannot produce %s\n", *controller, *format)
		os.Exit(1)
	}

	mapper := testutil.NewFakeMapper()
	pool, err := capture.NewPool(mapper, *buffers)
	if err != nil {
		fmt.Printf("Error creating descriptor pool: %v\n", err)
		os.Exit(1)
	}
	defer pool.Close()

	done := make(chan *capture.FrameBuffer, *buffers)
	eng := capture.NewEngine(capture.Config{
		Ops:         hal,
		Pool:        pool,
		TriggerMode: *trigger,
		OnDone: func(fb *capture.FrameBuffer) {
			select {
			case done <- fb:
			default:
			}
		},
	})
	eng.SetFormat(f)

	count, frameSize, err := eng.QueueSetup(*buffers)
	if err != nil {
		fmt.Printf("Error negotiating buffers: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Capturing %d frames of %s (%d buffers, %d bytes each)\n",
		*frames, f, count, frameSize)

	bufs := make([]*capture.FrameBuffer, count)
	for i := range bufs {
		payload, err := dmabuf.Alloc(mapper, frameSize, dmabuf.DirFromDevice)
		if err != nil {
			fmt.Printf("Error allocating frame %d: %v\n", i, err)
			os.Exit(1)
		}
		defer payload.Release()

		fb := capture.NewFrameBuffer(payload)
		if err := eng.PrepareBuffer(fb); err != nil {
			fmt.Printf("Error preparing frame %d: %v\n", i, err)
			os.Exit(1)
		}
		eng.Enqueue(fb)
		bufs[i] = fb
	}

	hw := startSimHardware(bus, eng, intc)
	defer hw.stop()

	eng.ClockStart()
	if err := eng.StartStreaming(count); err != nil {
		fmt.Printf("Error starting stream: %v\n", err)
		os.Exit(1)
	}

	captured := 0
	for captured < *frames {
		select {
		case fb := <-done:
			if fb.State() != capture.BufferDone {
				continue
			}
			if err := fb.Payload.Finish(); err != nil {
				fmt.Printf("Error syncing frame: %v\n", err)
				os.Exit(1)
			}
			fmt.Printf("  frame %d at %s\n", fb.Sequence,
				fb.Timestamp.Format("15:04:05.000"))
			captured++
			if captured < *frames {
				eng.Enqueue(fb)
			}
		case <-time.After(2 * time.Second):
			fmt.Println("Timed out waiting for frames")
			os.Exit(1)
		}
	}

	if err := eng.StopStreaming(); err != nil {
		fmt.Printf("Error stopping stream: %v\n", err)
		os.Exit(1)
	}
	eng.ClockStop()

	for _, fb := range bufs {
		eng.CleanupBuffer(fb)
	}
	fmt.Printf("Captured %d frames\n", captured)
}

// simIntc names the interrupt bits the simulated sensor raises.
type simIntc struct {
	mask    uint32
	reset   uint32
	disable uint32
	frame   uint32
}

type simHardware struct {
	quit chan struct{}
	done chan struct{}
}

// startSimHardware stands in for the sensor and the interrupt line: it
// watches the interrupt mask and raises whichever acknowledgment or
// frame completion the driver is waiting for.
func startSimHardware(bus *testutil.FakeBus, eng *capture.Engine, intc simIntc) *simHardware {
	hw := &simHardware{quit: make(chan struct{}), done: make(chan struct{})}
	go func() {
		defer close(hw.done)
		ticker := time.NewTicker(2 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-hw.quit:
				return
			case <-ticker.C:
				mask := bus.Reg(intc.mask)
				switch {
				case mask&intc.reset != 0:
					bus.RaiseStatus(intc.reset)
				case mask&intc.frame != 0:
					bus.RaiseStatus(intc.frame)
				case mask&intc.disable != 0:
					bus.RaiseStatus(intc.disable)
				default:
					continue
				}
				eng.OnInterrupt()
			}
		}
	}()
	return hw
}

func (hw *simHardware) stop() {
	close(hw.quit)
	<-hw.done
}
