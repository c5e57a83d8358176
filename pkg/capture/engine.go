// Package capture implements the interrupt-driven streaming engine
// tying together the frame allocator, the descriptor pool and the
// controller HAL: an ordered queue of frame buffers is fed to the DMA
// engine one at a time, the completion interrupt retires the head and
// programs the next, and start/stop handshake with the hardware
// through bounded completion waits.
package capture

import (
	"log"
	"sync"
	"time"

	"github.com/emergingrobotics/go-isi/pkg/completion"
	"github.com/emergingrobotics/go-isi/pkg/isihw"
)

// StreamState is the engine's streaming state.
type StreamState int

const (
	StateStopped StreamState = iota
	StateResetting
	StateConfigured
	StateStreaming
	StateStopping
)

func (s StreamState) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateResetting:
		return "resetting"
	case StateConfigured:
		return "configured"
	case StateStreaming:
		return "streaming"
	case StateStopping:
		return "stopping"
	}
	return "invalid"
}

// AckTimeout bounds the reset and disable handshakes with the
// controller.
const AckTimeout = 500 * time.Millisecond

// Config assembles a streaming engine.
type Config struct {
	Ops  isihw.Ops
	Pool *Pool

	// TriggerMode marks externally-triggered single-shot operation:
	// the controller is not expected to acknowledge a disable promptly
	// and StopStreaming does not wait for it.
	TriggerMode bool

	// OnDone, if set, is invoked for every buffer leaving the pipeline
	// (done or errored). It runs with the engine lock held and must
	// not call back into the engine.
	OnDone func(*FrameBuffer)

	// ResetTimeout and DisableTimeout override AckTimeout when set.
	ResetTimeout   time.Duration
	DisableTimeout time.Duration
}

// Engine is the streaming state machine. One interrupt dispatch
// context and a small number of control-path callers share it; all
// shared state is behind one lock, and the lock is never held across
// a blocking wait.
type Engine struct {
	hal  isihw.Ops
	pool *Pool

	resetTimeout   time.Duration
	disableTimeout time.Duration
	triggerMode    bool
	onDone         func(*FrameBuffer)

	ack *completion.Completion

	mu       sync.Mutex
	state    StreamState
	format   isihw.FrameFormat
	queue    []*FrameBuffer
	active   *FrameBuffer // head of queue, bound to hardware registers
	inFlight *FrameBuffer // buffer the hardware is writing right now
	sequence uint32
}

// NewEngine builds an engine from cfg. Ops and Pool are mandatory.
func NewEngine(cfg Config) *Engine {
	e := &Engine{
		hal:            cfg.Ops,
		pool:           cfg.Pool,
		triggerMode:    cfg.TriggerMode,
		onDone:         cfg.OnDone,
		resetTimeout:   cfg.ResetTimeout,
		disableTimeout: cfg.DisableTimeout,
		ack:            completion.New(),
	}
	if e.resetTimeout == 0 {
		e.resetTimeout = AckTimeout
	}
	if e.disableTimeout == 0 {
		e.disableTimeout = AckTimeout
	}
	return e
}

// SetFormat records the negotiated frame format. Must not be called
// while streaming.
func (e *Engine) SetFormat(f isihw.FrameFormat) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.format = f
}

// Format returns the current frame format.
func (e *Engine) Format() isihw.FrameFormat {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.format
}

// State returns the streaming state.
func (e *Engine) State() StreamState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Enqueue appends a prepared buffer to the active queue. If no buffer
// is bound to the hardware it becomes the active one, and DMA starts
// immediately when the stream is already running.
func (e *Engine) Enqueue(fb *FrameBuffer) {
	e.mu.Lock()
	defer e.mu.Unlock()

	fb.state = BufferQueued
	e.queue = append(e.queue, fb)

	if e.active == nil {
		e.active = fb
		if e.state == StateStreaming {
			e.inFlight = fb
			e.hal.StartDMA(fb.desc.DMAAddr(), fb.Payload.Cookie(), true)
		}
	}
}

// waitAck arms the given acknowledgment interrupt and blocks until the
// interrupt handler signals it or the timeout expires.
func (e *Engine) waitAck(kind isihw.InterruptKind, timeout time.Duration) bool {
	e.ack.Reset()
	e.hal.EnableInterrupt(kind)
	return e.ack.Wait(timeout)
}

// StartStreaming resets the controller, programs the configuration and
// arms DMA for the first queued buffer. count is the number of buffers
// the queue owner has enqueued before starting. The reset only
// completes when the sensor supplies a pixel clock; without one the
// handshake times out and the start fails cleanly.
func (e *Engine) StartStreaming(count int) error {
	e.mu.Lock()
	if e.state != StateStopped {
		e.mu.Unlock()
		return NewError(StatusInvalidState, "start streaming")
	}
	e.state = StateResetting
	e.mu.Unlock()

	if !e.waitAck(isihw.WaitReset, e.resetTimeout) {
		log.Printf("[capture] controller reset timed out")
		e.mu.Lock()
		e.state = StateStopped
		e.mu.Unlock()
		return NewError(StatusResetTimeout, "start streaming")
	}

	e.hal.Initialize()

	e.mu.Lock()
	e.state = StateConfigured
	format := e.format
	e.mu.Unlock()

	e.hal.Configure(format)

	e.mu.Lock()
	e.sequence = 0
	if count > 0 && e.active != nil {
		e.inFlight = e.active
		e.hal.StartDMA(e.active.desc.DMAAddr(), e.active.Payload.Cookie(), true)
	}
	e.state = StateStreaming
	e.mu.Unlock()
	return nil
}

// StopStreaming aborts the stream. Queued buffers that have not
// reached the hardware are declared errored immediately; the buffer
// mid-transfer is retired by a completion interrupt that lands during
// the disable handshake, or force-abandoned as errored before this
// returns. Calling StopStreaming when already stopped is a no-op.
// Stop always completes: a disable timeout is logged, not returned.
func (e *Engine) StopStreaming() error {
	e.mu.Lock()
	if e.state == StateStopped {
		e.mu.Unlock()
		return nil
	}
	e.state = StateStopping
	e.active = nil
	for _, fb := range e.queue {
		if fb != e.inFlight {
			fb.state = BufferError
			e.deliver(fb)
		}
	}
	e.queue = e.queue[:0]
	e.mu.Unlock()

	e.hal.Uninitialize()

	if !e.triggerMode {
		// Continuous mode: wait for the disable acknowledgment; the
		// in-flight frame's completion interrupt may arrive meanwhile.
		if !e.waitAck(isihw.WaitDisable, e.disableTimeout) {
			log.Printf("[capture] controller disable timed out")
		}
	}

	e.mu.Lock()
	if fb := e.inFlight; fb != nil {
		e.inFlight = nil
		fb.state = BufferError
		e.deliver(fb)
	}
	e.state = StateStopped
	e.mu.Unlock()
	return nil
}

// OnInterrupt is the single entry point for the platform's interrupt
// dispatch. It reports whether the interrupt belonged to this
// controller, so a shared line can be passed on when it did not.
func (e *Engine) OnInterrupt() bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	ev := e.hal.Pending()
	switch {
	case ev.ResetDone:
		e.hal.Ack(isihw.WaitReset)
		e.ack.Signal()
		return true
	case ev.DisableDone:
		e.hal.Ack(isihw.WaitDisable)
		e.ack.Signal()
		return true
	case ev.FrameDone:
		e.handleFrameDone()
		return true
	}
	return false
}

// handleFrameDone retires the in-flight buffer and binds the next
// queued one to the hardware. Runs under the engine lock.
func (e *Engine) handleFrameDone() {
	if fb := e.inFlight; fb != nil {
		e.inFlight = nil
		if e.active == fb {
			e.active = nil
		}
		if len(e.queue) > 0 && e.queue[0] == fb {
			e.queue = e.queue[1:]
		}
		fb.Timestamp = time.Now()
		fb.Sequence = e.sequence
		e.sequence++
		fb.state = BufferDone
		e.deliver(fb)
	}

	if e.active == nil && len(e.queue) > 0 {
		next := e.queue[0]
		e.active = next
		e.inFlight = next
		// Completion interrupts are already armed.
		e.hal.StartDMA(next.desc.DMAAddr(), next.Payload.Cookie(), false)
	}
}

func (e *Engine) deliver(fb *FrameBuffer) {
	if e.onDone != nil {
		e.onDone(fb)
	}
}

// ClockStart enables the controller clock (ISC only; no-op on ISI).
func (e *Engine) ClockStart() {
	e.hal.SetClock(true)
}

// ClockStop disables the controller clock.
func (e *Engine) ClockStop() {
	e.hal.SetClock(false)
}
