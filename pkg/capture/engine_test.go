//go:build unit

package capture_test

import (
	"sync"
	"testing"
	"time"

	"github.com/emergingrobotics/go-isi/pkg/capture"
	"github.com/emergingrobotics/go-isi/pkg/dmabuf"
	"github.com/emergingrobotics/go-isi/pkg/isihw"
	"github.com/emergingrobotics/go-isi/testutil"
)

type startCall struct {
	descAddr  uint32
	frameAddr uint32
	irq       bool
}

// fakeHal records the calls the engine makes and feeds it canned
// interrupt events. onEnable, when set, runs synchronously from
// EnableInterrupt so a test can model the hardware acknowledging a
// command.
type fakeHal struct {
	mu            sync.Mutex
	initialized   int
	uninitialized int
	configured    []isihw.FrameFormat
	starts        []startCall
	enabled       []isihw.InterruptKind
	acked         []isihw.InterruptKind
	events        []isihw.Event
	clock         []bool

	onEnable func(isihw.InterruptKind)
}

func (f *fakeHal) Initialize() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.initialized++
}

func (f *fakeHal) Uninitialize() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uninitialized++
}

func (f *fakeHal) Configure(fmt isihw.FrameFormat) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.configured = append(f.configured, fmt)
}

func (f *fakeHal) StartDMA(descAddr, frameAddr uint32, enableIRQ bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts = append(f.starts, startCall{descAddr, frameAddr, enableIRQ})
}

func (f *fakeHal) BuildDescriptor(slot []byte, frameAddr, nextDescAddr uint32) {}

func (f *fakeHal) EnableInterrupt(kind isihw.InterruptKind) {
	f.mu.Lock()
	f.enabled = append(f.enabled, kind)
	cb := f.onEnable
	f.mu.Unlock()
	if cb != nil {
		cb(kind)
	}
}

func (f *fakeHal) Ack(kind isihw.InterruptKind) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.acked = append(f.acked, kind)
}

func (f *fakeHal) Pending() isihw.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.events) == 0 {
		return isihw.Event{}
	}
	ev := f.events[0]
	f.events = f.events[1:]
	return ev
}

func (f *fakeHal) SetClock(enable bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clock = append(f.clock, enable)
}

func (f *fakeHal) FormatSupported(pixFormat uint32) bool { return true }

func (f *fakeHal) push(ev isihw.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
}

func (f *fakeHal) startCalls() []startCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]startCall, len(f.starts))
	copy(out, f.starts)
	return out
}

// ackImmediately wires the fake so reset and disable commands complete
// on the spot, the way live hardware with a running pixel clock does.
func ackImmediately(f *fakeHal, eng **capture.Engine) {
	f.onEnable = func(kind isihw.InterruptKind) {
		switch kind {
		case isihw.WaitReset:
			f.push(isihw.Event{ResetDone: true})
		case isihw.WaitDisable:
			f.push(isihw.Event{DisableDone: true})
		}
		(*eng).OnInterrupt()
	}
}

type rig struct {
	hal    *fakeHal
	pool   *capture.Pool
	eng    *capture.Engine
	done   []*capture.FrameBuffer
	doneMu sync.Mutex
}

func newRig(t *testing.T, cfg capture.Config) *rig {
	t.Helper()

	r := &rig{hal: &fakeHal{}}
	pool, err := capture.NewPool(testutil.NewFakeMapper(), 8)
	if err != nil {
		t.Fatalf("pool: unexpected error: %v", err)
	}
	t.Cleanup(func() { pool.Close() })
	r.pool = pool

	cfg.Ops = r.hal
	cfg.Pool = pool
	cfg.OnDone = func(fb *capture.FrameBuffer) {
		r.doneMu.Lock()
		r.done = append(r.done, fb)
		r.doneMu.Unlock()
	}
	r.eng = capture.NewEngine(cfg)
	r.eng.SetFormat(isihw.FrameFormat{
		Width: 320, Height: 240,
		PixFormat: isihw.PixFmtYUYV,
		Code:      isihw.BusFmtYUYV8,
	})
	return r
}

func (r *rig) retired() []*capture.FrameBuffer {
	r.doneMu.Lock()
	defer r.doneMu.Unlock()
	out := make([]*capture.FrameBuffer, len(r.done))
	copy(out, r.done)
	return out
}

func (r *rig) addBuffers(t *testing.T, n int) []*capture.FrameBuffer {
	t.Helper()

	bufs := make([]*capture.FrameBuffer, n)
	for i := range bufs {
		payload, err := dmabuf.Alloc(testutil.NewFakeMapper(),
			r.eng.Format().FrameSize(), dmabuf.DirFromDevice)
		if err != nil {
			t.Fatalf("alloc payload: %v", err)
		}
		t.Cleanup(payload.Release)

		fb := capture.NewFrameBuffer(payload)
		if err := r.eng.PrepareBuffer(fb); err != nil {
			t.Fatalf("prepare buffer %d: %v", i, err)
		}
		r.eng.Enqueue(fb)
		bufs[i] = fb
	}
	return bufs
}

func TestStartStreamingResetTimeout(t *testing.T) {
	r := newRig(t, capture.Config{ResetTimeout: 20 * time.Millisecond})

	start := time.Now()
	err := r.eng.StartStreaming(0)
	elapsed := time.Since(start)

	if !capture.IsStatus(err, capture.StatusResetTimeout) {
		t.Fatalf("expected reset timeout, got %v", err)
	}
	if elapsed > 200*time.Millisecond {
		t.Errorf("start took %v, expected the timeout to bound it", elapsed)
	}
	if r.eng.State() != capture.StateStopped {
		t.Errorf("expected engine back in stopped state, got %v", r.eng.State())
	}
	if r.hal.initialized != 0 {
		t.Error("controller must not be initialized after a failed reset")
	}
}

func TestStartStreamingHandshake(t *testing.T) {
	r := newRig(t, capture.Config{})
	ackImmediately(r.hal, &r.eng)
	bufs := r.addBuffers(t, 2)

	if err := r.eng.StartStreaming(len(bufs)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if r.eng.State() != capture.StateStreaming {
		t.Fatalf("expected streaming state, got %v", r.eng.State())
	}
	if r.hal.initialized != 1 {
		t.Errorf("expected one initialize, got %d", r.hal.initialized)
	}
	if len(r.hal.configured) != 1 {
		t.Fatalf("expected one configure, got %d", len(r.hal.configured))
	}
	if got := r.hal.configured[0].Width; got != 320 {
		t.Errorf("configured width: got %d, want 320", got)
	}

	starts := r.hal.startCalls()
	if len(starts) != 1 {
		t.Fatalf("expected one DMA start, got %d", len(starts))
	}
	if !starts[0].irq {
		t.Error("first DMA start must arm the transfer interrupts")
	}
	if starts[0].frameAddr != bufs[0].Payload.Cookie() {
		t.Errorf("DMA start frame address: got %#x, want %#x",
			starts[0].frameAddr, bufs[0].Payload.Cookie())
	}
}

func TestStartStreamingWhileStreaming(t *testing.T) {
	r := newRig(t, capture.Config{})
	ackImmediately(r.hal, &r.eng)

	if err := r.eng.StartStreaming(0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	err := r.eng.StartStreaming(0)
	if !capture.IsStatus(err, capture.StatusInvalidState) {
		t.Errorf("expected invalid state, got %v", err)
	}
}

func TestFrameRetirementOrder(t *testing.T) {
	r := newRig(t, capture.Config{})
	ackImmediately(r.hal, &r.eng)
	bufs := r.addBuffers(t, 3)

	if err := r.eng.StartStreaming(len(bufs)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for i := 0; i < 3; i++ {
		r.hal.push(isihw.Event{FrameDone: true})
		if !r.eng.OnInterrupt() {
			t.Fatalf("frame %d: interrupt not claimed", i)
		}
	}

	retired := r.retired()
	if len(retired) != 3 {
		t.Fatalf("expected 3 retired buffers, got %d", len(retired))
	}
	for i, fb := range retired {
		if fb != bufs[i] {
			t.Errorf("retirement order broken at %d", i)
		}
		if fb.State() != capture.BufferDone {
			t.Errorf("buffer %d: state %v, want done", i, fb.State())
		}
		if fb.Sequence != uint32(i) {
			t.Errorf("buffer %d: sequence %d", i, fb.Sequence)
		}
		if fb.Timestamp.IsZero() {
			t.Errorf("buffer %d: missing timestamp", i)
		}
	}

	// The first start arms the interrupts; the rearms from the
	// interrupt path must not.
	starts := r.hal.startCalls()
	if len(starts) != 3 {
		t.Fatalf("expected 3 DMA starts, got %d", len(starts))
	}
	for i, s := range starts[1:] {
		if s.irq {
			t.Errorf("rearm %d must not re-arm interrupts", i+1)
		}
	}
}

func TestEnqueueWhileStreamingStartsDMA(t *testing.T) {
	r := newRig(t, capture.Config{})
	ackImmediately(r.hal, &r.eng)
	bufs := r.addBuffers(t, 1)

	if err := r.eng.StartStreaming(len(bufs)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	r.hal.push(isihw.Event{FrameDone: true})
	r.eng.OnInterrupt()

	// Queue is now empty; a fresh buffer must start DMA directly.
	extra := r.addBuffers(t, 1)

	starts := r.hal.startCalls()
	if len(starts) != 2 {
		t.Fatalf("expected 2 DMA starts, got %d", len(starts))
	}
	if starts[1].frameAddr != extra[0].Payload.Cookie() {
		t.Errorf("DMA start frame address: got %#x, want %#x",
			starts[1].frameAddr, extra[0].Payload.Cookie())
	}
	if !starts[1].irq {
		t.Error("an idle-queue restart must arm the transfer interrupts")
	}
}

func TestSpuriousInterruptNotClaimed(t *testing.T) {
	r := newRig(t, capture.Config{})

	if r.eng.OnInterrupt() {
		t.Error("expected an interrupt with no pending cause to be passed on")
	}
}

func TestStopStreamingErrorsQueuedBuffers(t *testing.T) {
	r := newRig(t, capture.Config{TriggerMode: true})
	ackImmediately(r.hal, &r.eng)
	bufs := r.addBuffers(t, 3)

	if err := r.eng.StartStreaming(len(bufs)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := r.eng.StopStreaming(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if r.eng.State() != capture.StateStopped {
		t.Fatalf("expected stopped state, got %v", r.eng.State())
	}
	if r.hal.uninitialized != 1 {
		t.Errorf("expected one uninitialize, got %d", r.hal.uninitialized)
	}

	retired := r.retired()
	if len(retired) != 3 {
		t.Fatalf("expected all 3 buffers delivered, got %d", len(retired))
	}
	for i, fb := range retired {
		if fb.State() != capture.BufferError {
			t.Errorf("buffer %d: state %v, want error", i, fb.State())
		}
	}

	// Trigger mode must not issue the disable command.
	for _, k := range r.hal.enabled {
		if k == isihw.WaitDisable {
			t.Error("trigger mode stop must not wait for a disable acknowledgment")
		}
	}
}

func TestStopStreamingRetiresInFlightFrame(t *testing.T) {
	r := newRig(t, capture.Config{})
	bufs := r.addBuffers(t, 2)

	// The last frame completes while stop waits for the disable
	// acknowledgment.
	r.hal.onEnable = func(kind isihw.InterruptKind) {
		switch kind {
		case isihw.WaitReset:
			r.hal.push(isihw.Event{ResetDone: true})
			r.eng.OnInterrupt()
		case isihw.WaitDisable:
			r.hal.push(isihw.Event{FrameDone: true})
			r.eng.OnInterrupt()
			r.hal.push(isihw.Event{DisableDone: true})
			r.eng.OnInterrupt()
		}
	}

	if err := r.eng.StartStreaming(len(bufs)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := r.eng.StopStreaming(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if bufs[0].State() != capture.BufferDone {
		t.Errorf("in-flight buffer: state %v, want done", bufs[0].State())
	}
	if bufs[1].State() != capture.BufferError {
		t.Errorf("queued buffer: state %v, want error", bufs[1].State())
	}
}

func TestStopStreamingAbandonsInFlightOnTimeout(t *testing.T) {
	r := newRig(t, capture.Config{DisableTimeout: 20 * time.Millisecond})
	ackImmediately(r.hal, &r.eng)
	bufs := r.addBuffers(t, 1)

	if err := r.eng.StartStreaming(len(bufs)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// From here the hardware goes quiet: no disable acknowledgment,
	// no final frame.
	r.hal.onEnable = nil

	if err := r.eng.StopStreaming(); err != nil {
		t.Fatalf("stop must succeed even when the disable times out: %v", err)
	}
	if bufs[0].State() != capture.BufferError {
		t.Errorf("abandoned buffer: state %v, want error", bufs[0].State())
	}
	if r.eng.State() != capture.StateStopped {
		t.Errorf("expected stopped state, got %v", r.eng.State())
	}
}

func TestStopWhenStoppedIsNoop(t *testing.T) {
	r := newRig(t, capture.Config{})

	if err := r.eng.StopStreaming(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.hal.uninitialized != 0 {
		t.Error("stopping a stopped engine must not touch the hardware")
	}
}

func TestRestartAfterStop(t *testing.T) {
	r := newRig(t, capture.Config{TriggerMode: true})
	ackImmediately(r.hal, &r.eng)
	bufs := r.addBuffers(t, 1)

	if err := r.eng.StartStreaming(len(bufs)); err != nil {
		t.Fatalf("first start: unexpected error: %v", err)
	}
	if err := r.eng.StopStreaming(); err != nil {
		t.Fatalf("stop: unexpected error: %v", err)
	}

	more := r.addBuffers(t, 1)
	if err := r.eng.StartStreaming(len(more)); err != nil {
		t.Fatalf("second start: unexpected error: %v", err)
	}
	if r.eng.State() != capture.StateStreaming {
		t.Errorf("expected streaming state, got %v", r.eng.State())
	}
}

func TestClockControl(t *testing.T) {
	r := newRig(t, capture.Config{})

	r.eng.ClockStart()
	r.eng.ClockStop()

	if len(r.hal.clock) != 2 || !r.hal.clock[0] || r.hal.clock[1] {
		t.Errorf("expected enable then disable, got %v", r.hal.clock)
	}
}
