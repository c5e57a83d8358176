package capture

const (
	// MaxBufferCount caps the number of frame buffers one queue may
	// hold.
	MaxBufferCount = 32

	// VidLimitBytes caps the total frame memory per queue at 16 MiB.
	VidLimitBytes = 16 * 1024 * 1024
)

// QueueSetup negotiates the buffer count for the current format. The
// request is clamped by MaxBufferCount and by the total memory limit,
// and the engine's queue bookkeeping is reset for the new session. The
// negotiated count and per-buffer frame size are returned.
func (e *Engine) QueueSetup(requested int) (int, int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != StateStopped {
		return 0, 0, NewError(StatusInvalidState, "queue setup")
	}

	frameSize := e.format.FrameSize()
	if frameSize == 0 {
		return 0, 0, NewError(StatusInvalidArgument, "queue setup: format not set")
	}

	// A request of zero means as many as allowed.
	count := requested
	if count < 1 || count > MaxBufferCount {
		count = MaxBufferCount
	}
	if count*frameSize > VidLimitBytes {
		count = VidLimitBytes / frameSize
	}
	if count < 1 {
		return 0, 0, NewError(StatusOutOfMemory, "queue setup: frame exceeds memory limit")
	}

	e.queue = e.queue[:0]
	e.active = nil
	e.inFlight = nil
	e.sequence = 0
	return count, frameSize, nil
}

// InitBuffer validates a freshly allocated buffer before first use.
func (e *Engine) InitBuffer(fb *FrameBuffer) error {
	if fb.Payload == nil {
		return NewError(StatusInvalidArgument, "init buffer: no payload")
	}
	fb.state = BufferIdle
	return nil
}

// PrepareBuffer readies a buffer for hardware use: it checks the
// payload against the current frame size and, on first preparation,
// attaches a DMA descriptor pointing the controller at the frame. The
// descriptor links back to itself so the hardware rewrites the same
// frame until the interrupt handler programs the next one.
func (e *Engine) PrepareBuffer(fb *FrameBuffer) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if fb.Payload == nil {
		return NewError(StatusInvalidArgument, "prepare buffer: no payload")
	}
	if fb.Payload.Size() < e.format.FrameSize() {
		return NewError(StatusBufferTooSmall, "prepare buffer")
	}

	if fb.desc == nil {
		d, err := e.pool.Acquire()
		if err != nil {
			return err
		}
		fb.desc = d
	}
	e.hal.BuildDescriptor(fb.desc.Slot(), fb.Payload.Cookie(), fb.desc.DMAAddr())
	return nil
}

// CleanupBuffer detaches the buffer's descriptor and returns it to the
// pool. The payload itself stays with the caller.
func (e *Engine) CleanupBuffer(fb *FrameBuffer) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if fb.desc != nil {
		e.pool.Release(fb.desc)
		fb.desc = nil
	}
	fb.state = BufferIdle
}
