package capture

import (
	"time"

	"github.com/emergingrobotics/go-isi/pkg/dmabuf"
)

// BufferState is the lifecycle state of a frame buffer within the
// streaming engine.
type BufferState int

const (
	BufferIdle BufferState = iota
	BufferQueued
	BufferDone
	BufferError
)

func (s BufferState) String() string {
	switch s {
	case BufferIdle:
		return "idle"
	case BufferQueued:
		return "queued"
	case BufferDone:
		return "done"
	case BufferError:
		return "error"
	}
	return "invalid"
}

// FrameBuffer pairs one frame of physical memory with its attached DMA
// descriptor. The descriptor is attached on the first Prepare and
// returned to the pool on Cleanup; Sequence and Timestamp are filled
// in when the completion interrupt retires the buffer.
type FrameBuffer struct {
	Payload   *dmabuf.Buffer
	Sequence  uint32
	Timestamp time.Time

	desc  *Descriptor
	state BufferState
}

// NewFrameBuffer wraps an allocated frame in an unprepared buffer.
func NewFrameBuffer(payload *dmabuf.Buffer) *FrameBuffer {
	return &FrameBuffer{Payload: payload}
}

// State returns the buffer's lifecycle state. It is updated under the
// engine lock; readers that race with streaming see a consistent but
// possibly stale value.
func (fb *FrameBuffer) State() BufferState {
	return fb.state
}
