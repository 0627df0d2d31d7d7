package attendance

import "sync/atomic"

const (
	MinBufferSize     = 2
	MaxBufferSize     = 5
	DefaultBufferSize = 5
)

// FrameBuffer ist eine kleine begrenzte Queue zwischen Capture- und Verifikationsschleife.
// TryPush blockiert nie: ist der Puffer voll, wird der neue Frame verworfen.
type FrameBuffer struct {
	frames  chan Frame
	dropped atomic.Uint64
}

// NewFrameBuffer erstellt einen Puffer; die Kapazität wird auf 2..5 begrenzt.
func NewFrameBuffer(capacity int) *FrameBuffer {
	if capacity < MinBufferSize {
		capacity = MinBufferSize
	}
	if capacity > MaxBufferSize {
		capacity = MaxBufferSize
	}
	return &FrameBuffer{frames: make(chan Frame, capacity)}
}

// TryPush legt einen Frame ab und gibt false zurück, wenn er verworfen wurde.
func (b *FrameBuffer) TryPush(f Frame) bool {
	select {
	case b.frames <- f:
		return true
	default:
		b.dropped.Add(1)
		return false
	}
}

// DrainLatest leert den Puffer und gibt nur den neuesten Frame zurück.
func (b *FrameBuffer) DrainLatest() (Frame, bool) {
	var (
		latest Frame
		found  bool
	)
	for {
		select {
		case f := <-b.frames:
			latest = f
			found = true
		default:
			return latest, found
		}
	}
}

// Len gibt die Anzahl wartender Frames zurück.
func (b *FrameBuffer) Len() int {
	return len(b.frames)
}

// Cap gibt die Kapazität zurück.
func (b *FrameBuffer) Cap() int {
	return cap(b.frames)
}

// Dropped gibt die Anzahl verworfener Frames zurück.
func (b *FrameBuffer) Dropped() uint64 {
	return b.dropped.Load()
}
