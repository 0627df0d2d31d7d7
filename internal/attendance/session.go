package attendance

import (
	"sync"
	"sync/atomic"
	"time"
)

// session ist das Paar aus Capture- und Verifikationsschleife einer Quelle.
type session struct {
	m       *Monitor
	spec    SourceSpec
	source  VideoSource
	buffer  *FrameBuffer
	tracker *Tracker

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	done     chan struct{}

	startedAt time.Time
	captured  atomic.Uint64
	cycles    atomic.Uint64

	mu        sync.Mutex
	err       error
	lastCycle time.Time
}

func newSession(m *Monitor, spec SourceSpec, src VideoSource, tracker *Tracker) *session {
	return &session{
		m:         m,
		spec:      spec,
		source:    src,
		buffer:    NewFrameBuffer(m.opts.BufferSize),
		tracker:   tracker,
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
		startedAt: m.opts.Clock(),
	}
}

func (s *session) start() {
	s.wg.Add(2)
	go s.captureLoop()
	go s.verifyLoop()
	go func() {
		s.wg.Wait()
		close(s.done)
	}()
}

// halt setzt das gemeinsame Stop-Signal; mehrfache Aufrufe sind erlaubt.
func (s *session) halt() {
	s.stopOnce.Do(func() { close(s.stop) })
}

// wait wartet höchstens timeout auf das Ende beider Schleifen.
func (s *session) wait(timeout time.Duration) bool {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-s.done:
		return true
	case <-timer.C:
		return false
	}
}

func (s *session) running() bool {
	select {
	case <-s.done:
		return false
	case <-s.stop:
		return false
	default:
		return true
	}
}

func (s *session) stopped() bool {
	select {
	case <-s.stop:
		return true
	default:
		return false
	}
}

func (s *session) setErr(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

func (s *session) info() SessionInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	info := SessionInfo{
		SourceID:       s.spec.ID,
		URI:            s.spec.URI,
		Running:        s.running(),
		StartedAt:      s.startedAt,
		LastCycleAt:    s.lastCycle,
		FramesCaptured: s.captured.Load(),
		FramesDropped:  s.buffer.Dropped(),
		Cycles:         s.cycles.Load(),
	}
	if s.err != nil {
		info.Error = s.err.Error()
	}
	return info
}
