package attendance

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

type fakeRoster struct {
	mu       sync.Mutex
	students []StudentReference
	err      error
	calls    int
}

func (r *fakeRoster) set(students ...StudentReference) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.students = students
	r.err = nil
}

func (r *fakeRoster) fail(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.err = err
}

func (r *fakeRoster) ListStudents(ctx context.Context) ([]StudentReference, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if r.err != nil {
		return nil, r.err
	}
	out := make([]StudentReference, len(r.students))
	copy(out, r.students)
	return out, nil
}

func (r *fakeRoster) GuardianContact(ctx context.Context, studentID string) (*GuardianContact, error) {
	return &GuardianContact{StudentName: studentID, Email: studentID + "@example.org"}, nil
}

type recordingSink struct {
	mu     sync.Mutex
	lines  []string
	frames int
	events []Event
}

func (s *recordingSink) EmitLog(sourceID string, lines []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lines = append(s.lines, lines...)
}

func (s *recordingSink) EmitFrame(sourceID string, jpeg []byte, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames++
}

func (s *recordingSink) EmitEvent(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
}

func (s *recordingSink) Lines() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.lines...)
}

func (s *recordingSink) Frames() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frames
}

func (s *recordingSink) EventsOf(kind EventKind) []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Event
	for _, ev := range s.events {
		if ev.Kind == kind {
			out = append(out, ev)
		}
	}
	return out
}

type countingAlerter struct {
	mu       sync.Mutex
	absences map[string]int
	returns  map[string]int
	err      error
}

func newCountingAlerter() *countingAlerter {
	return &countingAlerter{absences: map[string]int{}, returns: map[string]int{}}
}

func (a *countingAlerter) SendAbsenceAlert(ctx context.Context, id string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.absences[id]++
	return a.err
}

func (a *countingAlerter) SendReturnNotice(ctx context.Context, id string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.returns[id]++
	return a.err
}

func (a *countingAlerter) counts(id string) (int, int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.absences[id], a.returns[id]
}

// scriptedExtractor liefert Gesichter anhand des Bildinhalts: jedes Byte ist
// ein Schlüssel in faces.
type scriptedExtractor struct {
	mu    sync.Mutex
	faces map[string][]DetectedFace
	// byMode überschreibt das Ergebnis einzelner Stufen
	byMode map[DetectMode][]DetectedFace
	errs   map[DetectMode]error
	calls  []DetectMode
}

func (e *scriptedExtractor) Extract(ctx context.Context, frame Frame, mode DetectMode) ([]DetectedFace, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = append(e.calls, mode)
	if err, ok := e.errs[mode]; ok {
		return nil, err
	}
	if e.byMode != nil {
		return e.byMode[mode], nil
	}
	var out []DetectedFace
	for _, b := range frame.Image {
		out = append(out, e.faces[string(b)]...)
	}
	return out, nil
}

func (e *scriptedExtractor) Calls() []DetectMode {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]DetectMode(nil), e.calls...)
}

// reloadingExtractor ruft hook einmalig während der ersten Erkennung auf,
// also zwischen Schnappschuss und Übernahme des Ergebnisses.
type reloadingExtractor struct {
	FaceExtractor
	once sync.Once
	hook func()
}

func (e *reloadingExtractor) Extract(ctx context.Context, frame Frame, mode DetectMode) ([]DetectedFace, error) {
	e.once.Do(e.hook)
	return e.FaceExtractor.Extract(ctx, frame, mode)
}

// fakeSource liefert endlos Frames mit festem Inhalt.
type fakeSource struct {
	content    []byte
	openErr    error
	readErr    error
	replayable bool
	// frames bis zum Ende des Streams, 0 = unbegrenzt
	length    int
	readDelay time.Duration

	mu      sync.Mutex
	pos     int
	rewinds int
	opens   atomic.Int32
	closes  atomic.Int32
	reads   atomic.Int32
}

func (s *fakeSource) Open() error {
	s.opens.Add(1)
	return s.openErr
}

func (s *fakeSource) Read() (Frame, error) {
	s.reads.Add(1)
	if s.readDelay > 0 {
		time.Sleep(s.readDelay)
	}
	if s.readErr != nil {
		return Frame{}, s.readErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.length > 0 && s.pos >= s.length {
		return Frame{}, ErrEndOfStream
	}
	s.pos++
	return Frame{Image: s.content, Preview: []byte("preview")}, nil
}

func (s *fakeSource) Rewind() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pos = 0
	s.rewinds++
	return nil
}

func (s *fakeSource) Rewinds() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rewinds
}

func (s *fakeSource) Replayable() bool { return s.replayable }

func (s *fakeSource) Close() error {
	s.closes.Add(1)
	return nil
}

func sourceFactory(src VideoSource) SourceFactory {
	return func(SourceSpec) (VideoSource, error) {
		if src == nil {
			return nil, errors.New("no source")
		}
		return src, nil
	}
}

func descriptor(vals ...float32) Descriptor {
	return Descriptor(vals)
}

func fastOptions() Options {
	return Options{
		Interval:        5 * time.Millisecond,
		PollInterval:    time.Millisecond,
		CaptureInterval: time.Millisecond,
		StopTimeout:     time.Second,
		AlertTimeout:    time.Second,
		DescriptorSize:  -1,
	}
}
