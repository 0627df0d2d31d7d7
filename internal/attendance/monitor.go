package attendance

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// Options enthält die Zeit- und Größenparameter des Monitors.
type Options struct {
	Interval        time.Duration
	PollInterval    time.Duration
	CaptureInterval time.Duration
	StopTimeout     time.Duration
	AlertTimeout    time.Duration
	BufferSize      int
	DescriptorSize  int
	Catalog         Catalog
	Clock           func() time.Time
}

// DefaultOptions entspricht dem Verhalten im Produktivbetrieb.
func DefaultOptions() Options {
	return Options{
		Interval:        30 * time.Second,
		PollInterval:    time.Second,
		CaptureInterval: time.Second / 15,
		StopTimeout:     3 * time.Second,
		AlertTimeout:    30 * time.Second,
		BufferSize:      DefaultBufferSize,
		DescriptorSize:  128,
	}
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.Interval <= 0 {
		o.Interval = def.Interval
	}
	if o.PollInterval <= 0 {
		o.PollInterval = def.PollInterval
	}
	if o.CaptureInterval <= 0 {
		o.CaptureInterval = def.CaptureInterval
	}
	if o.StopTimeout <= 0 {
		o.StopTimeout = def.StopTimeout
	}
	if o.AlertTimeout <= 0 {
		o.AlertTimeout = def.AlertTimeout
	}
	if o.BufferSize == 0 {
		o.BufferSize = def.BufferSize
	}
	if o.Catalog == nil {
		o.Catalog = NewEnglishCatalog()
	}
	if o.Clock == nil {
		o.Clock = time.Now
	}
	return o
}

// Monitor koordiniert Referenz-Cache, Anwesenheitszustand und die Sitzungen pro Quelle.
// Cache und alle Tracker werden ausschließlich unter mu verändert.
type Monitor struct {
	roster  RosterStore
	matcher *Matcher
	sources SourceFactory
	sink    Sink
	alerter Alerter
	opts    Options

	mu       sync.Mutex
	cache    *ReferenceCache
	trackers map[string]*Tracker
	sessions map[string]*session
	closed   bool

	reloadMu    sync.Mutex
	lifecycleMu sync.Mutex
}

// NewMonitor erstellt einen Monitor. alerter darf nil sein, dann werden keine
// Benachrichtigungen verschickt.
func NewMonitor(roster RosterStore, matcher *Matcher, sources SourceFactory, sink Sink, alerter Alerter, opts Options) *Monitor {
	if sink == nil {
		sink = NopSink{}
	}
	return &Monitor{
		roster:   roster,
		matcher:  matcher,
		sources:  sources,
		sink:     sink,
		alerter:  alerter,
		opts:     opts.withDefaults(),
		cache:    emptyCache(),
		trackers: make(map[string]*Tracker),
		sessions: make(map[string]*session),
	}
}

// Reload lädt alle Schüler neu und ersetzt den Cache atomar.
// Bei einem Fehler bleibt der bisherige Cache unverändert.
func (m *Monitor) Reload(ctx context.Context) error {
	m.reloadMu.Lock()
	defer m.reloadMu.Unlock()

	refs, err := m.roster.ListStudents(ctx)
	if err != nil {
		return m.reloadFailed(err)
	}
	cache, err := BuildReferenceCache(refs, m.opts.DescriptorSize)
	if err != nil {
		return m.reloadFailed(err)
	}

	m.mu.Lock()
	m.cache = cache
	ids := cache.IDs()
	for _, t := range m.trackers {
		t.Sync(ids)
	}
	m.mu.Unlock()

	log.Infof("Reference cache reloaded with %d students", cache.Len())
	m.sink.EmitLog("", []string{m.opts.Catalog.Message(MsgCacheReloaded, map[string]interface{}{
		"Count": cache.Len(),
	})})
	return nil
}

func (m *Monitor) reloadFailed(cause error) error {
	err := fmt.Errorf("%w: %v", ErrRosterUnavailable, cause)
	log.WithError(cause).Error("Failed to reload reference cache, keeping previous snapshot")
	m.sink.EmitLog("", []string{m.opts.Catalog.Message(MsgRosterUnavailable, map[string]interface{}{
		"Error": cause.Error(),
	})})
	return err
}

// Start startet Capture- und Verifikationsschleife für eine Quelle.
// Läuft die Quelle bereits mit derselben URI, passiert nichts. Bei anderer URI
// wird die alte Sitzung zuerst beendet.
func (m *Monitor) Start(spec SourceSpec) error {
	m.lifecycleMu.Lock()
	defer m.lifecycleMu.Unlock()

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrMonitorClosed
	}
	old := m.sessions[spec.ID]
	m.mu.Unlock()

	if old != nil {
		if old.running() && old.spec.URI == spec.URI {
			log.Infof("Monitoring for source %s already active", spec.ID)
			return nil
		}
		log.Infof("Restarting monitoring for source %s (%s -> %s)", spec.ID, old.spec.URI, spec.URI)
		m.stopSession(old)
	}

	src, err := m.sources(spec)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}

	m.mu.Lock()
	tracker, ok := m.trackers[spec.ID]
	if !ok {
		tracker = NewTracker()
		tracker.Sync(m.cache.IDs())
		m.trackers[spec.ID] = tracker
	}
	s := newSession(m, spec, src, tracker)
	m.sessions[spec.ID] = s
	m.mu.Unlock()

	s.start()
	log.WithFields(log.Fields{"source": spec.ID, "uri": spec.URI}).Info("Monitoring started")
	m.sink.EmitLog(spec.ID, []string{m.opts.Catalog.Message(MsgMonitoringStarted, map[string]interface{}{
		"SourceID": spec.ID,
	})})
	return nil
}

// Stop beendet die Sitzung einer Quelle und wartet begrenzt auf beide Schleifen.
func (m *Monitor) Stop(sourceID string) error {
	m.lifecycleMu.Lock()
	defer m.lifecycleMu.Unlock()

	m.mu.Lock()
	s := m.sessions[sourceID]
	m.mu.Unlock()
	if s == nil {
		return ErrNotMonitoring
	}
	m.stopSession(s)
	return nil
}

// Close beendet alle Sitzungen. Danach sind keine Starts mehr möglich.
func (m *Monitor) Close() {
	m.lifecycleMu.Lock()
	defer m.lifecycleMu.Unlock()

	m.mu.Lock()
	m.closed = true
	sessions := make([]*session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.Unlock()

	for _, s := range sessions {
		m.stopSession(s)
	}
}

func (m *Monitor) stopSession(s *session) {
	m.mu.Lock()
	if m.sessions[s.spec.ID] == s {
		delete(m.sessions, s.spec.ID)
	}
	m.mu.Unlock()

	s.halt()
	if !s.wait(m.opts.StopTimeout) {
		log.Warnf("Monitoring loops for source %s did not stop within %s", s.spec.ID, m.opts.StopTimeout)
	} else {
		log.Infof("Monitoring for source %s stopped", s.spec.ID)
	}
	m.sink.EmitLog(s.spec.ID, []string{m.opts.Catalog.Message(MsgMonitoringStopped, map[string]interface{}{
		"SourceID": s.spec.ID,
	})})
}

// SessionInfo beschreibt eine aktive oder beendete Sitzung.
type SessionInfo struct {
	SourceID       string    `json:"source_id"`
	URI            string    `json:"uri"`
	Running        bool      `json:"running"`
	StartedAt      time.Time `json:"started_at"`
	LastCycleAt    time.Time `json:"last_cycle_at,omitempty"`
	FramesCaptured uint64    `json:"frames_captured"`
	FramesDropped  uint64    `json:"frames_dropped"`
	Cycles         uint64    `json:"cycles"`
	Error          string    `json:"error,omitempty"`
}

// Sessions gibt alle registrierten Sitzungen sortiert nach Quelle zurück.
func (m *Monitor) Sessions() []SessionInfo {
	m.mu.Lock()
	sessions := make([]*session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.Unlock()

	out := make([]SessionInfo, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, s.info())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SourceID < out[j].SourceID })
	return out
}

// Attendance gibt den Anwesenheitszustand einer Quelle zurück.
func (m *Monitor) Attendance(sourceID string) ([]Entry, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.trackers[sourceID]
	if !ok {
		return nil, false
	}
	return t.Snapshot(), true
}

// Cache gibt den aktuellen (unveränderlichen) Referenz-Cache zurück.
func (m *Monitor) Cache() *ReferenceCache {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cache
}
