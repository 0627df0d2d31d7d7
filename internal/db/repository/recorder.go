package repository

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"classroom-attendance/internal/attendance"
	"classroom-attendance/internal/core/models"

	log "github.com/sirupsen/logrus"
	"gorm.io/datatypes"
)

const (
	recorderQueueSize  = 256
	recorderBatchSize  = 50
	recorderFlushEvery = 2 * time.Second
)

// Recorder schreibt Anwesenheitsereignisse asynchron in das Protokoll.
// Er implementiert attendance.Sink und blockiert die Überwachung nie.
type Recorder struct {
	repo    Repository
	events  chan models.AttendanceEvent
	stop    chan struct{}
	done    chan struct{}
	once    sync.Once
	mu      sync.Mutex
	dropped int
}

// NewRecorder erstellt einen Recorder. Start muss separat aufgerufen werden.
func NewRecorder(repo Repository) *Recorder {
	return &Recorder{
		repo:   repo,
		events: make(chan models.AttendanceEvent, recorderQueueSize),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// recorded legt fest, welche Übergänge im Protokoll landen
func recorded(kind attendance.EventKind) bool {
	switch kind {
	case attendance.EventPresent, attendance.EventReturned, attendance.EventAbsenceAlert:
		return true
	}
	return false
}

func (r *Recorder) EmitLog(string, []string)            {}
func (r *Recorder) EmitFrame(string, []byte, time.Time) {}

// EmitEvent reiht ein Ereignis zum Speichern ein. Ist die Warteschlange voll,
// wird das Ereignis verworfen.
func (r *Recorder) EmitEvent(ev attendance.Event) {
	if !recorded(ev.Kind) || ev.StudentID == "" {
		return
	}

	entry := models.AttendanceEvent{
		StudentID:           ev.StudentID,
		SourceID:            ev.SourceID,
		Kind:                string(ev.Kind),
		Status:              ev.Status,
		ConsecutiveAbsences: ev.ConsecutiveAbsences,
		Timestamp:           ev.At,
	}
	if raw, err := json.Marshal(ev); err == nil {
		entry.Details = datatypes.JSON(raw)
	}

	select {
	case r.events <- entry:
	default:
		r.mu.Lock()
		r.dropped++
		r.mu.Unlock()
		log.WithField("student", ev.StudentID).Warn("Attendance recorder queue full, event dropped")
	}
}

// Dropped gibt die Anzahl verworfener Ereignisse zurück
func (r *Recorder) Dropped() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dropped
}

// Start startet die Hintergrund-Goroutine, die Ereignisse gebündelt speichert
func (r *Recorder) Start() {
	go r.run()
	log.Info("Attendance recorder started")
}

// Stop speichert ausstehende Ereignisse und beendet den Recorder
func (r *Recorder) Stop() {
	r.once.Do(func() {
		close(r.stop)
		<-r.done
		log.Info("Attendance recorder stopped")
	})
}

func (r *Recorder) run() {
	defer close(r.done)

	ticker := time.NewTicker(recorderFlushEvery)
	defer ticker.Stop()

	batch := make([]models.AttendanceEvent, 0, recorderBatchSize)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := r.repo.SaveAttendanceEvents(ctx, batch); err != nil {
			log.Errorf("Failed to save %d attendance events: %v", len(batch), err)
		} else {
			log.Debugf("Saved %d attendance events", len(batch))
		}
		batch = batch[:0]
	}

	for {
		select {
		case ev := <-r.events:
			batch = append(batch, ev)
			if len(batch) >= recorderBatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-r.stop:
			// Warteschlange leeren
			for {
				select {
				case ev := <-r.events:
					batch = append(batch, ev)
				default:
					flush()
					return
				}
			}
		}
	}
}
