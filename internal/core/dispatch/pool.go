// Package dispatch stellt Benachrichtigungen asynchron über einen Worker-Pool zu,
// damit die Verifikationsschleife nie auf SMTP wartet.
package dispatch

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"classroom-attendance/internal/attendance"
	"classroom-attendance/internal/core/models"
	"classroom-attendance/internal/util/timezone"

	log "github.com/sirupsen/logrus"
)

// ErrQueueFull wird zurückgegeben, wenn die Warteschlange voll ist; der Job wird verworfen
var ErrQueueFull = errors.New("notification queue full")

// ErrPoolStopped wird nach Stop für neue Jobs zurückgegeben
var ErrPoolStopped = errors.New("notification pool stopped")

// LogStore speichert das Zustellprotokoll
type LogStore interface {
	SaveNotificationLog(ctx context.Context, entry *models.NotificationLog) error
}

// ContactLookup liefert die Empfängeradresse für das Protokoll
type ContactLookup interface {
	GuardianContact(ctx context.Context, studentID string) (*attendance.GuardianContact, error)
}

// Options steuert Größe und Zeitlimits des Pools. Sink erhält eine Logzeile
// für jede fehlgeschlagene Zustellung.
type Options struct {
	Workers    int
	QueueSize  int
	JobTimeout time.Duration
	Sink       attendance.Sink
	Catalog    attendance.Catalog
}

// Stats sind die Zähler des Pools
type Stats struct {
	Workers    int    `json:"workers"`
	Queued     int    `json:"queued"`
	ActiveJobs int    `json:"active_jobs"`
	Sent       uint64 `json:"sent"`
	Failed     uint64 `json:"failed"`
	Dropped    uint64 `json:"dropped"`
}

// job ist eine einzelne Benachrichtigung
type job struct {
	kind      string
	studentID string
	sourceID  string
}

// Pool verwaltet einen Pool von Worker-Goroutinen für Benachrichtigungen.
// Er implementiert selbst attendance.Alerter und reicht an den inneren Alerter weiter.
type Pool struct {
	alerter  attendance.Alerter
	store    LogStore
	contacts ContactLookup
	opts     Options

	jobs       chan job
	activeJobs atomic.Int32
	sent       atomic.Uint64
	failed     atomic.Uint64
	dropped    atomic.Uint64

	mu       sync.RWMutex
	stopped  bool
	shutdown chan struct{}
	wg       sync.WaitGroup
}

// NewPool erstellt einen neuen Worker-Pool und startet die Worker.
// store und contacts dürfen nil sein.
func NewPool(alerter attendance.Alerter, store LogStore, contacts ContactLookup, opts Options) *Pool {
	if opts.Workers <= 0 {
		opts.Workers = 2
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = opts.Workers * 2
	}
	if opts.JobTimeout <= 0 {
		opts.JobTimeout = 30 * time.Second
	}
	if opts.Sink == nil {
		opts.Sink = attendance.NopSink{}
	}
	if opts.Catalog == nil {
		opts.Catalog = attendance.NewEnglishCatalog()
	}

	log.Infof("Initializing notification worker pool with %d workers (queue %d)", opts.Workers, opts.QueueSize)

	p := &Pool{
		alerter:  alerter,
		store:    store,
		contacts: contacts,
		opts:     opts,
		jobs:     make(chan job, opts.QueueSize),
		shutdown: make(chan struct{}),
	}
	p.startWorkers()
	return p
}

// startWorkers startet die Worker-Goroutinen
func (p *Pool) startWorkers() {
	for i := 0; i < p.opts.Workers; i++ {
		p.wg.Add(1)
		go func(workerID int) {
			defer p.wg.Done()
			log.Debugf("Notification worker %d started", workerID)

			for {
				select {
				case j, ok := <-p.jobs:
					if !ok {
						log.Debugf("Notification worker %d shutting down (job channel closed)", workerID)
						return
					}
					p.process(workerID, j)

				case <-p.shutdown:
					log.Debugf("Notification worker %d received shutdown signal", workerID)
					return
				}
			}
		}(i)
	}
}

func (p *Pool) process(workerID int, j job) {
	active := p.activeJobs.Add(1)
	defer p.activeJobs.Add(-1)

	log.Debugf("Worker %d sending %s for student %s (active jobs: %d)", workerID, j.kind, j.studentID, active)
	startTime := timezone.Now()

	ctx, cancel := context.WithTimeout(context.Background(), p.opts.JobTimeout)
	defer cancel()
	ctx = attendance.WithSource(ctx, j.sourceID)

	var err error
	if j.kind == models.NotificationAbsenceAlert {
		err = p.alerter.SendAbsenceAlert(ctx, j.studentID)
	} else {
		err = p.alerter.SendReturnNotice(ctx, j.studentID)
	}

	status := models.NotificationSent
	if err != nil {
		status = models.NotificationFailed
		p.failed.Add(1)
		log.WithFields(log.Fields{
			"student": j.studentID,
			"source":  j.sourceID,
			"kind":    j.kind,
		}).WithError(err).Warn("Notification delivery failed")
		p.opts.Sink.EmitLog(j.sourceID, []string{p.opts.Catalog.Message(attendance.MsgNotificationFailed, map[string]interface{}{
			"StudentID": j.studentID,
			"Error":     err.Error(),
		})})
	} else {
		p.sent.Add(1)
		log.Infof("Worker %d delivered %s for student %s in %v", workerID, j.kind, j.studentID, time.Since(startTime))
	}
	p.record(j, status, err)
}

// record schreibt den Zustellversuch ins Protokoll
func (p *Pool) record(j job, status string, cause error) {
	if p.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	entry := &models.NotificationLog{
		StudentID: j.studentID,
		SourceID:  j.sourceID,
		Kind:      j.kind,
		Status:    status,
		CreatedAt: timezone.Now(),
	}
	if cause != nil {
		entry.LastError = cause.Error()
	}
	if p.contacts != nil {
		if c, err := p.contacts.GuardianContact(ctx, j.studentID); err == nil && c != nil {
			entry.Recipient = c.Email
		}
	}
	if err := p.store.SaveNotificationLog(ctx, entry); err != nil {
		log.Errorf("Failed to save notification log for student %s: %v", j.studentID, err)
	}
}

// submit reiht einen Job ein, ohne zu blockieren
func (p *Pool) submit(ctx context.Context, kind, studentID string) error {
	j := job{kind: kind, studentID: studentID, sourceID: attendance.SourceFromContext(ctx)}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.stopped {
		return ErrPoolStopped
	}

	select {
	case p.jobs <- j:
		return nil
	default:
		p.dropped.Add(1)
		log.Warnf("Notification queue full, dropping %s for student %s", kind, studentID)
		go p.record(j, models.NotificationDropped, ErrQueueFull)
		return ErrQueueFull
	}
}

// SendAbsenceAlert reiht einen Abwesenheitsalarm ein
func (p *Pool) SendAbsenceAlert(ctx context.Context, studentID string) error {
	return p.submit(ctx, models.NotificationAbsenceAlert, studentID)
}

// SendReturnNotice reiht eine Rückkehrmeldung ein
func (p *Pool) SendReturnNotice(ctx context.Context, studentID string) error {
	return p.submit(ctx, models.NotificationReturnNotice, studentID)
}

// Stats gibt die aktuellen Zähler zurück
func (p *Pool) Stats() Stats {
	return Stats{
		Workers:    p.opts.Workers,
		Queued:     len(p.jobs),
		ActiveJobs: int(p.activeJobs.Load()),
		Sent:       p.sent.Load(),
		Failed:     p.failed.Load(),
		Dropped:    p.dropped.Load(),
	}
}

// Stop nimmt keine Jobs mehr an, arbeitet die Warteschlange ab und wartet
// höchstens bis timeout auf die Worker.
func (p *Pool) Stop(timeout time.Duration) {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	close(p.jobs)
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Info("Notification worker pool stopped")
	case <-time.After(timeout):
		log.Warnf("Notification worker pool did not drain within %v, abandoning %d jobs", timeout, len(p.jobs))
		close(p.shutdown)
	}
}

var _ attendance.Alerter = (*Pool)(nil)
