package attendance

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
)

// verifyLoop prüft in festen Abständen den jeweils neuesten Frame.
func (s *session) verifyLoop() {
	defer s.wg.Done()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-s.stop:
			cancel()
		case <-ctx.Done():
		}
	}()

	ticker := time.NewTicker(s.m.opts.PollInterval)
	defer ticker.Stop()

	var last time.Time
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
		}

		if !last.IsZero() && time.Since(last) < s.m.opts.Interval {
			continue
		}
		frame, ok := s.buffer.DrainLatest()
		if !ok {
			continue
		}

		s.m.runCycle(ctx, s, frame)
		last = time.Now()
	}
}

// runCycle führt einen Prüfzyklus aus: Schnappschuss, Abgleich ohne Lock,
// Übergänge als Batch unter Lock, danach Ausgabe und Benachrichtigungen.
func (m *Monitor) runCycle(ctx context.Context, s *session, frame Frame) {
	m.mu.Lock()
	snapshot := m.cache
	m.mu.Unlock()

	at := m.opts.Clock()
	res := m.matcher.Match(ctx, frame, snapshot, at)
	if ctx.Err() != nil {
		return
	}

	m.mu.Lock()
	ids := snapshot.IDs()
	if m.cache != snapshot {
		// Schüler, die seit dem Schnappschuss entfernt wurden, gelten als nicht überwacht.
		ids = make([]string, 0, snapshot.Len())
		for _, id := range m.cache.IDs() {
			if snapshot.Contains(id) {
				ids = append(ids, id)
			}
		}
	}
	transitions := s.tracker.Apply(ids, res.PresentIDs, at)
	m.mu.Unlock()

	s.cycles.Add(1)
	s.mu.Lock()
	s.lastCycle = at
	s.mu.Unlock()

	stamp := "[" + at.Format("15:04:05") + "] "
	lines := append([]string(nil), res.Messages...)
	for _, tr := range transitions {
		switch tr.Kind {
		case EventAbsenceAlert, EventStillAbsent:
			lines = append(lines, stamp+m.opts.Catalog.Message(MsgAbsenceAlert, map[string]interface{}{
				"StudentID": tr.StudentID,
				"Count":     tr.ConsecutiveAbsences,
			}))
		case EventReturned:
			lines = append(lines, stamp+m.opts.Catalog.Message(MsgStudentReturned, map[string]interface{}{
				"StudentID": tr.StudentID,
				"Count":     tr.MissedChecks,
			}))
		}
	}

	log.WithFields(log.Fields{
		"source":   s.spec.ID,
		"outcome":  res.Outcome,
		"faces":    res.Faces,
		"present":  len(res.PresentIDs),
		"students": len(ids),
		"mode":     res.Mode.String(),
	}).Info("Verification cycle finished")

	if len(lines) > 0 {
		m.sink.EmitLog(s.spec.ID, lines)
	}
	for _, tr := range transitions {
		m.sink.EmitEvent(Event{
			Kind:                tr.Kind,
			SourceID:            s.spec.ID,
			StudentID:           tr.StudentID,
			Status:              tr.To.String(),
			ConsecutiveAbsences: tr.ConsecutiveAbsences,
			At:                  at,
		})
	}
	m.sink.EmitEvent(Event{
		Kind:         EventCycle,
		SourceID:     s.spec.ID,
		Outcome:      res.Outcome,
		PresentCount: len(res.PresentIDs),
		Faces:        res.Faces,
		At:           at,
	})

	for _, tr := range transitions {
		if tr.NotifyAbsence {
			m.notify(ctx, s.spec.ID, tr.StudentID, m.alerterSend(true))
		}
		if tr.NotifyReturn {
			m.notify(ctx, s.spec.ID, tr.StudentID, m.alerterSend(false))
		}
	}
}

func (m *Monitor) alerterSend(absence bool) func(context.Context, string) error {
	if m.alerter == nil {
		return nil
	}
	if absence {
		return m.alerter.SendAbsenceAlert
	}
	return m.alerter.SendReturnNotice
}

// notify ruft den Alerter auf. Fehler werden gemeldet, aber nie wiederholt
// und ändern den Anwesenheitszustand nicht.
func (m *Monitor) notify(ctx context.Context, sourceID, studentID string, send func(context.Context, string) error) {
	if send == nil {
		return
	}
	callCtx, cancel := context.WithTimeout(WithSource(ctx, sourceID), m.opts.AlertTimeout)
	defer cancel()

	if err := send(callCtx, studentID); err != nil {
		wrapped := fmt.Errorf("%w: %v", ErrNotificationDeliveryFailed, err)
		log.WithFields(log.Fields{"source": sourceID, "student": studentID}).WithError(wrapped).Warn("Notification not delivered")
		m.sink.EmitLog(sourceID, []string{m.opts.Catalog.Message(MsgNotificationFailed, map[string]interface{}{
			"StudentID": studentID,
			"Error":     err.Error(),
		})})
	}
}
