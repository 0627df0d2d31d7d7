package attendance

import (
	"sort"
	"time"
)

// AlertThreshold ist die Anzahl aufeinanderfolgender Fehlprüfungen, ab der ein Alarm ausgelöst wird.
const AlertThreshold = 2

// Status ist der aus dem Abwesenheitszähler abgeleitete Zustand eines Schülers.
type Status int

const (
	StatusPresent Status = iota
	StatusAbsentWarn
	StatusAbsentAlert
)

func (s Status) String() string {
	switch s {
	case StatusPresent:
		return "present"
	case StatusAbsentWarn:
		return "absent_warn"
	case StatusAbsentAlert:
		return "absent_alert"
	default:
		return "unknown"
	}
}

// StatusFor leitet den Zustand aus der Anzahl aufeinanderfolgender Abwesenheiten ab.
func StatusFor(consecutiveAbsences int) Status {
	switch {
	case consecutiveAbsences <= 0:
		return StatusPresent
	case consecutiveAbsences < AlertThreshold:
		return StatusAbsentWarn
	default:
		return StatusAbsentAlert
	}
}

// Entry ist der Anwesenheitseintrag eines überwachten Schülers.
type Entry struct {
	StudentID           string     `json:"student_id"`
	ConsecutiveAbsences int        `json:"consecutive_absences"`
	LastSeenAt          *time.Time `json:"last_seen_at,omitempty"`
	AlertEmailSent      bool       `json:"alert_email_sent"`
}

// Status gibt den aktuellen Zustand des Eintrags zurück.
func (e Entry) Status() Status {
	return StatusFor(e.ConsecutiveAbsences)
}

// EventKind beschreibt die Art eines Zustandsübergangs.
type EventKind string

const (
	EventPresent      EventKind = "present"
	EventAbsent       EventKind = "absent"
	EventAbsenceAlert EventKind = "absence_alert"
	EventStillAbsent  EventKind = "still_absent"
	EventReturned     EventKind = "returned"
	EventCycle        EventKind = "verification"
)

// Transition ist das Ergebnis der Auswertung eines Schülers in einem Prüfzyklus.
type Transition struct {
	StudentID           string
	Kind                EventKind
	From                Status
	To                  Status
	ConsecutiveAbsences int
	// Anzahl der verpassten Prüfungen vor der Rückkehr
	MissedChecks  int
	NotifyAbsence bool
	NotifyReturn  bool
}

// Tracker verwaltet die Anwesenheitseinträge einer Quelle.
// Nicht threadsicher, der Monitor schützt ihn mit seinem Mutex.
type Tracker struct {
	entries map[string]*Entry
}

// NewTracker erstellt einen leeren Tracker.
func NewTracker() *Tracker {
	return &Tracker{entries: make(map[string]*Entry)}
}

// Sync legt fehlende Einträge an und entfernt Einträge von Schülern, die nicht mehr im Cache sind.
func (t *Tracker) Sync(ids []string) {
	keep := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		keep[id] = struct{}{}
		if _, ok := t.entries[id]; !ok {
			t.entries[id] = &Entry{StudentID: id}
		}
	}
	for id := range t.entries {
		if _, ok := keep[id]; !ok {
			delete(t.entries, id)
		}
	}
}

// Apply wertet einen Prüfzyklus für alle übergebenen Schüler aus.
// Die Übergänge werden in der Reihenfolge von ids zurückgegeben.
func (t *Tracker) Apply(ids []string, present []string, now time.Time) []Transition {
	matched := make(map[string]struct{}, len(present))
	for _, id := range present {
		matched[id] = struct{}{}
	}

	transitions := make([]Transition, 0, len(ids))
	for _, id := range ids {
		e, ok := t.entries[id]
		if !ok {
			e = &Entry{StudentID: id}
			t.entries[id] = e
		}
		from := e.Status()
		tr := Transition{StudentID: id, From: from}

		if _, ok := matched[id]; ok {
			tr.MissedChecks = e.ConsecutiveAbsences
			tr.Kind = EventPresent
			if from == StatusAbsentAlert {
				tr.Kind = EventReturned
				tr.NotifyReturn = e.AlertEmailSent
			}
			seen := now
			e.ConsecutiveAbsences = 0
			e.AlertEmailSent = false
			e.LastSeenAt = &seen
		} else {
			e.ConsecutiveAbsences++
			switch {
			case e.ConsecutiveAbsences == AlertThreshold:
				tr.Kind = EventAbsenceAlert
				if !e.AlertEmailSent {
					tr.NotifyAbsence = true
					e.AlertEmailSent = true
				}
			case e.ConsecutiveAbsences > AlertThreshold:
				tr.Kind = EventStillAbsent
			default:
				tr.Kind = EventAbsent
			}
		}

		tr.To = e.Status()
		tr.ConsecutiveAbsences = e.ConsecutiveAbsences
		transitions = append(transitions, tr)
	}
	return transitions
}

// Entry gibt eine Kopie des Eintrags eines Schülers zurück.
func (t *Tracker) Entry(id string) (Entry, bool) {
	e, ok := t.entries[id]
	if !ok {
		return Entry{}, false
	}
	return copyEntry(e), true
}

// Snapshot gibt Kopien aller Einträge sortiert nach Schüler-ID zurück.
func (t *Tracker) Snapshot() []Entry {
	out := make([]Entry, 0, len(t.entries))
	for _, e := range t.entries {
		out = append(out, copyEntry(e))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StudentID < out[j].StudentID })
	return out
}

// Len gibt die Anzahl der Einträge zurück.
func (t *Tracker) Len() int {
	return len(t.entries)
}

func copyEntry(e *Entry) Entry {
	c := *e
	if e.LastSeenAt != nil {
		ts := *e.LastSeenAt
		c.LastSeenAt = &ts
	}
	return c
}
