package attendance

import (
	"context"
	"time"
)

// Event ist ein strukturiertes Ereignis für Beobachter (UI, MQTT, Protokoll).
type Event struct {
	Kind                EventKind `json:"kind"`
	SourceID            string    `json:"source_id"`
	StudentID           string    `json:"student_id,omitempty"`
	Status              string    `json:"status,omitempty"`
	ConsecutiveAbsences int       `json:"consecutive_absences"`
	Outcome             Outcome   `json:"outcome,omitempty"`
	PresentCount        int       `json:"present_count,omitempty"`
	Faces               int       `json:"faces,omitempty"`
	At                  time.Time `json:"at"`
}

// MultiSink verteilt alle Ausgaben an mehrere Sinks.
type MultiSink []Sink

func (ms MultiSink) EmitLog(sourceID string, lines []string) {
	for _, s := range ms {
		s.EmitLog(sourceID, lines)
	}
}

func (ms MultiSink) EmitFrame(sourceID string, jpeg []byte, at time.Time) {
	for _, s := range ms {
		s.EmitFrame(sourceID, jpeg, at)
	}
}

func (ms MultiSink) EmitEvent(ev Event) {
	for _, s := range ms {
		s.EmitEvent(ev)
	}
}

// NopSink verwirft alles.
type NopSink struct{}

func (NopSink) EmitLog(string, []string)            {}
func (NopSink) EmitFrame(string, []byte, time.Time) {}
func (NopSink) EmitEvent(Event)                     {}

type sourceKey struct{}

// WithSource hängt die ID der Quelle an den Kontext, damit Alerter sie protokollieren können.
func WithSource(ctx context.Context, sourceID string) context.Context {
	return context.WithValue(ctx, sourceKey{}, sourceID)
}

// SourceFromContext liest die mit WithSource gesetzte Quelle.
func SourceFromContext(ctx context.Context) string {
	id, _ := ctx.Value(sourceKey{}).(string)
	return id
}
