package homeassistant

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"classroom-attendance/internal/attendance"

	log "github.com/sirupsen/logrus"
)

const defaultQueueSize = 256

// StudentState ist der retained Zustand eines Schülers, den Home Assistant anzeigt
type StudentState struct {
	StudentID           string    `json:"student_id"`
	Status              string    `json:"status"`
	SourceID            string    `json:"source_id"`
	ConsecutiveAbsences int       `json:"consecutive_absences"`
	Alert               bool      `json:"alert"`
	Timestamp           time.Time `json:"timestamp"`
}

// CycleSummary wird nach jedem Verifikationszyklus pro Quelle veröffentlicht
type CycleSummary struct {
	SourceID     string    `json:"source_id"`
	Outcome      string    `json:"outcome"`
	PresentCount int       `json:"present_count"`
	Faces        int       `json:"faces"`
	Timestamp    time.Time `json:"timestamp"`
}

type message struct {
	topic   string
	payload interface{}
	retain  bool
}

// Publisher veröffentlicht Logzeilen und Ereignisse des Monitors via MQTT.
// Er implementiert attendance.Sink und puffert Nachrichten, damit die
// Verifikationsschleife nie auf den Broker wartet.
type Publisher struct {
	client    MessagePublisher
	baseTopic string
	queue     chan message
	done      chan struct{}
	wg        sync.WaitGroup
	stopOnce  sync.Once
	dropped   atomic.Uint64
}

// NewPublisher erstellt einen neuen MQTT-Publisher für Anwesenheitsereignisse
func NewPublisher(client MessagePublisher, baseTopic string, queueSize int) *Publisher {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	return &Publisher{
		client:    client,
		baseTopic: baseTopic,
		queue:     make(chan message, queueSize),
		done:      make(chan struct{}),
	}
}

// Start startet die Sende-Goroutine
func (p *Publisher) Start() {
	p.wg.Add(1)
	go p.run()
}

// Stop beendet die Sende-Goroutine und verwirft noch nicht gesendete Nachrichten
func (p *Publisher) Stop() {
	p.stopOnce.Do(func() {
		close(p.done)
		p.wg.Wait()
	})
}

// Dropped gibt die Anzahl verworfener Nachrichten zurück
func (p *Publisher) Dropped() uint64 {
	return p.dropped.Load()
}

func (p *Publisher) run() {
	defer p.wg.Done()
	for {
		select {
		case <-p.done:
			return
		case msg := <-p.queue:
			if !p.client.IsConnected() {
				p.dropped.Add(1)
				continue
			}
			if err := p.client.PublishMessage(msg.topic, msg.payload, msg.retain); err != nil {
				log.Errorf("Failed to publish to %s: %v", msg.topic, err)
			}
		}
	}
}

func (p *Publisher) enqueue(topic string, payload interface{}, retain bool) {
	select {
	case p.queue <- message{topic: topic, payload: payload, retain: retain}:
	default:
		if p.dropped.Add(1)%100 == 1 {
			log.Warnf("MQTT publish queue full, dropping message for %s", topic)
		}
	}
}

// EmitLog veröffentlicht die Logzeilen eines Zyklus als einen Block
func (p *Publisher) EmitLog(sourceID string, lines []string) {
	if len(lines) == 0 {
		return
	}
	p.enqueue(fmt.Sprintf("%s/%s/log", p.baseTopic, NormalizeID(sourceID)), strings.Join(lines, "\n"), false)
}

// EmitFrame wird ignoriert; Vorschaubilder laufen über SSE und die Snapshot-API.
func (p *Publisher) EmitFrame(string, []byte, time.Time) {}

// EmitEvent veröffentlicht ein Ereignis und aktualisiert den Schülerzustand
func (p *Publisher) EmitEvent(ev attendance.Event) {
	source := NormalizeID(ev.SourceID)

	if ev.Kind == attendance.EventCycle {
		p.enqueue(fmt.Sprintf("%s/%s/cycle", p.baseTopic, source), CycleSummary{
			SourceID:     ev.SourceID,
			Outcome:      string(ev.Outcome),
			PresentCount: ev.PresentCount,
			Faces:        ev.Faces,
			Timestamp:    ev.At,
		}, false)
		// Anzahl anwesender Schüler pro Quelle, analog zum Personenzähler
		p.enqueue(fmt.Sprintf("%s/%s/present", p.baseTopic, source), ev.PresentCount, true)
		return
	}

	p.enqueue(fmt.Sprintf("%s/%s/events", p.baseTopic, source), ev, false)
	if ev.StudentID == "" {
		return
	}
	p.enqueue(StudentStateTopic(p.baseTopic, ev.StudentID), StudentState{
		StudentID:           ev.StudentID,
		Status:              ev.Status,
		SourceID:            ev.SourceID,
		ConsecutiveAbsences: ev.ConsecutiveAbsences,
		Alert:               ev.Status == attendance.StatusAbsentAlert.String(),
		Timestamp:           ev.At,
	}, true)
}

var _ attendance.Sink = (*Publisher)(nil)
