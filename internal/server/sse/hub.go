package sse

import (
	"encoding/base64"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"classroom-attendance/internal/attendance"

	log "github.com/sirupsen/logrus"
)

// Event-Namen im SSE-Stream
const (
	EventLog        = "log"
	EventFrame      = "frame"
	EventAttendance = "attendance"
)

// Message ist ein einzelnes SSE-Ereignis
type Message struct {
	Event string
	Data  []byte
}

// Client repräsentiert einen einzelnen verbundenen SSE-Client
type Client chan Message

// LogData sind die Logzeilen eines Zyklus
type LogData struct {
	SourceID string   `json:"source_id"`
	Lines    []string `json:"lines"`
}

// FrameData ist ein Vorschaubild als Data-URI
type FrameData struct {
	SourceID  string    `json:"source_id"`
	Image     string    `json:"image"`
	Timestamp time.Time `json:"timestamp"`
}

// Hub verwaltet die Menge der aktiven Clients und sendet Broadcasts an sie.
// Er implementiert attendance.Sink.
type Hub struct {
	// Registrierte Clients
	clients map[Client]bool

	// Eingehende Nachrichten von der Anwendung
	broadcast chan Message

	// Registrierungsanfragen von Clients
	register chan Client

	// Abmeldeanfragen von Clients
	unregister chan Client

	done     chan struct{}
	stopOnce sync.Once

	clientCount atomic.Int32
	dropped     atomic.Uint64

	// Mutex zum Schutz des simultanen Zugriffs auf die Clients-Map
	mu sync.Mutex
}

// NewHub erstellt eine neue Hub-Instanz
func NewHub() *Hub {
	return &Hub{
		broadcast:  make(chan Message, 100), // Puffer für 100 Nachrichten
		register:   make(chan Client),
		unregister: make(chan Client),
		clients:    make(map[Client]bool),
		done:       make(chan struct{}),
	}
}

// Run startet die Verarbeitungsschleife des Hubs
// Dies sollte in einer separaten Goroutine ausgeführt werden
func (h *Hub) Run() {
	log.Info("SSE Hub started and running")

	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.clientCount.Store(int32(len(h.clients)))
			h.mu.Unlock()
			log.Infof("SSE client registered. Total clients: %d", h.clientCount.Load())

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client)
				h.clientCount.Store(int32(len(h.clients)))
				log.Infof("SSE client unregistered. Total clients: %d", h.clientCount.Load())
			}
			h.mu.Unlock()

		case message := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				select {
				case client <- message:
				default:
					// Langsame Clients verlieren einzelne Nachrichten, Vorschaubilder
					// werden ohnehin vom nächsten überholt
					h.dropped.Add(1)
				}
			}
			h.mu.Unlock()

		case <-h.done:
			h.mu.Lock()
			for client := range h.clients {
				delete(h.clients, client)
				close(client)
			}
			h.clientCount.Store(0)
			h.mu.Unlock()
			log.Info("SSE Hub stopped")
			return
		}
	}
}

// Stop beendet die Schleife und schließt alle Client-Kanäle
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.done) })
}

// Register registriert einen neuen Client am Hub.
// Nach Stop wird der Kanal sofort geschlossen.
func (h *Hub) Register(client Client) {
	select {
	case h.register <- client:
	case <-h.done:
		close(client)
	}
}

// Unregister meldet einen Client vom Hub ab
func (h *Hub) Unregister(client Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// Clients gibt die Anzahl verbundener Clients zurück
func (h *Hub) Clients() int {
	return int(h.clientCount.Load())
}

// Dropped gibt die Anzahl verworfener Nachrichten zurück
func (h *Hub) Dropped() uint64 {
	return h.dropped.Load()
}

// Broadcast sendet eine Nachricht an alle registrierten Clients
func (h *Hub) Broadcast(event string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Errorf("Failed to marshal %s data for SSE: %v", event, err)
		return
	}

	// Blockieren vermeiden, wenn der Broadcast-Kanal voll ist
	select {
	case h.broadcast <- Message{Event: event, Data: data}:
	default:
		h.dropped.Add(1)
		log.Debug("SSE broadcast channel full, message dropped")
	}
}

// EmitLog sendet die Logzeilen eines Zyklus
func (h *Hub) EmitLog(sourceID string, lines []string) {
	if h.Clients() == 0 {
		return
	}
	h.Broadcast(EventLog, LogData{SourceID: sourceID, Lines: lines})
}

// EmitFrame sendet ein Vorschaubild als Data-URI
func (h *Hub) EmitFrame(sourceID string, jpeg []byte, at time.Time) {
	if h.Clients() == 0 || len(jpeg) == 0 {
		return
	}
	h.Broadcast(EventFrame, FrameData{
		SourceID:  sourceID,
		Image:     FrameDataURI(jpeg),
		Timestamp: at,
	})
}

// EmitEvent sendet ein strukturiertes Anwesenheitsereignis
func (h *Hub) EmitEvent(ev attendance.Event) {
	if h.Clients() == 0 {
		return
	}
	h.Broadcast(EventAttendance, ev)
}

// FrameDataURI kodiert ein JPEG als Data-URI für <img src>
func FrameDataURI(jpeg []byte) string {
	return "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(jpeg)
}

var _ attendance.Sink = (*Hub)(nil)
