package opencv

import (
	"net/http"
	"sort"
	"strconv"
	"sync"
	"time"

	"classroom-attendance/internal/attendance"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// Snapshot ist das letzte Vorschaubild einer Quelle
type Snapshot struct {
	SourceID  string
	Timestamp time.Time
	ImageData []byte
	Frames    uint64 // empfangene Vorschaubilder seit Start
}

// SnapshotStore hält das jeweils neueste Vorschaubild pro Quelle im Speicher.
// Er implementiert attendance.Sink; Logzeilen und Ereignisse werden ignoriert.
type SnapshotStore struct {
	snapshots map[string]*Snapshot
	maxAge    time.Duration
	mutex     sync.RWMutex
}

// NewSnapshotStore erstellt einen Store. Bilder älter als maxAge gelten als veraltet.
func NewSnapshotStore(maxAge time.Duration) *SnapshotStore {
	if maxAge <= 0 {
		maxAge = time.Minute
	}
	return &SnapshotStore{
		snapshots: make(map[string]*Snapshot),
		maxAge:    maxAge,
	}
}

func (s *SnapshotStore) EmitLog(string, []string)    {}
func (s *SnapshotStore) EmitEvent(attendance.Event) {}

// EmitFrame ersetzt das Vorschaubild der Quelle
func (s *SnapshotStore) EmitFrame(sourceID string, jpeg []byte, at time.Time) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	snap, ok := s.snapshots[sourceID]
	if !ok {
		snap = &Snapshot{SourceID: sourceID}
		s.snapshots[sourceID] = snap
	}
	snap.Timestamp = at
	snap.ImageData = jpeg
	snap.Frames++
}

// Get gibt eine Kopie des neuesten Bildes einer Quelle zurück
func (s *SnapshotStore) Get(sourceID string) (Snapshot, bool) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	snap, ok := s.snapshots[sourceID]
	if !ok {
		return Snapshot{}, false
	}
	return *snap, true
}

// Stale meldet, ob das letzte Bild älter als maxAge ist
func (s *SnapshotStore) Stale(snap Snapshot, now time.Time) bool {
	return now.Sub(snap.Timestamp) > s.maxAge
}

// Forget entfernt das Bild einer Quelle (z.B. nach dem Stoppen)
func (s *SnapshotStore) Forget(sourceID string) {
	s.mutex.Lock()
	delete(s.snapshots, sourceID)
	s.mutex.Unlock()
}

// RegisterRoutes registriert die API-Routen für die Vorschaubilder
func (s *SnapshotStore) RegisterRoutes(router gin.IRouter) {
	router.GET("/snapshots", s.handleList)
	router.GET("/snapshots/:source", s.handleGet)
	log.Debug("Snapshot routes registered")
}

// handleList gibt die Metadaten aller Vorschaubilder zurück
func (s *SnapshotStore) handleList(c *gin.Context) {
	type snapshotMetadata struct {
		SourceID  string    `json:"source_id"`
		Timestamp time.Time `json:"timestamp"`
		Frames    uint64    `json:"frames"`
		Size      int       `json:"size"`
		Stale     bool      `json:"stale"`
		URL       string    `json:"url"`
	}

	now := time.Now()
	s.mutex.RLock()
	metadata := make([]snapshotMetadata, 0, len(s.snapshots))
	for id, snap := range s.snapshots {
		metadata = append(metadata, snapshotMetadata{
			SourceID:  id,
			Timestamp: snap.Timestamp,
			Frames:    snap.Frames,
			Size:      len(snap.ImageData),
			Stale:     s.Stale(*snap, now),
			URL:       "/api/snapshots/" + id,
		})
	}
	s.mutex.RUnlock()
	sort.Slice(metadata, func(i, j int) bool { return metadata[i].SourceID < metadata[j].SourceID })

	c.JSON(http.StatusOK, gin.H{
		"count":     len(metadata),
		"snapshots": metadata,
	})
}

// handleGet gibt das Vorschaubild einer Quelle als JPEG zurück
func (s *SnapshotStore) handleGet(c *gin.Context) {
	snap, ok := s.Get(c.Param("source"))
	if !ok || len(snap.ImageData) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "no snapshot for source"})
		return
	}

	c.Header("Cache-Control", "no-cache, no-store, must-revalidate")
	c.Header("Pragma", "no-cache")
	c.Header("Expires", "0")
	c.Header("X-Frame-Count", strconv.FormatUint(snap.Frames, 10))
	c.Data(http.StatusOK, "image/jpeg", snap.ImageData)
}
