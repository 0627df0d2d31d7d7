package handlers

import (
	"io"
	"net/http"
	"strconv"

	"classroom-attendance/internal/server/sse"

	"github.com/gin-gonic/gin"
)

// EventHandler stellt den SSE-Stream für Logzeilen, Vorschaubilder und Ereignisse bereit
type EventHandler struct {
	hub *sse.Hub
}

// NewEventHandler erstellt einen neuen Event-Handler
func NewEventHandler(hub *sse.Hub) *EventHandler {
	return &EventHandler{hub: hub}
}

// RegisterRoutes registriert den SSE-Endpunkt
func (h *EventHandler) RegisterRoutes(router *gin.RouterGroup) {
	router.GET("/events", h.handleSSE)
}

// handleSSE behandelt SSE-Verbindungen für Echtzeit-Updates
func (h *EventHandler) handleSSE(c *gin.Context) {
	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	// Puffer für 32 Nachrichten; Vorschaubilder kommen mit bis zu 15 fps
	client := make(sse.Client, 32)
	h.hub.Register(client)
	defer h.hub.Unregister(client)

	done := c.Request.Context().Done()
	c.Stream(func(w io.Writer) bool {
		select {
		case msg, ok := <-client:
			if !ok {
				return false // Kanal geschlossen, Stream beenden
			}
			c.SSEvent(msg.Event, string(msg.Data))
			return true
		case <-done:
			return false
		}
	})
}

// ListNotifications gibt die letzten Zustellversuche zurück
func (h *APIHandler) ListNotifications(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	if limit < 1 || limit > 1000 {
		limit = 100
	}
	logs, err := h.repo.GetNotificationLogs(c.Request.Context(), limit)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "api.error.internal", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"count":         len(logs),
		"notifications": logs,
	})
}

// GetStatistics gibt Statistiken über Schüler und Protokolle zurück
func (h *APIHandler) GetStatistics(c *gin.Context) {
	stats, err := h.repo.GetStatistics(c.Request.Context())
	if err != nil {
		respondError(c, http.StatusInternalServerError, "api.error.internal", err)
		return
	}
	c.JSON(http.StatusOK, stats)
}
