package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"classroom-attendance/internal/api/middleware"
	"classroom-attendance/internal/attendance"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// reloadTimeout begrenzt ein Neuladen, das vom Client unabhängig weiterläuft
const reloadTimeout = 30 * time.Second

// reloadContext löst das Neuladen vom Anfrage-Kontext, damit ein abgebrochener
// Client den Cache-Austausch nicht mitten im Lesen abbricht.
func reloadContext(c *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(c.Request.Context()), reloadTimeout)
}

type startRequest struct {
	SourceID string `json:"source_id"`
	Source   string `json:"source" binding:"required"`
}

type stopRequest struct {
	SourceID string `json:"source_id" binding:"required"`
}

// attendanceEntry ist ein Anwesenheitseintrag mit abgeleitetem Status
type attendanceEntry struct {
	attendance.Entry
	Status string `json:"status"`
}

// ListSessions gibt alle aktiven Sitzungen zurück
func (h *APIHandler) ListSessions(c *gin.Context) {
	sessions := h.monitor.Sessions()
	c.JSON(http.StatusOK, gin.H{
		"count":    len(sessions),
		"sessions": sessions,
	})
}

// StartMonitoring startet (oder wechselt) die Überwachung einer Quelle.
// source ist ein Geräteindex ("0") oder ein Dateipfad bzw. eine Stream-URL.
func (h *APIHandler) StartMonitoring(c *gin.Context) {
	var req startRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "api.error.invalid_request", err)
		return
	}
	req.Source = strings.TrimSpace(req.Source)
	if req.SourceID == "" {
		req.SourceID = req.Source
	}

	spec := attendance.SourceSpec{ID: req.SourceID, URI: req.Source}
	if err := h.monitor.Start(spec); err != nil {
		switch {
		case errors.Is(err, attendance.ErrMonitorClosed):
			respondError(c, http.StatusServiceUnavailable, "api.error.internal", err)
		case errors.Is(err, attendance.ErrSourceUnavailable):
			respondError(c, http.StatusBadRequest, "api.error.invalid_request", err)
		default:
			respondError(c, http.StatusInternalServerError, "api.error.internal", err)
		}
		return
	}

	log.Infof("Monitoring requested for source %s (%s)", spec.ID, spec.URI)
	c.JSON(http.StatusOK, gin.H{
		"source_id": spec.ID,
		"source":    spec.URI,
		"running":   true,
	})
}

// StopMonitoring beendet die Überwachung einer Quelle
func (h *APIHandler) StopMonitoring(c *gin.Context) {
	var req stopRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "api.error.invalid_request", err)
		return
	}

	if err := h.monitor.Stop(req.SourceID); err != nil {
		if errors.Is(err, attendance.ErrNotMonitoring) {
			respondError(c, http.StatusNotFound, "api.error.not_monitoring", err)
			return
		}
		respondError(c, http.StatusInternalServerError, "api.error.internal", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"source_id": req.SourceID,
		"message":   middleware.Translate(c, "api.monitoring.stopped", nil),
	})
}

// ReloadReferences lädt die Referenz-Deskriptoren neu
func (h *APIHandler) ReloadReferences(c *gin.Context) {
	ctx, cancel := reloadContext(c)
	defer cancel()
	if err := h.monitor.Reload(ctx); err != nil {
		if errors.Is(err, attendance.ErrRosterUnavailable) {
			respondError(c, http.StatusServiceUnavailable, "api.error.internal", err)
			return
		}
		respondError(c, http.StatusInternalServerError, "api.error.internal", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": middleware.Translate(c, "api.monitoring.reloaded", nil)})
}

// GetAttendance gibt den aktuellen Anwesenheitszustand einer Quelle zurück
func (h *APIHandler) GetAttendance(c *gin.Context) {
	sourceID := c.Param("source")
	entries, ok := h.monitor.Attendance(sourceID)
	if !ok {
		respondError(c, http.StatusNotFound, "api.error.not_monitoring", nil)
		return
	}

	out := make([]attendanceEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, attendanceEntry{Entry: e, Status: e.Status().String()})
	}
	c.JSON(http.StatusOK, gin.H{
		"source_id": sourceID,
		"entries":   out,
	})
}
