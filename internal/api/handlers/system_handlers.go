package handlers

import (
	"net/http"
	"os"
	"syscall"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// ListCameras prüft die lokalen Geräteindizes und listet die verfügbaren Kameras
func (h *APIHandler) ListCameras(c *gin.Context) {
	if h.cameras == nil {
		c.JSON(http.StatusOK, gin.H{"count": 0, "cameras": []Camera{}})
		return
	}
	cameras := h.cameras()
	if cameras == nil {
		cameras = []Camera{}
	}
	c.JSON(http.StatusOK, gin.H{
		"count":   len(cameras),
		"cameras": cameras,
	})
}

// GetEmailStatus meldet, ob E-Mail-Benachrichtigungen konfiguriert sind
func (h *APIHandler) GetEmailStatus(c *gin.Context) {
	if h.email == nil {
		c.JSON(http.StatusOK, gin.H{"configured": false})
		return
	}
	c.JSON(http.StatusOK, h.email.Status())
}

// GetSystemStats gibt System- und Anwendungsstatistiken zurück
func (h *APIHandler) GetSystemStats(c *gin.Context) {
	if h.stats == nil {
		respondError(c, http.StatusServiceUnavailable, "api.error.internal", nil)
		return
	}
	c.JSON(http.StatusOK, h.stats())
}

// RestartContainer beendet den Prozess geordnet; der Container-Supervisor startet ihn neu
func (h *APIHandler) RestartContainer(c *gin.Context) {
	// Antwort an den Client senden, bevor der Neustart beginnt
	c.JSON(http.StatusAccepted, gin.H{
		"success": true,
		"message": "restarting",
	})
	if flusher, ok := c.Writer.(http.Flusher); ok {
		flusher.Flush()
	}

	go func() {
		log.Info("Restart requested via API, sending SIGTERM to self")
		proc, err := os.FindProcess(os.Getpid())
		if err != nil {
			log.Errorf("Failed to find own process: %v", err)
			return
		}
		if err := proc.Signal(syscall.SIGTERM); err != nil {
			log.Errorf("Failed to send SIGTERM: %v", err)
		}
	}()
}
