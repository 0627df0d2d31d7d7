package handlers

import (
	"context"
	"net/http"

	"classroom-attendance/internal/api/middleware"
	"classroom-attendance/internal/attendance"
	"classroom-attendance/internal/db/repository"
	"classroom-attendance/internal/utils"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// MonitorService ist der Teil des Monitors, den die API steuert
type MonitorService interface {
	Start(spec attendance.SourceSpec) error
	Stop(sourceID string) error
	Sessions() []attendance.SessionInfo
	Attendance(sourceID string) ([]attendance.Entry, bool)
	Reload(ctx context.Context) error
}

// DescriptorExtractor berechnet den Referenz-Deskriptor aus einem Foto
type DescriptorExtractor interface {
	DescriptorFromImage(ctx context.Context, data []byte) (attendance.Descriptor, error)
}

// EmailStatus beschreibt die E-Mail-Konfiguration
type EmailStatus interface {
	IsConfigured() bool
	Status() map[string]interface{}
}

// Camera ist ein gefundenes Aufnahmegerät
type Camera struct {
	Index  int `json:"index"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Deps bündelt die Abhängigkeiten der API. Optionale Felder dürfen nil sein.
type Deps struct {
	Repo           repository.Repository
	Monitor        MonitorService
	Extractor      DescriptorExtractor
	Email          EmailStatus
	Cameras        func() []Camera
	Stats          func() *utils.SystemStats
	DescriptorSize int
}

// APIHandler behandelt API-Anfragen für das System
type APIHandler struct {
	repo           repository.Repository
	monitor        MonitorService
	extractor      DescriptorExtractor
	email          EmailStatus
	cameras        func() []Camera
	stats          func() *utils.SystemStats
	descriptorSize int
}

// NewAPIHandler erstellt einen neuen API-Handler
func NewAPIHandler(deps Deps) *APIHandler {
	return &APIHandler{
		repo:           deps.Repo,
		monitor:        deps.Monitor,
		extractor:      deps.Extractor,
		email:          deps.Email,
		cameras:        deps.Cameras,
		stats:          deps.Stats,
		descriptorSize: deps.DescriptorSize,
	}
}

// RegisterRoutes registriert alle API-Routen
func (h *APIHandler) RegisterRoutes(router *gin.RouterGroup) {
	// Überwachung
	router.GET("/monitoring", h.ListSessions)
	router.POST("/monitoring/start", h.StartMonitoring)
	router.POST("/monitoring/stop", h.StopMonitoring)
	router.POST("/monitoring/reload", h.ReloadReferences)
	router.GET("/monitoring/:source/attendance", h.GetAttendance)

	// Schüler
	router.GET("/students", h.ListStudents)
	router.POST("/students", h.CreateStudent)
	router.GET("/students/:id", h.GetStudent)
	router.PUT("/students/:id", h.UpdateStudent)
	router.DELETE("/students/:id", h.DeleteStudent)
	router.GET("/students/:id/attendance", h.GetStudentAttendance)

	// Protokolle
	router.GET("/notifications", h.ListNotifications)
	router.GET("/statistics", h.GetStatistics)

	// System
	router.GET("/cameras", h.ListCameras)
	router.GET("/email/status", h.GetEmailStatus)
	router.GET("/system/stats", h.GetSystemStats)
	router.POST("/system/restart", h.RestartContainer)
}

// respondError schreibt eine übersetzte Fehlermeldung. Die Ursache wird nur protokolliert.
func respondError(c *gin.Context, status int, msgID string, cause error) {
	if cause != nil {
		entry := log.WithField("path", c.FullPath()).WithError(cause)
		if status >= http.StatusInternalServerError {
			entry.Error("API request failed")
		} else {
			entry.Debug("API request rejected")
		}
	}
	body := gin.H{"error": middleware.Translate(c, msgID, nil)}
	if cause != nil && status < http.StatusInternalServerError {
		body["details"] = cause.Error()
	}
	c.JSON(status, body)
}
