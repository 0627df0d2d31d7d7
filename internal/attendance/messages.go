package attendance

import (
	"bytes"
	"text/template"
)

// Nachrichten-IDs für menschenlesbare Logzeilen.
const (
	MsgPresenceConfirmed  = "attendance.presence_confirmed"
	MsgUnknownFace        = "attendance.unknown_face"
	MsgNoFace             = "attendance.no_face"
	MsgNoStudents         = "attendance.no_students"
	MsgAbsenceAlert       = "attendance.absence_alert"
	MsgStudentReturned    = "attendance.student_returned"
	MsgSourceUnavailable  = "attendance.source_unavailable"
	MsgRosterUnavailable  = "attendance.roster_unavailable"
	MsgCacheReloaded      = "attendance.cache_reloaded"
	MsgNotificationFailed = "attendance.notification_failed"
	MsgMonitoringStarted  = "attendance.monitoring_started"
	MsgMonitoringStopped  = "attendance.monitoring_stopped"
)

// Catalog übersetzt eine Nachrichten-ID mit Parametern in Text.
type Catalog interface {
	Message(id string, data map[string]interface{}) string
}

var englishTemplates = map[string]string{
	MsgPresenceConfirmed:  "Presence confirmed: student {{.StudentID}}",
	MsgUnknownFace:        "Unrecognized face detected.",
	MsgNoFace:             "No face detected in the frame.",
	MsgNoStudents:         "No students enrolled to verify.",
	MsgAbsenceAlert:       "ALERT: student {{.StudentID}} absent for {{.Count}} checks.",
	MsgStudentReturned:    "Student {{.StudentID}} is back after {{.Count}} missed checks.",
	MsgSourceUnavailable:  "Could not read video source {{.SourceID}}: {{.Error}}",
	MsgRosterUnavailable:  "Failed to load reference encodings: {{.Error}}",
	MsgCacheReloaded:      "Reference encodings reloaded ({{.Count}} students).",
	MsgNotificationFailed: "Notification for student {{.StudentID}} failed: {{.Error}}",
	MsgMonitoringStarted:  "Monitoring started for source {{.SourceID}}.",
	MsgMonitoringStopped:  "Monitoring stopped for source {{.SourceID}}.",
}

// EnglishCatalog ist der eingebaute Fallback-Katalog.
type EnglishCatalog struct {
	templates map[string]*template.Template
}

// NewEnglishCatalog parst die eingebauten Vorlagen.
func NewEnglishCatalog() *EnglishCatalog {
	c := &EnglishCatalog{templates: make(map[string]*template.Template, len(englishTemplates))}
	for id, text := range englishTemplates {
		c.templates[id] = template.Must(template.New(id).Parse(text))
	}
	return c
}

func (c *EnglishCatalog) Message(id string, data map[string]interface{}) string {
	tmpl, ok := c.templates[id]
	if !ok {
		return id
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return id
	}
	return buf.String()
}
