package models

import (
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/datatypes"
)

// Student repräsentiert einen eingeschriebenen Schüler mit Referenz-Deskriptor
type Student struct {
	ID            string         `gorm:"primaryKey;size:64" json:"id"`
	Name          string         `gorm:"index;not null" json:"name"`
	Descriptor    datatypes.JSON `gorm:"type:json" json:"-"` // JSON-Array mit float32-Werten
	GuardianName  string         `json:"guardian_name"`
	GuardianEmail string         `gorm:"index" json:"guardian_email"`
	GuardianPhone string         `json:"guardian_phone"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// SetDescriptor speichert den Deskriptor als JSON
func (s *Student) SetDescriptor(d []float32) error {
	raw, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("failed to encode descriptor: %w", err)
	}
	s.Descriptor = datatypes.JSON(raw)
	return nil
}

// DecodeDescriptor liest den gespeicherten Deskriptor. Ein fehlender Deskriptor
// ergibt nil ohne Fehler.
func (s *Student) DecodeDescriptor() ([]float32, error) {
	if len(s.Descriptor) == 0 || string(s.Descriptor) == "null" {
		return nil, nil
	}
	var d []float32
	if err := json.Unmarshal(s.Descriptor, &d); err != nil {
		return nil, fmt.Errorf("student %s: invalid descriptor: %w", s.ID, err)
	}
	return d, nil
}

// AttendanceEvent ist ein Eintrag im Anwesenheitsprotokoll
// (Anwesenheitsbestätigung, Alarm, Rückkehr)
type AttendanceEvent struct {
	ID                  uint           `gorm:"primaryKey" json:"id"`
	StudentID           string         `gorm:"index;size:64;not null" json:"student_id"`
	SourceID            string         `gorm:"index" json:"source_id"` // Ort bzw. Kamera
	Kind                string         `gorm:"index;not null" json:"kind"`
	Status              string         `json:"status"`
	ConsecutiveAbsences int            `json:"consecutive_absences"`
	Details             datatypes.JSON `gorm:"type:json;null" json:"details,omitempty"`
	Timestamp           time.Time      `gorm:"index" json:"timestamp"`
}

// Statistics fasst den Datenbestand für die Systemübersicht zusammen
type Statistics struct {
	TotalStudents       int64     `json:"total_students"`
	StudentsWithContact int64     `json:"students_with_contact"`
	TotalEvents         int64     `json:"total_events"`
	AlertsToday         int64     `json:"alerts_today"`
	NotificationsFailed int64     `json:"notifications_failed"`
	LatestEvent         time.Time `json:"latest_event"`
}
