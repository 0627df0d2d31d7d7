package models

import (
	"time"
)

// NotificationLog protokolliert jeden Zustellversuch einer Benachrichtigung.
// Fehlgeschlagene Zustellungen werden nicht automatisch wiederholt.
type NotificationLog struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	StudentID string    `gorm:"index;size:64;not null" json:"student_id"`
	SourceID  string    `gorm:"index" json:"source_id,omitempty"`
	Kind      string    `gorm:"index;not null" json:"kind"` // "absence_alert", "return_notice"
	Recipient string    `json:"recipient,omitempty"`
	Status    string    `gorm:"index;not null" json:"status"`
	LastError string    `json:"last_error,omitempty"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
}

// Benachrichtigungsarten
const (
	NotificationAbsenceAlert = "absence_alert"
	NotificationReturnNotice = "return_notice"
)

// Zustellstatus
const (
	NotificationSent    = "sent"
	NotificationFailed  = "failed"
	NotificationDropped = "dropped" // Warteschlange voll
)
