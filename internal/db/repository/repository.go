package repository

import (
	"context"
	"errors"
	"time"

	"classroom-attendance/internal/attendance"
	"classroom-attendance/internal/core/models"

	"gorm.io/gorm"
)

// Repository definiert die Schnittstelle für die Datenbank-Operationen
type Repository interface {
	// Schüler
	GetStudentByID(ctx context.Context, id string) (*models.Student, error)
	GetStudents(ctx context.Context) ([]models.Student, error)
	SaveStudent(ctx context.Context, student *models.Student) error
	DeleteStudent(ctx context.Context, id string) error

	// Anwesenheitsprotokoll
	SaveAttendanceEvents(ctx context.Context, events []models.AttendanceEvent) error
	GetAttendanceEvents(ctx context.Context, studentID string, limit, offset int) ([]models.AttendanceEvent, int64, error)

	// Benachrichtigungsprotokoll
	SaveNotificationLog(ctx context.Context, entry *models.NotificationLog) error
	GetNotificationLogs(ctx context.Context, limit int) ([]models.NotificationLog, error)

	// Statistik
	GetStatistics(ctx context.Context) (models.Statistics, error)
}

// SQLiteRepository implementiert die Repository-Schnittstelle für SQLite
type SQLiteRepository struct {
	db *gorm.DB
}

// NewSQLiteRepository erstellt eine neue SQLite-Repository-Instanz
func NewSQLiteRepository(db *gorm.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Schüler

// GetStudentByID holt einen Schüler anhand seiner ID. Nicht gefunden ergibt nil, nil.
func (r *SQLiteRepository) GetStudentByID(ctx context.Context, id string) (*models.Student, error) {
	var student models.Student
	result := r.db.WithContext(ctx).First(&student, "id = ?", id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, result.Error
	}
	return &student, nil
}

// GetStudents holt alle Schüler, sortiert nach ID
func (r *SQLiteRepository) GetStudents(ctx context.Context) ([]models.Student, error) {
	var students []models.Student
	if err := r.db.WithContext(ctx).Order("id ASC").Find(&students).Error; err != nil {
		return nil, err
	}
	return students, nil
}

// SaveStudent legt einen Schüler an oder aktualisiert ihn
func (r *SQLiteRepository) SaveStudent(ctx context.Context, student *models.Student) error {
	return r.db.WithContext(ctx).Save(student).Error
}

// DeleteStudent löscht einen Schüler samt Protokolleinträgen
func (r *SQLiteRepository) DeleteStudent(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("student_id = ?", id).Delete(&models.AttendanceEvent{}).Error; err != nil {
			return err
		}
		if err := tx.Where("student_id = ?", id).Delete(&models.NotificationLog{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Student{}, "id = ?", id).Error
	})
}

// Anwesenheitsprotokoll

// SaveAttendanceEvents speichert mehrere Einträge in einem Batch
func (r *SQLiteRepository) SaveAttendanceEvents(ctx context.Context, events []models.AttendanceEvent) error {
	if len(events) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).CreateInBatches(events, 100).Error
}

// GetAttendanceEvents holt das Protokoll eines Schülers mit Pagination, neueste zuerst
func (r *SQLiteRepository) GetAttendanceEvents(ctx context.Context, studentID string, limit, offset int) ([]models.AttendanceEvent, int64, error) {
	var events []models.AttendanceEvent
	var total int64

	db := r.db.WithContext(ctx)
	if err := db.Model(&models.AttendanceEvent{}).Where("student_id = ?", studentID).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	result := db.Where("student_id = ?", studentID).
		Order("timestamp DESC").Order("id DESC").
		Limit(limit).Offset(offset).
		Find(&events)
	if result.Error != nil {
		return nil, 0, result.Error
	}
	return events, total, nil
}

// Benachrichtigungsprotokoll

// SaveNotificationLog speichert einen Zustellversuch
func (r *SQLiteRepository) SaveNotificationLog(ctx context.Context, entry *models.NotificationLog) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

// GetNotificationLogs holt die letzten Zustellversuche
func (r *SQLiteRepository) GetNotificationLogs(ctx context.Context, limit int) ([]models.NotificationLog, error) {
	var logs []models.NotificationLog
	if err := r.db.WithContext(ctx).Order("created_at DESC").Order("id DESC").Limit(limit).Find(&logs).Error; err != nil {
		return nil, err
	}
	return logs, nil
}

// Statistik

// GetStatistics gibt Statistiken über die gespeicherten Daten zurück
func (r *SQLiteRepository) GetStatistics(ctx context.Context) (models.Statistics, error) {
	var stats models.Statistics
	db := r.db.WithContext(ctx)

	if err := db.Model(&models.Student{}).Count(&stats.TotalStudents).Error; err != nil {
		return stats, err
	}

	if err := db.Model(&models.Student{}).
		Where("guardian_email <> ''").
		Count(&stats.StudentsWithContact).Error; err != nil {
		return stats, err
	}

	if err := db.Model(&models.AttendanceEvent{}).Count(&stats.TotalEvents).Error; err != nil {
		return stats, err
	}

	now := time.Now()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	if err := db.Model(&models.AttendanceEvent{}).
		Where("kind = ? AND timestamp >= ?", string(attendance.EventAbsenceAlert), midnight).
		Count(&stats.AlertsToday).Error; err != nil {
		return stats, err
	}

	if err := db.Model(&models.NotificationLog{}).
		Where("status <> ?", models.NotificationSent).
		Count(&stats.NotificationsFailed).Error; err != nil {
		return stats, err
	}

	// Neuester Protokolleintrag
	var latest models.AttendanceEvent
	if err := db.Order("timestamp DESC").First(&latest).Error; err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return stats, err
		}
	} else {
		stats.LatestEvent = latest.Timestamp
	}

	return stats, nil
}
