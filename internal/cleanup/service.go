package cleanup

import (
	"fmt"
	"time"

	"classroom-attendance/internal/core/models"
	"classroom-attendance/internal/util/timezone"

	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Result fasst einen Bereinigungslauf zusammen
type Result struct {
	Cutoff        time.Time `json:"cutoff"`
	Events        int64     `json:"events"`
	Notifications int64     `json:"notifications"`
}

// Service handles the automatic cleanup of old attendance and notification logs.
type Service struct {
	db            *gorm.DB
	retentionDays int
	checkInterval time.Duration
	stopChan      chan struct{} // Channel to signal stopping the background routine
	now           func() time.Time
}

// NewService creates a new cleanup service. It returns nil when cleanup is disabled.
func NewService(db *gorm.DB, retentionDays int, checkInterval time.Duration) *Service {
	if retentionDays <= 0 {
		log.Info("Automatic cleanup disabled (retention_days <= 0).")
		return nil
	}
	if db == nil {
		log.Error("Cannot initialize cleanup service: database connection is nil")
		return nil
	}
	if checkInterval <= 0 {
		checkInterval = 24 * time.Hour
	}
	log.Infof("Initializing cleanup service: RetentionDays=%d, CheckInterval=%s", retentionDays, checkInterval)
	return &Service{
		db:            db,
		retentionDays: retentionDays,
		checkInterval: checkInterval,
		stopChan:      make(chan struct{}),
		now:           timezone.Now,
	}
}

// StartBackgroundCleanup starts a goroutine that periodically runs the cleanup cycle.
func (s *Service) StartBackgroundCleanup() {
	if s == nil {
		return // cleanup disabled
	}
	log.Info("Starting background cleanup routine...")

	go func() {
		ticker := time.NewTicker(s.checkInterval)
		defer ticker.Stop()

		// Run cleanup once immediately on start
		if _, err := s.RunCleanupCycle(); err != nil {
			log.Errorf("Cleanup: initial cycle failed: %v", err)
		}

		for {
			select {
			case <-ticker.C:
				if _, err := s.RunCleanupCycle(); err != nil {
					log.Errorf("Cleanup: scheduled cycle failed: %v", err)
				}
			case <-s.stopChan:
				log.Info("Stopping background cleanup routine.")
				return
			}
		}
	}()
}

// StopBackgroundCleanup signals the background cleanup routine to stop.
func (s *Service) StopBackgroundCleanup() {
	if s == nil || s.stopChan == nil {
		return
	}
	select {
	case <-s.stopChan:
		// Already closed
	default:
		close(s.stopChan)
	}
}

// RunCleanupCycle deletes attendance events and notification logs older than the retention period.
func (s *Service) RunCleanupCycle() (Result, error) {
	if s == nil || s.retentionDays <= 0 {
		return Result{}, nil
	}

	res := Result{Cutoff: s.now().AddDate(0, 0, -s.retentionDays)}
	log.Infof("Cleanup: Deleting records older than %s", res.Cutoff.Format(time.RFC3339))

	err := s.db.Transaction(func(tx *gorm.DB) error {
		events := tx.Where("timestamp < ?", res.Cutoff).Delete(&models.AttendanceEvent{})
		if events.Error != nil {
			return fmt.Errorf("failed to delete attendance events: %w", events.Error)
		}
		res.Events = events.RowsAffected

		notifications := tx.Where("created_at < ?", res.Cutoff).Delete(&models.NotificationLog{})
		if notifications.Error != nil {
			return fmt.Errorf("failed to delete notification logs: %w", notifications.Error)
		}
		res.Notifications = notifications.RowsAffected
		return nil
	})
	if err != nil {
		return Result{Cutoff: res.Cutoff}, err
	}

	log.Infof("Cleanup cycle finished. Deleted events: %d, notifications: %d", res.Events, res.Notifications)
	return res, nil
}
