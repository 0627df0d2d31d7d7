package repository

import (
	"context"
	"errors"
	"fmt"

	"classroom-attendance/internal/attendance"
)

// ErrStudentNotFound wird zurückgegeben, wenn ein Schüler nicht existiert
var ErrStudentNotFound = errors.New("student not found")

// Roster stellt die Schülerdaten der Datenbank als attendance.RosterStore bereit
type Roster struct {
	repo Repository
}

// NewRoster erstellt einen Roster auf Basis des Repositories
func NewRoster(repo Repository) *Roster {
	return &Roster{repo: repo}
}

// ListStudents liefert alle Schüler mit Deskriptor in stabiler Reihenfolge (nach ID).
// Ein nicht lesbarer Deskriptor lässt den gesamten Aufruf fehlschlagen.
func (r *Roster) ListStudents(ctx context.Context) ([]attendance.StudentReference, error) {
	students, err := r.repo.GetStudents(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list students: %w", err)
	}

	refs := make([]attendance.StudentReference, 0, len(students))
	for i := range students {
		d, err := students[i].DecodeDescriptor()
		if err != nil {
			return nil, err
		}
		refs = append(refs, attendance.StudentReference{
			ID:         students[i].ID,
			Descriptor: attendance.Descriptor(d),
		})
	}
	return refs, nil
}

// GuardianContact liefert die Kontaktdaten für Benachrichtigungen
func (r *Roster) GuardianContact(ctx context.Context, studentID string) (*attendance.GuardianContact, error) {
	s, err := r.repo.GetStudentByID(ctx, studentID)
	if err != nil {
		return nil, fmt.Errorf("failed to load student %s: %w", studentID, err)
	}
	if s == nil {
		return nil, fmt.Errorf("%w: %s", ErrStudentNotFound, studentID)
	}
	return &attendance.GuardianContact{
		StudentName:  s.Name,
		GuardianName: s.GuardianName,
		Email:        s.GuardianEmail,
		Phone:        s.GuardianPhone,
	}, nil
}
