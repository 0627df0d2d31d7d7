package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"classroom-attendance/internal/attendance"
	"classroom-attendance/internal/core/models"
	"classroom-attendance/internal/db"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	conn, err := db.Open("file::memory:")
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := conn.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return NewSQLiteRepository(conn)
}

func saveStudent(t *testing.T, repo *SQLiteRepository, id, name string, d []float32) {
	t.Helper()
	s := &models.Student{ID: id, Name: name, GuardianEmail: name + "@example.org"}
	if d != nil {
		require.NoError(t, s.SetDescriptor(d))
	}
	require.NoError(t, repo.SaveStudent(context.Background(), s))
}

func TestRosterListsStudentsOrderedByID(t *testing.T) {
	repo := newTestRepo(t)
	saveStudent(t, repo, "b", "Bruno", []float32{0.3, 0.4})
	saveStudent(t, repo, "a", "Ana", []float32{0.1, 0.2})

	refs, err := NewRoster(repo).ListStudents(context.Background())
	require.NoError(t, err)
	require.Len(t, refs, 2)
	assert.Equal(t, "a", refs[0].ID)
	assert.Equal(t, attendance.Descriptor{0.1, 0.2}, refs[0].Descriptor)
	assert.Equal(t, "b", refs[1].ID)
}

func TestRosterMissingDescriptorFailsCacheBuild(t *testing.T) {
	repo := newTestRepo(t)
	saveStudent(t, repo, "a", "Ana", nil)

	refs, err := NewRoster(repo).ListStudents(context.Background())
	require.NoError(t, err)
	_, err = attendance.BuildReferenceCache(refs, 0)
	assert.Error(t, err)
}

func TestRosterGuardianContact(t *testing.T) {
	repo := newTestRepo(t)
	require.NoError(t, repo.SaveStudent(context.Background(), &models.Student{
		ID: "1", Name: "Ana", GuardianName: "Maria", GuardianEmail: "maria@example.org", GuardianPhone: "+55 11 5555",
	}))
	roster := NewRoster(repo)

	c, err := roster.GuardianContact(context.Background(), "1")
	require.NoError(t, err)
	assert.Equal(t, "Ana", c.StudentName)
	assert.Equal(t, "Maria", c.GuardianName)
	assert.Equal(t, "maria@example.org", c.Email)

	_, err = roster.GuardianContact(context.Background(), "404")
	assert.True(t, errors.Is(err, ErrStudentNotFound))
}

func TestDeleteStudentRemovesHistory(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	saveStudent(t, repo, "1", "Ana", []float32{0})
	require.NoError(t, repo.SaveAttendanceEvents(ctx, []models.AttendanceEvent{
		{StudentID: "1", SourceID: "cam", Kind: "present", Timestamp: time.Now()},
	}))

	require.NoError(t, repo.DeleteStudent(ctx, "1"))

	s, err := repo.GetStudentByID(ctx, "1")
	require.NoError(t, err)
	assert.Nil(t, s)
	_, total, err := repo.GetAttendanceEvents(ctx, "1", 10, 0)
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestAttendanceEventsNewestFirst(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	require.NoError(t, repo.SaveAttendanceEvents(ctx, []models.AttendanceEvent{
		{StudentID: "1", Kind: "present", Timestamp: base},
		{StudentID: "1", Kind: "absence_alert", Timestamp: base.Add(time.Minute)},
		{StudentID: "2", Kind: "present", Timestamp: base},
	}))

	events, total, err := repo.GetAttendanceEvents(ctx, "1", 1, 0)
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	require.Len(t, events, 1)
	assert.Equal(t, "absence_alert", events[0].Kind)
}

func TestGetStatistics(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	saveStudent(t, repo, "1", "Ana", []float32{0})
	require.NoError(t, repo.SaveStudent(ctx, &models.Student{ID: "2", Name: "Bia"}))
	require.NoError(t, repo.SaveAttendanceEvents(ctx, []models.AttendanceEvent{
		{StudentID: "1", Kind: string(attendance.EventAbsenceAlert), Timestamp: time.Now()},
	}))
	require.NoError(t, repo.SaveNotificationLog(ctx, &models.NotificationLog{StudentID: "1", Kind: models.NotificationAbsenceAlert, Status: models.NotificationFailed}))
	require.NoError(t, repo.SaveNotificationLog(ctx, &models.NotificationLog{StudentID: "1", Kind: models.NotificationAbsenceAlert, Status: models.NotificationSent}))

	stats, err := repo.GetStatistics(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, stats.TotalStudents)
	assert.EqualValues(t, 1, stats.StudentsWithContact)
	assert.EqualValues(t, 1, stats.AlertsToday)
	assert.EqualValues(t, 1, stats.NotificationsFailed)
}

func TestRecorderPersistsSelectedEvents(t *testing.T) {
	repo := newTestRepo(t)
	rec := NewRecorder(repo)
	rec.Start()

	at := time.Now()
	rec.EmitEvent(attendance.Event{Kind: attendance.EventPresent, SourceID: "cam", StudentID: "1", Status: "present", At: at})
	rec.EmitEvent(attendance.Event{Kind: attendance.EventAbsent, SourceID: "cam", StudentID: "1", At: at})
	rec.EmitEvent(attendance.Event{Kind: attendance.EventCycle, SourceID: "cam", At: at})
	rec.EmitEvent(attendance.Event{Kind: attendance.EventAbsenceAlert, SourceID: "cam", StudentID: "1", ConsecutiveAbsences: 2, At: at})
	rec.Stop()

	events, total, err := repo.GetAttendanceEvents(context.Background(), "1", 10, 0)
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	kinds := []string{events[0].Kind, events[1].Kind}
	assert.ElementsMatch(t, []string{"present", "absence_alert"}, kinds)
	assert.Equal(t, "cam", events[0].SourceID)
	assert.Zero(t, rec.Dropped())
}
