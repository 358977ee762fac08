package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uclouvain/osis-score-encoding/internal/models"
)

type mockSessionExamRepo struct {
	current *models.SessionExam
	before  *models.SessionExam
	after   *models.SessionExam
}

func (m *mockSessionExamRepo) CurrentAt(ctx context.Context, at time.Time) (*models.SessionExam, error) {
	if m.current == nil {
		return nil, sql.ErrNoRows
	}
	return m.current, nil
}

func (m *mockSessionExamRepo) NearestBefore(ctx context.Context, at time.Time) (*models.SessionExam, error) {
	if m.before == nil {
		return nil, sql.ErrNoRows
	}
	return m.before, nil
}

func (m *mockSessionExamRepo) NearestAfter(ctx context.Context, at time.Time) (*models.SessionExam, error) {
	if m.after == nil {
		return nil, sql.ErrNoRows
	}
	return m.after, nil
}

func (m *mockSessionExamRepo) FindByNumberAndYear(ctx context.Context, number, academicYear int) (*models.SessionExam, error) {
	if m.current != nil && m.current.Number == number && m.current.AcademicYear == academicYear {
		return m.current, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockSessionExamRepo) ListByYear(ctx context.Context, academicYear int) ([]models.SessionExam, error) {
	var sessions []models.SessionExam
	for _, s := range []*models.SessionExam{m.before, m.current, m.after} {
		if s != nil && s.AcademicYear == academicYear {
			sessions = append(sessions, *s)
		}
	}
	return sessions, nil
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestCurrentSessionNilWhenClosed(t *testing.T) {
	svc := NewCalendarService(&mockSessionExamRepo{}, fixedClock(testNow), nil)

	session, err := svc.CurrentSession(context.Background())
	require.NoError(t, err)
	assert.Nil(t, session)
}

func TestCurrentSessionReturnsOpenWindow(t *testing.T) {
	repo := &mockSessionExamRepo{current: openSession()}
	svc := NewCalendarService(repo, fixedClock(testNow), nil)

	session, err := svc.CurrentSession(context.Background())
	require.NoError(t, err)
	require.NotNil(t, session)
	assert.Equal(t, 1, session.Number)
	assert.True(t, session.Contains(testNow))
}

func TestSessionWindowMessagesOrdered(t *testing.T) {
	repo := &mockSessionExamRepo{
		before: &models.SessionExam{Number: 2, AcademicYear: 2024, WindowEnd: testNow.AddDate(0, 0, -20)},
		after:  &models.SessionExam{Number: 1, AcademicYear: 2025, WindowStart: testNow.AddDate(0, 2, 0)},
	}
	svc := NewCalendarService(repo, fixedClock(testNow), nil)

	messages, err := svc.SessionWindowMessages(context.Background())
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, models.SessionWindowOpensOn, messages[0].Kind)
	assert.Equal(t, 1, messages[0].SessionNumber)
	assert.Equal(t, models.SessionWindowClosedOn, messages[1].Kind)
	assert.Equal(t, 2, messages[1].SessionNumber)
}

func TestCurrentAcademicYearFallsBackToPast(t *testing.T) {
	repo := &mockSessionExamRepo{
		before: &models.SessionExam{Number: 2, AcademicYear: 2023, WindowEnd: testNow.AddDate(0, 0, -20)},
	}
	svc := NewCalendarService(repo, fixedClock(testNow), nil)

	year, err := svc.CurrentAcademicYear(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2023, year)
}

func TestCurrentAcademicYearWithoutHistory(t *testing.T) {
	svc := NewCalendarService(&mockSessionExamRepo{}, fixedClock(testNow), nil)

	year, err := svc.CurrentAcademicYear(context.Background())
	require.NoError(t, err)
	assert.Zero(t, year)
}

func TestYearSessionsListsCurrentYearCalendar(t *testing.T) {
	repo := &mockSessionExamRepo{
		current: openSession(),
		after:   &models.SessionExam{Number: 2, AcademicYear: 2024, WindowStart: testNow.AddDate(0, 2, 0)},
	}
	svc := NewCalendarService(repo, fixedClock(testNow), nil)

	sessions, err := svc.YearSessions(context.Background())
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, 1, sessions[0].Number)
	assert.Equal(t, 2, sessions[1].Number)
}

func TestYearSessionsEmptyWithoutCalendar(t *testing.T) {
	svc := NewCalendarService(&mockSessionExamRepo{}, fixedClock(testNow), nil)

	sessions, err := svc.YearSessions(context.Background())
	require.NoError(t, err)
	assert.Empty(t, sessions)
}

func TestSessionLookupByNumber(t *testing.T) {
	repo := &mockSessionExamRepo{current: openSession()}
	svc := NewCalendarService(repo, fixedClock(testNow), nil)

	session, err := svc.Session(context.Background(), 1)
	require.NoError(t, err)
	require.NotNil(t, session)
	assert.Equal(t, 2024, session.AcademicYear)

	missing, err := svc.Session(context.Background(), 3)
	require.NoError(t, err)
	assert.Nil(t, missing)
}
