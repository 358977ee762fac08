package service

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/uclouvain/osis-score-encoding/internal/models"
)

type sessionExamRepository interface {
	CurrentAt(ctx context.Context, at time.Time) (*models.SessionExam, error)
	NearestBefore(ctx context.Context, at time.Time) (*models.SessionExam, error)
	NearestAfter(ctx context.Context, at time.Time) (*models.SessionExam, error)
	FindByNumberAndYear(ctx context.Context, number, academicYear int) (*models.SessionExam, error)
	ListByYear(ctx context.Context, academicYear int) ([]models.SessionExam, error)
}

// CalendarService resolves the session-exam calendar. Every component
// queries it instead of reading system time directly; the injected clock
// keeps the subsystem testable against a fixed now.
type CalendarService struct {
	repo   sessionExamRepository
	now    func() time.Time
	logger *zap.Logger
}

// NewCalendarService constructs the service.
func NewCalendarService(repo sessionExamRepository, now func() time.Time, logger *zap.Logger) *CalendarService {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CalendarService{repo: repo, now: now, logger: logger}
}

// Now exposes the injected clock to collaborating services.
func (s *CalendarService) Now() time.Time {
	return s.now()
}

// CurrentSession returns the session whose window contains now, or nil
// when no encoding period is open.
func (s *CalendarService) CurrentSession(ctx context.Context) (*models.SessionExam, error) {
	session, err := s.repo.CurrentAt(ctx, s.now())
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return session, nil
}

// SessionWindowMessages enumerates the nearest past and future windows so
// callers can tell users when encoding closed or opens again. Messages are
// ordered by session number.
func (s *CalendarService) SessionWindowMessages(ctx context.Context) ([]models.SessionWindowMessage, error) {
	now := s.now()
	var messages []models.SessionWindowMessage

	past, err := s.repo.NearestBefore(ctx, now)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if past != nil {
		messages = append(messages, models.SessionWindowMessage{
			Kind:          models.SessionWindowClosedOn,
			SessionNumber: past.Number,
			Date:          past.WindowEnd,
		})
	}

	future, err := s.repo.NearestAfter(ctx, now)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if future != nil {
		messages = append(messages, models.SessionWindowMessage{
			Kind:          models.SessionWindowOpensOn,
			SessionNumber: future.Number,
			Date:          future.WindowStart,
		})
	}

	sort.SliceStable(messages, func(i, j int) bool {
		return messages[i].SessionNumber < messages[j].SessionNumber
	})
	return messages, nil
}

// YearSessions lists the encoding calendar of the current academic year
// ordered by session number. The list is empty when no calendar exists.
func (s *CalendarService) YearSessions(ctx context.Context) ([]models.SessionExam, error) {
	year, err := s.CurrentAcademicYear(ctx)
	if err != nil {
		return nil, err
	}
	if year == 0 {
		return []models.SessionExam{}, nil
	}
	return s.repo.ListByYear(ctx, year)
}

// Session fetches one numbered session of the current academic year, or
// nil when the calendar holds no such session.
func (s *CalendarService) Session(ctx context.Context, number int) (*models.SessionExam, error) {
	year, err := s.CurrentAcademicYear(ctx)
	if err != nil {
		return nil, err
	}
	if year == 0 {
		return nil, nil
	}
	session, err := s.repo.FindByNumberAndYear(ctx, number, year)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return session, nil
}

// CurrentAcademicYear derives the academic year to query against: the
// open session's year, falling back to the most recently closed one.
func (s *CalendarService) CurrentAcademicYear(ctx context.Context) (int, error) {
	session, err := s.CurrentSession(ctx)
	if err != nil {
		return 0, err
	}
	if session != nil {
		return session.AcademicYear, nil
	}
	past, err := s.repo.NearestBefore(ctx, s.now())
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, err
	}
	return past.AcademicYear, nil
}
