package handler

import (
	"bytes"
	"context"
	"database/sql"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	internalmiddleware "github.com/uclouvain/osis-score-encoding/internal/middleware"
	"github.com/uclouvain/osis-score-encoding/internal/models"
	"github.com/uclouvain/osis-score-encoding/internal/service"
)

var routesNow = time.Date(2025, 6, 10, 9, 0, 0, 0, time.UTC)

type routesSessionRepo struct{}

func (routesSessionRepo) CurrentAt(ctx context.Context, at time.Time) (*models.SessionExam, error) {
	return &models.SessionExam{
		ID:           "sess-1",
		Number:       1,
		AcademicYear: 2024,
		WindowStart:  routesNow.AddDate(0, 0, -5),
		WindowEnd:    routesNow.AddDate(0, 0, 10),
	}, nil
}

func (routesSessionRepo) NearestBefore(ctx context.Context, at time.Time) (*models.SessionExam, error) {
	return nil, nil
}

func (routesSessionRepo) NearestAfter(ctx context.Context, at time.Time) (*models.SessionExam, error) {
	return nil, nil
}

func (r routesSessionRepo) FindByNumberAndYear(ctx context.Context, number, academicYear int) (*models.SessionExam, error) {
	if number != 1 || academicYear != 2024 {
		return nil, sql.ErrNoRows
	}
	return r.CurrentAt(ctx, routesNow)
}

func (r routesSessionRepo) ListByYear(ctx context.Context, academicYear int) ([]models.SessionExam, error) {
	open, _ := r.CurrentAt(ctx, routesNow)
	return []models.SessionExam{
		*open,
		{ID: "sess-2", Number: 2, AcademicYear: 2024, WindowStart: routesNow.AddDate(0, 2, 0), WindowEnd: routesNow.AddDate(0, 2, 14)},
	}, nil
}

type routesEnrolmentStore struct {
	rows map[string]*models.ExamEnrolment
}

func (s *routesEnrolmentStore) FindForScoreEncoding(ctx context.Context, filter models.EnrolmentFilter) ([]models.ExamEnrolment, error) {
	out := make([]models.ExamEnrolment, 0, len(s.rows))
	for _, row := range s.rows {
		out = append(out, *row)
	}
	return out, nil
}

func (s *routesEnrolmentStore) UpdateWithLock(ctx context.Context, enrolmentID string, apply models.EnrolmentApply) (*models.ExamEnrolment, error) {
	row := s.rows[enrolmentID]
	update, err := apply(row)
	if err != nil {
		return nil, err
	}
	if update == nil {
		return row, nil
	}
	row.ScoreDraft = update.ScoreDraft
	row.ScoreReencoded = update.ScoreReencoded
	row.ScoreFinal = update.ScoreFinal
	row.JustificationDraft = update.JustificationDraft
	row.JustificationReencoded = update.JustificationReencoded
	row.JustificationFinal = update.JustificationFinal
	return row, nil
}

func (s *routesEnrolmentStore) Progress(ctx context.Context, filter models.EnrolmentFilter) ([]models.EncodingProgress, error) {
	return nil, nil
}

type routesAttributions struct{}

func (routesAttributions) ListByLearningUnit(ctx context.Context, acronym string, academicYear int) ([]models.Attribution, error) {
	return nil, nil
}

func buildEncodingRouter(store *routesEnrolmentStore) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(func(c *gin.Context) {
		if role := c.GetHeader("X-Test-Role"); role != "" {
			c.Set(internalmiddleware.ContextUserKey, &models.JWTClaims{
				UserID:   "user-1",
				GlobalID: "tutor-1",
				Role:     models.UserRole(role),
			})
		}
		c.Next()
	})

	calendar := service.NewCalendarService(routesSessionRepo{}, func() time.Time { return routesNow }, nil)
	encodings := service.NewEncodingService(store, routesAttributions{}, calendar, service.NewPermissionPolicy(), nil, nil)

	sessionHandler := NewSessionHandler(calendar)
	encodingHandler := NewEncodingHandler(encodings, nil, nil, nil)

	encoderRoles := internalmiddleware.RequireRoles(models.RoleTutor, models.RoleProgramManager, models.RoleAdmin)
	router.GET("/sessions", encoderRoles, sessionHandler.Calendar)
	router.GET("/sessions/current", encoderRoles, sessionHandler.Current)
	router.GET("/encodings", encoderRoles, encodingHandler.List)
	router.POST("/encodings", encoderRoles, encodingHandler.Encode)

	return router
}

func routesEnrolledRow() *models.ExamEnrolment {
	return &models.ExamEnrolment{
		ID:                    "enr-1",
		SessionNumber:         1,
		State:                 models.EnrolmentStateEnrolled,
		DeadlineDate:          routesNow.AddDate(0, 0, 15),
		StudentRegistrationID: "21001234",
		OfferAcronym:          "DROI1BA",
		LearningUnitAcronym:   "LDROI1001",
		AcademicYear:          2024,
	}
}

func performRequest(router *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	return resp
}

func TestEncodingRoutes(t *testing.T) {
	store := &routesEnrolmentStore{rows: map[string]*models.ExamEnrolment{"enr-1": routesEnrolledRow()}}
	router := buildEncodingRouter(store)

	t.Run("session current open", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodGet, "/sessions/current", nil)
		req.Header.Set("X-Test-Role", string(models.RoleTutor))
		resp := performRequest(router, req)
		require.Equal(t, http.StatusOK, resp.Code)
		require.Contains(t, resp.Body.String(), `"open":true`)
	})

	t.Run("session calendar lists the year", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodGet, "/sessions", nil)
		req.Header.Set("X-Test-Role", string(models.RoleTutor))
		resp := performRequest(router, req)
		require.Equal(t, http.StatusOK, resp.Code)
		require.Contains(t, resp.Body.String(), `"sess-1"`)
		require.Contains(t, resp.Body.String(), `"sess-2"`)
	})

	t.Run("session calendar by number", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodGet, "/sessions?number=1", nil)
		req.Header.Set("X-Test-Role", string(models.RoleTutor))
		resp := performRequest(router, req)
		require.Equal(t, http.StatusOK, resp.Code)
		require.Contains(t, resp.Body.String(), `"sess-1"`)

		req, _ = http.NewRequest(http.MethodGet, "/sessions?number=3", nil)
		req.Header.Set("X-Test-Role", string(models.RoleTutor))
		resp = performRequest(router, req)
		require.Equal(t, http.StatusNotFound, resp.Code)
	})

	t.Run("list unauthorized without claims", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodGet, "/encodings", nil)
		resp := performRequest(router, req)
		require.Equal(t, http.StatusUnauthorized, resp.Code)
	})

	t.Run("encode forbidden for student role", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodPost, "/encodings", bytes.NewBufferString(`{"proposals":[]}`))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Test-Role", "STUDENT")
		resp := performRequest(router, req)
		require.Equal(t, http.StatusForbidden, resp.Code)
	})

	t.Run("encode invalid payload", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodPost, "/encodings", bytes.NewBufferString(`{`))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Test-Role", string(models.RoleTutor))
		resp := performRequest(router, req)
		require.Equal(t, http.StatusBadRequest, resp.Code)
	})

	t.Run("encode applies a draft score", func(t *testing.T) {
		payload := `{"proposals":[{"enrolment_id":"enr-1","field":"score","layer":"draft","new_value":"14.5","changed":true}]}`
		req, _ := http.NewRequest(http.MethodPost, "/encodings", bytes.NewBufferString(payload))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Test-Role", string(models.RoleTutor))
		resp := performRequest(router, req)
		require.Equal(t, http.StatusOK, resp.Code)
		require.Contains(t, resp.Body.String(), `"applied"`)

		row := store.rows["enr-1"]
		require.NotNil(t, row.ScoreDraft)
		require.Equal(t, 14.5, *row.ScoreDraft)
	})

	t.Run("list returns the tutor scope", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodGet, "/encodings?learningUnit=LDROI1001", nil)
		req.Header.Set("X-Test-Role", string(models.RoleTutor))
		resp := performRequest(router, req)
		require.Equal(t, http.StatusOK, resp.Code)
		require.Contains(t, resp.Body.String(), `"enr-1"`)
	})
}
