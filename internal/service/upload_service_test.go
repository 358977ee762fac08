package service

import (
	"bytes"
	"context"
	"encoding/csv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uclouvain/osis-score-encoding/internal/models"
	appErrors "github.com/uclouvain/osis-score-encoding/pkg/errors"
)

type stubEncoder struct {
	received EncodeRequest
	result   models.BatchResult
}

func (s *stubEncoder) Encode(ctx context.Context, principal models.Principal, req EncodeRequest) (*models.BatchResult, error) {
	s.received = req
	result := s.result
	if result.Applied == nil {
		result.Applied = []models.AppliedChange{}
	}
	if result.Rejected == nil {
		result.Rejected = []models.ProposalRejection{}
	}
	return &result, nil
}

func uploadCSV(rows ...[]string) string {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	_ = w.Write(scoreSheetHeader)
	for _, row := range rows {
		_ = w.Write(row)
	}
	w.Flush()
	return buf.String()
}

func uploadRow(session, learningUnit, registration, score, justification string) []string {
	return []string{
		"2024-2025", session, learningUnit, "DROI1BA", registration,
		"Dupont", "Alice", "alice@student.uclouvain.be",
		score, justification,
		"25/06/2025", "", "", "", "", "", "",
	}
}

func newUploadFixture(rows ...*models.ExamEnrolment) (*UploadService, *stubEncoder) {
	store := &mockEnrolmentStore{
		rows:             map[string]*models.ExamEnrolment{},
		tutorByEnrolment: map[string]string{},
	}
	for _, row := range rows {
		store.rows[row.ID] = row
		store.tutorByEnrolment[row.ID] = "tutor-1"
	}
	encoder := &stubEncoder{}
	sessions := &stubSessions{session: openSession(), now: testNow}
	svc := NewUploadService(store, encoder, sessions, nil)
	return svc, encoder
}

func TestIngestRejectsUnknownHeader(t *testing.T) {
	svc, _ := newUploadFixture()

	_, err := svc.Ingest(context.Background(), tutorPrincipal(), strings.NewReader("Year,Session,Score\n"))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUploadBadHeader.Code, appErrors.FromError(err).Code)
}

func TestIngestRequiresASession(t *testing.T) {
	svc, _ := newUploadFixture(enrolledRow("e1"))

	csv := uploadCSV(uploadRow("", "LDROI1001", "2100e1", "12", ""))
	_, err := svc.Ingest(context.Background(), tutorPrincipal(), strings.NewReader(csv))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUploadNoSession.Code, appErrors.FromError(err).Code)
}

func TestIngestRejectsMixedSessions(t *testing.T) {
	svc, _ := newUploadFixture(enrolledRow("e1"), enrolledRow("e2"))

	csv := uploadCSV(
		uploadRow("1", "LDROI1001", "2100e1", "12", ""),
		uploadRow("2", "LDROI1001", "2100e2", "13", ""),
	)
	_, err := svc.Ingest(context.Background(), tutorPrincipal(), strings.NewReader(csv))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUploadMultipleSessions.Code, appErrors.FromError(err).Code)
}

func TestIngestRejectsClosedSession(t *testing.T) {
	svc, _ := newUploadFixture(enrolledRow("e1"))

	csv := uploadCSV(uploadRow("3", "LDROI1001", "2100e1", "12", ""))
	_, err := svc.Ingest(context.Background(), tutorPrincipal(), strings.NewReader(csv))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrEncodingPeriodClosed.Code, appErrors.FromError(err).Code)
}

func TestIngestCollectsRowErrors(t *testing.T) {
	svc, encoder := newUploadFixture(enrolledRow("e1"))

	csv := uploadCSV(
		uploadRow("1", "LDROI1001", "2100e1", "12", ""),
		uploadRow("1", "LDROI1001", "999999", "15", ""),
		uploadRow("1", "LDROI1001", "2100e1", "15", "A"),
	)
	report, err := svc.Ingest(context.Background(), tutorPrincipal(), strings.NewReader(csv))
	require.NoError(t, err)
	assert.Equal(t, 3, report.RowsRead)
	require.Len(t, report.RowErrors, 2)

	codes := map[int]string{}
	for _, rowErr := range report.RowErrors {
		codes[rowErr.Row] = rowErr.Code
	}
	assert.Equal(t, appErrors.ErrUploadUnknownEnrolment.Code, codes[3])
	assert.Equal(t, appErrors.ErrConflictingFields.Code, codes[4])

	// The valid row still went through as a proposal.
	require.Len(t, encoder.received.Proposals, 1)
	assert.Equal(t, "e1", encoder.received.Proposals[0].EnrolmentID)
	assert.Equal(t, models.FieldScore, encoder.received.Proposals[0].Field)
	assert.Equal(t, "12", encoder.received.Proposals[0].NewValue)
	assert.True(t, encoder.received.Proposals[0].Changed)
}

func TestIngestSkipsEmptyCells(t *testing.T) {
	svc, encoder := newUploadFixture(enrolledRow("e1"), enrolledRow("e2"))

	csv := uploadCSV(
		uploadRow("1", "LDROI1001", "2100e1", "", ""),
		uploadRow("1", "LDROI1001", "2100e2", "", "T"),
	)
	report, err := svc.Ingest(context.Background(), tutorPrincipal(), strings.NewReader(csv))
	require.NoError(t, err)
	assert.Empty(t, report.RowErrors)
	require.Len(t, encoder.received.Proposals, 1)
	assert.Equal(t, models.FieldJustification, encoder.received.Proposals[0].Field)
	assert.Equal(t, "T", encoder.received.Proposals[0].NewValue)
}

func TestIngestAllEmptyCellsYieldsEmptyResult(t *testing.T) {
	store := &mockEnrolmentStore{
		rows:             map[string]*models.ExamEnrolment{"e1": enrolledRow("e1")},
		tutorByEnrolment: map[string]string{"e1": "tutor-1"},
	}
	attributions := &mockAttributions{
		byLearningUnit: map[string][]models.Attribution{
			"LDROI1001": {{TutorGlobalID: "tutor-1", LearningUnitAcronym: "LDROI1001"}},
		},
	}
	sessions := &stubSessions{session: openSession(), now: testNow}
	encoder := NewEncodingService(store, attributions, sessions, nil, nil, nil)
	svc := NewUploadService(store, encoder, sessions, nil)

	csv := uploadCSV(uploadRow("1", "LDROI1001", "2100e1", "", ""))
	report, err := svc.Ingest(context.Background(), tutorPrincipal(), strings.NewReader(csv))
	require.NoError(t, err)
	assert.Equal(t, 1, report.RowsRead)
	assert.Empty(t, report.RowErrors)
	assert.Empty(t, report.Result.Applied)
	assert.Empty(t, report.Result.Rejected)
	assert.Zero(t, store.historyWritten)
}

func TestTemplateCarriesPinnedHeader(t *testing.T) {
	row := enrolledRow("e1")
	row.ScoreDraft = ptrFloat(11.5)
	svc, _ := newUploadFixture(row)

	dataset, err := svc.Template(context.Background(), tutorPrincipal(), models.EnrolmentFilter{})
	require.NoError(t, err)
	assert.Equal(t, scoreSheetHeader, dataset.Headers)
	require.Len(t, dataset.Rows, 1)
	assert.Equal(t, "11.5", dataset.Rows[0]["Numbered scores"])
	assert.Equal(t, "2100e1", dataset.Rows[0]["Registration number"])
	assert.Equal(t, "1", dataset.Rows[0]["Session"])
}
