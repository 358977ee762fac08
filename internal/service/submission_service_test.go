package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uclouvain/osis-score-encoding/internal/models"
	appErrors "github.com/uclouvain/osis-score-encoding/pkg/errors"
)

type mockNotifier struct {
	tutorSummaries int
	offerMails     []string
}

func (m *mockNotifier) TutorSubmissionSummary(principal models.Principal, report models.SubmissionReport) error {
	m.tutorSummaries++
	return nil
}

func (m *mockNotifier) OfferFullyEncoded(managers []models.ProgramManager, offerAcronym, learningUnitAcronym string, sessionNumber int) error {
	m.offerMails = append(m.offerMails, offerAcronym)
	return nil
}

func newSubmissionFixture(rows ...*models.ExamEnrolment) (*SubmissionService, *mockEnrolmentStore, *mockNotifier) {
	store := &mockEnrolmentStore{
		rows:             map[string]*models.ExamEnrolment{},
		tutorByEnrolment: map[string]string{},
		managerByOffer:   map[string]string{"DROI1BA": "pm-1"},
	}
	for _, row := range rows {
		store.rows[row.ID] = row
		store.tutorByEnrolment[row.ID] = "tutor-1"
	}
	attributions := &mockAttributions{
		byLearningUnit: map[string][]models.Attribution{
			"LDROI1001": {{TutorGlobalID: "tutor-1", TutorEmail: "tutor@uclouvain.be", LearningUnitAcronym: "LDROI1001"}},
		},
		managersByOffer: map[string][]models.ProgramManager{
			"DROI1BA": {{GlobalID: "pm-1", Email: "pm@uclouvain.be", OfferAcronym: "DROI1BA"}},
		},
	}
	notifier := &mockNotifier{}
	sessions := &stubSessions{session: openSession(), now: testNow}
	svc := NewSubmissionService(store, attributions, sessions, notifier, nil, nil)
	return svc, store, notifier
}

func TestSubmitPromotesDrafts(t *testing.T) {
	drafted := enrolledRow("e1")
	drafted.ScoreDraft = ptrFloat(13)
	justified := enrolledRow("e2")
	justified.JustificationDraft = ptrJust(models.JustificationAbsenceUnjustified)
	svc, store, notifier := newSubmissionFixture(drafted, justified)

	report, err := svc.Submit(context.Background(), tutorPrincipal(), SubmitRequest{LearningUnitAcronym: "LDROI1001"})
	require.NoError(t, err)
	assert.Equal(t, 2, report.Applied)
	assert.True(t, report.AllEncoded)

	require.NotNil(t, store.rows["e1"].ScoreFinal)
	assert.Equal(t, 13.0, *store.rows["e1"].ScoreFinal)
	require.NotNil(t, store.rows["e2"].JustificationFinal)
	assert.Equal(t, models.JustificationAbsenceUnjustified, *store.rows["e2"].JustificationFinal)

	assert.Equal(t, 1, notifier.tutorSummaries)
	assert.Contains(t, notifier.offerMails, "DROI1BA")
	assert.Contains(t, report.NotifiedManagers, "pm@uclouvain.be")
}

func TestSubmitIsIdempotent(t *testing.T) {
	drafted := enrolledRow("e1")
	drafted.ScoreDraft = ptrFloat(13)
	svc, _, notifier := newSubmissionFixture(drafted)

	first, err := svc.Submit(context.Background(), tutorPrincipal(), SubmitRequest{LearningUnitAcronym: "LDROI1001"})
	require.NoError(t, err)
	assert.Equal(t, 1, first.Applied)

	second, err := svc.Submit(context.Background(), tutorPrincipal(), SubmitRequest{LearningUnitAcronym: "LDROI1001"})
	require.NoError(t, err)
	assert.Equal(t, 0, second.Applied)
	assert.True(t, second.AllEncoded)
	assert.Equal(t, 2, notifier.tutorSummaries)
}

func TestSubmitPartialLeavesAllEncodedFalse(t *testing.T) {
	drafted := enrolledRow("e1")
	drafted.ScoreDraft = ptrFloat(13)
	empty := enrolledRow("e2")
	svc, _, notifier := newSubmissionFixture(drafted, empty)

	report, err := svc.Submit(context.Background(), tutorPrincipal(), SubmitRequest{LearningUnitAcronym: "LDROI1001"})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Applied)
	assert.False(t, report.AllEncoded)
	assert.Empty(t, notifier.offerMails)
}

func TestSubmitRequiresAttribution(t *testing.T) {
	drafted := enrolledRow("e1")
	drafted.ScoreDraft = ptrFloat(13)
	svc, _, _ := newSubmissionFixture(drafted)

	stranger := models.Principal{GlobalID: "tutor-9", Role: models.RoleTutor}
	_, err := svc.Submit(context.Background(), stranger, SubmitRequest{LearningUnitAcronym: "LDROI1001"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotAuthorised.Code, appErrors.FromError(err).Code)
}

func TestSubmitRejectsManagers(t *testing.T) {
	svc, _, _ := newSubmissionFixture(enrolledRow("e1"))

	_, err := svc.Submit(context.Background(), managerPrincipal(), SubmitRequest{LearningUnitAcronym: "LDROI1001"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotAuthorised.Code, appErrors.FromError(err).Code)
}

func TestValidateDoubleEncodingMatch(t *testing.T) {
	drafted := enrolledRow("e1")
	drafted.ScoreDraft = ptrFloat(14)
	svc, store, _ := newSubmissionFixture(drafted)

	result, err := svc.ValidateDoubleEncoding(context.Background(), managerPrincipal(), DoubleEncodingRequest{
		Proposals: []models.ChangeProposal{
			{EnrolmentID: "e1", Field: models.FieldScore, NewValue: "14", Changed: true},
		},
	})
	require.NoError(t, err)
	require.Len(t, result.Applied, 1)
	assert.Empty(t, result.Rejected)

	require.NotNil(t, store.rows["e1"].ScoreFinal)
	assert.Equal(t, 14.0, *store.rows["e1"].ScoreFinal)
	require.NotNil(t, store.rows["e1"].ScoreReencoded)
	assert.Equal(t, 14.0, *store.rows["e1"].ScoreReencoded)
}

func TestValidateDoubleEncodingMismatch(t *testing.T) {
	drafted := enrolledRow("e1")
	drafted.ScoreDraft = ptrFloat(14)
	svc, store, _ := newSubmissionFixture(drafted)

	result, err := svc.ValidateDoubleEncoding(context.Background(), managerPrincipal(), DoubleEncodingRequest{
		Proposals: []models.ChangeProposal{
			{EnrolmentID: "e1", Field: models.FieldScore, NewValue: "16", Changed: true},
		},
	})
	require.NoError(t, err)
	assert.Empty(t, result.Applied)
	require.Len(t, result.Rejected, 1)
	assert.Equal(t, appErrors.ErrDoubleEncodingMismatch.Code, result.Rejected[0].Reason)

	// The re-encoded value is kept so the mismatch can be settled later.
	assert.Nil(t, store.rows["e1"].ScoreFinal)
	require.NotNil(t, store.rows["e1"].ScoreReencoded)
	assert.Equal(t, 16.0, *store.rows["e1"].ScoreReencoded)
}

func TestValidateDoubleEncodingTutorForbidden(t *testing.T) {
	svc, _, _ := newSubmissionFixture(enrolledRow("e1"))

	_, err := svc.ValidateDoubleEncoding(context.Background(), tutorPrincipal(), DoubleEncodingRequest{
		Proposals: []models.ChangeProposal{
			{EnrolmentID: "e1", Field: models.FieldScore, NewValue: "14", Changed: true},
		},
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotAuthorised.Code, appErrors.FromError(err).Code)
}

func TestValidateDoubleEncodingWithoutDraft(t *testing.T) {
	svc, _, _ := newSubmissionFixture(enrolledRow("e1"))

	result, err := svc.ValidateDoubleEncoding(context.Background(), managerPrincipal(), DoubleEncodingRequest{
		Proposals: []models.ChangeProposal{
			{EnrolmentID: "e1", Field: models.FieldScore, NewValue: "14", Changed: true},
		},
	})
	require.NoError(t, err)
	require.Len(t, result.Rejected, 1)
	assert.Equal(t, appErrors.ErrNotAuthorised.Code, result.Rejected[0].Reason)
}
