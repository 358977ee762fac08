package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uclouvain/osis-score-encoding/internal/models"
)

type mockOfferStore struct {
	offers    map[string]*models.Offer
	addresses map[string]*models.ScoreSheetAddress
	upserted  *models.ScoreSheetAddress
}

func (m *mockOfferStore) FindByAcronym(ctx context.Context, acronym string, academicYear int) (*models.Offer, error) {
	if offer, ok := m.offers[acronym]; ok {
		return offer, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockOfferStore) FindAddressByOffer(ctx context.Context, offerID string) (*models.ScoreSheetAddress, error) {
	if address, ok := m.addresses[offerID]; ok {
		return address, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockOfferStore) UpsertAddress(ctx context.Context, address *models.ScoreSheetAddress) error {
	m.upserted = address
	return nil
}

func newScoreSheetFixture(rows ...*models.ExamEnrolment) (*ScoreSheetService, *mockOfferStore) {
	store := &mockEnrolmentStore{
		rows:             map[string]*models.ExamEnrolment{},
		tutorByEnrolment: map[string]string{},
	}
	for _, row := range rows {
		store.rows[row.ID] = row
	}
	attributions := &mockAttributions{
		byLearningUnit: map[string][]models.Attribution{
			"LDROI1001": {{TutorGlobalID: "tutor-1", LearningUnitAcronym: "LDROI1001", LearningUnitTitle: "Introduction au droit"}},
		},
	}
	recipient := "Secretariat DROI"
	offers := &mockOfferStore{
		offers: map[string]*models.Offer{
			"DROI1BA": {ID: "offer-1", Acronym: "DROI1BA", Title: "Bachelier en droit", AcademicYear: 2024},
		},
		addresses: map[string]*models.ScoreSheetAddress{
			"offer-1": {OfferID: "offer-1", Mode: models.AddressModeCustom, Recipient: &recipient},
		},
	}
	sessions := &stubSessions{session: openSession(), now: testNow}
	svc := NewScoreSheetService(store, attributions, offers, sessions, nil)
	return svc, offers
}

func TestAssembleForTutorEmptyGlobalID(t *testing.T) {
	svc, _ := newScoreSheetFixture(enrolledRow("e1"))

	sheets, err := svc.AssembleForTutor(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, sheets)
}

func TestAssembleForTutorClosedSession(t *testing.T) {
	svc, _ := newScoreSheetFixture(enrolledRow("e1"))
	svc.sessions = &stubSessions{session: nil, now: testNow}

	sheets, err := svc.AssembleForTutor(context.Background(), "tutor-1")
	require.NoError(t, err)
	assert.Empty(t, sheets)
}

func TestAssembleForTutorBuildsSheets(t *testing.T) {
	finalised := enrolledRow("e1")
	finalised.ScoreDraft = ptrFloat(10)
	finalised.ScoreFinal = ptrFloat(12)
	drafted := enrolledRow("e2")
	drafted.ScoreDraft = ptrFloat(15)
	svc, _ := newScoreSheetFixture(finalised, drafted)

	sheets, err := svc.AssembleForTutor(context.Background(), "tutor-1")
	require.NoError(t, err)
	require.Len(t, sheets, 1)

	sheet := sheets[0]
	assert.Equal(t, "LDROI1001", sheet.LearningUnitAcronym)
	assert.Equal(t, "DROI1BA", sheet.OfferAcronym)
	assert.Equal(t, "Bachelier en droit", sheet.OfferTitle)
	require.NotNil(t, sheet.Address)
	assert.Equal(t, models.AddressModeCustom, sheet.Address.Mode)
	require.Len(t, sheet.Rows, 2)

	byRegistration := map[string]models.ScoreSheetRow{}
	for _, row := range sheet.Rows {
		byRegistration[row.RegistrationID] = row
	}

	finalRow := byRegistration["2100e1"]
	assert.True(t, finalRow.Final)
	require.NotNil(t, finalRow.Score)
	assert.Equal(t, 12.0, *finalRow.Score)

	draftRow := byRegistration["2100e2"]
	assert.False(t, draftRow.Final)
	require.NotNil(t, draftRow.Score)
	assert.Equal(t, 15.0, *draftRow.Score)
}

func TestAssembleForTutorSkipsOtherTutors(t *testing.T) {
	svc, _ := newScoreSheetFixture(enrolledRow("e1"))

	sheets, err := svc.AssembleForTutor(context.Background(), "tutor-9")
	require.NoError(t, err)
	assert.Empty(t, sheets)
}
