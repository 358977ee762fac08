package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uclouvain/osis-score-encoding/internal/models"
	appErrors "github.com/uclouvain/osis-score-encoding/pkg/errors"
)

type stubManagers struct {
	offersManaged map[string]bool
}

func (s *stubManagers) IsProgramManagerOf(ctx context.Context, globalID, offerAcronym string, academicYear int) (bool, error) {
	return s.offersManaged[globalID+"/"+offerAcronym], nil
}

type stubFieldConstraints struct {
	constraints map[string]models.FieldConstraint
}

func (s *stubFieldConstraints) ListByEntityAndContext(ctx context.Context, entity, context_ string) (map[string]models.FieldConstraint, error) {
	if s.constraints == nil {
		return map[string]models.FieldConstraint{}, nil
	}
	return s.constraints, nil
}

func newAddressFixture(constraints map[string]models.FieldConstraint) (*AddressService, *mockOfferStore) {
	offers := &mockOfferStore{
		offers: map[string]*models.Offer{
			"DROI1BA": {ID: "offer-1", Acronym: "DROI1BA", AcademicYear: 2024},
		},
		addresses: map[string]*models.ScoreSheetAddress{},
	}
	managers := &stubManagers{offersManaged: map[string]bool{"pm-1/DROI1BA": true}}
	fields := &stubFieldConstraints{constraints: constraints}
	sessions := &stubSessions{session: openSession(), now: testNow}
	svc := NewAddressService(offers, managers, fields, sessions, nil, nil)
	return svc, offers
}

func strPtr(s string) *string {
	return &s
}

func TestUpdateAddressCustomMode(t *testing.T) {
	svc, offers := newAddressFixture(nil)

	address, err := svc.Update(context.Background(), managerPrincipal(), "DROI1BA", ScoreSheetAddressRequest{
		Mode:       models.AddressModeCustom,
		Recipient:  strPtr("Secretariat DROI"),
		Location:   strPtr("Place Montesquieu 2"),
		PostalCode: strPtr("1348"),
		City:       strPtr("Louvain-la-Neuve"),
	})
	require.NoError(t, err)
	assert.Equal(t, models.AddressModeCustom, address.Mode)
	require.NotNil(t, offers.upserted)
	assert.Equal(t, "offer-1", offers.upserted.OfferID)
}

func TestUpdateAddressRejectsMixedModes(t *testing.T) {
	svc, _ := newAddressFixture(nil)

	_, err := svc.Update(context.Background(), managerPrincipal(), "DROI1BA", ScoreSheetAddressRequest{
		Mode:                models.AddressModeEntity,
		EntityAddressChoice: strPtr("FACULTY"),
		Recipient:           strPtr("Secretariat DROI"),
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestUpdateAddressRejectsEmptyCustomForm(t *testing.T) {
	svc, _ := newAddressFixture(nil)

	_, err := svc.Update(context.Background(), managerPrincipal(), "DROI1BA", ScoreSheetAddressRequest{
		Mode: models.AddressModeCustom,
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestUpdateAddressAppliesFieldConstraints(t *testing.T) {
	svc, _ := newAddressFixture(map[string]models.FieldConstraint{
		"postal_code": {FieldName: "postal_code", Status: models.FieldStatusRequired},
	})

	_, err := svc.Update(context.Background(), managerPrincipal(), "DROI1BA", ScoreSheetAddressRequest{
		Mode:      models.AddressModeCustom,
		Recipient: strPtr("Secretariat DROI"),
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestUpdateAddressRequiresManagement(t *testing.T) {
	svc, _ := newAddressFixture(nil)

	stranger := models.Principal{GlobalID: "pm-9", Role: models.RoleProgramManager}
	_, err := svc.Update(context.Background(), stranger, "DROI1BA", ScoreSheetAddressRequest{
		Mode:      models.AddressModeCustom,
		Recipient: strPtr("Secretariat DROI"),
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotAuthorised.Code, appErrors.FromError(err).Code)
}

func TestGetAddressReturnsConstraints(t *testing.T) {
	svc, offers := newAddressFixture(map[string]models.FieldConstraint{
		"phone": {FieldName: "phone", Status: models.FieldStatusDisabled},
	})
	recipient := "Secretariat DROI"
	offers.addresses["offer-1"] = &models.ScoreSheetAddress{OfferID: "offer-1", Mode: models.AddressModeCustom, Recipient: &recipient}

	address, constraints, err := svc.Get(context.Background(), managerPrincipal(), "DROI1BA")
	require.NoError(t, err)
	require.NotNil(t, address)
	assert.Equal(t, models.AddressModeCustom, address.Mode)
	assert.Contains(t, constraints, "phone")
}
