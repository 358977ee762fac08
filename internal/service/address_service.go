package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/uclouvain/osis-score-encoding/internal/models"
	appErrors "github.com/uclouvain/osis-score-encoding/pkg/errors"
)

// Field reference scope of the score sheet address form.
const (
	addressFieldEntity  = "score_sheet_address"
	addressFieldContext = "ENCODING"
)

type addressOfferStore interface {
	FindByAcronym(ctx context.Context, acronym string, academicYear int) (*models.Offer, error)
	FindAddressByOffer(ctx context.Context, offerID string) (*models.ScoreSheetAddress, error)
	UpsertAddress(ctx context.Context, address *models.ScoreSheetAddress) error
}

type addressManagerReader interface {
	IsProgramManagerOf(ctx context.Context, globalID, offerAcronym string, academicYear int) (bool, error)
}

type fieldConstraintReader interface {
	ListByEntityAndContext(ctx context.Context, entity, context_ string) (map[string]models.FieldConstraint, error)
}

// ScoreSheetAddressRequest is the address form payload. Exactly one of
// the two modes must be filled.
type ScoreSheetAddressRequest struct {
	Mode                models.ScoreSheetAddressMode `json:"mode" validate:"required,oneof=ENTITY CUSTOM"`
	EntityAddressChoice *string                      `json:"entity_address_choice,omitempty"`
	Recipient           *string                      `json:"recipient,omitempty"`
	Location            *string                      `json:"location,omitempty"`
	PostalCode          *string                      `json:"postal_code,omitempty"`
	City                *string                      `json:"city,omitempty"`
	Country             *string                      `json:"country,omitempty"`
	Phone               *string                      `json:"phone,omitempty"`
	Fax                 *string                      `json:"fax,omitempty"`
	Email               *string                      `json:"email,omitempty" validate:"omitempty,email"`
}

// AddressService manages the per-offer score sheet address block.
type AddressService struct {
	offers    addressOfferStore
	managers  addressManagerReader
	fields    fieldConstraintReader
	sessions  sessionResolver
	validator *validator.Validate
	logger    *zap.Logger
}

// NewAddressService constructs AddressService.
func NewAddressService(offers addressOfferStore, managers addressManagerReader, fields fieldConstraintReader, sessions sessionResolver, validate *validator.Validate, logger *zap.Logger) *AddressService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AddressService{
		offers:    offers,
		managers:  managers,
		fields:    fields,
		sessions:  sessions,
		validator: validate,
		logger:    logger,
	}
}

// Get returns the stored address of the offer together with the field
// constraints driving the form.
func (s *AddressService) Get(ctx context.Context, principal models.Principal, offerAcronym string) (*models.ScoreSheetAddress, map[string]models.FieldConstraint, error) {
	offer, err := s.authorisedOffer(ctx, principal, offerAcronym)
	if err != nil {
		return nil, nil, err
	}
	constraints, err := s.fields.ListByEntityAndContext(ctx, addressFieldEntity, addressFieldContext)
	if err != nil {
		return nil, nil, err
	}
	address, err := s.offers.FindAddressByOffer(ctx, offer.ID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, constraints, nil
		}
		return nil, nil, err
	}
	return address, constraints, nil
}

// Update validates and stores the address of the offer.
func (s *AddressService) Update(ctx context.Context, principal models.Principal, offerAcronym string, req ScoreSheetAddressRequest) (*models.ScoreSheetAddress, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid address payload")
	}

	offer, err := s.authorisedOffer(ctx, principal, offerAcronym)
	if err != nil {
		return nil, err
	}

	if err := s.checkModes(req); err != nil {
		return nil, err
	}
	if req.Mode == models.AddressModeCustom {
		if err := s.checkConstraints(ctx, req); err != nil {
			return nil, err
		}
	}

	address := &models.ScoreSheetAddress{
		OfferID:             offer.ID,
		OfferAcronym:        offer.Acronym,
		Mode:                req.Mode,
		EntityAddressChoice: req.EntityAddressChoice,
		Recipient:           req.Recipient,
		Location:            req.Location,
		PostalCode:          req.PostalCode,
		City:                req.City,
		Country:             req.Country,
		Phone:               req.Phone,
		Fax:                 req.Fax,
		Email:               req.Email,
		UpdatedAt:           time.Now().UTC(),
	}
	if err := s.offers.UpsertAddress(ctx, address); err != nil {
		return nil, err
	}

	s.logger.Info("score sheet address updated",
		zap.String("offer", offer.Acronym),
		zap.String("mode", string(address.Mode)),
		zap.String("principal", principal.GlobalID),
	)
	return address, nil
}

func (s *AddressService) authorisedOffer(ctx context.Context, principal models.Principal, offerAcronym string) (*models.Offer, error) {
	session, err := s.sessions.CurrentSession(ctx)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, appErrors.ErrEncodingPeriodClosed
	}
	if principal.Role != models.RoleAdmin {
		manages, err := s.managers.IsProgramManagerOf(ctx, principal.GlobalID, offerAcronym, session.AcademicYear)
		if err != nil {
			return nil, err
		}
		if !manages {
			return nil, appErrors.Clone(appErrors.ErrNotAuthorised, "caller does not manage this offer")
		}
	}
	offer, err := s.offers.FindByAcronym(ctx, offerAcronym, session.AcademicYear)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "offer not found")
		}
		return nil, err
	}
	return offer, nil
}

// checkModes enforces that the payload fills exactly the fields of its
// declared mode. An address with neither mode populated is invalid.
func (s *AddressService) checkModes(req ScoreSheetAddressRequest) error {
	hasCustom := hasValue(req.Recipient) || hasValue(req.Location) || hasValue(req.PostalCode) ||
		hasValue(req.City) || hasValue(req.Country) || hasValue(req.Phone) ||
		hasValue(req.Fax) || hasValue(req.Email)

	switch req.Mode {
	case models.AddressModeEntity:
		if !hasValue(req.EntityAddressChoice) {
			return appErrors.Clone(appErrors.ErrValidation, "entity mode requires an entity address choice")
		}
		if hasCustom {
			return appErrors.Clone(appErrors.ErrValidation, "entity mode excludes custom address fields")
		}
	case models.AddressModeCustom:
		if hasValue(req.EntityAddressChoice) {
			return appErrors.Clone(appErrors.ErrValidation, "custom mode excludes an entity address choice")
		}
		if !hasCustom {
			return appErrors.Clone(appErrors.ErrValidation, "custom mode requires at least one address field")
		}
	}
	return nil
}

// checkConstraints applies the field reference rules to the custom form:
// required fields must be present and regex-constrained fields must match.
func (s *AddressService) checkConstraints(ctx context.Context, req ScoreSheetAddressRequest) error {
	constraints, err := s.fields.ListByEntityAndContext(ctx, addressFieldEntity, addressFieldContext)
	if err != nil {
		return err
	}
	values := map[string]*string{
		"recipient":   req.Recipient,
		"location":    req.Location,
		"postal_code": req.PostalCode,
		"city":        req.City,
		"country":     req.Country,
		"phone":       req.Phone,
		"fax":         req.Fax,
		"email":       req.Email,
	}
	for name, value := range values {
		constraint, ok := constraints[name]
		if !ok {
			continue
		}
		if constraint.Status == models.FieldStatusRequired && !hasValue(value) {
			return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("%s is required", name))
		}
		if constraint.Status == models.FieldStatusDisabled && hasValue(value) {
			return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("%s is not accepted", name))
		}
		if constraint.Regex != nil && hasValue(value) {
			re, err := regexp.Compile(*constraint.Regex)
			if err != nil {
				s.logger.Warn("unusable field regex", zap.String("field", name), zap.Error(err))
				continue
			}
			if !re.MatchString(*value) {
				return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("%s has an invalid format", name))
			}
		}
	}
	return nil
}

func hasValue(value *string) bool {
	return value != nil && *value != ""
}
