package service

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/uclouvain/osis-score-encoding/internal/models"
	appErrors "github.com/uclouvain/osis-score-encoding/pkg/errors"
)

type submissionAttributionReader interface {
	IsTutorOf(ctx context.Context, globalID, acronym string, academicYear int) (bool, error)
	ListManagersByOffer(ctx context.Context, offerAcronym string, academicYear int) ([]models.ProgramManager, error)
}

type submissionNotifier interface {
	TutorSubmissionSummary(principal models.Principal, report models.SubmissionReport) error
	OfferFullyEncoded(managers []models.ProgramManager, offerAcronym, learningUnitAcronym string, sessionNumber int) error
}

// SubmitRequest asks for the promotion of a learning unit's drafts.
type SubmitRequest struct {
	LearningUnitAcronym string `json:"learning_unit_acronym" validate:"required"`
}

// DoubleEncodingRequest carries the re-encoded values to compare against
// the stored drafts.
type DoubleEncodingRequest struct {
	Proposals []models.ChangeProposal `json:"proposals" validate:"dive"`
}

// SubmissionService promotes draft values to finals. Submission is the
// tutor's act of handing scores over; double-encoding validation is the
// programme manager's counterpart. Both promote row by row so one bad
// enrolment never blocks the rest.
type SubmissionService struct {
	enrolments   enrolmentStore
	attributions submissionAttributionReader
	sessions     sessionResolver
	notifier     submissionNotifier
	validator    *validator.Validate
	logger       *zap.Logger
}

// NewSubmissionService constructs SubmissionService.
func NewSubmissionService(enrolments enrolmentStore, attributions submissionAttributionReader, sessions sessionResolver, notifier submissionNotifier, validate *validator.Validate, logger *zap.Logger) *SubmissionService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SubmissionService{
		enrolments:   enrolments,
		attributions: attributions,
		sessions:     sessions,
		notifier:     notifier,
		validator:    validate,
		logger:       logger,
	}
}

// Submit promotes every draft of the learning unit to the final layer on
// behalf of the tutor. Re-submitting with nothing left to promote is a
// no-op reporting zero applied changes.
func (s *SubmissionService) Submit(ctx context.Context, principal models.Principal, req SubmitRequest) (*models.SubmissionReport, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid submission payload")
	}

	session, err := s.sessions.CurrentSession(ctx)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, appErrors.ErrEncodingPeriodClosed
	}
	now := s.sessions.Now()

	switch principal.Role {
	case models.RoleTutor:
		attributed, err := s.attributions.IsTutorOf(ctx, principal.GlobalID, req.LearningUnitAcronym, session.AcademicYear)
		if err != nil {
			return nil, err
		}
		if !attributed {
			return nil, appErrors.Clone(appErrors.ErrNotAuthorised, "caller holds no attribution on this learning unit")
		}
	case models.RoleAdmin:
	default:
		return nil, appErrors.Clone(appErrors.ErrNotAuthorised, "submission is a tutor operation")
	}

	enrolments, err := s.enrolments.FindForScoreEncoding(ctx, models.EnrolmentFilter{
		SessionNumber:       session.Number,
		AcademicYear:        session.AcademicYear,
		LearningUnitAcronym: req.LearningUnitAcronym,
		OnlyEnrolled:        true,
	})
	if err != nil {
		return nil, err
	}

	report := &models.SubmissionReport{
		LearningUnitAcronym: req.LearningUnitAcronym,
		SessionNumber:       session.Number,
		SubmittedAt:         now,
	}
	offers := map[string]struct{}{}
	for _, enrolment := range enrolments {
		offers[enrolment.OfferAcronym] = struct{}{}
		if enrolment.HasFinal() || (enrolment.ScoreDraft == nil && enrolment.JustificationDraft == nil) {
			continue
		}
		promoted, err := s.promote(ctx, principal, now, enrolment.ID)
		if err != nil {
			return nil, err
		}
		if promoted {
			report.Applied++
		}
	}

	report.AllEncoded, err = s.allEncoded(ctx, session, req.LearningUnitAcronym)
	if err != nil {
		return nil, err
	}

	s.notify(ctx, principal, session, report, offers)

	s.logger.Info("scores submitted",
		zap.String("principal", principal.GlobalID),
		zap.String("learning_unit", req.LearningUnitAcronym),
		zap.Int("applied", report.Applied),
		zap.Bool("all_encoded", report.AllEncoded),
	)
	return report, nil
}

// promote copies the draft layers of one enrolment to the final layers
// under the row lock. A row that gained a final or lost its deadline in
// the meantime is skipped.
func (s *SubmissionService) promote(ctx context.Context, principal models.Principal, now time.Time, enrolmentID string) (bool, error) {
	promoted := false
	apply := func(current *models.ExamEnrolment) (*models.EnrolmentUpdate, error) {
		if current.State != models.EnrolmentStateEnrolled || current.HasFinal() || current.DeadlineReached(now) {
			return nil, nil
		}
		if current.ScoreDraft == nil && current.JustificationDraft == nil {
			return nil, nil
		}
		update := &models.EnrolmentUpdate{}
		update.FromEnrolment(current)
		update.ScoreFinal = current.ScoreDraft
		update.JustificationFinal = current.JustificationDraft
		update.History = historyRows(current, update, principal.GlobalID)
		promoted = true
		return update, nil
	}
	if _, err := s.enrolments.UpdateWithLock(ctx, enrolmentID, apply); err != nil {
		return false, err
	}
	return promoted, nil
}

// ValidateDoubleEncoding compares re-encoded values with the stored
// drafts. Matching values are finalised; mismatches persist the
// re-encoded layer and come back as rejections for the manager to settle.
func (s *SubmissionService) ValidateDoubleEncoding(ctx context.Context, principal models.Principal, req DoubleEncodingRequest) (*models.BatchResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid double encoding payload")
	}
	if principal.Role != models.RoleProgramManager && principal.Role != models.RoleAdmin {
		return nil, appErrors.Clone(appErrors.ErrNotAuthorised, "double encoding validation is a programme manager operation")
	}

	session, err := s.sessions.CurrentSession(ctx)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, appErrors.ErrEncodingPeriodClosed
	}
	now := s.sessions.Now()

	result := &models.BatchResult{
		Applied:  []models.AppliedChange{},
		Rejected: []models.ProposalRejection{},
	}
	batch := models.EncodingBatch{Proposals: req.Proposals}
	for _, proposal := range batch.NonTrivial() {
		applied, rejection, err := s.validateOne(ctx, principal, now, proposal)
		if err != nil {
			return nil, err
		}
		if rejection != nil {
			result.Rejected = append(result.Rejected, *rejection)
			continue
		}
		result.Applied = append(result.Applied, *applied)
	}
	return result, nil
}

func (s *SubmissionService) validateOne(ctx context.Context, principal models.Principal, now time.Time, proposal models.ChangeProposal) (*models.AppliedChange, *models.ProposalRejection, error) {
	reject := func(err *appErrors.Error) *models.ProposalRejection {
		return &models.ProposalRejection{
			EnrolmentID: proposal.EnrolmentID,
			Field:       proposal.Field,
			Reason:      err.Code,
			Detail:      err.Message,
		}
	}

	var score *float64
	var justification *models.Justification
	var parseErr *appErrors.Error
	switch proposal.Field {
	case models.FieldScore:
		score, parseErr = parseScore(proposal.NewValue)
	case models.FieldJustification:
		justification, parseErr = parseJustification(proposal.NewValue)
	default:
		parseErr = appErrors.Clone(appErrors.ErrBadValue, "unknown encoding field")
	}
	if parseErr != nil {
		return nil, reject(parseErr), nil
	}
	if score == nil && justification == nil {
		return nil, reject(appErrors.Clone(appErrors.ErrBadValue, "a re-encoded value is required")), nil
	}

	matched := false
	apply := func(current *models.ExamEnrolment) (*models.EnrolmentUpdate, error) {
		if current.State != models.EnrolmentStateEnrolled || current.DeadlineReached(now) {
			return nil, appErrors.ErrNotAuthorised
		}
		update := &models.EnrolmentUpdate{}
		update.FromEnrolment(current)
		switch proposal.Field {
		case models.FieldScore:
			if current.ScoreFinal != nil {
				return nil, appErrors.Clone(appErrors.ErrNotAuthorised, "final values are write-once")
			}
			if current.ScoreDraft == nil {
				return nil, appErrors.Clone(appErrors.ErrNotAuthorised, "no draft score to validate")
			}
			update.ScoreReencoded = score
			if *current.ScoreDraft == *score {
				update.ScoreFinal = current.ScoreDraft
				matched = true
			}
		case models.FieldJustification:
			if current.JustificationFinal != nil {
				return nil, appErrors.Clone(appErrors.ErrNotAuthorised, "final values are write-once")
			}
			if current.JustificationDraft == nil {
				return nil, appErrors.Clone(appErrors.ErrNotAuthorised, "no draft justification to validate")
			}
			update.JustificationReencoded = justification
			if *current.JustificationDraft == *justification {
				update.JustificationFinal = current.JustificationDraft
				matched = true
			}
		}
		update.History = historyRows(current, update, principal.GlobalID)
		return update, nil
	}

	if _, err := s.enrolments.UpdateWithLock(ctx, proposal.EnrolmentID, apply); err != nil {
		appErr := appErrors.FromError(err)
		if appErr.Code == appErrors.ErrNotAuthorised.Code {
			return nil, reject(appErr), nil
		}
		return nil, nil, err
	}
	if !matched {
		return nil, reject(appErrors.ErrDoubleEncodingMismatch), nil
	}
	return &models.AppliedChange{
		EnrolmentID:   proposal.EnrolmentID,
		Field:         proposal.Field,
		Layer:         models.LayerFinal,
		Score:         score,
		Justification: justification,
	}, nil, nil
}

// allEncoded reports whether every enrolled row of the learning unit
// carries a value after the promotion run.
func (s *SubmissionService) allEncoded(ctx context.Context, session *models.SessionExam, learningUnitAcronym string) (bool, error) {
	progress, err := s.enrolments.Progress(ctx, models.EnrolmentFilter{
		SessionNumber:       session.Number,
		AcademicYear:        session.AcademicYear,
		LearningUnitAcronym: learningUnitAcronym,
		OnlyEnrolled:        true,
	})
	if err != nil {
		return false, err
	}
	if len(progress) == 0 {
		return false, nil
	}
	for _, p := range progress {
		if !p.Complete() {
			return false, nil
		}
	}
	return true, nil
}

// notify dispatches the submission mails. Delivery failures are logged
// and never roll the promotion back.
func (s *SubmissionService) notify(ctx context.Context, principal models.Principal, session *models.SessionExam, report *models.SubmissionReport, offers map[string]struct{}) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.TutorSubmissionSummary(principal, *report); err != nil {
		s.logger.Warn("tutor submission mail not sent", zap.Error(err))
	} else if principal.Email != "" {
		report.NotifiedTutors = append(report.NotifiedTutors, principal.Email)
	}

	for offerAcronym := range offers {
		progress, err := s.enrolments.Progress(ctx, models.EnrolmentFilter{
			SessionNumber: session.Number,
			AcademicYear:  session.AcademicYear,
			OfferAcronym:  offerAcronym,
			OnlyEnrolled:  true,
		})
		if err != nil {
			s.logger.Warn("offer completion check failed", zap.String("offer", offerAcronym), zap.Error(err))
			continue
		}
		complete := len(progress) > 0
		for _, p := range progress {
			if !p.Complete() {
				complete = false
				break
			}
		}
		if !complete {
			continue
		}
		managers, err := s.attributions.ListManagersByOffer(ctx, offerAcronym, session.AcademicYear)
		if err != nil {
			s.logger.Warn("manager lookup failed", zap.String("offer", offerAcronym), zap.Error(err))
			continue
		}
		if err := s.notifier.OfferFullyEncoded(managers, offerAcronym, report.LearningUnitAcronym, session.Number); err != nil {
			s.logger.Warn("offer completion mail not sent", zap.String("offer", offerAcronym), zap.Error(err))
			continue
		}
		for _, manager := range managers {
			if manager.Email != "" {
				report.NotifiedManagers = append(report.NotifiedManagers, manager.Email)
			}
		}
	}
}
