package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/uclouvain/osis-score-encoding/internal/models"
	appErrors "github.com/uclouvain/osis-score-encoding/pkg/errors"
)

const (
	// Score bounds of the institution's grading scale. Out-of-range
	// submissions are clamped, not rejected.
	scoreMin = 0
	scoreMax = 20
)

type enrolmentStore interface {
	FindForScoreEncoding(ctx context.Context, filter models.EnrolmentFilter) ([]models.ExamEnrolment, error)
	UpdateWithLock(ctx context.Context, enrolmentID string, apply models.EnrolmentApply) (*models.ExamEnrolment, error)
	Progress(ctx context.Context, filter models.EnrolmentFilter) ([]models.EncodingProgress, error)
}

type attributionReader interface {
	ListByLearningUnit(ctx context.Context, acronym string, academicYear int) ([]models.Attribution, error)
}

type sessionResolver interface {
	CurrentSession(ctx context.Context) (*models.SessionExam, error)
	Now() time.Time
}

type encodingNotifier interface {
	EncodedByManager(notification models.EncodingNotification, sessionNumber int) error
}

// EncodeRequest carries one batch of change proposals.
type EncodeRequest struct {
	Proposals []models.ChangeProposal `json:"proposals" validate:"dive"`
}

// EncodingService applies encoding batches. Every proposal is checked
// against the permission policy and persisted under a row lock, where the
// policy is evaluated a second time against the current values. Row-level
// failures become rejections; only infrastructure failures abort a batch.
type EncodingService struct {
	enrolments   enrolmentStore
	attributions attributionReader
	sessions     sessionResolver
	policy       *PermissionPolicy
	notifier     encodingNotifier
	validator    *validator.Validate
	logger       *zap.Logger
}

// NewEncodingService constructs EncodingService.
func NewEncodingService(enrolments enrolmentStore, attributions attributionReader, sessions sessionResolver, policy *PermissionPolicy, validate *validator.Validate, logger *zap.Logger) *EncodingService {
	if policy == nil {
		policy = NewPermissionPolicy()
	}
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EncodingService{
		enrolments:   enrolments,
		attributions: attributions,
		sessions:     sessions,
		policy:       policy,
		validator:    validate,
		logger:       logger,
	}
}

// WithNotifier attaches the mail notifier warning tutors when a programme
// manager finalises the last score of an offer.
func (s *EncodingService) WithNotifier(notifier encodingNotifier) *EncodingService {
	s.notifier = notifier
	return s
}

// List returns the enrolments the principal may see for the open session,
// scoped to the caller's attributions or managed offers.
func (s *EncodingService) List(ctx context.Context, principal models.Principal, filter models.EnrolmentFilter) ([]models.ExamEnrolment, error) {
	session, err := s.sessions.CurrentSession(ctx)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, appErrors.ErrEncodingPeriodClosed
	}
	filter.SessionNumber = session.Number
	filter.AcademicYear = session.AcademicYear
	s.scopeFilter(&filter, principal)
	return s.enrolments.FindForScoreEncoding(ctx, filter)
}

// Progress returns per (offer, learning unit) encoding counters for the
// open session, scoped like List.
func (s *EncodingService) Progress(ctx context.Context, principal models.Principal, filter models.EnrolmentFilter) ([]models.EncodingProgress, error) {
	session, err := s.sessions.CurrentSession(ctx)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, appErrors.ErrEncodingPeriodClosed
	}
	filter.SessionNumber = session.Number
	filter.AcademicYear = session.AcademicYear
	s.scopeFilter(&filter, principal)
	return s.enrolments.Progress(ctx, filter)
}

// Encode applies a batch of proposals for the principal. An empty or
// all-unchanged batch returns an empty result without touching storage.
func (s *EncodingService) Encode(ctx context.Context, principal models.Principal, req EncodeRequest) (*models.BatchResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid encoding payload")
	}

	result := &models.BatchResult{
		Applied:  []models.AppliedChange{},
		Rejected: []models.ProposalRejection{},
	}
	batch := models.EncodingBatch{Proposals: req.Proposals}
	proposals := batch.NonTrivial()
	if len(proposals) == 0 {
		return result, nil
	}

	session, err := s.sessions.CurrentSession(ctx)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, appErrors.ErrEncodingPeriodClosed
	}
	now := s.sessions.Now()

	snapshot, err := s.loadSnapshot(ctx, principal, session, proposals)
	if err != nil {
		return nil, err
	}

	affected := map[string]models.EncodingProgress{}
	for _, proposal := range proposals {
		if _, ok := snapshot[proposal.EnrolmentID]; !ok {
			result.Rejected = append(result.Rejected, models.ProposalRejection{
				EnrolmentID: proposal.EnrolmentID,
				Field:       proposal.Field,
				Reason:      appErrors.ErrNotAuthorised.Code,
				Detail:      "enrolment outside the caller's encoding scope",
			})
			continue
		}

		applied, rejection, err := s.applyProposal(ctx, principal, now, proposal)
		if err != nil {
			return nil, err
		}
		if rejection != nil {
			result.Rejected = append(result.Rejected, *rejection)
			continue
		}
		result.Applied = append(result.Applied, *applied)

		row := snapshot[proposal.EnrolmentID]
		key := row.OfferAcronym + "/" + row.LearningUnitAcronym
		affected[key] = models.EncodingProgress{
			OfferAcronym:        row.OfferAcronym,
			LearningUnitAcronym: row.LearningUnitAcronym,
		}
	}

	notifications, err := s.completionNotifications(ctx, session, affected)
	if err != nil {
		// The batch itself succeeded; losing the completion signal is
		// recoverable by the next batch.
		s.logger.Warn("completion notifications skipped", zap.Error(err))
	} else {
		result.Notifications = notifications
		if s.notifier != nil && principal.Role == models.RoleProgramManager {
			for _, notification := range notifications {
				if err := s.notifier.EncodedByManager(notification, session.Number); err != nil {
					s.logger.Warn("manager completion mail skipped",
						zap.String("tutor", notification.TutorGlobalID),
						zap.Error(err),
					)
				}
			}
		}
	}

	s.logger.Info("encoding batch applied",
		zap.String("principal", principal.GlobalID),
		zap.String("role", string(principal.Role)),
		zap.Int("applied", len(result.Applied)),
		zap.Int("rejected", len(result.Rejected)),
	)
	return result, nil
}

// scopeFilter restricts a read to what the principal is allowed to see.
// Admins read everything.
func (s *EncodingService) scopeFilter(filter *models.EnrolmentFilter, principal models.Principal) {
	switch principal.Role {
	case models.RoleTutor:
		filter.TutorGlobalID = principal.GlobalID
	case models.RoleProgramManager:
		filter.ProgramManagerGlobalID = principal.GlobalID
	}
}

// loadSnapshot reads every targeted enrolment in one scoped query and
// indexes it by id. Proposals missing from the snapshot are out of scope.
func (s *EncodingService) loadSnapshot(ctx context.Context, principal models.Principal, session *models.SessionExam, proposals []models.ChangeProposal) (map[string]models.ExamEnrolment, error) {
	seen := map[string]struct{}{}
	ids := make([]string, 0, len(proposals))
	for _, p := range proposals {
		if _, ok := seen[p.EnrolmentID]; ok {
			continue
		}
		seen[p.EnrolmentID] = struct{}{}
		ids = append(ids, p.EnrolmentID)
	}

	filter := models.EnrolmentFilter{
		SessionNumber: session.Number,
		AcademicYear:  session.AcademicYear,
		EnrolmentIDs:  ids,
	}
	s.scopeFilter(&filter, principal)

	rows, err := s.enrolments.FindForScoreEncoding(ctx, filter)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]models.ExamEnrolment, len(rows))
	for _, row := range rows {
		byID[row.ID] = row
	}
	return byID, nil
}

// applyProposal normalises one proposal and persists it under the row
// lock. The returned rejection is non-nil for row-level failures.
func (s *EncodingService) applyProposal(ctx context.Context, principal models.Principal, now time.Time, proposal models.ChangeProposal) (*models.AppliedChange, *models.ProposalRejection, error) {
	layer := proposal.Layer
	if layer == "" {
		layer = models.LayerDraft
	}

	var score *float64
	var justification *models.Justification
	var parseErr *appErrors.Error

	switch proposal.Field {
	case models.FieldScore:
		score, parseErr = parseScore(proposal.NewValue)
	case models.FieldJustification:
		justification, parseErr = parseJustification(proposal.NewValue)
		if parseErr == nil && justification != nil && !s.policy.AllowsJustification(principal.Role, *justification) {
			parseErr = appErrors.Clone(appErrors.ErrNotAuthorised, fmt.Sprintf("justification %s is reserved to programme managers", *justification))
		}
	default:
		parseErr = appErrors.Clone(appErrors.ErrBadValue, "unknown encoding field")
	}
	if parseErr != nil {
		return nil, &models.ProposalRejection{
			EnrolmentID: proposal.EnrolmentID,
			Field:       proposal.Field,
			Reason:      parseErr.Code,
			Detail:      parseErr.Message,
		}, nil
	}

	apply := func(current *models.ExamEnrolment) (*models.EnrolmentUpdate, error) {
		return s.buildUpdate(current, principal, now, proposal.Field, layer, score, justification)
	}
	if _, err := s.enrolments.UpdateWithLock(ctx, proposal.EnrolmentID, apply); err != nil {
		appErr := appErrors.FromError(err)
		switch appErr.Code {
		case appErrors.ErrNotAuthorised.Code, appErrors.ErrBadValue.Code, appErrors.ErrConflictingFields.Code:
			return nil, &models.ProposalRejection{
				EnrolmentID: proposal.EnrolmentID,
				Field:       proposal.Field,
				Reason:      appErr.Code,
				Detail:      appErr.Message,
			}, nil
		}
		return nil, nil, err
	}

	return &models.AppliedChange{
		EnrolmentID:   proposal.EnrolmentID,
		Field:         proposal.Field,
		Layer:         layer,
		Score:         score,
		Justification: justification,
	}, nil, nil
}

// buildUpdate runs under the row lock. It re-evaluates the policy against
// the current values so a writer that lost a race never bypasses it, then
// derives the written layers and the audit rows.
func (s *EncodingService) buildUpdate(current *models.ExamEnrolment, principal models.Principal, now time.Time, field models.EncodingField, layer models.EncodingLayer, score *float64, justification *models.Justification) (*models.EnrolmentUpdate, error) {
	fields := s.policy.WritableFields(*current, principal.Role, now)
	if !fields.Contains(FieldFor(field, layer)) {
		return nil, appErrors.ErrNotAuthorised
	}
	if layer == models.LayerDraft && current.HasFinal() {
		return nil, appErrors.Clone(appErrors.ErrNotAuthorised, "draft fields are read-only once a final value exists")
	}
	if layer == models.LayerFinal {
		if field == models.FieldScore && current.ScoreFinal != nil ||
			field == models.FieldJustification && current.JustificationFinal != nil {
			return nil, appErrors.Clone(appErrors.ErrNotAuthorised, "final values are write-once")
		}
		if field == models.FieldScore && current.ScoreDraft == nil ||
			field == models.FieldJustification && current.JustificationDraft == nil {
			return nil, appErrors.Clone(appErrors.ErrNotAuthorised, "a final value requires a prior draft")
		}
	}

	update := &models.EnrolmentUpdate{}
	update.FromEnrolment(current)

	mirror := principal.Role == models.RoleProgramManager && layer == models.LayerDraft
	switch field {
	case models.FieldScore:
		update.ScoreDraft, update.JustificationDraft = writeScoreLayer(layer == models.LayerDraft, update.ScoreDraft, update.JustificationDraft, score)
		update.ScoreFinal, update.JustificationFinal = writeScoreLayer(layer == models.LayerFinal || mirror, update.ScoreFinal, update.JustificationFinal, score)
	case models.FieldJustification:
		update.JustificationDraft, update.ScoreDraft = writeJustificationLayer(layer == models.LayerDraft, update.JustificationDraft, update.ScoreDraft, justification)
		update.JustificationFinal, update.ScoreFinal = writeJustificationLayer(layer == models.LayerFinal || mirror, update.JustificationFinal, update.ScoreFinal, justification)
	}

	update.History = historyRows(current, update, principal.GlobalID)
	if len(update.History) == 0 {
		// Value identical to the stored one; nothing to persist.
		return nil, nil
	}
	return update, nil
}

// writeScoreLayer writes a score into one layer when targeted. A non-nil
// score clears the justification of the same layer.
func writeScoreLayer(targeted bool, currentScore *float64, currentJustification *models.Justification, score *float64) (*float64, *models.Justification) {
	if !targeted {
		return currentScore, currentJustification
	}
	if score != nil {
		return score, nil
	}
	return nil, currentJustification
}

// writeJustificationLayer mirrors writeScoreLayer for justifications.
func writeJustificationLayer(targeted bool, currentJustification *models.Justification, currentScore *float64, justification *models.Justification) (*models.Justification, *float64) {
	if !targeted {
		return currentJustification, currentScore
	}
	if justification != nil {
		return justification, nil
	}
	return nil, currentScore
}

// historyRows diffs the six layer columns and emits one audit row per
// changed column.
func historyRows(current *models.ExamEnrolment, update *models.EnrolmentUpdate, authorGlobalID string) []models.ExamEnrolmentHistory {
	var rows []models.ExamEnrolmentHistory
	appendRow := func(column string, oldValue, newValue *string) {
		if equalValue(oldValue, newValue) {
			return
		}
		rows = append(rows, models.ExamEnrolmentHistory{
			Field:          column,
			OldValue:       oldValue,
			NewValue:       newValue,
			AuthorGlobalID: authorGlobalID,
		})
	}
	appendRow("score_draft", scoreString(current.ScoreDraft), scoreString(update.ScoreDraft))
	appendRow("score_reencoded", scoreString(current.ScoreReencoded), scoreString(update.ScoreReencoded))
	appendRow("score_final", scoreString(current.ScoreFinal), scoreString(update.ScoreFinal))
	appendRow("justification_draft", justificationString(current.JustificationDraft), justificationString(update.JustificationDraft))
	appendRow("justification_reencoded", justificationString(current.JustificationReencoded), justificationString(update.JustificationReencoded))
	appendRow("justification_final", justificationString(current.JustificationFinal), justificationString(update.JustificationFinal))
	return rows
}

func equalValue(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func scoreString(score *float64) *string {
	if score == nil {
		return nil
	}
	formatted := strconv.FormatFloat(*score, 'f', -1, 64)
	return &formatted
}

func justificationString(justification *models.Justification) *string {
	if justification == nil {
		return nil
	}
	value := string(*justification)
	return &value
}

// parseScore normalises a raw score cell. Empty clears the field; a comma
// decimal separator is accepted; values outside the grading scale are
// clamped to it.
func parseScore(raw string) (*float64, *appErrors.Error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, nil
	}
	value, err := strconv.ParseFloat(strings.ReplaceAll(trimmed, ",", "."), 64)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrBadValue, fmt.Sprintf("%q is not a numeric score", raw))
	}
	if value < scoreMin {
		value = scoreMin
	}
	if value > scoreMax {
		value = scoreMax
	}
	return &value, nil
}

// parseJustification accepts either the spreadsheet token or the full
// justification name. Empty clears the field.
func parseJustification(raw string) (*models.Justification, *appErrors.Error) {
	trimmed := strings.ToUpper(strings.TrimSpace(raw))
	if trimmed == "" {
		return nil, nil
	}
	if j, ok := models.JustificationFromToken(trimmed); ok {
		return &j, nil
	}
	j := models.Justification(trimmed)
	if !j.Valid() {
		return nil, appErrors.Clone(appErrors.ErrBadValue, fmt.Sprintf("%q is not a justification", raw))
	}
	return &j, nil
}

// completionNotifications emits one entry per (tutor, offer) pair whose
// enrolments became fully encoded as a result of the batch.
func (s *EncodingService) completionNotifications(ctx context.Context, session *models.SessionExam, affected map[string]models.EncodingProgress) ([]models.EncodingNotification, error) {
	var notifications []models.EncodingNotification
	seen := map[string]struct{}{}
	for _, pair := range affected {
		progress, err := s.enrolments.Progress(ctx, models.EnrolmentFilter{
			SessionNumber:       session.Number,
			AcademicYear:        session.AcademicYear,
			OfferAcronym:        pair.OfferAcronym,
			LearningUnitAcronym: pair.LearningUnitAcronym,
			OnlyEnrolled:        true,
		})
		if err != nil {
			return nil, err
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
		tutors, err := s.attributions.ListByLearningUnit(ctx, pair.LearningUnitAcronym, session.AcademicYear)
		if err != nil {
			return nil, err
		}
		for _, tutor := range tutors {
			key := tutor.TutorGlobalID + "/" + pair.OfferAcronym
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			notifications = append(notifications, models.EncodingNotification{
				TutorGlobalID:       tutor.TutorGlobalID,
				TutorEmail:          tutor.TutorEmail,
				OfferAcronym:        pair.OfferAcronym,
				LearningUnitAcronym: pair.LearningUnitAcronym,
			})
		}
	}
	return notifications, nil
}
