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

type scoreSheetAttributionReader interface {
	ListByTutor(ctx context.Context, globalID string, academicYear int) ([]models.Attribution, error)
}

type scoreSheetOfferReader interface {
	FindByAcronym(ctx context.Context, acronym string, academicYear int) (*models.Offer, error)
	FindAddressByOffer(ctx context.Context, offerID string) (*models.ScoreSheetAddress, error)
}

// ScoreSheetService assembles the printable score sheets of a tutor: one
// sheet per (learning unit, programme) pair of the open session, showing
// final values where they exist and drafts elsewhere.
type ScoreSheetService struct {
	enrolments   uploadEnrolmentReader
	attributions scoreSheetAttributionReader
	offers       scoreSheetOfferReader
	sessions     sessionResolver
	logger       *zap.Logger
}

// NewScoreSheetService constructs ScoreSheetService.
func NewScoreSheetService(enrolments uploadEnrolmentReader, attributions scoreSheetAttributionReader, offers scoreSheetOfferReader, sessions sessionResolver, logger *zap.Logger) *ScoreSheetService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ScoreSheetService{
		enrolments:   enrolments,
		attributions: attributions,
		offers:       offers,
		sessions:     sessions,
		logger:       logger,
	}
}

// AssembleForTutor builds every sheet of the tutor identified by its
// institutional global id. An empty global id or a closed session yields
// an empty slice, never an error, so queue consumers stay quiet.
func (s *ScoreSheetService) AssembleForTutor(ctx context.Context, globalID string) ([]models.ScoreSheet, error) {
	sheets := []models.ScoreSheet{}
	if globalID == "" {
		return sheets, nil
	}
	session, err := s.sessions.CurrentSession(ctx)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return sheets, nil
	}
	now := s.sessions.Now()

	attributions, err := s.attributions.ListByTutor(ctx, globalID, session.AcademicYear)
	if err != nil {
		return nil, err
	}

	for _, attribution := range attributions {
		enrolments, err := s.enrolments.FindForScoreEncoding(ctx, models.EnrolmentFilter{
			SessionNumber:       session.Number,
			AcademicYear:        session.AcademicYear,
			LearningUnitAcronym: attribution.LearningUnitAcronym,
			OnlyEnrolled:        true,
		})
		if err != nil {
			return nil, err
		}

		byOffer := map[string][]models.ExamEnrolment{}
		for _, enrolment := range enrolments {
			byOffer[enrolment.OfferAcronym] = append(byOffer[enrolment.OfferAcronym], enrolment)
		}

		offerAcronyms := make([]string, 0, len(byOffer))
		for acronym := range byOffer {
			offerAcronyms = append(offerAcronyms, acronym)
		}
		sort.Strings(offerAcronyms)

		for _, offerAcronym := range offerAcronyms {
			sheet, err := s.buildSheet(ctx, session, attribution, offerAcronym, byOffer[offerAcronym], now)
			if err != nil {
				return nil, err
			}
			sheets = append(sheets, *sheet)
		}
	}

	s.logger.Debug("score sheets assembled",
		zap.String("tutor", globalID),
		zap.Int("sheets", len(sheets)),
	)
	return sheets, nil
}

func (s *ScoreSheetService) buildSheet(ctx context.Context, session *models.SessionExam, attribution models.Attribution, offerAcronym string, enrolments []models.ExamEnrolment, now time.Time) (*models.ScoreSheet, error) {
	sheet := &models.ScoreSheet{
		SessionNumber:       session.Number,
		AcademicYear:        session.AcademicYear,
		LearningUnitAcronym: attribution.LearningUnitAcronym,
		LearningUnitTitle:   attribution.LearningUnitTitle,
		OfferAcronym:        offerAcronym,
		DeliberationDate:    session.DeliberationDate,
		Rows:                make([]models.ScoreSheetRow, 0, len(enrolments)),
	}

	offer, err := s.offers.FindByAcronym(ctx, offerAcronym, session.AcademicYear)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if offer != nil {
		sheet.OfferTitle = offer.Title
		address, err := s.offers.FindAddressByOffer(ctx, offer.ID)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		sheet.Address = address
	}

	sort.Slice(enrolments, func(i, j int) bool {
		return enrolments[i].StudentRegistrationID < enrolments[j].StudentRegistrationID
	})
	for _, enrolment := range enrolments {
		sheet.Rows = append(sheet.Rows, sheetRow(enrolment, now))
	}
	return sheet, nil
}

// sheetRow picks the effective value of one enrolment: the final layer
// when set, the draft layer otherwise.
func sheetRow(enrolment models.ExamEnrolment, now time.Time) models.ScoreSheetRow {
	row := models.ScoreSheetRow{
		RegistrationID:  enrolment.StudentRegistrationID,
		LastName:        enrolment.StudentLastName,
		FirstName:       enrolment.StudentFirstName,
		DeadlineDate:    enrolment.TutorDeadline(),
		DeadlineReached: enrolment.TutorDeadlineReached(now),
	}
	if enrolment.HasFinal() {
		row.Final = true
		row.Score = enrolment.ScoreFinal
		row.Justification = enrolment.JustificationFinal
		return row
	}
	row.Score = enrolment.ScoreDraft
	row.Justification = enrolment.JustificationDraft
	return row
}
