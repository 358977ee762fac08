package service

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/uclouvain/osis-score-encoding/internal/models"
	appErrors "github.com/uclouvain/osis-score-encoding/pkg/errors"
	"github.com/uclouvain/osis-score-encoding/pkg/export"
)

// scoreSheetHeader is the pinned template header. Uploads whose first row
// differs are refused outright, so stale templates fail fast instead of
// silently shifting columns.
var scoreSheetHeader = []string{
	"Academic year",
	"Session",
	"Learning unit",
	"Programme",
	"Registration number",
	"Lastname",
	"Firstname",
	"Email",
	"Numbered scores",
	"Justification (A,T)",
	"End date Prof",
	"Specific profile",
	"Extra time",
	"Large print",
	"Specific room",
	"Other facilities",
	"Educational tutor",
}

const (
	columnAcademicYear = iota
	columnSession
	columnLearningUnit
	columnProgramme
	columnRegistrationNumber
	columnLastname
	columnFirstname
	columnEmail
	columnScore
	columnJustification
	columnDeadline
	columnSpecificProfile
	columnExtraTime
	columnLargePrint
	columnSpecificRoom
	columnOtherFacilities
	columnEducationalTutor
)

const uploadDateLayout = "02/01/2006"

type batchEncoder interface {
	Encode(ctx context.Context, principal models.Principal, req EncodeRequest) (*models.BatchResult, error)
}

type uploadEnrolmentReader interface {
	FindForScoreEncoding(ctx context.Context, filter models.EnrolmentFilter) ([]models.ExamEnrolment, error)
}

// UploadService turns a filled score sheet back into an encoding batch.
// Sheet-level defects abort the upload; row-level defects are collected
// and the remaining rows still go through.
type UploadService struct {
	enrolments uploadEnrolmentReader
	encoder    batchEncoder
	sessions   sessionResolver
	logger     *zap.Logger
}

// NewUploadService constructs UploadService.
func NewUploadService(enrolments uploadEnrolmentReader, encoder batchEncoder, sessions sessionResolver, logger *zap.Logger) *UploadService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UploadService{
		enrolments: enrolments,
		encoder:    encoder,
		sessions:   sessions,
		logger:     logger,
	}
}

// Ingest parses a CSV score sheet and applies it as an encoding batch on
// behalf of the principal.
func (s *UploadService) Ingest(ctx context.Context, principal models.Principal, r io.Reader) (*models.UploadReport, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = len(scoreSheetHeader)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrUploadBadHeader, "spreadsheet is empty or unreadable")
	}
	if !headerMatches(header) {
		return nil, appErrors.ErrUploadBadHeader
	}

	var records [][]string
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "malformed spreadsheet row")
		}
		records = append(records, record)
	}

	sessionNumber, err := s.uploadedSession(records)
	if err != nil {
		return nil, err
	}

	session, err := s.sessions.CurrentSession(ctx)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, appErrors.ErrEncodingPeriodClosed
	}
	if sessionNumber != session.Number {
		return nil, appErrors.Clone(appErrors.ErrEncodingPeriodClosed, fmt.Sprintf("session %d is not the open encoding session", sessionNumber))
	}

	index, err := s.enrolmentIndex(ctx, principal, session)
	if err != nil {
		return nil, err
	}

	report := &models.UploadReport{
		SessionNumber: session.Number,
		RowsRead:      len(records),
	}
	var proposals []models.ChangeProposal
	for i, record := range records {
		rowNumber := i + 2 // 1-based, after the header row
		score := strings.TrimSpace(record[columnScore])
		justification := strings.TrimSpace(record[columnJustification])
		if score == "" && justification == "" {
			continue
		}
		if score != "" && justification != "" {
			report.RowErrors = append(report.RowErrors, models.UploadError{
				Row:     rowNumber,
				Column:  scoreSheetHeader[columnScore],
				Code:    appErrors.ErrConflictingFields.Code,
				Message: appErrors.ErrConflictingFields.Message,
			})
			continue
		}

		enrolment, ok := index[rowKey(record[columnRegistrationNumber], record[columnLearningUnit])]
		if !ok {
			report.RowErrors = append(report.RowErrors, models.UploadError{
				Row:     rowNumber,
				Column:  scoreSheetHeader[columnRegistrationNumber],
				Code:    appErrors.ErrUploadUnknownEnrolment.Code,
				Message: appErrors.ErrUploadUnknownEnrolment.Message,
			})
			continue
		}

		proposal := models.ChangeProposal{
			EnrolmentID: enrolment.ID,
			Layer:       models.LayerDraft,
			Changed:     true,
		}
		if score != "" {
			proposal.Field = models.FieldScore
			proposal.NewValue = score
		} else {
			proposal.Field = models.FieldJustification
			proposal.NewValue = justification
		}
		proposals = append(proposals, proposal)
	}

	result, err := s.encoder.Encode(ctx, principal, EncodeRequest{Proposals: proposals})
	if err != nil {
		return nil, err
	}
	report.Result = *result

	s.logger.Info("score sheet ingested",
		zap.String("principal", principal.GlobalID),
		zap.Int("rows", report.RowsRead),
		zap.Int("applied", len(result.Applied)),
		zap.Int("row_errors", len(report.RowErrors)),
	)
	return report, nil
}

// Template builds the downloadable blank score sheet for the principal's
// scope, one prefilled row per enrolment.
func (s *UploadService) Template(ctx context.Context, principal models.Principal, filter models.EnrolmentFilter) (*export.Dataset, error) {
	session, err := s.sessions.CurrentSession(ctx)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, appErrors.ErrEncodingPeriodClosed
	}

	index, err := s.enrolmentIndex(ctx, principal, session)
	if err != nil {
		return nil, err
	}
	if filter.LearningUnitAcronym != "" {
		for key, enrolment := range index {
			if enrolment.LearningUnitAcronym != filter.LearningUnitAcronym {
				delete(index, key)
			}
		}
	}

	rows := make([]map[string]string, 0, len(index))
	for _, enrolment := range index {
		score := ""
		if enrolment.ScoreDraft != nil {
			score = strconv.FormatFloat(*enrolment.ScoreDraft, 'f', -1, 64)
		}
		justification := ""
		if enrolment.JustificationDraft != nil {
			justification = enrolment.JustificationDraft.Token()
		}
		rows = append(rows, map[string]string{
			scoreSheetHeader[columnAcademicYear]:       fmt.Sprintf("%d-%d", enrolment.AcademicYear, enrolment.AcademicYear+1),
			scoreSheetHeader[columnSession]:            strconv.Itoa(enrolment.SessionNumber),
			scoreSheetHeader[columnLearningUnit]:       enrolment.LearningUnitAcronym,
			scoreSheetHeader[columnProgramme]:          enrolment.OfferAcronym,
			scoreSheetHeader[columnRegistrationNumber]: enrolment.StudentRegistrationID,
			scoreSheetHeader[columnLastname]:           enrolment.StudentLastName,
			scoreSheetHeader[columnFirstname]:          enrolment.StudentFirstName,
			scoreSheetHeader[columnEmail]:              enrolment.StudentEmail,
			scoreSheetHeader[columnScore]:              score,
			scoreSheetHeader[columnJustification]:      justification,
			scoreSheetHeader[columnDeadline]:           enrolment.TutorDeadline().Format(uploadDateLayout),
		})
	}

	return &export.Dataset{
		Headers: scoreSheetHeader,
		Rows:    rows,
	}, nil
}

func (s *UploadService) enrolmentIndex(ctx context.Context, principal models.Principal, session *models.SessionExam) (map[string]models.ExamEnrolment, error) {
	filter := models.EnrolmentFilter{
		SessionNumber: session.Number,
		AcademicYear:  session.AcademicYear,
		OnlyEnrolled:  true,
	}
	switch principal.Role {
	case models.RoleTutor:
		filter.TutorGlobalID = principal.GlobalID
	case models.RoleProgramManager:
		filter.ProgramManagerGlobalID = principal.GlobalID
	}
	enrolments, err := s.enrolments.FindForScoreEncoding(ctx, filter)
	if err != nil {
		return nil, err
	}
	index := make(map[string]models.ExamEnrolment, len(enrolments))
	for _, enrolment := range enrolments {
		index[rowKey(enrolment.StudentRegistrationID, enrolment.LearningUnitAcronym)] = enrolment
	}
	return index, nil
}

func (s *UploadService) uploadedSession(records [][]string) (int, error) {
	distinct := map[string]struct{}{}
	for _, record := range records {
		value := strings.TrimSpace(record[columnSession])
		if value != "" {
			distinct[value] = struct{}{}
		}
	}
	if len(distinct) == 0 {
		return 0, appErrors.ErrUploadNoSession
	}
	if len(distinct) > 1 {
		return 0, appErrors.ErrUploadMultipleSessions
	}
	for value := range distinct {
		number, err := strconv.Atoi(value)
		if err != nil {
			return 0, appErrors.Clone(appErrors.ErrUploadNoSession, fmt.Sprintf("%q is not a session number", value))
		}
		return number, nil
	}
	return 0, appErrors.ErrUploadNoSession
}

func headerMatches(header []string) bool {
	if len(header) != len(scoreSheetHeader) {
		return false
	}
	for i, cell := range header {
		if strings.TrimSpace(cell) != scoreSheetHeader[i] {
			return false
		}
	}
	return true
}

func rowKey(registrationID, learningUnitAcronym string) string {
	return strings.TrimSpace(registrationID) + "/" + strings.ToUpper(strings.TrimSpace(learningUnitAcronym))
}
