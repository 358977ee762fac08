package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/uclouvain/osis-score-encoding/internal/models"
	"github.com/uclouvain/osis-score-encoding/internal/service"
	appErrors "github.com/uclouvain/osis-score-encoding/pkg/errors"
	"github.com/uclouvain/osis-score-encoding/pkg/export"
	"github.com/uclouvain/osis-score-encoding/pkg/response"
)

const maxUploadBytes = 5 << 20

// EncodingHandler exposes score encoding endpoints.
type EncodingHandler struct {
	encodings   *service.EncodingService
	submissions *service.SubmissionService
	uploads     *service.UploadService
	metrics     *service.MetricsService
	csv         *export.CSVExporter
}

// NewEncodingHandler constructs handler.
func NewEncodingHandler(encodings *service.EncodingService, submissions *service.SubmissionService, uploads *service.UploadService, metrics *service.MetricsService) *EncodingHandler {
	return &EncodingHandler{
		encodings:   encodings,
		submissions: submissions,
		uploads:     uploads,
		metrics:     metrics,
		csv:         export.NewCSVExporter(),
	}
}

// List godoc
// @Summary List the caller's exam enrolments for the open session
// @Tags Encodings
// @Produce json
// @Param learningUnit query string false "Filter by learning unit acronym"
// @Param offer query string false "Filter by offer acronym"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /encodings [get]
func (h *EncodingHandler) List(c *gin.Context) {
	filter := models.EnrolmentFilter{
		LearningUnitAcronym: c.Query("learningUnit"),
		OfferAcronym:        c.Query("offer"),
		OnlyEnrolled:        true,
	}
	enrolments, err := h.encodings.List(c.Request.Context(), principalFromContext(c), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, enrolments, nil)
}

// Progress godoc
// @Summary Encoding progress per offer and learning unit
// @Tags Encodings
// @Produce json
// @Param learningUnit query string false "Filter by learning unit acronym"
// @Param offer query string false "Filter by offer acronym"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /encodings/progress [get]
func (h *EncodingHandler) Progress(c *gin.Context) {
	filter := models.EnrolmentFilter{
		LearningUnitAcronym: c.Query("learningUnit"),
		OfferAcronym:        c.Query("offer"),
		OnlyEnrolled:        true,
	}
	progress, err := h.encodings.Progress(c.Request.Context(), principalFromContext(c), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, progress, nil)
}

// Encode godoc
// @Summary Apply a batch of score change proposals
// @Tags Encodings
// @Accept json
// @Produce json
// @Param payload body service.EncodeRequest true "Change proposals"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /encodings [post]
func (h *EncodingHandler) Encode(c *gin.Context) {
	var req service.EncodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	principal := principalFromContext(c)
	result, err := h.encodings.Encode(c.Request.Context(), principal, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	h.recordBatch(principal, result)
	response.JSON(c, http.StatusOK, result, nil)
}

// Submit godoc
// @Summary Promote the learning unit's drafts to final scores
// @Tags Encodings
// @Accept json
// @Produce json
// @Param payload body service.SubmitRequest true "Learning unit"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /encodings/submit [post]
func (h *EncodingHandler) Submit(c *gin.Context) {
	var req service.SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	report, err := h.submissions.Submit(c.Request.Context(), principalFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	h.metrics.RecordSubmission()
	response.JSON(c, http.StatusOK, report, nil)
}

// Double godoc
// @Summary Validate double-encoded values against the stored drafts
// @Tags Encodings
// @Accept json
// @Produce json
// @Param payload body service.DoubleEncodingRequest true "Re-encoded values"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /encodings/double [post]
func (h *EncodingHandler) Double(c *gin.Context) {
	var req service.DoubleEncodingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	principal := principalFromContext(c)
	result, err := h.submissions.ValidateDoubleEncoding(c.Request.Context(), principal, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	h.recordBatch(principal, result)
	response.JSON(c, http.StatusOK, result, nil)
}

// Upload godoc
// @Summary Ingest a filled score sheet
// @Tags Encodings
// @Accept mpfd
// @Produce json
// @Param file formData file true "Score sheet CSV"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /encodings/upload [post]
func (h *EncodingHandler) Upload(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "file is required"))
		return
	}
	if fileHeader.Size > maxUploadBytes {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "file exceeds the upload limit"))
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "unreadable file"))
		return
	}
	defer file.Close()

	principal := principalFromContext(c)
	report, err := h.uploads.Ingest(c.Request.Context(), principal, file)
	if err != nil {
		response.Error(c, err)
		return
	}
	h.recordBatch(principal, &report.Result)
	response.JSON(c, http.StatusOK, report, nil)
}

// Template godoc
// @Summary Download the blank score sheet for the caller's scope
// @Tags Encodings
// @Produce text/csv
// @Param learningUnit query string false "Filter by learning unit acronym"
// @Success 200 {string} string "CSV content"
// @Security BearerAuth
// @Router /encodings/template [get]
func (h *EncodingHandler) Template(c *gin.Context) {
	filter := models.EnrolmentFilter{LearningUnitAcronym: c.Query("learningUnit")}
	dataset, err := h.uploads.Template(c.Request.Context(), principalFromContext(c), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	content, err := h.csv.Render(*dataset)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="score_sheet.csv"`)
	c.Data(http.StatusOK, "text/csv; charset=utf-8", content)
}

func (h *EncodingHandler) recordBatch(principal models.Principal, result *models.BatchResult) {
	rejections := map[string]int{}
	for _, rejection := range result.Rejected {
		rejections[rejection.Reason]++
	}
	h.metrics.RecordBatch(string(principal.Role), len(result.Applied), rejections)
}
