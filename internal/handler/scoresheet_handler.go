package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/uclouvain/osis-score-encoding/internal/service"
	"github.com/uclouvain/osis-score-encoding/pkg/export"
	"github.com/uclouvain/osis-score-encoding/pkg/response"
)

// ScoreSheetHandler exposes the assembled score sheets of the caller.
type ScoreSheetHandler struct {
	sheets  *service.ScoreSheetService
	metrics *service.MetricsService
	pdf     *export.PDFExporter
}

// NewScoreSheetHandler constructs handler.
func NewScoreSheetHandler(sheets *service.ScoreSheetService, metrics *service.MetricsService) *ScoreSheetHandler {
	return &ScoreSheetHandler{sheets: sheets, metrics: metrics, pdf: export.NewPDFExporter()}
}

// List godoc
// @Summary Assemble the caller's score sheets for the open session
// @Tags ScoreSheets
// @Produce json
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /score-sheets [get]
func (h *ScoreSheetHandler) List(c *gin.Context) {
	principal := principalFromContext(c)
	sheets, err := h.sheets.AssembleForTutor(c.Request.Context(), principal.GlobalID)
	if err != nil {
		response.Error(c, err)
		return
	}
	h.metrics.RecordSheetsAssembled(len(sheets))
	response.JSON(c, http.StatusOK, sheets, nil)
}

// PDF godoc
// @Summary Download the caller's score sheets as PDF
// @Tags ScoreSheets
// @Produce application/pdf
// @Success 200 {string} string "PDF content"
// @Security BearerAuth
// @Router /score-sheets/pdf [get]
func (h *ScoreSheetHandler) PDF(c *gin.Context) {
	principal := principalFromContext(c)
	sheets, err := h.sheets.AssembleForTutor(c.Request.Context(), principal.GlobalID)
	if err != nil {
		response.Error(c, err)
		return
	}
	h.metrics.RecordSheetsAssembled(len(sheets))

	content, err := h.pdf.RenderScoreSheets(sheets)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="score_sheets.pdf"`)
	c.Data(http.StatusOK, "application/pdf", content)
}
