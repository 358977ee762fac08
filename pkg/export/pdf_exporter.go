package export

import (
	"bytes"
	"fmt"

	"github.com/jung-kurt/gofpdf"

	"github.com/uclouvain/osis-score-encoding/internal/models"
)

// PDFExporter renders assembled score sheets into a printable document,
// one page per (learning unit, programme) sheet.
type PDFExporter struct{}

// NewPDFExporter constructs a PDF exporter.
func NewPDFExporter() *PDFExporter {
	return &PDFExporter{}
}

// RenderScoreSheets creates one page per sheet with the header block, the
// resolved address and the enrolment table.
func (e *PDFExporter) RenderScoreSheets(sheets []models.ScoreSheet) ([]byte, error) {
	if len(sheets) == 0 {
		return nil, fmt.Errorf("no score sheets to render")
	}
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(10, 15, 10)

	for _, sheet := range sheets {
		pdf.AddPage()

		pdf.SetFont("Arial", "B", 14)
		title := fmt.Sprintf("Score sheet - %s / %s", sheet.LearningUnitAcronym, sheet.OfferAcronym)
		pdf.CellFormat(0, 10, title, "", 1, "C", false, 0, "")

		pdf.SetFont("Arial", "", 10)
		pdf.CellFormat(0, 6, fmt.Sprintf("Academic year %d-%d - session %d", sheet.AcademicYear, sheet.AcademicYear+1, sheet.SessionNumber), "", 1, "C", false, 0, "")
		if sheet.DeliberationDate != nil {
			pdf.CellFormat(0, 6, "Deliberation: "+sheet.DeliberationDate.Format("2006-01-02"), "", 1, "C", false, 0, "")
		}
		pdf.Ln(3)

		if sheet.Address != nil {
			e.writeAddress(pdf, sheet.Address)
			pdf.Ln(3)
		}

		e.writeRows(pdf, sheet.Rows)
	}

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}

func (e *PDFExporter) writeAddress(pdf *gofpdf.Fpdf, addr *models.ScoreSheetAddress) {
	pdf.SetFont("Arial", "I", 9)
	if addr.Mode == models.AddressModeEntity && addr.EntityAddressChoice != nil {
		pdf.CellFormat(0, 5, "Return to entity: "+*addr.EntityAddressChoice, "", 1, "", false, 0, "")
		return
	}
	lines := []*string{addr.Recipient, addr.Location}
	for _, line := range lines {
		if line != nil && *line != "" {
			pdf.CellFormat(0, 5, *line, "", 1, "", false, 0, "")
		}
	}
	city := ""
	if addr.PostalCode != nil {
		city = *addr.PostalCode
	}
	if addr.City != nil {
		if city != "" {
			city += " "
		}
		city += *addr.City
	}
	if city != "" {
		pdf.CellFormat(0, 5, city, "", 1, "", false, 0, "")
	}
	if addr.Country != nil && *addr.Country != "" {
		pdf.CellFormat(0, 5, *addr.Country, "", 1, "", false, 0, "")
	}
}

func (e *PDFExporter) writeRows(pdf *gofpdf.Fpdf, rows []models.ScoreSheetRow) {
	headers := []string{"Registration", "Lastname", "Firstname", "Score", "Justification", "Deadline"}
	widths := []float64{30, 45, 40, 20, 30, 25}

	pdf.SetFont("Arial", "B", 9)
	for i, header := range headers {
		pdf.CellFormat(widths[i], 7, header, "1", 0, "C", false, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Arial", "", 9)
	for _, row := range rows {
		score := ""
		if row.Score != nil {
			score = fmt.Sprintf("%.2f", *row.Score)
		}
		justification := ""
		if row.Justification != nil {
			justification = string(*row.Justification)
		}
		deadline := row.DeadlineDate.Format("2006-01-02")
		cells := []string{row.RegistrationID, row.LastName, row.FirstName, score, justification, deadline}
		for i, cell := range cells {
			pdf.CellFormat(widths[i], 6, cell, "1", 0, "", false, 0, "")
		}
		pdf.Ln(-1)
	}
}
