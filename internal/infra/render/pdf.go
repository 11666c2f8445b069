package render

import (
	"bytes"
	"context"
	"fmt"

	"github.com/go-pdf/fpdf"

	"github.com/gamesight/visualqa/internal/domain/reports"
)

// PDFRenderer renders a printable triage report.
type PDFRenderer struct{}

func (PDFRenderer) Render(_ context.Context, data *reports.ReportData) ([]byte, string, error) {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetAutoPageBreak(true, 15)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 18)
	pdf.CellFormat(0, 10, "Visual QA Report", "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 11)
	pdf.CellFormat(0, 7, fmt.Sprintf("Test run %s", data.TestRunID), "", 1, "L", false, 0, "")
	if data.GameTitle != "" {
		pdf.CellFormat(0, 7, data.GameTitle, "", 1, "L", false, 0, "")
	}
	pdf.CellFormat(0, 7, "Generated "+data.GeneratedAt.Format("2006-01-02 15:04:05 MST"), "", 1, "L", false, 0, "")
	pdf.Ln(4)

	pdf.SetFont("Helvetica", "B", 13)
	pdf.CellFormat(0, 8, "Summary", "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 10)
	summary := [][2]string{
		{"Captures analyzed", fmt.Sprintf("%d", data.TotalCaptures)},
		{"Clean captures", fmt.Sprintf("%d", data.CleanCaptures)},
		{"Pass rate", fmt.Sprintf("%.1f%%", data.PassRate*100)},
		{"Cache hits", fmt.Sprintf("%d", data.CacheHits)},
		{"Total model cost", fmt.Sprintf("$%.4f", data.TotalCostUSD)},
	}
	for _, row := range summary {
		pdf.CellFormat(60, 6, row[0], "1", 0, "L", false, 0, "")
		pdf.CellFormat(60, 6, row[1], "1", 1, "L", false, 0, "")
	}
	pdf.Ln(4)

	pdf.SetFont("Helvetica", "B", 13)
	pdf.CellFormat(0, 8, "Issues by severity", "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 10)
	for _, sev := range []string{"critical", "high", "medium", "low"} {
		pdf.CellFormat(60, 6, sev, "1", 0, "L", false, 0, "")
		pdf.CellFormat(60, 6, fmt.Sprintf("%d", data.IssuesBySeverity[sev]), "1", 1, "L", false, 0, "")
	}
	pdf.Ln(4)

	pdf.SetFont("Helvetica", "B", 13)
	pdf.CellFormat(0, 8, "Consensus issues", "", 1, "L", false, 0, "")
	if len(data.ConsensusIssues) == 0 {
		pdf.SetFont("Helvetica", "I", 10)
		pdf.CellFormat(0, 6, "No issues found.", "", 1, "L", false, 0, "")
	}
	for _, issue := range data.ConsensusIssues {
		pdf.SetFont("Helvetica", "B", 10)
		pdf.CellFormat(0, 6, fmt.Sprintf("[%s] %s / %s  (confidence %.2f, %s)",
			issue.Severity, issue.ID, issue.Category, issue.Confidence, issue.Status), "", 1, "L", false, 0, "")
		pdf.SetFont("Helvetica", "", 9)
		pdf.MultiCell(0, 4.5, issue.Analysis, "", "L", false)
		pdf.Ln(2)
	}
	pdf.Ln(2)

	pdf.SetFont("Helvetica", "B", 13)
	pdf.CellFormat(0, 8, "Model spend", "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 10)
	for name, c := range data.ModelCosts {
		pdf.CellFormat(0, 6, fmt.Sprintf("%s: %d calls, $%.4f, avg %dms",
			name, c.Calls, c.TotalCostUSD, c.AvgLatencyMS), "", 1, "L", false, 0, "")
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, "", fmt.Errorf("render pdf report: %w", err)
	}
	return buf.Bytes(), "application/pdf", nil
}
