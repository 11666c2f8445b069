package render

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gamesight/visualqa/internal/domain/consensus"
	"github.com/gamesight/visualqa/internal/domain/reports"
	"github.com/gamesight/visualqa/internal/domain/vision"
)

func sampleData() *reports.ReportData {
	return &reports.ReportData{
		TestRunID:     "run-42",
		GameTitle:     "Nebula Drift",
		GeneratedAt:   time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
		TotalCaptures: 10,
		CleanCaptures: 8,
		PassRate:      0.8,
		IssuesBySeverity: map[string]int{
			"critical": 1, "high": 1,
		},
		ConsensusIssues: []*consensus.ConsensusIssue{
			{
				ID:         "issue-1",
				CaptureID:  "cap-1",
				Severity:   consensus.SeverityCritical,
				Category:   vision.CategoryVisualBug,
				Confidence: 0.95,
				Analysis:   "Detected by 3 model(s).\n\n[gpt-vision, confidence 0.95] Missing floor texture.",
				Status:     consensus.TriagePending,
			},
		},
		ModelCosts: map[string]vision.ModelCost{
			"gpt-vision": {Calls: 10, TotalCostUSD: 0.1234, AvgLatencyMS: 900},
		},
		CacheHits:    4,
		TotalCostUSD: 0.1234,
	}
}

func TestJSONRendererRoundTrips(t *testing.T) {
	b, ct, err := JSONRenderer{}.Render(context.Background(), sampleData())
	require.NoError(t, err)
	assert.Equal(t, "application/json", ct)

	var decoded reports.ReportData
	require.NoError(t, json.Unmarshal(b, &decoded))
	assert.Equal(t, "run-42", decoded.TestRunID)
	require.Len(t, decoded.ConsensusIssues, 1)
	assert.Equal(t, consensus.SeverityCritical, decoded.ConsensusIssues[0].Severity)
}

func TestHTMLRendererContainsIssues(t *testing.T) {
	b, ct, err := HTMLRenderer{}.Render(context.Background(), sampleData())
	require.NoError(t, err)
	assert.Equal(t, "text/html", ct)

	html := string(b)
	assert.Contains(t, html, "run-42")
	assert.Contains(t, html, "issue-1")
	assert.Contains(t, html, "80.0%")
	assert.Contains(t, html, "visual_bug")
}

func TestPDFRendererProducesDocument(t *testing.T) {
	b, ct, err := PDFRenderer{}.Render(context.Background(), sampleData())
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", ct)
	assert.True(t, strings.HasPrefix(string(b), "%PDF"), "output must be a PDF document")
}

func TestForFormat(t *testing.T) {
	for _, f := range []reports.Format{reports.FormatJSON, reports.FormatHTML, reports.FormatPDF} {
		r, err := ForFormat(f)
		require.NoError(t, err)
		assert.NotNil(t, r)
	}
	_, err := ForFormat(reports.Format("docx"))
	assert.Error(t, err)
}
