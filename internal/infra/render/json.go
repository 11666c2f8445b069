package render

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/gamesight/visualqa/internal/domain/reports"
)

// JSONRenderer emits the aggregated report data verbatim.
type JSONRenderer struct{}

func (JSONRenderer) Render(_ context.Context, data *reports.ReportData) ([]byte, string, error) {
	b, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return nil, "", fmt.Errorf("marshal report: %w", err)
	}
	return b, "application/json", nil
}
