package render

import (
	"bytes"
	"context"
	"fmt"
	"html/template"

	"github.com/gamesight/visualqa/internal/domain/reports"
)

var htmlTmpl = template.Must(template.New("report").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>Visual QA Report: {{.TestRunID}}</title>
<style>
body { font-family: sans-serif; margin: 2em; color: #222; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
th, td { border: 1px solid #ccc; padding: 6px 10px; text-align: left; vertical-align: top; }
th { background: #f4f4f4; }
.severity-critical { color: #b00020; font-weight: bold; }
.severity-high { color: #d2691e; font-weight: bold; }
.severity-medium { color: #b8860b; }
.severity-low { color: #2e8b57; }
.analysis { white-space: pre-wrap; font-size: 0.9em; }
</style>
</head>
<body>
<h1>Visual QA Report</h1>
<p>Test run <code>{{.TestRunID}}</code>{{if .GameTitle}} ({{.GameTitle}}){{end}}<br>
Generated {{.GeneratedAt.Format "2006-01-02 15:04:05 MST"}}</p>

<h2>Summary</h2>
<table>
<tr><th>Captures analyzed</th><td>{{.TotalCaptures}}</td></tr>
<tr><th>Clean captures</th><td>{{.CleanCaptures}}</td></tr>
<tr><th>Pass rate</th><td>{{printf "%.1f%%" .PassRatePct}}</td></tr>
<tr><th>Cache hits</th><td>{{.CacheHits}}</td></tr>
<tr><th>Total model cost</th><td>${{printf "%.4f" .TotalCostUSD}}</td></tr>
</table>

<h2>Issues by severity</h2>
<table>
<tr><th>Severity</th><th>Count</th></tr>
{{range $sev, $n := .IssuesBySeverity}}<tr><td class="severity-{{$sev}}">{{$sev}}</td><td>{{$n}}</td></tr>
{{end}}</table>

<h2>Consensus issues</h2>
{{if .ConsensusIssues}}
<table>
<tr><th>Issue</th><th>Severity</th><th>Category</th><th>Confidence</th><th>Status</th><th>Analysis</th></tr>
{{range .ConsensusIssues}}<tr>
<td><code>{{.ID}}</code></td>
<td class="severity-{{.Severity}}">{{.Severity}}</td>
<td>{{.Category}}</td>
<td>{{printf "%.2f" .Confidence}}</td>
<td>{{.Status}}</td>
<td class="analysis">{{.Analysis}}</td>
</tr>
{{end}}</table>
{{else}}<p>No issues found.</p>{{end}}

<h2>Model spend</h2>
<table>
<tr><th>Model</th><th>Calls</th><th>Cost (USD)</th><th>Avg latency (ms)</th></tr>
{{range $name, $c := .ModelCosts}}<tr><td>{{$name}}</td><td>{{$c.Calls}}</td><td>{{printf "%.4f" $c.TotalCostUSD}}</td><td>{{$c.AvgLatencyMS}}</td></tr>
{{end}}</table>
</body>
</html>
`))

// HTMLRenderer renders a self-contained report page.
type HTMLRenderer struct{}

type htmlView struct {
	*reports.ReportData
	PassRatePct float64
}

func (HTMLRenderer) Render(_ context.Context, data *reports.ReportData) ([]byte, string, error) {
	var buf bytes.Buffer
	view := htmlView{ReportData: data, PassRatePct: data.PassRate * 100}
	if err := htmlTmpl.Execute(&buf, view); err != nil {
		return nil, "", fmt.Errorf("render html report: %w", err)
	}
	return buf.Bytes(), "text/html", nil
}
