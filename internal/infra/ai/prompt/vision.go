package prompt

import (
	"encoding/json"
	"fmt"
	"strings"
)

// GetSystemPrompt provides strict directions and schema for JSON output.
func GetSystemPrompt() string {
	return `You are a senior game QA analyst reviewing a single gameplay screenshot. You must produce one valid JSON object only (no markdown, no commentary) that follows the schema below. Do not include code fences.

Requirements:
- Output must be a single JSON object.
- detected is true only when the screenshot shows a genuine visual defect a player would notice.
- confidence is a number between 0.0 and 1.0.
- category must be one of: atmosphere, ux, visual_bug, performance, other.
- reasoning is one or two concise sentences describing what you see and why it is (or is not) a defect.
- Be conservative: rendering that is merely stylized or dark is not a defect.

Schema (example with empty values):
{
  "detected": false,
  "confidence": 0.0,
  "category": "<atmosphere|ux|visual_bug|performance|other>",
  "reasoning": "<string>"
}`
}

// GetUserPrompt builds a compact user message around the capture context.
func GetUserPrompt(gameTitle, telemetry string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Inspect this screenshot from %q for visual defects and respond with the JSON per schema.", gameTitle)
	if telemetry != "" {
		fmt.Fprintf(&b, " Engine telemetry at capture time: %s", telemetry)
	}
	return b.String()
}

// Verdict matches the schema demanded by the system prompt.
type Verdict struct {
	Detected   bool    `json:"detected"`
	Confidence float64 `json:"confidence"`
	Category   string  `json:"category"`
	Reasoning  string  `json:"reasoning"`
}

// ParseVerdict decodes a model reply, tolerating stray code fences that
// some providers still emit despite instructions.
func ParseVerdict(content string) (Verdict, error) {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	content = strings.TrimSpace(content)

	var v Verdict
	if err := json.Unmarshal([]byte(content), &v); err != nil {
		return Verdict{}, fmt.Errorf("failed to parse model verdict: %w", err)
	}
	if v.Confidence < 0 {
		v.Confidence = 0
	}
	if v.Confidence > 1 {
		v.Confidence = 1
	}
	return v, nil
}
