package vision

// Category enum for detected issues
type Category string

const (
	CategoryAtmosphere  Category = "atmosphere"
	CategoryUX          Category = "ux"
	CategoryVisualBug   Category = "visual_bug"
	CategoryPerformance Category = "performance"
	CategoryOther       Category = "other"
)

// CallStatus enum
type CallStatus string

const (
	CallOK      CallStatus = "ok"
	CallTimeout CallStatus = "timeout"
	CallError   CallStatus = "error"
)

// ModelAnalysisResult is one vision model's opinion on one capture.
// Immutable once recorded; one row per (capture_id, model_name).
type ModelAnalysisResult struct {
	CaptureID     string     `json:"capture_id"`
	ModelName     string     `json:"model_name"`
	Detected      bool       `json:"detected"`
	Confidence    float64    `json:"confidence"`
	Category      Category   `json:"category"`
	ReasoningText string     `json:"reasoning_text,omitempty"`
	LatencyMS     int64      `json:"latency_ms"`
	CostUSD       float64    `json:"cost_usd"`
	Status        CallStatus `json:"status"`
}

// ValidCategory normalizes unknown category strings to CategoryOther.
func ValidCategory(s string) Category {
	switch Category(s) {
	case CategoryAtmosphere, CategoryUX, CategoryVisualBug, CategoryPerformance:
		return Category(s)
	default:
		return CategoryOther
	}
}
