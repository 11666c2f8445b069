package consensus

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gamesight/visualqa/internal/domain/vision"
)

func result(model string, detected bool, conf float64, cat vision.Category, status vision.CallStatus) *vision.ModelAnalysisResult {
	return &vision.ModelAnalysisResult{
		CaptureID:     "cap-1",
		ModelName:     model,
		Detected:      detected,
		Confidence:    conf,
		Category:      cat,
		ReasoningText: "reasoning from " + model,
		Status:        status,
	}
}

var threeModels = []string{"gpt-vision", "claude-vision", "gemini-vision"}

func TestArbitrateUnanimousHighConfidence(t *testing.T) {
	e := NewEngine(threeModels, 2)
	v := e.Arbitrate([]*vision.ModelAnalysisResult{
		result("gpt-vision", true, 0.95, vision.CategoryVisualBug, vision.CallOK),
		result("claude-vision", true, 0.95, vision.CategoryVisualBug, vision.CallOK),
		result("gemini-vision", true, 0.95, vision.CategoryVisualBug, vision.CallOK),
	}, nil)

	require.Equal(t, DecisionIssue, v.Decision)
	assert.Equal(t, SeverityCritical, v.Severity)
	assert.Equal(t, vision.CategoryVisualBug, v.Category)
	assert.InDelta(t, 0.95, v.Confidence, 1e-9)
	assert.Len(t, v.ModelsConsensus, 3)
	for name, vote := range v.ModelsConsensus {
		assert.True(t, vote.Responded, name)
		assert.True(t, vote.Agrees, name)
	}
}

func TestArbitrateQuorumNotMet(t *testing.T) {
	e := NewEngine(threeModels, 2)
	v := e.Arbitrate([]*vision.ModelAnalysisResult{
		result("gpt-vision", true, 0.99, vision.CategoryVisualBug, vision.CallOK),
		result("claude-vision", false, 0, vision.CategoryOther, vision.CallTimeout),
		result("gemini-vision", false, 0, vision.CategoryOther, vision.CallError),
	}, nil)

	assert.Equal(t, DecisionInconclusive, v.Decision)
	assert.False(t, v.ModelsConsensus["claude-vision"].Responded)
	assert.False(t, v.ModelsConsensus["gemini-vision"].Responded)
}

func TestArbitrateTieBreaksTowardClean(t *testing.T) {
	e := NewEngine(threeModels, 2)
	v := e.Arbitrate([]*vision.ModelAnalysisResult{
		result("gpt-vision", true, 0.9, vision.CategoryUX, vision.CallOK),
		result("claude-vision", false, 0.9, vision.CategoryOther, vision.CallOK),
	}, nil)

	assert.Equal(t, DecisionClean, v.Decision)
}

func TestArbitrateMajorityOverDisagreement(t *testing.T) {
	e := NewEngine(threeModels, 2)
	v := e.Arbitrate([]*vision.ModelAnalysisResult{
		result("gpt-vision", true, 0.8, vision.CategoryUX, vision.CallOK),
		result("claude-vision", true, 0.7, vision.CategoryUX, vision.CallOK),
		result("gemini-vision", false, 0.6, vision.CategoryOther, vision.CallOK),
	}, nil)

	require.Equal(t, DecisionIssue, v.Decision)
	assert.Equal(t, vision.CategoryUX, v.Category)
	assert.InDelta(t, 0.75, v.Confidence, 1e-9)
	assert.Equal(t, SeverityMedium, v.Severity)
	assert.False(t, v.ModelsConsensus["gemini-vision"].Agrees)
	assert.True(t, v.ModelsConsensus["gemini-vision"].Responded)
}

func TestArbitrateDeterministic(t *testing.T) {
	e := NewEngine(threeModels, 2)
	in := []*vision.ModelAnalysisResult{
		result("gemini-vision", true, 0.81, vision.CategoryPerformance, vision.CallOK),
		result("gpt-vision", true, 0.77, vision.CategoryVisualBug, vision.CallOK),
		result("claude-vision", false, 0.5, vision.CategoryOther, vision.CallOK),
	}
	first := e.Arbitrate(in, nil)
	for i := 0; i < 10; i++ {
		// Reverse input order each run; the verdict must not move.
		for l, r := 0, len(in)-1; l < r; l, r = l+1, r-1 {
			in[l], in[r] = in[r], in[l]
		}
		again := e.Arbitrate(in, nil)
		if diff := cmp.Diff(first, again); diff != "" {
			t.Fatalf("verdict changed across runs (-first +again):\n%s", diff)
		}
	}
}

func TestArbitrateAccuracyWeighting(t *testing.T) {
	e := NewEngine([]string{"sharp", "sloppy"}, 2)
	in := []*vision.ModelAnalysisResult{
		result("sharp", true, 1.0, vision.CategoryVisualBug, vision.CallOK),
		result("sloppy", true, 0.5, vision.CategoryVisualBug, vision.CallOK),
	}

	unweighted := e.Arbitrate(in, nil)
	assert.InDelta(t, 0.75, unweighted.Confidence, 1e-9)

	weighted := e.Arbitrate(in, map[string]float64{"sharp": 0.9, "sloppy": 0.3})
	// (0.9*1.0 + 0.3*0.5) / 1.2 = 0.875
	assert.InDelta(t, 0.875, weighted.Confidence, 1e-9)
}

func TestSeverityLookupTable(t *testing.T) {
	cases := []struct {
		confidence float64
		category   vision.Category
		want       Severity
	}{
		{0.95, vision.CategoryVisualBug, SeverityCritical},
		{0.92, vision.CategoryPerformance, SeverityCritical},
		{0.95, vision.CategoryAtmosphere, SeverityHigh},
		{0.8, vision.CategoryVisualBug, SeverityHigh},
		{0.8, vision.CategoryUX, SeverityMedium},
		{0.6, vision.CategoryVisualBug, SeverityMedium},
		{0.4, vision.CategoryVisualBug, SeverityLow},
	}
	for _, tc := range cases {
		got := severityFor(tc.confidence, tc.category)
		assert.Equal(t, tc.want, got, "confidence=%v category=%v", tc.confidence, tc.category)
	}
}

func TestSynthesizeRanksByConfidence(t *testing.T) {
	e := NewEngine(threeModels, 2)
	v := e.Arbitrate([]*vision.ModelAnalysisResult{
		result("gpt-vision", true, 0.7, vision.CategoryVisualBug, vision.CallOK),
		result("claude-vision", true, 0.9, vision.CategoryVisualBug, vision.CallOK),
	}, nil)

	require.Equal(t, DecisionIssue, v.Decision)
	// Highest-confidence model leads the synthesized analysis.
	assert.Contains(t, v.Analysis, "Detected by 2 model(s).")
	idxClaude := strings.Index(v.Analysis, "claude-vision")
	idxGPT := strings.Index(v.Analysis, "gpt-vision")
	require.GreaterOrEqual(t, idxClaude, 0)
	require.GreaterOrEqual(t, idxGPT, 0)
	assert.Less(t, idxClaude, idxGPT)
}
