package consensus

import (
	"fmt"
	"sort"
	"strings"

	"github.com/gamesight/visualqa/internal/domain/vision"
)

// Decision enum untuk hasil arbitrase
type Decision string

const (
	DecisionIssue        Decision = "issue"
	DecisionClean        Decision = "clean"
	DecisionInconclusive Decision = "inconclusive"
)

// Verdict is the engine's output. Pure data: the caller assigns issue ID
// and timestamp when persisting.
type Verdict struct {
	Decision        Decision
	Severity        Severity
	Category        vision.Category
	Confidence      float64
	Analysis        string
	ModelsConsensus map[string]ModelVote
}

// Engine arbitrates per-model results into a single verdict.
// Deterministic: the same inputs always produce the same Verdict.
type Engine struct {
	// Models is the full configured model set, so non-responders can be
	// recorded in models_consensus.
	Models []string
	// Quorum is the minimum number of ok responses before arbitration
	// proceeds. Below it the verdict is inconclusive.
	Quorum int
}

func NewEngine(models []string, quorum int) *Engine {
	if quorum <= 0 {
		quorum = 2
	}
	return &Engine{Models: models, Quorum: quorum}
}

// Arbitrate applies the agreement rule over completed results.
// weights carries optional per-model historical accuracy (0..1) derived
// from triage feedback; pass nil for an unweighted mean.
func (e *Engine) Arbitrate(results []*vision.ModelAnalysisResult, weights map[string]float64) Verdict {
	votes := make(map[string]ModelVote, len(e.Models))
	for _, name := range e.Models {
		votes[name] = ModelVote{} // non-responder until proven otherwise
	}

	// Only ok results participate; sort by model name so iteration order
	// never influences the outcome.
	var ok []*vision.ModelAnalysisResult
	for _, r := range results {
		if r.Status == vision.CallOK {
			ok = append(ok, r)
		}
	}
	sort.Slice(ok, func(i, j int) bool { return ok[i].ModelName < ok[j].ModelName })

	var agreeing []*vision.ModelAnalysisResult
	for _, r := range ok {
		votes[r.ModelName] = ModelVote{Agrees: r.Detected, Confidence: r.Confidence, Responded: true}
		if r.Detected {
			agreeing = append(agreeing, r)
		}
	}

	if len(ok) < e.Quorum {
		return Verdict{Decision: DecisionInconclusive, ModelsConsensus: votes}
	}

	// Strict majority of responders; a tie counts as no issue to bias
	// against false positives.
	if len(agreeing)*2 <= len(ok) {
		return Verdict{Decision: DecisionClean, ModelsConsensus: votes}
	}

	confidence := weightedMean(agreeing, weights)
	category := dominantCategory(agreeing)

	return Verdict{
		Decision:        DecisionIssue,
		Severity:        severityFor(confidence, category),
		Category:        category,
		Confidence:      confidence,
		Analysis:        synthesize(agreeing),
		ModelsConsensus: votes,
	}
}

// weightedMean averages confidence across agreeing models, weighted by
// historical accuracy when available. Models without history weigh 1.0.
func weightedMean(agreeing []*vision.ModelAnalysisResult, weights map[string]float64) float64 {
	var sum, wsum float64
	for _, r := range agreeing {
		w := 1.0
		if weights != nil {
			if v, has := weights[r.ModelName]; has && v > 0 {
				w = v
			}
		}
		sum += w * r.Confidence
		wsum += w
	}
	if wsum == 0 {
		return 0
	}
	return sum / wsum
}

// dominantCategory picks the most voted category among agreeing models,
// ties broken by fixed category order so the result is reproducible.
func dominantCategory(agreeing []*vision.ModelAnalysisResult) vision.Category {
	counts := make(map[vision.Category]int)
	for _, r := range agreeing {
		counts[vision.ValidCategory(string(r.Category))]++
	}
	order := []vision.Category{
		vision.CategoryVisualBug,
		vision.CategoryPerformance,
		vision.CategoryUX,
		vision.CategoryAtmosphere,
		vision.CategoryOther,
	}
	best := vision.CategoryOther
	bestN := -1
	for _, c := range order {
		if counts[c] > bestN {
			best, bestN = c, counts[c]
		}
	}
	return best
}

// severityFor is a fixed lookup from confidence band and category.
// Severity is reproducible given the same inputs, never model opinion.
func severityFor(confidence float64, category vision.Category) Severity {
	functional := category == vision.CategoryVisualBug || category == vision.CategoryPerformance
	switch {
	case confidence >= 0.9:
		if functional {
			return SeverityCritical
		}
		return SeverityHigh
	case confidence >= 0.75:
		if functional {
			return SeverityHigh
		}
		return SeverityMedium
	case confidence >= 0.5:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// synthesize builds the human-readable analysis from agreeing models'
// reasoning, highest confidence first. Deterministic template, no extra
// LLM round-trip.
func synthesize(agreeing []*vision.ModelAnalysisResult) string {
	ranked := make([]*vision.ModelAnalysisResult, len(agreeing))
	copy(ranked, agreeing)
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Confidence != ranked[j].Confidence {
			return ranked[i].Confidence > ranked[j].Confidence
		}
		return ranked[i].ModelName < ranked[j].ModelName
	})

	var b strings.Builder
	fmt.Fprintf(&b, "Detected by %d model(s).", len(ranked))
	for _, r := range ranked {
		text := strings.TrimSpace(r.ReasoningText)
		if text == "" {
			text = "(no reasoning provided)"
		}
		fmt.Fprintf(&b, "\n\n[%s, confidence %.2f] %s", r.ModelName, r.Confidence, text)
	}
	return b.String()
}
