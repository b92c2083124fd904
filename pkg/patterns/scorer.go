package patterns

// Signal weights used by ConfidenceScorer.
const (
	WeightTitle          = 0.2
	WeightSeverity       = 0.2
	WeightDescription    = 0.2
	WeightLongDesc       = 0.1
	WeightLocation       = 0.15
	WeightReferences     = 0.1
	WeightVulnType       = 0.1
	longDescriptionChars = 100
)

// ConfidenceScorer measures how complete an extracted candidate is.
//
// The score is the sum of satisfied weights divided by the sum of applicable
// weights. The long-description bonus is applicable only when a description
// exists, so adding any field never lowers the score.
type ConfidenceScorer struct{}

// NewConfidenceScorer creates a scorer.
func NewConfidenceScorer() *ConfidenceScorer {
	return &ConfidenceScorer{}
}

// Score returns a value in [0,1].
func (s *ConfidenceScorer) Score(e *Extracted) float64 {
	if e == nil {
		return 0
	}
	var score, max float64

	max += WeightTitle
	if e.Title != "" {
		score += WeightTitle
	}

	max += WeightSeverity
	if e.Severity != "" {
		score += WeightSeverity
	}

	max += WeightDescription
	if e.Description != "" {
		score += WeightDescription
		max += WeightLongDesc
		if len([]rune(e.Description)) > longDescriptionChars {
			score += WeightLongDesc
		}
	}

	max += WeightLocation
	if e.HasLocation() {
		score += WeightLocation
	}

	max += WeightReferences
	if e.HasReferences() {
		score += WeightReferences
	}

	max += WeightVulnType
	if e.VulnerabilityType != "" {
		score += WeightVulnType
	}

	return score / max
}
