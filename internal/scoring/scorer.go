// Package scoring implements the transaction risk scorer: a fixed, auditable
// catalogue of weighted rules whose summed score maps to a risk tier.
package scoring

import (
	"fmt"
	"strings"

	"github.com/BinaryLoops/Fraud-Detector/internal/domain"
)

// Tier thresholds on the raw score.
const (
	HighThreshold   = 60
	MediumThreshold = 30
)

const (
	minConfidencePct = 60
	maxConfidencePct = 95
	confidenceBias   = 30
	topFactorCount   = 3
)

// Result is an assessment together with the raw score that produced it.
type Result struct {
	Assessment domain.FraudAssessment
	Score      int
	Fired      []string // rule IDs in firing order
}

// Assess scores a transaction. velocity is the velocity signal in [0, 1);
// draws below VelocityElevatedCutoff fire the velocity rules.
// Assess is pure: it performs no I/O and never fails.
func Assess(tx domain.Transaction, velocity float64) domain.FraudAssessment {
	return Evaluate(tx, velocity).Assessment
}

// Evaluate is Assess exposing the raw score and the fired rule IDs.
func Evaluate(tx domain.Transaction, velocity float64) Result {
	return evaluate(extract(tx, velocity, nil))
}

func evaluate(f features) Result {
	score := 0
	factors := make([]string, 0, 8)
	fired := make([]string, 0, 8)

	for _, c := range catalogue {
		for _, r := range c.rules {
			if !r.match(&f) {
				continue
			}
			score += r.Weight
			if score < 0 {
				score = 0
			}
			if r.Factor != "" {
				factors = append(factors, r.Factor)
			}
			fired = append(fired, r.ID)
			break
		}
	}

	level := Tier(score)
	return Result{
		Assessment: domain.FraudAssessment{
			RiskLevel:   level,
			Reasoning:   Reasoning(level, factors),
			RiskFactors: factors,
			Confidence:  Confidence(score),
		},
		Score: score,
		Fired: fired,
	}
}

// Tier maps a raw score to a risk level.
func Tier(score int) domain.RiskLevel {
	switch {
	case score >= HighThreshold:
		return domain.RiskHigh
	case score >= MediumThreshold:
		return domain.RiskMedium
	default:
		return domain.RiskLow
	}
}

// Confidence is score/100 + 0.3 clamped to [0.60, 0.95], in hundredths.
func Confidence(score int) float64 {
	pct := score + confidenceBias
	if pct < minConfidencePct {
		pct = minConfidencePct
	}
	if pct > maxConfidencePct {
		pct = maxConfidencePct
	}
	return float64(pct) / 100
}

// Reasoning builds the human-readable summary for a tier and its factors.
func Reasoning(level domain.RiskLevel, factors []string) string {
	var reasoning string
	switch level {
	case domain.RiskHigh:
		reasoning = fmt.Sprintf("High fraud risk detected with %d critical risk factors. Immediate review recommended.", len(factors))
	case domain.RiskMedium:
		reasoning = fmt.Sprintf("Moderate fraud risk identified with %d risk factors. Manual review suggested.", len(factors))
	default:
		reasoning = "Low fraud risk assessment. Transaction appears legitimate with minimal risk indicators."
	}

	if len(factors) > 0 {
		top := factors[:min(topFactorCount, len(factors))]
		reasoning += fmt.Sprintf(" Primary concerns: %s.", strings.Join(top, ", "))
	}
	return reasoning
}
