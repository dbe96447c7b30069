package validation

import (
	"math"

	"github.com/jonathan/outreach-agent/internal/emailaddr"
	"github.com/jonathan/outreach-agent/internal/types"
)

// Scoring weights.
const (
	WeightDomainMatch     = 0.40
	WeightRoleConfidence  = 0.20
	WeightPageCredibility = 0.15
	WeightMX              = 0.10
)

// Inferred addresses are never scored above these caps.
const (
	CapInferredSingleToken = 0.70
	CapInferred            = 0.85
)

// Level thresholds.
const (
	HighThreshold   = 0.80
	MediumThreshold = 0.60
)

// DefaultMinQualityScore is the lowest quality score a candidate can be accepted with.
const DefaultMinQualityScore = 70

// Factors are the inputs to Score.
type Factors struct {
	DomainMatch     bool
	RoleConfidence  float64
	Method          types.DiscoveryMethod
	Pattern         emailaddr.Pattern
	PageCredibility float64
	MXValid         bool
}

// MethodStrength is the weight contributed by how the address was found.
func MethodStrength(method types.DiscoveryMethod, pattern emailaddr.Pattern) float64 {
	switch method {
	case types.MethodDirect, types.MethodManual:
		return 0.15
	case types.MethodStructured:
		return 0.13
	case types.MethodInferred:
		switch pattern {
		case emailaddr.PatternFirstDotLast:
			return 0.10
		case emailaddr.PatternInitialDotLast:
			return 0.08
		case emailaddr.PatternInitialLast:
			return 0.07
		default:
			return 0.05
		}
	}
	return 0
}

// Score computes the confidence in [0,1], rounded to four decimals.
func Score(f Factors) float64 {
	score := WeightRoleConfidence*clamp01(f.RoleConfidence) +
		MethodStrength(f.Method, f.Pattern) +
		WeightPageCredibility*clamp01(f.PageCredibility)
	if f.DomainMatch {
		score += WeightDomainMatch
	}
	if f.MXValid {
		score += WeightMX
	}

	if f.Method == types.MethodInferred {
		limit := CapInferred
		if f.Pattern.IsSingleToken() {
			limit = CapInferredSingleToken
		}
		score = math.Min(score, limit)
	}
	return math.Round(clamp01(score)*10000) / 10000
}

// Level buckets a score.
func Level(score float64) types.ConfidenceLevel {
	switch {
	case score >= HighThreshold:
		return types.ConfidenceHigh
	case score >= MediumThreshold:
		return types.ConfidenceMedium
	default:
		return types.ConfidenceLow
	}
}

// QualityScore converts a confidence score to the 0-100 quality scale.
func QualityScore(score float64) int {
	return int(math.Round(clamp01(score) * 100))
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
