// CLAUDE:SUMMARY Consensus, synthesis confidence, disagreement rules and action items over collected analyses
package evaluation

import (
	"fmt"
	"math"
	"strings"
)

const maxActionItems = 3

// Consensus is 1 minus the population variance of usable sentiments over 4,
// rounded to two decimals. Fewer than two entries (error entries included)
// means full agreement; no usable sentiment at all is neutral 0.5.
func Consensus(perspectives map[string]AgentAnalysis, sc SentimentClassifier) float64 {
	if len(perspectives) < 2 {
		return 1.0
	}
	var sentiments []float64
	for _, p := range perspectives {
		if !p.Usable() {
			continue
		}
		sentiments = append(sentiments, float64(sc.Sentiment(p.Analysis)))
	}
	if len(sentiments) == 0 {
		return 0.5
	}

	var sum float64
	for _, s := range sentiments {
		sum += s
	}
	mean := sum / float64(len(sentiments))
	var variance float64
	for _, s := range sentiments {
		variance += (s - mean) * (s - mean)
	}
	variance /= float64(len(sentiments))

	return round2(1 - math.Min(variance/4, 1))
}

// SynthesisConfidence dampens the mean usable confidence toward half its
// value as consensus drops: mean × (0.5 + 0.5 × consensus).
func SynthesisConfidence(perspectives map[string]AgentAnalysis, consensus float64) float64 {
	var sum float64
	var n int
	for _, p := range perspectives {
		if !p.Usable() {
			continue
		}
		sum += p.ConfidenceScore
		n++
	}
	avg := 0.5
	if n > 0 {
		avg = sum / float64(n)
	}
	consensus = math.Min(1, math.Max(0, consensus))
	return round2(avg * (0.5 + 0.5*consensus))
}

// DisagreementRule reports Message when First's analysis contains FirstCue
// and Second's contains SecondCue (lowercased substring match).
type DisagreementRule struct {
	First     string
	Second    string
	FirstCue  string
	SecondCue string
	Message   string
}

func DefaultDisagreementRules() []DisagreementRule {
	return []DisagreementRule{
		{
			First: "fact_checker", FirstCue: "accurate",
			Second: "conspirator", SecondCue: "manipulat",
			Message: "Fact-checker finds claim accurate, but Conspirator sees manipulation",
		},
		{
			First: "nerd", FirstCue: "statistical",
			Second: "simple_joe", SecondCue: "doesn't make sense",
			Message: "Data supports claim but common sense interpretation differs",
		},
	}
}

// Disagreements applies rules to the usable analyses; a rule naming a failed
// or missing agent never fires.
func Disagreements(perspectives map[string]AgentAnalysis, rules []DisagreementRule) []string {
	out := []string{}
	for _, r := range rules {
		a, okA := perspectives[r.First]
		b, okB := perspectives[r.Second]
		if !okA || !okB || !a.Usable() || !b.Usable() {
			continue
		}
		if strings.Contains(strings.ToLower(a.Analysis), r.FirstCue) &&
			strings.Contains(strings.ToLower(b.Analysis), r.SecondCue) {
			out = append(out, r.Message)
		}
	}
	return out
}

// ActionItems scans usable analyses in agent order. Items are unique, the
// first occurrence wins, and at most three are returned.
func ActionItems(agents []string, perspectives map[string]AgentAnalysis) []string {
	out := []string{}
	seen := map[string]bool{}
	add := func(item string) {
		if !seen[item] && len(out) < maxActionItems {
			seen[item] = true
			out = append(out, item)
		}
	}
	for _, name := range agents {
		p, ok := perspectives[name]
		if !ok || !p.Usable() {
			continue
		}
		lower := strings.ToLower(p.Analysis)
		if strings.Contains(lower, "verify") {
			add(fmt.Sprintf("Verify claims as suggested by %s", name))
		}
		if strings.Contains(lower, "context") && strings.Contains(lower, "missing") {
			add("Obtain missing context for complete evaluation")
		}
		if strings.Contains(lower, "source") && strings.Contains(lower, "primary") {
			add("Access primary sources for verification")
		}
	}
	return out
}

func round2(x float64) float64 {
	return math.Round(x*100) / 100
}
