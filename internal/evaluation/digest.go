package evaluation

import (
	"fmt"
	"strings"
)

// Digest is a compact, display-oriented view of a report.
type Digest struct {
	QuickSummary     string             `json:"quick_summary" yaml:"quick_summary"`
	ConsensusLabel   string             `json:"consensus_label" yaml:"consensus_label"`
	AgentConfidences map[string]float64 `json:"agent_confidences" yaml:"agent_confidences"`
	Sentiment        SentimentCounts    `json:"sentiment_distribution" yaml:"sentiment_distribution"`
}

type SentimentCounts struct {
	Positive int `json:"positive" yaml:"positive"`
	Negative int `json:"negative" yaml:"negative"`
	Neutral  int `json:"neutral" yaml:"neutral"`
}

var (
	digestPositive = []string{"true", "accurate", "correct"}
	digestNegative = []string{"false", "incorrect", "lie"}
)

// ConsensusLabel buckets a consensus level for display.
func ConsensusLabel(consensus float64) string {
	switch {
	case consensus > 0.8:
		return "Strong agreement"
	case consensus > 0.5:
		return "Moderate agreement"
	default:
		return "Significant disagreement"
	}
}

// BuildDigest summarizes usable perspectives in agent order.
func BuildDigest(agents []string, perspectives map[string]AgentAnalysis, syn Synthesis, consensus float64) Digest {
	d := Digest{
		ConsensusLabel:   ConsensusLabel(consensus),
		AgentConfidences: map[string]float64{},
	}

	var lines []string
	for _, name := range agents {
		p, ok := perspectives[name]
		if !ok || !p.Usable() {
			continue
		}
		d.AgentConfidences[name] = p.ConfidenceScore
		lines = append(lines, fmt.Sprintf("- %s: %s", name, p.Perspective))

		lower := strings.ToLower(p.Analysis)
		switch {
		case containsAny(lower, digestPositive):
			d.Sentiment.Positive++
		case containsAny(lower, digestNegative):
			d.Sentiment.Negative++
		default:
			d.Sentiment.Neutral++
		}
	}

	finding := syn.Summary
	if r := []rune(finding); len(r) > 200 {
		finding = string(r[:200]) + "..."
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Verdict: %s\n", syn.Verdict.Label())
	fmt.Fprintf(&b, "Consensus: %s (%.0f%%)\n", d.ConsensusLabel, consensus*100)
	if len(lines) > 0 {
		b.WriteString("\nAgent Perspectives:\n")
		b.WriteString(strings.Join(lines, "\n"))
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "\nKey Finding: %s", finding)
	d.QuickSummary = b.String()
	return d
}
