package evaluation

// Assessment is the confidence-weighted verdict computed from the per-agent
// verdicts, independent of the narrative.
type Assessment struct {
	Verdict        Verdict `json:"verdict" yaml:"verdict"`
	Score          float64 `json:"score" yaml:"score"`
	MeanConfidence float64 `json:"mean_confidence" yaml:"mean_confidence"`
	Scored         int     `json:"scored" yaml:"scored"`
}

var verdictScores = map[Verdict]float64{
	VerdictTrue:       1.0,
	VerdictMisleading: 0.3,
	VerdictFalse:      0.0,
}

// Assess averages verdict score × confidence over analyses with a scored
// verdict. UNVERIFIABLE analyses (error analyses included) are not scored
// but still count toward the mean confidence.
func Assess(analyses []AgentAnalysis) Assessment {
	var sum, confSum float64
	var scored int
	for _, a := range analyses {
		confSum += a.ConfidenceScore
		if s, ok := verdictScores[a.Verdict]; ok {
			sum += s * a.ConfidenceScore
			scored++
		}
	}

	out := Assessment{Verdict: VerdictUnverifiable, Scored: scored}
	if len(analyses) > 0 {
		out.MeanConfidence = round2(confSum / float64(len(analyses)))
	}
	if scored == 0 {
		return out
	}
	out.Score = round2(sum / float64(scored))
	switch {
	case out.Score >= 0.8:
		out.Verdict = VerdictTrue
	case out.Score >= 0.2:
		out.Verdict = VerdictMisleading
	default:
		out.Verdict = VerdictFalse
	}
	return out
}
