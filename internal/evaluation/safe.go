package evaluation

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ResultKind tags how an analysis was constructed from a payload.
type ResultKind int

const (
	ResultOK        ResultKind = iota // every field present and valid
	ResultDefaulted                   // at least one field substituted
	ResultFailed                      // payload unusable, Analysis is an error analysis
)

func (k ResultKind) String() string {
	switch k {
	case ResultOK:
		return "ok"
	case ResultDefaulted:
		return "defaulted"
	default:
		return "failed"
	}
}

// AnalysisResult is the outcome of BuildAnalysis. Analysis always satisfies
// the AgentAnalysis invariants, whatever the kind.
type AnalysisResult struct {
	Kind      ResultKind
	Analysis  AgentAnalysis
	Defaulted []string // payload keys that fell back to defaults
	Reason    string   // set when Kind is ResultFailed
}

// BuildAnalysis coerces a loosely typed payload (normally decoded model
// JSON) into an AgentAnalysis. It never panics.
func BuildAnalysis(payload any, agent string) (res AnalysisResult) {
	defer func() {
		if r := recover(); r != nil {
			reason := fmt.Sprintf("coercion panic: %v", r)
			res = AnalysisResult{
				Kind:     ResultFailed,
				Analysis: ErrorAnalysis(agent, errors.New(reason)),
				Reason:   reason,
			}
		}
	}()

	data, ok := asMap(payload)
	if !ok {
		reason := fmt.Sprintf("invalid response format: %T", payload)
		return AnalysisResult{
			Kind:     ResultFailed,
			Analysis: ErrorAnalysis(agent, errors.New(reason)),
			Reason:   reason,
		}
	}

	var defaulted []string
	str := func(key, def string) string {
		if s, ok := data[key].(string); ok && strings.TrimSpace(s) != "" {
			return s
		}
		defaulted = append(defaulted, key)
		return def
	}

	a := AgentAnalysis{Agent: agent}
	a.Perspective = str("perspective", agent+" analysis")
	a.Analysis = str("analysis", "Analysis not provided")
	a.Reasoning = str("reasoning", "Reasoning not provided")

	conf, ok := coerceConfidence(data["confidence_score"])
	if !ok {
		defaulted = append(defaulted, "confidence_score")
	}
	a.ConfidenceScore = conf

	findings, ok := coerceStrings(data["key_findings"])
	if !ok {
		defaulted = append(defaulted, "key_findings")
	}
	a.KeyFindings = findings

	evidence, ok := coerceEvidence(data["supporting_evidence"])
	if !ok {
		defaulted = append(defaulted, "supporting_evidence")
	}
	a.SupportingEvidence = evidence

	a.Verdict = VerdictUnverifiable
	if s, isStr := data["verdict"].(string); isStr {
		v, known := ParseVerdict(s)
		a.Verdict = v
		if !known {
			defaulted = append(defaulted, "verdict")
		}
	} else {
		defaulted = append(defaulted, "verdict")
	}

	kind := ResultOK
	if len(defaulted) > 0 {
		kind = ResultDefaulted
	}
	return AnalysisResult{Kind: kind, Analysis: a, Defaulted: defaulted}
}

// ErrorAnalysis is the single error envelope for a failed agent.
func ErrorAnalysis(agent string, err error) AgentAnalysis {
	msg := "unknown error"
	var ef *EvaluatorFailure
	switch {
	case errors.As(err, &ef) && ef.Err != nil:
		msg = ef.Err.Error()
	case err != nil:
		msg = err.Error()
	}
	return AgentAnalysis{
		Agent:              agent,
		Perspective:        fmt.Sprintf("Error in %s analysis", agent),
		Analysis:           "Error during analysis: " + msg,
		ConfidenceScore:    0,
		KeyFindings:        []string{fmt.Sprintf("Agent %s encountered an error: %s", agent, msg)},
		SupportingEvidence: []Evidence{},
		Verdict:            VerdictUnverifiable,
		Reasoning:          "Error occurred during analysis: " + msg,
		Error:              msg,
	}
}

// normalize enforces the AgentAnalysis invariants on a value produced
// outside BuildAnalysis. The agent name always wins over the value's own.
func normalize(a AgentAnalysis, agent string) AgentAnalysis {
	a.Agent = agent
	if math.IsNaN(a.ConfidenceScore) {
		a.ConfidenceScore = 0
	}
	a.ConfidenceScore = math.Min(1, math.Max(0, a.ConfidenceScore))
	if !a.Verdict.Valid() {
		a.Verdict, _ = ParseVerdict(string(a.Verdict))
	}
	if a.KeyFindings == nil {
		a.KeyFindings = []string{}
	}
	if a.SupportingEvidence == nil {
		a.SupportingEvidence = []Evidence{}
	}
	return a
}

func asMap(payload any) (map[string]any, bool) {
	switch p := payload.(type) {
	case map[string]any:
		if p == nil {
			return nil, false
		}
		return p, true
	case map[string]string:
		if p == nil {
			return nil, false
		}
		m := make(map[string]any, len(p))
		for k, v := range p {
			m[k] = v
		}
		return m, true
	default:
		return nil, false
	}
}

// coerceConfidence accepts numbers, numeric strings and json.Number. NaN is
// zero; everything else is clamped to [0,1]. ok is false when a default or
// clamp was applied.
func coerceConfidence(v any) (float64, bool) {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int64:
		f = float64(n)
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) {
		return 0, false
	}
	if f < 0 || f > 1 {
		return math.Min(1, math.Max(0, f)), false
	}
	return f, true
}

func coerceStrings(v any) ([]string, bool) {
	switch items := v.(type) {
	case []string:
		out := make([]string, 0, len(items))
		return append(out, items...), true
	case []any:
		out := make([]string, 0, len(items))
		for _, it := range items {
			switch s := it.(type) {
			case string:
				out = append(out, s)
			case nil:
			default:
				out = append(out, fmt.Sprint(s))
			}
		}
		return out, true
	case string:
		if strings.TrimSpace(items) == "" {
			return []string{}, false
		}
		return []string{items}, true
	default:
		return []string{}, false
	}
}

func coerceEvidence(v any) ([]Evidence, bool) {
	switch items := v.(type) {
	case []Evidence:
		out := make([]Evidence, 0, len(items))
		return append(out, items...), true
	case []any:
		out := make([]Evidence, 0, len(items))
		for _, it := range items {
			switch e := it.(type) {
			case map[string]any:
				src, _ := e["source"].(string)
				exc, _ := e["excerpt"].(string)
				if src == "" && exc == "" {
					continue
				}
				out = append(out, Evidence{Source: src, Excerpt: exc})
			case string:
				out = append(out, Evidence{Source: e})
			}
		}
		return out, true
	default:
		return []Evidence{}, false
	}
}
