// CLAUDE:SUMMARY Data model of a multi-perspective evaluation: statement, per-agent analysis, synthesis and report
// Package evaluation runs a statement past several independently prompted
// model perspectives and synthesizes their analyses into one report with a
// verdict, a confidence and a consensus level.
package evaluation

import (
	"fmt"
	"time"
)

type Speaker struct {
	Name  string `json:"name" yaml:"name"`
	Role  string `json:"role,omitempty" yaml:"role,omitempty"`
	Party string `json:"party,omitempty" yaml:"party,omitempty"`
}

// Background locates the statement in place and time.
type Background struct {
	Where string `json:"where,omitempty" yaml:"where,omitempty"`
	When  string `json:"when,omitempty" yaml:"when,omitempty"`
}

// Statement is the quoted text under evaluation. Treated as a value.
type Statement struct {
	Text       string     `json:"text" yaml:"text"`
	Speaker    Speaker    `json:"speaker" yaml:"speaker"`
	Background Background `json:"background" yaml:"background"`
}

// SpeakerLine renders "Name (Role, Party)" with empty parts omitted.
func (s Statement) SpeakerLine() string {
	name := s.Speaker.Name
	if name == "" {
		name = "Unknown speaker"
	}
	switch {
	case s.Speaker.Role != "" && s.Speaker.Party != "":
		return fmt.Sprintf("%s (%s, %s)", name, s.Speaker.Role, s.Speaker.Party)
	case s.Speaker.Role != "":
		return fmt.Sprintf("%s (%s)", name, s.Speaker.Role)
	case s.Speaker.Party != "":
		return fmt.Sprintf("%s (%s)", name, s.Speaker.Party)
	}
	return name
}

type Evidence struct {
	Source  string `json:"source" yaml:"source"`
	Excerpt string `json:"excerpt" yaml:"excerpt"`
}

// AgentAnalysis is one evaluator's structured perspective. Every field is
// always populated: confidence is within [0,1], the verdict is one of the
// enumerated kinds and slices are non-nil. Error is set only on error
// analyses.
type AgentAnalysis struct {
	Agent              string     `json:"agent" yaml:"agent"`
	Perspective        string     `json:"perspective" yaml:"perspective"`
	Analysis           string     `json:"analysis" yaml:"analysis"`
	ConfidenceScore    float64    `json:"confidence_score" yaml:"confidence_score"`
	KeyFindings        []string   `json:"key_findings" yaml:"key_findings"`
	SupportingEvidence []Evidence `json:"supporting_evidence" yaml:"supporting_evidence"`
	Verdict            Verdict    `json:"verdict" yaml:"verdict"`
	Reasoning          string     `json:"reasoning" yaml:"reasoning"`
	Error              string     `json:"error,omitempty" yaml:"error,omitempty"`
}

// Usable reports whether the analysis came from a successful evaluation.
func (a AgentAnalysis) Usable() bool { return a.Error == "" }

type Synthesis struct {
	Summary          string   `json:"summary" yaml:"summary"`
	Verdict          Verdict  `json:"verdict" yaml:"verdict"`
	Confidence       float64  `json:"confidence" yaml:"confidence"`
	KeyDisagreements []string `json:"key_disagreements" yaml:"key_disagreements"`
	ActionItems      []string `json:"action_items" yaml:"action_items"`
}

// Report is the result of one EvaluateStatement call. It is not mutated
// after it is returned.
type Report struct {
	ID             string                   `json:"id" yaml:"id"`
	Statement      Statement                `json:"statement" yaml:"statement"`
	Context        string                   `json:"context,omitempty" yaml:"context,omitempty"`
	Agents         []string                 `json:"agents" yaml:"agents"`
	Perspectives   map[string]AgentAnalysis `json:"perspectives" yaml:"perspectives"`
	Synthesis      Synthesis                `json:"synthesis" yaml:"synthesis"`
	ConsensusLevel float64                  `json:"consensus_level" yaml:"consensus_level"`
	Assessment     Assessment               `json:"assessment" yaml:"assessment"`
	Digest         Digest                   `json:"digest" yaml:"digest"`
	Research       *ResearchBrief           `json:"research,omitempty" yaml:"research,omitempty"`
	CreatedAt      time.Time                `json:"created_at" yaml:"created_at"`
	DurationMs     int64                    `json:"duration_ms" yaml:"duration_ms"`
}

// Ordered returns the perspectives in agent order.
func (r *Report) Ordered() []AgentAnalysis {
	out := make([]AgentAnalysis, 0, len(r.Agents))
	for _, name := range r.Agents {
		if a, ok := r.Perspectives[name]; ok {
			out = append(out, a)
		}
	}
	return out
}

// Failed lists agents whose entry is an error analysis.
func (r *Report) Failed() []string {
	var out []string
	for _, name := range r.Agents {
		if a, ok := r.Perspectives[name]; ok && !a.Usable() {
			out = append(out, name)
		}
	}
	return out
}

// ResearchBrief is the output of the optional research pre-pass.
type ResearchBrief struct {
	Summary      string            `json:"summary" yaml:"summary"`
	SummaryError string            `json:"summary_error,omitempty" yaml:"summary_error,omitempty"`
	Findings     map[string]string `json:"findings" yaml:"findings"`
	Sources      []string          `json:"sources" yaml:"sources"`
}

// PromptSummary is the summary to show evaluators, empty when the summary
// call failed.
func (b ResearchBrief) PromptSummary() string {
	if b.SummaryError != "" {
		return ""
	}
	return b.Summary
}
