package evaluation

import (
	"fmt"
	"strings"

	"github.com/hazyhaar/factlens/internal/config"
)

// VerdictClassifier maps the synthesis narrative to a verdict.
type VerdictClassifier interface {
	Classify(narrative string) Verdict
}

// SentimentClassifier maps one analysis text to +1, -1 or 0.
type SentimentClassifier interface {
	Sentiment(analysis string) int
}

// PhraseRule fires when the lowercased text contains any of Phrases.
type PhraseRule struct {
	Phrases []string
	Verdict Verdict
}

// KeywordVerdicts applies phrase rules in order; the first match wins. It is
// substring matching, not semantics: hedged wording misclassifies.
type KeywordVerdicts struct {
	Rules []PhraseRule
}

func DefaultVerdictClassifier() KeywordVerdicts {
	return KeywordVerdicts{Rules: []PhraseRule{
		{Phrases: []string{"mostly true", "largely accurate"}, Verdict: VerdictTrue},
		{Phrases: []string{"selective", "cherry-pick"}, Verdict: VerdictMisleading},
		{Phrases: []string{"false", "incorrect"}, Verdict: VerdictFalse},
	}}
}

func (k KeywordVerdicts) Classify(narrative string) Verdict {
	lower := strings.ToLower(narrative)
	for _, r := range k.Rules {
		if containsAny(lower, r.Phrases) {
			return r.Verdict
		}
	}
	return VerdictUnverifiable
}

// KeywordSentiment checks Positive before Negative.
type KeywordSentiment struct {
	Positive []string
	Negative []string
}

func DefaultSentimentClassifier() KeywordSentiment {
	return KeywordSentiment{
		Positive: []string{"true", "accurate"},
		Negative: []string{"false", "incorrect"},
	}
}

func (k KeywordSentiment) Sentiment(analysis string) int {
	lower := strings.ToLower(analysis)
	switch {
	case containsAny(lower, k.Positive):
		return 1
	case containsAny(lower, k.Negative):
		return -1
	}
	return 0
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// SynthesisOptionsFromConfig turns keyword and disagreement overrides into
// synthesizer options. Nothing configured yields no options.
func SynthesisOptionsFromConfig(cfg config.EvaluationConfig) ([]SynthesizerOption, error) {
	var opts []SynthesizerOption

	if len(cfg.Keywords.Verdicts) > 0 {
		var kv KeywordVerdicts
		for _, vp := range cfg.Keywords.Verdicts {
			v, ok := ParseVerdict(vp.Verdict)
			if !ok {
				return nil, fmt.Errorf("keyword verdict %q: unknown verdict", vp.Verdict)
			}
			kv.Rules = append(kv.Rules, PhraseRule{Phrases: lowerAll(vp.Phrases), Verdict: v})
		}
		opts = append(opts, WithVerdictClassifier(kv))
	}

	if len(cfg.Keywords.Positive) > 0 || len(cfg.Keywords.Negative) > 0 {
		ks := DefaultSentimentClassifier()
		if len(cfg.Keywords.Positive) > 0 {
			ks.Positive = lowerAll(cfg.Keywords.Positive)
		}
		if len(cfg.Keywords.Negative) > 0 {
			ks.Negative = lowerAll(cfg.Keywords.Negative)
		}
		opts = append(opts, WithSentimentClassifier(ks))
	}

	if len(cfg.Disagreements) > 0 {
		rules := DefaultDisagreementRules()
		for _, d := range cfg.Disagreements {
			if d.First == "" || d.Second == "" || d.Message == "" {
				return nil, fmt.Errorf("disagreement rule %q: first, second and message are required", d.Message)
			}
			rules = append(rules, DisagreementRule{
				First: d.First, FirstCue: strings.ToLower(d.FirstCue),
				Second: d.Second, SecondCue: strings.ToLower(d.SecondCue),
				Message: d.Message,
			})
		}
		opts = append(opts, WithDisagreementRules(rules))
	}
	return opts, nil
}

func lowerAll(ss []string) []string {
	out := make([]string, 0, len(ss))
	for _, s := range ss {
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
			out = append(out, s)
		}
	}
	return out
}
