// CLAUDE:SUMMARY Synthesizer — one narrative gateway call, keyword verdict, consensus-weighted confidence
package evaluation

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/hazyhaar/factlens/internal/llm"
)

const synthesisSystem = "You synthesize several independent analyses of a public statement into one balanced assessment. " +
	"Stay faithful to the analyses; do not invent evidence."

// Synthesizer turns the collected analyses into one Synthesis.
type Synthesizer struct {
	gw         Gateway
	gen        GenerationOptions
	verdicts   VerdictClassifier
	sentiments SentimentClassifier
	rules      []DisagreementRule
	tracer     Tracer
	logger     *slog.Logger
}

type SynthesizerOption func(*Synthesizer)

func WithVerdictClassifier(c VerdictClassifier) SynthesizerOption {
	return func(s *Synthesizer) { s.verdicts = c }
}

func WithSentimentClassifier(c SentimentClassifier) SynthesizerOption {
	return func(s *Synthesizer) { s.sentiments = c }
}

// WithDisagreementRules replaces the default rule table.
func WithDisagreementRules(rules []DisagreementRule) SynthesizerOption {
	return func(s *Synthesizer) { s.rules = rules }
}

func WithSynthesisGeneration(g GenerationOptions) SynthesizerOption {
	return func(s *Synthesizer) { s.gen = g }
}

func WithSynthesisTracer(t Tracer) SynthesizerOption {
	return func(s *Synthesizer) { s.tracer = t }
}

func WithSynthesisLogger(l *slog.Logger) SynthesizerOption {
	return func(s *Synthesizer) { s.logger = l }
}

func NewSynthesizer(gw Gateway, opts ...SynthesizerOption) *Synthesizer {
	s := &Synthesizer{
		gw:         gw,
		gen:        GenerationOptions{Temperature: 0.3},
		verdicts:   DefaultVerdictClassifier(),
		sentiments: DefaultSentimentClassifier(),
		rules:      DefaultDisagreementRules(),
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Synthesize returns the synthesis and the consensus level. A gateway error
// is returned as *SynthesisFailure; there is no partial result.
func (s *Synthesizer) Synthesize(ctx context.Context, stmt Statement, agents []string, perspectives map[string]AgentAnalysis) (Synthesis, float64, error) {
	dump, err := json.MarshalIndent(perspectives, "", "  ")
	if err != nil {
		return Synthesis{}, 0, &SynthesisFailure{Err: fmt.Errorf("encoding perspectives: %w", err)}
	}

	prompt := fmt.Sprintf(`Statement: "%s"

Multiple agents have analyzed this statement:

%s

Synthesize these perspectives:
1. What do they agree on?
2. Where do they diverge?
3. What is the most likely truth?
4. What context is crucial?
5. Overall assessment?

Provide a balanced synthesis.`, stmt.Text, dump)

	x := &executor{agent: "synthesizer", gw: s.gw, gen: s.gen, tracer: s.tracer, logger: s.logger}
	start := time.Now()
	narrative, err := x.run(ctx, synthesisSystem, prompt)
	if err != nil {
		return Synthesis{}, 0, &SynthesisFailure{Err: err}
	}
	s.logger.Debug("synthesis narrative", "chars", len(narrative), "elapsed", time.Since(start))

	consensus := Consensus(perspectives, s.sentiments)
	return Synthesis{
		Summary:          narrative,
		Verdict:          s.verdicts.Classify(narrative),
		Confidence:       SynthesisConfidence(perspectives, consensus),
		KeyDisagreements: Disagreements(perspectives, s.rules),
		ActionItems:      ActionItems(agents, perspectives),
	}, consensus, nil
}

var _ Gateway = (*llm.Client)(nil)
