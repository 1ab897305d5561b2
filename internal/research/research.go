// CLAUDE:SUMMARY Research pre-pass — three concurrent searches plus one summarizing gateway call; never fails
// Package research gathers background on a statement before the evaluators
// run. Problems are reported inside the brief rather than returned.
package research

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/hazyhaar/factlens/internal/evaluation"
	"github.com/hazyhaar/factlens/internal/llm"
	"github.com/hazyhaar/factlens/internal/retrieval"
)

// Finding keys in ResearchBrief.Findings.
const (
	FindingStatement = "statement"
	FindingContext   = "context"
	FindingSpeaker   = "speaker"
)

const summaryPrompt = `Analyze the following research data about a political statement and provide a factual summary:

Statement: %s
Speaker: %s
Context: %s

Research findings:
%s

%s

Speaker information:
%s

Provide a brief, factual summary of what the research reveals about this statement's accuracy.
Focus on:
1. Key facts that can be verified
2. Any contradictory information found
3. The credibility and track record of the speaker
4. Historical context that might be relevant
5. Any statistical or numerical claims that need verification

Keep the summary objective and evidence-based.`

// Researcher implements evaluation.Researcher over a searcher and the
// gateway.
type Researcher struct {
	searcher retrieval.Searcher
	gw       evaluation.Gateway
	gen      evaluation.GenerationOptions
	maxChars int
	logger   *slog.Logger
}

func New(s retrieval.Searcher, gw evaluation.Gateway, maxChars int, logger *slog.Logger) *Researcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Researcher{
		searcher: s,
		gw:       gw,
		gen:      evaluation.GenerationOptions{Temperature: 0.3},
		maxChars: maxChars,
		logger:   logger,
	}
}

// WithGeneration sets the model options for the summary call.
func (r *Researcher) WithGeneration(g evaluation.GenerationOptions) *Researcher {
	r.gen = g
	return r
}

type query struct {
	key   string
	label string
	text  string
}

func queries(stmt evaluation.Statement) []query {
	bg := strings.TrimSpace(strings.Join([]string{stmt.Background.When, stmt.Background.Where}, " "))
	contextQ := stmt.Text
	if bg != "" {
		contextQ += " " + bg
	}
	qs := []query{
		{FindingStatement, "Statement", fmt.Sprintf("%q %s fact check verification", stmt.Text, stmt.Speaker.Name)},
		{FindingContext, "Context", contextQ + " background context"},
	}
	if stmt.Speaker.Name != "" {
		qs = append(qs, query{FindingSpeaker, "Speaker", fmt.Sprintf("%q biography background political history", stmt.Speaker.Name)})
	}
	return qs
}

type outcome struct {
	text    string
	sources []string
	failed  bool
}

// Research runs the searches concurrently, then asks the gateway for a
// summary.
func (r *Researcher) Research(ctx context.Context, stmt evaluation.Statement) evaluation.ResearchBrief {
	qs := queries(stmt)
	slots := make([]outcome, len(qs))

	var g errgroup.Group
	for i, q := range qs {
		g.Go(func() error {
			slots[i] = r.search(ctx, q)
			return nil
		})
	}
	_ = g.Wait()

	brief := evaluation.ResearchBrief{
		Findings: make(map[string]string, len(qs)),
		Sources:  []string{},
	}
	seen := map[string]bool{}
	for i, q := range qs {
		brief.Findings[q.key] = slots[i].text
		if slots[i].failed {
			continue
		}
		for _, src := range slots[i].sources {
			if !seen[src] {
				seen[src] = true
				brief.Sources = append(brief.Sources, src)
			}
		}
	}
	if summary, err := r.summarize(ctx, stmt, brief.Findings); err != nil {
		r.logger.Warn("research summary failed", "error", err)
		brief.Summary = "Failed to generate summary: " + err.Error()
		brief.SummaryError = err.Error()
	} else {
		brief.Summary = summary
	}
	r.logger.Info("research complete", "sources", len(brief.Sources))
	return brief
}

func (r *Researcher) search(ctx context.Context, q query) outcome {
	res, err := r.searcher.Search(ctx, q.text)
	if err != nil {
		r.logger.Warn("research search failed", "kind", q.key, "error", err)
		return outcome{text: fmt.Sprintf("%s search failed: %v", q.label, err), failed: true}
	}
	out := outcome{text: retrieval.Format(res, r.maxChars)}
	for _, hit := range res {
		if hit.URL != "" {
			out.sources = append(out.sources, hit.URL)
		}
	}
	return out
}

func (r *Researcher) summarize(ctx context.Context, stmt evaluation.Statement, findings map[string]string) (string, error) {
	speaker := findings[FindingSpeaker]
	if speaker == "" {
		speaker = "No speaker information available"
	}
	bg := strings.TrimSpace(strings.Join([]string{stmt.Background.Where, stmt.Background.When}, ", "))
	prompt := fmt.Sprintf(summaryPrompt,
		stmt.Text, stmt.SpeakerLine(), strings.Trim(bg, ", "),
		findings[FindingStatement], findings[FindingContext], speaker)

	resp, err := r.gw.Complete(ctx, llm.Request{
		Model:       r.gen.Model,
		Messages:    []llm.Message{{Role: "user", Content: prompt}},
		Temperature: r.gen.Temperature,
		MaxTokens:   r.gen.MaxTokens,
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(resp.Content), nil
}

var _ evaluation.Researcher = (*Researcher)(nil)
