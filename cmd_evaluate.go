package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/hazyhaar/factlens/internal/evaluation"
)

var evalFlags struct {
	agents   []string
	speaker  string
	role     string
	party    string
	where    string
	when     string
	context  string
	sample   string
	format   string
	research bool
	noSave   bool
}

var evaluateCmd = &cobra.Command{
	Use:   "evaluate [statement]",
	Short: "Evaluate one statement and print the report",
	Example: `  factlens evaluate "We send the EU £350 million a week." --speaker "Boris Johnson" --when 2016
  factlens evaluate --sample putin_crimea --format yaml
  factlens evaluate --sample obama_laden --agents fact_checker,nerd`,
	Args: cobra.MaximumNArgs(1),
	RunE: runEvaluate,
}

func init() {
	f := evaluateCmd.Flags()
	f.StringSliceVar(&evalFlags.agents, "agents", nil, "evaluators to run (default: all registered)")
	f.StringVar(&evalFlags.speaker, "speaker", "", "speaker name")
	f.StringVar(&evalFlags.role, "role", "", "speaker role or office")
	f.StringVar(&evalFlags.party, "party", "", "speaker party or affiliation")
	f.StringVar(&evalFlags.where, "where", "", "where the statement was made")
	f.StringVar(&evalFlags.when, "when", "", "when the statement was made")
	f.StringVar(&evalFlags.context, "context", "", "additional free-text context")
	f.StringVar(&evalFlags.sample, "sample", "", "use a built-in sample statement ("+strings.Join(sampleNames(), ", ")+")")
	f.StringVar(&evalFlags.format, "format", "text", "output format: text, json or yaml")
	f.BoolVar(&evalFlags.research, "research", false, "run the research pre-pass")
	f.BoolVar(&evalFlags.noSave, "no-save", false, "do not store the report")
}

// statementFromFlags resolves the statement from a sample or the argument,
// with explicit flags overriding sample fields.
func statementFromFlags(args []string) (evaluation.Statement, error) {
	var stmt evaluation.Statement
	if evalFlags.sample != "" {
		s, ok := samples[evalFlags.sample]
		if !ok {
			return stmt, fmt.Errorf("unknown sample %q (have %s)", evalFlags.sample, strings.Join(sampleNames(), ", "))
		}
		stmt = s
	}
	if len(args) == 1 {
		stmt.Text = args[0]
	}
	if strings.TrimSpace(stmt.Text) == "" {
		return stmt, fmt.Errorf("a statement argument or --sample is required")
	}
	override := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	override(&stmt.Speaker.Name, evalFlags.speaker)
	override(&stmt.Speaker.Role, evalFlags.role)
	override(&stmt.Speaker.Party, evalFlags.party)
	override(&stmt.Background.Where, evalFlags.where)
	override(&stmt.Background.When, evalFlags.when)
	stmt.Text = strings.TrimSpace(stmt.Text)
	return stmt, nil
}

func runEvaluate(cmd *cobra.Command, args []string) error {
	stmt, err := statementFromFlags(args)
	if err != nil {
		return err
	}
	switch evalFlags.format {
	case "text", "json", "yaml":
	default:
		return fmt.Errorf("unknown format %q", evalFlags.format)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if evalFlags.research {
		cfg.Evaluation.Research = true
	}
	a, err := openApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	report, err := a.orch.EvaluateStatement(cmd.Context(), stmt, evalFlags.context, evalFlags.agents)
	if err != nil {
		return err
	}
	if a.metrics != nil {
		a.metrics.ObserveVerdict(report.Synthesis.Verdict)
	}
	if !evalFlags.noSave {
		if err := a.db.SaveReport(cmd.Context(), "", report); err != nil {
			a.logger.Warn("report not stored", "error", err)
		}
	}
	return writeReport(cmd.OutOrStdout(), report, evalFlags.format)
}

func writeReport(w io.Writer, r *evaluation.Report, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(r)
	}
	renderText(w, r)
	return nil
}

func renderText(w io.Writer, r *evaluation.Report) {
	fmt.Fprintf(w, "Statement: %q\n", r.Statement.Text)
	fmt.Fprintf(w, "Speaker:   %s\n", r.Statement.SpeakerLine())
	if bg := strings.Trim(r.Statement.Background.Where+", "+r.Statement.Background.When, ", "); bg != "" {
		fmt.Fprintf(w, "Context:   %s\n", bg)
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, r.Digest.QuickSummary)
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Confidence: %.0f%%   Weighted assessment: %s (%.2f)\n",
		r.Synthesis.Confidence*100, r.Assessment.Verdict.Label(), r.Assessment.Score)

	fmt.Fprintln(w, "\nPerspectives:")
	for _, p := range r.Ordered() {
		if !p.Usable() {
			fmt.Fprintf(w, "  %-14s FAILED  %s\n", p.Agent, p.Error)
			continue
		}
		fmt.Fprintf(w, "  %-14s %-13s %3.0f%%  %s\n", p.Agent, p.Verdict, p.ConfidenceScore*100, p.Perspective)
	}
	if len(r.Synthesis.KeyDisagreements) > 0 {
		fmt.Fprintln(w, "\nDisagreements:")
		for _, d := range r.Synthesis.KeyDisagreements {
			fmt.Fprintf(w, "  - %s\n", d)
		}
	}
	if len(r.Synthesis.ActionItems) > 0 {
		fmt.Fprintln(w, "\nFollow-up:")
		for _, item := range r.Synthesis.ActionItems {
			fmt.Fprintf(w, "  - %s\n", item)
		}
	}
	if r.Research != nil && len(r.Research.Sources) > 0 {
		fmt.Fprintln(w, "\nSources:")
		for _, s := range r.Research.Sources {
			fmt.Fprintf(w, "  - %s\n", s)
		}
	}
	fmt.Fprintf(w, "\nReport %s (%d ms)\n", r.ID, r.DurationMs)
}

func sampleNames() []string {
	names := make([]string, 0, len(samples))
	for n := range samples {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// samples are well-known statements with a generally agreed assessment,
// useful for checking the pipeline end to end.
var samples = map[string]evaluation.Statement{
	"obama_laden": {
		Text:       "Bin Laden is dead, and General Motors is alive.",
		Speaker:    evaluation.Speaker{Name: "Barack Obama", Role: "President", Party: "Democratic"},
		Background: evaluation.Background{Where: "2012 campaign", When: "2012"},
	},
	"trump_rate": {
		Text:       "The crime rate in the U.S. is the highest it's been in 47 years.",
		Speaker:    evaluation.Speaker{Name: "Donald Trump", Role: "President", Party: "Republican"},
		Background: evaluation.Background{Where: "Twitter", When: "2017"},
	},
	"merkel_euro": {
		Text:       "The euro is much more than a currency. It is the symbol of European unity and integration.",
		Speaker:    evaluation.Speaker{Name: "Angela Merkel", Role: "Chancellor", Party: "CDU"},
		Background: evaluation.Background{Where: "Bundestag speech", When: "2010"},
	},
	"boris_brexit": {
		Text:       "We send the EU £350 million a week.",
		Speaker:    evaluation.Speaker{Name: "Boris Johnson", Role: "Vote Leave campaigner", Party: "Conservative"},
		Background: evaluation.Background{Where: "Brexit campaign bus", When: "2016"},
	},
	"putin_crimea": {
		Text:       "There are no Russian troops in Crimea.",
		Speaker:    evaluation.Speaker{Name: "Vladimir Putin", Role: "President"},
		Background: evaluation.Background{Where: "Press conference", When: "March 2014"},
	},
}
