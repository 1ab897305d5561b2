// CLAUDE:SUMMARY Dataset export of stored evaluations as JSONL or a YAML document stream, speakers pseudonymized per export
// Package export dumps stored evaluation reports for dataset consumption.
package export

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hazyhaar/factlens/internal/evaluation"
)

const Version = "1.0"

// Format selects the output encoding.
type Format string

const (
	FormatJSONL Format = "jsonl"
	FormatYAML  Format = "yaml"
)

// ParseFormat accepts "jsonl", "json" and "yaml"/"yml".
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "", "jsonl", "json":
		return FormatJSONL, nil
	case "yaml", "yml":
		return FormatYAML, nil
	}
	return "", fmt.Errorf("unknown export format %q", s)
}

// Source iterates stored reports oldest first. *db.DB satisfies it.
type Source interface {
	EachReport(ctx context.Context, fn func(*evaluation.Report) error) error
}

// Record is one exported evaluation.
type Record struct {
	ExportedAt     string                     `json:"exported_at" yaml:"exported_at"`
	Version        string                     `json:"export_version" yaml:"export_version"`
	ID             string                     `json:"id" yaml:"id"`
	Statement      evaluation.Statement       `json:"statement" yaml:"statement"`
	Context        string                     `json:"context,omitempty" yaml:"context,omitempty"`
	Perspectives   []evaluation.AgentAnalysis `json:"perspectives" yaml:"perspectives"`
	Synthesis      evaluation.Synthesis       `json:"synthesis" yaml:"synthesis"`
	ConsensusLevel float64                    `json:"consensus_level" yaml:"consensus_level"`
	Assessment     evaluation.Assessment      `json:"assessment" yaml:"assessment"`
	CreatedAt      time.Time                  `json:"created_at" yaml:"created_at"`
}

// Stats summarizes one export run.
type Stats struct {
	Records  int `json:"records"`
	Speakers int `json:"speakers"`
}

type Exporter struct {
	src Source
	now func() time.Time
}

func NewExporter(src Source) *Exporter {
	return &Exporter{src: src, now: time.Now}
}

// Export writes every stored report to w. Speaker names are replaced by a
// pseudonym that is stable within one export and unlinkable across exports.
func (e *Exporter) Export(ctx context.Context, w io.Writer, format Format) (Stats, error) {
	anon := newAnonMap()
	exportedAt := e.now().UTC().Format(time.RFC3339)

	var encode func(Record) error
	switch format {
	case FormatJSONL:
		enc := json.NewEncoder(w)
		encode = func(r Record) error { return enc.Encode(r) }
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		defer enc.Close()
		encode = func(r Record) error { return enc.Encode(r) }
	default:
		return Stats{}, fmt.Errorf("unknown export format %q", format)
	}

	var stats Stats
	err := e.src.EachReport(ctx, func(r *evaluation.Report) error {
		rec := anonymize(r, anon)
		rec.ExportedAt = exportedAt
		rec.Version = Version
		if err := encode(rec); err != nil {
			return fmt.Errorf("encoding %s: %w", r.ID, err)
		}
		stats.Records++
		return nil
	})
	stats.Speakers = len(anon.mapping)
	if err != nil {
		return stats, fmt.Errorf("exporting: %w", err)
	}
	return stats, nil
}

// anonymize copies the report, replacing the speaker name everywhere it
// appears in free text.
func anonymize(r *evaluation.Report, anon *anonMap) Record {
	stmt := r.Statement
	name := strings.TrimSpace(stmt.Speaker.Name)
	scrub := func(s string) string { return s }
	if name != "" {
		alias := anon.get(name)
		stmt.Speaker.Name = alias
		replacer := strings.NewReplacer(name, alias)
		scrub = replacer.Replace
	}
	stmt.Text = scrub(stmt.Text)

	perspectives := r.Ordered()
	for i := range perspectives {
		p := &perspectives[i]
		p.Analysis = scrub(p.Analysis)
		p.Reasoning = scrub(p.Reasoning)
		p.KeyFindings = scrubAll(p.KeyFindings, scrub)
	}

	syn := r.Synthesis
	syn.Summary = scrub(syn.Summary)
	syn.KeyDisagreements = scrubAll(syn.KeyDisagreements, scrub)
	syn.ActionItems = scrubAll(syn.ActionItems, scrub)

	return Record{
		ID:             r.ID,
		Statement:      stmt,
		Context:        scrub(r.Context),
		Perspectives:   perspectives,
		Synthesis:      syn,
		ConsensusLevel: r.ConsensusLevel,
		Assessment:     r.Assessment,
		CreatedAt:      r.CreatedAt,
	}
}

func scrubAll(in []string, scrub func(string) string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = scrub(s)
	}
	return out
}

// anonMap maps real speaker names to randomized stable IDs within one export.
type anonMap struct {
	mapping map[string]string
	salt    string
}

func newAnonMap() *anonMap {
	salt := make([]byte, 16)
	_, _ = rand.Read(salt)
	return &anonMap{
		mapping: make(map[string]string),
		salt:    hex.EncodeToString(salt),
	}
}

func (m *anonMap) get(name string) string {
	if anon, ok := m.mapping[name]; ok {
		return anon
	}
	hash := sha256.Sum256([]byte(m.salt + name))
	anon := "speaker_" + hex.EncodeToString(hash[:6])
	m.mapping[name] = anon
	return anon
}
