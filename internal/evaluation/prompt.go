package evaluation

import (
	"context"
	"strings"
	"text/template"
)

const userTemplate = `Statement: "{{.Statement.Text}}"
Speaker: {{.Speaker}}
{{- with .Statement.Background.Where}}
Where: {{.}}{{end}}
{{- with .Statement.Background.When}}
When: {{.}}{{end}}
Context: {{if .Context}}{{.Context}}{{else}}None provided{{end}}
{{- with .Research}}

Research Summary:
{{.}}{{end}}

Your task is to:
{{- range $i, $step := .Instructions}}
{{inc $i}}. {{$step}}{{end}}
`

const formatInstructions = `Provide your analysis as a single JSON object with exactly these keys:
{
  "perspective": "one line describing your point of view",
  "analysis": "your detailed analysis",
  "confidence_score": 0.0,
  "key_findings": ["finding", "..."],
  "supporting_evidence": [{"source": "source name", "excerpt": "relevant quote"}],
  "verdict": "TRUE | FALSE | MISLEADING | UNVERIFIABLE",
  "reasoning": "why you reached the verdict"
}
confidence_score is a number between 0 and 1.`

const toolInstructions = `You may consult tools before answering. To call one, reply with exactly one line:
ACTION: <tool name>: <query>
You will receive the result as a line starting with OBSERVATION:. When you are done, reply with the JSON object only.
Available tools:`

type promptData struct {
	Statement    Statement
	Speaker      string
	Context      string
	Research     string
	Instructions []string
}

var promptFuncs = template.FuncMap{
	"inc": func(i int) int { return i + 1 },
}

func parseUserTemplate() (*template.Template, error) {
	return template.New("evaluator").Funcs(promptFuncs).Parse(userTemplate)
}

func renderSystem(role Role, toolLines []string) string {
	var b strings.Builder
	b.WriteString(role.System)
	b.WriteString("\n\n")
	if len(toolLines) > 0 {
		b.WriteString(toolInstructions)
		for _, l := range toolLines {
			b.WriteString("\n- ")
			b.WriteString(l)
		}
		b.WriteString("\n\n")
	}
	b.WriteString(formatInstructions)
	return b.String()
}

type ctxKey int

const (
	researchKey ctxKey = iota
	flowKey
)

// WithResearch attaches a research summary that evaluators embed in their
// prompts.
func WithResearch(ctx context.Context, summary string) context.Context {
	return context.WithValue(ctx, researchKey, summary)
}

func researchFrom(ctx context.Context) string {
	s, _ := ctx.Value(researchKey).(string)
	return s
}

// WithFlowID tags gateway calls made under ctx with a trace flow ID.
func WithFlowID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, flowKey, id)
}

func flowFrom(ctx context.Context) string {
	s, _ := ctx.Value(flowKey).(string)
	return s
}
