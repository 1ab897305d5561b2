package evaluation

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hazyhaar/factlens/internal/llm"
	"github.com/hazyhaar/factlens/internal/retrieval"
)

// Gateway is the language-model capability. *llm.Client satisfies it.
type Gateway interface {
	Complete(ctx context.Context, req llm.Request) (*llm.Response, error)
}

// TraceStep is one gateway call, recorded for forensics.
type TraceStep struct {
	FlowID       string
	StepIndex    int
	Agent        string
	Provider     string
	Model        string
	SystemPrompt string
	Prompt       string
	Response     string
	TokensIn     int
	TokensOut    int
	LatencyMs    int
	FinishReason string
	Error        string
}

// Tracer persists trace steps. Failures to record never fail an evaluation.
type Tracer interface {
	RecordStep(ctx context.Context, step TraceStep) error
}

// GenerationOptions are passed through to every gateway request.
type GenerationOptions struct {
	Model       string
	Temperature float64
	MaxTokens   int
}

const toolBudgetExhausted = "Tool budget exhausted. Reply now with the final JSON object and no ACTION line."

// executor is a bounded tool loop over the gateway.
type executor struct {
	agent    string
	gw       Gateway
	gen      GenerationOptions
	tools    map[string]retrieval.Tool
	maxSteps int
	tracer   Tracer
	logger   *slog.Logger
}

func (x *executor) run(ctx context.Context, system, user string) (string, error) {
	messages := []llm.Message{
		{Role: "system", Content: system},
		{Role: "user", Content: user},
	}
	actions := 0
	for call := 0; ; call++ {
		text, err := x.complete(ctx, call, messages)
		if err != nil {
			return "", err
		}
		if len(x.tools) == 0 {
			return text, nil
		}
		name, input, ok := parseAction(text)
		if !ok {
			return text, nil
		}
		messages = append(messages, llm.Message{Role: "assistant", Content: text})

		if actions >= x.maxSteps {
			messages = append(messages, llm.Message{Role: "user", Content: toolBudgetExhausted})
			return x.complete(ctx, call+1, messages)
		}
		actions++
		obs := x.observe(ctx, name, input)
		messages = append(messages, llm.Message{Role: "user", Content: "OBSERVATION: " + obs})
	}
}

func (x *executor) observe(ctx context.Context, name, input string) string {
	tool, ok := x.tools[name]
	if !ok {
		return fmt.Sprintf("tool error: unknown tool %q", name)
	}
	out, err := tool.Run(ctx, input)
	if err != nil {
		x.logger.Debug("tool failed", "agent", x.agent, "tool", name, "error", err)
		return "tool error: " + err.Error()
	}
	return out
}

func (x *executor) complete(ctx context.Context, index int, messages []llm.Message) (string, error) {
	req := llm.Request{
		Model:       x.gen.Model,
		Messages:    messages,
		Temperature: x.gen.Temperature,
		MaxTokens:   x.gen.MaxTokens,
	}
	start := time.Now()
	resp, err := x.gw.Complete(ctx, req)
	x.trace(ctx, index, messages, resp, time.Since(start), err)
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}

func (x *executor) trace(ctx context.Context, index int, messages []llm.Message, resp *llm.Response, elapsed time.Duration, err error) {
	if x.tracer == nil {
		return
	}
	step := TraceStep{
		FlowID:       flowFrom(ctx),
		StepIndex:    index,
		Agent:        x.agent,
		SystemPrompt: messages[0].Content,
		Prompt:       messages[len(messages)-1].Content,
		LatencyMs:    int(elapsed.Milliseconds()),
	}
	if resp != nil {
		step.Provider = resp.Provider
		step.Model = resp.Model
		step.Response = resp.Content
		step.TokensIn = resp.TokensIn
		step.TokensOut = resp.TokensOut
		step.FinishReason = resp.FinishReason
	}
	if err != nil {
		step.Error = err.Error()
	}
	// Recording must not observe the evaluator's deadline.
	if rerr := x.tracer.RecordStep(context.WithoutCancel(ctx), step); rerr != nil {
		x.logger.Warn("trace step not recorded", "agent", x.agent, "error", rerr)
	}
}

// parseAction finds an "ACTION: tool: input" line.
func parseAction(text string) (tool, input string, ok bool) {
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		rest, found := strings.CutPrefix(line, "ACTION:")
		if !found {
			continue
		}
		name, arg, _ := strings.Cut(rest, ":")
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		return name, strings.TrimSpace(arg), true
	}
	return "", "", false
}
