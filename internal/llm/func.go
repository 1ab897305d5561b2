package llm

import "context"

// FuncProvider adapts a plain function to the Provider interface, for
// tests and for programs that embed the client with their own backend.
type FuncProvider struct {
	ProviderName string
	Fn           func(ctx context.Context, req Request) (*Response, error)
}

func (p *FuncProvider) Name() string     { return p.ProviderName }
func (p *FuncProvider) Models() []string { return nil }

func (p *FuncProvider) Complete(ctx context.Context, req Request) (*Response, error) {
	resp, err := p.Fn(ctx, req)
	if err != nil {
		return nil, &ProviderError{Provider: p.ProviderName, Model: req.Model, Err: err}
	}
	if resp.Provider == "" {
		resp.Provider = p.ProviderName
	}
	return resp, nil
}

// StaticProvider answers every request with the same content.
func StaticProvider(name, content string) *FuncProvider {
	return &FuncProvider{
		ProviderName: name,
		Fn: func(_ context.Context, req Request) (*Response, error) {
			return &Response{Model: req.Model, Content: content, FinishReason: "stop"}, nil
		},
	}
}
