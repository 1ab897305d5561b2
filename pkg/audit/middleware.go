package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/hazyhaar/pkg/kit"
)

const maxResult = 4096

// Middleware wraps an Endpoint: measures duration, captures params/result/error,
// and logs asynchronously via the Logger. Results are truncated to maxResult.
func Middleware(logger Logger, actionName string) kit.Middleware {
	return func(next kit.Endpoint) kit.Endpoint {
		return func(ctx context.Context, request any) (any, error) {
			start := time.Now()

			resp, err := next(ctx, request)

			c := callerOf(ctx)
			entry := &Entry{
				Action:     actionName,
				Transport:  c.Transport,
				UserID:     c.UserID,
				RequestID:  c.RequestID,
				DurationMs: time.Since(start).Milliseconds(),
			}

			if params, e := json.Marshal(request); e == nil {
				entry.Parameters = string(params)
			}
			if err != nil {
				entry.Error = err.Error()
				entry.Status = "error"
			} else {
				entry.Status = "success"
				if result, e := json.Marshal(resp); e == nil {
					entry.Result = truncate(string(result), maxResult)
				}
			}

			logger.LogAsync(entry)
			return resp, err
		}
	}
}

// Caller identifies who invoked an audited action.
type Caller struct {
	Transport string
	UserID    string
	RequestID string
}

type callerKey struct{}

// WithCaller attaches caller details for Middleware to record.
func WithCaller(ctx context.Context, c Caller) context.Context {
	return context.WithValue(ctx, callerKey{}, c)
}

// callerOf prefers values set with WithCaller and falls back to kit's
// context keys.
func callerOf(ctx context.Context) Caller {
	c, _ := ctx.Value(callerKey{}).(Caller)
	if c.Transport == "" {
		c.Transport = kit.GetTransport(ctx)
	}
	if c.UserID == "" {
		c.UserID = kit.GetUserID(ctx)
	}
	if c.RequestID == "" {
		c.RequestID = kit.GetRequestID(ctx)
	}
	return c
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "...(truncated)"
}
