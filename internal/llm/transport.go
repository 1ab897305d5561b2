package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultHTTPTimeout = 120 * time.Second

// postJSON sends body to url and decodes a 200 reply into out. Status codes
// are mapped onto the package sentinels so retry and fallback logic can
// reason about them.
func postJSON(ctx context.Context, client *http.Client, provider, model, url string, headers map[string]string, body, out any) (time.Duration, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return 0, &ProviderError{Provider: provider, Model: model, Err: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return 0, &ProviderError{Provider: provider, Model: model, Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		httpReq.Header.Set(k, v)
	}

	start := time.Now()
	httpResp, err := client.Do(httpReq)
	latency := time.Since(start)
	if err != nil {
		return latency, &ProviderError{Provider: provider, Model: model, Err: err}
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return latency, &ProviderError{Provider: provider, Model: model, Err: err}
	}

	if err := classifyStatus(httpResp.StatusCode, respBody); err != nil {
		return latency, &ProviderError{Provider: provider, Model: model, Err: err}
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return latency, &ProviderError{Provider: provider, Model: model, Err: fmt.Errorf("decoding response: %w", err)}
	}
	return latency, nil
}

func classifyStatus(code int, body []byte) error {
	switch {
	case code == http.StatusOK:
		return nil
	case code == http.StatusTooManyRequests:
		return ErrRateLimited
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return fmt.Errorf("%w: HTTP %d", ErrUnauthorized, code)
	case code == http.StatusRequestEntityTooLarge,
		code == http.StatusBadRequest && strings.Contains(strings.ToLower(string(body)), "context_length"):
		return fmt.Errorf("%w: HTTP %d", ErrContextTooLong, code)
	default:
		return fmt.Errorf("HTTP %d: %s", code, truncate(string(body), 200))
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
