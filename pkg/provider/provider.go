// Package provider contains the upstream HTTP clients the gateway relays to:
// the Ark-style image/video task API, the Gemini API, a DeepSeek-style
// OpenAI-compatible chat API, and a Mastra agent server.
package provider

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// Task statuses reported by the Ark task API. Anything else is treated as
// terminal-unknown by the poller.
const (
	StatusQueued     = "queued"
	StatusRunning    = "running"
	StatusProcessing = "processing"
	StatusSucceeded  = "succeeded"
	StatusFailed     = "failed"
	StatusCancelled  = "cancelled"
)

// HTTPError wraps a non-2xx upstream response.
type HTTPError struct {
	Provider   string
	StatusCode int
	Message    string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("provider %s: %s", e.Provider, e.Message)
}

// decodeHTTPError builds an HTTPError from a failed response, parsing the
// structured error body best-effort. A body that cannot be parsed falls back
// to "HTTP <status>: <statusText>" so the caller never receives an
// unparseable error.
func decodeHTTPError(providerName string, resp *http.Response) *HTTPError {
	msg := fmt.Sprintf("HTTP %d: %s", resp.StatusCode, http.StatusText(resp.StatusCode))
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 8192))
	var body struct {
		Error *struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(b, &body); err == nil {
		switch {
		case body.Error != nil && strings.TrimSpace(body.Error.Message) != "":
			if code := strings.TrimSpace(body.Error.Code); code != "" {
				msg = code + ": " + strings.TrimSpace(body.Error.Message)
			} else {
				msg = strings.TrimSpace(body.Error.Message)
			}
		case strings.TrimSpace(body.Message) != "":
			msg = strings.TrimSpace(body.Message)
		}
	}
	return &HTTPError{Provider: providerName, StatusCode: resp.StatusCode, Message: msg}
}

// GenerateResult is the outcome of one text generation call, streamed or not.
type GenerateResult struct {
	Text      string
	Reasoning string

	// Token counts as reported by the upstream; HasUsage is false when the
	// provider sent none and the caller should estimate instead.
	InputTokens  int
	OutputTokens int
	HasUsage     bool
}

// DeltaFunc receives incremental generation output. reasoning marks deltas
// from the model's reasoning channel.
type DeltaFunc func(reasoning bool, text string) error
