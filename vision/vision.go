// Package vision sends a screenshot and a question to a hosted vision
// model.
package vision

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

type NetworkMetrics struct {
	DNS         time.Duration
	ConnWait    time.Duration
	TCP         time.Duration
	TLS         time.Duration
	ReqHeaders  time.Duration
	ReqBody     time.Duration
	TTFB        time.Duration
	Download    time.Duration
	Total       time.Duration
	ConnReused  bool
	TLSProtocol string
}

func (m *NetworkMetrics) Sum() time.Duration {
	return m.ConnWait + m.DNS + m.TCP + m.TLS + m.ReqHeaders + m.ReqBody + m.TTFB + m.Download
}

func firstNonEmpty(h http.Header, keys ...string) string {
	for _, k := range keys {
		if v := h.Get(k); v != "" {
			return v
		}
	}
	return "?"
}

type Result struct {
	Text         string
	Model        string
	PromptTokens int
	OutputTokens int
	FinishReason string
	RateLimit    string
	Metrics      *NetworkMetrics
}

type Analyzer interface {
	Name() string
	Model() string
	Analyze(ctx context.Context, image []byte, question string) (*Result, error)
}

// APIError is a non-2xx reply from the provider.
type APIError struct {
	Provider string
	Status   int
	Message  string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s API error %d: %s", e.Provider, e.Status, e.Message)
}

// Retryable reports rate limiting and server-side failures.
func (e *APIError) Retryable() bool {
	return e.Status == http.StatusTooManyRequests || e.Status >= 500
}
