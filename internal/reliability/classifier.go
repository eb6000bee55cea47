// Package reliability classifies upstream failures and paces retries.
package reliability

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/antoniostano/voicebot/internal/faults"
)

// IsRetryableHTTPStatus classifies retryable HTTP status codes.
func IsRetryableHTTPStatus(code int) bool {
	switch code {
	case 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

// IsRetryableRealtimeMessageType classifies retryable upstream websocket errors.
func IsRetryableRealtimeMessageType(messageType string) bool {
	switch messageType {
	case "rate_limited", "resource_exhausted", "queue_overflow", "error":
		return true
	default:
		return false
	}
}

// RecognitionFromStatus converts a non-2xx speech API response into a
// recognition error. Credential and quota rejections mean the provider is
// unusable here; everything else is a service failure.
func RecognitionFromStatus(provider string, code int, body string) error {
	detail := fmt.Errorf("HTTP %d: %s", code, truncate(strings.TrimSpace(body), 512))
	switch {
	case code == http.StatusUnauthorized, code == http.StatusForbidden, code == http.StatusPaymentRequired:
		return faults.Unavailable(provider, detail)
	case IsRetryableHTTPStatus(code):
		return faults.ServiceFailure(provider, detail)
	default:
		return &faults.RecognitionError{Kind: faults.RecognitionService, Provider: provider, Err: detail}
	}
}

// RecognitionFromTransport converts a transport error into a retryable
// service failure. Caller cancellation is passed through unchanged.
func RecognitionFromTransport(provider string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	if _, ok := faults.AsRecognition(err); ok {
		return err
	}
	return faults.ServiceFailure(provider, err)
}

// ExponentialBackoff computes a deterministic capped backoff duration.
func ExponentialBackoff(attempt int, base, cap time.Duration) time.Duration {
	if attempt <= 0 {
		return base
	}
	d := base
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= cap {
			return cap
		}
	}
	return d
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
