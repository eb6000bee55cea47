package faults

import (
	"context"
	"net/http"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPStatusMapsTaxonomy(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, http.StatusOK},
		{"validation", Invalid("audio", "empty"), http.StatusBadRequest},
		{"wrapped validation", errors.Wrap(Invalid("message", "empty"), "text turn"), http.StatusBadRequest},
		{"unintelligible", Unintelligible("google"), http.StatusUnprocessableEntity},
		{"service", ServiceFailure("google", errors.New("503")), http.StatusBadGateway},
		{"unavailable", Unavailable("google", errors.New("no key")), http.StatusServiceUnavailable},
		{"synthesis", &SynthesisError{}, http.StatusBadGateway},
		{"configuration", Misconfigured("VOICE_PROVIDER", "unknown"), http.StatusServiceUnavailable},
		{"timeout", errors.Wrap(context.DeadlineExceeded, "call"), http.StatusGatewayTimeout},
		{"other", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, HTTPStatus(tc.err))
		})
	}
}

func TestRecognitionErrorClassification(t *testing.T) {
	err := errors.Wrap(ServiceFailure("elevenlabs", errors.New("status 502")), "transcribe")
	rec, ok := AsRecognition(err)
	require.True(t, ok)
	assert.Equal(t, RecognitionService, rec.Kind)
	assert.True(t, rec.Retryable)
	assert.Contains(t, err.Error(), "elevenlabs")

	rec, ok = AsRecognition(Unintelligible("mock"))
	require.True(t, ok)
	assert.False(t, rec.Retryable)
}

func TestSynthesisErrorListsEveryAttempt(t *testing.T) {
	err := &SynthesisError{Attempts: []Attempt{
		{Provider: "google-tts", Err: errors.New("dial tcp: timeout")},
		{Provider: "espeak", Err: errors.New("executable not found")},
	}}
	assert.Contains(t, err.Error(), "google-tts: dial tcp: timeout")
	assert.Contains(t, err.Error(), "espeak: executable not found")
	assert.True(t, IsSynthesis(errors.Wrap(err, "speak")))
}
