package lang

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var indicSet = []string{"en-IN", "hi-IN", "ta-IN", "te-IN", "mr-IN", "gu-IN", "bn-IN"}

func newTestRegistry(t *testing.T, supported ...string) *Registry {
	t.Helper()
	if len(supported) == 0 {
		supported = indicSet
	}
	reg, err := NewRegistry("en-IN", supported)
	require.NoError(t, err)
	return reg
}

func TestRegistryResolve(t *testing.T) {
	reg := newTestRegistry(t)
	cases := map[string]Tag{
		"hi-IN": "hi-IN",
		"hi":    "hi-IN",
		"ta_IN": "ta-IN",
		"en-US": "en-IN",
		"fr-FR": "en-IN",
		"":      "en-IN",
		"???":   "en-IN",
	}
	for raw, want := range cases {
		assert.Equal(t, want, reg.Resolve(raw), "Resolve(%q)", raw)
	}
}

func TestNewRegistryRejectsUnsupportedDefault(t *testing.T) {
	_, err := NewRegistry("fr-FR", []string{"en-IN"})
	require.Error(t, err)
}

func TestRegistryLanguagesCarryNativeNames(t *testing.T) {
	reg := newTestRegistry(t, "en-IN", "hi-IN")
	langs := reg.Languages()
	require.Len(t, langs, 2)
	assert.Equal(t, Info{Tag: "hi-IN", Name: "Hindi", Native: "हिन्दी"}, langs[1])
}

func TestDetectByScript(t *testing.T) {
	det := NewDetector(newTestRegistry(t))
	cases := []struct {
		text string
		want Tag
	}{
		{"I want a bike under 1 lakh", "en-IN"},
		{"मुझे एक अच्छी बाइक चाहिए", "hi-IN"},
		{"मला नवीन बाइक पाहिजे", "mr-IN"},
		{"मी उद्या नवीन गाडी घेणार", "mr-IN"},
		{"எனக்கு ஒரு பைக் வேண்டும்", "ta-IN"},
		{"నాకు బైక్ కావాలి", "te-IN"},
		{"મારે બાઇક જોઈએ છે", "gu-IN"},
		{"আমি একটি বাইক চাই", "bn-IN"},
		{"मुझे Activa का price बताइए", "hi-IN"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, det.Detect(tc.text), "Detect(%q)", tc.text)
	}
}

func TestDetectDevanagariWithOneOfHindiOrMarathi(t *testing.T) {
	det := NewDetector(newTestRegistry(t, "en-IN", "mr-IN"))
	assert.Equal(t, Tag("mr-IN"), det.Detect("मुझे एक अच्छी बाइक चाहिए"))

	det = NewDetector(newTestRegistry(t, "en-IN", "hi-IN"))
	assert.Equal(t, Tag("hi-IN"), det.Detect("मी उद्या नवीन गाडी घेणार"))
}

func TestDetectFallsBackToDefault(t *testing.T) {
	det := NewDetector(newTestRegistry(t))
	for _, text := range []string{"", "   ", "12345 !!!", "🙂🙂"} {
		assert.Equal(t, Tag("en-IN"), det.Detect(text), "Detect(%q)", text)
	}
}

func TestDetectUnsupportedScriptUsesDefault(t *testing.T) {
	det := NewDetector(newTestRegistry(t, "en-IN", "hi-IN"))
	assert.Equal(t, Tag("en-IN"), det.Detect("எனக்கு ஒரு பைக் வேண்டும்"))
	assert.Equal(t, Tag("hi-IN"), det.Detect("मला नवीन बाइक पाहिजे"))
}

func TestDetectIsDeterministic(t *testing.T) {
	det := NewDetector(newTestRegistry(t))
	first := det.Detect("Which scooter has the best mileage?")
	for i := 0; i < 20; i++ {
		require.Equal(t, first, det.Detect("Which scooter has the best mileage?"))
	}
}
