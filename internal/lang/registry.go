// Package lang resolves and detects the BCP-47 language tags the voicebot can serve.
package lang

import (
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/text/language"
)

// Tag is a BCP-47 code from the configured supported set, e.g. "hi-IN".
type Tag string

// String returns the tag as text.
func (t Tag) String() string { return string(t) }

// Base returns the primary language subtag ("hi" for "hi-IN").
func (t Tag) Base() string {
	base, _, _ := strings.Cut(string(t), "-")
	return strings.ToLower(base)
}

// Info describes a supported language for listings.
type Info struct {
	Tag    Tag    `json:"code"`
	Name   string `json:"name"`
	Native string `json:"native_name"`
}

var displayNames = map[string][2]string{
	"en": {"English", "English"},
	"hi": {"Hindi", "हिन्दी"},
	"ta": {"Tamil", "தமிழ்"},
	"te": {"Telugu", "తెలుగు"},
	"mr": {"Marathi", "मराठी"},
	"gu": {"Gujarati", "ગુજરાતી"},
	"bn": {"Bengali", "বাংলা"},
	"kn": {"Kannada", "ಕನ್ನಡ"},
	"ml": {"Malayalam", "മലയാളം"},
	"pa": {"Punjabi", "ਪੰਜਾਬੀ"},
}

// Registry holds the supported tags and the default. It is immutable.
type Registry struct {
	def       Tag
	supported []Tag
	parsed    []language.Tag
}

// NewRegistry validates and canonicalizes the configured languages.
func NewRegistry(defaultTag string, supported []string) (*Registry, error) {
	r := &Registry{}
	seen := make(map[Tag]struct{}, len(supported))
	for _, raw := range supported {
		parsed, err := language.Parse(strings.TrimSpace(raw))
		if err != nil {
			return nil, errors.Wrapf(err, "parse supported language %q", raw)
		}
		tag := Tag(parsed.String())
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		r.supported = append(r.supported, tag)
		r.parsed = append(r.parsed, parsed)
	}
	if len(r.supported) == 0 {
		return nil, errors.New("no supported languages configured")
	}
	parsedDef, err := language.Parse(strings.TrimSpace(defaultTag))
	if err != nil {
		return nil, errors.Wrapf(err, "parse default language %q", defaultTag)
	}
	r.def = Tag(parsedDef.String())
	if _, ok := seen[r.def]; !ok {
		return nil, errors.Errorf("default language %s is not supported", r.def)
	}
	return r, nil
}

// Default returns the fallback tag.
func (r *Registry) Default() Tag { return r.def }

// Supported returns the supported tags in configured order.
func (r *Registry) Supported() []Tag {
	out := make([]Tag, len(r.supported))
	copy(out, r.supported)
	return out
}

// IsSupported reports whether tag is exactly one of the supported tags.
func (r *Registry) IsSupported(tag Tag) bool {
	for _, t := range r.supported {
		if t == tag {
			return true
		}
	}
	return false
}

// Resolve maps any caller-supplied tag onto the supported set. Exact matches win,
// then a supported tag with the same base language; anything else is the default.
func (r *Registry) Resolve(raw string) Tag {
	tag, ok := r.Lookup(raw)
	if !ok {
		return r.def
	}
	return tag
}

// Lookup is Resolve without the default fallback.
func (r *Registry) Lookup(raw string) (Tag, bool) {
	raw = strings.TrimSpace(strings.ReplaceAll(raw, "_", "-"))
	if raw == "" {
		return "", false
	}
	parsed, err := language.Parse(raw)
	if err != nil {
		return "", false
	}
	for i, t := range r.parsed {
		if t.String() == parsed.String() {
			return r.supported[i], true
		}
	}
	base, _ := parsed.Base()
	for i, t := range r.parsed {
		if b, _ := t.Base(); b == base {
			return r.supported[i], true
		}
	}
	return "", false
}

// Info returns display names for tag.
func (r *Registry) Info(tag Tag) Info {
	names, ok := displayNames[tag.Base()]
	if !ok {
		return Info{Tag: tag, Name: string(tag), Native: string(tag)}
	}
	return Info{Tag: tag, Name: names[0], Native: names[1]}
}

// Languages lists Info for every supported tag.
func (r *Registry) Languages() []Info {
	out := make([]Info, 0, len(r.supported))
	for _, t := range r.supported {
		out = append(out, r.Info(t))
	}
	return out
}
