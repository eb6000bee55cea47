package lang

import (
	"strings"
	"unicode"

	"github.com/abadojack/whatlanggo"
)

// marathiMarkers are frequent Marathi function words that Hindi does not use.
// They settle Devanagari text the trigram model is unsure about.
var marathiMarkers = map[string]struct{}{
	"आहे": {}, "आहेत": {}, "मला": {}, "पाहिजे": {}, "नाही": {}, "तुम्ही": {},
	"काय": {}, "माझ्या": {}, "आणि": {}, "कसे": {}, "मध्ये": {}, "आम्ही": {},
}

var scriptTags = []struct {
	table *unicode.RangeTable
	base  string
}{
	{unicode.Devanagari, "hi"},
	{unicode.Tamil, "ta"},
	{unicode.Telugu, "te"},
	{unicode.Gujarati, "gu"},
	{unicode.Bengali, "bn"},
	{unicode.Kannada, "kn"},
	{unicode.Malayalam, "ml"},
	{unicode.Gurmukhi, "pa"},
}

var whatlangByBase = map[string]whatlanggo.Lang{
	"en": whatlanggo.Eng,
	"hi": whatlanggo.Hin,
	"mr": whatlanggo.Mar,
	"ta": whatlanggo.Tam,
	"te": whatlanggo.Tel,
	"gu": whatlanggo.Guj,
	"bn": whatlanggo.Ben,
	"kn": whatlanggo.Kan,
	"ml": whatlanggo.Mal,
	"pa": whatlanggo.Pan,
}

// minDevanagariConfidence is the whatlanggo confidence below which Marathi
// marker words override the trigram guess.
const minDevanagariConfidence = 0.5

// Detector guesses the language of free text. It is pure and safe for concurrent use.
type Detector struct {
	reg *Registry
	// opts whitelists the supported languages whatlanggo knows.
	opts whatlanggo.Options
}

// NewDetector builds a detector restricted to the registry's languages.
func NewDetector(reg *Registry) *Detector {
	d := &Detector{reg: reg, opts: whatlanggo.Options{Whitelist: map[whatlanggo.Lang]bool{}}}
	for _, tag := range reg.Supported() {
		if l, ok := whatlangByBase[tag.Base()]; ok {
			d.opts.Whitelist[l] = true
		}
	}
	return d
}

// Detect returns the most likely supported tag for text. Empty, ambiguous or
// unsupported input yields the registry default.
func (d *Detector) Detect(text string) Tag {
	text = strings.TrimSpace(text)
	if text == "" {
		return d.reg.Default()
	}

	counts := make([]int, len(scriptTags))
	latin := 0
	for _, r := range text {
		if !unicode.IsLetter(r) && !unicode.Is(unicode.Mn, r) && !unicode.Is(unicode.Mc, r) {
			continue
		}
		if unicode.Is(unicode.Latin, r) {
			latin++
			continue
		}
		for i, s := range scriptTags {
			if unicode.Is(s.table, r) {
				counts[i]++
				break
			}
		}
	}

	best, bestCount := -1, 0
	for i, c := range counts {
		if c > bestCount {
			best, bestCount = i, c
		}
	}
	if best >= 0 && bestCount >= latin {
		base := scriptTags[best].base
		if base == "hi" {
			return d.detectDevanagari(text)
		}
		return d.reg.Resolve(base)
	}
	if latin == 0 || len(d.opts.Whitelist) == 0 {
		return d.reg.Default()
	}

	info := whatlanggo.DetectWithOptions(text, d.opts)
	if info.Lang < 0 {
		return d.reg.Default()
	}
	return d.reg.Resolve(info.Lang.Iso6391())
}

// detectDevanagari separates Hindi from Marathi. whatlanggo decides on the
// Devanagari words alone; marker words settle low-confidence guesses.
func (d *Detector) detectDevanagari(text string) Tag {
	hi, hiOK := d.reg.Lookup("hi")
	mr, mrOK := d.reg.Lookup("mr")
	switch {
	case !mrOK:
		return d.reg.Resolve("hi")
	case !hiOK:
		return mr
	}

	opts := whatlanggo.Options{Whitelist: map[whatlanggo.Lang]bool{whatlanggo.Hin: true, whatlanggo.Mar: true}}
	info := whatlanggo.DetectWithOptions(devanagariOnly(text), opts)
	guess := hi
	if info.Lang == whatlanggo.Mar {
		guess = mr
	}
	confident := info.Script == unicode.Devanagari && info.Confidence >= minDevanagariConfidence
	if !confident && hasMarathiMarker(text) {
		return mr
	}
	return guess
}

// devanagariOnly drops runes outside Devanagari so embedded English model
// names do not change the script whatlanggo sees.
func devanagariOnly(text string) string {
	return strings.Map(func(r rune) rune {
		if unicode.Is(unicode.Devanagari, r) || unicode.IsSpace(r) {
			return r
		}
		return ' '
	}, text)
}

func hasMarathiMarker(text string) bool {
	for _, word := range strings.FieldsFunc(text, func(r rune) bool {
		return unicode.IsSpace(r) || unicode.IsPunct(r) || r == '।'
	}) {
		if _, ok := marathiMarkers[word]; ok {
			return true
		}
	}
	return false
}
