package voice

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/antoniostano/voicebot/internal/lang"
)

var (
	markdownLinkPattern = regexp.MustCompile(`\[(.*?)\]\((.*?)\)`)
	urlPattern          = regexp.MustCompile(`https?://\S+`)
	rupeeAmountPattern  = regexp.MustCompile(`₹\s?(\d[\d,]*(?:\.\d+)?)`)
	digitGroupPattern   = regexp.MustCompile(`(\d),(\d)`)
)

var rupeeWords = map[string]string{
	"en": "rupees",
	"hi": "रुपये",
	"mr": "रुपये",
	"ta": "ரூபாய்",
	"te": "రూపాయలు",
	"gu": "રૂપિયા",
	"bn": "টাকা",
}

// runeClass says what a reply rune becomes when spoken.
type runeClass int

const (
	runeKeep runeClass = iota
	runeDrop
	runePause
)

// sanitizeSpeechText turns a formatted reply into text a TTS engine reads
// naturally: link labels stay, URLs and emoji go, rupee amounts are spelled
// out in the reply language, and list markers become pauses.
func sanitizeSpeechText(raw string, tag lang.Tag) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	raw = markdownLinkPattern.ReplaceAllString(raw, "$1")
	raw = urlPattern.ReplaceAllString(raw, " ")
	raw = rupeeAmountPattern.ReplaceAllString(raw, "$1 "+rupeeWord(tag))
	// Grouping commas would be read as pauses.
	for digitGroupPattern.MatchString(raw) {
		raw = digitGroupPattern.ReplaceAllString(raw, "$1$2")
	}

	var b strings.Builder
	b.Grow(len(raw))
	pending := false
	for _, r := range raw {
		switch classifySpeechRune(r) {
		case runeDrop:
		case runePause:
			pending = b.Len() > 0
		default:
			if pending {
				b.WriteByte(' ')
				pending = false
			}
			b.WriteRune(r)
		}
	}
	return b.String()
}

func classifySpeechRune(r rune) runeClass {
	switch r {
	case '\u200d', '\ufe0f', '\u20e3':
		return runeDrop
	case '.', ',', '!', '?', ':', ';', '\'', '"', '-', '(', ')':
		return runeKeep
	case '|', '/', '\\', '~', '<', '>', '#', '*', '_':
		return runePause
	}
	switch {
	case unicode.IsSpace(r):
		return runePause
	case unicode.IsControl(r), unicode.In(r, unicode.So, unicode.Sm, unicode.Sk):
		return runeDrop
	case unicode.IsPunct(r):
		return runePause
	}
	return runeKeep
}

func rupeeWord(tag lang.Tag) string {
	if w, ok := rupeeWords[tag.Base()]; ok {
		return w
	}
	return rupeeWords["en"]
}
