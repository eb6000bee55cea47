package intent

import (
	"strings"
	"text/template"
	"unicode"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/antoniostano/voicebot/internal/lang"
)

// Reply is the classified intent and rendered response for one message.
type Reply struct {
	Intent      string   `json:"intent"`
	Confidence  float64  `json:"confidence"`
	Text        string   `json:"response"`
	Suggestions []string `json:"suggestions,omitempty"`
	Rule        string   `json:"-"`
	Variant     string   `json:"-"`
	Language    lang.Tag `json:"language"`
}

type compiledResponses struct {
	templates   map[string]*template.Template
	suggestions map[string][]string
}

type compiledVariant struct {
	name            string
	intent          string
	confidence      float64
	keywords        []string
	mentionsVehicle bool
	compiledResponses
}

type compiledRule struct {
	name            string
	intent          string
	confidence      float64
	keywords        []string
	mentionsVehicle bool
	variants        []compiledVariant
	compiledResponses
}

type compiledCanned struct {
	intent     string
	confidence float64
	compiledResponses
}

// view is the data available to response templates.
type view struct {
	Message string
	Vehicle *Vehicle
	Budget  int64
	Catalog *Catalog
}

// Responder maps messages to intents and replies. It is immutable after
// construction and safe for concurrent use.
type Responder struct {
	rules     []compiledRule
	fallback  compiledCanned
	empathy   compiledCanned
	apology   compiledCanned
	catalog   *Catalog
	offers    []Offer
	defaultLn lang.Tag
}

var templateFuncs = template.FuncMap{
	"inr": FormatINR,
	"medal": func(i int) string {
		switch i {
		case 0:
			return "🥇"
		case 1:
			return "🥈"
		case 2:
			return "🥉"
		default:
			return "•"
		}
	},
}

// NewResponder compiles the knowledge templates. defaultTag is the language
// used when a template is missing for the requested one.
func NewResponder(k *Knowledge, defaultTag lang.Tag) (*Responder, error) {
	if k == nil {
		return nil, errors.New("nil knowledge")
	}
	r := &Responder{
		catalog:   newCatalog(k.Vehicles),
		offers:    append([]Offer(nil), k.Offers...),
		defaultLn: defaultTag,
	}
	for _, rule := range k.Rules {
		resp, err := compileResponses(rule.Name, rule.Responses)
		if err != nil {
			return nil, err
		}
		cr := compiledRule{
			name:              rule.Name,
			intent:            rule.Intent,
			confidence:        rule.Confidence,
			keywords:          normalizeAll(rule.Keywords),
			mentionsVehicle:   rule.MentionsVehicle,
			compiledResponses: resp,
		}
		for _, v := range rule.Variants {
			vresp, err := compileResponses(rule.Name+"/"+v.Name, v.Responses)
			if err != nil {
				return nil, err
			}
			cv := compiledVariant{
				name:              v.Name,
				intent:            v.Intent,
				confidence:        v.Confidence,
				keywords:          normalizeAll(v.Keywords),
				mentionsVehicle:   v.MentionsVehicle,
				compiledResponses: vresp,
			}
			if cv.intent == "" {
				cv.intent = rule.Intent
			}
			if cv.confidence == 0 {
				cv.confidence = rule.Confidence
			}
			cr.variants = append(cr.variants, cv)
		}
		r.rules = append(r.rules, cr)
	}
	var err error
	if r.fallback, err = compileCanned("fallback", k.Fallback); err != nil {
		return nil, err
	}
	if r.empathy, err = compileCanned("empathy", k.Empathy); err != nil {
		return nil, err
	}
	if r.apology, err = compileCanned("apology", k.Apology); err != nil {
		return nil, err
	}
	return r, nil
}

// ClassifyAndRespond walks the rule table in order and renders the first
// match for tag. Unmatched or empty messages get the fallback reply.
func (r *Responder) ClassifyAndRespond(message string, tag lang.Tag) Reply {
	message = strings.TrimSpace(message)
	padded := " " + normalize(message) + " "
	data := view{
		Message: message,
		Budget:  budgetFrom(strings.ReplaceAll(strings.ToLower(message), ",", "")),
		Catalog: r.catalog,
	}

	if strings.TrimSpace(padded) != "" {
		mentioned := r.catalog.Mentioned(padded)
		for _, rule := range r.rules {
			matched := containsAny(padded, rule.keywords) || (rule.mentionsVehicle && mentioned != nil)
			if !matched {
				continue
			}
			data.Vehicle = mentioned
			for _, v := range rule.variants {
				if containsAny(padded, v.keywords) || (v.mentionsVehicle && mentioned != nil) {
					return r.render(rule.name, v.name, v.intent, v.confidence, v.compiledResponses, tag, data)
				}
			}
			return r.render(rule.name, "", rule.intent, rule.confidence, rule.compiledResponses, tag, data)
		}
	}
	return r.render("fallback", "", r.fallback.intent, r.fallback.confidence, r.fallback.compiledResponses, tag, data)
}

// Empathy is the reply used when the customer sounds upset.
func (r *Responder) Empathy(tag lang.Tag) Reply {
	return r.render("empathy", "", r.empathy.intent, r.empathy.confidence, r.empathy.compiledResponses, tag, view{Catalog: r.catalog})
}

// Apology is the reply used when a non-critical step of a turn failed.
func (r *Responder) Apology(tag lang.Tag) Reply {
	return r.render("apology", "", r.apology.intent, r.apology.confidence, r.apology.compiledResponses, tag, view{Catalog: r.catalog})
}

// RuleOrder lists rule names in evaluation order.
func (r *Responder) RuleOrder() []string {
	out := make([]string, 0, len(r.rules))
	for _, rule := range r.rules {
		out = append(out, rule.name)
	}
	return out
}

// Catalog exposes the vehicle catalog.
func (r *Responder) Catalog() *Catalog { return r.catalog }

// Offers lists current promotions.
func (r *Responder) Offers() []Offer {
	return append([]Offer(nil), r.offers...)
}

func (r *Responder) render(rule, variant, intentName string, confidence float64, resp compiledResponses, tag lang.Tag, data view) Reply {
	reply := Reply{
		Intent:     intentName,
		Confidence: confidence,
		Rule:       rule,
		Variant:    variant,
		Language:   tag,
	}
	tmpl := pickTemplate(resp.templates, tag, r.defaultLn)
	if tmpl != nil {
		var sb strings.Builder
		if err := tmpl.Execute(&sb, data); err != nil {
			log.Warn().Err(err).Str("rule", rule).Str("variant", variant).Str("language", tag.String()).Msg("response template failed")
		} else {
			reply.Text = strings.TrimSpace(sb.String())
		}
	}
	if reply.Text == "" && rule != "apology" {
		return r.Apology(tag)
	}
	reply.Suggestions = pickSuggestions(resp.suggestions, tag, r.defaultLn)
	return reply
}

func compileResponses(name string, in Responses) (compiledResponses, error) {
	out := compiledResponses{
		templates:   make(map[string]*template.Template, len(in.Templates)),
		suggestions: in.Suggestions,
	}
	for key, text := range in.Templates {
		t, err := template.New(name + ":" + key).Funcs(templateFuncs).Option("missingkey=error").Parse(text)
		if err != nil {
			return out, errors.Wrapf(err, "compile %s template for %s", name, key)
		}
		out.templates[strings.ToLower(key)] = t
	}
	return out, nil
}

func compileCanned(name string, c Canned) (compiledCanned, error) {
	resp, err := compileResponses(name, c.Responses)
	if err != nil {
		return compiledCanned{}, err
	}
	return compiledCanned{intent: c.Intent, confidence: c.Confidence, compiledResponses: resp}, nil
}

// languageKeys is the lookup order for per-language entries: exact tag, base
// language, default tag, default base, English.
func languageKeys(tag, def lang.Tag) []string {
	return []string{
		strings.ToLower(tag.String()),
		tag.Base(),
		strings.ToLower(def.String()),
		def.Base(),
		"en",
	}
}

func pickTemplate(m map[string]*template.Template, tag, def lang.Tag) *template.Template {
	for _, key := range languageKeys(tag, def) {
		if t, ok := m[key]; ok {
			return t
		}
	}
	return nil
}

func pickSuggestions(m map[string][]string, tag, def lang.Tag) []string {
	for _, key := range languageKeys(tag, def) {
		for k, v := range m {
			if strings.ToLower(k) == key {
				return append([]string(nil), v...)
			}
		}
	}
	return nil
}

// normalize lowercases text and turns punctuation into spaces so keywords can
// be matched on word boundaries in any space-separated script.
func normalize(text string) string {
	text = strings.ToLower(text)
	var sb strings.Builder
	sb.Grow(len(text))
	for _, r := range text {
		if unicode.IsPunct(r) || unicode.IsSpace(r) || r == '।' {
			sb.WriteRune(' ')
			continue
		}
		sb.WriteRune(r)
	}
	return strings.Join(strings.Fields(sb.String()), " ")
}

func normalizeAll(keywords []string) []string {
	out := make([]string, 0, len(keywords))
	for _, k := range keywords {
		if n := normalize(k); n != "" {
			out = append(out, n)
		}
	}
	return out
}

func containsAny(padded string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(padded, " "+k+" ") {
			return true
		}
	}
	return false
}
