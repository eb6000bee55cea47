// Package intent classifies customer messages with an ordered keyword rule
// table and renders language-specific replies from a knowledge file.
package intent

import (
	_ "embed"
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

//go:embed knowledge.yaml
var defaultKnowledge []byte

// Knowledge is the pluggable source of rules, templates and catalog data.
type Knowledge struct {
	Vehicles []Vehicle `yaml:"vehicles"`
	Offers   []Offer   `yaml:"offers"`
	Rules    []Rule    `yaml:"rules"`
	Fallback Canned    `yaml:"fallback"`
	Empathy  Canned    `yaml:"empathy"`
	Apology  Canned    `yaml:"apology"`
}

// Vehicle is one catalog entry. Petrol vehicles carry mileage and engine,
// electric ones range and battery.
type Vehicle struct {
	ID       string   `yaml:"id" json:"id"`
	Name     string   `yaml:"name" json:"name"`
	Brand    string   `yaml:"brand" json:"brand"`
	Category string   `yaml:"category" json:"category"`
	Fuel     string   `yaml:"fuel" json:"fuel"`
	Price    int64    `yaml:"price" json:"price"`
	Mileage  string   `yaml:"mileage,omitempty" json:"mileage,omitempty"`
	Engine   string   `yaml:"engine,omitempty" json:"engine,omitempty"`
	Range    string   `yaml:"range,omitempty" json:"range,omitempty"`
	Battery  string   `yaml:"battery,omitempty" json:"battery,omitempty"`
	Type     string   `yaml:"type" json:"type"`
	Aliases  []string `yaml:"aliases" json:"-"`
}

// Offer is a current promotion.
type Offer struct {
	Title   string `yaml:"title" json:"title"`
	Details string `yaml:"details" json:"details"`
}

// Responses holds per-language templates and quick-reply suggestions.
type Responses struct {
	Templates   map[string]string   `yaml:"responses"`
	Suggestions map[string][]string `yaml:"suggestions"`
}

// Rule is one keyword group of the ordered table.
type Rule struct {
	Name            string    `yaml:"name"`
	Intent          string    `yaml:"intent"`
	Confidence      float64   `yaml:"confidence"`
	Keywords        []string  `yaml:"keywords"`
	MentionsVehicle bool      `yaml:"mentions_vehicle"`
	Variants        []Variant `yaml:"variants"`
	Responses       `yaml:",inline"`
}

// Variant refines a matched rule. Intent and Confidence default to the rule's.
type Variant struct {
	Name            string   `yaml:"name"`
	Intent          string   `yaml:"intent"`
	Confidence      float64  `yaml:"confidence"`
	Keywords        []string `yaml:"keywords"`
	MentionsVehicle bool     `yaml:"mentions_vehicle"`
	Responses       `yaml:",inline"`
}

// Canned is a reply chosen without keyword matching.
type Canned struct {
	Intent     string  `yaml:"intent"`
	Confidence float64 `yaml:"confidence"`
	Responses  `yaml:",inline"`
}

// LoadKnowledge reads a knowledge file. An empty path loads the built-in table.
func LoadKnowledge(path string) (*Knowledge, error) {
	raw := defaultKnowledge
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrapf(err, "read knowledge file %s", path)
		}
		raw = b
	}
	return ParseKnowledge(raw)
}

// ParseKnowledge decodes and validates knowledge YAML.
func ParseKnowledge(raw []byte) (*Knowledge, error) {
	var k Knowledge
	if err := yaml.Unmarshal(raw, &k); err != nil {
		return nil, errors.Wrap(err, "decode knowledge")
	}
	if err := k.validate(); err != nil {
		return nil, err
	}
	return &k, nil
}

func (k *Knowledge) validate() error {
	if len(k.Rules) == 0 {
		return errors.New("knowledge: no rules")
	}
	seen := map[string]bool{}
	for i, r := range k.Rules {
		if r.Name == "" || r.Intent == "" {
			return errors.Errorf("knowledge: rule %d needs name and intent", i)
		}
		if seen[r.Name] {
			return errors.Errorf("knowledge: duplicate rule %q", r.Name)
		}
		seen[r.Name] = true
		if len(r.Keywords) == 0 && !r.MentionsVehicle {
			return errors.Errorf("knowledge: rule %q has no keywords", r.Name)
		}
		if r.Confidence <= 0 || r.Confidence > 1 {
			return errors.Errorf("knowledge: rule %q confidence %v outside (0,1]", r.Name, r.Confidence)
		}
		if len(r.Templates) == 0 {
			return errors.Errorf("knowledge: rule %q has no responses", r.Name)
		}
		for _, v := range r.Variants {
			if len(v.Keywords) == 0 && !v.MentionsVehicle {
				return errors.Errorf("knowledge: variant %s/%s has no keywords", r.Name, v.Name)
			}
			if len(v.Templates) == 0 {
				return errors.Errorf("knowledge: variant %s/%s has no responses", r.Name, v.Name)
			}
		}
	}
	for name, c := range map[string]Canned{"fallback": k.Fallback, "empathy": k.Empathy, "apology": k.Apology} {
		if c.Intent == "" || len(c.Templates) == 0 {
			return errors.Errorf("knowledge: %s reply needs intent and responses", name)
		}
	}
	for _, v := range k.Vehicles {
		if v.Name == "" || v.Price <= 0 {
			return errors.Errorf("knowledge: vehicle %q needs name and price", v.ID)
		}
	}
	return nil
}
