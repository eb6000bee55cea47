// Package sentiment scores the emotional tone of customer utterances.
package sentiment

import (
	"math"
	"strings"

	"github.com/jonreiter/govader"
	"github.com/rs/zerolog/log"
)

const (
	positiveThreshold = 0.05
	negativeThreshold = -0.05
)

// Overall labels.
const (
	Positive = "positive"
	Negative = "negative"
	Neutral  = "neutral"
)

// Scores holds VADER polarity proportions and the normalized compound score.
type Scores struct {
	Positive float64 `json:"positive"`
	Negative float64 `json:"negative"`
	Neutral  float64 `json:"neutral"`
	Compound float64 `json:"compound"`
	Overall  string  `json:"overall"`
}

// NeutralBaseline is returned for empty input or when analysis fails.
var NeutralBaseline = Scores{Neutral: 1, Overall: Neutral}

type analyzer interface {
	PolarityScores(text string) govader.Sentiment
}

// Scorer is a deterministic lexicon-based sentiment scorer. Safe for concurrent use.
type Scorer struct {
	analyzer analyzer
}

// NewScorer loads the VADER lexicon.
func NewScorer() *Scorer {
	return &Scorer{analyzer: govader.NewSentimentIntensityAnalyzer()}
}

// Score returns the sentiment of text. It never fails.
func (s *Scorer) Score(text string) (out Scores) {
	text = strings.TrimSpace(text)
	if text == "" || s == nil || s.analyzer == nil {
		return NeutralBaseline
	}
	defer func() {
		if r := recover(); r != nil {
			log.Warn().Interface("panic", r).Msg("sentiment analysis failed; using neutral baseline")
			out = NeutralBaseline
		}
	}()

	raw := s.analyzer.PolarityScores(text)
	if math.IsNaN(raw.Compound) {
		return NeutralBaseline
	}
	out = Scores{
		Positive: raw.Positive,
		Negative: raw.Negative,
		Neutral:  raw.Neutral,
		Compound: clamp(raw.Compound),
	}
	out.Overall = Label(out.Compound)
	return out
}

// Compound is shorthand for Score(text).Compound.
func (s *Scorer) Compound(text string) float64 {
	return s.Score(text).Compound
}

// Label maps a compound score onto positive, negative or neutral.
func Label(compound float64) string {
	switch {
	case compound >= positiveThreshold:
		return Positive
	case compound <= negativeThreshold:
		return Negative
	default:
		return Neutral
	}
}

func clamp(v float64) float64 {
	return math.Max(-1, math.Min(1, v))
}
