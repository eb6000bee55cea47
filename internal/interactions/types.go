// Package interactions persists the audit trail of customer interactions.
package interactions

import (
	"context"
	"strings"
	"time"
)

// Type classifies an interaction record.
type Type string

const (
	TypeVoiceCall      Type = "voice_call"
	TypeSpeechToText   Type = "speech_to_text"
	TypeTextToSpeech   Type = "text_to_speech"
	TypeBookingInquiry Type = "booking_inquiry"
	TypeServiceInquiry Type = "service_inquiry"
	TypeGeneral        Type = "general_inquiry"
)

// Record is one write-once interaction. ID is assigned by the store.
type Record struct {
	ID             int64     `json:"id"`
	CustomerID     string    `json:"customer_id,omitempty"`
	Type           Type      `json:"interaction_type"`
	Content        string    `json:"content"`
	Language       string    `json:"language"`
	SentimentScore *float64  `json:"sentiment_score,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// Store persists interaction records.
type Store interface {
	// Append writes r and returns the assigned id.
	Append(ctx context.Context, r Record) (int64, error)
	// Recent returns up to limit records for customerID, most recent first.
	// An empty customerID lists records across all customers.
	Recent(ctx context.Context, customerID string, limit int) ([]Record, error)
	Ping(ctx context.Context) error
	Close() error
}

// TypeForIntent maps a text-turn intent to the record type it is logged as.
func TypeForIntent(intent string) Type {
	switch {
	case strings.Contains(intent, "booking"):
		return TypeBookingInquiry
	case strings.Contains(intent, "service"):
		return TypeServiceInquiry
	default:
		return TypeGeneral
	}
}

// Score returns a pointer to v for SentimentScore.
func Score(v float64) *float64 { return &v }

const defaultRecentLimit = 10

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return defaultRecentLimit
	}
	if limit > 500 {
		return 500
	}
	return limit
}

func stamp(r Record) Record {
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	if r.Type == "" {
		r.Type = TypeGeneral
	}
	return r
}
