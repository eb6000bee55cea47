// Package memory keeps the bounded per-user conversation history.
package memory

import (
	"context"
	"time"
)

// Turn is one completed exchange.
type Turn struct {
	Message   string    `json:"message"`
	Reply     string    `json:"reply"`
	Intent    string    `json:"intent"`
	Language  string    `json:"language"`
	Timestamp time.Time `json:"timestamp"`
}

// Conversation is a user's retained turns, oldest first, and preferences.
type Conversation struct {
	UserID      string            `json:"user_id"`
	Turns       []Turn            `json:"turns"`
	Preferences map[string]string `json:"preferences"`
}

// Stats summarizes every retained conversation.
type Stats struct {
	Users     int            `json:"total_users"`
	Turns     int            `json:"total_conversations"`
	Languages map[string]int `json:"language_distribution"`
	Intents   map[string]int `json:"intent_distribution"`
}

// Store holds conversation memory. Appends for one user are serialized.
type Store interface {
	// Append adds turn to userID's history and records the preferences,
	// creating the conversation on first use.
	Append(ctx context.Context, userID string, turn Turn, prefs map[string]string) error
	// Get returns up to limit most recent turns, oldest first. Missing users
	// yield ok=false.
	Get(ctx context.Context, userID string, limit int) (conv Conversation, ok bool, err error)
	Clear(ctx context.Context, userID string) error
	Stats(ctx context.Context) (Stats, error)
	Close() error
}

// Limits bound the retained memory.
type Limits struct {
	MaxUsers int
	MaxTurns int
	IdleTTL  time.Duration
}

func (l Limits) withDefaults() Limits {
	if l.MaxUsers <= 0 {
		l.MaxUsers = 10000
	}
	if l.MaxTurns <= 0 {
		l.MaxTurns = 50
	}
	if l.IdleTTL <= 0 {
		l.IdleTTL = 24 * time.Hour
	}
	return l
}

func newStats() Stats {
	return Stats{Languages: map[string]int{}, Intents: map[string]int{}}
}

func (s *Stats) add(turns []Turn) {
	s.Users++
	for _, t := range turns {
		s.Turns++
		s.Languages[t.Language]++
		s.Intents[t.Intent]++
	}
}

func tail(turns []Turn, limit int) []Turn {
	if limit <= 0 || limit > len(turns) {
		limit = len(turns)
	}
	out := make([]Turn, limit)
	copy(out, turns[len(turns)-limit:])
	return out
}
