package memory

import (
	"context"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

type entry struct {
	mu       sync.Mutex
	turns    []Turn
	prefs    map[string]string
	lastSeen time.Time
}

// LocalStore is an in-process store. Users beyond MaxUsers are evicted least
// recently used first; idle users are expired by the janitor.
type LocalStore struct {
	limits Limits
	users  *lru.Cache[string, *entry]
	// create serializes lazy creation so two first turns share one entry.
	create sync.Mutex
	now    func() time.Time
	// afterLookup runs between finding an entry and locking it. Tests use it
	// to interleave a Clear.
	afterLookup func(userID string)
}

func NewLocalStore(limits Limits) (*LocalStore, error) {
	limits = limits.withDefaults()
	cache, err := lru.New[string, *entry](limits.MaxUsers)
	if err != nil {
		return nil, errors.Wrap(err, "create conversation cache")
	}
	return &LocalStore{limits: limits, users: cache, now: time.Now}, nil
}

func (s *LocalStore) entryFor(userID string) *entry {
	if e, ok := s.users.Get(userID); ok {
		return e
	}
	s.create.Lock()
	defer s.create.Unlock()
	if e, ok := s.users.Get(userID); ok {
		return e
	}
	e := &entry{prefs: map[string]string{}, lastSeen: s.now()}
	if evicted := s.users.Add(userID, e); evicted {
		log.Debug().Msg("conversation memory full; evicted least recent user")
	}
	return e
}

// lockedEntry returns the user's live entry with its lock held. An entry that
// was cleared, evicted or expired between lookup and lock is retried.
func (s *LocalStore) lockedEntry(userID string) *entry {
	for {
		e := s.entryFor(userID)
		if s.afterLookup != nil {
			s.afterLookup(userID)
		}
		e.mu.Lock()
		if cur, ok := s.users.Peek(userID); ok && cur == e {
			return e
		}
		e.mu.Unlock()
	}
}

func (s *LocalStore) Append(ctx context.Context, userID string, turn Turn, prefs map[string]string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e := s.lockedEntry(userID)
	defer e.mu.Unlock()
	if turn.Timestamp.IsZero() {
		turn.Timestamp = s.now().UTC()
	}
	e.turns = append(e.turns, turn)
	if over := len(e.turns) - s.limits.MaxTurns; over > 0 {
		e.turns = append([]Turn(nil), e.turns[over:]...)
	}
	for k, v := range prefs {
		e.prefs[k] = v
	}
	e.lastSeen = s.now()
	return nil
}

func (s *LocalStore) Get(_ context.Context, userID string, limit int) (Conversation, bool, error) {
	e, ok := s.users.Peek(userID)
	if !ok {
		return Conversation{}, false, nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	prefs := make(map[string]string, len(e.prefs))
	for k, v := range e.prefs {
		prefs[k] = v
	}
	return Conversation{UserID: userID, Turns: tail(e.turns, limit), Preferences: prefs}, true, nil
}

func (s *LocalStore) Clear(_ context.Context, userID string) error {
	e, ok := s.users.Peek(userID)
	if !ok {
		return nil
	}
	// Holding the entry lock orders Clear after any append in progress.
	e.mu.Lock()
	defer e.mu.Unlock()
	if cur, ok := s.users.Peek(userID); ok && cur == e {
		s.users.Remove(userID)
	}
	return nil
}

func (s *LocalStore) Stats(context.Context) (Stats, error) {
	st := newStats()
	for _, id := range s.users.Keys() {
		e, ok := s.users.Peek(id)
		if !ok {
			continue
		}
		e.mu.Lock()
		st.add(e.turns)
		e.mu.Unlock()
	}
	return st, nil
}

// Len reports how many users are retained.
func (s *LocalStore) Len() int { return s.users.Len() }

// StartJanitor expires idle conversations every interval until ctx ends.
func (s *LocalStore) StartJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.expireIdle()
			}
		}
	}()
}

func (s *LocalStore) expireIdle() int {
	cutoff := s.now().Add(-s.limits.IdleTTL)
	expired := 0
	for _, id := range s.users.Keys() {
		e, ok := s.users.Peek(id)
		if !ok {
			continue
		}
		e.mu.Lock()
		if e.lastSeen.Before(cutoff) {
			if cur, ok := s.users.Peek(id); ok && cur == e {
				s.users.Remove(id)
				expired++
			}
		}
		e.mu.Unlock()
	}
	if expired > 0 {
		log.Debug().Int("expired", expired).Msg("expired idle conversations")
	}
	return expired
}

func (s *LocalStore) Close() error {
	s.users.Purge()
	return nil
}
