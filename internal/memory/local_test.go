package memory

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLocal(t *testing.T, limits Limits) *LocalStore {
	t.Helper()
	s, err := NewLocalStore(limits)
	require.NoError(t, err)
	return s
}

func TestLocalStoreCreatesConversationLazily(t *testing.T) {
	s := newLocal(t, Limits{})
	ctx := context.Background()

	_, ok, err := s.Get(ctx, "u1", 0)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Append(ctx, "u1", Turn{Message: "hi", Reply: "hello", Intent: "greeting", Language: "en-IN"}, map[string]string{"language": "en-IN"}))
	conv, ok, err := s.Get(ctx, "u1", 0)
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, conv.Turns, 1)
	assert.Equal(t, "hello", conv.Turns[0].Reply)
	assert.False(t, conv.Turns[0].Timestamp.IsZero())
	assert.Equal(t, "en-IN", conv.Preferences["language"])
}

func TestLocalStoreCapsTurnsPerUser(t *testing.T) {
	s := newLocal(t, Limits{MaxTurns: 3})
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		require.NoError(t, s.Append(ctx, "u1", Turn{Message: fmt.Sprint(i)}, nil))
	}
	conv, _, err := s.Get(ctx, "u1", 0)
	require.NoError(t, err)
	require.Len(t, conv.Turns, 3)
	assert.Equal(t, "2", conv.Turns[0].Message)
	assert.Equal(t, "4", conv.Turns[2].Message)

	conv, _, err = s.Get(ctx, "u1", 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"3", "4"}, []string{conv.Turns[0].Message, conv.Turns[1].Message})
}

func TestLocalStoreEvictsLeastRecentUser(t *testing.T) {
	s := newLocal(t, Limits{MaxUsers: 2})
	ctx := context.Background()
	require.NoError(t, s.Append(ctx, "a", Turn{Message: "1"}, nil))
	require.NoError(t, s.Append(ctx, "b", Turn{Message: "1"}, nil))
	require.NoError(t, s.Append(ctx, "a", Turn{Message: "2"}, nil))
	require.NoError(t, s.Append(ctx, "c", Turn{Message: "1"}, nil))

	assert.Equal(t, 2, s.Len())
	_, ok, _ := s.Get(ctx, "b", 0)
	assert.False(t, ok)
	_, ok, _ = s.Get(ctx, "a", 0)
	assert.True(t, ok)
}

func TestLocalStoreExpiresIdleUsers(t *testing.T) {
	s := newLocal(t, Limits{IdleTTL: time.Hour})
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, s.Append(ctx, "old", Turn{Message: "x"}, nil))
	now = now.Add(50 * time.Minute)
	require.NoError(t, s.Append(ctx, "fresh", Turn{Message: "y"}, nil))
	now = now.Add(20 * time.Minute)

	assert.Equal(t, 1, s.expireIdle())
	_, ok, _ := s.Get(ctx, "old", 0)
	assert.False(t, ok)
	_, ok, _ = s.Get(ctx, "fresh", 0)
	assert.True(t, ok)
}

func TestLocalStoreConcurrentAppendsAreSerialized(t *testing.T) {
	s := newLocal(t, Limits{MaxTurns: 1000})
	ctx := context.Background()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = s.Append(ctx, "shared", Turn{Message: fmt.Sprint(i)}, map[string]string{"n": fmt.Sprint(i)})
		}(i)
	}
	wg.Wait()
	conv, ok, err := s.Get(ctx, "shared", 0)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Len(t, conv.Turns, 50)
}

func TestLocalStoreAppendSurvivesClearBeforeLock(t *testing.T) {
	s := newLocal(t, Limits{})
	ctx := context.Background()
	cleared := false
	s.afterLookup = func(userID string) {
		if !cleared {
			cleared = true
			require.NoError(t, s.Clear(ctx, userID))
		}
	}

	require.NoError(t, s.Append(ctx, "u1", Turn{Message: "book a test ride", Intent: "test_ride_booking"}, nil))

	conv, ok, err := s.Get(ctx, "u1", 0)
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, conv.Turns, 1)
	assert.Equal(t, "test_ride_booking", conv.Turns[0].Intent)
}

func TestLocalStoreAppendSurvivesEvictionBeforeLock(t *testing.T) {
	s := newLocal(t, Limits{MaxUsers: 1})
	ctx := context.Background()
	evicted := false
	s.afterLookup = func(userID string) {
		if !evicted && userID == "u1" {
			evicted = true
			require.NoError(t, s.Append(ctx, "u2", Turn{Message: "hello"}, nil))
		}
	}

	require.NoError(t, s.Append(ctx, "u1", Turn{Message: "emi options"}, nil))

	conv, ok, err := s.Get(ctx, "u1", 0)
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, conv.Turns, 1)
	assert.Equal(t, "emi options", conv.Turns[0].Message)
}

func TestLocalStoreStatsAndClear(t *testing.T) {
	s := newLocal(t, Limits{})
	ctx := context.Background()
	require.NoError(t, s.Append(ctx, "u1", Turn{Intent: "greeting", Language: "en-IN"}, nil))
	require.NoError(t, s.Append(ctx, "u1", Turn{Intent: "pricing_inquiry", Language: "hi-IN"}, nil))
	require.NoError(t, s.Append(ctx, "u2", Turn{Intent: "greeting", Language: "hi-IN"}, nil))

	st, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, st.Users)
	assert.Equal(t, 3, st.Turns)
	assert.Equal(t, map[string]int{"en-IN": 1, "hi-IN": 2}, st.Languages)
	assert.Equal(t, 2, st.Intents["greeting"])

	require.NoError(t, s.Clear(ctx, "u1"))
	st, err = s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, st.Users)
}

func TestNewStoreBackends(t *testing.T) {
	s, err := NewStore(context.Background(), "local", "", Limits{})
	require.NoError(t, err)
	assert.IsType(t, &LocalStore{}, s)

	_, err = NewStore(context.Background(), "memcached", "", Limits{})
	assert.Error(t, err)
}
