package interactions

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/antoniostano/voicebot/internal/observability"
)

type flakyStore struct {
	*InMemoryStore
	mu       sync.Mutex
	failures int
	calls    int
}

func (f *flakyStore) Append(ctx context.Context, r Record) (int64, error) {
	f.mu.Lock()
	f.calls++
	fail := f.calls <= f.failures
	f.mu.Unlock()
	if fail {
		return 0, errors.New("database is locked")
	}
	return f.InMemoryStore.Append(ctx, r)
}

type blockingStore struct {
	*InMemoryStore
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func (b *blockingStore) Append(ctx context.Context, r Record) (int64, error) {
	b.once.Do(func() { close(b.started) })
	<-b.release
	return b.InMemoryStore.Append(ctx, r)
}

func fastOptions() RecorderOptions {
	return RecorderOptions{QueueSize: 8, Retries: 2, RetryBase: time.Millisecond, RetryCap: 2 * time.Millisecond}
}

func closeRecorder(t *testing.T, r *Recorder) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, r.Close(ctx))
}

func TestRecorderRetriesTransientFailures(t *testing.T) {
	store := &flakyStore{InMemoryStore: NewInMemoryStore(), failures: 2}
	r := NewRecorder(store, fastOptions(), observability.NewMetrics("voicebot_test"))

	assert.True(t, r.Record(Record{CustomerID: "c1", Content: "hello", Language: "en-IN"}))
	closeRecorder(t, r)

	assert.Equal(t, 1, store.Len())
	assert.Equal(t, 3, store.calls)
}

func TestRecorderGivesUpAfterRetries(t *testing.T) {
	store := &flakyStore{InMemoryStore: NewInMemoryStore(), failures: 100}
	r := NewRecorder(store, fastOptions(), nil)

	assert.True(t, r.Record(Record{Content: "lost"}))
	closeRecorder(t, r)

	assert.Zero(t, store.Len())
	assert.Equal(t, 3, store.calls)
}

func TestRecorderDropsWhenQueueFull(t *testing.T) {
	store := &blockingStore{InMemoryStore: NewInMemoryStore(), started: make(chan struct{}), release: make(chan struct{})}
	opts := fastOptions()
	opts.QueueSize = 1
	r := NewRecorder(store, opts, nil)

	require.True(t, r.Record(Record{Content: "first"}))
	<-store.started
	require.True(t, r.Record(Record{Content: "second"}))
	assert.False(t, r.Record(Record{Content: "third"}))

	close(store.release)
	closeRecorder(t, r)
	assert.Equal(t, 2, store.Len())
	assert.False(t, r.Record(Record{Content: "after close"}))
}

func TestRecorderRedactsContent(t *testing.T) {
	store := NewInMemoryStore()
	opts := fastOptions()
	opts.RedactPII = true
	r := NewRecorder(store, opts, nil)

	r.Record(Record{Content: "Call me on +91 98765 43210 or mail ravi@example.com", Type: TypeVoiceCall})
	closeRecorder(t, r)

	got, err := store.Recent(context.Background(), "", 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.NotContains(t, got[0].Content, "98765")
	assert.NotContains(t, got[0].Content, "ravi@example.com")
	assert.Equal(t, TypeVoiceCall, got[0].Type)
}

func TestNilRecorderIsSafe(t *testing.T) {
	var r *Recorder
	assert.False(t, r.Record(Record{Content: "x"}))
}
