package ledger

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	gem    = Standard("💎")
	thumbs = Standard("👍")
	blob   = Custom("blob", 1234)
)

// memStore records every save for inspection.
type memStore struct {
	mu      sync.Mutex
	records []Record
	usage   map[Key]Usage
	saves   int
	failErr error
}

func (m *memStore) LoadLedger() ([]Record, error) { return m.records, nil }

func (m *memStore) SaveLedger(records []Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves++
	if m.failErr != nil {
		return m.failErr
	}
	m.records = records
	return nil
}

func (m *memStore) LoadUsage() (map[Key]Usage, error) {
	if m.usage == nil {
		return map[Key]Usage{}, nil
	}
	return m.usage, nil
}

func (m *memStore) SaveUsage(usage map[Key]Usage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.usage = usage
	return nil
}

func assertInvariant(t *testing.T, l *Ledger) {
	t.Helper()
	for _, r := range l.Records() {
		sum := 0
		for _, v := range r.Entry.Emojis {
			assert.Positive(t, v)
			sum += v
		}
		assert.Equal(t, sum, r.Entry.Total, "user %s", r.UserID)
		assert.Positive(t, r.Entry.Total, "user %s", r.UserID)
	}
}

func TestAddRemoveKeepsInvariant(t *testing.T) {
	l := New(nil)
	user := snowflake.ID(1)

	ops := []struct {
		remove bool
		key    Key
	}{
		{key: gem}, {key: gem}, {key: thumbs}, {remove: true, key: gem},
		{remove: true, key: blob}, {key: blob}, {remove: true, key: thumbs},
		{remove: true, key: thumbs}, {remove: true, key: gem}, {remove: true, key: blob},
	}
	for _, op := range ops {
		if op.remove {
			l.Remove(user, op.key)
		} else {
			l.Add(user, op.key)
		}
		assertInvariant(t, l)
	}

	_, ok := l.Snapshot(user)
	assert.False(t, ok)
	assert.Zero(t, l.Len())
}

func TestRemoveWithoutAddIsNoop(t *testing.T) {
	store := &memStore{}
	l := New(store)

	_, exists, changed := l.Remove(7, gem)
	assert.False(t, exists)
	assert.False(t, changed)
	assert.Zero(t, l.Len())
	assert.Zero(t, store.saves)

	l.Add(7, thumbs)
	entry, exists, changed := l.Remove(7, gem)
	assert.True(t, exists)
	assert.False(t, changed)
	assert.Equal(t, 1, entry.Total)
	assert.Equal(t, 1, store.saves)
}

func TestRemoveReportsRemainingGems(t *testing.T) {
	l := New(nil)
	l.Add(9, gem)
	l.Add(9, thumbs)

	entry, exists, changed := l.Remove(9, gem)
	require.True(t, changed)
	require.True(t, exists)
	assert.Zero(t, entry.Count(gem))
	assert.Equal(t, 1, entry.Total)
	assert.NotContains(t, entry.Emojis, gem)
}

func TestAddWritesThrough(t *testing.T) {
	store := &memStore{}
	l := New(store)

	l.Add(1, gem)
	l.Add(2, thumbs)
	l.Add(1, thumbs)

	want := []Record{
		{UserID: 1, Entry: Entry{Total: 2, Emojis: map[Key]int{gem: 1, thumbs: 1}}},
		{UserID: 2, Entry: Entry{Total: 1, Emojis: map[Key]int{thumbs: 1}}},
	}
	if diff := cmp.Diff(want, store.records); diff != "" {
		t.Errorf("persisted ledger mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, 3, store.saves)
}

func TestSaveFailureKeepsMemory(t *testing.T) {
	store := &memStore{failErr: errors.New("disk full")}
	l := New(store)

	entry := l.Add(1, gem)
	assert.Equal(t, 1, entry.Total)
	snap, ok := l.Snapshot(1)
	require.True(t, ok)
	assert.Equal(t, 1, snap.Count(gem))
}

func TestRankStableOnFirstSeen(t *testing.T) {
	l := New(nil)
	l.Add(30, gem)
	l.Add(10, gem)
	l.Add(20, gem)
	l.Add(20, gem)
	l.Add(40, gem)

	got := l.Rank()
	want := []Ranked{{20, 2}, {30, 1}, {10, 1}, {40, 1}}
	assert.Equal(t, want, got)

	// Dropping and re-adding moves a user to the back of the tie order.
	l.Remove(30, gem)
	l.Add(30, gem)
	assert.Equal(t, []Ranked{{20, 2}, {10, 1}, {40, 1}, {30, 1}}, l.Rank())
}

func TestConcurrentMutations(t *testing.T) {
	l := New(&memStore{})
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			user := snowflake.ID(i % 5)
			l.Add(user, gem)
			if i%3 == 0 {
				l.Remove(user, gem)
			}
			_ = l.Rank()
		}(i)
	}
	wg.Wait()
	assertInvariant(t, l)
}

func TestPersistedSnapshotIsLatest(t *testing.T) {
	store := &memStore{}
	l := New(store)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.Add(1, gem)
		}()
	}
	wg.Wait()

	require.Len(t, store.records, 1)
	assert.Equal(t, 20, store.records[0].Entry.Total)
}

func TestTouchTracksCustomOnly(t *testing.T) {
	store := &memStore{}
	l := New(store)
	now := time.UnixMilli(1_700_000_000_000)

	_, ok := l.Touch(gem, now)
	assert.False(t, ok)

	u, ok := l.Touch(blob, now)
	require.True(t, ok)
	assert.Equal(t, Usage{LastUsed: now.UnixMilli(), Count: 1}, u)

	later := now.Add(time.Hour)
	l.Touch(blob, later)
	assert.Equal(t, later, l.LastUsed(blob))
	assert.Equal(t, 2, store.usage[blob].Count)
	assert.True(t, l.LastUsed(gem).IsZero())
}

func TestUsageByIDMergesRenames(t *testing.T) {
	l := New(nil)
	old := time.UnixMilli(1_000)
	recent := time.UnixMilli(5_000)
	l.Touch(Custom("before", 55), old)
	l.Touch(Custom("after", 55), recent)

	got := l.UsageByID()
	assert.Equal(t, Usage{LastUsed: 5_000, Count: 2}, got[55])
}

func TestOpenRepairsAndKeepsOrder(t *testing.T) {
	store := &memStore{records: []Record{
		{UserID: 3, Entry: Entry{Total: 99, Emojis: map[Key]int{gem: 2}}},
		{UserID: 1, Entry: Entry{Total: 0, Emojis: map[Key]int{}}},
		{UserID: 2, Entry: Entry{Total: 1, Emojis: map[Key]int{thumbs: 1}}},
	}}
	l, err := Open(store)
	require.NoError(t, err)

	assert.Equal(t, []Ranked{{3, 2}, {2, 1}}, l.Rank())
	assertInvariant(t, l)
}
