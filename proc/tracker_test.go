package proc

import (
	"context"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/leeineian/gemboard/emoji"
	"github.com/leeineian/gemboard/ledger"
	"github.com/leeineian/gemboard/milestone"
	"github.com/leeineian/gemboard/sys"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type recordingRoles struct {
	mu    sync.Mutex
	held  []snowflake.ID
	added []snowflake.ID
}

func (r *recordingRoles) MemberRoles(ctx context.Context, userID snowflake.ID) ([]snowflake.ID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.held), nil
}

func (r *recordingRoles) AddRole(ctx context.Context, userID, roleID snowflake.ID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.held = append(r.held, roleID)
	r.added = append(r.added, roleID)
	return nil
}

func (r *recordingRoles) RemoveRole(ctx context.Context, userID, roleID snowflake.ID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.held = slices.DeleteFunc(r.held, func(id snowflake.ID) bool { return id == roleID })
	return nil
}

func (r *recordingRoles) addedRoles() []snowflake.ID {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.added)
}

var (
	gemKey  = ledger.Standard("💎")
	author  = snowflake.ID(777)
	guildID = snowflake.ID(1)
)

func newTestTracker(t *testing.T, roles milestone.Roles) *Tracker {
	t.Helper()
	table, err := milestone.NewTable([]sys.Milestone{
		{Threshold: 50, RoleID: 500},
		{Threshold: 150, RoleID: 1500},
	})
	require.NoError(t, err)

	tr := NewTracker(ledger.New(nil), gemKey, 4)
	tr.Reconciler = &milestone.Reconciler{Table: table}
	tr.Roles = func(snowflake.ID) milestone.Roles { return roles }
	return tr
}

// drain waits until the queue is empty and the last event has been applied.
func drain(t *testing.T, tr *Tracker, wantTotal int) {
	t.Helper()
	require.Eventually(t, func() bool {
		e, _ := tr.Ledger.Snapshot(author)
		return len(tr.queue) == 0 && e.Total == wantTotal
	}, 2*time.Second, 5*time.Millisecond)
}

func TestTrackerGrantsFirstMilestone(t *testing.T) {
	roles := &recordingRoles{}
	tr := newTestTracker(t, roles)
	ctx := context.Background()
	tr.Start(ctx)
	defer tr.Stop()

	require.True(t, tr.Submit(ctx, ReactionEvent{GuildID: guildID, AuthorID: author, Key: gemKey}))
	drain(t, tr, 1)
	assert.Empty(t, roles.addedRoles())

	for i := 0; i < 49; i++ {
		require.True(t, tr.Submit(ctx, ReactionEvent{GuildID: guildID, AuthorID: author, Key: gemKey}))
	}
	drain(t, tr, 50)
	require.Eventually(t, func() bool {
		return slices.Equal([]snowflake.ID{500}, roles.addedRoles())
	}, 2*time.Second, 5*time.Millisecond)
}

func TestTrackerRemoveWithoutAddIsNoop(t *testing.T) {
	tr := newTestTracker(t, &recordingRoles{})
	ctx := context.Background()
	tr.Start(ctx)
	defer tr.Stop()

	thumbs := ledger.Standard("👍")
	require.True(t, tr.Submit(ctx, ReactionEvent{Removed: true, AuthorID: author, Key: thumbs}))
	require.True(t, tr.Submit(ctx, ReactionEvent{AuthorID: author, Key: thumbs}))
	drain(t, tr, 1)

	require.True(t, tr.Submit(ctx, ReactionEvent{Removed: true, AuthorID: author, Key: thumbs}))
	require.Eventually(t, func() bool {
		return tr.Ledger.Len() == 0 && len(tr.queue) == 0
	}, 2*time.Second, 5*time.Millisecond)
}

func TestTrackerTouchesCustomEmojis(t *testing.T) {
	tr := newTestTracker(t, &recordingRoles{})
	ctx := context.Background()
	tr.Start(ctx)
	defer tr.Stop()

	at := time.UnixMilli(1_700_000_000_000)
	custom := ledger.Custom("blob", 4242)
	require.True(t, tr.Submit(ctx, ReactionEvent{AuthorID: author, Key: custom, At: at}))
	drain(t, tr, 1)

	assert.Equal(t, at, tr.Ledger.LastUsed(custom))
	assert.True(t, tr.Ledger.LastUsed(gemKey).IsZero())
}

func TestTrackerStopReleasesSubmitters(t *testing.T) {
	tr := newTestTracker(t, &recordingRoles{})
	tr.Stop()

	assert.False(t, tr.Submit(context.Background(), ReactionEvent{AuthorID: author, Key: gemKey}))
}

func TestTrackerStopsWithContext(t *testing.T) {
	tr := newTestTracker(t, &recordingRoles{})
	ctx, cancel := context.WithCancel(context.Background())
	tr.Start(ctx)
	cancel()
	tr.Stop()
}

func TestTrackerReconcilesAfterGemRemoval(t *testing.T) {
	roles := &recordingRoles{}
	tr := newTestTracker(t, roles)
	ctx := context.Background()
	tr.Start(ctx)
	defer tr.Stop()

	for i := 0; i < 150; i++ {
		require.True(t, tr.Submit(ctx, ReactionEvent{GuildID: guildID, AuthorID: author, Key: gemKey}))
	}
	drain(t, tr, 150)
	require.Eventually(t, func() bool {
		return slices.Equal([]snowflake.ID{500, 1500}, roles.addedRoles())
	}, 2*time.Second, 5*time.Millisecond)

	require.True(t, tr.Submit(ctx, ReactionEvent{Removed: true, GuildID: guildID, AuthorID: author, Key: gemKey}))
	drain(t, tr, 149)
	require.Eventually(t, func() bool {
		return slices.Equal([]snowflake.ID{500, 1500, 500}, roles.addedRoles())
	}, 2*time.Second, 5*time.Millisecond)
}

func TestTrackerReconcilesAtZeroGemsWhileEntryRemains(t *testing.T) {
	var mu sync.Mutex
	lookups := 0
	tr := newTestTracker(t, &recordingRoles{})
	tr.Roles = func(snowflake.ID) milestone.Roles {
		mu.Lock()
		defer mu.Unlock()
		lookups++
		return &recordingRoles{}
	}
	countLookups := func() int {
		mu.Lock()
		defer mu.Unlock()
		return lookups
	}

	ctx := context.Background()
	tr.Start(ctx)
	defer tr.Stop()

	thumbs := ledger.Standard("👍")
	require.True(t, tr.Submit(ctx, ReactionEvent{AuthorID: author, Key: thumbs}))
	require.True(t, tr.Submit(ctx, ReactionEvent{AuthorID: author, Key: gemKey}))
	drain(t, tr, 2)
	require.Eventually(t, func() bool { return countLookups() == 1 }, 2*time.Second, 5*time.Millisecond)

	// 1 -> 0 gems, entry survives through the other emoji
	require.True(t, tr.Submit(ctx, ReactionEvent{Removed: true, AuthorID: author, Key: gemKey}))
	drain(t, tr, 1)
	require.Eventually(t, func() bool { return countLookups() == 2 }, 2*time.Second, 5*time.Millisecond)

	e, ok := tr.Ledger.Snapshot(author)
	require.True(t, ok)
	assert.Zero(t, e.Count(gemKey))

	// removing the last emoji deletes the entry; nothing to reconcile
	require.True(t, tr.Submit(ctx, ReactionEvent{Removed: true, AuthorID: author, Key: thumbs}))
	require.Eventually(t, func() bool {
		return tr.Ledger.Len() == 0 && len(tr.queue) == 0
	}, 2*time.Second, 5*time.Millisecond)
	tr.Stop()
	assert.Equal(t, 2, countLookups())
}

func TestTrackerAppliesQueuedEventsOnShutdown(t *testing.T) {
	tr := NewTracker(ledger.New(nil), gemKey, 64)
	ctx, cancel := context.WithCancel(context.Background())

	for i := 0; i < 50; i++ {
		require.True(t, tr.Submit(ctx, ReactionEvent{AuthorID: author, Key: gemKey}))
	}
	tr.Start(ctx)
	cancel()
	tr.Stop()

	e, ok := tr.Ledger.Snapshot(author)
	require.True(t, ok)
	assert.Equal(t, 50, e.Total)
	assert.False(t, tr.Submit(context.Background(), ReactionEvent{AuthorID: author, Key: gemKey}))
}

type recordingWarmer struct {
	mu   sync.Mutex
	keys []ledger.Key
}

func (w *recordingWarmer) Ensure(key ledger.Key) (string, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.keys = append(w.keys, key)
	return "", false
}

func (w *recordingWarmer) seen() []ledger.Key {
	w.mu.Lock()
	defer w.mu.Unlock()
	return slices.Clone(w.keys)
}

func TestTrackerWarmsGlyphsOnAdd(t *testing.T) {
	var _ GlyphWarmer = (*emoji.Cache)(nil)

	warmer := &recordingWarmer{}
	tr := newTestTracker(t, &recordingRoles{})
	tr.Glyphs = warmer
	ctx := context.Background()
	tr.Start(ctx)
	defer tr.Stop()

	custom := ledger.Custom("blob", 4242)
	require.True(t, tr.Submit(ctx, ReactionEvent{AuthorID: author, Key: custom}))
	require.True(t, tr.Submit(ctx, ReactionEvent{Removed: true, AuthorID: author, Key: custom}))
	require.Eventually(t, func() bool {
		return tr.Ledger.Len() == 0 && len(tr.queue) == 0 && len(warmer.seen()) == 1
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, []ledger.Key{custom}, warmer.seen())
}
