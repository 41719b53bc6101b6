package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/google/go-cmp/cmp"
	"github.com/leeineian/gemboard/ledger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	guilds    []Guild
	emojis    map[snowflake.ID][]Emoji
	guildsErr error
	emojiErr  map[snowflake.ID]error
}

func (f *fakeSource) Guilds(ctx context.Context) ([]Guild, error) {
	return f.guilds, f.guildsErr
}

func (f *fakeSource) Emojis(ctx context.Context, guildID snowflake.ID) ([]Emoji, error) {
	if err := f.emojiErr[guildID]; err != nil {
		return nil, err
	}
	return f.emojis[guildID], nil
}

var now = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

func newAuditor(src Source, usage map[snowflake.ID]ledger.Usage, sent *[]string) *Auditor {
	return &Auditor{
		Source:    src,
		Usage:     func() map[snowflake.ID]ledger.Usage { return usage },
		Notify:    func(ctx context.Context, msg string) { *sent = append(*sent, msg) },
		Threshold: DefaultThreshold,
		Now:       func() time.Time { return now },
	}
}

func TestSweepFlagsStaleAndNeverUsed(t *testing.T) {
	src := &fakeSource{
		guilds: []Guild{{ID: 1, Name: "Gem Hall"}},
		emojis: map[snowflake.ID][]Emoji{
			1: {{ID: 10, Name: "fresh"}, {ID: 11, Name: "dusty"}, {ID: 12, Name: "ghost"}},
		},
	}
	usage := map[snowflake.ID]ledger.Usage{
		10: {LastUsed: now.Add(-24 * time.Hour).UnixMilli(), Count: 4},
		11: {LastUsed: now.Add(-120 * 24 * time.Hour).UnixMilli(), Count: 1},
	}
	var sent []string
	res, err := newAuditor(src, usage, &sent).Sweep(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, res.Scanned)
	var names []string
	for _, f := range res.Stale {
		names = append(names, f.Emoji.Name)
	}
	if diff := cmp.Diff([]string{"dusty", "ghost"}, names); diff != "" {
		t.Errorf("stale emojis mismatch (-want +got):\n%s", diff)
	}

	require.Len(t, sent, 2)
	assert.Contains(t, sent[0], "Custom emoji `dusty` (ID: 11) in Gem Hall hasn't been used in over 3 months.")
	assert.Contains(t, sent[0], "ago")
	assert.Contains(t, sent[1], "never used")
}

func TestSweepBoundaryIsNotStale(t *testing.T) {
	src := &fakeSource{
		guilds: []Guild{{ID: 1, Name: "g"}},
		emojis: map[snowflake.ID][]Emoji{1: {{ID: 10, Name: "edge"}}},
	}
	usage := map[snowflake.ID]ledger.Usage{10: {LastUsed: now.Add(-DefaultThreshold).UnixMilli()}}
	var sent []string
	res, err := newAuditor(src, usage, &sent).Sweep(context.Background())
	require.NoError(t, err)
	assert.Empty(t, res.Stale)
	assert.Empty(t, sent)
}

func TestSweepRepeatsEachRun(t *testing.T) {
	src := &fakeSource{
		guilds: []Guild{{ID: 1, Name: "g"}},
		emojis: map[snowflake.ID][]Emoji{1: {{ID: 10, Name: "old"}}},
	}
	var sent []string
	a := newAuditor(src, nil, &sent)
	for i := 0; i < 3; i++ {
		_, err := a.Sweep(context.Background())
		require.NoError(t, err)
	}
	assert.Len(t, sent, 3)
}

func TestSweepSkipsFailingGuild(t *testing.T) {
	src := &fakeSource{
		guilds:   []Guild{{ID: 1, Name: "broken"}, {ID: 2, Name: "ok"}},
		emojis:   map[snowflake.ID][]Emoji{2: {{ID: 20, Name: "old"}}},
		emojiErr: map[snowflake.ID]error{1: errors.New("forbidden")},
	}
	var sent []string
	res, err := newAuditor(src, nil, &sent).Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Scanned)
	assert.Len(t, res.Stale, 1)
}

func TestSweepGuildListFailure(t *testing.T) {
	src := &fakeSource{guildsErr: errors.New("offline")}
	var sent []string
	_, err := newAuditor(src, nil, &sent).Sweep(context.Background())
	require.Error(t, err)
	assert.Empty(t, sent)
}
