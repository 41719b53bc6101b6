package sys

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMilestones(t *testing.T) {
	got, err := ParseMilestones(" 150:222, 50:111 ,250:333,")
	require.NoError(t, err)
	assert.Equal(t, []Milestone{
		{Threshold: 50, RoleID: 111},
		{Threshold: 150, RoleID: 222},
		{Threshold: 250, RoleID: 333},
	}, got)

	empty, err := ParseMilestones("")
	require.NoError(t, err)
	assert.Empty(t, empty)

	for _, bad := range []string{"50", "0:1", "-5:1", "50:abc", "50:1,50:2"} {
		_, err := ParseMilestones(bad)
		assert.Error(t, err, bad)
	}
}

func TestLoadConfigFromEnv(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("DISCORD_TOKEN", "token")
	t.Setenv("DATA_DIR", dir)
	t.Setenv("OWNER_IDS", "10, 20")
	t.Setenv("MILESTONE_ROLES", "50:1,150:2")
	t.Setenv("STALE_AFTER_DAYS", "30")
	t.Setenv("AUDIT_INTERVAL", "1h")
	t.Setenv("GEM_EMOJI", "")
	t.Setenv("EMOJI_DIR", "")
	t.Setenv("GUILD_ID", "")
	t.Setenv("APPLICATION_ID", "")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, []snowflake.ID{10, 20}, cfg.OwnerIDs)
	op, ok := cfg.PrimaryOperator()
	assert.True(t, ok)
	assert.Equal(t, snowflake.ID(10), op)
	assert.Len(t, cfg.Milestones, 2)
	assert.Equal(t, "💎", cfg.GemEmoji)
	assert.Equal(t, filepath.Join(dir, "emojis"), cfg.EmojiDir)
	assert.Equal(t, 30*24*time.Hour, cfg.StaleAfter)
	assert.Equal(t, time.Hour, cfg.AuditInterval)
}

func TestLoadConfigRequiresToken(t *testing.T) {
	t.Setenv("DISCORD_TOKEN", "")
	_, err := LoadConfig()
	require.Error(t, err)
}

func TestBotConfigRoundTrip(t *testing.T) {
	ctx := context.Background()
	require.NoError(t, InitDatabase(ctx, filepath.Join(t.TempDir(), "state", "bot.db")))
	defer func() {
		CloseDatabase()
		DB = nil
	}()

	v, err := GetBotConfig(ctx, "last_cmd_hash")
	require.NoError(t, err)
	assert.Empty(t, v)

	require.NoError(t, SetBotConfig(ctx, "last_cmd_hash", "abc"))
	require.NoError(t, SetBotConfig(ctx, "last_cmd_hash", "def"))
	v, err = GetBotConfig(ctx, "last_cmd_hash")
	require.NoError(t, err)
	assert.Equal(t, "def", v)
}

func TestSQLiteDriverRegistered(t *testing.T) {
	assert.Contains(t, sql.Drivers(), "sqlite3")
}
