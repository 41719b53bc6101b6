package sys

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/joho/godotenv"
)

// Milestone is one configured gem threshold and the role it grants.
type Milestone struct {
	Threshold int
	RoleID    snowflake.ID
}

type Config struct {
	Token         string
	ApplicationID snowflake.ID
	GuildID       string
	DatabasePath  string
	OwnerIDs      []snowflake.ID
	Milestones    []Milestone
	GemEmoji      string
	DataDir       string
	EmojiDir      string
	TempDir       string
	StaleAfter    time.Duration
	AuditInterval time.Duration
	Silent        bool
}

var GlobalConfig *Config

// LoadConfig initializes the configuration from environment variables.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	dataDir := envOr("DATA_DIR", ".")
	dbPath := os.Getenv("DATABASE_PATH")
	if dbPath == "" {
		dbPath = filepath.Join(dataDir, GetProjectName()+".db")
	}

	silent, _ := strconv.ParseBool(os.Getenv("SILENT"))

	ownerIDs, err := parseIDList(os.Getenv("OWNER_IDS"))
	if err != nil {
		return nil, fmt.Errorf("invalid OWNER_IDS: %w", err)
	}

	milestones, err := ParseMilestones(os.Getenv("MILESTONE_ROLES"))
	if err != nil {
		return nil, fmt.Errorf("invalid MILESTONE_ROLES: %w", err)
	}

	var appID snowflake.ID
	if raw := os.Getenv("APPLICATION_ID"); raw != "" {
		if appID, err = snowflake.Parse(raw); err != nil {
			return nil, fmt.Errorf("invalid APPLICATION_ID: %w", err)
		}
	}

	staleDays := 90
	if raw := os.Getenv("STALE_AFTER_DAYS"); raw != "" {
		if staleDays, err = strconv.Atoi(raw); err != nil || staleDays <= 0 {
			return nil, fmt.Errorf("invalid STALE_AFTER_DAYS: %q", raw)
		}
	}

	interval := 24 * time.Hour
	if raw := os.Getenv("AUDIT_INTERVAL"); raw != "" {
		if interval, err = time.ParseDuration(raw); err != nil || interval <= 0 {
			return nil, fmt.Errorf("invalid AUDIT_INTERVAL: %q", raw)
		}
	}

	cfg := &Config{
		Token:         os.Getenv("DISCORD_TOKEN"),
		ApplicationID: appID,
		GuildID:       os.Getenv("GUILD_ID"),
		DatabasePath:  dbPath,
		OwnerIDs:      ownerIDs,
		Milestones:    milestones,
		GemEmoji:      envOr("GEM_EMOJI", "💎"),
		DataDir:       dataDir,
		EmojiDir:      envOr("EMOJI_DIR", filepath.Join(dataDir, "emojis")),
		TempDir:       envOr("TEMP_DIR", filepath.Join(dataDir, "temp")),
		StaleAfter:    time.Duration(staleDays) * 24 * time.Hour,
		AuditInterval: interval,
		Silent:        silent,
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if cfg.Silent {
		SetSilentMode(true)
	}

	GlobalConfig = cfg
	return cfg, nil
}

// DataDirFromEnv resolves DATA_DIR without requiring a full bot config.
func DataDirFromEnv() string {
	_ = godotenv.Load()
	return envOr("DATA_DIR", ".")
}

func (c *Config) Validate() error {
	if c.Token == "" {
		return fmt.Errorf(MsgConfigMissingToken)
	}
	if c.GuildID != "" && (len(c.GuildID) < 17 || len(c.GuildID) > 20) {
		return fmt.Errorf("invalid GUILD_ID: must be a valid Snowflake")
	}
	if len(c.OwnerIDs) == 0 {
		LogWarn(MsgConfigNoOperators)
	}
	if len(c.Milestones) == 0 {
		LogWarn(MsgConfigNoMilestones)
	}
	return nil
}

// PrimaryOperator is the operator that receives role failure reports.
func (c *Config) PrimaryOperator() (snowflake.ID, bool) {
	if len(c.OwnerIDs) == 0 {
		return 0, false
	}
	return c.OwnerIDs[0], true
}

// ParseMilestones reads "50:roleID,150:roleID". Thresholds must be positive
// and strictly increasing once sorted.
func ParseMilestones(raw string) ([]Milestone, error) {
	var out []Milestone
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		threshold, role, ok := strings.Cut(part, ":")
		if !ok {
			return nil, fmt.Errorf("%q: expected threshold:roleID", part)
		}
		n, err := strconv.Atoi(strings.TrimSpace(threshold))
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("%q: threshold must be a positive integer", part)
		}
		id, err := snowflake.Parse(strings.TrimSpace(role))
		if err != nil {
			return nil, fmt.Errorf("%q: %w", part, err)
		}
		out = append(out, Milestone{Threshold: n, RoleID: id})
	}

	slices.SortFunc(out, func(a, b Milestone) int { return a.Threshold - b.Threshold })
	for i := 1; i < len(out); i++ {
		if out[i].Threshold == out[i-1].Threshold {
			return nil, fmt.Errorf("duplicate threshold %d", out[i].Threshold)
		}
	}
	return out, nil
}

func GetProjectName() string {
	exePath, err := os.Executable()
	projectName := "gemboard"
	if err == nil {
		projectName = filepath.Base(exePath)
		projectName = strings.TrimSuffix(projectName, ".exe")

		if projectName == "main" || strings.HasPrefix(projectName, "go_build_") {
			if modData, err := os.ReadFile("go.mod"); err == nil {
				lines := strings.Split(string(modData), "\n")
				if len(lines) > 0 && strings.HasPrefix(lines[0], "module ") {
					parts := strings.Split(lines[0], "/")
					projectName = strings.TrimSpace(parts[len(parts)-1])
				}
			}
		}
	}
	return projectName
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func parseIDList(raw string) ([]snowflake.ID, error) {
	var ids []snowflake.ID
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := snowflake.Parse(part)
		if err != nil {
			return nil, fmt.Errorf("%q: %w", part, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
