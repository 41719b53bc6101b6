package sys

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
)

// --- Globals & Styles ---

var (
	// Level colors
	infoColor  = color.New()
	warnColor  = color.New(color.FgYellow)
	errorColor = color.New(color.FgRed)
	fatalColor = color.New(color.FgRed, color.Bold)

	// Component colors
	databaseColor  = color.New()
	storeColor     = color.New()
	ledgerColor    = color.New(color.FgMagenta)
	milestoneColor = color.New(color.FgHiMagenta)
	emojiColor     = color.New(color.FgCyan)
	auditColor     = color.New(color.FgYellow)
	statusColor    = color.New(color.FgGreen)

	// Global state
	DefaultTimeFormat = "15:04:05"
	IsSilent          = false
	LogToFile         = false
	Logger            *slog.Logger

	// Internal state
	logFile *os.File
	logMu   sync.Mutex
)

// --- Initialization ---

func init() {
	InitLogger(false, false)
}

// InitLogger initializes the global structured logger
func InitLogger(silent bool, saveToFile bool) {
	logMu.Lock()
	defer logMu.Unlock()

	IsSilent = silent
	LogToFile = saveToFile
	level := slog.LevelInfo
	if strings.ToLower(os.Getenv("DEBUG")) == "true" {
		level = slog.LevelDebug
	}

	if logFile != nil {
		_ = logFile.Close()
		logFile = nil
	}

	var writer io.Writer = os.Stdout
	var err error

	if LogToFile {
		logName := GetProjectName() + ".log"
		if exePath, exeErr := os.Executable(); exeErr == nil {
			logName = filepath.Base(exePath) + ".log"
		}

		logFile, err = os.OpenFile(logName, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open %s: %v\n", logName, err)
		} else {
			writer = io.MultiWriter(os.Stdout, NewStripANSIWriter(logFile))
		}
	}

	color.NoColor = false

	handler := NewBotLogHandler(writer, &BotLogHandlerOptions{
		Silent: IsSilent,
		Level:  level,
	})
	Logger = slog.New(handler)
	slog.SetDefault(Logger)
}

func SetSilentMode(silent bool) {
	InitLogger(silent, LogToFile)
}

// --- Public Logging API ---

func LogInfo(format string, v ...any) {
	slog.Info(fmt.Sprintf(format, v...))
}

func LogWarn(format string, v ...any) {
	slog.Warn(fmt.Sprintf(format, v...))
}

func LogError(format string, v ...any) {
	slog.Error(fmt.Sprintf(format, v...))
}

func LogFatal(format string, v ...any) {
	msg := fmt.Sprintf(format, v...)
	slog.Log(context.Background(), slog.LevelError+4, msg)
	panic(msg)
}

func LogDebug(format string, v ...any) {
	slog.Debug(fmt.Sprintf(format, v...))
}

// Component Loggers

func LogDatabase(format string, v ...any) {
	slog.Info(fmt.Sprintf(format, v...), slog.String("component", "database"))
}

func LogStore(format string, v ...any) {
	slog.Info(fmt.Sprintf(format, v...), slog.String("component", "store"))
}

func LogLedger(format string, v ...any) {
	slog.Info(fmt.Sprintf(format, v...), slog.String("component", "ledger"))
}

func LogMilestone(format string, v ...any) {
	slog.Info(fmt.Sprintf(format, v...), slog.String("component", "milestone"))
}

func LogEmoji(format string, v ...any) {
	slog.Info(fmt.Sprintf(format, v...), slog.String("component", "emoji"))
}

func LogAudit(format string, v ...any) {
	slog.Info(fmt.Sprintf(format, v...), slog.String("component", "audit"))
}

func LogStatusRotator(format string, v ...any) {
	slog.Info(fmt.Sprintf(format, v...), slog.String("component", "status"))
}

// --- Log Handler Implementation ---

type BotLogHandlerOptions struct {
	Silent bool
	Level  slog.Leveler
}

type BotLogHandler struct {
	w    io.Writer
	opts *BotLogHandlerOptions
	mu   *sync.Mutex
}

func NewBotLogHandler(w io.Writer, opts *BotLogHandlerOptions) *BotLogHandler {
	if opts == nil {
		opts = &BotLogHandlerOptions{Level: slog.LevelInfo}
	}
	return &BotLogHandler{
		w:    w,
		opts: opts,
		mu:   &sync.Mutex{},
	}
}

func (h *BotLogHandler) Enabled(ctx context.Context, level slog.Level) bool {
	if h.opts.Silent {
		return false
	}
	return level >= h.opts.Level.Level()
}

func (h *BotLogHandler) Handle(ctx context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.opts.Silent {
		return nil
	}

	timeStr := time.Now().Format(DefaultTimeFormat)
	var levelStr string
	var levelColor *color.Color

	switch {
	case r.Level >= slog.LevelError+4:
		levelStr = "FATAL"
		levelColor = fatalColor
	case r.Level >= slog.LevelError:
		levelStr = "ERROR"
		levelColor = errorColor
	case r.Level >= slog.LevelWarn:
		levelStr = "WARN"
		levelColor = warnColor
	case r.Level >= slog.LevelInfo:
		levelStr = "INFO"
		levelColor = infoColor
	default:
		levelStr = "DEBUG"
		levelColor = infoColor
	}

	component := ""
	r.Attrs(func(a slog.Attr) bool {
		if a.Key == "component" {
			component = strings.ToUpper(a.Value.String())
			return false
		}
		return true
	})

	fmt.Fprintf(h.w, "%s", timeStr)

	if component != "" {
		if levelStr != "INFO" {
			fmt.Fprintf(h.w, " %s", levelColor.Sprintf("[%s]", levelStr))
		}
		compColor := getComponentColor(component)
		fmt.Fprintf(h.w, " %s\n", colorizeWithResets(compColor, fmt.Sprintf("[%s] %s", component, r.Message)))
	} else {
		fmt.Fprintf(h.w, " %s\n", colorizeWithResets(levelColor, fmt.Sprintf("[%s] %s", levelStr, r.Message)))
	}

	return nil
}

func (h *BotLogHandler) WithAttrs(attrs []slog.Attr) slog.Handler { return h }
func (h *BotLogHandler) WithGroup(name string) slog.Handler       { return h }

// --- Formatting Helpers ---

func getComponentColor(name string) *color.Color {
	switch name {
	case "DATABASE":
		return databaseColor
	case "STORE":
		return storeColor
	case "LEDGER":
		return ledgerColor
	case "MILESTONE":
		return milestoneColor
	case "EMOJI":
		return emojiColor
	case "AUDIT":
		return auditColor
	case "STATUS":
		return statusColor
	default:
		return color.New(color.FgCyan)
	}
}

// colorizeWithResets re-applies the outer color after every reset code so
// nested coloring inside a message keeps the component color afterwards.
func colorizeWithResets(c *color.Color, text string) string {
	if !strings.Contains(text, "\x1b[0m") {
		return c.Sprint(text)
	}

	marker := "@@@MSG@@@"
	wrapped := c.Sprint(marker)
	idx := strings.Index(wrapped, marker)
	if idx <= 0 {
		return text
	}
	startSeq := wrapped[:idx]

	modifiedText := strings.ReplaceAll(text, "\x1b[0m", "\x1b[0m"+startSeq)
	return c.Sprint(modifiedText)
}

func GetLogPath() string {
	logMu.Lock()
	defer logMu.Unlock()
	if logFile == nil {
		return ""
	}
	return logFile.Name()
}

// --- ANSI Stripper ---

type StripANSIWriter struct {
	w  io.Writer
	re *regexp.Regexp
}

func NewStripANSIWriter(w io.Writer) *StripANSIWriter {
	return &StripANSIWriter{
		w:  w,
		re: regexp.MustCompile(`\x1b\[[0-9;]*m`),
	}
}

func (s *StripANSIWriter) Write(p []byte) (n int, err error) {
	clean := s.re.ReplaceAll(p, []byte(""))
	_, err = s.w.Write(clean)
	return len(p), err
}

// --- Message Constants ---

const (
	// --- Infrastructure & Lifecycle ---
	MsgConfigFailedToLoad  = "Failed to load config: %v"
	MsgConfigMissingToken  = "DISCORD_TOKEN is not set in .env file"
	MsgConfigNoOperators   = "OWNER_IDS is empty; failure reports and audit notices will only be logged"
	MsgConfigNoMilestones  = "MILESTONE_ROLES is empty; gem reactions will be counted without granting roles"
	MsgDatabaseInitSuccess = "Database initialized successfully"
	MsgDatabaseTableError  = "Failed to create table: %w"
	MsgDatabasePragmaError = "Failed to set pragma %s: %w"
	MsgDaemonStarting      = "Starting..."
	MsgBotStarting         = "Starting %s..."
	MsgBotReady            = "%s is ready! (ID: %s) (PID: %d) (Took: %dms)"
	MsgBotShutdown         = "Shutting down %s..."
	MsgBotRegisterFail     = "Command registration failed: %v"
	MsgDirCreateFail       = "Failed to create directory %s: %w"
	MsgInitializing        = "Initializing %s..."
	MsgDatabaseInitFail    = "Failed to initialize database: %v"
	MsgBotSkipReg          = "Skipping command registration as requested."
	MsgBotClientCreateFail = "failed to create Discord client after %d attempts: %w"
	MsgBotClientRetry      = "Failed to create Discord client (attempt %d/5): %v. Retrying in 5s..."
	MsgBotGatewayFail      = "failed to open gateway: %w"
	MsgBotInitFail         = "Failed to initialize reaction tracking: %v"
	MsgDaemonShutdown      = "Shutting down all daemons..."
	MsgPanicFatal          = "\n[FATAL] %s\n"
	MsgCheckConsistent     = "%s is consistent (%d users)"
	MsgCheckIssues         = "%s has %d problems:"
	MsgCheckIssue          = "  - %s"
	MsgCheckRepaired       = "Rewrote %s with %d users"

	// --- Command Loader & Registry ---
	MsgLoaderSyncCommands       = "Syncing %s commands..."
	MsgLoaderUpToDate           = "Commands are up to date. (Hash: %s)"
	MsgLoaderCleanup            = "[CLEANUP] Removing commands from previous dev guild: %s"
	MsgLoaderDevStarting        = "[DEV] Registering commands to guild: %s"
	MsgLoaderDevRegistered      = "[DEV] Registered: %s"
	MsgLoaderDevFail            = "[DEV] Registration failed: %v"
	MsgLoaderDevGlobalClear     = "[DEV] Verifying global commands are cleared..."
	MsgLoaderDevGlobalClearFail = "[DEV] Global clear skipped (likely rate limited): %v"
	MsgLoaderProdStarting       = "[PROD] Registering commands globally..."
	MsgLoaderProdRegistered     = "[PROD] Registered: %s"
	MsgLoaderProdFail           = "[PROD] Global registration failed: %w"
	MsgLoaderScanStarting       = "[SCAN] Checking all guilds for ghost commands..."
	MsgLoaderScanCleared        = "[SCAN] Cleared ghost commands from: %s (%s)"
	MsgLoaderPanicRecovered     = "Panic recovered in handler: %v"

	// --- Store & Ledger ---
	MsgStoreCorrupt    = "Discarding malformed %s: %v"
	MsgLedgerLoaded    = "Loaded %d users and %d emoji usage records"
	MsgLedgerRepaired  = "Repaired ledger entry: %s"
	MsgLedgerSaveFail  = "Failed to save reaction data: %v"
	MsgUsageSaveFail   = "Failed to save emoji usage data: %v"
	MsgLedgerAdded     = "%s +1 for %s (total %d)"
	MsgLedgerRemoved   = "%s -1 for %s"
	MsgLedgerIgnored   = "Ignoring removal of uncounted %s for %s"
	MsgLedgerGemChange = "Gem count for %s is now %d"
	MsgTrackerQueued   = "Reaction queue closed, dropping %s event for %s"
	MsgTrackerNoAuthor = "Failed to resolve author of message %s: %v"

	// --- Milestones ---
	MsgMilestoneFetchFail  = "Failed to fetch member %s: %v"
	MsgMilestoneBelow      = "%s has %d gems, below every milestone"
	MsgMilestoneHeld       = "%s already has role %s for %d gems"
	MsgMilestoneAssigned   = "Assigned role %s to %s for %d gems"
	MsgMilestoneAssignFail = "Failed to assign role %s to %s: %v"
	MsgMilestoneRemoved    = "Removed lower-tier role %s from %s"
	MsgMilestoneRemoveFail = "Failed to remove lower-tier role %s from %s: %v"
	MsgMilestoneReportAdd  = "Error assigning role <@&%s> to <@%s>: %v"
	MsgMilestoneReportDrop = "Error removing role <@&%s> from <@%s>: %v"
	MsgNotifyFail          = "Failed to DM operator %s: %v"
	MsgNotifyNoOperator    = "No operator configured, report dropped: %s"

	// --- Emoji Cache & Rendering ---
	MsgEmojiCached      = "Cached emoji %s"
	MsgEmojiDownloading = "Downloading emoji %s from %s"
	MsgEmojiStatusFail  = "Failed to download %s: status %d"
	MsgEmojiFetchFail   = "Failed to download %s (attempt %d): %v"
	MsgEmojiRetry       = "Retrying download for %s (%d/%d)..."
	MsgEmojiNormalFail  = "Failed to normalize emoji %s: %v"
	MsgEmojiGaveUp      = "Giving up on emoji %s after %d attempts"
	MsgRenderFail       = "Failed to generate stats image: %v"
	MsgTempCleanupFail  = "Failed to delete temp image %s: %v"

	// --- Audit ---
	MsgAuditStarting   = "Checking custom emoji usage across %d guilds..."
	MsgAuditGuildFail  = "Failed to list emojis for guild %s: %v"
	MsgAuditGuildsFail = "Failed to list guilds: %v"
	MsgAuditDone       = "Emoji audit finished: %d stale of %d custom emojis"
	MsgAuditShutdown   = "Shutting down emoji audit..."
	MsgAuditNotice     = "Custom emoji `%s` (ID: %s) in %s hasn't been used in over 3 months. (%s)"

	// --- Status Rotator ---
	MsgStatusUpdateFail = "Failed to update status: %v"
	MsgStatusRotated    = "Status: %s (next in %v)"
	MsgStatusToggleFail = "Failed to save status visibility: %v"
	MsgStatusEnabled    = "✅ Status rotation enabled!"
	MsgStatusDisabled   = "✅ Status rotation disabled!"

	// --- Commands ---
	MsgStatsNoData        = "%s has no reactions yet!"
	MsgStatsInvalidPage   = "Invalid page number! Please use a number between 1 and %d."
	MsgStatsCaption       = "📊 **%s's Reaction Stats (Page %d/%d)**\n**Total Reactions:** %d"
	MsgStatsPageHint      = "\n\nUse **/stats page:<number>** to see other pages!"
	MsgLeaderboardEmpty   = "No reaction data yet!"
	MsgLeaderboardHeader  = "Reaction Leaderboard (Page %d/%d):"
	MsgLeaderboardRow     = "%d. %s - %d reactions"
	MsgLeaderboardFooter  = "\n\nUse /leaderboard <page> to see other pages!"
	MsgLeaderboardUnknown = "Unknown User"
	MsgAuditCommandResult = "Emoji audit finished: **%d** stale of **%d** custom emojis. Operators have been notified."
	MsgCommandRespondFail = "Failed to respond to interaction: %v"
	ErrStatsRenderFailed  = "Failed to generate stats image. Please try again."
	ErrAuditFailed        = "Emoji audit failed. Check the logs for details."
	ErrStatusToggleFailed = "Failed to update status visibility. Check the logs for details."
)
