package proc

import (
	"context"
	"fmt"
	"math/rand"
	"strconv"
	"time"

	"github.com/disgoorg/disgo/bot"
	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/gateway"
	"github.com/dustin/go-humanize"
	"github.com/leeineian/gemboard/ledger"
	"github.com/leeineian/gemboard/sys"
)

func init() {
	sys.OnClientReady(func(ctx context.Context, client *bot.Client) {
		sys.RegisterDaemon(sys.LogStatusRotator, func(ctx context.Context) (bool, func(), func()) {
			return StartStatusRotator(ctx, client)
		})
	})
}

func GetRotationInterval() time.Duration {
	return time.Duration(15+rand.Intn(46)) * time.Second
}

var (
	StartTime       = time.Now().UTC()
	lastStatusText  string
	configKeyStatus = "status_visible"
)

// StatusFunc produces one presence line, or "" when it has nothing to show.
type StatusFunc func(l *ledger.Ledger, gem ledger.Key) string

var statusList = []StatusFunc{
	GetGemStatus,
	GetReactionStatus,
	GetUserStatus,
	GetUptimeStatus,
}

func StartStatusRotator(ctx context.Context, client *bot.Client) (bool, func(), func()) {
	if Ledger == nil || Reactions == nil {
		return false, nil, nil
	}

	return true, func() {
		for {
			next := GetRotationInterval()
			updateStatus(ctx, client, next)
			select {
			case <-time.After(next):
			case <-ctx.Done():
				return
			}
		}
	}, nil
}

func updateStatus(ctx context.Context, client *bot.Client, nextInterval time.Duration) {
	if client == nil {
		return
	}

	if !StatusVisible(ctx) {
		_ = client.SetPresence(ctx, gateway.WithOnlineStatus(discord.OnlineStatusOnline))
		return
	}

	selected := pickStatus(Ledger, Reactions.Gem, lastStatusText)
	lastStatusText = selected

	err := client.SetPresence(ctx,
		gateway.WithOnlineStatus(discord.OnlineStatusOnline),
		gateway.WithWatchingActivity(selected),
	)
	if err != nil {
		sys.LogStatusRotator(sys.MsgStatusUpdateFail, err)
		return
	}
	sys.LogStatusRotator(sys.MsgStatusRotated, selected, nextInterval)
}

// StatusVisible reports whether rotation is enabled. Unset means enabled.
func StatusVisible(ctx context.Context) bool {
	v, err := sys.GetBotConfig(ctx, configKeyStatus)
	return err == nil && v != "false"
}

// SetStatusVisible persists the rotation toggle.
func SetStatusVisible(ctx context.Context, visible bool) error {
	return sys.SetBotConfig(ctx, configKeyStatus, strconv.FormatBool(visible))
}

// pickStatus chooses a random non-empty status, avoiding an immediate repeat
// of last when another option exists.
func pickStatus(l *ledger.Ledger, gem ledger.Key, last string) string {
	var available []string
	for _, gen := range statusList {
		if text := gen(l, gem); text != "" {
			available = append(available, text)
		}
	}
	if len(available) == 0 {
		return GetUptimeStatus(l, gem)
	}

	var choices []string
	for _, s := range available {
		if s != last {
			choices = append(choices, s)
		}
	}
	if len(choices) == 0 {
		return available[0]
	}
	return choices[rand.Intn(len(choices))]
}

// Generators

func GetGemStatus(l *ledger.Ledger, gem ledger.Key) string {
	_, gems := l.Totals(gem)
	if gems == 0 {
		return ""
	}
	return fmt.Sprintf("%s %s handed out", humanize.Comma(int64(gems)), gem)
}

func GetReactionStatus(l *ledger.Ledger, gem ledger.Key) string {
	reactions, _ := l.Totals(gem)
	if reactions == 0 {
		return ""
	}
	return fmt.Sprintf("%s reactions counted", humanize.Comma(int64(reactions)))
}

func GetUserStatus(l *ledger.Ledger, gem ledger.Key) string {
	n := l.Len()
	if n == 0 {
		return ""
	}
	return fmt.Sprintf("%s members on the leaderboard", humanize.Comma(int64(n)))
}

func GetUptimeStatus(l *ledger.Ledger, gem ledger.Key) string {
	uptime := time.Since(StartTime)
	return fmt.Sprintf("Uptime: %dh %dm %ds", int(uptime.Hours()), int(uptime.Minutes())%60, int(uptime.Seconds())%60)
}
