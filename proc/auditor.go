package proc

import (
	"context"
	"sync"
	"time"

	"github.com/disgoorg/disgo/bot"
	"github.com/disgoorg/disgo/rest"
	"github.com/disgoorg/snowflake/v2"
	"github.com/leeineian/gemboard/audit"
	"github.com/leeineian/gemboard/sys"
)

var auditMu sync.Mutex

func init() {
	sys.OnClientReady(func(ctx context.Context, client *bot.Client) {
		sys.RegisterDaemon(sys.LogAudit, func(ctx context.Context) (bool, func(), func()) {
			return StartEmojiAudit(ctx, client)
		})
	})
}

// StartEmojiAudit sweeps once immediately and then on every audit interval.
func StartEmojiAudit(ctx context.Context, client *bot.Client) (bool, func(), func()) {
	if Ledger == nil {
		return false, nil, nil
	}

	interval := 24 * time.Hour
	if runtimeConfig != nil && runtimeConfig.AuditInterval > 0 {
		interval = runtimeConfig.AuditInterval
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	run := func() {
		defer close(done)
		_, _ = RunEmojiAudit(ctx, client)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				_, _ = RunEmojiAudit(ctx, client)
			case <-ctx.Done():
				return
			}
		}
	}

	shutdown := func() {
		sys.LogAudit(sys.MsgAuditShutdown)
		cancel()
		<-done
	}
	return true, run, shutdown
}

// RunEmojiAudit performs one sweep and notifies every operator. Concurrent
// calls are serialized.
func RunEmojiAudit(ctx context.Context, client *bot.Client) (audit.Result, error) {
	auditMu.Lock()
	defer auditMu.Unlock()

	threshold := audit.DefaultThreshold
	if runtimeConfig != nil && runtimeConfig.StaleAfter > 0 {
		threshold = runtimeConfig.StaleAfter
	}

	a := &audit.Auditor{
		Source:    guildEmojis{client: client},
		Usage:     Ledger.UsageByID,
		Notify:    NotifyOperators,
		Threshold: threshold,
	}
	return a.Sweep(ctx)
}

// guildEmojis lists guilds and custom emojis through the REST API.
type guildEmojis struct {
	client *bot.Client
}

const guildPageSize = 200

func (g guildEmojis) Guilds(ctx context.Context) ([]audit.Guild, error) {
	return collectGuilds(func(after snowflake.ID) ([]audit.Guild, error) {
		guilds, err := g.client.Rest.GetCurrentUserGuilds("", 0, after, guildPageSize, false, rest.WithCtx(ctx))
		if err != nil {
			return nil, err
		}
		page := make([]audit.Guild, 0, len(guilds))
		for _, guild := range guilds {
			page = append(page, audit.Guild{ID: guild.ID, Name: guild.Name})
		}
		return page, nil
	})
}

// collectGuilds follows the after cursor until a short page comes back.
func collectGuilds(fetch func(after snowflake.ID) ([]audit.Guild, error)) ([]audit.Guild, error) {
	var (
		out   []audit.Guild
		after snowflake.ID
	)
	for {
		page, err := fetch(after)
		if err != nil {
			return nil, err
		}
		out = append(out, page...)
		if len(page) < guildPageSize {
			return out, nil
		}
		after = page[len(page)-1].ID
	}
}

func (g guildEmojis) Emojis(ctx context.Context, guildID snowflake.ID) ([]audit.Emoji, error) {
	emojis, err := g.client.Rest.GetEmojis(guildID, rest.WithCtx(ctx))
	if err != nil {
		return nil, err
	}
	out := make([]audit.Emoji, 0, len(emojis))
	for _, e := range emojis {
		out = append(out, audit.Emoji{ID: e.ID, Name: e.Name})
	}
	return out, nil
}
