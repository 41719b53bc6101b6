package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/dustin/go-humanize"
	"github.com/leeineian/gemboard/ledger"
	"github.com/leeineian/gemboard/sys"
)

const DefaultThreshold = 90 * 24 * time.Hour

type Guild struct {
	ID   snowflake.ID
	Name string
}

type Emoji struct {
	ID   snowflake.ID
	Name string
}

// Source lists the guilds the bot is in and their custom emojis.
type Source interface {
	Guilds(ctx context.Context) ([]Guild, error)
	Emojis(ctx context.Context, guildID snowflake.ID) ([]Emoji, error)
}

// Finding is one custom emoji that has gone unused past the threshold.
type Finding struct {
	Guild    Guild
	Emoji    Emoji
	LastUsed time.Time
}

// Message is the operator notice for f.
func (f Finding) Message(now time.Time) string {
	when := "never used"
	if !f.LastUsed.IsZero() {
		when = "last used " + humanize.RelTime(f.LastUsed, now, "ago", "from now")
	}
	return fmt.Sprintf(sys.MsgAuditNotice, f.Emoji.Name, f.Emoji.ID, f.Guild.Name, when)
}

type Result struct {
	Scanned int
	Stale   []Finding
}

// Auditor flags custom emojis whose last recorded use is older than
// Threshold. Emojis never recorded count as last used at the epoch.
type Auditor struct {
	Source    Source
	Usage     func() map[snowflake.ID]ledger.Usage
	Notify    func(ctx context.Context, message string)
	Threshold time.Duration
	Now       func() time.Time
}

// Sweep checks every guild once. Every stale emoji is reported on every
// sweep. A guild whose emojis cannot be listed is skipped.
func (a *Auditor) Sweep(ctx context.Context) (Result, error) {
	var res Result

	guilds, err := a.Source.Guilds(ctx)
	if err != nil {
		sys.LogAudit(sys.MsgAuditGuildsFail, err)
		return res, err
	}
	sys.LogAudit(sys.MsgAuditStarting, len(guilds))

	now := time.Now()
	if a.Now != nil {
		now = a.Now()
	}
	threshold := a.Threshold
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	var usage map[snowflake.ID]ledger.Usage
	if a.Usage != nil {
		usage = a.Usage()
	}

	for _, g := range guilds {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		emojis, err := a.Source.Emojis(ctx, g.ID)
		if err != nil {
			sys.LogAudit(sys.MsgAuditGuildFail, g.ID, err)
			continue
		}
		for _, e := range emojis {
			res.Scanned++
			last := time.UnixMilli(usage[e.ID].LastUsed)
			if now.Sub(last) <= threshold {
				continue
			}
			f := Finding{Guild: g, Emoji: e, LastUsed: usage[e.ID].Time()}
			res.Stale = append(res.Stale, f)
			if a.Notify != nil {
				a.Notify(ctx, f.Message(now))
			}
		}
	}

	sys.LogAudit(sys.MsgAuditDone, len(res.Stale), res.Scanned)
	return res, nil
}
