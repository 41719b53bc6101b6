package proc

import (
	"context"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/disgoorg/disgo/bot"
	"github.com/disgoorg/disgo/events"
	"github.com/disgoorg/disgo/rest"
	"github.com/disgoorg/snowflake/v2"
	"github.com/leeineian/gemboard/emoji"
	"github.com/leeineian/gemboard/ledger"
	"github.com/leeineian/gemboard/milestone"
	"github.com/leeineian/gemboard/sys"
)

const reactionQueueSize = 256

var (
	Ledger    *ledger.Ledger
	Glyphs    *emoji.Cache
	Reactions *Tracker

	runtimeConfig *sys.Config
	botClient     atomic.Pointer[bot.Client]
)

func init() {
	sys.RegisterReactionAddHandler(onReactionAdd)
	sys.RegisterReactionRemoveHandler(onReactionRemove)

	sys.OnClientReady(func(ctx context.Context, client *bot.Client) {
		botClient.Store(client)
		sys.RegisterDaemon(sys.LogLedger, func(ctx context.Context) (bool, func(), func()) {
			return StartTracker(ctx)
		})
	})
}

// Init opens the ledger and builds the reaction pipeline. It must run before
// the gateway connects.
func Init(cfg *sys.Config) error {
	runtimeConfig = cfg

	for _, dir := range []string{cfg.DataDir, cfg.EmojiDir, cfg.TempDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf(sys.MsgDirCreateFail, dir, err)
		}
	}

	l, err := ledger.Open(ledger.NewFileStore(cfg.DataDir))
	if err != nil {
		return err
	}

	gem, err := ledger.ParseKey(cfg.GemEmoji)
	if err != nil {
		return fmt.Errorf("invalid GEM_EMOJI: %w", err)
	}

	table, err := milestone.NewTable(cfg.Milestones)
	if err != nil {
		return err
	}

	Ledger = l
	Glyphs = emoji.NewCache(cfg.EmojiDir)

	Reactions = NewTracker(l, gem, reactionQueueSize)
	Reactions.Glyphs = Glyphs
	Reactions.Reconciler = &milestone.Reconciler{Table: table, Notify: NotifyPrimaryOperator}
	Reactions.Roles = func(guildID snowflake.ID) milestone.Roles {
		client := botClient.Load()
		if client == nil {
			return nil
		}
		return memberRoles{client: client, guildID: guildID}
	}
	return nil
}

// StartTracker is the daemon starter for the reaction queue consumer.
func StartTracker(ctx context.Context) (bool, func(), func()) {
	if Reactions == nil {
		return false, nil, nil
	}
	return true, func() { Reactions.Start(ctx) }, Reactions.Stop
}

func onReactionAdd(event *events.GuildMessageReactionAdd) {
	if event.Member.User.Bot {
		return
	}
	key, ok := ledger.FromPartial(event.Emoji)
	if !ok {
		return
	}
	submitReaction(event.Client(), event.GuildID, event.ChannelID, event.MessageID, event.MessageAuthorID, key, false)
}

func onReactionRemove(event *events.GuildMessageReactionRemove) {
	client := event.Client()
	if self, ok := client.Caches.SelfUser(); ok && self.ID == event.UserID {
		return
	}
	if member, ok := client.Caches.Member(event.GuildID, event.UserID); ok && member.User.Bot {
		return
	}
	key, ok := ledger.FromPartial(event.Emoji)
	if !ok {
		return
	}
	submitReaction(client, event.GuildID, event.ChannelID, event.MessageID, nil, key, true)
}

// submitReaction queues a reaction for the author of the message. Add events
// carry the author; removals look it up.
func submitReaction(client *bot.Client, guildID, channelID, messageID snowflake.ID, knownAuthor *snowflake.ID, key ledger.Key, removed bool) {
	if Reactions == nil {
		return
	}
	at := time.Now()

	authorID, err := resolveAuthor(knownAuthor, func() (snowflake.ID, error) {
		ctx, cancel := context.WithTimeout(sys.AppContext, 15*time.Second)
		defer cancel()
		msg, err := client.Rest.GetMessage(channelID, messageID, rest.WithCtx(ctx))
		if err != nil {
			return 0, err
		}
		return msg.Author.ID, nil
	})
	if err != nil {
		sys.LogLedger(sys.MsgTrackerNoAuthor, messageID, err)
		return
	}

	Reactions.Submit(sys.AppContext, ReactionEvent{
		Removed:  removed,
		GuildID:  guildID,
		AuthorID: authorID,
		Key:      key,
		At:       at,
	})
}

func resolveAuthor(known *snowflake.ID, fetch func() (snowflake.ID, error)) (snowflake.ID, error) {
	if known != nil && *known != 0 {
		return *known, nil
	}
	return fetch()
}

// memberRoles performs milestone role changes through the REST API.
type memberRoles struct {
	client  *bot.Client
	guildID snowflake.ID
}

func (m memberRoles) MemberRoles(ctx context.Context, userID snowflake.ID) ([]snowflake.ID, error) {
	member, err := m.client.Rest.GetMember(m.guildID, userID, rest.WithCtx(ctx))
	if err != nil {
		return nil, err
	}
	return member.RoleIDs, nil
}

func (m memberRoles) AddRole(ctx context.Context, userID, roleID snowflake.ID) error {
	return m.client.Rest.AddMemberRole(m.guildID, userID, roleID, rest.WithCtx(ctx))
}

func (m memberRoles) RemoveRole(ctx context.Context, userID, roleID snowflake.ID) error {
	return m.client.Rest.RemoveMemberRole(m.guildID, userID, roleID, rest.WithCtx(ctx))
}
