package home

import (
	"context"
	"sync"
	"time"

	"github.com/disgoorg/disgo/bot"
	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/events"
	"github.com/disgoorg/disgo/rest"
	"github.com/disgoorg/snowflake/v2"
	"github.com/leeineian/gemboard/ledger"
	"github.com/leeineian/gemboard/proc"
	"github.com/leeineian/gemboard/sys"
	"golang.org/x/sync/errgroup"
)

func init() {
	sys.RegisterCommand(discord.SlashCommandCreate{
		Name:        "leaderboard",
		Description: "Show top users by reaction count",
		Contexts: []discord.InteractionContextType{
			discord.InteractionContextTypeGuild,
		},
		Options: []discord.ApplicationCommandOption{
			discord.ApplicationCommandOptionInt{
				Name:        "page",
				Description: "Page number to view",
				Required:    false,
			},
		},
	}, handleLeaderboard)
}

func handleLeaderboard(event *events.ApplicationCommandInteractionCreate) {
	if err := event.DeferCreateMessage(false); err != nil {
		sys.LogWarn(sys.MsgCommandRespondFail, err)
		return
	}

	data := event.SlashCommandInteractionData()
	page := 1
	if p, ok := data.OptInt("page"); ok {
		page = p
	}

	ranked := proc.Ledger.Rank()
	if len(ranked) == 0 {
		updateText(event, sys.MsgLeaderboardEmpty)
		return
	}

	pg, err := ledger.Paginate(len(ranked), page, ledger.PageSize)
	if err != nil {
		updateText(event, invalidPage(pg))
		return
	}
	rows := ledger.Window(ranked, pg)

	ctx, cancel := context.WithTimeout(sys.AppContext, 10*time.Second)
	defer cancel()
	names := resolveNames(ctx, event.Client(), rows)

	updateText(event, leaderboardText(rows, names, pg))
}

// resolveNames looks up usernames concurrently. Users that cannot be
// fetched are left out of the result.
func resolveNames(ctx context.Context, client *bot.Client, rows []ledger.Ranked) map[snowflake.ID]string {
	var mu sync.Mutex
	names := make(map[snowflake.ID]string, len(rows))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(5)
	for _, row := range rows {
		id := row.UserID
		g.Go(func() error {
			user, err := client.Rest.GetUser(id, rest.WithCtx(ctx))
			if err != nil {
				return nil
			}
			mu.Lock()
			names[id] = user.Username
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return names
}
