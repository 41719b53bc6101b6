package home

import (
	"fmt"
	"os"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/events"
	"github.com/leeineian/gemboard/card"
	"github.com/leeineian/gemboard/ledger"
	"github.com/leeineian/gemboard/proc"
	"github.com/leeineian/gemboard/sys"
)

func init() {
	sys.RegisterCommand(discord.SlashCommandCreate{
		Name:        "stats",
		Description: "Get reaction stats for a user",
		Contexts: []discord.InteractionContextType{
			discord.InteractionContextTypeGuild,
		},
		Options: []discord.ApplicationCommandOption{
			discord.ApplicationCommandOptionUser{
				Name:        "user",
				Description: "The user to check (defaults to you)",
				Required:    false,
			},
			discord.ApplicationCommandOptionInt{
				Name:        "page",
				Description: "Page number to view (default: 1)",
				Required:    false,
			},
		},
	}, handleStats)
}

func handleStats(event *events.ApplicationCommandInteractionCreate) {
	if err := event.DeferCreateMessage(false); err != nil {
		sys.LogWarn(sys.MsgCommandRespondFail, err)
		return
	}

	data := event.SlashCommandInteractionData()
	target := event.User()
	if u, ok := data.OptUser("user"); ok {
		target = u
	}
	page := 1
	if p, ok := data.OptInt("page"); ok {
		page = p
	}

	entry, ok := proc.Ledger.Snapshot(target.ID)
	if !ok || entry.Total == 0 {
		updateText(event, fmt.Sprintf(sys.MsgStatsNoData, target.Username))
		return
	}

	rows := entry.Sorted()
	pg, err := ledger.Paginate(len(rows), page, ledger.PageSize)
	if err != nil {
		updateText(event, invalidPage(pg))
		return
	}

	path, err := card.Render(ledger.Window(rows, pg), target.Username, proc.Glyphs, sys.GlobalConfig.TempDir)
	if err != nil {
		sys.LogError(sys.MsgRenderFail, err)
		updateText(event, sys.ErrStatsRenderFailed)
		return
	}
	defer func() {
		if err := os.Remove(path); err != nil {
			sys.LogWarn(sys.MsgTempCleanupFail, path, err)
		}
	}()

	f, err := os.Open(path)
	if err != nil {
		sys.LogError(sys.MsgRenderFail, err)
		updateText(event, sys.ErrStatsRenderFailed)
		return
	}
	defer f.Close()

	caption := statsCaption(target.Username, pg, entry.Total)
	update := discord.MessageUpdate{
		Content:         &caption,
		AllowedMentions: &discord.AllowedMentions{},
		Files:           []*discord.File{discord.NewFile("stats.png", "", f)},
	}
	if _, err := event.Client().Rest.UpdateInteractionResponse(event.ApplicationID(), event.Token(), update); err != nil {
		sys.LogWarn(sys.MsgCommandRespondFail, err)
	}
}

func updateText(event *events.ApplicationCommandInteractionCreate, content string) {
	if _, err := event.Client().Rest.UpdateInteractionResponse(event.ApplicationID(), event.Token(), textUpdate(content)); err != nil {
		sys.LogWarn(sys.MsgCommandRespondFail, err)
	}
}
