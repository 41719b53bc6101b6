package home

import (
	"fmt"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/events"
	"github.com/disgoorg/omit"
	"github.com/leeineian/gemboard/proc"
	"github.com/leeineian/gemboard/sys"
)

func init() {
	adminPerm := discord.PermissionAdministrator

	sys.RegisterCommand(discord.SlashCommandCreate{
		Name:                     "gemaudit",
		Description:              "Check for custom emojis unused in the last 3 months (Admin Only)",
		DefaultMemberPermissions: omit.New(&adminPerm),
		Contexts: []discord.InteractionContextType{
			discord.InteractionContextTypeGuild,
		},
	}, handleGemAudit)
}

func handleGemAudit(event *events.ApplicationCommandInteractionCreate) {
	if err := event.DeferCreateMessage(true); err != nil {
		sys.LogWarn(sys.MsgCommandRespondFail, err)
		return
	}

	res, err := proc.RunEmojiAudit(sys.AppContext, event.Client())
	if err != nil {
		updateText(event, sys.ErrAuditFailed)
		return
	}
	updateText(event, fmt.Sprintf(sys.MsgAuditCommandResult, len(res.Stale), res.Scanned))
}
