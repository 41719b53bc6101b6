package home

import (
	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/events"
	"github.com/disgoorg/omit"
	"github.com/leeineian/gemboard/proc"
	"github.com/leeineian/gemboard/sys"
)

func init() {
	adminPerm := discord.PermissionAdministrator

	sys.RegisterCommand(discord.SlashCommandCreate{
		Name:                     "gemstatus",
		Description:              "Toggle the rotating gem stats status (Admin Only)",
		DefaultMemberPermissions: omit.New(&adminPerm),
		Contexts: []discord.InteractionContextType{
			discord.InteractionContextTypeGuild,
		},
		Options: []discord.ApplicationCommandOption{
			discord.ApplicationCommandOptionBool{
				Name:        "visible",
				Description: "Enable or disable status rotation",
				Required:    true,
			},
		},
	}, handleGemStatus)
}

func handleGemStatus(event *events.ApplicationCommandInteractionCreate) {
	visible := event.SlashCommandInteractionData().Bool("visible")

	content := statusToggleText(visible)
	if err := proc.SetStatusVisible(sys.AppContext, visible); err != nil {
		sys.LogError(sys.MsgStatusToggleFail, err)
		content = sys.ErrStatusToggleFailed
	}

	err := event.CreateMessage(discord.MessageCreate{
		Content: content,
		Flags:   discord.MessageFlagEphemeral,
	})
	if err != nil {
		sys.LogWarn(sys.MsgCommandRespondFail, err)
	}
}
