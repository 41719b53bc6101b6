package home

import (
	"fmt"
	"strings"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/snowflake/v2"
	"github.com/leeineian/gemboard/ledger"
	"github.com/leeineian/gemboard/sys"
)

func statsCaption(name string, p ledger.Page, total int) string {
	caption := fmt.Sprintf(sys.MsgStatsCaption, name, p.Number, p.Pages, total)
	if p.Pages > 1 {
		caption += sys.MsgStatsPageHint
	}
	return caption
}

// textUpdate replaces a deferred reply with plain text that pings nobody.
func textUpdate(content string) discord.MessageUpdate {
	return discord.MessageUpdate{
		Content:         &content,
		AllowedMentions: &discord.AllowedMentions{},
	}
}

func statusToggleText(visible bool) string {
	if visible {
		return sys.MsgStatusEnabled
	}
	return sys.MsgStatusDisabled
}

func invalidPage(p ledger.Page) string {
	return fmt.Sprintf(sys.MsgStatsInvalidPage, p.Pages)
}

// leaderboardText renders one page of ranked users. Missing names fall back
// to a placeholder.
func leaderboardText(rows []ledger.Ranked, names map[snowflake.ID]string, p ledger.Page) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf(sys.MsgLeaderboardHeader, p.Number, p.Pages))
	for i, row := range rows {
		name, ok := names[row.UserID]
		if !ok || name == "" {
			name = sys.MsgLeaderboardUnknown
		}
		sb.WriteByte('\n')
		sb.WriteString(fmt.Sprintf(sys.MsgLeaderboardRow, p.Start+i+1, name, row.Total))
	}
	sb.WriteString(sys.MsgLeaderboardFooter)
	return sb.String()
}
