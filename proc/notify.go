package proc

import (
	"context"
	"time"

	"github.com/disgoorg/disgo/bot"
	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/rest"
	"github.com/disgoorg/snowflake/v2"
	"github.com/leeineian/gemboard/sys"
)

// SendDM delivers content to a user's DM channel.
func SendDM(ctx context.Context, client *bot.Client, userID snowflake.ID, content string) error {
	dmChannel, err := client.Rest.CreateDMChannel(userID, rest.WithCtx(ctx))
	if err != nil {
		return err
	}
	_, err = client.Rest.CreateMessage(dmChannel.ID(), discord.MessageCreate{
		Content:         content,
		AllowedMentions: &discord.AllowedMentions{},
	}, rest.WithCtx(ctx))
	return err
}

// NotifyPrimaryOperator reports a role failure to the first configured
// operator. Failures are logged and dropped.
func NotifyPrimaryOperator(ctx context.Context, message string) {
	if runtimeConfig == nil {
		sys.LogWarn(sys.MsgNotifyNoOperator, message)
		return
	}
	operator, ok := runtimeConfig.PrimaryOperator()
	if !ok {
		sys.LogWarn(sys.MsgNotifyNoOperator, message)
		return
	}
	notify(ctx, []snowflake.ID{operator}, message)
}

// NotifyOperators sends message to every configured operator.
func NotifyOperators(ctx context.Context, message string) {
	if runtimeConfig == nil || len(runtimeConfig.OwnerIDs) == 0 {
		sys.LogWarn(sys.MsgNotifyNoOperator, message)
		return
	}
	notify(ctx, runtimeConfig.OwnerIDs, message)
}

func notify(ctx context.Context, userIDs []snowflake.ID, message string) {
	client := botClient.Load()
	if client == nil {
		sys.LogWarn(sys.MsgNotifyNoOperator, message)
		return
	}
	for _, id := range userIDs {
		sendCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
		if err := SendDM(sendCtx, client, id, message); err != nil {
			sys.LogWarn(sys.MsgNotifyFail, id, err)
		}
		cancel()
	}
}
