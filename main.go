package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/disgoorg/disgo/bot"
	_ "github.com/leeineian/gemboard/home"
	"github.com/leeineian/gemboard/proc"
	"github.com/leeineian/gemboard/sys"
	"github.com/spf13/cobra"
)

// Version is overwritten at build time using -ldflags.
var Version = "dev"

func main() {
	// LogFatal panics so deferred cleanup runs
	defer func() {
		if r := recover(); r != nil {
			if msg, ok := r.(string); ok {
				fmt.Fprintf(os.Stderr, sys.MsgPanicFatal, msg)
				os.Exit(1)
			}
			panic(r)
		}
	}()

	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           sys.GetProjectName(),
		Short:         "Discord bot that counts emoji reactions and awards gem milestone roles",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			silent, _ := cmd.Flags().GetBool("silent")
			skipReg, _ := cmd.Flags().GetBool("skip-reg")
			clearAll, _ := cmd.Flags().GetBool("clear-all")
			return runBot(silent, skipReg, clearAll)
		},
	}

	cmd.Version = Version
	cmd.Flags().Bool("silent", false, "Disable all log output")
	cmd.Flags().Bool("skip-reg", false, "Skip command registration")
	cmd.Flags().Bool("clear-all", false, "Force clear guild commands (scan all guilds)")

	cmd.AddCommand(newCheckCmd())
	return cmd
}

func runBot(silent, skipReg, clearAll bool) error {
	sys.InitLogger(silent, true)
	sys.LogInfo(sys.MsgBotStarting, sys.GetProjectName())

	cfg, err := sys.LoadConfig()
	if err != nil {
		return fmt.Errorf(sys.MsgConfigFailedToLoad, err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
	defer stop()
	sys.SetAppContext(ctx)

	sys.LogInfo(sys.MsgInitializing, filepath.Base(cfg.DatabasePath))
	if err := sys.InitDatabase(ctx, cfg.DatabasePath); err != nil {
		sys.LogFatal(sys.MsgDatabaseInitFail, err)
	}
	defer sys.CloseDatabase()

	if err := proc.Init(cfg); err != nil {
		sys.LogFatal(sys.MsgBotInitFail, err)
	}

	var client *bot.Client
	for i := 1; i <= 5; i++ {
		client, err = sys.CreateClient(ctx, cfg)
		if err == nil {
			break
		}
		if i == 5 {
			return fmt.Errorf(sys.MsgBotClientCreateFail, i, err)
		}
		sys.LogWarn(sys.MsgBotClientRetry, i, err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(5 * time.Second):
		}
	}
	defer client.Close(context.Background())

	if !skipReg {
		if err := sys.RegisterCommands(client, cfg.GuildID, clearAll); err != nil {
			sys.LogError(sys.MsgBotRegisterFail, err)
		}
	} else {
		sys.LogInfo(sys.MsgBotSkipReg)
	}

	if err := client.OpenGateway(ctx); err != nil {
		return fmt.Errorf(sys.MsgBotGatewayFail, err)
	}

	<-ctx.Done()
	if !silent {
		fmt.Println()
	}

	sys.LogInfo(sys.MsgDaemonShutdown)
	sys.ShutdownDaemons(context.Background())

	sys.LogInfo(sys.MsgBotShutdown, sys.GetProjectName())
	return nil
}
