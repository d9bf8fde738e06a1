package main

import (
	"context"
	"fmt"
	"sort"
	"time"

	"chatbridge/internal/bridge"
	"chatbridge/internal/config"

	"github.com/spf13/cobra"
)

func checkCmd() *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Verify config, credentials and bot identity",
		Long: `Loads the config, connects to Slack, resolves the bot identity and its
private channel, then lists the channels the bot can see. Nothing is dispatched.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Printf("chatbridge check v%s\n\n", version)

			cfg, closeLog, err := loadConfig()
			if err != nil {
				printFail("Config", err.Error())
				return err
			}
			defer closeLog()
			printPass("Config", resolveConfigPath())

			if err := config.RequireCredentials(cfg); err != nil {
				printFail("Credentials", err.Error())
				return err
			}
			printPass("Credentials", "present")

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			transport := newTransport(cfg)
			defer transport.Close()

			session, err := transport.Connect(ctx)
			if err != nil {
				printFail("Connect", err.Error())
				return err
			}
			printPass("Connect", fmt.Sprintf("team %s, session %s", session.Team, session.ID))

			id, err := bridge.ResolveIdentity(ctx, transport, cfg.Bridge.BotDisplayName)
			if err != nil {
				printFail("Bot identity", err.Error())
				return err
			}
			printPass("Bot identity", fmt.Sprintf("%s (%s)", id.DisplayName, id.ID))
			printPass("Private channel", id.PrivateChannelID)
			if session.BotUserID != "" && session.BotUserID != id.ID {
				printWarn("Token owner", fmt.Sprintf("token belongs to %s, not %s", session.BotUserID, id.ID))
			}

			channels, err := transport.Channels(ctx)
			if err != nil {
				printWarn("Channels", err.Error())
				return nil
			}
			var member []string
			for _, ch := range channels {
				if ch.IsMember && !ch.IsArchived {
					member = append(member, "#"+ch.Name)
				}
			}
			sort.Strings(member)
			printPass("Channels", fmt.Sprintf("%d visible, member of %d", len(channels), len(member)))
			for _, name := range member {
				fmt.Printf("         %s\n", name)
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", time.Minute, "overall time limit")
	return cmd
}

func printPass(check, detail string) {
	fmt.Printf("  [PASS] %-16s %s\n", check, detail)
}

func printFail(check, detail string) {
	fmt.Printf("  [FAIL] %-16s %s\n", check, detail)
}

func printWarn(check, detail string) {
	fmt.Printf("  [WARN] %-16s %s\n", check, detail)
}
