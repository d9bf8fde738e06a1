package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"chatbridge/internal/audit"
	"chatbridge/internal/config"

	"github.com/spf13/cobra"
)

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect configuration",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective config with secrets masked",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(resolveConfigPath())
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			data, _ := json.MarshalIndent(config.Sanitize(cfg), "", "  ")
			fmt.Println(string(data))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show config file path",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(resolveConfigPath())
		},
	})

	return cmd
}

func auditCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Inspect recorded handler failures",
	}

	var (
		limit     int
		channelID string
		traces    bool
	)
	list := &cobra.Command{
		Use:   "list",
		Short: "List recent handler failures, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(resolveConfigPath())
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			store, err := audit.Open(cfg.Audit.DBPath, log)
			if err != nil {
				return err
			}
			defer store.Close()

			failures, err := store.Recent(context.Background(), channelID, limit)
			if err != nil {
				return err
			}
			if len(failures) == 0 {
				fmt.Println("No handler failures recorded.")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "TIME\tCHANNEL\tMESSAGE ID\tKIND\tERROR")
			for _, f := range failures {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
					f.CreatedAt.Format("2006-01-02 15:04:05"), f.ChannelID, f.MessageID, f.Kind, firstLine(f.Message))
			}
			w.Flush()

			if traces {
				for _, f := range failures {
					fmt.Printf("\n--- %s ---\n%s\n", f.MessageID, f.Trace)
				}
			}
			return nil
		},
	}
	list.Flags().IntVarP(&limit, "limit", "n", 20, "maximum number of failures to show")
	list.Flags().StringVar(&channelID, "channel", "", "only show failures from this channel id")
	list.Flags().BoolVar(&traces, "traces", false, "print the full trace of each failure")
	cmd.AddCommand(list)

	return cmd
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
