package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chatbridge/internal/audit"
	"chatbridge/internal/bridge"
	"chatbridge/internal/channel"
	"chatbridge/internal/config"
	"chatbridge/internal/domain"
	"chatbridge/internal/handler"
	"chatbridge/internal/logger"
	"chatbridge/internal/metrics"

	"github.com/spf13/cobra"
)

var (
	version    = "0.1.0"
	log        *slog.Logger
	configPath string // overridable via --config flag
)

func main() {
	log = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	root := &cobra.Command{
		Use:           "chatbridge",
		Short:         "chatbridge: Slack event bridge for chat command handlers",
		Long:          "chatbridge connects to Slack, filters events addressed to the bot and dispatches them to a command handler.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", configFlagUsage())

	root.AddCommand(runCmd())
	root.AddCommand(checkCmd())
	root.AddCommand(initCmd())
	root.AddCommand(configCmd())
	root.AddCommand(auditCmd())
	root.AddCommand(versionCmd())

	if err := root.Execute(); err != nil {
		logFailure(log, err)
		os.Exit(1)
	}
}

func configFlagUsage() string {
	return fmt.Sprintf("path to a .json or .yaml config file (default: %s)", config.DefaultConfigPath())
}

// logFailure reports the error that ends the process. Startup failures carry
// the stage that failed.
func logFailure(l *slog.Logger, err error) {
	var fatal *domain.FatalStartupError
	if errors.As(err, &fatal) {
		l.Error("startup failed", "stage", fatal.Stage, "err", fatal.Err)
		return
	}
	l.Error("chatbridge failed", "err", err)
}

// resolveConfigPath returns the config path from --config flag or default.
func resolveConfigPath() string {
	if configPath != "" {
		return configPath
	}
	return config.DefaultConfigPath()
}

// loadConfig loads the config file and swaps the bootstrap logger for one
// built from the general section. The returned func closes the log file.
func loadConfig() (*config.Config, func() error, error) {
	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	l, closeLog, err := logger.New(logger.Options{
		Level:  cfg.General.LogLevel,
		Format: cfg.General.LogFormat,
		File:   cfg.General.LogFile,
	})
	if err != nil {
		return nil, nil, err
	}
	log = l
	return cfg, closeLog, nil
}

func newTransport(cfg *config.Config) *channel.Slack {
	return channel.NewSlack(channel.SlackConfig{
		BotToken:       cfg.Slack.BotToken,
		AppToken:       cfg.Slack.AppToken,
		APIURL:         cfg.Slack.APIURL,
		ConnectTimeout: time.Duration(cfg.Slack.ConnectTimeoutSeconds) * time.Second,
		QueueSize:      cfg.Bridge.QueueSize,
		Debug:          cfg.Slack.SocketDebug,
		Logger:         log,
	})
}

func initCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			if _, err := os.Stat(cfgPath); err == nil && !force {
				return fmt.Errorf("config already exists at %s (use --force to overwrite)", cfgPath)
			}
			if err := config.Save(cfgPath, config.Defaults()); err != nil {
				return err
			}
			log.Info("initialized", "config", cfgPath)
			fmt.Println("Set SLACK_BOT_TOKEN and SLACK_APP_TOKEN, then run 'chatbridge check'.")
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing config file")
	return cmd
}

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Start the bridge",
		Long:  "Connects to Slack and dispatches messages addressed to the bot until interrupted.",
		RunE:  runBridge,
	}
}

func runBridge(cmd *cobra.Command, args []string) error {
	cfg, closeLog, err := loadConfig()
	if err != nil {
		return err
	}
	defer closeLog()

	if err := config.RequireCredentials(cfg); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var recorder bridge.FailureRecorder
	if cfg.Audit.Enabled {
		store, err := audit.Open(cfg.Audit.DBPath, log)
		if err != nil {
			return fmt.Errorf("audit store: %w", err)
		}
		defer store.Close()
		recorder = store
		if cfg.Audit.RetentionDays > 0 {
			go pruneLoop(ctx, store, time.Duration(cfg.Audit.RetentionDays)*24*time.Hour)
		}
	}

	if cfg.Metrics.Enabled {
		srv := startMetricsServer(cfg.Metrics.Addr)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()
	}

	transport := newTransport(cfg)
	defer transport.Close()

	// Zero in the config turns suppression off; the loop reads zero as "default".
	grace := cfg.Bridge.StartupGrace()
	if grace == 0 {
		grace = -1
	}

	loop := bridge.NewLoop(bridge.LoopConfig{
		Transport:    transport,
		Handler:      handler.NewRouter(handler.RouterConfig{Version: version, Logger: log}),
		BotName:      cfg.Bridge.BotDisplayName,
		Mode:         cfg.Bridge.Mode(),
		Debug:        cfg.Bridge.DebugReplyOnFailure,
		StartupGrace: grace,
		PollInterval: cfg.Bridge.PollInterval(),
		Recorder:     recorder,
		Logger:       log,
	})

	log.Info("bridge starting", "bot", cfg.Bridge.BotDisplayName, "mode", cfg.Bridge.AddressingMode)
	if err := loop.Run(ctx); err != nil {
		return err
	}
	log.Info("bridge stopped")
	return nil
}

func startMetricsServer(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Collector.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Info("metrics endpoint listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server error", "err", err)
		}
	}()
	return srv
}

func pruneLoop(ctx context.Context, store *audit.Store, maxAge time.Duration) {
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()
	for {
		if _, err := store.Prune(ctx, maxAge); err != nil && ctx.Err() == nil {
			log.Warn("audit prune failed", "err", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("chatbridge %s\n", version)
		},
	}
}
