// Package handler provides the built-in command router the host binary hands
// to the bridge.
package handler

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"chatbridge/internal/domain"
)

// Command is a parsed chat command.
type Command struct {
	Name string   // lower-cased, without a leading "/" or "!"
	Args []string // whitespace-separated arguments
	Raw  string   // original text after trimming
}

// CommandFunc answers a command. The returned text is posted back through the
// message's reply channel; an empty string posts nothing.
type CommandFunc func(ctx context.Context, cmd Command, msg *domain.Message) (string, error)

type entry struct {
	help string
	fn   CommandFunc
}

// Router dispatches messages to registered commands by their first word.
type Router struct {
	mu       sync.RWMutex
	commands map[string]entry
	version  string
	started  time.Time
	logger   *slog.Logger
}

// RouterConfig configures a Router.
type RouterConfig struct {
	Version string
	Logger  *slog.Logger
}

// NewRouter returns a Router with help, ping, echo, whoami, uptime and
// version registered.
func NewRouter(cfg RouterConfig) *Router {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	r := &Router{
		commands: make(map[string]entry),
		version:  cfg.Version,
		started:  time.Now(),
		logger:   cfg.Logger,
	}
	r.Register("help", "list commands", r.help)
	r.Register("ping", "reply with pong", func(context.Context, Command, *domain.Message) (string, error) {
		return "pong", nil
	})
	r.Register("echo", "repeat the rest of the message", echo)
	r.Register("whoami", "show your user id and display name", whoami)
	r.Register("uptime", "show how long the bridge has been running", r.uptime)
	r.Register("version", "show version info", r.versionText)
	return r
}

// Register adds or replaces a command.
func (r *Router) Register(name, help string, fn CommandFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.commands[strings.ToLower(name)] = entry{help: help, fn: fn}
}

// ParseCommand splits text into a command name and arguments. It returns nil
// for blank text.
func ParseCommand(text string) *Command {
	text = strings.TrimSpace(text)
	parts := strings.Fields(text)
	if len(parts) == 0 {
		return nil
	}
	name := strings.TrimLeft(parts[0], "/!")
	return &Command{
		Name: strings.ToLower(name),
		Args: parts[1:],
		Raw:  text,
	}
}

// HandleMessage implements domain.Handler. Errors returned by a command or by
// the reply are passed back to the caller unchanged.
func (r *Router) HandleMessage(ctx context.Context, msg *domain.Message) error {
	cmd := ParseCommand(msg.Text)
	if cmd == nil {
		return nil
	}

	r.mu.RLock()
	e, ok := r.commands[cmd.Name]
	r.mu.RUnlock()

	var reply string
	if ok {
		r.logger.Debug("command", "name", cmd.Name, "sender", msg.Sender.ID, "channel", msg.ChannelID)
		out, err := e.fn(ctx, *cmd, msg)
		if err != nil {
			return fmt.Errorf("command %s: %w", cmd.Name, err)
		}
		reply = out
	} else {
		reply = fmt.Sprintf("Unknown command %q. Try `help`.", cmd.Name)
	}

	if reply == "" || msg.Reply == nil {
		return nil
	}
	return msg.Reply.Reply(ctx, reply)
}

func (r *Router) help(context.Context, Command, *domain.Message) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.commands))
	for name := range r.commands {
		names = append(names, name)
	}
	sort.Strings(names)

	var sb strings.Builder
	sb.WriteString("*Commands*\n")
	for _, name := range names {
		fmt.Fprintf(&sb, "• `%s` %s\n", name, r.commands[name].help)
	}
	return strings.TrimRight(sb.String(), "\n"), nil
}

func echo(_ context.Context, cmd Command, _ *domain.Message) (string, error) {
	if len(cmd.Args) == 0 {
		return "Nothing to echo.", nil
	}
	return strings.Join(cmd.Args, " "), nil
}

func whoami(_ context.Context, _ Command, msg *domain.Message) (string, error) {
	return fmt.Sprintf("You are %s (%s).", msg.Sender.DisplayName, msg.Sender.ID), nil
}

func (r *Router) uptime(context.Context, Command, *domain.Message) (string, error) {
	return fmt.Sprintf("Uptime: %s", time.Since(r.started).Round(time.Second)), nil
}

func (r *Router) versionText(context.Context, Command, *domain.Message) (string, error) {
	return fmt.Sprintf("chatbridge %s (%s/%s, %s)", r.version, runtime.GOOS, runtime.GOARCH, runtime.Version()), nil
}
