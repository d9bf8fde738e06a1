package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"chatbridge/internal/domain"
	"chatbridge/internal/metrics"
)

const defaultPollInterval = time.Second

// State is a stage of the ingestion loop.
type State int32

const (
	StateIdle State = iota
	StateConnecting
	StateResolving
	StateRunning
	StateStopped
	StateFatal
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateResolving:
		return "resolving"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	case StateFatal:
		return "fatal"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// LoopConfig holds all dependencies and tuning parameters for the ingestion loop.
type LoopConfig struct {
	Transport    domain.Transport
	Handler      domain.Handler
	BotName      string
	Mode         domain.AddressingMode
	Debug        bool
	StartupGrace time.Duration // negative disables suppression; zero means the default
	PollInterval time.Duration
	Recorder     FailureRecorder
	Logger       *slog.Logger

	// Now overrides the clock, for tests.
	Now func() time.Time
}

// Loop is the ingestion engine: connect, resolve identity, then pull events
// and dispatch the relevant ones one at a time, in arrival order.
type Loop struct {
	transport    domain.Transport
	dispatcher   *Dispatcher
	suppressor   Suppressor
	botName      string
	mode         domain.AddressingMode
	pollInterval time.Duration
	logger       *slog.Logger
	now          func() time.Time

	state    atomic.Int32
	mu       sync.RWMutex
	identity domain.BotIdentity
	session  domain.Session
}

// NewLoop creates a new ingestion loop with the given configuration.
func NewLoop(cfg LoopConfig) *Loop {
	switch {
	case cfg.StartupGrace == 0:
		cfg.StartupGrace = DefaultStartupGrace
	case cfg.StartupGrace < 0:
		cfg.StartupGrace = 0
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.Mode == "" {
		cfg.Mode = domain.AddressingDirectMessage
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Loop{
		transport: cfg.Transport,
		dispatcher: NewDispatcher(DispatcherConfig{
			Transport: cfg.Transport,
			Handler:   cfg.Handler,
			BotName:   cfg.BotName,
			Debug:     cfg.Debug,
			Recorder:  cfg.Recorder,
			Logger:    cfg.Logger,
			Now:       cfg.Now,
		}),
		suppressor:   Suppressor{Grace: cfg.StartupGrace},
		botName:      cfg.BotName,
		mode:         cfg.Mode,
		pollInterval: cfg.PollInterval,
		logger:       cfg.Logger,
		now:          cfg.Now,
	}
}

// State returns the current loop state. Safe to call from any goroutine.
func (l *Loop) State() State {
	return State(l.state.Load())
}

// Identity returns the resolved bot identity; zero until Resolving succeeds.
func (l *Loop) Identity() domain.BotIdentity {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.identity
}

// Session returns the transport session; zero until Connecting succeeds.
func (l *Loop) Session() domain.Session {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.session
}

func (l *Loop) setState(s State) {
	prev := State(l.state.Swap(int32(s)))
	metrics.LoopState.Set(int64(s))
	if prev != s {
		l.logger.Debug("loop state changed", "from", prev.String(), "to", s.String())
	}
}

// Run drives the loop until ctx is cancelled (returns nil) or an
// unrecoverable error occurs. Startup failures are *domain.FatalStartupError;
// a failed poll is returned as *domain.TransportError.
func (l *Loop) Run(ctx context.Context) error {
	l.setState(StateConnecting)
	session, err := l.transport.Connect(ctx)
	if err != nil {
		l.setState(StateFatal)
		if !errors.Is(err, domain.ErrConnectionFailed) {
			err = fmt.Errorf("%w: %w", domain.ErrConnectionFailed, err)
		}
		return &domain.FatalStartupError{Stage: "connect", Err: err}
	}
	l.logger.Info("transport connected", "session", session.ID, "team", session.Team)

	l.setState(StateResolving)
	identity, err := ResolveIdentity(ctx, l.transport, l.botName)
	if err != nil {
		l.setState(StateFatal)
		return &domain.FatalStartupError{Stage: "resolve", Err: err}
	}
	if session.BotUserID != "" && session.BotUserID != identity.ID {
		l.logger.Warn("resolved bot id differs from authenticated user",
			"resolved", identity.ID, "authenticated", session.BotUserID)
	}

	l.mu.Lock()
	l.session = session
	l.identity = identity
	l.mu.Unlock()

	connectTime := l.now()
	l.logger.Info("bot identity resolved",
		"bot", identity.DisplayName,
		"bot_id", identity.ID,
		"private_channel", identity.PrivateChannelID,
		"mode", string(l.mode),
	)

	l.setState(StateRunning)
	for {
		if ctx.Err() != nil {
			l.setState(StateStopped)
			l.logger.Info("ingestion loop stopping")
			return nil
		}

		batch, err := l.transport.PollEvents(ctx, l.pollInterval)
		if err != nil {
			if ctx.Err() != nil {
				l.setState(StateStopped)
				l.logger.Info("ingestion loop stopping")
				return nil
			}
			l.setState(StateFatal)
			var te *domain.TransportError
			if !errors.As(err, &te) {
				err = &domain.TransportError{Op: "poll", Err: err}
			}
			return err
		}

		for _, ev := range batch {
			l.process(ctx, ev, identity, connectTime)
		}
	}
}

// process routes one event through filter, suppressor and dispatcher.
func (l *Loop) process(ctx context.Context, ev domain.RawEvent, identity domain.BotIdentity, connectTime time.Time) {
	metrics.EventsReceived.Inc()

	c, ok := Classify(ev, identity, l.mode)
	if !ok {
		metrics.EventsFiltered.Inc()
		return
	}

	if l.suppressor.ShouldSuppress(l.now(), connectTime) {
		metrics.EventsSuppressed.Inc()
		l.logger.Info("skipping event inside startup grace window",
			"channel", ev.ChannelID, "ts", ev.Timestamp)
		return
	}

	l.dispatcher.Dispatch(ctx, ev, c.Text, identity)
}
