package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"time"

	"chatbridge/internal/domain"
	"chatbridge/internal/metrics"
)

// unknownSenderRetry is how long a sender missing after a refresh is served
// from the raw id before another users.list refresh is attempted.
const unknownSenderRetry = 10 * time.Minute

// FailureRecorder persists contained handler failures for operators.
type FailureRecorder interface {
	RecordFailure(ctx context.Context, channelID string, herr *domain.HandlerError) error
}

// DispatcherConfig holds the dependencies of a Dispatcher.
type DispatcherConfig struct {
	Transport domain.Transport
	Handler   domain.Handler
	BotName   string
	Debug     bool            // echo failures into the originating conversation
	Recorder  FailureRecorder // optional
	Logger    *slog.Logger
	Now       func() time.Time
}

// Dispatcher turns a relevant event into a Message and runs the handler on it,
// containing any failure.
type Dispatcher struct {
	transport domain.Transport
	handler   domain.Handler
	botName   string
	debug     bool
	recorder  FailureRecorder
	logger    *slog.Logger
	now       func() time.Time

	// misses maps sender ids still unknown after a refresh to when that
	// refresh happened. Only the loop goroutine touches it.
	misses map[string]time.Time
}

func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Dispatcher{
		transport: cfg.Transport,
		handler:   cfg.Handler,
		botName:   cfg.BotName,
		debug:     cfg.Debug,
		recorder:  cfg.Recorder,
		logger:    cfg.Logger,
		now:       cfg.Now,
		misses:    make(map[string]time.Time),
	}
}

// Dispatch calls the handler exactly once for ev. A failure is logged,
// recorded and returned; it never escapes as a panic. With debug enabled the
// trace is additionally posted back to ev's channel, at most once.
func (d *Dispatcher) Dispatch(ctx context.Context, ev domain.RawEvent, text string, id domain.BotIdentity) *domain.HandlerError {
	msg := d.buildMessage(ctx, ev, text, id)

	start := time.Now()
	herr := d.invoke(ctx, msg)
	metrics.HandlerLatency.Observe(time.Since(start).Seconds())
	metrics.Dispatched.Inc()

	if herr == nil {
		d.logger.Debug("message handled", "message_id", msg.ID, "channel", msg.ChannelID)
		return nil
	}

	metrics.HandlerFailures.Inc()
	d.logger.Error("handler failed",
		"message_id", msg.ID,
		"channel", msg.ChannelID,
		"sender", msg.Sender.ID,
		"kind", herr.Kind,
		"err", herr.Message,
		"trace", herr.Trace,
	)

	if d.recorder != nil {
		if err := d.recorder.RecordFailure(ctx, msg.ChannelID, herr); err != nil {
			d.logger.Warn("failed to record handler failure", "message_id", msg.ID, "err", err)
		}
	}

	if d.debug {
		if err := msg.Reply.Reply(ctx, FormatDiagnostic(herr)); err != nil {
			metrics.ReplyFailures.Inc()
			d.logger.Error("diagnostic reply failed", "message_id", msg.ID, "channel", msg.ChannelID, "err", err)
		}
	}
	return herr
}

func (d *Dispatcher) buildMessage(ctx context.Context, ev domain.RawEvent, text string, id domain.BotIdentity) *domain.Message {
	botName := id.DisplayName
	if botName == "" {
		botName = d.botName
	}
	return &domain.Message{
		ID:        domain.MessageID(ev.ChannelID, ev.SenderID, ev.Timestamp),
		Text:      text,
		Sender:    d.lookupSender(ctx, ev.SenderID),
		ChannelID: ev.ChannelID,
		Timestamp: ev.Timestamp,
		Reply:     NewReplyChannel(d.transport, ev.ChannelID, botName),
	}
}

// lookupSender resolves the display name, forcing one directory refresh when
// the sender is not cached yet. Falls back to the raw id. A sender still
// missing after a refresh is not refreshed for again until
// unknownSenderRetry has passed.
func (d *Dispatcher) lookupSender(ctx context.Context, senderID string) domain.Sender {
	sender := domain.Sender{ID: senderID, DisplayName: senderID}

	u, ok, err := d.transport.User(ctx, senderID)
	if err == nil && !ok {
		if at, missed := d.misses[senderID]; missed && d.now().Sub(at) < unknownSenderRetry {
			return sender
		}
		if err = d.transport.Refresh(ctx); err == nil {
			u, ok, err = d.transport.User(ctx, senderID)
		}
	}
	switch {
	case err != nil:
		d.logger.Warn("sender lookup failed", "sender", senderID, "err", err)
	case !ok:
		d.misses[senderID] = d.now()
		d.logger.Warn("sender not in directory", "sender", senderID)
	default:
		delete(d.misses, senderID)
		if u.Name != "" {
			sender.DisplayName = u.Name
		}
	}
	return sender
}

func (d *Dispatcher) invoke(ctx context.Context, msg *domain.Message) (herr *domain.HandlerError) {
	defer func() {
		if r := recover(); r != nil {
			herr = &domain.HandlerError{
				MessageID: msg.ID,
				Kind:      "panic",
				Message:   fmt.Sprint(r),
				Trace:     fmt.Sprintf("panic: %v\n\n%s", r, debug.Stack()),
			}
		}
	}()
	if err := d.handler.HandleMessage(ctx, msg); err != nil {
		return newHandlerError(msg.ID, err)
	}
	return nil
}

func newHandlerError(messageID string, err error) *domain.HandlerError {
	return &domain.HandlerError{
		MessageID: messageID,
		Kind:      fmt.Sprintf("%T", err),
		Message:   err.Error(),
		Trace:     errorTrace(err),
	}
}

// errorTrace lists every layer of a wrapped error, outermost first.
func errorTrace(err error) string {
	var sb strings.Builder
	depth := 0
	for e := err; e != nil; e = errors.Unwrap(e) {
		if depth > 0 {
			sb.WriteString("\n")
			sb.WriteString(strings.Repeat("  ", depth))
			sb.WriteString("caused by: ")
		}
		fmt.Fprintf(&sb, "%T: %v", e, e)
		depth++
	}
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		for _, e := range joined.Unwrap() {
			sb.WriteString("\n  - ")
			sb.WriteString(errorTrace(e))
		}
	}
	return sb.String()
}
