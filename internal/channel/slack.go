package channel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"chatbridge/internal/bus"
	"chatbridge/internal/domain"

	"github.com/google/uuid"
	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"
)

const (
	slackMaxMsgLen        = 4000
	slackPageSize         = 200
	defaultConnectTimeout = 30 * time.Second
	closeTimeout          = 5 * time.Second
)

// Slack implements domain.Transport on top of Socket Mode (events) and the
// Web API (directory listings and posting).
type Slack struct {
	botToken       string
	appToken       string
	connectTimeout time.Duration
	debug          bool
	client         *slack.Client
	queue          *bus.Queue
	logger         *slog.Logger

	mu        sync.RWMutex
	users     map[string]domain.DirectoryUser // nil until first use
	socketErr error
	cancel    context.CancelFunc
	done      chan struct{}
}

// SlackConfig configures the Slack transport.
type SlackConfig struct {
	BotToken       string
	AppToken       string
	APIURL         string // optional override of https://slack.com/api/
	ConnectTimeout time.Duration
	QueueSize      int
	Debug          bool // verbose socket-mode logging
	Logger         *slog.Logger
}

// NewSlack creates a Slack transport. No network calls are made until Connect
// or a directory method is called.
func NewSlack(cfg SlackConfig) *Slack {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = defaultConnectTimeout
	}
	opts := []slack.Option{slack.OptionAppLevelToken(cfg.AppToken)}
	if cfg.APIURL != "" {
		opts = append(opts, slack.OptionAPIURL(cfg.APIURL))
	}
	return &Slack{
		botToken:       cfg.BotToken,
		appToken:       cfg.AppToken,
		connectTimeout: cfg.ConnectTimeout,
		debug:          cfg.Debug,
		client:         slack.New(cfg.BotToken, opts...),
		queue:          bus.New(cfg.QueueSize, cfg.Logger),
		logger:         cfg.Logger,
	}
}

// Connect authenticates, opens the Socket Mode connection and waits for the
// handshake. Every failure wraps domain.ErrConnectionFailed.
func (s *Slack) Connect(ctx context.Context) (domain.Session, error) {
	if s.botToken == "" || s.appToken == "" {
		return domain.Session{}, fmt.Errorf("%w: slack bot and app tokens are required", domain.ErrConnectionFailed)
	}

	auth, err := s.client.AuthTestContext(ctx)
	if err != nil {
		return domain.Session{}, fmt.Errorf("%w: slack auth: %w", domain.ErrConnectionFailed, err)
	}

	socket := socketmode.New(s.client, socketmode.OptionDebug(s.debug))
	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	connected := make(chan error, 1)

	s.mu.Lock()
	s.cancel = cancel
	s.done = done
	s.socketErr = nil
	s.mu.Unlock()

	go s.readEvents(runCtx, socket, connected)
	go func() {
		err := socket.RunContext(runCtx)
		s.mu.Lock()
		s.socketErr = err
		s.mu.Unlock()
		close(done)
		s.queue.Close()
	}()

	timer := time.NewTimer(s.connectTimeout)
	defer timer.Stop()
	select {
	case err := <-connected:
		if err != nil {
			cancel()
			return domain.Session{}, fmt.Errorf("%w: %w", domain.ErrConnectionFailed, err)
		}
	case <-done:
		return domain.Session{}, fmt.Errorf("%w: socket mode ended: %v", domain.ErrConnectionFailed, s.lastSocketErr())
	case <-timer.C:
		cancel()
		return domain.Session{}, fmt.Errorf("%w: no socket mode handshake after %s", domain.ErrConnectionFailed, s.connectTimeout)
	case <-ctx.Done():
		cancel()
		return domain.Session{}, fmt.Errorf("%w: %w", domain.ErrConnectionFailed, ctx.Err())
	}

	s.logger.Info("slack bot connected", "user", auth.User, "user_id", auth.UserID, "team", auth.Team)
	return domain.Session{
		ID:          uuid.NewString(),
		ConnectedAt: time.Now(),
		BotUserID:   auth.UserID,
		Team:        auth.Team,
	}, nil
}

// readEvents acknowledges every envelope and forwards message events to the
// queue. It runs on its own goroutine and never touches the directory cache.
func (s *Slack) readEvents(ctx context.Context, socket *socketmode.Client, connected chan<- error) {
	var once sync.Once
	signal := func(err error) {
		once.Do(func() { connected <- err })
	}

	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-socket.Events:
			if !ok {
				return
			}
			switch evt.Type {
			case socketmode.EventTypeConnecting:
				s.logger.Debug("slack socket mode connecting")
			case socketmode.EventTypeConnected:
				signal(nil)
			case socketmode.EventTypeInvalidAuth:
				signal(errors.New("slack socket mode: invalid auth"))
			case socketmode.EventTypeConnectionError:
				s.logger.Warn("slack socket mode connection error", "data", evt.Data)

			case socketmode.EventTypeEventsAPI:
				if evt.Request != nil {
					socket.Ack(*evt.Request)
				}
				apiEvent, ok := evt.Data.(slackevents.EventsAPIEvent)
				if !ok {
					continue
				}
				if raw, ok := rawEventFromEventsAPI(apiEvent); ok {
					s.queue.Publish(raw)
				}

			default:
				// Acknowledge unknown envelopes to prevent Socket Mode disconnection.
				if evt.Request != nil {
					socket.Ack(*evt.Request)
				}
			}
		}
	}
}

// rawEventFromEventsAPI flattens a callback event into a RawEvent. Only
// message-shaped events are forwarded; everything else is dropped here.
func rawEventFromEventsAPI(event slackevents.EventsAPIEvent) (domain.RawEvent, bool) {
	if event.Type != slackevents.CallbackEvent {
		return domain.RawEvent{}, false
	}
	switch ev := event.InnerEvent.Data.(type) {
	case *slackevents.MessageEvent:
		subtype := ev.SubType
		if subtype == "" && ev.BotID != "" {
			subtype = "bot_message"
		}
		return domain.RawEvent{
			Type:      domain.EventTypeMessage,
			ChannelID: ev.Channel,
			SenderID:  ev.User,
			Text:      ev.Text,
			HasText:   ev.Text != "",
			Timestamp: ev.TimeStamp,
			Subtype:   subtype,
		}, true
	case *slackevents.AppMentionEvent:
		// message.channels already delivers the same text as a message event.
		return domain.RawEvent{
			Type:      string(slackevents.AppMention),
			ChannelID: ev.Channel,
			SenderID:  ev.User,
			Text:      ev.Text,
			HasText:   ev.Text != "",
			Timestamp: ev.TimeStamp,
		}, true
	}
	return domain.RawEvent{}, false
}

// PollEvents returns the next batch of queued events, or an empty batch once
// wait elapses. After the socket has ended and the queue is drained it
// returns a *domain.TransportError.
func (s *Slack) PollEvents(ctx context.Context, wait time.Duration) ([]domain.RawEvent, error) {
	batch, err := s.queue.Poll(ctx, wait)
	if errors.Is(err, bus.ErrClosed) {
		cause := s.lastSocketErr()
		if cause == nil {
			cause = errors.New("socket mode connection closed")
		}
		return nil, &domain.TransportError{Op: "poll", Err: cause}
	}
	return batch, err
}

func (s *Slack) lastSocketErr() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.socketErr
}

// PostMessage posts text to channelID under senderName, splitting it at line
// boundaries when it exceeds Slack's message size.
func (s *Slack) PostMessage(ctx context.Context, channelID, senderName, text string) error {
	for _, chunk := range splitSlackMessage(text, slackMaxMsgLen) {
		opts := []slack.MsgOption{slack.MsgOptionText(chunk, false)}
		if senderName != "" {
			opts = append(opts, slack.MsgOptionUsername(senderName))
		}
		if _, _, err := s.client.PostMessageContext(ctx, channelID, opts...); err != nil {
			s.logger.Error("slack send failed", "channel", channelID, "err", err)
			return &domain.TransportError{Op: "chat.postMessage", Err: err}
		}
	}
	return nil
}

// Close stops the socket and waits briefly for it to wind down.
func (s *Slack) Close() error {
	s.mu.RLock()
	cancel, done := s.cancel, s.done
	s.mu.RUnlock()
	if cancel == nil {
		return nil
	}
	cancel()
	select {
	case <-done:
	case <-time.After(closeTimeout):
		return errors.New("slack socket did not stop in time")
	}
	return nil
}

// --- Directory ---

// Users returns the cached user directory, loading it on first use.
func (s *Slack) Users(ctx context.Context) (map[string]domain.DirectoryUser, error) {
	if err := s.ensureUsers(ctx); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]domain.DirectoryUser, len(s.users))
	for id, u := range s.users {
		out[id] = u
	}
	return out, nil
}

// User looks id up in the cache. A miss does not refresh; call Refresh.
func (s *Slack) User(ctx context.Context, id string) (domain.DirectoryUser, bool, error) {
	if err := s.ensureUsers(ctx); err != nil {
		return domain.DirectoryUser{}, false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	return u, ok, nil
}

// Refresh replaces the user cache with a fresh listing.
func (s *Slack) Refresh(ctx context.Context) error {
	members, err := s.client.GetUsersContext(ctx, slack.GetUsersOptionLimit(slackPageSize))
	if err != nil {
		return &domain.TransportError{Op: "users.list", Err: err}
	}
	users := make(map[string]domain.DirectoryUser, len(members))
	for _, m := range members {
		display := m.Profile.DisplayName
		if display == "" {
			display = m.RealName
		}
		users[m.ID] = domain.DirectoryUser{
			ID:          m.ID,
			Name:        m.Name,
			DisplayName: display,
			IsBot:       m.IsBot,
		}
		s.logger.Debug("slack user", "name", m.Name, "id", m.ID)
	}

	s.mu.Lock()
	s.users = users
	s.mu.Unlock()
	s.logger.Info("slack directory loaded", "users", len(users))
	return nil
}

func (s *Slack) ensureUsers(ctx context.Context) error {
	s.mu.RLock()
	loaded := s.users != nil
	s.mu.RUnlock()
	if loaded {
		return nil
	}
	return s.Refresh(ctx)
}

// Channels lists public channels visible to the bot.
func (s *Slack) Channels(ctx context.Context) (map[string]domain.ChannelInfo, error) {
	channels, err := s.listConversations(ctx, "public_channel")
	if err != nil {
		return nil, err
	}
	out := make(map[string]domain.ChannelInfo, len(channels))
	for _, c := range channels {
		out[c.ID] = domain.ChannelInfo{
			ID:         c.ID,
			Name:       c.Name,
			IsMember:   c.IsMember,
			IsArchived: c.IsArchived,
		}
	}
	return out, nil
}

// DirectChannels lists direct-message conversations and their owners.
func (s *Slack) DirectChannels(ctx context.Context) (map[string]domain.DirectChannel, error) {
	channels, err := s.listConversations(ctx, "im")
	if err != nil {
		return nil, err
	}
	out := make(map[string]domain.DirectChannel, len(channels))
	for _, c := range channels {
		out[c.ID] = domain.DirectChannel{ID: c.ID, OwnerUserID: c.User}
	}
	return out, nil
}

func (s *Slack) listConversations(ctx context.Context, kind string) ([]slack.Channel, error) {
	var all []slack.Channel
	params := &slack.GetConversationsParameters{
		Types: []string{kind},
		Limit: slackPageSize,
	}
	for {
		page, next, err := s.client.GetConversationsContext(ctx, params)
		if err != nil {
			return nil, &domain.TransportError{Op: "conversations.list", Err: err}
		}
		all = append(all, page...)
		if next == "" {
			return all, nil
		}
		params.Cursor = next
	}
}

// splitSlackMessage cuts msg into chunks of at most maxLen bytes, preferring
// line breaks and never splitting a UTF-8 sequence.
func splitSlackMessage(msg string, maxLen int) []string {
	if len(msg) <= maxLen {
		return []string{msg}
	}

	var chunks []string
	for len(msg) > 0 {
		if len(msg) <= maxLen {
			chunks = append(chunks, msg)
			break
		}
		cut := maxLen
		if idx := strings.LastIndex(msg[:maxLen], "\n"); idx > maxLen/2 {
			cut = idx + 1
		} else {
			for cut > 0 && !utf8.RuneStart(msg[cut]) {
				cut--
			}
			if cut == 0 {
				cut = maxLen
			}
		}
		chunks = append(chunks, msg[:cut])
		msg = msg[cut:]
	}
	return chunks
}
