package bridge

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"chatbridge/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type post struct {
	ChannelID string
	Sender    string
	Text      string
}

// fakeTransport serves scripted batches and records posts.
type fakeTransport struct {
	mu sync.Mutex

	connectErr error
	users      map[string]domain.DirectoryUser
	lateUsers  map[string]domain.DirectoryUser // appear only after Refresh
	ims        map[string]domain.DirectChannel
	usersErr   error
	postErr    error
	pollErr    error

	batches   [][]domain.RawEvent
	onDrained func() // called once all batches are served

	posts     []post
	refreshes int
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		users: map[string]domain.DirectoryUser{
			"U1":     {ID: "U1", Name: "bot", IsBot: true},
			"UALICE": {ID: "UALICE", Name: "alice"},
		},
		ims: map[string]domain.DirectChannel{
			"D0":   {ID: "D0", OwnerUserID: "UALICE"},
			"DBOT": {ID: "DBOT", OwnerUserID: "U1"},
		},
	}
}

func (f *fakeTransport) Connect(ctx context.Context) (domain.Session, error) {
	if f.connectErr != nil {
		return domain.Session{}, f.connectErr
	}
	return domain.Session{ID: "s-1", ConnectedAt: time.Now(), BotUserID: "U1"}, nil
}

func (f *fakeTransport) PollEvents(ctx context.Context, wait time.Duration) ([]domain.RawEvent, error) {
	f.mu.Lock()
	if len(f.batches) > 0 {
		b := f.batches[0]
		f.batches = f.batches[1:]
		f.mu.Unlock()
		return b, nil
	}
	pollErr, drained := f.pollErr, f.onDrained
	f.onDrained = nil
	f.mu.Unlock()

	if pollErr != nil {
		return nil, pollErr
	}
	if drained != nil {
		drained()
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(wait):
		return nil, nil
	}
}

func (f *fakeTransport) PostMessage(ctx context.Context, channelID, senderName, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.postErr != nil {
		return f.postErr
	}
	f.posts = append(f.posts, post{ChannelID: channelID, Sender: senderName, Text: text})
	return nil
}

func (f *fakeTransport) Users(ctx context.Context) (map[string]domain.DirectoryUser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.usersErr != nil {
		return nil, f.usersErr
	}
	out := make(map[string]domain.DirectoryUser, len(f.users))
	for k, v := range f.users {
		out[k] = v
	}
	return out, nil
}

func (f *fakeTransport) User(ctx context.Context, id string) (domain.DirectoryUser, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	return u, ok, nil
}

func (f *fakeTransport) Refresh(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshes++
	for k, v := range f.lateUsers {
		f.users[k] = v
	}
	return nil
}

func (f *fakeTransport) Channels(ctx context.Context) (map[string]domain.ChannelInfo, error) {
	return map[string]domain.ChannelInfo{}, nil
}

func (f *fakeTransport) DirectChannels(ctx context.Context) (map[string]domain.DirectChannel, error) {
	return f.ims, nil
}

func (f *fakeTransport) Close() error { return nil }

func (f *fakeTransport) sentPosts() []post {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]post(nil), f.posts...)
}

// recordingHandler captures messages and fails on demand.
type recordingHandler struct {
	mu       sync.Mutex
	messages []domain.Message
	failOn   map[string]error
	panicOn  map[string]any
}

func (h *recordingHandler) HandleMessage(ctx context.Context, msg *domain.Message) error {
	h.mu.Lock()
	h.messages = append(h.messages, *msg)
	err := h.failOn[msg.Text]
	p, doPanic := h.panicOn[msg.Text]
	h.mu.Unlock()
	if doPanic {
		panic(p)
	}
	return err
}

func (h *recordingHandler) received() []domain.Message {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]domain.Message(nil), h.messages...)
}

type recordedFailure struct {
	ChannelID string
	Err       *domain.HandlerError
}

type fakeRecorder struct {
	failures []recordedFailure
	err      error
}

func (r *fakeRecorder) RecordFailure(ctx context.Context, channelID string, herr *domain.HandlerError) error {
	r.failures = append(r.failures, recordedFailure{ChannelID: channelID, Err: herr})
	return r.err
}

// valueError mimics an application-level error type.
type valueError struct{ msg string }

func (e *valueError) Error() string { return e.msg }

var errBoom = &valueError{msg: "boom"}
