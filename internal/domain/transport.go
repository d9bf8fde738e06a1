package domain

import (
	"context"
	"time"
)

// Session describes an established transport connection.
type Session struct {
	ID          string
	ConnectedAt time.Time
	BotUserID   string // as reported by the platform's auth check, may be empty
	Team        string
}

// DirectoryUser is one entry of the platform user directory.
type DirectoryUser struct {
	ID          string
	Name        string // handle, matched against the configured bot name
	DisplayName string
	IsBot       bool
}

// DirectChannel is a private conversation and the user it belongs to.
type DirectChannel struct {
	ID          string
	OwnerUserID string
}

// ChannelInfo is a shared channel visible to the bot.
type ChannelInfo struct {
	ID         string
	Name       string
	IsMember   bool
	IsArchived bool
}

// Directory exposes the platform's user and channel listings.
//
// Users and User are served from a cache owned by the implementation; the cache
// is populated on first use and replaced only by Refresh.
type Directory interface {
	Users(ctx context.Context) (map[string]DirectoryUser, error)
	User(ctx context.Context, id string) (DirectoryUser, bool, error)
	Refresh(ctx context.Context) error
	Channels(ctx context.Context) (map[string]ChannelInfo, error)
	DirectChannels(ctx context.Context) (map[string]DirectChannel, error)
}

// Transport is the platform connection the ingestion loop drives.
type Transport interface {
	Directory

	// Connect establishes the session. Errors wrap ErrConnectionFailed.
	Connect(ctx context.Context) (Session, error)

	// PollEvents blocks until at least one event is available or wait elapses,
	// and returns the batch in arrival order. An empty batch is not an error.
	PollEvents(ctx context.Context, wait time.Duration) ([]RawEvent, error)

	// PostMessage posts text to channelID under senderName. Failures are
	// returned as *TransportError; there is no retry.
	PostMessage(ctx context.Context, channelID, senderName, text string) error

	Close() error
}
