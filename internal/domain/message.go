package domain

import "context"

// Sender identifies the author of a dispatched message.
type Sender struct {
	ID          string
	DisplayName string
}

// ReplyChannel posts back into the conversation a message came from.
type ReplyChannel interface {
	Reply(ctx context.Context, text string) error
}

// Message is the normalized unit of work handed to a Handler. It is owned by a
// single handler call and must not be retained after the call returns.
type Message struct {
	ID        string
	Text      string
	Sender    Sender
	ChannelID string
	Timestamp string
	Reply     ReplyChannel
}

// MessageID derives the message id from the channel, sender and timestamp.
// Two events sharing all three collide; the platform timestamp is assumed to be
// fine-grained enough that this does not happen in practice.
func MessageID(channelID, senderID, timestamp string) string {
	return channelID + senderID + timestamp
}

// Handler consumes dispatched messages.
type Handler interface {
	HandleMessage(ctx context.Context, msg *Message) error
}

// HandlerFunc adapts a plain function to Handler.
type HandlerFunc func(ctx context.Context, msg *Message) error

func (f HandlerFunc) HandleMessage(ctx context.Context, msg *Message) error {
	return f(ctx, msg)
}
