package bridge

import (
	"context"
	"errors"

	"chatbridge/internal/domain"
)

// Poster is the write half of a transport.
type Poster interface {
	PostMessage(ctx context.Context, channelID, senderName, text string) error
}

// replyChannel posts into one conversation under the bot's name.
type replyChannel struct {
	poster    Poster
	channelID string
	botName   string
}

// NewReplyChannel binds a ReplyChannel to channelID.
func NewReplyChannel(p Poster, channelID, botName string) domain.ReplyChannel {
	return &replyChannel{poster: p, channelID: channelID, botName: botName}
}

// Reply posts text once. No retry, no buffering.
func (r *replyChannel) Reply(ctx context.Context, text string) error {
	err := r.poster.PostMessage(ctx, r.channelID, r.botName, text)
	if err == nil {
		return nil
	}
	var te *domain.TransportError
	if errors.As(err, &te) {
		return err
	}
	return &domain.TransportError{Op: "chat.postMessage", Err: err}
}

// FormatDiagnostic renders a handler failure as a preformatted block.
func FormatDiagnostic(herr *domain.HandlerError) string {
	return "```\n" + herr.Trace + "\n```"
}
