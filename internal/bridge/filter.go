package bridge

import (
	"strings"

	"chatbridge/internal/domain"
)

// Classified is the part of a relevant event the dispatcher needs.
type Classified struct {
	ChannelID string
	Text      string
}

// Classify decides whether ev is addressed to the bot under mode and, if so,
// extracts the addressed text. It has no side effects.
//
// In mention mode the token and one separating space are stripped; anything
// else after the token is passed through untouched.
func Classify(ev domain.RawEvent, id domain.BotIdentity, mode domain.AddressingMode) (Classified, bool) {
	if ev.Type != domain.EventTypeMessage || !ev.HasText || ev.Subtype != "" {
		return Classified{}, false
	}

	switch mode {
	case domain.AddressingDirectMessage:
		if id.PrivateChannelID == "" || ev.ChannelID != id.PrivateChannelID {
			return Classified{}, false
		}
		return Classified{ChannelID: ev.ChannelID, Text: ev.Text}, true

	case domain.AddressingMention:
		if id.ID == "" {
			return Classified{}, false
		}
		rest, ok := strings.CutPrefix(ev.Text, id.MentionToken())
		if !ok {
			return Classified{}, false
		}
		rest = strings.TrimPrefix(rest, " ")
		return Classified{ChannelID: ev.ChannelID, Text: rest}, true
	}
	return Classified{}, false
}
