package domain

// EventTypeMessage is the only raw event type that can reach the handler.
const EventTypeMessage = "message"

// RawEvent is one item from the platform firehose, flattened by the transport.
type RawEvent struct {
	Type      string
	ChannelID string
	SenderID  string
	Text      string
	HasText   bool   // false when the payload carried no text field at all
	Timestamp string // platform timestamp, opaque ("1700000000.000100" on Slack)
	Subtype   string // non-empty for edits, joins, bot posts and other system variants
}
