package domain

// BotIdentity is the bot's own user and the private conversation bound to it.
// It is resolved once per connection and never mutated afterward.
type BotIdentity struct {
	ID               string
	DisplayName      string
	PrivateChannelID string
}

// MentionToken returns the at-mention syntax that addresses this identity.
func (b BotIdentity) MentionToken() string {
	return "<@" + b.ID + ">"
}

// AddressingMode decides when a message counts as sent to the bot.
type AddressingMode string

const (
	// AddressingDirectMessage accepts every message in the bot's private channel.
	AddressingDirectMessage AddressingMode = "im"
	// AddressingMention accepts messages that start with the bot's mention token.
	AddressingMention AddressingMode = "mention"
)

// Valid reports whether m is a known addressing mode.
func (m AddressingMode) Valid() bool {
	return m == AddressingDirectMessage || m == AddressingMention
}
