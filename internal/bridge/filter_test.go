package bridge

import (
	"testing"

	"chatbridge/internal/domain"
)

var testIdentity = domain.BotIdentity{ID: "U1", DisplayName: "bot", PrivateChannelID: "DBOT"}

func msgEvent(channel, text string) domain.RawEvent {
	return domain.RawEvent{
		Type:      domain.EventTypeMessage,
		ChannelID: channel,
		SenderID:  "UALICE",
		Text:      text,
		HasText:   true,
		Timestamp: "1700000000.000100",
	}
}

func TestClassify(t *testing.T) {
	cases := []struct {
		name     string
		ev       domain.RawEvent
		mode     domain.AddressingMode
		wantOK   bool
		wantText string
	}{
		{
			name:     "dm in private channel passes text unmodified",
			ev:       msgEvent("DBOT", "  Hello <@U1>  "),
			mode:     domain.AddressingDirectMessage,
			wantOK:   true,
			wantText: "  Hello <@U1>  ",
		},
		{
			name: "dm in other channel is ignored",
			ev:   msgEvent("C123", "hello"),
			mode: domain.AddressingDirectMessage,
		},
		{
			name:     "dm with empty text is still a message",
			ev:       msgEvent("DBOT", ""),
			mode:     domain.AddressingDirectMessage,
			wantOK:   true,
			wantText: "",
		},
		{
			name:     "mention strips token and separator",
			ev:       msgEvent("C123", "<@U1> hello there"),
			mode:     domain.AddressingMention,
			wantOK:   true,
			wantText: "hello there",
		},
		{
			name:     "mention keeps further whitespace",
			ev:       msgEvent("C123", "<@U1>   spaced  "),
			mode:     domain.AddressingMention,
			wantOK:   true,
			wantText: "  spaced  ",
		},
		{
			name:     "mention without separator",
			ev:       msgEvent("C123", "<@U1>ping"),
			mode:     domain.AddressingMention,
			wantOK:   true,
			wantText: "ping",
		},
		{
			name:     "mention works in the private channel too",
			ev:       msgEvent("DBOT", "<@U1> hi"),
			mode:     domain.AddressingMention,
			wantOK:   true,
			wantText: "hi",
		},
		{
			name: "mention not at start is ignored",
			ev:   msgEvent("C123", "hey <@U1> hello"),
			mode: domain.AddressingMention,
		},
		{
			name: "mention of another user is ignored",
			ev:   msgEvent("C123", "<@U2> hello"),
			mode: domain.AddressingMention,
		},
		{
			name: "mention with longer id sharing a prefix is ignored",
			ev:   msgEvent("C123", "<@U12> hello"),
			mode: domain.AddressingMention,
		},
		{
			name: "dm text is not enough in mention mode",
			ev:   msgEvent("DBOT", "hello"),
			mode: domain.AddressingMention,
		},
		{
			name: "non-message type is ignored",
			ev:   domain.RawEvent{Type: "user_typing", ChannelID: "DBOT", Text: "x", HasText: true},
			mode: domain.AddressingDirectMessage,
		},
		{
			name: "missing text field is ignored",
			ev:   domain.RawEvent{Type: domain.EventTypeMessage, ChannelID: "DBOT"},
			mode: domain.AddressingDirectMessage,
		},
		{
			name: "unknown mode is ignored",
			ev:   msgEvent("DBOT", "hello"),
			mode: domain.AddressingMode("broadcast"),
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := Classify(tc.ev, testIdentity, tc.mode)
			if ok != tc.wantOK {
				t.Fatalf("Classify ok = %v, want %v", ok, tc.wantOK)
			}
			if !ok {
				return
			}
			if got.Text != tc.wantText {
				t.Fatalf("Classify text = %q, want %q", got.Text, tc.wantText)
			}
			if got.ChannelID != tc.ev.ChannelID {
				t.Fatalf("Classify channel = %q, want %q", got.ChannelID, tc.ev.ChannelID)
			}
		})
	}
}

func TestClassify_SubtypeAlwaysRejected(t *testing.T) {
	texts := []string{"", "hello", "<@U1> hello there", "<@U1>"}
	subtypes := []string{"message_changed", "channel_join", "bot_message", "message_deleted"}
	modes := []domain.AddressingMode{domain.AddressingDirectMessage, domain.AddressingMention}

	for _, text := range texts {
		for _, st := range subtypes {
			for _, mode := range modes {
				ev := msgEvent("DBOT", text)
				ev.Subtype = st
				if _, ok := Classify(ev, testIdentity, mode); ok {
					t.Errorf("subtype %q text %q mode %s should be rejected", st, text, mode)
				}
			}
		}
	}
}

func TestClassify_Idempotent(t *testing.T) {
	events := []domain.RawEvent{
		msgEvent("DBOT", "hello"),
		msgEvent("C1", "<@U1> hello there"),
		msgEvent("C1", "nothing"),
	}
	for _, mode := range []domain.AddressingMode{domain.AddressingDirectMessage, domain.AddressingMention} {
		for _, ev := range events {
			before := ev
			a, okA := Classify(ev, testIdentity, mode)
			b, okB := Classify(ev, testIdentity, mode)
			if a != b || okA != okB {
				t.Fatalf("Classify not idempotent for %+v in %s", ev, mode)
			}
			if ev != before {
				t.Fatal("Classify mutated its input")
			}
		}
	}
}

func TestClassify_EmptyIdentityNeverMatches(t *testing.T) {
	if _, ok := Classify(msgEvent("", "hello"), domain.BotIdentity{}, domain.AddressingDirectMessage); ok {
		t.Fatal("empty private channel must not match an event without channel")
	}
	if _, ok := Classify(msgEvent("C1", "<@> hello"), domain.BotIdentity{}, domain.AddressingMention); ok {
		t.Fatal("empty bot id must not match a bare mention token")
	}
}
