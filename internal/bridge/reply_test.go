package bridge

import (
	"context"
	"errors"
	"testing"

	"chatbridge/internal/domain"
)

func TestReplyChannel_PostsToBoundChannel(t *testing.T) {
	ft := &fakeTransport{}
	rc := NewReplyChannel(ft, "C42", "chatbot")

	if err := rc.Reply(context.Background(), "hi"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	posts := ft.sentPosts()
	if len(posts) != 1 {
		t.Fatalf("expected 1 post, got %d", len(posts))
	}
	if posts[0].ChannelID != "C42" || posts[0].Sender != "chatbot" || posts[0].Text != "hi" {
		t.Fatalf("unexpected post %+v", posts[0])
	}
}

func TestReplyChannel_WrapsPlainErrors(t *testing.T) {
	errDown := errors.New("connection reset")
	rc := NewReplyChannel(&fakeTransport{postErr: errDown}, "C42", "chatbot")

	err := rc.Reply(context.Background(), "hi")
	var te *domain.TransportError
	if !errors.As(err, &te) {
		t.Fatalf("expected TransportError, got %T", err)
	}
	if te.Op != "chat.postMessage" {
		t.Errorf("op: got %q", te.Op)
	}
	if !errors.Is(err, errDown) {
		t.Error("cause should stay reachable")
	}
}

func TestReplyChannel_KeepsTransportErrors(t *testing.T) {
	orig := &domain.TransportError{Op: "chat.postMessage", Err: errors.New("channel_not_found")}
	rc := NewReplyChannel(&fakeTransport{postErr: orig}, "C42", "chatbot")

	if err := rc.Reply(context.Background(), "hi"); err != orig {
		t.Fatalf("expected the same TransportError, got %v", err)
	}
}

func TestFormatDiagnostic(t *testing.T) {
	got := FormatDiagnostic(&domain.HandlerError{Trace: "boom\ncaused by: x"})
	want := "```\nboom\ncaused by: x\n```"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}
