package bridge

import (
	"context"
	"errors"
	"testing"

	"chatbridge/internal/domain"
)

func TestResolveIdentity_Found(t *testing.T) {
	tr := newFakeTransport()

	id, err := ResolveIdentity(context.Background(), tr, "bot")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	want := domain.BotIdentity{ID: "U1", DisplayName: "bot", PrivateChannelID: "DBOT"}
	if id != want {
		t.Fatalf("got %+v, want %+v", id, want)
	}
}

func TestResolveIdentity_DisplayNameFallback(t *testing.T) {
	tr := newFakeTransport()
	tr.users = map[string]domain.DirectoryUser{
		"U9": {ID: "U9", Name: "helper_bot", DisplayName: "Helper"},
	}
	tr.ims = map[string]domain.DirectChannel{"D9": {ID: "D9", OwnerUserID: "U9"}}

	id, err := ResolveIdentity(context.Background(), tr, "Helper")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if id.ID != "U9" || id.PrivateChannelID != "D9" {
		t.Fatalf("unexpected identity %+v", id)
	}
}

func TestResolveIdentity_HandleBeatsDisplayName(t *testing.T) {
	tr := newFakeTransport()
	tr.users = map[string]domain.DirectoryUser{
		"UA": {ID: "UA", Name: "someone", DisplayName: "bot"},
		"UB": {ID: "UB", Name: "bot"},
	}
	tr.ims = map[string]domain.DirectChannel{
		"DA": {ID: "DA", OwnerUserID: "UA"},
		"DB": {ID: "DB", OwnerUserID: "UB"},
	}

	id, err := ResolveIdentity(context.Background(), tr, "bot")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if id.ID != "UB" {
		t.Fatalf("expected handle match UB, got %s", id.ID)
	}
}

func TestResolveIdentity_UserMissing(t *testing.T) {
	tr := newFakeTransport()
	_, err := ResolveIdentity(context.Background(), tr, "ghost")
	if !errors.Is(err, domain.ErrIdentityNotFound) {
		t.Fatalf("expected ErrIdentityNotFound, got %v", err)
	}
}

func TestResolveIdentity_ChannelMissing(t *testing.T) {
	tr := newFakeTransport()
	delete(tr.ims, "DBOT")
	_, err := ResolveIdentity(context.Background(), tr, "bot")
	if !errors.Is(err, domain.ErrChannelNotFound) {
		t.Fatalf("expected ErrChannelNotFound, got %v", err)
	}
}

func TestResolveIdentity_DirectoryError(t *testing.T) {
	tr := newFakeTransport()
	tr.usersErr = errors.New("invalid_auth")
	_, err := ResolveIdentity(context.Background(), tr, "bot")
	if err == nil || errors.Is(err, domain.ErrIdentityNotFound) {
		t.Fatalf("expected a wrapped directory error, got %v", err)
	}
}
