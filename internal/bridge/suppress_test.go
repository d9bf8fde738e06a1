package bridge

import (
	"testing"
	"time"
)

func TestSuppressor_Window(t *testing.T) {
	s := Suppressor{Grace: DefaultStartupGrace}
	connect := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	cases := []struct {
		offset time.Duration
		want   bool
	}{
		{0, true},
		{100 * time.Millisecond, true},
		{499 * time.Millisecond, true},
		{500*time.Millisecond - time.Nanosecond, true},
		{500 * time.Millisecond, false},
		{501 * time.Millisecond, false},
		{time.Hour, false},
	}
	for _, tc := range cases {
		if got := s.ShouldSuppress(connect.Add(tc.offset), connect); got != tc.want {
			t.Errorf("offset %v: got %v, want %v", tc.offset, got, tc.want)
		}
	}
}

func TestSuppressor_ClockSkewBeforeConnect(t *testing.T) {
	s := Suppressor{Grace: DefaultStartupGrace}
	connect := time.Now()
	if !s.ShouldSuppress(connect.Add(-time.Second), connect) {
		t.Fatal("an event stamped before connect should be suppressed")
	}
}

func TestSuppressor_ZeroGraceDisables(t *testing.T) {
	s := Suppressor{}
	connect := time.Now()
	if s.ShouldSuppress(connect, connect) {
		t.Fatal("zero grace should never suppress")
	}
}

func TestSuppressor_CustomGrace(t *testing.T) {
	s := Suppressor{Grace: 2 * time.Second}
	connect := time.Now()
	if !s.ShouldSuppress(connect.Add(1500*time.Millisecond), connect) {
		t.Fatal("1.5s should be inside a 2s window")
	}
	if s.ShouldSuppress(connect.Add(2*time.Second), connect) {
		t.Fatal("2s should be outside a 2s window")
	}
}
