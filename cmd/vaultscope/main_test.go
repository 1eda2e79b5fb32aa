package main

import (
	"testing"

	"github.com/nidhogg/vaultscope/internal/auth"
)

func TestListenAddrByMode(t *testing.T) {
	// Local mode skips auth entirely, so the listener must stay on loopback.
	if got := listenAddr(auth.ModeLocal, 8420); got != "127.0.0.1:8420" {
		t.Errorf("local mode: expected 127.0.0.1:8420, got %s", got)
	}
	if got := listenAddr(auth.ModeRemote, 8420); got != ":8420" {
		t.Errorf("remote mode: expected :8420, got %s", got)
	}
}
