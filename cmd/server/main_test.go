package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/vovakirdan/wirerelay/internal/app"
	"github.com/vovakirdan/wirerelay/internal/auth"
	"github.com/vovakirdan/wirerelay/internal/config"
)

func TestTokenCommand(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")

	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetArgs([]string{"token", "--config", configPath, "--username", "alice", "--user-id", "3"})

	if err := root.Execute(); err != nil {
		t.Fatalf("token command failed: %v", err)
	}

	cfg := config.Default()
	claims, err := auth.ValidateToken(app.JWTConfig(&cfg), strings.TrimSpace(out.String()))
	if err != nil {
		t.Fatalf("minted token rejected: %v", err)
	}
	if claims.Username != "alice" || *claims.UserID != 3 {
		t.Fatalf("unexpected claims %+v", claims)
	}
}

func TestTokenCommandRequiresUsername(t *testing.T) {
	root := newRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"token", "--config", filepath.Join(t.TempDir(), "config.yaml"), "--user-id", "3"})

	if err := root.Execute(); err == nil {
		t.Fatalf("expected missing --username to fail")
	}
}
