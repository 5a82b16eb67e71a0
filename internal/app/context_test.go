package app

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestOpenMigratesWorkspace(t *testing.T) {
	dir := t.TempDir()
	env, err := Open(context.Background(), Options{Workspace: dir, LogOutput: io.Discard})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer env.Close()
	if _, err := os.Stat(filepath.Join(dir, ".taskflow", "taskflow.db")); err != nil {
		t.Fatalf("database not created: %v", err)
	}
	if env.Config.Server.BasePath != "/v1" {
		t.Fatalf("expected default config, got %+v", env.Config.Server)
	}
	s, err := env.Auth.SignUp(context.Background(), "a@example.com", "long enough", "A")
	if err != nil {
		t.Fatalf("signup through env: %v", err)
	}
	me, err := env.Engine.Me(context.Background(), s.User.ID)
	if err != nil {
		t.Fatalf("me: %v", err)
	}
	if me.Role != "employee" {
		t.Fatalf("role = %s", me.Role)
	}
}

func TestOpenRequiresSecretWhenAsked(t *testing.T) {
	dir := t.TempDir()
	if _, err := Open(context.Background(), Options{Workspace: dir, RequireSecret: true, LogOutput: io.Discard}); err == nil {
		t.Fatalf("expected missing secret error")
	}
	env, err := Open(context.Background(), Options{Workspace: dir, RequireSecret: true, JWTSecret: "x", LogOutput: io.Discard})
	if err != nil {
		t.Fatalf("open with secret: %v", err)
	}
	env.Close()
}

func TestOpenRejectsInvalidOverride(t *testing.T) {
	if _, err := Open(context.Background(), Options{Workspace: t.TempDir(), LogFormat: "xml", LogOutput: io.Discard}); err == nil {
		t.Fatalf("expected invalid log format error")
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	NewLogger(&buf, "warn", "json").Info("hidden")
	NewLogger(&buf, "warn", "json").Warn("shown", "k", "v")
	out := buf.String()
	if strings.Contains(out, "hidden") || !strings.Contains(out, `"msg":"shown"`) {
		t.Fatalf("unexpected log output %q", out)
	}
}
