package app

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/Paulygold/task-flow-manager/internal/authsvc"
	"github.com/Paulygold/task-flow-manager/internal/config"
	"github.com/Paulygold/task-flow-manager/internal/db"
	"github.com/Paulygold/task-flow-manager/internal/engine"
	"github.com/Paulygold/task-flow-manager/internal/migrate"
)

// Options override values read from the workspace config.
type Options struct {
	Workspace string
	JWTSecret string
	LogLevel  string
	LogFormat string
	// RequireSecret fails Open when no JWT secret is configured. Commands that
	// never hand out tokens leave it false and get a throwaway secret.
	RequireSecret bool
	LogOutput     io.Writer
}

// Env is an opened workspace: a migrated store with the services on top.
type Env struct {
	DB     *sql.DB
	Config *config.Config
	Engine engine.Engine
	Auth   authsvc.Service
	Logger *slog.Logger
}

// Open loads the workspace config, opens and migrates the store, and wires
// the engine and authentication service.
func Open(ctx context.Context, opts Options) (*Env, error) {
	workspace := opts.Workspace
	if workspace == "" {
		workspace = "."
	}
	cfg, err := config.LoadOptional(workspace)
	if err != nil {
		return nil, err
	}
	if opts.JWTSecret != "" {
		cfg.Auth.JWTSecret = opts.JWTSecret
	}
	if opts.LogLevel != "" {
		cfg.Log.Level = opts.LogLevel
	}
	if opts.LogFormat != "" {
		cfg.Log.Format = opts.LogFormat
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	secret := cfg.Auth.JWTSecret
	if strings.TrimSpace(secret) == "" {
		if opts.RequireSecret {
			return nil, cfg.RequireSecret()
		}
		secret, err = ephemeralSecret()
		if err != nil {
			return nil, err
		}
	}
	out := opts.LogOutput
	if out == nil {
		out = os.Stderr
	}
	logger := NewLogger(out, cfg.Log.Level, cfg.Log.Format)

	if _, err := db.EnsureWorkspace(workspace); err != nil {
		return nil, err
	}
	conn, err := db.Open(db.Config{Workspace: workspace, Path: cfg.Database.Path})
	if err != nil {
		return nil, err
	}
	if err := migrate.Migrate(ctx, conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Env{
		DB:     conn,
		Config: cfg,
		Engine: engine.New(conn, logger),
		Auth: authsvc.New(conn, authsvc.Config{
			Secret:            secret,
			Issuer:            cfg.Auth.Issuer,
			AccessTTL:         cfg.Auth.AccessTTL.Std(),
			RefreshTTL:        cfg.Auth.RefreshTTL.Std(),
			MinPasswordLength: cfg.Auth.MinPasswordLength,
			BcryptCost:        cfg.Auth.BcryptCost,
		}, logger),
		Logger: logger,
	}, nil
}

func (e *Env) Close() error {
	if e == nil || e.DB == nil {
		return nil
	}
	return e.DB.Close()
}

// NewLogger builds a slog logger; format is text or json.
func NewLogger(w io.Writer, level, format string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	hopts := &slog.HandlerOptions{Level: lvl}
	if strings.EqualFold(format, "json") {
		return slog.New(slog.NewJSONHandler(w, hopts))
	}
	return slog.New(slog.NewTextHandler(w, hopts))
}

func ephemeralSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
