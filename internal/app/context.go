package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"etraxis/internal/config"
	"etraxis/internal/db"
	"etraxis/internal/engine"
	"etraxis/internal/migrate"
	"etraxis/internal/repo"
)

// Workspace is an opened etraxis workspace: database, config and engine.
type Workspace struct {
	Dir    string
	DB     *sql.DB
	Config *config.Config
	Engine engine.Engine
}

func (w *Workspace) Close() error {
	if w == nil || w.DB == nil {
		return nil
	}
	return w.DB.Close()
}

// Open opens the workspace database, applies pending migrations and loads
// etraxis.yml, falling back to defaults when the file is absent.
func Open(dir string, logOut io.Writer) (*Workspace, error) {
	cfg, err := config.LoadOrDefault(dir)
	if err != nil {
		return nil, err
	}
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		return nil, err
	}
	if err := migrate.Migrate(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	eng := engine.New(conn, cfg)
	eng.Logger = NewLogger(cfg, logOut)
	return &Workspace{Dir: dir, DB: conn, Config: cfg, Engine: eng}, nil
}

// NewLogger builds the slog logger described by the log section of cfg.
func NewLogger(cfg *config.Config, out io.Writer) *slog.Logger {
	if out == nil {
		out = io.Discard
	}
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Log.Level)}
	if strings.EqualFold(cfg.Log.Format, "json") {
		return slog.New(slog.NewJSONHandler(out, opts))
	}
	return slog.New(slog.NewTextHandler(out, opts))
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// Session opens a session for the user referenced by ref, which is either a
// numeric id or an email address.
func (w *Workspace) Session(ctx context.Context, ref string) (*engine.Session, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, fmt.Errorf("acting user not specified; use --as or ETRAXIS_USER")
	}
	if id, err := strconv.ParseInt(ref, 10, 64); err == nil {
		return w.Engine.SessionFor(ctx, id)
	}
	u, err := w.Engine.Repo.GetUserByEmail(ctx, strings.ToLower(ref))
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, fmt.Errorf("user %s: %w", ref, err)
		}
		return nil, err
	}
	return w.Engine.SessionFor(ctx, u.ID)
}
