package engine

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"time"

	"etraxis/internal/config"
	"etraxis/internal/domain"
	"etraxis/internal/engine/auth"
	"etraxis/internal/engine/workflow"
	"etraxis/internal/events"
	"etraxis/internal/metrics"
	"etraxis/internal/repo"
)

type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	Config *config.Config
	Logger *slog.Logger
	Now    func() time.Time
}

func New(db *sql.DB, cfg *config.Config) Engine {
	return Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Events: events.Writer{Now: time.Now},
		Config: cfg,
		Now:    time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now().UTC()
	}
	return time.Now().UTC()
}

// CurrentTime is the clock gates evaluate against.
func (e Engine) CurrentTime() time.Time {
	return e.now()
}

func (e Engine) logger() *slog.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// Session is the evaluation scope of one request. It owns a fresh permission
// resolver and transition graph, so cached rows never outlive the request.
type Session struct {
	Engine
	Actor    domain.User
	Resolver *auth.Resolver
	Graph    *workflow.Graph
}

func (e Engine) NewSession(actor domain.User) *Session {
	return &Session{
		Engine:   e,
		Actor:    actor,
		Resolver: auth.NewResolver(e.Repo),
		Graph:    workflow.NewGraph(e.Repo),
	}
}

// SessionFor loads the user and opens a session acting as them.
func (e Engine) SessionFor(ctx context.Context, userID int64) (*Session, error) {
	u, err := e.Repo.GetUser(ctx, nil, userID)
	if err != nil {
		return nil, fmt.Errorf("user %d: %w", userID, err)
	}
	if u.Disabled {
		return nil, auth.Denied("Account is disabled.")
	}
	return e.NewSession(u), nil
}

// commit runs fn in a transaction, appends the event it returns and commits.
func (e Engine) commit(ctx context.Context, op string, fn func(tx *sql.Tx) (events.Entry, error)) error {
	err := e.inTx(ctx, op, fn)
	metrics.RecordMutation(ctx, op, err)
	if err != nil {
		e.logger().DebugContext(ctx, "mutation failed", "op", op, "err", err)
		return err
	}
	e.logger().InfoContext(ctx, "mutation committed", "op", op)
	return nil
}

func (e Engine) inTx(ctx context.Context, op string, fn func(tx *sql.Tx) (events.Entry, error)) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	entry, err := fn(tx)
	if err != nil {
		return err
	}
	if entry.Type == "" {
		entry.Type = op
	}
	if err := e.Events.Append(ctx, tx, entry); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Session) denied(ctx context.Context, action string, format string, args ...any) error {
	s.logger().DebugContext(ctx, "access denied", "action", action, "user_id", s.Actor.ID)
	return auth.Denied(format, args...)
}
