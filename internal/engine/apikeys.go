package engine

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"etraxis/internal/domain"
	"etraxis/internal/events"
	"etraxis/internal/repo"
)

// CreateAPIKey issues a key for the actor. The secret is returned once and
// only its hash is stored.
func (s *Session) CreateAPIKey(ctx context.Context, name string) (domain.APIKey, string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return domain.APIKey{}, "", fmt.Errorf("generate api key: %w", err)
	}
	secret := "etx_" + hex.EncodeToString(buf)
	key := domain.APIKey{
		ID:        uuid.NewString(),
		UserID:    s.Actor.ID,
		Name:      strings.TrimSpace(name),
		KeyHash:   repo.HashAPIKey(secret),
		CreatedAt: s.now().Format(time.RFC3339),
	}
	err := s.commit(ctx, "api_key.created", func(tx *sql.Tx) (events.Entry, error) {
		if err := s.Repo.InsertAPIKey(ctx, tx, key); err != nil {
			return events.Entry{}, err
		}
		return events.Entry{EntityKind: "user", EntityID: s.Actor.ID, ActorID: s.Actor.ID,
			Payload: events.EventPayload{"key_id": key.ID, "name": key.Name}}, nil
	})
	if err != nil {
		return domain.APIKey{}, "", err
	}
	return key, secret, nil
}

// RevokeAPIKey deletes a key owned by the actor. Admins may revoke any key.
func (s *Session) RevokeAPIKey(ctx context.Context, id string) error {
	key, err := s.Repo.GetAPIKey(ctx, id)
	if err != nil {
		return fmt.Errorf("api key %s: %w", id, err)
	}
	if key.UserID != s.Actor.ID && !s.Actor.Admin {
		return s.denied(ctx, "api_key.revoke", "You are not allowed to revoke this key.")
	}
	return s.commit(ctx, "api_key.revoked", func(tx *sql.Tx) (events.Entry, error) {
		if err := s.Repo.DeleteAPIKey(ctx, tx, id); err != nil {
			return events.Entry{}, err
		}
		return events.Entry{EntityKind: "user", EntityID: key.UserID, ActorID: s.Actor.ID,
			Payload: events.EventPayload{"key_id": id}}, nil
	})
}

func (s *Session) APIKeys(ctx context.Context) ([]domain.APIKey, error) {
	return s.Repo.ListAPIKeys(ctx, s.Actor.ID)
}
