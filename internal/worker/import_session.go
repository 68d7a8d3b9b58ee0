package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ignite/prospect-crm/internal/csvimport"
	"github.com/ignite/prospect-crm/internal/domain"
	"github.com/redis/go-redis/v9"
)

// DefaultSessionTTL is how long an idle import session is kept.
const DefaultSessionTTL = 24 * time.Hour

// ErrSessionNotFound is returned when a session expired or never existed.
var ErrSessionNotFound = errors.New("import session not found")

// SessionStore keeps import wizards in Redis between requests. The wizard
// and its commit progress live under separate keys so progress can be
// written while the wizard itself is being committed.
type SessionStore struct {
	redis *redis.Client
	ttl   time.Duration
}

// NewSessionStore creates a Redis-backed session store. A ttl <= 0 uses
// DefaultSessionTTL.
func NewSessionStore(client *redis.Client, ttl time.Duration) *SessionStore {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &SessionStore{redis: client, ttl: ttl}
}

func (s *SessionStore) sessionKey(id string) string {
	return fmt.Sprintf("crm:import:session:%s", id)
}

func (s *SessionStore) progressKey(id string) string {
	return fmt.Sprintf("crm:import:progress:%s", id)
}

// Create starts and stores a new wizard in the upload stage.
func (s *SessionStore) Create(ctx context.Context) (*csvimport.Wizard, error) {
	w := csvimport.NewWizard(uuid.New().String())
	if err := s.Save(ctx, w); err != nil {
		return nil, err
	}
	return w, nil
}

// Save writes the wizard and refreshes its TTL.
func (s *SessionStore) Save(ctx context.Context, w *csvimport.Wizard) error {
	data, err := json.Marshal(w)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	if err := s.redis.Set(ctx, s.sessionKey(w.ID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// Get loads a wizard. Returns ErrSessionNotFound if it doesn't exist.
func (s *SessionStore) Get(ctx context.Context, id string) (*csvimport.Wizard, error) {
	data, err := s.redis.Get(ctx, s.sessionKey(id)).Bytes()
	if err == redis.Nil {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	var w csvimport.Wizard
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return &w, nil
}

// Delete removes a wizard and its progress.
func (s *SessionStore) Delete(ctx context.Context, id string) error {
	return s.redis.Del(ctx, s.sessionKey(id), s.progressKey(id)).Err()
}

// SetProgress records commit progress for a session.
func (s *SessionStore) SetProgress(ctx context.Context, id string, p domain.ImportProgress) error {
	data, _ := json.Marshal(p)
	return s.redis.Set(ctx, s.progressKey(id), data, s.ttl).Err()
}

// GetProgress returns the last recorded progress, or a zero value when no
// commit has started.
func (s *SessionStore) GetProgress(ctx context.Context, id string) (domain.ImportProgress, error) {
	var p domain.ImportProgress
	data, err := s.redis.Get(ctx, s.progressKey(id)).Bytes()
	if err == redis.Nil {
		return p, nil
	}
	if err != nil {
		return p, fmt.Errorf("load progress: %w", err)
	}
	if err := json.Unmarshal(data, &p); err != nil {
		return p, fmt.Errorf("decode progress: %w", err)
	}
	return p, nil
}

// Client exposes the underlying Redis client for locks sharing the same backend.
func (s *SessionStore) Client() *redis.Client { return s.redis }
