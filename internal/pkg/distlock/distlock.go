// Package distlock serializes work that must not run twice at once across
// server instances, such as committing the same import session.
package distlock

import (
	"context"
	"database/sql"
	"hash/fnv"
	"time"
)

// DistLock is a non-blocking mutual exclusion lock shared between processes.
// A lock value must not be shared between goroutines.
type DistLock interface {
	// Acquire tries to take the lock once. It reports false when another
	// holder owns it.
	Acquire(ctx context.Context) (bool, error)
	// Release frees the lock if this holder still owns it.
	Release(ctx context.Context) error
	// Extend keeps a held lock alive for ttl more. It returns ErrNotHeld
	// once the lock was lost.
	Extend(ctx context.Context, ttl time.Duration) error
}

// PGAdvisoryLock implements DistLock with session-scoped Postgres advisory
// locks. cmd/migrate takes one so concurrent deploys do not apply the same
// migration twice. The lock goes away with the connection that took it, so
// Acquire and Release run on one pinned connection.
type PGAdvisoryLock struct {
	db     *sql.DB
	lockID int64
	conn   *sql.Conn
}

// NewPGAdvisoryLock derives the advisory lock ID from key.
func NewPGAdvisoryLock(db *sql.DB, key string) *PGAdvisoryLock {
	h := fnv.New64a()
	h.Write([]byte(key))
	return &PGAdvisoryLock{db: db, lockID: int64(h.Sum64())}
}

func (l *PGAdvisoryLock) Acquire(ctx context.Context) (bool, error) {
	conn, err := l.db.Conn(ctx)
	if err != nil {
		return false, err
	}
	var acquired bool
	if err := conn.QueryRowContext(ctx, "SELECT pg_try_advisory_lock($1)", l.lockID).Scan(&acquired); err != nil {
		conn.Close()
		return false, err
	}
	if !acquired {
		conn.Close()
		return false, nil
	}
	l.conn = conn
	return true, nil
}

func (l *PGAdvisoryLock) Release(ctx context.Context) error {
	if l.conn == nil {
		return nil
	}
	_, err := l.conn.ExecContext(ctx, "SELECT pg_advisory_unlock($1)", l.lockID)
	l.conn.Close()
	l.conn = nil
	return err
}

// Extend is a no-op while the connection is pinned: advisory locks do not
// expire.
func (l *PGAdvisoryLock) Extend(context.Context, time.Duration) error {
	if l.conn == nil {
		return ErrNotHeld
	}
	return nil
}
