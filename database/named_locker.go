package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/apex/log"
)

// MySQL limits user lock names to 64 characters.
const lockNameMaxLen = 64

// Extra time allowed on top of the GET_LOCK wait for taking a connection.
const lockAcquireGrace = time.Second

var ErrLockTimeout = errors.New("lock wait timeout")

// NamedLocker serializes work per key across service instances using MySQL
// user-level locks. Each held lock pins one connection of db, so db must be a
// pool reserved for locking: work done under the lock uses a different pool.
type NamedLocker struct {
	db     *sql.DB
	prefix string
	wait   time.Duration
}

func NewNamedLocker(db *sql.DB, prefix string, wait time.Duration) *NamedLocker {
	return &NamedLocker{db: db, prefix: prefix, wait: wait}
}

func (l *NamedLocker) Lock(ctx context.Context, key string) (func(), error) {
	name := l.prefix + key
	if len(name) > lockNameMaxLen {
		name = name[:lockNameMaxLen]
	}

	// Acquisition is bounded even when every lock connection is held.
	acquireCtx, cancel := context.WithTimeout(ctx, l.wait+lockAcquireGrace)
	defer cancel()

	conn, err := l.db.Conn(acquireCtx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, ErrLockTimeout
		}
		return nil, fmt.Errorf("lock connection: %w", err)
	}

	var got sql.NullInt64
	if err := conn.QueryRowContext(acquireCtx, "SELECT GET_LOCK(?, ?)", name, seconds(l.wait)).Scan(&got); err != nil {
		conn.Close()
		return nil, fmt.Errorf("get lock: %w", err)
	}
	if !got.Valid || got.Int64 != 1 {
		conn.Close()
		return nil, ErrLockTimeout
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			if _, err := conn.ExecContext(context.Background(), "SELECT RELEASE_LOCK(?)", name); err != nil {
				log.Warnf("Failed to release lock: %v", err)
			}
			conn.Close()
		})
	}, nil
}
