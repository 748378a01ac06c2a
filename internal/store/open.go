package store

import (
	"context"
	"fmt"
)

// Settings selects and configures a backend.
type Settings struct {
	Kind        string // memory, sqlite, postgres or redis
	DatabaseURL string
	SQLitePath  string
	Redis       *Redis
	RedisPrefix string
}

// Open returns the configured backend and a function releasing what it
// opened. A Redis client passed in Settings is owned by the caller.
func Open(ctx context.Context, s Settings) (Backend, func() error, error) {
	noop := func() error { return nil }
	switch s.Kind {
	case "memory":
		return NewMemory(), noop, nil
	case "redis":
		if s.Redis == nil {
			return nil, nil, fmt.Errorf("store: redis backend needs a client")
		}
		return NewRedisBackend(s.Redis.Client, s.RedisPrefix), noop, nil
	case "sqlite", "postgres":
		var (
			db  *DB
			err error
		)
		if s.Kind == "sqlite" {
			db, err = NewSQLite(s.SQLitePath)
		} else {
			db, err = NewDB(s.DatabaseURL)
		}
		if err != nil {
			return nil, nil, err
		}
		backend, err := NewSQLBackend(ctx, db)
		if err != nil {
			db.Close()
			return nil, nil, err
		}
		return backend, db.Close, nil
	default:
		return nil, nil, fmt.Errorf("store: unknown backend %q", s.Kind)
	}
}
