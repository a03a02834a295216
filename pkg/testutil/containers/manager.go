//go:build integration

// Package containers starts the backing services used by integration tests.
// Each container starts once per test binary and is shared across suites;
// Ryuk removes them when the binary exits.
package containers

import (
	"context"
	"sync"
	"testing"
	"time"
)

const startTimeout = 3 * time.Minute

// Manager hands out the shared containers, starting each on first use.
type Manager struct {
	postgres lazy[*PostgresContainer]
	redis    lazy[*RedisContainer]
	redpanda lazy[*RedpandaContainer]
}

var (
	managerOnce sync.Once
	manager     *Manager
)

// GetManager returns the process-wide Manager.
func GetManager() *Manager {
	managerOnce.Do(func() {
		manager = &Manager{}
	})
	return manager
}

func (m *Manager) Postgres(t *testing.T) *PostgresContainer {
	t.Helper()
	return m.postgres.get(t, startPostgres)
}

func (m *Manager) Redis(t *testing.T) *RedisContainer {
	t.Helper()
	return m.redis.get(t, startRedis)
}

func (m *Manager) Redpanda(t *testing.T) *RedpandaContainer {
	t.Helper()
	return m.redpanda.get(t, startRedpanda)
}

type lazy[T any] struct {
	once sync.Once
	val  T
	err  error
}

func (l *lazy[T]) get(t *testing.T, start func(context.Context) (T, error)) T {
	t.Helper()
	l.once.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), startTimeout)
		defer cancel()
		l.val, l.err = start(ctx)
	})
	if l.err != nil {
		t.Fatalf("container unavailable: %v", l.err)
	}
	return l.val
}
