// Package locking guards fleets against concurrent runs: at most one live
// run per (project, fleet). The local provider covers a single server
// process; the DynamoDB provider extends the guarantee across servers.
package locking

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// ErrLockHeld is returned when the fleet already has a live run
var ErrLockHeld = errors.New("fleet is locked by another run")

// RunLock is a held lock; callers must Release it when the run ends
type RunLock interface {
	ID() string
	Release() error
}

// Provider acquires run locks
type Provider interface {
	Acquire(ctx context.Context, key, operation string) (RunLock, error)
}

// LockKey builds the canonical lock key for a fleet. Location order does not
// matter: the same set of locations yields the same key.
func LockKey(project string, locations []string) string {
	sorted := append([]string(nil), locations...)
	sort.Strings(sorted)
	return fmt.Sprintf("fleet/%s/%s", project, strings.Join(sorted, ","))
}

// LocalProvider implements in-process locking for embedded mode
type LocalProvider struct {
	mu    sync.Mutex
	held  map[string]*localLock
	nowFn func() time.Time
}

// NewLocalProvider creates an in-process lock provider
func NewLocalProvider() *LocalProvider {
	return &LocalProvider{
		held:  make(map[string]*localLock),
		nowFn: time.Now,
	}
}

// Acquire takes the lock for a fleet or fails immediately with ErrLockHeld
func (p *LocalProvider) Acquire(_ context.Context, key, operation string) (RunLock, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if existing, ok := p.held[key]; ok {
		return nil, fmt.Errorf("%w: %s since %s", ErrLockHeld,
			existing.operation, existing.acquiredAt.Format(time.RFC3339))
	}

	lock := &localLock{
		id:         fmt.Sprintf("local-%s-%d", operation, p.nowFn().UnixNano()),
		key:        key,
		operation:  operation,
		acquiredAt: p.nowFn(),
		provider:   p,
	}
	p.held[key] = lock
	return lock, nil
}

type localLock struct {
	id         string
	key        string
	operation  string
	acquiredAt time.Time
	provider   *LocalProvider

	releaseOnce sync.Once
}

func (l *localLock) ID() string { return l.id }

func (l *localLock) Release() error {
	l.releaseOnce.Do(func() {
		l.provider.mu.Lock()
		delete(l.provider.held, l.key)
		l.provider.mu.Unlock()
	})
	return nil
}
