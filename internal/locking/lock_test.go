package locking

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLockKeyIsOrderIndependent(t *testing.T) {
	t.Parallel()

	a := LockKey("proj-test1", []string{"us-east1", "eu-west1"})
	b := LockKey("proj-test1", []string{"eu-west1", "us-east1"})
	assert.Equal(t, a, b)

	other := LockKey("proj-other1", []string{"us-east1", "eu-west1"})
	assert.NotEqual(t, a, other)
}

func TestLocalProviderExclusion(t *testing.T) {
	t.Parallel()

	provider := NewLocalProvider()
	key := LockKey("proj-test1", []string{"us-east1"})

	lock, err := provider.Acquire(context.Background(), key, "upgrade")
	require.NoError(t, err)
	require.NotNil(t, lock)

	_, err = provider.Acquire(context.Background(), key, "rollback")
	require.ErrorIs(t, err, ErrLockHeld)

	// A different fleet is unaffected
	otherKey := LockKey("proj-test1", []string{"eu-west1"})
	other, err := provider.Acquire(context.Background(), otherKey, "upgrade")
	require.NoError(t, err)
	require.NoError(t, other.Release())
}

func TestLocalProviderReacquireAfterRelease(t *testing.T) {
	t.Parallel()

	provider := NewLocalProvider()
	key := LockKey("proj-test1", []string{"us-east1"})

	lock, err := provider.Acquire(context.Background(), key, "upgrade")
	require.NoError(t, err)
	require.NoError(t, lock.Release())

	// Double release is harmless
	require.NoError(t, lock.Release())

	lock2, err := provider.Acquire(context.Background(), key, "upgrade")
	require.NoError(t, err)
	require.NoError(t, lock2.Release())
}
