package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wanghui5801/fleetmon/internal/storage"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	store, err := storage.NewBadgerStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return NewManager(store, "test-secret")
}

func TestInitializeOnce(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	require.False(t, m.Initialized(ctx))

	token, err := m.Initialize(ctx, "hunter2")
	require.NoError(t, err)
	require.True(t, m.Verify(token))
	require.True(t, m.Initialized(ctx))

	_, err = m.Initialize(ctx, "other")
	require.ErrorIs(t, err, ErrAlreadyInitialized)
}

func TestInitializeRejectsEmptyPassword(t *testing.T) {
	m := newTestManager(t)
	_, err := m.Initialize(context.Background(), "")
	require.ErrorIs(t, err, ErrInvalidPassword)
}

func TestLogin(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	_, err := m.Login(ctx, "hunter2")
	require.ErrorIs(t, err, ErrNotInitialized)

	_, err = m.Initialize(ctx, "hunter2")
	require.NoError(t, err)

	_, err = m.Login(ctx, "wrong")
	require.ErrorIs(t, err, ErrInvalidPassword)

	token, err := m.Login(ctx, "hunter2")
	require.NoError(t, err)
	require.True(t, m.Verify(token))
}

func TestReset(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	_, err := m.Initialize(ctx, "old-pass")
	require.NoError(t, err)

	require.ErrorIs(t, m.Reset(ctx, "wrong", "new-pass"), ErrInvalidPassword)
	require.ErrorIs(t, m.Reset(ctx, "old-pass", ""), ErrInvalidPassword)
	require.NoError(t, m.Reset(ctx, "old-pass", "new-pass"))

	_, err = m.Login(ctx, "old-pass")
	require.ErrorIs(t, err, ErrInvalidPassword)
	_, err = m.Login(ctx, "new-pass")
	require.NoError(t, err)
}

func TestVerifyRejectsGarbage(t *testing.T) {
	m := newTestManager(t)
	require.False(t, m.Verify(""))
	require.False(t, m.Verify("not-a-token"))

	// Token signed under a different secret.
	otherStore, err := storage.NewBadgerStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { otherStore.Close() })
	other := NewManager(otherStore, "other-secret")
	token, err := other.Initialize(context.Background(), "pw")
	require.NoError(t, err)
	require.False(t, m.Verify(token))
	require.True(t, other.Verify(token))
}
