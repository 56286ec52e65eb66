package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/wanghui5801/fleetmon/internal/models"
)

func newTestStore(t *testing.T) *BadgerStore {
	t.Helper()
	store, err := NewBadgerStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestNodeRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	n := &models.Node{
		ID:     models.NodeID("edge-1"),
		Name:   "edge-1",
		Status: models.StatusMaintenance,
		Metrics: models.Metrics{
			CPU:    12.5,
			OSType: "Ubuntu 22.04",
		},
		FirstSeen:  time.Now().UTC().Truncate(time.Millisecond),
		LastUpdate: time.Now().UTC().Truncate(time.Millisecond),
	}
	require.NoError(t, store.SaveNode(ctx, n))

	got, err := store.GetNode(ctx, n.ID)
	require.NoError(t, err)
	require.Equal(t, n.Name, got.Name)
	require.Equal(t, n.Status, got.Status)
	require.Equal(t, 12.5, got.CPU)

	nodes, err := store.ListNodes(ctx)
	require.NoError(t, err)
	require.Len(t, nodes, 1)

	require.NoError(t, store.DeleteNode(ctx, n.ID))
	_, err = store.GetNode(ctx, n.ID)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestGetNodeUnknown(t *testing.T) {
	store := newTestStore(t)
	_, err := store.GetNode(context.Background(), "does-not-exist")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteNodeUnknown(t *testing.T) {
	store := newTestStore(t)
	err := store.DeleteNode(context.Background(), "does-not-exist")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestClientRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	c := &models.AllowedClient{Name: "edge-1", CreatedAt: time.Now().UTC()}
	require.NoError(t, store.SaveClient(ctx, c))

	clients, err := store.ListClients(ctx)
	require.NoError(t, err)
	require.Len(t, clients, 1)
	require.Equal(t, "edge-1", clients[0].Name)

	require.NoError(t, store.DeleteClient(ctx, "edge-1"))
	clients, err = store.ListClients(ctx)
	require.NoError(t, err)
	require.Empty(t, clients)
}

func TestCredential(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.GetCredential(ctx)
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.SaveCredential(ctx, []byte("bcrypt-hash")))
	hash, err := store.GetCredential(ctx)
	require.NoError(t, err)
	require.Equal(t, []byte("bcrypt-hash"), hash)
}

func TestNodesAndClientsDoNotCollide(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveNode(ctx, &models.Node{ID: "x", Name: "x"}))
	require.NoError(t, store.SaveClient(ctx, &models.AllowedClient{Name: "x"}))

	nodes, err := store.ListNodes(ctx)
	require.NoError(t, err)
	require.Len(t, nodes, 1)
	clients, err := store.ListClients(ctx)
	require.NoError(t, err)
	require.Len(t, clients, 1)
}
