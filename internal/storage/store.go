// Package storage persists node records, the admission list, and the
// admin credential. The Store interface is kept minimal so the backing
// technology can be swapped without touching the registry.
package storage

import (
	"context"
	"errors"

	"github.com/wanghui5801/fleetmon/internal/models"
)

var ErrNotFound = errors.New("not found")

// Store is the persistence contract consumed by the registry and the
// auth manager.
type Store interface {
	SaveNode(ctx context.Context, n *models.Node) error
	GetNode(ctx context.Context, id string) (*models.Node, error)
	ListNodes(ctx context.Context) ([]models.Node, error)
	DeleteNode(ctx context.Context, id string) error

	SaveClient(ctx context.Context, c *models.AllowedClient) error
	ListClients(ctx context.Context) ([]models.AllowedClient, error)
	DeleteClient(ctx context.Context, name string) error

	SaveCredential(ctx context.Context, hash []byte) error
	GetCredential(ctx context.Context) ([]byte, error)

	Close() error
}
