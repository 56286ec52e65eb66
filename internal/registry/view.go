package registry

import "github.com/wanghui5801/fleetmon/internal/models"

// MaskedIP replaces ip_address for unauthenticated callers.
const MaskedIP = "***.***.***.***"

// ListVisible is the read facade. Unauthenticated callers get the same
// snapshot with ip_address masked; the underlying records are never
// touched.
func (r *Registry) ListVisible(authenticated bool) []models.Node {
	nodes := r.List()
	if authenticated {
		return nodes
	}
	for i := range nodes {
		if nodes[i].IPAddress != "" {
			nodes[i].IPAddress = MaskedIP
		}
	}
	return nodes
}

// GetVisible returns one record with the same redaction policy as
// ListVisible.
func (r *Registry) GetVisible(id string, authenticated bool) (*models.Node, error) {
	n, err := r.Get(id)
	if err != nil {
		return nil, err
	}
	if !authenticated && n.IPAddress != "" {
		n.IPAddress = MaskedIP
	}
	return n, nil
}
