// Package registry is the single source of truth for fleet node
// records and the admission list. All mutations flow through it: agent
// updates, operator actions, and sweeper demotions. Records are held in
// memory and written through to the store; writers to the same node id
// serialize on a per-id lock while writers to different ids proceed
// independently.
package registry

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/wanghui5801/fleetmon/internal/metrics"
	"github.com/wanghui5801/fleetmon/internal/models"
	"github.com/wanghui5801/fleetmon/internal/storage"
)

// Publisher receives every status transition applied to the registry.
type Publisher interface {
	Publish(ev models.StatusChange)
}

// Registry owns the node records. mu guards only the shape of the maps;
// record-level mutations serialize on per-id mutexes held in opMu.
type Registry struct {
	store storage.Store
	log   *zap.Logger
	pubs  []Publisher

	admissionRequired bool

	mu      sync.RWMutex
	nodes   map[string]*models.Node
	clients map[string]models.AllowedClient

	// per-node operation locks
	opMu sync.Map
}

// New hydrates a Registry from the store. Nodes persisted as running
// are demoted to stopped on startup: after downtime their liveness is
// unknown until the next accepted update.
func New(ctx context.Context, store storage.Store, admissionRequired bool, log *zap.Logger, pubs ...Publisher) (*Registry, error) {
	if log == nil {
		log = zap.NewNop()
	}
	r := &Registry{
		store:             store,
		log:               log,
		pubs:              pubs,
		admissionRequired: admissionRequired,
		nodes:             make(map[string]*models.Node),
		clients:           make(map[string]models.AllowedClient),
	}

	nodes, err := store.ListNodes(ctx)
	if err != nil {
		return nil, fmt.Errorf("hydrate nodes: %w", err)
	}
	for i := range nodes {
		n := nodes[i]
		if n.Status == models.StatusRunning {
			n.Status = models.StatusStopped
			if err := store.SaveNode(ctx, &n); err != nil {
				return nil, fmt.Errorf("demote %s on startup: %w", n.ID, err)
			}
		}
		r.nodes[n.ID] = &n
	}

	clients, err := store.ListClients(ctx)
	if err != nil {
		return nil, fmt.Errorf("hydrate clients: %w", err)
	}
	for _, c := range clients {
		r.clients[c.Name] = c
	}

	log.Info("registry hydrated",
		zap.Int("nodes", len(r.nodes)),
		zap.Int("clients", len(r.clients)))
	return r, nil
}

// Get returns a copy of the record for id.
func (r *Registry) Get(id string) (*models.Node, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n, ok := r.nodes[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := *n
	return &out, nil
}

// List returns a point-in-time snapshot of all records ordered by
// order_index descending, ties broken by first_seen ascending.
func (r *Registry) List() []models.Node {
	r.mu.RLock()
	out := make([]models.Node, 0, len(r.nodes))
	for _, n := range r.nodes {
		out = append(out, *n)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].OrderIndex != out[j].OrderIndex {
			return out[i].OrderIndex > out[j].OrderIndex
		}
		return out[i].FirstSeen.Before(out[j].FirstSeen)
	})
	return out
}

// SetOrder sets the display order index of a node.
func (r *Registry) SetOrder(ctx context.Context, id string, index int) error {
	unlock := r.lockNode(id)
	defer unlock()

	cur, err := r.Get(id)
	if err != nil {
		return err
	}
	cur.OrderIndex = index
	return r.commit(ctx, cur)
}

// ForceStatus is the operator override. It may move a node to any of
// the three states and is the only path into or out of a maintenance
// hold. Forcing a node into running refreshes last_update so the next
// sweep does not immediately demote it again.
func (r *Registry) ForceStatus(ctx context.Context, id string, status models.Status) (*models.Node, error) {
	if !status.Valid() {
		return nil, ErrInvalidStatus
	}
	unlock := r.lockNode(id)
	defer unlock()

	cur, err := r.Get(id)
	if err != nil {
		return nil, err
	}
	old := cur.Status
	cur.Status = status
	cur.Pinned = status == models.StatusMaintenance
	if status == models.StatusRunning {
		cur.LastUpdate = time.Now().UTC()
	}
	if err := r.commit(ctx, cur); err != nil {
		return nil, err
	}
	r.publishTransition(old, cur)
	return cur, nil
}

// Delete removes a node record and cascades to its admission entry.
func (r *Registry) Delete(ctx context.Context, id string) error {
	unlock := r.lockNode(id)
	defer unlock()

	cur, err := r.Get(id)
	if err != nil {
		return err
	}
	if err := r.store.DeleteNode(ctx, id); err != nil && err != storage.ErrNotFound {
		return fmt.Errorf("delete node: %w", err)
	}
	if err := r.store.DeleteClient(ctx, cur.Name); err != nil && err != storage.ErrNotFound {
		return fmt.Errorf("delete client: %w", err)
	}

	r.mu.Lock()
	delete(r.nodes, id)
	delete(r.clients, cur.Name)
	r.mu.Unlock()
	r.opMu.Delete(id)
	return nil
}

// Sweep demotes every running node whose last update is older than
// staleAfter. Each demotion holds only that node's lock for the
// compare-and-set; the scan never blocks writers to other nodes. It is
// idempotent: a second pass right after a clean sweep does nothing.
func (r *Registry) Sweep(ctx context.Context, staleAfter time.Duration) (int, error) {
	r.mu.RLock()
	ids := make([]string, 0, len(r.nodes))
	for id := range r.nodes {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	demoted := 0
	var firstErr error
	now := time.Now().UTC()
	for _, id := range ids {
		func() {
			unlock := r.lockNode(id)
			defer unlock()

			cur, err := r.Get(id)
			if err != nil {
				return // deleted mid-sweep
			}
			if cur.Status != models.StatusRunning || now.Sub(cur.LastUpdate) <= staleAfter {
				return
			}
			old := cur.Status
			cur.Status = models.StatusStopped
			// last_update is left as-is so the record still shows when
			// the node was last heard from.
			if err := r.commit(ctx, cur); err != nil {
				if firstErr == nil {
					firstErr = err
				}
				r.log.Warn("sweep: persist demotion failed", zap.String("id", id), zap.Error(err))
				return
			}
			demoted++
			metrics.SweeperDemotions.Inc()
			r.publishTransition(old, cur)
		}()
	}
	return demoted, firstErr
}

// AdmitClient registers a new agent identity. The corresponding node
// record is created immediately in maintenance with placeholder
// metrics; the first accepted update promotes it to running.
func (r *Registry) AdmitClient(ctx context.Context, name string) (*models.Node, error) {
	if name == "" {
		return nil, ErrMalformedPayload
	}
	id := models.NodeID(name)
	unlock := r.lockNode(id)
	defer unlock()

	r.mu.RLock()
	_, exists := r.clients[name]
	r.mu.RUnlock()
	if exists {
		return nil, ErrAlreadyAdmitted
	}

	now := time.Now().UTC()
	client := models.AllowedClient{Name: name, CreatedAt: now}
	node := &models.Node{
		ID:       id,
		Name:     name,
		Type:     models.UnknownField,
		Location: models.NAField,
		Status:   models.StatusMaintenance,
		Metrics: models.Metrics{
			OSType:  models.UnknownField,
			CPUInfo: models.NAField,
		},
		OrderIndex: r.nextOrderIndex(),
		FirstSeen:  now,
		LastUpdate: now,
	}

	if err := r.store.SaveClient(ctx, &client); err != nil {
		return nil, fmt.Errorf("save client: %w", err)
	}
	if err := r.store.SaveNode(ctx, node); err != nil {
		return nil, fmt.Errorf("save node: %w", err)
	}

	r.mu.Lock()
	r.clients[name] = client
	r.nodes[id] = node
	r.mu.Unlock()

	r.log.Info("client admitted", zap.String("name", name), zap.String("id", id))
	out := *node
	return &out, nil
}

// RevokeClient removes an admission entry and cascades to the node
// record.
func (r *Registry) RevokeClient(ctx context.Context, name string) error {
	r.mu.RLock()
	_, exists := r.clients[name]
	r.mu.RUnlock()
	if !exists {
		return ErrNotFound
	}
	return r.Delete(ctx, models.NodeID(name))
}

// Clients returns the admission list sorted by creation time.
func (r *Registry) Clients() []models.AllowedClient {
	r.mu.RLock()
	out := make([]models.AllowedClient, 0, len(r.clients))
	for _, c := range r.clients {
		out = append(out, c)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// IsAdmitted reports whether name is on the admission list.
func (r *Registry) IsAdmitted(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.clients[name]
	return ok
}

// ---------- internals ----------

// lockNode serializes operations on a single node id.
func (r *Registry) lockNode(id string) func() {
	v, _ := r.opMu.LoadOrStore(id, &sync.Mutex{})
	mtx := v.(*sync.Mutex)
	mtx.Lock()
	return mtx.Unlock
}

// commit persists n and, only on success, swaps it into the in-memory
// map. Callers must hold the node's op lock.
func (r *Registry) commit(ctx context.Context, n *models.Node) error {
	if err := r.store.SaveNode(ctx, n); err != nil {
		return fmt.Errorf("save node %s: %w", n.ID, err)
	}
	cp := *n
	r.mu.Lock()
	r.nodes[n.ID] = &cp
	r.mu.Unlock()
	return nil
}

// nextOrderIndex assigns min(order_index)-1 so a new record appends to
// the end of the descending dashboard order until an operator moves it.
func (r *Registry) nextOrderIndex() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(r.nodes) == 0 {
		return 0
	}
	min := math.MaxInt
	for _, n := range r.nodes {
		if n.OrderIndex < min {
			min = n.OrderIndex
		}
	}
	return min - 1
}

// publishTransition emits a fanout event when the status actually
// changed. It is called while the caller still holds the node's op
// lock, which is what gives observers per-node causal order.
func (r *Registry) publishTransition(old models.Status, n *models.Node) {
	if old == n.Status {
		return
	}
	metrics.Transitions.WithLabelValues(string(old), string(n.Status)).Inc()
	ev := models.StatusChange{
		NodeID:    n.ID,
		OldStatus: old,
		NewStatus: n.Status,
		Node:      *n,
		Time:      time.Now().UTC(),
	}
	for _, p := range r.pubs {
		p.Publish(ev)
	}
	r.log.Debug("status transition",
		zap.String("id", n.ID),
		zap.String("name", n.Name),
		zap.String("from", string(old)),
		zap.String("to", string(n.Status)))
}
