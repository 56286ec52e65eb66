package registry

import (
	"context"
	"time"

	"github.com/wanghui5801/fleetmon/internal/metrics"
	"github.com/wanghui5801/fleetmon/internal/models"
)

// Apply runs one agent update through the ingestion pipeline:
// validation, admission check, defaulting, then the status state
// machine. Metrics are copied verbatim and last_update always advances
// on an accepted update; duplicate payloads are not suppressed.
//
// State machine:
//   - operator-pinned maintenance stays maintenance
//   - everything else lands in running (stopped nodes are re-promoted
//     only here, never by the sweeper)
func (r *Registry) Apply(ctx context.Context, req models.UpdateRequest) (*models.Node, error) {
	if req.ID == "" || req.Name == "" {
		metrics.UpdatesRejected.WithLabelValues("malformed").Inc()
		return nil, ErrMalformedPayload
	}
	if r.admissionRequired && !r.IsAdmitted(req.Name) {
		metrics.UpdatesRejected.WithLabelValues("not_allowed").Inc()
		return nil, ErrNotAllowed
	}
	req.ApplyDefaults()

	// The record is keyed by the name-derived id regardless of what id
	// the agent claims; this is what enforces one record per name.
	id := models.NodeID(req.Name)
	unlock := r.lockNode(id)
	defer unlock()

	now := time.Now().UTC()
	cur, err := r.Get(id)
	if err != nil {
		// First registration outside the admission flow (admission
		// disabled, or the record was lost). Starts in maintenance like
		// any other new record; the state machine below decides whether
		// this very update promotes it.
		cur = &models.Node{
			ID:         id,
			Name:       req.Name,
			Status:     models.StatusMaintenance,
			OrderIndex: r.nextOrderIndex(),
			FirstSeen:  now,
		}
	}

	old := cur.Status
	next := models.StatusRunning
	if cur.Status == models.StatusMaintenance && cur.Pinned {
		next = models.StatusMaintenance
	}

	cur.Name = req.Name
	cur.Type = req.Type
	cur.Location = req.Location
	cur.IPAddress = req.IPAddress
	cur.Metrics = req.MetricsView()
	cur.Status = next
	cur.LastUpdate = now

	if err := r.commit(ctx, cur); err != nil {
		return nil, err
	}
	metrics.UpdatesTotal.Inc()
	r.publishTransition(old, cur)
	out := *cur
	return &out, nil
}
