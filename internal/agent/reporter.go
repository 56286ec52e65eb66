package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Reporter posts collector snapshots to the fleet server.
type Reporter struct {
	collector *Collector
	serverURL string
	client    *http.Client
	log       *zap.Logger
}

func NewReporter(collector *Collector, serverURL string, log *zap.Logger) *Reporter {
	if log == nil {
		log = zap.NewNop()
	}
	return &Reporter{
		collector: collector,
		serverURL: serverURL,
		client:    &http.Client{Timeout: 10 * time.Second},
		log:       log,
	}
}

// Run reports on the given interval until ctx is cancelled. Errors are
// logged and retried on the next tick; the server decides whether this
// node is admitted.
func (r *Reporter) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	r.log.Info("agent started",
		zap.String("name", r.collector.Name()),
		zap.String("server", r.serverURL),
		zap.Duration("interval", interval))
	for {
		if err := r.ReportOnce(ctx); err != nil {
			r.log.Warn("report failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			r.log.Info("agent stopped")
			return
		case <-ticker.C:
		}
	}
}

// ReportOnce collects and posts a single update.
func (r *Reporter) ReportOnce(ctx context.Context) error {
	snapshot := r.collector.Snapshot(ctx)
	body, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("marshal update: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		r.serverURL+"/api/nodes/update", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("post update: %w", err)
	}
	defer resp.Body.Close()
	switch resp.StatusCode {
	case http.StatusOK:
		return nil
	case http.StatusForbidden:
		return fmt.Errorf("node %q is not admitted by the server", r.collector.Name())
	default:
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("post update: status %d: %s", resp.StatusCode, string(b))
	}
}
