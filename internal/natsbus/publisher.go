// Package natsbus mirrors status change events onto a NATS subject so
// external systems can consume them without holding a websocket open.
package natsbus

import (
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/wanghui5801/fleetmon/internal/models"
)

// StatusSubject carries one JSON StatusChange per message.
const StatusSubject = "fleet.status"

type Publisher struct {
	nc  *nats.Conn
	log *zap.Logger
}

func NewPublisher(url string, log *zap.Logger) (*Publisher, error) {
	if log == nil {
		log = zap.NewNop()
	}
	opts := []nats.Option{
		nats.Name("fleetmon-server"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Warn("nats disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("nats reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
	}
	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, err
	}
	return &Publisher{nc: nc, log: log}, nil
}

// Publish implements registry.Publisher. Failures are logged and
// dropped; the in-process fanout is unaffected.
func (p *Publisher) Publish(ev models.StatusChange) {
	if p.nc == nil || p.nc.IsClosed() {
		return
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		p.log.Warn("nats: marshal event", zap.Error(err))
		return
	}
	if err := p.nc.Publish(StatusSubject, payload); err != nil {
		p.log.Warn("nats: publish event", zap.Error(err))
	}
}

func (p *Publisher) Close() {
	if p.nc != nil {
		p.nc.Drain()
		p.nc.Close()
	}
}
