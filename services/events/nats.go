// Package eventsvc implements core.EventPublisher.
package eventsvc

import (
	"context"
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/pkg/errors"

	"github.com/trezcool/scholar/core"
)

// NatsPublisher publishes events as JSON on core NATS subjects.
type NatsPublisher struct {
	conn *nats.Conn
}

var _ core.EventPublisher = (*NatsPublisher)(nil)

func NewNatsPublisher(conf *core.Config, logger core.Logger) (*NatsPublisher, error) {
	nc, err := nats.Connect(
		conf.Nats.URL,
		nats.Name(conf.AppName),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected: "+err.Error(), err)
			}
		}),
	)
	if err != nil {
		return nil, errors.Wrapf(err, "connecting to nats at %s", conf.Nats.URL)
	}
	return &NatsPublisher{conn: nc}, nil
}

func (p *NatsPublisher) Publish(ctx context.Context, subject string, v interface{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(v)
	if err != nil {
		return errors.Wrap(err, "encoding event")
	}
	return p.conn.Publish(subject, data)
}

// Close flushes pending events and closes the connection.
func (p *NatsPublisher) Close() {
	if err := p.conn.Drain(); err != nil {
		p.conn.Close()
	}
}

// Nop drops every event; used when no NATS server is configured.
type Nop struct{}

var _ core.EventPublisher = (*Nop)(nil)

func (*Nop) Publish(context.Context, string, interface{}) error { return nil }
