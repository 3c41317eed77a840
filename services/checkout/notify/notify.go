package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"jewelstore/observability"
)

// EventType names an order lifecycle transition.
type EventType string

const (
	EventOrderCreated  EventType = "order.created"
	EventOrderVerified EventType = "order.verified"
	EventOrderPaid     EventType = "order.paid"
	EventOrderFailed   EventType = "order.failed"
)

// Event is the JSON document published for every lifecycle transition.
type Event struct {
	ID         string    `json:"id"`
	Type       EventType `json:"type"`
	OrderID    string    `json:"orderId"`
	PaymentID  string    `json:"paymentId,omitempty"`
	Receipt    string    `json:"receipt,omitempty"`
	Amount     int64     `json:"amount,omitempty"`
	Currency   string    `json:"currency,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	Source     string    `json:"source"`
	OccurredAt time.Time `json:"occurredAt"`
}

// Publisher delivers lifecycle events to downstream consumers such as fulfilment.
type Publisher interface {
	Publish(ctx context.Context, evt Event) error
	Close() error
}

type natsConn interface {
	Publish(subject string, data []byte) error
	Drain() error
}

// NATSPublisher publishes events as JSON to <prefix>.<event type>.
type NATSPublisher struct {
	conn   natsConn
	prefix string
}

// ConnectNATS dials the server at url. The connection keeps retrying in the background
// so a NATS outage at startup does not block checkout.
func ConnectNATS(url, prefix, clientName string, connectWait time.Duration) (*NATSPublisher, error) {
	if strings.TrimSpace(url) == "" {
		return nil, errors.New("nats url required")
	}
	if connectWait <= 0 {
		connectWait = 2 * time.Second
	}
	conn, err := nats.Connect(url,
		nats.Name(clientName),
		nats.Timeout(connectWait),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return newNATSPublisher(conn, prefix), nil
}

func newNATSPublisher(conn natsConn, prefix string) *NATSPublisher {
	return &NATSPublisher{conn: conn, prefix: strings.Trim(strings.TrimSpace(prefix), ".")}
}

// Subject returns the subject an event type is published on.
func (p *NATSPublisher) Subject(t EventType) string {
	if p.prefix == "" {
		return string(t)
	}
	return p.prefix + "." + string(t)
}

func (p *NATSPublisher) Publish(ctx context.Context, evt Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	payload, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if err := p.conn.Publish(p.Subject(evt.Type), payload); err != nil {
		return fmt.Errorf("publish %s: %w", evt.Type, err)
	}
	return nil
}

// Close drains pending messages before closing the connection.
func (p *NATSPublisher) Close() error {
	return p.conn.Drain()
}

// Nop discards every event. It is used when no broker is configured.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
func (Nop) Close() error                         { return nil }

// Recorder keeps published events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
	Err    error
}

func (r *Recorder) Publish(_ context.Context, evt Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	r.events = append(r.events, evt)
	return nil
}

func (r *Recorder) Close() error { return nil }

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Notifier stamps and publishes events. Publish failures are logged and counted but never
// returned, so a broker outage cannot fail a checkout request.
type Notifier struct {
	publisher Publisher
	logger    *slog.Logger
	now       func() time.Time
}

func NewNotifier(publisher Publisher, logger *slog.Logger) *Notifier {
	if publisher == nil {
		publisher = Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{publisher: publisher, logger: logger, now: func() time.Time { return time.Now().UTC() }}
}

func (n *Notifier) Notify(ctx context.Context, evt Event) {
	if evt.ID == "" {
		evt.ID = uuid.NewString()
	}
	if evt.OccurredAt.IsZero() {
		evt.OccurredAt = n.now()
	}
	err := n.publisher.Publish(ctx, evt)
	observability.Events().RecordPublish(string(evt.Type), err)
	if err != nil {
		n.logger.Warn("publish order event failed",
			slog.String("event", string(evt.Type)),
			slog.String("order_id", evt.OrderID),
			slog.Any("error", err))
	}
}

func (n *Notifier) Close() error {
	return n.publisher.Close()
}
