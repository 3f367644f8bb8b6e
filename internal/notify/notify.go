// Package notify publishes sync status to a message broker. Delivery is best
// effort: failures are logged and the message is dropped.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/bianoble/glance-stream-sync/internal/config"
)

// Exchange is the fanout exchange status records are published to.
const Exchange = "glance-simplestreams-sync-status"

// Phase is the status field of a record.
type Phase string

const (
	PhaseStarted Phase = "Started"
	PhaseSyncing Phase = "Syncing"
	PhaseDone    Phase = "Done"
	PhaseError   Phase = "Error"
)

// Message is the JSON body of a status record.
type Message struct {
	Status    Phase     `json:"status"`
	Message   string    `json:"message"`
	RunID     string    `json:"run_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Conn is an open broker connection with the exchange declared.
type Conn interface {
	Publish(ctx context.Context, msg amqp.Publishing) error
	IsClosed() bool
	Close() error
}

// Dialer opens a Conn.
type Dialer func(ctx context.Context, uri string) (Conn, error)

// Notifier publishes status records. The zero value and a Notifier built
// without a broker are no-ops. It is safe for concurrent use.
type Notifier struct {
	uri    string
	runID  string
	dial   Dialer
	logger *zap.Logger
	now    func() time.Time

	mu   sync.Mutex
	conn Conn
}

// Option configures a Notifier.
type Option func(*Notifier)

// WithDialer replaces the AMQP dialer.
func WithDialer(d Dialer) Option {
	return func(n *Notifier) { n.dial = d }
}

// WithRunID tags every record with id.
func WithRunID(id string) Option {
	return func(n *Notifier) { n.runID = id }
}

// WithClock sets the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(n *Notifier) { n.now = now }
}

// New returns a Notifier for broker. When ok is false the Notifier drops
// everything. No connection is attempted until the first Notify.
func New(broker config.Broker, ok bool, logger *zap.Logger, opts ...Option) *Notifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	n := &Notifier{dial: DialAMQP, logger: logger, now: time.Now}
	if ok {
		n.uri = BrokerURI(broker)
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// BrokerURI renders the AMQP URI for broker. A host without a port gets the
// default AMQP port.
func BrokerURI(b config.Broker) string {
	host, port := b.Host, 5672
	if h, p, err := net.SplitHostPort(b.Host); err == nil {
		if n, err := strconv.Atoi(p); err == nil {
			host, port = h, n
		}
	}
	return amqp.URI{
		Scheme:   "amqp",
		Host:     host,
		Port:     port,
		Username: b.UserID,
		Password: b.Password,
		Vhost:    b.VirtualHost,
	}.String()
}

// Notify publishes one record. It never returns an error.
func (n *Notifier) Notify(ctx context.Context, phase Phase, message string) {
	if n == nil || n.uri == "" {
		return
	}

	body, err := json.Marshal(Message{Status: phase, Message: message, RunID: n.runID, Timestamp: n.now().UTC()})
	if err != nil {
		n.logger.Warn("encoding status message", zap.Error(err))
		return
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	if err := n.connect(ctx); err != nil {
		n.logger.Warn("status broker unavailable; dropping message",
			zap.String("status", string(phase)), zap.Error(err))
		return
	}

	err = n.conn.Publish(ctx, amqp.Publishing{
		ContentType: "application/json",
		Timestamp:   n.now().UTC(),
		MessageId:   n.runID,
		Body:        body,
	})
	if err != nil {
		n.logger.Warn("publishing status message", zap.String("status", string(phase)), zap.Error(err))
		n.dropConn()
	}
}

// Close closes the broker connection if one is open.
func (n *Notifier) Close() {
	if n == nil {
		return
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.dropConn()
}

func (n *Notifier) connect(ctx context.Context) error {
	if n.conn != nil && !n.conn.IsClosed() {
		return nil
	}
	n.dropConn()
	conn, err := n.dial(ctx, n.uri)
	if err != nil {
		return err
	}
	n.conn = conn
	return nil
}

func (n *Notifier) dropConn() {
	if n.conn == nil {
		return
	}
	if err := n.conn.Close(); err != nil {
		n.logger.Debug("closing status broker connection", zap.Error(err))
	}
	n.conn = nil
}

// DialAMQP connects to uri and declares the status exchange.
func DialAMQP(ctx context.Context, uri string) (Conn, error) {
	timeout := 10 * time.Second
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}

	conn, err := amqp.DialConfig(uri, amqp.Config{
		Dial:       amqp.DefaultDial(timeout),
		Properties: amqp.Table{"connection_name": "glance-stream-sync"},
	})
	if err != nil {
		return nil, fmt.Errorf("connecting to broker: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("opening channel: %w", err)
	}

	if err := ch.ExchangeDeclare(Exchange, amqp.ExchangeFanout, true, false, false, false, nil); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("declaring exchange %s: %w", Exchange, err)
	}

	return &amqpConn{conn: conn, ch: ch}, nil
}

type amqpConn struct {
	conn *amqp.Connection
	ch   *amqp.Channel
}

func (c *amqpConn) Publish(ctx context.Context, msg amqp.Publishing) error {
	return c.ch.PublishWithContext(ctx, Exchange, "", false, false, msg)
}

func (c *amqpConn) IsClosed() bool {
	return c.conn.IsClosed() || c.ch.IsClosed()
}

func (c *amqpConn) Close() error {
	return c.conn.Close()
}
