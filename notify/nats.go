// Package notify feeds row change events published on NATS into an
// orm.Registry so that live collections in every process stay in sync.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/mickamy/ormgraph/orm"
)

// Event ops.
const (
	OpInsert = "insert"
	OpDelete = "delete"
)

var (
	ErrNotRunning     = errors.New("notify: bridge not running")
	ErrAlreadyRunning = errors.New("notify: bridge already running")
	ErrUnknownOp      = errors.New("notify: unknown op")
)

// Event is the wire form of one change. Inserts carry Row, deletes carry
// the primary-key values in Key.
type Event struct {
	Op   string         `json:"op"`
	Type string         `json:"type"`
	Row  map[string]any `json:"row,omitempty"`
	Key  []any          `json:"key,omitempty"`
}

// Config configures a Bridge.
type Config struct {
	URL     string
	Subject string
	Queue   string // optional queue group
	Conn    *nats.Conn
	Logger  *zap.Logger
}

// Bridge subscribes to change events and forwards them to a Registry.
type Bridge struct {
	cfg      Config
	registry *orm.Registry
	log      *zap.Logger

	mu       sync.Mutex
	conn     *nats.Conn
	ownsConn bool
	sub      *nats.Subscription
	ctx      context.Context
	cancel   context.CancelFunc
}

// NewBridge returns a Bridge delivering into registry.
func NewBridge(registry *orm.Registry, cfg Config) *Bridge {
	if cfg.URL == "" {
		cfg.URL = nats.DefaultURL
	}
	if cfg.Subject == "" {
		cfg.Subject = "ormgraph.changes"
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Bridge{
		cfg:      cfg,
		registry: registry,
		log:      cfg.Logger.With(zap.String("component", "notify.nats"), zap.String("subject", cfg.Subject)),
	}
}

// Start connects (unless a connection was supplied) and subscribes. Events
// are handled with a context derived from ctx.
func (b *Bridge) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.sub != nil {
		return ErrAlreadyRunning
	}
	if b.conn == nil {
		if b.cfg.Conn != nil {
			b.conn = b.cfg.Conn
		} else {
			conn, err := nats.Connect(b.cfg.URL)
			if err != nil {
				return errors.Wrapf(err, "notify: connect %s", b.cfg.URL)
			}
			b.conn, b.ownsConn = conn, true
		}
	}
	b.ctx, b.cancel = context.WithCancel(ctx)

	var (
		sub *nats.Subscription
		err error
	)
	if b.cfg.Queue != "" {
		sub, err = b.conn.QueueSubscribe(b.cfg.Subject, b.cfg.Queue, b.onMsg)
	} else {
		sub, err = b.conn.Subscribe(b.cfg.Subject, b.onMsg)
	}
	if err != nil {
		b.cancel()
		return errors.Wrapf(err, "notify: subscribe %s", b.cfg.Subject)
	}
	b.sub = sub
	b.log.Info("subscribed")
	return nil
}

// Close drains the subscription and closes an owned connection.
func (b *Bridge) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	var err error
	if b.sub != nil {
		err = b.sub.Drain()
		b.sub = nil
		b.cancel()
	}
	if b.ownsConn && b.conn != nil {
		b.conn.Close()
		b.conn = nil
	}
	return errors.Wrap(err, "notify: drain")
}

// Publish sends ev on the bridge subject.
func (b *Bridge) Publish(ev Event) error {
	b.mu.Lock()
	conn := b.conn
	b.mu.Unlock()
	if conn == nil {
		return ErrNotRunning
	}
	data, err := Encode(ev)
	if err != nil {
		return err
	}
	return errors.Wrap(conn.Publish(b.cfg.Subject, data), "notify: publish")
}

func (b *Bridge) onMsg(msg *nats.Msg) {
	b.mu.Lock()
	ctx := b.ctx
	b.mu.Unlock()
	if err := b.Handle(ctx, msg.Data); err != nil {
		b.log.Warn("change event dropped", zap.Error(err), zap.Int("bytes", len(msg.Data)))
	}
}

// Handle decodes one event and forwards it to the registry.
func (b *Bridge) Handle(ctx context.Context, data []byte) error {
	ev, err := Decode(data)
	if err != nil {
		return err
	}
	switch ev.Op {
	case OpInsert:
		b.log.Debug("insert", zap.String("type", ev.Type))
		return b.registry.NotifyInserted(ctx, ev.Type, orm.RowOf(ev.Row))
	case OpDelete:
		b.log.Debug("delete", zap.String("type", ev.Type), zap.Any("key", ev.Key))
		b.registry.NotifyDeleted(ev.Type, orm.NewKey(ev.Type, ev.Key...))
		return nil
	default:
		return errors.Wrapf(ErrUnknownOp, "%q", ev.Op)
	}
}

// Encode marshals ev.
func Encode(ev Event) ([]byte, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return nil, errors.Wrap(err, "notify: encode")
	}
	return data, nil
}

// Decode unmarshals an event. Integral numbers decode as int64 so that keys
// compare equal to database values.
func Decode(data []byte) (Event, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var ev Event
	if err := dec.Decode(&ev); err != nil {
		return Event{}, errors.Wrap(err, "notify: decode")
	}
	if ev.Type == "" {
		return Event{}, errors.New("notify: event without type")
	}
	for k, v := range ev.Row {
		ev.Row[k] = number(v)
	}
	for i, v := range ev.Key {
		ev.Key[i] = number(v)
	}
	return ev, nil
}

func number(v any) any {
	n, ok := v.(json.Number)
	if !ok {
		return v
	}
	if i, err := n.Int64(); err == nil {
		return i
	}
	if f, err := n.Float64(); err == nil {
		return f
	}
	return n.String()
}
