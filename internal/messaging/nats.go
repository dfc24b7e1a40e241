// Package messaging provides the NATS bridge transport. The chat platform
// bridge publishes platform events on a subject, answers hello requests with
// the bot's directory, and carries out sends and reactions that modbot
// publishes back.
package messaging

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"

	"github.com/whisper/modbot/internal/protocol"
	"github.com/whisper/modbot/internal/transport"
)

// NATS subject suffixes, appended to NATSConfig.Prefix.
const (
	SubjectHello = "hello" // request/reply
	SubjectEvent = "event" // bridge -> bot
	SubjectSend  = "send"  // bot -> bridge
	SubjectReact = "react" // bot -> bridge
)

// helloRetry is the wait between hello requests while no bridge responds.
const helloRetry = time.Second

// NATSConfig holds NATS connection settings.
type NATSConfig struct {
	URL           string        // nats://localhost:4222
	Name          string        // client name for identification
	Token         string        // auth token shared with the bridge
	Prefix        string        // subject prefix, e.g. "bridge"
	ReconnectWait time.Duration // time between reconnect attempts
	MaxReconnects int           // max reconnect attempts (-1 for infinite)
}

// DefaultNATSConfig returns sensible defaults.
func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:           nats.DefaultURL,
		Name:          "modbot",
		Prefix:        "bridge",
		ReconnectWait: 2 * time.Second,
		MaxReconnects: -1, // infinite reconnects
	}
}

// NATSTransport implements transport.Transport over NATS.
type NATSTransport struct {
	conn   *nats.Conn
	prefix string
	log    logrus.FieldLogger

	mu   sync.Mutex
	subs map[string]*nats.Subscription
}

var _ transport.Transport = (*NATSTransport)(nil)

// NewNATSTransport connects to NATS with the given config. It returns an
// error if the initial connection fails.
func NewNATSTransport(config NATSConfig, log logrus.FieldLogger) (*NATSTransport, error) {
	log = log.WithField("component", "nats")
	opts := []nats.Option{
		nats.Name(config.Name),
		nats.ReconnectWait(config.ReconnectWait),
		nats.MaxReconnects(config.MaxReconnects),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.WithError(err).Warn("disconnected")
			} else {
				log.Warn("disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.WithField("url", nc.ConnectedUrl()).Info("reconnected")
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			log.Info("connection closed")
		}),
	}
	if config.Token != "" {
		opts = append(opts, nats.Token(config.Token))
	}

	nc, err := nats.Connect(config.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("messaging: nats connect: %w", err)
	}
	log.WithField("url", nc.ConnectedUrl()).Info("connected")

	prefix := config.Prefix
	if prefix == "" {
		prefix = DefaultNATSConfig().Prefix
	}
	return &NATSTransport{
		conn:   nc,
		prefix: prefix,
		log:    log,
		subs:   make(map[string]*nats.Subscription),
	}, nil
}

func (t *NATSTransport) subject(suffix string) string {
	return t.prefix + "." + suffix
}

// Hello asks the bridge for the directory, retrying while no bridge is
// listening, until ctx expires.
func (t *NATSTransport) Hello(ctx context.Context) (*transport.Directory, error) {
	req, err := protocol.NewMessage(protocol.TypeHello, struct{}{})
	if err != nil {
		return nil, err
	}

	for {
		reqCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		msg, err := t.conn.RequestWithContext(reqCtx, t.subject(SubjectHello), req)
		cancel()
		if err == nil {
			return decodeHello(msg.Data)
		}
		if ctx.Err() != nil {
			return nil, fmt.Errorf("messaging: hello: %w", ctx.Err())
		}
		if !errors.Is(err, nats.ErrNoResponders) && !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, nats.ErrTimeout) {
			return nil, fmt.Errorf("messaging: hello: %w", err)
		}

		t.log.Debug("no bridge answered hello, retrying")
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("messaging: hello: %w", ctx.Err())
		case <-time.After(helloRetry):
		}
	}
}

func decodeHello(data []byte) (*transport.Directory, error) {
	msgType, msg, err := protocol.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("messaging: hello reply: %w", err)
	}
	switch m := msg.(type) {
	case protocol.HelloMsg:
		return m.Directory(), nil
	case protocol.ErrorMsg:
		return nil, fmt.Errorf("messaging: hello rejected: %s: %s", m.Code, m.Message)
	}
	return nil, fmt.Errorf("messaging: hello reply has type %q", msgType)
}

// Run subscribes to bridge events and delivers them to handler until ctx is
// cancelled.
func (t *NATSTransport) Run(ctx context.Context, handler transport.Handler) error {
	subject := t.subject(SubjectEvent)
	sub, err := t.conn.Subscribe(subject, func(msg *nats.Msg) {
		t.deliver(ctx, handler, msg.Data)
	})
	if err != nil {
		return fmt.Errorf("messaging: nats subscribe %s: %w", subject, err)
	}

	t.mu.Lock()
	t.subs[subject] = sub
	t.mu.Unlock()

	<-ctx.Done()
	t.unsubscribe(subject)
	return nil
}

// deliver decodes one event frame. Malformed frames are logged and dropped.
func (t *NATSTransport) deliver(ctx context.Context, handler transport.Handler, data []byte) {
	msgType, msg, err := protocol.Parse(data)
	if err != nil {
		t.log.WithError(err).Warn("dropping malformed frame")
		return
	}
	ev, ok := msg.(protocol.EventMsg)
	if !ok {
		t.log.WithField("type", msgType).Warn("unexpected frame on event subject")
		return
	}
	handler(ctx, ev.Event())
}

// Send publishes a send request to the bridge.
func (t *NATSTransport) Send(_ context.Context, channelID, text string) error {
	data, err := protocol.NewMessage(protocol.TypeSend, protocol.SendMsg{ChannelID: channelID, Text: text})
	if err != nil {
		return err
	}
	if err := t.conn.Publish(t.subject(SubjectSend), data); err != nil {
		return fmt.Errorf("messaging: publish send: %w", err)
	}
	return nil
}

// React publishes a reaction request to the bridge.
func (t *NATSTransport) React(_ context.Context, ref transport.MessageRef, marker transport.Marker) error {
	data, err := protocol.NewMessage(protocol.TypeReact, protocol.ReactMsg{Ref: ref, Marker: marker})
	if err != nil {
		return err
	}
	if err := t.conn.Publish(t.subject(SubjectReact), data); err != nil {
		return fmt.Errorf("messaging: publish react: %w", err)
	}
	return nil
}

// Close drains all active subscriptions and closes the NATS connection.
func (t *NATSTransport) Close() error {
	t.mu.Lock()
	for subject, sub := range t.subs {
		if err := sub.Drain(); err != nil {
			t.log.WithError(err).WithField("subject", subject).Warn("drain failed")
		}
	}
	t.subs = make(map[string]*nats.Subscription)
	t.mu.Unlock()

	if err := t.conn.Drain(); err != nil {
		return fmt.Errorf("messaging: connection drain: %w", err)
	}
	t.log.Info("transport closed")
	return nil
}

// unsubscribe removes and unsubscribes from a specific subject.
func (t *NATSTransport) unsubscribe(subject string) {
	t.mu.Lock()
	sub, ok := t.subs[subject]
	delete(t.subs, subject)
	t.mu.Unlock()
	if !ok {
		return
	}
	if err := sub.Unsubscribe(); err != nil && !errors.Is(err, nats.ErrConnectionClosed) && !errors.Is(err, nats.ErrBadSubscription) {
		t.log.WithError(err).WithField("subject", subject).Warn("unsubscribe failed")
	}
}
