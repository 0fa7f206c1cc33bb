package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/gophyn/phynbridge/internal/infrastructure/config"
	"github.com/gophyn/phynbridge/internal/infrastructure/eventloop"
	"github.com/gophyn/phynbridge/internal/infrastructure/logging"
)

// subscribeQoS is the QoS level for device update subscriptions.
// Updates are state snapshots; at-most-once per socket is enough.
const subscribeQoS = 0

// keepaliveResolveTimeout bounds the control-plane call made by the
// keepalive refresh.
const keepaliveResolveTimeout = 30 * time.Second

// EndpointResolver supplies the current broker host and connection path.
// It is consulted before the initial connect and before every reconnect
// attempt, because the endpoint may rotate.
type EndpointResolver interface {
	Resolve(ctx context.Context) (host, path string, err error)
}

// Deps holds the dependencies required by the session.
type Deps struct {
	Broker   config.BrokerConfig
	Session  config.SessionConfig
	Logger   *logging.Logger
	Resolver EndpointResolver

	// Transport overrides the production MQTT-over-WSS transport.
	// Leave nil outside tests.
	Transport Transport
}

// Session maintains the persistent publish/subscribe session to the
// broker.
//
// It owns connect, disconnect, reconnect-with-backoff, subscription
// bookkeeping and handler dispatch. All session state lives on a single
// scheduler loop: transport callbacks are serialised onto it by the
// Adapter, so no state is ever mutated concurrently.
//
// Lifecycle: a Session is created once and lives until Disconnect, which
// is terminal.
type Session struct {
	logger    *logging.Logger
	loop      *eventloop.Loop
	adapter   *Adapter
	resolver  EndpointResolver
	transport Transport
	registry  *Registry
	keepalive *eventloop.Timer

	port              int
	backoff           time.Duration
	keepaliveInterval time.Duration

	// ctx is the session lifetime; cancelled on Disconnect.
	ctx    context.Context
	cancel context.CancelFunc

	// connectedFlag mirrors the loop-confined connected state for cheap
	// reads from any goroutine.
	connectedFlag atomic.Bool

	// State below is loop-confined: only functions posted to the loop
	// touch it, so it needs no locking.
	host            string
	connected       bool
	connectCh       chan struct{}
	pendingAcks     map[uint16]string
	topics          map[string]struct{}
	reconnecting    bool
	cancelReconnect context.CancelFunc
	disconnectCh    chan struct{}
	closed          bool
}

// New creates a Session.
//
// The session starts in the disconnected state; call Connect to bring it
// up and Disconnect to tear it down permanently.
//
// Parameters:
//   - deps: Required dependencies (config, logger, resolver)
//
// Returns:
//   - *Session: Session ready for Connect
func New(deps Deps) *Session {
	logger := deps.Logger.Component("bridge")
	loop := eventloop.New()

	port := deps.Broker.Port
	if port == 0 {
		port = 443
	}
	backoff := time.Duration(deps.Session.ReconnectBackoff) * time.Second
	if backoff <= 0 {
		backoff = 2 * time.Second
	}
	keepaliveInterval := time.Duration(deps.Session.KeepaliveInterval) * time.Second
	if keepaliveInterval <= 0 {
		keepaliveInterval = time.Hour
	}
	housekeepInterval := time.Duration(deps.Session.HousekeepInterval) * time.Second

	s := &Session{
		logger:            logger,
		loop:              loop,
		adapter:           NewAdapter(loop, housekeepInterval, logger),
		resolver:          deps.Resolver,
		registry:          NewRegistry(),
		port:              port,
		backoff:           backoff,
		keepaliveInterval: keepaliveInterval,
		connectCh:         make(chan struct{}),
		pendingAcks:       make(map[uint16]string),
		topics:            make(map[string]struct{}),
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.keepalive = eventloop.NewTimer(s.keepaliveRefresh)

	transport := deps.Transport
	if transport == nil {
		transport = NewPahoTransport(deps.Broker.ClientID)
	}
	s.transport = transport
	transport.Bind(s.adapter.Bind(transport, TransportEvents{
		OnConnack:      s.handleConnack,
		OnDisconnect:   s.handleDisconnect,
		OnSubscribeAck: s.handleSubscribeAck,
		OnMessage:      s.handleMessage,
	}))

	return s
}

// AddHandler registers an application callback for an event category.
//
// Registration is idempotent per function.
func (s *Session) AddHandler(event Event, handler Handler) error {
	return s.registry.Add(event, handler)
}

// Connect resolves the broker endpoint and establishes the connection.
//
// The blocking dial runs off the scheduler loop. Connect returns once
// the transport-level handshake completes; the broker's connect
// acknowledgment is processed asynchronously and observable via
// WaitConnected, the connect event, or IsConnected.
//
// Parameters:
//   - ctx: Context for timeout/cancellation of the resolve and dial
//
// Returns:
//   - error: Resolver errors (ErrEndpointUnavailable/Malformed wrapped),
//     ErrConnectFailed on dial failure, ErrClosed after Disconnect
func (s *Session) Connect(ctx context.Context) error {
	host, path, err := s.resolver.Resolve(ctx)
	if err != nil {
		return fmt.Errorf("resolving broker endpoint: %w", err)
	}

	if err := s.loop.Run(func() { s.host = host }); err != nil {
		return ErrClosed
	}

	if err := s.transport.Configure(BrokerEndpoint{Host: host, Port: s.port, Path: path}); err != nil {
		return fmt.Errorf("%w: %w", ErrConnectFailed, err)
	}

	s.logger.Info("connecting to broker", "host", host)

	// Offload the blocking dial so the loop keeps running.
	errCh := make(chan error, 1)
	go func() { errCh <- s.transport.Connect() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// WaitConnected blocks until the broker acknowledges the connection or
// the context is cancelled.
func (s *Session) WaitConnected(ctx context.Context) error {
	var ch chan struct{}
	if err := s.loop.Run(func() { ch = s.connectCh }); err != nil {
		return ErrClosed
	}

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Subscribe issues a subscribe request for a topic.
//
// Subscribe does not wait for the broker's acknowledgment; the topic
// joins the confirmed set when the acknowledgment arrives, observable
// via ConfirmedTopics.
//
// Parameters:
//   - topic: Topic to subscribe to
//
// Returns:
//   - error: ErrInvalidTopic, ErrNotConnected, or ErrClosed
func (s *Session) Subscribe(topic string) error {
	if topic == "" {
		return ErrInvalidTopic
	}

	var subErr error
	err := s.loop.Run(func() {
		if s.closed {
			subErr = ErrClosed
			return
		}
		id, err := s.transport.Subscribe(topic, subscribeQoS)
		if err != nil {
			subErr = err
			return
		}
		s.pendingAcks[id] = topic
		s.logger.Info("subscribe requested", "topic", topic, "id", id)
	})
	if err != nil {
		return ErrClosed
	}
	return subErr
}

// Disconnect performs a user-initiated disconnect and awaits its
// confirmation. The session is terminal afterwards: no reconnection is
// attempted and all further operations return ErrClosed.
//
// Parameters:
//   - ctx: Bounds the wait for the disconnect confirmation
//
// Returns:
//   - error: ErrClosed if already disconnected, or the context error
func (s *Session) Disconnect(ctx context.Context) error {
	var (
		ch      chan struct{}
		already bool
	)
	err := s.loop.Run(func() {
		if s.closed {
			already = true
			return
		}
		s.closed = true
		s.keepalive.Cancel()
		if s.cancelReconnect != nil {
			s.cancelReconnect()
		}
		// Pre-arm the signal so the disconnect callback knows this is
		// intentional and must not trigger reconnection.
		s.disconnectCh = make(chan struct{})
		ch = s.disconnectCh
	})
	if err != nil || already {
		return ErrClosed
	}

	s.cancel()
	s.transport.Disconnect()

	select {
	case <-ch:
	case <-ctx.Done():
		return fmt.Errorf("awaiting disconnect confirmation: %w", ctx.Err())
	}

	s.adapter.Close()
	s.loop.Close()
	s.logger.Info("session closed")
	return nil
}

// IsConnected reports whether the broker has acknowledged the current
// connection.
func (s *Session) IsConnected() bool {
	return s.connectedFlag.Load()
}

// Host returns the most recently resolved broker host.
func (s *Session) Host() string {
	var host string
	_ = s.loop.Run(func() { host = s.host })
	return host
}

// ConfirmedTopics returns the topics the broker has acknowledged,
// sorted. Confirmed topics survive transient disconnects; they are
// re-subscribed on every reconnect.
func (s *Session) ConfirmedTopics() []string {
	var topics []string
	_ = s.loop.Run(func() {
		for topic := range s.topics {
			topics = append(topics, topic)
		}
	})
	sort.Strings(topics)
	return topics
}

// =============================================================================
// Transport callbacks (loop-confined)
// =============================================================================

// handleConnack processes the broker's connect acknowledgment.
func (s *Session) handleConnack(code ConnackCode) {
	if code != ConnackAccepted {
		// No automatic retry from this path; only drops trigger the
		// reconnect loop.
		s.logger.Error("broker refused connection",
			"code", int(code),
			"reason", code.String(),
		)
		return
	}

	s.logger.Info("session established", "host", s.host)
	if !s.connected {
		s.connected = true
		s.connectedFlag.Store(true)
		close(s.connectCh)
	}

	// Proactively cycle the connection before credentials expire.
	s.keepalive.Start(s.keepaliveInterval)

	s.dispatch(EventConnect, Update{})
}

// handleDisconnect processes loss of the connection, expected or not.
func (s *Session) handleDisconnect(err error) {
	if err != nil {
		s.logger.Warn("broker connection lost", "error", err)
	} else {
		s.logger.Info("broker connection closed")
	}

	wasConnected := s.connected

	// The keepalive is armed per connection; the next successful
	// connect acknowledgment re-arms it. It must not fire mid-outage.
	s.keepalive.Cancel()

	// In-flight subscribe requests died with the socket.
	if len(s.pendingAcks) > 0 {
		s.logger.Debug("discarding in-flight subscriptions", "count", len(s.pendingAcks))
		s.pendingAcks = make(map[uint16]string)
	}

	switch {
	case s.disconnectCh != nil:
		// User-initiated: confirm and stop. No reconnection.
		close(s.disconnectCh)
		s.disconnectCh = nil
	case wasConnected && !s.reconnecting:
		s.startReconnect()
	}

	s.dispatch(EventDisconnect, Update{})

	// Always clear the connect signal.
	if s.connected {
		s.connected = false
		s.connectedFlag.Store(false)
		s.connectCh = make(chan struct{})
	}
}

// handleSubscribeAck matches a subscribe acknowledgment to its pending
// request and promotes the topic to the confirmed set.
func (s *Session) handleSubscribeAck(id uint16, err error) {
	topic, ok := s.pendingAcks[id]
	if !ok {
		// Non-fatal; can happen when the connection dropped between
		// request and acknowledgment.
		s.logger.Warn("unmatched subscribe acknowledgment", "id", id)
		return
	}
	delete(s.pendingAcks, id)

	if err != nil {
		s.logger.Warn("subscribe failed", "topic", topic, "error", err)
		return
	}

	s.topics[topic] = struct{}{}
	s.logger.Info("subscribed", "topic", topic)
}

// handleMessage decodes an inbound message and fans it out to the update
// handlers.
func (s *Session) handleMessage(topic string, payload []byte) {
	data := make(map[string]any)
	if err := json.Unmarshal(payload, &data); err != nil {
		// Dropped; the session stays healthy.
		s.logger.Warn("dropping undecodable message", "topic", topic, "error", err)
		return
	}

	deviceID, _ := ParseDeviceID(topic)
	s.dispatch(EventUpdate, Update{DeviceID: deviceID, Topic: topic, Data: data})
}

// dispatch fans an event out to its registered handlers without waiting
// for any of them.
func (s *Session) dispatch(event Event, update Update) {
	for _, handler := range s.registry.handlersFor(event) {
		go handler(event, update)
	}
}

// =============================================================================
// Reconnection
// =============================================================================

// startReconnect launches the reconnect loop. Loop-confined; the
// reconnecting flag guarantees at most one loop is in flight.
func (s *Session) startReconnect() {
	s.reconnecting = true
	ctx, cancel := context.WithCancel(s.ctx)
	s.cancelReconnect = cancel

	s.logger.Info("starting reconnect")
	go s.reconnectLoop(ctx)
}

// reconnectLoop runs the retry loop on its own goroutine, then clears
// the reconnecting flag on the scheduler loop. A drop processed between
// a successful recovery and that final task would see the flag still
// set and start nothing, so the task itself restarts recovery when the
// connection is already gone again.
func (s *Session) reconnectLoop(ctx context.Context) {
	recovered := s.runReconnect(ctx)

	_ = s.loop.Run(func() {
		s.reconnecting = false
		s.cancelReconnect = nil
		if recovered && !s.closed && !s.connected {
			s.startReconnect()
		}
	})
}

// runReconnect retries the full recovery sequence until it succeeds or
// is cancelled. Returns true when a recovery attempt completed.
func (s *Session) runReconnect(ctx context.Context) bool {
	var lastErr error
	first := true
	for {
		if !first {
			select {
			case <-ctx.Done():
				s.logger.Info("reconnect cancelled")
				return false
			case <-time.After(s.backoff):
			}
		}
		first = false

		err := s.reconnectOnce(ctx)
		if err == nil {
			s.logger.Info("reconnect complete")
			return true
		}
		if ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, eventloop.ErrClosed) {
			s.logger.Info("reconnect cancelled")
			return false
		}

		// Suppress duplicate consecutive failures in the log.
		if lastErr == nil || err.Error() != lastErr.Error() {
			s.logger.Error("reconnect attempt failed", "error", err)
			lastErr = err
		}
	}
}

// reconnectOnce performs one recovery attempt: re-resolve the endpoint,
// reconnect the transport, wait for the broker's acknowledgment, then
// re-subscribe the confirmed set in parallel.
func (s *Session) reconnectOnce(ctx context.Context) error {
	// The endpoint may have rotated while we were down.
	host, path, err := s.resolver.Resolve(ctx)
	if err != nil {
		return err
	}
	if err := s.loop.Run(func() { s.host = host }); err != nil {
		return err
	}
	if err := s.transport.Configure(BrokerEndpoint{Host: host, Port: s.port, Path: path}); err != nil {
		return err
	}

	if err := s.transport.Reconnect(); err != nil {
		return err
	}

	var ch chan struct{}
	if err := s.loop.Run(func() { ch = s.connectCh }); err != nil {
		return err
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-ch:
	}

	var topics []string
	if err := s.loop.Run(func() {
		for topic := range s.topics {
			topics = append(topics, topic)
		}
	}); err != nil {
		return err
	}

	g := new(errgroup.Group)
	for _, topic := range topics {
		g.Go(func() error { return s.Subscribe(topic) })
	}
	return g.Wait()
}

// keepaliveRefresh is the keepalive timer callback. It refreshes the
// endpoint (and with it the embedded credentials), reconfigures the
// transport, then asks it to disconnect. The disconnect path drives the
// actual reconnection, so proactive refresh and unexpected drops share
// one recovery routine.
func (s *Session) keepaliveRefresh() {
	s.logger.Info("keepalive refresh: cycling broker connection")

	ctx, cancel := context.WithTimeout(s.ctx, keepaliveResolveTimeout)
	defer cancel()

	host, path, err := s.resolver.Resolve(ctx)
	if err != nil {
		s.logger.Error("keepalive refresh failed", "error", err)
		// Keep the cadence; try again next interval.
		s.keepalive.Start(s.keepaliveInterval)
		return
	}
	if err := s.loop.Run(func() { s.host = host }); err != nil {
		return
	}
	if err := s.transport.Configure(BrokerEndpoint{Host: host, Port: s.port, Path: path}); err != nil {
		s.logger.Error("keepalive refresh failed", "error", err)
		return
	}

	s.transport.Disconnect()
}
