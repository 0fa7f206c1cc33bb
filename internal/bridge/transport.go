package bridge

import (
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/eclipse/paho.mqtt.golang/packets"
)

// Connection constants.
const (
	// defaultConnectTimeout is the maximum time to wait for the dial and
	// WebSocket/MQTT handshake.
	defaultConnectTimeout = 30 * time.Second

	// defaultDisconnectQuiesce is the time to wait for pending operations
	// on disconnect (milliseconds).
	defaultDisconnectQuiesce = 1000

	// transportKeepAlive is the MQTT-level PINGREQ interval. This is the
	// transport's own heartbeat, independent of the session keepalive
	// timer that cycles credentials.
	transportKeepAlive = 30 * time.Second

	// transportPingTimeout is how long to wait for a PINGRESP.
	transportPingTimeout = 10 * time.Second

	// tlsMinVersion is the minimum TLS version for broker connections.
	tlsMinVersion = tls.VersionTLS12
)

// ConnackCode is the broker's connect acknowledgment return code.
type ConnackCode byte

// CONNACK return codes (MQTT 3.1.1).
const (
	ConnackAccepted           ConnackCode = 0
	ConnackBadProtocolVersion ConnackCode = 1
	ConnackIDRejected         ConnackCode = 2
	ConnackServerUnavailable  ConnackCode = 3
	ConnackBadCredentials     ConnackCode = 4
	ConnackNotAuthorized      ConnackCode = 5
)

// String returns the human-readable reason for the code.
func (c ConnackCode) String() string {
	switch c {
	case ConnackAccepted:
		return "connection accepted"
	case ConnackBadProtocolVersion:
		return "unacceptable protocol version"
	case ConnackIDRejected:
		return "identifier rejected"
	case ConnackServerUnavailable:
		return "server unavailable"
	case ConnackBadCredentials:
		return "bad username or password"
	case ConnackNotAuthorized:
		return "not authorized"
	default:
		return fmt.Sprintf("unknown connack code %d", byte(c))
	}
}

// BrokerEndpoint describes where to reach the broker for one connection.
// Host and Path come from the control plane and may change between
// connections; Port is fixed.
type BrokerEndpoint struct {
	Host string
	Port int
	Path string
}

// TransportEvents is the callback surface a Transport drives.
//
// Callbacks may be invoked from the transport's own goroutines; the
// scheduler adapter forwards them onto the session loop so all session
// state mutation is serialised.
type TransportEvents struct {
	// OnConnack reports the broker's connect acknowledgment, successful
	// or not.
	OnConnack func(code ConnackCode)

	// OnDisconnect reports loss of the connection. err is nil when the
	// disconnect was requested through the transport, non-nil for an
	// unexpected drop.
	OnDisconnect func(err error)

	// OnSubscribeAck reports completion of a subscribe request by its
	// request identifier.
	OnSubscribeAck func(id uint16, err error)

	// OnMessage delivers an inbound message.
	OnMessage func(topic string, payload []byte)
}

// Transport is the underlying publish/subscribe protocol client the
// session drives. Implementations own the wire protocol (framing, QoS
// acknowledgment semantics); the session owns connection policy.
type Transport interface {
	// Bind installs the event callbacks. Must be called once, before
	// Configure or Connect.
	Bind(events TransportEvents)

	// Configure sets the endpoint for subsequent Connect/Reconnect
	// calls. May be called between connections to follow an endpoint
	// rotation.
	Configure(ep BrokerEndpoint) error

	// Connect dials the configured endpoint and performs the handshake.
	// It blocks; run it off the scheduler. The CONNACK outcome is
	// reported via OnConnack.
	Connect() error

	// Reconnect dials the currently configured endpoint again after a
	// connection loss. Blocking, like Connect.
	Reconnect() error

	// Disconnect tears the connection down. Completion is reported via
	// OnDisconnect with a nil error.
	Disconnect()

	// Subscribe issues a subscribe request and returns its request
	// identifier. The acknowledgment arrives via OnSubscribeAck.
	Subscribe(topic string, qos byte) (uint16, error)

	// Housekeep performs the transport's periodic housekeeping. A
	// non-nil return stops the housekeeping loop.
	Housekeep() error

	// IsConnected reports whether the network connection is open.
	IsConnected() bool
}

// pahoTransport implements Transport over MQTT-over-secure-WebSocket
// using the paho client.
//
// The paho library's own reconnect and subscription restoration are
// disabled: the session manager owns that policy, because credentials
// and the broker endpoint must be refreshed before every reconnect.
type pahoTransport struct {
	clientID string
	events   TransportEvents

	mu     sync.Mutex
	opts   *pahomqtt.ClientOptions
	client pahomqtt.Client

	subID atomic.Uint32
}

// NewPahoTransport creates the production transport.
//
// Parameters:
//   - clientID: MQTT client identifier presented to the broker
//
// Returns:
//   - Transport: Unconfigured transport; call Bind then Configure
func NewPahoTransport(clientID string) Transport {
	return &pahoTransport{clientID: clientID}
}

// Bind installs the event callbacks.
func (p *pahoTransport) Bind(events TransportEvents) {
	p.events = events
}

// Configure builds the paho client options for the endpoint.
//
// TLS is always on, the transport is a secure WebSocket, and the Host
// request header is pinned to the resolved broker host.
func (p *pahoTransport) Configure(ep BrokerEndpoint) error {
	if ep.Host == "" || ep.Path == "" {
		return fmt.Errorf("%w: host and path are required", ErrNotConfigured)
	}

	opts := pahomqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("wss://%s:%d%s", ep.Host, ep.Port, ep.Path))
	opts.SetClientID(p.clientID)
	opts.SetTLSConfig(&tls.Config{
		MinVersion: tlsMinVersion,
		ServerName: ep.Host,
	})
	opts.SetHTTPHeaders(http.Header{"Host": []string{ep.Host}})

	// Session policy lives in the session manager, not the library.
	opts.SetAutoReconnect(false)
	opts.SetConnectRetry(false)
	opts.SetResumeSubs(false)
	opts.SetCleanSession(true)

	opts.SetConnectTimeout(defaultConnectTimeout)
	opts.SetKeepAlive(transportKeepAlive)
	opts.SetPingTimeout(transportPingTimeout)

	opts.SetOnConnectHandler(func(_ pahomqtt.Client) {
		p.events.OnConnack(ConnackAccepted)
	})
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		p.events.OnDisconnect(err)
	})
	opts.SetDefaultPublishHandler(func(_ pahomqtt.Client, msg pahomqtt.Message) {
		p.events.OnMessage(msg.Topic(), msg.Payload())
	})

	p.mu.Lock()
	p.opts = opts
	p.mu.Unlock()

	return nil
}

// Connect dials the configured endpoint.
func (p *pahoTransport) Connect() error {
	return p.dial()
}

// Reconnect dials the currently configured endpoint again.
func (p *pahoTransport) Reconnect() error {
	return p.dial()
}

// dial creates a fresh paho client from the current options and
// connects it. A CONNACK refusal is routed through OnConnack, matching
// the callback path an asynchronous refusal would take; only dial-level
// failures are returned.
func (p *pahoTransport) dial() error {
	p.mu.Lock()
	if p.opts == nil {
		p.mu.Unlock()
		return ErrNotConfigured
	}
	client := pahomqtt.NewClient(p.opts)
	p.client = client
	p.mu.Unlock()

	token := client.Connect()
	if !token.WaitTimeout(defaultConnectTimeout) {
		return fmt.Errorf("%w: timeout after %v", ErrConnectFailed, defaultConnectTimeout)
	}
	if err := token.Error(); err != nil {
		if code, ok := connackCodeFromError(err); ok {
			p.events.OnConnack(code)
			return nil
		}
		return fmt.Errorf("%w: %w", ErrConnectFailed, err)
	}
	return nil
}

// connackCodeFromError maps a paho connect error to its CONNACK return
// code, when it is one.
func connackCodeFromError(err error) (ConnackCode, bool) {
	for code, connErr := range packets.ConnErrors {
		if connErr != nil && errors.Is(err, connErr) {
			return ConnackCode(code), true
		}
	}
	return 0, false
}

// Disconnect tears the connection down and reports completion.
//
// The paho library only invokes its connection-lost handler for
// unexpected drops, so transport-initiated disconnects report completion
// directly through OnDisconnect.
func (p *pahoTransport) Disconnect() {
	p.mu.Lock()
	client := p.client
	p.mu.Unlock()

	go func() {
		if client != nil {
			client.Disconnect(defaultDisconnectQuiesce)
		}
		p.events.OnDisconnect(nil)
	}()
}

// Subscribe issues a subscribe request.
//
// The returned identifier correlates the eventual OnSubscribeAck, which
// fires when the broker's SUBACK completes the request.
func (p *pahoTransport) Subscribe(topic string, qos byte) (uint16, error) {
	p.mu.Lock()
	client := p.client
	p.mu.Unlock()

	if client == nil || !client.IsConnectionOpen() {
		return 0, ErrNotConnected
	}

	id := uint16(p.subID.Add(1))
	token := client.Subscribe(topic, qos, nil)
	go func() {
		token.Wait()
		p.events.OnSubscribeAck(id, token.Error())
	}()
	return id, nil
}

// Housekeep checks connection liveness. The paho client runs its own
// ping loop internally, so housekeeping reduces to detecting that the
// connection has gone away.
func (p *pahoTransport) Housekeep() error {
	if !p.IsConnected() {
		return ErrNotConnected
	}
	return nil
}

// IsConnected reports whether the network connection is open.
func (p *pahoTransport) IsConnected() bool {
	p.mu.Lock()
	client := p.client
	p.mu.Unlock()
	return client != nil && client.IsConnectionOpen()
}
