package fuerte

import (
	"crypto/tls"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"
)

// ConnectionBuilder assembles a ConnectionConfiguration through fluent
// setters and builds a ready-to-use Connection, mirroring the teacher's
// Config-then-New shape (client.go's functional-option Config) rather than
// introducing a config-file/env parsing library (SPEC_FULL §1).
type ConnectionBuilder struct {
	config ConnectionConfiguration
	err    error
}

// NewConnectionBuilder parses endpoint, a URL of the form
// "(http|vst)[s]://host[:port]" (spec §4.6), defaulting the port to 8529
// when omitted. A malformed or unsupported scheme is remembered and
// surfaced by Build/Connect rather than panicking here, matching the
// teacher's pattern of deferring validation errors to the call that needs
// them (server_pool.go's config.NewPool).
func NewConnectionBuilder(endpoint string) *ConnectionBuilder {
	b := &ConnectionBuilder{
		config: ConnectionConfiguration{
			Port:                 defaultPort,
			MaxChunkSize:         defaultMaxChunkSize,
			ConnectTimeout:       defaultConnectTimeout,
			MaxReconnectFailures: defaultMaxReconnectFailures,
			WriteQueueCapacity:   defaultWriteQueueCapacity,
		},
	}

	u, err := url.Parse(endpoint)
	if err != nil {
		b.err = WrapError(ConnectionError, "invalid endpoint URL", err)
		return b
	}

	scheme := strings.ToLower(u.Scheme)
	switch scheme {
	case "http":
		b.config.Protocol = ProtocolHTTP
	case "https":
		b.config.Protocol = ProtocolHTTP
		b.config.UseTLS = true
	case "vst":
		b.config.Protocol = ProtocolVST
	case "vsts":
		b.config.Protocol = ProtocolVST
		b.config.UseTLS = true
	default:
		b.err = ErrInvalidURL
		return b
	}

	host := u.Hostname()
	if host == "" {
		b.err = ErrInvalidURL
		return b
	}
	b.config.Host = host

	if port := u.Port(); port != "" {
		b.config.Port = port
	}

	return b
}

func (b *ConnectionBuilder) Auth(user, password string) *ConnectionBuilder {
	b.config.AuthenticationType = AuthBasic
	b.config.User = user
	b.config.Password = password
	return b
}

func (b *ConnectionBuilder) JWTAuth(token string) *ConnectionBuilder {
	b.config.AuthenticationType = AuthJWT
	b.config.JWTToken = token
	return b
}

func (b *ConnectionBuilder) TLSConfig(cfg *tls.Config) *ConnectionBuilder {
	b.config.TLSConfig = cfg
	return b
}

func (b *ConnectionBuilder) VSTVersion(v VSTVersion) *ConnectionBuilder {
	b.config.VSTVersion = v
	return b
}

func (b *ConnectionBuilder) MaxChunkSize(n uint32) *ConnectionBuilder {
	b.config.MaxChunkSize = n
	return b
}

func (b *ConnectionBuilder) ConnectTimeout(d time.Duration) *ConnectionBuilder {
	b.config.ConnectTimeout = d
	return b
}

func (b *ConnectionBuilder) MaxReconnectFailures(n uint32) *ConnectionBuilder {
	b.config.MaxReconnectFailures = n
	return b
}

func (b *ConnectionBuilder) WriteQueueCapacity(n int) *ConnectionBuilder {
	b.config.WriteQueueCapacity = n
	return b
}

func (b *ConnectionBuilder) OnFailure(cb ConnectionFailureCallback) *ConnectionBuilder {
	b.config.OnFailure = cb
	return b
}

// Build validates the accumulated configuration and constructs a Connection
// with the right driver wired in, without starting it. A returned error here
// is the "invalid configuration caught at Build time" half of the permanent
// failure semantics (SPEC_FULL §5).
func (b *ConnectionBuilder) Build() (*Connection, error) {
	if b.err != nil {
		return nil, b.err
	}
	if b.config.Host == "" {
		return nil, ErrInvalidURL
	}
	if _, _, err := net.SplitHostPort(net.JoinHostPort(b.config.Host, b.config.Port)); err != nil {
		return nil, WrapError(ConnectionError, "invalid host/port", err)
	}
	if b.config.AuthenticationType == AuthBasic && b.config.User == "" {
		return nil, NewError(ConnectionError, "basic auth requires a user")
	}
	if b.config.AuthenticationType == AuthJWT && b.config.JWTToken == "" {
		return nil, NewError(ConnectionError, "jwt auth requires a token")
	}

	switch b.config.Protocol {
	case ProtocolHTTP:
		return newHTTPConnection(b.config), nil
	case ProtocolVST:
		return newVSTConnection(b.config), nil
	default:
		return nil, fmt.Errorf("unsupported protocol %v", b.config.Protocol)
	}
}

// Connect builds the Connection and starts its resolve/connect/handshake
// loop (spec §4.1, §4.6 "synchronous façade" convenience).
func (b *ConnectionBuilder) Connect() (*Connection, error) {
	c, err := b.Build()
	if err != nil {
		return nil, err
	}
	c.start()
	return c, nil
}
