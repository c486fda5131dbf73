package fuerte

import (
	"crypto/tls"
	"time"
)

// Protocol identifies which wire protocol a Connection speaks.
type Protocol int

const (
	ProtocolHTTP Protocol = iota
	ProtocolVST
)

func (p Protocol) String() string {
	if p == ProtocolVST {
		return "vst"
	}
	return "http"
}

// AuthenticationType selects how a Connection authenticates, per spec §3.
type AuthenticationType int

const (
	AuthNone AuthenticationType = iota
	AuthBasic
	AuthJWT
)

// VSTVersion selects the chunk header layout a VST Connection uses
// (spec §4.5, §9).
type VSTVersion int

const (
	VST1_0 VSTVersion = iota
	VST1_1
)

// ConnectionFailureCallback is invoked once per transport-level failure that
// is not tied to a single in-flight request (spec §7.1).
type ConnectionFailureCallback func(errorCode ErrorCondition, message string)

// ConnectionConfiguration is immutable after ConnectionBuilder.Build, per
// spec §3.
type ConnectionConfiguration struct {
	Host      string
	Port      string
	Protocol  Protocol
	UseTLS    bool
	TLSConfig *tls.Config

	AuthenticationType AuthenticationType
	User               string
	Password           string
	JWTToken           string

	VSTVersion   VSTVersion
	MaxChunkSize uint32

	OnFailure ConnectionFailureCallback

	// ConnectTimeout bounds resolve+dial+TLS-handshake as one deadline.
	// Implements the "TODO wait for connect timeout" the original leaves
	// unfinished (spec §9; SPEC_FULL §5).
	ConnectTimeout time.Duration

	// MaxReconnectFailures is the number of consecutive reconnect failures
	// the circuit breaker tolerates before declaring the connection
	// permanently failed (SPEC_FULL §2, §5).
	MaxReconnectFailures uint32

	// WriteQueueCapacity bounds the write queue (spec §4.4: capacity 1024).
	WriteQueueCapacity int
}

const (
	defaultPort                = "8529"
	defaultMaxChunkSize         = 30000
	defaultConnectTimeout       = 10 * time.Second
	defaultMaxReconnectFailures = 5
	defaultWriteQueueCapacity   = 1024
)
