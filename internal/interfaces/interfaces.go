// Package interfaces defines the core types and interfaces shared across the
// OpenClaw Console. Components depend on these interfaces rather than on each
// other's concrete implementations, which keeps the gateway engine, the chat
// session, and the presentation layer independently testable.
package interfaces

import (
	"context"
	"encoding/json"
)

// Profile represents a complete configuration profile for connecting to a gateway
type Profile struct {
	Name       string `yaml:"name"`
	GatewayURL string `yaml:"gateway_url"`
	Token      string `yaml:"token,omitempty"`
	SessionKey string `yaml:"session_key"`
	Theme      string `yaml:"theme"`
}

// Theme represents visual styling configuration for the console
type Theme struct {
	Name    string `yaml:"name"`
	Success string `yaml:"success"`
	Error   string `yaml:"error"`
	Warning string `yaml:"warning"`
	Info    string `yaml:"info"`
}

// ConnectionState describes the gateway connection lifecycle. The state owned
// by the gateway client is the only source of truth for whether requests may
// be sent.
type ConnectionState int

const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateConnected
	StateReconnecting
)

// String returns the string representation of the connection state
func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	default:
		return "unknown"
	}
}

// Requester issues a single request/response exchange against the gateway.
// The chat session depends on this one-method view of the gateway client.
type Requester interface {
	// Request sends a request frame and waits for the matching response,
	// the per-request timeout, or context cancellation, whichever wins.
	Request(ctx context.Context, method string, params any) (json.RawMessage, error)
}

// GatewayClient is the full connection engine contract: lifecycle management,
// request correlation, and push-event subscription.
type GatewayClient interface {
	Requester

	// Connect begins establishing the gateway connection. It is a no-op when
	// a connection attempt is already in flight or established, and fails
	// synchronously when no auth credential is configured.
	Connect() error

	// Close tears the connection down deliberately: no reconnect is
	// scheduled and all pending requests are failed immediately.
	Close() error

	// Reset performs a deliberate teardown followed by a fresh Connect,
	// used after configuration changes.
	Reset() error

	// State reports the current connection state.
	State() ConnectionState

	// Handle registers a handler for a named push event. Handlers run on the
	// read loop, in frame arrival order.
	Handle(event string, handler func(payload json.RawMessage))

	// OnStateChange registers a hook invoked on every state transition.
	OnStateChange(hook func(state ConnectionState))

	// OnNotice registers a hook for short human-readable connection notices.
	OnNotice(hook func(text string))
}

// ConfigManager handles profile and theme persistence
type ConfigManager interface {
	// LoadProfile retrieves a profile by name from the configuration file
	LoadProfile(name string) (*Profile, error)

	// SaveProfile persists a profile to the configuration file
	SaveProfile(profile *Profile) error

	// ListProfiles returns all available profile names
	ListProfiles() ([]string, error)

	// DeleteProfile removes a profile from the configuration
	DeleteProfile(name string) error

	// LoadTheme retrieves theme configuration by name
	LoadTheme(name string) (*Theme, error)

	// ValidateProfile ensures a profile has all required fields
	ValidateProfile(profile *Profile) error

	// GetConfigPath returns the path to the configuration file
	GetConfigPath() string
}

// AuthManager handles credential validation and redaction
type AuthManager interface {
	// ValidateToken verifies the format of a gateway auth token
	ValidateToken(token string) error

	// Redact returns a form of the token safe to include in logs
	Redact(token string) string
}
