// Package auth implements credential handling for the OpenClaw Console:
// token format validation before a connection attempt and redaction for
// anything that reaches the logs.
package auth

import (
	"strings"

	"github.com/openclaw/console/internal/errors"
	"github.com/openclaw/console/internal/logging"
)

const component = "auth"

// Manager implements the AuthManager interface
type Manager struct {
	logger *logging.Logger
}

// NewManager creates an authentication manager
func NewManager() *Manager {
	return &Manager{logger: logging.GetAuthLogger()}
}

// ValidateToken verifies the format of a gateway auth token. The gateway is
// the authority on token validity; this catches only obviously broken input
// before a connection attempt is made.
func (m *Manager) ValidateToken(token string) error {
	if strings.TrimSpace(token) == "" {
		return errors.NewConfigurationError(component).
			WithOperation("validate_token").
			WithMessage("token required").
			Build()
	}
	if strings.ContainsAny(token, " \t\n\r") {
		return errors.NewConfigurationError(component).
			WithOperation("validate_token").
			WithMessage("token cannot contain whitespace").
			Build()
	}
	return nil
}

// Redact returns a form of the token safe to include in logs
func (m *Manager) Redact(token string) string {
	if token == "" {
		return ""
	}
	if len(token) <= 8 {
		return "[REDACTED]"
	}
	return token[:4] + "…" + token[len(token)-2:]
}
