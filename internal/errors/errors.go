// Package errors provides typed error handling for the OpenClaw Console.
// Every failure surfaced by the connection engine carries one of a small set
// of error types so that callers can distinguish configuration mistakes from
// transport faults, timeouts, and remote rejections.
package errors

import (
	stderrors "errors"
	"fmt"
	"time"

	"github.com/openclaw/console/internal/logging"
)

// ErrorType categorizes errors for appropriate handling
type ErrorType string

const (
	// ErrorTypeConfiguration marks a missing or invalid local configuration
	// value, such as an absent auth token. Fatal to Connect, surfaced
	// synchronously.
	ErrorTypeConfiguration ErrorType = "configuration"

	// ErrorTypeNotConnected marks a request attempted outside the Connected
	// state. No transport write is performed.
	ErrorTypeNotConnected ErrorType = "not_connected"

	// ErrorTypeTimeout marks a request that received no response within its
	// deadline.
	ErrorTypeTimeout ErrorType = "timeout"

	// ErrorTypeProtocol marks a malformed frame. Logged and dropped, never
	// delivered to a caller.
	ErrorTypeProtocol ErrorType = "protocol"

	// ErrorTypeRemote marks a response the gateway answered with ok:false.
	ErrorTypeRemote ErrorType = "remote"

	// ErrorTypeTransport marks a socket-level failure. Triggers the
	// reconnect cycle.
	ErrorTypeTransport ErrorType = "transport"
)

// ContextualError provides enhanced error information with diagnostic context
type ContextualError struct {
	Type        ErrorType              `json:"type"`
	Message     string                 `json:"message"`
	Component   string                 `json:"component"`
	Operation   string                 `json:"operation,omitempty"`
	Context     map[string]interface{} `json:"context,omitempty"`
	Timestamp   time.Time              `json:"timestamp"`
	Cause       error                  `json:"-"`
	Recoverable bool                   `json:"recoverable"`
}

// Error implements the error interface
func (e *ContextualError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.Component, e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Component, e.Type, e.Message)
}

// Unwrap provides access to the underlying error
func (e *ContextualError) Unwrap() error {
	return e.Cause
}

// UserMessage returns the message without the component/type prefix
func (e *ContextualError) UserMessage() string {
	return e.Message
}

// ErrorBuilder provides a fluent interface for creating contextual errors
type ErrorBuilder struct {
	err    *ContextualError
	logger *logging.Logger
}

// NewErrorBuilder creates a new error builder with default settings
func NewErrorBuilder(errorType ErrorType, component string) *ErrorBuilder {
	return &ErrorBuilder{
		err: &ContextualError{
			Type:        errorType,
			Component:   component,
			Context:     make(map[string]interface{}),
			Timestamp:   time.Now(),
			Recoverable: true,
		},
		logger: logging.GetGlobalLogger().WithComponent(component),
	}
}

// WithMessage sets the error message
func (eb *ErrorBuilder) WithMessage(message string) *ErrorBuilder {
	eb.err.Message = message
	return eb
}

// WithMessagef sets a formatted error message
func (eb *ErrorBuilder) WithMessagef(format string, args ...interface{}) *ErrorBuilder {
	eb.err.Message = fmt.Sprintf(format, args...)
	return eb
}

// WithOperation sets the operation that failed
func (eb *ErrorBuilder) WithOperation(operation string) *ErrorBuilder {
	eb.err.Operation = operation
	return eb
}

// WithCause sets the underlying error that caused this error
func (eb *ErrorBuilder) WithCause(cause error) *ErrorBuilder {
	eb.err.Cause = cause
	return eb
}

// WithContext adds contextual information to the error
func (eb *ErrorBuilder) WithContext(key string, value interface{}) *ErrorBuilder {
	eb.err.Context[key] = value
	return eb
}

// WithRecoverable sets whether the error is recoverable
func (eb *ErrorBuilder) WithRecoverable(recoverable bool) *ErrorBuilder {
	eb.err.Recoverable = recoverable
	return eb
}

// Build creates the contextual error and logs it
func (eb *ErrorBuilder) Build() *ContextualError {
	fields := map[string]interface{}{
		"error_type":  eb.err.Type,
		"operation":   eb.err.Operation,
		"recoverable": eb.err.Recoverable,
	}
	for k, v := range eb.err.Context {
		fields["ctx_"+k] = v
	}

	msg := eb.err.Message
	if eb.err.Cause != nil {
		msg = fmt.Sprintf("%s: %v", eb.err.Message, eb.err.Cause)
	}

	switch eb.err.Type {
	case ErrorTypeProtocol, ErrorTypeNotConnected:
		eb.logger.WithFields(fields).Debug(msg)
	default:
		eb.logger.WithFields(fields).Warn(msg)
	}

	return eb.err
}

// Component-specific error builders

// NewConfigurationError reports a missing or invalid configuration value
func NewConfigurationError(component string) *ErrorBuilder {
	return NewErrorBuilder(ErrorTypeConfiguration, component).WithRecoverable(false)
}

// NewNotConnectedError reports a request attempted without a usable connection
func NewNotConnectedError(component string) *ErrorBuilder {
	return NewErrorBuilder(ErrorTypeNotConnected, component).WithMessage("not connected")
}

// NewTimeoutError reports a request that exceeded its deadline
func NewTimeoutError(component string) *ErrorBuilder {
	return NewErrorBuilder(ErrorTypeTimeout, component).WithMessage("request timeout")
}

// NewProtocolError reports a malformed or unexpected frame
func NewProtocolError(component string) *ErrorBuilder {
	return NewErrorBuilder(ErrorTypeProtocol, component)
}

// NewRemoteError reports an ok:false response from the gateway
func NewRemoteError(component string) *ErrorBuilder {
	return NewErrorBuilder(ErrorTypeRemote, component)
}

// NewTransportError reports a socket-level failure
func NewTransportError(component string) *ErrorBuilder {
	return NewErrorBuilder(ErrorTypeTransport, component)
}

// typeOf extracts the ErrorType from an error chain, or "" when the chain
// contains no ContextualError.
func typeOf(err error) ErrorType {
	var ce *ContextualError
	if stderrors.As(err, &ce) {
		return ce.Type
	}
	return ""
}

// IsConfiguration reports whether err is a configuration error
func IsConfiguration(err error) bool {
	return typeOf(err) == ErrorTypeConfiguration
}

// IsNotConnected reports whether err is a not-connected error
func IsNotConnected(err error) bool {
	return typeOf(err) == ErrorTypeNotConnected
}

// IsTimeout reports whether err is a request timeout
func IsTimeout(err error) bool {
	return typeOf(err) == ErrorTypeTimeout
}

// IsRemote reports whether err is a gateway-supplied failure
func IsRemote(err error) bool {
	return typeOf(err) == ErrorTypeRemote
}

// IsTransport reports whether err is a socket-level failure
func IsTransport(err error) bool {
	return typeOf(err) == ErrorTypeTransport
}

// UserMessage returns a display-ready message for err: the contextual
// user message when available, the raw error text otherwise.
func UserMessage(err error) string {
	var ce *ContextualError
	if stderrors.As(err, &ce) {
		return ce.UserMessage()
	}
	return err.Error()
}
