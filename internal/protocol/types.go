// This file defines the typed parameter and payload shapes for the gateway
// methods and events the console exchanges.
package protocol

import "encoding/json"

// Methods invoked by the console
const (
	MethodConnect      = "connect"
	MethodChatHistory  = "chat.history"
	MethodChatSend     = "chat.send"
	MethodChatAbort    = "chat.abort"
	MethodStatus       = "status"
	MethodSessionsList = "sessions.list"
)

// Events pushed by the gateway
const (
	EventConnectChallenge = "connect.challenge"
	EventChat             = "chat"
)

// Chat event lifecycle states
const (
	ChatStateDelta   = "delta"
	ChatStateFinal   = "final"
	ChatStateError   = "error"
	ChatStateAborted = "aborted"
)

// ChallengePayload is the connect.challenge event payload
type ChallengePayload struct {
	Nonce string `json:"nonce"`
	TS    int64  `json:"ts,omitempty"`
}

// ClientInfo identifies this client in the connect handshake
type ClientInfo struct {
	ID       string `json:"id"`
	Version  string `json:"version"`
	Platform string `json:"platform"`
	Mode     string `json:"mode"`
}

// AuthParams carries the auth credential in the connect handshake
type AuthParams struct {
	Token string `json:"token,omitempty"`
}

// ConnectParams is the connect request body
type ConnectParams struct {
	MinProtocol int        `json:"minProtocol"`
	MaxProtocol int        `json:"maxProtocol"`
	Client      ClientInfo `json:"client"`
	Role        string     `json:"role"`
	Scopes      []string   `json:"scopes"`
	Caps        []string   `json:"caps"`
	Auth        AuthParams `json:"auth"`
	UserAgent   string     `json:"userAgent,omitempty"`
	Locale      string     `json:"locale,omitempty"`
}

// ChatSendParams is the chat.send request body
type ChatSendParams struct {
	SessionKey     string `json:"sessionKey"`
	Message        string `json:"message"`
	Deliver        bool   `json:"deliver"`
	IdempotencyKey string `json:"idempotencyKey"`
}

// ChatSendResult is the chat.send response payload. RunID, when present, is
// the canonical run identifier replacing the client-side idempotency key.
type ChatSendResult struct {
	RunID string `json:"runId,omitempty"`
}

// ChatEventPayload is the chat event payload streamed during a run
type ChatEventPayload struct {
	SessionKey   string          `json:"sessionKey,omitempty"`
	RunID        string          `json:"runId,omitempty"`
	State        string          `json:"state"`
	Message      json.RawMessage `json:"message,omitempty"`
	ErrorMessage string          `json:"errorMessage,omitempty"`
}

// ChatHistoryParams is the chat.history request body
type ChatHistoryParams struct {
	SessionKey string `json:"sessionKey"`
	Limit      int    `json:"limit"`
}

// ChatHistoryResult is the chat.history response payload. Messages are kept
// raw: the chat layer owns role envelope parsing and text extraction.
type ChatHistoryResult struct {
	Messages []json.RawMessage `json:"messages"`
}

// ChatAbortParams is the chat.abort request body. The gateway aborts
// whatever run is active for the session; runs are not addressed here.
type ChatAbortParams struct {
	SessionKey string `json:"sessionKey"`
}

// StatusResult is the status response payload. Uptime is in seconds.
type StatusResult struct {
	Hostname string `json:"hostname,omitempty"`
	Uptime   int64  `json:"uptime,omitempty"`
	Model    string `json:"model,omitempty"`
	Sessions int    `json:"sessions,omitempty"`
}

// SessionInfo describes one gateway session in a sessions.list response.
// Older gateways report the key under "sessionKey" rather than "key".
type SessionInfo struct {
	Key           string `json:"key,omitempty"`
	SessionKey    string `json:"sessionKey,omitempty"`
	Model         string `json:"model,omitempty"`
	ContextTokens int    `json:"contextTokens,omitempty"`
	Active        bool   `json:"active,omitempty"`
}

// Name returns the session key regardless of which field the gateway used
func (s SessionInfo) Name() string {
	if s.Key != "" {
		return s.Key
	}
	return s.SessionKey
}

// SessionsResult is the sessions.list response payload
type SessionsResult struct {
	Sessions []SessionInfo `json:"sessions"`
}
