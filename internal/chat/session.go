package chat

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/openclaw/console/internal/errors"
	"github.com/openclaw/console/internal/interfaces"
	"github.com/openclaw/console/internal/logging"
	"github.com/openclaw/console/internal/protocol"
)

// defaultHistoryLimit caps how many history entries a refresh requests
const defaultHistoryLimit = 200

// RunState tracks the lifecycle of the current chat run
type RunState int

const (
	RunIdle RunState = iota
	RunSending
	RunStreaming
	RunFinalized
	RunErrored
	RunAborted
)

// String returns a human-readable run state name
func (s RunState) String() string {
	switch s {
	case RunIdle:
		return "idle"
	case RunSending:
		return "sending"
	case RunStreaming:
		return "streaming"
	case RunFinalized:
		return "finalized"
	case RunErrored:
		return "errored"
	case RunAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// abortSentinels are inputs treated as abort commands rather than messages
var abortSentinels = map[string]bool{
	"/stop": true,
	"stop":  true,
	"abort": true,
}

// Session owns the conversation state for one gateway session: the visible
// transcript, the in-flight run, its streamed text, and the notice log. All
// state is guarded by the session mutex; event handling and user actions may
// arrive from different goroutines.
type Session struct {
	gw     interfaces.Requester
	logger *logging.Logger

	mu           sync.Mutex
	sessionKey   string
	runID        string
	stream       string
	state        RunState
	messages     []Message
	loading      bool
	notices      NoticeLog
	onChange     func()
	historyLimit int
}

// NewSession creates a session bound to a gateway session key
func NewSession(gw interfaces.Requester, sessionKey string, logger *logging.Logger) *Session {
	if logger == nil {
		logger = logging.GetChatLogger()
	}
	return &Session{
		gw:           gw,
		logger:       logger,
		sessionKey:   sessionKey,
		state:        RunIdle,
		historyLimit: defaultHistoryLimit,
	}
}

// OnChange registers the hook fired after every observable state change.
// The hook may be called from the session's internal goroutines.
func (s *Session) OnChange(hook func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onChange = hook
}

// SessionKey returns the bound gateway session key
func (s *Session) SessionKey() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionKey
}

// SetSessionKey rebinds the session to a different gateway session,
// discarding the transcript and any in-flight run state.
func (s *Session) SetSessionKey(key string) {
	s.mu.Lock()
	s.sessionKey = key
	s.messages = nil
	s.clearRunLocked(RunIdle)
	s.mu.Unlock()
	s.changed()
}

// Transcript returns a copy of the visible conversation
func (s *Session) Transcript() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// StreamText returns the partial assistant text of the active run
func (s *Session) StreamText() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stream
}

// State returns the current run state
func (s *Session) State() RunState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Busy reports whether a run is in flight
func (s *Session) Busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == RunSending || s.state == RunStreaming
}

// Loading reports whether a history refresh is in flight
func (s *Session) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

// Notices returns the retained system notices, oldest first
func (s *Session) Notices() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.notices.All()
}

// Notify records a system notice in the session's notice log
func (s *Session) Notify(text string) {
	s.mu.Lock()
	s.notices.Add(text)
	s.mu.Unlock()
	s.changed()
}

// Send submits user input. Abort sentinels ("/stop", "stop", "abort",
// case-insensitive) abort the active run instead of being delivered. The
// user message is appended to the transcript optimistically; a send failure
// clears the provisional run and surfaces a notice, leaving the history
// refresh to reconcile the transcript.
func (s *Session) Send(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if abortSentinels[strings.ToLower(text)] {
		return s.Abort(ctx)
	}

	// The idempotency key doubles as the provisional run id: the gateway
	// addresses chat events by it until the chat.send response names the
	// canonical run.
	provisional := uuid.NewString()

	s.mu.Lock()
	sessionKey := s.sessionKey
	s.messages = append(s.messages, Message{
		Role:      "user",
		Text:      text,
		Timestamp: time.Now(),
	})
	s.runID = provisional
	s.stream = ""
	s.state = RunSending
	s.mu.Unlock()
	s.changed()

	params := protocol.ChatSendParams{
		SessionKey:     sessionKey,
		Message:        text,
		Deliver:        false,
		IdempotencyKey: provisional,
	}
	payload, err := s.gw.Request(ctx, protocol.MethodChatSend, params)
	if err != nil {
		s.mu.Lock()
		if s.runID == provisional {
			s.clearRunLocked(RunErrored)
		}
		s.notices.Add("send failed: " + errors.UserMessage(err))
		s.mu.Unlock()
		s.changed()
		return err
	}

	var result protocol.ChatSendResult
	if uerr := json.Unmarshal(payload, &result); uerr == nil && result.RunID != "" {
		// Adopt the gateway's run id unless events already moved the
		// session past this run.
		s.mu.Lock()
		if s.runID == provisional {
			s.runID = result.RunID
		}
		s.mu.Unlock()
	}
	return nil
}

// Abort cancels the active run. The local run state is cleared immediately;
// the chat.abort request is best-effort and its failure is only logged.
func (s *Session) Abort(ctx context.Context) error {
	s.mu.Lock()
	sessionKey := s.sessionKey
	runID := s.runID
	active := s.state == RunSending || s.state == RunStreaming
	if active {
		s.notices.Add("run aborted")
		s.clearRunLocked(RunAborted)
	}
	s.mu.Unlock()
	if !active {
		return nil
	}
	s.changed()

	params := protocol.ChatAbortParams{SessionKey: sessionKey}
	if _, err := s.gw.Request(ctx, protocol.MethodChatAbort, params); err != nil {
		s.logger.Warn("Abort request failed", "run_id", runID, "error", err.Error())
	}
	return nil
}

// HandleConnected resets any stale run left over from a previous connection
// and bootstraps the transcript from gateway history.
func (s *Session) HandleConnected() {
	s.mu.Lock()
	s.clearRunLocked(RunIdle)
	s.mu.Unlock()
	s.changed()
	go s.RefreshHistory(context.Background())
}

// HandleEvent consumes one chat push event. Events for other sessions are
// dropped. Events for a superseded run are dropped too, except a final,
// which is always honored: the transcript refresh it triggers is how the
// session converges after missed or out-of-order streams.
func (s *Session) HandleEvent(payload json.RawMessage) {
	var ev protocol.ChatEventPayload
	if err := json.Unmarshal(payload, &ev); err != nil {
		s.logger.LogFrameDropped(protocol.EventChat, err)
		return
	}

	s.mu.Lock()
	if ev.SessionKey != s.sessionKey {
		s.mu.Unlock()
		return
	}
	if !s.acceptsRunLocked(ev.RunID, ev.State) {
		s.mu.Unlock()
		return
	}

	switch ev.State {
	case protocol.ChatStateDelta:
		s.applyDeltaLocked(ev)
	case protocol.ChatStateFinal:
		// The stream is discarded: the history refetch below is the
		// authoritative transcript.
		s.clearRunLocked(RunFinalized)
		s.mu.Unlock()
		s.changed()
		go s.RefreshHistory(context.Background())
		return
	case protocol.ChatStateError:
		msg := ev.ErrorMessage
		if msg == "" {
			msg = "run failed"
		}
		s.notices.Add(msg)
		s.clearRunLocked(RunErrored)
	case protocol.ChatStateAborted:
		s.notices.Add("run aborted")
		s.clearRunLocked(RunAborted)
	default:
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()
	s.changed()
}

// acceptsRunLocked applies the stale-run policy: events must match the
// active run, but a final is accepted regardless. Caller holds mu.
func (s *Session) acceptsRunLocked(runID, state string) bool {
	if state == protocol.ChatStateFinal {
		return true
	}
	return s.runID != "" && runID == s.runID
}

// applyDeltaLocked merges a streamed snapshot. Snapshots are cumulative, so
// a shorter text than the current one is a stale reordering and is dropped.
// Caller holds mu.
func (s *Session) applyDeltaLocked(ev protocol.ChatEventPayload) {
	text := ExtractText(ev.Message)
	if len(text) < len(s.stream) {
		return
	}
	s.stream = text
	s.state = RunStreaming
}

// RefreshHistory reloads the transcript from gateway history, replacing the
// local view. At most one refresh runs at a time.
func (s *Session) RefreshHistory(ctx context.Context) {
	s.mu.Lock()
	if s.loading {
		s.mu.Unlock()
		return
	}
	s.loading = true
	sessionKey := s.sessionKey
	limit := s.historyLimit
	s.mu.Unlock()
	s.changed()

	params := protocol.ChatHistoryParams{SessionKey: sessionKey, Limit: limit}
	payload, err := s.gw.Request(ctx, protocol.MethodChatHistory, params)

	s.mu.Lock()
	s.loading = false
	if err != nil {
		s.notices.Add("history load failed: " + errors.UserMessage(err))
		s.mu.Unlock()
		s.changed()
		return
	}
	var result protocol.ChatHistoryResult
	if uerr := json.Unmarshal(payload, &result); uerr != nil {
		s.logger.Error("Malformed history payload", "error", uerr.Error())
		s.mu.Unlock()
		s.changed()
		return
	}
	if s.sessionKey == sessionKey {
		s.messages = FilterTranscript(result.Messages)
	}
	s.mu.Unlock()
	s.changed()
}

// clearRunLocked ends the active run, leaving the terminal state visible.
// Caller holds mu.
func (s *Session) clearRunLocked(terminal RunState) {
	s.runID = ""
	s.stream = ""
	s.state = terminal
}

// changed fires the change hook if one is registered
func (s *Session) changed() {
	s.mu.Lock()
	hook := s.onChange
	s.mu.Unlock()
	if hook != nil {
		hook()
	}
}
