package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openclaw/console/internal/protocol"
)

// fakeRequester records requests and answers them from a scripted table
type fakeRequester struct {
	mu      sync.Mutex
	calls   []recordedCall
	respond map[string]func(params any) (json.RawMessage, error)
}

type recordedCall struct {
	method string
	params any
}

func newFakeRequester() *fakeRequester {
	return &fakeRequester{respond: map[string]func(params any) (json.RawMessage, error){}}
}

func (f *fakeRequester) on(method string, fn func(params any) (json.RawMessage, error)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.respond[method] = fn
}

func (f *fakeRequester) Request(_ context.Context, method string, params any) (json.RawMessage, error) {
	f.mu.Lock()
	f.calls = append(f.calls, recordedCall{method: method, params: params})
	fn := f.respond[method]
	f.mu.Unlock()
	if fn == nil {
		return nil, fmt.Errorf("unexpected method: %s", method)
	}
	return fn(params)
}

func (f *fakeRequester) callsFor(method string) []recordedCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []recordedCall
	for _, c := range f.calls {
		if c.method == method {
			out = append(out, c)
		}
	}
	return out
}

// newTestSession returns a session with chat.send and chat.history scripted
// to succeed, bound to the "webchat" session.
func newTestSession(t *testing.T) (*Session, *fakeRequester) {
	t.Helper()
	fake := newFakeRequester()
	fake.on(protocol.MethodChatSend, func(any) (json.RawMessage, error) {
		return json.RawMessage(`{"runId":"run-1"}`), nil
	})
	fake.on(protocol.MethodChatHistory, func(any) (json.RawMessage, error) {
		return json.RawMessage(`{"messages":[]}`), nil
	})
	return NewSession(fake, "webchat", nil), fake
}

func chatEvent(t *testing.T, sessionKey, runID, state, text string) json.RawMessage {
	t.Helper()
	payload, err := json.Marshal(map[string]any{
		"sessionKey": sessionKey,
		"runId":      runID,
		"state":      state,
		"message":    map[string]any{"text": text},
	})
	require.NoError(t, err)
	return payload
}

func TestSendAppendsUserMessageAndAdoptsRunID(t *testing.T) {
	s, fake := newTestSession(t)

	require.NoError(t, s.Send(context.Background(), "hello there"))

	transcript := s.Transcript()
	require.Len(t, transcript, 1)
	assert.Equal(t, "user", transcript[0].Role)
	assert.Equal(t, "hello there", transcript[0].Text)
	assert.Equal(t, RunSending, s.State())

	calls := fake.callsFor(protocol.MethodChatSend)
	require.Len(t, calls, 1)
	params, ok := calls[0].params.(protocol.ChatSendParams)
	require.True(t, ok)
	assert.Equal(t, "webchat", params.SessionKey)
	assert.Equal(t, "hello there", params.Message)
	assert.False(t, params.Deliver)
	assert.NotEmpty(t, params.IdempotencyKey)

	// The gateway's run id is adopted: its deltas are accepted
	s.HandleEvent(chatEvent(t, "webchat", "run-1", protocol.ChatStateDelta, "hi"))
	assert.Equal(t, "hi", s.StreamText())
	assert.Equal(t, RunStreaming, s.State())
}

func TestDeltaAddressedByIdempotencyKeyDuringSend(t *testing.T) {
	s, fake := newTestSession(t)
	fake.on(protocol.MethodChatSend, func(params any) (json.RawMessage, error) {
		sent, ok := params.(protocol.ChatSendParams)
		require.True(t, ok)
		// The gateway streams against the idempotency key until the
		// chat.send response names the canonical run.
		s.HandleEvent(chatEvent(t, "webchat", sent.IdempotencyKey, protocol.ChatStateDelta, "Hel"))
		return json.RawMessage(`{"runId":"run-1"}`), nil
	})

	require.NoError(t, s.Send(context.Background(), "hello"))

	assert.Equal(t, "Hel", s.StreamText())
	assert.Equal(t, RunStreaming, s.State())

	// After the response the canonical id carries the stream forward
	s.HandleEvent(chatEvent(t, "webchat", "run-1", protocol.ChatStateDelta, "Hello"))
	assert.Equal(t, "Hello", s.StreamText())
}

func TestSendTrimsAndIgnoresBlankInput(t *testing.T) {
	s, fake := newTestSession(t)

	require.NoError(t, s.Send(context.Background(), "   \n\t"))
	assert.Empty(t, s.Transcript())
	assert.Empty(t, fake.callsFor(protocol.MethodChatSend))
}

func TestSendFailureSurfacesNotice(t *testing.T) {
	s, fake := newTestSession(t)
	fake.on(protocol.MethodChatSend, func(any) (json.RawMessage, error) {
		return nil, fmt.Errorf("gateway unavailable")
	})

	err := s.Send(context.Background(), "hello")
	require.Error(t, err)
	assert.Equal(t, RunErrored, s.State())
	assert.Empty(t, s.StreamText())

	notices := s.Notices()
	require.NotEmpty(t, notices)
	assert.Contains(t, notices[len(notices)-1], "send failed")
}

func TestAbortSentinelsAbortInsteadOfSending(t *testing.T) {
	for _, sentinel := range []string{"/stop", "stop", "abort", "STOP", "Abort"} {
		t.Run(sentinel, func(t *testing.T) {
			s, fake := newTestSession(t)
			fake.on(protocol.MethodChatAbort, func(any) (json.RawMessage, error) {
				return json.RawMessage(`{}`), nil
			})

			require.NoError(t, s.Send(context.Background(), "do something"))
			require.NoError(t, s.Send(context.Background(), sentinel))

			// The sentinel is never delivered as a message
			sends := fake.callsFor(protocol.MethodChatSend)
			require.Len(t, sends, 1)

			aborts := fake.callsFor(protocol.MethodChatAbort)
			require.Len(t, aborts, 1)
			params, ok := aborts[0].params.(protocol.ChatAbortParams)
			require.True(t, ok)
			assert.Equal(t, "webchat", params.SessionKey)

			// The local run is cleared without waiting for the gateway
			assert.Equal(t, RunAborted, s.State())
			assert.Contains(t, s.Notices(), "run aborted")
		})
	}
}

func TestAbortWithoutActiveRunIsNoop(t *testing.T) {
	s, fake := newTestSession(t)
	require.NoError(t, s.Abort(context.Background()))
	assert.Empty(t, fake.callsFor(protocol.MethodChatAbort))
}

func TestDeltaMergeIsMonotonic(t *testing.T) {
	s, _ := newTestSession(t)
	require.NoError(t, s.Send(context.Background(), "question"))

	s.HandleEvent(chatEvent(t, "webchat", "run-1", protocol.ChatStateDelta, "abc"))
	assert.Equal(t, "abc", s.StreamText())

	s.HandleEvent(chatEvent(t, "webchat", "run-1", protocol.ChatStateDelta, "abcdefg"))
	assert.Equal(t, "abcdefg", s.StreamText())

	// A shorter snapshot is a stale reordering and must not regress the text
	s.HandleEvent(chatEvent(t, "webchat", "run-1", protocol.ChatStateDelta, "abcd"))
	assert.Equal(t, "abcdefg", s.StreamText())

	s.HandleEvent(chatEvent(t, "webchat", "run-1", protocol.ChatStateDelta, "abcdefghi"))
	assert.Equal(t, "abcdefghi", s.StreamText())
}

func TestEventsForOtherSessionsAreDropped(t *testing.T) {
	s, _ := newTestSession(t)
	require.NoError(t, s.Send(context.Background(), "question"))

	s.HandleEvent(chatEvent(t, "other-session", "run-1", protocol.ChatStateDelta, "leak"))
	assert.Empty(t, s.StreamText())

	// Even a final for another session must not settle this one
	s.HandleEvent(chatEvent(t, "other-session", "run-1", protocol.ChatStateFinal, "leak"))
	assert.Equal(t, RunSending, s.State())
	for _, m := range s.Transcript() {
		assert.NotEqual(t, "leak", m.Text)
	}
}

func TestStaleDeltaDroppedButStaleFinalHonored(t *testing.T) {
	s, _ := newTestSession(t)
	require.NoError(t, s.Send(context.Background(), "question"))

	// Delta for a superseded run: dropped
	s.HandleEvent(chatEvent(t, "webchat", "run-0", protocol.ChatStateDelta, "old text"))
	assert.Empty(t, s.StreamText())

	// Final for a superseded run: honored, settles the session
	s.HandleEvent(chatEvent(t, "webchat", "run-0", protocol.ChatStateFinal, "old answer"))
	require.Eventually(t, func() bool {
		return s.State() == RunFinalized && !s.Loading()
	}, 2*time.Second, 10*time.Millisecond)
}

func TestFinalSettlesRunAndRefreshesTranscript(t *testing.T) {
	fake := newFakeRequester()
	fake.on(protocol.MethodChatSend, func(any) (json.RawMessage, error) {
		return json.RawMessage(`{"runId":"run-1"}`), nil
	})
	fake.on(protocol.MethodChatHistory, func(any) (json.RawMessage, error) {
		return json.RawMessage(`{"messages":[
			{"role":"user","content":"question","timestamp":1},
			{"role":"assistant","content":"the answer","timestamp":2}
		]}`), nil
	})
	s := NewSession(fake, "webchat", nil)

	require.NoError(t, s.Send(context.Background(), "question"))
	s.HandleEvent(chatEvent(t, "webchat", "run-1", protocol.ChatStateDelta, "the"))
	s.HandleEvent(chatEvent(t, "webchat", "run-1", protocol.ChatStateFinal, "the answer"))

	assert.Empty(t, s.StreamText())
	assert.Equal(t, RunFinalized, s.State())

	// The refresh replaces the transcript with the gateway's history
	require.Eventually(t, func() bool {
		transcript := s.Transcript()
		return len(transcript) == 2 && transcript[1].Text == "the answer"
	}, 2*time.Second, 10*time.Millisecond)
	require.Len(t, fake.callsFor(protocol.MethodChatHistory), 1)
}

func TestErrorEventSurfacesMessage(t *testing.T) {
	s, _ := newTestSession(t)
	require.NoError(t, s.Send(context.Background(), "question"))

	payload, err := json.Marshal(map[string]any{
		"sessionKey":   "webchat",
		"runId":        "run-1",
		"state":        protocol.ChatStateError,
		"errorMessage": "model overloaded",
	})
	require.NoError(t, err)
	s.HandleEvent(payload)

	assert.Equal(t, RunErrored, s.State())
	assert.Empty(t, s.StreamText())
	notices := s.Notices()
	require.NotEmpty(t, notices)
	assert.Equal(t, "model overloaded", notices[len(notices)-1])
}

func TestAbortedEventSettlesRun(t *testing.T) {
	s, _ := newTestSession(t)
	require.NoError(t, s.Send(context.Background(), "question"))
	s.HandleEvent(chatEvent(t, "webchat", "run-1", protocol.ChatStateDelta, "partial"))

	payload, err := json.Marshal(map[string]any{
		"sessionKey": "webchat",
		"runId":      "run-1",
		"state":      protocol.ChatStateAborted,
	})
	require.NoError(t, err)
	s.HandleEvent(payload)

	assert.Equal(t, RunAborted, s.State())
	assert.Empty(t, s.StreamText())
	assert.Contains(t, s.Notices(), "run aborted")
}

func TestMalformedEventPayloadIsDropped(t *testing.T) {
	s, _ := newTestSession(t)
	require.NoError(t, s.Send(context.Background(), "question"))

	s.HandleEvent(json.RawMessage(`{broken`))
	assert.Equal(t, RunSending, s.State())
}

func TestRefreshHistoryFiltersInfrastructure(t *testing.T) {
	fake := newFakeRequester()
	fake.on(protocol.MethodChatHistory, func(params any) (json.RawMessage, error) {
		p, ok := params.(protocol.ChatHistoryParams)
		require.True(t, ok)
		assert.Equal(t, "webchat", p.SessionKey)
		assert.Equal(t, 200, p.Limit)
		return json.RawMessage(`{"messages":[
			{"role":"system","content":"you are a helpful crab"},
			{"role":"user","content":"hi","timestamp":1},
			{"role":"assistant","content":"NO_REPLY"},
			{"role":"tool","content":"exec result"},
			{"role":"toolResult","content":"more"},
			{"role":"tool_result","content":"even more"},
			{"role":"assistant","content":"   "},
			{"role":"assistant","content":"HEARTBEAT_OK"},
			{"role":"assistant","content":"hello!","timestamp":2}
		]}`), nil
	})
	s := NewSession(fake, "webchat", nil)

	s.RefreshHistory(context.Background())

	transcript := s.Transcript()
	require.Len(t, transcript, 2)
	assert.Equal(t, "user", transcript[0].Role)
	assert.Equal(t, "hi", transcript[0].Text)
	assert.Equal(t, "assistant", transcript[1].Role)
	assert.Equal(t, "hello!", transcript[1].Text)
}

func TestRefreshHistoryFailureSurfacesNotice(t *testing.T) {
	fake := newFakeRequester()
	fake.on(protocol.MethodChatHistory, func(any) (json.RawMessage, error) {
		return nil, fmt.Errorf("not connected")
	})
	s := NewSession(fake, "webchat", nil)

	s.RefreshHistory(context.Background())

	assert.False(t, s.Loading())
	notices := s.Notices()
	require.NotEmpty(t, notices)
	assert.Contains(t, notices[len(notices)-1], "history load failed")
}

func TestHandleConnectedResetsRunAndBootstrapsHistory(t *testing.T) {
	s, fake := newTestSession(t)
	require.NoError(t, s.Send(context.Background(), "question"))
	s.HandleEvent(chatEvent(t, "webchat", "run-1", protocol.ChatStateDelta, "partial"))

	s.HandleConnected()

	assert.Equal(t, RunIdle, s.State())
	assert.Empty(t, s.StreamText())
	require.Eventually(t, func() bool {
		return len(fake.callsFor(protocol.MethodChatHistory)) == 1
	}, 2*time.Second, 10*time.Millisecond, "no bootstrap history fetch")
}

func TestSetSessionKeyResetsState(t *testing.T) {
	s, _ := newTestSession(t)
	require.NoError(t, s.Send(context.Background(), "question"))
	s.HandleEvent(chatEvent(t, "webchat", "run-1", protocol.ChatStateDelta, "partial"))

	s.SetSessionKey("other")

	assert.Equal(t, "other", s.SessionKey())
	assert.Empty(t, s.Transcript())
	assert.Empty(t, s.StreamText())
	assert.Equal(t, RunIdle, s.State())
}

func TestNoticeLogKeepsMostRecentFive(t *testing.T) {
	s, _ := newTestSession(t)
	for i := 1; i <= 7; i++ {
		s.Notify(fmt.Sprintf("notice %d", i))
	}

	notices := s.Notices()
	require.Len(t, notices, 5)
	assert.Equal(t, "notice 3", notices[0])
	assert.Equal(t, "notice 7", notices[4])
}

func TestOnChangeFiresOnObservableChanges(t *testing.T) {
	s, _ := newTestSession(t)
	var mu sync.Mutex
	fired := 0
	s.OnChange(func() {
		mu.Lock()
		fired++
		mu.Unlock()
	})

	require.NoError(t, s.Send(context.Background(), "question"))
	s.HandleEvent(chatEvent(t, "webchat", "run-1", protocol.ChatStateDelta, "partial"))

	mu.Lock()
	defer mu.Unlock()
	assert.GreaterOrEqual(t, fired, 2)
}
