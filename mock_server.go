// mock_server.go
//
// A mock OpenClaw gateway for exercising the console by hand:
//
//	go run mock_server.go
//	console --gateway ws://127.0.0.1:18789 --token mock-token
//
// It speaks just enough of the gateway protocol to drive the console: the
// challenge/connect handshake, chat.send with a streamed echo reply, and the
// status, sessions.list, chat.history, and chat.abort methods.
package main

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/openclaw/console/internal/protocol"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// mockConn serializes writes to one client connection
type mockConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (m *mockConn) send(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		log.Printf("marshal: %v", err)
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		log.Printf("write: %v", err)
	}
}

func (m *mockConn) respond(id string, ok bool, payload any, errMsg string) {
	res := map[string]any{"type": "res", "id": id, "ok": ok}
	if payload != nil {
		res["payload"] = payload
	}
	if errMsg != "" {
		res["error"] = map[string]any{"message": errMsg}
	}
	m.send(res)
}

func (m *mockConn) event(name string, payload any) {
	m.send(map[string]any{"type": "event", "event": name, "payload": payload})
}

// history accumulates sent messages per session so chat.history has
// something real to return.
var (
	historyMu sync.Mutex
	history   = map[string][]map[string]any{}
)

func appendHistory(sessionKey, role, text string) {
	historyMu.Lock()
	defer historyMu.Unlock()
	history[sessionKey] = append(history[sessionKey], map[string]any{
		"role":      role,
		"content":   text,
		"timestamp": time.Now().UnixMilli(),
	})
}

func wsHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("upgrade: %v", err)
		return
	}
	log.Printf("client connected: %s", r.RemoteAddr)
	mc := &mockConn{conn: conn}

	// Challenge immediately, as the real gateway does
	mc.event(protocol.EventConnectChallenge, map[string]any{
		"nonce": uuid.NewString(),
		"ts":    time.Now().UnixMilli(),
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			log.Printf("client gone: %v", err)
			return
		}
		var frame protocol.Frame
		if err := json.Unmarshal(data, &frame); err != nil {
			log.Printf("bad frame: %v", err)
			continue
		}
		if frame.Type != protocol.FrameTypeRequest {
			continue
		}
		handleRequest(mc, &frame)
	}
}

func handleRequest(mc *mockConn, frame *protocol.Frame) {
	log.Printf("req %s %s", frame.Method, frame.ID)
	switch frame.Method {
	case protocol.MethodConnect:
		var params protocol.ConnectParams
		if err := json.Unmarshal(frame.Params, &params); err != nil {
			mc.respond(frame.ID, false, nil, "malformed connect params")
			return
		}
		if params.Auth.Token == "" {
			mc.respond(frame.ID, false, nil, "auth token required")
			return
		}
		mc.respond(frame.ID, true, map[string]any{"protocol": protocol.ProtocolVersion}, "")

	case protocol.MethodStatus:
		hostname, _ := os.Hostname()
		mc.respond(frame.ID, true, map[string]any{
			"hostname": hostname,
			"uptime":   int(time.Since(started).Seconds()),
			"model":    "mock-claw-1",
			"sessions": 1,
		}, "")

	case protocol.MethodSessionsList:
		mc.respond(frame.ID, true, map[string]any{
			"sessions": []map[string]any{
				{"key": "webchat", "model": "mock-claw-1", "active": true},
			},
		}, "")

	case protocol.MethodChatHistory:
		var params protocol.ChatHistoryParams
		if err := json.Unmarshal(frame.Params, &params); err != nil {
			mc.respond(frame.ID, false, nil, "malformed history params")
			return
		}
		historyMu.Lock()
		messages := append([]map[string]any(nil), history[params.SessionKey]...)
		historyMu.Unlock()
		mc.respond(frame.ID, true, map[string]any{"messages": messages}, "")

	case protocol.MethodChatSend:
		var params protocol.ChatSendParams
		if err := json.Unmarshal(frame.Params, &params); err != nil {
			mc.respond(frame.ID, false, nil, "malformed send params")
			return
		}
		runID := uuid.NewString()
		appendHistory(params.SessionKey, "user", params.Message)
		mc.respond(frame.ID, true, map[string]any{"runId": runID}, "")
		go streamEcho(mc, params.SessionKey, runID, params.Message)

	case protocol.MethodChatAbort:
		mc.respond(frame.ID, true, map[string]any{}, "")

	default:
		mc.respond(frame.ID, false, nil, fmt.Sprintf("unknown method: %s", frame.Method))
	}
}

// streamEcho replies with a word-by-word stream of cumulative snapshots,
// then a final, mimicking the gateway's delta behavior.
func streamEcho(mc *mockConn, sessionKey, runID, message string) {
	reply := "You said: **" + message + "**"
	words := strings.Fields(reply)
	partial := ""
	for _, word := range words {
		if partial != "" {
			partial += " "
		}
		partial += word
		mc.event(protocol.EventChat, map[string]any{
			"sessionKey": sessionKey,
			"runId":      runID,
			"state":      protocol.ChatStateDelta,
			"message":    map[string]any{"text": partial},
		})
		time.Sleep(120 * time.Millisecond)
	}
	appendHistory(sessionKey, "assistant", reply)
	mc.event(protocol.EventChat, map[string]any{
		"sessionKey": sessionKey,
		"runId":      runID,
		"state":      protocol.ChatStateFinal,
		"message":    map[string]any{"text": reply},
	})
}

var started = time.Now()

func main() {
	addr := "127.0.0.1:18789"
	http.HandleFunc("/", wsHandler)
	log.Printf("mock gateway listening on ws://%s", addr)
	if err := http.ListenAndServe(addr, nil); err != nil {
		log.Fatalf("listen: %v", err)
	}
}
