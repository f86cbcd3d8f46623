package chat

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractText(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"bare string", `"hello"`, "hello"},
		{"object with text", `{"text":"hello"}`, "hello"},
		{"object with string content", `{"content":"hello"}`, "hello"},
		{"object with part array", `{"content":[{"type":"text","text":"one"},{"type":"text","text":"two"}]}`, "one\ntwo"},
		{"bare part array", `[{"type":"text","text":"one"},{"type":"text","text":"two"}]`, "one\ntwo"},
		{"parts without text skipped", `[{"type":"image"},{"type":"text","text":"kept"}]`, "kept"},
		{"non-text parts skipped", `[{"type":"thinking","text":"internal"},{"type":"text","text":"shown"}]`, "shown"},
		{"untyped parts skipped", `[{"text":"untagged"},{"type":"text","text":"shown"}]`, "shown"},
		{"nested content object", `{"content":{"text":"deep"}}`, "deep"},
		{"empty", ``, ""},
		{"null", `null`, ""},
		{"number", `42`, ""},
		{"unrecognized object", `{"foo":"bar"}`, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractText(json.RawMessage(tt.content)))
		})
	}
}

func TestParseMessagePrefersTextField(t *testing.T) {
	m := parseMessage(json.RawMessage(`{"role":"assistant","text":"direct","content":"ignored","timestamp":1700000000000}`))
	assert.Equal(t, "assistant", m.Role)
	assert.Equal(t, "direct", m.Text)
	assert.Equal(t, int64(1700000000000), m.Timestamp.UnixMilli())
}

func TestFilterTranscript(t *testing.T) {
	raw := []json.RawMessage{
		json.RawMessage(`{"role":"system","content":"setup"}`),
		json.RawMessage(`{"role":"user","content":"hi"}`),
		json.RawMessage(`{"role":"assistant","content":"NO_REPLY"}`),
		json.RawMessage(`{"role":"assistant","content":"  HEARTBEAT_OK  "}`),
		json.RawMessage(`{"role":"tool","content":"output"}`),
		json.RawMessage(`{"role":"assistant","content":""}`),
		json.RawMessage(`{"role":"assistant","content":"hello"}`),
		json.RawMessage(`{bad json`),
	}

	messages := FilterTranscript(raw)
	require.Len(t, messages, 2)
	assert.Equal(t, "hi", messages[0].Text)
	assert.Equal(t, "hello", messages[1].Text)
}

func TestNoticeLogEviction(t *testing.T) {
	var log NoticeLog
	for i := 0; i < 3; i++ {
		log.Add("early")
	}
	for i := 0; i < 5; i++ {
		log.Add("late")
	}

	entries := log.All()
	require.Len(t, entries, 5)
	for _, e := range entries {
		assert.Equal(t, "late", e)
	}

	log.Clear()
	assert.Empty(t, log.All())
}
