// Package chat implements the conversation layer on top of the gateway
// connection: sending messages, merging streamed assistant output, and
// reconciling the local transcript against gateway history.
package chat

import (
	"encoding/json"
	"strings"
	"time"
)

// Sentinel reply texts that carry no conversational content
const (
	sentinelNoReply   = "NO_REPLY"
	sentinelHeartbeat = "HEARTBEAT_OK"
)

// Message is one transcript entry with its text already flattened
type Message struct {
	Role      string
	Text      string
	Timestamp time.Time
}

// rawMessage mirrors the gateway's history entry shape. Content is left raw
// because gateways emit several shapes for it.
type rawMessage struct {
	Role      string          `json:"role"`
	Content   json.RawMessage `json:"content"`
	Text      string          `json:"text"`
	Timestamp int64           `json:"timestamp"`
}

// contentPart is one element of a structured content array
type contentPart struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// ExtractText flattens a message content payload to plain text. Gateways
// emit content as a bare string, an object with a text field, an object
// whose content field is a string or a part array, or a bare part array;
// parts are joined with newlines. Unrecognized shapes yield "".
func ExtractText(content json.RawMessage) string {
	if len(content) == 0 {
		return ""
	}

	var s string
	if err := json.Unmarshal(content, &s); err == nil {
		return s
	}

	var parts []contentPart
	if err := json.Unmarshal(content, &parts); err == nil {
		return joinParts(parts)
	}

	var obj struct {
		Text    string          `json:"text"`
		Content json.RawMessage `json:"content"`
	}
	if err := json.Unmarshal(content, &obj); err != nil {
		return ""
	}
	if obj.Text != "" {
		return obj.Text
	}
	if len(obj.Content) > 0 {
		return ExtractText(obj.Content)
	}
	return ""
}

// joinParts keeps only parts tagged as text; other part types (thinking,
// images, tool use) never belong in the displayed transcript.
func joinParts(parts []contentPart) string {
	texts := make([]string, 0, len(parts))
	for _, p := range parts {
		if p.Type == "text" && p.Text != "" {
			texts = append(texts, p.Text)
		}
	}
	return strings.Join(texts, "\n")
}

// parseMessage converts one raw history entry into a transcript Message
func parseMessage(raw json.RawMessage) Message {
	var rm rawMessage
	if err := json.Unmarshal(raw, &rm); err != nil {
		return Message{}
	}
	text := rm.Text
	if text == "" {
		text = ExtractText(rm.Content)
	}
	var ts time.Time
	if rm.Timestamp > 0 {
		ts = time.UnixMilli(rm.Timestamp)
	}
	return Message{Role: rm.Role, Text: text, Timestamp: ts}
}

// displayable reports whether a message belongs in the visible transcript.
// Infrastructure roles, blank messages, and sentinel replies are hidden.
func displayable(m Message) bool {
	switch m.Role {
	case "system", "tool", "toolResult", "tool_result":
		return false
	}
	text := strings.TrimSpace(m.Text)
	if text == "" {
		return false
	}
	if text == sentinelNoReply || text == sentinelHeartbeat {
		return false
	}
	return true
}

// FilterTranscript parses raw history entries and keeps only the
// displayable conversation, preserving order.
func FilterTranscript(raw []json.RawMessage) []Message {
	messages := make([]Message, 0, len(raw))
	for _, entry := range raw {
		m := parseMessage(entry)
		if displayable(m) {
			messages = append(messages, m)
		}
	}
	return messages
}
