package chat

// maxNotices bounds the retained system notices
const maxNotices = 5

// NoticeLog keeps the most recent system notices in arrival order,
// discarding the oldest once full. Not safe for concurrent use; the owning
// session serializes access.
type NoticeLog struct {
	entries []string
}

// Add appends a notice, evicting the oldest entry when the log is full
func (n *NoticeLog) Add(text string) {
	n.entries = append(n.entries, text)
	if len(n.entries) > maxNotices {
		n.entries = n.entries[len(n.entries)-maxNotices:]
	}
}

// All returns the retained notices, oldest first
func (n *NoticeLog) All() []string {
	out := make([]string, len(n.entries))
	copy(out, n.entries)
	return out
}

// Clear discards all retained notices
func (n *NoticeLog) Clear() {
	n.entries = nil
}
