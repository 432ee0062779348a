package ws

import "time"

// DefaultHistoryLimit caps a session's chat history. Matches the bound the
// browser client keeps in local storage.
const DefaultHistoryLimit = 80

// Sender identifies who produced a chat entry.
type Sender string

const (
	SenderUser Sender = "user"
	SenderAI   Sender = "ai"
)

// Entry is one rendered chat message.
type Entry struct {
	Sender Sender    `json:"sender"`
	Text   string    `json:"text"`
	At     time.Time `json:"at"`
}

// History is a bounded, ordered chat log. Appending beyond the limit evicts
// the oldest entries first. Not safe for concurrent use; each session owns
// its own history.
type History struct {
	limit   int
	entries []Entry
}

// NewHistory creates a history bounded to limit entries (DefaultHistoryLimit
// when limit is not positive).
func NewHistory(limit int) *History {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	return &History{limit: limit}
}

// Append adds an entry, evicting from the front when over the limit.
func (h *History) Append(e Entry) {
	h.entries = append(h.entries, e)
	if len(h.entries) > h.limit {
		h.entries = h.entries[len(h.entries)-h.limit:]
	}
}

// Entries returns a copy of the current log, oldest first.
func (h *History) Entries() []Entry {
	out := make([]Entry, len(h.entries))
	copy(out, h.entries)
	return out
}

// Len returns the number of stored entries.
func (h *History) Len() int {
	return len(h.entries)
}
