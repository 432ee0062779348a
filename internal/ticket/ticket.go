// Package ticket derives a support-ticket summary from an NLU result. The
// derivation is pure: given the same channel and understanding, everything
// except the timestamp-based id is identical across calls.
package ticket

import (
	"strconv"
	"strings"
	"time"

	"github.com/orchiserve/triage-gateway/internal/metrics"
	"github.com/orchiserve/triage-gateway/internal/pipeline"
)

// Channel is the source of the conversation a ticket was derived from.
type Channel string

const (
	ChannelVoice Channel = "Voice"
	ChannelChat  Channel = "Chat"
)

// Priority is the derived ticket priority.
type Priority string

const (
	PriorityLow    Priority = "Low"
	PriorityMedium Priority = "Medium"
	PriorityHigh   Priority = "High"
)

// emotionThreshold is the anger/fear score above which a ticket escalates to
// High regardless of a non-negative sentiment.
const emotionThreshold = 0.4

// createdStatus is the fixed status of every derived ticket.
const createdStatus = "Created · Awaiting routing"

// fallbackType is used when the NLU result offers neither keywords nor
// categories.
const fallbackType = "General Issue"

// Ticket is a derived, request-scoped ticket summary. Every derivation yields
// a fresh ticket; tickets are never merged with prior ones.
type Ticket struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Priority  Priority  `json:"priority"`
	Sentiment string    `json:"sentiment"`
	Channel   Channel   `json:"channel"`
	Status    string    `json:"status"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Derive builds a ticket from the channel and understanding at the current
// time.
func Derive(ch Channel, u *pipeline.Understanding) Ticket {
	t := deriveAt(ch, u, time.Now())
	metrics.TicketsDerived.WithLabelValues(string(t.Priority)).Inc()
	return t
}

func deriveAt(ch Channel, u *pipeline.Understanding, now time.Time) Ticket {
	return Ticket{
		ID:        idAt(now),
		Type:      issueType(u),
		Priority:  priority(u),
		Sentiment: u.SentimentLabel(),
		Channel:   ch,
		Status:    createdStatus,
		UpdatedAt: now,
	}
}

// idAt builds a display id from the last six digits of the unix-millisecond
// timestamp. Uniqueness is only millisecond-best-effort — acceptable for a
// demo ticket id, not a production identifier.
func idAt(now time.Time) string {
	ms := strconv.FormatInt(now.UnixMilli(), 10)
	if len(ms) > 6 {
		ms = ms[len(ms)-6:]
	}
	return "#T-" + ms
}

// issueType picks the first keyword, then the last path segment of the first
// category label, then the fallback literal.
func issueType(u *pipeline.Understanding) string {
	if kw := u.FirstKeyword(); kw != "" {
		return kw
	}
	if label := u.FirstCategoryLabel(); label != "" {
		segments := strings.Split(label, "/")
		if last := segments[len(segments)-1]; last != "" {
			return last
		}
	}
	return fallbackType
}

// priority escalation order matters: negative sentiment and high anger/fear
// are checked before the positive downgrade.
func priority(u *pipeline.Understanding) Priority {
	if u.SentimentLabel() == "negative" ||
		u.EmotionScore("anger") > emotionThreshold ||
		u.EmotionScore("fear") > emotionThreshold {
		return PriorityHigh
	}
	if u.SentimentLabel() == "positive" {
		return PriorityLow
	}
	return PriorityMedium
}
