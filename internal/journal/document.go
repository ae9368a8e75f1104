package journal

import (
	"crypto/rand"
	"encoding/hex"
	"time"
)

// NewEntryID returns a fresh unique identifier for a Journal Entry.
func NewEntryID() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

// Entry is one recorded attempt, wire-compatible with the spec's Journal
// Entry field set (camelCase on the wire).
type Entry struct {
	ID          string    `json:"id"`
	Timestamp   time.Time `json:"timestamp"`
	Prompt      string    `json:"prompt"`
	MaxTokens   int       `json:"maxTokens"`
	Temperature float64   `json:"temperature"`
	Model       string    `json:"model"`
	Success     bool      `json:"success"`
	Provider    string    `json:"provider"`
	Content     string    `json:"content"`
	Error       string    `json:"error"`
	Cost        float64   `json:"cost"`
	DurationMs  int64     `json:"durationMs"`
}

// Document is the on-disk JSON shape: an ordered sequence of entries plus
// counters that must stay consistent with that sequence on every persisted
// version.
type Document struct {
	Responses     []Entry   `json:"responses"`
	LastUpdated   time.Time `json:"lastUpdated"`
	TotalRequests int       `json:"totalRequests"`
	TotalCost     float64   `json:"totalCost"`
}

// Append returns a copy of doc with entry appended and its counters
// recomputed, preserving the invariant that TotalRequests/TotalCost always
// match Responses.
func (doc Document) Append(entry Entry) Document {
	responses := make([]Entry, 0, len(doc.Responses)+1)
	responses = append(responses, doc.Responses...)
	responses = append(responses, entry)

	var totalCost float64
	for _, e := range responses {
		totalCost += e.Cost
	}

	return Document{
		Responses:     responses,
		LastUpdated:   time.Now().UTC(),
		TotalRequests: len(responses),
		TotalCost:     totalCost,
	}
}
