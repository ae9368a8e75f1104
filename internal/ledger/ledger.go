// Package ledger implements the concurrent-safe usage accounting kernel
// keyed by (provider, calendar day). It is in-memory only: the router never
// persists usage across process restarts.
package ledger

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"
)

// Record is one recorded generation attempt, owned by the ledger and never
// published externally in this shape.
type Record struct {
	At     time.Time
	Tokens int
	Cost   float64
}

// DailyUsage is the externally-visible view of one provider's usage on one
// calendar day.
type DailyUsage struct {
	Provider     string
	Date         string // YYYY-MM-DD, UTC
	RequestCount int
	TokensUsed   int
	TotalCost    float64
}

type key struct {
	provider string
	date     string
}

// Ledger is a process-wide map of (provider, day) -> append-only sequence of
// Records, guarded by a single mutex. Contention is low: one append per
// attempt, one read per viability check or status/spend call.
type Ledger struct {
	mu      sync.Mutex
	records map[key][]Record
}

// New returns an empty ledger.
func New() *Ledger {
	return &Ledger{records: make(map[key][]Record)}
}

func dayOf(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

func normalize(provider string) string {
	return strings.ToLower(provider)
}

// Record appends a usage record for provider at the current instant. It
// cannot fail: there is no invariant it could violate.
func (l *Ledger) Record(provider string, tokens int, cost float64) {
	k := key{provider: normalize(provider), date: dayOf(time.Now())}
	l.mu.Lock()
	l.records[k] = append(l.records[k], Record{At: time.Now(), Tokens: tokens, Cost: cost})
	l.mu.Unlock()
}

// TodayUsage returns the Daily Usage View for provider on the current UTC
// date. Providers with no records return a zero-valued view, never an error.
func (l *Ledger) TodayUsage(provider string) DailyUsage {
	return l.usageOn(provider, dayOf(time.Now()))
}

func (l *Ledger) usageOn(provider, date string) DailyUsage {
	p := normalize(provider)
	k := key{provider: p, date: date}

	l.mu.Lock()
	recs := l.records[k]
	snapshot := make([]Record, len(recs))
	copy(snapshot, recs)
	l.mu.Unlock()

	view := DailyUsage{Provider: p, Date: date}
	for _, r := range snapshot {
		view.RequestCount++
		view.TokensUsed += r.Tokens
		view.TotalCost += r.Cost
	}
	return view
}

// CheckBudget reports whether provider can absorb additionalCost today
// without exceeding dailyBudgetLimit. A provider with no configured limit
// (limit <= 0) is denied — the policy is fail-closed.
func (l *Ledger) CheckBudget(provider string, additionalCost, dailyBudgetLimit float64) bool {
	if dailyBudgetLimit <= 0 {
		return false
	}
	today := l.TodayUsage(provider)
	return today.TotalCost+additionalCost <= dailyBudgetLimit
}

// providers returns every provider name the ledger has ever recorded a
// usage record for, in sorted order for deterministic reports.
func (l *Ledger) providers() []string {
	seen := make(map[string]struct{})
	l.mu.Lock()
	for k := range l.records {
		seen[k.provider] = struct{}{}
	}
	l.mu.Unlock()

	out := make([]string, 0, len(seen))
	for p := range seen {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// WeeklyReport returns, for every provider ever recorded, seven Daily Usage
// Views spanning [today-6 ... today], oldest first. Days with no activity
// are explicit zero entries rather than omitted.
func (l *Ledger) WeeklyReport() map[string][]DailyUsage {
	report := make(map[string][]DailyUsage)
	now := time.Now().UTC()
	for _, provider := range l.providers() {
		days := make([]DailyUsage, 0, 7)
		for offset := 6; offset >= 0; offset-- {
			date := dayOf(now.AddDate(0, 0, -offset))
			days = append(days, l.usageOn(provider, date))
		}
		report[provider] = days
	}
	return report
}

// WeeklyTotals sums total cost and total requests across every provider and
// day in WeeklyReport.
func (l *Ledger) WeeklyTotals() (totalCost float64, totalRequests int) {
	for _, days := range l.WeeklyReport() {
		for _, d := range days {
			totalCost += d.TotalCost
			totalRequests += d.RequestCount
		}
	}
	return totalCost, totalRequests
}

// FormatWeeklyReport renders WeeklyReport as a human-readable multi-line
// summary for operational tooling outside the HTTP surface.
func (l *Ledger) FormatWeeklyReport() string {
	var b strings.Builder
	totalCost, totalRequests := l.WeeklyTotals()
	b.WriteString("Weekly usage report\n")
	b.WriteString("====================\n")
	report := l.WeeklyReport()
	for _, provider := range l.providers() {
		b.WriteString(provider + ":\n")
		for _, d := range report[provider] {
			fmt.Fprintf(&b, "  %s  requests=%d  tokens=%d  cost=$%.6f\n", d.Date, d.RequestCount, d.TokensUsed, d.TotalCost)
		}
	}
	fmt.Fprintf(&b, "total: requests=%d cost=$%.6f\n", totalRequests, totalCost)
	return b.String()
}

// EstimateTokens approximates token count as ceil(len(text)/4), a
// deterministic character-based proxy that does not attempt to match any
// backend's real tokenizer.
func EstimateTokens(text string) int {
	if len(text) == 0 {
		return 0
	}
	return int(math.Ceil(float64(len(text)) / 4.0))
}

// EstimateCost converts text into an estimated cost at costPerToken per
// 1000 tokens.
func EstimateCost(text string, costPerToken float64) float64 {
	tokens := EstimateTokens(text)
	return float64(tokens) * costPerToken / 1000.0
}
