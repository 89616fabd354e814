// Package reporting journals completed payment sessions and summarizes them
// into retrospective reports.
package reporting

import (
	"sync"
	"time"

	"github.com/yourorg/walletpay/internal/payment"
)

// LogEntry records one finished payment session.
type LogEntry struct {
	Timestamp  time.Time         `json:"timestamp"`
	SessionID  string            `json:"sessionId"`
	ProductID  string            `json:"productId"`
	Success    bool              `json:"success"`
	ErrorKind  payment.ErrorKind `json:"errorKind,omitempty"`
	Attempts   int               `json:"attempts"`
	DurationMs int64             `json:"durationMs"`
	AmountCents int64            `json:"amountCents"`
	Currency   string            `json:"currency"`
}

// Journal receives entries for finished sessions.
type Journal interface {
	Record(entry LogEntry)
}

// MemoryJournal is an in-memory Journal, safe for concurrent use.
type MemoryJournal struct {
	mu      sync.Mutex
	entries []LogEntry
}

// NewMemoryJournal creates an empty MemoryJournal.
func NewMemoryJournal() *MemoryJournal {
	return &MemoryJournal{}
}

// Record implements Journal.
func (j *MemoryJournal) Record(entry LogEntry) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, entry)
}

// Entries returns a copy of the journaled entries in record order.
func (j *MemoryJournal) Entries() []LogEntry {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]LogEntry, len(j.entries))
	copy(out, j.entries)
	return out
}

// RetrospectiveReport summarizes a set of session log entries.
type RetrospectiveReport struct {
	TotalSessions        int                       `json:"totalSessions"`
	SuccessfulPayments   int                       `json:"successfulPayments"`
	FailedPayments       int                       `json:"failedPayments"`
	RetriedSessions      int                       `json:"retriedSessions"`
	TotalAmountProcessed int64                     `json:"totalAmountProcessed"`
	AmountByCurrency     map[string]int64          `json:"amountByCurrency"`
	ErrorBreakdown       map[payment.ErrorKind]int `json:"errorBreakdown"`
	ProductUsage         map[string]int            `json:"productUsage"`
	DateFrom             time.Time                 `json:"dateFrom"`
	DateTo               time.Time                 `json:"dateTo"`
}

// GenerateRetrospective aggregates log entries into a report. Amounts are
// summed for successful payments only.
func GenerateRetrospective(entries []LogEntry) *RetrospectiveReport {
	report := &RetrospectiveReport{
		AmountByCurrency: make(map[string]int64),
		ErrorBreakdown:   make(map[payment.ErrorKind]int),
		ProductUsage:     make(map[string]int),
	}
	for i, entry := range entries {
		report.TotalSessions++
		if i == 0 || entry.Timestamp.Before(report.DateFrom) {
			report.DateFrom = entry.Timestamp
		}
		if entry.Timestamp.After(report.DateTo) {
			report.DateTo = entry.Timestamp
		}
		if entry.ProductID != "" {
			report.ProductUsage[entry.ProductID]++
		}
		if entry.Attempts > 1 {
			report.RetriedSessions++
		}
		if entry.Success {
			report.SuccessfulPayments++
			report.TotalAmountProcessed += entry.AmountCents
			report.AmountByCurrency[entry.Currency] += entry.AmountCents
		} else {
			report.FailedPayments++
			if entry.ErrorKind != "" {
				report.ErrorBreakdown[entry.ErrorKind]++
			}
		}
	}
	return report
}
