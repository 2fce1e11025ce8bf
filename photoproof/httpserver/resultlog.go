package httpserver

import (
	"sync"
	"time"

	"github.com/mhlotto/go-photoproof/photoproof"
)

// AuditRecord tracks each produced verdict for operators.
type AuditRecord struct {
	Time       time.Time
	ResultID   string
	Verdict    photoproof.Verdict
	Confidence float64
}

// ResultLog is an in-memory verification log. Results are immutable once
// recorded; the log exists so callers can replay a verdict by ID and
// operators can audit what was decided. Durable persistence belongs to an
// external collaborator.
type ResultLog struct {
	mu      sync.RWMutex
	results map[string]photoproof.VerificationResult
	audits  []AuditRecord
}

// NewResultLog constructs an empty log.
func NewResultLog() *ResultLog {
	return &ResultLog{
		results: make(map[string]photoproof.VerificationResult),
		audits:  make([]AuditRecord, 0, 32),
	}
}

// Record stores a result and appends an audit entry.
func (l *ResultLog) Record(result photoproof.VerificationResult) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.results[result.ID] = result
	l.audits = append(l.audits, AuditRecord{
		Time:       time.Now().UTC(),
		ResultID:   result.ID,
		Verdict:    result.Verdict,
		Confidence: result.Confidence,
	})
}

// Lookup returns a previously recorded result.
func (l *ResultLog) Lookup(id string) (photoproof.VerificationResult, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	result, ok := l.results[id]
	return result, ok
}

// AuditTrail returns a copy of the collected audit records.
func (l *ResultLog) AuditTrail() []AuditRecord {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]AuditRecord, len(l.audits))
	copy(out, l.audits)
	return out
}
