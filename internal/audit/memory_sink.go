package audit

import (
	"context"
	"sync"
	"time"

	"github.com/agentgate/agentgate/gateway/pkg/models"
)

// MemorySink retains persisted batches in memory. Development default.
type MemorySink struct {
	mu      sync.RWMutex
	entries []models.AuditEntry
}

// NewMemorySink creates an empty in-memory sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

func (s *MemorySink) Kind() string { return "memory" }

func (s *MemorySink) Persist(_ context.Context, entries []models.AuditEntry) error {
	s.mu.Lock()
	s.entries = append(s.entries, entries...)
	s.mu.Unlock()
	return nil
}

func (s *MemorySink) HealthCheck(context.Context) error { return nil }

// Entries returns a copy of everything persisted so far.
func (s *MemorySink) Entries() []models.AuditEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.AuditEntry(nil), s.entries...)
}

// PruneBefore removes and returns entries older than cutoff.
func (s *MemorySink) PruneBefore(cutoff time.Time) []models.AuditEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	var expired, kept []models.AuditEntry
	for _, e := range s.entries {
		if e.Timestamp.Before(cutoff) {
			expired = append(expired, e)
		} else {
			kept = append(kept, e)
		}
	}
	s.entries = kept
	return expired
}
