package audit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/agentgate/agentgate/gateway/pkg/models"
)

func entry(eventType models.AuditEventType, mutate ...func(*models.AuditEntry)) models.AuditEntry {
	e := models.AuditEntry{
		ID:        models.NewID(),
		Timestamp: time.Now(),
		TraceID:   "trace-1",
		RequestID: "req-1",
		EventType: eventType,
		Severity:  models.SeverityInfo,
		Actor:     "alice",
	}
	for _, m := range mutate {
		m(&e)
	}
	return e
}

func TestApprovalRequestView(t *testing.T) {
	e := entry(models.EventHumanApprovalRequested, func(e *models.AuditEntry) {
		e.Timestamp = time.Now().Add(-30 * time.Second)
		e.Details = map[string]interface{}{"tool": "send_email"}
	})

	v := BuildView(e, nil)
	if v.Title != "Approval Required" {
		t.Errorf("title = %q, want Approval Required", v.Title)
	}
	if v.Summary.Impact != models.ImpactHigh {
		t.Errorf("impact = %s, want high", v.Summary.Impact)
	}
	if v.Summary.When != "just now" {
		t.Errorf("when = %q, want just now (30s old)", v.Summary.When)
	}
	if v.Summary.Status != "pending" {
		t.Errorf("status = %q, want pending", v.Summary.Status)
	}
	if v.Summary.Who != "alice" {
		t.Errorf("who = %q, want alice", v.Summary.Who)
	}
	for _, want := range []string{"View Details", "Approve", "Reject", "Modify"} {
		if !containsString(v.Actions, want) {
			t.Errorf("actions missing %q: %v", want, v.Actions)
		}
	}
	if v.Metadata.ComprehensionTargetSec != 5 {
		t.Errorf("comprehension target = %d, want 5", v.Metadata.ComprehensionTargetSec)
	}
}

func TestViewRelativeTime(t *testing.T) {
	e := entry(models.EventToolExecuted, func(e *models.AuditEntry) {
		e.Timestamp = time.Now().Add(-5 * time.Minute)
	})
	if v := BuildView(e, nil); v.Summary.When != "5m ago" {
		t.Errorf("when = %q, want 5m ago", v.Summary.When)
	}
}

func TestViewImpactLadder(t *testing.T) {
	tests := []struct {
		name   string
		e      models.AuditEntry
		impact models.ViewImpact
	}{
		{"security alert", entry(models.EventSecurityAlert), models.ImpactCritical},
		{"tool failed error", entry(models.EventToolFailed, func(e *models.AuditEntry) { e.Severity = models.SeverityError }), models.ImpactHigh},
		{"any error severity", entry(models.EventSandboxCreated, func(e *models.AuditEntry) { e.Severity = models.SeverityError }), models.ImpactHigh},
		{"tool executed", entry(models.EventToolExecuted), models.ImpactMedium},
		{"intent classified", entry(models.EventIntentClassified), models.ImpactMedium},
		{"request received", entry(models.EventRequestReceived), models.ImpactLow},
	}
	for _, tt := range tests {
		if got := BuildView(tt.e, nil).Summary.Impact; got != tt.impact {
			t.Errorf("%s: impact = %s, want %s", tt.name, got, tt.impact)
		}
	}
}

func TestViewStatusFromReview(t *testing.T) {
	e := entry(models.EventHumanApprovalRequested, func(e *models.AuditEntry) {
		e.HumanReview = &models.HumanReview{ReviewerID: "bob", Decision: models.ReviewRejected, Timestamp: time.Now()}
	})
	v := BuildView(e, nil)
	if v.Summary.Status != "rejected" {
		t.Errorf("status = %q, want rejected", v.Summary.Status)
	}
	if containsString(v.Actions, "Approve") {
		t.Error("reviewed entry must not offer approval actions")
	}
}

func TestDetectChanges(t *testing.T) {
	before := map[string]interface{}{"state": "ready", "count": 1, "gone": true}
	after := map[string]interface{}{"state": "running", "count": 1, "fresh": "x"}

	changes := DetectChanges(before, after)
	kinds := map[string]string{}
	for _, c := range changes {
		kinds[c.Field] = c.Kind
	}
	if kinds["state"] != "modified" {
		t.Errorf("state change = %q, want modified", kinds["state"])
	}
	if kinds["gone"] != "removed" {
		t.Errorf("gone change = %q, want removed", kinds["gone"])
	}
	if kinds["fresh"] != "added" {
		t.Errorf("fresh change = %q, want added", kinds["fresh"])
	}
	if _, ok := kinds["count"]; ok {
		t.Error("unchanged field must not appear in changes")
	}
}

func TestBatchView(t *testing.T) {
	entries := []models.AuditEntry{
		entry(models.EventRequestReceived),
		entry(models.EventSecurityAlert),
		entry(models.EventToolExecuted),
	}
	v := BuildBatchView(entries)
	if v.Title != "Batch: 3 events" {
		t.Errorf("title = %q, want Batch: 3 events", v.Title)
	}
	if v.Summary.Impact != models.ImpactCritical {
		t.Errorf("impact = %s, want critical (worst of batch)", v.Summary.Impact)
	}
	if v.Metadata.EstimatedReadTimeSec != 6 {
		t.Errorf("read time = %d, want 6 (3x2)", v.Metadata.EstimatedReadTimeSec)
	}

	many := make([]models.AuditEntry, 20)
	for i := range many {
		many[i] = entry(models.EventToolExecuted)
	}
	if got := BuildBatchView(many).Metadata.EstimatedReadTimeSec; got != 30 {
		t.Errorf("read time = %d, want capped at 30", got)
	}
}

func TestStreamFlushDeliversExactlyOnce(t *testing.T) {
	sink := NewMemorySink()
	s := NewStream(100, time.Minute, sink)

	var mu sync.Mutex
	seen := map[string]int{}
	unsubscribe := s.Subscribe(func(batch []models.AuditEntry) error {
		mu.Lock()
		defer mu.Unlock()
		for _, e := range batch {
			seen[e.ID]++
		}
		return nil
	})
	t.Cleanup(unsubscribe)

	e := entry(models.EventToolExecuted)
	s.Write(e)
	s.Flush(context.Background())
	s.Flush(context.Background()) // second flush must not redeliver

	mu.Lock()
	defer mu.Unlock()
	if seen[e.ID] != 1 {
		t.Errorf("entry delivered %d times, want exactly once", seen[e.ID])
	}
	if len(sink.Entries()) != 1 {
		t.Errorf("sink holds %d entries, want 1", len(sink.Entries()))
	}
}

func TestStreamFullBufferFlushesSynchronously(t *testing.T) {
	sink := NewMemorySink()
	s := NewStream(3, time.Minute, sink)

	for i := 0; i < 3; i++ {
		s.Write(entry(models.EventRequestReceived))
	}
	if got := len(sink.Entries()); got != 3 {
		t.Errorf("sink holds %d entries, want 3 (capacity triggers flush)", got)
	}
	if s.Stats().Buffered != 0 {
		t.Error("buffer must be empty after capacity flush")
	}
}

func TestStreamHandlerErrorsContained(t *testing.T) {
	s := NewStream(100, time.Minute, nil)

	var delivered int
	var mu sync.Mutex
	s.Subscribe(func([]models.AuditEntry) error { return errors.New("broken") })
	s.Subscribe(func([]models.AuditEntry) error { panic("worse") })
	s.Subscribe(func(batch []models.AuditEntry) error {
		mu.Lock()
		delivered += len(batch)
		mu.Unlock()
		return nil
	})

	s.Write(entry(models.EventToolExecuted))
	s.Flush(context.Background())

	mu.Lock()
	defer mu.Unlock()
	if delivered != 1 {
		t.Errorf("healthy subscriber received %d entries, want 1", delivered)
	}
	if s.Stats().HandlerErrors != 2 {
		t.Errorf("handler errors = %d, want 2", s.Stats().HandlerErrors)
	}
}

func TestStreamUnsubscribe(t *testing.T) {
	s := NewStream(100, time.Minute, nil)

	var calls int
	var mu sync.Mutex
	unsubscribe := s.Subscribe(func([]models.AuditEntry) error {
		mu.Lock()
		calls++
		mu.Unlock()
		return nil
	})
	unsubscribe()

	s.Write(entry(models.EventToolExecuted))
	s.Flush(context.Background())

	mu.Lock()
	defer mu.Unlock()
	if calls != 0 {
		t.Errorf("unsubscribed handler called %d times, want 0", calls)
	}
}

func TestStreamQueryByTrace(t *testing.T) {
	s := NewStream(100, time.Minute, nil)

	a := entry(models.EventRequestReceived, func(e *models.AuditEntry) { e.TraceID = "ta" })
	b := entry(models.EventToolExecuted, func(e *models.AuditEntry) { e.TraceID = "tb" })
	c := entry(models.EventToolFailed, func(e *models.AuditEntry) {
		e.TraceID = "ta"
		e.Severity = models.SeverityError
	})
	s.Write(a)
	s.Write(b)
	s.Flush(context.Background()) // flushed entries stay queryable
	s.Write(c)

	got := s.Query(models.AuditFilter{TraceID: "ta"})
	if len(got) != 2 {
		t.Fatalf("query returned %d entries, want 2", len(got))
	}
	if got[0].ID != a.ID || got[1].ID != c.ID {
		t.Error("query must return trace entries oldest first")
	}

	errs := s.Query(models.AuditFilter{Severities: []models.AuditSeverity{models.SeverityError}})
	if len(errs) != 1 || errs[0].ID != c.ID {
		t.Errorf("severity filter returned %v", errs)
	}
}

func containsString(list []string, want string) bool {
	for _, s := range list {
		if s == want {
			return true
		}
	}
	return false
}
