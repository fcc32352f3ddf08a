package models

import "time"

// ── Audit Entries ────────────────────────────────────────────

// AuditEventType is the closed set of consequential pipeline events.
type AuditEventType string

const (
	EventRequestReceived        AuditEventType = "request_received"
	EventIntentClassified       AuditEventType = "intent_classified"
	EventRoutingDecided         AuditEventType = "routing_decided"
	EventRoutingFailed          AuditEventType = "routing_failed"
	EventHumanApprovalRequested AuditEventType = "human_approval_requested"
	EventCredentialResolved     AuditEventType = "credential_resolved"
	EventCredentialMissing      AuditEventType = "credential_missing"
	EventSandboxCreated         AuditEventType = "sandbox_created"
	EventToolExecuted           AuditEventType = "tool_executed"
	EventToolFailed             AuditEventType = "tool_failed"
	EventSecurityAlert          AuditEventType = "security_alert"
)

// AuditSeverity grades an audit entry.
type AuditSeverity string

const (
	SeverityInfo     AuditSeverity = "info"
	SeverityWarning  AuditSeverity = "warning"
	SeverityError    AuditSeverity = "error"
	SeverityCritical AuditSeverity = "critical"
)

// ReviewDecision is a human reviewer's verdict.
type ReviewDecision string

const (
	ReviewApproved ReviewDecision = "approved"
	ReviewRejected ReviewDecision = "rejected"
	ReviewModified ReviewDecision = "modified"
)

// HumanReview records a reviewer's decision on an entry. Set at most once.
type HumanReview struct {
	ReviewerID    string                 `json:"reviewer_id"`
	Decision      ReviewDecision         `json:"decision"`
	Timestamp     time.Time              `json:"timestamp"`
	Comments      string                 `json:"comments,omitempty"`
	Modifications map[string]interface{} `json:"modifications,omitempty"`
}

// AuditEntry is an append-only record of one consequential event.
type AuditEntry struct {
	ID          string                 `json:"id"`
	Timestamp   time.Time              `json:"timestamp"`
	TraceID     string                 `json:"trace_id"`
	RequestID   string                 `json:"request_id"`
	EventType   AuditEventType         `json:"event_type"`
	Severity    AuditSeverity          `json:"severity"`
	Actor       string                 `json:"actor"`
	Action      string                 `json:"action"`
	Target      string                 `json:"target"`
	Details     map[string]interface{} `json:"details,omitempty"`
	Before      map[string]interface{} `json:"before,omitempty"`
	After       map[string]interface{} `json:"after,omitempty"`
	HumanReview *HumanReview           `json:"human_review,omitempty"`
}

// AuditFilter selects entries by optional predicates. Zero values match
// everything.
type AuditFilter struct {
	StartTime  *time.Time
	EndTime    *time.Time
	EventTypes []AuditEventType
	Severities []AuditSeverity
	Actor      string
	TraceID    string
}

// Matches reports whether the entry passes every set predicate.
func (f AuditFilter) Matches(e AuditEntry) bool {
	if f.StartTime != nil && e.Timestamp.Before(*f.StartTime) {
		return false
	}
	if f.EndTime != nil && e.Timestamp.After(*f.EndTime) {
		return false
	}
	if len(f.EventTypes) > 0 && !containsEventType(f.EventTypes, e.EventType) {
		return false
	}
	if len(f.Severities) > 0 && !containsSeverity(f.Severities, e.Severity) {
		return false
	}
	if f.Actor != "" && e.Actor != f.Actor {
		return false
	}
	if f.TraceID != "" && e.TraceID != f.TraceID {
		return false
	}
	return true
}

func containsEventType(list []AuditEventType, t AuditEventType) bool {
	for _, x := range list {
		if x == t {
			return true
		}
	}
	return false
}

func containsSeverity(list []AuditSeverity, s AuditSeverity) bool {
	for _, x := range list {
		if x == s {
			return true
		}
	}
	return false
}

// ── Audit Views ──────────────────────────────────────────────

// ComprehensionTargetSec is the read-time budget every view is designed for.
const ComprehensionTargetSec = 5

// ViewImpact grades how consequential an entry is for the reviewer.
type ViewImpact string

const (
	ImpactCritical ViewImpact = "critical"
	ImpactHigh     ViewImpact = "high"
	ImpactMedium   ViewImpact = "medium"
	ImpactLow      ViewImpact = "low"
)

// ViewComplexity estimates cognitive load of a view.
type ViewComplexity string

const (
	ComplexitySimple   ViewComplexity = "simple"
	ComplexityModerate ViewComplexity = "moderate"
	ComplexityComplex  ViewComplexity = "complex"
)

// ViewSummary is the at-a-glance block of an audit view.
type ViewSummary struct {
	What   string     `json:"what"`
	Who    string     `json:"who"`
	When   string     `json:"when"`
	Impact ViewImpact `json:"impact"`
	Status string     `json:"status"`
}

// FieldChange is one difference between before/after snapshots.
type FieldChange struct {
	Field string      `json:"field"`
	Kind  string      `json:"kind"` // added, removed, modified
	Old   interface{} `json:"old,omitempty"`
	New   interface{} `json:"new,omitempty"`
}

// ViewContext is the drill-down context block.
type ViewContext struct {
	TraceID        string         `json:"trace_id"`
	RequestID      string         `json:"request_id"`
	EventType      AuditEventType `json:"event_type"`
	Severity       AuditSeverity  `json:"severity"`
	Timestamp      time.Time      `json:"timestamp"`
	Actor          string         `json:"actor"`
	RelatedEvents  int            `json:"related_events"`
	HasHumanReview bool           `json:"has_human_review"`
}

// ViewDetails is the expandable detail block of an audit view.
type ViewDetails struct {
	Before         map[string]interface{} `json:"before,omitempty"`
	After          map[string]interface{} `json:"after,omitempty"`
	Changes        []FieldChange          `json:"changes,omitempty"`
	Context        ViewContext            `json:"context"`
	RelatedEntries []string               `json:"related_entries,omitempty"`
}

// ViewMetadata carries the comprehension telemetry for one view.
type ViewMetadata struct {
	CreatedAt              time.Time      `json:"created_at"`
	ComprehensionTargetSec int            `json:"comprehension_target_sec"`
	EstimatedReadTimeSec   int            `json:"estimated_read_time_sec"`
	Complexity             ViewComplexity `json:"complexity"`
}

// AuditView is the human-optimized projection of one or more audit
// entries, designed to be understood in five seconds or less.
type AuditView struct {
	Title    string       `json:"title"`
	Summary  ViewSummary  `json:"summary"`
	Details  ViewDetails  `json:"details"`
	Actions  []string     `json:"actions"`
	Metadata ViewMetadata `json:"metadata"`
}
