// Package audit converts raw event records into compact human-readable
// views and buffers entries for multi-subscriber fan-out and filtered
// query. Every view is designed to be understood in five seconds.
package audit

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/agentgate/agentgate/gateway/pkg/models"
)

// BuildView projects one entry into its five-second view. Related holds
// other entries sharing the trace, used only for context counts.
func BuildView(entry models.AuditEntry, related []models.AuditEntry) models.AuditView {
	now := time.Now()
	what := summarize(entry)
	details := models.CanonicalJSON(entry.Details)
	detailSize := len(details)
	title := titleFor(entry)

	relatedIDs := make([]string, 0, len(related))
	for _, r := range related {
		if r.ID != entry.ID {
			relatedIDs = append(relatedIDs, r.ID)
		}
	}

	view := models.AuditView{
		Title: title,
		Summary: models.ViewSummary{
			What:   what,
			Who:    entry.Actor,
			When:   models.RelativeTime(entry.Timestamp, now),
			Impact: impactFor(entry),
			Status: statusFor(entry),
		},
		Details: models.ViewDetails{
			Before:  entry.Before,
			After:   entry.After,
			Changes: DetectChanges(entry.Before, entry.After),
			Context: models.ViewContext{
				TraceID:        entry.TraceID,
				RequestID:      entry.RequestID,
				EventType:      entry.EventType,
				Severity:       entry.Severity,
				Timestamp:      entry.Timestamp,
				Actor:          entry.Actor,
				RelatedEvents:  len(relatedIDs),
				HasHumanReview: entry.HumanReview != nil,
			},
			RelatedEntries: relatedIDs,
		},
		Actions: actionsFor(entry),
		Metadata: models.ViewMetadata{
			CreatedAt:              now,
			ComprehensionTargetSec: models.ComprehensionTargetSec,
			EstimatedReadTimeSec:   estimateReadTime(title+" "+what, detailSize),
			Complexity:             complexityFor(entry, detailSize),
		},
	}
	return view
}

// BuildBatchView condenses two or more entries sharing a trace id into
// one view.
func BuildBatchView(entries []models.AuditEntry) models.AuditView {
	if len(entries) == 1 {
		return BuildView(entries[0], nil)
	}
	now := time.Now()
	first := entries[0]

	impact := models.ImpactLow
	for _, e := range entries {
		impact = worseImpact(impact, impactFor(e))
	}

	ids := make([]string, len(entries))
	for i, e := range entries {
		ids[i] = e.ID
	}

	return models.AuditView{
		Title: fmt.Sprintf("Batch: %d events", len(entries)),
		Summary: models.ViewSummary{
			What:   fmt.Sprintf("%d events on trace %s", len(entries), first.TraceID),
			Who:    first.Actor,
			When:   models.RelativeTime(first.Timestamp, now),
			Impact: impact,
			Status: batchStatus(entries),
		},
		Details: models.ViewDetails{
			Context: models.ViewContext{
				TraceID:       first.TraceID,
				RequestID:     first.RequestID,
				Timestamp:     first.Timestamp,
				Actor:         first.Actor,
				RelatedEvents: len(entries) - 1,
			},
			RelatedEntries: ids,
		},
		Actions: []string{"View Details"},
		Metadata: models.ViewMetadata{
			CreatedAt:              now,
			ComprehensionTargetSec: models.ComprehensionTargetSec,
			EstimatedReadTimeSec:   minInt(len(entries)*2, 30),
			Complexity:             models.ComplexityModerate,
		},
	}
}

// DetectChanges diffs two snapshot maps by canonical JSON value.
func DetectChanges(before, after map[string]interface{}) []models.FieldChange {
	var changes []models.FieldChange
	for k, av := range after {
		bv, ok := before[k]
		if !ok {
			changes = append(changes, models.FieldChange{Field: k, Kind: "added", New: av})
			continue
		}
		if models.CanonicalJSON(bv) != models.CanonicalJSON(av) {
			changes = append(changes, models.FieldChange{Field: k, Kind: "modified", Old: bv, New: av})
		}
	}
	for k, bv := range before {
		if _, ok := after[k]; !ok {
			changes = append(changes, models.FieldChange{Field: k, Kind: "removed", Old: bv})
		}
	}
	return changes
}

func titleFor(e models.AuditEntry) string {
	switch e.EventType {
	case models.EventToolExecuted:
		if name, ok := e.Details["tool"].(string); ok && name != "" {
			return "Tool Executed: " + name
		}
		return "Tool Executed"
	case models.EventHumanApprovalRequested:
		return "Approval Required"
	case models.EventSecurityAlert:
		return "Security Alert"
	default:
		return titleCase(string(e.EventType))
	}
}

func summarize(e models.AuditEntry) string {
	switch e.EventType {
	case models.EventRequestReceived:
		return fmt.Sprintf("Request received via %v", e.Details["protocol"])
	case models.EventIntentClassified:
		return fmt.Sprintf("Intent classified as %v (%v)", e.Details["category"], e.Details["action"])
	case models.EventRoutingDecided:
		return fmt.Sprintf("Routed to %v", e.Details["tool"])
	case models.EventRoutingFailed:
		return "No tool matched the intent"
	case models.EventHumanApprovalRequested:
		return fmt.Sprintf("Awaiting approval for %v", e.Details["tool"])
	case models.EventCredentialResolved:
		return fmt.Sprintf("Credential %v resolved", e.Details["credential_id"])
	case models.EventCredentialMissing:
		return fmt.Sprintf("Credential %v could not be resolved", e.Details["credential_id"])
	case models.EventSandboxCreated:
		return fmt.Sprintf("Sandbox created in %vms", e.Details["cold_start_ms"])
	case models.EventToolExecuted:
		return fmt.Sprintf("%v completed in %vms", e.Details["tool"], e.Details["total_ms"])
	case models.EventToolFailed:
		return fmt.Sprintf("%v failed: %v", e.Details["tool"], e.Details["error"])
	case models.EventSecurityAlert:
		return fmt.Sprintf("Security alert: %v", e.Details["reason"])
	default:
		return e.Action
	}
}

// impactFor grades an entry, first match wins.
func impactFor(e models.AuditEntry) models.ViewImpact {
	switch {
	case e.EventType == models.EventSecurityAlert:
		return models.ImpactCritical
	case e.EventType == models.EventToolFailed && e.Severity == models.SeverityError:
		return models.ImpactHigh
	case e.EventType == models.EventHumanApprovalRequested:
		return models.ImpactHigh
	case e.Severity == models.SeverityError:
		return models.ImpactHigh
	case e.EventType == models.EventToolExecuted:
		return models.ImpactMedium
	case e.EventType == models.EventIntentClassified:
		return models.ImpactMedium
	default:
		return models.ImpactLow
	}
}

func statusFor(e models.AuditEntry) string {
	if e.HumanReview != nil {
		return string(e.HumanReview.Decision)
	}
	if e.EventType == models.EventHumanApprovalRequested {
		return "pending"
	}
	if e.Severity == models.SeverityError || e.Severity == models.SeverityCritical {
		return "failed"
	}
	return "completed"
}

func batchStatus(entries []models.AuditEntry) string {
	anyRejected := false
	for _, e := range entries {
		if e.EventType == models.EventHumanApprovalRequested && e.HumanReview == nil {
			return "pending"
		}
		if e.HumanReview != nil && e.HumanReview.Decision == models.ReviewRejected {
			anyRejected = true
		}
	}
	if anyRejected {
		return "rejected"
	}
	return "approved"
}

func actionsFor(e models.AuditEntry) []string {
	actions := []string{"View Details"}
	if e.EventType == models.EventHumanApprovalRequested && e.HumanReview == nil {
		actions = append(actions, "Approve", "Reject", "Modify")
	}
	return actions
}

// estimateReadTime is ceil(words/3.3 + detailSize/100 * 0.5) seconds.
func estimateReadTime(text string, detailSize int) int {
	words := len(strings.Fields(text))
	return int(math.Ceil(float64(words)/3.3 + float64(detailSize)/100.0*0.5))
}

func complexityFor(e models.AuditEntry, detailSize int) models.ViewComplexity {
	switch {
	case e.EventType == models.EventRequestReceived:
		return models.ComplexitySimple
	case e.EventType == models.EventSecurityAlert:
		return models.ComplexityComplex
	case detailSize > 5000:
		return models.ComplexityComplex
	case detailSize > 1000:
		return models.ComplexityModerate
	default:
		return models.ComplexitySimple
	}
}

func worseImpact(a, b models.ViewImpact) models.ViewImpact {
	rank := map[models.ViewImpact]int{
		models.ImpactLow:      0,
		models.ImpactMedium:   1,
		models.ImpactHigh:     2,
		models.ImpactCritical: 3,
	}
	if rank[b] > rank[a] {
		return b
	}
	return a
}

func titleCase(eventType string) string {
	parts := strings.Split(eventType, "_")
	for i, p := range parts {
		if p != "" {
			parts[i] = strings.ToUpper(p[:1]) + p[1:]
		}
	}
	return strings.Join(parts, " ")
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
