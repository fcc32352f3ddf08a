package adapters

import (
	"encoding/json"
	"time"

	"github.com/agentgate/agentgate/gateway/pkg/models"
)

// UCPAdapter handles Universal Context Protocol payloads: an operation
// verb applied to a resource within a shared context.
type UCPAdapter struct{}

type ucpPayload struct {
	ContextID string                 `json:"context_id"`
	Operation string                 `json:"operation"`
	Resource  string                 `json:"resource,omitempty"`
	Data      map[string]interface{} `json:"data,omitempty"`
	UserID    string                 `json:"user_id,omitempty"`
}

// ucpCategories maps operation verbs to intent categories. Unknown verbs
// fall back to conversation.
var ucpCategories = map[string]models.IntentCategory{
	"read":    models.CategoryDataRetrieval,
	"write":   models.CategoryActionExecution,
	"update":  models.CategoryActionExecution,
	"delete":  models.CategoryActionExecution,
	"query":   models.CategoryInformationRequest,
	"search":  models.CategoryInformationRequest,
	"analyze": models.CategoryAnalysis,
	"generate": models.CategoryCodeGeneration,
}

func (a *UCPAdapter) Protocol() models.ProtocolTag { return models.ProtocolUCP }

func (a *UCPAdapter) Parse(raw []byte) (*ParseResult, *models.Error) {
	start := time.Now()

	var p ucpPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, parseError("INVALID_JSON", "payload is not valid JSON")
	}
	if p.ContextID == "" {
		return nil, parseError("MISSING_CONTEXT_ID", "context_id is required")
	}
	if p.Operation == "" {
		return nil, parseError("MISSING_OPERATION", "operation is required")
	}

	return &ParseResult{
		Protocol:  models.ProtocolUCP,
		StartedAt: start,
		ParsedAt:  time.Now(),
		RawSize:   len(raw),
		Value:     &p,
	}, nil
}

func (a *UCPAdapter) Normalize(parsed *ParseResult) (*NormalizeResult, *models.Error) {
	p, ok := parsed.Value.(*ucpPayload)
	if !ok {
		return nil, normalizeError("BAD_PARSE_VALUE", "normalize called with foreign parse result")
	}

	rctx := models.RequestContext{
		SessionID: p.ContextID,
		UserID:    p.UserID,
	}

	intent := models.NormalizedIntent{
		Action:     p.Operation,
		Target:     p.Resource,
		Parameters: p.Data,
	}
	if intent.Target == "" {
		intent.Target = p.ContextID
	}

	if cat, mapped := ucpCategories[p.Operation]; mapped {
		intent.Category = cat
		intent.Confidence = 0.95
	} else {
		intent.Category = models.CategoryConversation
		intent.Confidence = 0.70
	}

	return finish(parsed, intent, rctx)
}
