package adapters

import (
	"encoding/json"
	"time"

	"github.com/agentgate/agentgate/gateway/pkg/models"
)

// ACPAdapter handles Agent Communication Protocol payloads: a typed
// header plus a free-form body.
type ACPAdapter struct{}

type acpPayload struct {
	Header *acpHeader             `json:"header"`
	Body   map[string]interface{} `json:"body"`
}

type acpHeader struct {
	MessageType string `json:"message_type"`
	Sender      string `json:"sender,omitempty"`
	SessionID   string `json:"session_id,omitempty"`
}

func (a *ACPAdapter) Protocol() models.ProtocolTag { return models.ProtocolACP }

func (a *ACPAdapter) Parse(raw []byte) (*ParseResult, *models.Error) {
	start := time.Now()

	var p acpPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, parseError("INVALID_JSON", "payload is not valid JSON")
	}
	if p.Header == nil {
		return nil, parseError("MISSING_HEADER", "header is required")
	}
	if p.Body == nil {
		return nil, parseError("MISSING_BODY", "body is required")
	}

	return &ParseResult{
		Protocol:  models.ProtocolACP,
		StartedAt: start,
		ParsedAt:  time.Now(),
		RawSize:   len(raw),
		Value:     &p,
	}, nil
}

func (a *ACPAdapter) Normalize(parsed *ParseResult) (*NormalizeResult, *models.Error) {
	p, ok := parsed.Value.(*acpPayload)
	if !ok {
		return nil, normalizeError("BAD_PARSE_VALUE", "normalize called with foreign parse result")
	}

	rctx := models.RequestContext{
		SessionID: p.Header.SessionID,
		UserID:    p.Header.Sender,
	}

	intent := models.NormalizedIntent{
		Action:     p.Header.MessageType,
		Parameters: p.Body,
	}
	if cmd, ok := p.Body["command"].(string); ok && cmd != "" {
		intent.Action = cmd
	}
	if target, ok := p.Body["target"].(string); ok {
		intent.Target = target
	}

	switch p.Header.MessageType {
	case "command":
		intent.Category = models.CategoryActionExecution
		intent.Confidence = 0.95
	case "query":
		intent.Category = models.CategoryInformationRequest
		intent.Confidence = 0.90
	default:
		intent.Category = models.CategoryConversation
		intent.Confidence = 0.70
	}

	return finish(parsed, intent, rctx)
}
