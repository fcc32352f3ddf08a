package adapters

import (
	"encoding/json"
	"time"

	"github.com/agentgate/agentgate/gateway/pkg/models"
)

// A2AAdapter handles agent-to-agent envelope payloads.
type A2AAdapter struct{}

type a2aPayload struct {
	ID             string      `json:"id"`
	Sender         string      `json:"sender"`
	Recipient      string      `json:"recipient"`
	ConversationID string      `json:"conversation_id,omitempty"`
	Task           *a2aTask    `json:"task,omitempty"`
	Message        *a2aMessage `json:"message,omitempty"`
}

type a2aTask struct {
	Name       string                 `json:"name,omitempty"`
	Type       string                 `json:"type,omitempty"`
	Parameters map[string]interface{} `json:"parameters,omitempty"`
}

type a2aMessage struct {
	Type    string `json:"type,omitempty"`
	Content string `json:"content,omitempty"`
}

func (a *A2AAdapter) Protocol() models.ProtocolTag { return models.ProtocolA2A }

func (a *A2AAdapter) Parse(raw []byte) (*ParseResult, *models.Error) {
	start := time.Now()

	var p a2aPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, parseError("INVALID_JSON", "payload is not valid JSON")
	}
	if p.ID == "" {
		return nil, parseError("MISSING_ID", "id is required")
	}
	if p.Sender == "" {
		return nil, parseError("MISSING_SENDER", "sender is required")
	}
	if p.Recipient == "" {
		return nil, parseError("MISSING_RECIPIENT", "recipient is required")
	}

	return &ParseResult{
		Protocol:  models.ProtocolA2A,
		StartedAt: start,
		ParsedAt:  time.Now(),
		RawSize:   len(raw),
		Value:     &p,
	}, nil
}

func (a *A2AAdapter) Normalize(parsed *ParseResult) (*NormalizeResult, *models.Error) {
	p, ok := parsed.Value.(*a2aPayload)
	if !ok {
		return nil, normalizeError("BAD_PARSE_VALUE", "normalize called with foreign parse result")
	}

	rctx := models.RequestContext{
		SessionID: p.ConversationID,
		UserID:    p.Sender,
	}
	intent := models.NormalizedIntent{Target: p.Recipient}

	switch {
	case p.Task != nil:
		intent.Category = models.CategoryActionExecution
		intent.Action = p.Task.Name
		if intent.Action == "" {
			intent.Action = p.Task.Type
		}
		if intent.Action == "" {
			intent.Action = "execute_task"
		}
		intent.Parameters = p.Task.Parameters
		intent.Confidence = 0.95

	case p.Message != nil:
		if p.Message.Type == "request" {
			intent.Category = models.CategoryInformationRequest
			intent.Confidence = 0.90
		} else {
			intent.Category = models.CategoryConversation
			intent.Confidence = 0.70
		}
		intent.Action = "message"
		if p.Message.Content != "" {
			intent.Parameters = map[string]interface{}{"content": p.Message.Content}
		}

	default:
		intent.Category = models.CategoryConversation
		intent.Action = "contact"
		intent.Confidence = 0.70
		intent.Alternatives = []models.IntentAlternative{
			{Action: "a2a_discovery", Confidence: 0.3, Reason: "envelope carries neither task nor message"},
		}
	}

	return finish(parsed, intent, rctx)
}
