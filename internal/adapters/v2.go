package adapters

import (
	"encoding/json"
	"time"

	"github.com/agentgate/agentgate/gateway/pkg/models"
)

// V2Adapter handles Anthropic-style message payloads. The shape is
// stricter than v1: max_tokens is mandatory, and message content may be
// a plain string or an array of typed blocks.
type V2Adapter struct{}

type v2Payload struct {
	Model     string      `json:"model"`
	Messages  []v2Message `json:"messages"`
	MaxTokens int         `json:"max_tokens"`
	System    string      `json:"system,omitempty"`
	Tools     []v2Tool    `json:"tools,omitempty"`
}

type v2Message struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
}

type v2Block struct {
	Type  string                 `json:"type"`
	Text  string                 `json:"text,omitempty"`
	Name  string                 `json:"name,omitempty"`
	Input map[string]interface{} `json:"input,omitempty"`
}

type v2Tool struct {
	Name string `json:"name"`
}

// blocks decodes the string-or-array content union into typed blocks.
func (m v2Message) blocks() []v2Block {
	if len(m.Content) == 0 {
		return nil
	}
	var s string
	if err := json.Unmarshal(m.Content, &s); err == nil {
		return []v2Block{{Type: "text", Text: s}}
	}
	var bs []v2Block
	if err := json.Unmarshal(m.Content, &bs); err == nil {
		return bs
	}
	return nil
}

func (a *V2Adapter) Protocol() models.ProtocolTag { return models.ProtocolV2 }

func (a *V2Adapter) Parse(raw []byte) (*ParseResult, *models.Error) {
	start := time.Now()

	var p v2Payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, parseError("INVALID_JSON", "payload is not valid JSON")
	}
	if p.Model == "" {
		return nil, parseError("MISSING_MODEL", "model is required")
	}
	if len(p.Messages) == 0 {
		return nil, parseError("MISSING_MESSAGES", "messages must be non-empty")
	}
	if p.MaxTokens <= 0 {
		return nil, parseError("MISSING_MAX_TOKENS", "max_tokens is required and must be positive")
	}

	return &ParseResult{
		Protocol:  models.ProtocolV2,
		StartedAt: start,
		ParsedAt:  time.Now(),
		RawSize:   len(raw),
		Value:     &p,
	}, nil
}

func (a *V2Adapter) Normalize(parsed *ParseResult) (*NormalizeResult, *models.Error) {
	p, ok := parsed.Value.(*v2Payload)
	if !ok {
		return nil, normalizeError("BAD_PARSE_VALUE", "normalize called with foreign parse result")
	}

	rctx := models.RequestContext{}
	var toolUse *v2Block
	for _, m := range p.Messages {
		for _, b := range m.blocks() {
			switch b.Type {
			case "text":
				if b.Text != "" {
					rctx.History = append(rctx.History, models.HistoryTurn{Role: m.Role, Content: b.Text})
				}
			case "tool_use":
				bb := b
				toolUse = &bb
			}
		}
	}

	intent := models.NormalizedIntent{Target: p.Model}

	if toolUse != nil {
		intent.Category = models.CategoryToolCall
		intent.Action = toolUse.Name
		intent.Target = "tool"
		intent.Parameters = toolUse.Input
		intent.Confidence = 1.0
	} else {
		intent.Category = models.CategoryConversation
		intent.Action = "chat"
		intent.Confidence = 0.70
		if len(p.Tools) > 0 {
			intent.Alternatives = append(intent.Alternatives, models.IntentAlternative{
				Action: "tool_call", Confidence: 0.4, Reason: "tools declared but none invoked",
			})
		}
		if p.System != "" {
			intent.Alternatives = append(intent.Alternatives, models.IntentAlternative{
				Action: "task_execution", Confidence: 0.3, Reason: "system prompt constrains the exchange",
			})
		}
	}

	return finish(parsed, intent, rctx)
}
