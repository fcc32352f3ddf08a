package adapters

import (
	"encoding/json"
	"time"

	"github.com/agentgate/agentgate/gateway/pkg/models"
)

// V1Adapter handles OpenAI-style chat completion payloads: model plus a
// non-empty messages array, optionally with tools and tool_calls.
type V1Adapter struct{}

type v1Payload struct {
	Model       string      `json:"model"`
	Messages    []v1Message `json:"messages"`
	Tools       []v1Tool    `json:"tools,omitempty"`
	Temperature *float64    `json:"temperature,omitempty"`
	User        string      `json:"user,omitempty"`
}

type v1Message struct {
	Role      string       `json:"role"`
	Content   string       `json:"content,omitempty"`
	ToolCalls []v1ToolCall `json:"tool_calls,omitempty"`
}

type v1ToolCall struct {
	ID       string `json:"id,omitempty"`
	Type     string `json:"type,omitempty"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments,omitempty"`
	} `json:"function"`
}

type v1Tool struct {
	Type     string `json:"type"`
	Function struct {
		Name string `json:"name"`
	} `json:"function"`
}

func (a *V1Adapter) Protocol() models.ProtocolTag { return models.ProtocolV1 }

func (a *V1Adapter) Parse(raw []byte) (*ParseResult, *models.Error) {
	start := time.Now()

	var p v1Payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, parseError("INVALID_JSON", "payload is not valid JSON")
	}
	if p.Model == "" {
		return nil, parseError("MISSING_MODEL", "model is required")
	}
	if len(p.Messages) == 0 {
		return nil, parseError("MISSING_MESSAGES", "messages must be non-empty")
	}

	return &ParseResult{
		Protocol:  models.ProtocolV1,
		StartedAt: start,
		ParsedAt:  time.Now(),
		RawSize:   len(raw),
		Value:     &p,
	}, nil
}

func (a *V1Adapter) Normalize(parsed *ParseResult) (*NormalizeResult, *models.Error) {
	p, ok := parsed.Value.(*v1Payload)
	if !ok {
		return nil, normalizeError("BAD_PARSE_VALUE", "normalize called with foreign parse result")
	}

	rctx := models.RequestContext{UserID: p.User}
	for _, m := range p.Messages {
		if m.Content != "" {
			rctx.History = append(rctx.History, models.HistoryTurn{Role: m.Role, Content: m.Content})
		}
	}

	intent := models.NormalizedIntent{Target: p.Model}

	// The last assistant turn with tool calls is the definitive intent.
	var call *v1ToolCall
	for i := len(p.Messages) - 1; i >= 0; i-- {
		if p.Messages[i].Role == "assistant" && len(p.Messages[i].ToolCalls) > 0 {
			call = &p.Messages[i].ToolCalls[0]
			break
		}
	}

	if call != nil {
		intent.Category = models.CategoryToolCall
		intent.Action = call.Function.Name
		intent.Target = "tool"
		intent.Confidence = 1.0
		if call.Function.Arguments != "" {
			var args map[string]interface{}
			if err := json.Unmarshal([]byte(call.Function.Arguments), &args); err == nil {
				intent.Parameters = args
			}
		}
	} else {
		intent.Category = models.CategoryConversation
		intent.Action = "chat"
		intent.Confidence = 0.70
		if len(p.Tools) > 0 {
			intent.Alternatives = append(intent.Alternatives, models.IntentAlternative{
				Action: "tool_call", Confidence: 0.4, Reason: "tools declared but none invoked",
			})
		}
		if p.Temperature != nil && *p.Temperature < 0.3 {
			intent.Alternatives = append(intent.Alternatives, models.IntentAlternative{
				Action: "analysis", Confidence: 0.3, Reason: "low temperature suggests deterministic task",
			})
		}
	}

	return finish(parsed, intent, rctx)
}
