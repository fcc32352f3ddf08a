package adapters

import (
	"encoding/json"
	"time"

	"github.com/agentgate/agentgate/gateway/pkg/models"
)

// MCPAdapter handles Model Context Protocol JSON-RPC 2.0 payloads.
type MCPAdapter struct{}

type mcpPayload struct {
	Jsonrpc string          `json:"jsonrpc"`
	ID      interface{}     `json:"id"`
	Method  string          `json:"method"`
	Params  mcpParams       `json:"params"`
	Meta    json.RawMessage `json:"_meta,omitempty"`
}

type mcpParams struct {
	Name      string                 `json:"name,omitempty"`
	Arguments map[string]interface{} `json:"arguments,omitempty"`
	URI       string                 `json:"uri,omitempty"`
	SessionID string                 `json:"sessionId,omitempty"`
}

func (a *MCPAdapter) Protocol() models.ProtocolTag { return models.ProtocolMCP }

func (a *MCPAdapter) Parse(raw []byte) (*ParseResult, *models.Error) {
	start := time.Now()

	var p mcpPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, parseError("INVALID_JSON", "payload is not valid JSON")
	}
	if p.Jsonrpc != "2.0" {
		return nil, parseError("INVALID_JSONRPC", `jsonrpc must be "2.0"`)
	}
	if p.Method == "" {
		return nil, parseError("MISSING_METHOD", "method is required")
	}

	return &ParseResult{
		Protocol:  models.ProtocolMCP,
		StartedAt: start,
		ParsedAt:  time.Now(),
		RawSize:   len(raw),
		Value:     &p,
	}, nil
}

func (a *MCPAdapter) Normalize(parsed *ParseResult) (*NormalizeResult, *models.Error) {
	p, ok := parsed.Value.(*mcpPayload)
	if !ok {
		return nil, normalizeError("BAD_PARSE_VALUE", "normalize called with foreign parse result")
	}

	rctx := models.RequestContext{SessionID: p.Params.SessionID}
	intent := models.NormalizedIntent{}

	switch p.Method {
	case "tools/call":
		intent.Category = models.CategoryToolCall
		intent.Action = p.Params.Name
		if intent.Action == "" {
			intent.Action = "tools/call"
		}
		intent.Target = "tool"
		intent.Parameters = p.Params.Arguments
		intent.Confidence = 1.0

	case "resources/read":
		intent.Category = models.CategoryDataRetrieval
		intent.Action = "resources/read"
		intent.Target = "resource"
		if p.Params.URI != "" {
			intent.Parameters = map[string]interface{}{"uri": p.Params.URI}
		}
		intent.Confidence = 0.95

	case "prompts/get":
		intent.Category = models.CategoryInformationRequest
		intent.Action = "prompts/get"
		intent.Target = "prompt"
		if p.Params.Name != "" {
			intent.Parameters = map[string]interface{}{"name": p.Params.Name}
		}
		intent.Confidence = 0.95

	default:
		intent.Category = models.CategoryConversation
		intent.Action = p.Method
		intent.Target = "assistant"
		intent.Confidence = 0.70
		intent.Alternatives = []models.IntentAlternative{
			{Action: "help", Confidence: 0.2, Reason: "unrecognized MCP method"},
		}
	}

	return finish(parsed, intent, rctx)
}
