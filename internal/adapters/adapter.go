// Package adapters implements the protocol-normalization layer: six
// concrete adapters behind one parse/normalize contract, plus a
// dispatcher that selects an adapter and yields a normalized request.
//
// Adapters never panic and never return raw decode errors: parse and
// normalize return discriminated results that the dispatcher converts
// into a single typed error at the boundary.
package adapters

import (
	"context"
	"time"

	"github.com/agentgate/agentgate/gateway/pkg/models"
	"github.com/rs/zerolog/log"
)

// MaxPayloadBytes is the adapter-enforced cap on raw payload size (10 MiB).
const MaxPayloadBytes = 10 << 20

// OverheadBudget is the per-call parse+normalize budget. Exceeding it
// emits a warning but does not abort the request.
const OverheadBudget = 5 * time.Millisecond

// ParseResult is the typed output of a successful parse plus call metadata.
type ParseResult struct {
	Protocol  models.ProtocolTag
	StartedAt time.Time
	ParsedAt  time.Time
	RawSize   int

	// Value is the adapter-specific decoded payload, consumed by the
	// same adapter's Normalize.
	Value interface{}
}

// NormalizeResult is the output of a successful normalize.
type NormalizeResult struct {
	Intent        models.NormalizedIntent
	Context       models.RequestContext
	ParseTime     time.Duration
	NormalizeTime time.Duration
}

// Adapter is the shared contract every protocol implements.
type Adapter interface {
	// Protocol returns the tag this adapter handles.
	Protocol() models.ProtocolTag

	// Parse validates the protocol's mandatory fields and returns the
	// typed payload. A nil *models.Error means success.
	Parse(raw []byte) (*ParseResult, *models.Error)

	// Normalize consumes a successful parse and emits the intent.
	Normalize(parsed *ParseResult) (*NormalizeResult, *models.Error)
}

// Dispatcher selects an adapter by protocol tag and converts raw
// payloads into normalized requests.
type Dispatcher struct {
	adapters map[models.ProtocolTag]Adapter
	order    []models.ProtocolTag
}

// NewDispatcher creates a dispatcher with all six built-in adapters
// registered. Detection probes v2 before v1: the v2 shape requires
// max_tokens, so it must be tried before the laxer v1 shape claims it.
func NewDispatcher() *Dispatcher {
	d := &Dispatcher{adapters: make(map[models.ProtocolTag]Adapter)}
	for _, a := range []Adapter{
		&MCPAdapter{},
		&A2AAdapter{},
		&UCPAdapter{},
		&ACPAdapter{},
		&V2Adapter{},
		&V1Adapter{},
	} {
		d.adapters[a.Protocol()] = a
		d.order = append(d.order, a.Protocol())
	}
	return d
}

// DetectProtocol runs each registered adapter's parse in fixed order and
// returns the tag of the first that succeeds.
func (d *Dispatcher) DetectProtocol(raw []byte) (models.ProtocolTag, bool) {
	if len(raw) == 0 || len(raw) > MaxPayloadBytes {
		return "", false
	}
	for _, tag := range d.order {
		if _, perr := d.adapters[tag].Parse(raw); perr == nil {
			return tag, true
		}
	}
	return "", false
}

// Convert parses and normalizes raw under the given tag and assembles
// the immutable NormalizedRequest.
func (d *Dispatcher) Convert(ctx context.Context, raw []byte, tag models.ProtocolTag, traceID string) (*models.NormalizedRequest, error) {
	if len(raw) > MaxPayloadBytes {
		return nil, models.NewError(models.KindParseError, "PAYLOAD_TOO_LARGE",
			"raw payload exceeds 10 MiB").
			WithSuggestion("split the request or strip embedded content")
	}

	adapter, ok := d.adapters[tag]
	if !ok {
		return nil, models.NewError(models.KindUnsupportedProtocol, "UNSUPPORTED_PROTOCOL",
			"unknown protocol tag: "+string(tag)).
			WithSuggestion("use one of: mcp, a2a, ucp, acp, v1, v2")
	}

	parsed, perr := adapter.Parse(raw)
	if perr != nil {
		return nil, perr
	}

	normalized, nerr := adapter.Normalize(parsed)
	if nerr != nil {
		return nil, nerr
	}

	if traceID == "" {
		traceID = models.NewID()
	}

	overhead := normalized.ParseTime + normalized.NormalizeTime
	if overhead > OverheadBudget {
		log.Warn().
			Str("protocol", string(tag)).
			Dur("parse", normalized.ParseTime).
			Dur("normalize", normalized.NormalizeTime).
			Msg("Adapter overhead exceeded 5ms budget")
	}

	req := &models.NormalizedRequest{
		ID:        models.NewID(),
		CreatedAt: time.Now().UTC(),
		Protocol:  tag,
		Raw:       append([]byte(nil), raw...),
		Intent:    normalized.Intent,
		Context:   normalized.Context,
		Metadata: models.RequestMetadata{
			Priority:   "normal",
			AuditLevel: "standard",
			TraceID:    traceID,
		},
	}
	return req, nil
}

// finish stamps the normalize-side durations onto a result.
func finish(parsed *ParseResult, intent models.NormalizedIntent, rctx models.RequestContext) (*NormalizeResult, *models.Error) {
	intent.ID = models.NewID()
	return &NormalizeResult{
		Intent:        intent,
		Context:       rctx,
		ParseTime:     parsed.ParsedAt.Sub(parsed.StartedAt),
		NormalizeTime: time.Since(parsed.ParsedAt),
	}, nil
}

func parseError(code, msg string) *models.Error {
	return models.NewError(models.KindParseError, code, msg)
}

func normalizeError(code, msg string) *models.Error {
	return models.NewError(models.KindNormalizeError, code, msg)
}
