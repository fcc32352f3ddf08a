package api

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/agentgate/agentgate/gateway/internal/audit"
	"github.com/agentgate/agentgate/gateway/internal/catalog"
	"github.com/agentgate/agentgate/gateway/internal/config"
	"github.com/agentgate/agentgate/gateway/internal/embeddings"
	"github.com/agentgate/agentgate/gateway/internal/pipeline"
	"github.com/agentgate/agentgate/gateway/pkg/contracts"
	"github.com/agentgate/agentgate/gateway/pkg/models"
)

// Handlers holds the wired pipeline components the HTTP surface exposes.
type Handlers struct {
	Config     *config.Config
	Gateway    *pipeline.Gateway
	Converter  contracts.ProtocolConverter
	Catalog    *catalog.Catalog
	Stream     *audit.Stream
	Runtime    contracts.SandboxRuntime
	Embeddings *embeddings.Service
	Resolver   contracts.CredentialResolver
	Sink       contracts.AuditSink
	Views      *audit.ViewMeter
}

// gatewayRequest is the envelope for convert and process calls. When
// protocol is empty the payload is probed in detection order.
type gatewayRequest struct {
	Protocol models.ProtocolTag `json:"protocol,omitempty"`
	Payload  json.RawMessage    `json:"payload"`
	TraceID  string             `json:"trace_id,omitempty"`
}

func (h *Handlers) decodeGatewayRequest(w http.ResponseWriter, r *http.Request) (*gatewayRequest, bool) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 12<<20))
	if err != nil {
		writeError(w, models.NewError(models.KindParseError, "READ_BODY", "could not read request body"))
		return nil, false
	}

	var req gatewayRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, models.NewError(models.KindParseError, "INVALID_JSON", "request body is not valid JSON"))
		return nil, false
	}
	if len(req.Payload) == 0 {
		writeError(w, models.NewError(models.KindParseError, "MISSING_PAYLOAD", "payload is required"))
		return nil, false
	}

	if req.Protocol == "" {
		tag, ok := h.Converter.DetectProtocol(req.Payload)
		if !ok {
			writeError(w, models.NewError(models.KindUnsupportedProtocol, "UNDETECTED_PROTOCOL",
				"payload does not match any supported protocol").
				WithSuggestion("set the protocol field explicitly"))
			return nil, false
		}
		req.Protocol = tag
	}
	return &req, true
}

// handleProcess runs a payload through the full pipeline.
func (h *Handlers) handleProcess(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeGatewayRequest(w, r)
	if !ok {
		return
	}

	resp, err := h.Gateway.Process(r.Context(), req.Payload, req.Protocol, req.TraceID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleConvert normalizes a payload without routing it.
func (h *Handlers) handleConvert(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeGatewayRequest(w, r)
	if !ok {
		return
	}

	normalized, err := h.Gateway.Convert(r.Context(), req.Payload, req.Protocol, req.TraceID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, normalized)
}

// handleAudit queries buffered and recently flushed audit entries.
// With ?view=true each entry is projected into its five-second view.
func (h *Handlers) handleAudit(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := models.AuditFilter{
		Actor:   q.Get("actor"),
		TraceID: q.Get("trace_id"),
	}
	for _, t := range splitCSV(q.Get("event_type")) {
		filter.EventTypes = append(filter.EventTypes, models.AuditEventType(t))
	}
	for _, s := range splitCSV(q.Get("severity")) {
		filter.Severities = append(filter.Severities, models.AuditSeverity(s))
	}
	if ts, err := time.Parse(time.RFC3339, q.Get("start")); err == nil {
		filter.StartTime = &ts
	}
	if ts, err := time.Parse(time.RFC3339, q.Get("end")); err == nil {
		filter.EndTime = &ts
	}

	entries := h.Stream.Query(filter)

	if q.Get("view") == "true" {
		byTrace := make(map[string][]models.AuditEntry)
		for _, e := range entries {
			byTrace[e.TraceID] = append(byTrace[e.TraceID], e)
		}
		views := make([]models.AuditView, 0, len(entries))
		for _, e := range entries {
			v := audit.BuildView(e, byTrace[e.TraceID])
			if h.Views != nil {
				h.Views.Observe(v)
			}
			views = append(views, v)
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"views": views, "count": len(views)})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"entries": entries, "count": len(entries)})
}

// handleStats reports the aggregate counters of every component.
func (h *Handlers) handleStats(w http.ResponseWriter, r *http.Request) {
	cacheSize, cacheHitRate := h.Embeddings.CacheStats()
	stats := map[string]interface{}{
		"gateway": h.Gateway.Stats(),
		"pool":    h.Runtime.Stats(),
		"audit":   h.Stream.Stats(),
		"embedding_cache": map[string]interface{}{
			"size":     cacheSize,
			"hit_rate": cacheHitRate,
		},
		"tools": h.Catalog.Count(),
	}
	if h.Views != nil {
		stats["views"] = h.Views.Stats()
	}
	writeJSON(w, http.StatusOK, stats)
}

// ── Tool Catalog ─────────────────────────────────────────────

func (h *Handlers) handleListTools(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"tools": h.Catalog.List()})
}

func (h *Handlers) handleRegisterTool(w http.ResponseWriter, r *http.Request) {
	var tool models.ToolDefinition
	if err := json.NewDecoder(r.Body).Decode(&tool); err != nil {
		writeError(w, models.NewError(models.KindParseError, "INVALID_JSON", "tool definition is not valid JSON"))
		return
	}
	if err := h.Catalog.Register(tool); err != nil {
		writeError(w, models.NewError(models.KindParseError, "INVALID_TOOL", err.Error()))
		return
	}
	writeJSON(w, http.StatusCreated, tool)
}

func (h *Handlers) handleGetTool(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "toolID")
	tool, ok := h.Catalog.Get(id)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "tool not found: " + id})
		return
	}
	writeJSON(w, http.StatusOK, tool)
}

func (h *Handlers) handleDeleteTool(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "toolID")
	if !h.Catalog.Remove(id) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "tool not found: " + id})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ── Health ───────────────────────────────────────────────────

func (h *Handlers) handleHealth(w http.ResponseWriter, r *http.Request) {
	checks := map[string]string{
		"credentials": checkStatus(h.Resolver.HealthCheck(r.Context())),
		"embeddings":  checkStatus(h.Embeddings.Provider().HealthCheck(r.Context())),
	}
	if h.Sink != nil {
		checks["audit_sink"] = checkStatus(h.Sink.HealthCheck(r.Context()))
	}

	status := "healthy"
	code := http.StatusOK
	for _, c := range checks {
		if c != "ok" {
			status = "degraded"
			code = http.StatusServiceUnavailable
		}
	}
	writeJSON(w, code, map[string]interface{}{"status": status, "checks": checks})
}

func (h *Handlers) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"version": h.Config.Version,
		"service": "agentgate-gateway",
	})
}

// ── Helpers ──────────────────────────────────────────────────

func checkStatus(err error) string {
	if err != nil {
		return err.Error()
	}
	return "ok"
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps gateway error kinds onto HTTP statuses. The boundary
// shape (kind, code, message, suggestion, alternatives) passes through.
func writeError(w http.ResponseWriter, err error) {
	ge := models.AsError(err)

	code := http.StatusInternalServerError
	switch ge.Kind {
	case models.KindUnsupportedProtocol, models.KindParseError, models.KindNormalizeError, models.KindDimensionMismatch:
		code = http.StatusBadRequest
	case models.KindNoMatch:
		code = http.StatusNotFound
	case models.KindTimeout:
		code = http.StatusGatewayTimeout
	case models.KindPoolExhausted:
		code = http.StatusServiceUnavailable
	case models.KindCredentialMissing:
		code = http.StatusFailedDependency
	}

	writeJSON(w, code, map[string]interface{}{"error": ge})
}
