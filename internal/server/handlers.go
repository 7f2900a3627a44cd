package server

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/lightkeeperhq/guardrails/internal/chat"
	"github.com/lightkeeperhq/guardrails/internal/guardrails"
	"github.com/lightkeeperhq/guardrails/internal/websocket"
	"go.uber.org/zap"
)

// Version is set at build time via -ldflags
var Version = "dev"

const maxBodySize = 4 << 20 // 4 MiB

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"version":   Version,
		"uptime":    time.Since(s.started).String(),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// handleInfo reports the gateway's configuration surface: which
// detectors are active and how the service is wired. No secrets and no
// scanned content appear here.
func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	info := map[string]interface{}{
		"service":            "lightkeeper-guardrails",
		"version":            Version,
		"uptime":             time.Since(s.started).String(),
		"guardrails_enabled": s.config.Guardrails.Enabled,
		"detectors":          s.sanitizer.EnabledCategories(),
		"upstream_model":     s.config.Upstream.Model,
		"rate_limit": map[string]interface{}{
			"enabled":          s.config.RateLimit.Enabled,
			"requests_per_min": s.config.RateLimit.RequestsPerMin,
		},
		"websocket": s.wsHub.GetStats(),
	}
	if s.verdicts != nil {
		info["verdict_cache"] = s.verdicts.GetStats()
	}
	writeJSON(w, http.StatusOK, info)
}

// handleChat runs a chat request through the sanitization pipeline and,
// when everything is safe, forwards it upstream.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	requestID := requestIDFrom(r.Context())
	log := s.logger.WithRequestID(requestID)

	var req chat.Request
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Question == "" {
		writeError(w, http.StatusBadRequest, "question is required")
		return
	}

	start := time.Now()
	resp, err := s.pipeline.Answer(r.Context(), req)
	if err != nil {
		log.Error("Chat pipeline failed", zap.Error(err))
		writeError(w, http.StatusBadGateway, "upstream completion failed")
		return
	}

	s.broadcastSummary(requestID, "chat", resp.Violations, nil, nil,
		resp.Refused, resp.Reason, time.Since(start))

	writeJSON(w, http.StatusOK, resp)
}

type sanitizeRequest struct {
	Content string `json:"content"`
	// Context is a diagnostic label carried into logs and audit rows.
	Context string `json:"context,omitempty"`
	// Transcript applies the meeting-transcript detector table on top of
	// the base table.
	Transcript bool `json:"transcript,omitempty"`
}

type sanitizeResponse struct {
	Result  guardrails.Result  `json:"result"`
	Verdict guardrails.Verdict `json:"verdict"`
}

// handleSanitize scans a single piece of content and returns the
// redacted text together with the safety verdict.
func (s *Server) handleSanitize(w http.ResponseWriter, r *http.Request) {
	requestID := requestIDFrom(r.Context())

	var req sanitizeRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	contextLabel := req.Context
	if contextLabel == "" {
		contextLabel = "api_sanitize"
	}

	start := time.Now()
	var result guardrails.Result
	if req.Transcript {
		result = s.sanitizer.SanitizeTranscript(req.Content)
	} else {
		result = s.sanitizer.Sanitize(req.Content, contextLabel)
	}
	verdict := s.sanitizer.EvaluateSafety(result)

	categories := make([]string, 0)
	for _, c := range result.Categories() {
		categories = append(categories, string(c))
	}
	s.broadcastSummary(requestID, contextLabel, len(result.Violations),
		categories, result.SeverityCounts(), !verdict.Safe, verdict.Reason,
		time.Since(start))

	writeJSON(w, http.StatusOK, sanitizeResponse{Result: result, Verdict: verdict})
}

// handleAuditExport writes the stored violation aggregates to a parquet
// file under the configured export directory. The optional since_hours
// query parameter bounds the export window (default 24).
func (s *Server) handleAuditExport(w http.ResponseWriter, r *http.Request) {
	if s.auditStore == nil {
		writeError(w, http.StatusServiceUnavailable, "audit store not configured")
		return
	}

	sinceHours := 24
	if raw := r.URL.Query().Get("since_hours"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "since_hours must be a positive integer")
			return
		}
		sinceHours = n
	}

	since := time.Now().Add(-time.Duration(sinceHours) * time.Hour)
	path, rows, err := s.auditStore.ExportParquet(r.Context(), s.config.Audit.ExportDir, since)
	if err != nil {
		s.logger.Error("Audit export failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "export failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"path":        path,
		"rows":        rows,
		"since_hours": sinceHours,
	})
}

// handleCacheClear drops all cached verdicts.
func (s *Server) handleCacheClear(w http.ResponseWriter, r *http.Request) {
	if s.verdicts == nil {
		writeError(w, http.StatusServiceUnavailable, "verdict cache not configured")
		return
	}

	if err := s.verdicts.Clear(r.Context()); err != nil {
		s.logger.Error("Cache clear failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "cache clear failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

// broadcastSummary publishes an aggregate scan summary to dashboard
// clients. Only counts, categories and severities leave the process.
func (s *Server) broadcastSummary(requestID, contextLabel string, violations int, categories []string, severities map[string]int, blocked bool, reason string, elapsed time.Duration) {
	atomic.AddInt64(&s.totalDetections, int64(violations))
	s.wsHub.BroadcastEvent(websocket.Event{
		Type:      websocket.EventTypeViolationSummary,
		Timestamp: time.Now(),
		RequestID: requestID,
		Data: websocket.ViolationSummaryEvent{
			RequestID:       requestID,
			Context:         contextLabel,
			TotalViolations: violations,
			Categories:      categories,
			SeverityCounts:  severities,
			Blocked:         blocked,
			Reason:          reason,
			ProcessingMS:    float64(elapsed.Microseconds()) / 1000.0,
		},
	})
}

func decodeBody(r *http.Request, v interface{}) error {
	body := io.LimitReader(r.Body, maxBodySize)
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
