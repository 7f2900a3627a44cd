package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/lightkeeperhq/guardrails/internal/chat"
	"github.com/lightkeeperhq/guardrails/internal/config"
	"github.com/lightkeeperhq/guardrails/internal/guardrails"
	"github.com/lightkeeperhq/guardrails/internal/logger"
)

func newTestServer(t *testing.T, mutate func(*config.Config)) *Server {
	t.Helper()

	cfg := config.GetDefaults()
	if mutate != nil {
		mutate(cfg)
	}

	srv, err := New(cfg, logger.Nop(), nil, nil)
	if err != nil {
		t.Fatalf("Failed to create server: %v", err)
	}
	return srv
}

func postJSON(t *testing.T, srv *Server, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("Failed to marshal request body: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)
	return rec
}

func TestHandleHealth(t *testing.T) {
	srv := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}

	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("Failed to parse health response: %v", err)
	}
	if body["status"] != "healthy" {
		t.Errorf("Expected status healthy, got %v", body["status"])
	}
}

func TestHandleInfo(t *testing.T) {
	srv := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/info", nil)
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}

	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("Failed to parse info response: %v", err)
	}
	if body["guardrails_enabled"] != true {
		t.Error("Expected guardrails_enabled true")
	}
	detectors, ok := body["detectors"].([]interface{})
	if !ok || len(detectors) == 0 {
		t.Errorf("Expected non-empty detectors list, got %v", body["detectors"])
	}
}

func TestHandleSanitize(t *testing.T) {
	srv := newTestServer(t, nil)

	t.Run("RedactsAndReportsVerdict", func(t *testing.T) {
		rec := postJSON(t, srv, "/v1/sanitize", sanitizeRequest{
			Content: "My SSN is 123-45-6789",
		})

		if rec.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
		}

		var resp sanitizeResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("Failed to parse sanitize response: %v", err)
		}

		if !strings.Contains(resp.Result.SanitizedText, "[SSN_REDACTED]") {
			t.Errorf("Expected SSN placeholder in %q", resp.Result.SanitizedText)
		}
		if resp.Verdict.Safe {
			t.Error("Expected unsafe verdict for critical violation")
		}
		if strings.Contains(rec.Body.String(), "123-45-6789") {
			t.Error("Raw SSN leaked into the response body")
		}
	})

	t.Run("CleanContentIsSafe", func(t *testing.T) {
		rec := postJSON(t, srv, "/v1/sanitize", sanitizeRequest{
			Content: "Let's review the roadmap on Thursday.",
		})

		var resp sanitizeResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("Failed to parse sanitize response: %v", err)
		}
		if !resp.Verdict.Safe {
			t.Errorf("Expected safe verdict, got reason %q", resp.Verdict.Reason)
		}
		if len(resp.Result.Violations) != 0 {
			t.Errorf("Expected no violations, got %d", len(resp.Result.Violations))
		}
	})

	t.Run("TranscriptModeCatchesIdentifiers", func(t *testing.T) {
		rec := postJSON(t, srv, "/v1/sanitize", sanitizeRequest{
			Content:    "Assign this to employee id: 99213",
			Transcript: true,
		})

		var resp sanitizeResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("Failed to parse sanitize response: %v", err)
		}

		found := false
		for _, v := range resp.Result.Violations {
			if v.Category == guardrails.CategoryPersonalID {
				found = true
			}
		}
		if !found {
			t.Error("Expected PERSONAL_ID violation in transcript mode")
		}
	})

	t.Run("InvalidBody", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/v1/sanitize", strings.NewReader("{not json"))
		rec := httptest.NewRecorder()
		srv.router.ServeHTTP(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Errorf("Expected 400, got %d", rec.Code)
		}
	})
}

func TestHandleChat(t *testing.T) {
	t.Run("MissingQuestion", func(t *testing.T) {
		srv := newTestServer(t, nil)

		rec := postJSON(t, srv, "/v1/chat", chat.Request{})
		if rec.Code != http.StatusBadRequest {
			t.Errorf("Expected 400, got %d", rec.Code)
		}
	})

	t.Run("UnsafeQuestionRefusedWithoutUpstreamCall", func(t *testing.T) {
		// The upstream URL is unroutable; a refusal must never reach it.
		srv := newTestServer(t, func(cfg *config.Config) {
			cfg.Upstream.URL = "http://127.0.0.1:1"
		})

		rec := postJSON(t, srv, "/v1/chat", chat.Request{
			Question: "My password: hunter2 keeps getting rejected",
		})

		if rec.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
		}

		var resp chat.Response
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("Failed to parse chat response: %v", err)
		}
		if !resp.Refused {
			t.Error("Expected the request to be refused")
		}
		if resp.RefusalMessage != chat.RefusalUnsafeQuestion {
			t.Errorf("Unexpected refusal message: %q", resp.RefusalMessage)
		}
	})
}

func TestAdminEndpointsWithoutBackends(t *testing.T) {
	srv := newTestServer(t, nil)

	t.Run("AuditExportUnavailable", func(t *testing.T) {
		rec := postJSON(t, srv, "/v1/audit/export", nil)
		if rec.Code != http.StatusServiceUnavailable {
			t.Errorf("Expected 503 without an audit store, got %d", rec.Code)
		}
	})

	t.Run("CacheClearUnavailable", func(t *testing.T) {
		rec := postJSON(t, srv, "/v1/cache/clear", nil)
		if rec.Code != http.StatusServiceUnavailable {
			t.Errorf("Expected 503 without a verdict cache, got %d", rec.Code)
		}
	})
}

func TestSystemStatus(t *testing.T) {
	srv := newTestServer(t, nil)

	postJSON(t, srv, "/v1/sanitize", sanitizeRequest{Content: "My SSN is 123-45-6789"})
	postJSON(t, srv, "/v1/sanitize", sanitizeRequest{Content: "nothing sensitive"})

	status := srv.systemStatus()
	if status.TotalRequests != 2 {
		t.Errorf("Expected 2 requests counted, got %d", status.TotalRequests)
	}
	if status.TotalDetections == 0 {
		t.Error("Expected detections counted after an SSN scan")
	}
	if status.ActiveDetectors == 0 {
		t.Error("Expected active detectors in status")
	}
	if status.Status != "healthy" {
		t.Errorf("Expected healthy status, got %q", status.Status)
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	srv := newTestServer(t, func(cfg *config.Config) {
		cfg.RateLimit.RequestsPerMin = 60
		cfg.RateLimit.Burst = 1
	})

	first := postJSON(t, srv, "/v1/sanitize", sanitizeRequest{Content: "hello"})
	if first.Code != http.StatusOK {
		t.Fatalf("First request should pass, got %d", first.Code)
	}

	second := postJSON(t, srv, "/v1/sanitize", sanitizeRequest{Content: "hello"})
	if second.Code != http.StatusTooManyRequests {
		t.Errorf("Expected 429 after burst, got %d", second.Code)
	}
}
