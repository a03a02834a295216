package httputil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	dErrors "aidtrack/pkg/domain-errors"
)

type detailedErr struct {
	error
	at time.Time
}

func (e detailedErr) Unwrap() error { return e.error }

func (e detailedErr) ErrorDetails() map[string]any {
	return map[string]any{"last_distribution_at": e.at.Format(time.RFC3339), "success": true}
}

func TestWriteError(t *testing.T) {
	t.Run("internal error omits description", func(t *testing.T) {
		w := httptest.NewRecorder()
		WriteError(w, dErrors.New(dErrors.CodeInternal, "db failed"))

		if w.Code != http.StatusInternalServerError {
			t.Fatalf("expected status %d, got %d", http.StatusInternalServerError, w.Code)
		}

		var body map[string]any
		if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
			t.Fatalf("decode response: %v", err)
		}
		if body["code"] != "internal_error" {
			t.Fatalf("expected code internal_error, got %q", body["code"])
		}
		if body["error"] == "db failed" {
			t.Fatalf("expected internal description to be withheld")
		}
		if body["success"] != false {
			t.Fatalf("expected success=false")
		}
	})

	t.Run("validation error includes description", func(t *testing.T) {
		w := httptest.NewRecorder()
		WriteError(w, dErrors.New(dErrors.CodeValidation, "token_number is required"))

		if w.Code != http.StatusBadRequest {
			t.Fatalf("expected status %d, got %d", http.StatusBadRequest, w.Code)
		}

		var body map[string]any
		if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
			t.Fatalf("decode response: %v", err)
		}
		if body["error"] != "token_number is required" {
			t.Fatalf("expected description to be returned, got %q", body["error"])
		}
	})

	t.Run("details are merged without overriding the envelope", func(t *testing.T) {
		at := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
		w := httptest.NewRecorder()
		WriteError(w, detailedErr{error: dErrors.New(dErrors.CodeDuplicateDistribution, "already served today"), at: at})

		var body map[string]any
		if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
			t.Fatalf("decode response: %v", err)
		}
		if body["last_distribution_at"] != "2026-03-01T09:30:00Z" {
			t.Fatalf("expected last_distribution_at detail, got %v", body["last_distribution_at"])
		}
		if body["success"] != false {
			t.Fatalf("detail must not override success flag")
		}
	})
}

func TestDecodeJSON(t *testing.T) {
	t.Run("rejects empty body", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(""))
		var dst map[string]any
		err := DecodeJSON(r, &dst, 0)
		if !dErrors.HasCode(err, dErrors.CodeBadRequest) {
			t.Fatalf("expected bad_request, got %v", err)
		}
	})

	t.Run("rejects trailing objects", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"a":1}{"b":2}`))
		var dst map[string]any
		if err := DecodeJSON(r, &dst, 0); err == nil {
			t.Fatalf("expected error for trailing JSON")
		}
	})

	t.Run("rejects oversized body", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"signature":"`+strings.Repeat("a", 64)+`"}`))
		var dst map[string]any
		if err := DecodeJSON(r, &dst, 16); err == nil {
			t.Fatalf("expected error for oversized body")
		}
	})

	t.Run("decodes a single object", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"qrData":"TK001"}`))
		var dst struct {
			QRData string `json:"qrData"`
		}
		if err := DecodeJSON(r, &dst, 0); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if dst.QRData != "TK001" {
			t.Fatalf("expected TK001, got %q", dst.QRData)
		}
	})
}
