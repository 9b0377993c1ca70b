package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"classview-backend/internal/models"
	"classview-backend/internal/services"
)

func TestHandleServiceErrorStatusMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"validation", &services.ValidationError{Fields: map[string]string{"email": "required"}}, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"conflict", &services.ConflictError{Message: "Email already registered"}, http.StatusConflict, "CONFLICT"},
		{"not found", &services.NotFoundError{Message: "Course not found"}, http.StatusNotFound, "NOT_FOUND"},
		{"unauthorized", &services.UnauthorizedError{Message: "Invalid credentials"}, http.StatusUnauthorized, "UNAUTHORIZED"},
		{"forbidden", &services.ForbiddenError{Message: "Not your course"}, http.StatusForbidden, "FORBIDDEN"},
		{"rate limited", &services.RateLimitError{Message: "Too many attempts"}, http.StatusTooManyRequests, "RATE_LIMITED"},
		{"unknown", errors.New("database exploded"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			r := httptest.NewRequest(http.MethodPost, "/api/v1/test", nil)
			r.Header.Set("X-Request-ID", "req-123")

			handleServiceError(w, r, tc.err)

			if w.Code != tc.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tc.wantStatus)
			}

			var resp models.ErrorResponse
			if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
				t.Fatalf("response is not JSON: %v", err)
			}
			if resp.Error.Code != tc.wantCode {
				t.Errorf("code = %q, want %q", resp.Error.Code, tc.wantCode)
			}
			if resp.Error.RequestID != "req-123" {
				t.Errorf("request_id = %q, want req-123", resp.Error.RequestID)
			}
		})
	}
}

func TestHandleServiceErrorValidationFields(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/api/v1/test", nil)

	handleServiceError(w, r, &services.ValidationError{Fields: map[string]string{
		"title":   "Title is required",
		"options": "At least 2 options required",
	}})

	var resp models.ErrorResponse
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Error.Fields["title"] != "Title is required" {
		t.Errorf("fields[title] = %q", resp.Error.Fields["title"])
	}
	if resp.Error.Fields["options"] != "At least 2 options required" {
		t.Errorf("fields[options] = %q", resp.Error.Fields["options"])
	}
}

func TestHandleServiceErrorHidesInternalDetails(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/api/v1/test", nil)

	handleServiceError(w, r, errors.New("pq: connection refused at 10.0.0.5"))

	var resp models.ErrorResponse
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Error.Message != "An unexpected error occurred" {
		t.Errorf("internal error leaked: %q", resp.Error.Message)
	}
}

func TestWriteJSONSetsContentType(t *testing.T) {
	w := httptest.NewRecorder()
	writeJSON(w, http.StatusCreated, map[string]string{"message": "ok"})

	if w.Code != http.StatusCreated {
		t.Errorf("status = %d, want 201", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}
}
