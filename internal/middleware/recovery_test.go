// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestRecoverer(t *testing.T) {
	t.Run("catches panic and returns JSON 500", func(t *testing.T) {
		inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			panic("something went wrong")
		})

		req := httptest.NewRequest(http.MethodPost, "/api/templates/tpl_nda/compile", nil)
		rr := httptest.NewRecorder()

		// Should NOT panic: the middleware catches it.
		Recoverer(inner).ServeHTTP(rr, req)

		if rr.Code != http.StatusInternalServerError {
			t.Errorf("status: got %d, want 500", rr.Code)
		}

		var body struct {
			Error struct {
				Code string `json:"code"`
			} `json:"error"`
		}
		if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
			t.Fatalf("body is not JSON: %v", err)
		}
		if body.Error.Code != "INTERNAL" {
			t.Errorf("code: got %q, want INTERNAL", body.Error.Code)
		}
	})

	t.Run("catches panic with non-string value", func(t *testing.T) {
		inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			panic(strings.NewReader("error reader"))
		})

		rr := httptest.NewRecorder()
		Recoverer(inner).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/crash", nil))

		if rr.Code != http.StatusInternalServerError {
			t.Errorf("status: got %d, want 500", rr.Code)
		}
	})

	t.Run("re-panics on ErrAbortHandler", func(t *testing.T) {
		inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			panic(http.ErrAbortHandler)
		})

		defer func() {
			if rec := recover(); rec != http.ErrAbortHandler {
				t.Errorf("expected ErrAbortHandler to propagate, got %v", rec)
			}
		}()
		Recoverer(inner).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	})
}

func TestRecovererNoPanic(t *testing.T) {
	var called bool
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.Header().Set("X-Custom", "test-value")
		w.Write([]byte("ok"))
	})

	rr := httptest.NewRecorder()
	Recoverer(inner).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

	if !called {
		t.Error("next handler should have been called")
	}
	if rr.Code != http.StatusOK || rr.Body.String() != "ok" {
		t.Errorf("got %d %q", rr.Code, rr.Body.String())
	}
	if got := rr.Header().Get("X-Custom"); got != "test-value" {
		t.Errorf("X-Custom: got %q, want %q", got, "test-value")
	}
}
