// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// handler_test.go provides shared test infrastructure for handler tests:
// a stub TemplateService and a router that mirrors production wiring.
package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"contractbuilder/internal/auth"
	"contractbuilder/internal/contracts"
	"contractbuilder/internal/middleware"
	"contractbuilder/internal/models"
)

// stubService implements TemplateService with canned results.
type stubService struct {
	list     []models.TemplateSummary
	template *models.Template
	doc      *contracts.Document
	versions []models.TemplateVersion
	err      error

	lastCompile contracts.CompileRequest
	lastCreate  contracts.CreateTemplateInput
	lastUpdate  contracts.TemplateInput
	lastAuthor  string
	published   *bool
	deleted     string
}

func (s *stubService) List(context.Context) ([]models.TemplateSummary, error) {
	return s.list, s.err
}

func (s *stubService) Get(context.Context, string) (*models.Template, error) {
	return s.template, s.err
}

func (s *stubService) Compile(_ context.Context, req contracts.CompileRequest) (*contracts.Document, error) {
	s.lastCompile = req
	return s.doc, s.err
}

func (s *stubService) Create(_ context.Context, in contracts.CreateTemplateInput, author string) (*models.Template, error) {
	s.lastCreate, s.lastAuthor = in, author
	return s.template, s.err
}

func (s *stubService) Update(_ context.Context, _ string, in contracts.TemplateInput, author string) (*models.Template, error) {
	s.lastUpdate, s.lastAuthor = in, author
	return s.template, s.err
}

func (s *stubService) SetPublished(_ context.Context, _ string, published bool) error {
	s.published = &published
	return s.err
}

func (s *stubService) Delete(_ context.Context, id string) error {
	s.deleted = id
	return s.err
}

func (s *stubService) Versions(context.Context, string) ([]models.TemplateVersion, error) {
	return s.versions, s.err
}

var testVerifier = auth.NewVerifier("handler-test-secret", "")

// testRouter wires the handlers the same way the production router does.
func testRouter(svc TemplateService) http.Handler {
	h := NewTemplates(svc)
	r := chi.NewRouter()
	r.Use(middleware.Authenticate(testVerifier))
	r.Get("/api/templates", h.List)
	r.Get("/api/templates/{id}", h.Get)
	r.Post("/api/templates/{id}/compile", h.Compile)
	r.Post("/api/templates/{id}/pdf", h.PDF)
	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth)
		r.Post("/api/templates", h.Create)
		r.Put("/api/templates/{id}", h.Update)
		r.Post("/api/templates/{id}/publish", h.Publish)
		r.Post("/api/templates/{id}/unpublish", h.Unpublish)
		r.Delete("/api/templates/{id}", h.Delete)
		r.Get("/api/templates/{id}/versions", h.Versions)
	})
	return r
}

func bearer(t *testing.T) string {
	t.Helper()
	token, err := testVerifier.Issue("author-1", "", time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	return "Bearer " + token
}

// do sends a request through the router and returns the recorder.
func do(t *testing.T, h http.Handler, method, path, body, authHeader string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

// decodeError parses an error response body.
func decodeError(t *testing.T, rr *httptest.ResponseRecorder) errorDetail {
	t.Helper()
	var body errorBody
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("error body is not JSON: %v (%q)", err, rr.Body.String())
	}
	return body.Error
}
