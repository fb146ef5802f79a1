// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package handlers exposes the contract template service over a JSON HTTP API.
package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"contractbuilder/internal/contracts"
	"contractbuilder/internal/middleware"
	"contractbuilder/internal/models"
	"contractbuilder/internal/storage"
)

// TemplateService is the subset of contracts.Service the handlers use.
type TemplateService interface {
	List(ctx context.Context) ([]models.TemplateSummary, error)
	Get(ctx context.Context, id string) (*models.Template, error)
	Compile(ctx context.Context, req contracts.CompileRequest) (*contracts.Document, error)
	Create(ctx context.Context, in contracts.CreateTemplateInput, author string) (*models.Template, error)
	Update(ctx context.Context, id string, in contracts.TemplateInput, author string) (*models.Template, error)
	SetPublished(ctx context.Context, id string, published bool) error
	Delete(ctx context.Context, id string) error
	Versions(ctx context.Context, id string) ([]models.TemplateVersion, error)
}

// Templates groups the template browsing, compilation and authoring handlers.
type Templates struct {
	svc TemplateService
}

// NewTemplates creates a new Templates handler group.
func NewTemplates(svc TemplateService) *Templates {
	return &Templates{svc: svc}
}

// compileRequest is the body of the compile endpoints.
type compileRequest struct {
	Variables map[string]json.RawMessage `json:"variables"`
}

// compileResponse carries the compiled PDF as a data URL.
type compileResponse struct {
	PDFDataURL  string `json:"pdfDataUrl"`
	FileName    string `json:"fileName"`
	DownloadURL string `json:"downloadUrl,omitempty"`
}

// List returns all published templates.
func (h *Templates) List(w http.ResponseWriter, r *http.Request) {
	list, err := h.svc.List(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// Get returns a single template including its Typst source.
func (h *Templates) Get(w http.ResponseWriter, r *http.Request) {
	t, err := h.svc.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// Compile fills the template with the submitted variables and returns the
// PDF as a base64 data URL.
func (h *Templates) Compile(w http.ResponseWriter, r *http.Request) {
	doc, ok := h.compile(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, compileResponse{
		PDFDataURL:  doc.DataURL(),
		FileName:    doc.FileName,
		DownloadURL: doc.DownloadURL,
	})
}

// PDF is like Compile but streams the raw PDF as an attachment.
func (h *Templates) PDF(w http.ResponseWriter, r *http.Request) {
	doc, ok := h.compile(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", storage.ContentDisposition(doc.FileName))
	w.Header().Set("Content-Length", strconv.Itoa(len(doc.PDF)))
	w.WriteHeader(http.StatusOK)
	w.Write(doc.PDF)
}

func (h *Templates) compile(w http.ResponseWriter, r *http.Request) (*contracts.Document, bool) {
	var req compileRequest
	if err := decodeJSON(w, r, &req, true); err != nil {
		writeErrorCode(w, http.StatusBadRequest, CodeBadRequest, err.Error())
		return nil, false
	}

	doc, err := h.svc.Compile(r.Context(), contracts.CompileRequest{
		TemplateID: chi.URLParam(r, "id"),
		Values:     req.Variables,
		Author:     middleware.AuthorFromCtx(r.Context()) != "",
	})
	if err != nil {
		writeError(w, r, err)
		return nil, false
	}
	return doc, true
}
