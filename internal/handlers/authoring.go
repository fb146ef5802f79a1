// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"contractbuilder/internal/contracts"
	"contractbuilder/internal/middleware"
)

// Create stores a new template. Requires authentication.
func (h *Templates) Create(w http.ResponseWriter, r *http.Request) {
	var in contracts.CreateTemplateInput
	if err := decodeJSON(w, r, &in, false); err != nil {
		writeErrorCode(w, http.StatusBadRequest, CodeBadRequest, err.Error())
		return
	}

	t, err := h.svc.Create(r.Context(), in, middleware.AuthorFromCtx(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Location", "/api/templates/"+t.ID)
	writeJSON(w, http.StatusCreated, t)
}

// Update replaces a template's content and records a new version.
func (h *Templates) Update(w http.ResponseWriter, r *http.Request) {
	var in contracts.TemplateInput
	if err := decodeJSON(w, r, &in, false); err != nil {
		writeErrorCode(w, http.StatusBadRequest, CodeBadRequest, err.Error())
		return
	}

	t, err := h.svc.Update(r.Context(), chi.URLParam(r, "id"), in, middleware.AuthorFromCtx(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// Publish makes a template visible to anonymous callers.
func (h *Templates) Publish(w http.ResponseWriter, r *http.Request) {
	h.setPublished(w, r, true)
}

// Unpublish hides a template from listings and anonymous compilation.
func (h *Templates) Unpublish(w http.ResponseWriter, r *http.Request) {
	h.setPublished(w, r, false)
}

func (h *Templates) setPublished(w http.ResponseWriter, r *http.Request, published bool) {
	id := chi.URLParam(r, "id")
	if err := h.svc.SetPublished(r.Context(), id, published); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "isPublished": published})
}

// Delete removes a template and its version history.
func (h *Templates) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Versions lists the version snapshots of a template, newest first.
func (h *Templates) Versions(w http.ResponseWriter, r *http.Request) {
	versions, err := h.svc.Versions(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, versions)
}
