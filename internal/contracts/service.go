// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package contracts implements the template compilation pipeline: a stored
// template is loaded, user values are validated and substituted into its
// Typst source, and the result is compiled to a PDF. It also covers the
// authoring operations that create and revise templates.
package contracts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"contractbuilder/internal/cache"
	"contractbuilder/internal/models"
	"contractbuilder/internal/storage"
	"contractbuilder/internal/substitute"
	"contractbuilder/internal/variables"
)

// ErrNotFound is returned when a template does not exist or is not
// visible to the caller.
var ErrNotFound = errors.New("template not found")

// TemplateRepository persists templates and their version history.
// Lookups return (nil, nil) when the template does not exist.
type TemplateRepository interface {
	ListPublished(ctx context.Context) ([]models.TemplateSummary, error)
	FindByID(ctx context.Context, id string) (*models.Template, error)
	Create(ctx context.Context, t *models.Template, changelog, createdBy string) (*models.Template, error)
	Update(ctx context.Context, t *models.Template, changelog, createdBy string) (*models.Template, error)
	SetPublished(ctx context.Context, id string, published bool) (bool, error)
	Delete(ctx context.Context, id string) (bool, error)
	Versions(ctx context.Context, templateID string) ([]models.TemplateVersion, error)
}

// PDFCompiler turns a final document source into PDF bytes.
type PDFCompiler interface {
	Compile(ctx context.Context, source string) ([]byte, error)
}

// PDFCache stores compiled documents by source digest.
type PDFCache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, pdf []byte)
}

// Archiver keeps a durable copy of compiled documents.
type Archiver interface {
	Store(ctx context.Context, key, fileName string, pdf []byte) (string, error)
	Delete(ctx context.Context, templateID string) error
}

// Option configures optional Service dependencies.
type Option func(*Service)

// WithCache enables the compiled PDF cache.
func WithCache(c PDFCache) Option {
	return func(s *Service) { s.cache = c }
}

// WithArchive enables archiving of compiled PDFs.
func WithArchive(a Archiver) Option {
	return func(s *Service) { s.archive = a }
}

// Service orchestrates template lookup, substitution and compilation.
type Service struct {
	repo     TemplateRepository
	compiler PDFCompiler
	cache    PDFCache
	archive  Archiver
}

// NewService creates a Service.
func NewService(repo TemplateRepository, compiler PDFCompiler, opts ...Option) *Service {
	s := &Service{repo: repo, compiler: compiler}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// List returns all published templates, newest first.
func (s *Service) List(ctx context.Context) ([]models.TemplateSummary, error) {
	list, err := s.repo.ListPublished(ctx)
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	return list, nil
}

// Get returns a template by ID regardless of its publish state.
func (s *Service) Get(ctx context.Context, id string) (*models.Template, error) {
	t, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get template %s: %w", id, err)
	}
	if t == nil {
		return nil, ErrNotFound
	}
	return t, nil
}

// CompileRequest carries the inputs of a compilation. Values holds the raw
// JSON submitted by the client, keyed by variable name.
type CompileRequest struct {
	TemplateID string
	Values     map[string]json.RawMessage
	// Author allows compiling unpublished drafts.
	Author bool
}

// Compile fills a template with the request values and compiles it.
// Unknown or hidden templates yield ErrNotFound without invoking the
// compiler; invalid values yield *variables.ValidationError; compiler
// failures yield *compiler.CompileError.
func (s *Service) Compile(ctx context.Context, req CompileRequest) (*Document, error) {
	t, err := s.repo.FindByID(ctx, req.TemplateID)
	if err != nil {
		return nil, fmt.Errorf("load template %s: %w", req.TemplateID, err)
	}
	if t == nil || (!t.IsPublished && !req.Author) {
		return nil, ErrNotFound
	}

	values, err := variables.Resolve(t.Variables, req.Values)
	if err != nil {
		return nil, err
	}

	source := substitute.Substitute(t.TypstContent, values)
	digest := cache.Key(source)
	doc := &Document{FileName: t.FileName()}

	if s.cache != nil {
		if pdf, ok := s.cache.Get(ctx, digest); ok {
			doc.PDF = pdf
			doc.Cached = true
		}
	}

	if doc.PDF == nil {
		pdf, err := s.compiler.Compile(ctx, source)
		if err != nil {
			return nil, err
		}
		doc.PDF = pdf
		if s.cache != nil {
			s.cache.Set(ctx, digest, pdf)
		}
	}

	if s.archive != nil {
		url, err := s.archive.Store(ctx, storage.ObjectKey(t.ID, digest), doc.FileName, doc.PDF)
		if err != nil {
			slog.Warn("archive upload failed", "template", t.ID, "error", err)
		} else {
			doc.DownloadURL = url
		}
	}

	slog.Info("document compiled", "template", t.ID, "version", t.CurrentVersion,
		"bytes", len(doc.PDF), "cached", doc.Cached)
	return doc, nil
}
