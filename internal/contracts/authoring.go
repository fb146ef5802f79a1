// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package contracts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"contractbuilder/internal/models"
	"contractbuilder/internal/slug"
	"contractbuilder/internal/store"
	"contractbuilder/internal/substitute"
	"contractbuilder/internal/variables"
)

// maxIDAttempts bounds the suffixes tried when a generated ID is taken.
const maxIDAttempts = 20

// TemplateInput is the editable content of a template.
type TemplateInput struct {
	Title        string           `json:"title" validate:"required,max=200"`
	Description  *string          `json:"description" validate:"omitempty,max=2000"`
	Price        int              `json:"price" validate:"min=0"`
	TypstContent string           `json:"typstContent" validate:"required"`
	Variables    models.Variables `json:"variables" validate:"unique=Name,dive"`
	Changelog    string           `json:"changelog" validate:"max=500"`
}

// CreateTemplateInput adds creation-only fields to TemplateInput.
type CreateTemplateInput struct {
	TemplateInput
	Published bool `json:"isPublished"`
}

// Create validates and stores a new template together with its first
// version snapshot. The ID is derived from the title.
func (s *Service) Create(ctx context.Context, in CreateTemplateInput, author string) (*models.Template, error) {
	if err := checkInput(&in.TemplateInput); err != nil {
		return nil, err
	}

	base := slug.Identifier("tpl", in.Title)
	t := &models.Template{
		Title:        in.Title,
		Description:  in.Description,
		Price:        in.Price,
		TypstContent: in.TypstContent,
		Variables:    in.Variables,
		IsPublished:  in.Published,
	}
	changelog := in.Changelog
	if changelog == "" {
		changelog = "Initial version"
	}

	for i := 1; i <= maxIDAttempts; i++ {
		t.ID = base
		if i > 1 {
			t.ID = base + "_" + strconv.Itoa(i)
		}
		created, err := s.repo.Create(ctx, t, changelog, author)
		if errors.Is(err, store.ErrDuplicateID) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("create template: %w", err)
		}
		slog.Info("template created", "template", created.ID, "author", author)
		return created, nil
	}
	return nil, fmt.Errorf("create template: no free id for %q", base)
}

// Update replaces a template's content and appends a version snapshot.
func (s *Service) Update(ctx context.Context, id string, in TemplateInput, author string) (*models.Template, error) {
	if err := checkInput(&in); err != nil {
		return nil, err
	}

	existing, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	existing.Title = in.Title
	existing.Description = in.Description
	existing.Price = in.Price
	existing.TypstContent = in.TypstContent
	existing.Variables = in.Variables

	updated, err := s.repo.Update(ctx, existing, in.Changelog, author)
	if err != nil {
		return nil, fmt.Errorf("update template %s: %w", id, err)
	}
	if updated == nil {
		return nil, ErrNotFound
	}
	slog.Info("template updated", "template", id, "version", updated.CurrentVersion, "author", author)
	return updated, nil
}

// SetPublished toggles whether a template is listed and compilable by
// anonymous callers.
func (s *Service) SetPublished(ctx context.Context, id string, published bool) error {
	ok, err := s.repo.SetPublished(ctx, id, published)
	if err != nil {
		return fmt.Errorf("set published %s: %w", id, err)
	}
	if !ok {
		return ErrNotFound
	}
	slog.Info("template publish state changed", "template", id, "published", published)
	return nil
}

// Delete removes a template with its version history. Archived documents
// are removed on a best-effort basis.
func (s *Service) Delete(ctx context.Context, id string) error {
	ok, err := s.repo.Delete(ctx, id)
	if err != nil {
		return fmt.Errorf("delete template %s: %w", id, err)
	}
	if !ok {
		return ErrNotFound
	}
	if s.archive != nil {
		if err := s.archive.Delete(ctx, id); err != nil {
			slog.Warn("archive cleanup failed", "template", id, "error", err)
		}
	}
	slog.Info("template deleted", "template", id)
	return nil
}

// Versions lists the version snapshots of a template, newest first.
func (s *Service) Versions(ctx context.Context, id string) ([]models.TemplateVersion, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	versions, err := s.repo.Versions(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list versions %s: %w", id, err)
	}
	return versions, nil
}

// checkInput validates authoring input beyond struct tags: defaults must
// coerce to their declared type. Placeholders without a declared variable
// are allowed but logged, since they stay verbatim in compiled output.
func checkInput(in *TemplateInput) error {
	if in.Variables == nil {
		in.Variables = models.Variables{}
	}
	if err := validateStruct(in); err != nil {
		return err
	}

	verr := &variables.ValidationError{}
	for i := range in.Variables {
		def := &in.Variables[i]
		if !def.HasDefault() {
			continue
		}
		if _, err := variables.Coerce(def, def.DefaultValue); err != nil {
			verr.Add(fmt.Sprintf("variables[%d].defaultValue", i), err.Error())
		}
	}
	if len(verr.Fields) > 0 {
		return verr
	}

	var undeclared []string
	for _, name := range substitute.Placeholders(in.TypstContent) {
		if in.Variables.Find(name) == nil {
			undeclared = append(undeclared, name)
		}
	}
	if len(undeclared) > 0 {
		slog.Warn("template uses undeclared placeholders", "title", in.Title, "names", undeclared)
	}
	return nil
}
