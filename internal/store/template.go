// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"contractbuilder/internal/models"
)

// ErrDuplicateID is returned by Create when the template ID is taken.
var ErrDuplicateID = errors.New("template id already exists")

// templateColumns lists all columns for templates SELECTs.
const templateColumns = `id, title, description, price, typst_content, variables,
	current_version, is_published, created_at, updated_at`

// TemplateStore handles all template-related database operations.
type TemplateStore struct {
	db *sql.DB
}

// NewTemplateStore creates a new TemplateStore with the given database connection.
func NewTemplateStore(db *sql.DB) *TemplateStore {
	return &TemplateStore{db: db}
}

// scanTemplate scans a single templates row into a Template.
func scanTemplate(scanner interface{ Scan(...any) error }) (*models.Template, error) {
	var t models.Template
	err := scanner.Scan(
		&t.ID, &t.Title, &t.Description, &t.Price, &t.TypstContent, &t.Variables,
		&t.CurrentVersion, &t.IsPublished, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// ListPublished returns the published templates without their document
// source, newest first.
func (s *TemplateStore) ListPublished(ctx context.Context) ([]models.TemplateSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, description, price, variables, is_published, created_at
		FROM templates
		WHERE is_published = TRUE
		ORDER BY created_at DESC, title
	`)
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	defer rows.Close()

	templates := []models.TemplateSummary{}
	for rows.Next() {
		var t models.TemplateSummary
		if err := rows.Scan(
			&t.ID, &t.Title, &t.Description, &t.Price, &t.Variables,
			&t.IsPublished, &t.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan template: %w", err)
		}
		templates = append(templates, t)
	}
	return templates, rows.Err()
}

// FindByID retrieves a template by its ID. Returns nil if not found.
func (s *TemplateStore) FindByID(ctx context.Context, id string) (*models.Template, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+templateColumns+`
		FROM templates WHERE id = $1
	`, id)
	t, err := scanTemplate(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find template by id: %w", err)
	}
	return t, nil
}

// Create inserts a new template at version 1 together with its
// first version snapshot. Uses a transaction for atomicity.
func (s *TemplateStore) Create(ctx context.Context, t *models.Template, changelog, createdBy string) (*models.Template, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, `
		INSERT INTO templates (id, title, description, price, typst_content, variables, current_version, is_published)
		VALUES ($1, $2, $3, $4, $5, $6, 1, $7)
		RETURNING `+templateColumns,
		t.ID, t.Title, t.Description, t.Price, t.TypstContent, t.Variables, t.IsPublished,
	)
	created, err := scanTemplate(row)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicateID
		}
		return nil, fmt.Errorf("create template: %w", err)
	}

	if err := insertVersion(ctx, tx, created, changelog, createdBy); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return created, nil
}

// Update replaces a template's editable fields, increments its version and
// appends a version snapshot. Returns nil if the template does not exist.
func (s *TemplateStore) Update(ctx context.Context, t *models.Template, changelog, createdBy string) (*models.Template, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, `
		UPDATE templates SET
			title = $1, description = $2, price = $3, typst_content = $4, variables = $5,
			current_version = current_version + 1, updated_at = NOW()
		WHERE id = $6
		RETURNING `+templateColumns,
		t.Title, t.Description, t.Price, t.TypstContent, t.Variables, t.ID,
	)
	updated, err := scanTemplate(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("update template: %w", err)
	}

	if err := insertVersion(ctx, tx, updated, changelog, createdBy); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return updated, nil
}

// SetPublished toggles the publish flag. Returns false if no template
// matched the ID.
func (s *TemplateStore) SetPublished(ctx context.Context, id string, published bool) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE templates SET is_published = $1, updated_at = NOW() WHERE id = $2
	`, published, id)
	if err != nil {
		return false, fmt.Errorf("set template published: %w", err)
	}
	rows, _ := result.RowsAffected()
	return rows > 0, nil
}

// Delete removes a template. Its version history goes with it through the
// ON DELETE CASCADE foreign key.
func (s *TemplateStore) Delete(ctx context.Context, id string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM templates WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("delete template: %w", err)
	}
	rows, _ := result.RowsAffected()
	return rows > 0, nil
}

// Versions returns the version snapshots of a template, newest first.
func (s *TemplateStore) Versions(ctx context.Context, templateID string) ([]models.TemplateVersion, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, template_id, version, typst_content, variables, changelog, created_by, created_at
		FROM template_versions
		WHERE template_id = $1
		ORDER BY version DESC
	`, templateID)
	if err != nil {
		return nil, fmt.Errorf("list template versions: %w", err)
	}
	defer rows.Close()

	var versions []models.TemplateVersion
	for rows.Next() {
		var v models.TemplateVersion
		if err := rows.Scan(
			&v.ID, &v.TemplateID, &v.Version, &v.TypstContent, &v.Variables,
			&v.Changelog, &v.CreatedBy, &v.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan template version: %w", err)
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

// insertVersion snapshots t at its current version inside tx.
func insertVersion(ctx context.Context, tx *sql.Tx, t *models.Template, changelog, createdBy string) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO template_versions (id, template_id, version, typst_content, variables, changelog, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, uuid.NewString(), t.ID, t.CurrentVersion, t.TypstContent, t.Variables,
		nullString(changelog), nullString(createdBy))
	if err != nil {
		return fmt.Errorf("insert template version: %w", err)
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// isUniqueViolation reports whether err is a PostgreSQL unique_violation.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
