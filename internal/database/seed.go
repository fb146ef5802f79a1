package database

import (
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"path"

	"contractbuilder/internal/models"
)

//go:embed seed
var embedSeed embed.FS

// SeedTemplate is one bundled contract template. Source names the Typst
// file holding its document body.
type SeedTemplate struct {
	ID          string           `json:"id"`
	Title       string           `json:"title"`
	Description string           `json:"description"`
	Price       int              `json:"price"`
	IsPublished bool             `json:"isPublished"`
	Variables   models.Variables `json:"variables"`
	Source      string           `json:"source"`

	TypstContent string `json:"-"`
}

// SeedTemplates loads the bundled contract templates.
func SeedTemplates() ([]SeedTemplate, error) {
	raw, err := embedSeed.ReadFile("seed/templates.json")
	if err != nil {
		return nil, fmt.Errorf("read seed index: %w", err)
	}

	var templates []SeedTemplate
	if err := json.Unmarshal(raw, &templates); err != nil {
		return nil, fmt.Errorf("parse seed index: %w", err)
	}

	for i := range templates {
		body, err := embedSeed.ReadFile(path.Join("seed", templates[i].Source))
		if err != nil {
			return nil, fmt.Errorf("read seed source %s: %w", templates[i].Source, err)
		}
		templates[i].TypstContent = string(body)
	}
	return templates, nil
}

// Seed inserts the bundled contract templates together with their first
// version snapshot. Templates that already exist are left untouched, so
// Seed is safe to run repeatedly.
func Seed(db *sql.DB) error {
	templates, err := SeedTemplates()
	if err != nil {
		return err
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("seed begin tx: %w", err)
	}
	defer tx.Rollback()

	var inserted int
	for _, t := range templates {
		res, err := tx.Exec(`
			INSERT INTO templates (id, title, description, price, typst_content, variables, current_version, is_published)
			VALUES ($1, $2, $3, $4, $5, $6, 1, $7)
			ON CONFLICT (id) DO NOTHING
		`, t.ID, t.Title, nullIfEmpty(t.Description), t.Price, t.TypstContent, t.Variables, t.IsPublished)
		if err != nil {
			return fmt.Errorf("seed template %s: %w", t.ID, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			continue
		}

		_, err = tx.Exec(`
			INSERT INTO template_versions (id, template_id, version, typst_content, variables, changelog)
			VALUES ($1, $2, 1, $3, $4, 'Initial version')
			ON CONFLICT (template_id, version) DO NOTHING
		`, t.ID+"_v1", t.ID, t.TypstContent, t.Variables)
		if err != nil {
			return fmt.Errorf("seed template version %s: %w", t.ID, err)
		}
		inserted++
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("seed commit: %w", err)
	}

	if inserted == 0 {
		slog.Info("database already seeded, skipping")
		return nil
	}
	slog.Info("database seeded with contract templates", "count", inserted)
	return nil
}

// nullIfEmpty stores a missing text column as NULL.
func nullIfEmpty(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
