// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Template is a contract definition stored in the database. TypstContent
// holds the Typst document body with {{name}} placeholders; Variables
// describes the fields a user fills in before compiling it to a PDF.
type Template struct {
	ID             string    `json:"id"`
	Title          string    `json:"title"`
	Description    *string   `json:"description"`
	Price          int       `json:"price"` // smallest currency unit
	TypstContent   string    `json:"typstContent"`
	Variables      Variables `json:"variables"`
	CurrentVersion int       `json:"currentVersion"`
	IsPublished    bool      `json:"isPublished"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// FileName returns the suggested download name for a compiled copy.
func (t *Template) FileName() string {
	return t.Title + ".pdf"
}

// TemplateSummary is the listing projection of a template. It omits the
// document source.
type TemplateSummary struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description *string   `json:"description"`
	Price       int       `json:"price"`
	Variables   Variables `json:"variables"`
	IsPublished bool      `json:"isPublished"`
	CreatedAt   time.Time `json:"createdAt"`
}

// TemplateVersion is an append-only snapshot written every time a
// template's source or variables change.
type TemplateVersion struct {
	ID           string    `json:"id"`
	TemplateID   string    `json:"templateId"`
	Version      int       `json:"version"`
	TypstContent string    `json:"typstContent"`
	Variables    Variables `json:"variables"`
	Changelog    *string   `json:"changelog"`
	CreatedBy    *string   `json:"createdBy"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Variables is the ordered variable schema of a template. It is stored as
// a JSONB array.
type Variables []VariableDefinition

// Value implements driver.Valuer. A nil list is stored as an empty array.
func (v Variables) Value() (driver.Value, error) {
	if v == nil {
		return []byte("[]"), nil
	}
	b, err := json.Marshal([]VariableDefinition(v))
	if err != nil {
		return nil, fmt.Errorf("marshal variables: %w", err)
	}
	return b, nil
}

// Scan implements sql.Scanner for JSONB columns.
func (v *Variables) Scan(src any) error {
	var raw []byte
	switch s := src.(type) {
	case nil:
		*v = Variables{}
		return nil
	case []byte:
		raw = s
	case string:
		raw = []byte(s)
	default:
		return fmt.Errorf("scan variables: unsupported type %T", src)
	}

	var defs []VariableDefinition
	if err := json.Unmarshal(raw, &defs); err != nil {
		return fmt.Errorf("unmarshal variables: %w", err)
	}
	if defs == nil {
		defs = []VariableDefinition{}
	}
	*v = defs
	return nil
}

// Find returns the definition with the given name, or nil.
func (v Variables) Find(name string) *VariableDefinition {
	for i := range v {
		if v[i].Name == name {
			return &v[i]
		}
	}
	return nil
}
