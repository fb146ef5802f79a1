// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package slug derives URL- and identifier-friendly strings from titles.
package slug

import (
	"regexp"
	"strings"
)

// maxIdentifierLen caps the slug part of a generated identifier.
const maxIdentifierLen = 60

var (
	// nonAlphanumeric matches anything that isn't a letter, digit, space or hyphen.
	nonAlphanumeric = regexp.MustCompile(`[^a-z0-9\s-]`)
	// whitespace matches runs of spaces, tabs and newlines.
	whitespace = regexp.MustCompile(`\s+`)
	// multipleHyphens collapses consecutive hyphens into one.
	multipleHyphens = regexp.MustCompile(`-{2,}`)
)

// Generate creates a URL-friendly slug from the given string.
// Example: "Service Agreement (2026)" → "service-agreement-2026"
func Generate(s string) string {
	result := strings.ToLower(strings.TrimSpace(s))
	result = nonAlphanumeric.ReplaceAllString(result, "")
	result = whitespace.ReplaceAllString(result, "-")
	result = multipleHyphens.ReplaceAllString(result, "-")
	return strings.Trim(result, "-")
}

// Identifier builds a stable record identifier from a title, such as
// "tpl_service_agreement" for prefix "tpl".
func Identifier(prefix, title string) string {
	s := strings.ReplaceAll(Generate(title), "-", "_")
	if len(s) > maxIdentifierLen {
		s = strings.TrimRight(s[:maxIdentifierLen], "_")
	}
	if s == "" {
		s = "untitled"
	}
	return prefix + "_" + s
}
