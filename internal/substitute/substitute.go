// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package substitute replaces {{name}} placeholders in a template's
// document source with formatted variable values.
package substitute

import (
	"regexp"
	"strconv"
	"time"

	"contractbuilder/internal/models"
)

var (
	// placeholder matches {{name}} where name is one or more ASCII word characters.
	placeholder = regexp.MustCompile(`\{\{(\w+)\}\}`)
	// dateLeading matches strings that begin with an ISO-8601 calendar date.
	dateLeading = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}`)
)

// Substitute returns source with every placeholder whose name is present
// in values replaced by the formatted value. Unknown names and null values
// are left verbatim. Replacement happens in a single pass: inserted text is
// never scanned for further placeholders.
func Substitute(source string, values map[string]models.Value) string {
	return placeholder.ReplaceAllStringFunc(source, func(token string) string {
		name := token[2 : len(token)-2]
		v, ok := values[name]
		if !ok || v.IsNull() {
			return token
		}
		return Format(v)
	})
}

// Format renders a single value the way it appears in a compiled document.
func Format(v models.Value) string {
	switch v.Kind() {
	case models.KindDate:
		return v.Time().UTC().Format(time.DateOnly)
	case models.KindText:
		s := v.Str()
		if dateLeading.MatchString(s) {
			return s[:len(time.DateOnly)]
		}
		return s
	case models.KindNumber:
		return strconv.FormatFloat(v.Float(), 'f', -1, 64)
	case models.KindBool:
		return strconv.FormatBool(v.Truth())
	}
	return ""
}

// Placeholders lists the distinct placeholder names in source, in order
// of first appearance.
func Placeholders(source string) []string {
	seen := make(map[string]struct{})
	var names []string
	for _, m := range placeholder.FindAllStringSubmatch(source, -1) {
		if _, ok := seen[m[1]]; ok {
			continue
		}
		seen[m[1]] = struct{}{}
		names = append(names, m[1])
	}
	return names
}
