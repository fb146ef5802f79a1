// Package variables converts user-submitted variable values into typed
// models.Value entries according to a template's variable schema. It is
// the trust boundary in front of substitution: defaults are applied here
// and required, type and option constraints are enforced.
package variables

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"regexp"
	"strings"
	"time"

	"contractbuilder/internal/models"
)

var datePrefix = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}`)

// ValidationError reports every field that failed validation, keyed by
// variable name.
type ValidationError struct {
	Fields map[string]string
	order  []string
}

// Add records a failure for name. Later messages replace earlier ones.
func (e *ValidationError) Add(name, msg string) {
	if e.Fields == nil {
		e.Fields = make(map[string]string)
	}
	if _, dup := e.Fields[name]; !dup {
		e.order = append(e.order, name)
	}
	e.Fields[name] = msg
}

// Error lists the field messages in schema order.
func (e *ValidationError) Error() string {
	names := e.order
	if len(names) != len(e.Fields) {
		names = make([]string, 0, len(e.Fields))
		for n := range e.Fields {
			names = append(names, n)
		}
		sort.Strings(names)
	}
	parts := make([]string, 0, len(names))
	for _, n := range names {
		parts = append(parts, n+": "+e.Fields[n])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Resolve decodes raw values for a template. Declared variables are coerced
// to their declared type, fall back to their default when missing, and are
// checked for presence when required. Keys the schema does not declare are
// passed through by their JSON type so that ad-hoc placeholders still work.
func Resolve(defs models.Variables, raw map[string]json.RawMessage) (map[string]models.Value, error) {
	values := make(map[string]models.Value, len(raw)+len(defs))
	verr := &ValidationError{}

	for i := range defs {
		def := &defs[i]

		v, err := Coerce(def, raw[def.Name])
		if err != nil {
			verr.Add(def.Name, err.Error())
			continue
		}
		if v.IsNull() && def.HasDefault() {
			if v, err = Coerce(def, def.DefaultValue); err != nil {
				verr.Add(def.Name, "default value: "+err.Error())
				continue
			}
		}
		if def.Required && isEmpty(v) {
			verr.Add(def.Name, def.Label+" is required")
			continue
		}
		if !v.IsNull() {
			values[def.Name] = v
		}
	}

	for name, msg := range raw {
		if defs.Find(name) != nil {
			continue
		}
		v, err := decodeLoose(msg)
		if err != nil {
			verr.Add(name, err.Error())
			continue
		}
		if !v.IsNull() {
			values[name] = v
		}
	}

	if len(verr.Fields) > 0 {
		return nil, verr
	}
	return values, nil
}

// Coerce decodes a single raw JSON value according to def's type. A missing
// or null value, or an empty string for number and date fields, yields the
// null Value.
func Coerce(def *models.VariableDefinition, raw json.RawMessage) (models.Value, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return models.Value{}, nil
	}

	switch def.Type {
	case models.VariableTypeText:
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return models.Value{}, fmt.Errorf("%s must be text", def.Label)
		}
		return models.Text(s), nil

	case models.VariableTypeSelect:
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return models.Value{}, fmt.Errorf("%s must be text", def.Label)
		}
		if s == "" {
			return models.Text(s), nil
		}
		for _, opt := range def.Options {
			if opt == s {
				return models.Text(s), nil
			}
		}
		return models.Value{}, fmt.Errorf("%s must be one of: %s", def.Label, strings.Join(def.Options, ", "))

	case models.VariableTypeNumber:
		var f float64
		if err := json.Unmarshal(raw, &f); err == nil {
			return models.Number(f), nil
		}
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return models.Value{}, fmt.Errorf("%s must be a valid number", def.Label)
		}
		s = strings.TrimSpace(s)
		if s == "" {
			return models.Value{}, nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return models.Value{}, fmt.Errorf("%s must be a valid number", def.Label)
		}
		return models.Number(f), nil

	case models.VariableTypeBoolean:
		var b bool
		if err := json.Unmarshal(raw, &b); err != nil {
			return models.Value{}, fmt.Errorf("%s must be true or false", def.Label)
		}
		return models.Bool(b), nil

	case models.VariableTypeDate:
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return models.Value{}, fmt.Errorf("%s must be a date", def.Label)
		}
		s = strings.TrimSpace(s)
		if s == "" {
			return models.Value{}, nil
		}
		t, err := ParseDate(s)
		if err != nil {
			return models.Value{}, fmt.Errorf("%s must be a valid date (YYYY-MM-DD)", def.Label)
		}
		return models.Date(t), nil
	}

	return models.Value{}, fmt.Errorf("%s has unknown type %q", def.Label, def.Type)
}

// ParseDate reads the calendar date from a string that starts with
// YYYY-MM-DD. Anything after the date part, such as a time of day or a
// zone offset, is ignored so the written day never shifts.
func ParseDate(s string) (time.Time, error) {
	if !datePrefix.MatchString(s) {
		return time.Time{}, fmt.Errorf("date %q does not start with YYYY-MM-DD", s)
	}
	return time.Parse(time.DateOnly, s[:len(time.DateOnly)])
}

// decodeLoose decodes a value for a key the schema does not declare.
func decodeLoose(raw json.RawMessage) (models.Value, error) {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return models.Value{}, fmt.Errorf("invalid value")
	}
	switch x := v.(type) {
	case nil:
		return models.Value{}, nil
	case string:
		return models.Text(x), nil
	case float64:
		return models.Number(x), nil
	case bool:
		return models.Bool(x), nil
	}
	return models.Value{}, fmt.Errorf("unsupported value: expected text, number, boolean or date")
}

func isEmpty(v models.Value) bool {
	return v.IsNull() || (v.Kind() == models.KindText && strings.TrimSpace(v.Str()) == "")
}
