package models

import (
	"encoding/json"
	"strconv"
	"time"
)

// ValueKind tags the variant held by a Value.
type ValueKind int

const (
	KindNull ValueKind = iota
	KindText
	KindNumber
	KindBool
	KindDate
)

// Value is a resolved variable value. The zero Value is null: it carries
// nothing and leaves its placeholder unresolved.
type Value struct {
	kind ValueKind
	text string
	num  float64
	b    bool
	date time.Time
}

// Text returns a string value.
func Text(s string) Value { return Value{kind: KindText, text: s} }

// Number returns a numeric value.
func Number(f float64) Value { return Value{kind: KindNumber, num: f} }

// Bool returns a boolean value.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Date returns a calendar date value. Only the UTC date part is kept when
// formatting.
func Date(t time.Time) Value { return Value{kind: KindDate, date: t} }

// Kind returns the variant tag.
func (v Value) Kind() ValueKind { return v.kind }

// IsNull reports whether v holds no value.
func (v Value) IsNull() bool { return v.kind == KindNull }

// Str returns the text of a Text value.
func (v Value) Str() string { return v.text }

// Float returns the number held by a Number value.
func (v Value) Float() float64 { return v.num }

// Truth returns the boolean held by a Bool value.
func (v Value) Truth() bool { return v.b }

// Time returns the time held by a Date value.
func (v Value) Time() time.Time { return v.date }

// MarshalJSON encodes the value with its natural JSON type. Dates are
// written as YYYY-MM-DD.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindText:
		return json.Marshal(v.text)
	case KindNumber:
		return []byte(strconv.FormatFloat(v.num, 'f', -1, 64)), nil
	case KindBool:
		return json.Marshal(v.b)
	case KindDate:
		return json.Marshal(v.date.UTC().Format(time.DateOnly))
	}
	return []byte("null"), nil
}
