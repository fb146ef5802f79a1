package models

import "encoding/json"

// VariableType is the declared type of a template variable. It drives
// form rendering and the coercion applied to submitted values.
type VariableType string

const (
	VariableTypeText    VariableType = "text"
	VariableTypeNumber  VariableType = "number"
	VariableTypeBoolean VariableType = "boolean"
	VariableTypeDate    VariableType = "date"
	VariableTypeSelect  VariableType = "select"
)

// Valid reports whether t is one of the known variable types.
func (t VariableType) Valid() bool {
	switch t {
	case VariableTypeText, VariableTypeNumber, VariableTypeBoolean,
		VariableTypeDate, VariableTypeSelect:
		return true
	}
	return false
}

// VariableDefinition describes one substitutable field of a template.
// Name matches the placeholder key used in the document source.
type VariableDefinition struct {
	Name         string          `json:"name" validate:"required,max=64,varname"`
	Type         VariableType    `json:"type" validate:"required,oneof=text number boolean date select"`
	Label        string          `json:"label" validate:"required,max=200"`
	Required     bool            `json:"required"`
	DefaultValue json.RawMessage `json:"defaultValue,omitempty"`
	Options      []string        `json:"options,omitempty" validate:"required_if=Type select,omitempty,min=1,dive,required"`
}

// HasDefault reports whether a non-null default value is declared.
func (d *VariableDefinition) HasDefault() bool {
	return len(d.DefaultValue) > 0 && string(d.DefaultValue) != "null"
}
