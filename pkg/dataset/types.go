// Package dataset holds the in-memory tabular model shared by every stage of
// the preprocessing pipeline: typed columns, the missing marker, and the
// coercion rules used to move values between column types.
package dataset

import (
	"strings"

	"github.com/ajitpratap0/prepdash/pkg/errors"
)

// Type is the declared type of a column.
type Type string

const (
	// Integer columns hold int64 values
	Integer Type = "integer"
	// Float columns hold float64 values
	Float Type = "float"
	// String columns hold free text
	String Type = "string"
	// Category columns hold string labels with categorical semantics
	Category Type = "category"
	// Datetime columns hold UTC time.Time values
	Datetime Type = "datetime"
	// Boolean columns hold bool values
	Boolean Type = "boolean"
)

// Kind is the coarse classification used by the inspector and by step
// validation.
type Kind string

const (
	KindNumeric     Kind = "numeric"
	KindCategorical Kind = "categorical"
	KindOther       Kind = "other"
)

var typeAliases = map[string]Type{
	"integer":  Integer,
	"int":      Integer,
	"int64":    Integer,
	"float":    Float,
	"float64":  Float,
	"double":   Float,
	"string":   String,
	"str":      String,
	"object":   String,
	"text":     String,
	"category": Category,
	"datetime": Datetime,
	"date":     Datetime,
	"time":     Datetime,
	"boolean":  Boolean,
	"bool":     Boolean,
}

// ParseType resolves a type name, accepting the common aliases used by
// dashboards and recipe files ("int", "float64", "object", "bool", ...).
func ParseType(name string) (Type, error) {
	t, ok := typeAliases[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return "", errors.Newf(errors.ErrorTypeValidation, "unknown column type %q", name).
			WithDetail("type", name)
	}
	return t, nil
}

// Kind classifies the type.
func (t Type) Kind() Kind {
	switch t {
	case Integer, Float:
		return KindNumeric
	case String, Category, Boolean:
		return KindCategorical
	default:
		return KindOther
	}
}

// IsNumeric reports whether values of t take part in arithmetic.
func (t Type) IsNumeric() bool { return t.Kind() == KindNumeric }

// IsCategorical reports whether t holds labels.
func (t Type) IsCategorical() bool { return t.Kind() == KindCategorical }

func (t Type) valid() bool {
	switch t {
	case Integer, Float, String, Category, Datetime, Boolean:
		return true
	}
	return false
}
