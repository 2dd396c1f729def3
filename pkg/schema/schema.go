// Package schema describes tabular dataset schemas and renders them into
// prompt-ready context for SQL generation and validation.
package schema

import (
	"fmt"
	"strings"
)

// FieldType is the declared type of a dataset column.
type FieldType string

const (
	TypeString  FieldType = "string"
	TypeInteger FieldType = "integer"
	TypeFloat   FieldType = "float"
	TypeDate    FieldType = "date"
	TypeBoolean FieldType = "boolean"
)

// IsNumeric reports whether the type holds numeric values.
func (t FieldType) IsNumeric() bool {
	return t == TypeInteger || t == TypeFloat
}

// Column describes a single dataset column. Immutable once loaded.
// Column names may contain spaces, which forces quoting in generated SQL.
type Column struct {
	Name        string    `json:"name" yaml:"name"`
	Type        FieldType `json:"type" yaml:"type"`
	Nullable    bool      `json:"nullable" yaml:"nullable"`
	PrimaryKey  bool      `json:"primaryKey" yaml:"primary_key"`
	Description string    `json:"description,omitempty" yaml:"description,omitempty"`
}

// Context is free-text metadata attached to a dataset. It only enriches
// prompts and is never validated structurally.
type Context struct {
	Context string `json:"context,omitempty" yaml:"context,omitempty"`
	Purpose string `json:"purpose,omitempty" yaml:"purpose,omitempty"`
	Source  string `json:"source,omitempty" yaml:"source,omitempty"`
	Notes   string `json:"notes,omitempty" yaml:"notes,omitempty"`
}

// FindColumn returns the column with the given name, case-insensitively.
func FindColumn(cols []Column, name string) (Column, bool) {
	for _, c := range cols {
		if strings.EqualFold(c.Name, name) {
			return c, true
		}
	}
	return Column{}, false
}

// ColumnNames returns the names of all columns in declaration order.
func ColumnNames(cols []Column) []string {
	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = c.Name
	}
	return names
}

// NumericColumns returns the columns with a numeric declared type.
func NumericColumns(cols []Column) []Column {
	var out []Column
	for _, c := range cols {
		if c.Type.IsNumeric() {
			out = append(out, c)
		}
	}
	return out
}

// BuildContext renders columns plus dataset metadata as readable text for
// inclusion in LLM prompts. Spaced column names are shown backtick-quoted so
// generated SQL quotes them the same way.
func BuildContext(cols []Column, dctx Context) string {
	var sb strings.Builder

	sb.WriteString("Columns:\n")
	for _, c := range cols {
		name := c.Name
		if strings.Contains(name, " ") {
			name = "`" + name + "`"
		}
		sb.WriteString(fmt.Sprintf("  - %s (%s", name, c.Type))
		if c.Nullable {
			sb.WriteString(", nullable")
		}
		if c.PrimaryKey {
			sb.WriteString(", primary key")
		}
		sb.WriteString(")")
		if c.Description != "" {
			sb.WriteString(": " + c.Description)
		}
		sb.WriteString("\n")
	}

	if dctx.Context != "" {
		sb.WriteString("\nDataset context: " + dctx.Context + "\n")
	}
	if dctx.Purpose != "" {
		sb.WriteString("Purpose: " + dctx.Purpose + "\n")
	}
	if dctx.Source != "" {
		sb.WriteString("Source: " + dctx.Source + "\n")
	}
	if dctx.Notes != "" {
		sb.WriteString("Notes: " + dctx.Notes + "\n")
	}

	return sb.String()
}
