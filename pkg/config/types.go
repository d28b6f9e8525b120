package config

import (
	"fmt"
	"strings"
)

// ValidationError is one problem found in a settings source.
type ValidationError struct {
	// File is the source file path.
	File string `json:"file,omitempty"`

	// Line is the line number (1-indexed).
	Line int `json:"line,omitempty"`

	// Column is the column number (1-indexed).
	Column int `json:"column,omitempty"`

	// Path is the setting name, e.g. "nix_build_user_count".
	Path string `json:"path,omitempty"`

	// Message is the error message.
	Message string `json:"message"`
}

// String formats the error with whatever location is known.
func (e ValidationError) String() string {
	var b strings.Builder
	if e.File != "" {
		b.WriteString(e.File)
		if e.Line > 0 {
			fmt.Fprintf(&b, ":%d:%d", e.Line, e.Column)
		}
		b.WriteString(": ")
	}
	if e.Path != "" {
		b.WriteString(e.Path)
		b.WriteString(": ")
	}
	b.WriteString(e.Message)
	return b.String()
}

// ValidationErrors is returned when one or more settings are invalid.
type ValidationErrors []ValidationError

// Error implements the error interface.
func (e ValidationErrors) Error() string {
	if len(e) == 1 {
		return "invalid settings: " + e[0].String()
	}
	var b strings.Builder
	fmt.Fprintf(&b, "invalid settings (%d):", len(e))
	for _, v := range e {
		b.WriteString("\n* ")
		b.WriteString(v.String())
	}
	return b.String()
}
