package engine

import (
	"fmt"
	"sort"
	"strings"
)

// ConflictError reports a uniqueness clash, e.g. a duplicate state name.
type ConflictError struct {
	Entity  string
	Message string
}

func (e ConflictError) Error() string {
	return e.Message
}

// ValidationError carries one message per offending input field.
type ValidationError struct {
	Violations map[string]string
}

func (e ValidationError) Error() string {
	keys := make([]string, 0, len(e.Violations))
	for k := range e.Violations {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, e.Violations[k]))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// InvariantError is a data or programming error that retrying cannot fix.
type InvariantError struct {
	Message string
}

func (e InvariantError) Error() string {
	return e.Message
}

type violations map[string]string

func (v violations) require(field, value string, max int) {
	value = strings.TrimSpace(value)
	switch {
	case value == "":
		v[field] = "This value should not be blank."
	case max > 0 && len([]rune(value)) > max:
		v[field] = fmt.Sprintf("This value is too long. It should have %d characters or less.", max)
	}
}

func (v violations) err() error {
	if len(v) == 0 {
		return nil
	}
	return ValidationError{Violations: v}
}
