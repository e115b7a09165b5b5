package validation

import (
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"
)

// FieldErrors maps a field name to a human readable message. A draft is
// submittable iff its FieldErrors is empty.
type FieldErrors map[string]string

func (e FieldErrors) Has(field string) bool {
	_, ok := e[field]
	return ok
}

func (e FieldErrors) Empty() bool {
	return len(e) == 0
}

// Fields returns the offending field names in sorted order.
func (e FieldErrors) Fields() []string {
	out := make([]string, 0, len(e))
	for field := range e {
		out = append(out, field)
	}
	sort.Strings(out)
	return out
}

func (e FieldErrors) Clone() FieldErrors {
	out := make(FieldErrors, len(e))
	for k, v := range e {
		out[k] = v
	}
	return out
}

// Validator collects the first failing rule per field.
type Validator struct {
	errs FieldErrors
}

func NewValidator() *Validator {
	return &Validator{errs: make(FieldErrors, 4)}
}

func (v *Validator) Add(field, reason string) {
	if v == nil {
		return
	}
	field = strings.TrimSpace(field)
	reason = strings.TrimSpace(reason)
	if field == "" || reason == "" {
		return
	}
	if _, exists := v.errs[field]; exists {
		return
	}
	v.errs[field] = reason
}

// Required reports whether value is non-blank, adding reason otherwise.
func (v *Validator) Required(field, value, reason string) bool {
	if strings.TrimSpace(value) == "" {
		v.Add(field, reason)
		return false
	}
	return true
}

func (v *Validator) Pattern(field, value string, re *regexp.Regexp, reason string) {
	if !re.MatchString(value) {
		v.Add(field, reason)
	}
}

func (v *Validator) MinLength(field, value string, n int, reason string) {
	if utf8.RuneCountInString(value) < n {
		v.Add(field, reason)
	}
}

func (v *Validator) Equal(field, got, want, reason string) {
	if got != want {
		v.Add(field, reason)
	}
}

func (v *Validator) HasIssues() bool {
	return v != nil && len(v.errs) > 0
}

func (v *Validator) Errors() FieldErrors {
	if v == nil {
		return FieldErrors{}
	}
	return v.errs.Clone()
}
