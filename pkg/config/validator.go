package config

import (
	"fmt"
	"strings"
	"time"
)

// FieldError is one invalid setting.
type FieldError struct {
	Field   string
	Message string
}

func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// FieldErrors collects every invalid setting found by Validate.
type FieldErrors []FieldError

func (e FieldErrors) Error() string {
	msgs := make([]string, len(e))
	for i, fe := range e {
		msgs[i] = fe.Error()
	}
	return strings.Join(msgs, "; ")
}

// validator accumulates field errors; each check returns the validator so
// checks chain.
type validator struct {
	errs FieldErrors
}

func (v *validator) add(field, message string) {
	v.errs = append(v.errs, FieldError{Field: field, Message: message})
}

func (v *validator) required(field, value string) *validator {
	if strings.TrimSpace(value) == "" {
		v.add(field, "is required")
	}
	return v
}

func (v *validator) min(field string, value, min int64) *validator {
	if value < min {
		v.add(field, fmt.Sprintf("must be at least %d, got %d", min, value))
	}
	return v
}

func (v *validator) minDuration(field string, value, min time.Duration) *validator {
	if value < min {
		v.add(field, fmt.Sprintf("must be at least %v, got %v", min, value))
	}
	return v
}

// oneOf compares case-insensitively.
func (v *validator) oneOf(field, value string, allowed ...string) *validator {
	for _, a := range allowed {
		if strings.EqualFold(value, a) {
			return v
		}
	}
	v.add(field, fmt.Sprintf("%q must be one of: %s", value, strings.Join(allowed, ", ")))
	return v
}

func (v *validator) check(field string, ok bool, message string) *validator {
	if !ok {
		v.add(field, message)
	}
	return v
}

func (v *validator) err() error {
	if len(v.errs) == 0 {
		return nil
	}
	return v.errs
}
