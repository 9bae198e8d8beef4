package common

import (
	"fmt"
	"net/url"
	"strings"
)

// ValidationError is one failed check on one field.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s (%v): %s", e.Field, e.Value, e.Message)
}

// Validator collects failures so a caller can report every bad field at once.
type Validator struct {
	failures []ValidationError
}

func NewValidator() *Validator {
	return &Validator{}
}

// Field runs rules against value and records each failure.
func (v *Validator) Field(fieldName string, value interface{}, rules ...ValidationRule) *Validator {
	for _, rule := range rules {
		if f := rule(fieldName, value); f != nil {
			v.failures = append(v.failures, *f)
		}
	}
	return v
}

// Check records a failure when ok is false.
func (v *Validator) Check(ok bool, fieldName string, value interface{}, message string) *Validator {
	if !ok {
		v.failures = append(v.failures, ValidationError{Field: fieldName, Value: value, Message: message})
	}
	return v
}

func (v *Validator) HasErrors() bool {
	return len(v.failures) > 0
}

// ErrorMessage joins the failures with "; ".
func (v *Validator) ErrorMessage() string {
	msgs := make([]string, 0, len(v.failures))
	for _, f := range v.failures {
		msgs = append(msgs, f.Error())
	}
	return strings.Join(msgs, "; ")
}

// ValidationRule returns nil when value passes.
type ValidationRule func(fieldName string, value interface{}) *ValidationError

// Required rejects nil, blank strings and empty selections.
func Required(fieldName string, value interface{}) *ValidationError {
	if value == nil {
		return &ValidationError{Field: fieldName, Value: value, Message: "is required"}
	}
	switch v := value.(type) {
	case string:
		if strings.TrimSpace(v) == "" {
			return &ValidationError{Field: fieldName, Value: value, Message: "is required"}
		}
	case *string:
		if v == nil || strings.TrimSpace(*v) == "" {
			return &ValidationError{Field: fieldName, Value: value, Message: "is required"}
		}
	case []int:
		if len(v) == 0 {
			return &ValidationError{Field: fieldName, Value: value, Message: "must not be empty"}
		}
	case []string:
		if len(v) == 0 {
			return &ValidationError{Field: fieldName, Value: value, Message: "must not be empty"}
		}
	}
	return nil
}

// NonNegativeIndices rejects selections holding negative or duplicate indices.
func NonNegativeIndices(fieldName string, value interface{}) *ValidationError {
	idx, ok := value.([]int)
	if !ok {
		return nil
	}
	seen := make(map[int]struct{}, len(idx))
	for _, i := range idx {
		if i < 0 {
			return &ValidationError{Field: fieldName, Value: value, Message: "indices must be non-negative"}
		}
		if _, dup := seen[i]; dup {
			return &ValidationError{Field: fieldName, Value: value, Message: fmt.Sprintf("index %d selected twice", i)}
		}
		seen[i] = struct{}{}
	}
	return nil
}

// HTTPURL accepts absolute http(s) URLs with a dotted host.
func HTTPURL(fieldName string, value interface{}) *ValidationError {
	str, ok := value.(string)
	if !ok {
		return &ValidationError{Field: fieldName, Value: value, Message: "must be a string"}
	}
	u, err := url.Parse(str)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || !strings.Contains(u.Host, ".") {
		return &ValidationError{Field: fieldName, Value: value, Message: "must be an absolute http(s) URL"}
	}
	return nil
}

// ValidateAndReturnError wraps collected failures as a configuration AppError.
func ValidateAndReturnError(validator *Validator) error {
	if validator.HasErrors() {
		return NewAppError(CodeConfig, validator.ErrorMessage(), ErrInvalidInput)
	}
	return nil
}

// NormalizeURL trims the input and adds https:// when no scheme is given.
func NormalizeURL(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return s
	}
	if !strings.HasPrefix(s, "http://") && !strings.HasPrefix(s, "https://") {
		s = "https://" + s
	}
	return s
}
