// Package validation wraps a singleton go-playground validator and maps its
// failures onto core.ErrValidation.
package validation

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/dkeye/Signage/internal/core"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// FieldError is one failed rule.
type FieldError struct {
	Field   string
	Tag     string
	Param   string
	Message string
}

// Error collects every failed rule of one struct.
type Error struct {
	Fields []FieldError
}

func (e *Error) Error() string {
	msgs := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		msgs[i] = f.Message
	}
	return strings.Join(msgs, "; ")
}

func (e *Error) Is(target error) bool { return target == core.ErrValidation }

// Get returns the shared validator instance.
func Get() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// Struct validates s. The returned error matches core.ErrValidation.
func Struct(s any) error {
	err := Get().Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return &Error{Fields: []FieldError{{Field: "unknown", Tag: "unknown", Message: err.Error()}}}
	}
	out := &Error{Fields: make([]FieldError, len(verrs))}
	for i, fe := range verrs {
		out.Fields[i] = FieldError{
			Field:   fe.Namespace(),
			Tag:     fe.Tag(),
			Param:   fe.Param(),
			Message: translate(fe),
		}
	}
	return out
}

var withParam = map[string]string{
	"min":   "%s must be at least %s",
	"max":   "%s must be at most %s",
	"oneof": "%s must be one of: %s",
	"gte":   "%s must be greater than or equal to %s",
	"lte":   "%s must be less than or equal to %s",
}

func translate(fe validator.FieldError) string {
	if fe.Tag() == "required" {
		return fmt.Sprintf("%s is required", fe.Namespace())
	}
	if tmpl, ok := withParam[fe.Tag()]; ok {
		return fmt.Sprintf(tmpl, fe.Namespace(), fe.Param())
	}
	return fmt.Sprintf("%s failed %s validation", fe.Namespace(), fe.Tag())
}
