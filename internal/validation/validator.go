// BusTracker - Real-Time Vehicle Location Broadcast Service
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package validation provides request validation built on
// go-playground/validator with translation of raw validator errors into
// the API error envelope.
package validation

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/citygrid/bustracker/internal/models"
)

var (
	instance *validator.Validate
	once     sync.Once
)

// GetValidator returns the shared validator instance. The instance is
// safe for concurrent use and caches struct metadata across calls.
func GetValidator() *validator.Validate {
	once.Do(func() {
		instance = validator.New(validator.WithRequiredStructEnabled())
	})
	return instance
}

// RequestValidationError aggregates per-field validation failures for a
// single request.
type RequestValidationError struct {
	Fields map[string]string
}

// Error implements the error interface.
func (e *RequestValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for field, msg := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s: %s", field, msg))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// ToAPIError converts the validation error into the API error envelope.
func (e *RequestValidationError) ToAPIError() *models.APIError {
	details := make(map[string]interface{}, len(e.Fields))
	for field, msg := range e.Fields {
		details[field] = msg
	}
	return &models.APIError{
		Code:    "VALIDATION_ERROR",
		Message: "Request validation failed",
		Details: details,
	}
}

// ValidateStruct validates a struct against its validate tags. Returns a
// *RequestValidationError describing every failed field, or nil.
func ValidateStruct(s interface{}) *RequestValidationError {
	err := GetValidator().Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return &RequestValidationError{
			Fields: map[string]string{"_": err.Error()},
		}
	}

	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		fields[fieldPath(fe)] = translateError(fe)
	}
	return &RequestValidationError{Fields: fields}
}

// fieldPath strips the top-level struct name from the field namespace,
// so "LocationUpdateRequest.Location.Latitude" becomes "Location.Latitude".
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if idx := strings.Index(ns, "."); idx >= 0 {
		return ns[idx+1:]
	}
	return fe.Field()
}

// translateError maps a validator tag failure to a human-readable message.
func translateError(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "latitude":
		return "must be a valid latitude between -90 and 90"
	case "longitude":
		return "must be a valid longitude between -180 and 180"
	case "min":
		return fmt.Sprintf("must be at least %s characters", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of: %s", fe.Param())
	default:
		return fmt.Sprintf("failed %s validation", fe.Tag())
	}
}
