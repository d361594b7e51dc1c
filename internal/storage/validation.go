package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Veraticus/orderproof/internal/model"
)

// Validation errors.
var (
	ErrNilContext   = errors.New("context cannot be nil")
	ErrEmptyString  = errors.New("string parameter cannot be empty")
	ErrNilParameter = errors.New("parameter cannot be nil")
	ErrInvalidEvent = errors.New("invalid order event")
)

// validateContext ensures the context is not nil.
func validateContext(ctx context.Context) error {
	if ctx == nil {
		return ErrNilContext
	}
	return nil
}

// validateString ensures a string parameter is not empty.
func validateString(s string, paramName string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("%w: %s", ErrEmptyString, paramName)
	}
	return nil
}

// validateEvent validates an order event before it is recorded.
func validateEvent(event model.OrderEvent) error {
	if strings.TrimSpace(event.RunID) == "" {
		return fmt.Errorf("%w: run id is required", ErrInvalidEvent)
	}
	if strings.TrimSpace(event.OrderID) == "" {
		return fmt.Errorf("%w: order id is required", ErrInvalidEvent)
	}
	if event.Stage == "" {
		return fmt.Errorf("%w: stage is required", ErrInvalidEvent)
	}
	if event.Outcome == "" {
		return fmt.Errorf("%w: outcome is required", ErrInvalidEvent)
	}
	return nil
}
