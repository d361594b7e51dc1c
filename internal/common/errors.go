// Package common provides shared utilities and types used across the application.
package common

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/Veraticus/orderproof/internal/model"
	"google.golang.org/api/googleapi"
)

// Common application errors.
var (
	// Storage errors.
	ErrNotFound = errors.New("not found")

	// Pipeline failure kinds. Each stage failure wraps exactly one of these.
	ErrExtraction   = errors.New("extraction failure")
	ErrCapture      = errors.New("capture failure")
	ErrPublish      = errors.New("publish failure")
	ErrReconcile    = errors.New("reconcile failure")
	ErrFatalSession = errors.New("fatal session failure")

	// ErrNoMoreOrders marks the end of the order history for this run.
	ErrNoMoreOrders = errors.New("no more orders")

	// Configuration errors.
	ErrMissingConfig = errors.New("missing configuration")
	ErrInvalidConfig = errors.New("invalid configuration")
)

// StageError records which pipeline stage failed, for which order, and why.
type StageError struct {
	Kind    error
	Err     error
	Stage   model.Stage
	OrderID string
}

func (e *StageError) Error() string {
	id := e.OrderID
	if id == "" {
		id = "unknown order"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%s): %v", e.Kind, id, e.Stage, e.Err)
	}
	return fmt.Sprintf("%s: %s (%s)", e.Kind, id, e.Stage)
}

// Unwrap exposes both the failure kind and the underlying cause to errors.Is/As.
func (e *StageError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// NewStageError wraps err as a failure of the given stage.
func NewStageError(kind error, stage model.Stage, orderID string, err error) error {
	return &StageError{
		Kind:    kind,
		Stage:   stage,
		OrderID: orderID,
		Err:     err,
	}
}

// FailedStage reports the stage carried by err, if any.
func FailedStage(err error) (model.Stage, bool) {
	var stageErr *StageError
	if errors.As(err, &stageErr) {
		return stageErr.Stage, true
	}
	return "", false
}

// UserError represents an error that should be shown to the user.
type UserError struct {
	Err         error
	UserMessage string
}

func (e *UserError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.UserMessage, e.Err)
	}
	return e.UserMessage
}

func (e *UserError) Unwrap() error {
	return e.Err
}

// NewUserError creates a new user-friendly error.
func NewUserError(userMessage string, err error) error {
	return &UserError{
		UserMessage: userMessage,
		Err:         err,
	}
}

// IsRetryable determines if an error should trigger a retry.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	// Cancellation is the caller giving up, not a transient fault.
	if errors.Is(err, context.Canceled) {
		return false
	}

	if IsRateLimited(err) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var retryableErr *RetryableError
	if errors.As(err, &retryableErr) {
		return retryableErr.Retryable
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code == http.StatusTooManyRequests || apiErr.Code >= http.StatusInternalServerError
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}

	return false
}

// IsRateLimited reports whether err is a quota rejection. Google APIs signal
// these with 429, or with 403 and a rate limit reason.
func IsRateLimited(err error) bool {
	if errors.Is(err, ErrRateLimit) {
		return true
	}

	var apiErr *googleapi.Error
	if !errors.As(err, &apiErr) {
		return false
	}
	if apiErr.Code == http.StatusTooManyRequests {
		return true
	}
	if apiErr.Code == http.StatusForbidden {
		for _, item := range apiErr.Errors {
			if item.Reason == "rateLimitExceeded" || item.Reason == "userRateLimitExceeded" {
				return true
			}
		}
	}
	return false
}
