package apperrors

import (
	"fmt"
	"net/http"
)

type ErrorType string

const (
	ErrEndpointUnavailable ErrorType = "ENDPOINT_UNAVAILABLE"
	ErrRateLimited         ErrorType = "RATE_LIMITED"
	ErrInvalidAmount       ErrorType = "INVALID_AMOUNT"
	ErrWrongNetwork        ErrorType = "WRONG_NETWORK"
	ErrUserRejected        ErrorType = "USER_REJECTED"
	ErrTransactionFailed   ErrorType = "TRANSACTION_FAILED"
	ErrRequestNotFound     ErrorType = "REQUEST_NOT_FOUND"
	ErrDegradedRate        ErrorType = "DEGRADED_RATE"
	ErrFlowConflict        ErrorType = "FLOW_CONFLICT"
	ErrInvalidConfig       ErrorType = "INVALID_CONFIG"
	ErrInvalidRequest      ErrorType = "INVALID_REQUEST"
	ErrNotFound            ErrorType = "NOT_FOUND"
	ErrUpstream            ErrorType = "UPSTREAM_ERROR"
	ErrInternal            ErrorType = "INTERNAL_ERROR"
)

// AppError is the standard error struct for the application
type AppError struct {
	Type       ErrorType `json:"code"`
	Message    string    `json:"message"`
	Suggestion string    `json:"suggestion,omitempty"`
	HTTPStatus int       `json:"-"`
	Cause      error     `json:"-"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

func New(errType ErrorType, msg string, cause error) *AppError {
	return &AppError{
		Type:       errType,
		Message:    msg,
		Cause:      cause,
		HTTPStatus: mapTypeToStatus(errType),
		Suggestion: mapTypeToSuggestion(errType),
	}
}

func NewInvalidAmount(msg string) *AppError {
	return New(ErrInvalidAmount, msg, nil)
}

func NewInvalidRequest(msg string) *AppError {
	return New(ErrInvalidRequest, msg, nil)
}

func Wrap(err error) *AppError {
	if err == nil {
		return nil
	}
	if appErr, ok := err.(*AppError); ok {
		return appErr
	}
	return New(ErrInternal, err.Error(), err)
}

// Is reports whether err carries the given application error type.
func Is(err error, errType ErrorType) bool {
	appErr, ok := err.(*AppError)
	return ok && appErr.Type == errType
}

func mapTypeToStatus(t ErrorType) int {
	switch t {
	case ErrInvalidAmount, ErrInvalidRequest, ErrInvalidConfig:
		return http.StatusBadRequest
	case ErrWrongNetwork:
		return http.StatusPreconditionFailed
	case ErrUserRejected:
		return http.StatusConflict
	case ErrFlowConflict:
		return http.StatusConflict
	case ErrRequestNotFound, ErrNotFound:
		return http.StatusNotFound
	case ErrRateLimited:
		return http.StatusTooManyRequests
	case ErrEndpointUnavailable, ErrUpstream:
		return http.StatusBadGateway
	case ErrTransactionFailed:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func mapTypeToSuggestion(t ErrorType) string {
	switch t {
	case ErrEndpointUnavailable:
		return "All RPC endpoints failed. Retry later."
	case ErrRateLimited:
		return "Upstream endpoint is rate limiting. Back off and retry."
	case ErrInvalidAmount:
		return "Check the amount against the withdrawable balance."
	case ErrWrongNetwork:
		return "Switch the wallet to the target network and retry."
	case ErrUserRejected:
		return "Signature was rejected in the wallet. Start a new flow to retry."
	case ErrTransactionFailed:
		return "Transaction reverted on-chain. Reset the flow and try again."
	case ErrRequestNotFound:
		return "Refresh the withdrawal request list before cancelling."
	case ErrFlowConflict:
		return "A withdrawal is already in flight for this wallet and strategy."
	default:
		return ""
	}
}
