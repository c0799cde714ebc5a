package app

import (
	"errors"
	"fmt"
	"net/http"

	"airwaves/api/internal/auth"
	"airwaves/api/internal/registry"
	"airwaves/api/internal/repair"
)

type DomainError struct {
	Status  int
	Code    string
	Message string
	Details any
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func domainError(status int, code, message string, details any) *DomainError {
	return &DomainError{
		Status:  status,
		Code:    code,
		Message: message,
		Details: details,
	}
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	var regErr *registry.Error
	if errors.As(err, &regErr) {
		switch {
		case errors.Is(regErr, registry.ErrValidation):
			return http.StatusBadRequest, regErr.Code, regErr.Message, nil
		case errors.Is(regErr, registry.ErrConflict):
			return http.StatusConflict, regErr.Code, regErr.Message, nil
		case errors.Is(regErr, registry.ErrNotFound):
			return http.StatusNotFound, regErr.Code, regErr.Message, nil
		case errors.Is(regErr, registry.ErrTransient):
			return http.StatusServiceUnavailable, regErr.Code, regErr.Message, nil
		}
	}
	if errors.Is(err, repair.ErrUnknownTask) {
		return http.StatusNotFound, "UNKNOWN_TASK", "Unknown repair task", nil
	}
	if errors.Is(err, auth.ErrInvalidToken) || errors.Is(err, auth.ErrExpiredToken) {
		return http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}
