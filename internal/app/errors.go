package app

import (
	"database/sql"
	"errors"
	"fmt"
	"net/http"

	"chronicle/docsync/internal/docsync"
	"chronicle/docsync/internal/store"
)

// DomainError is an error the HTTP layer renders as {code, message, details}.
type DomainError struct {
	Status  int
	Code    string
	Message string
	Details any
	cause   error
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *DomainError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

func domainError(status int, code, message string, details any) *DomainError {
	return &DomainError{
		Status:  status,
		Code:    code,
		Message: message,
		Details: details,
	}
}

func validationError(message string, details any) *DomainError {
	return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", message, details)
}

// conflictError reports a published node that belongs to another document.
// ExistingPath is set when the expected document is already published elsewhere.
func conflictError(conflict *docsync.SynchronizationConflictError) *DomainError {
	details := map[string]any{
		"path":               conflict.Path,
		"foundIdentifier":    conflict.FoundIdentifier,
		"expectedIdentifier": conflict.ExpectedIdentifier,
	}
	if conflict.ExistingPath != "" {
		details["existingPath"] = conflict.ExistingPath
	}
	e := domainError(http.StatusConflict, "PUBLISH_CONFLICT", conflict.Error(), details)
	e.cause = conflict
	return e
}

func integrityError(integrity *docsync.IntegrityError) *DomainError {
	e := domainError(http.StatusInternalServerError, "INTEGRITY_ERROR", "Draft tree is inconsistent", map[string]any{"path": integrity.Path})
	e.cause = integrity
	return e
}

// asDomainError classifies err. Unknown errors become a 500 SERVER_ERROR that
// keeps err as its cause.
func asDomainError(err error) *DomainError {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	var conflict *docsync.SynchronizationConflictError
	if errors.As(err, &conflict) {
		return conflictError(conflict)
	}
	var integrity *docsync.IntegrityError
	if errors.As(err, &integrity) {
		return integrityError(integrity)
	}
	if errors.Is(err, store.ErrDocumentNotFound) || errors.Is(err, docsync.ErrDocumentNotRegistered) || errors.Is(err, sql.ErrNoRows) {
		e := domainError(http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		e.cause = err
		return e
	}
	e := domainError(http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil)
	e.cause = err
	return e
}
