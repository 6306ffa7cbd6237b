// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Veridian Contributors

package auth

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("not found")

// Client-visible error codes. These are stable identifiers safe to show
// verbatim in API responses; operational detail stays in oops-wrapped errors.
const (
	CodeInvalidUsernameFormat = "INVALID_USERNAME_FORMAT"
	CodeUsernameTaken         = "USERNAME_TAKEN"
	CodeEmailTaken            = "EMAIL_TAKEN"
	CodePasswordMismatch      = "PASSWORD_MISMATCH"
	CodePasswordTooShort      = "PASSWORD_TOO_SHORT"
	CodeNoSuchAccount         = "NO_SUCH_ACCOUNT"
	CodeBadPassword           = "BAD_PASSWORD"
	CodeAccountInactive       = "ACCOUNT_INACTIVE"
	CodeNewPasswordMismatch   = "NEW_PASSWORD_MISMATCH"
	CodeNewPasswordTooShort   = "NEW_PASSWORD_TOO_SHORT"
	CodeOldPasswordIncorrect  = "OLD_PASSWORD_INCORRECT"
	CodePasswordUnchanged     = "PASSWORD_UNCHANGED"
	CodeInvalidToken          = "INVALID_TOKEN"
)

// FieldError is a validation failure scoped to a single input field.
type FieldError struct {
	Field   string
	Code    string
	Message string
}

// Error implements the error interface.
func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// FieldErrors accumulates per-field validation failures. Validators return
// values rather than short-circuiting so independent checks can all report.
type FieldErrors []FieldError

// Error implements the error interface.
func (e FieldErrors) Error() string {
	msgs := make([]string, len(e))
	for i, fe := range e {
		msgs[i] = fe.Error()
	}
	return strings.Join(msgs, "; ")
}

// Add appends a field error.
func (e *FieldErrors) Add(field, code, message string) {
	*e = append(*e, FieldError{Field: field, Code: code, Message: message})
}

// HasCode reports whether any accumulated error carries the given code.
func (e FieldErrors) HasCode(code string) bool {
	for _, fe := range e {
		if fe.Code == code {
			return true
		}
	}
	return false
}

// ByField groups accumulated messages by field name, in the shape the API
// layer returns to clients.
func (e FieldErrors) ByField() map[string][]string {
	out := make(map[string][]string, len(e))
	for _, fe := range e {
		out[fe.Field] = append(out[fe.Field], fe.Message)
	}
	return out
}

// AsFieldErrors unwraps err into FieldErrors if it is one.
func AsFieldErrors(err error) (FieldErrors, bool) {
	var fe FieldErrors
	if errors.As(err, &fe) {
		return fe, true
	}
	var single FieldError
	if errors.As(err, &single) {
		return FieldErrors{single}, true
	}
	return nil, false
}
