// Package common defines shared sentinel errors and small helpers used across
// gophsafe layers. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Lookup errors.
	ErrorNotFound = errors.New("not found")

	// Mutation errors: a requested change would violate a tree or format invariant.
	ErrorValidation = errors.New("validation error")

	// Session state errors.
	ErrorLocked        = errors.New("database is locked")
	ErrorAlreadyUnlock = errors.New("database is already unlocked")
)
