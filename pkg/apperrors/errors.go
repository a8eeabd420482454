// Package apperrors holds sentinel errors shared across packages.
package apperrors

import "errors"

var (
	// ErrUnknownConnection is returned for a connection name that is not configured.
	ErrUnknownConnection = errors.New("unknown connection")
	// ErrUnsupportedStore is returned for a store type with no registered driver.
	ErrUnsupportedStore = errors.New("unsupported store type")
)
