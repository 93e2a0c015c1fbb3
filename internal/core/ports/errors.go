package ports

import "errors"

var (
	// ErrUndefinedColumn means the backing store lacks a requested column.
	ErrUndefinedColumn = errors.New("undefined column")
	// ErrMissingCredentials means a provider is not configured.
	ErrMissingCredentials = errors.New("missing provider credentials")
	// ErrNotFound means a lookup returned nothing.
	ErrNotFound = errors.New("not found")
)
