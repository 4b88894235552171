package domain

import "errors"

var (
	ErrNotFound = errors.New("not found")

	ErrMalformedRequest   = errors.New("malformed request")
	ErrUnsupportedQuery   = errors.New("unsupported query")
	ErrNotOwnedDomain     = errors.New("name is not under the parent domain")
	ErrInvalidLabel       = errors.New("label must be lowercase alphanumeric or hyphen, 1-63 characters")
	ErrMessageMismatch    = errors.New("message does not match expected text")
	ErrInvalidSignature   = errors.New("invalid signature")
	ErrNameTaken          = errors.New("name already taken")
	ErrNoFieldsToUpdate   = errors.New("no permissions to update")
	ErrNotOwnerOrNotFound = errors.New("not owner or name not found")
	ErrStoreUnavailable   = errors.New("store unavailable")
)
