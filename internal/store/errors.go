package store

import "errors"

var (
	// ErrStorageUnavailable is returned when the storage file cannot be
	// opened or created, or when the session has been closed.
	ErrStorageUnavailable = errors.New("storage unavailable")
	// ErrInvalidReference is returned when an association names an event or
	// tag that does not exist.
	ErrInvalidReference = errors.New("invalid reference")
	// ErrDuplicateID is returned when inserting an event whose id is taken.
	ErrDuplicateID = errors.New("duplicate id")
	// ErrNotFound is returned when a lookup or update targets a missing row.
	ErrNotFound = errors.New("not found")
	// ErrStorageBusy is returned when exclusive access is requested while
	// another exclusive holder is active.
	ErrStorageBusy = errors.New("storage busy")
	// ErrInvalidArgument is returned for malformed input such as an empty
	// title or an unparseable timestamp.
	ErrInvalidArgument = errors.New("invalid argument")
)
