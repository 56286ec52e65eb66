package registry

import "errors"

var (
	// ErrNotAllowed rejects updates from names absent from the
	// admission list.
	ErrNotAllowed = errors.New("client not allowed")

	// ErrNotFound is returned for operations on unknown node ids.
	ErrNotFound = errors.New("node not found")

	// ErrMalformedPayload rejects updates missing the node identity or
	// display name.
	ErrMalformedPayload = errors.New("malformed payload")

	// ErrAlreadyAdmitted rejects duplicate admission entries.
	ErrAlreadyAdmitted = errors.New("client already admitted")

	// ErrInvalidStatus rejects operator transitions to an unknown state.
	ErrInvalidStatus = errors.New("invalid status")
)
