package domain

import "errors"

// Sentinel errors shared across the storage layer and the assistant
// engine. Handlers translate these into localized user-facing messages;
// the raw error text never reaches a client.
var (
	// ErrNotFound means the target id does not exist within the caller's
	// family. A row owned by another family also resolves to ErrNotFound,
	// never to that row.
	ErrNotFound = errors.New("not found")

	// ErrPermissionDenied means the caller's role may not perform the
	// requested action.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrUnsupportedAction means the action type is not in the supported set.
	ErrUnsupportedAction = errors.New("unsupported action")

	// ErrInvalidPayload means the action data was missing or malformed for
	// the action type and was rejected at the dispatch boundary.
	ErrInvalidPayload = errors.New("invalid action payload")

	// ErrAlreadyPurchased means a purchase confirmation referenced an item
	// that is already marked purchased.
	ErrAlreadyPurchased = errors.New("item already purchased")
)
