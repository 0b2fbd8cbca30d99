package core

import "errors"

var (
	// ErrNetwork matches every *StoreError: the catalog, snapshot or purchase
	// call could not reach the store. Retryable by repeating the user action.
	ErrNetwork = errors.New("store unavailable")
	// ErrUnknownProduct is returned when a purchase names a product that is
	// not in the configured catalog.
	ErrUnknownProduct = errors.New("unknown product")
	// ErrStreamClosed is returned by Listen when the update stream ends
	// while the listener is still wanted.
	ErrStreamClosed = errors.New("transaction update stream closed")
	// ErrNoPublisher is returned by Publish when no sending end is configured.
	ErrNoPublisher = errors.New("no transaction publisher configured")
)

// StoreError wraps a failed call to the entitlement store or catalog.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	if e.Err == nil {
		return "subkit: " + e.Op + ": " + ErrNetwork.Error()
	}
	return "subkit: " + e.Op + ": " + e.Err.Error()
}

func (e *StoreError) Unwrap() error { return e.Err }

// Is reports ErrNetwork so callers can branch without knowing the transport.
func (e *StoreError) Is(target error) bool { return target == ErrNetwork }
