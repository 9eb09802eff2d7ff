package errs

import "errors"

var (
	// ErrIndexUnavailable: index files absent or corrupt; retrieval cannot run.
	ErrIndexUnavailable = errors.New("index unavailable")
	// ErrVersionMismatch: index built with a different embedding model than
	// the live one; mixing vector spaces silently corrupts scores.
	ErrVersionMismatch = errors.New("index model version mismatch")
	ErrNotFound        = errors.New("not found")
	ErrInvalid         = errors.New("invalid")
	// ErrUnavailable: embedding or generation provider not configured.
	ErrUnavailable = errors.New("ai not available")
)

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
