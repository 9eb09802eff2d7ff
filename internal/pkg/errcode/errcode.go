package errcode

const (
	ErrUnknown = 10000000 + iota
	ErrInvalid
	ErrNotFound
	ErrIndexUnavailable
	ErrVersionMismatch
	ErrAIUnavailable
	ErrInternal
)
