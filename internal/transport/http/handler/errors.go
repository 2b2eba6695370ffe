package handler

const (
	errInternalServer   = "Internal server error"
	errInvalidSince     = "since must be a non-negative integer"
	errInvalidLimit     = "limit must be between 1 and 1000"
	errStoreUnavailable = "Event store is not configured"
)
