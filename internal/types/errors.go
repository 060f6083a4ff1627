package types

import "errors"

// Sentinel errors shared by services and handlers. Services wrap these with
// context; the error middleware maps them to HTTP status codes.
var (
	ErrNotFound     = errors.New("not found")
	ErrForbidden    = errors.New("forbidden")
	ErrConflict     = errors.New("conflict")
	ErrInvalidInput = errors.New("invalid input")
	ErrUnauthorized = errors.New("unauthorized")
	ErrUpstream     = errors.New("upstream service error")
	ErrNoCandidates = errors.New("no matching recipes")
)
