package faceauth

import "errors"

// Request-scoped failure taxonomy. Every error here aborts exactly one
// request and leaves no partial state behind.
var (
	// Ingestion validation.
	ErrInvalidMediaType = errors.New("payload is not a supported image type")
	ErrPayloadTooLarge  = errors.New("image exceeds the size limit")
	ErrTooManyImages    = errors.New("too many images in enrollment batch")
	ErrNoImages         = errors.New("at least one image is required")

	// Enrollment.
	ErrNoFaceDetected    = errors.New("no face found in any submitted image")
	ErrDuplicateIdentity = errors.New("email already owns an identity")

	// Authentication.
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrNoMatch            = errors.New("no enrolled identity within threshold")

	// External extractor down or timed out. Retryable.
	ErrExtractorUnavailable = errors.New("embedding extractor unavailable")

	// Session validation.
	ErrUnauthenticated = errors.New("not authenticated")
	ErrInvalidSession  = errors.New("invalid session token")
	ErrSessionExpired  = errors.New("session expired")
)
