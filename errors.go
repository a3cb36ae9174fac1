package mdposter

import "errors"

// Sentinel errors for library operations.
var (
	ErrEmptyContent    = errors.New("poster content cannot be empty")
	ErrInvalidEncoding = errors.New("poster text must be valid UTF-8")
	ErrUnauthorized    = errors.New("missing or invalid token")

	// Pool errors.
	ErrAcquisitionTimeout = errors.New("timed out acquiring browser session")
	ErrSessionCreate      = errors.New("failed to create browser session")
	ErrSessionInvalid     = errors.New("browser session failed validation")
	ErrPoolDrained        = errors.New("session pool is drained")

	// Browser errors.
	ErrBrowserConnect = errors.New("failed to connect to browser")
	ErrPageCreate     = errors.New("failed to create browser page")
	ErrPageConfigure  = errors.New("failed to configure browser page")
	ErrPageLoad       = errors.New("failed to load page")
	ErrNotReady       = errors.New("page did not become ready")
	ErrCapture        = errors.New("screenshot capture failed")

	// Target errors.
	ErrTargetNotFound    = errors.New("poster element not found")
	ErrBoundsUnavailable = errors.New("could not get poster element bounds")

	// Cache errors.
	ErrCacheIO = errors.New("cache I/O failed")

	// Configuration errors.
	ErrInvalidSurfaceURL = errors.New("invalid surface URL")
)
