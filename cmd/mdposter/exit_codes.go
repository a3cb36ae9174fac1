package main

import (
	"errors"
	"os"

	mdposter "github.com/alnah/go-mdposter"
	"github.com/alnah/go-mdposter/internal/assets"
	"github.com/alnah/go-mdposter/internal/config"
)

// Exit codes for the mdposter CLI.
// Follows Unix conventions: 0=success, 1=general, 2=usage, and custom codes < 126.
const (
	ExitSuccess = 0 // Clean shutdown or successful render
	ExitGeneral = 1 // General/unexpected error
	ExitUsage   = 2 // Invalid flags, config, or validation
	ExitIO      = 3 // File, cache or listener errors
	ExitBrowser = 4 // Browser/Chrome errors
)

// exitCodeFor returns the appropriate exit code for an error.
// It uses errors.Is to check wrapped errors, so callers must use fmt.Errorf("%w", err).
func exitCodeFor(err error) int {
	if err == nil {
		return ExitSuccess
	}

	// Browser errors (exit 4)
	if errors.Is(err, mdposter.ErrBrowserConnect) ||
		errors.Is(err, mdposter.ErrSessionCreate) ||
		errors.Is(err, mdposter.ErrAcquisitionTimeout) ||
		errors.Is(err, mdposter.ErrPageCreate) ||
		errors.Is(err, mdposter.ErrPageConfigure) ||
		errors.Is(err, mdposter.ErrPageLoad) ||
		errors.Is(err, mdposter.ErrNotReady) ||
		errors.Is(err, mdposter.ErrTargetNotFound) ||
		errors.Is(err, mdposter.ErrBoundsUnavailable) ||
		errors.Is(err, mdposter.ErrCapture) {
		return ExitBrowser
	}

	// I/O errors (exit 3)
	if errors.Is(err, os.ErrNotExist) ||
		errors.Is(err, os.ErrPermission) ||
		errors.Is(err, mdposter.ErrCacheIO) ||
		errors.Is(err, ErrReadInput) ||
		errors.Is(err, ErrWriteOutput) ||
		errors.Is(err, ErrListen) {
		return ExitIO
	}

	// Usage/config/validation errors (exit 2)
	if errors.Is(err, config.ErrConfigNotFound) ||
		errors.Is(err, config.ErrEmptyConfigName) ||
		errors.Is(err, config.ErrConfigParse) ||
		errors.Is(err, config.ErrFieldTooLong) ||
		errors.Is(err, config.ErrMissingToken) ||
		errors.Is(err, config.ErrInvalidValue) ||
		errors.Is(err, mdposter.ErrEmptyContent) ||
		errors.Is(err, mdposter.ErrInvalidEncoding) ||
		errors.Is(err, mdposter.ErrInvalidSurfaceURL) ||
		errors.Is(err, assets.ErrInvalidBasePath) ||
		errors.Is(err, ErrUsage) {
		return ExitUsage
	}

	return ExitGeneral
}
