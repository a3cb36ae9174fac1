package assets

import "errors"

var (
	ErrThemeNotFound    = errors.New("poster theme not found")
	ErrTemplateNotFound = errors.New("poster template not found")

	// ErrInvalidAssetName rejects names carrying separators, dots or traversal.
	ErrInvalidAssetName = errors.New("invalid asset name")

	// ErrInvalidBasePath reports a surface assets directory that cannot be used.
	ErrInvalidBasePath = errors.New("invalid surface assets directory")
	ErrAssetRead       = errors.New("failed to read surface asset")

	// ErrPathTraversal reports a resolved path outside the assets directory.
	ErrPathTraversal = errors.New("asset path escapes assets directory")
)
