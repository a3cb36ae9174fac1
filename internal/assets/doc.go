// Package assets provides poster themes and the poster page template.
//
// # Loader Architecture
//
// The package implements a layered loading system:
//
//	AssetLoader (interface)
//	    │
//	    ├── EmbeddedLoader    - loads from go:embed filesystem (built-in themes)
//	    ├── FilesystemLoader  - loads from a custom directory on disk
//	    └── AssetResolver     - combines both with custom-first fallback
//
// EmbeddedLoader provides the built-in themes (SpringGradientWave, Classic,
// Midnight) and the poster page template.
//
// AssetResolver is the loader used by the poster surface. It tries the
// custom FilesystemLoader first and falls back to EmbeddedLoader when the
// asset is not found there, so a deployment can add or override single
// themes while keeping the defaults.
//
// # Directory Structure
//
//	{basePath}/
//	├── themes/
//	│   └── {name}.css       # theme stylesheet (e.g., Corporate.css)
//	└── templates/
//	    └── poster.html      # poster page template
//
// # Security
//
// Asset names are validated to prevent path traversal. Theme names arrive
// in request query strings, so this matters. FilesystemLoader resolves
// symlinks and verifies paths stay within basePath.
package assets
