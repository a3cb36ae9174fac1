package assets

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// FilesystemLoader reads poster assets from a directory laid out as
// themes/<name>.css and templates/<name>.html.
type FilesystemLoader struct {
	basePath string
}

// NewFilesystemLoader opens dir, resolving symlinks so containment checks
// compare real paths. It fails with ErrInvalidBasePath unless dir is a
// readable directory.
func NewFilesystemLoader(dir string) (*FilesystemLoader, error) {
	if dir == "" {
		return nil, fmt.Errorf("%w: empty path", ErrInvalidBasePath)
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidBasePath, err)
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		abs = resolved
	}

	switch info, err := os.Stat(abs); {
	case errors.Is(err, fs.ErrNotExist):
		return nil, fmt.Errorf("%w: %s does not exist", ErrInvalidBasePath, abs)
	case err != nil:
		return nil, fmt.Errorf("%w: %v", ErrInvalidBasePath, err)
	case !info.IsDir():
		return nil, fmt.Errorf("%w: %s is not a directory", ErrInvalidBasePath, abs)
	}
	if _, err := os.ReadDir(abs); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidBasePath, err)
	}
	return &FilesystemLoader{basePath: abs}, nil
}

// LoadTheme loads a theme stylesheet from the filesystem.
// Looks for {basePath}/themes/{name}.css
func (f *FilesystemLoader) LoadTheme(name string) (string, error) {
	if err := ValidateAssetName(name); err != nil {
		return "", err
	}
	return f.read(filepath.Join(f.basePath, "themes", name+".css"), ErrThemeNotFound, name)
}

// LoadTemplate loads an HTML template from the filesystem.
// Looks for {basePath}/templates/{name}.html
func (f *FilesystemLoader) LoadTemplate(name string) (string, error) {
	if err := ValidateAssetName(name); err != nil {
		return "", err
	}
	return f.read(filepath.Join(f.basePath, "templates", name+".html"), ErrTemplateNotFound, name)
}

// read loads path after the containment check, mapping a missing file
// to notFound.
func (f *FilesystemLoader) read(path string, notFound error, name string) (string, error) {
	if err := f.contain(path); err != nil {
		return "", err
	}
	data, err := os.ReadFile(path) // #nosec G304 -- contained in basePath
	if errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("%w: %q", notFound, name)
	}
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrAssetRead, err)
	}
	return string(data), nil
}

// contain rejects paths that resolve outside basePath, symlinks included.
// A path that does not exist yet is checked as written.
func (f *FilesystemLoader) contain(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPathTraversal, err)
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		abs = resolved
	}
	rel, err := filepath.Rel(f.basePath, abs)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(rel) {
		return fmt.Errorf("%w: %s", ErrPathTraversal, path)
	}
	return nil
}

// Compile-time interface check.
var _ AssetLoader = (*FilesystemLoader)(nil)

// ThemeNames lists {basePath}/themes/*.css with valid names, sorted.
// A missing themes directory yields no names.
func (f *FilesystemLoader) ThemeNames() ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(f.basePath, "themes"))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: listing themes: %v", ErrAssetRead, err)
	}
	return cssNames(entries), nil
}

// cssNames returns the base names of regular .css entries that pass
// ValidateAssetName, sorted.
func cssNames(entries []fs.DirEntry) []string {
	var names []string
	for _, e := range entries {
		if !e.Type().IsRegular() || filepath.Ext(e.Name()) != ".css" {
			continue
		}
		name := strings.TrimSuffix(e.Name(), ".css")
		if ValidateAssetName(name) == nil {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}
