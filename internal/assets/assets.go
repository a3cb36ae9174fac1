// Package assets provides poster themes and the poster page template.
// Assets can be loaded from embedded files or a custom directory.
package assets

// DefaultThemeName is the theme used when a request names none, or names
// one that does not exist.
const DefaultThemeName = "SpringGradientWave"

// DefaultTemplateName is the name of the built-in poster page template.
const DefaultTemplateName = "poster"

// defaultLoader is the package-level embedded loader.
var defaultLoader = NewEmbeddedLoader()

// LoadTheme loads a theme by name using the default embedded loader.
func LoadTheme(name string) (string, error) {
	return defaultLoader.LoadTheme(name)
}

// LoadTemplate loads a template by name using the default embedded loader.
func LoadTemplate(name string) (string, error) {
	return defaultLoader.LoadTemplate(name)
}

// ThemeNames lists the built-in themes.
func ThemeNames() []string {
	return defaultLoader.ThemeNames()
}
