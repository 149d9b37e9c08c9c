// Package templates embeds the HTML layouts, partials and pages.
package templates

import "embed"

//go:embed layouts/*.tmpl partials/*.tmpl pages/*.tmpl
var FS embed.FS
