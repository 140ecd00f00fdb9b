// Package web embeds the HTML templates and static assets.
package web

import (
	"embed"
	"io/fs"
)

//go:embed templates/*.html static
var FS embed.FS

// Static returns the static asset tree rooted at its own directory.
func Static() (fs.FS, error) {
	return fs.Sub(FS, "static")
}
