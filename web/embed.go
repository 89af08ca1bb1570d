// Package web holds the embedded HTML templates for the browser-facing
// pages. Templates are parsed once at init; a missing or broken template
// is a programmer error and panics at startup.
package web

import (
	"embed"
	"html/template"
	"io"
)

//go:embed templates/*.html
var templateFS embed.FS

var templates = template.Must(template.ParseFS(templateFS, "templates/*.html"))

// Render executes the named template into w.
func Render(w io.Writer, name string, data any) error {
	return templates.ExecuteTemplate(w, name, data)
}
