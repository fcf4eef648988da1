// Package views embeds the HTML templates served by the auth controllers.
package views

import (
	"embed"
	"io/fs"
	"net/http"

	"github.com/gofiber/template/django/v3"
)

//go:embed templates
var templatesFS embed.FS

// FS returns the template tree rooted at templates/
func FS() fs.FS {
	sub, err := fs.Sub(templatesFS, "templates")
	if err != nil {
		panic(err)
	}
	return sub
}

// New returns a django engine over the embedded templates. Reload re-parses
// templates on every render.
func New(reload bool) *django.Engine {
	engine := django.NewFileSystem(http.FS(FS()), ".html")
	engine.Reload(reload)
	return engine
}
