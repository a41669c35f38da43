// Package web embeds the chat page served at the root route.
package web

import (
	"embed"
	"html/template"
)

//go:embed static
var staticFS embed.FS

// ChatPage returns the chat page template. It expects a ThreadID value and
// drives the SSE /chat endpoint from the browser.
func ChatPage() *template.Template {
	return template.Must(template.ParseFS(staticFS, "static/index.html"))
}

// StaticFS exposes the embedded assets for the /static file route.
var StaticFS embed.FS = staticFS
