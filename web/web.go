// Package web embeds the HTML templates and static assets so the server
// binary has no runtime dependency on the working directory.
package web

import "embed"

// FS holds templates/*.html and static/*.
//
//go:embed templates static
var FS embed.FS
