package templates

import "embed"

// EmailFS holds the HTML email templates. layout.html defines the shared
// frame; every other file defines a "content" block rendered inside it.
//
//go:embed email/*.html
var EmailFS embed.FS
