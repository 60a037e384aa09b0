package web

import (
	"embed"
	"io/fs"
)

// The frontend build (vite output) is embedded so a single binary can serve
// both the API and the SPA. Run the frontend build before compiling a release;
// the checked-in placeholder keeps development builds working without it.
//
//go:embed all:dist
var staticFS embed.FS

// DistFS returns the embedded frontend filesystem rooted at the build output.
func DistFS() (fs.FS, error) {
	return fs.Sub(staticFS, "dist")
}
