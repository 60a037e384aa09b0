package api

import (
	"io/fs"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/artisanhq/atelier/internal/middleware"
	"github.com/artisanhq/atelier/web"
)

// spaFallback serves the embedded frontend for any route the API does not
// claim. Unknown paths fall back to index.html so client-side routing works
// on hard reloads; API and metrics paths keep their JSON 404.
func spaFallback() (gin.HandlerFunc, error) {
	dist, err := web.DistFS()
	if err != nil {
		return nil, err
	}
	fileServer := http.FileServer(http.FS(dist))

	return func(c *gin.Context) {
		path := c.Request.URL.Path
		if strings.HasPrefix(path, "/api/") || path == "/metrics" {
			middleware.NotFoundHandler(c)
			return
		}
		if path != "/" {
			if _, err := fs.Stat(dist, strings.TrimPrefix(path, "/")); err != nil {
				// Let the SPA router handle it.
				c.Request.URL.Path = "/"
			}
		}
		fileServer.ServeHTTP(c.Writer, c.Request)
	}, nil
}
