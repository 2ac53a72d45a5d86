package server

import (
	"html/template"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/soulnet-app/soulnet/internal/guard"
	"github.com/soulnet-app/soulnet/internal/i18n"
	"github.com/soulnet-app/soulnet/internal/router"
)

// pagesPrefix is where the page shell is mounted.
const pagesPrefix = "/app"

const shellTemplate = `<!doctype html>
<html lang="{{.Lang}}"><head><meta charset="utf-8"><title>{{.Title}} · {{.Brand}}</title></head>
<body data-route="{{.Route}}" data-path="{{.Path}}" data-authenticated="{{.Authenticated}}" data-admin="{{.Admin}}">
<header>{{.Brand}}</header>
<main><h1>{{.Title}}</h1></main>
</body></html>`

func sessionViewer(c *gin.Context) guard.Viewer {
	sessionData, ok := GetSessionData(c)
	if !ok {
		return guard.Viewer{}
	}
	return guard.Viewer{Authenticated: true, Admin: sessionData.IsAdmin()}
}

// setupPages mounts one guarded page-shell route per route table entry. The
// catch-all becomes the not-found handler for everything under the prefix.
func (s *Server) setupPages() {
	s.router.SetHTMLTemplate(template.Must(template.New("shell").Parse(shellTemplate)))

	for _, spec := range router.Table() {
		if spec.Pattern == router.NotFound {
			continue
		}

		handlers := []gin.HandlerFunc{
			OptionalAuthMiddleware(s.db, s.logger),
			guard.Middleware(guard.MiddlewareOptions{
				Requirement: spec.Requirement,
				Viewer:      sessionViewer,
				Prefix:      pagesPrefix,
				Logger:      s.logger,
			}),
			s.renderShell(spec, http.StatusOK),
		}

		if spec.Pattern == router.Home {
			s.router.GET(pagesPrefix, handlers...)
			s.router.GET(pagesPrefix+"/", handlers...)
			continue
		}
		s.router.GET(pagesPrefix+spec.Pattern, handlers...)
	}

	notFound, _ := router.Match("/" + router.NotFound)
	s.router.NoRoute(func(c *gin.Context) {
		if strings.HasPrefix(c.Request.URL.Path, pagesPrefix+"/") {
			s.renderShell(notFound, http.StatusNotFound)(c)
			return
		}
		errorJSON(c, http.StatusNotFound, codeNotFound, "Not found")
	})
}

func (s *Server) renderShell(spec router.Spec, status int) gin.HandlerFunc {
	return func(c *gin.Context) {
		tr := i18n.New(c.GetHeader("Accept-Language"))
		viewer := sessionViewer(c)
		c.HTML(status, "shell", gin.H{
			"Lang":          tr.Lang(),
			"Brand":         tr.T("header.brand"),
			"Title":         tr.T(spec.Title),
			"Route":         spec.Pattern,
			"Path":          strings.TrimPrefix(c.Request.URL.Path, pagesPrefix),
			"Authenticated": viewer.Authenticated,
			"Admin":         viewer.Admin,
		})
	}
}
