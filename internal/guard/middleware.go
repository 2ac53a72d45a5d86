package guard

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

const decisionKey = "guard_decision"

// ViewerFunc resolves the viewer for an incoming request.
type ViewerFunc func(c *gin.Context) Viewer

// MiddlewareOptions configures Middleware.
type MiddlewareOptions struct {
	Requirement Requirement
	Viewer      ViewerFunc
	// Prefix is the mount point of the guarded pages, e.g. "/app". Redirects
	// are issued under it and stripped from the remembered path.
	Prefix string
	Logger zerolog.Logger
}

// Middleware applies Decide to page requests. Pending answers 202 with a
// loading placeholder; denials redirect with 302.
func Middleware(opts MiddlewareOptions) gin.HandlerFunc {
	prefix := strings.TrimRight(opts.Prefix, "/")

	return func(c *gin.Context) {
		requested := strings.TrimPrefix(c.Request.URL.Path, prefix)
		if requested == "" {
			requested = "/"
		}
		if q := c.Request.URL.RawQuery; q != "" {
			requested += "?" + q
		}

		d := Decide(opts.Viewer(c), opts.Requirement, requested)
		c.Set(decisionKey, d)

		switch d.Outcome {
		case Pending:
			c.JSON(http.StatusAccepted, gin.H{"status": "loading"})
			c.Abort()
		case DeniedUnauthenticated:
			target := prefix + d.RedirectTo + "?from=" + url.QueryEscape(d.From)
			opts.Logger.Debug().Str("path", requested).Msg("Redirecting unauthenticated viewer to sign in")
			c.Redirect(http.StatusFound, target)
			c.Abort()
		case DeniedNotAdmin:
			opts.Logger.Debug().Str("path", requested).Msg("Redirecting non-admin viewer home")
			c.Redirect(http.StatusFound, prefix+d.RedirectTo)
			c.Abort()
		default:
			c.Next()
		}
	}
}

// DecisionFrom returns the decision Middleware stored on the request.
func DecisionFrom(c *gin.Context) (Decision, bool) {
	v, ok := c.Get(decisionKey)
	if !ok {
		return Decision{}, false
	}
	d, ok := v.(Decision)
	return d, ok
}
