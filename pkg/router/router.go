package router

import (
	"net/http"
	"strings"
	"sync/atomic"

	"github.com/gin-gonic/gin"
)

// Middleware runs around every handler mounted after it is added.
type Middleware = gin.HandlerFunc

// Options configures the control router. BasePath prefixes every control
// endpoint and defaults to "/checkin".
//
// Mount the router next to other handlers and switch the control surface
// off without stopping the listener:
//
//	cr := router.New(router.Options{BasePath: "/checkin"})
//	cr.Handle(http.MethodGet, "/healthz", health)
//	mux := http.NewServeMux()
//	mux.Handle("/checkin/", cr)
//	...
//	cr.Close() // every /checkin request now 404s
type Options struct {
	BasePath string
}

// Router serves gin handlers under one prefix and can be switched off.
type Router struct {
	base   string
	engine *gin.Engine
	group  *gin.RouterGroup
	open   atomic.Bool
}

// New returns an open Router with gin's panic recovery installed.
func New(opt Options) *Router {
	bp := sanitizePath(strings.TrimSpace(opt.BasePath))
	if bp == "" {
		bp = "/checkin"
	}
	engine := gin.New()
	engine.Use(gin.Recovery())
	r := &Router{base: bp, engine: engine, group: engine.Group(bp)}
	r.open.Store(true)
	return r
}

// BasePath returns the configured prefix.
func (r *Router) BasePath() string { return r.base }

func (r *Router) Open() { r.open.Store(true) }

// Close makes every request answer 404 until Open is called.
func (r *Router) Close() { r.open.Store(false) }

func (r *Router) IsOpen() bool { return r.open.Load() }

// Use adds middleware to handlers mounted after this call.
func (r *Router) Use(mw ...Middleware) {
	if len(mw) == 0 {
		return
	}
	r.group.Use(mw...)
}

// Handle registers gin handlers for method at BasePath+subPath.
func (r *Router) Handle(method, subPath string, h ...gin.HandlerFunc) {
	r.group.Handle(method, sanitizePath(subPath), h...)
}

// MountHandler mounts a plain http.Handler for method at BasePath+subPath.
func (r *Router) MountHandler(method, subPath string, h http.Handler) {
	r.Handle(method, subPath, gin.WrapH(h))
}

// ServeHTTP answers 404 for paths outside BasePath and while closed.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	if !strings.HasPrefix(req.URL.Path, r.base) || !r.open.Load() {
		http.NotFound(w, req)
		return
	}
	r.engine.ServeHTTP(w, req)
}

// sanitizePath adds a leading slash and drops a trailing one.
func sanitizePath(p string) string {
	if p == "" {
		return ""
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if len(p) > 1 && strings.HasSuffix(p, "/") {
		p = strings.TrimSuffix(p, "/")
	}
	return p
}
