// Package httpmiddleware holds the HTTP middleware chain shared by the API
// server. Everything here is a plain func(http.Handler) http.Handler, so it
// plugs into chi's Use.
package httpmiddleware

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Middleware wraps a handler.
type Middleware = func(http.Handler) http.Handler

// Wrap applies middlewares so the first one is outermost.
func Wrap(h http.Handler, middlewares ...Middleware) http.Handler {
	for i := len(middlewares) - 1; i >= 0; i-- {
		h = middlewares[i](h)
	}
	return h
}

// RoutePattern returns the chi route pattern matched for r, such as
// "/api/orders/{orderID}". It is complete only after the router ran, and
// empty when no route matched.
func RoutePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		return rctx.RoutePattern()
	}
	return ""
}
