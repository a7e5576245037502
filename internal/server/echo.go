package server

import (
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// MountEcho serves the router's endpoints from an existing echo instance.
func MountEcho(e *echo.Echo, r *Router) {
	h := echo.WrapHandler(r.Handler())
	base := r.BasePath()
	if base == "" {
		e.Any("/*", h)
		return
	}
	e.Any(base, h)
	e.Any(base+"/*", h)
	if r.metrics != nil {
		e.GET("/metrics", h)
	}
}

// NewEcho returns an echo instance with the router mounted, for deployments
// that configure server.engine = "echo".
func NewEcho(r *Router) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	MountEcho(e, r)
	return e
}
