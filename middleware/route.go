package middleware

import (
	midsec "PMarket/middleware/security"

	"github.com/gin-gonic/gin"
)

// RouteOpt selects the per-route middleware.
type RouteOpt struct {
	IsAuth   bool
	Security *midsec.Options
}

func (o RouteOpt) chain(handler gin.HandlerFunc) []gin.HandlerFunc {
	if o.IsAuth {
		return []gin.HandlerFunc{midsec.Middleware(o.Security), handler}
	}
	return []gin.HandlerFunc{handler}
}

func POST(r gin.IRoutes, path string, handler gin.HandlerFunc, opt RouteOpt) {
	r.POST(path, opt.chain(handler)...)
}

func GET(r gin.IRoutes, path string, handler gin.HandlerFunc, opt RouteOpt) {
	r.GET(path, opt.chain(handler)...)
}

func PATCH(r gin.IRoutes, path string, handler gin.HandlerFunc, opt RouteOpt) {
	r.PATCH(path, opt.chain(handler)...)
}

func DELETE(r gin.IRoutes, path string, handler gin.HandlerFunc, opt RouteOpt) {
	r.DELETE(path, opt.chain(handler)...)
}
