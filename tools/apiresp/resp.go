package apiresp

import (
	"net/http"

	"PMarket/logger"
	"PMarket/tools/errs"
	"PMarket/tools/specialerror"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// OK writes data with 200.
func OK(c *gin.Context, data any) {
	c.JSON(http.StatusOK, data)
}

// Fail aborts with the CodeError carried by err; unknown errors become INTERNAL and are logged.
func Fail(c *gin.Context, err error) {
	ce := specialerror.AsCode(err)
	status := errs.HTTPStatus(ce.Code)
	if status >= http.StatusInternalServerError {
		logger.Named("http").Error("request failed",
			zap.String("path", c.FullPath()), zap.Int("code", ce.Code), zap.Error(err))
		if ce.Code == errs.ServerInternalError {
			ce.Detail = ""
		}
	}
	c.AbortWithStatusJSON(status, ce)
}
