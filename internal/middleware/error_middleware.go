package middleware

import (
	"casebridge/internal/transport/httpdto"
	casebridge_errors "casebridge/pkg/errors"
	"casebridge/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ErrorHandler renders the last error attached with c.Error when the handler wrote nothing.
// Internal errors are logged and hidden from the client.
func ErrorHandler(l *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}

		err := c.Errors.Last().Err
		status := casebridge_errors.HTTPStatus(err)
		code := casebridge_errors.Code(err)
		msg := err.Error()
		if code == "INTERNAL_ERROR" {
			if l != nil {
				l.FromContext(c.Request.Context()).Error("request failed",
					zap.String("path", c.Request.URL.Path),
					zap.Error(err),
				)
			}
			msg = "internal error"
		}
		c.JSON(status, httpdto.NewErrorResponse(msg, code))
	}
}
