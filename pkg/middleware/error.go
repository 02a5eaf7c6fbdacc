package middleware

import (
	"net/http"

	"taskplane/pkg/errutil"

	"github.com/gin-gonic/gin"
)

// Error renders the last handler error using the errutil taxonomy. Unknown
// errors collapse to a generic 500 so storage details never leak to callers.
func Error() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		err := c.Errors.Last()
		if err == nil {
			return
		}

		if v, ok := err.Err.(errutil.BaseError); ok {
			c.JSON(v.Code.HTTPStatus(), v.JSON())
			return
		}

		c.JSON(http.StatusInternalServerError, gin.H{
			"error": gin.H{
				"code":    errutil.StatusInternal,
				"message": "internal error",
			},
		})
	}
}
