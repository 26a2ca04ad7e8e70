package rest

import (
	"errors"

	"github.com/fateforge/server/apperr"
	"github.com/gin-gonic/gin"
)

// respondErr renders an engine error with its mapped HTTP status.
func respondErr(c *gin.Context, err error) {
	body := gin.H{"error": err.Error()}
	var e *apperr.Error
	if errors.As(err, &e) {
		body = gin.H{"error": e.Msg, "kind": string(e.Kind)}
		if e.Field != "" {
			body["field"] = e.Field
		}
	}
	c.JSON(apperr.HTTPStatus(err), body)
}
