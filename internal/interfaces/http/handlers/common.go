package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/BOMMesh/pkg/errors"
)

// ErrorResponse is the standard error response body.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}

// respondError maps err to its HTTP status. 5xx details are masked except
// for unavailable dependencies.
func respondError(c *gin.Context, err error) {
	_ = c.Error(err)
	status := errors.HTTPStatus(err)

	var ae *errors.AppError
	if !errors.As(err, &ae) || status == http.StatusInternalServerError {
		c.AbortWithStatusJSON(http.StatusInternalServerError, ErrorResponse{
			Code:    string(errors.ErrCodeInternal),
			Message: "internal server error",
		})
		return
	}
	c.AbortWithStatusJSON(status, ErrorResponse{
		Code:    string(ae.Code),
		Message: ae.Message,
		Detail:  ae.Detail,
	})
}

// queryLimit parses ?limit=; absent means 0 (service default).
func queryLimit(c *gin.Context) (int, error) {
	v := c.Query("limit")
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, errors.InvalidParam("limit must be a non-negative integer")
	}
	return n, nil
}
