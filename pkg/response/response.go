package response

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/aura-reels/backend/pkg/apperr"
)

// ErrorBody is the JSON body of every failed request.
type ErrorBody struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

// OK sends a 200 JSON response with data.
func OK(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, data)
}

// BadRequest sends 400 with error message.
func BadRequest(c *gin.Context, err string) {
	c.JSON(http.StatusBadRequest, ErrorBody{Error: err, Detail: err})
}

// ServiceUnavailable sends 503.
func ServiceUnavailable(c *gin.Context, err string) {
	c.JSON(http.StatusServiceUnavailable, ErrorBody{Error: err, Detail: err})
}

// Internal sends 500.
func Internal(c *gin.Context, err string) {
	c.JSON(http.StatusInternalServerError, ErrorBody{Error: err, Detail: err})
}

// Error picks the status from the error's apperr marker.
func Error(c *gin.Context, err error) {
	c.JSON(apperr.HTTPStatus(err), ErrorBody{Error: err.Error(), Detail: err.Error()})
}
