package httpx

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// Response represents the standard API response structure
type Response struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data"`
}

// OK sends a successful response with default message "success"
func OK(c *gin.Context, data any) {
	c.JSON(http.StatusOK, Response{
		Code:    CodeSuccess,
		Message: "success",
		Data:    data,
	})
}

// Accepted acknowledges work that continues in the background
func Accepted(c *gin.Context, message string, data any) {
	c.JSON(http.StatusAccepted, Response{
		Code:    CodeSuccess,
		Message: message,
		Data:    data,
	})
}

// FailErr sends an error response from an AppError.
// AppError.Err is logged but not returned to the client.
func FailErr(c *gin.Context, err *AppError) {
	if err.Err != nil {
		logrus.WithFields(logrus.Fields{
			"code": err.Code,
			"path": c.FullPath(),
		}).Errorf("%s: %v", err.Message, err.Err)
	}

	c.JSON(err.HTTPStatus, Response{
		Code:    err.Code,
		Message: err.Message,
		Data:    err.Data,
	})
}
