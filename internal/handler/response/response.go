package response

import (
	"errors"
	"net/http"

	"deposit-reconciler/pkg/errno"

	"github.com/gin-gonic/gin"
)

// Response defines the standard JSON structure
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"msg"`
	Data    interface{} `json:"data"`
}

// Success returns a success response with data
func Success(c *gin.Context, data interface{}) {
	if data == nil {
		data = gin.H{}
	}
	c.JSON(http.StatusOK, Response{
		Code:    errno.OK.Code,
		Message: errno.OK.Message,
		Data:    data,
	})
}

// Error 业务错误码放在 body，参数错误返回 400，其余 500
func Error(c *gin.Context, err error) {
	code, msg := errno.Decode(err)
	c.JSON(httpStatus(err), Response{
		Code:    code,
		Message: msg,
		Data:    gin.H{},
	})
}

func httpStatus(err error) int {
	if errors.Is(err, errno.ErrBind) {
		return http.StatusBadRequest
	}
	if errors.Is(err, errno.ErrUnknownNetwork) {
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}
