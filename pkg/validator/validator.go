package validator

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

// Init 给 gin 的 binding 校验器注册 network 标签，networks 为允许的网络名
func Init(networks ...string) {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return
	}
	allowed := make(map[string]struct{}, len(networks))
	for _, n := range networks {
		allowed[n] = struct{}{}
	}
	_ = v.RegisterValidation("network", func(fl validator.FieldLevel) bool {
		_, ok := allowed[fl.Field().String()]
		return ok
	})
}

// GetErrorMsg translates validation errors into user-friendly messages
func GetErrorMsg(err error) string {
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return "请求参数错误"
	}
	msgs := make([]string, 0, len(validationErrors))
	for _, e := range validationErrors {
		field, param := e.Field(), e.Param()
		switch e.Tag() {
		case "required":
			msgs = append(msgs, fmt.Sprintf("%s 不能为空", field))
		case "min":
			msgs = append(msgs, fmt.Sprintf("%s 不能小于 %s", field, param))
		case "max":
			msgs = append(msgs, fmt.Sprintf("%s 不能超过 %s", field, param))
		case "network":
			msgs = append(msgs, fmt.Sprintf("%s 不是支持的网络", field))
		default:
			msgs = append(msgs, fmt.Sprintf("%s 校验失败 (%s)", field, e.Tag()))
		}
	}
	return strings.Join(msgs, "; ")
}
