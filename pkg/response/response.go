package response

import (
	"ScheduledRecorder/pkg/errors"
	"ScheduledRecorder/pkg/i18n"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Body 统一响应体
type Body struct {
	Code int         `json:"code"`
	Msg  string      `json:"msg"`
	Data interface{} `json:"data,omitempty"`
}

func Success(c *gin.Context, msg string, data interface{}) {
	c.JSON(http.StatusOK, Body{Code: 0, Msg: msg, Data: data})
}

func Created(c *gin.Context, msg string, data interface{}) {
	c.JSON(http.StatusCreated, Body{Code: 0, Msg: msg, Data: data})
}

// Fail 参数类错误，HTTP 400
func Fail(c *gin.Context, msg string, data interface{}) {
	c.AbortWithStatusJSON(http.StatusBadRequest, Body{Code: -1, Msg: msg, Data: data})
}

var translator *i18n.Translator

// UseTranslator 设置后，带 Accept-Language 的请求得到本地化的错误提示
func UseTranslator(t *i18n.Translator) { translator = t }

// Error 把带错误码的 error 映射为 HTTP 状态
func Error(c *gin.Context, err error) {
	code := errors.GetCode(err)
	msg := err.Error()
	if translator != nil && c.Request != nil {
		if lang := c.GetHeader("Accept-Language"); lang != "" {
			if m, ok := translator.ErrorMessage(lang, code); ok {
				msg = m
			}
		}
	}
	c.AbortWithStatusJSON(StatusFor(code), Body{Code: code, Msg: msg})
}

func StatusFor(code int) int {
	switch code {
	case errors.CodeNotFound:
		return http.StatusNotFound
	case errors.CodeAlreadyScheduled, errors.CodeAlreadyRecording, errors.CodeNotRecording, errors.CodeFileConflict:
		return http.StatusConflict
	case errors.CodeTimeInPast, errors.CodeStartAfterEnd:
		return http.StatusUnprocessableEntity
	case errors.CodeServiceClosed:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}
