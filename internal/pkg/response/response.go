package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/xxxsen/common/webapi/proxyutil"
)

// apiError carries the numeric code proxyutil puts in the envelope.
type apiError struct {
	code uint32
	msg  string
}

func (e apiError) Error() string { return e.msg }

func (e apiError) Code() uint32 { return e.code }

func Success(c *gin.Context, data interface{}) {
	proxyutil.SuccessJson(c, data)
}

// Error always answers HTTP 200; the envelope code is the failure signal.
func Error(c *gin.Context, code int, message string) {
	proxyutil.FailJson(c, http.StatusOK, apiError{code: uint32(code), msg: message})
}
