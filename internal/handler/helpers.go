package handler

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/plantdeck/plantdeck/internal/pkg/errcode"
	"github.com/plantdeck/plantdeck/internal/pkg/errs"
	"github.com/plantdeck/plantdeck/internal/pkg/response"
)

func handleError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	logutil.GetLogger(c.Request.Context()).Error("request failed",
		zap.String("method", c.Request.Method),
		zap.String("path", c.Request.URL.Path),
		zap.Error(err))
	switch {
	case errors.Is(err, errs.ErrInvalid):
		response.Error(c, errcode.ErrInvalid, "invalid request")
	case errors.Is(err, errs.ErrNotFound):
		response.Error(c, errcode.ErrNotFound, "not found")
	case errors.Is(err, errs.ErrIndexUnavailable):
		response.Error(c, errcode.ErrIndexUnavailable, "index unavailable, run the index build first")
	case errors.Is(err, errs.ErrVersionMismatch):
		response.Error(c, errcode.ErrVersionMismatch, "index was built with a different embedding model, rebuild it")
	case errors.Is(err, errs.ErrUnavailable):
		response.Error(c, errcode.ErrAIUnavailable, "model backend unavailable")
	default:
		response.Error(c, errcode.ErrInternal, "internal error")
	}
}
