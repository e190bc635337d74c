package handlers

import (
	"net/http"

	"github.com/3Eeeecho/go-stackdash/internal/pkg/logger"
	"github.com/3Eeeecho/go-stackdash/internal/pkg/xerr"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// respondError 把服务层错误翻译成统一的 JSON 响应，5xx 记录日志
func respondError(c *gin.Context, op string, err error) {
	status, code, known := xerr.Resolve(err)
	if status >= http.StatusInternalServerError {
		logger.Error(op+" failed", zap.String("path", c.FullPath()), zap.Error(err))
	}
	if !known {
		xerr.AbortWithError(c, status, code, xerr.ErrInternalServer.Error())
		return
	}
	xerr.AbortWithError(c, status, code, err.Error())
}
