package xerr

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Response 是通用 JSON 响应结构
type Response struct {
	Code    int    `json:"code"`    // 业务状态码
	Message string `json:"message"` // 消息
	Data    any    `json:"data"`    // 响应数据，没有时为 null
}

type binding struct {
	target     error
	httpStatus int
	code       int
}

// 按顺序匹配，先业务错误，后基础设施错误
var bindings = []binding{
	{ErrInvalidParams, http.StatusBadRequest, InvalidParamsCode},
	{ErrInvalidTier, http.StatusBadRequest, InvalidTierCode},
	{ErrFileNameInvalid, http.StatusBadRequest, FileNameInvalidCode},
	{ErrFileTooLarge, http.StatusBadRequest, FileTooLargeCode},
	{ErrInvalidCredentials, http.StatusUnauthorized, InvalidCredentialsCode},
	{ErrTokenInvalid, http.StatusUnauthorized, TokenInvalidCode},
	{ErrUnauthorized, http.StatusUnauthorized, UnauthorizedCode},
	{ErrPermissionDenied, http.StatusForbidden, PermissionDeniedCode},
	{ErrForbidden, http.StatusForbidden, ForbiddenCode},
	{ErrUserNotFound, http.StatusNotFound, UserNotFoundCode},
	{ErrFileNotFound, http.StatusNotFound, FileNotFoundCode},
	{ErrResourceNotFound, http.StatusNotFound, ResourceNotFoundCode},
	{ErrTemplateNotFound, http.StatusNotFound, TemplateNotFoundCode},
	{ErrUserAlreadyExists, http.StatusConflict, UserAlreadyExistsCode},
	{ErrEmailAlreadyExists, http.StatusConflict, EmailAlreadyExistsCode},
	{ErrDeploymentInProgress, http.StatusConflict, DeploymentInProgressCode},
	{ErrResourceStatusInvalid, http.StatusConflict, ResourceStatusInvalidCode},
	{ErrQuotaExceeded, http.StatusInsufficientStorage, QuotaExceededCode},
	{ErrUpstream, http.StatusBadGateway, UpstreamErrorCode},
	{ErrStorageError, http.StatusInternalServerError, StorageErrorCode},
	{ErrDatabaseError, http.StatusInternalServerError, DatabaseErrorCode},
}

// Resolve 根据错误链找到对应的 HTTP 状态码和业务码
// 未登记的错误返回 ok=false，调用方应按 500 处理并隐藏细节
func Resolve(err error) (httpStatus, code int, ok bool) {
	for _, b := range bindings {
		if errors.Is(err, b.target) {
			return b.httpStatus, b.code, true
		}
	}
	return http.StatusInternalServerError, InternalServerErrorCode, false
}

// JSONResponse 发送标准 JSON 响应
func JSONResponse(c *gin.Context, httpStatus int, code int, message string, data any) {
	c.JSON(httpStatus, Response{
		Code:    code,
		Message: message,
		Data:    data,
	})
}

// Success 成功响应
func Success(c *gin.Context, httpStatus int, message string, data any) {
	JSONResponse(c, httpStatus, SuccessCode, message, data)
}

// Error 错误响应
func Error(c *gin.Context, httpStatus int, code int, message string) {
	JSONResponse(c, httpStatus, code, message, nil)
}

// AbortWithError 终止请求并发送错误响应
func AbortWithError(c *gin.Context, httpStatus int, code int, message string) {
	Error(c, httpStatus, code, message)
	c.Abort() // 终止后续的 HandlerFunc
}
