package xerr

import "errors"

var (
	// 通用错误
	ErrInternalServer = errors.New("服务器内部错误")

	// 客户端请求错误
	ErrInvalidParams   = errors.New("无效的请求参数")
	ErrInvalidTier     = errors.New("非法的存储档位")
	ErrFileTooLarge    = errors.New("上传文件过大，超出限制")
	ErrFileNameInvalid = errors.New("文件名包含非法字符")

	// 认证与授权错误
	ErrUnauthorized       = errors.New("用户未授权")
	ErrTokenInvalid       = errors.New("认证 Token 无效或已过期")
	ErrInvalidCredentials = errors.New("用户名或密码不正确")
	ErrUserAlreadyExists  = errors.New("该用户名已被注册")
	ErrEmailAlreadyExists = errors.New("邮箱已被注册")

	// 权限错误
	ErrForbidden        = errors.New("禁止访问")
	ErrPermissionDenied = errors.New("您没有操作此资源的权限")

	// 资源未找到错误
	ErrUserNotFound     = errors.New("用户不存在")
	ErrFileNotFound     = errors.New("文件不存在")
	ErrResourceNotFound = errors.New("资源不存在")
	ErrTemplateNotFound = errors.New("资源模板不存在")

	// 业务逻辑冲突
	ErrDeploymentInProgress  = errors.New("资源正在部署中")
	ErrResourceStatusInvalid = errors.New("资源当前状态不允许该操作")
	ErrQuotaExceeded         = errors.New("存储配额不足")

	// 数据库与外部服务错误
	ErrDatabaseError = errors.New("数据库操作失败")
	ErrStorageError  = errors.New("存储服务操作失败")
	ErrUpstream      = errors.New("外部服务调用失败")
)
