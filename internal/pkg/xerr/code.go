package xerr

// 定义了统一的业务错误码
const (
	SuccessCode = 20000 // 通用成功码

	// --- 客户端请求错误系列 (400xx) ---
	InvalidParamsCode   = 40000 // 无效的请求参数
	InvalidTierCode     = 40001 // 非法的存储档位
	FileTooLargeCode    = 40003 // 文件过大
	FileNameInvalidCode = 40004 // 文件名无效

	// --- 认证与授权错误系列 (401xx) ---
	UnauthorizedCode       = 40100 // 通用未授权
	TokenInvalidCode       = 40101 // Token 无效或过期
	InvalidCredentialsCode = 40102 // 用户名或密码错误

	// --- 权限错误系列 (403xx) ---
	ForbiddenCode        = 40300 // 通用无权限
	PermissionDeniedCode = 40301 // 权限不足 (细分)

	// --- 资源未找到错误系列 (404xx) ---
	NotFoundCode         = 40400 // 通用资源未找到
	UserNotFoundCode     = 40401 // 用户不存在
	FileNotFoundCode     = 40402 // 文件不存在
	ResourceNotFoundCode = 40407 // 资源不存在
	TemplateNotFoundCode = 40408 // 资源模板不存在

	// --- 业务逻辑冲突系列 (409xx) ---
	UserAlreadyExistsCode     = 40900 // 用户名已存在
	EmailAlreadyExistsCode    = 40901 // 邮箱已存在
	DeploymentInProgressCode  = 40905 // 资源正在部署中
	ResourceStatusInvalidCode = 40906 // 资源状态不允许该操作

	// --- 存储配额 (507xx) ---
	QuotaExceededCode = 50700 // 存储配额不足

	// --- 服务器内部错误系列 (500xx) ---
	InternalServerErrorCode = 50000 // 服务器内部通用错误
	DatabaseErrorCode       = 50001 // 数据库操作失败
	StorageErrorCode        = 50002 // 存储服务操作失败（配额记录或对象存储）
	UpstreamErrorCode       = 50004 // 外部服务（开通 API、IPFS 集群）调用失败
)
