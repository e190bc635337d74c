package handlers

import (
	"net/http"

	"github.com/3Eeeecho/go-stackdash/internal/pkg/utils"
	"github.com/3Eeeecho/go-stackdash/internal/pkg/xerr"
	"github.com/3Eeeecho/go-stackdash/internal/services/quota"
	"github.com/gin-gonic/gin"
)

// QuotaCheckRequest additional_bytes 为 0 也是合法的检查
type QuotaCheckRequest struct {
	AdditionalBytes *int64 `json:"additional_bytes" binding:"required,min=0"`
}

type StorageHandler struct {
	quotaService quota.Service
}

func NewStorageHandler(quotaService quota.Service) *StorageHandler {
	return &StorageHandler{quotaService: quotaService}
}

// GetQuota 当前用户的存储配额
// @Summary 获取存储配额
// @Tags Storage
// @Produce json
// @Security BearerAuth
// @Success 200 {object} xerr.Response{data=models.QuotaInfo}
// @Router /api/v1/storage/quota [get]
func (h *StorageHandler) GetQuota(c *gin.Context) {
	userID, ok := utils.GetUserIDFromContext(c)
	if !ok {
		return
	}

	info, err := h.quotaService.GetUserStorageQuota(c.Request.Context(), userID)
	if err != nil {
		respondError(c, "GetQuota", err)
		return
	}
	xerr.Success(c, http.StatusOK, "获取存储配额成功", info)
}

// CheckQuota 上传前检查剩余空间，超额时 allowed=false 而不是报错
// @Summary 检查存储配额
// @Tags Storage
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param data body QuotaCheckRequest true "待上传字节数"
// @Success 200 {object} xerr.Response{data=models.QuotaCheck}
// @Router /api/v1/storage/quota/check [post]
func (h *StorageHandler) CheckQuota(c *gin.Context) {
	userID, ok := utils.GetUserIDFromContext(c)
	if !ok {
		return
	}
	var req QuotaCheckRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		xerr.Error(c, http.StatusBadRequest, xerr.InvalidParamsCode, err.Error())
		return
	}

	check, err := h.quotaService.CheckStorageQuota(c.Request.Context(), userID, *req.AdditionalBytes)
	if err != nil {
		respondError(c, "CheckQuota", err)
		return
	}
	xerr.Success(c, http.StatusOK, "配额检查完成", check)
}

// GetStats 按文件类型统计的存储使用情况
// @Summary 获取存储统计
// @Tags Storage
// @Produce json
// @Security BearerAuth
// @Success 200 {object} xerr.Response{data=models.StorageStats}
// @Router /api/v1/storage/stats [get]
func (h *StorageHandler) GetStats(c *gin.Context) {
	userID, ok := utils.GetUserIDFromContext(c)
	if !ok {
		return
	}

	stats, err := h.quotaService.GetUserStorageStats(c.Request.Context(), userID)
	if err != nil {
		respondError(c, "GetStats", err)
		return
	}
	xerr.Success(c, http.StatusOK, "获取存储统计成功", stats)
}
