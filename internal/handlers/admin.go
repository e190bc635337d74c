package handlers

import (
	"net/http"
	"strconv"

	"github.com/3Eeeecho/go-stackdash/internal/models"
	"github.com/3Eeeecho/go-stackdash/internal/pkg/utils"
	"github.com/3Eeeecho/go-stackdash/internal/pkg/xerr"
	"github.com/3Eeeecho/go-stackdash/internal/services/quota"
	"github.com/gin-gonic/gin"
)

type UpdateTierRequest struct {
	Tier string `json:"tier" binding:"required,storage_tier"`
}

type AdminHandler struct {
	quotaService quota.Service
}

func NewAdminHandler(quotaService quota.Service) *AdminHandler {
	return &AdminHandler{quotaService: quotaService}
}

// UpdateUserTier 调整用户存储档位，仅管理员
// @Summary 调整存储档位
// @Tags Admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "用户ID"
// @Param data body UpdateTierRequest true "目标档位"
// @Success 200 {object} xerr.Response{data=models.QuotaInfo}
// @Failure 403 {object} xerr.Response "非管理员"
// @Router /api/v1/admin/users/{id}/tier [put]
func (h *AdminHandler) UpdateUserTier(c *gin.Context) {
	adminID, ok := utils.GetUserIDFromContext(c)
	if !ok {
		return
	}
	userID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		xerr.Error(c, http.StatusBadRequest, xerr.InvalidParamsCode, "无效的用户ID")
		return
	}
	var req UpdateTierRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		xerr.Error(c, http.StatusBadRequest, xerr.InvalidTierCode, err.Error())
		return
	}

	ctx := c.Request.Context()
	if err := h.quotaService.UpdateUserStorageTier(ctx, userID, models.StorageTier(req.Tier), adminID); err != nil {
		respondError(c, "UpdateUserTier", err)
		return
	}
	info, err := h.quotaService.GetUserStorageQuota(ctx, userID)
	if err != nil {
		respondError(c, "UpdateUserTier", err)
		return
	}
	xerr.Success(c, http.StatusOK, "存储档位已更新", info)
}
