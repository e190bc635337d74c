package handlers

import (
	"net/http"
	"strconv"

	"github.com/3Eeeecho/go-stackdash/internal/models"
	"github.com/3Eeeecho/go-stackdash/internal/pkg/utils"
	"github.com/3Eeeecho/go-stackdash/internal/pkg/xerr"
	"github.com/3Eeeecho/go-stackdash/internal/services/deploy"
	"github.com/gin-gonic/gin"
)

type ResourceHandler struct {
	deployService deploy.Service
}

func NewResourceHandler(deployService deploy.Service) *ResourceHandler {
	return &ResourceHandler{deployService: deployService}
}

// authorize 解析路径中的资源 ID 并校验归属，管理员可以操作任意资源
func (h *ResourceHandler) authorize(c *gin.Context) (uint64, bool) {
	userID, ok := utils.GetUserIDFromContext(c)
	if !ok {
		return 0, false
	}
	resourceID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		xerr.AbortWithError(c, http.StatusBadRequest, xerr.InvalidParamsCode, "无效的资源ID")
		return 0, false
	}

	resource, err := h.deployService.GetResource(c.Request.Context(), resourceID)
	if err != nil {
		respondError(c, "GetResource", err)
		return 0, false
	}
	if resource.UserID != userID && c.GetString(utils.ContextRoleKey) != models.RoleAdmin {
		xerr.AbortWithError(c, http.StatusForbidden, xerr.PermissionDeniedCode, xerr.ErrPermissionDenied.Error())
		return 0, false
	}
	return resourceID, true
}

// Deploy 发起部署，立即返回，进度通过 GetDeployment 轮询
// @Summary 部署资源
// @Tags Resource
// @Produce json
// @Security BearerAuth
// @Param id path int true "资源ID"
// @Success 200 {object} xerr.Response{data=models.DeployResult}
// @Failure 409 {object} xerr.Response "资源正在部署中"
// @Router /api/v1/resources/{id}/deploy [post]
func (h *ResourceHandler) Deploy(c *gin.Context) {
	resourceID, ok := h.authorize(c)
	if !ok {
		return
	}
	result, err := h.deployService.DeployResource(c.Request.Context(), resourceID)
	if err != nil {
		respondError(c, "Deploy", err)
		return
	}
	xerr.Success(c, http.StatusOK, "部署已开始", result)
}

// GetDeployment 部署进度，没有部署信号时 data 为 null
// @Summary 查询部署进度
// @Tags Resource
// @Produce json
// @Security BearerAuth
// @Param id path int true "资源ID"
// @Success 200 {object} xerr.Response{data=models.DeploymentStatus}
// @Router /api/v1/resources/{id}/deployment [get]
func (h *ResourceHandler) GetDeployment(c *gin.Context) {
	resourceID, ok := h.authorize(c)
	if !ok {
		return
	}
	status, err := h.deployService.GetDeploymentStatus(c.Request.Context(), resourceID)
	if err != nil {
		respondError(c, "GetDeployment", err)
		return
	}
	xerr.Success(c, http.StatusOK, "ok", status)
}

// Refresh 从外部开通 API 同步资源状态
// @Summary 刷新资源状态
// @Tags Resource
// @Produce json
// @Security BearerAuth
// @Param id path int true "资源ID"
// @Success 200 {object} xerr.Response{data=models.Resource}
// @Router /api/v1/resources/{id}/refresh [post]
func (h *ResourceHandler) Refresh(c *gin.Context) {
	resourceID, ok := h.authorize(c)
	if !ok {
		return
	}
	resource, err := h.deployService.RefreshResource(c.Request.Context(), resourceID)
	if err != nil {
		respondError(c, "Refresh", err)
		return
	}
	xerr.Success(c, http.StatusOK, "资源状态已刷新", resource)
}

// Decommission 下线资源
// @Summary 删除资源
// @Tags Resource
// @Produce json
// @Security BearerAuth
// @Param id path int true "资源ID"
// @Success 200 {object} xerr.Response
// @Router /api/v1/resources/{id} [delete]
func (h *ResourceHandler) Decommission(c *gin.Context) {
	resourceID, ok := h.authorize(c)
	if !ok {
		return
	}
	if err := h.deployService.DecommissionResource(c.Request.Context(), resourceID); err != nil {
		respondError(c, "Decommission", err)
		return
	}
	xerr.Success(c, http.StatusOK, "资源已删除", nil)
}
