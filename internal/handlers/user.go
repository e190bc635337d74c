package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/3Eeeecho/go-stackdash/internal/pkg/utils"
	"github.com/3Eeeecho/go-stackdash/internal/pkg/xerr"
	"github.com/3Eeeecho/go-stackdash/internal/services/admin"
)

type UserHandler struct {
	userService admin.UserService
}

func NewUserHandler(userService admin.UserService) *UserHandler {
	return &UserHandler{
		userService: userService,
	}
}

// GetUserProfile 处理获取已认证用户资料的请求。
// @Summary 获取当前用户资料
// @Tags User
// @Produce json
// @Security BearerAuth
// @Success 200 {object} xerr.Response "用户资料检索成功"
// @Failure 401 {object} xerr.Response "未授权"
// @Failure 404 {object} xerr.Response "用户未找到"
// @Router /api/v1/users/me [get]
func (h *UserHandler) GetUserProfile(c *gin.Context) {
	currentUserID, ok := utils.GetUserIDFromContext(c)
	if !ok {
		return
	}

	user, err := h.userService.GetUserProfile(c.Request.Context(), currentUserID)
	if err != nil {
		respondError(c, "GetUserProfile", err)
		return
	}

	xerr.Success(c, http.StatusOK, "成功获取用户资料", user)
}
