package handlers

import (
	"net/http"

	"github.com/3Eeeecho/go-stackdash/internal/pkg/utils"
	"github.com/3Eeeecho/go-stackdash/internal/pkg/xerr"
	"github.com/3Eeeecho/go-stackdash/internal/services/cluster"
	"github.com/gin-gonic/gin"
)

type ClusterHandler struct {
	clusterService cluster.Service
}

func NewClusterHandler(clusterService cluster.Service) *ClusterHandler {
	return &ClusterHandler{clusterService: clusterService}
}

// Status IPFS 集群状态，?refresh=true 跳过缓存
// @Summary 集群状态
// @Tags Cluster
// @Produce json
// @Security BearerAuth
// @Param refresh query bool false "跳过缓存"
// @Success 200 {object} xerr.Response{data=cluster.Snapshot}
// @Router /api/v1/cluster/status [get]
func (h *ClusterHandler) Status(c *gin.Context) {
	refresh := c.Query("refresh") == "true"
	snap, err := h.clusterService.Snapshot(c.Request.Context(), refresh)
	if err != nil {
		respondError(c, "ClusterStatus", err)
		return
	}
	xerr.Success(c, http.StatusOK, "ok", snap)
}

// Sync 按集群 pin 状态更新当前用户文件的 is_pinned
// @Summary 同步固定状态
// @Tags Cluster
// @Produce json
// @Security BearerAuth
// @Success 200 {object} xerr.Response{data=cluster.SyncResult}
// @Router /api/v1/cluster/sync [post]
func (h *ClusterHandler) Sync(c *gin.Context) {
	userID, ok := utils.GetUserIDFromContext(c)
	if !ok {
		return
	}
	result, err := h.clusterService.SyncUserPins(c.Request.Context(), userID)
	if err != nil {
		respondError(c, "ClusterSync", err)
		return
	}
	xerr.Success(c, http.StatusOK, "同步完成", result)
}
