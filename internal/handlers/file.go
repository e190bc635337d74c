package handlers

import (
	"net/http"

	"github.com/3Eeeecho/go-stackdash/internal/models"
	"github.com/3Eeeecho/go-stackdash/internal/pkg/logger"
	"github.com/3Eeeecho/go-stackdash/internal/pkg/utils"
	"github.com/3Eeeecho/go-stackdash/internal/pkg/xerr"
	"github.com/3Eeeecho/go-stackdash/internal/services/explorer"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type FileHandler struct {
	fileService explorer.FileService
}

func NewFileHandler(fileService explorer.FileService) *FileHandler {
	return &FileHandler{fileService: fileService}
}

// Upload 单文件上传，超出存储配额时返回 507
// @Summary 上传文件
// @Tags File
// @Accept multipart/form-data
// @Produce json
// @Security BearerAuth
// @Param file formData file true "文件"
// @Param file_type formData string false "文件分类"
// @Param cid formData string false "IPFS CID"
// @Success 200 {object} xerr.Response{data=models.File}
// @Failure 507 {object} xerr.Response "存储配额不足"
// @Router /api/v1/files [post]
func (h *FileHandler) Upload(c *gin.Context) {
	userID, ok := utils.GetUserIDFromContext(c)
	if !ok {
		return
	}

	var req models.UploadRequest
	if err := c.ShouldBind(&req); err != nil {
		xerr.Error(c, http.StatusBadRequest, xerr.InvalidParamsCode, err.Error())
		return
	}
	header, err := c.FormFile("file")
	if err != nil {
		xerr.Error(c, http.StatusBadRequest, xerr.InvalidParamsCode, "缺少上传文件")
		return
	}
	if req.FileName == "" {
		req.FileName = header.Filename
	}
	req.Size = header.Size
	req.MimeType = header.Header.Get("Content-Type")

	src, err := header.Open()
	if err != nil {
		logger.Error("Upload: failed to open multipart file", zap.Uint64("userID", userID), zap.Error(err))
		xerr.Error(c, http.StatusBadRequest, xerr.InvalidParamsCode, "无法读取上传文件")
		return
	}
	defer src.Close()

	file, err := h.fileService.Upload(c.Request.Context(), userID, &req, src)
	if err != nil {
		respondError(c, "Upload", err)
		return
	}
	xerr.Success(c, http.StatusOK, "文件上传成功", file)
}
