package explorer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/3Eeeecho/go-stackdash/internal/models"
	"github.com/3Eeeecho/go-stackdash/internal/pkg/logger"
	"github.com/3Eeeecho/go-stackdash/internal/pkg/storage"
	"github.com/3Eeeecho/go-stackdash/internal/pkg/xerr"
	"github.com/3Eeeecho/go-stackdash/internal/repositories"
	"github.com/3Eeeecho/go-stackdash/internal/services/quota"
	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// sniffLen mimetype 识别所需的最大头部字节数
const sniffLen = 3072

// 文件分类，对应 files.file_type
const (
	FileTypeDocument = "document"
	FileTypeImage    = "image"
	FileTypeVideo    = "video"
	FileTypeAudio    = "audio"
	FileTypeArchive  = "archive"
	FileTypeOther    = "other"
)

var knownFileTypes = map[string]bool{
	FileTypeDocument: true,
	FileTypeImage:    true,
	FileTypeVideo:    true,
	FileTypeAudio:    true,
	FileTypeArchive:  true,
	FileTypeOther:    true,
}

// FileService 文件上传，上传前必须通过配额检查
type FileService interface {
	Upload(ctx context.Context, userID uint64, req *models.UploadRequest, reader io.Reader) (*models.File, error)
}

type fileService struct {
	fileRepo repositories.FileRepository
	quota    quota.Service
	storage  storage.StorageService
}

var _ FileService = (*fileService)(nil)

func NewFileService(fileRepo repositories.FileRepository, quotaSvc quota.Service, storageSvc storage.StorageService) FileService {
	return &fileService{
		fileRepo: fileRepo,
		quota:    quotaSvc,
		storage:  storageSvc,
	}
}

func (s *fileService) Upload(ctx context.Context, userID uint64, req *models.UploadRequest, reader io.Reader) (*models.File, error) {
	name := strings.TrimSpace(req.FileName)
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return nil, xerr.ErrFileNameInvalid
	}
	if req.Size < 0 {
		return nil, xerr.ErrInvalidParams
	}

	check, err := s.quota.CheckStorageQuota(ctx, userID, req.Size)
	if err != nil {
		return nil, err
	}
	if !check.Allowed {
		logger.Info("Upload rejected by storage quota",
			zap.Uint64("userID", userID),
			zap.String("fileName", name),
			zap.Int64("size", req.Size))
		return nil, fmt.Errorf("%w: %s", xerr.ErrQuotaExceeded, check.Reason)
	}

	// 读出文件头识别 MIME，再拼回原始流
	head := make([]byte, sniffLen)
	n, err := io.ReadFull(reader, head)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return nil, fmt.Errorf("failed to read upload stream: %w", err)
	}
	head = head[:n]
	mime := req.MimeType
	if mime == "" || mime == "application/octet-stream" {
		mime = mimetype.Detect(head).String()
	}
	body := io.MultiReader(bytes.NewReader(head), reader)

	fileUUID := uuid.NewString()
	bucket := s.storage.BucketName()
	objectName := path.Join("users", fmt.Sprint(userID), fileUUID, name)

	if _, err := s.storage.PutObject(ctx, bucket, objectName, body, req.Size, mime); err != nil {
		logger.Error("Upload: failed to put object", zap.Uint64("userID", userID), zap.String("object", objectName), zap.Error(err))
		return nil, fmt.Errorf("%w: %w", xerr.ErrStorageError, err)
	}

	file := &models.File{
		UUID:      fileUUID,
		UserID:    userID,
		FileName:  name,
		FileSize:  req.Size,
		FileType:  classify(req.FileType, mime),
		MimeType:  &mime,
		OssBucket: &bucket,
		OssKey:    &objectName,
	}
	if cid := strings.TrimSpace(req.CID); cid != "" {
		file.CID = &cid
	}

	if err := s.fileRepo.Create(ctx, file); err != nil {
		// 元数据写入失败时删除已上传的对象，避免占用存储却不计入配额
		if rmErr := s.storage.RemoveObject(ctx, bucket, objectName); rmErr != nil {
			logger.Error("Upload: failed to remove orphan object", zap.String("object", objectName), zap.Error(rmErr))
		}
		return nil, fmt.Errorf("%w: %w", xerr.ErrStorageError, err)
	}

	logger.Info("File uploaded",
		zap.Uint64("userID", userID),
		zap.Uint64("fileID", file.ID),
		zap.String("fileType", file.FileType),
		zap.Int64("size", file.FileSize))
	return file, nil
}

// classify 客户端给出的合法分类优先，否则按 MIME 推断
func classify(requested, mime string) string {
	if requested = strings.ToLower(strings.TrimSpace(requested)); knownFileTypes[requested] {
		return requested
	}
	switch {
	case strings.HasPrefix(mime, "image/"):
		return FileTypeImage
	case strings.HasPrefix(mime, "video/"):
		return FileTypeVideo
	case strings.HasPrefix(mime, "audio/"):
		return FileTypeAudio
	case strings.HasPrefix(mime, "text/"),
		strings.Contains(mime, "pdf"),
		strings.Contains(mime, "msword"),
		strings.Contains(mime, "officedocument"),
		strings.Contains(mime, "opendocument"):
		return FileTypeDocument
	case strings.Contains(mime, "zip"),
		strings.Contains(mime, "x-tar"),
		strings.Contains(mime, "gzip"),
		strings.Contains(mime, "x-7z"),
		strings.Contains(mime, "x-rar"):
		return FileTypeArchive
	default:
		return FileTypeOther
	}
}
