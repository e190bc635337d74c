package storage

import (
	"context"
	"fmt"
	"io"

	"github.com/3Eeeecho/go-stackdash/internal/config"
)

// StorageService 对象存储的最小接口，MinIO 与阿里云 OSS 各有一个实现
type StorageService interface {
	// PutObject 上传对象，objectSize 未知时传 -1
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, contentType string) (PutObjectResult, error)
	RemoveObject(ctx context.Context, bucketName, objectName string) error
	IsBucketExist(ctx context.Context, bucketName string) (bool, error)
	MakeBucket(ctx context.Context, bucketName string) error
	// BucketName 配置中的默认存储桶
	BucketName() string
}

type PutObjectResult struct {
	Bucket string
	Key    string
	Size   int64
	ETag   string
}

func NewStorageService(cfg *config.Config) (StorageService, error) {
	switch cfg.Storage.Type {
	case "minio":
		return NewMinIOStorageService(&cfg.MinIO)
	case "aliyun_oss":
		return NewAliyunOSSStorageService(&cfg.AliyunOSS)
	default:
		return nil, fmt.Errorf("unknown storage type %q", cfg.Storage.Type)
	}
}
