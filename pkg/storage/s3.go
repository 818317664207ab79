package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	appconfig "nekotab/pkg/config"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Uploader 备份制品的异地复制接口
type Uploader interface {
	// Upload 上传本地文件到 <bucket>/<key>
	Upload(ctx context.Context, localPath, key string) error
}

// S3Uploader 基于S3协议的对象存储上传器（兼容MinIO等自建存储）
type S3Uploader struct {
	bucket   string
	uploader *manager.Uploader
}

// NewS3Uploader 创建S3上传器；未配置bucket时返回nil，
// 备份流程据此跳过异地复制（降低持久性但不是错误）
func NewS3Uploader(cfg *appconfig.BackupConfig) (*S3Uploader, error) {
	if cfg.S3Bucket == "" {
		return nil, nil
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.S3Region),
	}
	if cfg.S3AccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.S3AccessKey, cfg.S3SecretKey, "")))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("加载S3配置失败: %v", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
			o.UsePathStyle = true
		}
	})

	return &S3Uploader{
		bucket:   cfg.S3Bucket,
		uploader: manager.NewUploader(client),
	}, nil
}

// Upload 上传本地文件到对象存储
func (u *S3Uploader) Upload(ctx context.Context, localPath, key string) error {
	file, err := os.Open(localPath)
	if err != nil {
		return err
	}
	defer file.Close()

	_, err = u.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(u.bucket),
		Key:    aws.String(key),
		Body:   file,
	})
	if err != nil {
		return fmt.Errorf("上传 %s 失败: %v", filepath.Base(localPath), err)
	}
	return nil
}
