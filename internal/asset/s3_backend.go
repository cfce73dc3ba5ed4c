package asset

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// S3Config はS3互換ストレージの接続設定。
type S3Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// S3Backend はS3互換ストレージ（MinIO等）に画像を保存するBackend。
type S3Backend struct {
	client *minio.Client
	bucket string
}

// NewS3Backend はS3Backendを生成する。バケットが存在しない場合は作成する。
func NewS3Backend(ctx context.Context, cfg S3Config) (*S3Backend, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client for endpoint %s: %w", cfg.Endpoint, err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket %s: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("failed to create bucket %s: %w", cfg.Bucket, err)
		}
		slog.Info("asset bucket created", slog.String("bucket", cfg.Bucket))
	}

	return &S3Backend{client: client, bucket: cfg.Bucket}, nil
}

// Put は指定名でオブジェクトをアップロードする。
func (b *S3Backend) Put(ctx context.Context, name string, data []byte) error {
	_, err := b.client.PutObject(ctx, b.bucket, name, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: http.DetectContentType(data),
	})
	if err != nil {
		return fmt.Errorf("failed to upload object %s to bucket %s: %w", name, b.bucket, err)
	}
	return nil
}

// Get は指定名のオブジェクトを読み込む。
func (b *S3Backend) Get(ctx context.Context, name string) ([]byte, error) {
	obj, err := b.client.GetObject(ctx, b.bucket, name, minio.GetObjectOptions{})
	if err != nil {
		return nil, b.mapError(name, err)
	}
	defer obj.Close()

	// GetObjectは遅延評価のため、存在しない場合のエラーは読み込み時に返る
	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, b.mapError(name, err)
	}
	return data, nil
}

// Delete は指定名のオブジェクトを削除する。
func (b *S3Backend) Delete(ctx context.Context, name string) error {
	if err := b.client.RemoveObject(ctx, b.bucket, name, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("failed to remove object %s: %w", name, err)
	}
	return nil
}

// Stat は指定名のオブジェクトのメタデータを返す。
func (b *S3Backend) Stat(ctx context.Context, name string) (Object, error) {
	info, err := b.client.StatObject(ctx, b.bucket, name, minio.StatObjectOptions{})
	if err != nil {
		return Object{}, b.mapError(name, err)
	}
	return Object{Name: info.Key, Size: info.Size, ModTime: info.LastModified}, nil
}

// List はバケット内のオブジェクト一覧を返す。
func (b *S3Backend) List(ctx context.Context) ([]Object, error) {
	var objects []Object
	for info := range b.client.ListObjects(ctx, b.bucket, minio.ListObjectsOptions{}) {
		if info.Err != nil {
			return nil, fmt.Errorf("failed to list bucket %s: %w", b.bucket, info.Err)
		}
		objects = append(objects, Object{
			Name:    info.Key,
			Size:    info.Size,
			ModTime: info.LastModified,
		})
	}
	return objects, nil
}

func (b *S3Backend) mapError(name string, err error) error {
	if isNoSuchKey(err) {
		return ErrNotFound
	}
	return fmt.Errorf("failed to get object %s from bucket %s: %w", name, b.bucket, err)
}

func isNoSuchKey(err error) bool {
	return minio.ToErrorResponse(err).Code == "NoSuchKey"
}

// compile-time interface check
var _ Backend = (*S3Backend)(nil)
