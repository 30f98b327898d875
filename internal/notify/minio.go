package notify

import (
	"context"
	"fmt"
	"net/url"
	"path"

	"pys-backend/internal/components/assert"
	"pys-backend/internal/components/telemetry"
	"pys-backend/internal/pull"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

type MinioConfig struct {
	// Endpoint is a url, the scheme decides whether TLS is used.
	Endpoint  string `json:"endpoint" validate:"required,url"`
	AccessKey string `json:"access_key" validate:"required"`
	SecretKey string `json:"secret_key" validate:"required"`
	Bucket    string `json:"bucket" validate:"required"`
	Prefix    string `json:"prefix"`
}

func NewMinioClient(cfg MinioConfig) (*minio.Client, error) {
	parsed, err := url.Parse(cfg.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse minio endpoint: %w", err)
	}
	return minio.New(parsed.Host, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: parsed.Scheme == "https",
	})
}

// ObjectStore is the part of *minio.Client the publisher uses.
type ObjectStore interface {
	FPutObject(ctx context.Context, bucket, object, filePath string, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

// MinioPublisher uploads the artifacts of every successful pull twice, once
// under latest/ and once under a folder named after the pull id.
type MinioPublisher struct {
	store  ObjectStore
	bucket string
	prefix string
	tel    telemetry.API
}

func NewMinioPublisher(store ObjectStore, bucket, prefix string, tel telemetry.API) MinioPublisher {
	assert.NotNil(store, "object store")
	assert.NotEmptyStr(bucket, "bucket")
	assert.NotNil(tel, "telemetry")
	return MinioPublisher{
		store:  store,
		bucket: bucket,
		prefix: prefix,
		tel:    telemetry.NewScopedAPI("notify", tel),
	}
}

func (p MinioPublisher) PullFinished(ctx context.Context, result pull.Result) error {
	if result.Status != pull.StatusSucceeded {
		return nil
	}

	uploads := []struct {
		file        string
		contentType string
	}{
		{file: result.Artifact, contentType: "application/json"},
		{file: result.XmlPath, contentType: "application/xml"},
	}
	for _, u := range uploads {
		if u.file == "" {
			continue
		}
		name := path.Base(u.file)
		for _, object := range []string{
			path.Join(p.prefix, "latest", name),
			path.Join(p.prefix, result.ID.String(), name),
		} {
			info, err := p.store.FPutObject(ctx, p.bucket, object, u.file, minio.PutObjectOptions{
				ContentType: u.contentType,
			})
			if err != nil {
				return fmt.Errorf("upload %s: %w", object, err)
			}
			p.tel.ReportDebug("uploaded artifact", object, info.Size)
		}
	}
	return nil
}
