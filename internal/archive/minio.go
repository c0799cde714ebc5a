// Package archive uploads repair run reports to S3-compatible object storage.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"

	"airwaves/api/internal/repair"
)

type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

type objectPutter interface {
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

type Archive struct {
	client objectPutter
	bucket string
	logger *zap.Logger
}

// New connects to the object store and creates the bucket when missing.
func New(ctx context.Context, cfg Config, logger *zap.Logger) (*Archive, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", cfg.Bucket, err)
		}
	}
	return newArchive(client, cfg.Bucket, logger), nil
}

func newArchive(client objectPutter, bucket string, logger *zap.Logger) *Archive {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Archive{client: client, bucket: bucket, logger: logger}
}

// ObjectName is the key a tally is stored under:
// repairs/<task>/<yyyy>/<mm>/<dd>/<startedAt>-<runId>.json
func ObjectName(tally repair.Tally) string {
	started := tally.StartedAt.UTC()
	return fmt.Sprintf("repairs/%s/%s/%s-%s.json",
		tally.Task,
		started.Format("2006/01/02"),
		started.Format("20060102T150405Z"),
		tally.RunID,
	)
}

// Store uploads one tally as indented JSON and returns its object name.
func (a *Archive) Store(ctx context.Context, tally repair.Tally) (string, error) {
	payload, err := json.MarshalIndent(tally, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal tally: %w", err)
	}
	name := ObjectName(tally)
	_, err = a.client.PutObject(ctx, a.bucket, name, bytes.NewReader(payload), int64(len(payload)), minio.PutObjectOptions{
		ContentType: "application/json",
		UserMetadata: map[string]string{
			"task":      tally.Task,
			"conflicts": fmt.Sprint(tally.Conflicts),
			"errors":    fmt.Sprint(tally.Errors),
		},
	})
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", name, err)
	}
	return name, nil
}

// Hook adapts Store to a repair completion hook. Failures are logged only.
func (a *Archive) Hook() repair.Hook {
	return func(ctx context.Context, tally repair.Tally) {
		name, err := a.Store(ctx, tally)
		if err != nil {
			a.logger.Warn("archive repair run failed", zap.String("task", tally.Task), zap.Error(err))
			return
		}
		a.logger.Debug("repair run archived", zap.String("object", name))
	}
}
