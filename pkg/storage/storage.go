// Package storage publishes finished artifacts and returns the locator clients use to fetch them.
package storage

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/rs/zerolog"
)

type Publisher interface {
	// Publish makes the file at localPath available under key.
	Publish(ctx context.Context, localPath, key string) (string, error)
}

// localPublisher serves files straight from the outputs directory.
type localPublisher struct {
	root   string
	prefix string
}

// NewLocal returns a Publisher for files that already live under root. The
// locator is prefix joined with key, which the HTTP server maps back to root.
func NewLocal(root, prefix string) Publisher {
	return &localPublisher{root: root, prefix: "/" + strings.Trim(prefix, "/")}
}

func (p *localPublisher) Publish(ctx context.Context, localPath, key string) (string, error) {
	want := filepath.Join(p.root, filepath.FromSlash(key))
	absWant, err := filepath.Abs(want)
	if err != nil {
		return "", err
	}
	absHave, err := filepath.Abs(localPath)
	if err != nil {
		return "", err
	}
	if absWant != absHave {
		return "", fmt.Errorf("publish %s: file is not stored under key %s", localPath, key)
	}
	if _, err := os.Stat(absHave); err != nil {
		return "", fmt.Errorf("publish %s: %w", localPath, err)
	}
	return path.Join(p.prefix, filepath.ToSlash(key)), nil
}

type minioPublisher struct {
	client *minio.Client
	bucket string
}

func NewMinio(client *minio.Client, bucket string) Publisher {
	return &minioPublisher{client: client, bucket: bucket}
}

func (p *minioPublisher) Publish(ctx context.Context, localPath, key string) (string, error) {
	objectName := strings.ReplaceAll(key, "\\", "/")
	info, err := p.client.FPutObject(ctx, p.bucket, objectName, localPath, minio.PutObjectOptions{
		ContentType: contentType(objectName),
	})
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Str("object", objectName).Msg("failed to upload artifact")
		return "", fmt.Errorf("publish %s: %w", objectName, err)
	}
	zerolog.Ctx(ctx).Debug().Str("object", objectName).Int64("size", info.Size).Msg("artifact uploaded")

	return p.client.EndpointURL().JoinPath(p.bucket, objectName).String(), nil
}

func contentType(name string) string {
	switch strings.ToLower(path.Ext(name)) {
	case ".wav":
		return "audio/wav"
	case ".mp3":
		return "audio/mpeg"
	default:
		return "application/octet-stream"
	}
}

// EnsureBucket creates the bucket when it does not exist yet.
func EnsureBucket(ctx context.Context, client *minio.Client, bucket string) error {
	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	return client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{})
}

