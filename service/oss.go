package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"

	"reelsmith-server/config"
)

// Storage is the object-storage collaborator. It uploads generated
// artifacts and serves as the same-origin proxy for media hosted on the
// deploy-controlled storage domain, which blocks cross-origin capture.
type Storage struct {
	client *minio.Client
	bucket string
	domain string
	log    *zap.Logger
	http   *http.Client
}

func NewStorage(cfg *config.Config, log *zap.Logger) (*Storage, error) {
	client, err := minio.New(cfg.MinIO.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.MinIO.AccessKey, cfg.MinIO.SecretKey, ""),
		Secure: cfg.MinIO.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("init minio: %w", err)
	}
	return &Storage{
		client: client,
		bucket: cfg.MinIO.Bucket,
		domain: cfg.MinIO.Domain,
		log:    log,
		http:   &http.Client{Timeout: 2 * time.Minute},
	}, nil
}

// Upload stores a stream under objectName and returns a presigned URL.
func (s *Storage) Upload(ctx context.Context, reader io.Reader, objectName string, size int64) (string, error) {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return "", fmt.Errorf("check bucket: %w", err)
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
			return "", fmt.Errorf("create bucket: %w", err)
		}
		s.log.Info("bucket created", zap.String("bucket", s.bucket))
	}

	_, err = s.client.PutObject(ctx, s.bucket, objectName, reader, size, minio.PutObjectOptions{
		ContentType: contentTypeFor(objectName),
	})
	if err != nil {
		return "", fmt.Errorf("upload object: %w", err)
	}

	presigned, err := s.client.PresignedGetObject(ctx, s.bucket, objectName, 72*time.Hour, url.Values{})
	if err != nil {
		return "", fmt.Errorf("presign url: %w", err)
	}
	s.log.Info("object uploaded", zap.String("object", objectName))
	return presigned.String(), nil
}

// UploadBytes is Upload for in-memory payloads.
func (s *Storage) UploadBytes(ctx context.Context, data []byte, objectName string) (string, error) {
	return s.Upload(ctx, bytes.NewReader(data), objectName, int64(len(data)))
}

// ShouldProxy reports whether a media URL must be fetched through the
// same-origin proxy instead of directly.
func (s *Storage) ShouldProxy(rawURL string) bool {
	if s.domain == "" {
		return false
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return u.Host == s.domain
}

// Open returns a byte stream for a media URL, routing storage-domain
// URLs through the minio client and everything else over plain HTTP.
func (s *Storage) Open(ctx context.Context, rawURL string) (io.ReadCloser, string, error) {
	if s.ShouldProxy(rawURL) {
		u, err := url.Parse(rawURL)
		if err != nil {
			return nil, "", fmt.Errorf("parse url: %w", err)
		}
		objectName := u.Path
		if len(objectName) > 0 && objectName[0] == '/' {
			objectName = objectName[1:]
		}
		// Presigned URLs embed the bucket as the first path element.
		if strings.HasPrefix(objectName, s.bucket+"/") {
			objectName = objectName[len(s.bucket)+1:]
		}
		obj, err := s.client.GetObject(ctx, s.bucket, objectName, minio.GetObjectOptions{})
		if err != nil {
			return nil, "", fmt.Errorf("get object: %w", err)
		}
		return obj, contentTypeFor(objectName), nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("create request: %w", err)
	}
	resp, err := s.http.Do(req)
	if err != nil {
		return nil, "", &NetworkError{Op: "fetch media", Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, "", fmt.Errorf("fetch media status: %d", resp.StatusCode)
	}
	return resp.Body, resp.Header.Get("Content-Type"), nil
}

func contentTypeFor(objectName string) string {
	switch filepath.Ext(objectName) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".webp":
		return "image/webp"
	case ".mp4":
		return "video/mp4"
	case ".webm":
		return "video/webm"
	case ".mp3":
		return "audio/mpeg"
	case ".wav":
		return "audio/wav"
	default:
		return "application/octet-stream"
	}
}
