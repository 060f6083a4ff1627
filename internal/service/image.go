package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pageza/reelkitchen/backend/config"
	"github.com/pageza/reelkitchen/backend/internal/metrics"
)

const (
	// MaxThumbnailBytes caps the size of a mirrored thumbnail
	MaxThumbnailBytes = 10 << 20
	thumbnailPrefix   = "recipe-thumbnails/"
)

// ErrNotAnImage is returned when the downloaded content is not an image
var ErrNotAnImage = errors.New("downloaded content is not an image")

// ObjectUploader is the subset of the S3 client used for thumbnails
type ObjectUploader interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// ThumbnailMirror copies creator thumbnails into our own bucket, since
// platform CDN links expire.
type ThumbnailMirror struct {
	uploader  ObjectUploader
	bucket    string
	publicURL func(key string) string
	client    *http.Client
	metrics   *metrics.Metrics
	logger    *zap.Logger
}

// NewThumbnailMirror creates a ThumbnailMirror backed by the configured bucket
func NewThumbnailMirror(s3Config *config.S3Config, m *metrics.Metrics, log *zap.Logger) *ThumbnailMirror {
	return NewThumbnailMirrorWithUploader(s3Config.Client, s3Config.BucketName, s3Config.PublicURL, m, log)
}

// NewThumbnailMirrorWithUploader creates a ThumbnailMirror with an explicit uploader
func NewThumbnailMirrorWithUploader(uploader ObjectUploader, bucket string, publicURL func(string) string, m *metrics.Metrics, log *zap.Logger) *ThumbnailMirror {
	return &ThumbnailMirror{
		uploader:  uploader,
		bucket:    bucket,
		publicURL: publicURL,
		client:    &http.Client{Timeout: 30 * time.Second},
		metrics:   m,
		logger:    log.Named("thumbnails"),
	}
}

// Mirror downloads sourceURL and uploads it, returning the public URL of the copy
func (m *ThumbnailMirror) Mirror(ctx context.Context, sourceURL string) (string, error) {
	url, err := m.mirror(ctx, sourceURL)
	m.metrics.ThumbnailMirror(err)
	if err != nil {
		m.logger.Warn("Failed to mirror thumbnail", zap.String("source_url", sourceURL), zap.Error(err))
		return "", err
	}
	return url, nil
}

func (m *ThumbnailMirror) mirror(ctx context.Context, sourceURL string) (string, error) {
	data, err := m.download(ctx, sourceURL)
	if err != nil {
		return "", err
	}

	mtype := mimetype.Detect(data)
	if !strings.HasPrefix(mtype.String(), "image/") {
		return "", fmt.Errorf("%w: detected %s", ErrNotAnImage, mtype.String())
	}

	key := thumbnailPrefix + uuid.NewString() + mtype.Extension()
	_, err = m.uploader.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(m.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentType:   aws.String(mtype.String()),
		ContentLength: aws.Int64(int64(len(data))),
		CacheControl:  aws.String("public, max-age=31536000"),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload thumbnail to S3: %w", err)
	}

	m.logger.Debug("Thumbnail mirrored", zap.String("key", key), zap.Int("bytes", len(data)))
	return m.publicURL(key), nil
}

func (m *ThumbnailMirror) download(ctx context.Context, sourceURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download thumbnail: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("thumbnail download returned status %d", resp.StatusCode)
	}
	if resp.ContentLength > MaxThumbnailBytes {
		return nil, fmt.Errorf("thumbnail is %d bytes, limit is %d", resp.ContentLength, MaxThumbnailBytes)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxThumbnailBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read thumbnail: %w", err)
	}
	if len(data) > MaxThumbnailBytes {
		return nil, fmt.Errorf("thumbnail exceeds %d bytes", MaxThumbnailBytes)
	}
	return data, nil
}
