package services

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"path/filepath"
	"strings"
	"time"

	"lifeline/internal/apperrors"
	"lifeline/internal/utils"
	"lifeline/pkg/logger"
	"lifeline/pkg/storage"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

const maxUploadSize = 25 << 20 // 25 MB

type MediaService interface {
	Upload(ctx context.Context, upload *MediaUpload) (*MediaResult, error)
	Delete(ctx context.Context, key string) error
}

type MediaUpload struct {
	OwnerID  primitive.ObjectID
	Filename string
	Size     int64
	Reader   io.Reader
}

type MediaResult struct {
	Key          string `json:"key"`
	URL          string `json:"url"`
	ThumbnailURL string `json:"thumbnail_url,omitempty"`
	Size         int64  `json:"size"`
	ContentType  string `json:"content_type"`
}

type mediaService struct {
	provider storage.StorageProvider
	log      *logger.Logger
}

func NewMediaService(provider storage.StorageProvider, log *logger.Logger) MediaService {
	return &mediaService{
		provider: provider,
		log:      log,
	}
}

// Upload stores an attachment under a key scoped to its owner. Image
// uploads also get a thumbnail, a thumbnail failure does not fail the
// upload.
func (s *mediaService) Upload(ctx context.Context, upload *MediaUpload) (*MediaResult, error) {
	if upload.Filename == "" {
		return nil, apperrors.InvalidInput("filename is required", nil)
	}
	if upload.Size > maxUploadSize {
		return nil, apperrors.InvalidInput("file is too large", map[string]string{
			"max_bytes": fmt.Sprintf("%d", maxUploadSize),
		})
	}

	contentType := mime.TypeByExtension(filepath.Ext(upload.Filename))
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	key := s.buildKey(upload.OwnerID, upload.Filename)

	reader := upload.Reader
	var thumbData []byte
	if utils.IsImageFilename(upload.Filename) {
		body, err := io.ReadAll(io.LimitReader(upload.Reader, maxUploadSize+1))
		if err != nil {
			return nil, fmt.Errorf("failed to read upload: %w", err)
		}
		if int64(len(body)) > maxUploadSize {
			return nil, apperrors.InvalidInput("file is too large", nil)
		}
		reader = bytes.NewReader(body)

		thumbData, err = utils.Thumbnail(bytes.NewReader(body), upload.Filename)
		if err != nil {
			s.log.WithError(err).WithField("filename", upload.Filename).Warn("failed to build thumbnail")
			thumbData = nil
		}
	}

	resp, err := s.provider.Upload(ctx, &storage.UploadRequest{
		Key:         key,
		Reader:      reader,
		ContentType: contentType,
		Size:        upload.Size,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to store attachment: %w", err)
	}

	result := &MediaResult{
		Key:         resp.Key,
		URL:         resp.URL,
		Size:        resp.Size,
		ContentType: contentType,
	}

	if thumbData != nil {
		thumbKey := s.thumbnailKey(key)
		thumbResp, err := s.provider.Upload(ctx, &storage.UploadRequest{
			Key:         thumbKey,
			Reader:      bytes.NewReader(thumbData),
			ContentType: "image/jpeg",
			Size:        int64(len(thumbData)),
		})
		if err != nil {
			s.log.WithError(err).WithField("key", thumbKey).Warn("failed to store thumbnail")
		} else {
			result.ThumbnailURL = thumbResp.URL
		}
	}

	return result, nil
}

func (s *mediaService) Delete(ctx context.Context, key string) error {
	if err := s.provider.Delete(ctx, key); err != nil {
		return fmt.Errorf("failed to delete attachment: %w", err)
	}

	if utils.IsImageFilename(key) {
		if err := s.provider.Delete(ctx, s.thumbnailKey(key)); err != nil {
			s.log.WithError(err).WithField("key", key).Warn("failed to delete thumbnail")
		}
	}

	return nil
}

func (s *mediaService) buildKey(ownerID primitive.ObjectID, filename string) string {
	base := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '-'
		}
	}, base)

	return fmt.Sprintf("media/%s/%d-%s%s", ownerID.Hex(), time.Now().UnixNano(), base, strings.ToLower(filepath.Ext(filename)))
}

func (s *mediaService) thumbnailKey(key string) string {
	ext := filepath.Ext(key)
	return strings.TrimSuffix(key, ext) + "_thumb.jpg"
}
