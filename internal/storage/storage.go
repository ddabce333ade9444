// Package storage downloads images and stores uploads and final results in
// Azure Blob Storage or S3.
package storage

import (
	"context"
	"fmt"
	"mime"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	apperrors "go-image-editor/internal/errors"
	"go-image-editor/pkg/models"
)

// Key prefixes inside the container or bucket
const (
	UploadPrefix = "uploads"
	FinalPrefix  = "final"
)

// Backend stores uploaded originals and persisted final images
type Backend interface {
	Upload(ctx context.Context, filename, contentType string, data []byte) (*models.UploadResult, error)
	Persist(ctx context.Context, imageURL string, transformations []models.Transformation, metadata map[string]string) (*models.SaveResult, error)
	Name() string
}

// putFunc writes one object and returns its public URL
type putFunc func(ctx context.Context, key, contentType string, data []byte, metadata map[string]string) (string, error)

// objectKey builds "<prefix>/<yyyy>/<mm>/<id><ext>"
func objectKey(prefix, id, filename, contentType string, now time.Time) string {
	ext := strings.ToLower(path.Ext(filename))
	if ext == "" {
		if exts, _ := mime.ExtensionsByType(contentType); len(exts) > 0 {
			ext = exts[0]
		}
	}
	return fmt.Sprintf("%s/%04d/%02d/%s%s", prefix, now.Year(), int(now.Month()), id, ext)
}

func upload(ctx context.Context, put putFunc, filename, contentType string, data []byte) (*models.UploadResult, error) {
	if len(data) == 0 {
		return nil, apperrors.NewValidationError("uploaded file is empty", nil)
	}
	assetID := uuid.NewString()
	key := objectKey(UploadPrefix, assetID, filename, contentType, time.Now().UTC())

	url, err := put(ctx, key, contentType, data, map[string]string{
		"asset_id":          assetID,
		"original_filename": path.Base(filename),
	})
	if err != nil {
		return nil, err
	}
	return &models.UploadResult{URL: url, AssetID: assetID}, nil
}

// persist downloads the working URL and stores the bytes as the final image.
// The applied transformation kinds travel as object metadata.
func persist(ctx context.Context, fetcher ImageFetcher, put putFunc, imageURL string, transformations []models.Transformation, metadata map[string]string) (*models.SaveResult, error) {
	img, err := fetcher.Fetch(ctx, imageURL)
	if err != nil {
		return nil, err
	}

	meta := make(map[string]string, len(metadata)+2)
	for k, v := range metadata {
		meta[sanitizeMetadataKey(k)] = v
	}
	meta["source_url"] = imageURL
	meta["transformations"] = transformationSummary(transformations)

	key := objectKey(FinalPrefix, uuid.NewString(), "", img.ContentType, time.Now().UTC())
	url, err := put(ctx, key, img.ContentType, img.Data, meta)
	if err != nil {
		return nil, err
	}
	return &models.SaveResult{SavedURL: url}, nil
}

func transformationSummary(transformations []models.Transformation) string {
	kinds := make([]string, 0, len(transformations))
	for _, t := range transformations {
		kinds = append(kinds, string(t.Kind))
	}
	return strings.Join(kinds, ",")
}

// sanitizeMetadataKey keeps keys valid for both Azure (C# identifiers) and S3 headers
func sanitizeMetadataKey(k string) string {
	var b strings.Builder
	for i, r := range strings.ToLower(k) {
		switch {
		case r >= 'a' && r <= 'z', r == '_':
			b.WriteRune(r)
		case r >= '0' && r <= '9':
			if i == 0 {
				b.WriteRune('_')
			}
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}
