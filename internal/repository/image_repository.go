package repository

import (
	"context"

	"go-image-editor/internal/storage"
	"go-image-editor/pkg/models"
	"go-image-editor/pkg/validation"
)

// HTTPImageRepository implements ImageRepository using HTTP storage
type HTTPImageRepository struct {
	fetcher   storage.ImageFetcher
	validator *validation.URLValidator
}

// NewHTTPImageRepository creates a new HTTP-based image repository
func NewHTTPImageRepository(fetcher storage.ImageFetcher, validator *validation.URLValidator) ImageRepository {
	if validator == nil {
		validator = validation.NewURLValidator()
	}
	return &HTTPImageRepository{
		fetcher:   fetcher,
		validator: validator,
	}
}

// Fetch retrieves an image from a URL after validating it
func (r *HTTPImageRepository) Fetch(ctx context.Context, imageURL string) (*models.ImageData, error) {
	if err := r.validator.ValidateImageURL(imageURL); err != nil {
		return nil, err
	}
	return r.fetcher.Fetch(ctx, imageURL)
}

// ValidateImageURL validates if the provided URL is acceptable
func (r *HTTPImageRepository) ValidateImageURL(imageURL string) error {
	return r.validator.ValidateImageURL(imageURL)
}
