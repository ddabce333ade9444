package repository

import (
	"context"
	"time"

	"go-image-editor/internal/editor"
	"go-image-editor/pkg/models"
)

// ImageRepository defines the interface for image data access operations
type ImageRepository interface {
	// Fetch retrieves the raw bytes behind a URL
	Fetch(ctx context.Context, imageURL string) (*models.ImageData, error)

	// ValidateImageURL validates if the provided URL is acceptable
	ValidateImageURL(imageURL string) error
}

// SessionRepository stores live editing sessions
type SessionRepository interface {
	// Save stores a new session
	Save(session *editor.Session) error

	// Get returns the session stored under id
	Get(id string) (*editor.Session, error)

	// Delete removes and returns the session stored under id
	Delete(id string) (*editor.Session, error)

	// List returns every stored session
	List() []*editor.Session

	// IdleSince returns sessions whose last activity is before cutoff
	IdleSince(cutoff time.Time) []*editor.Session

	// Count returns the number of stored sessions
	Count() int
}
