package storage

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"time"

	apperrors "go-image-editor/internal/errors"
	"go-image-editor/pkg/models"
)

// DefaultMaxImageBytes bounds a single download
const DefaultMaxImageBytes = 50 << 20

const fetchAttempts = 3

// ImageFetcher downloads images by URL
type ImageFetcher interface {
	Fetch(ctx context.Context, imageURL string) (*models.ImageData, error)
	FetchImage(ctx context.Context, imageURL string) (image.Image, error)
}

// HTTPImageFetcher implements ImageFetcher with bounded retries
type HTTPImageFetcher struct {
	client   *http.Client
	backoff  time.Duration
	maxBytes int64
}

// FetcherOption customises an HTTPImageFetcher
type FetcherOption func(*HTTPImageFetcher)

// WithBackoff sets the base delay between retries; attempt n waits n*d
func WithBackoff(d time.Duration) FetcherOption {
	return func(h *HTTPImageFetcher) { h.backoff = d }
}

// WithMaxBytes caps the size of a downloaded image
func WithMaxBytes(n int64) FetcherOption {
	return func(h *HTTPImageFetcher) { h.maxBytes = n }
}

// NewHTTPImageFetcher creates an HTTP image fetcher
func NewHTTPImageFetcher(opts ...FetcherOption) *HTTPImageFetcher {
	transport := &http.Transport{
		MaxIdleConns:        10,
		MaxIdleConnsPerHost: 2,
		IdleConnTimeout:     30 * time.Second,

		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,

		DisableCompression:     false,
		MaxResponseHeaderBytes: 4096,
	}

	h := &HTTPImageFetcher{
		client: &http.Client{
			Transport: transport,
			Timeout:   30 * time.Second,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 3 {
					return fmt.Errorf("too many redirects (limit: 3)")
				}
				return nil
			},
		},
		backoff:  time.Second,
		maxBytes: DefaultMaxImageBytes,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Fetch downloads the raw bytes of imageURL. Network errors and 5xx responses
// are retried; 4xx responses are not.
func (h *HTTPImageFetcher) Fetch(ctx context.Context, imageURL string) (*models.ImageData, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, apperrors.NewValidationError("invalid image URL", err)
	}
	req.Header.Set("Accept", "image/avif, image/webp, image/png, image/jpeg, image/gif, */*")
	req.Header.Set("User-Agent", "Go-Image-Editor/1.0")

	var resp *http.Response
	var lastErr error

	for attempt := 0; attempt < fetchAttempts; attempt++ {
		resp, err = h.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, apperrors.NewCancellationError("image fetch aborted", ctx.Err())
			}
			lastErr = err
			resp = nil
		} else if resp.StatusCode == http.StatusOK {
			break
		} else {
			resp.Body.Close()
			if resp.StatusCode >= 400 && resp.StatusCode < 500 {
				lastErr = fmt.Errorf("client error: status code %d", resp.StatusCode)
				return nil, apperrors.NewNetworkError("failed to fetch image", lastErr)
			}
			lastErr = fmt.Errorf("server error: status code %d", resp.StatusCode)
			resp = nil
		}

		if attempt < fetchAttempts-1 {
			select {
			case <-time.After(time.Duration(attempt+1) * h.backoff):
			case <-ctx.Done():
				return nil, apperrors.NewCancellationError("image fetch aborted", ctx.Err())
			}
		}
	}

	if resp == nil {
		if lastErr == nil {
			lastErr = fmt.Errorf("unknown error")
		}
		return nil, apperrors.NewNetworkError(
			fmt.Sprintf("failed to fetch image after %d attempts", fetchAttempts), lastErr)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, h.maxBytes+1))
	if err != nil {
		return nil, apperrors.NewNetworkError("failed to read image", err)
	}
	if int64(len(data)) > h.maxBytes {
		return nil, apperrors.NewValidationError(fmt.Sprintf("image exceeds %d bytes", h.maxBytes), nil)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	return &models.ImageData{URL: imageURL, ContentType: contentType, Data: data}, nil
}

// FetchImage downloads and decodes imageURL
func (h *HTTPImageFetcher) FetchImage(ctx context.Context, imageURL string) (image.Image, error) {
	data, err := h.Fetch(ctx, imageURL)
	if err != nil {
		return nil, err
	}
	img, _, err := image.Decode(bytes.NewReader(data.Data))
	if err != nil {
		return nil, apperrors.NewValidationError("failed to decode image", err)
	}
	return img, nil
}
