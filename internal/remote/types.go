// Package remote talks to the image-processing service that performs
// enhancement and background removal.
package remote

import (
	"context"

	"go-image-editor/pkg/models"
)

// ErrorKind is the service's own classification of a failed status check
type ErrorKind string

const (
	ErrorKindNone      ErrorKind = ""
	ErrorKindTransient ErrorKind = "transient"
	ErrorKindPermanent ErrorKind = "permanent"
)

// SubmitRequest asks the service to apply one transformation to ImageURL
type SubmitRequest struct {
	Kind     models.Kind            `json:"kind"`
	ImageURL string                 `json:"image_url"`
	Options  map[string]interface{} `json:"options,omitempty"`
}

// SubmitResult tells the caller whether the work finished inline
type SubmitResult struct {
	Success     bool   `json:"success"`
	Synchronous bool   `json:"synchronous"`
	ResultURL   string `json:"result_url,omitempty"`
	StatusToken string `json:"status_token,omitempty"`
	Message     string `json:"message,omitempty"`
}

// PollTarget is what status checks should ask about
func (r SubmitResult) PollTarget() string {
	if r.StatusToken != "" {
		return r.StatusToken
	}
	return r.ResultURL
}

// StatusResult is one answer of the status endpoint
type StatusResult struct {
	Ready        bool      `json:"ready"`
	Success      bool      `json:"success"`
	ResultURL    string    `json:"result_url,omitempty"`
	ProcessedURL string    `json:"processed_url,omitempty"`
	EnhancedURL  string    `json:"enhanced_url,omitempty"`
	ErrorKind    ErrorKind `json:"error_kind,omitempty"`
	Message      string    `json:"message,omitempty"`
}

// ResolvedURL returns the server-confirmed URL, preferring processed over enhanced over result.
func (s StatusResult) ResolvedURL() string {
	switch {
	case s.ProcessedURL != "":
		return s.ProcessedURL
	case s.EnhancedURL != "":
		return s.EnhancedURL
	}
	return s.ResultURL
}

// Service is the two-operation contract of the processing service
type Service interface {
	Submit(ctx context.Context, req SubmitRequest) (*SubmitResult, error)
	Status(ctx context.Context, target string) (*StatusResult, error)
}
