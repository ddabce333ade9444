package models

// CreateSessionRequest starts an editing session from an already uploaded image
type CreateSessionRequest struct {
	ImageURL string `json:"image_url" binding:"required,url"`
	AssetID  string `json:"asset_id,omitempty"`
}

// LoadImageRequest swaps the base image of an existing session
type LoadImageRequest struct {
	ImageURL string `json:"image_url" binding:"required,url"`
	AssetID  string `json:"asset_id,omitempty"`
}

// EnhanceRequest selects automatic or manual enhancement
type EnhanceRequest struct {
	Auto bool `json:"auto"`
}

type RotateRequest struct {
	Degrees int `json:"degrees"`
}

type FlipRequest struct {
	Axis FlipAxis `json:"axis" binding:"required"`
}

type QualityRequest struct {
	Quality int `json:"quality" binding:"required"`
}

type FormatRequest struct {
	Format string `json:"format" binding:"required"`
}

// ImageStateRequest lets the presentation layer report image loading progress
type ImageStateRequest struct {
	State string `json:"state" binding:"required,oneof=loading loaded failed"`
}

// SaveRequest carries optional metadata for the persistence collaborator
type SaveRequest struct {
	Metadata map[string]string `json:"metadata,omitempty"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
