package models

import "time"

// WorkingImage is the presentation-facing image state
type WorkingImage struct {
	OriginalURL string `json:"original_url"`
	CurrentURL  string `json:"current_url"`
	AssetID     string `json:"asset_id,omitempty"`
	IsLoading   bool   `json:"is_loading"`
	HasError    bool   `json:"has_error"`
}

// PollStatus describes the active poll session, if any
type PollStatus struct {
	SessionID        string `json:"session_id"`
	TargetURL        string `json:"target_url"`
	TransformationID string `json:"transformation_id,omitempty"`
	Kind             Kind   `json:"kind,omitempty"`
	AttemptsMade     int    `json:"attempts_made"`
}

// SessionSnapshot is an immutable view of one editing session
type SessionSnapshot struct {
	ID                  string                        `json:"id"`
	Image               WorkingImage                  `json:"image"`
	History             []Transformation              `json:"history"`
	Cursor              int                           `json:"cursor"`
	CanPerformOperation bool                          `json:"can_perform_operation"`
	OperationInProgress bool                          `json:"operation_in_progress"`
	Processing          bool                          `json:"processing"`
	CanUndo             bool                          `json:"can_undo"`
	CanRedo             bool                          `json:"can_redo"`
	Poll                *PollStatus                   `json:"poll,omitempty"`
	Verifications       map[string]VerificationReport `json:"verifications,omitempty"`
	UpdatedAt           time.Time                     `json:"updated_at"`
}

// UploadResult is what the upload collaborator returns
type UploadResult struct {
	URL     string `json:"url"`
	AssetID string `json:"asset_id"`
}

// SaveResult is what the persistence collaborator returns
type SaveResult struct {
	SavedURL string `json:"saved_url"`
}

// ImageData is a fetched image
type ImageData struct {
	URL         string `json:"url"`
	ContentType string `json:"content_type"`
	Data        []byte `json:"-"`
}
