package models

import (
	"fmt"
	"time"
)

// Kind identifies the class of a transformation
type Kind string

const (
	KindEnhancement       Kind = "enhancement"
	KindBackgroundRemoval Kind = "background-removal"
	KindQuality           Kind = "quality"
	KindFormat            Kind = "format"
	KindRotate            Kind = "rotate"
	KindCrop              Kind = "crop"
	KindFlip              Kind = "flip"
)

// IsAsyncClass reports whether the remote service may process this kind asynchronously
func (k Kind) IsAsyncClass() bool {
	return k == KindEnhancement || k == KindBackgroundRemoval
}

// IsRemote reports whether the kind requires a submit call to the processing service
func (k Kind) IsRemote() bool {
	return k.IsAsyncClass()
}

// Valid reports whether k is a known kind
func (k Kind) Valid() bool {
	switch k {
	case KindEnhancement, KindBackgroundRemoval, KindQuality, KindFormat, KindRotate, KindCrop, KindFlip:
		return true
	}
	return false
}

// LifecycleState is the single source of truth for an entry's progress.
type LifecycleState string

const (
	StatePending    LifecycleState = "pending"
	StateProcessing LifecycleState = "processing"
	StateCompleted  LifecycleState = "completed"
	StateFailed     LifecycleState = "failed"
)

// Terminal reports whether no further transition is expected
func (s LifecycleState) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// FlipAxis is the flip state carried by a flip fragment
type FlipAxis string

const (
	FlipNone       FlipAxis = ""
	FlipHorizontal FlipAxis = "h"
	FlipVertical   FlipAxis = "v"
	FlipBoth       FlipAxis = "h_v"
)

// Toggle applies a single-axis flip on top of the current state
func (f FlipAxis) Toggle(axis FlipAxis) FlipAxis {
	h := f == FlipHorizontal || f == FlipBoth
	v := f == FlipVertical || f == FlipBoth
	switch axis {
	case FlipHorizontal:
		h = !h
	case FlipVertical:
		v = !v
	}
	switch {
	case h && v:
		return FlipBoth
	case h:
		return FlipHorizontal
	case v:
		return FlipVertical
	}
	return FlipNone
}

// Params is the kind-specific payload used to synthesize fragments when no result URL exists.
// Only the fields relevant to Kind are set.
type Params struct {
	Degrees     int      `json:"degrees,omitempty"`
	Flip        FlipAxis `json:"flip,omitempty"`
	Width       int      `json:"width,omitempty"`
	Height      int      `json:"height,omitempty"`
	AspectRatio string   `json:"aspect_ratio,omitempty"`
	Quality     int      `json:"quality,omitempty"`
	Format      string   `json:"format,omitempty"`
	Auto        bool     `json:"auto,omitempty"`
}

// Transformation is one entry of the editing history
type Transformation struct {
	ID        string         `json:"id"`
	Kind      Kind           `json:"kind"`
	Label     string         `json:"label"`
	State     LifecycleState `json:"state"`
	ResultURL string         `json:"result_url,omitempty"`
	Reason    string         `json:"reason,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	Params    *Params        `json:"params,omitempty"`
}

// Processing reports whether the entry is still waiting on the processing service
func (t Transformation) Processing() bool {
	return t.State == StateProcessing
}

// Completed reports whether the entry contributes to the working URL
func (t Transformation) Completed() bool {
	return t.State == StateCompleted
}

// Validate enforces that a completed entry is reconstructable
func (t Transformation) Validate() error {
	if !t.Kind.Valid() {
		return fmt.Errorf("unknown transformation kind %q", t.Kind)
	}
	if t.State == StateCompleted && t.ResultURL == "" && t.Params == nil {
		return fmt.Errorf("completed transformation %s has neither result URL nor params", t.ID)
	}
	return nil
}

// Patch is a partial update applied to a history entry. Nil fields are left unchanged.
type Patch struct {
	State     *LifecycleState
	ResultURL *string
	Reason    *string
	Label     *string
}

// CompletedPatch marks an entry completed with the given URL
func CompletedPatch(resultURL string) Patch {
	state := StateCompleted
	return Patch{State: &state, ResultURL: &resultURL}
}

// FailedPatch marks an entry failed with a reason
func FailedPatch(reason string) Patch {
	state := StateFailed
	return Patch{State: &state, Reason: &reason}
}

// CropSpec is the user's crop request
type CropSpec struct {
	AspectRatio string `json:"aspect_ratio"`
	Width       int    `json:"width,omitempty"`
	Height      int    `json:"height,omitempty"`
}
