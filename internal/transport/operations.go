package transport

import (
	"context"

	"github.com/gin-gonic/gin"

	"go-image-editor/internal/editor"
	apperrors "go-image-editor/internal/errors"
	"go-image-editor/pkg/models"
)

// bind decodes the JSON body, mapping binding failures to validation errors
func bind(c *gin.Context, obj interface{}) error {
	if err := c.ShouldBindJSON(obj); err != nil {
		return apperrors.NewValidationError("invalid request format", err)
	}
	return nil
}

func getSnapshot(_ context.Context, _ *gin.Context, s *editor.Session) (models.SessionSnapshot, error) {
	return s.Snapshot(), nil
}

func loadImage(_ context.Context, c *gin.Context, s *editor.Session) (models.SessionSnapshot, error) {
	var req models.LoadImageRequest
	if err := bind(c, &req); err != nil {
		return models.SessionSnapshot{}, err
	}
	return s.LoadImage(req.AssetID, req.ImageURL)
}

func setImageState(_ context.Context, c *gin.Context, s *editor.Session) (models.SessionSnapshot, error) {
	var req models.ImageStateRequest
	if err := bind(c, &req); err != nil {
		return models.SessionSnapshot{}, err
	}
	switch req.State {
	case "loading":
		return s.MarkImageLoading()
	case "loaded":
		return s.MarkImageLoaded()
	default:
		return s.MarkImageFailed()
	}
}

func enhance(ctx context.Context, c *gin.Context, s *editor.Session) (models.SessionSnapshot, error) {
	var req models.EnhanceRequest
	if c.Request.ContentLength > 0 {
		if err := bind(c, &req); err != nil {
			return models.SessionSnapshot{}, err
		}
	}
	if auto := c.Query("auto"); auto != "" {
		req.Auto = auto == "true"
	}
	return s.Enhance(ctx, req.Auto)
}

func removeBackground(ctx context.Context, _ *gin.Context, s *editor.Session) (models.SessionSnapshot, error) {
	return s.RemoveBackground(ctx)
}

func rotate(_ context.Context, c *gin.Context, s *editor.Session) (models.SessionSnapshot, error) {
	var req models.RotateRequest
	if err := bind(c, &req); err != nil {
		return models.SessionSnapshot{}, err
	}
	return s.Rotate(req.Degrees)
}

func flip(_ context.Context, c *gin.Context, s *editor.Session) (models.SessionSnapshot, error) {
	var req models.FlipRequest
	if err := bind(c, &req); err != nil {
		return models.SessionSnapshot{}, err
	}
	return s.Flip(req.Axis)
}

func crop(_ context.Context, c *gin.Context, s *editor.Session) (models.SessionSnapshot, error) {
	var req models.CropSpec
	if err := bind(c, &req); err != nil {
		return models.SessionSnapshot{}, err
	}
	return s.Crop(req)
}

func quality(_ context.Context, c *gin.Context, s *editor.Session) (models.SessionSnapshot, error) {
	var req models.QualityRequest
	if err := bind(c, &req); err != nil {
		return models.SessionSnapshot{}, err
	}
	return s.Quality(req.Quality)
}

func format(_ context.Context, c *gin.Context, s *editor.Session) (models.SessionSnapshot, error) {
	var req models.FormatRequest
	if err := bind(c, &req); err != nil {
		return models.SessionSnapshot{}, err
	}
	return s.Format(req.Format)
}

func undo(_ context.Context, _ *gin.Context, s *editor.Session) (models.SessionSnapshot, error) {
	return s.Undo()
}

func redo(_ context.Context, _ *gin.Context, s *editor.Session) (models.SessionSnapshot, error) {
	return s.Redo()
}

func reset(_ context.Context, _ *gin.Context, s *editor.Session) (models.SessionSnapshot, error) {
	return s.Reset()
}
