package repository

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-image-editor/internal/editor"
	apperrors "go-image-editor/internal/errors"
	"go-image-editor/internal/storage"
	"go-image-editor/pkg/validation"
)

func newSession(id string, at time.Time) *editor.Session {
	return editor.New(id, editor.Deps{Clock: func() time.Time { return at }})
}

func TestInMemorySessionRepository_CRUD(t *testing.T) {
	repo := NewInMemorySessionRepository(0)
	s := newSession("s1", time.Now())

	require.NoError(t, repo.Save(s))
	assert.ErrorIs(t, repo.Save(s), ErrSessionExists)
	assert.Equal(t, 1, repo.Count())
	assert.Len(t, repo.List(), 1)

	got, err := repo.Get("s1")
	require.NoError(t, err)
	assert.Same(t, s, got)

	_, err = repo.Get("missing")
	assert.True(t, errors.Is(err, ErrSessionNotFound))

	deleted, err := repo.Delete("s1")
	require.NoError(t, err)
	assert.Same(t, s, deleted)
	_, err = repo.Delete("s1")
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.Zero(t, repo.Count())
}

func TestInMemorySessionRepository_Limit(t *testing.T) {
	repo := NewInMemorySessionRepository(1)
	require.NoError(t, repo.Save(newSession("a", time.Now())))
	assert.ErrorIs(t, repo.Save(newSession("b", time.Now())), ErrRepositoryFull)
}

func TestInMemorySessionRepository_IdleSince(t *testing.T) {
	repo := NewInMemorySessionRepository(0)
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, repo.Save(newSession("old", base.Add(-time.Hour))))
	require.NoError(t, repo.Save(newSession("fresh", base)))

	idle := repo.IdleSince(base.Add(-30 * time.Minute))
	require.Len(t, idle, 1)
	assert.Equal(t, "old", idle[0].ID())
}

func TestHTTPImageRepository(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/jpeg")
		w.Write([]byte{0xFF, 0xD8, 0xFF})
	}))
	defer server.Close()

	repo := NewHTTPImageRepository(storage.NewHTTPImageFetcher(), nil)

	data, err := repo.Fetch(context.Background(), server.URL+"/a.jpg")
	require.NoError(t, err)
	assert.Equal(t, "image/jpeg", data.ContentType)
	assert.Len(t, data.Data, 3)

	_, err = repo.Fetch(context.Background(), "ftp://example.com/a.jpg")
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeValidation))
}

func TestHTTPImageRepository_RestrictedHosts(t *testing.T) {
	validator := validation.NewURLValidatorWithOptions([]string{"https"}, []string{"*.imagekit.io"})
	repo := NewHTTPImageRepository(storage.NewHTTPImageFetcher(), validator)

	assert.NoError(t, repo.ValidateImageURL("https://ik.imagekit.io/demo/a.jpg"))
	assert.Error(t, repo.ValidateImageURL("https://example.com/a.jpg"))
}
