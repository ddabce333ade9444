package container

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"go-image-editor/internal/config"
)

func TestNewContainer_Defaults(t *testing.T) {
	gin.SetMode(gin.TestMode)

	c, err := NewContainer(context.Background(), config.Default())
	if err != nil {
		t.Fatalf("Failed to build container: %v", err)
	}
	if err := c.Start(); err != nil {
		t.Fatalf("Failed to start janitor: %v", err)
	}
	defer c.Shutdown()

	if c.storage != nil {
		t.Errorf("Expected no storage backend by default")
	}
	if c.verifier != nil {
		t.Errorf("Expected verification to be disabled by default")
	}

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	c.Handler().ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("Expected 200 from /health, got %d", w.Code)
	}
}

func TestNewContainer_InvalidSchedule(t *testing.T) {
	cfg := config.Default()
	cfg.Sessions.SweepSchedule = "every now and then"

	if _, err := NewContainer(context.Background(), cfg); err == nil {
		t.Fatal("Expected an error for an invalid sweep schedule")
	}
}

func TestNewContainer_VerifierEnabled(t *testing.T) {
	cfg := config.Default()
	cfg.Verify.Enabled = true
	cfg.Verify.Workers = 1

	c, err := NewContainer(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Failed to build container: %v", err)
	}
	defer c.Shutdown()

	if c.verifier == nil {
		t.Fatal("Expected a verifier when verification is enabled")
	}
}
