package container

import (
	"context"
	"fmt"
	"net/http"

	"go-image-editor/internal/config"
	"go-image-editor/internal/editor"
	"go-image-editor/internal/factory"
	"go-image-editor/internal/logger"
	"go-image-editor/internal/observer"
	"go-image-editor/internal/poller"
	"go-image-editor/internal/remote"
	"go-image-editor/internal/repository"
	"go-image-editor/internal/service"
	"go-image-editor/internal/storage"
	"go-image-editor/internal/transport"
	"go-image-editor/internal/verify"
	"go-image-editor/pkg/validation"
)

// Container holds all application dependencies
type Container struct {
	config          *config.Config
	imageFetcher    storage.ImageFetcher
	imageRepository repository.ImageRepository
	storage         storage.Backend
	verifier        *verify.Service
	events          *observer.EventPublisher
	metrics         *observer.MetricsObserver
	editorService   service.EditorService
	janitor         *service.Janitor
	handler         http.Handler
}

// NewContainer creates a new dependency injection container
func NewContainer(ctx context.Context, cfg *config.Config) (*Container, error) {
	if cfg == nil {
		loaded, err := config.LoadFromEnv()
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		cfg = loaded
	}
	logger.SetLevel(cfg.LogLevel)

	// Build dependency graph
	imageFetcher := storage.NewHTTPImageFetcher()
	validator := validation.NewURLValidatorWithOptions([]string{"http", "https"}, cfg.AllowedImageHosts)
	imageRepository := repository.NewHTTPImageRepository(imageFetcher, validator)
	processing := remote.NewHTTPClient(cfg.Processing.ServiceURL, cfg.Processing.SubmitTimeout, cfg.Processing.StatusTimeout)

	components := factory.NewComponentFactory(imageFetcher)
	backend, err := components.StorageFactory.CreateStorage(ctx, cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage backend: %w", err)
	}
	verifier, err := components.VerifierFactory.CreateVerifier(cfg.Verify)
	if err != nil {
		return nil, fmt.Errorf("failed to create result verifier: %w", err)
	}

	events := observer.NewEventPublisher()
	metrics := observer.NewMetricsObserver()
	events.Subscribe(observer.NewLoggingObserver(logger.Logger))
	events.Subscribe(metrics)

	deps := service.Dependencies{
		Remote: processing,
		Poll: poller.Policy{
			Interval:             cfg.Poll.Interval,
			MaxAttempts:          cfg.Poll.MaxAttempts,
			MaxConsecutiveErrors: cfg.Poll.MaxConsecutiveErrors,
		},
		Images:   imageRepository,
		Sessions: repository.NewInMemorySessionRepository(cfg.Sessions.MaxActive),
		Storage:  backend,
		Events:   events,
		IdleTTL:  cfg.Sessions.IdleTTL,
	}
	// a nil *verify.Service must not become a non-nil interface
	if verifier != nil {
		deps.Verifier = editor.Verifier(verifier)
	}
	editorService := service.NewEditorService(deps)

	janitor, err := service.NewJanitor(editorService, cfg.Sessions.SweepSchedule)
	if err != nil {
		if verifier != nil {
			verifier.Close()
		}
		return nil, err
	}

	handler := transport.NewHandler(editorService, metrics, cfg)

	backendName := config.StorageNone
	if backend != nil {
		backendName = backend.Name()
	}
	logger.ForComponent("container").WithField("storage", backendName).
		WithField("verification", verifier != nil).
		Info("Dependencies initialized")

	return &Container{
		config:          cfg,
		imageFetcher:    imageFetcher,
		imageRepository: imageRepository,
		storage:         backend,
		verifier:        verifier,
		events:          events,
		metrics:         metrics,
		editorService:   editorService,
		janitor:         janitor,
		handler:         handler,
	}, nil
}

// Start launches background jobs
func (c *Container) Start() error {
	return c.janitor.Start()
}

// Shutdown stops background jobs and closes every session
func (c *Container) Shutdown() {
	if err := c.janitor.Stop(); err != nil {
		logger.WithError(err).Debug("Janitor was not running")
	}
	c.editorService.Shutdown()
	if c.verifier != nil {
		c.verifier.Close()
	}
}

// Handler returns the HTTP handler
func (c *Container) Handler() http.Handler {
	return c.handler
}

// Config returns the configuration
func (c *Container) Config() *config.Config {
	return c.config
}

// EditorService returns the session service
func (c *Container) EditorService() service.EditorService {
	return c.editorService
}
