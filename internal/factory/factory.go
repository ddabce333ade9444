package factory

import (
	"context"
	"fmt"

	"go-image-editor/internal/config"
	"go-image-editor/internal/storage"
	"go-image-editor/internal/verify"
)

// StorageFactory creates storage backends
type StorageFactory interface {
	CreateStorage(ctx context.Context, cfg config.StorageConfig) (storage.Backend, error)
}

// VerifierFactory creates the optional result verifier
type VerifierFactory interface {
	CreateVerifier(cfg config.VerifyConfig) (*verify.Service, error)
}

// storageFactory implements StorageFactory
type storageFactory struct {
	fetcher storage.ImageFetcher
}

// NewStorageFactory creates a new storage factory. Backends read source images through fetcher.
func NewStorageFactory(fetcher storage.ImageFetcher) StorageFactory {
	return &storageFactory{fetcher: fetcher}
}

// CreateStorage creates the backend selected by cfg.Backend. It returns nil, nil
// when storage is disabled.
func (f *storageFactory) CreateStorage(ctx context.Context, cfg config.StorageConfig) (storage.Backend, error) {
	switch cfg.Backend {
	case config.StorageNone, "":
		return nil, nil
	case config.StorageAzure:
		return storage.NewAzureStorage(cfg.AzureAccount, cfg.AzureKey, cfg.AzureContainer, f.fetcher)
	case config.StorageS3:
		s3cfg := storage.S3Config{
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			Endpoint:        cfg.S3Endpoint,
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretKey,
			PublicBaseURL:   cfg.S3PublicURL,
		}
		client, err := storage.NewS3Client(ctx, s3cfg)
		if err != nil {
			return nil, err
		}
		return storage.NewS3Storage(client, s3cfg, f.fetcher)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Backend)
	}
}

// verifierFactory implements VerifierFactory
type verifierFactory struct {
	fetcher storage.ImageFetcher
}

// NewVerifierFactory creates a new verifier factory
func NewVerifierFactory(fetcher storage.ImageFetcher) VerifierFactory {
	return &verifierFactory{fetcher: fetcher}
}

// CreateVerifier returns nil, nil when verification is disabled
func (f *verifierFactory) CreateVerifier(cfg config.VerifyConfig) (*verify.Service, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	var opts []verify.Option
	if cfg.OCR {
		opts = append(opts, verify.WithOCR(verify.NewTesseractOCR()))
	}
	return verify.NewService(f.fetcher, cfg.Workers, opts...), nil
}

// ComponentFactory combines all factories
type ComponentFactory struct {
	StorageFactory  StorageFactory
	VerifierFactory VerifierFactory
}

// NewComponentFactory creates a new component factory
func NewComponentFactory(fetcher storage.ImageFetcher) *ComponentFactory {
	return &ComponentFactory{
		StorageFactory:  NewStorageFactory(fetcher),
		VerifierFactory: NewVerifierFactory(fetcher),
	}
}
