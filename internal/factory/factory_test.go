package factory

import (
	"context"
	"testing"

	"go-image-editor/internal/config"
	"go-image-editor/internal/storage"
)

func TestStorageFactory_CreateStorage(t *testing.T) {
	f := NewStorageFactory(storage.NewHTTPImageFetcher())

	tests := []struct {
		name        string
		cfg         config.StorageConfig
		wantBackend string
		wantErr     bool
	}{
		{name: "disabled", cfg: config.StorageConfig{Backend: config.StorageNone}},
		{name: "empty means disabled", cfg: config.StorageConfig{}},
		{
			name: "s3 with static keys",
			cfg: config.StorageConfig{
				Backend:       config.StorageS3,
				S3Bucket:      "images",
				S3Region:      "us-east-1",
				S3Endpoint:    "http://localhost:9000",
				S3AccessKeyID: "minio",
				S3SecretKey:   "minio123",
			},
			wantBackend: "s3",
		},
		{name: "s3 without bucket", cfg: config.StorageConfig{Backend: config.StorageS3, S3Region: "us-east-1"}, wantErr: true},
		{name: "unknown", cfg: config.StorageConfig{Backend: "local"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend, err := f.CreateStorage(context.Background(), tt.cfg)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got backend %v", backend)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.wantBackend == "" {
				if backend != nil {
					t.Fatalf("expected no backend, got %s", backend.Name())
				}
				return
			}
			if backend == nil || backend.Name() != tt.wantBackend {
				t.Fatalf("expected %s backend, got %v", tt.wantBackend, backend)
			}
		})
	}
}

func TestVerifierFactory_Disabled(t *testing.T) {
	f := NewVerifierFactory(storage.NewHTTPImageFetcher())
	v, err := f.CreateVerifier(config.VerifyConfig{Enabled: false})
	if err != nil || v != nil {
		t.Fatalf("expected nil verifier, got %v, %v", v, err)
	}
}

func TestVerifierFactory_Enabled(t *testing.T) {
	f := NewVerifierFactory(storage.NewHTTPImageFetcher())
	v, err := f.CreateVerifier(config.VerifyConfig{Enabled: true, Workers: 1})
	if err != nil || v == nil {
		t.Fatalf("expected verifier, got %v, %v", v, err)
	}
	v.Close()
}
