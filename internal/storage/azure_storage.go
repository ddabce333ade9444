package storage

import (
	"context"
	"fmt"
	"net/url"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"

	apperrors "go-image-editor/internal/errors"
	"go-image-editor/pkg/models"
)

// AzureStore keeps images in one Azure Blob Storage container
type AzureStore struct {
	client    *azblob.Client
	container string
	fetcher   ImageFetcher
}

// NewAzureStorage creates a store authenticated with a shared key
func NewAzureStorage(accountName, accountKey, container string, fetcher ImageFetcher) (*AzureStore, error) {
	credential, err := azblob.NewSharedKeyCredential(accountName, accountKey)
	if err != nil {
		return nil, apperrors.NewInternalError("invalid azure credentials", err)
	}

	client, err := azblob.NewClientWithSharedKeyCredential(
		fmt.Sprintf("https://%s.blob.core.windows.net/", accountName),
		credential,
		nil,
	)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to create azure client", err)
	}

	return &AzureStore{client: client, container: container, fetcher: fetcher}, nil
}

// Name identifies the backend
func (s *AzureStore) Name() string { return "azure" }

// Upload stores an original image and returns its URL and asset id
func (s *AzureStore) Upload(ctx context.Context, filename, contentType string, data []byte) (*models.UploadResult, error) {
	return upload(ctx, s.put, filename, contentType, data)
}

// Persist stores the bytes behind imageURL as the final image
func (s *AzureStore) Persist(ctx context.Context, imageURL string, transformations []models.Transformation, metadata map[string]string) (*models.SaveResult, error) {
	return persist(ctx, s.fetcher, s.put, imageURL, transformations, metadata)
}

func (s *AzureStore) put(ctx context.Context, key, contentType string, data []byte, metadata map[string]string) (string, error) {
	meta := make(map[string]*string, len(metadata))
	for k, v := range metadata {
		v := v
		meta[k] = &v
	}

	_, err := s.client.UploadBuffer(ctx, s.container, key, data, &azblob.UploadBufferOptions{
		Metadata:    meta,
		HTTPHeaders: &blob.HTTPHeaders{BlobContentType: &contentType},
	})
	if err != nil {
		return "", apperrors.NewNetworkError("azure upload failed", err)
	}

	return blobURL(s.client.URL(), s.container, key), nil
}

func blobURL(serviceURL, container, key string) string {
	u, err := url.Parse(serviceURL)
	if err != nil {
		return serviceURL + container + "/" + key
	}
	return u.JoinPath(container, key).String()
}
