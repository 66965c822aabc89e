package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/google/uuid"
)

// AtlasStore persists an encoded atlas and returns a retrievable URL
type AtlasStore interface {
	Upload(ctx context.Context, data []byte, contentType string) (string, error)
}

type azureAtlasStore struct {
	client    *azblob.Client
	account   string
	container string
}

// NewAzureAtlasStore creates a blob-backed atlas store
func NewAzureAtlasStore(accountName, accountKey, container string) (AtlasStore, error) {
	credential, err := azblob.NewSharedKeyCredential(accountName, accountKey)
	if err != nil {
		return nil, err
	}

	client, err := azblob.NewClientWithSharedKeyCredential(
		fmt.Sprintf("https://%s.blob.core.windows.net", accountName),
		credential,
		nil,
	)
	if err != nil {
		return nil, err
	}

	return &azureAtlasStore{
		client:    client,
		account:   accountName,
		container: container,
	}, nil
}

// Upload writes the atlas bytes to a date-partitioned blob name
func (s *azureAtlasStore) Upload(ctx context.Context, data []byte, contentType string) (string, error) {
	ext := "jpg"
	if contentType == "image/png" {
		ext = "png"
	}
	blobName := fmt.Sprintf("%s/%s.%s", time.Now().UTC().Format("2006/01/02"), uuid.NewString(), ext)

	_, err := s.client.UploadBuffer(ctx, s.container, blobName, data, &azblob.UploadBufferOptions{
		HTTPHeaders: &blob.HTTPHeaders{
			BlobContentType: &contentType,
		},
	})
	if err != nil {
		return "", fmt.Errorf("atlas upload failed: %w", err)
	}

	return fmt.Sprintf("https://%s.blob.core.windows.net/%s/%s", s.account, s.container, blobName), nil
}
