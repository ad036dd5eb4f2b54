package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pauldavis/2brain/internal/domain"
	"github.com/pauldavis/2brain/internal/telemetry"
)

// ObjectMetadata contains metadata about a stored object.
type ObjectMetadata struct {
	ContentLength int64
	ContentType   string
	ETag          string
}

// StorageClientInterface is the blob-store surface the attachment service
// needs. Backed by S3-compatible storage in production.
type StorageClientInterface interface {
	UploadObject(ctx context.Context, key string, contentType string, body []byte) error
	GenerateDownloadURL(ctx context.Context, key string) (string, error)
	HeadObject(ctx context.Context, key string) (*ObjectMetadata, error)
}

// AttachmentRepositoryInterface covers asset lookup and storage backfill.
type AttachmentRepositoryInterface interface {
	GetAsset(ctx context.Context, id string) (*domain.SegmentAsset, error)
	ListAssetsByVersion(ctx context.Context, versionID string) ([]*domain.SegmentAsset, error)
	SetAssetStorage(ctx context.Context, id string, storageKey string, sha256 string) error
}

// AttachmentService moves attachment binaries into content-addressable
// storage and serves download URLs. Storage keys are attachments/<sha256>,
// so the same binary referenced by many segments is written once.
type AttachmentService struct {
	repo    AttachmentRepositoryInterface
	storage StorageClientInterface
}

// NewAttachmentService creates a new AttachmentService instance
func NewAttachmentService(repo AttachmentRepositoryInterface, storage StorageClientInterface) *AttachmentService {
	return &AttachmentService{repo: repo, storage: storage}
}

// GetDownloadURL returns a presigned download URL for a stored attachment.
func (s *AttachmentService) GetDownloadURL(ctx context.Context, assetID string) (string, error) {
	asset, err := s.repo.GetAsset(ctx, assetID)
	if err != nil {
		return "", err
	}
	if asset.StorageKey == "" {
		return "", domain.ErrAttachmentNotStored
	}
	return s.storage.GenerateDownloadURL(ctx, asset.StorageKey)
}

// StoreAsset uploads one attachment binary and records its storage key. The
// upload is skipped when an object with the same digest already exists.
func (s *AttachmentService) StoreAsset(ctx context.Context, assetID string, data []byte, contentType string) (string, error) {
	sum := sha256.Sum256(data)
	digest := hex.EncodeToString(sum[:])
	key := "attachments/" + digest

	if _, err := s.storage.HeadObject(ctx, key); err != nil {
		if err := s.storage.UploadObject(ctx, key, contentType, data); err != nil {
			return "", fmt.Errorf("failed to upload attachment: %w", err)
		}
	}

	if err := s.repo.SetAssetStorage(ctx, assetID, key, digest); err != nil {
		return "", err
	}
	return key, nil
}

// UploadVersionAssets reads each locally-resolved asset of a version from
// disk and stores it. Assets without a local file (unresolved source
// references) are skipped, not failed. Returns the number stored.
func (s *AttachmentService) UploadVersionAssets(ctx context.Context, versionID string, baseDir string) (int, error) {
	ctx, span := telemetry.StartSpan(ctx, "AttachmentService.UploadVersionAssets", telemetry.SpanAttributes{
		Operation: "upload_version_assets",
	})
	defer span.End()

	assets, err := s.repo.ListAssetsByVersion(ctx, versionID)
	if err != nil {
		return 0, err
	}

	stored := 0
	for _, asset := range assets {
		if asset.LocalPath == "" || asset.StorageKey != "" {
			continue
		}
		if err := ctx.Err(); err != nil {
			return stored, err
		}

		path := asset.LocalPath
		if !filepath.IsAbs(path) {
			path = filepath.Join(baseDir, path)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			// A missing binary is a source-archive defect, not an
			// ingest failure.
			telemetry.CaptureError(ctx, fmt.Errorf("attachment %s unreadable at %s: %w", asset.ID, path, err))
			continue
		}

		if _, err := s.StoreAsset(ctx, asset.ID, data, asset.MimeType); err != nil {
			return stored, err
		}
		stored++
	}
	return stored, nil
}
