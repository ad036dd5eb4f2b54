//go:build integration

package repository

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pauldavis/2brain/internal/domain"
	"github.com/pauldavis/2brain/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedDocumentVersion(ctx context.Context, t *testing.T, docs *DocumentRepository, payload string) (string, string) {
	doc := seedDocument(ctx, t, docs, domain.SourceSystemChatGPT, uuid.NewString())
	version := seedVersion(ctx, t, docs, doc.ID, payload)
	return doc.ID, version.ID
}

func testSegment(versionID string, sequence int, markdown string) *domain.Segment {
	return &domain.Segment{
		ID:                uuid.NewString(),
		DocumentVersionID: versionID,
		Sequence:          sequence,
		SourceRole:        domain.RoleUser,
		SegmentType:       domain.SegmentTypeMessage,
		ContentMarkdown:   markdown,
		Plaintext:         markdown,
		QualityScore:      1.0,
		EmbeddingStatus:   domain.EmbeddingStatusPending,
	}
}

func TestSegmentRepository_CreateAndListByVersion(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	defer pool.Close()

	docs := NewDocumentRepository(pool)
	segments := NewSegmentRepository(pool)
	_, versionID := seedDocumentVersion(ctx, t, docs, "tree payload")

	root := testSegment(versionID, 1, "root message")
	started := time.Now().UTC().Truncate(time.Microsecond)
	root.StartedAt = &started
	root.RawReference = "node-root"
	require.NoError(t, segments.Create(ctx, root))

	child := testSegment(versionID, 1, "edited branch")
	child.ParentSegmentID = &root.ID
	child.SourceRole = domain.RoleAssistant
	require.NoError(t, segments.Create(ctx, child))

	listed, err := segments.ListByVersion(ctx, versionID)
	require.NoError(t, err)
	require.Len(t, listed, 2)
	assert.Equal(t, root.ID, listed[0].ID, "root segments list before children")
	assert.Equal(t, "node-root", listed[0].RawReference)
	require.NotNil(t, listed[0].StartedAt)
	assert.Equal(t, started, listed[0].StartedAt.UTC())
	require.NotNil(t, listed[1].ParentSegmentID)
	assert.Equal(t, root.ID, *listed[1].ParentSegmentID)
}

func TestSegmentRepository_SiblingSequenceUniquePerScope(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	defer pool.Close()

	docs := NewDocumentRepository(pool)
	segments := NewSegmentRepository(pool)
	_, versionID := seedDocumentVersion(ctx, t, docs, "sequence payload")

	root := testSegment(versionID, 1, "first root")
	require.NoError(t, segments.Create(ctx, root))

	// A second root with the same sequence violates the root-scope unique
	// index.
	clash := testSegment(versionID, 1, "second root")
	err := segments.Create(ctx, clash)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "idx_document_segments_root_sequence")

	// But a child of the root may start its own counter at 1.
	child := testSegment(versionID, 1, "first child")
	child.ParentSegmentID = &root.ID
	require.NoError(t, segments.Create(ctx, child))

	childClash := testSegment(versionID, 1, "second child")
	childClash.ParentSegmentID = &root.ID
	err = segments.Create(ctx, childClash)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "idx_document_segments_child_sequence")
}

func TestSegmentRepository_NonPositiveSequenceRejected(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	defer pool.Close()

	docs := NewDocumentRepository(pool)
	segments := NewSegmentRepository(pool)
	_, versionID := seedDocumentVersion(ctx, t, docs, "check payload")

	bad := testSegment(versionID, 0, "never persisted")
	err := segments.Create(ctx, bad)
	require.Error(t, err)
	assert.Contains(t, strings.ToLower(err.Error()), "check")
}

func TestSegmentRepository_DuplicateContentChecksumAllowed(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	defer pool.Close()

	docs := NewDocumentRepository(pool)
	segments := NewSegmentRepository(pool)
	_, versionID := seedDocumentVersion(ctx, t, docs, "dup payload")

	checksum := []byte{0x01, 0x02, 0x03, 0x04}
	first := testSegment(versionID, 1, "ok")
	first.ContentChecksum = checksum
	second := testSegment(versionID, 2, "ok")
	second.ContentChecksum = checksum

	require.NoError(t, segments.Create(ctx, first))
	require.NoError(t, segments.Create(ctx, second))

	listed, err := segments.ListByVersion(ctx, versionID)
	require.NoError(t, err)
	assert.Len(t, listed, 2)
	assert.Equal(t, checksum, listed[0].ContentChecksum)
	assert.Equal(t, checksum, listed[1].ContentChecksum)
}

func TestSegmentRepository_EmbeddingLifecycle(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	defer pool.Close()

	docs := NewDocumentRepository(pool)
	segments := NewSegmentRepository(pool)
	_, versionID := seedDocumentVersion(ctx, t, docs, "embedding payload")

	pending := testSegment(versionID, 1, "embed me")
	skipped := testSegment(versionID, 2, "")
	skipped.IsNoise = true
	skipped.EmbeddingStatus = domain.EmbeddingStatusSkipped
	require.NoError(t, segments.Create(ctx, pending))
	require.NoError(t, segments.Create(ctx, skipped))

	queue, err := segments.ListPending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, queue, 1)
	assert.Equal(t, pending.ID, queue[0].ID)

	embedding := make([]float32, 1536)
	embedding[0] = 0.5
	require.NoError(t, segments.UpdateEmbedding(ctx, pending.ID, embedding))

	updated, err := segments.GetByID(ctx, pending.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.EmbeddingStatusReady, updated.EmbeddingStatus)

	queue, err = segments.ListPending(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, queue)

	err = segments.UpdateEmbedding(ctx, uuid.NewString(), embedding)
	assert.ErrorIs(t, err, domain.ErrSegmentNotFound)

	err = segments.UpdateStatus(ctx, uuid.NewString(), domain.EmbeddingStatusFailed)
	assert.ErrorIs(t, err, domain.ErrSegmentNotFound)
}

func TestSegmentRepository_BlocksAssetsAnnotations(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	defer pool.Close()

	docs := NewDocumentRepository(pool)
	segments := NewSegmentRepository(pool)
	_, versionID := seedDocumentVersion(ctx, t, docs, "children payload")

	segment := testSegment(versionID, 1, "```go\nfmt.Println(\"hi\")\n```")
	require.NoError(t, segments.Create(ctx, segment))

	block := &domain.SegmentBlock{
		ID:        uuid.NewString(),
		SegmentID: segment.ID,
		Sequence:  1,
		BlockType: domain.BlockTypeCode,
		Language:  "go",
		Body:      `fmt.Println("hi")`,
	}
	require.NoError(t, segments.CreateBlock(ctx, block))

	dupBlock := &domain.SegmentBlock{
		ID:        uuid.NewString(),
		SegmentID: segment.ID,
		Sequence:  1,
		BlockType: domain.BlockTypeMarkdown,
		Body:      "clash",
	}
	err := segments.CreateBlock(ctx, dupBlock)
	require.Error(t, err, "block sequence must be unique within a segment")

	asset := &domain.SegmentAsset{
		ID:              uuid.NewString(),
		SegmentID:       segment.ID,
		AssetType:       domain.AssetTypeImage,
		FileName:        "diagram.png",
		MimeType:        "image/png",
		SizeBytes:       2048,
		LocalPath:       "attachments/diagram.png",
		SourceReference: "file-abc123",
	}
	require.NoError(t, segments.CreateAsset(ctx, asset))

	annotation := &domain.SegmentAnnotation{
		ID:             uuid.NewString(),
		SegmentID:      segment.ID,
		AnnotationType: "summary",
		Payload:        map[string]any{"text": "prints hi"},
	}
	require.NoError(t, segments.CreateAnnotation(ctx, annotation))

	blocks, err := segments.ListBlocksByVersion(ctx, versionID)
	require.NoError(t, err)
	require.Len(t, blocks, 1)
	assert.Equal(t, "go", blocks[0].Language)

	assets, err := segments.ListAssetsByVersion(ctx, versionID)
	require.NoError(t, err)
	require.Len(t, assets, 1)
	assert.Equal(t, int64(2048), assets[0].SizeBytes)

	annotations, err := segments.ListAnnotationsByVersion(ctx, versionID)
	require.NoError(t, err)
	require.Len(t, annotations, 1)
	assert.Equal(t, "prints hi", annotations[0].Payload["text"])
}

func TestSegmentRepository_AssetStorageUpdate(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	defer pool.Close()

	docs := NewDocumentRepository(pool)
	segments := NewSegmentRepository(pool)
	_, versionID := seedDocumentVersion(ctx, t, docs, "asset payload")

	segment := testSegment(versionID, 1, "see attachment")
	require.NoError(t, segments.Create(ctx, segment))

	asset := &domain.SegmentAsset{
		ID:        uuid.NewString(),
		SegmentID: segment.ID,
		AssetType: domain.AssetTypeFile,
		FileName:  "notes.txt",
	}
	require.NoError(t, segments.CreateAsset(ctx, asset))

	require.NoError(t, segments.SetAssetStorage(ctx, asset.ID, "attachments/deadbeef", "deadbeef"))

	retrieved, err := segments.GetAsset(ctx, asset.ID)
	require.NoError(t, err)
	assert.Equal(t, "attachments/deadbeef", retrieved.StorageKey)
	assert.Equal(t, "deadbeef", retrieved.SHA256)

	_, err = segments.GetAsset(ctx, uuid.NewString())
	assert.ErrorIs(t, err, domain.ErrAttachmentNotFound)
}
