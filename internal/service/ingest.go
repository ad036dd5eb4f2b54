package service

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pauldavis/2brain/internal/adapter"
	"github.com/pauldavis/2brain/internal/domain"
	"github.com/pauldavis/2brain/internal/telemetry"
)

// DocumentRepositoryInterface defines the repository interface for document
// and version persistence.
type DocumentRepositoryInterface interface {
	// Upsert returns the document row's id and whether the row was newly
	// inserted (false means the source key was seen before).
	Upsert(ctx context.Context, d *domain.Document) (string, bool, error)
	// CreateVersion inserts a version and reports whether a row was
	// created. false means a version with this (document, checksum)
	// already exists and the write set must be discarded.
	CreateVersion(ctx context.Context, v *domain.DocumentVersion) (bool, error)
}

// SegmentRepositoryInterface defines the repository interface for segment
// tree persistence.
type SegmentRepositoryInterface interface {
	Create(ctx context.Context, s *domain.Segment) error
	CreateBlock(ctx context.Context, b *domain.SegmentBlock) error
	CreateAsset(ctx context.Context, a *domain.SegmentAsset) error
	CreateAnnotation(ctx context.Context, a *domain.SegmentAnnotation) error
}

// UUIDGenerator defines interface for UUID generation (for testing)
type UUIDGenerator interface {
	NewString() string
}

// DefaultUUIDGenerator is the default UUID generator using google/uuid
type DefaultUUIDGenerator struct{}

// NewString generates a new UUID string
func (g *DefaultUUIDGenerator) NewString() string {
	return uuid.NewString()
}

// PersistResult reports the outcome of persisting one document.
type PersistResult struct {
	DocumentID string
	VersionID  string
	// Created is false when an identical version already existed and the
	// ingest was a no-op.
	Created bool
	// DocumentCreated is true when the document row itself was new; a
	// Created version on a pre-existing document is an update.
	DocumentCreated bool
}

// DocumentOutcome is the per-document entry in a batch report.
type DocumentOutcome struct {
	ExternalID string
	SourcePath string
	Result     *PersistResult
	Err        error
}

// BatchReport summarizes one batch ingestion run.
type BatchReport struct {
	BatchID   string
	Succeeded int
	Skipped   int
	Failed    int
	Outcomes  []DocumentOutcome
}

// IngestService runs the normalization pipeline: checksum computation,
// sequence assignment, quality scoring, and transactional persistence of
// parsed conversations.
type IngestService struct {
	txRunner TxRunner
	uuidGen  UUIDGenerator
	now      func() time.Time
}

// NewIngestService creates a new IngestService instance
func NewIngestService(txRunner TxRunner) *IngestService {
	return &IngestService{
		txRunner: txRunner,
		uuidGen:  &DefaultUUIDGenerator{},
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// NewIngestServiceWithUUIDGen creates a new IngestService with a custom UUID
// generator (for testing)
func NewIngestServiceWithUUIDGen(txRunner TxRunner, uuidGen UUIDGenerator) *IngestService {
	return &IngestService{
		txRunner: txRunner,
		uuidGen:  uuidGen,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// IngestBatch ingests all conversations of one export under a shared batch
// id. Every document gets its own transaction; one failing document is
// recorded and skipped without affecting its siblings. Context cancellation
// stops the batch between documents, and a storage connectivity failure
// aborts the remaining batch outright.
func (s *IngestService) IngestBatch(ctx context.Context, conversations []adapter.Conversation, meta domain.IngestMetadata) (*BatchReport, error) {
	if meta.BatchID == "" {
		meta.BatchID = s.uuidGen.NewString()
	}

	ctx, span := telemetry.StartSpan(ctx, "IngestService.IngestBatch", telemetry.SpanAttributes{
		BatchID:   meta.BatchID,
		Operation: "ingest_batch",
	})
	defer span.End()

	report := &BatchReport{BatchID: meta.BatchID}
	for _, conversation := range conversations {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		outcome := DocumentOutcome{
			ExternalID: conversation.Document.ExternalID,
			SourcePath: conversation.Document.SourcePath,
		}

		result, err := s.IngestDocument(ctx, conversation, meta)
		switch {
		case err != nil:
			outcome.Err = err
			report.Failed++
			telemetry.CaptureError(ctx, err)
		case !result.Created:
			outcome.Result = result
			report.Skipped++
		default:
			outcome.Result = result
			report.Succeeded++
		}
		report.Outcomes = append(report.Outcomes, outcome)

		if err != nil && storeUnavailable(err) {
			return report, err
		}
	}
	return report, nil
}

// storeUnavailable reports whether an ingest failure means the store itself
// is unreachable rather than one document being bad. Parse and validation
// errors are always per-document; for storage errors the underlying cause
// decides: timeouts, network failures, and Postgres connection or shutdown
// classes abort the batch, while constraint violations stay isolated.
func storeUnavailable(err error) bool {
	var domainErr *domain.DomainError
	if errors.As(err, &domainErr) && domainErr.Code != domain.ErrCodeStorage {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	if pgconn.Timeout(err) || pgconn.SafeToRetry(err) {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// 08 = connection exception, 53 = insufficient resources,
		// 57 = operator intervention (server shutdown).
		switch {
		case strings.HasPrefix(pgErr.Code, "08"),
			strings.HasPrefix(pgErr.Code, "53"),
			strings.HasPrefix(pgErr.Code, "57"):
			return true
		}
	}
	return false
}

// IngestDocument runs the full pipeline for one conversation: payload
// checksum, sequence assignment, content checksums, quality scoring, then a
// single transaction covering the document upsert, version insert, and
// segment tree. A checksum-identical re-ingest returns Created=false and
// writes nothing beyond the document upsert.
func (s *IngestService) IngestDocument(ctx context.Context, conversation adapter.Conversation, meta domain.IngestMetadata) (*PersistResult, error) {
	if conversation.Err != nil {
		return nil, conversation.Err
	}

	parsed := conversation.Document
	ctx, span := telemetry.StartSpan(ctx, "IngestService.IngestDocument", telemetry.SpanAttributes{
		SourceSystem: string(parsed.SourceSystem),
		BatchID:      meta.BatchID,
		Operation:    "ingest_document",
	})
	defer span.End()

	if parsed.ExternalID == "" {
		return nil, domain.ErrMissingExternalID
	}
	if parsed.RawPayload == nil {
		return nil, domain.ErrMissingRawPayload
	}

	checksum, err := PayloadChecksum(parsed.RawPayload)
	if err != nil {
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeValidation, "payload checksum failed", err)
	}

	// The id is a candidate; Upsert returns the existing row's id when this
	// (source_system, external_id) was seen before.
	document := &domain.Document{
		ID:           s.uuidGen.NewString(),
		SourceSystem: parsed.SourceSystem,
		ExternalID:   parsed.ExternalID,
		Title:        parsed.Title,
		Summary:      parsed.Summary,
		CreatedAt:    parsed.CreatedAt,
		UpdatedAt:    parsed.UpdatedAt,
		RawMetadata:  parsed.RawMetadata,
	}
	if err := domain.ValidateDocument(document); err != nil {
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeValidation, "invalid document", err)
	}

	version := &domain.DocumentVersion{
		ID:            s.uuidGen.NewString(),
		IngestedAt:    s.now(),
		SourcePath:    parsed.SourcePath,
		Checksum:      checksum,
		RawPayload:    parsed.RawPayload,
		IngestBatchID: meta.BatchID,
		IngestedBy:    meta.Operator,
		IngestSource:  meta.Source,
		IngestVersion: meta.Version,
	}

	writeSet, err := s.buildWriteSet(version.ID, conversation.Segments)
	if err != nil {
		return nil, err
	}

	result := &PersistResult{VersionID: version.ID}
	err = s.txRunner.WithTx(ctx, func(repos TxRepositories) error {
		documentID, documentCreated, err := repos.Documents().Upsert(ctx, document)
		if err != nil {
			return domain.NewStorageError(err)
		}
		result.DocumentID = documentID
		result.DocumentCreated = documentCreated
		version.DocumentID = documentID

		created, err := repos.Documents().CreateVersion(ctx, version)
		if err != nil {
			return domain.NewStorageError(err)
		}
		if !created {
			// Identical payload already ingested; the document upsert
			// (title/metadata refresh) still commits.
			result.VersionID = ""
			return nil
		}
		result.Created = true

		return s.persistSegments(ctx, repos.Segments(), writeSet)
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// segmentWriteSet is the fully-normalized segment tree for one version,
// ready to persist in emission order.
type segmentWriteSet struct {
	segments    []*domain.Segment
	blocks      map[string][]*domain.SegmentBlock
	assets      map[string][]*domain.SegmentAsset
	annotations map[string][]*domain.SegmentAnnotation
	parentNodes map[string]string // segment id -> parent node id
	idByNode    map[string]string // node id -> segment id
}

// buildWriteSet assigns ids, sequences, checksums, and quality flags. The
// sequence counter is scoped per parent node so root messages and each edit
// fan-out number independently, 1-based, in adapter emission order.
func (s *IngestService) buildWriteSet(versionID string, inputs []adapter.SegmentInput) (*segmentWriteSet, error) {
	ws := &segmentWriteSet{
		blocks:      map[string][]*domain.SegmentBlock{},
		assets:      map[string][]*domain.SegmentAsset{},
		annotations: map[string][]*domain.SegmentAnnotation{},
		parentNodes: map[string]string{},
		idByNode:    map[string]string{},
	}

	counters := map[string]int{}
	seen := map[string]bool{}
	for _, input := range inputs {
		if input.NodeID == "" {
			return nil, domain.NewDomainErrorWithCause(domain.ErrCodeValidation, "segment has no node id", nil)
		}
		if seen[input.NodeID] {
			return nil, domain.NewDomainErrorWithCause(domain.ErrCodeValidation,
				fmt.Sprintf("duplicate node id %s", input.NodeID), domain.ErrSequenceCollision)
		}
		seen[input.NodeID] = true

		counters[input.ParentNodeID]++
		sequence := counters[input.ParentNodeID]

		plaintext := input.Plaintext
		if plaintext == "" {
			plaintext = NormalizeMarkdown(input.ContentMarkdown)
		}

		quality, noise := scoreContent(input.ContentMarkdown, input.SegmentType)
		if input.QualityScore != nil {
			quality = *input.QualityScore
		}
		if input.IsNoise != nil {
			noise = *input.IsNoise
		}

		status := domain.EmbeddingStatusPending
		if noise {
			status = domain.EmbeddingStatusSkipped
		}

		segment := &domain.Segment{
			ID:                s.uuidGen.NewString(),
			DocumentVersionID: versionID,
			Sequence:          sequence,
			SourceRole:        input.SourceRole,
			SegmentType:       input.SegmentType,
			ContentMarkdown:   input.ContentMarkdown,
			Plaintext:         plaintext,
			ContentJSON:       input.ContentJSON,
			StartedAt:         input.StartedAt,
			EndedAt:           input.EndedAt,
			RawReference:      input.RawReference,
			ContentChecksum:   SegmentChecksum(input.ContentMarkdown),
			QualityScore:      quality,
			IsNoise:           noise,
			EmbeddingStatus:   status,
		}
		if err := domain.ValidateSegment(segment); err != nil {
			return nil, domain.NewDomainErrorWithCause(domain.ErrCodeValidation, "invalid segment", err)
		}

		ws.segments = append(ws.segments, segment)
		ws.idByNode[input.NodeID] = segment.ID
		if input.ParentNodeID != "" {
			ws.parentNodes[segment.ID] = input.ParentNodeID
		}

		for i, block := range input.Blocks {
			ws.blocks[segment.ID] = append(ws.blocks[segment.ID], &domain.SegmentBlock{
				ID:        s.uuidGen.NewString(),
				SegmentID: segment.ID,
				Sequence:  i + 1,
				BlockType: block.BlockType,
				Language:  block.Language,
				Body:      block.Body,
				RawData:   block.RawData,
			})
		}
		for _, asset := range input.Assets {
			ws.assets[segment.ID] = append(ws.assets[segment.ID], &domain.SegmentAsset{
				ID:              s.uuidGen.NewString(),
				SegmentID:       segment.ID,
				AssetType:       asset.AssetType,
				FileName:        asset.FileName,
				MimeType:        asset.MimeType,
				SizeBytes:       asset.SizeBytes,
				LocalPath:       asset.LocalPath,
				SourceReference: asset.SourceReference,
			})
		}
		for _, annotation := range input.Annotations {
			ws.annotations[segment.ID] = append(ws.annotations[segment.ID], &domain.SegmentAnnotation{
				ID:             s.uuidGen.NewString(),
				SegmentID:      segment.ID,
				AnnotationType: annotation.AnnotationType,
				Payload:        annotation.Payload,
			})
		}
	}
	return ws, nil
}

// persistSegments writes the tree in emission order. Parents precede their
// children in emission order, so every parent node id must already be
// resolved when its child is written; a miss is a pipeline bug.
func (s *IngestService) persistSegments(ctx context.Context, repo SegmentRepositoryInterface, ws *segmentWriteSet) error {
	for _, segment := range ws.segments {
		if parentNode, ok := ws.parentNodes[segment.ID]; ok {
			parentID, ok := ws.idByNode[parentNode]
			if !ok {
				return domain.NewDomainErrorWithCause(domain.ErrCodeValidation,
					fmt.Sprintf("segment %s references unknown parent node %s", segment.ID, parentNode),
					domain.ErrUnresolvedParent)
			}
			segment.ParentSegmentID = &parentID
		}

		if err := repo.Create(ctx, segment); err != nil {
			return domain.NewStorageError(err)
		}
		for _, block := range ws.blocks[segment.ID] {
			if err := repo.CreateBlock(ctx, block); err != nil {
				return domain.NewStorageError(err)
			}
		}
		for _, asset := range ws.assets[segment.ID] {
			if err := repo.CreateAsset(ctx, asset); err != nil {
				return domain.NewStorageError(err)
			}
		}
		for _, annotation := range ws.annotations[segment.ID] {
			if err := repo.CreateAnnotation(ctx, annotation); err != nil {
				return domain.NewStorageError(err)
			}
		}
	}
	return nil
}
