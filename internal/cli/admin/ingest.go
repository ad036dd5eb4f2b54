package admin

import (
	"context"
	"fmt"
	"log"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pauldavis/2brain/internal/adapter"
	"github.com/pauldavis/2brain/internal/config"
	"github.com/pauldavis/2brain/internal/database"
	"github.com/pauldavis/2brain/internal/domain"
	"github.com/pauldavis/2brain/internal/repository"
	"github.com/pauldavis/2brain/internal/service"
	"github.com/pauldavis/2brain/internal/storage"
	"github.com/spf13/cobra"
)

// IngestCmd returns the ingest command
func IngestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest <export-dir>",
		Short: "Ingest a chat export directory",
		Long: `Parse a ChatGPT, Claude, or Google AI Studio export directory and
persist its conversations. Re-running on an unchanged export is a no-op.`,
		Args: cobra.ExactArgs(1),
		RunE: runIngest,
	}

	cmd.Flags().String("source", "auto", "Export format: chatgpt, claude, aistudio, or auto")
	cmd.Flags().Bool("upload-attachments", false, "Upload attachment binaries to S3 after ingest")

	return cmd
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	exportPath := args[0]

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	sourceFlag, _ := cmd.Flags().GetString("source")
	var system domain.SourceSystem
	if sourceFlag == "" || sourceFlag == "auto" {
		system, err = adapter.DetectExport(exportPath)
		if err != nil {
			return fmt.Errorf("failed to detect export format: %w", err)
		}
		log.Printf("detected %s export", system)
	} else {
		system = domain.NormalizeSourceSystem(sourceFlag)
		if system == domain.SourceSystemOther {
			return fmt.Errorf("unknown source %q (expected chatgpt, claude, aistudio, or auto)", sourceFlag)
		}
	}

	ad, err := adapter.ForSource(system)
	if err != nil {
		return err
	}

	conversations, err := ad.Parse(exportPath)
	if err != nil {
		return fmt.Errorf("failed to parse export: %w", err)
	}
	log.Printf("parsed %d conversations", len(conversations))

	pool, err := database.NewPool(ctx, database.Config{URL: cfg.DatabaseURL})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer pool.Close()

	if err := runMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	ingestSvc := service.NewIngestService(repository.NewTxRunner(pool))

	meta := domain.IngestMetadata{
		BatchID:  uuid.NewString(),
		Operator: cfg.IngestOperator,
		Source:   exportPath,
		Version:  cfg.IngestVersion,
	}

	report, err := ingestSvc.IngestBatch(ctx, conversations, meta)
	if err != nil {
		return fmt.Errorf("batch ingest failed: %w", err)
	}

	created, updated := 0, 0
	for _, outcome := range report.Outcomes {
		if outcome.Err != nil {
			log.Printf("failed: %s (%s): %v", outcome.ExternalID, outcome.SourcePath, outcome.Err)
			continue
		}
		switch {
		case !outcome.Result.Created:
		case outcome.Result.DocumentCreated:
			created++
		default:
			updated++
		}
	}

	uploadAttachments, _ := cmd.Flags().GetBool("upload-attachments")
	if uploadAttachments {
		stored, err := uploadBatchAttachments(ctx, cfg, pool, report, exportPath)
		if err != nil {
			return fmt.Errorf("attachment upload failed: %w", err)
		}
		log.Printf("uploaded %d attachments", stored)
	}

	fmt.Printf("batch %s: %d new, %d updated, %d unchanged, %d failed\n", report.BatchID, created, updated, report.Skipped, report.Failed)
	if report.Failed > 0 {
		return fmt.Errorf("%d of %d conversations failed", report.Failed, len(report.Outcomes))
	}
	return nil
}

func uploadBatchAttachments(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool, report *service.BatchReport, exportPath string) (int, error) {
	if !cfg.HasS3() {
		return 0, fmt.Errorf("S3_ENDPOINT, S3_ACCESS_KEY_ID, and S3_SECRET_ACCESS_KEY required")
	}

	s3Client, err := storage.NewS3Client(ctx, storage.S3ClientConfig{
		Endpoint:        cfg.S3Endpoint,
		Region:          cfg.S3Region,
		AccessKeyID:     cfg.S3AccessKey,
		SecretAccessKey: cfg.S3SecretKey,
		Bucket:          cfg.S3Bucket,
		UsePathStyle:    true,
	})
	if err != nil {
		return 0, err
	}
	if err := s3Client.EnsureBucket(ctx); err != nil {
		return 0, err
	}

	attachmentSvc := service.NewAttachmentService(
		repository.NewSegmentRepository(pool),
		&S3StorageAdapter{client: s3Client},
	)

	stored := 0
	for _, outcome := range report.Outcomes {
		if outcome.Result == nil || !outcome.Result.Created {
			continue
		}
		n, err := attachmentSvc.UploadVersionAssets(ctx, outcome.Result.VersionID, exportPath)
		if err != nil {
			return stored, err
		}
		stored += n
	}
	return stored, nil
}
