package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/PaulBabatuyi/lizexpress-verify/internal/database"
	"github.com/PaulBabatuyi/lizexpress-verify/internal/observability"
	"github.com/PaulBabatuyi/lizexpress-verify/internal/storage"
	"go.uber.org/zap"
)

// JobStore is the job queue and the verification records it points at.
type JobStore interface {
	GetNextPendingJob(ctx context.Context) (*database.ProcessingJob, error)
	GetVerification(ctx context.Context, id string) (*database.VerificationRecord, error)
	FailJob(ctx context.Context, jobID int64, errorMsg string) error
	CompleteJob(ctx context.Context, jobID int64, thumbnails []string) error
}

type WorkerConfig struct {
	DB           JobStore
	Store        ObjectStore
	URLs         *storage.PublicURLs
	Metrics      *observability.MetricsCollector
	Logger       *zap.Logger
	PollInterval time.Duration
}

// ProcessingWorker prepares reviewer thumbnails for newly submitted
// verifications.
type ProcessingWorker struct {
	config *WorkerConfig
	images *ImageProcessor
	logger *zap.Logger
}

func NewProcessingWorker(config *WorkerConfig) *ProcessingWorker {
	if config.PollInterval == 0 {
		config.PollInterval = 2 * time.Second
	}
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("component", "processing-worker"))
	return &ProcessingWorker{
		config: config,
		images: NewImageProcessor(config.Store, logger),
		logger: logger,
	}
}

// Run polls for jobs until ctx is cancelled. The queue is drained on each
// tick.
func (pw *ProcessingWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(pw.config.PollInterval)
	defer ticker.Stop()

	pw.logger.Info("processing worker started", zap.Duration("poll_interval", pw.config.PollInterval))
	defer pw.logger.Info("processing worker stopped")

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			for ctx.Err() == nil {
				processed, err := pw.ProcessNext(ctx)
				if err != nil {
					pw.logger.Error("error getting next job", zap.Error(err))
				}
				if !processed {
					break
				}
			}
		}
	}
}

// ProcessNext handles one pending job. It reports whether a job was found.
func (pw *ProcessingWorker) ProcessNext(ctx context.Context) (bool, error) {
	job, err := pw.config.DB.GetNextPendingJob(ctx)
	if err != nil {
		return false, err
	}
	if job == nil {
		return false, nil
	}

	logger := pw.logger.With(zap.Int64("job_id", job.ID), zap.String("verification_id", job.VerificationID))
	logger.Info("processing job")

	thumbs, err := pw.processVerification(ctx, job)
	if err != nil {
		logger.Warn("job failed", zap.Int("attempt", job.RetryCount+1), zap.Error(err))
		if ferr := pw.config.DB.FailJob(ctx, job.ID, err.Error()); ferr != nil {
			logger.Error("failed to record job failure", zap.Error(ferr))
		}
		pw.observe(observability.ResultError)
		return true, nil
	}

	if err := pw.config.DB.CompleteJob(ctx, job.ID, thumbs); err != nil {
		logger.Error("failed to save job results", zap.Error(err))
		pw.observe(observability.ResultError)
		return true, nil
	}
	pw.observe(observability.ResultSuccess)
	logger.Info("completed job", zap.Int("thumbnails", len(thumbs)))
	return true, nil
}

func (pw *ProcessingWorker) processVerification(ctx context.Context, job *database.ProcessingJob) ([]string, error) {
	rec, err := pw.config.DB.GetVerification(ctx, job.VerificationID)
	if err != nil {
		return nil, fmt.Errorf("load verification: %w", err)
	}

	var thumbs []string
	for _, u := range rec.URLs() {
		objectPath, ok := pw.config.URLs.StoredPath(u)
		if !ok {
			return nil, fmt.Errorf("evidence url %s is not served by this store", u)
		}
		t, width, height, err := pw.images.ProcessImage(ctx, objectPath)
		if err != nil {
			return nil, err
		}
		pw.logger.Debug("evidence processed",
			zap.String("path", objectPath),
			zap.Int("width", width),
			zap.Int("height", height),
		)
		thumbs = append(thumbs, t...)
	}
	return thumbs, nil
}

func (pw *ProcessingWorker) observe(result string) {
	if pw.config.Metrics != nil {
		pw.config.Metrics.ObserveJob(result)
	}
}
