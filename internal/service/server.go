package service

import (
	"context"
	"io"
	"time"

	verificationv1 "github.com/PaulBabatuyi/lizexpress-verify/api/verification/v1"
	"github.com/PaulBabatuyi/lizexpress-verify/internal/database"
	"github.com/PaulBabatuyi/lizexpress-verify/internal/observability"
	"github.com/PaulBabatuyi/lizexpress-verify/internal/storage"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

type verificationServer struct {
	verificationv1.UnimplementedVerificationServiceServer

	storage   StorageInterface
	database  DatabaseInterface
	urls      *storage.PublicURLs
	metrics   *observability.MetricsCollector
	logger    *zap.Logger
	uploadSem *semaphore.Weighted
	now       func() time.Time
}

type StorageInterface interface {
	CreateFile(objectPath string) (io.WriteCloser, error)
	ReadFile(objectPath string) (io.ReadCloser, error)
	DeleteFile(objectPath string) error
}

type DatabaseInterface interface {
	SaveEvidence(ctx context.Context, obj *database.EvidenceObject) error
	GetEvidence(ctx context.Context, storedPath string) (*database.EvidenceObject, error)
	DeleteEvidence(ctx context.Context, storedPath, userID string) error
	InsertVerification(ctx context.Context, rec *database.VerificationRecord) error
	LatestVerification(ctx context.Context, userID string) (*database.VerificationRecord, error)
	SetVerificationSubmitted(ctx context.Context, userID string, submitted bool) error
	GetUserStatus(ctx context.Context, userID string) (*database.UserStatus, error)
	InsertNotification(ctx context.Context, n *database.Notification) error
	CreateProcessingJob(ctx context.Context, verificationID string) (int64, error)
}

type Options struct {
	// MaxConcurrentUploads caps UploadEvidence streams in flight. Defaults to 10.
	MaxConcurrentUploads int64
	Logger               *zap.Logger
}

func NewVerificationServer(store StorageInterface, db DatabaseInterface, urls *storage.PublicURLs, metrics *observability.MetricsCollector, opts Options) *verificationServer {
	if opts.MaxConcurrentUploads <= 0 {
		opts.MaxConcurrentUploads = 10
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &verificationServer{
		storage:   store,
		database:  db,
		urls:      urls,
		metrics:   metrics,
		logger:    opts.Logger.With(zap.String("component", "verification-service")),
		uploadSem: semaphore.NewWeighted(opts.MaxConcurrentUploads),
		now:       time.Now,
	}
}
