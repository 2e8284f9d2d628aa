package worker

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"sync"
	"testing"

	"github.com/PaulBabatuyi/lizexpress-verify/internal/database"
	"github.com/PaulBabatuyi/lizexpress-verify/internal/observability"
	"github.com/PaulBabatuyi/lizexpress-verify/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const user = "550e8400-e29b-41d4-a716-446655440000"

type fakeJobs struct {
	mu        sync.Mutex
	pending   []*database.ProcessingJob
	records   map[string]*database.VerificationRecord
	completed map[int64][]string
	failed    map[int64]string
}

func (f *fakeJobs) GetNextPendingJob(ctx context.Context) (*database.ProcessingJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.pending) == 0 {
		return nil, nil
	}
	job := f.pending[0]
	f.pending = f.pending[1:]
	return job, nil
}

func (f *fakeJobs) GetVerification(ctx context.Context, id string) (*database.VerificationRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.records[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	return rec, nil
}

func (f *fakeJobs) FailJob(ctx context.Context, jobID int64, errorMsg string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failed[jobID] = errorMsg
	return nil
}

func (f *fakeJobs) CompleteJob(ctx context.Context, jobID int64, thumbnails []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completed[jobID] = thumbnails
	return nil
}

func writePNG(t *testing.T, store *storage.FilesystemStorage, objectPath string, w, h int) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		img.Set(x, x%h, color.RGBA{R: 255, A: 255})
	}
	f, err := store.CreateFile(objectPath)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, img))
	require.NoError(t, f.Close())
}

func setupWorker(t *testing.T) (*ProcessingWorker, *fakeJobs, *storage.FilesystemStorage, *storage.PublicURLs) {
	t.Helper()
	store, err := storage.NewFilesystemStorage(t.TempDir())
	require.NoError(t, err)
	urls, err := storage.NewPublicURLs("http://files.test/verification")
	require.NoError(t, err)
	metrics, err := observability.InitMetrics()
	require.NoError(t, err)
	jobs := &fakeJobs{
		records:   make(map[string]*database.VerificationRecord),
		completed: make(map[int64][]string),
		failed:    make(map[int64]string),
	}
	pw := NewProcessingWorker(&WorkerConfig{DB: jobs, Store: store, URLs: urls, Metrics: metrics})
	return pw, jobs, store, urls
}

func TestProcessNextGeneratesThumbnails(t *testing.T) {
	pw, jobs, store, urls := setupWorker(t)
	paths := []string{
		user + "/verification/identity_1.png",
		user + "/verification/address_2.png",
		user + "/verification/selfie_3.png",
	}
	writePNG(t, store, paths[0], 800, 400)
	writePNG(t, store, paths[1], 1200, 900)
	writePNG(t, store, paths[2], 100, 100)

	jobs.records["ver-1"] = &database.VerificationRecord{
		ID:                  "ver-1",
		UserID:              user,
		IdentityDocumentURL: urls.URL(paths[0]),
		AddressDocumentURL:  urls.URL(paths[1]),
		SelfieImageURL:      urls.URL(paths[2]),
	}
	jobs.pending = []*database.ProcessingJob{{ID: 7, VerificationID: "ver-1"}}

	processed, err := pw.ProcessNext(context.Background())
	require.NoError(t, err)
	assert.True(t, processed)

	thumbs := jobs.completed[7]
	require.Len(t, thumbs, 6)
	assert.Equal(t, user+"/verification/thumbs/identity_1-small.jpg", thumbs[0])
	assert.Equal(t, user+"/verification/thumbs/identity_1-medium.jpg", thumbs[1])

	r, err := store.ReadFile(thumbs[0])
	require.NoError(t, err)
	defer r.Close()
	cfg, format, err := image.DecodeConfig(r)
	require.NoError(t, err)
	assert.Equal(t, "jpeg", format)
	assert.Equal(t, 150, cfg.Width)
	assert.Equal(t, 75, cfg.Height)

	// Small originals are not upscaled.
	r2, err := store.ReadFile(user + "/verification/thumbs/selfie_3-medium.jpg")
	require.NoError(t, err)
	defer r2.Close()
	cfg, _, err = image.DecodeConfig(r2)
	require.NoError(t, err)
	assert.Equal(t, 100, cfg.Width)

	processed, err = pw.ProcessNext(context.Background())
	require.NoError(t, err)
	assert.False(t, processed)
}

func TestProcessNextRetryIsIdempotent(t *testing.T) {
	pw, jobs, store, urls := setupWorker(t)
	p := user + "/verification/identity_1.png"
	writePNG(t, store, p, 300, 300)
	jobs.records["ver-1"] = &database.VerificationRecord{
		ID:                  "ver-1",
		IdentityDocumentURL: urls.URL(p),
		AddressDocumentURL:  urls.URL(p),
		SelfieImageURL:      urls.URL(p),
	}
	jobs.pending = []*database.ProcessingJob{{ID: 1, VerificationID: "ver-1"}}

	_, err := pw.ProcessNext(context.Background())
	require.NoError(t, err)
	assert.Len(t, jobs.completed[1], 6)
	assert.Empty(t, jobs.failed)
}

func TestProcessNextFailsJob(t *testing.T) {
	pw, jobs, store, urls := setupWorker(t)

	bad := user + "/verification/identity_1.png"
	f, err := store.CreateFile(bad)
	require.NoError(t, err)
	_, err = f.Write([]byte("not really a png"))
	require.NoError(t, err)
	require.NoError(t, f.Close())

	jobs.records["ver-bad"] = &database.VerificationRecord{
		ID:                  "ver-bad",
		IdentityDocumentURL: urls.URL(bad),
		AddressDocumentURL:  urls.URL(bad),
		SelfieImageURL:      urls.URL(bad),
	}
	jobs.pending = []*database.ProcessingJob{
		{ID: 1, VerificationID: "ver-bad"},
		{ID: 2, VerificationID: "missing"},
	}

	processed, err := pw.ProcessNext(context.Background())
	require.NoError(t, err)
	assert.True(t, processed)
	assert.Contains(t, jobs.failed[1], "decode")

	_, err = pw.ProcessNext(context.Background())
	require.NoError(t, err)
	assert.Contains(t, jobs.failed[2], "load verification")
	assert.Empty(t, jobs.completed)
}

// fullDisk writes half of each thumbnail to the real store and then fails.
type fullDisk struct {
	*storage.FilesystemStorage
}

func (d fullDisk) CreateFile(objectPath string) (io.WriteCloser, error) {
	f, err := d.FilesystemStorage.CreateFile(objectPath)
	if err != nil {
		return nil, err
	}
	return &halfWriter{WriteCloser: f}, nil
}

type halfWriter struct {
	io.WriteCloser
}

func (h *halfWriter) Write(p []byte) (int, error) {
	n, err := h.WriteCloser.Write(p[:len(p)/2])
	if err != nil {
		return n, err
	}
	return n, errors.New("disk full")
}

func TestProcessNextRemovesPartialThumbnail(t *testing.T) {
	pw, jobs, store, urls := setupWorker(t)
	p := user + "/verification/identity_1.png"
	writePNG(t, store, p, 600, 300)
	jobs.records["ver-1"] = &database.VerificationRecord{
		ID:                  "ver-1",
		IdentityDocumentURL: urls.URL(p),
		AddressDocumentURL:  urls.URL(p),
		SelfieImageURL:      urls.URL(p),
	}
	thumb := user + "/verification/thumbs/identity_1-small.jpg"

	jobs.pending = []*database.ProcessingJob{{ID: 1, VerificationID: "ver-1"}}
	failing := NewProcessingWorker(&WorkerConfig{DB: jobs, Store: fullDisk{store}, URLs: urls, Metrics: pw.config.Metrics})
	processed, err := failing.ProcessNext(context.Background())
	require.NoError(t, err)
	assert.True(t, processed)
	assert.Contains(t, jobs.failed[1], "disk full")
	_, err = store.ReadFile(thumb)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	// The retry must rewrite the thumbnail rather than keep a truncated one.
	jobs.pending = []*database.ProcessingJob{{ID: 1, VerificationID: "ver-1", RetryCount: 1}}
	_, err = pw.ProcessNext(context.Background())
	require.NoError(t, err)
	require.Len(t, jobs.completed[1], 6)

	r, err := store.ReadFile(thumb)
	require.NoError(t, err)
	defer r.Close()
	img, format, err := image.Decode(r)
	require.NoError(t, err)
	assert.Equal(t, "jpeg", format)
	assert.Equal(t, 150, img.Bounds().Dx())
}

type brokenQueue struct{ fakeJobs }

func (b *brokenQueue) GetNextPendingJob(ctx context.Context) (*database.ProcessingJob, error) {
	return nil, errors.New("connection refused")
}

func TestProcessNextQueueError(t *testing.T) {
	pw := NewProcessingWorker(&WorkerConfig{DB: &brokenQueue{}})
	processed, err := pw.ProcessNext(context.Background())
	assert.Error(t, err)
	assert.False(t, processed)
}

func TestThumbnailPath(t *testing.T) {
	assert.Equal(t, "u/verification/thumbs/selfie_1-small.jpg", thumbnailPath("u/verification/selfie_1.jpeg", "small"))
}
