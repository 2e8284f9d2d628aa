package backend

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	verificationv1 "github.com/PaulBabatuyi/lizexpress-verify/api/verification/v1"
	"github.com/PaulBabatuyi/lizexpress-verify/internal/database"
	"github.com/PaulBabatuyi/lizexpress-verify/internal/middleware"
	"github.com/PaulBabatuyi/lizexpress-verify/internal/observability"
	"github.com/PaulBabatuyi/lizexpress-verify/internal/service"
	"github.com/PaulBabatuyi/lizexpress-verify/internal/storage"
	"github.com/PaulBabatuyi/lizexpress-verify/internal/verification"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"
)

const filesBase = "http://files.test/verification"

// evidenceDB is an in-memory service.DatabaseInterface.
type evidenceDB struct {
	mu            sync.Mutex
	evidence      map[string]*database.EvidenceObject
	verifications []*database.VerificationRecord
	submitted     map[string]bool
	notifications []*database.Notification
	jobs          []string
}

func (m *evidenceDB) SaveEvidence(ctx context.Context, obj *database.EvidenceObject) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *obj
	m.evidence[obj.StoredPath] = &cp
	return nil
}

func (m *evidenceDB) GetEvidence(ctx context.Context, storedPath string) (*database.EvidenceObject, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	obj, ok := m.evidence[storedPath]
	if !ok {
		return nil, database.ErrNotFound
	}
	cp := *obj
	return &cp, nil
}

func (m *evidenceDB) DeleteEvidence(ctx context.Context, storedPath, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.evidence, storedPath)
	return nil
}

func (m *evidenceDB) InsertVerification(ctx context.Context, rec *database.VerificationRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec.CreatedAt = time.Now()
	cp := *rec
	m.verifications = append(m.verifications, &cp)
	return nil
}

func (m *evidenceDB) LatestVerification(ctx context.Context, userID string) (*database.VerificationRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.verifications) - 1; i >= 0; i-- {
		if m.verifications[i].UserID == userID {
			cp := *m.verifications[i]
			return &cp, nil
		}
	}
	return nil, database.ErrNotFound
}

func (m *evidenceDB) SetVerificationSubmitted(ctx context.Context, userID string, submitted bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.submitted[userID] = submitted
	return nil
}

func (m *evidenceDB) GetUserStatus(ctx context.Context, userID string) (*database.UserStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return &database.UserStatus{UserID: userID, VerificationSubmitted: m.submitted[userID]}, nil
}

func (m *evidenceDB) InsertNotification(ctx context.Context, n *database.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *n
	m.notifications = append(m.notifications, &cp)
	return nil
}

func (m *evidenceDB) CreateProcessingJob(ctx context.Context, verificationID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs = append(m.jobs, verificationID)
	return int64(len(m.jobs)), nil
}

// setupService runs the real verification service over bufconn and returns a
// client adapter for testUserID.
func setupService(t *testing.T) (*Client, *evidenceDB) {
	t.Helper()
	store, err := storage.NewFilesystemStorage(t.TempDir())
	require.NoError(t, err)
	urls, err := storage.NewPublicURLs(filesBase)
	require.NoError(t, err)
	metrics, err := observability.InitMetrics()
	require.NoError(t, err)
	db := &evidenceDB{
		evidence:  make(map[string]*database.EvidenceObject),
		submitted: make(map[string]bool),
	}

	auth := middleware.NewAPIKeyAuth([]string{testAPIKey})
	stack := (&middleware.Stack{}).Unary(auth.Unary()).Stream(auth.Stream())
	lis := bufconn.Listen(1024 * 1024)
	server := grpc.NewServer(stack.ServerOptions()...)
	verificationv1.RegisterVerificationServiceServer(server, service.NewVerificationServer(store, db, urls, metrics, service.Options{MaxConcurrentUploads: 2}))
	go server.Serve(lis)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(context.Context, string) (net.Conn, error) { return lis.Dial() }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		conn.Close()
		server.Stop()
	})
	return New(conn, testAPIKey, testUserID), db
}

func testImage() image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 48, 32))
	for x := 0; x < 48; x++ {
		for y := 0; y < 32; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 5), G: uint8(y * 8), B: 90, A: 255})
		}
	}
	return img
}

func encodePNG(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, testImage()))
	return buf.Bytes()
}

func encodeJPEG(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, testImage(), nil))
	return buf.Bytes()
}

func TestWorkflowAgainstVerificationService(t *testing.T) {
	c, db := setupService(t)
	ctx := context.Background()

	done := make(chan struct{})
	wf, err := verification.Start(ctx, testUserID, c.Dependencies(stillCamera{}), verification.Callbacks{
		OnComplete: func() { close(done) },
	}, verification.WithUploadTimeout(5*time.Second))
	require.NoError(t, err)

	// Names whose suffix the object-name rules would refuse verbatim.
	id, err := verification.NewEvidenceFile("passport.scan-v2", "image/png", encodePNG(t))
	require.NoError(t, err)
	require.NoError(t, wf.Attach(id))
	require.NoError(t, wf.Advance(ctx))
	require.Equal(t, 2, wf.Step())

	bill, err := verification.NewEvidenceFile("IMG_0001.JPG", "image/jpeg", encodeJPEG(t))
	require.NoError(t, err)
	require.NoError(t, wf.Attach(bill))
	require.NoError(t, wf.Advance(ctx))
	require.Equal(t, 3, wf.Step())

	require.NoError(t, wf.Capture(ctx))
	require.NoError(t, wf.Advance(ctx))
	<-done
	wf.Wait()

	db.mu.Lock()
	defer db.mu.Unlock()
	require.Len(t, db.verifications, 1)
	rec := db.verifications[0]
	assert.Equal(t, database.VerificationPending, rec.Status)
	for _, u := range []string{rec.IdentityDocumentURL, rec.AddressDocumentURL, rec.SelfieImageURL} {
		storedPath, ok := strings.CutPrefix(u, filesBase+"/")
		require.True(t, ok, u)
		obj, found := db.evidence[storedPath]
		require.True(t, found, storedPath)
		assert.Equal(t, testUserID, obj.UserID)
	}
	assert.True(t, strings.HasSuffix(rec.IdentityDocumentURL, ".png"), rec.IdentityDocumentURL)
	assert.True(t, strings.HasSuffix(rec.AddressDocumentURL, ".jpg"), rec.AddressDocumentURL)
	assert.True(t, strings.HasSuffix(rec.SelfieImageURL, ".jpg"), rec.SelfieImageURL)
	assert.True(t, db.submitted[testUserID])
	assert.Len(t, db.notifications, 1)
	assert.Equal(t, []string{rec.ID}, db.jobs)
}

func TestUnsupportedImageNeverReachesService(t *testing.T) {
	c, db := setupService(t)
	wf, err := verification.Start(context.Background(), testUserID, c.Dependencies(nil), verification.Callbacks{OnComplete: func() {}})
	require.NoError(t, err)
	defer wf.Close()

	_, err = verification.NewEvidenceFile("IMG_0001.HEIC", "image/heic", []byte("\x00\x00\x00\x18ftypheic"))
	assert.ErrorIs(t, err, verification.ErrUnsupportedImage)
	assert.ErrorIs(t, wf.Advance(context.Background()), verification.ErrNoEvidence)

	db.mu.Lock()
	defer db.mu.Unlock()
	assert.Empty(t, db.evidence)
}
