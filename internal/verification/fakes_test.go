package verification_test

import (
	"context"
	"errors"
	"image"
	"image/color"
	"sync"
	"time"

	"github.com/PaulBabatuyi/lizexpress-verify/internal/verification"
)

const testUserID = "550e8400-e29b-41d4-a716-446655440000"

type fakeStorage struct {
	mu       sync.Mutex
	uploads  []string
	removed  []string
	failWith error
	block    chan struct{}
	entered  chan string
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{entered: make(chan string, 16)}
}

func (s *fakeStorage) Upload(ctx context.Context, path string, data []byte, contentType string) (string, error) {
	s.mu.Lock()
	block, fail := s.block, s.failWith
	s.mu.Unlock()

	s.entered <- path
	if block != nil {
		<-block
	}
	if fail != nil {
		return "", fail
	}
	s.mu.Lock()
	s.uploads = append(s.uploads, path)
	s.mu.Unlock()
	return path, nil
}

func (s *fakeStorage) PublicURL(storedPath string) string {
	return "https://cdn.test/verification/" + storedPath
}

func (s *fakeStorage) Remove(ctx context.Context, storedPath string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removed = append(s.removed, storedPath)
	return nil
}

func (s *fakeStorage) setFail(err error) {
	s.mu.Lock()
	s.failWith = err
	s.mu.Unlock()
}

func (s *fakeStorage) setBlock(ch chan struct{}) {
	s.mu.Lock()
	s.block = ch
	s.mu.Unlock()
}

func (s *fakeStorage) Uploads() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.uploads...)
}

func (s *fakeStorage) Removed() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.removed...)
}

type fakeRecords struct {
	mu       sync.Mutex
	records  []verification.Submission
	failWith error
	block    chan struct{}
	entered  chan struct{}
}

func (r *fakeRecords) InsertVerification(ctx context.Context, sub *verification.Submission) error {
	r.mu.Lock()
	block, entered := r.block, r.entered
	r.mu.Unlock()
	if entered != nil {
		entered <- struct{}{}
	}
	if block != nil {
		<-block
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failWith != nil {
		return r.failWith
	}
	sub.ID = "ver-1"
	r.records = append(r.records, *sub)
	return nil
}

func (r *fakeRecords) setFail(err error) {
	r.mu.Lock()
	r.failWith = err
	r.mu.Unlock()
}

func (r *fakeRecords) setBlock(ch chan struct{}) {
	r.mu.Lock()
	r.block = ch
	r.entered = make(chan struct{}, 1)
	r.mu.Unlock()
}

func (r *fakeRecords) Records() []verification.Submission {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]verification.Submission(nil), r.records...)
}

type fakeAccounts struct {
	mu        sync.Mutex
	submitted map[string]bool
	calls     int
	failWith  error
}

func (a *fakeAccounts) UpdateProfile(ctx context.Context, userID string, update verification.ProfileUpdate) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls++
	if a.failWith != nil {
		return a.failWith
	}
	if a.submitted == nil {
		a.submitted = make(map[string]bool)
	}
	a.submitted[userID] = update.VerificationSubmitted
	return nil
}

func (a *fakeAccounts) setFail(err error) {
	a.mu.Lock()
	a.failWith = err
	a.mu.Unlock()
}

func (a *fakeAccounts) Submitted(userID string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.submitted[userID]
}

type fakeNotifier struct {
	mu       sync.Mutex
	sent     []verification.Notification
	failWith error
}

func (n *fakeNotifier) Enqueue(ctx context.Context, msg verification.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.failWith != nil {
		return n.failWith
	}
	n.sent = append(n.sent, msg)
	return nil
}

func (n *fakeNotifier) Sent() []verification.Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]verification.Notification(nil), n.sent...)
}

type fakeCamera struct {
	mu       sync.Mutex
	active   int
	acquired int
	denied   bool
}

func (c *fakeCamera) RequestVideoStream(ctx context.Context) (verification.VideoStream, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.denied {
		return nil, errors.New("NotAllowedError: permission denied")
	}
	c.active++
	c.acquired++
	return &fakeStream{camera: c}, nil
}

func (c *fakeCamera) Active() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

func (c *fakeCamera) Acquired() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.acquired
}

type fakeStream struct {
	camera  *fakeCamera
	stopped bool
}

func (s *fakeStream) Frame(ctx context.Context) (image.Image, error) {
	img := image.NewRGBA(image.Rect(0, 0, 64, 48))
	for x := 0; x < 64; x++ {
		for y := 0; y < 48; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 4), G: uint8(y * 5), B: 120, A: 255})
		}
	}
	return img, nil
}

func (s *fakeStream) Stop() error {
	if s.stopped {
		return nil
	}
	s.stopped = true
	s.camera.mu.Lock()
	s.camera.active--
	s.camera.mu.Unlock()
	return nil
}

// tickClock advances one millisecond on every read so retries get fresh
// storage paths.
type tickClock struct {
	mu sync.Mutex
	t  time.Time
}

func newTickClock() *tickClock {
	return &tickClock{t: time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)}
}

func (c *tickClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Millisecond)
	return c.t
}
