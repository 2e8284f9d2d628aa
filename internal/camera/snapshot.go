// Package camera provides capture devices for the selfie step.
package camera

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/PaulBabatuyi/lizexpress-verify/internal/verification"
	"github.com/disintegration/imaging"
	"go.uber.org/zap"
)

// maxFrameSize bounds a single snapshot response.
const maxFrameSize = 16 << 20

var (
	// ErrNoDevice is returned when no camera answers at the configured URL.
	ErrNoDevice = errors.New("no camera device")
	// ErrStreamStopped is returned by Frame after Stop.
	ErrStreamStopped = errors.New("camera stream stopped")
)

// SnapshotDevice is a network camera that serves a still image per GET, as
// most IP webcams and phone webcam apps do.
type SnapshotDevice struct {
	url    string
	client *http.Client
	logger *zap.Logger

	mu     sync.Mutex
	active bool
}

var _ verification.CaptureDevice = (*SnapshotDevice)(nil)

func NewSnapshotDevice(url string, client *http.Client, logger *zap.Logger) *SnapshotDevice {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SnapshotDevice{url: url, client: client, logger: logger}
}

// RequestVideoStream probes the device and claims it. The device serves one
// stream at a time.
func (d *SnapshotDevice) RequestVideoStream(ctx context.Context) (verification.VideoStream, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.active {
		return nil, fmt.Errorf("%w: device busy", verification.ErrCameraUnavailable)
	}

	s := &snapshotStream{device: d}
	if _, err := s.fetch(ctx); err != nil {
		return nil, err
	}
	d.active = true
	d.logger.Debug("camera acquired", zap.String("url", d.url))
	return s, nil
}

func (d *SnapshotDevice) release() {
	d.mu.Lock()
	d.active = false
	d.mu.Unlock()
	d.logger.Debug("camera released", zap.String("url", d.url))
}

type snapshotStream struct {
	device *SnapshotDevice

	mu      sync.Mutex
	stopped bool
}

func (s *snapshotStream) Frame(ctx context.Context) (image.Image, error) {
	s.mu.Lock()
	stopped := s.stopped
	s.mu.Unlock()
	if stopped {
		return nil, ErrStreamStopped
	}
	return s.fetch(ctx)
}

func (s *snapshotStream) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return nil
	}
	s.stopped = true
	s.device.release()
	return nil
}

func (s *snapshotStream) fetch(ctx context.Context) (image.Image, error) {
	d := s.device
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.url, nil)
	if err != nil {
		return nil, fmt.Errorf("build snapshot request: %w", err)
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoDevice, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("%w: permission denied (%s)", verification.ErrCameraUnavailable, resp.Status)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("%w: unexpected status %s", ErrNoDevice, resp.Status)
	}

	img, err := imaging.Decode(io.LimitReader(resp.Body, maxFrameSize), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}
	return img, nil
}
