package verification

import (
	"bytes"
	"context"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
	"go.uber.org/zap"
)

const (
	selfieFilename    = "selfie.jpg"
	selfieContentType = "image/jpeg"
	selfieJPEGQuality = 92
)

// cameraSession is the exclusive hold on the capture device. Only the selfie
// step owns one, and every exit path from that step releases it.
type cameraSession struct {
	stream VideoStream
}

func (w *Workflow) acquireCameraLocked(ctx context.Context) {
	if w.camera != nil {
		return
	}
	if w.deps.Camera == nil {
		w.lastErr = &Error{Kind: KindCapture, Op: "camera", Evidence: EvidenceSelfie, Err: ErrCameraUnavailable}
		return
	}
	stream, err := w.deps.Camera.RequestVideoStream(ctx)
	if err != nil {
		w.logger.Warn("camera unavailable", zap.Error(err))
		w.lastErr = &Error{Kind: KindCapture, Op: "camera", Evidence: EvidenceSelfie, Err: fmt.Errorf("%w: %w", ErrCameraUnavailable, err)}
		return
	}
	w.camera = &cameraSession{stream: stream}
}

func (w *Workflow) releaseCameraLocked() {
	if w.camera == nil {
		return
	}
	if err := w.camera.stream.Stop(); err != nil {
		w.logger.Warn("failed to stop camera", zap.Error(err))
	}
	w.camera = nil
}

// Capture snapshots the live stream into the selfie evidence and releases the
// camera.
func (w *Workflow) Capture(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.beginLocked("capture"); err != nil {
		return err
	}
	step := stepAt(w.step)
	if step.Capture != CaptureLive {
		return w.failLocked(&Error{Kind: KindCapture, Op: "capture", Evidence: step.Evidence, Err: ErrNotCaptureStep})
	}
	if w.files[step.Evidence] != nil {
		return w.failLocked(&Error{Kind: KindCapture, Op: "capture", Evidence: step.Evidence, Err: ErrAlreadyCaptured})
	}
	if w.camera == nil {
		return w.failLocked(&Error{Kind: KindCapture, Op: "capture", Evidence: step.Evidence, Err: ErrNoCamera})
	}

	frame, err := w.camera.stream.Frame(ctx)
	if err != nil {
		return w.failLocked(&Error{Kind: KindCapture, Op: "capture", Evidence: step.Evidence, Err: err})
	}
	file, err := encodeSelfie(frame)
	if err != nil {
		return w.failLocked(&Error{Kind: KindCapture, Op: "capture", Evidence: step.Evidence, Err: err})
	}

	w.setFileLocked(step.Evidence, file)
	w.releaseCameraLocked()
	w.lastErr = nil
	return nil
}

// Retake drops the captured selfie and re-acquires the camera.
func (w *Workflow) Retake(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.beginLocked("retake"); err != nil {
		return err
	}
	step := stepAt(w.step)
	if step.Capture != CaptureLive {
		return w.failLocked(&Error{Kind: KindCapture, Op: "retake", Evidence: step.Evidence, Err: ErrNotCaptureStep})
	}
	w.setFileLocked(step.Evidence, nil)
	w.lastErr = nil
	w.acquireCameraLocked(ctx)
	return nil
}

// encodeSelfie encodes a frame at its native resolution as JPEG.
func encodeSelfie(frame image.Image) (*EvidenceFile, error) {
	if frame == nil || frame.Bounds().Empty() {
		return nil, fmt.Errorf("empty camera frame")
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, frame, imaging.JPEG, imaging.JPEGQuality(selfieJPEGQuality)); err != nil {
		return nil, fmt.Errorf("encode selfie: %w", err)
	}
	f := &EvidenceFile{Name: selfieFilename, ContentType: selfieContentType, Data: buf.Bytes()}
	if err := f.validate(); err != nil {
		return nil, err
	}
	return f, nil
}
