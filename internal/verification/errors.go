package verification

import (
	"errors"
	"fmt"
)

// Kind classifies workflow errors. None of them is fatal.
type Kind int

const (
	KindState Kind = iota
	KindValidation
	KindUpload
	KindSubmission
	KindCapture
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindUpload:
		return "upload"
	case KindSubmission:
		return "submission"
	case KindCapture:
		return "capture"
	default:
		return "state"
	}
}

var (
	ErrNotImage            = errors.New("please select an image file")
	ErrUnsupportedImage    = errors.New("unsupported image format, use JPEG, PNG, GIF, WebP or BMP")
	ErrTooLarge            = errors.New("file size must be less than 5MB")
	ErrEmptyEvidence       = errors.New("file is empty")
	ErrNoEvidence          = errors.New("please capture or upload a file to continue")
	ErrUploadTimeout       = errors.New("upload timeout")
	ErrBusy                = errors.New("an upload is already in progress")
	ErrFinished            = errors.New("verification flow has finished")
	ErrNotFirstStep        = errors.New("skip is only available on the first step")
	ErrFirstStep           = errors.New("already on the first step")
	ErrSkipUnavailable     = errors.New("skipping verification is not allowed here")
	ErrLiveCaptureRequired = errors.New("this step requires a live capture")
	ErrNotCaptureStep      = errors.New("this step does not use the camera")
	ErrAlreadyCaptured     = errors.New("selfie already captured, retake to capture again")
	ErrCameraUnavailable   = errors.New("unable to access camera, please allow camera permissions")
	ErrNoCamera            = errors.New("camera is not active")
)

// Error is the error type surfaced by workflow operations.
type Error struct {
	Kind     Kind
	Op       string
	Evidence EvidenceType
	Err      error
}

func (e *Error) Error() string {
	if e.Evidence != "" {
		return fmt.Sprintf("verification %s (%s): %v", e.Op, e.Evidence, e.Err)
	}
	return fmt.Sprintf("verification %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsKind reports whether err is a workflow *Error of kind k.
func IsKind(err error, k Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == k
}
