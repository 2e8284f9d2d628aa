package verification

import (
	"context"
	"image"
	"time"
)

// ObjectStorage accepts evidence uploads and resolves their public URLs.
type ObjectStorage interface {
	Upload(ctx context.Context, path string, data []byte, contentType string) (storedPath string, err error)
	PublicURL(storedPath string) string
}

// ObjectRemover is implemented by storages that can delete orphaned objects.
type ObjectRemover interface {
	Remove(ctx context.Context, storedPath string) error
}

// RecordStore persists the final submission. InsertVerification sets sub.ID.
type RecordStore interface {
	InsertVerification(ctx context.Context, sub *Submission) error
}

// ProfileUpdate is the slice of the user profile the workflow writes.
type ProfileUpdate struct {
	VerificationSubmitted bool
}

// Accounts persists profile flags for the current user.
type Accounts interface {
	UpdateProfile(ctx context.Context, userID string, update ProfileUpdate) error
}

// Notification is a user-facing message enqueued after submission.
type Notification struct {
	UserID  string
	Type    string
	Title   string
	Content string
}

// Notifier enqueues notifications. Failures are logged and ignored.
type Notifier interface {
	Enqueue(ctx context.Context, n Notification) error
}

// CaptureDevice hands out exclusive live video streams.
type CaptureDevice interface {
	RequestVideoStream(ctx context.Context) (VideoStream, error)
}

// VideoStream is an acquired camera session.
type VideoStream interface {
	Frame(ctx context.Context) (image.Image, error)
	Stop() error
}

// Dependencies are the collaborators of one workflow. Notifier and Camera are
// optional.
type Dependencies struct {
	Storage  ObjectStorage
	Records  RecordStore
	Accounts Accounts
	Notifier Notifier
	Camera   CaptureDevice
}

// Callbacks receive the single terminal signal of a workflow.
type Callbacks struct {
	OnComplete func()
	OnSkip     func()
}

const (
	StatusPending = "pending"

	NotificationVerificationSubmitted = "verification_submitted"
)

// Submission is the verification record written once per completed flow.
type Submission struct {
	ID                  string
	UserID              string
	IdentityDocumentURL string
	AddressDocumentURL  string
	SelfieImageURL      string
	Status              string
	SubmittedAt         time.Time
}
