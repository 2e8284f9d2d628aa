package database

import (
	"time"
)

const (
	VerificationPending  = "pending"
	VerificationApproved = "approved"
	VerificationRejected = "rejected"
)

type JobStatus string

const (
	JobPending    JobStatus = "pending"
	JobProcessing JobStatus = "processing"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
)

// EvidenceObject is one stored upload.
type EvidenceObject struct {
	ID          string
	UserID      string
	StoredPath  string
	Filename    string
	ContentType string
	Size        int64
	UploadedAt  time.Time
}

type VerificationRecord struct {
	ID                  string
	UserID              string
	IdentityDocumentURL string
	AddressDocumentURL  string
	SelfieImageURL      string
	Status              string
	SubmittedAt         time.Time
	CreatedAt           time.Time
}

// URLs returns the three evidence URLs in step order.
func (v *VerificationRecord) URLs() []string {
	return []string{v.IdentityDocumentURL, v.AddressDocumentURL, v.SelfieImageURL}
}

// UserStatus is the verification-related slice of a user profile. A user
// with no row yet reads as the zero value.
type UserStatus struct {
	UserID                string
	IsVerified            bool
	VerificationSubmitted bool
}

type Notification struct {
	ID        string
	UserID    string
	Type      string
	Title     string
	Content   string
	IsRead    bool
	CreatedAt time.Time
}

type ProcessingJob struct {
	ID             int64
	VerificationID string
	Status         JobStatus
	RetryCount     int
	MaxRetries     int
	ErrorMessage   string
	Thumbnails     []string
	CreatedAt      time.Time
	UpdatedAt      time.Time
	CompletedAt    *time.Time
}
