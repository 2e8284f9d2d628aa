package verificationv1

import (
	"time"

	"github.com/go-playground/validator/v10"
)

// MaxEvidenceSize is the largest evidence object the service accepts (5 MiB).
const MaxEvidenceSize = 5 * 1024 * 1024

var validate = validator.New(validator.WithRequiredStructEnabled())

// EvidenceMetadata is the first message of an UploadEvidence stream.
type EvidenceMetadata struct {
	UserID      string `json:"user_id" validate:"required,uuid"`
	Path        string `json:"path" validate:"required,max=512"`
	Filename    string `json:"filename" validate:"required,max=255"`
	ContentType string `json:"content_type" validate:"required,startswith=image/"`
	Size        int64  `json:"size" validate:"gt=0,lte=5242880"`
}

func (m *EvidenceMetadata) Validate() error { return validate.Struct(m) }

// UploadEvidenceRequest carries either the metadata (first message) or a chunk.
type UploadEvidenceRequest struct {
	Metadata *EvidenceMetadata `json:"metadata,omitempty"`
	Chunk    []byte            `json:"chunk,omitempty"`
}

func (r *UploadEvidenceRequest) GetMetadata() *EvidenceMetadata {
	if r == nil {
		return nil
	}
	return r.Metadata
}

func (r *UploadEvidenceRequest) GetChunk() []byte {
	if r == nil {
		return nil
	}
	return r.Chunk
}

type UploadEvidenceResponse struct {
	StoredPath string `json:"stored_path"`
	PublicURL  string `json:"public_url"`
	Size       int64  `json:"size"`
}

type DeleteEvidenceRequest struct {
	UserID     string `json:"user_id" validate:"required,uuid"`
	StoredPath string `json:"stored_path" validate:"required,max=512"`
}

func (r *DeleteEvidenceRequest) Validate() error { return validate.Struct(r) }

type DeleteEvidenceResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

type CreateVerificationRequest struct {
	UserID              string    `json:"user_id" validate:"required,uuid"`
	IdentityDocumentURL string    `json:"identity_document_url" validate:"required,url"`
	AddressDocumentURL  string    `json:"address_document_url" validate:"required,url"`
	SelfieImageURL      string    `json:"selfie_image_url" validate:"required,url"`
	SubmittedAt         time.Time `json:"submitted_at"`
}

func (r *CreateVerificationRequest) Validate() error { return validate.Struct(r) }

type CreateVerificationResponse struct {
	ID          string    `json:"id"`
	Status      string    `json:"status"`
	SubmittedAt time.Time `json:"submitted_at"`
}

type UpdateProfileRequest struct {
	UserID                string `json:"user_id" validate:"required,uuid"`
	VerificationSubmitted bool   `json:"verification_submitted"`
}

func (r *UpdateProfileRequest) Validate() error { return validate.Struct(r) }

type UpdateProfileResponse struct{}

type EnqueueNotificationRequest struct {
	UserID  string `json:"user_id" validate:"required,uuid"`
	Type    string `json:"type" validate:"required,max=64"`
	Title   string `json:"title" validate:"required,max=255"`
	Content string `json:"content" validate:"max=2000"`
}

func (r *EnqueueNotificationRequest) Validate() error { return validate.Struct(r) }

type EnqueueNotificationResponse struct {
	ID string `json:"id"`
}

type GetVerificationStatusRequest struct {
	UserID string `json:"user_id" validate:"required,uuid"`
}

func (r *GetVerificationStatusRequest) Validate() error { return validate.Struct(r) }

type GetVerificationStatusResponse struct {
	IsVerified            bool   `json:"is_verified"`
	VerificationSubmitted bool   `json:"verification_submitted"`
	LatestStatus          string `json:"latest_status,omitempty"`
	NeedsVerification     bool   `json:"needs_verification"`
}
