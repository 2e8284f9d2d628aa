// Package backend adapts the verification gRPC API to the collaborator
// interfaces of the workflow engine.
package backend

import (
	"context"
	"fmt"
	"path"
	"sync"

	verificationv1 "github.com/PaulBabatuyi/lizexpress-verify/api/verification/v1"
	"github.com/PaulBabatuyi/lizexpress-verify/internal/middleware"
	"github.com/PaulBabatuyi/lizexpress-verify/internal/verification"
	"google.golang.org/grpc"
)

const chunkSize = 64 * 1024 // 64KB chunks

// Client implements verification.ObjectStorage, ObjectRemover, RecordStore,
// Accounts and Notifier for one signed-in user.
type Client struct {
	rpc    verificationv1.VerificationServiceClient
	apiKey string
	userID string

	mu   sync.Mutex
	urls map[string]string // stored path -> public URL
}

var (
	_ verification.ObjectStorage = (*Client)(nil)
	_ verification.ObjectRemover = (*Client)(nil)
	_ verification.RecordStore   = (*Client)(nil)
	_ verification.Accounts      = (*Client)(nil)
	_ verification.Notifier      = (*Client)(nil)
)

func New(cc grpc.ClientConnInterface, apiKey, userID string) *Client {
	return &Client{
		rpc:    verificationv1.NewVerificationServiceClient(cc),
		apiKey: apiKey,
		userID: userID,
		urls:   make(map[string]string),
	}
}

// Dependencies wires the client into a workflow.
func (c *Client) Dependencies(camera verification.CaptureDevice) verification.Dependencies {
	return verification.Dependencies{
		Storage:  c,
		Records:  c,
		Accounts: c,
		Notifier: c,
		Camera:   camera,
	}
}

func (c *Client) outgoing(ctx context.Context) context.Context {
	return middleware.OutgoingCredentials(ctx, c.apiKey, c.userID)
}

// Upload streams data to objectPath in 64KB chunks.
func (c *Client) Upload(ctx context.Context, objectPath string, data []byte, contentType string) (string, error) {
	stream, err := c.rpc.UploadEvidence(c.outgoing(ctx))
	if err != nil {
		return "", fmt.Errorf("failed to create stream: %w", err)
	}

	err = stream.Send(&verificationv1.UploadEvidenceRequest{
		Metadata: &verificationv1.EvidenceMetadata{
			UserID:      c.userID,
			Path:        objectPath,
			Filename:    path.Base(objectPath),
			ContentType: contentType,
			Size:        int64(len(data)),
		},
	})
	if err != nil {
		return "", c.streamError(stream, "send metadata", err)
	}

	for off := 0; off < len(data); off += chunkSize {
		end := min(off+chunkSize, len(data))
		if err := stream.Send(&verificationv1.UploadEvidenceRequest{Chunk: data[off:end]}); err != nil {
			return "", c.streamError(stream, "send chunk", err)
		}
	}

	resp, err := stream.CloseAndRecv()
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", objectPath, err)
	}

	c.mu.Lock()
	c.urls[resp.StoredPath] = resp.PublicURL
	c.mu.Unlock()
	return resp.StoredPath, nil
}

// streamError surfaces the server's status when Send fails because the
// server already closed the stream.
func (c *Client) streamError(stream grpc.ClientStreamingClient[verificationv1.UploadEvidenceRequest, verificationv1.UploadEvidenceResponse], op string, sendErr error) error {
	if _, err := stream.CloseAndRecv(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w", op, sendErr)
}

// PublicURL returns the URL the server reported for storedPath.
func (c *Client) PublicURL(storedPath string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.urls[storedPath]
}

func (c *Client) Remove(ctx context.Context, storedPath string) error {
	_, err := c.rpc.DeleteEvidence(c.outgoing(ctx), &verificationv1.DeleteEvidenceRequest{
		UserID:     c.userID,
		StoredPath: storedPath,
	})
	if err != nil {
		return fmt.Errorf("delete %s: %w", storedPath, err)
	}
	c.mu.Lock()
	delete(c.urls, storedPath)
	c.mu.Unlock()
	return nil
}

func (c *Client) InsertVerification(ctx context.Context, sub *verification.Submission) error {
	resp, err := c.rpc.CreateVerification(c.outgoing(ctx), &verificationv1.CreateVerificationRequest{
		UserID:              sub.UserID,
		IdentityDocumentURL: sub.IdentityDocumentURL,
		AddressDocumentURL:  sub.AddressDocumentURL,
		SelfieImageURL:      sub.SelfieImageURL,
		SubmittedAt:         sub.SubmittedAt,
	})
	if err != nil {
		return fmt.Errorf("create verification: %w", err)
	}
	sub.ID = resp.ID
	sub.Status = resp.Status
	return nil
}

func (c *Client) UpdateProfile(ctx context.Context, userID string, update verification.ProfileUpdate) error {
	_, err := c.rpc.UpdateProfile(c.outgoing(ctx), &verificationv1.UpdateProfileRequest{
		UserID:                userID,
		VerificationSubmitted: update.VerificationSubmitted,
	})
	if err != nil {
		return fmt.Errorf("update profile: %w", err)
	}
	return nil
}

func (c *Client) Enqueue(ctx context.Context, n verification.Notification) error {
	_, err := c.rpc.EnqueueNotification(c.outgoing(ctx), &verificationv1.EnqueueNotificationRequest{
		UserID:  n.UserID,
		Type:    n.Type,
		Title:   n.Title,
		Content: n.Content,
	})
	if err != nil {
		return fmt.Errorf("enqueue notification: %w", err)
	}
	return nil
}

// Status reports whether the user still has to go through verification.
func (c *Client) Status(ctx context.Context) (*verificationv1.GetVerificationStatusResponse, error) {
	resp, err := c.rpc.GetVerificationStatus(c.outgoing(ctx), &verificationv1.GetVerificationStatusRequest{UserID: c.userID})
	if err != nil {
		return nil, fmt.Errorf("get verification status: %w", err)
	}
	return resp, nil
}
