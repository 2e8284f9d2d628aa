package service

import (
	"context"
	"errors"
	"io"

	verificationv1 "github.com/PaulBabatuyi/lizexpress-verify/api/verification/v1"
	"github.com/PaulBabatuyi/lizexpress-verify/internal/database"
	"github.com/PaulBabatuyi/lizexpress-verify/internal/middleware"
	"github.com/PaulBabatuyi/lizexpress-verify/internal/observability"
	"github.com/PaulBabatuyi/lizexpress-verify/internal/storage"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// authorize ensures the request is made on behalf of the authenticated caller.
func authorize(ctx context.Context, userID string) error {
	caller, err := middleware.ExtractUserID(ctx)
	if err != nil {
		return err
	}
	if caller != userID {
		return status.Error(codes.PermissionDenied, "user_id does not match caller")
	}
	return nil
}

func (s *verificationServer) UploadEvidence(stream grpc.ClientStreamingServer[verificationv1.UploadEvidenceRequest, verificationv1.UploadEvidenceResponse]) error {
	ctx := stream.Context()

	if err := s.uploadSem.Acquire(ctx, 1); err != nil {
		return status.FromContextError(err).Err()
	}
	defer s.uploadSem.Release(1)

	// Receive first message
	firstMsg, err := stream.Recv()
	if err != nil {
		return status.Error(codes.InvalidArgument, "no metadata received")
	}

	metadata := firstMsg.GetMetadata()
	if metadata == nil {
		return status.Error(codes.InvalidArgument, "first message must be metadata")
	}
	if err := metadata.Validate(); err != nil {
		s.metrics.ObserveUpload("", observability.ResultRejected, 0)
		return status.Errorf(codes.InvalidArgument, "validation failed: %v", err)
	}
	if err := authorize(ctx, metadata.UserID); err != nil {
		return err
	}
	evidenceType, err := evidenceTypeFromPath(metadata.UserID, metadata.Path)
	if err != nil {
		s.metrics.ObserveUpload("", observability.ResultRejected, 0)
		return status.Errorf(codes.InvalidArgument, "invalid path: %v", err)
	}

	written, detectedType, err := s.receiveObject(stream, metadata)
	if err != nil {
		if status.Code(err) == codes.Internal {
			s.metrics.ObserveUpload(evidenceType, observability.ResultError, 0)
		} else {
			s.metrics.ObserveUpload(evidenceType, observability.ResultRejected, 0)
		}
		return err
	}

	obj := &database.EvidenceObject{
		ID:          uuid.NewString(),
		UserID:      metadata.UserID,
		StoredPath:  metadata.Path,
		Filename:    metadata.Filename,
		ContentType: detectedType,
		Size:        written,
		UploadedAt:  s.now().UTC(),
	}
	if err := s.database.SaveEvidence(ctx, obj); err != nil {
		s.logger.Error("failed to save evidence metadata", zap.String("path", metadata.Path), zap.Error(err))
		s.discard(metadata.Path)
		s.metrics.ObserveUpload(evidenceType, observability.ResultError, 0)
		return status.Error(codes.Internal, "failed to save metadata")
	}

	s.metrics.ObserveUpload(evidenceType, observability.ResultSuccess, written)
	return stream.SendAndClose(&verificationv1.UploadEvidenceResponse{
		StoredPath: metadata.Path,
		PublicURL:  s.urls.URL(metadata.Path),
		Size:       written,
	})
}

// receiveObject streams the chunks into a new object and returns its size and
// sniffed content type. On any failure the partial object is removed.
func (s *verificationServer) receiveObject(stream grpc.ClientStreamingServer[verificationv1.UploadEvidenceRequest, verificationv1.UploadEvidenceResponse], metadata *verificationv1.EvidenceMetadata) (int64, string, error) {
	writer, err := s.storage.CreateFile(metadata.Path)
	switch {
	case errors.Is(err, storage.ErrExists):
		return 0, "", status.Error(codes.AlreadyExists, "object already exists")
	case errors.Is(err, storage.ErrInvalidPath):
		return 0, "", status.Error(codes.InvalidArgument, "invalid path")
	case err != nil:
		s.logger.Error("failed to create object", zap.String("path", metadata.Path), zap.Error(err))
		return 0, "", status.Error(codes.Internal, "failed to create file")
	}

	committed := false
	defer func() {
		if !committed {
			writer.Close()
			s.discard(metadata.Path)
		}
	}()

	head := make([]byte, 0, sniffLen)
	sniffed := false
	detectedType := ""
	totalSize := int64(0)
	for {
		msg, err := stream.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			return 0, "", status.Error(codes.Canceled, "upload interrupted")
		}

		chunk := msg.GetChunk()
		totalSize += int64(len(chunk))
		if totalSize > metadata.Size || totalSize > verificationv1.MaxEvidenceSize {
			return 0, "", status.Error(codes.InvalidArgument, "evidence too large")
		}

		if !sniffed {
			head = append(head, chunk[:min(len(chunk), sniffLen-len(head))]...)
			if len(head) == sniffLen {
				if detectedType, err = ValidateContentType(head); err != nil {
					return 0, "", status.Error(codes.InvalidArgument, err.Error())
				}
				sniffed = true
			}
		}

		if _, err := writer.Write(chunk); err != nil {
			return 0, "", status.Error(codes.Internal, "failed to write chunk")
		}
	}

	if totalSize != metadata.Size {
		return 0, "", status.Errorf(codes.InvalidArgument, "size mismatch: declared %d, received %d", metadata.Size, totalSize)
	}
	if !sniffed {
		if detectedType, err = ValidateContentType(head); err != nil {
			return 0, "", status.Error(codes.InvalidArgument, err.Error())
		}
	}
	if err := writer.Close(); err != nil {
		return 0, "", status.Error(codes.Internal, "failed to finalize file")
	}
	committed = true
	return totalSize, detectedType, nil
}

func (s *verificationServer) discard(objectPath string) {
	if err := s.storage.DeleteFile(objectPath); err != nil && !errors.Is(err, storage.ErrNotFound) {
		s.logger.Warn("failed to remove partial object", zap.String("path", objectPath), zap.Error(err))
	}
}

func (s *verificationServer) DeleteEvidence(ctx context.Context, req *verificationv1.DeleteEvidenceRequest) (*verificationv1.DeleteEvidenceResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "validation failed: %v", err)
	}
	if err := authorize(ctx, req.UserID); err != nil {
		return nil, err
	}

	obj, err := s.database.GetEvidence(ctx, req.StoredPath)
	if errors.Is(err, database.ErrNotFound) {
		return nil, status.Error(codes.NotFound, "evidence not found")
	}
	if err != nil {
		return nil, status.Error(codes.Internal, "database error")
	}
	if obj.UserID != req.UserID {
		return nil, status.Error(codes.PermissionDenied, "not owner")
	}

	// Orphaned bytes are cheaper than a row pointing at nothing.
	if err := s.storage.DeleteFile(obj.StoredPath); err != nil && !errors.Is(err, storage.ErrNotFound) {
		s.logger.Warn("failed to delete evidence from storage", zap.String("path", obj.StoredPath), zap.Error(err))
	}
	if err := s.database.DeleteEvidence(ctx, obj.StoredPath, req.UserID); err != nil && !errors.Is(err, database.ErrNotFound) {
		return nil, status.Error(codes.Internal, "failed to delete evidence metadata")
	}

	return &verificationv1.DeleteEvidenceResponse{
		Success: true,
		Message: "evidence deleted",
	}, nil
}

func (s *verificationServer) CreateVerification(ctx context.Context, req *verificationv1.CreateVerificationRequest) (*verificationv1.CreateVerificationResponse, error) {
	if err := req.Validate(); err != nil {
		s.metrics.ObserveSubmission(observability.ResultRejected)
		return nil, status.Errorf(codes.InvalidArgument, "validation failed: %v", err)
	}
	if err := authorize(ctx, req.UserID); err != nil {
		return nil, err
	}

	for _, u := range []string{req.IdentityDocumentURL, req.AddressDocumentURL, req.SelfieImageURL} {
		if err := s.checkEvidenceURL(ctx, req.UserID, u); err != nil {
			s.metrics.ObserveSubmission(observability.ResultRejected)
			return nil, err
		}
	}

	submittedAt := req.SubmittedAt.UTC()
	if req.SubmittedAt.IsZero() {
		submittedAt = s.now().UTC()
	}
	rec := &database.VerificationRecord{
		ID:                  uuid.NewString(),
		UserID:              req.UserID,
		IdentityDocumentURL: req.IdentityDocumentURL,
		AddressDocumentURL:  req.AddressDocumentURL,
		SelfieImageURL:      req.SelfieImageURL,
		Status:              database.VerificationPending,
		SubmittedAt:         submittedAt,
	}
	if err := s.database.InsertVerification(ctx, rec); err != nil {
		s.logger.Error("failed to insert verification", zap.String("user_id", req.UserID), zap.Error(err))
		s.metrics.ObserveSubmission(observability.ResultError)
		return nil, status.Error(codes.Internal, "failed to create verification")
	}
	s.metrics.ObserveSubmission(observability.ResultSuccess)

	if _, err := s.database.CreateProcessingJob(ctx, rec.ID); err != nil {
		s.logger.Warn("failed to create processing job", zap.String("verification_id", rec.ID), zap.Error(err))
	}

	return &verificationv1.CreateVerificationResponse{
		ID:          rec.ID,
		Status:      rec.Status,
		SubmittedAt: rec.SubmittedAt,
	}, nil
}

// checkEvidenceURL accepts only URLs of stored objects owned by userID.
func (s *verificationServer) checkEvidenceURL(ctx context.Context, userID, rawURL string) error {
	objectPath, ok := s.urls.StoredPath(rawURL)
	if !ok {
		return status.Errorf(codes.InvalidArgument, "%s is not a stored evidence url", rawURL)
	}
	obj, err := s.database.GetEvidence(ctx, objectPath)
	if errors.Is(err, database.ErrNotFound) {
		return status.Errorf(codes.FailedPrecondition, "evidence %s has not been uploaded", objectPath)
	}
	if err != nil {
		return status.Error(codes.Internal, "database error")
	}
	if obj.UserID != userID {
		return status.Error(codes.PermissionDenied, "evidence belongs to another user")
	}
	return nil
}

func (s *verificationServer) UpdateProfile(ctx context.Context, req *verificationv1.UpdateProfileRequest) (*verificationv1.UpdateProfileResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "validation failed: %v", err)
	}
	if err := authorize(ctx, req.UserID); err != nil {
		return nil, err
	}
	if err := s.database.SetVerificationSubmitted(ctx, req.UserID, req.VerificationSubmitted); err != nil {
		s.logger.Error("failed to update profile", zap.String("user_id", req.UserID), zap.Error(err))
		return nil, status.Error(codes.Internal, "failed to update profile")
	}
	return &verificationv1.UpdateProfileResponse{}, nil
}

func (s *verificationServer) EnqueueNotification(ctx context.Context, req *verificationv1.EnqueueNotificationRequest) (*verificationv1.EnqueueNotificationResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "validation failed: %v", err)
	}
	if err := authorize(ctx, req.UserID); err != nil {
		return nil, err
	}
	n := &database.Notification{
		ID:      uuid.NewString(),
		UserID:  req.UserID,
		Type:    req.Type,
		Title:   req.Title,
		Content: req.Content,
	}
	if err := s.database.InsertNotification(ctx, n); err != nil {
		s.logger.Error("failed to enqueue notification", zap.String("user_id", req.UserID), zap.Error(err))
		return nil, status.Error(codes.Internal, "failed to enqueue notification")
	}
	return &verificationv1.EnqueueNotificationResponse{ID: n.ID}, nil
}

func (s *verificationServer) GetVerificationStatus(ctx context.Context, req *verificationv1.GetVerificationStatusRequest) (*verificationv1.GetVerificationStatusResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "validation failed: %v", err)
	}
	if err := authorize(ctx, req.UserID); err != nil {
		return nil, err
	}

	st, err := s.database.GetUserStatus(ctx, req.UserID)
	if err != nil {
		return nil, status.Error(codes.Internal, "failed to load profile")
	}
	resp := &verificationv1.GetVerificationStatusResponse{
		IsVerified:            st.IsVerified,
		VerificationSubmitted: st.VerificationSubmitted,
		NeedsVerification:     !st.IsVerified && !st.VerificationSubmitted,
	}

	latest, err := s.database.LatestVerification(ctx, req.UserID)
	switch {
	case err == nil:
		resp.LatestStatus = latest.Status
	case !errors.Is(err, database.ErrNotFound):
		return nil, status.Error(codes.Internal, "failed to load verification")
	}
	return resp, nil
}
