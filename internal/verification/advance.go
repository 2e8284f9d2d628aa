package verification

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

const notificationContent = "Your verification documents have been submitted for review. You will be notified once approved."

// Advance uploads the current step's evidence and moves to the next step. On
// the last step it submits the verification and completes the workflow. Any
// failure leaves the step and its evidence in place for a retry.
func (w *Workflow) Advance(ctx context.Context) error {
	w.mu.Lock()
	if err := w.beginLocked("advance"); err != nil {
		w.mu.Unlock()
		return err
	}
	step := stepAt(w.step)
	file := w.files[step.Evidence]
	if file == nil {
		err := w.failLocked(&Error{Kind: KindValidation, Op: "advance", Evidence: step.Evidence, Err: ErrNoEvidence})
		w.mu.Unlock()
		return err
	}
	_, uploaded := w.uploads[step.Evidence]
	w.busy = true
	w.lastErr = nil
	w.mu.Unlock()

	if !uploaded {
		up, err := w.upload(ctx, step.Evidence, file)
		if err != nil {
			return w.endAdvance(err)
		}
		if err := w.recordUpload(step.Evidence, up); err != nil {
			return w.endAdvance(err)
		}
	}

	if step.Number < StepCount {
		w.mu.Lock()
		w.busy = false
		if w.closed {
			stale := w.abandonLocked(OutcomeAbandoned)
			w.mu.Unlock()
			w.removeObjects(stale)
			return &Error{Kind: KindState, Op: "advance", Err: ErrFinished}
		}
		w.enterStepLocked(ctx, step.Number+1)
		w.mu.Unlock()
		w.logger.Debug("advanced", zap.Int("step", step.Number+1))
		return nil
	}

	if err := w.submit(ctx); err != nil {
		return w.endAdvance(err)
	}
	return nil
}

// endAdvance clears the in-flight flag after a failed advance and surfaces
// err. A Close that arrived meanwhile is finished here.
func (w *Workflow) endAdvance(err error) error {
	w.mu.Lock()
	w.busy = false
	if w.closed && w.outcome == OutcomePending {
		var stale []string
		if w.submission == nil {
			stale = w.abandonLocked(OutcomeAbandoned)
		} else {
			w.releaseCameraLocked()
			w.outcome = OutcomeAbandoned
		}
		w.mu.Unlock()
		w.removeObjects(stale)
		return err
	}
	w.lastErr = err
	w.mu.Unlock()
	return err
}

// recordUpload stores a successful upload and schedules superseded objects
// for deletion.
func (w *Workflow) recordUpload(t EvidenceType, up uploadedEvidence) error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		w.removeObjects([]string{up.storedPath})
		return &Error{Kind: KindState, Op: "advance", Evidence: t, Err: ErrFinished}
	}
	w.uploads[t] = up
	stale := w.orphans[t]
	delete(w.orphans, t)
	w.mu.Unlock()

	w.removeObjects(stale)
	w.logger.Info("evidence uploaded", zap.String("evidence", string(t)), zap.String("path", up.storedPath))
	return nil
}

// upload races the storage call against the upload deadline. Whichever
// settles first wins; a late result is discarded and, if it succeeded, the
// object it created is deleted.
func (w *Workflow) upload(ctx context.Context, t EvidenceType, f *EvidenceFile) (uploadedEvidence, error) {
	path := StoragePath(w.userID, t, w.now(), f.Extension())

	uploadCtx, cancel := context.WithTimeout(ctx, w.uploadTimeout)
	defer cancel()

	type result struct {
		storedPath string
		err        error
	}
	done := make(chan result, 1)
	go func() {
		stored, err := w.deps.Storage.Upload(uploadCtx, path, f.Data, f.ContentType)
		done <- result{storedPath: stored, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			w.logger.Warn("evidence upload failed", zap.String("evidence", string(t)), zap.Error(res.err))
			return uploadedEvidence{}, &Error{Kind: KindUpload, Op: "upload", Evidence: t, Err: res.err}
		}
		return uploadedEvidence{
			storedPath: res.storedPath,
			url:        w.deps.Storage.PublicURL(res.storedPath),
		}, nil

	case <-uploadCtx.Done():
		w.background.Add(1)
		go func() {
			defer w.background.Done()
			if late := <-done; late.err == nil {
				w.removeObjects([]string{late.storedPath})
			}
		}()

		err := uploadCtx.Err()
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			err = ErrUploadTimeout
		}
		w.logger.Warn("evidence upload abandoned", zap.String("evidence", string(t)), zap.String("path", path), zap.Error(err))
		return uploadedEvidence{}, &Error{Kind: KindUpload, Op: "upload", Evidence: t, Err: err}
	}
}

// submit writes the verification record once, flags the profile, fires the
// best-effort notification and completes the workflow. A Close before the
// insert abandons the attempt instead.
func (w *Workflow) submit(ctx context.Context) error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return &Error{Kind: KindState, Op: "submit", Err: ErrFinished}
	}
	sub := w.submission
	if sub == nil {
		sub = &Submission{
			UserID:              w.userID,
			IdentityDocumentURL: w.uploads[EvidenceIdentity].url,
			AddressDocumentURL:  w.uploads[EvidenceAddress].url,
			SelfieImageURL:      w.uploads[EvidenceSelfie].url,
			Status:              StatusPending,
			SubmittedAt:         w.now().UTC(),
		}
	}
	inserted := w.submission != nil
	w.mu.Unlock()

	if sub.IdentityDocumentURL == "" || sub.AddressDocumentURL == "" || sub.SelfieImageURL == "" {
		return &Error{Kind: KindSubmission, Op: "submit", Err: fmt.Errorf("%w: all three documents must be uploaded", ErrNoEvidence)}
	}

	if !inserted {
		if err := w.deps.Records.InsertVerification(ctx, sub); err != nil {
			w.logger.Error("failed to insert verification", zap.Error(err))
			return &Error{Kind: KindSubmission, Op: "submit", Err: err}
		}
		w.mu.Lock()
		w.submission = sub
		w.mu.Unlock()
	}

	if err := w.deps.Accounts.UpdateProfile(ctx, w.userID, ProfileUpdate{VerificationSubmitted: true}); err != nil {
		w.logger.Error("failed to flag profile", zap.String("verification_id", sub.ID), zap.Error(err))
		return &Error{Kind: KindSubmission, Op: "update profile", Err: err}
	}

	w.notify(ctx)

	w.mu.Lock()
	w.busy = false
	w.releaseCameraLocked()
	w.outcome = OutcomeCompleted
	w.files = make(map[EvidenceType]*EvidenceFile)
	closed := w.closed
	w.mu.Unlock()

	w.logger.Info("verification submitted", zap.String("verification_id", sub.ID), zap.Bool("closed", closed))
	// A closed workflow still finishes a record that was already written but
	// no longer reports to its caller.
	if !closed {
		w.terminal(w.cb.OnComplete)
	}
	return nil
}

// notify enqueues the submission notification on a detached goroutine. Its
// failure is logged and never reaches the caller.
func (w *Workflow) notify(ctx context.Context) {
	if w.deps.Notifier == nil {
		return
	}
	n := Notification{
		UserID:  w.userID,
		Type:    NotificationVerificationSubmitted,
		Title:   "Verification Submitted",
		Content: notificationContent,
	}
	w.background.Add(1)
	go func() {
		defer w.background.Done()
		nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), w.notifyTimeout)
		defer cancel()
		if err := w.deps.Notifier.Enqueue(nctx, n); err != nil {
			w.logger.Warn("failed to enqueue verification notification", zap.Error(err))
		}
	}()
}
