package verification

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	DefaultUploadTimeout       = 30 * time.Second
	defaultNotificationTimeout = 10 * time.Second
)

// Outcome is how a workflow ended.
type Outcome int

const (
	OutcomePending Outcome = iota
	OutcomeCompleted
	OutcomeSkipped
	OutcomeAbandoned
)

type uploadedEvidence struct {
	storedPath string
	url        string
}

// Workflow drives one verification attempt through its steps. All state is
// private to the attempt and dropped when it ends.
//
// Device calls (camera acquire, frame, stop) run with the workflow lock held
// and must not call back into the workflow.
type Workflow struct {
	userID        string
	deps          Dependencies
	cb            Callbacks
	logger        *zap.Logger
	now           func() time.Time
	uploadTimeout time.Duration
	notifyTimeout time.Duration

	mu         sync.Mutex
	step       int
	files      map[EvidenceType]*EvidenceFile
	uploads    map[EvidenceType]uploadedEvidence
	orphans    map[EvidenceType][]string
	camera     *cameraSession
	submission *Submission
	busy       bool
	closed     bool
	outcome    Outcome
	lastErr    error

	terminalOnce sync.Once
	background   sync.WaitGroup
}

type Option func(*Workflow)

func WithLogger(logger *zap.Logger) Option {
	return func(w *Workflow) { w.logger = logger }
}

// WithUploadTimeout overrides the 30s deadline each upload races against.
func WithUploadTimeout(d time.Duration) Option {
	return func(w *Workflow) { w.uploadTimeout = d }
}

func WithNotificationTimeout(d time.Duration) Option {
	return func(w *Workflow) { w.notifyTimeout = d }
}

func WithClock(now func() time.Time) Option {
	return func(w *Workflow) { w.now = now }
}

// Start begins a verification attempt for userID on step 1.
func Start(ctx context.Context, userID string, deps Dependencies, cb Callbacks, opts ...Option) (*Workflow, error) {
	if userID == "" {
		return nil, errors.New("verification: user id required")
	}
	if deps.Storage == nil || deps.Records == nil || deps.Accounts == nil {
		return nil, errors.New("verification: storage, record store and accounts are required")
	}
	if cb.OnComplete == nil {
		return nil, errors.New("verification: OnComplete callback required")
	}

	w := &Workflow{
		userID:        userID,
		deps:          deps,
		cb:            cb,
		logger:        zap.NewNop(),
		now:           time.Now,
		uploadTimeout: DefaultUploadTimeout,
		notifyTimeout: defaultNotificationTimeout,
		step:          1,
		files:         make(map[EvidenceType]*EvidenceFile),
		uploads:       make(map[EvidenceType]uploadedEvidence),
		orphans:       make(map[EvidenceType][]string),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = w.logger.With(zap.String("component", "verification"), zap.String("user_id", userID))

	w.mu.Lock()
	w.enterStepLocked(ctx, 1)
	w.mu.Unlock()
	return w, nil
}

// Step returns the current step number (1-based).
func (w *Workflow) Step() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.step
}

func (w *Workflow) CurrentStep() Step {
	w.mu.Lock()
	defer w.mu.Unlock()
	return stepAt(w.step)
}

// Evidence returns the file held for t, or nil.
func (w *Workflow) Evidence(t EvidenceType) *EvidenceFile {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.files[t]
}

// Uploaded returns the URLs of the completed steps.
func (w *Workflow) Uploaded() map[EvidenceType]string {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make(map[EvidenceType]string, len(w.uploads))
	for t, u := range w.uploads {
		out[t] = u.url
	}
	return out
}

// CameraActive reports whether a camera session is currently held.
func (w *Workflow) CameraActive() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.camera != nil
}

func (w *Workflow) Busy() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.busy
}

func (w *Workflow) Outcome() Outcome {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.outcome
}

// Done reports whether the workflow reached a terminal state.
func (w *Workflow) Done() bool {
	return w.Outcome() != OutcomePending
}

// Submission returns the inserted verification record, if any.
func (w *Workflow) Submission() *Submission {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.submission == nil {
		return nil
	}
	sub := *w.submission
	return &sub
}

// Err returns the message currently shown to the user, if any.
func (w *Workflow) Err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastErr
}

func (w *Workflow) DismissError() {
	w.mu.Lock()
	w.lastErr = nil
	w.mu.Unlock()
}

// Wait blocks until detached background work (notification, orphan cleanup)
// has settled.
func (w *Workflow) Wait() {
	w.background.Wait()
}

// Attach holds f as the evidence of the current file-upload step, replacing
// any previous file.
func (w *Workflow) Attach(f *EvidenceFile) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.beginLocked("attach"); err != nil {
		return err
	}
	step := stepAt(w.step)
	if step.Capture != CaptureFile {
		return w.failLocked(&Error{Kind: KindValidation, Op: "attach", Evidence: step.Evidence, Err: ErrLiveCaptureRequired})
	}
	if f == nil {
		return w.failLocked(&Error{Kind: KindValidation, Op: "attach", Evidence: step.Evidence, Err: ErrNoEvidence})
	}
	if err := f.validate(); err != nil {
		return w.failLocked(&Error{Kind: KindValidation, Op: "attach", Evidence: step.Evidence, Err: err})
	}
	w.setFileLocked(step.Evidence, f)
	w.lastErr = nil
	return nil
}

// Remove clears the current step's evidence. On the selfie step the camera is
// re-armed.
func (w *Workflow) Remove(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.beginLocked("remove"); err != nil {
		return err
	}
	step := stepAt(w.step)
	w.setFileLocked(step.Evidence, nil)
	if step.Capture == CaptureLive {
		w.acquireCameraLocked(ctx)
	}
	return nil
}

// Retreat moves back one step. Uploaded evidence is kept.
func (w *Workflow) Retreat(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.beginLocked("retreat"); err != nil {
		return err
	}
	if w.step <= 1 {
		return w.failLocked(&Error{Kind: KindState, Op: "retreat", Err: ErrFirstStep})
	}
	w.lastErr = nil
	w.enterStepLocked(ctx, w.step-1)
	return nil
}

// Skip defers verification. Only valid on step 1 and only when the caller
// supplied OnSkip.
func (w *Workflow) Skip() error {
	w.mu.Lock()
	if err := w.beginLocked("skip"); err != nil {
		w.mu.Unlock()
		return err
	}
	if w.step != 1 {
		err := w.failLocked(&Error{Kind: KindState, Op: "skip", Err: ErrNotFirstStep})
		w.mu.Unlock()
		return err
	}
	if w.cb.OnSkip == nil {
		err := w.failLocked(&Error{Kind: KindState, Op: "skip", Err: ErrSkipUnavailable})
		w.mu.Unlock()
		return err
	}
	stale := w.abandonLocked(OutcomeSkipped)
	w.mu.Unlock()

	w.logger.Info("verification skipped")
	w.removeObjects(stale)
	w.terminal(w.cb.OnSkip)
	return nil
}

// Close tears the workflow down. The camera is released immediately. If an
// advance is in flight it finishes the teardown when it returns.
func (w *Workflow) Close() error {
	w.mu.Lock()
	if w.outcome != OutcomePending {
		w.mu.Unlock()
		return nil
	}
	w.releaseCameraLocked()
	w.closed = true
	if w.busy {
		w.mu.Unlock()
		return nil
	}
	stale := w.abandonLocked(OutcomeAbandoned)
	w.mu.Unlock()

	w.logger.Info("verification abandoned", zap.Int("step", w.Step()))
	w.removeObjects(stale)
	return nil
}

// beginLocked guards every mutating operation.
func (w *Workflow) beginLocked(op string) error {
	if w.outcome != OutcomePending || w.closed {
		return &Error{Kind: KindState, Op: op, Err: ErrFinished}
	}
	if w.busy {
		return &Error{Kind: KindState, Op: op, Err: ErrBusy}
	}
	return nil
}

func (w *Workflow) failLocked(err error) error {
	w.lastErr = err
	return err
}

// setFileLocked swaps the held evidence for t. An already uploaded object for
// t no longer matches the held evidence, so it becomes an orphan.
func (w *Workflow) setFileLocked(t EvidenceType, f *EvidenceFile) {
	if up, ok := w.uploads[t]; ok {
		w.orphans[t] = append(w.orphans[t], up.storedPath)
		delete(w.uploads, t)
	}
	if f == nil {
		delete(w.files, t)
		return
	}
	w.files[t] = f
}

func (w *Workflow) enterStepLocked(ctx context.Context, n int) {
	w.step = n
	step := stepAt(n)
	if step.Capture != CaptureLive {
		w.releaseCameraLocked()
		return
	}
	if w.files[step.Evidence] == nil {
		w.acquireCameraLocked(ctx)
	}
}

// abandonLocked ends the attempt without a record and returns every object
// uploaded so far for best-effort deletion.
func (w *Workflow) abandonLocked(outcome Outcome) []string {
	w.releaseCameraLocked()
	w.outcome = outcome
	var stale []string
	for t, up := range w.uploads {
		stale = append(stale, up.storedPath)
		delete(w.uploads, t)
	}
	for t, paths := range w.orphans {
		stale = append(stale, paths...)
		delete(w.orphans, t)
	}
	w.files = make(map[EvidenceType]*EvidenceFile)
	return stale
}

func (w *Workflow) terminal(fn func()) {
	w.terminalOnce.Do(func() {
		if fn != nil {
			fn()
		}
	})
}

// removeObjects deletes stored objects on a detached goroutine. It is a no-op
// when the storage cannot delete.
func (w *Workflow) removeObjects(paths []string) {
	remover, ok := w.deps.Storage.(ObjectRemover)
	if !ok || len(paths) == 0 {
		return
	}
	w.background.Add(1)
	go func() {
		defer w.background.Done()
		ctx, cancel := context.WithTimeout(context.Background(), w.uploadTimeout)
		defer cancel()
		for _, p := range paths {
			if err := remover.Remove(ctx, p); err != nil {
				w.logger.Warn("failed to remove orphaned evidence", zap.String("path", p), zap.Error(err))
			}
		}
	}()
}
