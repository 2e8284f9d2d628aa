package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/PaulBabatuyi/lizexpress-verify/internal/backend"
	"github.com/PaulBabatuyi/lizexpress-verify/internal/camera"
	"github.com/PaulBabatuyi/lizexpress-verify/internal/config"
	"github.com/PaulBabatuyi/lizexpress-verify/internal/observability"
	"github.com/PaulBabatuyi/lizexpress-verify/internal/verification"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

const helpText = `commands:
  attach <file>   attach an image for the current step
  remove          clear the current step's evidence
  capture         take the selfie from the camera
  retake          discard the selfie and re-arm the camera
  next            upload and continue (submits on the last step)
  back            go to the previous step
  skip            verify later (step 1 only)
  status          show the current step
  quit            abandon verification`

func main() {
	cfg, err := config.LoadClient()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := observability.InitLogger("verification-client", true)
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer logger.Sync()
	logger.Debug("client config", cfg.LogFields()...)
	sugar := observability.NewSugaredLogger(logger)

	conn, err := grpc.NewClient(cfg.ServerAddr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		sugar.Fatalf("failed to connect: %v", err)
	}
	defer conn.Close()

	ctx := context.Background()
	client := backend.New(conn, cfg.APIKey, cfg.UserID)

	st, err := client.Status(ctx)
	if err != nil {
		sugar.Fatalf("failed to get verification status: %v", err)
	}
	if !st.NeedsVerification {
		fmt.Println("✓ Verification already submitted, nothing to do")
		return
	}

	var device verification.CaptureDevice
	if cfg.CameraSnapshotURL != "" {
		device = camera.NewSnapshotDevice(cfg.CameraSnapshotURL, nil, logger)
	}

	done := make(chan string, 1)
	wf, err := verification.Start(ctx, cfg.UserID, client.Dependencies(device), verification.Callbacks{
		OnComplete: func() { done <- "✓ Verification submitted, you will be notified once approved" },
		OnSkip:     func() { done <- "Verification skipped, you can verify later" },
	},
		verification.WithLogger(logger),
		verification.WithUploadTimeout(cfg.UploadTimeout),
	)
	if err != nil {
		sugar.Fatalf("failed to start verification: %v", err)
	}

	r := &repl{wf: wf, in: bufio.NewScanner(os.Stdin), out: os.Stdout}
	r.printStep()
	fmt.Fprintln(r.out, helpText)

	for {
		select {
		case msg := <-done:
			wf.Wait()
			fmt.Fprintln(r.out, msg)
			return
		default:
		}

		line, ok := r.prompt()
		if !ok {
			wf.Close()
			wf.Wait()
			return
		}
		if quit := r.exec(ctx, line); quit {
			wf.Close()
			wf.Wait()
			fmt.Fprintln(r.out, "Verification abandoned")
			return
		}
	}
}

type repl struct {
	wf  *verification.Workflow
	in  *bufio.Scanner
	out io.Writer
}

func (r *repl) prompt() (string, bool) {
	fmt.Fprintf(r.out, "[%d/%d] > ", r.wf.Step(), verification.StepCount)
	if !r.in.Scan() {
		return "", false
	}
	return strings.TrimSpace(r.in.Text()), true
}

func (r *repl) exec(ctx context.Context, line string) (quit bool) {
	cmd, arg, _ := strings.Cut(line, " ")
	var err error
	switch cmd {
	case "":
		return false
	case "attach":
		err = r.attach(strings.TrimSpace(arg))
	case "remove":
		err = r.wf.Remove(ctx)
	case "capture":
		err = r.wf.Capture(ctx)
	case "retake":
		err = r.wf.Retake(ctx)
	case "next":
		fmt.Fprintln(r.out, "Uploading...")
		err = r.wf.Advance(ctx)
	case "back":
		err = r.wf.Retreat(ctx)
	case "skip":
		err = r.wf.Skip()
	case "status":
	case "help":
		fmt.Fprintln(r.out, helpText)
		return false
	case "quit", "exit":
		return true
	default:
		fmt.Fprintf(r.out, "unknown command %q, type help\n", cmd)
		return false
	}

	if err != nil {
		fmt.Fprintf(r.out, "✗ %v\n", err)
		r.wf.DismissError()
		return false
	}
	if werr := r.wf.Err(); werr != nil {
		fmt.Fprintf(r.out, "! %v\n", werr)
	}
	if !r.wf.Done() {
		r.printStep()
	}
	return false
}

func (r *repl) attach(filePath string) error {
	if filePath == "" {
		return errors.New("usage: attach <file>")
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}
	f, err := verification.NewEvidenceFile(filepath.Base(filePath), detectContentType(filePath), data)
	if err != nil {
		return err
	}
	return r.wf.Attach(f)
}

func (r *repl) printStep() {
	step := r.wf.CurrentStep()
	fmt.Fprintf(r.out, "\n=== Step %d of %d: %s ===\n%s\n", step.Number, verification.StepCount, step.Title, step.Description)
	if f := r.wf.Evidence(step.Evidence); f != nil {
		fmt.Fprintf(r.out, "  evidence: %s (%s, %d bytes)\n", f.Name, f.ContentType, f.Size())
	}
	if step.Capture == verification.CaptureLive {
		if r.wf.CameraActive() {
			fmt.Fprintln(r.out, "  camera: ready")
		} else {
			fmt.Fprintln(r.out, "  camera: off")
		}
	}
}

// detectContentType returns a MIME type based on file extension.
func detectContentType(filePath string) string {
	switch strings.ToLower(filepath.Ext(filePath)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".webp":
		return "image/webp"
	case ".gif":
		return "image/gif"
	case ".heic":
		return "image/heic"
	case ".pdf":
		return "application/pdf"
	default:
		return "application/octet-stream"
	}
}
