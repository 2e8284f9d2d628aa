package verification

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

// MaxEvidenceSize is the upper bound for a single evidence file (5 MiB).
const MaxEvidenceSize = 5 * 1024 * 1024

// supportedImageTypes are the formats the backend recognises by content and
// can thumbnail. HEIC and AVIF are not among them.
var supportedImageTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/gif":  true,
	"image/webp": true,
	"image/bmp":  true,
}

var extensionPattern = regexp.MustCompile(`^[a-z0-9]{1,10}$`)

// EvidenceFile is an in-memory evidence payload held by one step until it is
// uploaded.
type EvidenceFile struct {
	Name        string
	ContentType string
	Data        []byte
}

// NewEvidenceFile validates and wraps a picked or captured file.
func NewEvidenceFile(name, contentType string, data []byte) (*EvidenceFile, error) {
	f := &EvidenceFile{Name: name, ContentType: contentType, Data: data}
	if err := f.validate(); err != nil {
		return nil, &Error{Kind: KindValidation, Op: "evidence", Err: err}
	}
	return f, nil
}

func (f *EvidenceFile) validate() error {
	if !strings.HasPrefix(f.ContentType, "image/") {
		return fmt.Errorf("%w: got %q", ErrNotImage, f.ContentType)
	}
	if !supportedImageTypes[mediaType(f.ContentType)] {
		return fmt.Errorf("%w: got %q", ErrUnsupportedImage, f.ContentType)
	}
	if len(f.Data) == 0 {
		return ErrEmptyEvidence
	}
	if len(f.Data) > MaxEvidenceSize {
		return fmt.Errorf("%w: %d bytes", ErrTooLarge, len(f.Data))
	}
	return nil
}

// Size returns the payload length in bytes.
func (f *EvidenceFile) Size() int64 {
	return int64(len(f.Data))
}

// Extension is the lowercase file-name extension without the dot. Names
// whose extension is not 1-10 letters or digits fall back to the MIME
// subtype, then to "bin".
func (f *EvidenceFile) Extension() string {
	if ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(f.Name), ".")); extensionPattern.MatchString(ext) {
		return ext
	}
	subtype := strings.TrimPrefix(mediaType(f.ContentType), "image/")
	if i := strings.IndexByte(subtype, '+'); i >= 0 {
		subtype = subtype[:i]
	}
	if extensionPattern.MatchString(subtype) {
		return subtype
	}
	return "bin"
}

// mediaType strips parameters and normalises case: "IMAGE/JPEG; q=1"
// becomes "image/jpeg".
func mediaType(contentType string) string {
	mt, _, _ := strings.Cut(contentType, ";")
	return strings.ToLower(strings.TrimSpace(mt))
}

// StoragePath builds the object path for one upload attempt. The millisecond
// timestamp keeps concurrent attempts by the same user apart.
func StoragePath(userID string, evidence EvidenceType, at time.Time, ext string) string {
	return fmt.Sprintf("%s/verification/%s_%d.%s", userID, evidence, at.UnixMilli(), ext)
}
