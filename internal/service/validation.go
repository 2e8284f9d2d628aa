package service

import (
	"fmt"
	"net/http"
	"regexp"
	"strings"
)

// sniffLen is how many leading bytes http.DetectContentType looks at.
const sniffLen = 512

var objectName = regexp.MustCompile(`^(identity|address|selfie)_[0-9]{1,19}\.[A-Za-z0-9]{1,10}$`)

// decodableImageTypes are the sniffed types the thumbnail worker can decode.
var decodableImageTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/gif":  true,
	"image/webp": true,
	"image/bmp":  true,
}

// ValidateContentType sniffs the leading bytes of an upload and returns the
// detected type. The declared type is only a hint from the picker and is not
// compared; the bytes decide.
func ValidateContentType(head []byte) (string, error) {
	actualType := http.DetectContentType(head)

	if !strings.HasPrefix(actualType, "image/") {
		return "", fmt.Errorf("content is not an image: detected=%s", actualType)
	}
	if !decodableImageTypes[actualType] {
		return "", fmt.Errorf("unsupported image format: detected=%s", actualType)
	}
	return actualType, nil
}

// evidenceTypeFromPath checks that objectPath lies in userID's verification
// namespace and returns the evidence type encoded in its name.
func evidenceTypeFromPath(userID, objectPath string) (string, error) {
	prefix := userID + "/verification/"
	name, ok := strings.CutPrefix(objectPath, prefix)
	if !ok {
		return "", fmt.Errorf("path must start with %q", prefix)
	}
	m := objectName.FindStringSubmatch(name)
	if m == nil {
		return "", fmt.Errorf("object name %q must look like {type}_{unix_ms}.{ext}", name)
	}
	return m[1], nil
}
