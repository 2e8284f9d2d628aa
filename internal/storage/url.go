package storage

import (
	"fmt"
	"net/url"
	"strings"
)

// PublicURLs maps stored object paths to the URLs they are served at and
// back.
type PublicURLs struct {
	base string
}

func NewPublicURLs(base string) (*PublicURLs, error) {
	u, err := url.Parse(base)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("invalid public base url %q", base)
	}
	return &PublicURLs{base: strings.TrimRight(base, "/")}, nil
}

func (p *PublicURLs) URL(objectPath string) string {
	return p.base + "/" + objectPath
}

// StoredPath reverses URL. It reports false for URLs outside the base.
func (p *PublicURLs) StoredPath(rawURL string) (string, bool) {
	rest, ok := strings.CutPrefix(rawURL, p.base+"/")
	if !ok || rest == "" {
		return "", false
	}
	return rest, true
}
