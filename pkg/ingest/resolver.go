package ingest

import (
	"context"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// GenericFilename is the label used when no filename can be derived from the
// attachment reference.
const GenericFilename = "attachment"

// Resolver turns an attachment reference into (filename, contentType, bytes).
type Resolver interface {
	Resolve(ctx context.Context, ref string) (filename string, contentType string, data []byte, err error)
}

// DefaultResolver reads local files and fetches http(s) URLs.
type DefaultResolver struct {
	Client *http.Client
}

func NewDefaultResolver() *DefaultResolver {
	return &DefaultResolver{
		Client: http.DefaultClient,
	}
}

var _ Resolver = (*DefaultResolver)(nil)

func (r *DefaultResolver) Resolve(ctx context.Context, ref string) (string, string, []byte, error) {
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		return r.resolveURL(ctx, ref)
	}
	return r.resolveFile(ref)
}

func (r *DefaultResolver) resolveFile(ref string) (string, string, []byte, error) {
	data, err := os.ReadFile(ref)
	if err != nil {
		return "", "", nil, errors.Wrapf(err, "could not read attachment %s", ref)
	}

	filename := filepath.Base(ref)
	contentType := mime.TypeByExtension(filepath.Ext(ref))
	return filename, contentType, data, nil
}

func (r *DefaultResolver) resolveURL(ctx context.Context, ref string) (string, string, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref, nil)
	if err != nil {
		return "", "", nil, errors.Wrapf(err, "could not build request for %s", ref)
	}

	resp, err := r.Client.Do(req)
	if err != nil {
		return "", "", nil, errors.Wrapf(err, "could not fetch attachment %s", ref)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return "", "", nil, errors.Errorf("could not fetch attachment %s: status %d", ref, resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", "", nil, errors.Wrapf(err, "could not read attachment body for %s", ref)
	}

	return FilenameForRef(ref), resp.Header.Get("Content-Type"), data, nil
}

// FilenameForRef derives a display filename from a reference, falling back to
// the generic label when the reference has no usable final path element.
func FilenameForRef(ref string) string {
	candidate := ref
	if u, err := url.Parse(ref); err == nil && u.Path != "" {
		candidate = u.Path
	}
	base := path.Base(strings.ReplaceAll(candidate, "\\", "/"))
	if base == "" || base == "." || base == "/" {
		return GenericFilename
	}
	return base
}
