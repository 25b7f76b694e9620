// Package artifacts stores what a walkthrough run produces: the result
// screenshot and the JSON report. Files are always written locally; an
// optional uploader copies them to object storage under
// walkthrough/<run id>/.
package artifacts

import (
	"context"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/kuitang/plantilla-walkthrough/internal/errs"
)

const keyPrefix = "walkthrough"

// Uploader stores an artifact under key and returns the URL it is served
// from. *s3client.Client implements it.
type Uploader interface {
	Upload(ctx context.Context, key string, data []byte) (string, error)
}

// WriteFile writes data to p, creating parent directories, and returns the
// absolute path written.
func WriteFile(p string, data []byte) (string, error) {
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", errs.Wrap(errs.InvalidArgument, "resolve artifact path", err)
	}
	if dir := filepath.Dir(abs); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", errs.Wrap(errs.Internal, "create artifact directory", err)
		}
	}
	if err := os.WriteFile(abs, data, 0o644); err != nil {
		return "", errs.Wrap(errs.Internal, "write artifact "+filepath.Base(abs), err)
	}
	return abs, nil
}

// Publisher uploads run artifacts. A Publisher with a nil uploader is
// disabled and Publish is a no-op.
type Publisher struct {
	uploader Uploader
	prefix   string
}

// NewPublisher returns a publisher placing objects under walkthrough/<runID>/.
func NewPublisher(u Uploader, runID string) *Publisher {
	return &Publisher{
		uploader: u,
		prefix:   path.Join(keyPrefix, strings.Trim(runID, "/")),
	}
}

// Enabled reports whether Publish uploads anything.
func (p *Publisher) Enabled() bool {
	return p != nil && p.uploader != nil
}

// Key returns the object key used for name.
func (p *Publisher) Key(name string) string {
	return path.Join(p.prefix, path.Base(filepath.ToSlash(name)))
}

// Publish uploads data and returns its URL. Disabled publishers return "".
func (p *Publisher) Publish(ctx context.Context, name string, data []byte) (string, error) {
	if !p.Enabled() {
		return "", nil
	}
	key := p.Key(name)
	url, err := p.uploader.Upload(ctx, key, data)
	if err != nil {
		return "", errs.Wrap(errs.Unavailable, "upload "+key, err)
	}
	return url, nil
}
