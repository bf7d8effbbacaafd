// Package media turns captured or picked images into durable, app-owned files
// that products can reference.
//
// Acquisition and commit are separate steps. A capture first gets a staging
// file to write into; committing copies the bytes into the durable directory
// under a fresh name and returns a reference of the form "media://<name>".
// A commit either produces a complete file or leaves nothing behind.
package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	serrors "github.com/abgdnv/storekeeper/internal/errors"
	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

// Scheme prefixes every durable image reference.
const Scheme = "media://"

const (
	stagingPrefix = "capture-"
	stagingSuffix = ".tmp"
	partialPrefix = ".partial-"
	timeLayout    = "20060102T150405.000000000Z"
)

var (
	stagingName = regexp.MustCompile(`^capture-[0-9TZ.]+-[0-9a-f]{32}\.tmp$`)
	durableName = regexp.MustCompile(`^[0-9TZ.]+-[0-9a-f]{32}\.[a-z0-9]+$`)
)

// Config describes the pipeline's directories and limits.
type Config struct {
	// Dir holds committed images.
	Dir string
	// StagingDir holds in-progress captures.
	StagingDir string
	// MaxBytes caps the size of a single image.
	MaxBytes int64
}

// Handle identifies a staging location handed to a capture source.
type Handle struct {
	ID   string
	Path string
}

// Pipeline stages, commits and reclaims image files.
type Pipeline struct {
	dir        string
	stagingDir string
	maxBytes   int64
	now        func() time.Time
	logger     *slog.Logger
}

// NewPipeline creates both directories if needed.
func NewPipeline(cfg Config, logger *slog.Logger) (*Pipeline, error) {
	if cfg.MaxBytes <= 0 {
		return nil, fmt.Errorf("invalid max bytes: %d", cfg.MaxBytes)
	}
	dir, err := filepath.Abs(cfg.Dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve media dir: %w", err)
	}
	stagingDir, err := filepath.Abs(cfg.StagingDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve staging dir: %w", err)
	}
	for _, d := range []string{dir, stagingDir} {
		if err := os.MkdirAll(d, 0o750); err != nil {
			return nil, fmt.Errorf("failed to create %s: %w", d, err)
		}
	}
	return &Pipeline{
		dir:        dir,
		stagingDir: stagingDir,
		maxBytes:   cfg.MaxBytes,
		now:        time.Now,
		logger:     logger.With("component", "media"),
	}, nil
}

// StageCapture allocates an empty, uniquely named staging file for a capture
// source to write into.
func (p *Pipeline) StageCapture(_ context.Context) (Handle, error) {
	id := stagingPrefix + p.uniqueName() + stagingSuffix
	path := filepath.Join(p.stagingDir, id)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return Handle{}, fmt.Errorf("%w: failed to allocate staging file: %w", serrors.ErrIOFailure, err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return Handle{}, fmt.Errorf("%w: failed to allocate staging file: %w", serrors.ErrIOFailure, err)
	}
	return Handle{ID: id, Path: path}, nil
}

// LookupStaging rebuilds a handle from its ID. Returns ErrNotFound for
// malformed or unknown IDs.
func (p *Pipeline) LookupStaging(id string) (Handle, error) {
	if !stagingName.MatchString(id) {
		return Handle{}, serrors.ErrNotFound
	}
	path := filepath.Join(p.stagingDir, id)
	if _, err := os.Stat(path); err != nil {
		return Handle{}, serrors.ErrNotFound
	}
	return Handle{ID: id, Path: path}, nil
}

// CommitStaged moves the bytes written to h into durable storage and removes
// the staging file. Returns ErrSourceUnavailable if nothing was written.
func (p *Pipeline) CommitStaged(ctx context.Context, h Handle) (string, error) {
	if !stagingName.MatchString(h.ID) || filepath.Join(p.stagingDir, h.ID) != h.Path {
		return "", fmt.Errorf("%w: unknown staging handle", serrors.ErrSourceUnavailable)
	}
	f, err := os.Open(h.Path)
	if err != nil {
		return "", fmt.Errorf("%w: staging file: %w", serrors.ErrSourceUnavailable, err)
	}
	ref, err := p.CommitReader(ctx, f)
	_ = f.Close()
	if err != nil {
		if errors.Is(err, serrors.ErrSourceUnavailable) {
			p.discard(h.Path)
		}
		return "", err
	}
	p.discard(h.Path)
	return ref, nil
}

// CommitExternal copies an image the process can read (a path or file:// URI)
// into durable storage. The source is never referenced after this returns.
func (p *Pipeline) CommitExternal(ctx context.Context, source string) (string, error) {
	path, err := sourcePath(source)
	if err != nil {
		return "", err
	}
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("%w: %w", serrors.ErrSourceUnavailable, err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return "", fmt.Errorf("%w: %w", serrors.ErrSourceUnavailable, err)
	}
	if !info.Mode().IsRegular() {
		return "", fmt.Errorf("%w: %s is not a regular file", serrors.ErrSourceUnavailable, path)
	}
	return p.CommitReader(ctx, f)
}

// CommitReader reads r fully into a new durable image and returns its reference.
// Empty or non-image input fails with ErrSourceUnavailable; copy failures and
// oversized input fail with ErrIOFailure. On failure no file is left behind.
func (p *Pipeline) CommitReader(ctx context.Context, r io.Reader) (ref string, err error) {
	tmp, err := os.CreateTemp(p.dir, partialPrefix+"*")
	if err != nil {
		return "", fmt.Errorf("%w: failed to create file: %w", serrors.ErrIOFailure, err)
	}
	tmpPath := tmp.Name()
	defer func() {
		if err != nil {
			_ = tmp.Close()
			if rmErr := os.Remove(tmpPath); rmErr != nil && !errors.Is(rmErr, fs.ErrNotExist) {
				p.logger.WarnContext(ctx, "Failed to remove partial image", "path", tmpPath, "error", rmErr)
			}
		}
	}()

	n, err := io.Copy(tmp, io.LimitReader(&ctxReader{ctx: ctx, r: r}, p.maxBytes+1))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		return "", fmt.Errorf("%w: copy failed: %w", serrors.ErrIOFailure, err)
	}
	if n == 0 {
		return "", fmt.Errorf("%w: no image data", serrors.ErrSourceUnavailable)
	}
	if n > p.maxBytes {
		return "", fmt.Errorf("%w: image exceeds %d bytes", serrors.ErrIOFailure, p.maxBytes)
	}

	mtype, err := mimetype.DetectFile(tmpPath)
	if err != nil {
		return "", fmt.Errorf("%w: failed to sniff content: %w", serrors.ErrIOFailure, err)
	}
	if !strings.HasPrefix(mtype.String(), "image/") {
		return "", fmt.Errorf("%w: content is %s, not an image", serrors.ErrSourceUnavailable, mtype.String())
	}

	if err = tmp.Sync(); err != nil {
		return "", fmt.Errorf("%w: sync failed: %w", serrors.ErrIOFailure, err)
	}
	if err = tmp.Close(); err != nil {
		return "", fmt.Errorf("%w: close failed: %w", serrors.ErrIOFailure, err)
	}

	name := p.uniqueName() + extension(mtype)
	if err = os.Rename(tmpPath, filepath.Join(p.dir, name)); err != nil {
		return "", fmt.Errorf("%w: rename failed: %w", serrors.ErrIOFailure, err)
	}
	syncDir(p.dir)

	p.logger.DebugContext(ctx, "Image committed", "name", name, "bytes", n, "mime", mtype.String())
	return Scheme + name, nil
}

// Discard removes a staging file, e.g. after a cancelled capture.
func (p *Pipeline) Discard(h Handle) {
	if stagingName.MatchString(h.ID) {
		p.discard(filepath.Join(p.stagingDir, h.ID))
	}
}

func (p *Pipeline) discard(path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		p.logger.Warn("Failed to remove staging file", "path", path, "error", err)
	}
}

// Resolve maps a reference to the path of a committed image.
// Returns ErrNotFound if ref does not name one.
func (p *Pipeline) Resolve(ref string) (string, error) {
	name, ok := strings.CutPrefix(ref, Scheme)
	if !ok || !durableName.MatchString(name) {
		return "", serrors.ErrNotFound
	}
	path := filepath.Join(p.dir, name)
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return "", serrors.ErrNotFound
	}
	return path, nil
}

// Open opens a committed image for reading.
func (p *Pipeline) Open(ref string) (*os.File, error) {
	path, err := p.Resolve(ref)
	if err != nil {
		return nil, err
	}
	return os.Open(path)
}

// ReclaimStaging removes staging files, and partial commits left by a crash,
// that are older than olderThan. Zero reclaims everything. Nothing it removes
// can be referenced by a product.
func (p *Pipeline) ReclaimStaging(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := p.now().Add(-olderThan)
	var removed int64

	sweep := func(dir string, match func(string) bool) error {
		entries, err := os.ReadDir(dir)
		if err != nil {
			return fmt.Errorf("failed to list %s: %w", dir, err)
		}
		for _, e := range entries {
			if err := ctx.Err(); err != nil {
				return err
			}
			if e.IsDir() || !match(e.Name()) {
				continue
			}
			info, err := e.Info()
			if err != nil {
				continue
			}
			if olderThan > 0 && info.ModTime().After(cutoff) {
				continue
			}
			if err := os.Remove(filepath.Join(dir, e.Name())); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("failed to remove %s: %w", e.Name(), err)
			}
			removed++
		}
		return nil
	}

	if err := sweep(p.stagingDir, func(name string) bool { return strings.HasPrefix(name, stagingPrefix) }); err != nil {
		return removed, err
	}
	if err := sweep(p.dir, func(name string) bool { return strings.HasPrefix(name, partialPrefix) }); err != nil {
		return removed, err
	}
	return removed, nil
}

// uniqueName is a sortable timestamp plus a random suffix, so concurrent
// calls within the same clock tick still differ.
func (p *Pipeline) uniqueName() string {
	id := uuid.New()
	return fmt.Sprintf("%s-%x", p.now().UTC().Format(timeLayout), id[:])
}

func extension(mtype *mimetype.MIME) string {
	ext := strings.ToLower(strings.TrimPrefix(mtype.Extension(), "."))
	if ext == "" {
		return ".img"
	}
	return "." + ext
}

func sourcePath(source string) (string, error) {
	if source == "" {
		return "", fmt.Errorf("%w: empty source", serrors.ErrSourceUnavailable)
	}
	if !strings.Contains(source, "://") {
		return source, nil
	}
	u, err := url.Parse(source)
	if err != nil {
		return "", fmt.Errorf("%w: %w", serrors.ErrSourceUnavailable, err)
	}
	if u.Scheme != "file" {
		return "", fmt.Errorf("%w: unsupported source scheme %q", serrors.ErrSourceUnavailable, u.Scheme)
	}
	return filepath.FromSlash(u.Path), nil
}

// syncDir flushes a rename to disk where the platform supports it.
func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	_ = d.Sync()
	_ = d.Close()
}

// ctxReader stops a copy once ctx is done.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(b []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(b)
}
