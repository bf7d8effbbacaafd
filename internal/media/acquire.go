package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	serrors "github.com/abgdnv/storekeeper/internal/errors"
)

// Permission reports whether camera access is granted.
type Permission interface {
	CameraGranted(ctx context.Context) (bool, error)
}

// Camera writes a captured image to the given path. It returns false if the
// capture was cancelled or produced nothing.
type Camera interface {
	CaptureTo(ctx context.Context, path string) (bool, error)
}

// Picker returns a reference (path or file:// URI) to an image that already exists.
type Picker interface {
	Pick(ctx context.Context) (string, error)
}

// Capture asks for permission, stages a location, lets cam write into it and
// commits the result. Staging is never allocated if permission is denied.
func (p *Pipeline) Capture(ctx context.Context, perm Permission, cam Camera) (string, error) {
	granted, err := perm.CameraGranted(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: %w", serrors.ErrPermissionDenied, err)
	}
	if !granted {
		return "", serrors.ErrPermissionDenied
	}

	h, err := p.StageCapture(ctx)
	if err != nil {
		return "", err
	}
	ok, err := cam.CaptureTo(ctx, h.Path)
	if err != nil || !ok {
		p.Discard(h)
		if err == nil {
			err = errors.New("capture cancelled")
		}
		return "", fmt.Errorf("%w: %w", serrors.ErrSourceUnavailable, err)
	}
	return p.CommitStaged(ctx, h)
}

// Pick commits a durable copy of whatever picker returns.
func (p *Pipeline) Pick(ctx context.Context, picker Picker) (string, error) {
	source, err := picker.Pick(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: %w", serrors.ErrSourceUnavailable, err)
	}
	return p.CommitExternal(ctx, source)
}

// WriteStaged fills the staging file of h from r, replacing previous content.
// This is the capture collaborator's side of a staged capture.
func (p *Pipeline) WriteStaged(ctx context.Context, h Handle, r io.Reader) (int64, error) {
	h, err := p.LookupStaging(h.ID)
	if err != nil {
		return 0, err
	}
	f, err := os.OpenFile(h.Path, os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", serrors.ErrIOFailure, err)
	}
	n, err := io.Copy(f, io.LimitReader(&ctxReader{ctx: ctx, r: r}, p.maxBytes+1))
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err == nil && n > p.maxBytes {
		err = fmt.Errorf("image exceeds %d bytes", p.maxBytes)
	}
	if err != nil {
		// leave an empty file so a later commit reports SourceUnavailable
		_ = os.Truncate(h.Path, 0)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return 0, ctxErr
		}
		return 0, fmt.Errorf("%w: %w", serrors.ErrIOFailure, err)
	}
	return n, nil
}
