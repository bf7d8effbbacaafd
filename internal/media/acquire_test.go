package media

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	serrors "github.com/abgdnv/storekeeper/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePermission struct {
	granted bool
	err     error
}

func (f fakePermission) CameraGranted(_ context.Context) (bool, error) {
	return f.granted, f.err
}

// fakeCamera writes content to the staged path unless told to cancel.
type fakeCamera struct {
	content []byte
	cancel  bool
	err     error
	called  bool
	path    string
}

func (f *fakeCamera) CaptureTo(_ context.Context, path string) (bool, error) {
	f.called = true
	f.path = path
	if f.err != nil || f.cancel {
		return false, f.err
	}
	return true, os.WriteFile(path, f.content, 0o600)
}

type fakePicker struct {
	source string
	err    error
}

func (f fakePicker) Pick(_ context.Context) (string, error) {
	return f.source, f.err
}

func TestCapture(t *testing.T) {
	testCases := []struct {
		name         string
		permission   fakePermission
		camera       *fakeCamera
		expectCalled bool
		expectErr    error
	}{
		{
			name:         "Success - captured and committed",
			permission:   fakePermission{granted: true},
			camera:       &fakeCamera{content: pngBytes},
			expectCalled: true,
		},
		{
			name:       "Error - permission denied",
			permission: fakePermission{granted: false},
			camera:     &fakeCamera{content: pngBytes},
			expectErr:  serrors.ErrPermissionDenied,
		},
		{
			name:       "Error - permission check failed",
			permission: fakePermission{err: errors.New("prompt dismissed")},
			camera:     &fakeCamera{content: pngBytes},
			expectErr:  serrors.ErrPermissionDenied,
		},
		{
			name:         "Error - capture cancelled",
			permission:   fakePermission{granted: true},
			camera:       &fakeCamera{cancel: true},
			expectCalled: true,
			expectErr:    serrors.ErrSourceUnavailable,
		},
		{
			name:         "Error - camera failed",
			permission:   fakePermission{granted: true},
			camera:       &fakeCamera{err: errors.New("device busy")},
			expectCalled: true,
			expectErr:    serrors.ErrSourceUnavailable,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// given
			p := newTestPipeline(t)

			// when
			ref, err := p.Capture(context.Background(), tc.permission, tc.camera)

			// then
			assert.Equal(t, tc.expectCalled, tc.camera.called)
			assert.Empty(t, dirEntries(t, p.stagingDir), "no staging artifact survives")
			if tc.expectErr != nil {
				assert.ErrorIs(t, err, tc.expectErr)
				assert.Empty(t, ref)
				return
			}
			require.NoError(t, err)
			_, err = p.Resolve(ref)
			assert.NoError(t, err)
		})
	}
}

func TestPick(t *testing.T) {
	src := filepath.Join(t.TempDir(), "gallery.png")
	require.NoError(t, os.WriteFile(src, pngBytes, 0o600))

	testCases := []struct {
		name      string
		picker    fakePicker
		expectErr error
	}{
		{name: "Success", picker: fakePicker{source: src}},
		{name: "Error - picker cancelled", picker: fakePicker{err: errors.New("cancelled")}, expectErr: serrors.ErrSourceUnavailable},
		{name: "Error - source revoked", picker: fakePicker{source: src + ".revoked"}, expectErr: serrors.ErrSourceUnavailable},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			p := newTestPipeline(t)

			ref, err := p.Pick(context.Background(), tc.picker)

			if tc.expectErr != nil {
				assert.ErrorIs(t, err, tc.expectErr)
				return
			}
			require.NoError(t, err)
			assert.NotEqual(t, src, ref, "the picked uri is never stored")
		})
	}
}

func TestWriteStaged(t *testing.T) {
	// given
	ctx := context.Background()
	p := newTestPipeline(t)
	h, err := p.StageCapture(ctx)
	require.NoError(t, err)

	// when
	n, err := p.WriteStaged(ctx, h, bytes.NewReader(pngBytes))

	// then
	require.NoError(t, err)
	assert.Equal(t, int64(len(pngBytes)), n)
	ref, err := p.CommitStaged(ctx, h)
	require.NoError(t, err)
	assert.NotEmpty(t, ref)
}

func TestWriteStaged_Errors(t *testing.T) {
	ctx := context.Background()
	p := newTestPipeline(t)

	_, err := p.WriteStaged(ctx, Handle{ID: "capture-unknown.tmp"}, bytes.NewReader(pngBytes))
	assert.ErrorIs(t, err, serrors.ErrNotFound)

	h, err := p.StageCapture(ctx)
	require.NoError(t, err)
	_, err = p.WriteStaged(ctx, h, bytes.NewReader(oversized()))
	assert.ErrorIs(t, err, serrors.ErrIOFailure)

	_, err = p.CommitStaged(ctx, h)
	assert.ErrorIs(t, err, serrors.ErrSourceUnavailable, "a rejected write leaves nothing to commit")
}
