package media

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	serrors "github.com/abgdnv/storekeeper/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pngBytes is the smallest prefix the sniffer recognises as a PNG.
var pngBytes = append([]byte("\x89PNG\r\n\x1a\n"), bytes.Repeat([]byte{0}, 32)...)

func oversized() []byte {
	return slices.Concat(pngBytes, bytes.Repeat([]byte{1}, 2048))
}

func newTestPipeline(t *testing.T) *Pipeline {
	t.Helper()
	root := t.TempDir()
	p, err := NewPipeline(Config{
		Dir:        filepath.Join(root, "images"),
		StagingDir: filepath.Join(root, "staging"),
		MaxBytes:   1024,
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	return p
}

func dirEntries(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestNewPipeline_InvalidMaxBytes(t *testing.T) {
	_, err := NewPipeline(Config{Dir: t.TempDir(), StagingDir: t.TempDir()}, slog.Default())
	assert.Error(t, err)
}

func TestStageCapture_UniqueHandles(t *testing.T) {
	// given
	p := newTestPipeline(t)
	seen := make(map[string]struct{})

	// when
	for range 20 {
		h, err := p.StageCapture(context.Background())
		require.NoError(t, err)

		// then
		_, dup := seen[h.ID]
		assert.False(t, dup, "handle %s allocated twice", h.ID)
		seen[h.ID] = struct{}{}
		assert.FileExists(t, h.Path)
	}
}

func TestCommitStaged(t *testing.T) {
	testCases := []struct {
		name      string
		content   []byte
		expectErr error
	}{
		{name: "Success - image written", content: pngBytes},
		{name: "Error - nothing written", content: nil, expectErr: serrors.ErrSourceUnavailable},
		{name: "Error - not an image", content: []byte("just some text, not a picture"), expectErr: serrors.ErrSourceUnavailable},
		{name: "Error - too large", content: oversized(), expectErr: serrors.ErrIOFailure},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// given
			ctx := context.Background()
			p := newTestPipeline(t)
			h, err := p.StageCapture(ctx)
			require.NoError(t, err)
			if tc.content != nil {
				require.NoError(t, os.WriteFile(h.Path, tc.content, 0o600))
			}

			// when
			ref, err := p.CommitStaged(ctx, h)

			// then
			if tc.expectErr != nil {
				assert.ErrorIs(t, err, tc.expectErr)
				assert.Empty(t, ref)
				assert.Empty(t, dirEntries(t, p.dir), "no durable file may be left behind")
				return
			}
			require.NoError(t, err)
			assert.True(t, strings.HasPrefix(ref, Scheme))
			assert.True(t, strings.HasSuffix(ref, ".png"))
			assert.NoFileExists(t, h.Path, "staging artifact is removed")

			path, err := p.Resolve(ref)
			require.NoError(t, err)
			got, err := os.ReadFile(path)
			require.NoError(t, err)
			assert.Equal(t, tc.content, got)
		})
	}
}

func TestCommitStaged_IOFailureKeepsStaging(t *testing.T) {
	// given
	ctx := context.Background()
	p := newTestPipeline(t)
	h, err := p.StageCapture(ctx)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(h.Path, oversized(), 0o600))

	// when
	_, err = p.CommitStaged(ctx, h)

	// then
	assert.ErrorIs(t, err, serrors.ErrIOFailure)
	assert.FileExists(t, h.Path, "the capture can be retried")
}

func TestCommitStaged_ForeignHandle(t *testing.T) {
	p := newTestPipeline(t)
	outside := filepath.Join(t.TempDir(), "capture-x.tmp")
	require.NoError(t, os.WriteFile(outside, pngBytes, 0o600))

	_, err := p.CommitStaged(context.Background(), Handle{ID: "capture-x.tmp", Path: outside})

	assert.ErrorIs(t, err, serrors.ErrSourceUnavailable)
	assert.FileExists(t, outside)
}

func TestCommitExternal(t *testing.T) {
	src := filepath.Join(t.TempDir(), "picked.png")
	require.NoError(t, os.WriteFile(src, pngBytes, 0o600))

	testCases := []struct {
		name      string
		source    string
		expectErr error
	}{
		{name: "Success - plain path", source: src},
		{name: "Success - file URI", source: "file://" + filepath.ToSlash(src)},
		{name: "Error - missing file", source: filepath.Join(t.TempDir(), "gone.png"), expectErr: serrors.ErrSourceUnavailable},
		{name: "Error - unsupported scheme", source: "content://media/external/1", expectErr: serrors.ErrSourceUnavailable},
		{name: "Error - empty", source: "", expectErr: serrors.ErrSourceUnavailable},
		{name: "Error - directory", source: t.TempDir(), expectErr: serrors.ErrSourceUnavailable},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// given
			p := newTestPipeline(t)

			// when
			ref, err := p.CommitExternal(context.Background(), tc.source)

			// then
			if tc.expectErr != nil {
				assert.ErrorIs(t, err, tc.expectErr)
				assert.NotErrorIs(t, err, serrors.ErrIOFailure)
				assert.Empty(t, dirEntries(t, p.dir))
				return
			}
			require.NoError(t, err)
			assert.True(t, strings.HasPrefix(ref, Scheme))
			assert.FileExists(t, src, "the source is left untouched")
		})
	}
}

func TestCommitExternal_CopyOutlivesSource(t *testing.T) {
	// given
	p := newTestPipeline(t)
	src := filepath.Join(t.TempDir(), "picked.png")
	require.NoError(t, os.WriteFile(src, pngBytes, 0o600))

	// when
	ref, err := p.CommitExternal(context.Background(), src)
	require.NoError(t, err)
	require.NoError(t, os.Remove(src))

	// then
	f, err := p.Open(ref)
	require.NoError(t, err)
	defer f.Close()
	got, err := io.ReadAll(f)
	require.NoError(t, err)
	assert.Equal(t, pngBytes, got)
}

func TestCommitReader_EachCommitIsDistinct(t *testing.T) {
	// given
	p := newTestPipeline(t)
	refs := make(chan string, 10)
	var wg sync.WaitGroup

	// when
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ref, err := p.CommitReader(context.Background(), bytes.NewReader(pngBytes))
			assert.NoError(t, err)
			refs <- ref
		}()
	}
	wg.Wait()
	close(refs)

	// then
	seen := make(map[string]struct{})
	for ref := range refs {
		seen[ref] = struct{}{}
	}
	assert.Len(t, seen, 10)
	assert.Len(t, dirEntries(t, p.dir), 10)
}

type failingReader struct{ after []byte }

func (f *failingReader) Read(b []byte) (int, error) {
	if len(f.after) > 0 {
		n := copy(b, f.after)
		f.after = f.after[n:]
		return n, nil
	}
	return 0, errors.New("disk full")
}

func TestCommitReader_FailureLeavesNothing(t *testing.T) {
	// given
	p := newTestPipeline(t)

	// when
	_, err := p.CommitReader(context.Background(), &failingReader{after: pngBytes})

	// then
	assert.ErrorIs(t, err, serrors.ErrIOFailure)
	assert.Empty(t, dirEntries(t, p.dir))
}

func TestCommitReader_Cancelled(t *testing.T) {
	p := newTestPipeline(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.CommitReader(ctx, bytes.NewReader(pngBytes))

	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, dirEntries(t, p.dir))
}

func TestResolve(t *testing.T) {
	p := newTestPipeline(t)
	ref, err := p.CommitReader(context.Background(), bytes.NewReader(pngBytes))
	require.NoError(t, err)

	testCases := []struct {
		name  string
		ref   string
		found bool
	}{
		{name: "committed", ref: ref, found: true},
		{name: "wrong scheme", ref: "file://" + strings.TrimPrefix(ref, Scheme)},
		{name: "path traversal", ref: Scheme + "../staging/x.png"},
		{name: "unknown name", ref: Scheme + "20240101T000000.000000000Z-0123456789abcdef0123456789abcdef.png"},
		{name: "empty", ref: ""},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			path, err := p.Resolve(tc.ref)
			if tc.found {
				require.NoError(t, err)
				assert.Equal(t, p.dir, filepath.Dir(path))
				return
			}
			assert.ErrorIs(t, err, serrors.ErrNotFound)
		})
	}
}

func TestReclaimStaging(t *testing.T) {
	// given
	ctx := context.Background()
	p := newTestPipeline(t)
	old, err := p.StageCapture(ctx)
	require.NoError(t, err)
	fresh, err := p.StageCapture(ctx)
	require.NoError(t, err)
	partial := filepath.Join(p.dir, partialPrefix+"123")
	require.NoError(t, os.WriteFile(partial, pngBytes, 0o600))
	committed, err := p.CommitReader(ctx, bytes.NewReader(pngBytes))
	require.NoError(t, err)

	past := time.Now().Add(-2 * time.Hour)
	require.NoError(t, os.Chtimes(old.Path, past, past))
	require.NoError(t, os.Chtimes(partial, past, past))

	// when
	removed, err := p.ReclaimStaging(ctx, time.Hour)

	// then
	require.NoError(t, err)
	assert.Equal(t, int64(2), removed)
	assert.NoFileExists(t, old.Path)
	assert.NoFileExists(t, partial)
	assert.FileExists(t, fresh.Path)
	_, err = p.Resolve(committed)
	assert.NoError(t, err, "committed images are never reclaimed")

	removed, err = p.ReclaimStaging(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)
}

func TestLookupStagingAndDiscard(t *testing.T) {
	// given
	p := newTestPipeline(t)
	h, err := p.StageCapture(context.Background())
	require.NoError(t, err)

	// when
	found, err := p.LookupStaging(h.ID)

	// then
	require.NoError(t, err)
	assert.Equal(t, h, found)

	p.Discard(h)
	_, err = p.LookupStaging(h.ID)
	assert.ErrorIs(t, err, serrors.ErrNotFound)

	_, err = p.LookupStaging("../images/x")
	assert.ErrorIs(t, err, serrors.ErrNotFound)
}
