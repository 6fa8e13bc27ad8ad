package discover

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTree(t *testing.T, root string, files ...string) {
	t.Helper()

	for _, rel := range files {
		full := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.WriteFile(full, []byte("export const x = 1;\n"), 0o600))
	}
}

func paths(candidates []Candidate) []string {
	out := make([]string, 0, len(candidates))
	for _, c := range candidates {
		out = append(out, c.Path)
	}

	return out
}

func TestDiscover_DefaultRules(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeTree(t, root,
		"src/b.ts",
		"src/a.ts",
		"src/types.d.ts",
		"src/view.js",
		"src/deep/nested/c.ts",
		"node_modules/pkg/index.ts",
		"lib/node_modules/inner.ts",
		"dist/out.ts",
		"build/out.ts",
		"test/spec.ts",
		"src/__tests__/a.test.ts",
		".git/hooks/h.ts",
		"testing/kept.ts",
	)

	d, err := New(Options{Base: root})
	require.NoError(t, err)

	got, err := d.Discover(context.Background(), root)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"src/a.ts",
		"src/b.ts",
		"src/deep/nested/c.ts",
		"testing/kept.ts",
	}, paths(got))

	for _, c := range got {
		assert.NotEmpty(t, c.Language)
	}
}

func TestDiscover_PathsRelativeToBase(t *testing.T) {
	t.Parallel()

	base := t.TempDir()
	writeTree(t, base, "project/src/main.ts")

	d, err := New(Options{Base: base})
	require.NoError(t, err)

	got, err := d.Discover(context.Background(), filepath.Join(base, "project"))
	require.NoError(t, err)
	assert.Equal(t, []string{"project/src/main.ts"}, paths(got))
}

func TestDiscover_SymlinkRoot(t *testing.T) {
	t.Parallel()

	base := t.TempDir()
	writeTree(t, base, "real/a.ts", "real/sub/b.ts", "real/node_modules/c.ts")
	require.NoError(t, os.Symlink(filepath.Join(base, "real"), filepath.Join(base, "link")))

	d, err := New(Options{Base: base})
	require.NoError(t, err)

	direct, err := d.Discover(context.Background(), filepath.Join(base, "real"))
	require.NoError(t, err)
	assert.Equal(t, []string{"real/a.ts", "real/sub/b.ts"}, paths(direct))

	linked, err := d.Discover(context.Background(), filepath.Join(base, "link"))
	require.NoError(t, err)
	assert.Equal(t, []string{"link/a.ts", "link/sub/b.ts"}, paths(linked))
}

func TestDiscover_CustomExtensions(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeTree(t, root, "a.ts", "b.tsx", "c.d.ts", "d.gen.tsx")

	d, err := New(Options{
		Base:                root,
		SourceExtensions:    []string{".ts", ".tsx"},
		DeclarationSuffixes: []string{".d.ts", ".gen.tsx"},
	})
	require.NoError(t, err)

	got, err := d.Discover(context.Background(), root)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.ts", "b.tsx"}, paths(got))
}

func TestDiscover_ExcludeGlobs(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeTree(t, root, "src/a.ts", "src/a.spec.ts", "src/generated/api.ts")

	d, err := New(Options{Base: root, ExcludeGlobs: []string{"**/*.spec.ts", "**/generated/*"}})
	require.NoError(t, err)

	got, err := d.Discover(context.Background(), root)
	require.NoError(t, err)
	assert.Equal(t, []string{"src/a.ts"}, paths(got))
}

func TestNew_InvalidGlob(t *testing.T) {
	t.Parallel()

	_, err := New(Options{ExcludeGlobs: []string{"[unclosed"}})
	require.ErrorIs(t, err, ErrInvalidGlob)
}

func TestDiscover_RespectGitignore(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeTree(t, root, "src/a.ts", "src/skip.ts", "out/x.ts")
	require.NoError(t, os.WriteFile(filepath.Join(root, ".gitignore"), []byte("skip.ts\nout/\n"), 0o600))

	d, err := New(Options{Base: root, RespectGitignore: true})
	require.NoError(t, err)

	got, err := d.Discover(context.Background(), root)
	require.NoError(t, err)
	assert.Equal(t, []string{"src/a.ts"}, paths(got))

	plain, err := New(Options{Base: root})
	require.NoError(t, err)

	all, err := plain.Discover(context.Background(), root)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestDiscover_SkipVendor(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeTree(t, root, "src/a.ts", "vendor/lib.ts")

	d, err := New(Options{Base: root, SkipVendor: true})
	require.NoError(t, err)

	got, err := d.Discover(context.Background(), root)
	require.NoError(t, err)
	assert.Equal(t, []string{"src/a.ts"}, paths(got))
}

func TestDiscover_RootErrors(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeTree(t, root, "file.ts")

	d, err := New(Options{Base: root})
	require.NoError(t, err)

	_, err = d.Discover(context.Background(), filepath.Join(root, "missing"))
	require.ErrorIs(t, err, ErrRootNotDirectory)

	_, err = d.Discover(context.Background(), filepath.Join(root, "file.ts"))
	require.ErrorIs(t, err, ErrRootNotDirectory)
}

func TestDiscover_Canceled(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeTree(t, root, "a.ts")

	d, err := New(Options{Base: root})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = d.Discover(ctx, root)
	require.ErrorIs(t, err, context.Canceled)
}

func TestDiscover_EmptyTree(t *testing.T) {
	t.Parallel()

	root := t.TempDir()

	d, err := New(Options{Base: root})
	require.NoError(t, err)

	got, err := d.Discover(context.Background(), root)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestDiscover_UnreadableDirectoryReported(t *testing.T) {
	t.Parallel()

	if os.Geteuid() == 0 {
		t.Skip("permission bits are not enforced for root")
	}

	root := t.TempDir()
	writeTree(t, root, "ok/a.ts", "locked/b.ts")

	locked := filepath.Join(root, "locked")
	require.NoError(t, os.Chmod(locked, 0o000))
	t.Cleanup(func() { _ = os.Chmod(locked, 0o755) }) //nolint:gosec // restore for TempDir cleanup.

	var reported []*DiscoveryError

	d, err := New(Options{Base: root, OnError: func(e *DiscoveryError) { reported = append(reported, e) }})
	require.NoError(t, err)

	got, err := d.Discover(context.Background(), root)
	require.NoError(t, err)
	assert.Equal(t, []string{"ok/a.ts"}, paths(got))
	require.Len(t, reported, 1)
	assert.Equal(t, locked, reported[0].Dir)
	assert.ErrorIs(t, reported[0], fs.ErrPermission)
}

type fakeDirEntry struct {
	fs.DirEntry
}

func (fakeDirEntry) IsDir() bool { return true }

func TestHandleWalkError(t *testing.T) {
	t.Parallel()

	var reported []*DiscoveryError

	d, err := New(Options{OnError: func(e *DiscoveryError) { reported = append(reported, e) }})
	require.NoError(t, err)

	boom := errors.New("boom")

	err = d.handleWalkError("/root", "/root/sub", fakeDirEntry{}, boom)
	require.ErrorIs(t, err, filepath.SkipDir)
	require.Len(t, reported, 1)
	assert.Equal(t, "/root/sub", reported[0].Dir)
	require.ErrorIs(t, reported[0], boom)
	assert.Contains(t, reported[0].Error(), "read directory /root/sub")

	err = d.handleWalkError("/root", "/root", nil, boom)
	require.ErrorIs(t, err, ErrRootNotDirectory)
	assert.Len(t, reported, 1)
}
