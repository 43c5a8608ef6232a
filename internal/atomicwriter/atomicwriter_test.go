package atomicwriter_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"overseer/internal/atomicwriter"
	"overseer/internal/errs"
)

func TestWriteFullCreatesParentDirsAndWrites(t *testing.T) {
	root := t.TempDir()

	target, err := atomicwriter.WriteFull(root, "a/b/c.txt", []byte("hello"), 0o644)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(root, "a", "b", "c.txt"), target)

	got, err := os.ReadFile(target)
	require.NoError(t, err)
	require.Equal(t, "hello", string(got))

	entries, err := os.ReadDir(filepath.Join(root, "a", "b"))
	require.NoError(t, err)
	require.Len(t, entries, 1, "no leftover temp file should remain")
}

func TestWriteFullRejectsEscape(t *testing.T) {
	root := t.TempDir()

	_, err := atomicwriter.WriteFull(root, "../escape.txt", []byte("x"), 0o644)
	require.Error(t, err)
	require.Equal(t, errs.PathViolation, errs.KindOf(err))
}

func TestWriteFullOverwritesExisting(t *testing.T) {
	root := t.TempDir()

	_, err := atomicwriter.WriteFull(root, "f.txt", []byte("v1"), 0o644)
	require.NoError(t, err)

	target, err := atomicwriter.WriteFull(root, "f.txt", []byte("v2"), 0o644)
	require.NoError(t, err)

	got, err := os.ReadFile(target)
	require.NoError(t, err)
	require.Equal(t, "v2", string(got))
}

const sampleDiff = `--- a/f.txt
+++ b/f.txt
@@ -1,3 +1,3 @@
 line one
-line two
+line TWO
 line three
`

func TestApplyPatchAppliesHunkAndWrites(t *testing.T) {
	root := t.TempDir()
	_, err := atomicwriter.WriteFull(root, "f.txt", []byte("line one\nline two\nline three\n"), 0o644)
	require.NoError(t, err)

	newContents, target, err := atomicwriter.ApplyPatch(root, "f.txt", sampleDiff)
	require.NoError(t, err)
	require.Equal(t, "line one\nline TWO\nline three\n", newContents)

	got, err := os.ReadFile(target)
	require.NoError(t, err)
	require.Equal(t, newContents, string(got))
}

func TestApplyPatchMissingFileIsDiffError(t *testing.T) {
	root := t.TempDir()

	_, _, err := atomicwriter.ApplyPatch(root, "missing.txt", sampleDiff)
	require.Error(t, err)
	require.Equal(t, errs.Diff, errs.KindOf(err))
}

func TestApplyPatchHunkMismatchIsDiffError(t *testing.T) {
	root := t.TempDir()
	_, err := atomicwriter.WriteFull(root, "f.txt", []byte("totally different content\n"), 0o644)
	require.NoError(t, err)

	_, _, err = atomicwriter.ApplyPatch(root, "f.txt", sampleDiff)
	require.Error(t, err)
	require.Equal(t, errs.Diff, errs.KindOf(err))
}

func TestParsePatchRejectsMalformedHunkHeader(t *testing.T) {
	_, err := atomicwriter.ParsePatch("@@ garbage @@\n+x\n")
	require.Error(t, err)
	require.Equal(t, errs.Diff, errs.KindOf(err))
}

func TestParsePatchRejectsEmptyInput(t *testing.T) {
	_, err := atomicwriter.ParsePatch("")
	require.Error(t, err)
	require.Equal(t, errs.Diff, errs.KindOf(err))
}

func TestUnifiedDiffStringRendersChange(t *testing.T) {
	out, err := atomicwriter.UnifiedDiffString("a", "b", "x\ny\n", "x\nz\n")
	require.NoError(t, err)
	require.Contains(t, out, "-y")
	require.Contains(t, out, "+z")
}
