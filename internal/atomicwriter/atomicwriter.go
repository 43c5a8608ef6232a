// Package atomicwriter is the only component permitted to touch files under
// a session's workspace root (spec.md §4.4). Both operations it exposes —
// full write and patch apply — validate the target through pathguard
// first and never leave a partially written file in place.
//
// The write-to-temp-then-rename idiom is grounded on the teacher's
// pkg/coder/claude/installer.go (os.CreateTemp followed by an atomic
// rename into place) and pkg/workspace/tempclone.go's rename-with-rollback
// swap; this package generalizes both into one primitive used for every
// workspace file write instead of one fixed install artifact.
package atomicwriter

import (
	"fmt"
	"os"
	"path/filepath"

	"overseer/internal/errs"
	"overseer/internal/pathguard"
)

// WriteFull creates parent directories as needed, writes contents to a
// named temporary file in the same directory as the target, then renames
// it into place. If the rename fails the partial temp file is removed
// rather than left behind. Returns the validated absolute path written.
func WriteFull(workspaceRoot, filePath string, contents []byte, mode os.FileMode) (string, error) {
	target, err := pathguard.Validate(workspaceRoot, filePath)
	if err != nil {
		return "", err
	}

	dir := filepath.Dir(target)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", errs.Wrap(errs.IO, "atomicwriter.write_full", fmt.Errorf("create parent dirs: %w", err))
	}

	tmp, err := os.CreateTemp(dir, ".overseer-tmp-*")
	if err != nil {
		return "", errs.Wrap(errs.IO, "atomicwriter.write_full", fmt.Errorf("create temp file: %w", err))
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(contents); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", errs.Wrap(errs.IO, "atomicwriter.write_full", fmt.Errorf("write temp file: %w", err))
	}
	if err := tmp.Chmod(mode); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", errs.Wrap(errs.IO, "atomicwriter.write_full", fmt.Errorf("chmod temp file: %w", err))
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", errs.Wrap(errs.IO, "atomicwriter.write_full", fmt.Errorf("close temp file: %w", err))
	}

	if err := os.Rename(tmpName, target); err != nil {
		os.Remove(tmpName)
		return "", errs.Wrap(errs.IO, "atomicwriter.write_full", fmt.Errorf("rename into place: %w", err))
	}

	return target, nil
}
