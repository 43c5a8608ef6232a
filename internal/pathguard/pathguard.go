// Package pathguard is the sole path-acceptance gate for the atomic writer
// (spec.md §4.2, §4.4). It is grounded on the teacher's workspace-boundary
// checks in pkg/workspace/verify.go (canonicalising a project root before
// trusting paths under it) generalized into the explicit five-step
// algorithm spec.md §4.2 specifies, since the teacher never isolates path
// validation into its own reusable step.
package pathguard

import (
	"fmt"
	"path/filepath"
	"strings"

	"overseer/internal/errs"
)

// Validate implements spec.md §4.2's five-step algorithm: canonicalise the
// workspace root, normalise candidate rejecting any ".." that would pop past
// an empty prefix, join against the root if candidate is relative, require
// the result to stay under the canonicalised root, and — if the result
// exists on disk — re-resolve symlinks and re-check the prefix so a symlink
// planted inside the workspace cannot smuggle writes outside it.
func Validate(workspaceRoot, candidate string) (string, error) {
	root, err := filepath.Abs(workspaceRoot)
	if err != nil {
		return "", errs.Wrap(errs.PathViolation, "pathguard.validate", fmt.Errorf("resolve workspace root: %w", err))
	}
	root, err = resolveIfExists(filepath.Clean(root))
	if err != nil {
		return "", errs.Wrap(errs.PathViolation, "pathguard.validate", fmt.Errorf("canonicalize workspace root: %w", err))
	}

	normalized, err := normalizeRelative(candidate)
	if err != nil {
		return "", errs.Wrap(errs.PathViolation, "pathguard.validate", err)
	}

	joined := normalized
	if !filepath.IsAbs(joined) {
		joined = filepath.Join(root, normalized)
	} else {
		joined = filepath.Clean(joined)
	}

	if !withinRoot(root, joined) {
		return "", errs.New(errs.PathViolation, "pathguard.validate", fmt.Sprintf("%q escapes workspace root %q", candidate, root))
	}

	resolved, err := resolveIfExists(joined)
	if err != nil {
		return "", errs.Wrap(errs.PathViolation, "pathguard.validate", err)
	}

	if resolved != joined && !withinRoot(root, resolved) {
		return "", errs.New(errs.PathViolation, "pathguard.validate", fmt.Sprintf("%q resolves outside workspace root %q via symlink", candidate, root))
	}

	return joined, nil
}

// normalizeRelative walks candidate component by component, rejecting any
// ".." that would pop past an empty (already-exhausted) prefix. A leading
// absolute path is passed through for the caller to clean and prefix-check
// directly; symlink escapes from an absolute candidate are still caught by
// the later symlink re-check.
func normalizeRelative(candidate string) (string, error) {
	if filepath.IsAbs(candidate) {
		return candidate, nil
	}

	parts := strings.Split(filepath.ToSlash(candidate), "/")
	var stack []string
	for _, part := range parts {
		switch part {
		case "", ".":
			continue
		case "..":
			if len(stack) == 0 {
				return "", fmt.Errorf("%q escapes its own root via leading ..", candidate)
			}
			stack = stack[:len(stack)-1]
		default:
			stack = append(stack, part)
		}
	}
	return filepath.Join(stack...), nil
}

func withinRoot(root, candidate string) bool {
	if candidate == root {
		return true
	}
	return strings.HasPrefix(candidate, root+string(filepath.Separator))
}

// resolveIfExists returns the symlink-resolved form of path if it exists on
// disk, or path unchanged if it (or an ancestor) does not exist yet — a
// full-write's target commonly doesn't exist before the write happens.
func resolveIfExists(path string) (string, error) {
	resolved, err := filepath.EvalSymlinks(path)
	if err != nil {
		// Missing file/dir is expected for new-file writes; only a real I/O
		// failure is worth surfacing.
		if isNotExist(err) {
			return path, nil
		}
		return "", fmt.Errorf("resolve symlinks for %q: %w", path, err)
	}
	return filepath.Clean(resolved), nil
}
