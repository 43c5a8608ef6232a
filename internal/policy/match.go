package policy

import "path/filepath"

// filepathMatch wraps filepath.Match, additionally trying the glob against
// the path's base name so a pattern like "*.md" matches
// "docs/sub/readme.md" the way a shell glob intuitively would, not just a
// single path segment.
func filepathMatch(glob, path string) (bool, error) {
	if ok, err := filepath.Match(glob, path); err != nil {
		return false, err
	} else if ok {
		return true, nil
	}
	return filepath.Match(glob, filepath.Base(path))
}
