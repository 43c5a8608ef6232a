package atomicwriter

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/pmezard/go-difflib/difflib"

	"overseer/internal/errs"
	"overseer/internal/pathguard"
)

// Hunk is one parsed @@ -start,count +start,count @@ block of a unified
// diff, kept as its raw context/add/remove lines in order.
type Hunk struct {
	origStart int
	origCount int
	lines     []hunkLine
}

type hunkLine struct {
	kind byte // ' ', '+', or '-'
	text string
}

// ParsePatch turns a unified diff body (no file headers required, but
// tolerated if present) into its hunks. Any line that cannot be classified,
// or a malformed @@ header, is a Diff error.
func ParsePatch(diffText string) ([]Hunk, error) {
	var hunks []Hunk
	var current *Hunk

	scanner := bufio.NewScanner(strings.NewReader(diffText))
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "--- "), strings.HasPrefix(line, "+++ "):
			continue
		case strings.HasPrefix(line, "@@"):
			h, err := parseHunkHeader(line)
			if err != nil {
				return nil, err
			}
			hunks = append(hunks, h)
			current = &hunks[len(hunks)-1]
		case current == nil:
			return nil, errs.New(errs.Diff, "atomicwriter.parse_patch", "content before first hunk header")
		case strings.HasPrefix(line, "+"):
			current.lines = append(current.lines, hunkLine{kind: '+', text: line[1:]})
		case strings.HasPrefix(line, "-"):
			current.lines = append(current.lines, hunkLine{kind: '-', text: line[1:]})
		case strings.HasPrefix(line, " "):
			current.lines = append(current.lines, hunkLine{kind: ' ', text: line[1:]})
		case line == "":
			current.lines = append(current.lines, hunkLine{kind: ' ', text: ""})
		default:
			return nil, errs.New(errs.Diff, "atomicwriter.parse_patch", fmt.Sprintf("unrecognized diff line: %q", line))
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, errs.Wrap(errs.Diff, "atomicwriter.parse_patch", err)
	}
	if len(hunks) == 0 {
		return nil, errs.New(errs.Diff, "atomicwriter.parse_patch", "no hunks found")
	}
	return hunks, nil
}

// parseHunkHeader parses "@@ -l,s +l,s @@" (the +l,s half is not needed to
// apply, only the - half anchors where the hunk starts in the original).
func parseHunkHeader(line string) (Hunk, error) {
	fields := strings.Fields(line)
	if len(fields) < 3 || !strings.HasPrefix(fields[1], "-") {
		return Hunk{}, errs.New(errs.Diff, "atomicwriter.parse_hunk_header", fmt.Sprintf("malformed hunk header: %q", line))
	}
	start, count, err := parseRange(fields[1][1:])
	if err != nil {
		return Hunk{}, errs.Wrap(errs.Diff, "atomicwriter.parse_hunk_header", err)
	}
	return Hunk{origStart: start, origCount: count}, nil
}

func parseRange(spec string) (start, count int, err error) {
	parts := strings.SplitN(spec, ",", 2)
	start, err = strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, fmt.Errorf("bad range start %q: %w", spec, err)
	}
	count = 1
	if len(parts) == 2 {
		count, err = strconv.Atoi(parts[1])
		if err != nil {
			return 0, 0, fmt.Errorf("bad range count %q: %w", spec, err)
		}
	}
	return start, count, nil
}

// Apply applies hunks to original (split into lines) and returns the
// resulting content. A hunk whose removed/context lines don't match the
// original at the expected offset is a hunk-mismatch Diff error.
func Apply(original string, hunks []Hunk) (string, error) {
	origLines := difflib.SplitLines(original)
	// SplitLines always appends "\n" to its last element, which for content
	// ending in a newline (or empty content) is a line that is not there.
	if original == "" || strings.HasSuffix(original, "\n") {
		origLines = origLines[:len(origLines)-1]
	}
	var out []string
	cursor := 0 // 0-indexed position in origLines already consumed

	for _, h := range hunks {
		anchor := h.origStart - 1
		if anchor < 0 {
			anchor = 0
		}
		if anchor < cursor || anchor > len(origLines) {
			return "", errs.New(errs.Diff, "atomicwriter.apply", fmt.Sprintf("hunk anchor %d out of order or out of range (cursor=%d, len=%d)", h.origStart, cursor, len(origLines)))
		}
		out = append(out, origLines[cursor:anchor]...)
		cursor = anchor

		for _, hl := range h.lines {
			switch hl.kind {
			case ' ', '-':
				if cursor >= len(origLines) || !sameLine(origLines[cursor], hl.text) {
					return "", errs.New(errs.Diff, "atomicwriter.apply", fmt.Sprintf("hunk mismatch at original line %d: expected %q", cursor+1, hl.text))
				}
				if hl.kind == ' ' {
					out = append(out, origLines[cursor])
				}
				cursor++
			case '+':
				out = append(out, ensureNewline(hl.text))
			}
		}
	}
	out = append(out, origLines[cursor:]...)
	return strings.Join(out, ""), nil
}

func sameLine(a, b string) bool {
	return strings.TrimRight(a, "\r\n") == strings.TrimRight(b, "\r\n")
}

func ensureNewline(s string) string {
	if strings.HasSuffix(s, "\n") {
		return s
	}
	return s + "\n"
}

// ApplyPatch reads the current file contents, parses and applies diffText,
// and writes the result via WriteFull. Parse failure, a hunk mismatch, or a
// missing file all surface as a Diff error — conflict handling against a
// caller-supplied pre-hash is the handler's responsibility, not this
// function's (spec.md §4.4).
func ApplyPatch(workspaceRoot, filePath, diffText string) (newContents, validatedPath string, err error) {
	target, err := pathguard.Validate(workspaceRoot, filePath)
	if err != nil {
		return "", "", err
	}

	raw, readErr := os.ReadFile(target)
	if readErr != nil {
		return "", "", errs.Wrap(errs.Diff, "atomicwriter.apply_patch", fmt.Errorf("read original file: %w", readErr))
	}

	hunks, err := ParsePatch(diffText)
	if err != nil {
		return "", "", err
	}

	patched, err := Apply(string(raw), hunks)
	if err != nil {
		return "", "", err
	}

	if _, err := WriteFull(workspaceRoot, filePath, []byte(patched), 0o644); err != nil {
		return "", "", err
	}
	return patched, target, nil
}

// UnifiedDiffString renders a unified diff between a and b, used for
// diagnostics when a patch_conflict is reported to the operator so they can
// see what changed since the pre-hash was taken.
func UnifiedDiffString(fromFile, toFile, a, b string) (string, error) {
	return difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(a),
		B:        difflib.SplitLines(b),
		FromFile: fromFile,
		ToFile:   toFile,
		Context:  3,
	})
}
