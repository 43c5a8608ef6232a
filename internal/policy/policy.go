// Package policy compiles and caches per-workspace auto-approval policy
// documents (spec.md §4.3). The compiled form is what intercept handlers
// consult before parking on a rendezvous entry.
//
// The watch-and-invalidate half of the cache is grounded on the teacher's
// fsnotify-based watcher, pkg/wingedpig-trellis-style internal/watcher
// (event-driven invalidation, debounced reload, ref-counted watch set) —
// see Cache in cache.go. The document shape and evaluation order are new,
// since the teacher has no equivalent policy document.
package policy

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strings"

	"overseer/internal/store"
)

// RiskLevel mirrors store.RiskLevel's three values for threshold comparison
// without importing the store package's approval-specific semantics.
type RiskLevel = store.RiskLevel

const (
	RiskLow      = store.RiskLow
	RiskHigh     = store.RiskHigh
	RiskCritical = store.RiskCritical
)

func riskRank(r RiskLevel) int {
	switch r {
	case RiskCritical:
		return 2
	case RiskHigh:
		return 1
	default:
		return 0
	}
}

// Document is the on-disk JSON shape spec.md §4.3 names.
type Document struct {
	Enabled              bool     `json:"enabled"`
	AutoApproveCommands  []string `json:"auto_approve_commands"`
	Tools               []string `json:"tools"`
	FilePatterns        struct {
		Write []string `json:"write"`
		Read  []string `json:"read"`
	} `json:"file_patterns"`
	RiskLevelThreshold RiskLevel `json:"risk_level_threshold"`
	AuditCreatedBy     string    `json:"audit_created_by"`
	AuditNote          string    `json:"audit_note"`
}

// Compiled is the evaluatable form of a Document: regexes compiled, tools
// and patterns kept as-is. A zero-value Compiled (Enabled=false) is the
// deny-all policy used whenever loading fails.
type Compiled struct {
	Enabled         bool
	commandPatterns []compiledPattern
	tools           map[string]bool
	writePatterns   []string
	readPatterns    []string
	riskThreshold   RiskLevel
}

type compiledPattern struct {
	source string
	re     *regexp.Regexp
}

// DenyAll is the fallback compiled policy for missing files, parse errors,
// and IO errors, per spec.md §4.3.
func DenyAll() *Compiled {
	return &Compiled{Enabled: false, riskThreshold: RiskLow}
}

// Load reads and compiles the policy document at path. allowedCommands is
// the process-wide command allowlist (alias -> literal command); any
// auto_approve_commands pattern not present there is silently stripped
// (FR-011). Any IO or parse failure returns DenyAll(), never an error —
// the caller always gets a usable (if closed) policy.
func Load(path string, allowedCommands map[string]string) *Compiled {
	raw, err := os.ReadFile(path)
	if err != nil {
		return DenyAll()
	}

	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return DenyAll()
	}

	return Compile(&doc, allowedCommands)
}

// Compile turns a parsed Document into an evaluatable Compiled policy.
// Regex compilation errors drop that individual pattern; everything else
// compiles normally alongside it.
func Compile(doc *Document, allowedCommands map[string]string) *Compiled {
	c := &Compiled{
		Enabled:       doc.Enabled,
		tools:         make(map[string]bool, len(doc.Tools)),
		writePatterns: append([]string(nil), doc.FilePatterns.Write...),
		readPatterns:  append([]string(nil), doc.FilePatterns.Read...),
		riskThreshold: doc.RiskLevelThreshold,
	}
	if c.riskThreshold == "" {
		c.riskThreshold = RiskLow
	}

	for _, t := range doc.Tools {
		c.tools[t] = true
	}

	for _, pattern := range doc.AutoApproveCommands {
		if !commandAllowed(pattern, allowedCommands) {
			continue
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			continue
		}
		c.commandPatterns = append(c.commandPatterns, compiledPattern{source: pattern, re: re})
	}

	return c
}

func commandAllowed(pattern string, allowed map[string]string) bool {
	for _, literal := range allowed {
		if literal == pattern {
			return true
		}
	}
	return false
}

// EvalContext carries the optional fields an evaluation may need.
type EvalContext struct {
	FilePath  string
	RiskLevel RiskLevel
}

// Result is the outcome of evaluating one tool call against a Compiled
// policy.
type Result struct {
	AutoApproved bool
	MatchedRule  string
}

// deny is the non-matching outcome, used both when disabled and when every
// check falls through.
var deny = Result{}

// Evaluate implements spec.md §4.3's fixed check order: disabled -> deny;
// exact tool-name match; command-regex match (toolName treated as the
// literal command string); write/read file-pattern match; risk-threshold
// veto evaluated last against whatever matched.
func (c *Compiled) Evaluate(toolName string, ctx EvalContext) Result {
	if c == nil || !c.Enabled {
		return deny
	}

	var result Result
	switch {
	case c.tools[toolName]:
		result = Result{AutoApproved: true, MatchedRule: "tool:" + toolName}
	default:
		if r, ok := c.matchCommand(toolName); ok {
			result = r
		} else if r, ok := c.matchFilePattern(toolName, ctx.FilePath); ok {
			result = r
		} else {
			return deny
		}
	}

	if vetoedByRisk(ctx.RiskLevel, c.riskThreshold) {
		return deny
	}
	return result
}

func (c *Compiled) matchCommand(toolName string) (Result, bool) {
	for _, p := range c.commandPatterns {
		if p.re.MatchString(toolName) {
			return Result{AutoApproved: true, MatchedRule: "command:" + p.source}, true
		}
	}
	return Result{}, false
}

func (c *Compiled) matchFilePattern(toolName, filePath string) (Result, bool) {
	if filePath == "" {
		return Result{}, false
	}
	kind := "read"
	patterns := c.readPatterns
	if isWriteTool(toolName) {
		kind = "write"
		patterns = c.writePatterns
	}
	for _, glob := range patterns {
		ok, err := filepathMatch(glob, filePath)
		if err != nil || !ok {
			continue
		}
		return Result{AutoApproved: true, MatchedRule: fmt.Sprintf("file_pattern:%s:%s", kind, glob)}, true
	}
	return Result{}, false
}

// isWriteTool recognizes the handler-kind naming convention spec.md §4.10
// uses for mutating tools (apply_diff, write_file, and similar) versus
// read-only ones.
func isWriteTool(toolName string) bool {
	lower := strings.ToLower(toolName)
	for _, verb := range []string{"write", "apply", "patch", "delete", "create"} {
		if strings.Contains(lower, verb) {
			return true
		}
	}
	return false
}

// vetoedByRisk reports whether level exceeds threshold. Critical is always
// vetoed regardless of threshold, per spec.md §4.3.
func vetoedByRisk(level, threshold RiskLevel) bool {
	if level == RiskCritical {
		return true
	}
	if level == "" {
		return false
	}
	return riskRank(level) > riskRank(threshold)
}
