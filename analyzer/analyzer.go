// Package analyzer statically inspects shell commands for destructive
// operations before an agent is allowed to execute them. It recursively
// unwraps nested shells, interpreter one-liners, and xargs/parallel/find
// composition, classifying rm targets against the caller's working
// directory. A nil result means the command is safe to run.
package analyzer

import (
	"regexp"
	"strings"

	"github.com/bashgate/bashgate/shell"
)

// MaxRecursionDepth bounds nested re-analysis (bash -c inside bash -c
// inside xargs ...). Deeper nesting stops recursing rather than erroring,
// so adversarial nesting terminates without crashing.
const MaxRecursionDepth = 5

const strictReason = "Command could not be safely analyzed (strict mode). Verify manually."

// Finding is a block verdict: the human-readable reason and the offending
// segment's reconstructed text.
type Finding struct {
	Reason  string
	Segment string
}

type options struct {
	cwd                  string
	strict               bool
	paranoidRm           bool
	paranoidInterpreters bool
	allowTmpdirVar       bool
}

// Option configures a single Analyze call.
type Option func(*options)

// WithCwd anchors relative-path reasoning to dir, the resolved local
// working directory the command would run in.
func WithCwd(dir string) Option {
	return func(o *options) { o.cwd = dir }
}

// WithStrict blocks commands the splitter cannot confidently decompose
// instead of falling through to the text heuristics.
func WithStrict() Option {
	return func(o *options) { o.strict = true }
}

// WithParanoidRm blocks recursive-force rm even inside the working
// directory.
func WithParanoidRm() Option {
	return func(o *options) { o.paranoidRm = true }
}

// WithParanoidInterpreters blocks python/node/ruby/perl inline code
// outright instead of recursively analyzing it.
func WithParanoidInterpreters() Option {
	return func(o *options) { o.paranoidInterpreters = true }
}

// WithTmpdirVar controls whether $TMPDIR targets count as temp paths
// (default true).
func WithTmpdirVar(allow bool) Option {
	return func(o *options) { o.allowTmpdirVar = allow }
}

// Analyze inspects command and returns nil when it is safe to execute, or
// a Finding describing the first segment that must be blocked. It is pure
// and stateless: identical inputs always produce identical results.
func Analyze(command string, opts ...Option) *Finding {
	o := options{allowTmpdirVar: true}
	for _, opt := range opts {
		opt(&o)
	}
	return analyzeCommand(command, o, 0)
}

func analyzeCommand(command string, o options, depth int) *Finding {
	if depth > MaxRecursionDepth {
		return nil
	}

	trimmed := strings.TrimSpace(command)
	if trimmed == "" {
		return nil
	}

	segments := shell.Split(trimmed)

	if o.strict && isUnparsed(segments, trimmed) {
		return &Finding{Reason: strictReason, Segment: trimmed}
	}

	cwdKnown := o.cwd != ""
	for _, seg := range segments {
		if len(seg) == 0 {
			continue
		}

		var finding *Finding
		if len(seg) == 1 && containsWhitespace(seg[0]) {
			finding = scanText(seg[0])
		} else {
			known := cwdKnown
			ctx := segmentContext{
				cwd:                  o.cwd,
				effectiveCwd:         effectiveCwd(known, o.cwd),
				paranoidRm:           o.paranoidRm,
				paranoidInterpreters: o.paranoidInterpreters,
				allowTmpdirVar:       o.allowTmpdirVar,
				analyzeNested: func(nested string) *Finding {
					inner := o
					if !known {
						inner.cwd = ""
					}
					return analyzeCommand(nested, inner, depth+1)
				},
			}
			finding = analyzeSegment(seg, ctx)
		}
		if finding != nil {
			return finding
		}

		if changesWorkingDirectory(seg) {
			// One-way: once a segment may have changed directory, every
			// later segment's cwd is unknown.
			cwdKnown = false
		}
	}
	return nil
}

// isUnparsed detects the splitter's verbatim fallback: the whole input
// collapsed into one single-token segment, with whitespace that should
// have produced multiple tokens.
func isUnparsed(segments []shell.Segment, trimmed string) bool {
	return len(segments) == 1 &&
		len(segments[0]) == 1 &&
		segments[0][0] == trimmed &&
		containsWhitespace(trimmed)
}

func effectiveCwd(known bool, cwd string) string {
	if !known {
		return ""
	}
	return cwd
}

func containsWhitespace(s string) bool {
	return strings.ContainsAny(s, " \t\n")
}

var cdLooseRe = regexp.MustCompile(`(?:^|[;&|]\s*)(?:builtin\s+)?(?:cd|pushd|popd)(?:\s|$)`)

// changesWorkingDirectory reports whether a segment structurally changes
// the shell's working directory. Wrappers are stripped first so
// `builtin cd` and `env cd` count; raw unsplit text falls back to a
// looser regex so `cd "$dir"` forms inside opaque content still
// invalidate the cwd.
func changesWorkingDirectory(seg shell.Segment) bool {
	tokens, _ := shell.StripWrappersWithInfo(seg)
	if len(tokens) > 0 {
		switch shell.NormalizeCommandToken(tokens[0]) {
		case "cd", "pushd", "popd":
			return true
		}
	}
	return cdLooseRe.MatchString(seg.Text())
}
