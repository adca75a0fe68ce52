package analyzer

import (
	"regexp"
	"strings"

	"github.com/bashgate/bashgate/shell"
)

// shellWrapperNames are programs whose -c argument is itself a command
// line requiring full re-analysis.
var shellWrapperNames = map[string]bool{
	"bash": true,
	"sh":   true,
	"zsh":  true,
	"ksh":  true,
	"dash": true,
	"fish": true,
	"csh":  true,
	"tcsh": true,
}

// interpreterRe matches interpreters whose -c/-e argument is inline code
// that may shell out or delete files. Version-suffixed names
// (python3.11) match too.
var interpreterRe = regexp.MustCompile(`^(?:python[23]?(?:\.[0-9]+)?|node|nodejs|ruby|perl)$`)

// displayOnly commands print their arguments and never execute them, so
// an embedded "rm -rf" token sequence is just text.
var displayOnly = map[string]bool{
	"echo":   true,
	"printf": true,
}

const paranoidInterpreterReason = "Interpreter one-liners are blocked (PARANOID_INTERPRETERS enabled)."

type segmentContext struct {
	cwd                  string // caller-supplied anchor; "" when none
	effectiveCwd         string // "" once a prior segment changed directory
	paranoidRm           bool
	paranoidInterpreters bool
	allowTmpdirVar       bool
	analyzeNested        func(string) *Finding
}

// analyzeSegment dispatches one tokenized segment to the rule engine for
// its head command. The first non-nil finding short-circuits.
func analyzeSegment(seg shell.Segment, ctx segmentContext) *Finding {
	tokens, env := shell.StripEnvAssignmentsWithInfo(seg)
	tokens, wrapperEnv := shell.StripWrappersWithInfo(tokens)
	for name, value := range wrapperEnv {
		env[name] = value
	}
	if len(tokens) == 0 {
		return nil
	}

	allowTmpdir := ctx.allowTmpdirVar && !tmpdirOverriddenToNonTemp(env)
	segment := shell.Segment(tokens).Text()
	head := shell.NormalizeCommandToken(tokens[0])

	if shellWrapperNames[head] {
		if script, ok := dashCArgument(tokens[1:]); ok {
			return ctx.analyzeNested(script)
		}
	}

	if interpreterRe.MatchString(head) {
		if code, ok := inlineCodeArgument(tokens[1:]); ok {
			return analyzeInterpreterCode(code, segment, ctx)
		}
	}

	// busybox multiplexes subcommands: `busybox rm -rf /` is rm.
	if head == "busybox" && len(tokens) > 1 {
		return analyzeSegment(shell.Segment(tokens[1:]), ctx)
	}

	pc := pathContext{
		cwd:            ctx.cwd,
		effectiveCwd:   ctx.effectiveCwd,
		paranoid:       ctx.paranoidRm,
		allowTmpdirVar: allowTmpdir,
	}

	switch head {
	case "rm":
		return checkRm(tokens, pc, segment)
	case "git":
		return checkGit(tokens, segment)
	case "find":
		return checkFind(tokens, segment)
	case "xargs", "parallel":
		cc := compositeContext{pathCtx: pc, analyzeNested: ctx.analyzeNested}
		return checkComposite(head, tokens, cc, segment)
	}

	if displayOnly[head] {
		return nil
	}

	// Unrecognized head: the command may still hand its arguments to one
	// of the policed tools (`watch rm -rf x`, unusual wrappers). Scan for
	// a bare rm/git/find token and re-run that engine on the suffix.
	for i := 1; i < len(tokens); i++ {
		switch tokens[i] {
		case "rm":
			if f := checkRm(tokens[i:], pc, segment); f != nil {
				return f
			}
		case "git":
			if f := checkGit(tokens[i:], segment); f != nil {
				return f
			}
		case "find":
			if f := checkFind(tokens[i:], segment); f != nil {
				return f
			}
		}
	}
	return nil
}

func analyzeInterpreterCode(code, segment string, ctx segmentContext) *Finding {
	if ctx.paranoidInterpreters {
		return &Finding{Reason: paranoidInterpreterReason, Segment: segment}
	}
	if f := ctx.analyzeNested(code); f != nil {
		return f
	}
	if needle := scanInterpreterCode(code); needle != "" {
		return &Finding{
			Reason:  "Interpreter one-liner contains a dangerous call (" + needle + ").",
			Segment: segment,
		}
	}
	return nil
}

// dashCArgument finds a shell's -c script argument, including combined
// forms like `bash -lc 'script'`. The script is the argument following
// the flag token.
func dashCArgument(args []string) (string, bool) {
	return flagArgument(args, "c")
}

// inlineCodeArgument finds an interpreter's inline code argument: -c for
// python, -e for node/ruby/perl, including combined forms like
// `perl -ne 'code'`.
func inlineCodeArgument(args []string) (string, bool) {
	return flagArgument(args, "ce")
}

func flagArgument(args []string, letters string) (string, bool) {
	for i, arg := range args {
		if !strings.HasPrefix(arg, "-") || arg == "-" || strings.HasPrefix(arg, "--") {
			continue
		}
		if strings.ContainsAny(arg[1:], letters) {
			if i+1 < len(args) {
				return args[i+1], true
			}
			return "", false
		}
	}
	return "", false
}

// interpreterNeedles are literal substrings in inline interpreter code
// that shell out or destroy files. Matched case-insensitively after the
// nested analysis found nothing.
var interpreterNeedles = []string{
	"os.system",
	"subprocess",
	"os.popen",
	"shutil.rmtree",
	"os.remove",
	"os.unlink",
	"os.rmdir",
	"child_process",
	"execsync",
	"spawnsync",
	"fs.rm",
	"fs.unlink",
	"rmsync",
	"unlinksync",
	"rimraf",
	"fileutils.rm_rf",
	"system(",
	"%x(",
	"unlink(",
	"rm -rf",
	"rm -fr",
}

func scanInterpreterCode(code string) string {
	lower := strings.ToLower(code)
	for _, needle := range interpreterNeedles {
		if strings.Contains(lower, needle) {
			return needle
		}
	}
	if strings.ContainsRune(code, '`') {
		return "backtick command substitution"
	}
	return ""
}

// tmpdirOverriddenToNonTemp reports whether a leading TMPDIR=... token
// redirects the "temp directory" somewhere that is not actually a temp
// path, which would let `rm -rf $TMPDIR` escape the temp carve-out.
func tmpdirOverriddenToNonTemp(env map[string]string) bool {
	value, ok := env["TMPDIR"]
	if !ok {
		return false
	}
	return !isTempPath(value)
}
