package shell

import (
	"regexp"
	"strings"
)

var envAssignRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*=`)

// wrapperSpec describes a no-op wrapper command: one that runs its
// remaining arguments unchanged. valueFlags are the wrapper's own options
// that consume a following argument; positional is the number of
// non-option arguments the wrapper consumes before the real command
// (timeout's duration, for example).
type wrapperSpec struct {
	valueFlags map[string]bool
	positional int
}

var wrappers = map[string]wrapperSpec{
	"env":     {valueFlags: map[string]bool{"-u": true, "-C": true, "-S": true}},
	"sudo":    {valueFlags: map[string]bool{"-u": true, "-g": true, "-p": true}},
	"doas":    {valueFlags: map[string]bool{"-u": true}},
	"command": {},
	"builtin": {},
	"exec":    {},
	"nohup":   {},
	"time":    {},
	"nice":    {valueFlags: map[string]bool{"-n": true}},
	"ionice":  {valueFlags: map[string]bool{"-c": true, "-n": true}},
	"stdbuf":  {valueFlags: map[string]bool{"-i": true, "-o": true, "-e": true}},
	"timeout": {valueFlags: map[string]bool{"-s": true, "-k": true}, positional: 1},
}

// StripEnvAssignmentsWithInfo removes leading NAME=value tokens and
// returns them as a map alongside the residual argv.
func StripEnvAssignmentsWithInfo(tokens []string) ([]string, map[string]string) {
	assignments := make(map[string]string)
	for len(tokens) > 0 {
		match := envAssignRe.FindString(tokens[0])
		if match == "" {
			break
		}
		assignments[strings.TrimSuffix(match, "=")] = tokens[0][len(match):]
		tokens = tokens[1:]
	}
	return tokens, assignments
}

// StripWrappersWithInfo strips a leading chain of no-op wrappers (env,
// sudo, time, nice, ...) together with their own options, plus any
// NAME=value tokens interleaved with them. The collected assignments are
// returned so policy checks (TMPDIR overrides) can see them.
func StripWrappersWithInfo(tokens []string) ([]string, map[string]string) {
	assignments := make(map[string]string)
	for len(tokens) > 0 {
		if match := envAssignRe.FindString(tokens[0]); match != "" {
			assignments[strings.TrimSuffix(match, "=")] = tokens[0][len(match):]
			tokens = tokens[1:]
			continue
		}

		spec, ok := wrappers[NormalizeCommandToken(tokens[0])]
		if !ok {
			break
		}
		tokens = consumeWrapperArgs(tokens[1:], spec)
	}
	return tokens, assignments
}

func consumeWrapperArgs(tokens []string, spec wrapperSpec) []string {
	remaining := spec.positional
	for len(tokens) > 0 {
		tok := tokens[0]
		if tok == "--" {
			return tokens[1:]
		}
		if strings.HasPrefix(tok, "-") && tok != "-" {
			flag := tok
			if eq := strings.Index(tok, "="); eq > 0 {
				flag = tok[:eq]
			}
			if spec.valueFlags[flag] && flag == tok && len(tokens) > 1 {
				tokens = tokens[2:]
				continue
			}
			tokens = tokens[1:]
			continue
		}
		if remaining > 0 {
			remaining--
			tokens = tokens[1:]
			continue
		}
		return tokens
	}
	return tokens
}

// Basename strips any directory prefix and a Windows-style .exe suffix
// from a command token. Interpreter version suffixes (python3.11) are
// preserved.
func Basename(token string) string {
	base := token
	if i := strings.LastIndexByte(base, '/'); i >= 0 {
		base = base[i+1:]
	}
	return strings.TrimSuffix(base, ".exe")
}

// NormalizeCommandToken lower-cases the basename for membership tests
// against the wrapper and interpreter sets.
func NormalizeCommandToken(token string) string {
	return strings.ToLower(Basename(token))
}

// ExtractShortOpts expands a combined short-option token (-rf) into its
// individual flags ({-r, -f}). Long options and non-flags pass through
// unchanged as single elements.
func ExtractShortOpts(token string) []string {
	if !strings.HasPrefix(token, "-") || token == "-" || token == "--" || strings.HasPrefix(token, "--") {
		return []string{token}
	}
	opts := make([]string, 0, len(token)-1)
	for _, r := range token[1:] {
		opts = append(opts, "-"+string(r))
	}
	return opts
}
