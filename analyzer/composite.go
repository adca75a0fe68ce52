package analyzer

import (
	"regexp"
	"strings"

	"github.com/bashgate/bashgate/shell"
)

// Option tables for xargs and GNU parallel: flags that consume a
// following value token. Hand-maintained; an unknown flag is assumed
// valueless, which errs toward treating more of the tail as the child
// command.
var xargsValueOpts = map[string]bool{
	"-a":                 true,
	"--arg-file":         true,
	"-d":                 true,
	"--delimiter":        true,
	"-E":                 true,
	"-e":                 true,
	"--eof":              true,
	"-I":                 true,
	"-i":                 true,
	"--replace":          true,
	"-L":                 true,
	"-l":                 true,
	"--max-lines":        true,
	"-n":                 true,
	"--max-args":         true,
	"-P":                 true,
	"--max-procs":        true,
	"-s":                 true,
	"--max-chars":        true,
	"--process-slot-var": true,
}

var parallelValueOpts = map[string]bool{
	"-a":             true,
	"--arg-file":     true,
	"-j":             true,
	"--jobs":         true,
	"--colsep":       true,
	"-d":             true,
	"--delimiter":    true,
	"--results":      true,
	"--joblog":       true,
	"-S":             true,
	"--sshlogin":     true,
	"--sshloginfile": true,
	"--tmpdir":       true,
	"--block":        true,
	"--blocksize":    true,
	"-L":             true,
	"-l":             true,
	"-n":             true,
	"-N":             true,
	"-I":             true,
	"--replace":      true,
	"--retries":      true,
	"--timeout":      true,
}

// placeholderRe matches parallel/xargs replacement tokens: {}, {1}, {.},
// {/}, {//}, {/.}, {#}.
var placeholderRe = regexp.MustCompile(`^\{(?:[0-9]+|[./#]|//|/\.)?\}$`)

type compositeContext struct {
	pathCtx       pathContext
	analyzeNested func(string) *Finding
}

// compositeInvocation is a parsed xargs/parallel command line: the child
// command template, literal arguments from a ::: list, and the active
// replacement placeholder.
type compositeInvocation struct {
	child       []string
	literalArgs []string
	placeholder string
}

// checkComposite handles xargs and parallel, which splice dynamic input
// into a child command template.
func checkComposite(name string, tokens []string, cc compositeContext, segment string) *Finding {
	valueOpts := xargsValueOpts
	placeholder := ""
	if name == "parallel" {
		valueOpts = parallelValueOpts
		placeholder = "{}"
	}
	inv := parseComposite(tokens[1:], valueOpts, placeholder)

	if len(inv.child) == 0 {
		// xargs with no command defaults to echo; parallel with no
		// template runs its input, but with no template tokens there is
		// nothing policed to expand into.
		return nil
	}

	head := shell.NormalizeCommandToken(inv.child[0])

	if shellWrapperNames[head] {
		return checkCompositeShell(name, inv, cc, segment)
	}

	switch head {
	case "rm":
		return checkCompositeRm(name, inv, cc, segment)
	case "find":
		return checkFind(inv.child, segment)
	case "git":
		return checkGit(inv.child, segment)
	}
	return nil
}

func checkCompositeShell(name string, inv compositeInvocation, cc compositeContext, segment string) *Finding {
	script, ok := dashCArgument(inv.child[1:])
	if !ok {
		// A shell child with no -c script still executes its input when a
		// placeholder splices it in.
		if inv.hasPlaceholderIn(inv.child[1:]) && len(inv.literalArgs) == 0 {
			return &Finding{
				Reason:  name + " passes dynamic input to a shell and cannot be analyzed; blocked.",
				Segment: segment,
			}
		}
		return nil
	}

	if inv.isPlaceholder(script) {
		return &Finding{
			Reason:  name + " executes its input directly as a shell command; blocked (unbounded command injection).",
			Segment: segment,
		}
	}

	if inv.containsPlaceholder(script) {
		if len(inv.literalArgs) == 0 {
			return &Finding{
				Reason:  name + " splices dynamic input into a shell command and cannot be analyzed; blocked.",
				Segment: segment,
			}
		}
		for _, arg := range inv.literalArgs {
			if f := cc.analyzeNested(inv.substitute(script, arg)); f != nil {
				return f
			}
		}
		return nil
	}

	return cc.analyzeNested(script)
}

func checkCompositeRm(name string, inv compositeInvocation, cc compositeContext, segment string) *Finding {
	if !rmHasRecursiveForce(inv.child[1:]) {
		return nil
	}
	if len(inv.literalArgs) == 0 {
		// Targets come from stdin; nothing to classify.
		return &Finding{
			Reason:  name + " rm -rf with dynamic input is dangerous and blocked.",
			Segment: segment,
		}
	}
	for _, arg := range inv.literalArgs {
		if f := checkRm(inv.expandChild(arg), cc.pathCtx, segment); f != nil {
			return f
		}
	}
	return nil
}

func parseComposite(args []string, valueOpts map[string]bool, placeholder string) compositeInvocation {
	inv := compositeInvocation{placeholder: placeholder}

	i := 0
	for i < len(args) {
		arg := args[i]
		if !strings.HasPrefix(arg, "-") || arg == "-" {
			break
		}
		if arg == "--" {
			i++
			break
		}
		if strings.Contains(arg, "=") {
			i++
			continue
		}
		// -I{} attaches the replacement string to the flag.
		if len(arg) > 2 && (strings.HasPrefix(arg, "-I") || strings.HasPrefix(arg, "-i")) {
			inv.placeholder = arg[2:]
			i++
			continue
		}
		if arg == "-i" {
			// -i without a value defaults the replacement string to {}.
			inv.placeholder = "{}"
			i++
			continue
		}
		if valueOpts[arg] {
			if i+1 >= len(args) {
				// Value-taking flag with its value missing: the line is
				// truncated and has no child command.
				return inv
			}
			if arg == "-I" || arg == "--replace" {
				inv.placeholder = args[i+1]
			}
			i += 2
			continue
		}
		i++
	}

	rest := args[i:]
	for j, arg := range rest {
		if arg == ":::" || arg == "::::" {
			inv.child = rest[:j]
			for _, lit := range rest[j+1:] {
				if lit == ":::" || lit == "::::" {
					continue
				}
				inv.literalArgs = append(inv.literalArgs, lit)
			}
			return inv
		}
	}
	inv.child = rest
	return inv
}

func (inv compositeInvocation) isPlaceholder(token string) bool {
	if inv.placeholder != "" && token == inv.placeholder {
		return true
	}
	return placeholderRe.MatchString(token)
}

func (inv compositeInvocation) containsPlaceholder(text string) bool {
	if inv.placeholder != "" && strings.Contains(text, inv.placeholder) {
		return true
	}
	return strings.Contains(text, "{}")
}

func (inv compositeInvocation) hasPlaceholderIn(tokens []string) bool {
	for _, tok := range tokens {
		if inv.isPlaceholder(tok) {
			return true
		}
	}
	return false
}

func (inv compositeInvocation) substitute(text, arg string) string {
	if inv.placeholder != "" {
		text = strings.ReplaceAll(text, inv.placeholder, arg)
	}
	return strings.ReplaceAll(text, "{}", arg)
}

// expandChild produces one concrete child argv for a literal argument:
// placeholders are substituted where present, otherwise the argument is
// appended the way xargs would.
func (inv compositeInvocation) expandChild(arg string) []string {
	expanded := make([]string, 0, len(inv.child)+1)
	substituted := false
	for _, tok := range inv.child {
		if inv.isPlaceholder(tok) {
			expanded = append(expanded, arg)
			substituted = true
			continue
		}
		expanded = append(expanded, tok)
	}
	if !substituted {
		expanded = append(expanded, arg)
	}
	return expanded
}
