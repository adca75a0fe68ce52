package analyzer

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/bashgate/bashgate/shell"
)

const (
	rootHomeReason = "rm -rf targeting root or home directory is extremely dangerous and always blocked."
	outsideReason  = "rm -rf outside the current working directory is blocked. Change into the directory and delete manually if this is intentional."
	homeCwdReason  = "rm -rf while the working directory is the home directory is blocked; a relative target could destroy home files."
	paranoidReason = "rm -rf is blocked (PARANOID_RM enabled)."
)

// pathContext carries the working-directory belief used to classify rm
// targets. cwd is the caller-supplied anchor; effectiveCwd is "" once a
// prior segment changed directories unpredictably.
type pathContext struct {
	cwd            string
	effectiveCwd   string
	paranoid       bool
	allowTmpdirVar bool
}

// targetClass is the classification of a single rm target. Each variant
// maps deterministically to an allow/block decision.
type targetClass int

const (
	classRootOrHome targetClass = iota
	classCwdSelf
	classTemp
	classWithinCwd
	classOutsideCwd
)

// rootHomeLiterals are target spellings that always mean root or home,
// blocked regardless of cwd or paranoid mode.
var rootHomeLiterals = map[string]bool{
	"/":         true,
	"/*":        true,
	"~":         true,
	"~/":        true,
	"~/*":       true,
	"$HOME":     true,
	"$HOME/":    true,
	"$HOME/*":   true,
	"${HOME}":   true,
	"${HOME}/":  true,
	"${HOME}/*": true,
}

// checkRm polices recursive-force deletions. rm without both a recursive
// and a force flag is left alone.
func checkRm(tokens []string, pc pathContext, segment string) *Finding {
	flags, targets := splitRmArgs(tokens[1:])
	if !hasRecursiveForce(flags) {
		return nil
	}

	home, _ := os.UserHomeDir()

	// Safety net: with the shell sitting in the home directory, any
	// relative target lands inside home. Known cwd only; an unknown cwd
	// is handled by the outside-cwd fallback below.
	cwdIsHome := pc.effectiveCwd != "" && home != "" && samePath(pc.effectiveCwd, home)

	for _, target := range targets {
		class := classifyRmTarget(target, pc, home)
		switch class {
		case classRootOrHome:
			return &Finding{Reason: rootHomeReason, Segment: segment}
		case classCwdSelf:
			return &Finding{Reason: outsideReason, Segment: segment}
		case classTemp:
			continue
		}
		if cwdIsHome {
			return &Finding{Reason: homeCwdReason, Segment: segment}
		}
		if class == classWithinCwd {
			if pc.paranoid {
				return &Finding{Reason: paranoidReason, Segment: segment}
			}
			continue
		}
		return &Finding{Reason: outsideReason, Segment: segment}
	}
	return nil
}

func classifyRmTarget(target string, pc pathContext, home string) targetClass {
	if rootHomeLiterals[target] {
		return classRootOrHome
	}
	if home != "" && filepath.IsAbs(target) && samePath(target, home) {
		return classRootOrHome
	}
	if target == "." || target == "./" {
		return classCwdSelf
	}
	if pc.effectiveCwd != "" && resolvesToCwd(target, pc.effectiveCwd) {
		return classCwdSelf
	}
	if isTempTarget(target, pc.allowTmpdirVar) {
		return classTemp
	}
	if isWithinCwd(target, pc) {
		return classWithinCwd
	}
	return classOutsideCwd
}

func splitRmArgs(args []string) (flags, targets []string) {
	for i, arg := range args {
		if arg == "--" {
			targets = append(targets, args[i+1:]...)
			return flags, targets
		}
		if strings.HasPrefix(arg, "-") && arg != "-" {
			flags = append(flags, arg)
			continue
		}
		targets = append(targets, arg)
	}
	return flags, targets
}

// hasRecursiveForce reports whether the flag list includes both a
// recursive flag (-r/-R/--recursive) and a force flag (-f/--force),
// including combined short options like -rf.
func hasRecursiveForce(flags []string) bool {
	var recursive, force bool
	for _, flag := range flags {
		switch flag {
		case "--recursive":
			recursive = true
			continue
		case "--force":
			force = true
			continue
		}
		for _, opt := range shell.ExtractShortOpts(flag) {
			switch opt {
			case "-r", "-R":
				recursive = true
			case "-f":
				force = true
			}
		}
	}
	return recursive && force
}

// rmHasRecursiveForce checks a raw rm argument list (used by the find
// and xargs engines, where targets may be {} placeholders).
func rmHasRecursiveForce(args []string) bool {
	flags, _ := splitRmArgs(args)
	return hasRecursiveForce(flags)
}

// resolvesToCwd reports whether target names the working directory
// itself. Symlinks are resolved when possible; a failed resolution
// (target does not exist) falls back to lexical comparison. This is the
// analyzer's only filesystem access.
func resolvesToCwd(target, cwd string) bool {
	if strings.ContainsAny(target, "$`") {
		return false
	}
	candidate := target
	if !filepath.IsAbs(candidate) {
		candidate = filepath.Join(cwd, candidate)
	}
	return realOrClean(candidate) == realOrClean(cwd)
}

func realOrClean(path string) string {
	if resolved, err := filepath.EvalSymlinks(path); err == nil {
		return resolved
	}
	return filepath.Clean(path)
}

func samePath(a, b string) bool {
	return filepath.Clean(a) == filepath.Clean(b)
}

func tempRoots() []string {
	roots := []string{"/tmp", "/var/tmp"}
	if sys := filepath.Clean(os.TempDir()); sys != "." && sys != "/" {
		roots = append(roots, sys)
	}
	return roots
}

func isTempPath(path string) bool {
	cleaned := filepath.Clean(path)
	for _, root := range tempRoots() {
		if cleaned == root || strings.HasPrefix(cleaned, root+"/") {
			return true
		}
	}
	return false
}

// isTempTarget allows deletion under temp directories. A target
// containing ".." is never temp: /tmp/../etc must not ride the temp
// carve-out.
func isTempTarget(target string, allowTmpdirVar bool) bool {
	if strings.Contains(target, "..") {
		return false
	}
	if allowTmpdirVar {
		for _, prefix := range []string{"$TMPDIR", "${TMPDIR}"} {
			if target == prefix || strings.HasPrefix(target, prefix+"/") {
				return true
			}
		}
	}
	if strings.ContainsAny(target, "$`") {
		return false
	}
	for _, root := range tempRoots() {
		if target == root || strings.HasPrefix(target, root+"/") {
			return true
		}
	}
	return false
}

// isWithinCwd reports whether target provably stays inside the anchored
// cwd. Targets that cannot be expanded at analysis time ($var, backticks,
// ~) are never "within" and fall through to the outside classification.
func isWithinCwd(target string, pc pathContext) bool {
	if pc.cwd == "" {
		return false
	}
	if strings.HasPrefix(target, "~") ||
		strings.HasPrefix(target, "$HOME") ||
		strings.HasPrefix(target, "${HOME}") {
		return false
	}
	if strings.ContainsAny(target, "$`") {
		return false
	}

	anchor := filepath.Clean(pc.cwd)

	if filepath.IsAbs(target) {
		cleaned := filepath.Clean(target)
		return cleaned == anchor || strings.HasPrefix(cleaned, anchor+"/")
	}

	if target == ".." || strings.HasPrefix(target, "../") {
		return false
	}
	if pc.effectiveCwd == "" {
		// Relative target with an unknown working directory: could be
		// anywhere.
		return false
	}
	resolved := filepath.Clean(filepath.Join(pc.effectiveCwd, target))
	return resolved == anchor || strings.HasPrefix(resolved, anchor+"/")
}
