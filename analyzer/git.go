package analyzer

import (
	"strings"
)

// gitGlobalValueOpts are git's global options that consume a separate
// value token, which must be skipped to find the real subcommand in
// forms like `git -C /repo -c user.name=x push -f`.
var gitGlobalValueOpts = map[string]bool{
	"-c":           true,
	"-C":           true,
	"--git-dir":    true,
	"--work-tree":  true,
	"--namespace":  true,
	"--exec-path":  true,
	"--config-env": true,
}

// checkGit blocks git subcommands that discard uncommitted work or
// rewrite shared history. Unknown subcommands are allowed.
func checkGit(tokens []string, segment string) *Finding {
	sub, args := gitSubcommand(tokens[1:])
	switch sub {
	case "checkout":
		return checkGitCheckout(args, segment)
	case "restore":
		return checkGitRestore(args, segment)
	case "reset":
		return checkGitReset(args, segment)
	case "clean":
		return checkGitClean(args, segment)
	case "push":
		return checkGitPush(args, segment)
	case "branch":
		return checkGitBranch(args, segment)
	case "stash":
		return checkGitStash(args, segment)
	case "worktree":
		return checkGitWorktree(args, segment)
	}
	return nil
}

func gitSubcommand(args []string) (string, []string) {
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if !strings.HasPrefix(arg, "-") {
			return arg, args[i+1:]
		}
		if strings.Contains(arg, "=") {
			continue
		}
		if gitGlobalValueOpts[arg] {
			i++
		}
	}
	return "", nil
}

func checkGitCheckout(args []string, segment string) *Finding {
	// Creating a branch never touches tracked files.
	for _, arg := range args {
		if arg == "-b" || arg == "-B" || arg == "--orphan" {
			return nil
		}
	}

	positionals := 0
	for i, arg := range args {
		if arg == "--pathspec-from-file" || strings.HasPrefix(arg, "--pathspec-from-file=") {
			return &Finding{
				Reason:  "git checkout --pathspec-from-file overwrites local files and is blocked.",
				Segment: segment,
			}
		}
		if arg == "--" {
			if i+1 < len(args) {
				return &Finding{
					Reason:  "git checkout -- <path> discards local changes to those files and is blocked.",
					Segment: segment,
				}
			}
			break
		}
		if !strings.HasPrefix(arg, "-") {
			positionals++
		}
	}
	if positionals >= 2 {
		return &Finding{
			Reason:  "git checkout <ref> <path> overwrites local files with the ref's version and is blocked.",
			Segment: segment,
		}
	}
	return nil
}

func checkGitRestore(args []string, segment string) *Finding {
	var staged, worktree bool
	for _, arg := range args {
		switch {
		case arg == "--staged":
			staged = true
		case arg == "--worktree":
			worktree = true
		case strings.HasPrefix(arg, "-") && !strings.HasPrefix(arg, "--"):
			if strings.ContainsRune(arg[1:], 'S') {
				staged = true
			}
			if strings.ContainsRune(arg[1:], 'W') {
				worktree = true
			}
		}
	}
	if staged && !worktree {
		return nil
	}
	return &Finding{
		Reason:  "git restore discards uncommitted changes and is blocked (use --staged to unstage without touching the worktree).",
		Segment: segment,
	}
}

func checkGitReset(args []string, segment string) *Finding {
	for _, arg := range args {
		if arg == "--hard" || arg == "--merge" {
			return &Finding{
				Reason:  "git reset " + arg + " discards uncommitted changes and is blocked.",
				Segment: segment,
			}
		}
	}
	return nil
}

func checkGitClean(args []string, segment string) *Finding {
	var force, dryRun bool
	for _, arg := range args {
		switch {
		case arg == "--force":
			force = true
		case arg == "--dry-run":
			dryRun = true
		case strings.HasPrefix(arg, "-") && !strings.HasPrefix(arg, "--"):
			if strings.ContainsRune(arg[1:], 'f') {
				force = true
			}
			if strings.ContainsRune(arg[1:], 'n') {
				dryRun = true
			}
		}
	}
	if force && !dryRun {
		return &Finding{
			Reason:  "git clean -f deletes untracked files and is blocked (use -n for a dry run).",
			Segment: segment,
		}
	}
	return nil
}

func checkGitPush(args []string, segment string) *Finding {
	var force, lease bool
	for _, arg := range args {
		switch {
		case arg == "--force":
			force = true
		case arg == "--force-with-lease" || strings.HasPrefix(arg, "--force-with-lease="):
			lease = true
		case strings.HasPrefix(arg, "-") && !strings.HasPrefix(arg, "--"):
			if strings.ContainsRune(arg[1:], 'f') {
				force = true
			}
		}
	}
	if force && !lease {
		return &Finding{
			Reason:  "git push --force can overwrite remote history and is blocked (use --force-with-lease).",
			Segment: segment,
		}
	}
	return nil
}

func checkGitBranch(args []string, segment string) *Finding {
	for _, arg := range args {
		if !strings.HasPrefix(arg, "-") || strings.HasPrefix(arg, "--") {
			continue
		}
		// Case-sensitive: -d (safe, merged-only) vs -D (force delete).
		if strings.ContainsRune(arg[1:], 'D') {
			return &Finding{
				Reason:  "git branch -D force-deletes a branch regardless of merge status and is blocked.",
				Segment: segment,
			}
		}
	}
	return nil
}

func checkGitStash(args []string, segment string) *Finding {
	for _, arg := range args {
		if strings.HasPrefix(arg, "-") {
			continue
		}
		switch arg {
		case "drop", "clear":
			return &Finding{
				Reason:  "git stash " + arg + " permanently deletes stashed changes and is blocked.",
				Segment: segment,
			}
		}
		return nil
	}
	return nil
}

func checkGitWorktree(args []string, segment string) *Finding {
	var remove, force bool
	for _, arg := range args {
		if arg == "--" {
			break
		}
		if strings.HasPrefix(arg, "-") {
			if arg == "--force" ||
				(!strings.HasPrefix(arg, "--") && strings.ContainsRune(arg[1:], 'f')) {
				force = true
			}
			continue
		}
		if !remove {
			if arg != "remove" {
				return nil
			}
			remove = true
		}
	}
	if remove && force {
		return &Finding{
			Reason:  "git worktree remove --force deletes the worktree even with local changes and is blocked.",
			Segment: segment,
		}
	}
	return nil
}
