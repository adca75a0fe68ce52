package analyzer

import "testing"

func TestGitCheckout(t *testing.T) {
	blocked := []string{
		"git checkout -- file.txt",
		"git checkout -- .",
		"git checkout HEAD file.txt",
		"git checkout main src/app.go",
		"git checkout --pathspec-from-file=list.txt",
		"git checkout --pathspec-from-file list.txt",
	}
	for _, cmd := range blocked {
		expectBlock(t, Analyze(cmd), cmd)
	}

	allowed := []string{
		"git checkout main",
		"git checkout feature/thing",
		"git checkout -b new-branch",
		"git checkout -B new-branch origin/main",
		"git checkout --orphan fresh",
		"git checkout --",
	}
	for _, cmd := range allowed {
		expectAllow(t, Analyze(cmd), cmd)
	}
}

func TestGitRestore(t *testing.T) {
	blocked := []string{
		"git restore file.txt",
		"git restore .",
		"git restore --worktree file.txt",
		"git restore --staged --worktree file.txt",
		"git restore -S -W file.txt",
	}
	for _, cmd := range blocked {
		expectBlock(t, Analyze(cmd), cmd)
	}

	allowed := []string{
		"git restore --staged file.txt",
		"git restore -S file.txt",
		"git restore --staged .",
	}
	for _, cmd := range allowed {
		expectAllow(t, Analyze(cmd), cmd)
	}

	// -s is --source, not --staged; it must not exempt the restore.
	expectBlock(t, Analyze("git restore -s main file.txt"), "git restore -s (source)")
}

func TestGitReset(t *testing.T) {
	expectBlock(t, Analyze("git reset --hard"), "git reset --hard")
	expectBlock(t, Analyze("git reset --hard HEAD~3"), "git reset --hard HEAD~3")
	expectBlock(t, Analyze("git reset --merge"), "git reset --merge")

	expectAllow(t, Analyze("git reset"), "bare git reset")
	expectAllow(t, Analyze("git reset --soft HEAD~1"), "git reset --soft")
	expectAllow(t, Analyze("git reset --mixed HEAD"), "git reset --mixed")
	expectAllow(t, Analyze("git reset HEAD file.txt"), "git reset of a path")
}

func TestGitClean(t *testing.T) {
	expectBlock(t, Analyze("git clean -f"), "git clean -f")
	expectBlock(t, Analyze("git clean -fd"), "git clean -fd")
	expectBlock(t, Analyze("git clean -xfd"), "git clean -xfd")
	expectBlock(t, Analyze("git clean --force"), "git clean --force")

	expectAllow(t, Analyze("git clean -n"), "git clean -n")
	expectAllow(t, Analyze("git clean -fn"), "git clean -f -n dry run")
	expectAllow(t, Analyze("git clean -f --dry-run"), "git clean -f --dry-run")
}

func TestGitPush(t *testing.T) {
	expectBlock(t, Analyze("git push --force"), "git push --force")
	expectBlock(t, Analyze("git push -f"), "git push -f")
	expectBlock(t, Analyze("git push -f origin main"), "git push -f origin main")
	expectBlock(t, Analyze("git push origin main --force"), "git push trailing --force")

	expectAllow(t, Analyze("git push"), "plain git push")
	expectAllow(t, Analyze("git push origin main"), "git push origin main")
	expectAllow(t, Analyze("git push --force-with-lease"), "git push --force-with-lease")
	expectAllow(t, Analyze("git push --force-with-lease=main origin main"), "git push --force-with-lease=ref")
}

func TestGitBranch(t *testing.T) {
	expectBlock(t, Analyze("git branch -D old"), "git branch -D")
	expectBlock(t, Analyze("git branch -Dr old"), "git branch -Dr")

	expectAllow(t, Analyze("git branch -d merged"), "git branch -d (lowercase)")
	expectAllow(t, Analyze("git branch new"), "git branch create")
	expectAllow(t, Analyze("git branch -a"), "git branch -a")
}

func TestGitStash(t *testing.T) {
	expectBlock(t, Analyze("git stash drop"), "git stash drop")
	expectBlock(t, Analyze("git stash clear"), "git stash clear")
	expectBlock(t, Analyze("git stash drop stash@{0}"), "git stash drop stash@{0}")

	expectAllow(t, Analyze("git stash"), "bare git stash")
	expectAllow(t, Analyze("git stash push -m wip"), "git stash push")
	expectAllow(t, Analyze("git stash list"), "git stash list")
	expectAllow(t, Analyze("git stash pop"), "git stash pop")
	expectAllow(t, Analyze("git stash apply"), "git stash apply")
}

func TestGitWorktree(t *testing.T) {
	expectBlock(t, Analyze("git worktree remove --force ../wt"), "git worktree remove --force")
	expectBlock(t, Analyze("git worktree remove -f ../wt"), "git worktree remove -f")
	expectBlock(t, Analyze("git worktree -f remove ../wt"), "force flag before remove")

	expectAllow(t, Analyze("git worktree remove ../wt"), "git worktree remove without force")
	expectAllow(t, Analyze("git worktree add ../wt main"), "git worktree add")
	expectAllow(t, Analyze("git worktree list"), "git worktree list")
}

func TestGitGlobalOptions(t *testing.T) {
	// Global options before the subcommand must not hide it.
	expectBlock(t, Analyze("git -C /repo push --force"), "git -C <dir> push --force")
	expectBlock(t, Analyze("git -c user.name=x reset --hard"), "git -c <kv> reset --hard")
	expectBlock(t, Analyze("git --git-dir=/repo/.git clean -f"), "git --git-dir=<d> clean -f")
	expectBlock(t, Analyze("git --work-tree /repo checkout -- ."), "git --work-tree <d> checkout -- .")

	expectAllow(t, Analyze("git -C /repo status"), "git -C <dir> status")
}

func TestGitUnknownSubcommandsAllowed(t *testing.T) {
	commands := []string{
		"git log",
		"git diff HEAD~1",
		"git fetch --all",
		"git pull --rebase",
		"git merge feature",
		"git rebase main",
		"git cherry-pick abc123",
		"git tag v1.0.0",
	}
	for _, cmd := range commands {
		expectAllow(t, Analyze(cmd), cmd)
	}
}
