package analyzer

import "testing"

func TestXargsRm(t *testing.T) {
	// Recursive-force rm fed from stdin: targets are unknowable.
	blocked := []string{
		"xargs rm -rf",
		"xargs -0 rm -rf",
		"xargs -n 1 rm -rf",
		"xargs -I{} rm -rf {}",
		"cat list.txt | xargs rm -rf",
		"find . -name '*.log' | xargs rm -rf",
	}
	for _, cmd := range blocked {
		expectBlock(t, Analyze(cmd), cmd)
	}

	allowed := []string{
		"xargs rm",
		"xargs rm -f",
		"xargs ls -la",
		"xargs wc -l",
		"xargs -n 1 echo",
	}
	for _, cmd := range allowed {
		expectAllow(t, Analyze(cmd), cmd)
	}
}

func TestParallelLiteralArgs(t *testing.T) {
	// With ::: the argument list is fully known and each expansion is
	// classified like a direct rm.
	expectAllow(t,
		Analyze("parallel rm -rf {} ::: /tmp/a /tmp/b"),
		"parallel rm -rf over temp targets")
	expectBlock(t,
		Analyze("parallel rm -rf {} ::: /tmp/a /etc"),
		"parallel rm -rf including a non-temp target")
	expectBlock(t,
		Analyze("parallel rm -rf {} ::: /"),
		"parallel rm -rf of root")
	expectAllow(t,
		Analyze("parallel rm -rf {} ::: build dist", WithCwd("/workspace/proj")),
		"parallel rm -rf of within-cwd targets")

	// No placeholder: parallel appends the argument like xargs would.
	expectBlock(t,
		Analyze("parallel rm -rf ::: /etc"),
		"parallel rm -rf with appended args")
}

func TestCompositeShellChildren(t *testing.T) {
	blocked := []struct {
		cmd  string
		desc string
	}{
		{`xargs -I{} bash -c "rm -rf {}"`, "placeholder spliced into a shell script"},
		{`xargs -I{} sh -c {}`, "input executed directly as a shell command"},
		{`parallel bash -c {} ::: 'rm -rf /'`, "parallel running its input as shell"},
		{`xargs bash -c 'rm -rf /'`, "static script that is itself dangerous"},
		{`parallel sh -c 'rm -rf {}' ::: /etc`, "literal expansion resolving to a dangerous delete"},
	}
	for _, tt := range blocked {
		expectBlock(t, Analyze(tt.cmd), tt.desc)
	}

	allowed := []struct {
		cmd  string
		desc string
	}{
		{`xargs bash -c 'echo done'`, "static benign script"},
		{`parallel sh -c 'wc -l {}' ::: a.txt b.txt`, "literal expansion resolving to benign commands"},
	}
	for _, tt := range allowed {
		expectAllow(t, Analyze(tt.cmd), tt.desc)
	}
}

func TestCompositeFindAndGitChildren(t *testing.T) {
	expectBlock(t, Analyze("xargs find /data -delete"), "xargs find -delete")
	expectBlock(t, Analyze("xargs git push --force"), "xargs git push --force")
	expectAllow(t, Analyze("xargs git log --oneline"), "xargs git log")
}

func TestCompositeTruncatedFlags(t *testing.T) {
	// A value-taking flag at the end of the line has no value and no
	// child command. The analyzer must return a verdict, not crash.
	for _, cmd := range []string{
		"xargs -I",
		"xargs -n",
		"xargs --replace",
		"echo hi | xargs -I",
		"parallel --replace",
		"parallel -j",
	} {
		expectAllow(t, Analyze(cmd), cmd)
	}
}

func TestParseComposite(t *testing.T) {
	tests := []struct {
		name        string
		args        []string
		valueOpts   map[string]bool
		placeholder string
		wantChild   []string
		wantLits    []string
		wantPH      string
	}{
		{
			name:      "plain_child",
			args:      []string{"rm", "-rf"},
			valueOpts: xargsValueOpts,
			wantChild: []string{"rm", "-rf"},
		},
		{
			name:      "value_opt_skipped",
			args:      []string{"-n", "1", "rm", "-rf"},
			valueOpts: xargsValueOpts,
			wantChild: []string{"rm", "-rf"},
		},
		{
			name:      "inline_replace",
			args:      []string{"-I{}", "rm", "{}"},
			valueOpts: xargsValueOpts,
			wantChild: []string{"rm", "{}"},
			wantPH:    "{}",
		},
		{
			name:      "separate_replace_token",
			args:      []string{"-I", "@@", "mv", "@@", "/dest"},
			valueOpts: xargsValueOpts,
			wantChild: []string{"mv", "@@", "/dest"},
			wantPH:    "@@",
		},
		{
			name:      "trailing_value_flag",
			args:      []string{"-I"},
			valueOpts: xargsValueOpts,
		},
		{
			name:      "trailing_value_flag_after_opts",
			args:      []string{"-0", "-n"},
			valueOpts: xargsValueOpts,
		},
		{
			name:        "triple_colon_literals",
			args:        []string{"rm", "-rf", "{}", ":::", "/tmp/a", "/tmp/b"},
			valueOpts:   parallelValueOpts,
			placeholder: "{}",
			wantChild:   []string{"rm", "-rf", "{}"},
			wantLits:    []string{"/tmp/a", "/tmp/b"},
			wantPH:      "{}",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inv := parseComposite(tt.args, tt.valueOpts, tt.placeholder)
			if !equalStrings(inv.child, tt.wantChild) {
				t.Errorf("child = %v, want %v", inv.child, tt.wantChild)
			}
			if !equalStrings(inv.literalArgs, tt.wantLits) {
				t.Errorf("literalArgs = %v, want %v", inv.literalArgs, tt.wantLits)
			}
			if inv.placeholder != tt.wantPH {
				t.Errorf("placeholder = %q, want %q", inv.placeholder, tt.wantPH)
			}
		})
	}
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
