package analyzer

import (
	"strings"
	"testing"
)

// End-to-end bypass attempts. Each case is a way an agent (or a prompt
// injection riding one) might dress up a destructive command.

func TestAttackShellWrapping(t *testing.T) {
	tests := []struct {
		name string
		cmd  string
	}{
		{"bash_c", `bash -c "rm -rf /"`},
		{"sh_c", `sh -c 'rm -rf /'`},
		{"zsh_c", `zsh -c "rm -rf ~"`},
		{"bash_lc_combined", `bash -lc 'rm -rf /'`},
		{"nested_two_levels", `bash -c "sh -c 'rm -rf /'"`},
		{"sudo_bash", `sudo bash -c 'rm -rf /'`},
		{"bash_c_git", `bash -c 'git push --force'`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			expectBlock(t, Analyze(tt.cmd), tt.cmd)
		})
	}
}

func TestAttackInterpreterOneLiners(t *testing.T) {
	tests := []struct {
		name string
		cmd  string
	}{
		{"python_shutil", `python -c "import shutil; shutil.rmtree('/etc')"`},
		{"python_os_system", `python3 -c 'import os; os.system("rm -rf /")'`},
		{"python_subprocess", `python -c "import subprocess; subprocess.run(['rm','-rf','/'])"`},
		{"python_versioned", `python3.11 -c "import shutil; shutil.rmtree('x')"`},
		{"node_child_process", `node -e "require('child_process').execSync('rm -rf /')"`},
		{"node_fs_rm", `node -e "require('fs').rmSync('/', {recursive: true, force: true})"`},
		{"ruby_fileutils", `ruby -e "FileUtils.rm_rf('/')"`},
		{"ruby_system", `ruby -e "system('rm -rf /')"`},
		{"perl_system", `perl -e 'system("rm -rf /")'`},
		{"perl_unlink", `perl -e 'unlink("/etc/passwd")'`},
		{"perl_backtick", "perl -e '`rm -rf /`'"},
		{"perl_ne_combined", `perl -ne 'system("rm -rf /")'`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			expectBlock(t, Analyze(tt.cmd), tt.cmd)
		})
	}

	expectAllow(t, Analyze(`python -c "print('hello')"`), "benign python one-liner")
	expectAllow(t, Analyze(`node -e "console.log(1+1)"`), "benign node one-liner")
	expectAllow(t, Analyze("python script.py"), "python running a script file")
}

func TestAttackParanoidInterpreters(t *testing.T) {
	finding := Analyze(`python -c "print('hello')"`, WithParanoidInterpreters())
	expectBlock(t, finding, "benign one-liner in paranoid-interpreters mode")
	if finding != nil && !strings.Contains(finding.Reason, "PARANOID_INTERPRETERS") {
		t.Errorf("wrong reason: %s", finding.Reason)
	}

	expectAllow(t,
		Analyze("python script.py", WithParanoidInterpreters()),
		"script file in paranoid-interpreters mode")
}

func TestAttackObfuscatedPaths(t *testing.T) {
	tests := []struct {
		name string
		cmd  string
	}{
		{"double_slash_root", "rm -rf //"},
		{"dot_root", "rm -rf /."},
		{"traversal_to_root", "rm -rf /tmp/../.."},
		{"traversal_out_of_cwd", "rm -rf ./../../etc"},
		{"quoted_root", `rm -rf "/"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			expectBlock(t, Analyze(tt.cmd, WithCwd("/workspace/proj")), tt.cmd)
		})
	}
}

func TestAttackSegmentSmuggling(t *testing.T) {
	tests := []struct {
		name string
		cmd  string
	}{
		{"after_benign_and", "ls && rm -rf /"},
		{"after_benign_semicolon", "echo ok; rm -rf /"},
		{"after_benign_pipe", "cat x | xargs rm -rf"},
		{"in_subshell", "(rm -rf /)"},
		{"after_or", "true || rm -rf /"},
		{"backgrounded", "rm -rf / &"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			expectBlock(t, Analyze(tt.cmd), tt.cmd)
		})
	}
}

func TestAttackDisplayOnlyIsNotExecution(t *testing.T) {
	expectAllow(t, Analyze("echo rm -rf /"), "echoed rm -rf")
	expectAllow(t, Analyze(`printf '%s\n' 'rm -rf /'`), "printf'd rm -rf")

	// But echo in one segment does not launder the next one.
	expectBlock(t, Analyze("echo safe && rm -rf /"), "echo then rm -rf")
}

func TestAttackDepthExhaustion(t *testing.T) {
	// Nesting beyond the recursion cap must terminate quickly and not
	// panic; the verdict at that depth is out of scope.
	inner := "rm -rf /"
	for i := 0; i < 10; i++ {
		inner = "bash -c " + "'" + strings.ReplaceAll(inner, "'", `'"'"'`) + "'"
	}
	_ = Analyze(inner)

	// Within the cap, nesting still blocks.
	expectBlock(t,
		Analyze(`bash -c "bash -c 'rm -rf /'"`),
		"double-nested rm -rf")
}
