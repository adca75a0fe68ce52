package shell

import (
	"reflect"
	"testing"
)

func TestSplitSimpleCommands(t *testing.T) {
	tests := []struct {
		name    string
		command string
		want    []Segment
	}{
		{
			name:    "single_command",
			command: "ls /tmp",
			want:    []Segment{{"ls", "/tmp"}},
		},
		{
			name:    "pipeline",
			command: "cat /etc/hostname | wc -l",
			want:    []Segment{{"cat", "/etc/hostname"}, {"wc", "-l"}},
		},
		{
			name:    "and_chain",
			command: "mkdir build && cd build",
			want:    []Segment{{"mkdir", "build"}, {"cd", "build"}},
		},
		{
			name:    "or_chain",
			command: "test -f x || touch x",
			want:    []Segment{{"test", "-f", "x"}, {"touch", "x"}},
		},
		{
			name:    "semicolons",
			command: "echo a; echo b; echo c",
			want:    []Segment{{"echo", "a"}, {"echo", "b"}, {"echo", "c"}},
		},
		{
			name:    "newlines",
			command: "echo a\necho b",
			want:    []Segment{{"echo", "a"}, {"echo", "b"}},
		},
		{
			name:    "background",
			command: "sleep 5 & echo done",
			want:    []Segment{{"sleep", "5"}, {"echo", "done"}},
		},
		{
			name:    "leading_env_assignment",
			command: "FOO=bar cmd arg",
			want:    []Segment{{"FOO=bar", "cmd", "arg"}},
		},
		{
			name:    "subshell",
			command: "(cd /tmp && ls)",
			want:    []Segment{{"cd", "/tmp"}, {"ls"}},
		},
		{
			name:    "empty",
			command: "   ",
			want:    nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Split(tt.command)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Split(%q) = %v, want %v", tt.command, got, tt.want)
			}
		})
	}
}

func TestSplitQuoting(t *testing.T) {
	tests := []struct {
		name    string
		command string
		want    []Segment
	}{
		{
			name:    "double_quoted_argument",
			command: `bash -c "rm -rf /"`,
			want:    []Segment{{"bash", "-c", "rm -rf /"}},
		},
		{
			name:    "single_quoted_argument",
			command: `sh -c 'echo hi; echo bye'`,
			want:    []Segment{{"sh", "-c", "echo hi; echo bye"}},
		},
		{
			name:    "pipe_inside_quotes_is_not_a_split_point",
			command: `echo "a | b"`,
			want:    []Segment{{"echo", "a | b"}},
		},
		{
			name:    "escaped_semicolon",
			command: `find . -exec rm {} \;`,
			want:    []Segment{{"find", ".", "-exec", "rm", "{}", ";"}},
		},
		{
			name:    "variable_kept_literal",
			command: `rm -rf "$HOME"`,
			want:    []Segment{{"rm", "-rf", "$HOME"}},
		},
		{
			name:    "command_substitution_kept_literal",
			command: `echo $(whoami)`,
			want:    []Segment{{"echo", "$(whoami)"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Split(tt.command)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Split(%q) = %v, want %v", tt.command, got, tt.want)
			}
		})
	}
}

func TestSplitUnparsedFallback(t *testing.T) {
	// Unbalanced quotes cannot parse; the whole input must come back as a
	// single one-token segment, verbatim.
	command := `echo 'unterminated`
	got := Split(command)
	want := []Segment{{command}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Split(%q) = %v, want verbatim fallback %v", command, got, want)
	}
}

func TestSplitHeredocBody(t *testing.T) {
	command := "cat <<EOF\nrm -rf /\nEOF"
	got := Split(command)

	found := false
	for _, seg := range got {
		if len(seg) == 1 && seg[0] == "rm -rf /" {
			found = true
		}
	}
	if !found {
		t.Errorf("Split(%q) = %v, want heredoc body as opaque segment", command, got)
	}
}

func TestSplitControlFlowOpaque(t *testing.T) {
	command := "for f in a b; do echo $f; done"
	got := Split(command)
	if len(got) != 1 || len(got[0]) != 1 {
		t.Fatalf("Split(%q) = %v, want single opaque segment", command, got)
	}
	if got[0][0] == "" {
		t.Error("opaque segment is empty")
	}
}

func TestSegmentText(t *testing.T) {
	seg := Segment{"rm", "-rf", "/tmp/x"}
	if got := seg.Text(); got != "rm -rf /tmp/x" {
		t.Errorf("Text() = %q", got)
	}
}
