package ssh

import (
	"context"
	"testing"
	"time"
)

func TestShellQuote(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", "''"},
		{"simple", "simple"},
		{"/usr/local/bin", "/usr/local/bin"},
		{"with space", "'with space'"},
		{"semi;colon", "'semi;colon'"},
		{"dollar$var", "'dollar$var'"},
		{"it's", `'it'"'"'s'`},
		{"a&&b", "'a&&b'"},
	}
	for _, tt := range tests {
		if got := ShellQuote(tt.in); got != tt.want {
			t.Errorf("ShellQuote(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestWrapWithWorkdir(t *testing.T) {
	tests := []struct {
		command string
		dir     string
		want    string
	}{
		{"ls -la", "", "ls -la"},
		{"ls -la", "/srv/app", "cd /srv/app && ls -la"},
		{"ls", "/path with space", "cd '/path with space' && ls"},
		{"ls", "~", "cd ~ && ls"},
		{"ls", "~/projects", "cd ~/projects && ls"},
		{"ls", "~/my project", "cd ~/'my project' && ls"},
	}
	for _, tt := range tests {
		if got := WrapWithWorkdir(tt.command, tt.dir); got != tt.want {
			t.Errorf("WrapWithWorkdir(%q, %q) = %q, want %q", tt.command, tt.dir, got, tt.want)
		}
	}
}

func TestResolveWorkdir(t *testing.T) {
	var lastProbe string
	client := &fakeClient{
		execFn: func(_ context.Context, command string, _ time.Duration) (ExecResult, error) {
			lastProbe = command
			switch command {
			case "pwd":
				return ExecResult{Stdout: "/home/deploy\n"}, nil
			case "cd /srv/app && pwd":
				return ExecResult{Stdout: "/srv/app\n"}, nil
			case "cd ~/proj && pwd":
				return ExecResult{Stdout: "/home/deploy/proj\n"}, nil
			case "cd /missing && pwd":
				return ExecResult{Stderr: "cd: /missing: No such file or directory\n", ExitCode: 1}, nil
			}
			return ExecResult{ExitCode: 1}, nil
		},
	}
	m := newTestManager(&fakeDialer{client: client})
	if err := m.Connect(context.Background(), Target{Host: "web1"}); err != nil {
		t.Fatal(err)
	}

	got, err := m.ResolveWorkdir(context.Background(), "web1", "", time.Second)
	if err != nil {
		t.Fatalf("ResolveWorkdir: %v", err)
	}
	if got != "/home/deploy" {
		t.Errorf("resolved = %q", got)
	}
	if m.Workdir("web1") != "/home/deploy" {
		t.Error("workdir not cached")
	}

	// A second empty request must hit the cache, not the remote.
	lastProbe = ""
	if _, err := m.ResolveWorkdir(context.Background(), "web1", "", time.Second); err != nil {
		t.Fatal(err)
	}
	if lastProbe != "" {
		t.Errorf("cached resolution still probed the remote: %q", lastProbe)
	}

	got, err = m.ResolveWorkdir(context.Background(), "web1", "/srv/app", time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if got != "/srv/app" {
		t.Errorf("resolved = %q", got)
	}

	got, err = m.ResolveWorkdir(context.Background(), "web1", "~/proj", time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if got != "/home/deploy/proj" {
		t.Errorf("tilde request resolved = %q", got)
	}

	if _, err := m.ResolveWorkdir(context.Background(), "web1", "/missing", time.Second); err == nil {
		t.Error("nonexistent directory must error")
	}
}

func TestResolveWorkdirRejectsGarbage(t *testing.T) {
	client := &fakeClient{
		execFn: func(_ context.Context, _ string, _ time.Duration) (ExecResult, error) {
			return ExecResult{Stdout: "not-a-path\n"}, nil
		},
	}
	m := newTestManager(&fakeDialer{client: client})
	if err := m.Connect(context.Background(), Target{Host: "h"}); err != nil {
		t.Fatal(err)
	}
	if _, err := m.ResolveWorkdir(context.Background(), "h", "", time.Second); err == nil {
		t.Error("non-absolute pwd output must error")
	}
}

func TestResolveWorkdirUnknownHost(t *testing.T) {
	m := newTestManager(&fakeDialer{})
	if _, err := m.ResolveWorkdir(context.Background(), "nope", "", time.Second); err == nil {
		t.Error("unknown host must error")
	}
}
