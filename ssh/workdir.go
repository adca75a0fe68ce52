package ssh

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// ShellQuote single-quotes token unless it is already safe to pass
// through verbatim.
func ShellQuote(token string) string {
	if token == "" {
		return "''"
	}
	if isSafeShellToken(token) {
		return token
	}
	return "'" + strings.ReplaceAll(token, "'", "'\"'\"'") + "'"
}

func isSafeShellToken(token string) bool {
	for _, r := range token {
		if (r >= 'a' && r <= 'z') ||
			(r >= 'A' && r <= 'Z') ||
			(r >= '0' && r <= '9') ||
			r == '_' || r == '@' || r == '%' || r == '+' || r == '=' || r == ':' ||
			r == ',' || r == '.' || r == '/' || r == '-' {
			continue
		}
		return false
	}
	return true
}

// quoteWorkdir quotes dir for the remote shell while leaving a leading
// tilde unquoted so the remote shell still expands it.
func quoteWorkdir(dir string) string {
	if dir == "~" {
		return "~"
	}
	if strings.HasPrefix(dir, "~/") {
		return "~/" + ShellQuote(dir[2:])
	}
	return ShellQuote(dir)
}

// WrapWithWorkdir prefixes command so it runs inside dir. An empty dir
// returns command unchanged.
func WrapWithWorkdir(command, dir string) string {
	if dir == "" {
		return command
	}
	return fmt.Sprintf("cd %s && %s", quoteWorkdir(dir), command)
}

// Workdir returns the cached working directory for host, or "" when
// unknown.
func (m *Manager) Workdir(host string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if host == "" && len(m.connections) == 1 {
		for _, conn := range m.connections {
			return conn.workdir
		}
	}
	if conn := m.connections[host]; conn != nil {
		return conn.workdir
	}
	return ""
}

// ResolveWorkdir turns a requested working directory into the absolute
// path the remote shell would land in, by running `cd dir && pwd`
// remotely. An empty request resolves the remote home directory. The
// result is cached on the connection so later calls with the same
// request skip the round trip.
func (m *Manager) ResolveWorkdir(ctx context.Context, host, requested string, timeout time.Duration) (string, error) {
	conn, err := m.lookup(host)
	if err != nil {
		return "", err
	}

	m.mu.Lock()
	cached := conn.workdir
	m.mu.Unlock()
	if requested == "" && cached != "" {
		return cached, nil
	}
	if requested != "" && requested == cached {
		return cached, nil
	}

	probe := "pwd"
	if requested != "" {
		probe = fmt.Sprintf("cd %s && pwd", quoteWorkdir(requested))
	}

	res, err := conn.client.Execute(ctx, probe, timeout)
	if err != nil {
		return "", fmt.Errorf("resolve workdir: %w", err)
	}
	if res.ExitCode != 0 {
		return "", fmt.Errorf("resolve workdir %q: %s", requested, strings.TrimSpace(res.Stderr))
	}

	resolved := strings.TrimSpace(res.Stdout)
	if !strings.HasPrefix(resolved, "/") {
		return "", fmt.Errorf("resolve workdir %q: unexpected pwd output %q", requested, resolved)
	}

	m.mu.Lock()
	conn.workdir = resolved
	m.mu.Unlock()
	return resolved, nil
}
