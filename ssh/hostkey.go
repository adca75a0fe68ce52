package ssh

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"

	gossh "golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// HostKeyMode controls how SSH host keys are verified.
type HostKeyMode string

const (
	// HostKeyAcceptNew trusts unknown hosts on first connect, records
	// their key in known_hosts, and rejects key changes.
	HostKeyAcceptNew HostKeyMode = "accept-new"

	// HostKeyStrict requires the host key to already exist in known_hosts.
	HostKeyStrict HostKeyMode = "strict"

	// HostKeyOff disables host key verification entirely.
	HostKeyOff HostKeyMode = "off"
)

// ValidHostKeyMode reports whether mode is a recognized verification mode.
func ValidHostKeyMode(mode string) bool {
	switch HostKeyMode(mode) {
	case HostKeyAcceptNew, HostKeyStrict, HostKeyOff:
		return true
	}
	return false
}

// HostKeyError reports a host key verification failure. It is never
// retried.
type HostKeyError struct {
	Message string
}

func (e *HostKeyError) Error() string {
	return e.Message
}

func buildHostKeyCallback(mode HostKeyMode, knownHostsFile string) (gossh.HostKeyCallback, error) {
	if mode == HostKeyOff {
		return gossh.InsecureIgnoreHostKey(), nil
	}

	store, err := openKnownHosts(knownHostsFile)
	if err != nil {
		return nil, err
	}

	switch mode {
	case HostKeyStrict:
		return store.strictCallback()
	case HostKeyAcceptNew:
		return store.acceptNew, nil
	default:
		return nil, fmt.Errorf("unknown host key mode %q", mode)
	}
}

// knownHostsStore reads and appends OpenSSH known_hosts entries for the
// non-off verification modes.
type knownHostsStore struct {
	path string
	mu   sync.Mutex
}

func openKnownHosts(path string) (*knownHostsStore, error) {
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolving home directory for known_hosts: %w", err)
		}
		path = filepath.Join(home, ".ssh", "known_hosts")
	}
	return &knownHostsStore{path: path}, nil
}

// strictCallback only verifies against existing entries; a missing file
// means no host can ever be verified, so it fails up front.
func (s *knownHostsStore) strictCallback() (gossh.HostKeyCallback, error) {
	if _, err := os.Stat(s.path); err != nil {
		return nil, fmt.Errorf("strict host key checking needs an existing known_hosts file: %w", err)
	}
	cb, err := knownhosts.New(s.path)
	if err != nil {
		return nil, fmt.Errorf("loading known_hosts: %w", err)
	}
	return cb, nil
}

// acceptNew implements gossh.HostKeyCallback. First contact with a host
// records its key; a key that differs from the recorded one is rejected
// with a HostKeyError.
func (s *knownHostsStore) acceptNew(hostname string, remote net.Addr, key gossh.PublicKey) error {
	err := s.lookup(hostname, remote, key)
	if err == nil {
		return nil
	}

	var keyErr *knownhosts.KeyError
	if !errors.As(err, &keyErr) {
		return fmt.Errorf("host key verification: %w", err)
	}
	if len(keyErr.Want) > 0 {
		return &HostKeyError{Message: fmt.Sprintf(
			"HOST KEY VERIFICATION FAILED for %s: the host key has changed since the last connection; this could indicate a man-in-the-middle attack; if the key change is expected, remove the old entry from %s",
			hostname, s.path,
		)}
	}
	return s.record(hostname, key)
}

// lookup checks key against the store. A missing file reports the host
// as unknown rather than erroring, so first contact can record it.
func (s *knownHostsStore) lookup(hostname string, remote net.Addr, key gossh.PublicKey) error {
	if _, err := os.Stat(s.path); err != nil {
		return &knownhosts.KeyError{}
	}
	check, err := knownhosts.New(s.path)
	if err != nil {
		return fmt.Errorf("loading known_hosts: %w", err)
	}
	return check(hostname, remote, key)
}

func (s *knownHostsStore) record(hostname string, key gossh.PublicKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("creating known_hosts directory: %w", err)
	}
	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("opening known_hosts: %w", err)
	}

	entry := knownhosts.Line([]string{knownhosts.Normalize(hostname)}, key)
	if _, err := fmt.Fprintln(f, entry); err != nil {
		f.Close()
		return fmt.Errorf("writing known_hosts entry: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing known_hosts: %w", err)
	}
	return nil
}
