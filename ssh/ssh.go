// Package ssh manages remote connections, command execution, and SFTP
// transfers for bashgate.
package ssh

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/pkg/sftp"
	gossh "golang.org/x/crypto/ssh"
)

// ExecResult is the raw outcome of one remote command.
type ExecResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Runtime  time.Duration
}

// FileClient is the subset of SFTP operations bashgate uses.
type FileClient interface {
	Stat(path string) (os.FileInfo, error)
	Open(path string) (io.ReadCloser, error)
	Create(path string) (io.WriteCloser, error)
	MkdirAll(path string) error
	Chmod(path string, mode os.FileMode) error
	Close() error
}

// Client is one live connection to a remote host.
type Client interface {
	Execute(ctx context.Context, command string, timeout time.Duration) (ExecResult, error)
	FileSession() (FileClient, error)
	Close() error
}

// Dialer opens new connections. The default implementation uses
// golang.org/x/crypto/ssh; tests substitute fakes.
type Dialer interface {
	Dial(ctx context.Context, target Target) (Client, error)
}

// Target identifies a remote host. Host may be an ~/.ssh/config alias;
// unset fields are filled from that config and then from defaults.
type Target struct {
	Host         string
	User         string
	Port         int
	IdentityFile string
}

type connection struct {
	client Client
	target Target
	// workdir is the last cwd reported by the remote shell, used as the
	// analyzer's path anchor. Empty means unknown.
	workdir string
}

// Manager tracks connections keyed by the alias the caller connected
// with, and retries transient dial and execution failures.
type Manager struct {
	mu          sync.Mutex
	dialer      Dialer
	connections map[string]*connection
	retries     int
	backoff     time.Duration
	resolve     func(Target) Target
}

type Option func(*Manager)

func WithRetries(retries int) Option {
	return func(m *Manager) {
		if retries >= 0 {
			m.retries = retries
		}
	}
}

func WithRetryBackoff(backoff time.Duration) Option {
	return func(m *Manager) {
		if backoff > 0 {
			m.backoff = backoff
		}
	}
}

func WithConnectTimeout(timeout time.Duration) Option {
	return func(m *Manager) {
		if d, ok := m.dialer.(*CryptoDialer); ok {
			d.ConnectTimeout = timeout
		}
	}
}

func WithHostKeyChecking(mode HostKeyMode) Option {
	return func(m *Manager) {
		if d, ok := m.dialer.(*CryptoDialer); ok {
			d.HostKeyMode = mode
		}
	}
}

func WithKnownHostsFile(path string) Option {
	return func(m *Manager) {
		if d, ok := m.dialer.(*CryptoDialer); ok {
			d.KnownHostsFile = path
		}
	}
}

func NewManager(dialer Dialer, opts ...Option) *Manager {
	if dialer == nil {
		dialer = &CryptoDialer{}
	}
	m := &Manager{
		dialer:      dialer,
		connections: make(map[string]*connection),
		retries:     2,
		backoff:     250 * time.Millisecond,
		resolve:     resolveFromUserConfig,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) Connected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.connections) > 0
}

// Connect dials target, retrying transient failures with exponential
// backoff. The connection is stored under the alias the caller passed,
// not the resolved hostname.
func (m *Manager) Connect(ctx context.Context, target Target) error {
	if target.Host == "" {
		return errors.New("host is required")
	}
	alias := target.Host
	if m.resolve != nil {
		target = m.resolve(target)
	}
	target = withDefaults(target)

	var lastErr error
	for attempt := 0; attempt <= m.retries; attempt++ {
		client, err := m.dialer.Dial(ctx, target)
		if err == nil {
			m.mu.Lock()
			m.connections[alias] = &connection{client: client, target: target}
			m.mu.Unlock()
			return nil
		}
		lastErr = err

		if !isRetriable(err) || attempt == m.retries {
			break
		}
		if sleepErr := sleepWithContext(ctx, m.backoff*time.Duration(1<<attempt)); sleepErr != nil {
			return sleepErr
		}
	}

	return fmt.Errorf("connect %s:%d failed: %w", target.Host, target.Port, lastErr)
}

func (m *Manager) lookup(host string) (*connection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if host != "" {
		conn := m.connections[host]
		if conn == nil {
			return nil, fmt.Errorf("not connected to host %q", host)
		}
		return conn, nil
	}

	if len(m.connections) == 0 {
		return nil, errors.New("not connected")
	}
	if len(m.connections) > 1 {
		return nil, errors.New("host is required when multiple connections are active")
	}
	for _, conn := range m.connections {
		return conn, nil
	}
	return nil, errors.New("not connected")
}

// Execute runs command on host, retrying transient session failures.
// A nonzero exit status is a result, not an error.
func (m *Manager) Execute(ctx context.Context, host, command string, timeout time.Duration) (ExecResult, error) {
	conn, err := m.lookup(host)
	if err != nil {
		return ExecResult{}, err
	}

	var lastErr error
	for attempt := 0; attempt <= m.retries; attempt++ {
		res, err := conn.client.Execute(ctx, command, timeout)
		if err == nil {
			return res, nil
		}
		lastErr = err
		if !isRetriable(err) || attempt == m.retries {
			break
		}
		if sleepErr := sleepWithContext(ctx, m.backoff*time.Duration(1<<attempt)); sleepErr != nil {
			return ExecResult{}, sleepErr
		}
	}

	return ExecResult{}, fmt.Errorf("execute failed: %w", lastErr)
}

func (m *Manager) FileSession(host string) (FileClient, error) {
	conn, err := m.lookup(host)
	if err != nil {
		return nil, err
	}
	client, err := conn.client.FileSession()
	if err != nil {
		return nil, fmt.Errorf("sftp session failed: %w", err)
	}
	return client, nil
}

// Disconnect closes the named connection, or all connections when host
// is empty. Disconnecting an unknown host is a no-op.
func (m *Manager) Disconnect(host string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if host == "" {
		for h, conn := range m.connections {
			if conn != nil && conn.client != nil {
				_ = conn.client.Close()
			}
			delete(m.connections, h)
		}
		return nil
	}

	conn := m.connections[host]
	if conn == nil {
		return nil
	}
	if conn.client != nil {
		_ = conn.client.Close()
	}
	delete(m.connections, host)
	return nil
}

func withDefaults(target Target) Target {
	if target.User == "" {
		target.User = "root"
	}
	if target.Port == 0 {
		target.Port = 22
	}
	return target
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func isRetriable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var hostKeyErr *HostKeyError
	if errors.As(err, &hostKeyErr) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, sub := range []string{"connection reset", "broken pipe", "timeout", "temporarily unavailable", "eof"} {
		if strings.Contains(msg, sub) {
			return true
		}
	}
	return false
}

// CryptoDialer dials with golang.org/x/crypto/ssh.
type CryptoDialer struct {
	ConnectTimeout time.Duration
	HostKeyMode    HostKeyMode
	KnownHostsFile string
}

func (d *CryptoDialer) connectTimeout() time.Duration {
	if d.ConnectTimeout > 0 {
		return d.ConnectTimeout
	}
	return 10 * time.Second
}

func (d *CryptoDialer) hostKeyMode() HostKeyMode {
	if d.HostKeyMode != "" {
		return d.HostKeyMode
	}
	return HostKeyAcceptNew
}

func (d *CryptoDialer) Dial(ctx context.Context, target Target) (Client, error) {
	target = withDefaults(target)

	hostKeyCb, err := buildHostKeyCallback(d.hostKeyMode(), d.KnownHostsFile)
	if err != nil {
		return nil, fmt.Errorf("host key verification setup: %w", err)
	}

	authMethods, err := buildAuthMethods(target)
	if err != nil {
		return nil, err
	}

	cfg := &gossh.ClientConfig{
		User:            target.User,
		Auth:            authMethods,
		HostKeyCallback: hostKeyCb,
		Timeout:         d.connectTimeout(),
	}

	addr := fmt.Sprintf("%s:%d", target.Host, target.Port)
	var netDialer net.Dialer
	conn, err := netDialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}

	c, chans, reqs, err := gossh.NewClientConn(conn, addr, cfg)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}

	return &cryptoClient{client: gossh.NewClient(c, chans, reqs)}, nil
}

type cryptoClient struct {
	client *gossh.Client
}

func (c *cryptoClient) Execute(ctx context.Context, command string, timeout time.Duration) (ExecResult, error) {
	session, err := c.client.NewSession()
	if err != nil {
		return ExecResult{}, err
	}
	defer func() { _ = session.Close() }()

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	execCtx := ctx
	cancel := func() {}
	if timeout > 0 {
		execCtx, cancel = context.WithTimeout(ctx, timeout)
	}
	defer cancel()

	started := time.Now()
	done := make(chan error, 1)
	go func() {
		done <- session.Run(command)
	}()

	select {
	case <-execCtx.Done():
		_ = session.Close()
		return ExecResult{}, execCtx.Err()
	case err := <-done:
		runtime := time.Since(started)
		if err == nil {
			return ExecResult{Stdout: stdout.String(), Stderr: stderr.String(), ExitCode: 0, Runtime: runtime}, nil
		}
		var exitErr *gossh.ExitError
		if errors.As(err, &exitErr) {
			return ExecResult{Stdout: stdout.String(), Stderr: stderr.String(), ExitCode: exitErr.ExitStatus(), Runtime: runtime}, nil
		}
		return ExecResult{}, err
	}
}

func (c *cryptoClient) FileSession() (FileClient, error) {
	client, err := sftp.NewClient(c.client)
	if err != nil {
		return nil, err
	}
	return &sftpAdapter{client: client}, nil
}

func (c *cryptoClient) Close() error {
	return c.client.Close()
}

type sftpAdapter struct {
	client *sftp.Client
}

func (a *sftpAdapter) Stat(path string) (os.FileInfo, error) {
	return a.client.Stat(path)
}

func (a *sftpAdapter) Open(path string) (io.ReadCloser, error) {
	return a.client.Open(path)
}

func (a *sftpAdapter) Create(path string) (io.WriteCloser, error) {
	return a.client.Create(path)
}

func (a *sftpAdapter) MkdirAll(path string) error {
	return a.client.MkdirAll(path)
}

func (a *sftpAdapter) Chmod(path string, mode os.FileMode) error {
	return a.client.Chmod(path, mode)
}

func (a *sftpAdapter) Close() error {
	return a.client.Close()
}
