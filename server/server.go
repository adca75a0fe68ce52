// Package server wires the safety analyzer, policy packs, and SSH
// execution together and registers the MCP tools.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/bashgate/bashgate/analyzer"
	"github.com/bashgate/bashgate/output"
	"github.com/bashgate/bashgate/policy"
	"github.com/bashgate/bashgate/ssh"
)

const (
	maxDownloadBytes   = 50 * 1024 * 1024
	defaultDownloadDir = "/tmp/bashgate-downloads"
)

// BlockedError is returned when the analyzer or a policy pack rejects a
// command before execution.
type BlockedError struct {
	Reason  string
	Segment string
}

func (e *BlockedError) Error() string {
	if e.Segment != "" {
		return fmt.Sprintf("command blocked: %s (segment: %s)", e.Reason, e.Segment)
	}
	return "command blocked: " + e.Reason
}

// Executor runs commands on remote targets.
type Executor interface {
	Connect(ctx context.Context, target ssh.Target) error
	Execute(ctx context.Context, host, command string, timeout time.Duration) (ssh.ExecResult, error)
	ResolveWorkdir(ctx context.Context, host, requested string, timeout time.Duration) (string, error)
	FileSession(host string) (ssh.FileClient, error)
	Disconnect(host string) error
}

// AnalyzerSettings are the policy toggles forwarded to each analysis.
type AnalyzerSettings struct {
	Strict               bool
	ParanoidRm           bool
	ParanoidInterpreters bool
	AllowTmpdirVar       bool
}

type Core struct {
	Runner   Executor
	Policies policy.Registry
	Settings AnalyzerSettings

	Analyze func(string, ...analyzer.Option) *analyzer.Finding

	DefaultTimeout   int
	MaxOutputBytes   int
	MaxDownloadBytes int
	DownloadDir      string
	MaxSleepSeconds  int

	logger         *slog.Logger
	mu             sync.RWMutex
	connectedHosts map[string]struct{}
}

type ConnectInput struct {
	Host         string `json:"host" jsonschema:"Hostname or IP address"`
	User         string `json:"user,omitempty" jsonschema:"SSH username (default root)"`
	Port         int    `json:"port,omitempty" jsonschema:"SSH port (default 22)"`
	IdentityFile string `json:"identity_file,omitempty" jsonschema:"Path to SSH identity file"`
}

type ExecuteInput struct {
	Command string `json:"command" jsonschema:"Shell command to execute"`
	Workdir string `json:"workdir,omitempty" jsonschema:"Working directory for the command (default: remote home)"`
	Host    string `json:"host,omitempty" jsonschema:"Hostname when multiple connections exist"`
}

type DisconnectInput struct {
	Host string `json:"host,omitempty" jsonschema:"Hostname to disconnect; empty disconnects all"`
}

type SleepInput struct {
	Seconds float64 `json:"seconds" jsonschema:"Duration to sleep in seconds"`
}

type DownloadInput struct {
	RemotePath string `json:"remote_path" jsonschema:"Absolute path to file on remote server"`
	LocalDir   string `json:"local_dir,omitempty" jsonschema:"Local directory to save to (default: /tmp/bashgate-downloads/)"`
	Host       string `json:"host,omitempty" jsonschema:"Hostname when multiple connections exist"`
}

type DownloadResult struct {
	LocalPath string `json:"local_path"`
	SizeBytes int64  `json:"size_bytes"`
	Filename  string `json:"filename"`
}

type CoreOption func(*Core)

func WithDefaultTimeout(seconds int) CoreOption {
	return func(c *Core) { c.DefaultTimeout = seconds }
}

func WithMaxOutputBytes(bytes int) CoreOption {
	return func(c *Core) { c.MaxOutputBytes = bytes }
}

func WithMaxDownloadBytes(bytes int) CoreOption {
	return func(c *Core) { c.MaxDownloadBytes = bytes }
}

func WithDownloadDir(dir string) CoreOption {
	return func(c *Core) { c.DownloadDir = dir }
}

func WithMaxSleepSeconds(seconds int) CoreOption {
	return func(c *Core) { c.MaxSleepSeconds = seconds }
}

func WithAnalyzerSettings(settings AnalyzerSettings) CoreOption {
	return func(c *Core) { c.Settings = settings }
}

func NewCore(runner Executor, policies policy.Registry, logger *slog.Logger, opts ...CoreOption) *Core {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	c := &Core{
		Runner:           runner,
		Policies:         policies,
		Settings:         AnalyzerSettings{AllowTmpdirVar: true},
		Analyze:          analyzer.Analyze,
		DefaultTimeout:   30,
		MaxOutputBytes:   output.DefaultMaxBytes,
		MaxDownloadBytes: maxDownloadBytes,
		DownloadDir:      defaultDownloadDir,
		MaxSleepSeconds:  15,
		logger:           logger,
		connectedHosts:   make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Core) analyzerOptions(cwd string) []analyzer.Option {
	opts := []analyzer.Option{
		analyzer.WithTmpdirVar(c.Settings.AllowTmpdirVar),
	}
	if cwd != "" {
		opts = append(opts, analyzer.WithCwd(cwd))
	}
	if c.Settings.Strict {
		opts = append(opts, analyzer.WithStrict())
	}
	if c.Settings.ParanoidRm {
		opts = append(opts, analyzer.WithParanoidRm())
	}
	if c.Settings.ParanoidInterpreters {
		opts = append(opts, analyzer.WithParanoidInterpreters())
	}
	return opts
}

func (c *Core) Connect(ctx context.Context, in ConnectInput) (map[string]any, error) {
	if strings.TrimSpace(in.Host) == "" {
		return nil, errors.New("host is required")
	}

	start := time.Now()

	target := ssh.Target{
		Host:         in.Host,
		User:         in.User,
		Port:         in.Port,
		IdentityFile: in.IdentityFile,
	}
	if err := c.Runner.Connect(ctx, target); err != nil {
		c.logger.InfoContext(ctx, "connect",
			"host", in.Host,
			"outcome", "error",
			"error", err.Error(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return nil, err
	}
	c.setConnected(in.Host, true)

	c.logger.InfoContext(ctx, "connect",
		"host", in.Host,
		"outcome", "success",
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return map[string]any{"ok": true, "host": in.Host, "message": "Connected to " + in.Host}, nil
}

// Execute gates a command through the analyzer and policy packs, then
// runs it on the remote host inside the resolved working directory.
func (c *Core) Execute(ctx context.Context, in ExecuteInput) (output.Result, error) {
	if strings.TrimSpace(in.Command) == "" {
		return output.Result{}, errors.New("command is required")
	}

	start := time.Now()
	timeout := time.Duration(c.DefaultTimeout) * time.Second

	workdir, err := c.Runner.ResolveWorkdir(ctx, in.Host, in.Workdir, 10*time.Second)
	if err != nil {
		// An unresolved workdir is not fatal: the analyzer runs with an
		// unknown cwd, which only makes it stricter.
		c.logger.InfoContext(ctx, "execute",
			"command", in.Command,
			"host", in.Host,
			"stage", "workdir",
			"detail", err.Error(),
		)
		workdir = ""
	}

	if finding := c.Analyze(in.Command, c.analyzerOptions(workdir)...); finding != nil {
		c.logger.InfoContext(ctx, "execute",
			"command", in.Command,
			"host", in.Host,
			"outcome", "rejected",
			"stage", "analyze",
			"reason", finding.Reason,
			"segment", finding.Segment,
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return output.Result{}, &BlockedError{Reason: finding.Reason, Segment: finding.Segment}
	}

	if match := c.Policies.Scan(in.Command); match != nil {
		c.logger.InfoContext(ctx, "execute",
			"command", in.Command,
			"host", in.Host,
			"outcome", "rejected",
			"stage", "policy",
			"pack", match.Pack,
			"rule", match.Rule,
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return output.Result{}, &BlockedError{Reason: match.Reason}
	}

	wrapped := ssh.WrapWithWorkdir(in.Command, workdir)
	execRes, err := c.Runner.Execute(ctx, in.Host, wrapped, timeout)
	if err != nil {
		c.logger.InfoContext(ctx, "execute",
			"command", in.Command,
			"host", in.Host,
			"outcome", "error",
			"stage", "run",
			"error", err.Error(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return output.Result{}, err
	}

	c.logger.InfoContext(ctx, "execute",
		"command", in.Command,
		"host", in.Host,
		"outcome", "success",
		"exit_code", execRes.ExitCode,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return output.Truncate(execRes.Stdout, execRes.Stderr, execRes.ExitCode, execRes.Runtime, c.MaxOutputBytes), nil
}

func (c *Core) Disconnect(in DisconnectInput) (map[string]any, error) {
	if err := c.Runner.Disconnect(in.Host); err != nil {
		c.logger.Info("disconnect",
			"host", in.Host,
			"outcome", "error",
			"error", err.Error(),
		)
		return nil, err
	}
	c.setConnected(in.Host, false)

	c.logger.Info("disconnect",
		"host", in.Host,
		"outcome", "success",
	)

	return map[string]any{"ok": true}, nil
}

func (c *Core) Sleep(ctx context.Context, in SleepInput) (map[string]any, error) {
	if in.Seconds <= 0 {
		return nil, errors.New("seconds must be greater than 0")
	}
	if in.Seconds > float64(c.MaxSleepSeconds) {
		return nil, fmt.Errorf("seconds must not exceed %d", c.MaxSleepSeconds)
	}
	d := time.Duration(in.Seconds * float64(time.Second))
	select {
	case <-time.After(d):
		return map[string]any{"ok": true, "slept_seconds": in.Seconds}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *Core) DownloadFile(ctx context.Context, in DownloadInput) (DownloadResult, error) {
	if strings.TrimSpace(in.RemotePath) == "" {
		return DownloadResult{}, errors.New("remote_path is required")
	}

	start := time.Now()

	fileClient, err := c.Runner.FileSession(in.Host)
	if err != nil {
		c.logger.InfoContext(ctx, "download",
			"remote_path", in.RemotePath,
			"host", in.Host,
			"outcome", "error",
			"error", err.Error(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return DownloadResult{}, err
	}
	defer func() { _ = fileClient.Close() }()

	info, err := fileClient.Stat(in.RemotePath)
	if err != nil {
		return DownloadResult{}, fmt.Errorf("stat remote file %s: %w", in.RemotePath, err)
	}
	if info.IsDir() {
		return DownloadResult{}, fmt.Errorf("remote path is a directory: %s", in.RemotePath)
	}
	if info.Size() > int64(c.MaxDownloadBytes) {
		return DownloadResult{}, fmt.Errorf("file too large: %d bytes exceeds %d byte limit", info.Size(), c.MaxDownloadBytes)
	}

	localDir := strings.TrimSpace(in.LocalDir)
	if localDir == "" {
		localDir = c.DownloadDir
	}
	if err := os.MkdirAll(localDir, 0o755); err != nil {
		return DownloadResult{}, fmt.Errorf("create local directory %s: %w", localDir, err)
	}

	filename := filepath.Base(in.RemotePath)
	if filename == "." || filename == string(filepath.Separator) || filename == "" {
		return DownloadResult{}, fmt.Errorf("invalid remote filename: %s", in.RemotePath)
	}
	localPath, err := collisionSafePath(localDir, filename)
	if err != nil {
		return DownloadResult{}, err
	}

	src, err := fileClient.Open(in.RemotePath)
	if err != nil {
		return DownloadResult{}, fmt.Errorf("open remote file %s: %w", in.RemotePath, err)
	}
	defer func() { _ = src.Close() }()

	dst, err := os.Create(localPath)
	if err != nil {
		return DownloadResult{}, fmt.Errorf("create local file %s: %w", localPath, err)
	}

	copied, copyErr := io.Copy(dst, src)
	closeErr := dst.Close()
	if copyErr != nil {
		_ = os.Remove(localPath)
		return DownloadResult{}, fmt.Errorf("copy remote file %s to %s: %w", in.RemotePath, localPath, copyErr)
	}
	if closeErr != nil {
		_ = os.Remove(localPath)
		return DownloadResult{}, fmt.Errorf("close local file %s: %w", localPath, closeErr)
	}

	c.logger.InfoContext(ctx, "download",
		"remote_path", in.RemotePath,
		"host", in.Host,
		"outcome", "success",
		"size_bytes", copied,
		"local_path", localPath,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return DownloadResult{
		LocalPath: localPath,
		SizeBytes: copied,
		Filename:  filepath.Base(localPath),
	}, nil
}

func (c *Core) setConnected(host string, connected bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if connected {
		c.connectedHosts[host] = struct{}{}
		return
	}
	if host == "" {
		clear(c.connectedHosts)
		return
	}
	delete(c.connectedHosts, host)
}

func collisionSafePath(dir, filename string) (string, error) {
	base := strings.TrimSuffix(filename, filepath.Ext(filename))
	ext := filepath.Ext(filename)
	candidate := filepath.Join(dir, filename)

	if _, err := os.Stat(candidate); errors.Is(err, os.ErrNotExist) {
		return candidate, nil
	} else if err != nil {
		return "", fmt.Errorf("stat local path %s: %w", candidate, err)
	}

	for i := 1; ; i++ {
		candidate = filepath.Join(dir, fmt.Sprintf("%s_%d%s", base, i, ext))
		if _, err := os.Stat(candidate); errors.Is(err, os.ErrNotExist) {
			return candidate, nil
		} else if err != nil {
			return "", fmt.Errorf("stat local path %s: %w", candidate, err)
		}
	}
}

type ServerOptions struct {
	// Name is the MCP server implementation name. Default: "bashgate".
	Name string
	// Version is the MCP server implementation version. Default: "0.1.0".
	Version string
}

func NewMCPServer(core *Core, logger *slog.Logger, opts ...ServerOptions) *mcp.Server {
	name := "bashgate"
	version := "0.1.0"
	if len(opts) > 0 {
		if opts[0].Name != "" {
			name = opts[0].Name
		}
		if opts[0].Version != "" {
			version = opts[0].Version
		}
	}
	srv := mcp.NewServer(&mcp.Implementation{Name: name, Version: version}, &mcp.ServerOptions{Logger: logger})

	mcp.AddTool(srv, &mcp.Tool{Name: "connect", Description: "Connect to a remote server via SSH"},
		func(ctx context.Context, _ *mcp.CallToolRequest, in ConnectInput) (*mcp.CallToolResult, map[string]any, error) {
			out, err := core.Connect(ctx, in)
			return nil, out, err
		})

	mcp.AddTool(srv, &mcp.Tool{
		Name: "execute",
		Description: fmt.Sprintf("Execute a bash command on the connected remote server. "+
			"Commands are statically analyzed before execution; destructive operations "+
			"(recursive-force rm outside the working directory, git history rewrites, "+
			"find -delete, credential directory access) are blocked with an explanation. "+
			"Blocked commands return the reason so you can rephrase or narrow them. "+
			"Output is truncated to %d bytes (head/tail preserved) for large results.", core.MaxOutputBytes),
	}, func(ctx context.Context, _ *mcp.CallToolRequest, in ExecuteInput) (*mcp.CallToolResult, output.Result, error) {
		out, err := core.Execute(ctx, in)
		return nil, out, err
	})

	mcp.AddTool(srv, &mcp.Tool{Name: "disconnect", Description: "Disconnect from remote server(s)"},
		func(_ context.Context, _ *mcp.CallToolRequest, in DisconnectInput) (*mcp.CallToolResult, map[string]any, error) {
			out, err := core.Disconnect(in)
			return nil, out, err
		})

	mcp.AddTool(srv, &mcp.Tool{Name: "sleep", Description: fmt.Sprintf("Sleep locally for a specified duration (max %d seconds). Use to wait between checks, e.g. after observing an issue and before re-checking.", core.MaxSleepSeconds)},
		func(ctx context.Context, _ *mcp.CallToolRequest, in SleepInput) (*mcp.CallToolResult, map[string]any, error) {
			out, err := core.Sleep(ctx, in)
			return nil, out, err
		})

	mcp.AddTool(srv, &mcp.Tool{
		Name: "download_file",
		Description: fmt.Sprintf("Download a file from the remote server to the local filesystem via SFTP. "+
			"Returns the local path so you can process the file with local tools. "+
			"Maximum file size: %d bytes. Files are saved to %s by default. "+
			"This is a WRITE operation on the local machine: ask the operator for approval before calling this tool.",
			core.MaxDownloadBytes, core.DownloadDir),
		Annotations: &mcp.ToolAnnotations{
			ReadOnlyHint: false,
		},
	}, func(ctx context.Context, _ *mcp.CallToolRequest, in DownloadInput) (*mcp.CallToolResult, DownloadResult, error) {
		out, err := core.DownloadFile(ctx, in)
		return nil, out, err
	})

	return srv
}

func RunStdio(ctx context.Context, core *Core, logger *slog.Logger, opts ...ServerOptions) error {
	server := NewMCPServer(core, logger, opts...)
	if err := server.Run(ctx, &mcp.StdioTransport{}); err != nil {
		return fmt.Errorf("run mcp stdio server: %w", err)
	}
	return nil
}

// NewHTTPHandler returns an http.Handler serving MCP over SSE.
func NewHTTPHandler(core *Core, logger *slog.Logger, opts ...ServerOptions) http.Handler {
	srv := NewMCPServer(core, logger, opts...)
	return mcp.NewSSEHandler(func(_ *http.Request) *mcp.Server {
		return srv
	}, nil)
}
