// Package bashgate is an MCP server giving LLM agents shell access over
// SSH, with static safety analysis of every command before it runs.
package bashgate

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bashgate/bashgate/config"
	"github.com/bashgate/bashgate/policy"
	"github.com/bashgate/bashgate/server"
	"github.com/bashgate/bashgate/ssh"
)

type Config struct {
	// Policies is the deny-rule registry. If nil, the built-in packs are
	// loaded and merged with the user's policy_dir.
	Policies policy.Registry

	// Executor is the backend for running commands. If nil, a default SSH
	// executor (ssh.Manager with default dialer) is created.
	Executor server.Executor

	// Logger is the structured logger passed to Core. If nil, a discard
	// logger is used.
	Logger *slog.Logger

	// Name overrides the MCP server implementation name (default: "bashgate").
	Name string

	// Version overrides the MCP server implementation version (default: "0.1.0").
	Version string
}

// New builds a Core, loading policy packs and user config from cfg.
func New(cfg Config) (*server.Core, error) {
	userCfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load user config: %w", err)
	}

	policies := cfg.Policies
	if policies == nil {
		policies, err = policy.LoadEmbedded()
		if err != nil {
			return nil, fmt.Errorf("load embedded policy packs: %w", err)
		}
	}
	if userCfg.PolicyDir != nil {
		userPolicies, err := policy.LoadDir(*userCfg.PolicyDir)
		if err != nil {
			return nil, fmt.Errorf("load user policy packs from %s: %w", *userCfg.PolicyDir, err)
		}
		policies = policy.Merge(policies, userPolicies)
	}

	var sshOpts []ssh.Option
	if userCfg.SSH != nil {
		if userCfg.SSH.Retries != nil {
			sshOpts = append(sshOpts, ssh.WithRetries(*userCfg.SSH.Retries))
		}
		if userCfg.SSH.RetryBackoff != nil {
			sshOpts = append(sshOpts, ssh.WithRetryBackoff(userCfg.SSH.RetryBackoff.Duration()))
		}
		if userCfg.SSH.ConnectTimeout != nil {
			sshOpts = append(sshOpts, ssh.WithConnectTimeout(userCfg.SSH.ConnectTimeout.Duration()))
		}
		if userCfg.SSH.HostKeyChecking != nil {
			sshOpts = append(sshOpts, ssh.WithHostKeyChecking(ssh.HostKeyMode(*userCfg.SSH.HostKeyChecking)))
		}
		if userCfg.SSH.KnownHostsFile != nil {
			sshOpts = append(sshOpts, ssh.WithKnownHostsFile(*userCfg.SSH.KnownHostsFile))
		}
	}

	runner := cfg.Executor
	if runner == nil {
		runner = ssh.NewManager(nil, sshOpts...)
	}

	var coreOpts []server.CoreOption
	if userCfg.Timeout != nil {
		coreOpts = append(coreOpts, server.WithDefaultTimeout(*userCfg.Timeout))
	}
	if userCfg.MaxOutputBytes != nil {
		coreOpts = append(coreOpts, server.WithMaxOutputBytes(*userCfg.MaxOutputBytes))
	}
	coreOpts = append(coreOpts, server.WithAnalyzerSettings(analyzerSettings(userCfg.Analyzer)))

	return server.NewCore(runner, policies, cfg.Logger, coreOpts...), nil
}

func analyzerSettings(ac *config.AnalyzerConfig) server.AnalyzerSettings {
	settings := server.AnalyzerSettings{AllowTmpdirVar: true}
	if ac == nil {
		return settings
	}
	if ac.Strict != nil {
		settings.Strict = *ac.Strict
	}
	if ac.ParanoidRm != nil {
		settings.ParanoidRm = *ac.ParanoidRm
	}
	if ac.ParanoidInterpreters != nil {
		settings.ParanoidInterpreters = *ac.ParanoidInterpreters
	}
	if ac.AllowTmpdirVar != nil {
		settings.AllowTmpdirVar = *ac.AllowTmpdirVar
	}
	return settings
}

// RunStdio creates a server from cfg and runs it over stdin/stdout.
func RunStdio(ctx context.Context, cfg Config) error {
	core, err := New(cfg)
	if err != nil {
		return err
	}
	return server.RunStdio(ctx, core, cfg.Logger, server.ServerOptions{
		Name:    cfg.Name,
		Version: cfg.Version,
	})
}
