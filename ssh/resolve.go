package ssh

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	sshconfig "github.com/kevinburke/ssh_config"
)

// hostDefaults are the values ~/.ssh/config provides for one alias.
type hostDefaults struct {
	HostName      string
	User          string
	Port          int
	IdentityFiles []string
}

type configResolver struct {
	config *sshconfig.Config
}

func newConfigResolver(path string) *configResolver {
	f, err := os.Open(path)
	if err != nil {
		return &configResolver{}
	}
	defer func() { _ = f.Close() }()

	cfg, err := sshconfig.Decode(f)
	if err != nil {
		return &configResolver{}
	}
	return &configResolver{config: cfg}
}

func userConfigResolver() *configResolver {
	home, err := os.UserHomeDir()
	if err != nil {
		return &configResolver{}
	}
	return newConfigResolver(filepath.Join(home, ".ssh", "config"))
}

func (r *configResolver) lookup(alias string) hostDefaults {
	if r.config == nil {
		return hostDefaults{}
	}

	var hd hostDefaults

	if hostName, err := r.config.Get(alias, "HostName"); err == nil && hostName != "" {
		hd.HostName = hostName
	}
	if user, err := r.config.Get(alias, "User"); err == nil && user != "" {
		hd.User = user
	}
	if portStr, err := r.config.Get(alias, "Port"); err == nil && portStr != "" {
		if p, err := strconv.Atoi(portStr); err == nil && p > 0 {
			hd.Port = p
		}
	}
	if identFiles, err := r.config.GetAll(alias, "IdentityFile"); err == nil {
		for _, f := range identFiles {
			hd.IdentityFiles = append(hd.IdentityFiles, expandTilde(f))
		}
	}

	return hd
}

// applyDefaults fills unset target fields from the resolved config.
// Explicit caller values always win, except HostName which replaces the
// alias the way ssh itself does.
func applyDefaults(target Target, r *configResolver) Target {
	hd := r.lookup(target.Host)

	if hd.HostName != "" {
		target.Host = hd.HostName
	}
	if target.User == "" && hd.User != "" {
		target.User = hd.User
	}
	if target.Port == 0 && hd.Port > 0 {
		target.Port = hd.Port
	}
	if target.IdentityFile == "" && len(hd.IdentityFiles) > 0 {
		target.IdentityFile = hd.IdentityFiles[0]
	}

	return target
}

func resolveFromUserConfig(target Target) Target {
	return applyDefaults(target, userConfigResolver())
}

func expandTilde(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[2:])
}
