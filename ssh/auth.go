package ssh

import (
	"fmt"
	"os"
	"path/filepath"

	gossh "golang.org/x/crypto/ssh"
)

// keyCandidate is one private key file to consider for public key auth.
// required marks the user's explicit identity file, whose load failures
// are fatal instead of silently skipped.
type keyCandidate struct {
	path     string
	required bool
}

// defaultKeyPaths lists the standard private key files to try, strongest
// first. id_dsa is excluded (deprecated).
func defaultKeyPaths() []string {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil
	}
	sshDir := filepath.Join(home, ".ssh")
	return []string{
		filepath.Join(sshDir, "id_ed25519"),
		filepath.Join(sshDir, "id_ecdsa"),
		filepath.Join(sshDir, "id_rsa"),
	}
}

// buildAuthMethods assembles the public key auth chain: the target's
// explicit identity file first, then the default key paths. The same
// path is never loaded twice.
func buildAuthMethods(target Target) ([]gossh.AuthMethod, error) {
	return buildAuthMethodsWithDefaults(target, defaultKeyPaths())
}

func buildAuthMethodsWithDefaults(target Target, defaults []string) ([]gossh.AuthMethod, error) {
	var candidates []keyCandidate
	if target.IdentityFile != "" {
		candidates = append(candidates, keyCandidate{path: target.IdentityFile, required: true})
	}
	for _, path := range defaults {
		candidates = append(candidates, keyCandidate{path: path})
	}

	var methods []gossh.AuthMethod
	seen := make(map[string]struct{})

	for _, cand := range candidates {
		norm := normalizeKeyPath(cand.path)
		if _, dup := seen[norm]; dup {
			continue
		}
		seen[norm] = struct{}{}

		signer, err := loadSigner(cand.path)
		if err != nil {
			if cand.required {
				return nil, err
			}
			// Default paths that are absent, unreadable, or passphrase
			// protected are skipped.
			continue
		}
		methods = append(methods, gossh.PublicKeys(signer))
	}

	return methods, nil
}

func loadSigner(path string) (gossh.Signer, error) {
	key, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read identity file: %w", err)
	}
	signer, err := gossh.ParsePrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("parse identity key: %w", err)
	}
	return signer, nil
}

func normalizeKeyPath(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return filepath.Clean(path)
	}
	return abs
}
