// Package policy loads and merges YAML packs of site-local deny patterns.
// Packs supplement the static analyzer: each rule is a regular expression
// matched against the full command text after the analyzer has allowed it.
package policy

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed packs/*.yaml
var packsFS embed.FS

type PolicyError struct {
	Message string
}

func (e *PolicyError) Error() string {
	return e.Message
}

// Rule is one deny pattern. Pattern is an RE2 regular expression;
// CaseSensitive defaults to false.
type Rule struct {
	Name          string `yaml:"name"`
	Pattern       string `yaml:"pattern"`
	Reason        string `yaml:"reason"`
	CaseSensitive bool   `yaml:"case_sensitive"`

	re *regexp.Regexp
}

// Pack is a named collection of rules loaded from one YAML file.
type Pack struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Rules       []Rule `yaml:"rules"`
}

// Match is a rule hit: the pack and rule that fired plus its reason.
type Match struct {
	Pack   string
	Rule   string
	Reason string
}

// Registry maps pack name to pack.
type Registry map[string]*Pack

// Scan returns the first rule matching command, or nil. Packs are
// scanned in name order so the reported match is stable across runs.
func (r Registry) Scan(command string) *Match {
	names := make([]string, 0, len(r))
	for name := range r {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		pack := r[name]
		for i := range pack.Rules {
			rule := &pack.Rules[i]
			if rule.re == nil {
				continue
			}
			if rule.re.MatchString(command) {
				reason := rule.Reason
				if reason == "" {
					reason = fmt.Sprintf("command matches deny rule %q", rule.Name)
				}
				return &Match{Pack: pack.Name, Rule: rule.Name, Reason: reason}
			}
		}
	}
	return nil
}

// LoadEmbedded loads the built-in packs.
func LoadEmbedded() (Registry, error) {
	return loadFromFS(packsFS, "packs")
}

// LoadDir loads packs from dir (recursive). Skips _-prefixed and non-YAML
// files.
func LoadDir(dir string) (Registry, error) {
	registry, err := loadFromFS(os.DirFS(dir), ".")
	if err != nil {
		return nil, fmt.Errorf("walk policy directory %s: %w", dir, err)
	}
	return registry, nil
}

// Merge combines base and overlay; overlay wins on conflict. Does not
// mutate inputs.
func Merge(base, overlay Registry) Registry {
	merged := make(Registry, len(base)+len(overlay))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range overlay {
		merged[k] = v
	}
	return merged
}

func loadFromFS(fsys fs.FS, root string) (Registry, error) {
	registry := make(Registry)

	err := fs.WalkDir(fsys, root, func(filePath string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if path.Ext(filePath) != ".yaml" {
			return nil
		}
		if strings.HasPrefix(path.Base(filePath), "_") {
			return nil
		}

		b, readErr := fs.ReadFile(fsys, filePath)
		if readErr != nil {
			return fmt.Errorf("read policy pack %s: %w", filePath, readErr)
		}

		pack, parseErr := parsePack(b, filePath)
		if parseErr != nil {
			return parseErr
		}
		registry[pack.Name] = pack
		return nil
	})
	if err != nil {
		return nil, err
	}

	return registry, nil
}

func parsePack(data []byte, filePath string) (*Pack, error) {
	var pack Pack
	if err := yaml.Unmarshal(data, &pack); err != nil {
		return nil, &PolicyError{Message: fmt.Sprintf("invalid YAML in %s: %v", filePath, err)}
	}
	if pack.Name == "" {
		return nil, &PolicyError{Message: fmt.Sprintf("policy pack %s missing required 'name' field", filePath)}
	}

	for i := range pack.Rules {
		rule := &pack.Rules[i]
		if rule.Name == "" {
			return nil, &PolicyError{Message: fmt.Sprintf("policy pack %s: rule %d missing 'name'", filePath, i)}
		}
		if rule.Pattern == "" {
			return nil, &PolicyError{Message: fmt.Sprintf("policy pack %s: rule %q missing 'pattern'", filePath, rule.Name)}
		}
		pattern := rule.Pattern
		if !rule.CaseSensitive {
			pattern = "(?i)" + pattern
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, &PolicyError{Message: fmt.Sprintf("policy pack %s: rule %q: invalid pattern: %v", filePath, rule.Name, err)}
		}
		rule.re = re
	}

	return &pack, nil
}
