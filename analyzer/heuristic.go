package analyzer

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Defense-in-depth: lexical patterns applied to content that did not
// tokenize into discrete argv entries (heredoc bodies, control-flow
// constructs, unparseable input). Broader and cheaper than the
// token-aware engines; a match here is still a hard block.
type textPattern struct {
	re     *regexp.Regexp
	reason string
}

var textPatterns = []textPattern{
	{
		re:     regexp.MustCompile(`(?i)(?:^|[\s"'=:/])\.ssh(?:/|\s|"|'|$)`),
		reason: "Content references the ~/.ssh key directory; blocked.",
	},
	{
		re:     regexp.MustCompile(`(?i)(?:^|[\s"'=:/])\.aws(?:/|\s|"|'|$)`),
		reason: "Content references the ~/.aws credential directory; blocked.",
	},
	{
		re:     regexp.MustCompile(`(?i)(?:^|[\s"'=:/])\.gnupg(?:/|\s|"|'|$)`),
		reason: "Content references the ~/.gnupg key directory; blocked.",
	},
	{
		re:     regexp.MustCompile(`(?i)private-keys-v1\.d|secring\.gpg`),
		reason: "Content references a GPG private key store; blocked.",
	},
	{
		re: regexp.MustCompile(`(?i)\brm\b[^|;&]*\s-(?:[a-z]*r[a-z]*f|[a-z]*f[a-z]*r)[a-z]*\b` +
			`|(?i)\brm\b[^|;&]*\s-[a-z]*r\b[^|;&]*\s-[a-z]*f\b` +
			`|(?i)\brm\b[^|;&]*\s-[a-z]*f\b[^|;&]*\s-[a-z]*r\b` +
			`|(?i)\brm\b[^|;&]*--recursive\b[^|;&]*--force\b` +
			`|(?i)\brm\b[^|;&]*--force\b[^|;&]*--recursive\b`),
		reason: "Content contains a recursive-force rm; blocked.",
	},
	{
		re:     regexp.MustCompile(`(?i)\bgit\s+push\b[^|;&]*\s(?:-f|--force)(?:\s|$)`),
		reason: "Content contains git push --force; blocked.",
	},
	{
		re:     regexp.MustCompile(`(?i)\bgit\s+reset\b[^|;&]*--(?:hard|merge)\b`),
		reason: "Content contains git reset --hard/--merge; blocked.",
	},
	{
		re:     regexp.MustCompile(`(?i)\bgit\s+clean\b[^|;&]*\s-[a-z]*f`),
		reason: "Content contains git clean -f; blocked.",
	},
	{
		re:     regexp.MustCompile(`(?i)\bgit\s+checkout\b[^|;&]*\s--\s+\S`),
		reason: "Content contains git checkout -- <path>; blocked.",
	},
	{
		// Case-sensitive: only -D force-deletes.
		re:     regexp.MustCompile(`\bgit\s+branch\b[^|;&]*\s-[a-z]*D`),
		reason: "Content contains git branch -D; blocked.",
	},
	{
		re:     regexp.MustCompile(`(?i)\bgit\s+stash\s+(?:drop|clear)\b`),
		reason: "Content contains git stash drop/clear; blocked.",
	},
}

// gitRestoreRe needs a negative condition (--staged exempts) that RE2
// cannot express, so it is handled separately in scanText.
var gitRestoreRe = regexp.MustCompile(`(?i)\bgit\s+restore\b`)

var findDeleteRe = regexp.MustCompile(`(?i)\bfind\b[^|;&]*\s-delete\b`)

// scanText is the defense-in-depth lexical scan. Input is NFKC-normalized
// first so Unicode homoglyphs cannot smuggle a pattern past the regexes.
func scanText(text string) *Finding {
	normalized := norm.NFKC.String(text)

	if findDeleteRe.MatchString(normalized) && !findDeleteSuppressed(normalized) {
		return &Finding{
			Reason:  "Content contains find ... -delete; blocked.",
			Segment: text,
		}
	}

	for _, pattern := range textPatterns {
		if pattern.re.MatchString(normalized) {
			return &Finding{Reason: pattern.reason, Segment: text}
		}
	}

	if gitRestoreRe.MatchString(normalized) && !strings.Contains(strings.ToLower(normalized), "--staged") {
		return &Finding{
			Reason:  "Content contains git restore without --staged; blocked.",
			Segment: text,
		}
	}

	return nil
}

// findDeleteSuppressed exempts text that merely prints or searches for
// the pattern: `echo "find . -delete"` and `rg 'find .* -delete'` are
// common false-positive sources.
func findDeleteSuppressed(text string) bool {
	trimmed := strings.TrimSpace(text)
	return strings.HasPrefix(trimmed, "echo ") || strings.HasPrefix(trimmed, "rg ")
}
