// Package shell splits command lines into argv-like segments for analysis.
package shell

import (
	"strings"

	"mvdan.cc/sh/v3/syntax"
)

// Segment is one shell sub-command, split on control operators, as
// argv-like tokens. A segment whose single token still contains whitespace
// is content the splitter could not decompose (heredoc bodies, control-flow
// constructs, or input that failed to parse at all).
type Segment []string

// Text reconstructs the segment for display in block reasons.
func (s Segment) Text() string {
	return strings.Join(s, " ")
}

// Split breaks command into sequential segments on `&&`, `||`, `|`, `|&`,
// `&`, `;`, and newlines. Operators inside quotes, `$(...)`, or backticks
// are never split points. Input that cannot be parsed (unbalanced quotes
// and the like) is returned verbatim as a single one-token segment so the
// caller can apply its fail-closed policy.
func Split(command string) []Segment {
	trimmed := strings.TrimSpace(command)
	if trimmed == "" {
		return nil
	}

	p := syntax.NewParser(syntax.Variant(syntax.LangBash))
	file, err := p.Parse(strings.NewReader(trimmed), "")
	if err != nil {
		return []Segment{{trimmed}}
	}
	if len(file.Stmts) == 0 {
		return nil
	}

	var segments []Segment
	for _, stmt := range file.Stmts {
		walkStmt(stmt, &segments)
	}
	if len(segments) == 0 {
		return []Segment{{trimmed}}
	}
	return segments
}

func walkStmt(stmt *syntax.Stmt, segments *[]Segment) {
	if stmt.Cmd != nil {
		walkCommand(stmt.Cmd, segments)
	}

	// Heredoc bodies never tokenize into argv. Surface each body as its
	// own opaque segment so the text scanner sees it.
	for _, redir := range stmt.Redirs {
		if redir.Op != syntax.Hdoc && redir.Op != syntax.DashHdoc {
			continue
		}
		if redir.Hdoc == nil {
			continue
		}
		body := strings.TrimSpace(wordText(redir.Hdoc))
		if body != "" {
			*segments = append(*segments, Segment{body})
		}
	}
}

func walkCommand(cmd syntax.Command, segments *[]Segment) {
	switch c := cmd.(type) {
	case *syntax.CallExpr:
		seg := make(Segment, 0, len(c.Assigns)+len(c.Args))
		for _, assign := range c.Assigns {
			seg = append(seg, assignText(assign))
		}
		for _, arg := range c.Args {
			if word := wordText(arg); word != "" {
				seg = append(seg, word)
			}
		}
		if len(seg) > 0 {
			*segments = append(*segments, seg)
		}

	case *syntax.BinaryCmd:
		walkStmt(c.X, segments)
		walkStmt(c.Y, segments)

	case *syntax.Subshell:
		for _, inner := range c.Stmts {
			walkStmt(inner, segments)
		}

	case *syntax.Block:
		for _, inner := range c.Stmts {
			walkStmt(inner, segments)
		}

	case *syntax.TimeClause:
		if c.Stmt != nil {
			walkStmt(c.Stmt, segments)
		}

	default:
		// Control flow, function declarations, arithmetic, and anything
		// else we do not model: keep the raw source as one opaque token.
		if raw := strings.TrimSpace(nodeText(cmd)); raw != "" {
			*segments = append(*segments, Segment{raw})
		}
	}
}

// wordText renders a word to its literal argv value: quotes removed,
// backslash escapes resolved, expansions kept as their source text
// ($HOME, ${HOME}, $(...)) since nothing expands at analysis time.
func wordText(w *syntax.Word) string {
	var b strings.Builder
	for _, part := range w.Parts {
		writePart(&b, part)
	}
	return b.String()
}

func writePart(b *strings.Builder, part syntax.WordPart) {
	switch p := part.(type) {
	case *syntax.Lit:
		b.WriteString(unescapeLit(p.Value))
	case *syntax.SglQuoted:
		b.WriteString(p.Value)
	case *syntax.DblQuoted:
		for _, inner := range p.Parts {
			writePart(b, inner)
		}
	default:
		b.WriteString(nodeText(part))
	}
}

func assignText(assign *syntax.Assign) string {
	if assign.Name == nil {
		return nodeText(assign)
	}
	var b strings.Builder
	b.WriteString(assign.Name.Value)
	b.WriteString("=")
	if assign.Value != nil {
		b.WriteString(wordText(assign.Value))
	} else if assign.Array != nil || assign.Index != nil {
		return nodeText(assign)
	}
	return b.String()
}

func nodeText(node syntax.Node) string {
	var b strings.Builder
	_ = syntax.NewPrinter().Print(&b, node)
	return b.String()
}

// unescapeLit resolves backslash escapes in an unquoted literal, so
// `\;` and `\*` become the characters the program would receive.
func unescapeLit(s string) string {
	if !strings.ContainsRune(s, '\\') {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	escaped := false
	for _, r := range s {
		if escaped {
			b.WriteRune(r)
			escaped = false
			continue
		}
		if r == '\\' {
			escaped = true
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
