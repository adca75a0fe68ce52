// Package output bounds command output with head and tail preservation.
// The head usually carries the interesting part of a result and the tail
// carries the final error, so both ends survive truncation.
package output

import (
	"fmt"
	"time"
)

const (
	DefaultMaxBytes  = 65536
	defaultHeadBytes = 48 * 1024
	defaultTailBytes = 16 * 1024
)

// Result is a completed command's output after truncation.
type Result struct {
	Stdout     string `json:"stdout"`
	Stderr     string `json:"stderr"`
	ExitCode   int    `json:"exit_code"`
	RuntimeMs  int    `json:"runtime_ms"`
	Truncated  bool   `json:"truncated"`
	TotalBytes int    `json:"total_bytes"`
}

// Truncate caps stdout and stderr at limit bytes each. A limit of 0 uses
// DefaultMaxBytes; negative limits drop all output.
func Truncate(stdout, stderr string, exitCode int, runtime time.Duration, limit int) Result {
	if limit == 0 {
		limit = DefaultMaxBytes
	}

	outStdout, truncOut := clamp(stdout, limit)
	outStderr, truncErr := clamp(stderr, limit)

	return Result{
		Stdout:     outStdout,
		Stderr:     outStderr,
		ExitCode:   exitCode,
		RuntimeMs:  int(runtime.Milliseconds()),
		Truncated:  truncOut || truncErr,
		TotalBytes: len(stdout) + len(stderr),
	}
}

func clamp(data string, limit int) (string, bool) {
	total := len(data)
	if total <= limit {
		return data, false
	}
	if limit <= 0 {
		return "", true
	}

	marker := fmt.Sprintf("\n... [TRUNCATED: %d bytes total. Refine your query to narrow results.] ...\n", total)
	if limit <= len(marker) {
		return marker[:limit], true
	}

	budget := limit - len(marker)
	var head, tail int
	if limit == DefaultMaxBytes {
		head = min(defaultHeadBytes, budget)
		tail = min(defaultTailBytes, budget-head)
	} else {
		head = budget * 3 / 4
		tail = budget - head
	}

	out := make([]byte, 0, limit)
	out = append(out, data[:head]...)
	out = append(out, marker...)
	if tail > 0 {
		out = append(out, data[total-tail:]...)
	}
	return string(out), true
}
