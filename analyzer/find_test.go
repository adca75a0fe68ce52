package analyzer

import "testing"

func TestFindDelete(t *testing.T) {
	blocked := []string{
		"find . -delete",
		"find /var/log -name '*.log' -delete",
		"find . -type f -delete",
		"find . -delete -name '*.log'",
	}
	for _, cmd := range blocked {
		expectBlock(t, Analyze(cmd), cmd)
	}

	allowed := []string{
		"find . -name '*.go'",
		"find /var/log -type f -mtime +30",
		"find . -name '*.log' -print",
		// -delete here is the value of -name: a file literally named
		// "-delete", not the action.
		"find . -name -delete",
	}
	for _, cmd := range allowed {
		expectAllow(t, Analyze(cmd), cmd)
	}
}

func TestFindExec(t *testing.T) {
	blocked := []string{
		`find . -exec rm -rf {} \;`,
		"find . -exec rm -rf {} +",
		`find . -execdir rm -rf {} \;`,
		`find . -ok rm -rf {} \;`,
		`find /tmp -name '*.tmp' -exec rm -rf {} \;`,
		`find . -exec sudo rm -rf {} \;`,
		`find . -exec busybox rm -rf {} \;`,
	}
	for _, cmd := range blocked {
		expectBlock(t, Analyze(cmd), cmd)
	}

	allowed := []string{
		`find . -exec wc -l {} \;`,
		`find . -exec rm {} \;`,
		`find . -exec rm -f {} \;`,
		`find . -exec grep pattern {} +`,
		// After the -exec terminator, -delete belongs to no one and find
		// treats it as a test expression error, but a second engine pass
		// must still catch a real one.
		`find . -exec echo {} \; -delete`,
	}
	// The last entry is actually dangerous: -delete after the terminator
	// is a real find action.
	for _, cmd := range allowed[:len(allowed)-1] {
		expectAllow(t, Analyze(cmd), cmd)
	}
	expectBlock(t, Analyze(allowed[len(allowed)-1]), "-delete after an -exec block")
}

func TestFindInPipeline(t *testing.T) {
	expectBlock(t, Analyze("find . -name '*.log' | xargs ls && find /data -delete"),
		"find -delete as a later pipeline segment")
	expectAllow(t, Analyze("find . -name '*.log' | wc -l"),
		"benign find pipeline")
}
