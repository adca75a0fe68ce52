package analyzer

import (
	"github.com/bashgate/bashgate/shell"
)

// findValueOpts are find predicates that consume a string argument. Their
// values must be skipped so `find . -name -delete` (searching for a file
// literally named "-delete") is not misread as the -delete action.
var findValueOpts = map[string]bool{
	"-name":       true,
	"-iname":      true,
	"-lname":      true,
	"-ilname":     true,
	"-path":       true,
	"-ipath":      true,
	"-wholename":  true,
	"-iwholename": true,
	"-regex":      true,
	"-iregex":     true,
	"-regextype":  true,
	"-type":       true,
	"-xtype":      true,
	"-perm":       true,
	"-size":       true,
	"-mtime":      true,
	"-atime":      true,
	"-ctime":      true,
	"-mmin":       true,
	"-amin":       true,
	"-cmin":       true,
	"-newer":      true,
	"-anewer":     true,
	"-cnewer":     true,
	"-newermt":    true,
	"-used":       true,
	"-user":       true,
	"-group":      true,
	"-uid":        true,
	"-gid":        true,
	"-links":      true,
	"-samefile":   true,
	"-fstype":     true,
	"-printf":     true,
	"-fprintf":    true,
	"-fprint":     true,
	"-fprint0":    true,
	"-fls":        true,
	"-maxdepth":   true,
	"-mindepth":   true,
}

// checkFind blocks find's -delete action and -exec'd recursive-force rm.
// A -delete appearing as an argument inside an -exec block belongs to the
// exec'd command, not to find, and is handled by the exec check.
func checkFind(tokens []string, segment string) *Finding {
	args := tokens[1:]
	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch {
		case arg == "-exec" || arg == "-execdir" || arg == "-ok" || arg == "-okdir":
			var child []string
			j := i + 1
			for ; j < len(args); j++ {
				if args[j] == ";" || args[j] == "+" {
					break
				}
				child = append(child, args[j])
			}
			if f := checkFindExec(child, segment); f != nil {
				return f
			}
			i = j

		case findValueOpts[arg]:
			i++

		case arg == "-delete":
			return &Finding{
				Reason:  "find -delete removes every matched path and is blocked.",
				Segment: segment,
			}
		}
	}
	return nil
}

func checkFindExec(child []string, segment string) *Finding {
	child, _ = shell.StripWrappersWithInfo(child)
	if len(child) > 0 && shell.NormalizeCommandToken(child[0]) == "busybox" {
		child = child[1:]
	}
	if len(child) == 0 {
		return nil
	}
	if shell.NormalizeCommandToken(child[0]) == "rm" && rmHasRecursiveForce(child[1:]) {
		return &Finding{
			Reason:  "find -exec rm -rf recursively deletes every matched path and is blocked.",
			Segment: segment,
		}
	}
	return nil
}
