package ssh

import (
	"sort"

	"github.com/kballard/go-shellquote"
)

// Quote escapes s for a POSIX shell.
func Quote(s string) string {
	return shellquote.Join(s)
}

// CommandLine renders args as one shell command, run from dir with env
// exported in front of it.
func CommandLine(dir string, env map[string]string, args []string) string {
	var words []string

	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	if len(keys) > 0 {
		words = append(words, "env")
		for _, k := range keys {
			words = append(words, k+"="+env[k])
		}
	}
	words = append(words, args...)

	line := shellquote.Join(words...)
	if dir != "" {
		line = "cd " + Quote(dir) + " && " + line
	}
	return line
}
