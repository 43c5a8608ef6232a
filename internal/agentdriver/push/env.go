package push

import "os"

// allowedEnvNames is the fixed child-environment allowlist spec.md §4.6
// requires: PATH/HOME/temp-dir basics plus whatever the caller names as
// "one supervisor variable". Secret tokens are never added here.
var allowedEnvNames = []string{
	"PATH",
	"HOME",
	"TMPDIR",
	"TEMP",
	"TMP",
	"LANG",
	"LC_ALL",
}

// BuildChildEnv clears the ambient environment and re-injects only the
// fixed allowlist plus supervisorVar (formatted "KEY=VALUE"), per spec.md
// §4.6. Grounded on the teacher's pkg/exec.LocalExec.Run, which builds an
// explicit env slice rather than passing the parent's environment through
// unfiltered when opts.Env is set.
func BuildChildEnv(supervisorVar string) []string {
	env := make([]string, 0, len(allowedEnvNames)+1)
	for _, name := range allowedEnvNames {
		if v, ok := os.LookupEnv(name); ok && v != "" {
			env = append(env, name+"="+v)
		}
	}
	if supervisorVar != "" {
		env = append(env, supervisorVar)
	}
	return env
}
