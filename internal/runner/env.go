package runner

import (
	"fmt"
	"maps"
	"slices"
	"strings"
	"unicode"

	"github.com/specialistvlad/stalegrid/internal/artifact"
	"github.com/specialistvlad/stalegrid/internal/task"
)

// EnvPrefix starts every variable exported to subprocess bodies.
const EnvPrefix = "STALEGRID_"

// TaskEnv returns the environment describing t to a subprocess:
// STALEGRID_TASK, STALEGRID_IN_<ROLE>, STALEGRID_OUT_<ROLE> and
// STALEGRID_PARAM_<NAME>. Artifacts with a local path export the path,
// others their ID.
func TaskEnv(t *task.Task) []string {
	env := []string{EnvPrefix + "TASK=" + t.ID()}
	for _, role := range t.InputRoles() {
		a, _ := t.Input(role)
		env = append(env, EnvPrefix+"IN_"+envName(role)+"="+artifact.PathOf(a))
	}
	for _, role := range t.OutputRoles() {
		a, _ := t.Output(role)
		env = append(env, EnvPrefix+"OUT_"+envName(role)+"="+artifact.PathOf(a))
	}
	params := t.Params()
	names := slices.Sorted(maps.Keys(params))
	for _, name := range names {
		env = append(env, EnvPrefix+"PARAM_"+envName(name)+"="+fmt.Sprint(params[name]))
	}
	return env
}

// envName upper-cases s and replaces anything outside [A-Z0-9_] with '_'.
func envName(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return unicode.ToUpper(r)
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			return r
		default:
			return '_'
		}
	}, s)
}

// ShellQuote wraps s in single quotes for POSIX shells.
func ShellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
