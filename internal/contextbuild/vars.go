package contextbuild

import "strings"

// Vars carries the substitution values available to manifest sources and
// tool/hook command templates.
type Vars struct {
	AgentHome string
	CWD       string
	RunID     string
}

// Expand replaces ${AGENT_HOME}, ${CWD}, and ${RUN_ID} in s with their
// configured values. Unknown ${...} tokens are left untouched.
func (v Vars) Expand(s string) string {
	r := strings.NewReplacer(
		"${AGENT_HOME}", v.AgentHome,
		"${CWD}", v.CWD,
		"${RUN_ID}", v.RunID,
	)
	return r.Replace(s)
}

// ExpandAll applies Expand to every element of argv, returning a new slice.
func (v Vars) ExpandAll(argv []string) []string {
	out := make([]string, len(argv))
	for i, a := range argv {
		out[i] = v.Expand(a)
	}
	return out
}
