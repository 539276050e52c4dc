package agent

import "regexp"

// InputGuard scans inbound user text for common prompt-injection phrasing.
// It never blocks on its own — the loop decides what to do with a match
// based on its configured injectionAction ("log", "warn", "block").
type InputGuard struct {
	patterns map[string]*regexp.Regexp
}

// NewInputGuard builds a guard with the default pattern set: attempts to
// override prior instructions, extract the system prompt, or impersonate
// a system/developer role from within user-supplied text.
func NewInputGuard() *InputGuard {
	return &InputGuard{
		patterns: map[string]*regexp.Regexp{
			"ignore_instructions": regexp.MustCompile(`(?i)ignore (all|any|the) (previous|prior|above) instructions`),
			"reveal_system_prompt": regexp.MustCompile(`(?i)(reveal|print|show|repeat) .*(system prompt|your instructions)`),
			"role_impersonation":   regexp.MustCompile(`(?i)you are now (in )?(developer|system|admin) mode`),
			"forget_rules":         regexp.MustCompile(`(?i)forget (everything|all) (you('ve| have))? (been told|learned)`),
		},
	}
}

// Scan returns the names of every pattern that matched text.
func (g *InputGuard) Scan(text string) []string {
	var matches []string
	for name, re := range g.patterns {
		if re.MatchString(text) {
			matches = append(matches, name)
		}
	}
	return matches
}
