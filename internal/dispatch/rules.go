package dispatch

import "strings"

// Rule pairs a predicate over a lower-cased command with the reply it selects.
type Rule struct {
	Name  string
	Match func(cmd string) bool
	Reply string
}

// buildRules returns the command table in precedence order. Matching is by
// substring, so "hi" also matches "chill" or "this": loose on purpose, the
// bot only ever answers with a greeting.
func buildRules(cat Catalog, exampleCommand string) []Rule {
	example := strings.ToLower(exampleCommand)
	return []Rule{
		{
			Name:  "phi",
			Match: func(cmd string) bool { return strings.Contains(cmd, "phi") },
			Reply: cat.PHIDescription,
		},
		{
			Name:  "example",
			Match: func(cmd string) bool { return example != "" && strings.HasPrefix(cmd, example) },
			Reply: cat.NotImplemented,
		},
		{
			Name: "greeting",
			Match: func(cmd string) bool {
				return strings.Contains(cmd, "hello") || strings.Contains(cmd, "hi")
			},
			Reply: cat.Greeting,
		},
		{
			Name:  "fallback",
			Match: func(string) bool { return true },
			Reply: cat.fallback(exampleCommand),
		},
	}
}

// match returns the first rule whose predicate accepts cmd. The table always
// ends with a catch-all, so the result is never nil.
func match(rules []Rule, cmd string) *Rule {
	lower := strings.ToLower(cmd)
	for i := range rules {
		if rules[i].Match(lower) {
			return &rules[i]
		}
	}
	return nil
}
