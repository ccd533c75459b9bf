// Package profile defines synthesis profiles that modulate the prompts sent
// to the content provider. Each profile provides a SystemPromptAddendum that
// is appended to the system prompt.
package profile

import (
	"fmt"
	"sort"
	"strings"
)

// Profile describes a test-writing strategy.
type Profile struct {
	Name                 string
	Description          string
	SystemPromptAddendum string
	// Temperature, when non-zero, overrides the configured sampling
	// temperature for synthesis calls. Review calls are unaffected.
	Temperature float64
}

// Default is the profile used when none is configured.
const Default = "general"

// builtins is the registry of built-in profiles keyed by name.
var builtins = map[string]Profile{
	"general": {
		Name:        "general",
		Description: "Default profile; one representative happy-path test per target.",
		SystemPromptAddendum: "Write one focused test of the documented behaviour. Prefer " +
			"realistic literal inputs over mocks. When the behaviour is ambiguous, assert only " +
			"what the signature and docstring guarantee.",
	},
	"edge-cases": {
		Name:        "edge-cases",
		Description: "Boundary-value profile; favours empty, zero, negative and error inputs.",
		SystemPromptAddendum: "Focus on boundary values: empty collections, zero, negative " +
			"numbers, None/nil and error returns. Each assertion should pin down one edge " +
			"case. Include at least one assertion on a failure path when the target can fail.",
		Temperature: 0.4,
	},
	"minimal": {
		Name:        "minimal",
		Description: "Smoke-test profile; the smallest test that exercises the target.",
		SystemPromptAddendum: "Produce the smallest possible test: construct inputs, call the " +
			"target once and make a single assertion. Do not add setup that is not strictly " +
			"required.",
		Temperature: 0.1,
	},
	"behavioral": {
		Name:        "behavioral",
		Description: "Behaviour profile; tests observable outcomes, never internals.",
		SystemPromptAddendum: "Test observable behaviour only. Never assert on private " +
			"attributes, call counts or internal state. Name the scenario in the test " +
			"description using given/when/then wording.",
	},
}

// Names returns the built-in profile names, sorted.
func Names() []string {
	names := make([]string, 0, len(builtins))
	for n := range builtins {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Load returns the named built-in profile or an error if the name is unknown.
// An empty name selects Default.
func Load(name string) (Profile, error) {
	if name == "" {
		name = Default
	}
	p, ok := builtins[name]
	if !ok {
		return Profile{}, fmt.Errorf("profile: unknown profile %q (available: %s)", name, strings.Join(Names(), ", "))
	}
	return p, nil
}
