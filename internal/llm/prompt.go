package llm

import (
	"fmt"
	"strings"

	"github.com/dshills/testgap/internal/entity"
	"github.com/dshills/testgap/internal/profile"
)

// VariablesRequest describes one target whose template slots the provider
// should fill.
type VariablesRequest struct {
	Shape        entity.Kind
	Language     string
	Framework    string
	Name         string // short name of the target
	Owner        string // owning class for methods
	RawText      string
	Dependencies []string
	Slots        []string // slot names the provider must fill
	Profile      profile.Profile
}

// slotHints describes each slot the built-in templates leave to the
// provider. Unknown slots are described generically.
var slotHints = map[string]string{
	"arrange_code":      "statements that build the inputs, one per line",
	"function_call":     "the call expression of the function under test with concrete arguments",
	"method_call":       "the call expression of the method on `instance` with concrete arguments",
	"assert_code":       "assertion statements checking the result",
	"test_description":  "a short lower-case phrase describing the behaviour tested",
	"instance_create":   "a statement that constructs `instance`, the object under test",
	"fixture_code":      "setup statements run before the instance is created (may be empty)",
	"instance_creation": "the constructor expression that builds the object under test",
	"test_methods":      "one or more complete test methods or subtests exercising the class",
	"constructor_args":  "the constructor arguments, comma separated",
}

// SlotHint returns the description of a slot.
func SlotHint(slot string) string {
	if h, ok := slotHints[slot]; ok {
		return h
	}
	return "code for the " + strings.ReplaceAll(slot, "_", " ")
}

func systemPreamble(req VariablesRequest) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "You are testgap, a test-writing assistant for %s code using %s.\n\n",
		displayLanguage(req.Language), req.Framework)
	sb.WriteString("Only reference names that appear in the source shown. " +
		"Never invent helper modules or fixtures that do not exist.\n\n")
	if req.Profile.SystemPromptAddendum != "" {
		sb.WriteString(req.Profile.SystemPromptAddendum)
		sb.WriteString("\n\n")
	}
	return sb.String()
}

func variablesSystemPrompt(req VariablesRequest) string {
	var sb strings.Builder
	sb.WriteString(systemPreamble(req))
	sb.WriteString("Respond with a single JSON object inside a ```json fence. " +
		"Every key is a slot name and every value is a string of code. " +
		"Do not add keys that were not requested. Do not include import statements.\n")
	return sb.String()
}

func variablesUserPrompt(req VariablesRequest) string {
	var sb strings.Builder
	target := req.Name
	if req.Owner != "" {
		target = req.Owner + "." + req.Name
	}
	fmt.Fprintf(&sb, "Target %s: %s\n\n", req.Shape, target)
	fmt.Fprintf(&sb, "Source:\n```%s\n%s\n```\n\n", fenceTag(req.Language), req.RawText)
	if len(req.Dependencies) > 0 {
		fmt.Fprintf(&sb, "It refers to: %s\n\n", strings.Join(req.Dependencies, ", "))
	}
	sb.WriteString("Fill these slots:\n")
	for _, s := range req.Slots {
		fmt.Fprintf(&sb, "  - %s: %s\n", s, SlotHint(s))
	}
	sb.WriteString("\nProduce the JSON object now.")
	return sb.String()
}

func freeFormSystemPrompt(req VariablesRequest) string {
	var sb strings.Builder
	sb.WriteString(systemPreamble(req))
	fmt.Fprintf(&sb, "Respond with one complete, self-contained test file inside a ```%s fence "+
		"and nothing else.\n", fenceTag(req.Language))
	return sb.String()
}

func freeFormUserPrompt(req VariablesRequest) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Write a %s test for the %s %s.\n\n", req.Framework, req.Shape, req.Name)
	fmt.Fprintf(&sb, "Source:\n```%s\n%s\n```\n", fenceTag(req.Language), req.RawText)
	return sb.String()
}

const reviewSystemPrompt = "You are an expert test engineer reviewing test code. " +
	"Provide a critical evaluation focusing on test quality, completeness and correctness. " +
	"Respond ONLY with the requested JSON object.\n"

func reviewUserPrompt(test, source, language string) string {
	tag := fenceTag(language)
	var sb strings.Builder
	sb.WriteString("Evaluate this test code against the source code it is meant to test.\n\n")
	fmt.Fprintf(&sb, "Source code:\n```%s\n%s\n```\n\n", tag, source)
	fmt.Fprintf(&sb, "Test code:\n```%s\n%s\n```\n\n", tag, test)
	sb.WriteString("Look for missing edge cases, incorrect assumptions about the source, " +
		"tests of implementation details instead of behaviour, insufficient assertions " +
		"and brittle tests.\n\n")
	sb.WriteString("Answer with a JSON object with two arrays of strings:\n" +
		"{\"issues\": [...], \"suggestions\": [...]}\n" +
		"Use empty arrays when there are no issues.")
	return sb.String()
}

func fenceTag(language string) string {
	switch language {
	case "javascript":
		return "js"
	default:
		return language
	}
}

func displayLanguage(language string) string {
	switch language {
	case "go":
		return "Go"
	case "python":
		return "Python"
	case "javascript":
		return "JavaScript"
	case "typescript":
		return "TypeScript"
	}
	return language
}
