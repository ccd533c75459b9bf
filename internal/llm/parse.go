package llm

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/dshills/testgap/internal/mdparse"
)

// Variables maps template slot names to the content a provider supplied.
type Variables map[string]string

// Keys returns the slot names in sorted order.
func (v Variables) Keys() []string {
	keys := make([]string, 0, len(v))
	for k := range v {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Critique is a provider's review of a generated test.
type Critique struct {
	Issues      []string `json:"issues"`
	Suggestions []string `json:"suggestions"`
}

// invalidJSONEscapeRe matches a backslash followed by any character that is not
// a valid JSON string escape character ("\/bfnrtu). Models sometimes emit regex
// patterns (e.g. \d+, \w+) unescaped inside JSON strings; this sanitizer
// converts them to properly double-escaped sequences (\\d, \\w, etc.) so that
// the JSON parser accepts the response.
var invalidJSONEscapeRe = regexp.MustCompile(`\\([^"\\/bfnrtu])`)

// fixInvalidJSONEscapes replaces invalid JSON escape sequences in s with their
// correctly double-escaped equivalents.
func fixInvalidJSONEscapes(s string) string {
	return invalidJSONEscapeRe.ReplaceAllString(s, `\\$1`)
}

// jsonCandidates returns the texts worth trying as a JSON object: the body of
// a json (or untagged) fence first, then the outermost braces of the whole
// response.
func jsonCandidates(raw string) []string {
	var out []string
	if b, ok := mdparse.First(raw, "json"); ok {
		out = append(out, strings.TrimSpace(b.Body))
	}
	if i, j := strings.IndexByte(raw, '{'), strings.LastIndexByte(raw, '}'); i >= 0 && j > i {
		out = append(out, raw[i:j+1])
	}
	return out
}

// decodeObject decodes the first candidate that parses as a JSON object,
// retrying each once with invalid escapes repaired.
func decodeObject(raw string) (map[string]json.RawMessage, error) {
	var lastErr error
	for _, c := range jsonCandidates(raw) {
		var obj map[string]json.RawMessage
		err := json.Unmarshal([]byte(c), &obj)
		if err != nil {
			err = json.Unmarshal([]byte(fixInvalidJSONEscapes(c)), &obj)
		}
		if err == nil {
			return obj, nil
		}
		lastErr = err
	}
	if lastErr == nil {
		return nil, fmt.Errorf("no JSON object found")
	}
	return nil, lastErr
}

// ParseVariables extracts a string→string object from a model response. The
// object may sit in a ```json fence, an untagged fence, or bare in the text.
// Non-string scalars are formatted as text and arrays of strings are joined
// with newlines; nested objects and nulls are dropped.
func ParseVariables(raw string) (Variables, error) {
	obj, err := decodeObject(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoVariables, err)
	}
	vars := make(Variables, len(obj))
	for k, v := range obj {
		if s, ok := stringValue(v); ok {
			vars[k] = s
		}
	}
	if len(vars) == 0 {
		return nil, fmt.Errorf("%w: object has no string values", ErrNoVariables)
	}
	return vars, nil
}

func stringValue(v json.RawMessage) (string, bool) {
	if strings.TrimSpace(string(v)) == "null" {
		return "", false
	}
	var s string
	if err := json.Unmarshal(v, &s); err == nil {
		return s, true
	}
	var list []string
	if err := json.Unmarshal(v, &list); err == nil {
		return strings.Join(list, "\n"), true
	}
	var f float64
	if err := json.Unmarshal(v, &f); err == nil {
		return strconv.FormatFloat(f, 'f', -1, 64), true
	}
	var b bool
	if err := json.Unmarshal(v, &b); err == nil {
		return strconv.FormatBool(b), true
	}
	return "", false
}

// ParseCritique extracts {"issues": [...], "suggestions": [...]} from a
// review response. At least one of the two keys must be present. Responses
// that answer in Markdown instead, under "Issues" and "Suggestions"
// headings, are read from the bullet lists of those sections.
func ParseCritique(raw string) (Critique, error) {
	obj, err := decodeObject(raw)
	if err != nil {
		if c, ok := headedCritique(raw); ok {
			return c, nil
		}
		return Critique{}, fmt.Errorf("%w: %v", ErrNoCritique, err)
	}
	issues, hasIssues := obj["issues"]
	suggestions, hasSuggestions := obj["suggestions"]
	if !hasIssues && !hasSuggestions {
		if c, ok := headedCritique(raw); ok {
			return c, nil
		}
		return Critique{}, fmt.Errorf("%w: neither issues nor suggestions present", ErrNoCritique)
	}
	var c Critique
	if hasIssues {
		if err := json.Unmarshal(issues, &c.Issues); err != nil {
			return Critique{}, fmt.Errorf("%w: issues: %v", ErrNoCritique, err)
		}
	}
	if hasSuggestions {
		if err := json.Unmarshal(suggestions, &c.Suggestions); err != nil {
			return Critique{}, fmt.Errorf("%w: suggestions: %v", ErrNoCritique, err)
		}
	}
	c.Issues = nonBlank(c.Issues)
	c.Suggestions = nonBlank(c.Suggestions)
	return c, nil
}

var listItemRe = regexp.MustCompile(`^\s*(?:[-*+]|\d+[.)])\s+(.*)$`)

// headedCritique reads a critique from Markdown sections titled like
// "Issues" or "Suggestions". It fails when neither heading is present.
func headedCritique(raw string) (Critique, bool) {
	var c Critique
	found := false
	for _, sec := range mdparse.Sections(raw) {
		title := strings.ToLower(sec.Title)
		var dst *[]string
		switch {
		case strings.Contains(title, "issue") || strings.Contains(title, "problem"):
			dst = &c.Issues
		case strings.Contains(title, "suggestion") || strings.Contains(title, "recommend"):
			dst = &c.Suggestions
		default:
			continue
		}
		found = true
		for _, line := range strings.Split(sec.Body, "\n") {
			if m := listItemRe.FindStringSubmatch(line); m != nil {
				*dst = append(*dst, m[1])
			}
		}
	}
	if !found {
		return Critique{}, false
	}
	c.Issues = nonBlank(c.Issues)
	c.Suggestions = nonBlank(c.Suggestions)
	return c, true
}

func nonBlank(in []string) []string {
	var out []string
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// languageTags lists the fence info strings accepted for each language.
var languageTags = map[string][]string{
	"python":     {"python", "py", "python3"},
	"go":         {"go", "golang"},
	"javascript": {"javascript", "js", "jsx", "mjs"},
	"typescript": {"typescript", "ts", "tsx"},
}

// ExtractCode returns the code of the first fence tagged for language (or
// untagged) in raw. A response with no fences is taken as code verbatim.
func ExtractCode(raw, language string) (string, error) {
	tags := languageTags[language]
	if len(tags) == 0 {
		tags = []string{language}
	}
	code := strings.TrimSpace(mdparse.Code(raw, tags...))
	if code == "" {
		return "", ErrNoCode
	}
	return code, nil
}
