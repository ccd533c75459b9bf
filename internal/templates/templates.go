// Package templates holds parameterized test skeletons keyed by language,
// framework and shape, and performs placeholder substitution.
//
// A placeholder is an identifier in braces, for example {module_path}.
// Multi-line values substituted at the start of an indented line are
// re-indented to that column so block-structured languages stay well formed.
package templates

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/dshills/testgap/internal/entity"
)

var (
	// ErrDuplicate is returned by Register when a template already exists
	// for the same language, framework and shape. Use Override to replace it.
	ErrDuplicate = errors.New("templates: duplicate template")
	// ErrUnknownTemplate is returned when rendering a template that is not
	// registered.
	ErrUnknownTemplate = errors.New("templates: unknown template")
	// ErrInvalidTemplate is returned when a template is missing required fields.
	ErrInvalidTemplate = errors.New("templates: invalid template")
)

// Template is a parameterized test skeleton.
type Template struct {
	Name        string
	Language    string
	Framework   string
	Shape       entity.Kind
	Body        string
	Description string
}

// Key identifies the slot a template occupies in a Registry.
type Key struct {
	Language  string
	Framework string
	Shape     entity.Kind
}

func (t Template) key() Key {
	return Key{Language: t.Language, Framework: t.Framework, Shape: t.Shape}
}

// Placeholders lists the distinct placeholder names in t.Body in order of
// first appearance.
func (t Template) Placeholders() []string {
	return Placeholders(t.Body)
}

func (t Template) validate() error {
	switch {
	case t.Name == "":
		return fmt.Errorf("%w: name is required", ErrInvalidTemplate)
	case t.Language == "" || t.Framework == "":
		return fmt.Errorf("%w: %s: language and framework are required", ErrInvalidTemplate, t.Name)
	case strings.TrimSpace(t.Body) == "":
		return fmt.Errorf("%w: %s: body is empty", ErrInvalidTemplate, t.Name)
	}
	return nil
}

// Registry stores at most one template per Key. The zero value is ready to
// use. A Registry is not safe for concurrent registration; lookups on a
// fully populated Registry may run concurrently.
type Registry struct {
	templates []Template // registration order
	byKey     map[Key]int
	byName    map[string]int
}

// Register adds t. It fails with ErrDuplicate when the key or the name is
// already taken.
func (r *Registry) Register(t Template) error {
	if err := t.validate(); err != nil {
		return err
	}
	r.init()
	if _, ok := r.byKey[t.key()]; ok {
		return fmt.Errorf("%w: %s/%s/%s", ErrDuplicate, t.Language, t.Framework, t.Shape)
	}
	if _, ok := r.byName[t.Name]; ok {
		return fmt.Errorf("%w: name %q", ErrDuplicate, t.Name)
	}
	r.byKey[t.key()] = len(r.templates)
	r.byName[t.Name] = len(r.templates)
	r.templates = append(r.templates, t)
	return nil
}

// Override registers t, replacing any template with the same key in place.
// It returns true when a template was replaced.
func (r *Registry) Override(t Template) (bool, error) {
	if err := t.validate(); err != nil {
		return false, err
	}
	r.init()
	i, ok := r.byKey[t.key()]
	if !ok {
		return false, r.Register(t)
	}
	if j, taken := r.byName[t.Name]; taken && j != i {
		return false, fmt.Errorf("%w: name %q", ErrDuplicate, t.Name)
	}
	delete(r.byName, r.templates[i].Name)
	r.templates[i] = t
	r.byName[t.Name] = i
	return true, nil
}

func (r *Registry) init() {
	if r.byKey == nil {
		r.byKey = make(map[Key]int)
		r.byName = make(map[string]int)
	}
}

// Lookup returns the template registered for the exact key.
func (r *Registry) Lookup(language, framework string, shape entity.Kind) (Template, bool) {
	i, ok := r.byKey[Key{Language: language, Framework: framework, Shape: shape}]
	if !ok {
		return Template{}, false
	}
	return r.templates[i], true
}

// AllFor returns every template for a language and framework in
// registration order.
func (r *Registry) AllFor(language, framework string) []Template {
	var out []Template
	for _, t := range r.templates {
		if t.Language == language && t.Framework == framework {
			out = append(out, t)
		}
	}
	return out
}

// All returns every template in registration order.
func (r *Registry) All() []Template {
	return append([]Template(nil), r.templates...)
}

// Frameworks returns the frameworks that have at least one template for
// language, in registration order.
func (r *Registry) Frameworks(language string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, t := range r.templates {
		if t.Language == language && !seen[t.Framework] {
			seen[t.Framework] = true
			out = append(out, t.Framework)
		}
	}
	return out
}

// SlotNames returns the distinct placeholder names used by any template for
// language, sorted.
func (r *Registry) SlotNames(language string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, t := range r.templates {
		if t.Language != language {
			continue
		}
		for _, p := range t.Placeholders() {
			if !seen[p] {
				seen[p] = true
				out = append(out, p)
			}
		}
	}
	sort.Strings(out)
	return out
}

// RenderByName renders the registered template called name.
func (r *Registry) RenderByName(name string, vars map[string]string) (string, error) {
	i, ok := r.byName[name]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownTemplate, name)
	}
	return Render(r.templates[i], vars), nil
}

var placeholderRe = regexp.MustCompile(`\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Placeholders lists the distinct placeholder names in s in order of first
// appearance.
func Placeholders(s string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, m := range placeholderRe.FindAllStringSubmatch(s, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			out = append(out, m[1])
		}
	}
	return out
}

// Render replaces every {key} in t.Body whose key is present in vars.
// Placeholders without a value are left as literal text. Substitution is a
// single pass: placeholder syntax inside values is not expanded.
func Render(t Template, vars map[string]string) string {
	var sb strings.Builder
	body := t.Body
	last := 0
	for _, m := range placeholderRe.FindAllStringSubmatchIndex(body, -1) {
		val, ok := vars[body[m[2]:m[3]]]
		if !ok {
			continue
		}
		sb.WriteString(body[last:m[0]])
		sb.WriteString(indentContinuation(val, lineIndent(body, m[0])))
		last = m[1]
	}
	sb.WriteString(body[last:])
	return sb.String()
}

// StripPlaceholders removes residual placeholder tokens from s and reports
// how many it removed. When names is non-empty only those placeholders are
// removed; otherwise every {identifier} token is.
func StripPlaceholders(s string, names []string) (string, int) {
	allowed := make(map[string]bool, len(names))
	for _, n := range names {
		allowed[n] = true
	}
	count := 0
	out := placeholderRe.ReplaceAllStringFunc(s, func(tok string) string {
		if len(allowed) > 0 && !allowed[tok[1:len(tok)-1]] {
			return tok
		}
		count++
		return ""
	})
	return out, count
}

// Tidy trims trailing whitespace, collapses runs of blank lines and strips
// leading blank lines, leaving a single trailing newline.
func Tidy(s string) string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	blank := 0
	for _, l := range lines {
		l = strings.TrimRight(l, " \t\r")
		if l == "" {
			blank++
			if blank > 2 || len(out) == 0 {
				continue
			}
		} else {
			blank = 0
		}
		out = append(out, l)
	}
	return strings.TrimRight(strings.Join(out, "\n"), "\n") + "\n"
}

// lineIndent returns the whitespace between the start of the line and pos
// when nothing else precedes pos on that line.
func lineIndent(s string, pos int) string {
	start := strings.LastIndexByte(s[:pos], '\n') + 1
	prefix := s[start:pos]
	if strings.TrimLeft(prefix, " \t") != "" {
		return ""
	}
	return prefix
}

func indentContinuation(val, indent string) string {
	if indent == "" || !strings.Contains(val, "\n") {
		return val
	}
	lines := strings.Split(val, "\n")
	for i := 1; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) != "" {
			lines[i] = indent + lines[i]
		}
	}
	return strings.Join(lines, "\n")
}
