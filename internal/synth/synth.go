// Package synth turns a target entity into a test by filling a template's
// slots with locally derived values and provider-supplied content.
//
// Synthesis never fails: every provider error, timeout or malformed response
// degrades to fixed fallback content, and a missing template degrades to a
// free-form request and then to a minimal skeleton.
package synth

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/dshills/testgap/internal/entity"
	"github.com/dshills/testgap/internal/index"
	"github.com/dshills/testgap/internal/llm"
	"github.com/dshills/testgap/internal/profile"
	"github.com/dshills/testgap/internal/schema"
	"github.com/dshills/testgap/internal/templates"
)

// Synthesizer generates tests. Client may be nil, in which case every
// remote slot takes its fallback value. Index, when set, supplies the
// dependency hints included in provider requests.
type Synthesizer struct {
	Registry   *templates.Registry
	Client     *llm.Client
	Profile    profile.Profile
	Index      *index.Index
	ModulePath string // Go module path of the repository under test
	Logger     *zap.Logger
}

func (s *Synthesizer) logger() *zap.Logger {
	if s.Logger == nil {
		return zap.NewNop()
	}
	return s.Logger
}

// Synthesize produces a test for e using framework. An empty framework
// selects the language default.
func (s *Synthesizer) Synthesize(ctx context.Context, e entity.Entity, framework string) schema.GeneratedTest {
	target := entity.TargetFor(e)
	decl := e.Declaration()
	if framework == "" {
		framework = templates.DefaultFramework(decl.Language)
	}
	out := schema.GeneratedTest{
		Target:        e.QualifiedName(),
		Kind:          target.Kind().String(),
		File:          decl.File,
		Language:      decl.Language,
		Framework:     framework,
		SuggestedPath: schema.TestFileName(decl.File, framework),
		Validation:    schema.ValidationOutcome{State: schema.StateNotValidated},
	}

	tmpl, ok := s.selectTemplate(decl.Language, framework, target.Kind())
	if !ok {
		s.freeForm(ctx, target, &out)
		return out
	}
	out.TemplateName = tmpl.Name

	local := LocalVariables(target, s.ModulePath)
	placeholders := tmpl.Placeholders()
	var remoteSlots []string
	for _, p := range placeholders {
		if _, ok := local[p]; !ok {
			remoteSlots = append(remoteSlots, p)
		}
	}

	vars := make(map[string]string, len(placeholders))
	fallbacks := 0
	if len(remoteSlots) > 0 {
		remote, err := s.remoteVariables(ctx, target, framework, remoteSlots)
		if err != nil {
			s.logger().Warn("content provider unavailable; using fallback slots",
				zap.String("target", out.Target),
				zap.Error(err))
		}
		for _, slot := range remoteSlots {
			if v, ok := remote[slot]; ok {
				vars[slot] = v
				continue
			}
			vars[slot] = fallbackValue(slot, decl.Language, framework, target, local)
			fallbacks++
		}
	}
	for k, v := range local {
		vars[k] = v
	}

	rendered := templates.Render(tmpl, vars)
	rendered, stripped := templates.StripPlaceholders(rendered, placeholders)
	out.Rendered = templates.Tidy(rendered)
	out.Unresolved = fallbacks + stripped
	out.Degraded = out.Unresolved > 0
	if out.Degraded {
		s.logger().Debug("degraded synthesis",
			zap.String("target", out.Target),
			zap.Int("fallback_slots", fallbacks),
			zap.Int("stripped", stripped))
	}
	return out
}

// selectTemplate picks the exact shape, else the first template registered
// for the language and framework.
func (s *Synthesizer) selectTemplate(lang, framework string, shape entity.Kind) (templates.Template, bool) {
	if s.Registry == nil {
		return templates.Template{}, false
	}
	if t, ok := s.Registry.Lookup(lang, framework, shape); ok {
		return t, true
	}
	if all := s.Registry.AllFor(lang, framework); len(all) > 0 {
		return all[0], true
	}
	return templates.Template{}, false
}

func (s *Synthesizer) request(target entity.Target, framework string, slots []string) llm.VariablesRequest {
	e := target.Entity()
	decl := e.Declaration()
	req := llm.VariablesRequest{
		Shape:     target.Kind(),
		Language:  decl.Language,
		Framework: framework,
		Name:      decl.Name,
		RawText:   decl.Text,
		Slots:     slots,
		Profile:   s.Profile,
	}
	if m, ok := target.(entity.MethodTarget); ok {
		req.Owner = m.ClassName
	}
	if s.Index != nil {
		req.Dependencies = s.Index.Dependencies(e)
	}
	return req
}

func (s *Synthesizer) remoteVariables(ctx context.Context, target entity.Target, framework string, slots []string) (llm.Variables, error) {
	if s.Client == nil {
		return nil, llm.ErrUnavailable
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	vars, err := s.Client.Variables(ctx, s.request(target, framework, slots))
	if err != nil {
		return nil, err
	}
	if missing := missingSlots(vars, slots); len(missing) > 0 {
		s.logger().Debug("provider omitted slots",
			zap.String("target", target.Entity().QualifiedName()),
			zap.Strings("slots", missing))
	}
	return vars, nil
}

func missingSlots(vars llm.Variables, slots []string) []string {
	var missing []string
	for _, s := range slots {
		if _, ok := vars[s]; !ok {
			missing = append(missing, s)
		}
	}
	sort.Strings(missing)
	return missing
}

// freeForm asks the provider for a whole test file and falls back to a
// skeleton when that fails.
func (s *Synthesizer) freeForm(ctx context.Context, target entity.Target, out *schema.GeneratedTest) {
	err := llm.ErrUnavailable
	if s.Client != nil {
		var code string
		code, err = s.Client.FreeForm(ctx, s.request(target, out.Framework, nil))
		if err == nil {
			// Only slot names are stripped; other braces are real code.
			stripped := 0
			if s.Registry != nil {
				if names := s.Registry.SlotNames(out.Language); len(names) > 0 {
					code, stripped = templates.StripPlaceholders(code, names)
				}
			}
			out.Rendered = templates.Tidy(code)
			out.Unresolved = stripped
			out.Degraded = stripped > 0
			return
		}
	}
	level := s.logger().Warn
	if errors.Is(err, llm.ErrUnavailable) {
		level = s.logger().Debug
	}
	level("no template and no provider content; emitting skeleton",
		zap.String("target", out.Target),
		zap.String("framework", out.Framework),
		zap.Error(err))
	out.Rendered = Skeleton(target, out.Framework, s.ModulePath)
	out.Unresolved = 1
	out.Degraded = true
}

// Skeleton returns a minimal deterministic test file for target.
func Skeleton(target entity.Target, framework, modulePath string) string {
	decl := target.Entity().Declaration()
	local := LocalVariables(target, modulePath)
	name := decl.Name
	switch decl.Language {
	case "python":
		return fmt.Sprintf("import pytest\n\nfrom %s import %s\n\n\ndef test_%s():\n    pytest.skip(\"TODO: implement test for %s\")\n",
			local["module_path"], local["target_name"], name, name)
	case "go":
		return fmt.Sprintf("package %s\n\nimport (\n\t\"testing\"\n)\n\nfunc Test%s(t *testing.T) {\n\tt.Skip(\"TODO: implement test for %s\")\n}\n",
			local["package_name"], local["test_name"], name)
	case "javascript", "typescript":
		return fmt.Sprintf("import { %s } from '%s';\n\ndescribe('%s', () => {\n  test.todo('implement tests for %s');\n});\n",
			local["target_name"], local["module_path"], name, name)
	}
	return fmt.Sprintf("%s TODO: implement a %s test for %s\n", commentPrefix(decl.Language), framework, name)
}
