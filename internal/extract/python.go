package extract

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"

	"github.com/dshills/testgap/internal/entity"
)

func pythonGrammar() *sitter.Language { return python.GetLanguage() }

func walkPython(w *walker, root *sitter.Node) {
walk:
	for i := 0; i < int(root.NamedChildCount()); i++ {
		node := root.NamedChild(i)
		def, outer := unwrapDecorated(node)
		switch def.Type() {
		case "function_definition":
			if fn := w.pyFunction(def, outer, false); fn != nil {
				w.res.Functions = append(w.res.Functions, fn)
			}
		case "class_definition":
			if cls := w.pyClass(def, outer); cls != nil {
				w.res.Classes = append(w.res.Classes, cls)
			}
		case "ERROR":
			if w.skip(node) {
				break walk
			}
		}
	}
}

// unwrapDecorated returns the inner definition of a decorated_definition and
// the node whose span should be recorded (the decorators included).
func unwrapDecorated(n *sitter.Node) (def, outer *sitter.Node) {
	if n.Type() != "decorated_definition" {
		return n, n
	}
	if d := n.ChildByFieldName("definition"); d != nil {
		return d, n
	}
	return n, n
}

// pyFunction builds a Function from a function_definition. It returns nil
// when the declaration is malformed or named like a test.
func (w *walker) pyFunction(def, outer *sitter.Node, method bool) *entity.Function {
	if outer.HasError() {
		w.warn(outer, "skipping malformed function")
		return nil
	}
	name := w.text(def.ChildByFieldName("name"))
	if name == "" {
		w.warn(outer, "skipping function without a name")
		return nil
	}
	if IsTestName("python", name) {
		return nil
	}

	params := w.pyParameters(def.ChildByFieldName("parameters"))
	if method && len(params) > 0 && (params[0] == "self" || params[0] == "cls") {
		params = params[1:]
	}

	return &entity.Function{
		Decl:       w.decl(outer, name, w.pyDocstring(def.ChildByFieldName("body"))),
		Parameters: params,
		ReturnType: pyReturnType(w.text(def.ChildByFieldName("return_type"))),
	}
}

// pyParameters lists named parameters in order. Splat parameters and the
// bare * and / separators are omitted.
func (w *walker) pyParameters(list *sitter.Node) []string {
	if list == nil {
		return nil
	}
	var out []string
	for i := 0; i < int(list.NamedChildCount()); i++ {
		p := list.NamedChild(i)
		switch p.Type() {
		case "identifier":
			out = append(out, w.text(p))
		case "default_parameter", "typed_default_parameter":
			if n := p.ChildByFieldName("name"); n != nil && n.Type() == "identifier" {
				out = append(out, w.text(n))
			}
		case "typed_parameter":
			if p.NamedChildCount() > 0 && p.NamedChild(0).Type() == "identifier" {
				out = append(out, w.text(p.NamedChild(0)))
			}
		}
	}
	return out
}

// pyReturnType normalises an annotation as written. String annotations
// lose their quotes.
func pyReturnType(s string) string {
	s = collapseWhitespace(s)
	if len(s) >= 2 && (s[0] == '"' || s[0] == '\'') && s[len(s)-1] == s[0] {
		return s[1 : len(s)-1]
	}
	return s
}

// pyDocstring returns the leading string literal of a block, if any.
func (w *walker) pyDocstring(body *sitter.Node) string {
	if body == nil || body.NamedChildCount() == 0 {
		return ""
	}
	first := body.NamedChild(0)
	if first.Type() != "expression_statement" || first.NamedChildCount() == 0 {
		return ""
	}
	str := first.NamedChild(0)
	if str.Type() != "string" {
		return ""
	}
	return cleanDocstring(w.text(str))
}

func cleanDocstring(s string) string {
	s = strings.TrimLeft(s, "rRbBuUfF")
	for _, q := range []string{`"""`, `'''`, `"`, `'`} {
		if strings.HasPrefix(s, q) && strings.HasSuffix(s, q) && len(s) >= 2*len(q) {
			s = s[len(q) : len(s)-len(q)]
			break
		}
	}
	lines := strings.Split(strings.TrimSpace(s), "\n")
	for i := range lines {
		lines[i] = strings.TrimSpace(lines[i])
	}
	return strings.Join(lines, "\n")
}

// pyClass builds a Class and its methods. A malformed class header skips the
// class; a malformed method skips only that method.
func (w *walker) pyClass(def, outer *sitter.Node) *entity.Class {
	nameNode := def.ChildByFieldName("name")
	supers := def.ChildByFieldName("superclasses")
	if nameNode == nil || nameNode.HasError() || (supers != nil && supers.HasError()) {
		w.warn(outer, "skipping malformed class")
		return nil
	}
	name := w.text(nameNode)
	if IsTestName("python", name) {
		return nil
	}

	body := def.ChildByFieldName("body")
	cls := &entity.Class{
		Decl:  w.decl(outer, name, w.pyDocstring(body)),
		Bases: w.pyBases(supers),
	}
	if body == nil {
		return cls
	}
	for i := 0; i < int(body.NamedChildCount()); i++ {
		mdef, mouter := unwrapDecorated(body.NamedChild(i))
		switch mdef.Type() {
		case "function_definition":
			if m := w.pyFunction(mdef, mouter, true); m != nil {
				cls.Attach(m)
			}
		case "ERROR":
			w.warn(mdef, "skipping unparseable region in class %s", name)
		}
	}
	return cls
}

// pyBases returns positional base expressions; keyword arguments such as
// metaclass= are ignored.
func (w *walker) pyBases(list *sitter.Node) []string {
	if list == nil {
		return nil
	}
	var out []string
	for i := 0; i < int(list.NamedChildCount()); i++ {
		b := list.NamedChild(i)
		switch b.Type() {
		case "identifier", "attribute":
			out = append(out, w.text(b))
		case "subscript":
			out = append(out, collapseWhitespace(w.text(b)))
		}
	}
	return dedupe(out)
}
