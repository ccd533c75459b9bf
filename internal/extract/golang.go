package extract

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"

	"github.com/dshills/testgap/internal/entity"
)

func goGrammar() *sitter.Language { return golang.GetLanguage() }

// walkGo extracts functions, struct types and methods. Methods are attached
// to a struct declared in the same file; the rest are reported as methods
// whose owner lives elsewhere in the package.
func walkGo(w *walker, root *sitter.Node) {
	var methods []*entity.Function
	byName := make(map[string]*entity.Class)

walk:
	for i := 0; i < int(root.NamedChildCount()); i++ {
		node := root.NamedChild(i)
		switch node.Type() {
		case "function_declaration":
			if fn := w.goFunction(node); fn != nil {
				w.res.Functions = append(w.res.Functions, fn)
			}
		case "method_declaration":
			if m := w.goMethod(node); m != nil {
				methods = append(methods, m)
			}
		case "type_declaration":
			for _, cls := range w.goStructs(node) {
				byName[cls.Name] = cls
				w.res.Classes = append(w.res.Classes, cls)
			}
		case "ERROR":
			if w.skip(node) {
				break walk
			}
		}
	}

	for _, m := range methods {
		if cls, ok := byName[m.OwnerName]; ok {
			cls.Attach(m)
			continue
		}
		m.Owner = w.file + "::" + m.OwnerName
		w.res.Functions = append(w.res.Functions, m)
	}
}

func (w *walker) goFunction(node *sitter.Node) *entity.Function {
	if node.HasError() {
		w.warn(node, "skipping malformed function")
		return nil
	}
	name := w.text(node.ChildByFieldName("name"))
	if name == "" || IsTestName("go", name) {
		return nil
	}
	return &entity.Function{
		Decl:       w.decl(node, name, w.goDoc(node)),
		Parameters: w.goParameters(node.ChildByFieldName("parameters")),
		ReturnType: collapseWhitespace(w.text(node.ChildByFieldName("result"))),
	}
}

func (w *walker) goMethod(node *sitter.Node) *entity.Function {
	if node.HasError() {
		w.warn(node, "skipping malformed method")
		return nil
	}
	name := w.text(node.ChildByFieldName("name"))
	recv := w.goReceiverType(node.ChildByFieldName("receiver"))
	if name == "" || recv == "" {
		w.warn(node, "skipping method without name or receiver")
		return nil
	}
	if IsTestName("go", name) {
		return nil
	}
	return &entity.Function{
		Decl:       w.decl(node, name, w.goDoc(node)),
		Parameters: w.goParameters(node.ChildByFieldName("parameters")),
		ReturnType: collapseWhitespace(w.text(node.ChildByFieldName("result"))),
		IsMethod:   true,
		OwnerName:  recv,
	}
}

// goReceiverType extracts the receiver type name, unwrapping pointers and
// type arguments.
func (w *walker) goReceiverType(list *sitter.Node) string {
	if list == nil {
		return ""
	}
	for i := 0; i < int(list.NamedChildCount()); i++ {
		param := list.NamedChild(i)
		if param.Type() != "parameter_declaration" {
			continue
		}
		return w.goTypeName(param.ChildByFieldName("type"))
	}
	return ""
}

func (w *walker) goTypeName(t *sitter.Node) string {
	for t != nil {
		switch t.Type() {
		case "type_identifier":
			return w.text(t)
		case "pointer_type":
			t = t.NamedChild(0)
		case "generic_type":
			t = t.ChildByFieldName("type")
		case "qualified_type":
			return w.text(t.ChildByFieldName("name"))
		default:
			return ""
		}
	}
	return ""
}

// goParameters lists parameter names in order; unnamed parameters are
// recorded as "_".
func (w *walker) goParameters(list *sitter.Node) []string {
	if list == nil {
		return nil
	}
	var out []string
	for i := 0; i < int(list.NamedChildCount()); i++ {
		p := list.NamedChild(i)
		if p.Type() != "parameter_declaration" && p.Type() != "variadic_parameter_declaration" {
			continue
		}
		named := false
		for j := 0; j < int(p.NamedChildCount()); j++ {
			c := p.NamedChild(j)
			if c.Type() == "identifier" {
				out = append(out, w.text(c))
				named = true
			}
		}
		if !named {
			out = append(out, "_")
		}
	}
	return out
}

// goStructs returns the struct types declared by a type_declaration. A
// single-spec declaration records the whole declaration as its span so the
// doc comment and "type" keyword are included.
func (w *walker) goStructs(node *sitter.Node) []*entity.Class {
	var specs []*sitter.Node
	for i := 0; i < int(node.NamedChildCount()); i++ {
		if s := node.NamedChild(i); s.Type() == "type_spec" {
			specs = append(specs, s)
		}
	}

	var out []*entity.Class
	for _, spec := range specs {
		typ := spec.ChildByFieldName("type")
		if typ == nil || typ.Type() != "struct_type" {
			continue
		}
		if spec.HasError() {
			w.warn(spec, "skipping malformed struct")
			continue
		}
		name := w.text(spec.ChildByFieldName("name"))
		if name == "" || IsTestName("go", name) {
			continue
		}
		span, doc := spec, w.goDoc(spec)
		if len(specs) == 1 {
			span, doc = node, w.goDoc(node)
		}
		out = append(out, &entity.Class{
			Decl:  w.decl(span, name, doc),
			Bases: w.goEmbedded(typ),
		})
	}
	return out
}

// goEmbedded returns the embedded field types of a struct, which play the
// role of base types.
func (w *walker) goEmbedded(st *sitter.Node) []string {
	var out []string
	for i := 0; i < int(st.NamedChildCount()); i++ {
		list := st.NamedChild(i)
		if list.Type() != "field_declaration_list" {
			continue
		}
		for j := 0; j < int(list.NamedChildCount()); j++ {
			field := list.NamedChild(j)
			if field.Type() != "field_declaration" || field.ChildByFieldName("name") != nil {
				continue
			}
			t := field.ChildByFieldName("type")
			if t == nil {
				continue
			}
			out = append(out, strings.TrimPrefix(collapseWhitespace(w.text(t)), "*"))
		}
	}
	return dedupe(out)
}

// goDoc collects the contiguous // comment lines directly above n.
func (w *walker) goDoc(n *sitter.Node) string {
	var lines []string
	next := int(n.StartPoint().Row)
	for c := n.PrevSibling(); c != nil && c.Type() == "comment"; c = c.PrevSibling() {
		if int(c.EndPoint().Row) != next-1 {
			break
		}
		text := w.text(c)
		if !strings.HasPrefix(text, "//") {
			break
		}
		lines = append([]string{strings.TrimSpace(strings.TrimPrefix(text, "//"))}, lines...)
		next = int(c.StartPoint().Row)
	}
	return strings.Join(lines, "\n")
}
