// Package entity defines the structural model extracted from source files:
// functions, classes and the methods they own.
package entity

import "fmt"

// Span is a 1-indexed, inclusive line range.
type Span struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Valid reports whether the span is well formed.
func (s Span) Valid() bool {
	return s.Start >= 1 && s.Start <= s.End
}

func (s Span) String() string {
	return fmt.Sprintf("%d-%d", s.Start, s.End)
}

// Decl holds the fields shared by every extracted declaration.
type Decl struct {
	File     string // repo-relative, forward slashes
	Name     string // short name as declared
	Language string
	Span     Span
	Text     string // verbatim source for Span
	Doc      string // leading doc comment or docstring, may be empty
}

// Entity is implemented by *Function and *Class only.
type Entity interface {
	QualifiedName() string
	Declaration() Decl
	isEntity()
}

// Function is a top-level function or a method owned by a class.
type Function struct {
	Decl
	Parameters []string // receiver excluded for methods
	ReturnType string   // as written; empty when absent
	IsMethod   bool
	OwnerName  string // short class name, set iff IsMethod
	Owner      string // qualified name of the owning class, set iff IsMethod
}

// QualifiedName returns path::name or path::Class.method.
func (f *Function) QualifiedName() string {
	if f.IsMethod {
		return f.File + "::" + f.OwnerName + "." + f.Name
	}
	return f.File + "::" + f.Name
}

func (f *Function) Declaration() Decl { return f.Decl }

func (f *Function) isEntity() {}

// Class is a class (Python) or named struct type (Go) with its methods.
type Class struct {
	Decl
	Bases   []string // declared order, de-duplicated, unresolved
	Methods []*Function
}

func (c *Class) QualifiedName() string {
	return c.File + "::" + c.Name
}

func (c *Class) Declaration() Decl { return c.Decl }

func (c *Class) isEntity() {}

// Attach records m as a method of c and sets its owner fields.
func (c *Class) Attach(m *Function) {
	m.IsMethod = true
	m.OwnerName = c.Name
	m.Owner = c.QualifiedName()
	c.Methods = append(c.Methods, m)
}

// Kind is the structural category a test targets.
type Kind int

const (
	KindFunction Kind = iota
	KindMethod
	KindClass
)

func (k Kind) String() string {
	switch k {
	case KindFunction:
		return "function"
	case KindMethod:
		return "method"
	case KindClass:
		return "class"
	default:
		return "unknown"
	}
}

// ParseKind converts "function", "method" or "class" to a Kind.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "function":
		return KindFunction, nil
	case "method":
		return KindMethod, nil
	case "class":
		return KindClass, nil
	}
	return 0, fmt.Errorf("entity: unknown kind %q", s)
}

// Target is the closed set of things a test can be generated for.
// Implementations: FunctionTarget, MethodTarget, ClassTarget.
type Target interface {
	Kind() Kind
	Entity() Entity
	isTarget()
}

// FunctionTarget is a free function.
type FunctionTarget struct {
	Fn *Function
}

func (t FunctionTarget) Kind() Kind { return KindFunction }
func (t FunctionTarget) Entity() Entity { return t.Fn }
func (FunctionTarget) isTarget() {}

// MethodTarget is a method together with the short name of its class.
type MethodTarget struct {
	Fn        *Function
	ClassName string
}

func (t MethodTarget) Kind() Kind { return KindMethod }
func (t MethodTarget) Entity() Entity { return t.Fn }
func (MethodTarget) isTarget() {}

// ClassTarget is a class under test.
type ClassTarget struct {
	Class *Class
}

func (t ClassTarget) Kind() Kind { return KindClass }
func (t ClassTarget) Entity() Entity { return t.Class }
func (ClassTarget) isTarget() {}

// TargetFor wraps e in the matching Target variant.
func TargetFor(e Entity) Target {
	switch v := e.(type) {
	case *Function:
		if v.IsMethod {
			return MethodTarget{Fn: v, ClassName: v.OwnerName}
		}
		return FunctionTarget{Fn: v}
	case *Class:
		return ClassTarget{Class: v}
	}
	return nil
}
