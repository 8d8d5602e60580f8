package expr

import (
	"fmt"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
)

// DefaultPredicate is what an empty step condition means.
const DefaultPredicate = "success()"

// Predicate is a compiled boolean expression.
type Predicate struct {
	src  string
	expr hclsyntax.Expression
}

// CompilePredicate parses src. An empty source compiles to DefaultPredicate.
func CompilePredicate(src string) (*Predicate, error) {
	src = strings.TrimSpace(src)
	if src == "" {
		src = DefaultPredicate
	}
	e, diags := hclsyntax.ParseExpression([]byte(src), "predicate", hcl.Pos{Line: 1, Column: 1})
	if diags.HasErrors() {
		return nil, fmt.Errorf("invalid expression %q: %s", src, diags.Error())
	}
	return &Predicate{src: src, expr: e}, nil
}

// MustCompilePredicate is like CompilePredicate but panics on error.
func MustCompilePredicate(src string) *Predicate {
	p, err := CompilePredicate(src)
	if err != nil {
		panic(err)
	}
	return p
}

func (p *Predicate) String() string { return p.src }

// Eval evaluates the predicate. The result must be a known bool.
func (p *Predicate) Eval(scope *Scope) (bool, error) {
	v, diags := p.expr.Value(scope.evalContext())
	if diags.HasErrors() {
		return false, fmt.Errorf("evaluating %q: %s", p.src, diags.Error())
	}
	v, err := convert.Convert(v, cty.Bool)
	if err != nil {
		return false, fmt.Errorf("evaluating %q: result is not a bool: %w", p.src, err)
	}
	if v.IsNull() || !v.IsKnown() {
		return false, fmt.Errorf("evaluating %q: result is null or unknown", p.src)
	}
	return v.True(), nil
}

// UsesStatusFunc reports whether the predicate calls success(), failure() or
// always(). Conditions that do not are implicitly guarded by success().
func (p *Predicate) UsesStatusFunc() bool {
	found := false
	hclsyntax.VisitAll(p.expr, func(n hclsyntax.Node) hcl.Diagnostics {
		if call, ok := n.(*hclsyntax.FunctionCallExpr); ok {
			switch call.Name {
			case "success", "failure", "always":
				found = true
			}
		}
		return nil
	})
	return found
}

// References returns the root.attr pairs of every variable traversal in the
// expression, e.g. "steps.build" or "optional.signing".
func (p *Predicate) References() []Reference {
	return references(p.expr)
}

// Reference is a variable traversal rooted at a scope name.
type Reference struct {
	Root string
	Attr string
	Pos  hcl.Pos
}

func (r Reference) String() string {
	if r.Attr == "" {
		return r.Root
	}
	return r.Root + "." + r.Attr
}

func references(e hclsyntax.Expression) []Reference {
	var refs []Reference
	for _, tr := range e.Variables() {
		ref := Reference{Root: tr.RootName(), Pos: tr.SourceRange().Start}
		if len(tr) > 1 {
			switch step := tr[1].(type) {
			case hcl.TraverseAttr:
				ref.Attr = step.Name
			case hcl.TraverseIndex:
				if step.Key.Type() == cty.String {
					ref.Attr = step.Key.AsString()
				}
			}
		}
		refs = append(refs, ref)
	}
	return refs
}
