package expr

import (
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
)

// Template is a compiled string template using ${...} interpolation, as in
// cache keys: "go-${target.os}-${hashFiles("go.sum")}".
type Template struct {
	src  string
	expr hclsyntax.Expression
}

func CompileTemplate(src string) (*Template, error) {
	e, diags := hclsyntax.ParseTemplate([]byte(src), "template", hcl.Pos{Line: 1, Column: 1})
	if diags.HasErrors() {
		return nil, fmt.Errorf("invalid template %q: %s", src, diags.Error())
	}
	return &Template{src: src, expr: e}, nil
}

func (t *Template) String() string { return t.src }

func (t *Template) Render(scope *Scope) (string, error) {
	v, diags := t.expr.Value(scope.evalContext())
	if diags.HasErrors() {
		return "", fmt.Errorf("rendering %q: %s", t.src, diags.Error())
	}
	v, err := convert.Convert(v, cty.String)
	if err != nil {
		return "", fmt.Errorf("rendering %q: %w", t.src, err)
	}
	if v.IsNull() || !v.IsKnown() {
		return "", fmt.Errorf("rendering %q: result is null or unknown", t.src)
	}
	return v.AsString(), nil
}

func (t *Template) References() []Reference {
	return references(t.expr)
}
