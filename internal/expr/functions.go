package expr

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/graceinfra/shipyard/internal/fsutil"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function"
)

// MatchesFunc reports whether a string matches a glob where "*" also spans
// "/" separators, so matches(ref, "refs/tags/v*") holds for "refs/tags/v1.2/rc".
var MatchesFunc = function.New(&function.Spec{
	Params: []function.Parameter{
		{Name: "str", Type: cty.String},
		{Name: "pattern", Type: cty.String},
	},
	Type: function.StaticReturnType(cty.Bool),
	Impl: func(args []cty.Value, _ cty.Type) (cty.Value, error) {
		re, err := globRegexp(args[1].AsString())
		if err != nil {
			return cty.UnknownVal(cty.Bool), err
		}
		return cty.BoolVal(re.MatchString(args[0].AsString())), nil
	},
})

var StartsWithFunc = stringPairFunc(strings.HasPrefix)

var EndsWithFunc = stringPairFunc(strings.HasSuffix)

var ContainsFunc = stringPairFunc(strings.Contains)

func stringPairFunc(fn func(s, sub string) bool) function.Function {
	return function.New(&function.Spec{
		Params: []function.Parameter{
			{Name: "str", Type: cty.String},
			{Name: "other", Type: cty.String},
		},
		Type: function.StaticReturnType(cty.Bool),
		Impl: func(args []cty.Value, _ cty.Type) (cty.Value, error) {
			return cty.BoolVal(fn(args[0].AsString(), args[1].AsString())), nil
		},
	})
}

func constBoolFunc(v bool) function.Function {
	return function.New(&function.Spec{
		Params: []function.Parameter{},
		Type:   function.StaticReturnType(cty.Bool),
		Impl: func(_ []cty.Value, _ cty.Type) (cty.Value, error) {
			return cty.BoolVal(v), nil
		},
	})
}

// hashFilesFunc returns a sha256 fingerprint over the files matched by the
// given patterns under root, or "" when nothing matches.
func hashFilesFunc(root string) function.Function {
	return function.New(&function.Spec{
		Params: []function.Parameter{},
		VarParam: &function.Parameter{
			Name: "patterns",
			Type: cty.String,
		},
		Type: function.StaticReturnType(cty.String),
		Impl: func(args []cty.Value, _ cty.Type) (cty.Value, error) {
			if root == "" {
				return cty.UnknownVal(cty.String), fmt.Errorf("hashFiles is not available in this context")
			}
			patterns := make([]string, 0, len(args))
			for _, a := range args {
				patterns = append(patterns, a.AsString())
			}
			sum, err := HashFiles(root, patterns)
			if err != nil {
				return cty.UnknownVal(cty.String), err
			}
			return cty.StringVal(sum), nil
		},
	})
}

// HashFiles fingerprints the files matched by patterns under root. Each file
// contributes the sha256 of its content, in sorted path order.
func HashFiles(root string, patterns []string) (string, error) {
	files, err := fsutil.Glob(root, patterns)
	if err != nil {
		return "", err
	}
	if len(files) == 0 {
		return "", nil
	}

	h := sha256.New()
	for _, rel := range files {
		data, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(rel)))
		if err != nil {
			return "", fmt.Errorf("hashFiles: %w", err)
		}
		sum := sha256.Sum256(data)
		h.Write(sum[:])
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func globRegexp(pattern string) (*regexp.Regexp, error) {
	var b strings.Builder
	b.WriteString("^")
	for _, r := range pattern {
		switch r {
		case '*':
			b.WriteString(".*")
		case '?':
			b.WriteString(".")
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	b.WriteString("$")
	return regexp.Compile(b.String())
}
