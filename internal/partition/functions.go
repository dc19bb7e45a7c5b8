package partition

import (
	"fmt"
	"strconv"

	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
	"github.com/zclconf/go-cty/cty/function"
	"github.com/zclconf/go-cty/cty/function/stdlib"
)

// everyFunc groups a time variable into steps of n, e.g. every(15, mm) turns minute "37" into "30"
var everyFunc = function.New(&function.Spec{
	Params: []function.Parameter{
		{Name: "n", Type: cty.Number},
		{Name: "value", Type: cty.String},
	},
	Type: function.StaticReturnType(cty.String),
	Impl: func(args []cty.Value, _ cty.Type) (cty.Value, error) {
		n, _ := args[0].AsBigFloat().Int64()
		if n < 1 {
			return cty.NilVal, fmt.Errorf("every: step must be a positive integer, got %d", n)
		}
		s := args[1].AsString()
		v, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return cty.NilVal, fmt.Errorf("every: %q is not a number", s)
		}
		return cty.StringVal(fmt.Sprintf("%0*d", len(s), v/n*n)), nil
	},
})

// fieldFunc returns a function resolving a record field by name. This allows access to fields whose
// names are not valid identifiers, e.g. field("/geo/country").
func fieldFunc(lookup fieldLookupFunc) function.Function {
	return function.New(&function.Spec{
		Params: []function.Parameter{
			{Name: "name", Type: cty.String},
		},
		Type: function.StaticReturnType(cty.String),
		Impl: func(args []cty.Value, _ cty.Type) (cty.Value, error) {
			name := args[0].AsString()
			v, ok, err := lookup(name)
			if err != nil {
				return cty.NilVal, fmt.Errorf("field %q: %w", name, err)
			}
			if !ok {
				return cty.NilVal, fmt.Errorf("record has no field %q", name)
			}
			if !v.IsKnown() {
				return cty.UnknownVal(cty.String), nil
			}
			if v.IsNull() {
				return cty.NilVal, fmt.Errorf("field %q is null", name)
			}
			s, err := convert.Convert(v, cty.String)
			if err != nil {
				return cty.NilVal, fmt.Errorf("field %q cannot be used in a path: %w", name, err)
			}
			return s, nil
		},
	})
}

func templateFunctions(field function.Function) map[string]function.Function {
	return map[string]function.Function{
		"every":   everyFunc,
		"field":   field,
		"lower":   stdlib.LowerFunc,
		"upper":   stdlib.UpperFunc,
		"format":  stdlib.FormatFunc,
		"replace": stdlib.ReplaceFunc,
		"trim":    stdlib.TrimSpaceFunc,
	}
}
