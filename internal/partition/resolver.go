package partition

import (
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"path"
	"slices"
	"strings"
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/turbot/tailwriter/internal/constants"
	"github.com/turbot/tailwriter/internal/record"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
)

// the root variable giving templates access to record fields, e.g. ${record.host}
const recordVariable = "record"

/*
Resolver evaluates a directory template for a record.

Templates use HCL template syntax. The following are available:

	${YYYY} ${YY} ${MM} ${DD} ${hh} ${mm} ${ss}   components of the record time
	${record.<name>}, ${record["<name>"]}         record fields
	${field("<name>")}                            record fields by arbitrary name
	${every(<n>, mm)}                             group a time component into steps of n
	${lower(x)} ${upper(x)} ${format(...)} ${replace(x, a, b)} ${trim(x)}

For example "/data/${YYYY}/${MM}/${DD}/${record.region}" partitions by day and region.

The record time is the stage time passed to Resolve, unless a time field has been configured. If the
time field of a record is missing or cannot be parsed, the record is routed to the fallback directory.

Resolve is a pure function of the template, the record and the stage time.
*/
type Resolver struct {
	template    string
	expr        hclsyntax.Expression
	granularity granularity
	location    *time.Location
	timeField   string
	fallbackDir string
	// record fields referenced through the record variable; nil when the whole record is referenced
	fieldRefs []string
}

type ResolverOption func(*Resolver) error

// WithTimeField takes the record time from the given field rather than the stage time
func WithTimeField(field string) ResolverOption {
	return func(r *Resolver) error {
		r.timeField = field
		return nil
	}
}

func WithLocation(loc *time.Location) ResolverOption {
	return func(r *Resolver) error {
		if loc == nil {
			return errors.New("location must not be nil")
		}
		r.location = loc
		return nil
	}
}

func WithFallbackDir(dir string) ResolverOption {
	return func(r *Resolver) error {
		if dir == "" {
			return nil
		}
		clean, err := cleanDir(dir)
		if err != nil {
			return fmt.Errorf("invalid fallback dir: %w", err)
		}
		r.fallbackDir = clean
		return nil
	}
}

// NewResolver parses and validates a template. Any error returned is a configuration error.
func NewResolver(template string, opts ...ResolverOption) (*Resolver, error) {
	if strings.TrimSpace(template) == "" {
		return nil, errors.New("directory template must not be empty")
	}
	expr, diags := hclsyntax.ParseTemplate([]byte(template), "dir_template", hcl.InitialPos)
	if diags.HasErrors() {
		return nil, fmt.Errorf("invalid directory template %q: %w", template, diags)
	}
	r := &Resolver{
		template: template,
		expr:     expr,
		location: time.UTC,
	}
	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, err
		}
	}
	if r.fallbackDir == "" {
		r.fallbackDir = DefaultFallbackDir(template)
	}

	g, err := templateGranularity(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid directory template %q: %w", template, err)
	}
	r.granularity = g
	r.fieldRefs = fieldReferences(expr)

	// evaluate once with unknown record fields to surface unknown functions and malformed calls
	if err := r.validate(); err != nil {
		return nil, fmt.Errorf("invalid directory template %q: %w", template, err)
	}
	return r, nil
}

func (r *Resolver) Template() string {
	return r.template
}

func (r *Resolver) FallbackDir() string {
	return r.fallbackDir
}

// Resolve returns the partition key for a record
func (r *Resolver) Resolve(rec *record.Record, stageTime time.Time) (Key, error) {
	t := stageTime
	if r.timeField != "" {
		eventTime, err := rec.TimeOf(r.timeField)
		if err != nil {
			slog.Debug("partition.Resolver: no usable record time, using fallback dir", "fallback", r.fallbackDir, "error", err)
			return Key{Dir: r.fallbackDir, Fallback: true}, nil
		}
		t = eventTime
	}
	t = t.In(r.location)

	fields, err := r.recordFields(rec)
	if err != nil {
		return Key{}, NewTemplateError(r.template, err)
	}
	dir, err := r.evaluate(t, fields, fieldLookup(rec))
	if err != nil {
		return Key{}, NewTemplateError(r.template, err)
	}
	return Key{Dir: dir, Bucket: r.granularity.bucket(t)}, nil
}

func (r *Resolver) evaluate(t time.Time, fields map[string]cty.Value, lookup fieldLookupFunc) (string, error) {
	var recordVal cty.Value
	if fields == nil {
		recordVal = cty.DynamicVal
	} else if len(fields) == 0 {
		recordVal = cty.EmptyObjectVal
	} else {
		recordVal = cty.ObjectVal(fields)
	}
	if lookup == nil {
		lookup = func(string) (cty.Value, bool, error) {
			return cty.DynamicVal, true, nil
		}
	}

	vars := timeValues(t)
	vars[recordVariable] = recordVal
	ctx := &hcl.EvalContext{
		Variables: vars,
		Functions: templateFunctions(fieldFunc(lookup)),
	}

	val, diags := r.expr.Value(ctx)
	if diags.HasErrors() {
		return "", diags
	}
	if !val.IsWhollyKnown() {
		// only possible when validating
		return "", nil
	}
	if val.IsNull() {
		return "", errors.New("template resolved to null")
	}
	str, err := convert.Convert(val, cty.String)
	if err != nil {
		return "", fmt.Errorf("template did not resolve to a string: %w", err)
	}
	return cleanDir(str.AsString())
}

func (r *Resolver) validate() error {
	_, err := r.evaluate(time.Unix(0, 0).In(r.location), nil, nil)
	return err
}

func timeValues(t time.Time) map[string]cty.Value {
	return map[string]cty.Value{
		"YYYY": cty.StringVal(t.Format("2006")),
		"YY":   cty.StringVal(t.Format("06")),
		"MM":   cty.StringVal(t.Format("01")),
		"DD":   cty.StringVal(t.Format("02")),
		"hh":   cty.StringVal(t.Format("15")),
		"mm":   cty.StringVal(t.Format("04")),
		"ss":   cty.StringVal(t.Format("05")),
	}
}

// recordFields converts the record fields the template references. Fields the template never uses
// are not converted, so their values cannot affect routing.
func (r *Resolver) recordFields(rec *record.Record) (map[string]cty.Value, error) {
	if r.fieldRefs == nil {
		res := make(map[string]cty.Value, rec.Len())
		for _, f := range rec.Fields() {
			v, err := toCtyValue(f.Value)
			if err != nil {
				return nil, fmt.Errorf("field %q: %w", f.Name, err)
			}
			res[f.Name] = v
		}
		return res, nil
	}
	res := make(map[string]cty.Value, len(r.fieldRefs))
	for _, name := range r.fieldRefs {
		fv, ok := rec.Get(name)
		if !ok {
			continue
		}
		v, err := toCtyValue(fv)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", name, err)
		}
		res[name] = v
	}
	return res, nil
}

type fieldLookupFunc func(name string) (cty.Value, bool, error)

// fieldLookup converts a single field on demand, for field() calls
func fieldLookup(rec *record.Record) fieldLookupFunc {
	return func(name string) (cty.Value, bool, error) {
		fv, ok := rec.Get(name)
		if !ok {
			return cty.NilVal, false, nil
		}
		v, err := toCtyValue(fv)
		return v, true, err
	}
}

// fieldReferences lists the field names the template reads through the record variable. It returns nil
// when the record is referenced as a whole or through a computed index.
func fieldReferences(expr hclsyntax.Expression) []string {
	refs := []string{}
	for _, traversal := range expr.Variables() {
		if traversal.RootName() != recordVariable {
			continue
		}
		if len(traversal) < 2 {
			return nil
		}
		switch step := traversal[1].(type) {
		case hcl.TraverseAttr:
			refs = append(refs, step.Name)
		case hcl.TraverseIndex:
			if step.Key.Type() != cty.String || !step.Key.IsKnown() || step.Key.IsNull() {
				return nil
			}
			refs = append(refs, step.Key.AsString())
		default:
			return nil
		}
	}
	slices.Sort(refs)
	return slices.Compact(refs)
}

// templateGranularity finds the finest time variable referenced by the template, and any every() step
// applied to it. Unknown variables are rejected.
func templateGranularity(expr hclsyntax.Expression) (granularity, error) {
	var g granularity
	for _, traversal := range expr.Variables() {
		name := traversal.RootName()
		if name == recordVariable {
			continue
		}
		unit, ok := timeVariables[name]
		if !ok {
			allowed := append(slices.Sorted(maps.Keys(timeVariables)), recordVariable)
			return granularity{}, fmt.Errorf("unknown variable %q (available: %s)", name, strings.Join(allowed, ", "))
		}
		if unit > g.unit {
			g.unit = unit
		}
	}

	steps := map[timeUnit]int{}
	diags := hclsyntax.VisitAll(expr, func(node hclsyntax.Node) hcl.Diagnostics {
		call, ok := node.(*hclsyntax.FunctionCallExpr)
		if !ok || call.Name != "every" {
			return nil
		}
		unit, step, err := everyStep(call)
		if err != nil {
			return hcl.Diagnostics{{
				Severity: hcl.DiagError,
				Summary:  "Invalid every() call",
				Detail:   err.Error(),
				Subject:  call.Range().Ptr(),
			}}
		}
		if existing, ok := steps[unit]; ok && existing != step {
			return hcl.Diagnostics{{
				Severity: hcl.DiagError,
				Summary:  "Inconsistent every() calls",
				Detail:   fmt.Sprintf("the same time variable is grouped by both %d and %d", existing, step),
				Subject:  call.Range().Ptr(),
			}}
		}
		steps[unit] = step
		return nil
	})
	if diags.HasErrors() {
		return granularity{}, diags
	}
	g.step = steps[g.unit]
	return g, nil
}

func everyStep(call *hclsyntax.FunctionCallExpr) (timeUnit, int, error) {
	if len(call.Args) != 2 {
		return unitNone, 0, fmt.Errorf("every() takes 2 arguments, got %d", len(call.Args))
	}
	lit, ok := call.Args[0].(*hclsyntax.LiteralValueExpr)
	if !ok || !lit.Val.Type().Equals(cty.Number) {
		return unitNone, 0, errors.New("the first argument of every() must be a literal number")
	}
	n, acc := lit.Val.AsBigFloat().Int64()
	if acc != 0 || n < 1 {
		return unitNone, 0, errors.New("the first argument of every() must be a positive integer")
	}
	ref, ok := call.Args[1].(*hclsyntax.ScopeTraversalExpr)
	if !ok {
		return unitNone, 0, errors.New("the second argument of every() must be one of hh, mm or ss")
	}
	name := ref.Traversal.RootName()
	limit, ok := steppableVariables[name]
	if !ok {
		return unitNone, 0, fmt.Errorf("every() cannot be applied to %q, only to hh, mm or ss", name)
	}
	if int(n) > limit {
		return unitNone, 0, fmt.Errorf("every(%d, %s): step exceeds %d", n, name, limit)
	}
	return timeVariables[name], int(n), nil
}

func cleanDir(dir string) (string, error) {
	if strings.TrimSpace(dir) == "" {
		return "", errors.New("resolved to an empty path")
	}
	for _, part := range strings.Split(dir, "/") {
		if part == ".." {
			return "", fmt.Errorf("path %q must not contain '..'", dir)
		}
		if strings.HasPrefix(part, constants.TempFilePrefix) {
			return "", fmt.Errorf("path %q must not contain a segment starting with %q", dir, constants.TempFilePrefix)
		}
	}
	return path.Clean(dir), nil
}

// StaticDir returns the static directory prefix of a template, i.e. the directory containing the part
// before the first interpolation. Every partition of the template is below it.
func StaticDir(template string) string {
	i := strings.Index(template, "${")
	if i < 0 {
		return path.Clean(template)
	}
	prefix := template[:i]
	// append a placeholder so that path.Dir drops a trailing partial segment, e.g. "/data/day-"
	return path.Dir(prefix + "x")
}

// DefaultFallbackDir returns the fallback directory for a template: FallbackDirName below its StaticDir
func DefaultFallbackDir(template string) string {
	return path.Join(StaticDir(template), constants.FallbackDirName)
}
