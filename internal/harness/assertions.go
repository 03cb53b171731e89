package harness

import (
	"context"
	"fmt"
	"reflect"
	"strings"

	"github.com/cockroachdb/apd/v3"

	"github.com/roach88/relpop/internal/fetch"
	"github.com/roach88/relpop/internal/populate"
	"github.com/roach88/relpop/internal/relation"
)

// AssertionError is returned when an assertion fails.
// It includes the trace to help debug the failure.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
	Trace    []TraceEvent
}

func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nTrace:\n")
		for _, ev := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] step %d %s %s attempt %d: %s\n",
				ev.Seq, ev.Step, ev.Table, ev.Key, ev.Attempt, ev.Outcome)
		}
	}
	return buf.String()
}

// EvaluateAssertions evaluates all assertions against the harness database
// and trace. Returns a message per failed assertion.
func EvaluateAssertions(ctx context.Context, h *Harness, assertions []Assertion) []string {
	var msgs []string
	for i, a := range assertions {
		var err error
		switch a.Type {
		case AssertRowCount:
			err = h.assertRowCount(ctx, a)
		case AssertPending:
			err = h.assertPending(ctx, a)
		case AssertRows:
			err = h.assertRows(ctx, a)
		case AssertMakeCount:
			err = h.assertMakeCount(a)
		default:
			err = fmt.Errorf("unknown assertion type %q", a.Type)
		}
		if err != nil {
			msgs = append(msgs, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return msgs
}

// restricted returns the named table, restricted by where when given.
func (h *Harness) restricted(table string, where map[string]any) (relation.Relation, error) {
	t, ok := h.catalog.Table(table)
	if !ok {
		return nil, fmt.Errorf("unknown table %s", table)
	}
	if len(where) == 0 {
		return t, nil
	}
	p, err := predicateFor(where)
	if err != nil {
		return nil, fmt.Errorf("where: %w", err)
	}
	return relation.Restrict{Rel: t, Where: p}, nil
}

func (h *Harness) assertRowCount(ctx context.Context, a Assertion) error {
	rel, err := h.restricted(a.Table, a.Where)
	if err != nil {
		return err
	}
	n, err := h.store.Count(ctx, rel)
	if err != nil {
		return err
	}
	if n != a.Count {
		return &AssertionError{
			Type:     AssertRowCount,
			Expected: fmt.Sprintf("%d row(s) in %s%s", a.Count, a.Table, formatWhere(a.Where)),
			Actual:   fmt.Sprintf("%d row(s)", n),
			Trace:    h.result.Trace,
		}
	}
	return nil
}

func (h *Harness) assertPending(ctx context.Context, a Assertion) error {
	tbl, err := h.catalog.Auto(a.Table, h.store, h.makers)
	if err != nil {
		return err
	}
	p, err := populate.New(h.store, tbl)
	if err != nil {
		return err
	}
	var restriction relation.Predicate
	if len(a.Where) > 0 {
		if restriction, err = predicateFor(a.Where); err != nil {
			return fmt.Errorf("where: %w", err)
		}
	}
	keys, err := p.Pending(ctx, restriction)
	if err != nil {
		return err
	}
	if len(keys) != a.Count {
		pending := make([]string, len(keys))
		for i, k := range keys {
			pending[i] = k.String()
		}
		return &AssertionError{
			Type:     AssertPending,
			Expected: fmt.Sprintf("%d pending key(s) in %s%s", a.Count, a.Table, formatWhere(a.Where)),
			Actual:   fmt.Sprintf("%d: %s", len(keys), strings.Join(pending, " ")),
			Trace:    h.result.Trace,
		}
	}
	return nil
}

func (h *Harness) assertRows(ctx context.Context, a Assertion) error {
	rel, err := h.restricted(a.Table, a.Where)
	if err != nil {
		return err
	}
	records, err := fetch.New(h.store, rel).Fetch(ctx, relation.Projection{})
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return &AssertionError{
			Type:     AssertRows,
			Expected: fmt.Sprintf("rows in %s%s", a.Table, formatWhere(a.Where)),
			Actual:   "no rows",
			Trace:    h.result.Trace,
		}
	}
	for _, rec := range records {
		for name, want := range a.Expect {
			got, ok := rec.Get(name)
			if !ok {
				return fmt.Errorf("%s has no attribute %s", a.Table, name)
			}
			if !stateValuesEqual(want, got) {
				return &AssertionError{
					Type:     AssertRows,
					Expected: fmt.Sprintf("%s = %v in %s%s", name, want, a.Table, formatWhere(a.Where)),
					Actual:   fmt.Sprintf("%v in row %v", formatActual(got), rec.Map()),
					Trace:    h.result.Trace,
				}
			}
		}
	}
	return nil
}

func (h *Harness) assertMakeCount(a Assertion) error {
	match, err := toIRObject(a.Key)
	if err != nil {
		return fmt.Errorf("key: %w", err)
	}
	count := 0
	for _, ev := range h.result.Trace {
		if ev.Table != a.Table {
			continue
		}
		if matchKey(ev.key, match) {
			count++
		}
	}
	if count != a.Count {
		return &AssertionError{
			Type:     AssertMakeCount,
			Expected: fmt.Sprintf("%d call(s) for %s key %v", a.Count, a.Table, a.Key),
			Actual:   fmt.Sprintf("%d call(s)", count),
			Trace:    h.result.Trace,
		}
	}
	return nil
}

func formatWhere(where map[string]any) string {
	if len(where) == 0 {
		return ""
	}
	return fmt.Sprintf(" where %v", where)
}

func formatActual(v any) string {
	if d, ok := v.(*apd.Decimal); ok {
		return d.String()
	}
	return fmt.Sprintf("%v", v)
}

// stateValuesEqual compares an expected YAML value with a fetched value.
// Decimals compare numerically; integers compare across widths.
func stateValuesEqual(expected, actual any) bool {
	if expected == nil || actual == nil {
		return expected == nil && actual == nil
	}
	if d, ok := actual.(*apd.Decimal); ok {
		want, _, err := apd.NewFromString(fmt.Sprint(expected))
		return err == nil && want.Cmp(d) == 0
	}
	if f, ok := actual.(float64); ok {
		switch exp := expected.(type) {
		case float64:
			return exp == f
		case int:
			return float64(exp) == f
		}
		return false
	}
	return reflect.DeepEqual(normalize(expected), normalize(actual))
}

// normalize widens integers to int64 throughout nested lists and maps.
func normalize(v any) any {
	switch v := v.(type) {
	case int:
		return int64(v)
	case []any:
		out := make([]any, len(v))
		for i, e := range v {
			out[i] = normalize(e)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, e := range v {
			out[k] = normalize(e)
		}
		return out
	default:
		return v
	}
}
