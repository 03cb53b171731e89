package harness

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/roach88/relpop/internal/catalog"
	"github.com/roach88/relpop/internal/ir"
	"github.com/roach88/relpop/internal/populate"
	"github.com/roach88/relpop/internal/relation"
	"github.com/roach88/relpop/internal/store"
	"github.com/roach88/relpop/internal/testutil"
)

// Harness holds the state of one scenario run.
type Harness struct {
	store   *store.Store
	catalog *catalog.Catalog
	makers  catalog.Makers
	runIDs  *testutil.FixedRunID
	result  *Result
}

// Option configures a scenario run.
type Option func(*Harness)

// WithMakers replaces the maker registry. Defaults to catalog.DefaultMakers().
func WithMakers(m catalog.Makers) Option {
	return func(h *Harness) {
		h.makers = m
	}
}

// Run executes a scenario and returns the result.
//
// Each scenario runs against a fresh database in a temporary directory.
// The returned error reports a scenario that could not be run at all
// (unreadable catalog, bad setup rows); failed expectations and assertions
// are reported in the result.
func Run(ctx context.Context, scenario *Scenario, opts ...Option) (*Result, error) {
	c, err := catalog.Load(scenario.Catalog)
	if err != nil {
		return nil, fmt.Errorf("failed to load catalog: %w", err)
	}

	dir, err := os.MkdirTemp("", "relpop-scenario-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create scenario directory: %w", err)
	}
	defer os.RemoveAll(dir)

	st, err := store.Open(filepath.Join(dir, "scenario.db"))
	if err != nil {
		return nil, fmt.Errorf("failed to open scenario database: %w", err)
	}
	defer st.Close()

	h := &Harness{
		store:   st,
		catalog: c,
		makers:  catalog.DefaultMakers(),
		runIDs:  testutil.NewFixedRunID(scenario.RunID),
		result:  NewResult(),
	}
	for _, opt := range opts {
		opt(h)
	}

	for _, t := range c.Tables() {
		if err := st.Declare(ctx, t); err != nil {
			return nil, fmt.Errorf("failed to declare %s: %w", t.Name, err)
		}
	}
	if err := h.executeSetup(ctx, scenario.Setup); err != nil {
		return nil, fmt.Errorf("failed to execute setup: %w", err)
	}
	for i, step := range scenario.Steps {
		if err := h.executeStep(ctx, i, step); err != nil {
			return nil, fmt.Errorf("step %d: %w", i, err)
		}
	}

	for _, msg := range EvaluateAssertions(ctx, h, scenario.Assertions) {
		h.result.AddError(msg)
	}
	return h.result, nil
}

// executeSetup inserts the setup rows in dependency order, in one
// transaction.
func (h *Harness) executeSetup(ctx context.Context, setup map[string][]map[string]any) error {
	for name := range setup {
		if _, ok := h.catalog.Table(name); !ok {
			return fmt.Errorf("unknown table %s", name)
		}
	}
	if err := h.store.StartTransaction(ctx); err != nil {
		return err
	}
	for _, name := range h.catalog.Names() {
		rows, ok := setup[name]
		if !ok {
			continue
		}
		t, _ := h.catalog.Table(name)
		for i, row := range rows {
			if err := h.store.Insert(ctx, t, store.Row(row)); err != nil {
				_ = h.store.CancelTransaction(ctx)
				return fmt.Errorf("%s row %d: %w", name, i, err)
			}
		}
	}
	return h.store.CommitTransaction(ctx)
}

// executeStep runs one populate call with the step's scripted outcomes and
// checks its expectation.
func (h *Harness) executeStep(ctx context.Context, index int, step Step) error {
	script, err := newStepScript(step)
	if err != nil {
		return err
	}

	makers := make(catalog.Makers, len(h.makers))
	for name, mk := range h.makers {
		makers[name] = h.observe(index, step.Populate, script, mk)
	}
	tbl, err := h.catalog.Auto(step.Populate, h.store, makers)
	if err != nil {
		return err
	}
	p, err := populate.New(h.store, tbl, populate.WithRunIDGenerator(h.runIDs))
	if err != nil {
		return err
	}

	var popts []populate.PopulateOption
	if len(step.Restrict) > 0 {
		restriction, err := predicateFor(step.Restrict)
		if err != nil {
			return fmt.Errorf("restrict: %w", err)
		}
		popts = append(popts, populate.WithRestriction(restriction))
	}
	if step.SuppressErrors {
		popts = append(popts, populate.WithSuppressErrors())
	}
	if step.MaxAttempts > 0 {
		popts = append(popts, populate.WithMaxAttempts(step.MaxAttempts))
	}

	failures, runErr := p.Populate(ctx, popts...)

	sr := StepResult{Table: step.Populate}
	for _, e := range h.result.Trace {
		if e.Step == index && e.Outcome == OutcomeMade {
			sr.Made++
		}
	}
	for _, f := range failures {
		sr.Failed = append(sr.Failed, f.Key.String())
	}
	if runErr != nil {
		sr.Error = runErr.Error()
	}
	h.result.Steps = append(h.result.Steps, sr)

	h.checkExpect(index, step, sr)
	return nil
}

func (h *Harness) checkExpect(index int, step Step, sr StepResult) {
	exp := step.Expect
	if exp == nil {
		exp = &StepExpect{}
	}
	switch {
	case exp.Error == "" && sr.Error != "":
		h.result.AddError(fmt.Sprintf("steps[%d]: populate %s failed: %s", index, step.Populate, sr.Error))
	case exp.Error != "" && sr.Error == "":
		h.result.AddError(fmt.Sprintf("steps[%d]: expected populate %s to fail with %q, it completed", index, step.Populate, exp.Error))
	case exp.Error != "" && !strings.Contains(sr.Error, exp.Error):
		h.result.AddError(fmt.Sprintf("steps[%d]: expected error containing %q, got %q", index, exp.Error, sr.Error))
	}
	if exp.Made != nil && *exp.Made != sr.Made {
		h.result.AddError(fmt.Sprintf("steps[%d]: expected %d key(s) made, got %d", index, *exp.Made, sr.Made))
	}
	if exp.Failed != nil && *exp.Failed != len(sr.Failed) {
		h.result.AddError(fmt.Sprintf("steps[%d]: expected %d suppressed failure(s), got %d", index, *exp.Failed, len(sr.Failed)))
	}
}

// observe wraps a maker so that every call is scripted and traced.
func (h *Harness) observe(step int, table string, script *stepScript, mk catalog.MakerFunc) catalog.MakerFunc {
	return func(ctx context.Context, mc catalog.MakeContext, key ir.Key) error {
		id := key.String()
		script.attempts[id]++
		attempt := script.attempts[id]

		err := script.failure(key)
		if err == nil {
			err = mk(ctx, mc, key)
		}
		if err == nil && script.conflicts(key, attempt) {
			err = &testutil.Conflict{Op: "insert into " + table}
		}

		event := TraceEvent{Step: step, Table: table, Key: id, Attempt: attempt, Outcome: OutcomeMade, key: key}
		if err != nil {
			event.Error = err.Error()
			event.Outcome = OutcomeFailed
			if populate.Classify(err) == populate.OutcomeRetry {
				event.Outcome = OutcomeConflict
			}
		}
		h.result.addEvent(event)
		return err
	}
}

// stepScript holds the scripted outcomes of one step.
type stepScript struct {
	fail     []scriptedKey
	conflict []scriptedKey
	attempts map[string]int
}

type scriptedKey struct {
	match ir.IRObject
	times int
	err   error
}

func newStepScript(step Step) (*stepScript, error) {
	s := &stepScript{attempts: make(map[string]int)}
	for i, f := range step.Fail {
		match, err := toIRObject(f.Key)
		if err != nil {
			return nil, fmt.Errorf("fail[%d]: %w", i, err)
		}
		msg := f.Error
		if msg == "" {
			msg = "scripted failure"
		}
		s.fail = append(s.fail, scriptedKey{match: match, err: errors.New(msg)})
	}
	for i, c := range step.Conflict {
		match, err := toIRObject(c.Key)
		if err != nil {
			return nil, fmt.Errorf("conflict[%d]: %w", i, err)
		}
		s.conflict = append(s.conflict, scriptedKey{match: match, times: c.Times})
	}
	return s, nil
}

func (s *stepScript) failure(key ir.Key) error {
	for _, f := range s.fail {
		if matchKey(key, f.match) {
			return f.err
		}
	}
	return nil
}

func (s *stepScript) conflicts(key ir.Key, attempt int) bool {
	for _, c := range s.conflict {
		if matchKey(key, c.match) && (c.times == 0 || attempt <= c.times) {
			return true
		}
	}
	return false
}

// matchKey reports whether key has every field of want (subset match).
func matchKey(key ir.Key, want ir.IRObject) bool {
	for name, v := range want {
		got, ok := key.Get(name)
		if !ok || got != v {
			return false
		}
	}
	return true
}

// predicateFor builds an equality predicate from a YAML map, attributes in
// sorted order.
func predicateFor(where map[string]any) (relation.Predicate, error) {
	obj, err := toIRObject(where)
	if err != nil {
		return nil, err
	}
	preds := make([]relation.Predicate, 0, len(obj))
	for _, name := range obj.SortedKeys() {
		preds = append(preds, relation.Equals{Attr: name, Value: obj[name]})
	}
	if len(preds) == 1 {
		return preds[0], nil
	}
	return relation.And{Predicates: preds}, nil
}

// toIRObject converts YAML-parsed key values to IR scalars.
func toIRObject(m map[string]any) (ir.IRObject, error) {
	obj := make(ir.IRObject, len(m))
	for _, name := range slices.Sorted(maps.Keys(m)) {
		v, err := toIRValue(m[name])
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", name, err)
		}
		obj[name] = v
	}
	return obj, nil
}

// toIRValue converts a YAML-parsed scalar to an IRValue. Floats are accepted
// only when integral; they cannot identify a row.
func toIRValue(val any) (ir.IRValue, error) {
	switch v := val.(type) {
	case nil:
		return nil, fmt.Errorf("null is not a valid key value")
	case string:
		return ir.IRString(v), nil
	case int:
		return ir.IRInt(int64(v)), nil
	case int64:
		return ir.IRInt(v), nil
	case float64:
		if v == float64(int64(v)) {
			return ir.IRInt(int64(v)), nil
		}
		return nil, fmt.Errorf("floats are not valid key values: %v", v)
	case bool:
		return ir.IRBool(v), nil
	default:
		return nil, fmt.Errorf("unsupported key value type %T", val)
	}
}
