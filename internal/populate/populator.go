package populate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/roach88/relpop/internal/ir"
	"github.com/roach88/relpop/internal/relation"
)

// DefaultMaxAttempts bounds MakeTuples calls per key when every call hits a
// transaction conflict.
const DefaultMaxAttempts = 10

// TransactionController opens and closes the transaction a key is made in.
// CancelTransaction must be a no-op when no transaction is open.
type TransactionController interface {
	StartTransaction(ctx context.Context) error
	CommitTransaction(ctx context.Context) error
	CancelTransaction(ctx context.Context) error
}

// RelationalSource evaluates relations. Queries issued while a transaction is
// open run inside it.
type RelationalSource interface {
	// Keys lists the distinct primary keys of rel.
	Keys(ctx context.Context, rel relation.Relation) ([]ir.Key, error)

	// Contains reports whether t holds a row matching key.
	Contains(ctx context.Context, t relation.Table, key ir.Key) (bool, error)

	// Count returns the number of rows of rel.
	Count(ctx context.Context, rel relation.Relation) (int, error)
}

// Source is the session a Populator runs against. *store.Store implements it.
type Source interface {
	TransactionController
	RelationalSource
}

// Maker computes and inserts the rows for one key.
type Maker interface {
	// MakeTuples reads upstream rows restricted by key and inserts the
	// resulting rows into the target. It receives its own copy of the key.
	MakeTuples(ctx context.Context, key ir.Key) error
}

// Table is an auto-populated table.
type Table interface {
	Maker

	// Target is the table rows are inserted into.
	Target() relation.Table

	// PopulateRelation is the universe of keys the table is populated over,
	// usually the join of its dependencies.
	PopulateRelation() relation.Relation
}

// Populator populates one table from one source.
//
// A Populator is not safe for concurrent use; run concurrent populations
// from separate sources.
type Populator struct {
	src         Source
	table       Table
	target      relation.Table
	popRel      relation.Relation
	maxAttempts int
	runIDs      RunIDGenerator
}

// Option configures a Populator.
type Option func(*Populator)

// WithDefaultMaxAttempts sets the attempt bound used when Populate is called
// without WithMaxAttempts.
func WithDefaultMaxAttempts(n int) Option {
	return func(p *Populator) {
		p.maxAttempts = n
	}
}

// WithRunIDGenerator sets the run id generator (default UUIDv7Generator).
func WithRunIDGenerator(g RunIDGenerator) Option {
	return func(p *Populator) {
		p.runIDs = g
	}
}

// New creates a Populator. It fails with a configuration error, before
// touching the source, if a capability is missing or the populate relation
// cannot be resolved against the target.
func New(src Source, table Table, opts ...Option) (*Populator, error) {
	if table == nil {
		return nil, configError("", "table has no make-tuples capability", nil)
	}
	target := table.Target()
	if src == nil {
		return nil, configError(target.Name, "no relational source", nil)
	}
	if _, err := target.Heading(); err != nil {
		return nil, configError(target.Name, "invalid target", err)
	}
	popRel := table.PopulateRelation()
	if popRel == nil {
		return nil, configError(target.Name, "no populate relation", nil)
	}
	popHeading, err := popRel.Heading()
	if err != nil {
		return nil, configError(target.Name, "invalid populate relation", err)
	}
	if len(popHeading.KeyNames()) == 0 {
		return nil, configError(target.Name, "populate relation has no primary key", nil)
	}
	if _, err := (relation.Difference{Left: popRel, Right: target}).Heading(); err != nil {
		return nil, configError(target.Name, "populate relation is incompatible with target", err)
	}

	p := &Populator{
		src:         src,
		table:       table,
		target:      target,
		popRel:      popRel,
		maxAttempts: DefaultMaxAttempts,
		runIDs:      UUIDv7Generator{},
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.maxAttempts < 1 {
		return nil, configError(target.Name, fmt.Sprintf("max attempts must be at least 1, got %d", p.maxAttempts), nil)
	}
	return p, nil
}

// PopulateOption configures one Populate call.
type PopulateOption func(*populateConfig)

type populateConfig struct {
	restriction    relation.Predicate
	suppressErrors bool
	maxAttempts    int
	reserveJobs    bool
}

// WithRestriction limits population to keys of the populate relation
// satisfying p.
func WithRestriction(p relation.Predicate) PopulateOption {
	return func(c *populateConfig) {
		c.restriction = p
	}
}

// WithSuppressErrors records MakeTuples failures and keeps going instead of
// stopping at the first one.
func WithSuppressErrors() PopulateOption {
	return func(c *populateConfig) {
		c.suppressErrors = true
	}
}

// WithMaxAttempts bounds MakeTuples calls per key under repeated transaction
// conflicts.
func WithMaxAttempts(n int) PopulateOption {
	return func(c *populateConfig) {
		c.maxAttempts = n
	}
}

// WithReserveJobs requests cross-process job reservation. Reservation is not
// supported and Populate rejects it with a configuration error.
func WithReserveJobs() PopulateOption {
	return func(c *populateConfig) {
		c.reserveJobs = true
	}
}

// Target returns the table being populated.
func (p *Populator) Target() relation.Table {
	return p.target
}

// PopulateRelation returns the relation keys are drawn from.
func (p *Populator) PopulateRelation() relation.Relation {
	return p.popRel
}

// Populate calls MakeTuples for every unpopulated key.
//
// It returns the suppressed failures, an empty slice when there were none.
// On a fatal error it returns the failures suppressed so far together with
// the error; keys committed before the error stay populated.
func (p *Populator) Populate(ctx context.Context, opts ...PopulateOption) ([]ErrorRecord, error) {
	cfg := populateConfig{maxAttempts: p.maxAttempts}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.reserveJobs {
		return nil, configError(p.target.Name, "job reservation is not supported", nil)
	}
	if cfg.maxAttempts < 1 {
		return nil, configError(p.target.Name, fmt.Sprintf("max attempts must be at least 1, got %d", cfg.maxAttempts), nil)
	}
	unpopulated, err := p.unpopulated(cfg.restriction)
	if err != nil {
		return nil, err
	}

	log := slog.With("run", p.runIDs.Generate(), "table", p.target.Name)

	if err := p.src.CancelTransaction(ctx); err != nil {
		return nil, fmt.Errorf("populate %s: reset transaction: %w", p.target.Name, err)
	}

	keys, err := p.src.Keys(ctx, unpopulated)
	if err != nil {
		return nil, fmt.Errorf("populate %s: list unpopulated keys: %w", p.target.Name, err)
	}
	log.Info("populating", "keys", len(keys), "max_attempts", cfg.maxAttempts, "suppress_errors", cfg.suppressErrors)

	errs := []ErrorRecord{}
	var made, skipped int
	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			return errs, fmt.Errorf("populate %s: %w", p.target.Name, err)
		}

		ok, callbackErr, err := p.populateKey(ctx, log, key, cfg.maxAttempts)
		if err != nil {
			log.Error("population stopped", "key", key.String(), "error", err)
			return errs, err
		}
		switch {
		case callbackErr != nil && cfg.suppressErrors:
			log.Error("make tuples failed", "key", key.String(), "error", callbackErr)
			errs = append(errs, ErrorRecord{Key: key, Err: callbackErr})
		case callbackErr != nil:
			log.Error("make tuples failed", "key", key.String(), "error", callbackErr)
			return errs, fmt.Errorf("populate %s: key %s: %w", p.target.Name, key, callbackErr)
		case ok:
			made++
		default:
			skipped++
		}
	}

	log.Info("done populating", "made", made, "skipped", skipped, "errors", len(errs))
	return errs, nil
}

// populateKey processes one key in its own transaction.
//
// It returns made=true when the key was committed. A non-nil callbackErr is a
// MakeTuples failure whose transaction has been cancelled; a non-nil err is
// fatal for the run.
func (p *Populator) populateKey(ctx context.Context, log *slog.Logger, key ir.Key, maxAttempts int) (made bool, callbackErr error, err error) {
	if err := p.src.StartTransaction(ctx); err != nil {
		return false, nil, fmt.Errorf("populate %s: start transaction for %s: %w", p.target.Name, key, err)
	}

	present, err := p.src.Contains(ctx, p.target, key)
	if err != nil {
		return false, nil, p.abort(ctx, fmt.Errorf("populate %s: membership check for %s: %w", p.target.Name, key, err))
	}
	if present {
		log.Debug("already populated, skipping", "key", key.String())
		if err := p.src.CancelTransaction(ctx); err != nil {
			return false, nil, fmt.Errorf("populate %s: cancel transaction: %w", p.target.Name, err)
		}
		return false, nil, nil
	}

	log.Info("populating key", "key", key.String())
	for attempt := 1; ; attempt++ {
		mkErr := p.table.MakeTuples(ctx, key.Clone())
		if mkErr == nil {
			break
		}

		if Classify(mkErr) == OutcomeFatal {
			if err := p.src.CancelTransaction(ctx); err != nil {
				return false, nil, fmt.Errorf("populate %s: cancel transaction: %w", p.target.Name, errors.Join(err, mkErr))
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return false, nil, fmt.Errorf("populate %s: %w", p.target.Name, mkErr)
			}
			return false, mkErr, nil
		}

		var te TransactionError
		errors.As(mkErr, &te)
		log.Info("transaction conflict", "key", key.String(), "culprit", te.Culprit(), "attempt", attempt)

		if err := p.src.CancelTransaction(ctx); err != nil {
			return false, nil, fmt.Errorf("populate %s: cancel transaction: %w", p.target.Name, err)
		}
		if attempt >= maxAttempts {
			return false, nil, NewRetriesExhaustedError(p.target.Name, key, attempt, mkErr)
		}
		if err := te.Resolve(ctx); err != nil {
			return false, nil, fmt.Errorf("populate %s: resolve conflict in %s: %w", p.target.Name, te.Culprit(), err)
		}
		if err := p.src.StartTransaction(ctx); err != nil {
			return false, nil, fmt.Errorf("populate %s: restart transaction for %s: %w", p.target.Name, key, err)
		}
	}

	if err := p.src.CommitTransaction(ctx); err != nil {
		return false, nil, p.abort(ctx, fmt.Errorf("populate %s: commit %s: %w", p.target.Name, key, err))
	}
	return true, nil, nil
}

// abort cancels the open transaction after a fatal error. A failed cancel is
// joined to err.
func (p *Populator) abort(ctx context.Context, err error) error {
	if cerr := p.src.CancelTransaction(ctx); cerr != nil {
		return errors.Join(err, cerr)
	}
	return err
}

// unpopulated builds KeyOnly(Restrict(PopulateRelation - Target, restriction)).
func (p *Populator) unpopulated(restriction relation.Predicate) (relation.Relation, error) {
	var rel relation.Relation = relation.Difference{Left: p.popRel, Right: p.target}
	if restriction != nil {
		if err := relation.CheckPredicate(rel, restriction); err != nil {
			return nil, configError(p.target.Name, "invalid restriction", err)
		}
		rel = relation.Restrict{Rel: rel, Where: restriction}
	}
	return relation.KeyOnly(rel), nil
}

// Pending returns the keys Populate would process with the same restriction,
// without processing them.
func (p *Populator) Pending(ctx context.Context, restriction relation.Predicate) ([]ir.Key, error) {
	unpopulated, err := p.unpopulated(restriction)
	if err != nil {
		return nil, err
	}
	keys, err := p.src.Keys(ctx, unpopulated)
	if err != nil {
		return nil, fmt.Errorf("pending %s: %w", p.target.Name, err)
	}
	return keys, nil
}

// Progress reports how many keys of the restricted populate relation are
// still unpopulated, out of how many in total.
func (p *Populator) Progress(ctx context.Context, restriction relation.Predicate) (remaining, total int, err error) {
	unpopulated, err := p.unpopulated(restriction)
	if err != nil {
		return 0, 0, err
	}
	var universe relation.Relation = p.popRel
	if restriction != nil {
		universe = relation.Restrict{Rel: universe, Where: restriction}
	}

	total, err = p.src.Count(ctx, relation.KeyOnly(universe))
	if err != nil {
		return 0, 0, fmt.Errorf("progress %s: %w", p.target.Name, err)
	}
	remaining, err = p.src.Count(ctx, unpopulated)
	if err != nil {
		return 0, 0, fmt.Errorf("progress %s: %w", p.target.Name, err)
	}
	return remaining, total, nil
}
