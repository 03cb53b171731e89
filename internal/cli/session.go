package cli

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/cockroachdb/apd/v3"

	"github.com/roach88/relpop/internal/catalog"
	"github.com/roach88/relpop/internal/ir"
	"github.com/roach88/relpop/internal/relation"
	"github.com/roach88/relpop/internal/store"
)

// loadCatalog compiles the catalog in dir.
func loadCatalog(f *OutputFormatter, dir string) (*catalog.Catalog, error) {
	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return nil, fail(f, ExitCommandError, ErrCodeNotFound, fmt.Sprintf("catalog directory not found: %s", dir), nil)
	}
	if err == nil && !info.IsDir() {
		return nil, fail(f, ExitCommandError, ErrCodeNotFound, fmt.Sprintf("not a directory: %s", dir), nil)
	}
	files, err := catalog.FindCUEFiles(dir)
	if err != nil {
		return nil, fail(f, ExitCommandError, ErrCodeGeneric, "error scanning catalog directory", err)
	}
	if len(files) == 0 {
		return nil, fail(f, ExitCommandError, ErrCodeNoFiles, fmt.Sprintf("no CUE files found in %s", dir), nil)
	}

	c, err := catalog.Load(dir)
	if err != nil {
		return nil, fail(f, ExitCommandError, codeFor(err), "failed to load catalog", err)
	}
	f.VerboseLog("Loaded %d table(s) from %d file(s) in %s", len(c.Names()), len(files), dir)
	return c, nil
}

func openStore(f *OutputFormatter, path string) (*store.Store, error) {
	slog.Debug("opening database", "path", path)
	s, err := store.Open(path)
	if err != nil {
		return nil, fail(f, ExitCommandError, ErrCodeDatabase, "failed to open database", err)
	}
	return s, nil
}

func closeStore(s *store.Store) {
	if err := s.Close(); err != nil {
		slog.Error("error closing database", "error", err)
	}
}

func lookupTable(f *OutputFormatter, c *catalog.Catalog, name string) (relation.Table, error) {
	t, ok := c.Table(name)
	if !ok {
		return relation.Table{}, fail(f, ExitCommandError, ErrCodeUnknownTable,
			fmt.Sprintf("unknown table %s (have %s)", name, strings.Join(c.Names(), ", ")), nil)
	}
	return t, nil
}

// parseRestrictions turns "attr=value" flags into an equality predicate,
// typing each value by its attribute in h. Several flags are ANDed.
func parseRestrictions(h relation.Heading, specs []string) (relation.Predicate, error) {
	if len(specs) == 0 {
		return nil, nil
	}
	preds := make([]relation.Predicate, 0, len(specs))
	for _, spec := range specs {
		name, raw, ok := strings.Cut(spec, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("restriction %q must have the form \"attr=value\"", spec)
		}
		a, ok := h.Lookup(name)
		if !ok {
			return nil, fmt.Errorf("restriction %q: unknown attribute %s", spec, name)
		}
		v, err := parseValue(a, raw)
		if err != nil {
			return nil, fmt.Errorf("restriction %q: %w", spec, err)
		}
		preds = append(preds, relation.Equals{Attr: name, Value: v})
	}
	if len(preds) == 1 {
		return preds[0], nil
	}
	return relation.And{Predicates: preds}, nil
}

func parseValue(a relation.Attribute, raw string) (ir.IRValue, error) {
	switch a.Type {
	case relation.TypeInt:
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%s is an int attribute: %w", a.Name, err)
		}
		return ir.IRInt(n), nil
	case relation.TypeBool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, fmt.Errorf("%s is a bool attribute: %w", a.Name, err)
		}
		return ir.IRBool(b), nil
	case relation.TypeString, relation.TypeDate:
		return ir.IRString(raw), nil
	case relation.TypeDecimal:
		d, _, err := apd.NewFromString(strings.TrimSpace(raw))
		if err != nil || d.Form != apd.Finite {
			return nil, fmt.Errorf("%s is a decimal attribute: invalid value %q", a.Name, raw)
		}
		return ir.IRString(store.ReduceDecimal(d)), nil
	default:
		return nil, fmt.Errorf("cannot restrict on %s attribute %s", a.Type, a.Name)
	}
}
