package catalog

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"slices"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"

	"github.com/roach88/relpop/internal/relation"
)

// Tier classifies how a table gets its rows.
type Tier string

const (
	TierManual   Tier = "manual"
	TierLookup   Tier = "lookup"
	TierImported Tier = "imported"
	TierComputed Tier = "computed"
)

// Auto reports whether tables of this tier are populated by a maker.
func (t Tier) Auto() bool {
	return t == TierImported || t == TierComputed
}

var tableName = regexp.MustCompile(`^[A-Z][A-Za-z0-9_]*$`)

// TableDecl is one compiled table declaration.
type TableDecl struct {
	Name    string
	Tier    Tier
	Depends []string
	Make    string
	Comment string

	// Table is the resolved table, with inherited key attributes first.
	Table relation.Table

	own []relation.Attribute
	pos token.Pos
}

// Catalog is a set of table declarations in dependency order.
type Catalog struct {
	decls map[string]*TableDecl
	order []string
}

// Load reads every .cue file in dir as one CUE package and compiles the
// table declarations in it.
func Load(dir string) (*Catalog, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("catalog directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("catalog directory: not a directory: %s", dir)
	}
	files, err := FindCUEFiles(dir)
	if err != nil {
		return nil, fmt.Errorf("scanning catalog directory: %w", err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no CUE files found in %s", dir)
	}

	ctx := cuecontext.New()
	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, fmt.Errorf("no CUE instances loaded from %s", dir)
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, formatCUEError(inst.Err)
	}

	value := ctx.BuildInstance(inst)
	if err := value.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	return compile(ctx, value)
}

// LoadString compiles a catalog from CUE source. filename is used in error
// positions.
func LoadString(src, filename string) (*Catalog, error) {
	ctx := cuecontext.New()
	value := ctx.CompileString(src, cue.Filename(filename))
	if err := value.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	return compile(ctx, value)
}

// FindCUEFiles walks the directory and returns all .cue file paths.
func FindCUEFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && filepath.Ext(path) == ".cue" {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}

func compile(ctx *cue.Context, value cue.Value) (*Catalog, error) {
	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("catalog schema: %w", err)
	}
	value = schema.Unify(value)
	if err := value.Validate(cue.Concrete(true)); err != nil {
		return nil, formatCUEError(err)
	}

	tablesVal := value.LookupPath(cue.ParsePath("table"))
	if !tablesVal.Exists() {
		return nil, &DeclError{Field: "table", Message: "no tables declared", Pos: value.Pos()}
	}
	iter, err := tablesVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	c := &Catalog{decls: make(map[string]*TableDecl)}
	var declared []string
	for iter.Next() {
		decl, err := compileTable(iter.Label(), iter.Value())
		if err != nil {
			return nil, err
		}
		c.decls[decl.Name] = decl
		declared = append(declared, decl.Name)
	}
	if len(declared) == 0 {
		return nil, &DeclError{Field: "table", Message: "no tables declared", Pos: tablesVal.Pos()}
	}

	c.order, err = dependencyOrder(c.decls, declared)
	if err != nil {
		return nil, err
	}
	for _, name := range c.order {
		if err := c.resolve(c.decls[name]); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// compileTable parses one table struct. Dependencies are resolved later.
func compileTable(name string, v cue.Value) (*TableDecl, error) {
	if !tableName.MatchString(name) {
		return nil, &DeclError{Table: name, Message: "table names must start with an upper-case letter", Pos: v.Pos()}
	}
	decl := &TableDecl{Name: name, pos: v.Pos()}

	tier, err := field(v, "tier").String()
	if err != nil {
		return nil, formatCUEError(err)
	}
	decl.Tier = Tier(tier)

	keys, err := parseAttrs(name, field(v, "key"), true)
	if err != nil {
		return nil, err
	}
	attrs, err := parseAttrs(name, field(v, "attrs"), false)
	if err != nil {
		return nil, err
	}
	decl.own = append(keys, attrs...)

	if err := field(v, "depends").Decode(&decl.Depends); err != nil {
		return nil, formatCUEError(err)
	}
	if mk := v.LookupPath(cue.ParsePath("make")); mk.Exists() {
		if decl.Make, err = mk.String(); err != nil {
			return nil, formatCUEError(err)
		}
	}
	if cm := v.LookupPath(cue.ParsePath("comment")); cm.Exists() {
		if decl.Comment, err = cm.String(); err != nil {
			return nil, formatCUEError(err)
		}
	}

	switch {
	case decl.Tier.Auto() && len(decl.Depends) == 0:
		return nil, &DeclError{Table: name, Field: "depends", Message: fmt.Sprintf("%s tables need at least one dependency", decl.Tier), Pos: v.Pos()}
	case decl.Tier.Auto() && decl.Make == "":
		return nil, &DeclError{Table: name, Field: "make", Message: fmt.Sprintf("%s tables need a maker", decl.Tier), Pos: v.Pos()}
	case !decl.Tier.Auto() && decl.Make != "":
		return nil, &DeclError{Table: name, Field: "make", Message: fmt.Sprintf("%s tables are not populated by a maker", decl.Tier), Pos: v.Pos()}
	}
	return decl, nil
}

// field looks up a table field, resolving schema defaults.
func field(v cue.Value, name string) cue.Value {
	f := v.LookupPath(cue.ParsePath(name))
	if d, ok := f.Default(); ok {
		return d
	}
	return f
}

func parseAttrs(table string, list cue.Value, inKey bool) ([]relation.Attribute, error) {
	iter, err := list.List()
	if err != nil {
		return nil, formatCUEError(err)
	}
	var attrs []relation.Attribute
	for iter.Next() {
		var a struct {
			Name string `json:"name"`
			Type string `json:"type"`
		}
		if err := iter.Value().Decode(&a); err != nil {
			return nil, formatCUEError(err)
		}
		t, err := relation.ParseAttrType(a.Type)
		if err != nil {
			return nil, &DeclError{Table: table, Field: a.Name, Message: err.Error(), Pos: iter.Value().Pos()}
		}
		attrs = append(attrs, relation.Attribute{Name: a.Name, Type: t, InKey: inKey})
	}
	return attrs, nil
}

// resolve builds decl.Table from its dependencies' primary keys followed by
// its own attributes. Dependencies must already be resolved.
func (c *Catalog) resolve(decl *TableDecl) error {
	var attrs []relation.Attribute
	seen := make(map[string]relation.AttrType)
	for _, dep := range decl.Depends {
		h, err := c.decls[dep].Table.Heading()
		if err != nil {
			return err
		}
		for _, a := range h.Attributes() {
			if !a.InKey {
				continue
			}
			if t, ok := seen[a.Name]; ok {
				if t != a.Type {
					return &DeclError{Table: decl.Name, Field: a.Name, Message: fmt.Sprintf("inherited as both %s and %s", t, a.Type), Pos: decl.pos}
				}
				continue
			}
			seen[a.Name] = a.Type
			attrs = append(attrs, a)
		}
	}
	inherited := len(attrs)
	for _, a := range decl.own {
		if _, ok := seen[a.Name]; ok {
			msg := "declared twice"
			if slices.ContainsFunc(attrs[:inherited], func(b relation.Attribute) bool { return b.Name == a.Name }) {
				msg = "already inherited from a dependency"
			}
			return &DeclError{Table: decl.Name, Field: a.Name, Message: msg, Pos: decl.pos}
		}
		seen[a.Name] = a.Type
		attrs = append(attrs, a)
	}

	t, err := relation.NewTable(decl.Name, attrs...)
	if err != nil {
		return &DeclError{Table: decl.Name, Message: err.Error(), Pos: decl.pos}
	}
	decl.Table = t
	return nil
}

// Names returns table names in dependency order: every table comes after
// the tables it depends on, otherwise declaration order.
func (c *Catalog) Names() []string {
	return slices.Clone(c.order)
}

// Tables returns the resolved tables in dependency order.
func (c *Catalog) Tables() []relation.Table {
	out := make([]relation.Table, len(c.order))
	for i, name := range c.order {
		out[i] = c.decls[name].Table
	}
	return out
}

// Decl returns the declaration of the named table.
func (c *Catalog) Decl(name string) (*TableDecl, bool) {
	d, ok := c.decls[name]
	return d, ok
}

// Table returns the resolved named table.
func (c *Catalog) Table(name string) (relation.Table, bool) {
	d, ok := c.decls[name]
	if !ok {
		return relation.Table{}, false
	}
	return d.Table, true
}

// PopulateRelation returns the natural join of the named table's
// dependencies.
func (c *Catalog) PopulateRelation(name string) (relation.Relation, error) {
	d, ok := c.decls[name]
	if !ok {
		return nil, fmt.Errorf("unknown table %s", name)
	}
	if len(d.Depends) == 0 {
		return nil, fmt.Errorf("table %s has no dependencies", name)
	}
	rels := make([]relation.Relation, len(d.Depends))
	for i, dep := range d.Depends {
		rels[i] = c.decls[dep].Table
	}
	return relation.JoinAll(rels...), nil
}
