package catalog

import (
	"fmt"
	"strings"
)

// dependencyOrder sorts tables so each follows its dependencies. Ties keep
// declaration order. Unknown dependencies and cycles are errors.
func dependencyOrder(decls map[string]*TableDecl, declared []string) ([]string, error) {
	for _, name := range declared {
		d := decls[name]
		seen := make(map[string]bool, len(d.Depends))
		for _, dep := range d.Depends {
			if _, ok := decls[dep]; !ok {
				return nil, &DeclError{Table: name, Field: "depends", Message: fmt.Sprintf("unknown table %s", dep), Pos: d.pos}
			}
			if seen[dep] {
				return nil, &DeclError{Table: name, Field: "depends", Message: fmt.Sprintf("%s listed twice", dep), Pos: d.pos}
			}
			seen[dep] = true
		}
	}

	const (
		unvisited = iota
		visiting
		done
	)
	var (
		state = make(map[string]int, len(declared))
		order = make([]string, 0, len(declared))
		path  []string
	)

	var visit func(name string) error
	visit = func(name string) error {
		switch state[name] {
		case done:
			return nil
		case visiting:
			start := 0
			for i, n := range path {
				if n == name {
					start = i
					break
				}
			}
			cycle := append(append([]string{}, path[start:]...), name)
			return &DeclError{
				Table:   name,
				Field:   "depends",
				Message: "dependency cycle: " + strings.Join(cycle, " -> "),
				Pos:     decls[name].pos,
			}
		}
		state[name] = visiting
		path = append(path, name)
		for _, dep := range decls[name].Depends {
			if err := visit(dep); err != nil {
				return err
			}
		}
		path = path[:len(path)-1]
		state[name] = done
		order = append(order, name)
		return nil
	}

	for _, name := range declared {
		if err := visit(name); err != nil {
			return nil, err
		}
	}
	return order, nil
}
