// Command checksyscalls is a build-time lint, the same role the
// teaching kernel this module grew from gave scripts/features.go: it
// statically walks the syscall-number table in defs/syscall.go and
// the switch in trap/syscall.go's handler and fails if one names a
// syscall the other doesn't, catching a stale number or a forgotten
// case before it ever reaches a running kernel.
package main

import (
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"os"
	"sort"

	"golang.org/x/tools/go/ast/astutil"
)

func main() {
	if len(os.Args) != 3 {
		fmt.Fprintln(os.Stderr, "checksyscalls <defs/syscall.go> <trap/syscall.go>")
		os.Exit(2)
	}
	declared, err := syscallConsts(os.Args[1])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	handled, err := syscallCases(os.Args[2])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	ok := true
	for name := range declared {
		if !handled[name] {
			fmt.Fprintf(os.Stderr, "checksyscalls: %s is declared but has no case in syscall()\n", name)
			ok = false
		}
	}
	for name := range handled {
		if !declared[name] {
			fmt.Fprintf(os.Stderr, "checksyscalls: %s has a case but is not declared in defs\n", name)
			ok = false
		}
	}
	if !ok {
		os.Exit(1)
	}

	names := make([]string, 0, len(declared))
	for name := range declared {
		names = append(names, name)
	}
	sort.Strings(names)
	fmt.Printf("checksyscalls: %d syscalls, all handled: %v\n", len(names), names)
}

// syscallConsts collects every identifier declared in a const block
// whose name starts with "SYS_" in the given file.
func syscallConsts(path string) (map[string]bool, error) {
	fset := token.NewFileSet()
	f, err := parser.ParseFile(fset, path, nil, 0)
	if err != nil {
		return nil, err
	}
	out := make(map[string]bool)
	astutil.Apply(f, func(c *astutil.Cursor) bool {
		gd, ok := c.Node().(*ast.GenDecl)
		if !ok || gd.Tok != token.CONST {
			return true
		}
		for _, spec := range gd.Specs {
			vs, ok := spec.(*ast.ValueSpec)
			if !ok {
				continue
			}
			for _, id := range vs.Names {
				if hasPrefix(id.Name, "SYS_") {
					out[id.Name] = true
				}
			}
		}
		return true
	}, nil)
	return out, nil
}

// syscallCases collects the defs.SYS_* identifiers named in case
// clauses of a switch statement anywhere in the given file.
func syscallCases(path string) (map[string]bool, error) {
	fset := token.NewFileSet()
	f, err := parser.ParseFile(fset, path, nil, 0)
	if err != nil {
		return nil, err
	}
	out := make(map[string]bool)
	astutil.Apply(f, func(c *astutil.Cursor) bool {
		cc, ok := c.Node().(*ast.CaseClause)
		if !ok {
			return true
		}
		for _, expr := range cc.List {
			sel, ok := expr.(*ast.SelectorExpr)
			if !ok {
				continue
			}
			if pkg, ok := sel.X.(*ast.Ident); ok && pkg.Name == "defs" && hasPrefix(sel.Sel.Name, "SYS_") {
				out[sel.Sel.Name] = true
			}
		}
		return true
	}, nil)
	return out, nil
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}
