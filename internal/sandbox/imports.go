package sandbox

import (
	"github.com/dop251/goja/ast"
	"github.com/dop251/goja/parser"
)

// forbiddenIdentifiers names bare identifiers the static walk rejects
// outright, regardless of the effective allowlist (spec.md §4.2 layer 2):
// no eval, no Function constructor, no globalThis escape, no require
// (code steps never get dynamic import).
var forbiddenIdentifiers = map[string]bool{
	"eval":       true,
	"Function":   true,
	"globalThis": true,
	"require":    true,
}

// checkStatic parses fragment and walks the resulting AST, rejecting any
// bare reference to a forbidden identifier or an import() call naming a
// module outside allowed. Returns nil if the fragment is clean.
func checkStatic(fragment string, allowed map[string]bool) error {
	program, err := parser.ParseFile(nil, "<code step>", fragment, 0)
	if err != nil {
		return errSyntax("parsing code fragment: %v", err)
	}

	w := &walker{allowed: allowed}
	for _, stmt := range program.Body {
		w.walkStatement(stmt)
		if w.err != nil {
			return w.err
		}
	}
	return nil
}

type walker struct {
	allowed map[string]bool
	err     error
}

func (w *walker) fail(err error) {
	if w.err == nil {
		w.err = err
	}
}

func (w *walker) walkStatement(s ast.Statement) {
	if w.err != nil || s == nil {
		return
	}
	switch n := s.(type) {
	case *ast.ExpressionStatement:
		w.walkExpr(n.Expression)
	case *ast.BlockStatement:
		for _, st := range n.List {
			w.walkStatement(st)
		}
	case *ast.IfStatement:
		w.walkExpr(n.Test)
		w.walkStatement(n.Consequent)
		w.walkStatement(n.Alternate)
	case *ast.ForStatement:
		w.walkExpr(n.Test)
		w.walkExpr(n.Update)
		w.walkStatement(n.Body)
	case *ast.ForInStatement:
		w.walkExpr(n.Source)
		w.walkStatement(n.Body)
	case *ast.WhileStatement:
		w.walkExpr(n.Test)
		w.walkStatement(n.Body)
	case *ast.DoWhileStatement:
		w.walkExpr(n.Test)
		w.walkStatement(n.Body)
	case *ast.ReturnStatement:
		w.walkExpr(n.Argument)
	case *ast.VariableStatement:
		for _, expr := range n.List {
			w.walkExpr(expr)
		}
	case *ast.ThrowStatement:
		w.walkExpr(n.Argument)
	case *ast.TryStatement:
		w.walkStatement(n.Body)
		if n.Catch != nil {
			w.walkStatement(n.Catch.Body)
		}
		w.walkStatement(n.Finally)
	case *ast.SwitchStatement:
		w.walkExpr(n.Discriminant)
		for _, c := range n.Body {
			w.walkExpr(c.Test)
			for _, st := range c.Consequent {
				w.walkStatement(st)
			}
		}
	case *ast.LabelledStatement:
		w.walkStatement(n.Statement)
	case *ast.FunctionDeclaration:
		w.walkFunctionLiteral(n.Function)
	default:
		// Empty/branch/debugger statements carry no reachable expression.
	}
}

func (w *walker) walkFunctionLiteral(fn *ast.FunctionLiteral) {
	if fn == nil {
		return
	}
	w.walkStatement(fn.Body)
}

func (w *walker) walkExpr(e ast.Expression) {
	if w.err != nil || e == nil {
		return
	}
	switch n := e.(type) {
	case *ast.Identifier:
		if forbiddenIdentifiers[n.Name] {
			w.fail(errSecurity("reference to forbidden identifier %q is not permitted in a sandboxed code fragment", n.Name))
		}
	case *ast.CallExpression:
		if id, ok := n.Callee.(*ast.Identifier); ok {
			if id.Name == "import" {
				w.checkImportCall(n)
				return
			}
			if forbiddenIdentifiers[id.Name] {
				w.fail(errSecurity("call to forbidden identifier %q is not permitted in a sandboxed code fragment", id.Name))
				return
			}
		}
		w.walkExpr(n.Callee)
		for _, a := range n.ArgumentList {
			w.walkExpr(a)
		}
	case *ast.NewExpression:
		w.walkExpr(n.Callee)
		for _, a := range n.ArgumentList {
			w.walkExpr(a)
		}
	case *ast.DotExpression:
		w.walkExpr(n.Left)
	case *ast.BracketExpression:
		w.walkExpr(n.Left)
		w.walkExpr(n.Member)
	case *ast.BinaryExpression:
		w.walkExpr(n.Left)
		w.walkExpr(n.Right)
	case *ast.AssignExpression:
		w.walkExpr(n.Left)
		w.walkExpr(n.Right)
	case *ast.UnaryExpression:
		w.walkExpr(n.Operand)
	case *ast.ConditionalExpression:
		w.walkExpr(n.Test)
		w.walkExpr(n.Consequent)
		w.walkExpr(n.Alternate)
	case *ast.SequenceExpression:
		for _, item := range n.Sequence {
			w.walkExpr(item)
		}
	case *ast.ArrayLiteral:
		for _, item := range n.Value {
			w.walkExpr(item)
		}
	case *ast.ObjectLiteral:
		for _, prop := range n.Value {
			if kv, ok := prop.(*ast.PropertyKeyed); ok {
				w.walkExpr(kv.Value)
			}
		}
	case *ast.FunctionLiteral:
		w.walkFunctionLiteral(n)
	default:
		// Literals (string/number/boolean/null/this/regexp) have no
		// sub-expressions relevant to the import/identifier gate.
	}
}

// checkImportCall validates a dynamic `import("module")` call's literal
// module specifier against allowed. A non-literal specifier is rejected
// outright — the gate must be decidable statically.
func (w *walker) checkImportCall(call *ast.CallExpression) {
	if len(call.ArgumentList) != 1 {
		w.fail(errSecurity("import() must take exactly one literal module specifier"))
		return
	}
	lit, ok := call.ArgumentList[0].(*ast.StringLiteral)
	if !ok {
		w.fail(errSecurity("import() module specifier must be a string literal, not a computed expression"))
		return
	}
	module := string(lit.Value)
	if advisoryOnlyModules[module] {
		w.fail(errSecurity("module %q has no Go-embeddable equivalent in this sandbox; use context.tools.call instead", module))
		return
	}
	if !w.allowed[module] {
		w.fail(errSecurity("module %q is not in the effective package allowlist", module))
		return
	}
}
