package script

import (
	"fmt"
	"go/ast"
)

// validate walks the parsed script body and rejects anything outside
// the restricted grammar: no imports (none can appear inside a func
// body anyway), no function literals, no goroutines, channels, defer,
// labeled control flow, or selector expressions (which would otherwise
// let a script reach into struct internals).
func validate(body *ast.BlockStmt) error {
	var walkErr error
	ast.Inspect(body, func(n ast.Node) bool {
		if walkErr != nil {
			return false
		}
		switch node := n.(type) {
		case *ast.FuncLit:
			walkErr = &CompileError{Detail: "function literals are not allowed"}
		case *ast.GoStmt:
			walkErr = &CompileError{Detail: "goroutines are not allowed"}
		case *ast.DeferStmt:
			walkErr = &CompileError{Detail: "defer is not allowed"}
		case *ast.SendStmt:
			walkErr = &CompileError{Detail: "channel operations are not allowed"}
		case *ast.SelectStmt:
			walkErr = &CompileError{Detail: "select is not allowed"}
		case *ast.LabeledStmt:
			walkErr = &CompileError{Detail: "labeled statements are not allowed"}
		case *ast.GenDecl:
			walkErr = &CompileError{Detail: "declarations are not allowed; use assignment"}
		case *ast.SelectorExpr:
			walkErr = &CompileError{Detail: "attribute access is not allowed"}
		case *ast.ImportSpec:
			walkErr = &CompileError{Detail: "imports are not allowed"}
		case *ast.CallExpr:
			if ident, ok := node.Fun.(*ast.Ident); ok {
				if !builtins[ident.Name] {
					walkErr = &CompileError{Detail: fmt.Sprintf("call to unknown function %q", ident.Name)}
				}
			} else {
				walkErr = &CompileError{Detail: "only direct calls to builtin functions are allowed"}
			}
		}
		return true
	})
	return walkErr
}
