// Package script is the restricted execution environment for inline
// ScriptTask bodies. A script is a small sequence of statements over two
// maps, `data` (workflow root data) and `task_data` (task-local data);
// it may assign `result` to report a value back to the interpreter. No
// I/O, no imports, no attribute escape: the grammar accepted here is a
// deliberate subset of Go expressions and statements, not the language
// itself.
package script

import (
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"strings"
)

// Result is what a script produced: the (possibly mutated) data maps
// plus an optional `result` value.
type Result struct {
	Data       map[string]interface{}
	TaskData   map[string]interface{}
	HasResult  bool
	ResultValue interface{}
}

// CompileError wraps a parse or validation failure.
type CompileError struct {
	Detail string
}

func (e *CompileError) Error() string {
	return "compile error: " + e.Detail
}

// RuntimeError wraps a failure that occurred while executing a
// validated script.
type RuntimeError struct {
	Detail string
}

func (e *RuntimeError) Error() string {
	return "runtime error: " + e.Detail
}

// Run parses, validates, and executes source against data and taskData.
// Both maps are mutated in place, matching the BPMN scripting contract
// of a pure function over (data, task_data) that may produce updates
// and an optional result.
func Run(source string, data, taskData map[string]interface{}) (*Result, error) {
	if data == nil {
		data = map[string]interface{}{}
	}
	if taskData == nil {
		taskData = map[string]interface{}{}
	}
	if strings.TrimSpace(source) == "" {
		return nil, &CompileError{Detail: "missing script"}
	}

	body, err := compile(source)
	if err != nil {
		return nil, err
	}

	interp := &interpreter{
		env: map[string]interface{}{
			"data":      data,
			"task_data": taskData,
		},
	}
	if err := interp.execStmts(body.List); err != nil {
		return nil, err
	}

	result, hasResult := interp.env["result"]
	return &Result{
		Data:       data,
		TaskData:   taskData,
		HasResult:  hasResult,
		ResultValue: result,
	}, nil
}

// compile parses source as the body of a Go function and validates it
// against the restricted grammar, returning the parsed block.
func compile(source string) (*ast.BlockStmt, error) {
	wrapped := "package script\nfunc script() {\n" + source + "\n}\n"
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, "", wrapped, 0)
	if err != nil {
		return nil, &CompileError{Detail: err.Error()}
	}

	var body *ast.BlockStmt
	for _, decl := range file.Decls {
		fn, ok := decl.(*ast.FuncDecl)
		if ok && fn.Name.Name == "script" {
			body = fn.Body
			break
		}
	}
	if body == nil {
		return nil, &CompileError{Detail: "no script body"}
	}

	if err := validate(body); err != nil {
		return nil, err
	}
	return body, nil
}
