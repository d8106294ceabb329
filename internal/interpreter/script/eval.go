package script

import (
	"fmt"
	"go/ast"
	"go/token"
	"strconv"
)

// interpreter holds the mutable bindings a script body runs against:
// `data`, `task_data`, and any locals the script introduces with `:=`.
type interpreter struct {
	env map[string]interface{}
}

func (in *interpreter) execStmts(stmts []ast.Stmt) error {
	for _, stmt := range stmts {
		if err := in.execStmt(stmt); err != nil {
			return err
		}
	}
	return nil
}

func (in *interpreter) execStmt(stmt ast.Stmt) error {
	switch s := stmt.(type) {
	case *ast.ExprStmt:
		_, err := in.eval(s.X)
		return err
	case *ast.AssignStmt:
		return in.execAssign(s)
	case *ast.IfStmt:
		return in.execIf(s)
	case *ast.BlockStmt:
		return in.execStmts(s.List)
	case *ast.ForStmt:
		return in.execFor(s)
	case *ast.RangeStmt:
		return in.execRange(s)
	case *ast.IncDecStmt:
		return in.execIncDec(s)
	default:
		return &RuntimeError{Detail: fmt.Sprintf("unsupported statement %T", stmt)}
	}
}

func (in *interpreter) execIncDec(s *ast.IncDecStmt) error {
	v, err := in.eval(s.X)
	if err != nil {
		return err
	}
	f, err := toFloat(v)
	if err != nil {
		return err
	}
	if s.Tok == token.INC {
		f++
	} else {
		f--
	}
	return in.assignTo(s.X, numericResult(f))
}

func (in *interpreter) execAssign(s *ast.AssignStmt) error {
	if len(s.Lhs) != len(s.Rhs) {
		return &RuntimeError{Detail: "mismatched assignment arity"}
	}
	values := make([]interface{}, len(s.Rhs))
	for i, rhs := range s.Rhs {
		v, err := in.eval(rhs)
		if err != nil {
			return err
		}
		values[i] = v
	}
	for i, lhs := range s.Lhs {
		v := values[i]
		if s.Tok != token.ASSIGN && s.Tok != token.DEFINE {
			cur, err := in.eval(lhs)
			if err != nil {
				return err
			}
			v, err = applyCompoundOp(s.Tok, cur, v)
			if err != nil {
				return err
			}
		}
		if err := in.assignTo(lhs, v); err != nil {
			return err
		}
	}
	return nil
}

func applyCompoundOp(tok token.Token, a, b interface{}) (interface{}, error) {
	op := map[token.Token]token.Token{
		token.ADD_ASSIGN: token.ADD, token.SUB_ASSIGN: token.SUB,
		token.MUL_ASSIGN: token.MUL, token.QUO_ASSIGN: token.QUO,
		token.REM_ASSIGN: token.REM,
	}[tok]
	return binaryOp(op, a, b)
}

func (in *interpreter) assignTo(lhs ast.Expr, v interface{}) error {
	switch l := lhs.(type) {
	case *ast.Ident:
		if l.Name == "_" {
			return nil
		}
		in.env[l.Name] = v
		return nil
	case *ast.IndexExpr:
		base, err := in.eval(l.X)
		if err != nil {
			return err
		}
		key, err := in.eval(l.Index)
		if err != nil {
			return err
		}
		m, ok := base.(map[string]interface{})
		if !ok {
			return &RuntimeError{Detail: "index assignment target is not a map"}
		}
		ks, ok := key.(string)
		if !ok {
			return &RuntimeError{Detail: "map key must be a string"}
		}
		m[ks] = v
		return nil
	default:
		return &RuntimeError{Detail: fmt.Sprintf("unsupported assignment target %T", lhs)}
	}
}

func (in *interpreter) execIf(s *ast.IfStmt) error {
	if s.Init != nil {
		if err := in.execStmt(s.Init); err != nil {
			return err
		}
	}
	cond, err := in.eval(s.Cond)
	if err != nil {
		return err
	}
	if truthy(cond) {
		return in.execStmt(s.Body)
	}
	if s.Else != nil {
		return in.execStmt(s.Else)
	}
	return nil
}

func (in *interpreter) execFor(s *ast.ForStmt) error {
	if s.Init != nil {
		if err := in.execStmt(s.Init); err != nil {
			return err
		}
	}
	for i := 0; ; i++ {
		if i > 100000 {
			return &RuntimeError{Detail: "loop exceeded maximum iteration count"}
		}
		if s.Cond != nil {
			cond, err := in.eval(s.Cond)
			if err != nil {
				return err
			}
			if !truthy(cond) {
				break
			}
		}
		if err := in.execStmt(s.Body); err != nil {
			return err
		}
		if s.Post != nil {
			if err := in.execStmt(s.Post); err != nil {
				return err
			}
		}
		if s.Cond == nil && s.Post == nil {
			break
		}
	}
	return nil
}

func (in *interpreter) execRange(s *ast.RangeStmt) error {
	collection, err := in.eval(s.X)
	if err != nil {
		return err
	}
	items := toSlice(collection)
	for i, item := range items {
		if s.Key != nil {
			if err := in.assignTo(s.Key, int64(i)); err != nil {
				return err
			}
		}
		if s.Value != nil {
			if err := in.assignTo(s.Value, item); err != nil {
				return err
			}
		}
		if err := in.execStmt(s.Body); err != nil {
			return err
		}
	}
	return nil
}

func (in *interpreter) eval(expr ast.Expr) (interface{}, error) {
	switch e := expr.(type) {
	case *ast.BasicLit:
		return evalBasicLit(e)
	case *ast.Ident:
		return in.evalIdent(e)
	case *ast.ParenExpr:
		return in.eval(e.X)
	case *ast.UnaryExpr:
		return in.evalUnary(e)
	case *ast.BinaryExpr:
		return in.evalBinary(e)
	case *ast.IndexExpr:
		return in.evalIndex(e)
	case *ast.CallExpr:
		return in.evalCall(e)
	default:
		return nil, &RuntimeError{Detail: fmt.Sprintf("unsupported expression %T", expr)}
	}
}

func evalBasicLit(lit *ast.BasicLit) (interface{}, error) {
	switch lit.Kind {
	case token.INT:
		n, err := strconv.ParseInt(lit.Value, 0, 64)
		if err != nil {
			return nil, &RuntimeError{Detail: err.Error()}
		}
		return n, nil
	case token.FLOAT:
		f, err := strconv.ParseFloat(lit.Value, 64)
		if err != nil {
			return nil, &RuntimeError{Detail: err.Error()}
		}
		return f, nil
	case token.STRING:
		s, err := strconv.Unquote(lit.Value)
		if err != nil {
			return nil, &RuntimeError{Detail: err.Error()}
		}
		return s, nil
	default:
		return nil, &RuntimeError{Detail: fmt.Sprintf("unsupported literal kind %v", lit.Kind)}
	}
}

func (in *interpreter) evalIdent(ident *ast.Ident) (interface{}, error) {
	switch ident.Name {
	case "true":
		return true, nil
	case "false":
		return false, nil
	case "nil":
		return nil, nil
	}
	if v, ok := in.env[ident.Name]; ok {
		return v, nil
	}
	if builtins[ident.Name] {
		return ident.Name, nil
	}
	return nil, &RuntimeError{Detail: fmt.Sprintf("undefined name %q", ident.Name)}
}

func (in *interpreter) evalUnary(e *ast.UnaryExpr) (interface{}, error) {
	v, err := in.eval(e.X)
	if err != nil {
		return nil, err
	}
	switch e.Op {
	case token.NOT:
		return !truthy(v), nil
	case token.SUB:
		f, err := toFloat(v)
		if err != nil {
			return nil, err
		}
		return numericResult(-f), nil
	default:
		return nil, &RuntimeError{Detail: fmt.Sprintf("unsupported unary operator %v", e.Op)}
	}
}

func (in *interpreter) evalBinary(e *ast.BinaryExpr) (interface{}, error) {
	if e.Op == token.LAND {
		l, err := in.eval(e.X)
		if err != nil {
			return nil, err
		}
		if !truthy(l) {
			return false, nil
		}
		r, err := in.eval(e.Y)
		if err != nil {
			return nil, err
		}
		return truthy(r), nil
	}
	if e.Op == token.LOR {
		l, err := in.eval(e.X)
		if err != nil {
			return nil, err
		}
		if truthy(l) {
			return true, nil
		}
		r, err := in.eval(e.Y)
		if err != nil {
			return nil, err
		}
		return truthy(r), nil
	}
	l, err := in.eval(e.X)
	if err != nil {
		return nil, err
	}
	r, err := in.eval(e.Y)
	if err != nil {
		return nil, err
	}
	return binaryOp(e.Op, l, r)
}

func (in *interpreter) evalIndex(e *ast.IndexExpr) (interface{}, error) {
	base, err := in.eval(e.X)
	if err != nil {
		return nil, err
	}
	idx, err := in.eval(e.Index)
	if err != nil {
		return nil, err
	}
	switch b := base.(type) {
	case map[string]interface{}:
		ks, ok := idx.(string)
		if !ok {
			return nil, &RuntimeError{Detail: "map key must be a string"}
		}
		return b[ks], nil
	case []interface{}:
		i, err := toFloat(idx)
		if err != nil {
			return nil, err
		}
		n := int(i)
		if n < 0 || n >= len(b) {
			return nil, &RuntimeError{Detail: "index out of range"}
		}
		return b[n], nil
	default:
		return nil, &RuntimeError{Detail: "value is not indexable"}
	}
}

func (in *interpreter) evalCall(e *ast.CallExpr) (interface{}, error) {
	ident, ok := e.Fun.(*ast.Ident)
	if !ok {
		return nil, &RuntimeError{Detail: "only direct calls to builtin functions are allowed"}
	}
	args := make([]interface{}, len(e.Args))
	for i, a := range e.Args {
		v, err := in.eval(a)
		if err != nil {
			return nil, err
		}
		args[i] = v
	}
	return callBuiltin(ident.Name, args)
}
