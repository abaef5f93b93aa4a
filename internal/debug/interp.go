package debug

import (
	"context"
	"fmt"
	"go/ast"
	"go/token"
	"math"
	"reflect"
	"strconv"
)

var (
	contextType   = reflect.TypeOf((*context.Context)(nil)).Elem()
	errorType     = reflect.TypeOf((*error)(nil)).Elem()
	awaitableType = reflect.TypeOf((*Awaitable)(nil)).Elem()
	intType       = reflect.TypeOf(0)
	floatType     = reflect.TypeOf(0.0)
)

// interp walks one parsed expression. Values travel as reflect.Value; the
// zero Value stands for nil.
type interp struct {
	ctx     context.Context
	env     Env
	awaited bool
}

func (in *interp) eval(e ast.Expr) (reflect.Value, error) {
	switch n := e.(type) {
	case *ast.ParenExpr:
		return in.eval(n.X)
	case *ast.BasicLit:
		return literal(n)
	case *ast.Ident:
		return in.ident(n.Name)
	case *ast.UnaryExpr:
		return in.unary(n)
	case *ast.BinaryExpr:
		return in.binary(n)
	case *ast.SelectorExpr:
		return in.selector(n)
	case *ast.CallExpr:
		return in.call(n)
	case *ast.IndexExpr:
		return in.index(n)
	case *ast.SliceExpr:
		return in.slice(n)
	case *ast.StarExpr:
		x, err := in.eval(n.X)
		if err != nil {
			return reflect.Value{}, err
		}
		if x.Kind() != reflect.Pointer {
			return reflect.Value{}, evalErrorf("cannot dereference %s", typeOf(x))
		}
		if x.IsNil() {
			return reflect.Value{}, evalErrorf("nil pointer dereference")
		}
		return normalize(x.Elem()), nil
	}
	return reflect.Value{}, evalErrorf("unsupported expression %T", e)
}

func literal(lit *ast.BasicLit) (reflect.Value, error) {
	switch lit.Kind {
	case token.INT:
		n, err := strconv.ParseInt(lit.Value, 0, 64)
		if err != nil {
			return reflect.Value{}, evalErrorf("integer literal %s out of range", lit.Value)
		}
		return reflect.ValueOf(int(n)), nil
	case token.FLOAT:
		f, err := strconv.ParseFloat(lit.Value, 64)
		if err != nil {
			return reflect.Value{}, evalErrorf("bad float literal %s", lit.Value)
		}
		return reflect.ValueOf(f), nil
	case token.STRING:
		s, err := strconv.Unquote(lit.Value)
		if err != nil {
			return reflect.Value{}, evalErrorf("bad string literal %s", lit.Value)
		}
		return reflect.ValueOf(s), nil
	case token.CHAR:
		r, _, _, err := strconv.UnquoteChar(lit.Value[1:len(lit.Value)-1], '\'')
		if err != nil {
			return reflect.Value{}, evalErrorf("bad rune literal %s", lit.Value)
		}
		return reflect.ValueOf(r), nil
	}
	return reflect.Value{}, evalErrorf("unsupported literal %s", lit.Value)
}

func (in *interp) ident(name string) (reflect.Value, error) {
	if v, ok := in.env[name]; ok {
		if v == nil {
			return reflect.Value{}, nil
		}
		return reflect.ValueOf(v), nil
	}
	switch name {
	case "true":
		return reflect.ValueOf(true), nil
	case "false":
		return reflect.ValueOf(false), nil
	case "nil":
		return reflect.Value{}, nil
	}
	return reflect.Value{}, evalErrorf("name %q is not defined", name)
}

func (in *interp) unary(n *ast.UnaryExpr) (reflect.Value, error) {
	x, err := in.eval(n.X)
	if err != nil {
		return reflect.Value{}, err
	}

	switch n.Op {
	case token.ARROW:
		if !isAwaitable(x) {
			return reflect.Value{}, evalErrorf("cannot receive from %s", typeOf(x))
		}
		return in.await(x)
	case token.NOT:
		if x.Kind() != reflect.Bool {
			return reflect.Value{}, evalErrorf("operator ! not defined on %s", typeOf(x))
		}
		return reflect.ValueOf(!x.Bool()), nil
	}

	num, ok := toNumber(x)
	if !ok {
		return reflect.Value{}, evalErrorf("operator %s not defined on %s", n.Op, typeOf(x))
	}
	switch n.Op {
	case token.ADD:
		return x, nil
	case token.SUB:
		if num.isFloat {
			return restore(reflect.ValueOf(-num.f), x.Type()), nil
		}
		return restore(reflect.ValueOf(int(-num.i)), x.Type()), nil
	case token.XOR:
		if num.isFloat {
			return reflect.Value{}, evalErrorf("operator ^ not defined on %s", typeOf(x))
		}
		return restore(reflect.ValueOf(int(^num.i)), x.Type()), nil
	}
	return reflect.Value{}, evalErrorf("unsupported operator %s", n.Op)
}

func (in *interp) binary(n *ast.BinaryExpr) (reflect.Value, error) {
	if n.Op == token.LAND || n.Op == token.LOR {
		return in.logical(n)
	}

	x, err := in.eval(n.X)
	if err != nil {
		return reflect.Value{}, err
	}
	y, err := in.eval(n.Y)
	if err != nil {
		return reflect.Value{}, err
	}

	switch n.Op {
	case token.EQL:
		return reflect.ValueOf(equal(x, y)), nil
	case token.NEQ:
		return reflect.ValueOf(!equal(x, y)), nil
	}

	if x.Kind() == reflect.String && y.Kind() == reflect.String {
		return stringOp(n.Op, x, y)
	}

	nx, okx := toNumber(x)
	ny, oky := toNumber(y)
	if !okx || !oky {
		return reflect.Value{}, evalErrorf("unsupported operand types for %s: %s and %s", n.Op, typeOf(x), typeOf(y))
	}
	v, err := arith(n.Op, nx, ny)
	if err != nil {
		return reflect.Value{}, err
	}
	if t := operandType(x.Type(), y.Type()); t != nil && v.Kind() != reflect.Bool {
		v = restore(v, t)
	}
	return v, nil
}

// operandType picks the named type a mixed expression keeps: the shared type,
// or the non-literal side when the other operand is a plain int or float64.
func operandType(a, b reflect.Type) reflect.Type {
	switch {
	case a == b:
		return a
	case a == intType || a == floatType:
		return b
	case b == intType || b == floatType:
		return a
	}
	return nil
}

func (in *interp) logical(n *ast.BinaryExpr) (reflect.Value, error) {
	x, err := in.eval(n.X)
	if err != nil {
		return reflect.Value{}, err
	}
	if x.Kind() != reflect.Bool {
		return reflect.Value{}, evalErrorf("operator %s not defined on %s", n.Op, typeOf(x))
	}
	if (n.Op == token.LAND) != x.Bool() {
		return x, nil
	}
	y, err := in.eval(n.Y)
	if err != nil {
		return reflect.Value{}, err
	}
	if y.Kind() != reflect.Bool {
		return reflect.Value{}, evalErrorf("operator %s not defined on %s", n.Op, typeOf(y))
	}
	return y, nil
}

func stringOp(op token.Token, x, y reflect.Value) (reflect.Value, error) {
	a, b := x.String(), y.String()
	switch op {
	case token.ADD:
		return reflect.ValueOf(a + b), nil
	case token.LSS:
		return reflect.ValueOf(a < b), nil
	case token.LEQ:
		return reflect.ValueOf(a <= b), nil
	case token.GTR:
		return reflect.ValueOf(a > b), nil
	case token.GEQ:
		return reflect.ValueOf(a >= b), nil
	}
	return reflect.Value{}, evalErrorf("operator %s not defined on string", op)
}

type number struct {
	isFloat bool
	i       int64
	f       float64
}

func (n number) float() float64 {
	if n.isFloat {
		return n.f
	}
	return float64(n.i)
}

func toNumber(v reflect.Value) (number, bool) {
	switch v.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return number{i: v.Int()}, true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return number{i: int64(v.Uint())}, true
	case reflect.Float32, reflect.Float64:
		return number{isFloat: true, f: v.Float()}, true
	}
	return number{}, false
}

func arith(op token.Token, x, y number) (reflect.Value, error) {
	if x.isFloat || y.isFloat {
		a, b := x.float(), y.float()
		switch op {
		case token.ADD:
			return reflect.ValueOf(a + b), nil
		case token.SUB:
			return reflect.ValueOf(a - b), nil
		case token.MUL:
			return reflect.ValueOf(a * b), nil
		case token.QUO:
			if b == 0 {
				return reflect.Value{}, &ZeroDivisionError{Op: "float division"}
			}
			return reflect.ValueOf(a / b), nil
		case token.REM:
			if b == 0 {
				return reflect.Value{}, &ZeroDivisionError{Op: "float modulo"}
			}
			return reflect.ValueOf(math.Mod(a, b)), nil
		case token.LSS:
			return reflect.ValueOf(a < b), nil
		case token.LEQ:
			return reflect.ValueOf(a <= b), nil
		case token.GTR:
			return reflect.ValueOf(a > b), nil
		case token.GEQ:
			return reflect.ValueOf(a >= b), nil
		}
		return reflect.Value{}, evalErrorf("operator %s not defined on float", op)
	}

	a, b := x.i, y.i
	var r int64
	switch op {
	case token.ADD:
		r = a + b
	case token.SUB:
		r = a - b
	case token.MUL:
		r = a * b
	case token.QUO:
		if b == 0 {
			return reflect.Value{}, &ZeroDivisionError{Op: "integer division"}
		}
		r = a / b
	case token.REM:
		if b == 0 {
			return reflect.Value{}, &ZeroDivisionError{Op: "integer modulo"}
		}
		r = a % b
	case token.AND:
		r = a & b
	case token.OR:
		r = a | b
	case token.XOR:
		r = a ^ b
	case token.AND_NOT:
		r = a &^ b
	case token.SHL, token.SHR:
		if b < 0 {
			return reflect.Value{}, evalErrorf("negative shift count %d", b)
		}
		if op == token.SHL {
			r = a << uint64(b)
		} else {
			r = a >> uint64(b)
		}
	case token.LSS:
		return reflect.ValueOf(a < b), nil
	case token.LEQ:
		return reflect.ValueOf(a <= b), nil
	case token.GTR:
		return reflect.ValueOf(a > b), nil
	case token.GEQ:
		return reflect.ValueOf(a >= b), nil
	default:
		return reflect.Value{}, evalErrorf("operator %s not defined on int", op)
	}
	return reflect.ValueOf(int(r)), nil
}

// restore converts a computed number back to a named operand type, so
// time.Duration arithmetic stays a Duration.
func restore(v reflect.Value, t reflect.Type) reflect.Value {
	if t == intType || t == floatType || !v.Type().ConvertibleTo(t) {
		return v
	}
	if k := t.Kind(); k == reflect.String || k == reflect.Bool {
		return v
	}
	return v.Convert(t)
}

func equal(x, y reflect.Value) bool {
	if !x.IsValid() || !y.IsValid() {
		return isNil(x) && isNil(y)
	}
	if nx, ok := toNumber(x); ok {
		if ny, ok := toNumber(y); ok {
			if nx.isFloat || ny.isFloat {
				return nx.float() == ny.float()
			}
			return nx.i == ny.i
		}
	}
	if x.Type() == y.Type() && x.Type().Comparable() {
		return x.Interface() == y.Interface()
	}
	return reflect.DeepEqual(x.Interface(), y.Interface())
}

func isNil(v reflect.Value) bool {
	if !v.IsValid() {
		return true
	}
	switch v.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		return v.IsNil()
	}
	return false
}

func (in *interp) selector(n *ast.SelectorExpr) (reflect.Value, error) {
	x, err := in.eval(n.X)
	if err != nil {
		return reflect.Value{}, err
	}
	name := n.Sel.Name
	if !ast.IsExported(name) {
		return reflect.Value{}, evalErrorf("cannot refer to unexported name %s", name)
	}
	if !x.IsValid() {
		return reflect.Value{}, evalErrorf("nil has no member %s", name)
	}

	if m := x.MethodByName(name); m.IsValid() {
		return m, nil
	}

	v := x
	for v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface {
		if v.IsNil() {
			return reflect.Value{}, evalErrorf("nil pointer dereference reading %s", name)
		}
		v = v.Elem()
	}
	if v.Kind() == reflect.Struct {
		if f := v.FieldByName(name); f.IsValid() && f.CanInterface() {
			return normalize(f), nil
		}
	}
	return reflect.Value{}, evalErrorf("%s has no field or method %s", typeOf(x), name)
}

func (in *interp) call(n *ast.CallExpr) (reflect.Value, error) {
	if n.Ellipsis.IsValid() {
		return reflect.Value{}, evalErrorf("variadic calls are not supported")
	}
	if id, ok := n.Fun.(*ast.Ident); ok && id.Name == "len" {
		if _, shadowed := in.env["len"]; !shadowed {
			return in.builtinLen(n)
		}
	}

	fn, err := in.eval(n.Fun)
	if err != nil {
		return reflect.Value{}, err
	}
	if fn.Kind() != reflect.Func || fn.IsNil() {
		return reflect.Value{}, evalErrorf("%s is not callable", typeOf(fn))
	}

	args := make([]reflect.Value, 0, len(n.Args)+1)
	for _, a := range n.Args {
		v, err := in.eval(a)
		if err != nil {
			return reflect.Value{}, err
		}
		args = append(args, v)
	}

	ft := fn.Type()
	if ft.NumIn() > 0 && ft.In(0) == contextType && (len(args) == 0 || !args[0].IsValid() || !args[0].Type().Implements(contextType)) {
		args = append([]reflect.Value{reflect.ValueOf(in.ctx)}, args...)
	}

	want := ft.NumIn()
	if ft.IsVariadic() {
		if len(args) < want-1 {
			return reflect.Value{}, evalErrorf("call takes at least %d arguments (%d given)", want-1, len(args))
		}
	} else if len(args) != want {
		return reflect.Value{}, evalErrorf("call takes %d arguments (%d given)", want, len(args))
	}

	for i, a := range args {
		var pt reflect.Type
		if ft.IsVariadic() && i >= want-1 {
			pt = ft.In(want - 1).Elem()
		} else {
			pt = ft.In(i)
		}
		c, err := coerce(a, pt)
		if err != nil {
			return reflect.Value{}, err
		}
		args[i] = c
	}

	out, err := invoke(fn, args)
	if err != nil {
		return reflect.Value{}, err
	}
	return results(out)
}

func invoke(fn reflect.Value, args []reflect.Value) (out []reflect.Value, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = evalErrorf("call panicked: %v", p)
		}
	}()
	return fn.Call(args), nil
}

// results folds a Go result list into one value. A trailing non-nil error
// becomes the evaluation error.
func results(out []reflect.Value) (reflect.Value, error) {
	if len(out) == 0 {
		return reflect.Value{}, nil
	}
	if last := out[len(out)-1]; last.Type() == errorType {
		if !last.IsNil() {
			return reflect.Value{}, last.Interface().(error)
		}
		out = out[:len(out)-1]
	}
	switch len(out) {
	case 0:
		return reflect.Value{}, nil
	case 1:
		return normalize(out[0]), nil
	}
	list := make([]any, len(out))
	for i, v := range out {
		list[i] = v.Interface()
	}
	return reflect.ValueOf(list), nil
}

func coerce(v reflect.Value, t reflect.Type) (reflect.Value, error) {
	if !v.IsValid() {
		switch t.Kind() {
		case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
			return reflect.Zero(t), nil
		}
		return reflect.Value{}, evalErrorf("cannot use nil as %s", t)
	}
	if v.Type().AssignableTo(t) {
		return v, nil
	}
	_, numeric := toNumber(v)
	_, wantNumeric := toNumber(reflect.Zero(t))
	if (numeric && wantNumeric) || (v.Kind() == reflect.String && t.Kind() == reflect.String) {
		return v.Convert(t), nil
	}
	return reflect.Value{}, evalErrorf("cannot use %s as %s", v.Type(), t)
}

func (in *interp) builtinLen(n *ast.CallExpr) (reflect.Value, error) {
	if len(n.Args) != 1 {
		return reflect.Value{}, evalErrorf("len takes exactly one argument (%d given)", len(n.Args))
	}
	x, err := in.eval(n.Args[0])
	if err != nil {
		return reflect.Value{}, err
	}
	if x.Kind() == reflect.Pointer && !x.IsNil() && x.Elem().Kind() == reflect.Array {
		x = x.Elem()
	}
	switch x.Kind() {
	case reflect.String, reflect.Slice, reflect.Array, reflect.Map, reflect.Chan:
		return reflect.ValueOf(x.Len()), nil
	}
	return reflect.Value{}, evalErrorf("object of type %s has no len()", typeOf(x))
}

func (in *interp) index(n *ast.IndexExpr) (reflect.Value, error) {
	x, err := in.eval(n.X)
	if err != nil {
		return reflect.Value{}, err
	}
	k, err := in.eval(n.Index)
	if err != nil {
		return reflect.Value{}, err
	}
	if x.Kind() == reflect.Pointer && !x.IsNil() && x.Elem().Kind() == reflect.Array {
		x = x.Elem()
	}

	switch x.Kind() {
	case reflect.Map:
		key, err := coerce(k, x.Type().Key())
		if err != nil {
			return reflect.Value{}, err
		}
		v := x.MapIndex(key)
		if !v.IsValid() {
			return normalize(reflect.Zero(x.Type().Elem())), nil
		}
		return normalize(v), nil
	case reflect.Slice, reflect.Array, reflect.String:
		i, err := intIndex(k, x.Len(), false)
		if err != nil {
			return reflect.Value{}, err
		}
		return normalize(x.Index(i)), nil
	}
	return reflect.Value{}, evalErrorf("%s is not indexable", typeOf(x))
}

func (in *interp) slice(n *ast.SliceExpr) (reflect.Value, error) {
	if n.Slice3 {
		return reflect.Value{}, evalErrorf("3-index slices are not supported")
	}
	x, err := in.eval(n.X)
	if err != nil {
		return reflect.Value{}, err
	}
	if x.Kind() != reflect.Slice && x.Kind() != reflect.String {
		return reflect.Value{}, evalErrorf("cannot slice %s", typeOf(x))
	}

	lo, hi := 0, x.Len()
	if n.Low != nil {
		v, err := in.eval(n.Low)
		if err != nil {
			return reflect.Value{}, err
		}
		if lo, err = intIndex(v, x.Len(), true); err != nil {
			return reflect.Value{}, err
		}
	}
	if n.High != nil {
		v, err := in.eval(n.High)
		if err != nil {
			return reflect.Value{}, err
		}
		if hi, err = intIndex(v, x.Len(), true); err != nil {
			return reflect.Value{}, err
		}
	}
	if lo > hi {
		return reflect.Value{}, evalErrorf("invalid slice indices %d > %d", lo, hi)
	}
	return x.Slice(lo, hi), nil
}

// intIndex validates an index against length; inclusive allows i == length
// for slice bounds.
func intIndex(v reflect.Value, length int, inclusive bool) (int, error) {
	num, ok := toNumber(v)
	if !ok || num.isFloat {
		return 0, evalErrorf("index must be an integer, not %s", typeOf(v))
	}
	limit := int64(length)
	if inclusive {
		limit++
	}
	if num.i < 0 || num.i >= limit {
		return 0, evalErrorf("index %d out of range [0:%d]", num.i, length)
	}
	return int(num.i), nil
}

func isAwaitable(v reflect.Value) bool {
	if !v.IsValid() {
		return false
	}
	if v.Type().Implements(awaitableType) {
		return true
	}
	return v.Kind() == reflect.Chan && v.Type().ChanDir()&reflect.RecvDir != 0
}

// await drives v to completion if it is a channel or an Awaitable. Other
// values pass through untouched.
func (in *interp) await(v reflect.Value) (reflect.Value, error) {
	if !isAwaitable(v) {
		return v, nil
	}
	in.awaited = true

	if a, ok := v.Interface().(Awaitable); ok {
		res, err := a.Await(in.ctx)
		if err != nil {
			return reflect.Value{}, err
		}
		if res == nil {
			return reflect.Value{}, nil
		}
		return reflect.ValueOf(res), nil
	}

	chosen, recv, ok := reflect.Select([]reflect.SelectCase{
		{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(in.ctx.Done())},
		{Dir: reflect.SelectRecv, Chan: v},
	})
	if chosen == 0 {
		return reflect.Value{}, in.ctx.Err()
	}
	if !ok {
		return reflect.Value{}, nil
	}
	return normalize(recv), nil
}

// normalize unwraps interface values so later steps see the dynamic type.
func normalize(v reflect.Value) reflect.Value {
	if v.Kind() == reflect.Interface {
		if v.IsNil() {
			return reflect.Value{}
		}
		return v.Elem()
	}
	return v
}

func typeOf(v reflect.Value) string {
	if !v.IsValid() {
		return "nil"
	}
	return v.Type().String()
}

func evalErrorf(format string, args ...any) error {
	return &EvalError{Msg: fmt.Sprintf(format, args...)}
}
