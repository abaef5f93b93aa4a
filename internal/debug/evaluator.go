// Package debug evaluates owner-supplied Go expressions against a small set
// of exposed values. Only expressions are accepted: literals, names from the
// environment, operators, exported field and method access, indexing and
// len. Statements, assignments and closures do not parse.
package debug

import (
	"context"
	"fmt"
	"go/parser"
	"reflect"
	"strings"
)

// Env binds names to the values an expression may reach.
type Env map[string]any

// LastResult is the environment name of the previous successful result.
const LastResult = "_"

// Awaitable is a deferred computation. A result implementing it (or a
// receive-capable channel) is waited for before it is shown.
type Awaitable interface {
	Await(ctx context.Context) (any, error)
}

// Result is the outcome of one evaluation. On failure Value is nil, Text is
// the error message and Kind names the error type.
type Result struct {
	Value   any
	Text    string
	Kind    string
	Awaited bool
	Err     error
}

// EvalError is a failure of the expression itself: an unknown name, a type
// mismatch or a construct the interpreter does not support.
type EvalError struct {
	Msg string
}

func (e *EvalError) Error() string { return e.Msg }

// ZeroDivisionError is returned for division or modulo by zero.
type ZeroDivisionError struct {
	Op string
}

func (e *ZeroDivisionError) Error() string { return e.Op + " by zero" }

// Evaluate parses src as a single expression and evaluates it in env.
func Evaluate(ctx context.Context, env Env, src string) (res Result) {
	in := &interp{ctx: ctx, env: env}
	defer func() {
		if p := recover(); p != nil {
			res = failed(evalErrorf("evaluation panicked: %v", p), in.awaited)
		}
	}()

	expr, err := parser.ParseExpr(stripFences(src))
	if err != nil {
		return failed(err, false)
	}

	v, err := in.eval(expr)
	if err == nil {
		v, err = in.await(v)
	}
	if err != nil {
		return failed(err, in.awaited)
	}

	var val any
	if v.IsValid() && v.CanInterface() {
		val = v.Interface()
	}
	return Result{
		Value:   val,
		Text:    fmt.Sprint(val),
		Kind:    QualifiedName(val),
		Awaited: in.awaited,
	}
}

func failed(err error, awaited bool) Result {
	return Result{Text: err.Error(), Kind: QualifiedName(err), Awaited: awaited, Err: err}
}

// stripFences removes a surrounding markdown code block or inline code span.
func stripFences(src string) string {
	s := strings.TrimSpace(src)
	if strings.HasPrefix(s, "```") && strings.HasSuffix(s, "```") && len(s) >= 6 {
		s = s[3 : len(s)-3]
		// drop a language tag on the opening line
		if i := strings.IndexByte(s, '\n'); i >= 0 && !strings.ContainsAny(s[:i], " ()") {
			s = s[i+1:]
		}
		return strings.TrimSpace(s)
	}
	if len(s) >= 2 && s[0] == '`' && s[len(s)-1] == '`' {
		return strings.TrimSpace(s[1 : len(s)-1])
	}
	return s
}

// QualifiedName returns the import path qualified name of v's type, with
// pointers looked through. Unnamed types use their Go syntax.
func QualifiedName(v any) string {
	if v == nil {
		return "nil"
	}
	t := reflect.TypeOf(v)
	for t.Kind() == reflect.Pointer && t.Name() == "" {
		t = t.Elem()
	}
	if t.Name() != "" && t.PkgPath() != "" {
		return t.PkgPath() + "." + t.Name()
	}
	return t.String()
}
