package debug

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type probe struct {
	Name   string
	Tags   []string
	Meta   map[string]int
	secret string
}

func (p *probe) Greet(ctx context.Context, who string) string {
	if ctx == nil {
		return "no context"
	}
	return "hi " + who
}

func (p *probe) Fail() (int, error) { return 0, errors.New("nope") }

func (p *probe) Pair() (string, int) { return p.Name, len(p.Tags) }

func (p *probe) Sum(nums ...int) int {
	total := 0
	for _, n := range nums {
		total += n
	}
	return total
}

func (p *probe) Boom() { panic("bad state") }

type later struct{ v any }

func (l later) Await(ctx context.Context) (any, error) { return l.v, nil }

func testEnv() Env {
	return Env{
		"p":        &probe{Name: "probe", Tags: []string{"a", "b"}, Meta: map[string]int{"a": 1}, secret: "x"},
		"d":        time.Second,
		LastResult: 41,
	}
}

func TestEvaluate(t *testing.T) {
	tests := []struct {
		expr string
		text string
		kind string
	}{
		{"1 + 2*3", "7", "int"},
		{"7 / 2", "3", "int"},
		{"7.0 / 2", "3.5", "float64"},
		{"-(3) + +1", "-2", "int"},
		{"7 % 3", "1", "int"},
		{"1 << 4", "16", "int"},
		{`"a" + "b"`, "ab", "string"},
		{`"abc" < "abd"`, "true", "bool"},
		{"!true", "false", "bool"},
		{"1 == 1.0", "true", "bool"},
		{"nil == nil", "true", "bool"},
		{`-3 < 2 && p.Name == "probe"`, "true", "bool"},
		{"false && p.Missing", "false", "bool"},
		{"'a'", "97", "int32"},
		{"_ + 1", "42", "int"},
		{"p.Name", "probe", "string"},
		{`p.Greet("you")`, "hi you", "string"},
		{"len(p.Tags)", "2", "int"},
		{"len(p.Name)", "5", "int"},
		{"p.Tags[1]", "b", "string"},
		{"p.Tags[:1]", "[a]", "[]string"},
		{`p.Meta["a"]`, "1", "int"},
		{`p.Meta["zzz"]`, "0", "int"},
		{"p.Sum(1, 2, 3)", "6", "int"},
		{"p.Pair()", "[probe 2]", "[]interface {}"},
		{"d * 2", "2s", "time.Duration"},
		{"(*p).Name", "probe", "string"},
		{"`1 + 1`", "2", "int"},
		{"```go\n2 * 2\n```", "4", "int"},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			res := Evaluate(context.Background(), testEnv(), tt.expr)
			require.NoError(t, res.Err)
			assert.Equal(t, tt.text, res.Text)
			assert.Equal(t, tt.kind, res.Kind)
			assert.False(t, res.Awaited)
		})
	}
}

func TestEvaluateZeroDivision(t *testing.T) {
	for _, expr := range []string{"1/0", "1 % 0", "1.5 / 0"} {
		res := Evaluate(context.Background(), testEnv(), expr)

		var zd *ZeroDivisionError
		require.ErrorAs(t, res.Err, &zd, expr)
		assert.Nil(t, res.Value)
		assert.Equal(t, "github.com/keshon/basicbot/internal/debug.ZeroDivisionError", res.Kind)
		assert.Contains(t, res.Text, "by zero")
	}

	res := Evaluate(context.Background(), testEnv(), "1/0")
	assert.Equal(t, "integer division by zero", res.Text)
}

func TestEvaluateErrors(t *testing.T) {
	tests := []struct {
		expr string
		kind string
		msg  string
	}{
		{"x", "github.com/keshon/basicbot/internal/debug.EvalError", `name "x" is not defined`},
		{"p.secret", "github.com/keshon/basicbot/internal/debug.EvalError", "unexported"},
		{"p.Nope", "github.com/keshon/basicbot/internal/debug.EvalError", "no field or method"},
		{"p.Tags[5]", "github.com/keshon/basicbot/internal/debug.EvalError", "out of range"},
		{`1 + "a"`, "github.com/keshon/basicbot/internal/debug.EvalError", "unsupported operand"},
		{"p.Fail()", "errors.errorString", "nope"},
		{"p.Boom()", "github.com/keshon/basicbot/internal/debug.EvalError", "bad state"},
		{"1 +", "go/scanner.ErrorList", "expected operand"},
		{"func() {}", "github.com/keshon/basicbot/internal/debug.EvalError", "unsupported expression"},
		{"p.Name()", "github.com/keshon/basicbot/internal/debug.EvalError", "not callable"},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			res := Evaluate(context.Background(), testEnv(), tt.expr)
			require.Error(t, res.Err)
			assert.Equal(t, tt.kind, res.Kind)
			assert.Contains(t, res.Text, tt.msg)
		})
	}
}

func TestEvaluateAwaitsChannels(t *testing.T) {
	ch := make(chan int, 1)
	ch <- 5
	env := Env{"ch": ch, "job": later{v: "done"}}

	res := Evaluate(context.Background(), env, "ch")
	require.NoError(t, res.Err)
	assert.Equal(t, "5", res.Text)
	assert.True(t, res.Awaited)

	res = Evaluate(context.Background(), env, "job")
	require.NoError(t, res.Err)
	assert.Equal(t, "done", res.Text)
	assert.True(t, res.Awaited)

	ch <- 6
	res = Evaluate(context.Background(), env, "<-ch + 1")
	require.NoError(t, res.Err)
	assert.Equal(t, "7", res.Text)
	assert.True(t, res.Awaited)
}

func TestEvaluateAwaitHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	res := Evaluate(ctx, Env{"never": make(chan int)}, "never")
	assert.ErrorIs(t, res.Err, context.DeadlineExceeded)
	assert.True(t, res.Awaited)
}

func TestQualifiedName(t *testing.T) {
	assert.Equal(t, "nil", QualifiedName(nil))
	assert.Equal(t, "int", QualifiedName(3))
	assert.Equal(t, "time.Duration", QualifiedName(time.Second))
	assert.Equal(t, "github.com/keshon/basicbot/internal/debug.probe", QualifiedName(&probe{}))
	assert.Equal(t, "map[string]int", QualifiedName(map[string]int{}))
}
