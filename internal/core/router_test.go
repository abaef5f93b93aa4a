package core

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type routerFixture struct {
	gw       *fakeGateway
	registry *Registry
	router   *Router
	logs     *bytes.Buffer
}

func newRouterFixture(t *testing.T, cmds ...*Command) *routerFixture {
	t.Helper()
	gw := newFakeGateway()
	reg := NewRegistry(&catalog{}, zerolog.Nop())
	require.NoError(t, reg.RegisterBuiltin(cmds...))

	var buf bytes.Buffer
	log := zerolog.New(&buf)
	return &routerFixture{
		gw:       gw,
		registry: reg,
		logs:     &buf,
		router: NewRouter(RouterConfig{
			Registry: reg,
			Prefixes: NewPrefixResolver(staticPrefixes{"42": {"!"}}, gw),
			Gateway:  gw,
			Reporter: NewReporter(log),
			IsOwner:  func(id string) bool { return id == ownerID },
			Middlewares: []Middleware{
				WithRecover(),
				WithCommandLogger(log),
			},
			Log: log,
		}),
	}
}

func TestRouteByMention(t *testing.T) {
	var got *Context
	f := newRouterFixture(t, &Command{
		Name:    "latency",
		Aliases: []string{"ping", "marco"},
		Handler: func(ctx context.Context, c *Context) error {
			got = c
			_, err := c.Send(ctx, "Pong")
			return err
		},
	})

	c, err := f.router.Route(context.Background(), guildMessage("5", "<@100> ping"))
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Same(t, c, got)
	assert.Equal(t, "<@100> ", got.Prefix)
	assert.Equal(t, "ping", got.InvokedWith)
	assert.Equal(t, "latency", got.Command.Name)
	assert.NotEmpty(t, got.DispatchID)
	assert.Equal(t, []string{"Pong"}, f.gw.texts())
}

func TestRouteNicknameMentionAndPrefix(t *testing.T) {
	calls := 0
	f := newRouterFixture(t, &Command{Name: "hi", Handler: func(context.Context, *Context) error {
		calls++
		return nil
	}})
	ctx := context.Background()

	_, err := f.router.Route(ctx, guildMessage("5", "<@!100> hi"))
	require.NoError(t, err)
	_, err = f.router.Route(ctx, guildMessage("5", "!hi"))
	require.NoError(t, err)
	assert.Equal(t, 2, calls)

	// extra words are rejected before the handler runs
	_, err = f.router.Route(ctx, guildMessage("5", "!hi there"))
	var input *UserInputError
	require.ErrorAs(t, err, &input)
	assert.Equal(t, "Too many arguments passed to hi", input.Reason)
	assert.Equal(t, 2, calls)
}

func TestRouteIgnoresUnaddressed(t *testing.T) {
	f := newRouterFixture(t, &Command{Name: "hi", Handler: noop})
	ctx := context.Background()

	for _, content := range []string{"hello", "", "!", "! hi", "<@100> "} {
		c, err := f.router.Route(ctx, guildMessage("5", content))
		assert.NoError(t, err, content)
		assert.Nil(t, c, content)
	}
}

func TestRouteIgnoresSelfAndBots(t *testing.T) {
	f := newRouterFixture(t, &Command{Name: "hi", Handler: func(context.Context, *Context) error {
		t.Fatal("handler must not run")
		return nil
	}})
	ctx := context.Background()

	c, err := f.router.Route(ctx, guildMessage(botID, "!hi"))
	assert.NoError(t, err)
	assert.Nil(t, c)

	in := guildMessage("77", "!hi")
	in.Message.Author.Bot = true
	c, err = f.router.Route(ctx, in)
	assert.NoError(t, err)
	assert.Nil(t, c)
}

func TestRouteDirectMessageNeedsNoPrefix(t *testing.T) {
	calls := 0
	f := newRouterFixture(t, &Command{Name: "help", Handler: func(context.Context, *Context) error {
		calls++
		return nil
	}})
	ctx := context.Background()

	for _, content := range []string{"help", "!help", "?!help", "<@100> help"} {
		_, err := f.router.Route(ctx, directMessage("5", content))
		require.NoError(t, err, content)
	}
	assert.Equal(t, 4, calls)
}

func TestRouteCommandNotFound(t *testing.T) {
	f := newRouterFixture(t)

	c, err := f.router.Route(context.Background(), guildMessage("5", "!nope"))
	var nf *CommandNotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "nope", nf.Name)
	require.NotNil(t, c)
}

func TestRouteOwnerOnly(t *testing.T) {
	ran := false
	f := newRouterFixture(t, &Command{Name: "load", OwnerOnly: true, Handler: func(context.Context, *Context) error {
		ran = true
		return nil
	}})
	ctx := context.Background()

	_, err := f.router.Route(ctx, guildMessage("5", "!load"))
	var check *CheckFailureError
	require.ErrorAs(t, err, &check)
	assert.Equal(t, "You do not own this bot.", check.Reason)
	assert.False(t, ran)

	_, err = f.router.Route(ctx, guildMessage(ownerID, "!load"))
	require.NoError(t, err)
	assert.True(t, ran)
}

func TestRouteCooldown(t *testing.T) {
	f := newRouterFixture(t, &Command{
		Name:     "latency",
		Cooldown: &Cooldown{Rate: 1, Per: time.Minute},
		Handler:  noop,
	})
	ctx := context.Background()

	_, err := f.router.Route(ctx, guildMessage("5", "!latency"))
	require.NoError(t, err)

	_, err = f.router.Route(ctx, guildMessage("5", "!latency"))
	var cd *CooldownError
	require.ErrorAs(t, err, &cd)
	assert.Greater(t, cd.RetryAfter, time.Duration(0))

	// the owner is never limited
	for i := 0; i < 3; i++ {
		_, err = f.router.Route(ctx, guildMessage(ownerID, "!latency"))
		require.NoError(t, err)
	}
}

func TestRouteBadArgument(t *testing.T) {
	ran := false
	f := newRouterFixture(t, &Command{
		Name:   "setprefix",
		Params: []Param{{Name: "prefix", Kind: ParamString}},
		Handler: func(context.Context, *Context) error {
			ran = true
			return nil
		},
	})

	_, err := f.router.Route(context.Background(), guildMessage("5", "!setprefix"))
	var input *UserInputError
	require.ErrorAs(t, err, &input)
	assert.False(t, ran)
}

func TestRouteWrapsHandlerErrors(t *testing.T) {
	boom := errors.New("boom")
	f := newRouterFixture(t,
		&Command{Name: "fail", Handler: func(context.Context, *Context) error { return boom }},
		&Command{Name: "refuse", Handler: func(context.Context, *Context) error {
			return Checkf("You can't change the prefix")
		}},
	)
	ctx := context.Background()

	_, err := f.router.Route(ctx, guildMessage("5", "!fail"))
	var inv *InvokeError
	require.ErrorAs(t, err, &inv)
	assert.Equal(t, "fail", inv.Command)
	assert.ErrorIs(t, err, boom)

	_, err = f.router.Route(ctx, guildMessage("5", "!refuse"))
	var check *CheckFailureError
	require.ErrorAs(t, err, &check)
	assert.False(t, errors.As(err, &inv), "check failures are not wrapped")
}

func TestDispatchIsolatesPanics(t *testing.T) {
	calls := 0
	f := newRouterFixture(t,
		&Command{Name: "explode", Handler: func(context.Context, *Context) error { panic("kaboom") }},
		&Command{Name: "ok", Handler: func(ctx context.Context, c *Context) error {
			calls++
			return nil
		}},
	)
	ctx := context.Background()

	_, err := f.router.Route(ctx, guildMessage("5", "!explode"))
	var p *PanicError
	require.ErrorAs(t, err, &p)
	assert.Equal(t, "kaboom", p.Value)

	f.router.Dispatch(ctx, guildMessage("5", "!explode"))
	assert.Equal(t, []string{genericFailure}, f.gw.texts())
	assert.Contains(t, f.logs.String(), "kaboom")

	f.router.Dispatch(ctx, guildMessage("5", "!ok"))
	assert.Equal(t, 1, calls)
}

func TestDispatchUnknownCommandReacts(t *testing.T) {
	f := newRouterFixture(t)
	f.router.Dispatch(context.Background(), guildMessage("5", "!what"))

	assert.Empty(t, f.gw.texts())
	assert.Equal(t, []string{EmojiUnknown}, f.gw.emojis())
}

func TestDispatchSeesReloadedCommand(t *testing.T) {
	cat := &catalog{}
	var seen []string
	version := func(v string) func() (*Cog, error) {
		return func() (*Cog, error) {
			return &Cog{Commands: []*Command{{Name: "ver", Handler: func(context.Context, *Context) error {
				seen = append(seen, v)
				return nil
			}}}}, nil
		}
	}
	cat.set("x", version("v1"))

	gw := newFakeGateway()
	reg := NewRegistry(cat, zerolog.Nop())
	router := NewRouter(RouterConfig{
		Registry: reg,
		Prefixes: NewPrefixResolver(staticPrefixes{"42": {"!"}}, gw),
		Gateway:  gw,
		Log:      zerolog.Nop(),
	})
	ctx := context.Background()

	require.NoError(t, reg.Load(ctx, "x"))
	router.Dispatch(ctx, guildMessage("5", "!ver"))

	cat.set("x", version("v2"))
	require.NoError(t, reg.Reload(ctx, "x"))
	router.Dispatch(ctx, guildMessage("5", "!ver"))

	require.NoError(t, reg.Unload(ctx, "x"))
	router.Dispatch(ctx, guildMessage("5", "!ver"))

	assert.Equal(t, []string{"v1", "v2"}, seen)
	assert.Equal(t, []string{EmojiUnknown}, gw.emojis())
}
