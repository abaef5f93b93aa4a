package core

import (
	"context"
	"runtime/debug"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// RouterConfig wires a Router.
type RouterConfig struct {
	Registry    *Registry
	Prefixes    *PrefixResolver
	Gateway     Gateway
	Reporter    *Reporter
	Cooldowns   *Cooldowns
	IsOwner     func(userID string) bool
	Middlewares []Middleware
	Log         zerolog.Logger
}

// Router dispatches inbound messages to at most one command each.
type Router struct {
	registry  *Registry
	prefixes  *PrefixResolver
	gateway   Gateway
	reporter  *Reporter
	cooldowns *Cooldowns
	isOwner   func(userID string) bool
	mws       []Middleware
	log       zerolog.Logger
}

func NewRouter(cfg RouterConfig) *Router {
	r := &Router{
		registry:  cfg.Registry,
		prefixes:  cfg.Prefixes,
		gateway:   cfg.Gateway,
		reporter:  cfg.Reporter,
		cooldowns: cfg.Cooldowns,
		isOwner:   cfg.IsOwner,
		mws:       cfg.Middlewares,
		log:       cfg.Log,
	}
	if r.cooldowns == nil {
		r.cooldowns = NewCooldowns()
	}
	if r.isOwner == nil {
		r.isOwner = func(string) bool { return false }
	}
	if r.reporter == nil {
		r.reporter = NewReporter(cfg.Log)
	}
	return r
}

// Dispatch routes one message and reports any failure. Nothing escapes it:
// a failing dispatch never affects the next one.
func (r *Router) Dispatch(ctx context.Context, in Inbound) {
	defer func() {
		if p := recover(); p != nil {
			r.log.Error().Interface("panic", p).Bytes("stack", debug.Stack()).Msg("dispatch panicked")
		}
	}()

	c, err := r.Route(ctx, in)
	if err == nil || c == nil {
		return
	}
	r.reporter.Report(ctx, c, err)
}

// Route matches and runs the command for in. It returns a nil Context when
// the message is not addressed to the bot at all.
func (r *Router) Route(ctx context.Context, in Inbound) (c *Context, err error) {
	msg := in.Message
	if msg == nil || msg.Author == nil {
		return nil, nil
	}

	if self := r.gateway.Self(); self != nil && msg.Author.ID == self.ID {
		r.log.Trace().Str("channel", msg.ChannelID).Msg("own message, not routed")
		return nil, nil
	}
	if msg.Author.Bot {
		return nil, nil
	}

	prefix, ok := matchPrefix(msg.Content, r.prefixes.Resolve(in))
	if !ok {
		return nil, nil
	}

	rest := msg.Content[len(prefix):]
	name, rawArgs := splitCommand(rest)
	if name == "" {
		return nil, nil
	}

	c = NewContext(in, r.gateway)
	c.Prefix = prefix
	c.InvokedWith = name
	c.RawArgs = rawArgs
	c.DispatchID = uuid.NewString()
	c.IsOwner = r.isOwner(msg.Author.ID)

	defer func() {
		if p := recover(); p != nil {
			err = &InvokeError{Command: name, Err: &PanicError{Value: p, Stack: debug.Stack()}}
		}
	}()

	cmd, ok := r.registry.Lookup(name)
	if !ok {
		return c, &CommandNotFoundError{Name: name}
	}
	c.Command = cmd

	args, err := ParseArgs(cmd.Name, cmd.Params, rawArgs)
	if err != nil {
		return c, err
	}
	c.Args = args

	if cmd.OwnerOnly && !c.IsOwner {
		return c, &CheckFailureError{Reason: "You do not own this bot."}
	}
	if !c.IsOwner {
		if err := r.cooldowns.Hit(cmd, msg.Author.ID); err != nil {
			return c, err
		}
	}

	r.log.Trace().
		Str("dispatch", c.DispatchID).
		Str("command", cmd.Name).
		Str("prefix", prefix).
		Msg("dispatching")

	h := Chain(cmd.Handler, r.mws...)
	if err := h(ctx, c); err != nil {
		if routingError(err) {
			return c, err
		}
		return c, &InvokeError{Command: cmd.Name, Err: err}
	}
	return c, nil
}

// splitCommand cuts the command name off the text following a prefix.
func splitCommand(s string) (name, rest string) {
	i := strings.IndexAny(s, " \t\n\r\v\f")
	if i < 0 {
		return s, ""
	}
	return s[:i], s[i+1:]
}
