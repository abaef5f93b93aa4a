package core

import (
	"context"
	"runtime/debug"
	"time"

	"github.com/rs/zerolog"
)

// Middleware wraps a handler (logging, recovery, metrics).
type Middleware func(HandlerFunc) HandlerFunc

// Chain applies middlewares in order; the first in the list is the outermost.
func Chain(h HandlerFunc, mws ...Middleware) HandlerFunc {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

// WithRecover turns a handler panic into a *PanicError.
func WithRecover() Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, c *Context) (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = &PanicError{Value: r, Stack: debug.Stack()}
				}
			}()
			return next(ctx, c)
		}
	}
}

// WithCommandLogger records every invocation at trace level.
func WithCommandLogger(log zerolog.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, c *Context) error {
			start := time.Now()
			err := next(ctx, c)

			ev := log.Trace().
				Str("dispatch", c.DispatchID).
				Str("command", c.Command.Name).
				Str("invoked_with", c.InvokedWith).
				Str("guild", c.GuildID()).
				Str("channel", c.ChannelID()).
				Dur("took", time.Since(start))
			if a := c.Author(); a != nil {
				ev = ev.Str("user_id", a.ID).Str("user", a.Username)
			}
			if err != nil {
				ev = ev.AnErr("error", err)
			}
			ev.Msg("command invoked")
			return err
		}
	}
}
