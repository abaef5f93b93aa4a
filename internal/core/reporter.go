package core

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"
)

// DebugCommand is the command whose failures are shown inline by the debug
// evaluator instead of being logged here.
const DebugCommand = "debug"

const genericFailure = "❌ Error occurred while handling the command."

// Reporter turns dispatch errors into user feedback and log entries.
type Reporter struct {
	log zerolog.Logger
}

func NewReporter(log zerolog.Logger) *Reporter {
	return &Reporter{log: log}
}

// Report handles err for the dispatch described by c. When the bot may not
// send messages in the channel every text reply is replaced by a muted
// reaction.
func (r *Reporter) Report(ctx context.Context, c *Context, err error) {
	if err == nil {
		return
	}

	canSend := c.BotCan(discordgo.PermissionSendMessages)
	if !canSend {
		c.ReactOrFalse(ctx, EmojiMuted)
	}
	send := func(content string) {
		if !canSend {
			return
		}
		if _, serr := c.Send(ctx, content); serr != nil {
			r.log.Debug().Err(serr).Str("channel", c.ChannelID()).Msg("failed to send error reply")
		}
	}

	var (
		cooldown *CooldownError
		input    *UserInputError
		check    *CheckFailureError
		notFound *CommandNotFoundError
		invoke   *InvokeError
	)

	switch {
	case errors.As(err, &cooldown):
		if !c.ReactOrFalse(ctx, EmojiCooldown) {
			send(EmojiCooldown + " " + cooldown.Error())
		}
		return
	case errors.As(err, &input):
		send(fmt.Sprintf("%s Bad argument: %s", EmojiCross, input.Reason))
		return
	case errors.As(err, &check):
		send(fmt.Sprintf("%s Check failure. %s", EmojiCross, check.Reason))
		return
	case errors.As(err, &notFound):
		c.ReactOrFalse(ctx, EmojiUnknown)
		return
	}

	if !(errors.As(err, &invoke) && IsTransportError(invoke.Err)) {
		send(genericFailure)
	}

	if c.Command != nil && c.Command.Name == DebugCommand {
		return
	}
	r.logFailure(c, err)
}

func (r *Reporter) logFailure(c *Context, err error) {
	name := ""
	if c.Command != nil {
		name = c.Command.Name
	}
	r.log.Error().
		Str("dispatch", c.DispatchID).
		Str("command", name).
		Str("kind", fmt.Sprintf("%T", err)).
		Msg(err.Error())

	ev := r.log.Trace().
		Str("dispatch", c.DispatchID).
		Str("command", name).
		Str("content", c.Message.Content).
		Strs("causes", CauseChain(err))
	var p *PanicError
	if errors.As(err, &p) {
		ev = ev.Bytes("stack", p.Stack)
	}
	ev.Msg("command failure detail")
}

// CauseChain lists err and everything it wraps, outermost first, as
// "type: message" lines.
func CauseChain(err error) []string {
	var out []string
	var walk func(error, int)
	walk = func(e error, depth int) {
		for e != nil {
			out = append(out, fmt.Sprintf("%s%T: %v", strings.Repeat("  ", depth), e, e))
			if multi, ok := e.(interface{ Unwrap() []error }); ok {
				for _, inner := range multi.Unwrap() {
					walk(inner, depth+1)
				}
				return
			}
			e = errors.Unwrap(e)
		}
	}
	walk(err, 0)
	return out
}
