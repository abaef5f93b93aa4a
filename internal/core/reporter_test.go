package core

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func reportContext(gw *fakeGateway, cmdName string) *Context {
	c := NewContext(guildMessage("5", "!"+cmdName), gw)
	c.DispatchID = "d-1"
	if cmdName != "" {
		c.Command = &Command{Name: cmdName, Handler: noop}
	}
	return c
}

func TestReport(t *testing.T) {
	const all = discordgo.PermissionSendMessages | discordgo.PermissionAddReactions
	restErr := &discordgo.RESTError{Response: &http.Response{Status: "502 Bad Gateway", StatusCode: 502}}

	tests := []struct {
		name      string
		perms     int64
		err       error
		wantText  []string
		wantEmoji []string
		logged    bool
	}{
		{
			name:      "cooldown reacts",
			perms:     all,
			err:       &CooldownError{Command: "latency", RetryAfter: 1500 * time.Millisecond},
			wantEmoji: []string{EmojiCooldown},
		},
		{
			name:     "cooldown without reactions",
			perms:    discordgo.PermissionSendMessages,
			err:      &CooldownError{Command: "latency", RetryAfter: 1500 * time.Millisecond},
			wantText: []string{"⏰ You are on cooldown. Try again in 1.50s"},
		},
		{
			name:     "bad argument",
			perms:    all,
			err:      &UserInputError{Param: "n", Reason: "n is a required argument that is missing."},
			wantText: []string{"❌ Bad argument: n is a required argument that is missing."},
		},
		{
			name:     "check failure",
			perms:    all,
			err:      &CheckFailureError{Reason: "You do not own this bot."},
			wantText: []string{"❌ Check failure. You do not own this bot."},
		},
		{
			name:      "unknown command",
			perms:     all,
			err:       &CommandNotFoundError{Name: "nope"},
			wantEmoji: []string{EmojiUnknown},
		},
		{
			name:     "handler failure",
			perms:    all,
			err:      &InvokeError{Command: "x", Err: errors.New("kaput")},
			wantText: []string{genericFailure},
			logged:   true,
		},
		{
			name:   "transport failure is not announced",
			perms:  all,
			err:    &InvokeError{Command: "x", Err: restErr},
			logged: true,
		},
		{
			name:      "muted channel",
			perms:     discordgo.PermissionAddReactions,
			err:       &CheckFailureError{Reason: "nope"},
			wantEmoji: []string{EmojiMuted},
		},
		{
			name:      "muted channel still logs",
			perms:     discordgo.PermissionAddReactions,
			err:       &InvokeError{Command: "x", Err: errors.New("kaput")},
			wantEmoji: []string{EmojiMuted},
			logged:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gw := newFakeGateway()
			gw.botPerms = tt.perms
			var buf bytes.Buffer
			r := NewReporter(zerolog.New(&buf))

			r.Report(context.Background(), reportContext(gw, "x"), tt.err)

			assert.Equal(t, tt.wantText, gw.texts())
			assert.Equal(t, tt.wantEmoji, gw.emojis())
			if tt.logged {
				assert.Contains(t, buf.String(), `"level":"error"`)
				assert.Contains(t, buf.String(), `"dispatch":"d-1"`)
			} else {
				assert.Empty(t, buf.String())
			}
		})
	}
}

func TestReportDebugFailureNotLogged(t *testing.T) {
	gw := newFakeGateway()
	var buf bytes.Buffer
	r := NewReporter(zerolog.New(&buf))

	r.Report(context.Background(), reportContext(gw, DebugCommand), &InvokeError{Command: DebugCommand, Err: errors.New("boom")})

	assert.Equal(t, []string{genericFailure}, gw.texts())
	assert.Empty(t, buf.String())
}

func TestCauseChain(t *testing.T) {
	inner := errors.New("disk full")
	err := &ActivationError{Extension: "x", Err: inner, RollbackErr: errors.New("still full")}

	chain := CauseChain(&InvokeError{Command: "load", Err: err})
	assert.Len(t, chain, 4)
	assert.Contains(t, chain[0], "*core.InvokeError")
	assert.Contains(t, chain[1], "*core.ActivationError")
	assert.Contains(t, chain[2], "disk full")
	assert.Contains(t, chain[3], "still full")
}
