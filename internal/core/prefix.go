package core

import (
	"strings"
	"unicode"
)

// PrefixSource supplies the configured prefixes of a guild.
type PrefixSource interface {
	GuildPrefixes(guildID string) []string
}

// PrefixResolver computes the prefixes a message may start with.
type PrefixResolver struct {
	source  PrefixSource
	gateway Gateway
}

func NewPrefixResolver(source PrefixSource, gw Gateway) *PrefixResolver {
	return &PrefixResolver{source: source, gateway: gw}
}

// Resolve returns candidate prefixes, mention forms first.
//
// In a direct channel the result is exactly the bot mention followed by the
// message's leading run of non-alphanumeric characters, which may be empty so
// that no prefix is needed at all. In a guild it is the mention forms followed
// by the guild's configured prefixes in their stored order.
func (p *PrefixResolver) Resolve(in Inbound) []string {
	botID := ""
	if self := p.gateway.Self(); self != nil {
		botID = self.ID
	}

	if in.Direct {
		return []string{
			"<@" + botID + "> ",
			leadingSymbols(in.Message.Content),
		}
	}

	prefixes := MentionForms(botID)
	if p.source != nil {
		prefixes = append(prefixes, p.source.GuildPrefixes(in.Message.GuildID)...)
	}
	return prefixes
}

// MentionForms returns the ways a message can address the bot.
func MentionForms(botID string) []string {
	return []string{"<@" + botID + "> ", "<@!" + botID + "> "}
}

// IsMention reports whether prefix is one of the bot's mention forms.
func IsMention(prefix, botID string) bool {
	for _, m := range MentionForms(botID) {
		if prefix == m {
			return true
		}
	}
	return false
}

func leadingSymbols(content string) string {
	end := strings.IndexFunc(content, func(r rune) bool {
		return unicode.IsLetter(r) || unicode.IsDigit(r)
	})
	if end < 0 {
		return content
	}
	return content[:end]
}

// matchPrefix returns the longest candidate that content starts with. On
// equal length the earlier candidate wins.
func matchPrefix(content string, candidates []string) (string, bool) {
	best, found := "", false
	for _, c := range candidates {
		if !strings.HasPrefix(content, c) {
			continue
		}
		if !found || len(c) > len(best) {
			best, found = c, true
		}
	}
	return best, found
}
