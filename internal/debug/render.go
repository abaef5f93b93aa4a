package debug

import (
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"
)

const (
	SensitiveNotice = "Doing this would reveal sensitive info!!!"

	embedLimit = 2000
	plainLimit = 1500
)

// Output is what gets posted: an embed when the channel allows one,
// otherwise plain text.
type Output struct {
	Embed *discordgo.MessageEmbed
	Text  string
}

// Reveals reports whether text contains any non-empty secret verbatim.
func Reveals(text string, secrets []string) bool {
	for _, s := range secrets {
		if s != "" && strings.Contains(text, s) {
			return true
		}
	}
	return false
}

// Render formats r for a channel. Redaction is decided on the full text
// before anything is cut.
func Render(r Result, secrets []string, embeds bool) Output {
	if Reveals(r.Text, secrets) {
		return Output{Text: SensitiveNotice}
	}

	runes := []rune(r.Text)
	notes := annotation(r, len(runes) > embedLimit)

	if embeds {
		return Output{Embed: &discordgo.MessageEmbed{
			Description: string(runes[:min(len(runes), embedLimit)]),
			Footer:      &discordgo.MessageEmbedFooter{Text: notes},
		}}
	}

	escaped := []rune(strings.ReplaceAll(r.Text, "`", "ˋ"))
	body := string(escaped[:min(len(escaped), plainLimit)])
	return Output{Text: fmt.Sprintf("```xl\nOutput: %s\nOutput class: %s```", body, notes)}
}

func annotation(r Result, cut bool) string {
	parts := []string{r.Kind}
	if r.Awaited {
		parts = append(parts, "| Command has been awaited")
	}
	if cut {
		parts = append(parts, "| Result has been cut")
	}
	return strings.Join(parts, " ")
}
