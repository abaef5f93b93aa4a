package debug

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderRedactsBeforeFormatting(t *testing.T) {
	const token = "NzA1.secret.token"
	long := strings.Repeat("x", 5000) + token

	out := Render(Result{Text: long, Kind: "string"}, []string{"", token}, true)
	assert.Nil(t, out.Embed)
	assert.Equal(t, SensitiveNotice, out.Text)

	out = Render(Result{Text: long, Kind: "string"}, []string{token}, false)
	assert.Equal(t, SensitiveNotice, out.Text)
}

func TestRenderIgnoresEmptySecrets(t *testing.T) {
	out := Render(Result{Text: "3", Kind: "int"}, []string{""}, false)
	assert.NotEqual(t, SensitiveNotice, out.Text)
}

func TestRenderEmbed(t *testing.T) {
	out := Render(Result{Text: "42", Kind: "int", Awaited: true}, nil, true)
	require.NotNil(t, out.Embed)
	assert.Equal(t, "42", out.Embed.Description)
	assert.Equal(t, "int | Command has been awaited", out.Embed.Footer.Text)
}

func TestRenderEmbedCut(t *testing.T) {
	text := strings.Repeat("é", 2500)
	out := Render(Result{Text: text, Kind: "string"}, nil, true)
	require.NotNil(t, out.Embed)
	assert.Equal(t, 2000, utf8.RuneCountInString(out.Embed.Description))
	assert.Equal(t, "string | Result has been cut", out.Embed.Footer.Text)
}

func TestRenderPlain(t *testing.T) {
	out := Render(Result{Text: "a `b`", Kind: "string"}, nil, false)
	assert.Equal(t, "```xl\nOutput: a ˋbˋ\nOutput class: string```", out.Text)

	out = Render(Result{Text: strings.Repeat("y", 1800), Kind: "string"}, nil, false)
	assert.Contains(t, out.Text, "Output: "+strings.Repeat("y", 1500)+"\n")
	assert.NotContains(t, out.Text, "Result has been cut", "1800 runes still fit an embed")

	out = Render(Result{Text: strings.Repeat("z", 2001), Kind: "string"}, nil, false)
	assert.True(t, strings.HasSuffix(out.Text, "Output class: string | Result has been cut```"))
}

func TestRenderZeroDivision(t *testing.T) {
	res := Evaluate(t.Context(), testEnv(), "1/0")
	out := Render(res, nil, true)
	require.NotNil(t, out.Embed)
	assert.Equal(t, "integer division by zero", out.Embed.Description)
	assert.Equal(t, res.Kind, out.Embed.Footer.Text)
}
