package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStorage(t *testing.T) (*Storage, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "prefixes.json")
	s, err := New(path, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s, path
}

func TestAddRemoveRoundTrip(t *testing.T) {
	s, _ := newStorage(t)

	assert.Empty(t, s.GuildPrefixes("42"))

	require.NoError(t, s.AddPrefix("42", "!"))
	if diff := cmp.Diff([]string{"!"}, s.GuildPrefixes("42")); diff != "" {
		t.Fatalf("after add (-want +got):\n%s", diff)
	}

	require.NoError(t, s.RemovePrefix("42", "!"))
	assert.Empty(t, s.GuildPrefixes("42"))
}

func TestInsertionOrderAndDuplicates(t *testing.T) {
	s, _ := newStorage(t)

	for _, p := range []string{"?", "!", "bot "} {
		require.NoError(t, s.AddPrefix("1", p))
	}
	require.ErrorIs(t, s.AddPrefix("1", "!"), ErrPrefixExists)
	require.ErrorIs(t, s.AddPrefix("1", "  "), ErrPrefixInvalid)
	require.ErrorIs(t, s.RemovePrefix("1", "$"), ErrPrefixNotFound)

	if diff := cmp.Diff([]string{"?", "!", "bot "}, s.GuildPrefixes("1")); diff != "" {
		t.Fatalf("prefixes (-want +got):\n%s", diff)
	}
	assert.Empty(t, s.GuildPrefixes("2"))
}

func TestEveryChangeIsPersisted(t *testing.T) {
	s, path := newStorage(t)

	require.NoError(t, s.AddPrefix("42", "!"))

	other, err := New(path, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, []string{"!"}, other.GuildPrefixes("42"))
	require.NoError(t, other.Close())

	require.NoError(t, s.RemovePrefix("42", "!"))
	require.NoError(t, s.Reload())
	assert.Empty(t, s.GuildPrefixes("42"))
}

func TestCorruptDocumentDegradesToEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prefixes.json")
	require.NoError(t, os.WriteFile(path, []byte(`["not", "an", "object"]`), 0o644))

	s, err := New(path, zerolog.Nop())
	require.NoError(t, err)
	defer s.Close()

	assert.Empty(t, s.GuildPrefixes("42"))
	require.NoError(t, s.AddPrefix("42", "!"))
	assert.Equal(t, []string{"!"}, s.GuildPrefixes("42"))
}

func TestFailedSaveKeepsPreviousPrefixes(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "data")
	s, err := New(filepath.Join(dir, "prefixes.json"), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	require.NoError(t, s.AddPrefix("42", "!"))
	require.NoError(t, os.RemoveAll(dir))

	err = s.AddPrefix("42", "?")
	require.ErrorContains(t, err, "failed to persist prefixes")
	err = s.AddPrefix("7", "$")
	require.ErrorContains(t, err, "failed to persist prefixes")
	err = s.RemovePrefix("42", "!")
	require.ErrorContains(t, err, "failed to persist prefixes")

	if diff := cmp.Diff([]string{"!"}, s.GuildPrefixes("42")); diff != "" {
		t.Fatalf("prefixes after failed saves (-want +got):\n%s", diff)
	}
	assert.Empty(t, s.GuildPrefixes("7"))
}
