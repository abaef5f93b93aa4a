package storage

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

var (
	ErrPrefixExists   = errors.New("prefix already set")
	ErrPrefixNotFound = errors.New("prefix not set")
	ErrPrefixInvalid  = errors.New("prefix must not be empty")
)

// GuildPrefixes returns the guild's prefixes in insertion order.
func (s *Storage) GuildPrefixes(guildID string) []string {
	var prefixes []string
	ok, err := s.ds.Get(guildID, &prefixes)
	if !ok || err != nil {
		return nil
	}
	return prefixes
}

// AddPrefix appends prefix to the guild's list and rewrites the document.
func (s *Storage) AddPrefix(guildID, prefix string) error {
	if strings.TrimSpace(prefix) == "" {
		return ErrPrefixInvalid
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	prefixes := s.GuildPrefixes(guildID)
	if slices.Contains(prefixes, prefix) {
		return fmt.Errorf("%w: %q", ErrPrefixExists, prefix)
	}
	return s.writePrefixes(guildID, prefixes, append(slices.Clip(prefixes), prefix))
}

// RemovePrefix drops prefix from the guild's list and rewrites the document.
func (s *Storage) RemovePrefix(guildID, prefix string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prefixes := s.GuildPrefixes(guildID)
	i := slices.Index(prefixes, prefix)
	if i < 0 {
		return fmt.Errorf("%w: %q", ErrPrefixNotFound, prefix)
	}
	return s.writePrefixes(guildID, prefixes, slices.Delete(slices.Clone(prefixes), i, i+1))
}

// writePrefixes replaces prev with next and saves. If the save fails the
// in-memory list goes back to prev, so routing never sees a prefix that is
// not on disk.
func (s *Storage) writePrefixes(guildID string, prev, next []string) error {
	if err := s.setPrefixes(guildID, next); err != nil {
		return err
	}
	if err := s.ds.SaveToFile(); err != nil {
		err = fmt.Errorf("failed to persist prefixes: %w", err)
		if rerr := s.setPrefixes(guildID, prev); rerr != nil {
			return errors.Join(err, fmt.Errorf("failed to restore prefixes: %w", rerr))
		}
		return err
	}
	return nil
}

func (s *Storage) setPrefixes(guildID string, prefixes []string) error {
	if len(prefixes) == 0 {
		return s.ds.Delete(guildID)
	}
	return s.ds.Put(guildID, prefixes)
}
