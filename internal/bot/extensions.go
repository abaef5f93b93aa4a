package bot

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/keshon/basicbot/internal/core"
)

// Builder builds a fresh copy of an extension for b. It runs on every load
// and reload, so it must not keep state between calls.
type Builder func(b *Bot) (*core.Cog, error)

var (
	catalogMu sync.RWMutex
	catalog   = map[string]Builder{}
)

// RegisterExtension makes an extension loadable by name. Extension packages
// call it from init.
func RegisterExtension(name string, build Builder) {
	catalogMu.Lock()
	defer catalogMu.Unlock()
	if _, dup := catalog[name]; dup {
		panic(fmt.Sprintf("bot: extension %q registered twice", name))
	}
	catalog[name] = build
}

// Extensions lists every registered extension name.
func Extensions() []string {
	catalogMu.RLock()
	defer catalogMu.RUnlock()
	names := make([]string, 0, len(catalog))
	for name := range catalog {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (b *Bot) builder(name string) (Builder, bool) {
	if b.catalog != nil {
		build, ok := b.catalog[name]
		return build, ok
	}
	catalogMu.RLock()
	defer catalogMu.RUnlock()
	build, ok := catalog[name]
	return build, ok
}

// Resolve implements core.Resolver over the extension catalog.
func (b *Bot) Resolve(ctx context.Context, name string) (*core.Cog, error) {
	build, ok := b.builder(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", core.ErrUnknownExtension, name)
	}
	return build(b)
}
