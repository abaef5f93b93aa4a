package core

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"slices"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// Resolver builds a fresh copy of a named cog. It must not touch live
// registry state.
type Resolver interface {
	Resolve(ctx context.Context, name string) (*Cog, error)
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc func(ctx context.Context, name string) (*Cog, error)

func (f ResolverFunc) Resolve(ctx context.Context, name string) (*Cog, error) { return f(ctx, name) }

// ErrUnknownExtension is wrapped by resolvers that have no such cog.
var ErrUnknownExtension = errors.New("no such extension")

// ReloadStatus is one line of a ReloadAll report.
type ReloadStatus struct {
	Extension string
	Err       error
}

// table is an immutable snapshot of everything that can be dispatched.
type table struct {
	builtins   []*Command
	extensions map[string]*Cog
	names      map[string]*Command
	aliases    map[string]*Command
}

func buildTable(builtins []*Command, extensions map[string]*Cog) (*table, error) {
	t := &table{
		builtins:   builtins,
		extensions: extensions,
		names:      make(map[string]*Command),
		aliases:    make(map[string]*Command),
	}

	owner := map[string]string{}
	claim := func(key string, cmd *Command) error {
		if prev, ok := owner[key]; ok {
			return fmt.Errorf("command or alias %q is already registered by %s", key, prev)
		}
		owner[key] = describeOwner(cmd)
		return nil
	}

	add := func(cmd *Command) error {
		if err := claim(cmd.Name, cmd); err != nil {
			return err
		}
		t.names[cmd.Name] = cmd
		for _, a := range cmd.Aliases {
			if err := claim(a, cmd); err != nil {
				return err
			}
			t.aliases[a] = cmd
		}
		return nil
	}

	for _, cmd := range builtins {
		if err := add(cmd); err != nil {
			return nil, err
		}
	}

	// deterministic collision reports
	names := make([]string, 0, len(extensions))
	for name := range extensions {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		for _, cmd := range extensions[name].Commands {
			if err := add(cmd); err != nil {
				return nil, err
			}
		}
	}
	return t, nil
}

func describeOwner(cmd *Command) string {
	if cmd.Extension == "" {
		return "the bot"
	}
	return "extension " + cmd.Extension
}

func (t *table) lookup(name string) (*Command, bool) {
	if cmd, ok := t.names[name]; ok {
		return cmd, true
	}
	cmd, ok := t.aliases[name]
	return cmd, ok
}

// with returns the extension map with name set to cog (or removed when cog
// is nil). The receiver is not modified.
func (t *table) with(name string, cog *Cog) map[string]*Cog {
	next := make(map[string]*Cog, len(t.extensions)+1)
	for k, v := range t.extensions {
		next[k] = v
	}
	if cog == nil {
		delete(next, name)
	} else {
		next[name] = cog
	}
	return next
}

// Registry holds the dispatch table. Readers load the current snapshot
// without locking; writers are serialised and publish a complete new
// snapshot in one store.
type Registry struct {
	resolver Resolver
	log      zerolog.Logger

	mu      sync.Mutex
	current atomic.Pointer[table]
}

func NewRegistry(resolver Resolver, log zerolog.Logger) *Registry {
	r := &Registry{resolver: resolver, log: log}
	r.current.Store(&table{
		extensions: map[string]*Cog{},
		names:      map[string]*Command{},
		aliases:    map[string]*Command{},
	})
	return r
}

// RegisterBuiltin adds commands that belong to no extension.
func (r *Registry) RegisterBuiltin(cmds ...*Command) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur := r.current.Load()
	for _, cmd := range cmds {
		if err := validateCommand(cmd); err != nil {
			return err
		}
		cmd.Extension = ""
	}
	next, err := buildTable(append(slices.Clone(cur.builtins), cmds...), cur.extensions)
	if err != nil {
		return err
	}
	r.current.Store(next)
	return nil
}

// Lookup finds a command by exact name, then by alias.
func (r *Registry) Lookup(name string) (*Command, bool) {
	return r.current.Load().lookup(name)
}

// Commands returns every registered command sorted by name.
func (r *Registry) Commands() []*Command {
	t := r.current.Load()
	out := make([]*Command, 0, len(t.names))
	for _, cmd := range t.names {
		out = append(out, cmd)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Loaded returns the names of loaded extensions, sorted.
func (r *Registry) Loaded() []string {
	t := r.current.Load()
	out := make([]string, 0, len(t.extensions))
	for name := range t.extensions {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func (r *Registry) IsLoaded(name string) bool {
	_, ok := r.current.Load().extensions[name]
	return ok
}

// Load resolves name and installs it, replacing a previously loaded version.
func (r *Registry) Load(ctx context.Context, name string) error {
	r.log.Info().Str("extension", name).Msg("Loading " + name)

	cog, err := r.resolve(ctx, name)
	if err != nil {
		r.log.Error().Err(err).Str("extension", name).Msg("resolution failed")
		return err
	}

	if err := r.activate(ctx, name, cog); err != nil {
		r.log.Error().Err(err).Str("extension", name).Msg("activation failed")
		return err
	}
	return nil
}

// Reload is Load for an extension that may already be loaded: the fresh
// version is resolved first, so a broken reload never unloads a working one.
func (r *Registry) Reload(ctx context.Context, name string) error {
	return r.Load(ctx, name)
}

// Unload removes every command of the extension.
func (r *Registry) Unload(ctx context.Context, name string) error {
	r.log.Info().Str("extension", name).Msg("Unloading " + name)

	r.mu.Lock()
	defer r.mu.Unlock()

	cur := r.current.Load()
	cog, ok := cur.extensions[name]
	if !ok {
		return &NotLoadedError{Extension: name}
	}

	next, err := buildTable(cur.builtins, cur.with(name, nil))
	if err != nil {
		return err
	}
	r.current.Store(next)
	r.teardown(cog)
	return nil
}

// ReloadAll reloads every loaded extension and every name in autoLoad,
// continuing past failures.
func (r *Registry) ReloadAll(ctx context.Context, autoLoad []string) []ReloadStatus {
	names := r.Loaded()
	for _, name := range autoLoad {
		if !slices.Contains(names, name) {
			names = append(names, name)
		}
	}

	report := make([]ReloadStatus, 0, len(names))
	for _, name := range names {
		report = append(report, ReloadStatus{Extension: name, Err: r.Reload(ctx, name)})
	}
	return report
}

func (r *Registry) resolve(ctx context.Context, name string) (cog *Cog, err error) {
	defer func() {
		if p := recover(); p != nil {
			r.log.Trace().Str("extension", name).Bytes("stack", debug.Stack()).Msg("resolver panicked")
			cog, err = nil, &ResolutionError{Extension: name, Err: fmt.Errorf("panic: %v", p)}
		}
	}()

	if r.resolver == nil {
		return nil, &ResolutionError{Extension: name, Err: ErrUnknownExtension}
	}
	cog, err = r.resolver.Resolve(ctx, name)
	if err != nil {
		return nil, &ResolutionError{Extension: name, Err: err}
	}
	if cog == nil {
		return nil, &ResolutionError{Extension: name, Err: errors.New("resolver returned no cog")}
	}

	cog.Name = name
	for _, cmd := range cog.Commands {
		if err := validateCommand(cmd); err != nil {
			return nil, &ResolutionError{Extension: name, Err: err}
		}
		cmd.Extension = name
	}
	return cog, nil
}

// activate installs cog under name. The stale version is torn down before
// the new one is set up; if setup fails the stale version is set up again.
func (r *Registry) activate(ctx context.Context, name string, cog *Cog) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur := r.current.Load()
	next, err := buildTable(cur.builtins, cur.with(name, cog))
	if err != nil {
		return &ActivationError{Extension: name, Err: err}
	}

	prev, hadPrev := cur.extensions[name]
	if hadPrev {
		r.teardown(prev)
	}

	if err := r.setup(ctx, cog); err != nil {
		aerr := &ActivationError{Extension: name, Err: err}
		if hadPrev {
			if rerr := r.setup(ctx, prev); rerr != nil {
				aerr.RollbackErr = rerr
				if without, berr := buildTable(cur.builtins, cur.with(name, nil)); berr == nil {
					r.current.Store(without)
				}
			}
		}
		return aerr
	}

	r.current.Store(next)
	return nil
}

func (r *Registry) setup(ctx context.Context, cog *Cog) (err error) {
	if cog.Setup == nil {
		return nil
	}
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("setup panicked: %v", p)
		}
	}()
	return cog.Setup(ctx)
}

func (r *Registry) teardown(cog *Cog) {
	if cog.Teardown == nil {
		return
	}
	defer func() {
		if p := recover(); p != nil {
			r.log.Error().Str("extension", cog.Name).Interface("panic", p).Msg("teardown panicked")
		}
	}()
	cog.Teardown()
}

func validateCommand(cmd *Command) error {
	if cmd == nil {
		return errors.New("nil command")
	}
	if cmd.Name == "" {
		return errors.New("command without a name")
	}
	if cmd.Handler == nil {
		return fmt.Errorf("command %q has no handler", cmd.Name)
	}
	return nil
}
