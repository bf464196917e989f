// Package version holds the per-ruleset configuration: which action sources
// are live, how log entries are rendered, and which dice each action rolls.
// The core never hard-codes a ruleset; it asks the registry.
package version

import (
	"fmt"
	"sort"
	"sync"

	"github.com/TankGameOrg/ui-sub000/internal/engine"
	"github.com/TankGameOrg/ui-sub000/internal/logbook"
	"github.com/TankGameOrg/ui-sub000/internal/source"
)

// Formatter renders one entry for humans, given the state the entry was
// applied to. The result is cached on the entry, recomputed at will, and
// never persisted as authoritative.
type Formatter func(entry *logbook.Entry, previous engine.State) string

// Ruleset is one game version's configuration.
type Ruleset struct {
	Name    string
	Sources *source.Set
	Format  Formatter
	DiceFor source.DiceFactory
}

var (
	mu       sync.RWMutex
	registry = make(map[string]*Ruleset)
)

// Register installs a ruleset under its name. Later registrations replace
// earlier ones, which keeps tests free to override.
func Register(r *Ruleset) {
	mu.Lock()
	defer mu.Unlock()
	registry[r.Name] = r
}

// Get looks a ruleset up by name.
func Get(name string) (*Ruleset, error) {
	mu.RLock()
	defer mu.RUnlock()
	r, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("version: unknown ruleset %q (have %v)", name, names())
	}
	return r, nil
}

// names returns registered ruleset names, sorted. Callers hold mu.
func names() []string {
	out := make([]string, 0, len(registry))
	for n := range registry {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
