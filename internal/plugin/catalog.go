// Package plugin keeps the descriptors of every registered handler so the
// help listing can be built without knowing about the handlers themselves.
package plugin

import (
	"strings"
	"sync"
)

// Descriptor is the metadata a handler exposes to the dispatcher and to the
// help listing.
type Descriptor struct {
	Name        string
	Description string
	Command     string   // trigger word without prefix; empty for message handlers
	Aliases     []string // alternative triggers
	Feature     string   // feature flag gating the handler; empty means always on
	Priority    int      // lower runs first
	Block       bool     // stop further handlers after this one ran
	Hidden      bool     // omit from help
}

// Auto reports whether the handler runs on every message instead of a
// command trigger.
func (d Descriptor) Auto() bool { return d.Command == "" }

// Matches reports whether trigger selects this command.
func (d Descriptor) Matches(trigger string) bool {
	if d.Command == "" || trigger == "" {
		return false
	}
	if strings.EqualFold(d.Command, trigger) {
		return true
	}
	for _, a := range d.Aliases {
		if strings.EqualFold(a, trigger) {
			return true
		}
	}
	return false
}

// Usage renders a short usage line with the given command prefix.
func (d Descriptor) Usage(prefix string) string {
	if d.Auto() {
		return "auto"
	}
	return prefix + d.Command + " [args]"
}

// Catalog stores descriptors in registration order.
type Catalog struct {
	mu    sync.RWMutex
	items []entry
	next  int
}

type entry struct {
	id   int
	desc Descriptor
}

// NewCatalog returns an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{}
}

// Add records d and returns an id that can be passed to Remove.
func (c *Catalog) Add(d Descriptor) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.next++
	c.items = append(c.items, entry{id: c.next, desc: d})
	return c.next
}

// Remove drops the descriptor added under id.
func (c *Catalog) Remove(id int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, e := range c.items {
		if e.id == id {
			c.items = append(c.items[:i], c.items[i+1:]...)
			return
		}
	}
}

// Commands lists command descriptors.
func (c *Catalog) Commands(includeHidden bool) []Descriptor {
	return c.filter(func(d Descriptor) bool {
		return !d.Auto() && (includeHidden || !d.Hidden)
	})
}

// Messages lists auto-triggered descriptors.
func (c *Catalog) Messages(includeHidden bool) []Descriptor {
	return c.filter(func(d Descriptor) bool {
		return d.Auto() && (includeHidden || !d.Hidden)
	})
}

// Features lists the distinct feature names referenced by descriptors.
func (c *Catalog) Features() []string {
	seen := map[string]bool{}
	var out []string
	for _, d := range c.filter(func(Descriptor) bool { return true }) {
		if d.Feature != "" && !seen[d.Feature] {
			seen[d.Feature] = true
			out = append(out, d.Feature)
		}
	}
	return out
}

func (c *Catalog) filter(keep func(Descriptor) bool) []Descriptor {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []Descriptor
	for _, e := range c.items {
		if keep(e.desc) {
			out = append(out, e.desc)
		}
	}
	return out
}
