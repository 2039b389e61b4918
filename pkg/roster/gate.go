// Package roster keeps the set of contacts whose conversations the user
// hid locally. Hiding never touches the server; the next message from a
// hidden contact brings them back.
package roster

import (
	"sort"
	"strings"
	"sync"

	"github.com/tinyland-inc/picochat/pkg/chat"
)

type Gate struct {
	mu     sync.RWMutex
	hidden map[string]struct{}
}

func NewGate() *Gate {
	return &Gate{hidden: make(map[string]struct{})}
}

func (g *Gate) Hide(id string) {
	if id == "" {
		return
	}
	g.mu.Lock()
	g.hidden[id] = struct{}{}
	g.mu.Unlock()
}

// Reveal lifts suppression for id and reports whether it was hidden.
func (g *Gate) Reveal(id string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.hidden[id]; !ok {
		return false
	}
	delete(g.hidden, id)
	return true
}

func (g *Gate) IsHidden(id string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.hidden[id]
	return ok
}

// Hidden returns the suppressed ids, sorted.
func (g *Gate) Hidden() []string {
	g.mu.RLock()
	out := make([]string, 0, len(g.hidden))
	for id := range g.hidden {
		out = append(out, id)
	}
	g.mu.RUnlock()
	sort.Strings(out)
	return out
}

// Filter drops hidden contacts and, when query is set, contacts whose
// display name does not contain it (case-insensitive). A nil gate hides nothing.
func Filter(contacts []chat.Contact, gate *Gate, query string) []chat.Contact {
	q := strings.ToLower(strings.TrimSpace(query))
	out := make([]chat.Contact, 0, len(contacts))
	for _, c := range contacts {
		if gate != nil && gate.IsHidden(c.Identifier()) {
			continue
		}
		if q != "" && !strings.Contains(strings.ToLower(c.DisplayName()), q) {
			continue
		}
		out = append(out, c)
	}
	return out
}
