// Package search finds query matches in a conversation transcript and
// walks between them.
package search

import (
	"strings"
	"sync"

	"github.com/tinyland-inc/picochat/pkg/chat"
)

// Contains is the one match predicate: case-insensitive substring. Empty
// text or an empty query never match.
func Contains(text, query string) bool {
	if text == "" || query == "" {
		return false
	}
	return strings.Contains(strings.ToLower(text), strings.ToLower(query))
}

// Matches returns the positions of msgs whose text matches query, in list order.
func Matches(msgs []chat.Message, query string) []int {
	if query == "" {
		return nil
	}
	var out []int
	for i, m := range msgs {
		if Contains(m.Text, query) {
			out = append(out, i)
		}
	}
	return out
}

// ScrollFunc is called with the transcript position that should be brought into view.
type ScrollFunc func(position int)

type Indexer struct {
	mu       sync.Mutex
	query    string
	messages []chat.Message
	matches  []int
	cursor   int
	scroll   ScrollFunc
}

func NewIndexer(scroll ScrollFunc) *Indexer {
	return &Indexer{scroll: scroll}
}

func (ix *Indexer) SetQuery(query string) {
	ix.mu.Lock()
	ix.query = query
	target := ix.rebuild()
	ix.mu.Unlock()
	ix.signal(target)
}

// SetMessages replaces the transcript snapshot. The slice is copied.
func (ix *Indexer) SetMessages(msgs []chat.Message) {
	ix.mu.Lock()
	ix.messages = append(ix.messages[:0:0], msgs...)
	target := ix.rebuild()
	ix.mu.Unlock()
	ix.signal(target)
}

// rebuild recomputes the match sequence and resets the cursor. It returns
// the position to scroll to, or -1.
func (ix *Indexer) rebuild() int {
	ix.matches = Matches(ix.messages, ix.query)
	ix.cursor = 0
	if len(ix.matches) == 0 {
		return -1
	}
	return ix.matches[0]
}

func (ix *Indexer) Next() (int, bool) {
	return ix.step(1)
}

func (ix *Indexer) Previous() (int, bool) {
	return ix.step(-1)
}

func (ix *Indexer) step(delta int) (int, bool) {
	ix.mu.Lock()
	n := len(ix.matches)
	if n == 0 {
		ix.mu.Unlock()
		return -1, false
	}
	ix.cursor = (ix.cursor + delta + n) % n
	target := ix.matches[ix.cursor]
	ix.mu.Unlock()
	ix.signal(target)
	return target, true
}

func (ix *Indexer) signal(position int) {
	if position >= 0 && ix.scroll != nil {
		ix.scroll(position)
	}
}

func (ix *Indexer) Matches() []int {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return append([]int(nil), ix.matches...)
}

func (ix *Indexer) Cursor() int {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return ix.cursor
}

// Current returns the transcript position under the cursor.
func (ix *Indexer) Current() (int, bool) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if len(ix.matches) == 0 {
		return -1, false
	}
	return ix.matches[ix.cursor], true
}

func (ix *Indexer) Query() string {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return ix.query
}

// Segment is a run of text, marked when it matches the query.
type Segment struct {
	Text  string
	Match bool
}

// Highlight splits text into plain and matching runs using the same
// predicate as Contains. Matching is done on lowercase runes so offsets
// stay aligned with the original text.
func Highlight(text, query string) []Segment {
	if !Contains(text, query) {
		if text == "" {
			return nil
		}
		return []Segment{{Text: text}}
	}

	src := []rune(text)
	lower := []rune(strings.ToLower(text))
	q := []rune(strings.ToLower(query))
	if len(lower) != len(src) {
		// Case mapping changed the rune count; fall back to one marked run.
		return []Segment{{Text: text, Match: true}}
	}

	var segs []Segment
	start := 0
	for i := 0; i+len(q) <= len(lower); {
		if runesEqual(lower[i:i+len(q)], q) {
			if i > start {
				segs = append(segs, Segment{Text: string(src[start:i])})
			}
			segs = append(segs, Segment{Text: string(src[i : i+len(q)]), Match: true})
			i += len(q)
			start = i
			continue
		}
		i++
	}
	if start < len(src) {
		segs = append(segs, Segment{Text: string(src[start:])})
	}
	return segs
}

func runesEqual(a, b []rune) bool {
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
