// Package moderation decides whether chat content may be published.
package moderation

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync/atomic"
	"unicode"

	goahocorasick "github.com/anknown/ahocorasick"
	"github.com/samber/lo"
)

// Reason is the machine-readable cause of a blocked verdict.
type Reason string

const (
	ReasonEmpty         Reason = "Empty"
	ReasonBannedKeyword Reason = "BannedKeyword"
)

// Verdict is the result of Check. A zero Reason means allowed.
type Verdict struct {
	Allowed bool
	Reason  Reason
	// Detail is the deny-list term that matched, if any.
	Detail string
}

func allowed() Verdict { return Verdict{Allowed: true} }

// snapshot is an immutable compiled deny-list.
type snapshot struct {
	matcher *goahocorasick.Machine // nil when the list is empty
	words   []string
}

// Filter matches text against a deny-list, case-insensitively, as substrings.
// The compiled list is swapped atomically, so Check never observes a
// half-built automaton and is safe for concurrent use.
type Filter struct {
	current atomic.Pointer[snapshot]
}

// NewFilter builds a filter over words. Blank and duplicate entries are ignored.
func NewFilter(words []string) (*Filter, error) {
	f := &Filter{}
	if err := f.Replace(words); err != nil {
		return nil, err
	}
	return f, nil
}

// Replace compiles a new deny-list and makes it current. On error the
// previous list stays in effect.
func (f *Filter) Replace(words []string) error {
	snap, err := compile(words)
	if err != nil {
		return err
	}
	f.current.Store(snap)
	return nil
}

// Words returns the normalized terms of the current list.
func (f *Filter) Words() []string {
	return append([]string(nil), f.current.Load().words...)
}

// Check never mutates text. Empty content is reported as ReasonEmpty;
// the message pipeline rejects that before calling Check, but a direct
// caller still gets a sensible verdict.
func (f *Filter) Check(text string) Verdict {
	if strings.TrimSpace(text) == "" {
		return Verdict{Reason: ReasonEmpty}
	}

	snap := f.current.Load()
	if snap.matcher == nil {
		return allowed()
	}

	terms := snap.matcher.MultiPatternSearch(lowerRunes(text), true)
	if len(terms) == 0 {
		return allowed()
	}
	return Verdict{Reason: ReasonBannedKeyword, Detail: string(terms[0].Word)}
}

func compile(words []string) (*snapshot, error) {
	normalized := lo.Uniq(lo.FilterMap(words, func(w string, _ int) (string, bool) {
		w = string(lowerRunes(strings.TrimSpace(w)))
		return w, w != ""
	}))
	if len(normalized) == 0 {
		return &snapshot{}, nil
	}
	// The double-array trie underneath is built from sorted keys.
	sort.Strings(normalized)

	patterns := lo.Map(normalized, func(w string, _ int) []rune { return []rune(w) })
	m := new(goahocorasick.Machine)
	if err := m.Build(patterns); err != nil {
		return nil, fmt.Errorf("build deny-list matcher: %w", err)
	}
	return &snapshot{matcher: m, words: normalized}, nil
}

func lowerRunes(s string) []rune {
	out := []rune(s)
	for i, r := range out {
		out[i] = unicode.ToLower(r)
	}
	return out
}

// ReadWordList parses one term per line. Blank lines and lines starting
// with '#' are skipped.
func ReadWordList(r io.Reader) ([]string, error) {
	var words []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		words = append(words, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read word list: %w", err)
	}
	return words, nil
}
