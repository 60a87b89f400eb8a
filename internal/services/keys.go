package services

import (
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// Identifier and option limits. They match the widths of the SQL key columns.
const (
	MaxDomainRunes = 128
	MaxIDRunes     = 191
	MaxOptionRunes = 64
)

// NormalizeOption returns the canonical form of an option key: trimmed,
// NFC-normalized, 1..MaxOptionRunes runes, without '.', '$' or control
// characters. Visually identical emoji sequences therefore share one counter.
func NormalizeOption(raw string) (string, error) {
	k := norm.NFC.String(strings.TrimSpace(raw))
	n := utf8.RuneCountInString(k)
	if n == 0 || n > MaxOptionRunes || !utf8.ValidString(k) {
		return "", ErrInvalidOption
	}
	for _, r := range k {
		if r == '.' || r == '$' || unicode.IsControl(r) {
			return "", ErrInvalidOption
		}
	}
	return k, nil
}

// normalizeID trims an identifier and enforces its rune limit.
func normalizeID(raw string, limit int) (string, error) {
	id := strings.TrimSpace(raw)
	if id == "" || utf8.RuneCountInString(id) > limit {
		return "", ErrInvalidInput
	}
	return id, nil
}

// normalizeScope validates a (domain, module) pair.
func normalizeScope(domainID, moduleID string) (string, string, error) {
	d, err := normalizeID(domainID, MaxDomainRunes)
	if err != nil {
		return "", "", err
	}
	m, err := normalizeID(moduleID, MaxIDRunes)
	if err != nil {
		return "", "", err
	}
	return d, m, nil
}

// keyedMutex serializes work per key. Entries are reference counted and
// removed when the last holder unlocks, so the map only holds live keys.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refLock
}

type refLock struct {
	sync.Mutex
	refs int
}

// Lock acquires the mutex for key and returns its release func.
func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*refLock)
	}
	l, ok := k.locks[key]
	if !ok {
		l = &refLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

// size reports the number of live keys.
func (k *keyedMutex) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}

// clip truncates s to max runes when max > 0.
func clip(s string, max int) string {
	if max > 0 && utf8.RuneCountInString(s) > max {
		return string([]rune(s)[:max])
	}
	return s
}
