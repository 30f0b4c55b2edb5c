// Package naming picks a human-readable label for a boundary record from its
// attribute table.
//
// Boundary datasets come from different publishers and use different,
// undocumented attribute schemas (NOME, NM_CAMPO, "Nome do Bloco", ...).
// Keys are compared after normalization: diacritics stripped, separators
// removed, uppercased. Resolution never fails; records without any usable
// text get a sequence label.
package naming

import (
	"fmt"
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Candidates are the attribute keys checked first, in priority order.
var Candidates = []string{
	"NOME",
	"NOME_CAMPO",
	"NM_CAMPO",
	"CAMPO",
	"BLOCO",
	"NOME_BLOCO",
	"NM_BLOCO",
	"SIGLA",
	"NOMECAMPO",
	"NOMEBLOCO",
}

// semanticFragments mark keys that probably hold a name.
var semanticFragments = []string{"NOME", "CAMPO", "BLOCO", "NOM"}

type entry struct {
	key   string // normalized
	value string // sanitized
}

// Resolve returns the best label for a record. hint and index build the
// fallback label "<hint> <index+1>".
func Resolve(attrs map[string]any, hint string, index int) string {
	entries := normalizeEntries(attrs)

	for _, candidate := range Candidates {
		target := NormalizeKey(candidate)
		for _, e := range entries {
			if e.key == target && hasLetters(e.value) {
				return e.value
			}
		}
	}

	for _, e := range entries {
		if hasLetters(e.value) && containsAny(e.key, semanticFragments) {
			return e.value
		}
	}

	for _, e := range entries {
		if hasLetters(e.value) && !isIdentifierKey(e.key) {
			return e.value
		}
	}

	return Fallback(hint, index)
}

// Fallback builds the sequence label used when no attribute holds text.
func Fallback(hint string, index int) string {
	hint = strings.TrimSpace(hint)
	if hint == "" {
		hint = "Local"
	}
	return fmt.Sprintf("%s %d", hint, index+1)
}

// NormalizeKey strips diacritics and every non-alphanumeric character, then
// uppercases: "Nome do Bloco" -> "NOMEDOBLOCO", "código" -> "CODIGO".
func NormalizeKey(key string) string {
	stripped, _, err := transform.String(stripMarks(), key)
	if err != nil {
		stripped = key
	}
	var b strings.Builder
	b.Grow(len(stripped))
	for _, r := range stripped {
		switch {
		case r >= 'a' && r <= 'z':
			b.WriteRune(r - 'a' + 'A')
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Fold normalizes free text for case- and accent-insensitive search.
func Fold(s string) string {
	stripped, _, err := transform.String(stripMarks(), s)
	if err != nil {
		stripped = s
	}
	return strings.ToUpper(strings.TrimSpace(stripped))
}

func stripMarks() transform.Transformer {
	return transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
}

// sanitizeValue renders an attribute value as trimmed text without NUL bytes.
// DBF-backed datasets pad character fields with NULs.
func sanitizeValue(v any) string {
	if v == nil {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		s = fmt.Sprint(v)
	}
	return strings.TrimSpace(strings.ReplaceAll(s, "\x00", ""))
}

func hasLetters(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) {
			return true
		}
	}
	return false
}

func isIdentifierKey(key string) bool {
	return strings.HasPrefix(key, "ID") || strings.HasPrefix(key, "CD") || strings.Contains(key, "CODIGO")
}

func containsAny(s string, fragments []string) bool {
	for _, f := range fragments {
		if strings.Contains(s, f) {
			return true
		}
	}
	return false
}

// normalizeEntries visits keys in sorted order so resolution does not depend
// on map iteration order.
func normalizeEntries(attrs map[string]any) []entry {
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	entries := make([]entry, 0, len(keys))
	for _, k := range keys {
		entries = append(entries, entry{key: NormalizeKey(k), value: sanitizeValue(attrs[k])})
	}
	return entries
}
