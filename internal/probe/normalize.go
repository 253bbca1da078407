package probe

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// maxIdentLen is the Postgres identifier limit, the tightest of the backends.
const maxIdentLen = 63

// NormalizeIdentifier turns one raw header cell into a column identifier.
//
// Accented letters are folded to their base letter and the value is
// trimmed. Whitespace runs become one '_'. Anything that is not a Unicode
// letter, digit or '_' is dropped, so "Straße" keeps its ß and CJK headers
// survive. An empty result becomes "col<pos>", a leading digit gets a '_'
// prefix, and the result is lower-cased and cut to 63 bytes on a rune
// boundary. The result is never empty.
func NormalizeIdentifier(raw string, pos int) string {
	s := foldAccents(raw)
	s = strings.TrimSpace(s)

	var b strings.Builder
	b.Grow(len(s))

	inSpace := false
	for _, r := range s {
		if unicode.IsSpace(r) {
			if !inSpace {
				b.WriteByte('_')
				inSpace = true
			}
			continue
		}
		inSpace = false

		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' {
			b.WriteRune(r)
		}
	}

	out := b.String()
	if out == "" {
		out = "col" + strconv.Itoa(pos)
	}
	if first, _ := utf8.DecodeRuneInString(out); unicode.IsDigit(first) {
		out = "_" + out
	}
	return truncateIdentifier(strings.ToLower(out), maxIdentLen)
}

func foldAccents(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// truncateIdentifier cuts s to at most n bytes on a UTF-8 boundary.
func truncateIdentifier(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := n
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

// Disambiguate makes names unique while preserving order. The second and
// later occurrences of a name get "_<count>" appended; if that collides with
// a name already emitted the count is bumped until it does not. Suffixed
// names stay within the identifier length limit.
//
// State is local to one call.
func Disambiguate(names []string) []string {
	out := make([]string, len(names))
	counts := make(map[string]int, len(names))
	used := make(map[string]bool, len(names))

	for i, n := range names {
		counts[n]++
		cand := n
		if counts[n] > 1 || used[cand] {
			k := counts[n]
			if k < 2 {
				k = 2
			}
			for {
				suffix := fmt.Sprintf("_%d", k)
				cand = truncateIdentifier(n, maxIdentLen-len(suffix)) + suffix
				if !used[cand] {
					break
				}
				k++
			}
			counts[n] = k
		}
		used[cand] = true
		out[i] = cand
	}
	return out
}

// NormalizeHeader normalizes each raw header cell by position and then
// disambiguates the result.
func NormalizeHeader(raw []string) []string {
	names := make([]string, len(raw))
	for i, h := range raw {
		names[i] = NormalizeIdentifier(h, i)
	}
	return Disambiguate(names)
}
