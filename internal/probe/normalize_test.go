package probe

import (
	"reflect"
	"strings"
	"testing"
	"unicode/utf8"
)

func TestNormalizeIdentifier(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		raw  string
		pos  int
		want string
	}{
		{"lowercases", "Title", 0, "title"},
		{"trims and joins whitespace", "  Release   Year ", 1, "release_year"},
		{"tabs and newlines are whitespace", "a\t\nb", 0, "a_b"},
		{"strips punctuation", "Price ($)", 2, "price_"},
		{"keeps underscores", "already_ok", 0, "already_ok"},
		{"folds accents", "Año Número", 0, "ano_numero"},
		{"leading digit", "2024 total", 0, "_2024_total"},
		{"empty becomes positional", "", 3, "col3"},
		{"symbols only becomes positional", "!!!", 7, "col7"},
		{"keeps sharp s", "Größe", 3, "große"},
		{"sharp s with space", "Straße Nr", 0, "straße_nr"},
		{"keeps cjk", "名前", 3, "名前"},
		{"cjk with punctuation", "住所（自宅）", 0, "住所自宅"},
		{"folds accents keeps other letters", "Café Ærø", 0, "cafe_ærø"},
		{"cyrillic lowercased", "Имя", 0, "имя"},
		{"non ascii leading digit", "٣ items", 0, "_٣_items"},
		{"bom is dropped", "\uFEFFid", 0, "id"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := NormalizeIdentifier(tt.raw, tt.pos); got != tt.want {
				t.Fatalf("NormalizeIdentifier(%q, %d)=%q, want %q", tt.raw, tt.pos, got, tt.want)
			}
		})
	}
}

func TestNormalizeIdentifier_TruncatesTo63Bytes(t *testing.T) {
	t.Parallel()

	got := NormalizeIdentifier(strings.Repeat("x", 100), 0)
	if len(got) != 63 {
		t.Fatalf("len=%d, want 63", len(got))
	}
}

func TestNormalizeIdentifier_TruncatesOnRuneBoundary(t *testing.T) {
	t.Parallel()

	got := NormalizeIdentifier(strings.Repeat("名", 30), 0)
	if len(got) > 63 || !utf8.ValidString(got) {
		t.Fatalf("got %q (len %d), want valid UTF-8 within 63 bytes", got, len(got))
	}
	if got != strings.Repeat("名", 21) {
		t.Fatalf("got %q, want 21 runes", got)
	}
}

func TestNormalizeHeader_NonLatinHeaders(t *testing.T) {
	t.Parallel()

	got := NormalizeHeader([]string{"名前", "住所", "", ""})
	want := []string{"名前", "住所", "col2", "col3"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("NormalizeHeader=%v, want %v", got, want)
	}
}

func TestNormalizeHeader_DuplicateNames(t *testing.T) {
	t.Parallel()

	got := NormalizeHeader([]string{"Title", "Title", "Year"})
	want := []string{"title", "title_2", "year"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("NormalizeHeader=%v, want %v", got, want)
	}
}

func TestDisambiguate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   []string
		want []string
	}{
		{"unique unchanged", []string{"a", "b", "c"}, []string{"a", "b", "c"}},
		{"third occurrence", []string{"a", "a", "a"}, []string{"a", "a_2", "a_3"}},
		{"suffix collides with existing", []string{"a_2", "a", "a"}, []string{"a_2", "a", "a_3"}},
		{"existing name taken by suffix", []string{"a", "a", "a_2"}, []string{"a", "a_2", "a_2_2"}},
		{"empty input", []string{}, []string{}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := Disambiguate(tt.in)
			if !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("Disambiguate(%v)=%v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestDisambiguate_LongNamesStayWithinLimit(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("n", 63)
	got := Disambiguate([]string{long, long})
	if got[0] == got[1] {
		t.Fatalf("names not distinct: %v", got)
	}
	if len(got[1]) > 63 || !strings.HasSuffix(got[1], "_2") {
		t.Fatalf("suffixed=%q (len %d)", got[1], len(got[1]))
	}
}

func TestNormalizeHeader_IdempotentOnNormalizedUniqueSet(t *testing.T) {
	t.Parallel()

	inputs := [][]string{
		{"Title", "Title", "Year", "", " Öl Preis "},
		{"Größe", "größe", "名前", "Имя"},
		{"a", "a_2", "a", "9lives"},
	}
	for _, in := range inputs {
		once := NormalizeHeader(in)
		twice := NormalizeHeader(once)
		if !reflect.DeepEqual(once, twice) {
			t.Fatalf("not idempotent: %v -> %v", once, twice)
		}
		seen := map[string]bool{}
		for _, n := range once {
			if n == "" || seen[n] {
				t.Fatalf("empty or duplicate name in %v", once)
			}
			seen[n] = true
		}
	}
}
