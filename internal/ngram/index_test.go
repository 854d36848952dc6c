package ngram

import (
	"errors"
	"strings"
	"testing"

	"github.com/RishiKendai/textpair/internal/models"
)

func doc(id, text string) models.Document {
	return models.Document{ID: id, Tokens: strings.Fields(text)}
}

func TestBuild_positionCountPerDocument(t *testing.T) {
	tests := []struct {
		text string
		n    int
	}{
		{"", 1},
		{"", 3},
		{"one", 1},
		{"one", 2},
		{"one two", 2},
		{"the quick brown fox jumps", 2},
		{"the quick brown fox jumps", 5},
		{"the quick brown fox jumps", 6},
		{"a a a a a a", 2},
	}
	for _, tt := range tests {
		idx, docErrs, err := Build([]models.Document{doc("d", tt.text)}, tt.n)
		if err != nil {
			t.Fatalf("Build(%q, %d) error: %v", tt.text, tt.n, err)
		}
		if len(docErrs) != 0 {
			t.Fatalf("Build(%q, %d) doc errors: %v", tt.text, tt.n, docErrs)
		}
		want := ExpectedNgrams(len(strings.Fields(tt.text)), tt.n)
		got := 0
		seen := make(map[Key]bool)
		for _, k := range idx.Keys(0) {
			if seen[k] {
				continue
			}
			seen[k] = true
			got += len(idx.PositionsFor(k))
		}
		if got != want {
			t.Errorf("Build(%q, %d): positions = %d, want %d", tt.text, tt.n, got, want)
		}
		if idx.TotalNgrams() != want {
			t.Errorf("Build(%q, %d): TotalNgrams = %d, want %d", tt.text, tt.n, idx.TotalNgrams(), want)
		}
	}
}

func TestBuild_postingsGroupedAndSorted(t *testing.T) {
	docs := []models.Document{
		doc("a", "x y x y x y"),
		doc("b", "x y z x y"),
		doc("c", "z z z"),
	}
	idx, _, err := Build(docs, 2)
	if err != nil {
		t.Fatal(err)
	}
	xy := KeyOf("x", "y")
	positions := idx.PositionsFor(xy)
	want := []Position{{0, 0}, {0, 2}, {0, 4}, {1, 0}, {1, 3}}
	if len(positions) != len(want) {
		t.Fatalf("positions = %v, want %v", positions, want)
	}
	for i := range want {
		if positions[i] != want[i] {
			t.Errorf("positions[%d] = %v, want %v", i, positions[i], want[i])
		}
	}
	if idx.Count(xy) != 5 {
		t.Errorf("Count(x y) = %d, want 5", idx.Count(xy))
	}
	if idx.Count(KeyOf("q", "q")) != 0 {
		t.Error("unknown key should have zero count")
	}
}

func TestBuild_malformedDocumentsSkipped(t *testing.T) {
	docs := []models.Document{
		doc("a", "one two three"),
		{ID: "", Tokens: []string{"x", "y"}},
		doc("a", "dup dup"),
		{ID: "c", Tokens: []string{"ok", "", "bad"}},
		doc("d", ""),
	}
	idx, docErrs, err := Build(docs, 2)
	if err != nil {
		t.Fatal(err)
	}
	if idx.Len() != 2 {
		t.Fatalf("Len = %d, want 2", idx.Len())
	}
	if idx.Doc(0).ID != "a" || idx.Doc(1).ID != "d" {
		t.Errorf("unexpected docs: %+v %+v", idx.Doc(0), idx.Doc(1))
	}
	if len(docErrs) != 3 {
		t.Fatalf("doc errors = %d, want 3", len(docErrs))
	}
	for _, de := range docErrs {
		if !errors.Is(de, ErrMalformedDocument) {
			t.Errorf("doc error %v should wrap ErrMalformedDocument", de)
		}
	}
}

func TestBuild_errors(t *testing.T) {
	if _, _, err := Build([]models.Document{doc("a", "x")}, 0); !errors.Is(err, ErrInvalidNgramLength) {
		t.Errorf("n=0: err = %v", err)
	}
	if _, _, err := Build(nil, 2); !errors.Is(err, ErrNoDocuments) {
		t.Errorf("no docs: err = %v", err)
	}
	_, docErrs, err := Build([]models.Document{{ID: ""}}, 2)
	if !errors.Is(err, ErrNoIndexableDocuments) {
		t.Errorf("all malformed: err = %v", err)
	}
	if len(docErrs) != 1 {
		t.Errorf("all malformed: doc errors = %d, want 1", len(docErrs))
	}
}

func TestKeyOf_separatesTokens(t *testing.T) {
	if KeyOf("ab", "c") == KeyOf("a", "bc") {
		t.Error("windows with different token boundaries should hash differently")
	}
	if KeyOf("a", "b") != NewHasher().Sum([]string{"a", "b"}) {
		t.Error("KeyOf and Hasher.Sum disagree")
	}
}

func TestCombined(t *testing.T) {
	a, _, _ := Build([]models.Document{doc("a", "x y x y")}, 2)
	b, _, _ := Build([]models.Document{doc("b", "x y")}, 2)
	xy := KeyOf("x", "y")
	if got := Combined(a, b).Count(xy); got != 3 {
		t.Errorf("Combined(a, b) = %d, want 3", got)
	}
	if got := Combined(a, a).Count(xy); got != 2 {
		t.Errorf("Combined(a, a) = %d, want 2", got)
	}
}
