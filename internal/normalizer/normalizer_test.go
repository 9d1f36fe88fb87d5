package normalizer

import (
	"strings"
	"testing"
)

func TestRepairHyphens(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"simple break", "beauti-\nful day", "beautiful day"},
		{"too long not joined", "supercalifragilisticexpialidoci-\nousandmore", "supercalifragilisticexpialidoci-\nousandmore"},
		{"non alpha left untouched", "12-\n34", "12-\n34"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := repairHyphens(tc.in)
			if got != tc.want {
				t.Errorf("repairHyphens(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestStripISBNLines(t *testing.T) {
	paragraphs := []string{"Some text\nISBN-13: 978-3-16-148410-0\nMore text"}
	out := stripISBNLines(paragraphs)
	if len(out) != 1 {
		t.Fatalf("expected 1 paragraph, got %d", len(out))
	}
	if strings.Contains(out[0], "ISBN") {
		t.Errorf("ISBN line was not stripped: %q", out[0])
	}
}

func TestClassifyNonNarrativeChapters(t *testing.T) {
	chapters := []Chapter{
		{Ordinal: 0, Title: "Copyright", Paragraphs: []string{"All rights reserved."}},
		{Ordinal: 1, Title: "Foreword", Paragraphs: []string{"A short foreword."}},
		{Ordinal: 2, Title: "Chapter 1", Paragraphs: []string{strings.Repeat("She walked into the room and looked around carefully. ", 20)}},
		{Ordinal: 3, Title: "Chapter 2", Paragraphs: []string{strings.Repeat("He said that the weather was nice outside today. ", 20)}},
		{Ordinal: 4, Title: "Acknowledgments", Paragraphs: []string{"Thanks to everyone."}},
	}

	doc := Normalize(Document{Chapters: chapters}, Options{})

	if len(doc.Chapters) != 2 {
		t.Fatalf("expected boundary trim to leave 2 chapters, got %d: %+v", len(doc.Chapters), doc.Chapters)
	}
	if doc.Chapters[0].Title != "Chapter 1" || doc.Chapters[1].Title != "Chapter 2" {
		t.Errorf("unexpected surviving chapters: %q, %q", doc.Chapters[0].Title, doc.Chapters[1].Title)
	}
}

func TestNormalizeIsPure(t *testing.T) {
	chapters := []Chapter{
		{Ordinal: 0, Title: "Chapter 1", Paragraphs: []string{"Plain narrative text that goes on and on here."}},
	}
	doc := Document{Chapters: chapters}
	a := Normalize(doc, Options{})
	b := Normalize(doc, Options{})
	if len(a.Chapters) != len(b.Chapters) || a.Chapters[0].Paragraphs[0] != b.Chapters[0].Paragraphs[0] {
		t.Errorf("Normalize is not deterministic across identical inputs")
	}
}
