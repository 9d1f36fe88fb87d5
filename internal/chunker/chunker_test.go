package chunker

import (
	"strings"
	"testing"
)

func TestChunkRespectsCharTarget(t *testing.T) {
	chapters := []Chapter{
		{Ordinal: 0, Title: "Chapter 1", Paragraphs: []string{
			strings.Repeat("The quick brown fox jumps over the lazy dog. ", 20),
		}},
	}
	chunks := Chunk(chapters, Options{CharTarget: 100, PhonemeHardLimit: 510})
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	for _, c := range chunks {
		if len(c.Text) > 100+60 { // allow one oversized sentence per the bound's sentence-overflow allowance
			t.Errorf("chunk exceeds bound: %d chars: %q", len(c.Text), c.Text)
		}
	}
}

func TestChunkNeverCrossesChapterBoundary(t *testing.T) {
	chapters := []Chapter{
		{Ordinal: 0, Title: "Chapter 1", Paragraphs: []string{"Short text here."}},
		{Ordinal: 1, Title: "Chapter 2", Paragraphs: []string{"Other chapter text."}},
	}
	chunks := Chunk(chapters, Options{})
	seenChapters := map[int]bool{}
	lastChapter := -1
	for _, c := range chunks {
		if seenChapters[c.ChapterOrdinal] && lastChapter != c.ChapterOrdinal {
			t.Fatalf("chapter %d revisited after moving on", c.ChapterOrdinal)
		}
		seenChapters[c.ChapterOrdinal] = true
		lastChapter = c.ChapterOrdinal
	}
}

func TestFirstChunkOfChapterIsChapterStart(t *testing.T) {
	chapters := []Chapter{
		{Ordinal: 0, Title: "Chapter 1", Paragraphs: []string{"One. Two. Three."}},
	}
	chunks := Chunk(chapters, Options{})
	if !chunks[0].IsChapterStart {
		t.Error("expected first chunk to have IsChapterStart=true")
	}
	for _, c := range chunks[1:] {
		if c.IsChapterStart {
			t.Errorf("unexpected IsChapterStart on non-first chunk: %+v", c)
		}
	}
}

func TestOversizedSentenceHardSplits(t *testing.T) {
	longSentence := strings.Repeat("a", 2000)
	chapters := []Chapter{
		{Ordinal: 0, Title: "Chapter 1", Paragraphs: []string{longSentence}},
	}
	chunks := Chunk(chapters, Options{CharTarget: 400, PhonemeHardLimit: 510})
	if len(chunks) < 2 {
		t.Fatalf("expected hard split to produce multiple chunks, got %d", len(chunks))
	}
	var rebuilt strings.Builder
	for i, c := range chunks {
		if i > 0 {
			rebuilt.WriteString(" ")
		}
		rebuilt.WriteString(c.Text)
	}
	if strings.ReplaceAll(rebuilt.String(), " ", "") != longSentence {
		t.Errorf("coverage invariant violated after hard split")
	}
}

func TestPhonemeEstimateScripts(t *testing.T) {
	latin := PhonemeEstimate("hello")
	if latin != 6 { // ceil(5*1.1) = 6
		t.Errorf("latin estimate = %d, want 6", latin)
	}
	cjk := PhonemeEstimate("你好")
	if cjk != 4 {
		t.Errorf("cjk estimate = %d, want 4", cjk)
	}
}

func TestDeterminism(t *testing.T) {
	chapters := []Chapter{
		{Ordinal: 0, Title: "Chapter 1", Paragraphs: []string{"A sentence. Another one. And a third."}},
	}
	a := Chunk(chapters, Options{})
	b := Chunk(chapters, Options{})
	if len(a) != len(b) {
		t.Fatalf("non-deterministic chunk count: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i].Text != b[i].Text {
			t.Errorf("non-deterministic chunk text at %d", i)
		}
	}
}
