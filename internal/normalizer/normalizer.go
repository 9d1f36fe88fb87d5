// Package normalizer implements the Text Normalizer: it turns a parsed
// Document into a narrative-only document with clean text, per the
// pipeline's ordered normalization passes (hyphen repair, catalog
// stripping, non-narrative chapter classification, boundary trim).
package normalizer

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// Options are the normalizer's tunable parameters. The zero value is
// usable and applies the documented defaults.
type Options struct {
	// NonNarrativeThreshold is the classifier score above which a
	// chapter is tagged non-narrative. Default 0.35.
	NonNarrativeThreshold float64
	// FrontMatterFraction is the leading fraction of the book (by
	// chapter count) over which the title_keyword_match signal gets a
	// front-matter weight bonus. Default 0.25.
	FrontMatterFraction float64
}

func (o Options) withDefaults() Options {
	if o.NonNarrativeThreshold == 0 {
		o.NonNarrativeThreshold = 0.35
	}
	if o.FrontMatterFraction == 0 {
		o.FrontMatterFraction = 0.25
	}
	return o
}

// Serialize renders Options into the stable string folded into the
// SettingsFingerprint.
func (o Options) Serialize() string {
	o = o.withDefaults()
	return fmt.Sprintf("threshold=%g;frontmatter=%g", o.NonNarrativeThreshold, o.FrontMatterFraction)
}

// Chapter is the normalizer's own view of a chapter, independent of
// the parser-facing types.Chapter so normalization can run as a pure
// function of (document, options) without importing the orchestrator
// layer's session concerns.
type Chapter struct {
	Ordinal        int
	Title          string
	Paragraphs     []string
	StructuralHint bool
	NonNarrative   bool
}

// Document is the normalizer's input/output document shape.
type Document struct {
	Chapters []Chapter
}

var (
	hyphenBreakRe = regexp.MustCompile(`(?s)([A-Za-z]+)-\n([A-Za-z]+)`)
	isbnRe        = regexp.MustCompile(`(?i)\bISBN(?:-1[03])?[:\s]*[\d][\d\-\s]{8,16}[\dXx]\b`)
)

var catalogHeaderKeywords = []string{
	"also by", "books by", "other works", "praise for",
}

var titleKeywordSignals = []string{
	"table of contents", "contents", "bibliography", "references", "notes",
	"index", "acknowledgments", "acknowledgements", "about the author",
	"about the publisher", "copyright", "foreword", "preface",
}

var closedVerbSet = map[string]bool{
	"is": true, "was": true, "were": true, "are": true, "am": true,
	"has": true, "had": true, "have": true, "did": true, "does": true,
	"do": true, "said": true, "went": true, "came": true, "saw": true,
	"took": true, "made": true, "found": true, "knew": true, "thought": true,
	"felt": true, "looked": true, "will": true, "would": true, "could": true,
	"should": true,
}

var refPatternRe = regexp.MustCompile(`\[\d+\]|pp?\.\s*\d+|\(\w+[,.]?\s*\d{4}\)`)

// Normalize runs the full ordered pass over doc and returns a new
// Document with non-narrative chapters tagged and boundary-trimmed.
// It is a pure function of (doc, opts): identical inputs always
// produce identical outputs.
func Normalize(doc Document, opts Options) Document {
	opts = opts.withDefaults()

	chapters := make([]Chapter, len(doc.Chapters))
	for i, ch := range doc.Chapters {
		chapters[i] = repairAndStrip(ch)
	}

	classify(chapters, opts)

	chapters = trimToNarrativeBounds(chapters)

	return Document{Chapters: chapters}
}

// repairAndStrip applies hyphen repair and ISBN/catalog-block stripping
// to one chapter's paragraphs.
func repairAndStrip(ch Chapter) Chapter {
	out := Chapter{
		Ordinal:        ch.Ordinal,
		Title:          ch.Title,
		StructuralHint: ch.StructuralHint,
	}

	joined := strings.Join(ch.Paragraphs, "\n\n")
	joined = repairHyphens(joined)

	paragraphs := strings.Split(joined, "\n\n")
	paragraphs = stripISBNLines(paragraphs)
	paragraphs = stripCatalogBlocks(paragraphs)

	out.Paragraphs = paragraphs
	return out
}

// repairHyphens joins "<word>-\n<word>" sequences where both fragments
// are alphabetic and the joined word is at most 30 characters — a
// dictionary-less heuristic, not a real hyphenation dictionary lookup.
func repairHyphens(text string) string {
	return hyphenBreakRe.ReplaceAllStringFunc(text, func(m string) string {
		parts := hyphenBreakRe.FindStringSubmatch(m)
		if len(parts) != 3 {
			return m
		}
		left, right := parts[1], parts[2]
		if !isAlpha(left) || !isAlpha(right) {
			return m
		}
		if len(left)+len(right) > 30 {
			return m
		}
		return left + right
	})
}

func isAlpha(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !((r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')) {
			return false
		}
	}
	return true
}

func stripISBNLines(paragraphs []string) []string {
	out := paragraphs[:0:0]
	for _, p := range paragraphs {
		lines := strings.Split(p, "\n")
		kept := lines[:0:0]
		for _, line := range lines {
			if isbnRe.MatchString(line) {
				continue
			}
			kept = append(kept, line)
		}
		if len(kept) > 0 {
			out = append(out, strings.Join(kept, "\n"))
		}
	}
	return out
}

// stripCatalogBlocks removes contiguous runs of paragraphs totalling
// at least 200 characters whose first non-empty line starts with one
// of the catalog header keywords.
func stripCatalogBlocks(paragraphs []string) []string {
	var out []string
	i := 0
	for i < len(paragraphs) {
		p := paragraphs[i]
		trimmed := strings.TrimSpace(p)
		if trimmed == "" {
			out = append(out, p)
			i++
			continue
		}
		lower := strings.ToLower(trimmed)
		isHeader := false
		for _, kw := range catalogHeaderKeywords {
			if strings.HasPrefix(lower, kw) {
				isHeader = true
				break
			}
		}
		if !isHeader {
			out = append(out, p)
			i++
			continue
		}

		// Greedily absorb a contiguous block starting here until it
		// reaches >=200 chars or paragraphs run out.
		j := i
		total := 0
		for j < len(paragraphs) && total < 200 {
			total += len(paragraphs[j])
			j++
		}
		if total >= 200 {
			i = j
			continue
		}
		// Block too short to qualify; keep the paragraph as-is.
		out = append(out, p)
		i++
	}
	return out
}

// classifier signal weights for the 5-signal non-narrative score.
const (
	weightTitleKeyword      = 0.35
	weightStructuralMeta    = 0.20
	weightPatternDensity    = 0.15
	weightProseDensity      = 0.15
	weightRelativeLength    = 0.15
)

func classify(chapters []Chapter, opts Options) {
	lengths := make([]int, len(chapters))
	for i, ch := range chapters {
		lengths[i] = chapterLength(ch)
	}
	median := medianOf(lengths)

	frontMatterCutoff := int(float64(len(chapters)) * opts.FrontMatterFraction)

	for i := range chapters {
		ch := &chapters[i]
		score := 0.0
		score += weightTitleKeyword * titleKeywordScore(ch.Title, i, frontMatterCutoff)
		score += weightStructuralMeta * boolScore(ch.StructuralHint)
		score += weightPatternDensity * patternDensityScore(ch.Paragraphs)
		score += weightProseDensity * (1 - proseDensityScore(ch.Paragraphs))
		score += weightRelativeLength * relativeLengthScore(lengths[i], median, i, len(chapters))

		ch.NonNarrative = score > opts.NonNarrativeThreshold
	}
}

func boolScore(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func titleKeywordScore(title string, idx, frontMatterCutoff int) float64 {
	lower := strings.ToLower(strings.TrimSpace(title))
	for _, kw := range titleKeywordSignals {
		if lower == kw {
			if idx < frontMatterCutoff {
				return 1.0
			}
			return 0.7
		}
	}
	return 0
}

func patternDensityScore(paragraphs []string) float64 {
	lines := splitLines(paragraphs)
	if len(lines) == 0 {
		return 0
	}
	matches := 0
	for _, l := range lines {
		if refPatternRe.MatchString(l) {
			matches++
		}
	}
	return float64(matches) / float64(len(lines))
}

// proseDensityScore returns the fraction of sentences of length >= 8
// tokens containing a finite verb from the closed verb set. Higher
// means "more clearly prose", so the classifier inverts it.
func proseDensityScore(paragraphs []string) float64 {
	sentences := splitSentences(strings.Join(paragraphs, " "))
	if len(sentences) == 0 {
		return 0
	}
	prosey := 0
	for _, s := range sentences {
		tokens := strings.Fields(s)
		if len(tokens) < 8 {
			continue
		}
		for _, t := range tokens {
			if closedVerbSet[strings.ToLower(strings.Trim(t, ".,;:!?\"'"))] {
				prosey++
				break
			}
		}
	}
	return float64(prosey) / float64(len(sentences))
}

func relativeLengthScore(length, median, idx, n int) float64 {
	if median == 0 {
		return 0
	}
	ratio := float64(length) / float64(median)
	if ratio >= 0.5 {
		return 0
	}
	// Short chapter; only scores as non-narrative if near the head/tail.
	atEdge := idx < 2 || idx >= n-2
	if !atEdge {
		return 0
	}
	return 1 - ratio
}

func splitLines(paragraphs []string) []string {
	var lines []string
	for _, p := range paragraphs {
		lines = append(lines, strings.Split(p, "\n")...)
	}
	return lines
}

var sentenceSplitRe = regexp.MustCompile(`[.!?]+\s+`)

func splitSentences(text string) []string {
	raw := sentenceSplitRe.Split(text, -1)
	out := raw[:0:0]
	for _, s := range raw {
		if strings.TrimSpace(s) != "" {
			out = append(out, s)
		}
	}
	return out
}

func chapterLength(ch Chapter) int {
	total := 0
	for _, p := range ch.Paragraphs {
		total += len(p)
	}
	return total
}

func medianOf(values []int) int {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]int(nil), values...)
	sort.Ints(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}

// trimToNarrativeBounds discards chapters outside [first, last]
// narrative chapter, inclusive, without reindexing the survivors —
// ordinals remain stable references into the original document.
func trimToNarrativeBounds(chapters []Chapter) []Chapter {
	first, last := -1, -1
	for i, ch := range chapters {
		if !ch.NonNarrative {
			if first == -1 {
				first = i
			}
			last = i
		}
	}
	if first == -1 {
		return chapters
	}
	return chapters[first : last+1]
}
