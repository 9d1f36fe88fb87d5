// Package types holds the data model shared across the narration pipeline.
package types

// Document is the normalized in-memory tree produced by a format parser.
// It carries no I/O state of its own.
type Document struct {
	Title    string
	Author   string
	Language string
	Chapters []*Chapter
}

// ChapterKind tags a Chapter as part of the narrated content or as
// front/back matter excluded from synthesis.
type ChapterKind string

const (
	ChapterNarrative    ChapterKind = "narrative"
	ChapterNonNarrative ChapterKind = "non_narrative"
)

// Chapter is an ordered sequence of paragraphs with an optional title.
type Chapter struct {
	Ordinal    int
	Title      string
	Paragraphs []string
	Kind       ChapterKind

	// StructuralHint is set by a parser that already knows a chapter is
	// front/back matter (TOC, colophon, copyright page). It feeds the
	// structural_metadata classification signal directly instead of
	// being inferred from the title or body text.
	StructuralHint bool
}

// IsNarrative reports whether the chapter should be synthesized. An
// unclassified chapter (zero value Kind) counts as narrative — failing
// classification degrades to "keep chapter", never to "drop chapter".
func (c *Chapter) IsNarrative() bool {
	return c.Kind != ChapterNonNarrative
}
