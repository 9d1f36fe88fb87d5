// Package chunker partitions normalized chapter text into synthesis
// ready Chunks bounded by a character target and an estimated phoneme
// budget.
package chunker

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/unalkalkan/narrator/pkg/types"
)

// Options are the chunker's tunable bounds.
type Options struct {
	CharTarget       int // default 400
	PhonemeHardLimit int // default 510
}

func (o Options) withDefaults() Options {
	if o.CharTarget <= 0 {
		o.CharTarget = 400
	}
	if o.PhonemeHardLimit <= 0 {
		o.PhonemeHardLimit = 510
	}
	return o
}

// Chapter is the chunker's input shape: one narrative chapter's
// ordinal, title, and paragraph text.
type Chapter struct {
	Ordinal    int
	Title      string
	Paragraphs []string
}

// Chunk partitions every chapter into a flat, ordinal-ordered sequence
// of types.Chunk. The result is a pure function of (chapters, opts):
// identical inputs always produce a byte-identical sequence.
func Chunk(chapters []Chapter, opts Options) []types.Chunk {
	opts = opts.withDefaults()

	var chunks []types.Chunk
	ordinal := 0

	for _, ch := range chapters {
		chapterChunks := chunkChapter(ch, opts)
		for i, text := range chapterChunks {
			chunks = append(chunks, types.Chunk{
				Ordinal:        ordinal,
				ChapterOrdinal: ch.Ordinal,
				ChapterTitle:   ch.Title,
				Text:           text,
				IsChapterStart: i == 0,
			})
			ordinal++
		}
	}

	return chunks
}

// chunkChapter accumulates paragraph text into bounded chunks, never
// crossing the chapter boundary.
func chunkChapter(ch Chapter, opts Options) []string {
	var chunks []string
	var current strings.Builder

	flush := func() {
		if current.Len() > 0 {
			chunks = append(chunks, current.String())
			current.Reset()
		}
	}

	for _, para := range ch.Paragraphs {
		sentences := splitSentences(para)
		for _, sentence := range sentences {
			pieces := fitSentence(sentence, opts)
			for _, piece := range pieces {
				candidate := piece
				sep := ""
				if current.Len() > 0 {
					sep = " "
				}
				if current.Len() > 0 && !fits(current.String()+sep+candidate, opts) {
					flush()
					sep = ""
				}
				current.WriteString(sep)
				current.WriteString(candidate)
			}
		}
	}
	flush()

	return chunks
}

func fits(text string, opts Options) bool {
	return len(text) <= opts.CharTarget && PhonemeEstimate(text) <= opts.PhonemeHardLimit
}

// fitSentence returns a sentence as-is if it fits the bounds on its
// own; otherwise splits it via the cascade: clause delimiter, then
// hard whitespace split.
func fitSentence(sentence string, opts Options) []string {
	if fits(sentence, opts) {
		return []string{sentence}
	}

	clauses := splitOnClauseDelimiters(sentence)
	if len(clauses) > 1 {
		var out []string
		for _, c := range clauses {
			out = append(out, fitSentence(c, opts)...)
		}
		return out
	}

	return hardSplitWhitespace(sentence, opts)
}

var clauseDelimiters = []rune{',', ';', ':', '—'}

func splitOnClauseDelimiters(s string) []string {
	var out []string
	var cur strings.Builder
	for _, r := range s {
		cur.WriteRune(r)
		for _, d := range clauseDelimiters {
			if r == d {
				out = append(out, cur.String())
				cur.Reset()
				break
			}
		}
	}
	if cur.Len() > 0 {
		out = append(out, cur.String())
	}
	return trimEmpty(out)
}

func trimEmpty(in []string) []string {
	out := in[:0:0]
	for _, s := range in {
		if strings.TrimSpace(s) != "" {
			out = append(out, s)
		}
	}
	return out
}

// hardSplitWhitespace splits on whitespace, accumulating words into
// pieces that individually satisfy both bounds; a single word that
// exceeds the bounds on its own is cut at rune boundaries. Used only
// when a sentence exceeds the bounds even after clause splitting.
func hardSplitWhitespace(s string, opts Options) []string {
	words := strings.Fields(s)
	var out []string
	var cur strings.Builder
	for _, w := range words {
		if !fits(w, opts) {
			if cur.Len() > 0 {
				out = append(out, cur.String())
				cur.Reset()
			}
			runes := []rune(w)
			for len(runes) > 0 {
				n := 1
				for n < len(runes) && fits(string(runes[:n+1]), opts) {
					n++
				}
				out = append(out, string(runes[:n]))
				runes = runes[n:]
			}
			continue
		}
		sep := ""
		if cur.Len() > 0 {
			sep = " "
		}
		if cur.Len() > 0 && !fits(cur.String()+sep+w, opts) {
			out = append(out, cur.String())
			cur.Reset()
			sep = ""
		}
		cur.WriteString(sep)
		cur.WriteString(w)
	}
	if cur.Len() > 0 {
		out = append(out, cur.String())
	}
	if len(out) == 0 {
		out = append(out, s)
	}
	return out
}

var sentenceEndRe = regexp.MustCompile(`([.!?]+)(\s+|$)`)

func splitSentences(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	matches := sentenceEndRe.FindAllStringIndex(text, -1)
	if len(matches) == 0 {
		return []string{text}
	}
	var out []string
	start := 0
	for _, m := range matches {
		end := m[1]
		out = append(out, strings.TrimSpace(text[start:end]))
		start = end
	}
	if start < len(text) {
		rest := strings.TrimSpace(text[start:])
		if rest != "" {
			out = append(out, rest)
		}
	}
	return trimEmpty(out)
}

// PhonemeEstimate sums a per-script per-token heuristic over text:
// Latin tokens cost ceil(len*1.1), CJK tokens cost 2 per rune, other
// scripts cost len*2.
func PhonemeEstimate(text string) int {
	total := 0.0
	for _, tok := range strings.Fields(text) {
		total += estimateToken(tok)
	}
	return int(total + 0.999999) // ceil without importing math for a single call site
}

func estimateToken(tok string) float64 {
	runes := []rune(tok)
	if len(runes) == 0 {
		return 0
	}
	switch classifyScript(runes[0]) {
	case scriptLatin:
		return ceilf(float64(len(runes)) * 1.1)
	case scriptCJK:
		return float64(2 * len(runes))
	default:
		return float64(len(runes) * 2)
	}
}

func ceilf(v float64) float64 {
	i := float64(int(v))
	if v > i {
		return i + 1
	}
	return i
}

type script int

const (
	scriptLatin script = iota
	scriptCJK
	scriptOther
)

func classifyScript(r rune) script {
	switch {
	case unicode.Is(unicode.Latin, r):
		return scriptLatin
	case unicode.Is(unicode.Han, r), unicode.Is(unicode.Hiragana, r), unicode.Is(unicode.Katakana, r), unicode.Is(unicode.Hangul, r):
		return scriptCJK
	default:
		return scriptOther
	}
}
