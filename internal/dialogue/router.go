// Package dialogue implements the Dialogue Router: it decomposes a
// Chunk's text into narrator/speaker Spans by scanning for balanced
// quote pairs and attributing them to a nearby capitalized speaker
// token.
package dialogue

import (
	"strings"
	"unicode"

	"github.com/unalkalkan/narrator/pkg/types"
)

// Options configures the router.
type Options struct {
	// Enabled turns on quote scanning. When false, Route always
	// returns a single narrator span covering the whole chunk.
	Enabled bool
	// NarratorVoice is used for narration regions and as the fallback
	// for unmapped speakers.
	NarratorVoice string
	// CharacterMap maps a speaker name to a voice id.
	CharacterMap map[string]string
	// CharacterDescriptions optionally maps a speaker name to a
	// voice-cloning-by-description hint, carried onto the attributed
	// Span alongside its voice id.
	CharacterDescriptions map[string]string
}

var attributionVerbs = []string{
	"said", "replied", "asked", "exclaimed", "shouted", "whispered", "answered",
}

const attributionWindow = 120

// quotePairs lists the delimiter pairs recognized as dialogue quotes.
var quotePairs = []struct{ open, close rune }{
	{'"', '"'},
	{'“', '”'}, // “ ”
	{'\'', '\''},
	{'«', '»'}, // « »
}

// Route decomposes chunk text into Spans. Unbalanced quotes fall back
// defensively to a single narrator span for the whole chunk; dialogue
// spanning a chunk boundary is never attempted since each chunk is
// routed independently.
func Route(text string, opts Options) []types.Span {
	if !opts.Enabled {
		return []types.Span{{Text: text, VoiceID: opts.NarratorVoice}}
	}

	ranges, ok := findQuoteRanges(text)
	if !ok {
		return []types.Span{{Text: text, VoiceID: opts.NarratorVoice}}
	}
	if len(ranges) == 0 {
		return []types.Span{{Text: text, VoiceID: opts.NarratorVoice}}
	}

	runes := []rune(text)
	var spans []types.Span
	pos := 0
	for _, r := range ranges {
		if r.start > pos {
			spans = append(spans, types.Span{Text: string(runes[pos:r.start]), VoiceID: opts.NarratorVoice})
		}
		speaker := attributeSpeaker(runes, r, opts.CharacterMap)
		voiceID := opts.NarratorVoice
		var description string
		if speaker != "" {
			if v, ok := opts.CharacterMap[speaker]; ok {
				voiceID = v
				description = opts.CharacterDescriptions[speaker]
			}
		}
		spans = append(spans, types.Span{Text: string(runes[r.start:r.end]), VoiceID: voiceID, VoiceDescription: description})
		pos = r.end
	}
	if pos < len(runes) {
		spans = append(spans, types.Span{Text: string(runes[pos:]), VoiceID: opts.NarratorVoice})
	}

	return mergeAdjacentSameVoice(spans)
}

type quoteRange struct {
	start, end int // rune indices, end exclusive, includes the quote marks
}

// findQuoteRanges scans for balanced quote pairs. When nested quotes
// of the same kind occur, the outermost pair wins. Returns ok=false
// when quotes are unbalanced (an opener with no matching closer before
// text end), signalling the caller to fall back to one narrator span.
func findQuoteRanges(text string) ([]quoteRange, bool) {
	runes := []rune(text)
	var ranges []quoteRange

	for i := 0; i < len(runes); i++ {
		pairIdx, isOpen := matchOpen(runes[i])
		if !isOpen {
			continue
		}
		depth := 1
		j := i + 1
		closeRune := quotePairs[pairIdx].close
		openRune := quotePairs[pairIdx].open
		closed := false
		for ; j < len(runes); j++ {
			if runes[j] == openRune && openRune != closeRune {
				depth++
				continue
			}
			if runes[j] == closeRune {
				depth--
				if depth == 0 {
					closed = true
					break
				}
			}
		}
		if !closed {
			return nil, false
		}
		ranges = append(ranges, quoteRange{start: i, end: j + 1})
		i = j
	}

	return ranges, true
}

func matchOpen(r rune) (int, bool) {
	for idx, p := range quotePairs {
		if r == p.open {
			return idx, true
		}
	}
	return 0, false
}

// attributeSpeaker inspects up to 120 characters before and after the
// quote range for an attribution verb adjacent to a capitalized token;
// failing that, it falls back to the nearest preceding capitalized
// token that is not sentence-initial.
func attributeSpeaker(runes []rune, r quoteRange, charMap map[string]string) string {
	before := windowBefore(runes, r.start, attributionWindow)
	after := windowAfter(runes, r.end, attributionWindow)

	if name := findAttributedName(before, charMap); name != "" {
		return name
	}
	if name := findAttributedName(after, charMap); name != "" {
		return name
	}

	return nearestPrecedingCapitalizedToken(runes, r.start)
}

func windowBefore(runes []rune, pos, n int) string {
	start := pos - n
	if start < 0 {
		start = 0
	}
	return string(runes[start:pos])
}

func windowAfter(runes []rune, pos, n int) string {
	end := pos + n
	if end > len(runes) {
		end = len(runes)
	}
	return string(runes[pos:end])
}

// findAttributedName looks for `verb CapToken` or `CapToken verb`
// adjacency within window. A token counts as a candidate speaker if
// it is capitalized, or if it case-insensitively names a known
// character — pronoun-style map keys ("He", "She") are otherwise
// indistinguishable from ordinary mid-sentence words.
func findAttributedName(window string, charMap map[string]string) string {
	tokens := strings.Fields(window)
	for i, tok := range tokens {
		clean := strings.ToLower(strings.Trim(tok, ".,;:!?\"'"))
		if !isAttributionVerb(clean) {
			continue
		}
		// A known-character match (even lowercase, e.g. a pronoun key
		// like "He") takes priority over incidental capitalization
		// from an adjacent sentence start.
		if i > 0 {
			if _, ok := lookupCaseInsensitive(charMap, trimPunct(tokens[i-1])); ok {
				return resolveCandidate(tokens[i-1], charMap)
			}
		}
		if i+1 < len(tokens) {
			if _, ok := lookupCaseInsensitive(charMap, trimPunct(tokens[i+1])); ok {
				return resolveCandidate(tokens[i+1], charMap)
			}
		}
		if i > 0 && isCapitalized(tokens[i-1]) {
			return resolveCandidate(tokens[i-1], charMap)
		}
		if i+1 < len(tokens) && isCapitalized(tokens[i+1]) {
			return resolveCandidate(tokens[i+1], charMap)
		}
	}
	return ""
}

// resolveCandidate returns the map key as written (preserving its
// original casing) so the caller's direct CharacterMap lookup in
// Route still succeeds.
func resolveCandidate(tok string, charMap map[string]string) string {
	clean := trimPunct(tok)
	if key, ok := lookupCaseInsensitive(charMap, clean); ok {
		return key
	}
	return clean
}

func lookupCaseInsensitive(charMap map[string]string, name string) (string, bool) {
	for k := range charMap {
		if strings.EqualFold(k, name) {
			return k, true
		}
	}
	return "", false
}

func isAttributionVerb(tok string) bool {
	for _, v := range attributionVerbs {
		if tok == v {
			return true
		}
	}
	return false
}

func isCapitalized(tok string) bool {
	trimmed := trimPunct(tok)
	if trimmed == "" {
		return false
	}
	r := []rune(trimmed)[0]
	return unicode.IsUpper(r)
}

func trimPunct(tok string) string {
	return strings.Trim(tok, ".,;:!?\"'“”‘’")
}

// nearestPrecedingCapitalizedToken scans backward from pos for a
// capitalized token that is not sentence-initial (i.e. not the first
// word after a sentence-ending punctuation mark or text start).
func nearestPrecedingCapitalizedToken(runes []rune, pos int) string {
	text := string(runes[:pos])
	tokens := strings.Fields(text)
	for i := len(tokens) - 1; i >= 0; i-- {
		if !isCapitalized(tokens[i]) {
			continue
		}
		if i == 0 {
			continue // sentence-initial by definition of being the first token
		}
		prev := tokens[i-1]
		if endsSentence(prev) {
			continue // sentence-initial
		}
		return trimPunct(tokens[i])
	}
	return ""
}

func endsSentence(tok string) bool {
	if tok == "" {
		return false
	}
	last := tok[len(tok)-1]
	return last == '.' || last == '!' || last == '?'
}

func mergeAdjacentSameVoice(spans []types.Span) []types.Span {
	if len(spans) == 0 {
		return spans
	}
	merged := []types.Span{spans[0]}
	for _, s := range spans[1:] {
		last := &merged[len(merged)-1]
		if last.VoiceID == s.VoiceID {
			last.Text += s.Text
		} else {
			merged = append(merged, s)
		}
	}
	return merged
}
