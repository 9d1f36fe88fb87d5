package parser

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/unalkalkan/narrator/pkg/types"
)

// TXTParser parses plain text files into chapters, splitting on
// detected chapter headings and blank-line paragraph breaks.
type TXTParser struct{}

const paragraphBreakEmptyLines = 1

func NewTXTParser() *TXTParser {
	return &TXTParser{}
}

// Parse extracts chapters and text from a TXT file.
func (p *TXTParser) Parse(ctx context.Context, data []byte) ([]*types.Chapter, error) {
	scanner := bufio.NewScanner(bytes.NewReader(data))

	chapters := make([]*types.Chapter, 0)
	currentChapter := &types.Chapter{
		Ordinal:    0,
		Title:      "Main Content",
		Paragraphs: make([]string, 0),
	}

	var currentParagraph strings.Builder
	emptyLineCount := 0

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		if p.isChapterHeading(line) && len(currentChapter.Paragraphs) > 0 {
			if currentParagraph.Len() > 0 {
				currentChapter.Paragraphs = append(currentChapter.Paragraphs, currentParagraph.String())
				currentParagraph.Reset()
			}

			chapters = append(chapters, currentChapter)

			currentChapter = &types.Chapter{
				Ordinal:    len(chapters),
				Title:      line,
				Paragraphs: make([]string, 0),
			}
			emptyLineCount = 0
			continue
		}

		if line == "" {
			emptyLineCount++
			if currentParagraph.Len() > 0 && emptyLineCount >= paragraphBreakEmptyLines {
				currentChapter.Paragraphs = append(currentChapter.Paragraphs, currentParagraph.String())
				currentParagraph.Reset()
			}
			continue
		}

		emptyLineCount = 0
		if currentParagraph.Len() > 0 {
			currentParagraph.WriteString(" ")
		}
		currentParagraph.WriteString(line)
	}

	if currentParagraph.Len() > 0 {
		currentChapter.Paragraphs = append(currentChapter.Paragraphs, currentParagraph.String())
	}

	if len(currentChapter.Paragraphs) > 0 {
		chapters = append(chapters, currentChapter)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading text: %w", err)
	}

	if len(chapters) == 0 {
		return nil, fmt.Errorf("no content found in text file")
	}

	return chapters, nil
}

// isChapterHeading checks if a line looks like a chapter heading.
func (p *TXTParser) isChapterHeading(line string) bool {
	if len(line) == 0 {
		return false
	}

	lower := strings.ToLower(line)

	patterns := []string{
		"chapter ",
		"part ",
		"section ",
		"prologue",
		"epilogue",
		"introduction",
	}

	for _, pattern := range patterns {
		if strings.HasPrefix(lower, pattern) {
			return true
		}
	}

	if len(line) < 60 && (isAllCaps(line) || isTitleCase(line)) {
		return true
	}

	return false
}

func isAllCaps(s string) bool {
	hasLetter := false
	for _, r := range s {
		if r >= 'a' && r <= 'z' {
			return false
		}
		if r >= 'A' && r <= 'Z' {
			hasLetter = true
		}
	}
	return hasLetter
}

func isTitleCase(s string) bool {
	words := strings.Fields(s)
	if len(words) == 0 {
		return false
	}

	titleCaseCount := 0
	for _, word := range words {
		if len(word) > 0 {
			first := rune(word[0])
			if first >= 'A' && first <= 'Z' {
				titleCaseCount++
			}
		}
	}

	return float64(titleCaseCount)/float64(len(words)) > 0.7
}

func (p *TXTParser) SupportedFormats() []string {
	return []string{"txt", "md", "rst"}
}
