package parser

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"html"
	"io"
	"path"
	"regexp"
	"strings"

	"github.com/unalkalkan/narrator/pkg/types"
)

// EPUBParser parses EPUB (OCF/OPF) container files: it reads
// META-INF/container.xml to find the package document, walks the
// spine in reading order, and strips each XHTML item down to
// paragraph text.
type EPUBParser struct{}

func NewEPUBParser() *EPUBParser {
	return &EPUBParser{}
}

type ocfContainer struct {
	Rootfiles []struct {
		FullPath string `xml:"full-path,attr"`
	} `xml:"rootfiles>rootfile"`
}

type opfPackage struct {
	Manifest struct {
		Items []opfManifestItem `xml:"item"`
	} `xml:"manifest"`
	Spine struct {
		ItemRefs []struct {
			IDRef string `xml:"idref,attr"`
		} `xml:"itemref"`
	} `xml:"spine"`
}

type opfManifestItem struct {
	ID   string `xml:"id,attr"`
	Href string `xml:"href,attr"`
	Type string `xml:"media-type,attr"`
}

var tagRe = regexp.MustCompile(`(?s)<[^>]*>`)
var headingTagRe = regexp.MustCompile(`(?i)<h[1-3][^>]*>(.*?)</h[1-3]>`)

// Parse extracts chapters from an EPUB archive by walking its spine.
func (p *EPUBParser) Parse(ctx context.Context, data []byte) ([]*types.Chapter, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open epub as zip: %w", err)
	}

	containerBytes, err := readZipFile(zr, "META-INF/container.xml")
	if err != nil {
		return nil, fmt.Errorf("read container.xml: %w", err)
	}
	var container ocfContainer
	if err := xml.Unmarshal(containerBytes, &container); err != nil {
		return nil, fmt.Errorf("parse container.xml: %w", err)
	}
	if len(container.Rootfiles) == 0 {
		return nil, fmt.Errorf("container.xml lists no rootfile")
	}

	opfPath := container.Rootfiles[0].FullPath
	opfBytes, err := readZipFile(zr, opfPath)
	if err != nil {
		return nil, fmt.Errorf("read package document %s: %w", opfPath, err)
	}
	var pkg opfPackage
	if err := xml.Unmarshal(opfBytes, &pkg); err != nil {
		return nil, fmt.Errorf("parse package document: %w", err)
	}

	manifestByID := make(map[string]opfManifestItem, len(pkg.Manifest.Items))
	for _, item := range pkg.Manifest.Items {
		manifestByID[item.ID] = item
	}

	opfDir := path.Dir(opfPath)

	var chapters []*types.Chapter
	for _, ref := range pkg.Spine.ItemRefs {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		item, ok := manifestByID[ref.IDRef]
		if !ok || !strings.Contains(item.Type, "html") {
			continue
		}

		itemPath := path.Join(opfDir, item.Href)
		content, err := readZipFile(zr, itemPath)
		if err != nil {
			continue // a missing spine item degrades to "skip", not "fail the whole book"
		}

		title, paragraphs := extractXHTML(content)
		if len(paragraphs) == 0 {
			continue
		}
		chapters = append(chapters, &types.Chapter{
			Ordinal:    len(chapters),
			Title:      title,
			Paragraphs: paragraphs,
		})
	}

	if len(chapters) == 0 {
		return nil, fmt.Errorf("epub spine produced no readable chapters")
	}

	return chapters, nil
}

func readZipFile(zr *zip.Reader, name string) ([]byte, error) {
	for _, f := range zr.File {
		if f.Name == name {
			rc, err := f.Open()
			if err != nil {
				return nil, err
			}
			defer rc.Close()
			return io.ReadAll(rc)
		}
	}
	return nil, fmt.Errorf("no such entry in epub: %s", name)
}

// extractXHTML pulls a title (first h1-h3) and paragraph text out of
// one XHTML content document using a tag-stripping heuristic rather
// than a full XHTML DOM, which is sufficient for narration purposes.
func extractXHTML(raw []byte) (title string, paragraphs []string) {
	content := string(raw)

	if m := headingTagRe.FindStringSubmatch(content); m != nil {
		title = html.UnescapeString(tagRe.ReplaceAllString(m[1], ""))
		title = strings.TrimSpace(title)
	}

	bodyStart := strings.Index(strings.ToLower(content), "<body")
	if bodyStart >= 0 {
		if tagEnd := strings.Index(content[bodyStart:], ">"); tagEnd >= 0 {
			content = content[bodyStart+tagEnd+1:]
		}
	}

	paraRe := regexp.MustCompile(`(?is)<p[^>]*>(.*?)</p>`)
	for _, m := range paraRe.FindAllStringSubmatch(content, -1) {
		text := tagRe.ReplaceAllString(m[1], " ")
		text = html.UnescapeString(text)
		text = strings.Join(strings.Fields(text), " ")
		if text != "" {
			paragraphs = append(paragraphs, text)
		}
	}

	return title, paragraphs
}

func (p *EPUBParser) SupportedFormats() []string {
	return []string{"epub"}
}
