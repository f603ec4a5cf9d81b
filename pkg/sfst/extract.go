// Package sfst turns SFST act text pages into a structural body.
package sfst

import (
	"fmt"
	"html"
	"regexp"
	"strings"

	"github.com/coolbeans/lagen/pkg/sfs"
)

// BlockKind classifies a body block.
type BlockKind string

const (
	// KindChapter is a chapter heading, "3 kap. Behandling av personuppgifter".
	KindChapter BlockKind = "chapter"
	// KindSection is a paragraph that opens a numbered section, "5 a § ...".
	KindSection BlockKind = "section"
	// KindParagraph is any other paragraph of act text.
	KindParagraph BlockKind = "paragraph"
	// KindTransitional holds the transitional provisions of the act and every
	// amendment to it.
	KindTransitional BlockKind = "transitional"
)

// Provision is the transitional provision introduced by one act.
type Provision struct {
	Identifier sfs.Identifier `json:"sfs"`
	Text       string         `json:"text"`
}

// Block is one structural unit of an act's text.
type Block struct {
	Kind BlockKind `json:"kind"`
	// Ordinal is the chapter or section number as printed, e.g. "5 a".
	Ordinal string `json:"ordinal,omitempty"`
	Text    string `json:"text,omitempty"`
	// Provisions is only set on KindTransitional blocks.
	Provisions []Provision `json:"provisions,omitempty"`
}

// Body is the structural form of an act's text.
type Body struct {
	Blocks []Block `json:"blocks"`
}

// Extractor extracts SFST pages. The zero value is ready to use.
type Extractor struct{}

// NewExtractor returns an SFST extractor.
func NewExtractor() *Extractor {
	return &Extractor{}
}

var (
	rePreformatted   = regexp.MustCompile(`(?is)<pre[^>]*>(.*?)</pre>`)
	reTag            = regexp.MustCompile(`<[^>]+>`)
	reBlankLines     = regexp.MustCompile(`\n[^\S\n]*\n\s*`)
	reChapterHeading = regexp.MustCompile(`^(\d+\s?[a-z]?)\s+kap\.\s*(.*)$`)
	reSectionStart   = regexp.MustCompile(`^(\d+\s?[a-z]?)\s*§`)
	reProvisionHead  = regexp.MustCompile(`^(\d{4}:\d+)\s*$`)
)

const transitionalHeading = "Övergångsbestämmelser"

// Extract parses the act text held in the page's <pre> element. A page
// without act text fails with an error wrapping sfs.ErrExtraction.
func (extractor *Extractor) Extract(raw []byte) (*Body, error) {
	match := rePreformatted.FindStringSubmatch(sfs.Decode(raw))
	if match == nil {
		return nil, fmt.Errorf("no <pre> element: %w", sfs.ErrExtraction)
	}

	content := reTag.ReplaceAllString(match[1], "")
	content = html.UnescapeString(content)
	content = strings.ReplaceAll(content, "\r\n", "\n")
	content = strings.ReplaceAll(content, "\u00a0", " ")

	paragraphs := splitParagraphs(content)
	if len(paragraphs) == 0 {
		return nil, fmt.Errorf("empty act text: %w", sfs.ErrExtraction)
	}

	body := &Body{}
	for index, paragraph := range paragraphs {
		if paragraph == transitionalHeading {
			body.Blocks = append(body.Blocks, transitionalBlock(paragraphs[index+1:]))
			break
		}
		body.Blocks = append(body.Blocks, classify(paragraph))
	}
	return body, nil
}

// splitParagraphs splits text on blank lines and drops the metadata header
// the register prints above the act text.
func splitParagraphs(content string) []string {
	var paragraphs []string
	for _, paragraph := range reBlankLines.Split(content, -1) {
		paragraph = strings.TrimSpace(paragraph)
		if paragraph == "" || isHeaderParagraph(paragraph) {
			continue
		}
		paragraphs = append(paragraphs, paragraph)
	}
	return paragraphs
}

var headerFields = []string{"SFS nr:", "Departement/myndighet:", "Utfärdad:", "Rubrik:", "Ändring införd:",
	"Omtryck:", "Upphävd:", "Författningen har upphävts genom:", "Författningen är upphävd/skall upphävas:", "Ikraft:"}

func isHeaderParagraph(paragraph string) bool {
	for _, line := range strings.Split(paragraph, "\n") {
		line = strings.TrimSpace(line)
		known := false
		for _, field := range headerFields {
			if strings.HasPrefix(line, field) {
				known = true
				break
			}
		}
		if !known {
			return false
		}
	}
	return true
}

func classify(paragraph string) Block {
	if match := reChapterHeading.FindStringSubmatch(paragraph); match != nil && !strings.Contains(paragraph, "\n") {
		return Block{Kind: KindChapter, Ordinal: normalizeOrdinal(match[1]), Text: strings.TrimSpace(match[2])}
	}
	if match := reSectionStart.FindStringSubmatch(paragraph); match != nil {
		return Block{Kind: KindSection, Ordinal: normalizeOrdinal(match[1]), Text: joinLines(paragraph)}
	}
	return Block{Kind: KindParagraph, Text: joinLines(paragraph)}
}

// transitionalBlock groups the paragraphs after the heading by the act that
// introduced them. Text before the first act heading belongs to no act and
// is kept under the zero identifier.
func transitionalBlock(paragraphs []string) Block {
	block := Block{Kind: KindTransitional}
	var current *Provision

	for _, paragraph := range paragraphs {
		lines := strings.SplitN(paragraph, "\n", 2)
		if match := reProvisionHead.FindStringSubmatch(strings.TrimSpace(lines[0])); match != nil {
			identifier, err := sfs.Parse(match[1])
			if err == nil {
				block.Provisions = append(block.Provisions, Provision{Identifier: identifier})
				current = &block.Provisions[len(block.Provisions)-1]
				if len(lines) > 1 {
					current.Text = joinLines(lines[1])
				}
				continue
			}
		}
		if current == nil {
			block.Provisions = append(block.Provisions, Provision{})
			current = &block.Provisions[len(block.Provisions)-1]
		}
		if current.Text != "" {
			current.Text += "\n\n"
		}
		current.Text += joinLines(paragraph)
	}
	return block
}

// joinLines collapses a hard-wrapped paragraph onto one line.
func joinLines(paragraph string) string {
	return strings.Join(strings.Fields(paragraph), " ")
}

func normalizeOrdinal(ordinal string) string {
	return strings.Join(strings.Fields(ordinal), " ")
}
