package templates

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strings"

	"github.com/ternarybob/trado/internal/models"
)

// docx heading style identifiers. Word emits both the compact and the spaced
// spelling depending on locale and version; both map to the same level.
var docxHeadingStyles = map[string]int{
	"heading1":  1,
	"heading 1": 1,
	"heading2":  2,
	"heading 2": 2,
	"heading3":  3,
	"heading 3": 3,
	"heading4":  4,
	"heading 4": 4,
}

// headingLevelForStyle maps a paragraph style id to a heading level.
// Returns 0 for non-heading styles.
func headingLevelForStyle(style string) int {
	return docxHeadingStyles[strings.ToLower(strings.TrimSpace(style))]
}

// docxParagraph is one paragraph with its style id and concatenated run text
type docxParagraph struct {
	Style string
	Text  string
}

// parseDocx extracts the heading outline from a DOCX file's bytes. The file
// is a zip archive; headings are paragraphs in the document body whose style
// id maps to a heading level. Order is document order, dense and 1-based;
// heading paragraphs with no text are discarded without consuming an order
// value.
func parseDocx(fileBytes []byte) (*models.ParsedOutline, error) {
	reader, err := zip.NewReader(bytes.NewReader(fileBytes), int64(len(fileBytes)))
	if err != nil {
		return nil, fmt.Errorf("%w: corrupt docx archive: %v", models.ErrTemplateParse, err)
	}

	body, err := readArchiveFile(reader, "word/document.xml")
	if err != nil {
		return nil, fmt.Errorf("%w: missing document body: %v", models.ErrTemplateParse, err)
	}

	outline := &models.ParsedOutline{Sections: []models.OutlineSection{}}
	order := 1
	for _, paragraph := range extractDocxParagraphs(body) {
		level := headingLevelForStyle(paragraph.Style)
		if level == 0 {
			continue
		}
		title := strings.TrimSpace(paragraph.Text)
		if title == "" {
			continue
		}
		outline.Sections = append(outline.Sections, models.OutlineSection{
			Order: order,
			Title: title,
			Level: level,
		})
		order++
	}

	return outline, nil
}

func readArchiveFile(reader *zip.Reader, target string) ([]byte, error) {
	for _, file := range reader.File {
		if strings.EqualFold(file.Name, target) {
			rc, err := file.Open()
			if err != nil {
				return nil, err
			}
			defer rc.Close()
			return io.ReadAll(rc)
		}
	}
	return nil, fmt.Errorf("file not found in archive: %s", target)
}

// extractDocxParagraphs walks the body XML paragraph by paragraph, capturing
// each paragraph's style id (w:pStyle val) and the concatenation of its text
// runs (w:t) in document order.
func extractDocxParagraphs(body []byte) []docxParagraph {
	decoder := xml.NewDecoder(bytes.NewReader(body))

	var (
		paragraphs  []docxParagraph
		inParagraph bool
		inText      bool
		style       string
		text        strings.Builder
	)

	for {
		token, err := decoder.Token()
		if err != nil {
			break
		}

		switch t := token.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "p":
				inParagraph = true
				inText = false
				style = ""
				text.Reset()
			case "pStyle":
				if !inParagraph {
					continue
				}
				for _, attr := range t.Attr {
					if strings.EqualFold(attr.Name.Local, "val") {
						style = strings.TrimSpace(attr.Value)
					}
				}
			case "t":
				if inParagraph {
					inText = true
				}
			}

		case xml.CharData:
			if inParagraph && inText {
				text.Write(t)
			}

		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				if inParagraph {
					paragraphs = append(paragraphs, docxParagraph{
						Style: style,
						Text:  text.String(),
					})
				}
				inParagraph = false
				inText = false
			}
		}
	}

	return paragraphs
}
