package export

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	extast "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"
)

// renderMarkdownDOCX parses markdown and packages it as a minimal OOXML
// wordprocessing document. Headings map to the Heading1..Heading4 paragraph
// styles so the output survives the same style-based outline extraction
// Word exports do.
func renderMarkdownDOCX(markdown string) ([]byte, error) {
	md := goldmark.New(
		goldmark.WithExtensions(extension.Table, extension.Strikethrough),
	)

	source := []byte(markdown)
	doc := md.Parser().Parse(text.NewReader(source))

	renderer := &docxRenderer{source: source}
	if err := ast.Walk(doc, renderer.walk); err != nil {
		return nil, err
	}
	renderer.flush()

	return packageDocx(renderer.paragraphs)
}

type docxRun struct {
	text   string
	bold   bool
	italic bool
	code   bool
}

type docxParagraph struct {
	style string // "" or Heading1..Heading4
	runs  []docxRun
}

type docxRenderer struct {
	source     []byte
	paragraphs []docxParagraph
	current    *docxParagraph
	bold       bool
	italic     bool
	listLevel  int
	listPrefix string
}

func (r *docxRenderer) begin(style string) {
	r.flush()
	r.current = &docxParagraph{style: style}
}

func (r *docxRenderer) flush() {
	if r.current != nil {
		r.paragraphs = append(r.paragraphs, *r.current)
		r.current = nil
	}
}

func (r *docxRenderer) write(run docxRun) {
	if r.current == nil {
		r.current = &docxParagraph{}
	}
	if r.listPrefix != "" {
		r.current.runs = append(r.current.runs, docxRun{text: r.listPrefix})
		r.listPrefix = ""
	}
	r.current.runs = append(r.current.runs, run)
}

func (r *docxRenderer) walk(n ast.Node, entering bool) (ast.WalkStatus, error) {
	switch node := n.(type) {
	case *ast.Heading:
		if entering {
			level := node.Level
			if level > 4 {
				level = 4
			}
			r.begin(fmt.Sprintf("Heading%d", level))
		} else {
			r.flush()
		}
	case *ast.Paragraph, *ast.TextBlock:
		if entering {
			if r.listLevel == 0 {
				r.begin("")
			}
		} else if r.listLevel == 0 {
			r.flush()
		}
	case *ast.Text:
		if entering {
			r.write(docxRun{
				text:   string(node.Text(r.source)),
				bold:   r.bold,
				italic: r.italic,
			})
		}
	case *ast.Emphasis:
		if node.Level == 2 {
			r.bold = entering
		} else {
			r.italic = entering
		}
	case *ast.CodeSpan:
		if entering {
			for c := node.FirstChild(); c != nil; c = c.NextSibling() {
				if textNode, ok := c.(*ast.Text); ok {
					r.write(docxRun{text: string(textNode.Segment.Value(r.source)), code: true})
				}
			}
		}
		return ast.WalkSkipChildren, nil
	case *ast.FencedCodeBlock:
		if entering {
			r.codeBlock(node.Lines())
			return ast.WalkSkipChildren, nil
		}
	case *ast.CodeBlock:
		if entering {
			r.codeBlock(node.Lines())
			return ast.WalkSkipChildren, nil
		}
	case *ast.List:
		if entering {
			r.listLevel++
		} else {
			r.listLevel--
		}
	case *ast.ListItem:
		if entering {
			r.begin("")
			r.listPrefix = strings.Repeat("    ", r.listLevel-1) + "- "
		} else {
			r.flush()
		}
	case *ast.ThematicBreak:
		if entering {
			r.begin("")
			r.write(docxRun{text: strings.Repeat("─", 30)})
			r.flush()
		}
	case *extast.Table:
		if entering {
			r.table(node)
			return ast.WalkSkipChildren, nil
		}
	}
	return ast.WalkContinue, nil
}

func (r *docxRenderer) codeBlock(lines *text.Segments) {
	for i := 0; i < lines.Len(); i++ {
		r.begin("")
		seg := lines.At(i)
		line := strings.TrimRight(string(seg.Value(r.source)), "\n")
		r.write(docxRun{text: line, code: true})
		r.flush()
	}
}

// table flattens rows into pipe-separated paragraphs, header bold. A native
// w:tbl is not worth the markup for the small tables generation produces.
func (r *docxRenderer) table(n *extast.Table) {
	for child := n.FirstChild(); child != nil; child = child.NextSibling() {
		_, isHeader := child.(*extast.TableHeader)
		_, isRow := child.(*extast.TableRow)
		if !isHeader && !isRow {
			continue
		}

		var cells []string
		for cell := child.FirstChild(); cell != nil; cell = cell.NextSibling() {
			if _, ok := cell.(*extast.TableCell); ok {
				cells = append(cells, string(cell.Text(r.source)))
			}
		}

		r.begin("")
		r.write(docxRun{text: strings.Join(cells, " | "), bold: isHeader})
		r.flush()
	}
}

// packageDocx zips the document parts into a DOCX archive
func packageDocx(paragraphs []docxParagraph) ([]byte, error) {
	var buf bytes.Buffer
	archive := zip.NewWriter(&buf)

	parts := []struct {
		name    string
		content string
	}{
		{"[Content_Types].xml", docxContentTypes},
		{"_rels/.rels", docxPackageRels},
		{"word/_rels/document.xml.rels", docxDocumentRels},
		{"word/styles.xml", docxStyles},
		{"word/document.xml", buildDocumentXML(paragraphs)},
	}

	for _, part := range parts {
		w, err := archive.Create(part.name)
		if err != nil {
			return nil, fmt.Errorf("docx part %s: %w", part.name, err)
		}
		if _, err := w.Write([]byte(part.content)); err != nil {
			return nil, fmt.Errorf("docx part %s: %w", part.name, err)
		}
	}

	if err := archive.Close(); err != nil {
		return nil, fmt.Errorf("docx archive: %w", err)
	}
	return buf.Bytes(), nil
}

func buildDocumentXML(paragraphs []docxParagraph) string {
	var b strings.Builder
	b.WriteString(xml.Header)
	b.WriteString(`<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>`)

	for _, p := range paragraphs {
		b.WriteString("<w:p>")
		if p.style != "" {
			fmt.Fprintf(&b, `<w:pPr><w:pStyle w:val="%s"/></w:pPr>`, p.style)
		}
		for _, run := range p.runs {
			b.WriteString("<w:r>")
			if props := runProps(run); props != "" {
				fmt.Fprintf(&b, "<w:rPr>%s</w:rPr>", props)
			}
			fmt.Fprintf(&b, `<w:t xml:space="preserve">%s</w:t>`, escapeXML(run.text))
			b.WriteString("</w:r>")
		}
		b.WriteString("</w:p>")
	}

	b.WriteString(`<w:sectPr/></w:body></w:document>`)
	return b.String()
}

func runProps(run docxRun) string {
	var b strings.Builder
	if run.code {
		b.WriteString(`<w:rFonts w:ascii="Courier New" w:hAnsi="Courier New"/>`)
	}
	if run.bold {
		b.WriteString("<w:b/>")
	}
	if run.italic {
		b.WriteString("<w:i/>")
	}
	return b.String()
}

func escapeXML(s string) string {
	var b bytes.Buffer
	xml.EscapeText(&b, []byte(s))
	return b.String()
}

const docxContentTypes = xml.Header + `<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types">` +
	`<Default Extension="rels" ContentType="application/vnd.openxmlformats-package.relationships+xml"/>` +
	`<Default Extension="xml" ContentType="application/xml"/>` +
	`<Override PartName="/word/document.xml" ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"/>` +
	`<Override PartName="/word/styles.xml" ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.styles+xml"/>` +
	`</Types>`

const docxPackageRels = xml.Header + `<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">` +
	`<Relationship Id="rId1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/officeDocument" Target="word/document.xml"/>` +
	`</Relationships>`

const docxDocumentRels = xml.Header + `<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">` +
	`<Relationship Id="rId1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/styles" Target="styles.xml"/>` +
	`</Relationships>`

var docxStyles = xml.Header + `<w:styles xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">` +
	headingStyle(1, 32) + headingStyle(2, 26) + headingStyle(3, 24) + headingStyle(4, 22) +
	`</w:styles>`

// headingStyle emits one heading paragraph style; size is in half-points
func headingStyle(level, size int) string {
	return fmt.Sprintf(`<w:style w:type="paragraph" w:styleId="Heading%d">`+
		`<w:name w:val="heading %d"/>`+
		`<w:rPr><w:b/><w:sz w:val="%d"/></w:rPr>`+
		`</w:style>`, level, level, size)
}
