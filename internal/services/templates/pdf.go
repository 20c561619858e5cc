package templates

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/ternarybob/trado/internal/models"
)

// Line classification patterns. Chapter/section markers follow Japanese
// numbering conventions alongside decimal and roman enumerations.
var headingPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^第[0-9０-９一二三四五六七八九十百]+[章節部編]`),
	regexp.MustCompile(`^[0-9０-９]+[.)．）]`),
	regexp.MustCompile(`^[IVXLCDMivxlcdm]+[.)．）]`),
}

const (
	// maxHeadingLength bounds the all-caps heuristic
	maxHeadingLength = 60

	// lineYTolerance groups text fragments into one visual line when their
	// vertical positions differ by no more than this many points
	lineYTolerance = 2.0
)

// parsePDF extracts the heading outline from a PDF file's bytes. pdfcpu has
// no direct text extraction, so page content streams are extracted to a temp
// directory and their text-showing operators parsed into positioned
// fragments, which are regrouped into visual lines.
func parsePDF(fileBytes []byte) (*models.ParsedOutline, error) {
	tempDir, err := os.MkdirTemp("", "trado-pdf")
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create temp dir: %v", models.ErrTemplateParse, err)
	}
	defer os.RemoveAll(tempDir)

	tempFile := filepath.Join(tempDir, "template.pdf")
	if err := os.WriteFile(tempFile, fileBytes, 0644); err != nil {
		return nil, fmt.Errorf("%w: failed to write temp file: %v", models.ErrTemplateParse, err)
	}

	pdfCtx, err := api.ReadContextFile(tempFile)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read pdf: %v", models.ErrTemplateParse, err)
	}
	pageCount := pdfCtx.PageCount

	outDir := filepath.Join(tempDir, "pages")
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return nil, fmt.Errorf("%w: failed to create extraction dir: %v", models.ErrTemplateParse, err)
	}

	conf := model.NewDefaultConfiguration()
	if err := api.ExtractContentFile(tempFile, outDir, nil, conf); err != nil {
		return nil, fmt.Errorf("%w: failed to extract page content: %v", models.ErrTemplateParse, err)
	}

	pageStreams := readPageStreams(outDir, pageCount)

	outline := &models.ParsedOutline{Sections: []models.OutlineSection{}}
	order := 1
	for pageNum := 1; pageNum <= pageCount; pageNum++ {
		for _, line := range extractTextLines(pageStreams[pageNum]) {
			if !isHeadingLine(line) {
				continue
			}
			outline.Sections = append(outline.Sections, models.OutlineSection{
				Order: order,
				Title: line,
				Level: 1,
			})
			order++
		}
	}

	return outline, nil
}

// readPageStreams maps page number to extracted content stream bytes.
// pdfcpu names extracted files "<base>_Content_page_<n>.txt".
func readPageStreams(outDir string, pageCount int) map[int][]byte {
	streams := make(map[int][]byte, pageCount)

	files, err := os.ReadDir(outDir)
	if err != nil {
		return streams
	}

	pageRe := regexp.MustCompile(`page_(\d+)`)
	for _, file := range files {
		if file.IsDir() {
			continue
		}
		matches := pageRe.FindStringSubmatch(file.Name())
		if len(matches) < 2 {
			continue
		}
		pageNum, err := strconv.Atoi(matches[1])
		if err != nil {
			continue
		}
		content, err := os.ReadFile(filepath.Join(outDir, file.Name()))
		if err == nil {
			streams[pageNum] = content
		}
	}

	return streams
}

// textFragment is one text-showing operator's output with its vertical
// position on the page
type textFragment struct {
	y    float64
	text string
}

// extractTextLines parses a page content stream's text operators and groups
// fragments whose vertical positions fall within lineYTolerance into visual
// lines, ordered top of page first.
func extractTextLines(stream []byte) []string {
	fragments := parseTextFragments(string(stream))
	if len(fragments) == 0 {
		return nil
	}

	type visualLine struct {
		y     float64
		parts []string
	}

	var lines []*visualLine
	for _, fragment := range fragments {
		var match *visualLine
		for _, line := range lines {
			if fragment.y >= line.y-lineYTolerance && fragment.y <= line.y+lineYTolerance {
				match = line
				break
			}
		}
		if match == nil {
			match = &visualLine{y: fragment.y}
			lines = append(lines, match)
		}
		match.parts = append(match.parts, fragment.text)
	}

	// Top of page first: PDF y grows upward
	sort.SliceStable(lines, func(i, j int) bool {
		return lines[i].y > lines[j].y
	})

	out := make([]string, 0, len(lines))
	for _, line := range lines {
		text := strings.TrimSpace(strings.Join(line.parts, ""))
		if text != "" {
			out = append(out, text)
		}
	}
	return out
}

// parseTextFragments walks the content stream tracking the vertical text
// position through Tm/Td/TD/T* and collecting Tj/TJ/'/" text output.
func parseTextFragments(stream string) []textFragment {
	var (
		fragments []textFragment
		operands  []string
		y         float64
		leading   float64 = 12
	)

	emit := func() {
		for _, op := range operands {
			if strings.HasPrefix(op, "(") && len(op) > 1 {
				fragments = append(fragments, textFragment{y: y, text: op[1:]})
			}
		}
	}

	popFloats := func(n int) []float64 {
		out := make([]float64, n)
		if len(operands) < n {
			return out
		}
		for i := 0; i < n; i++ {
			out[i], _ = strconv.ParseFloat(operands[len(operands)-n+i], 64)
		}
		return out
	}

	i := 0
	for i < len(stream) {
		c := stream[i]
		switch {
		case c == '(':
			text, next := parseLiteralString(stream, i)
			operands = append(operands, "("+text)
			i = next

		case c == '<' && i+1 < len(stream) && stream[i+1] == '<':
			// Inline dictionary, e.g. marked-content properties like
			// /Span <</ActualText(...)>> BDC. Carries no page text.
			i = skipInlineDict(stream, i)

		case c == '<':
			text, next := parseHexString(stream, i)
			operands = append(operands, "("+text)
			i = next

		case c == '[' || c == ']' || c == '{' || c == '}':
			i++

		case c == '%':
			for i < len(stream) && stream[i] != '\n' {
				i++
			}

		case isDelimiterOrSpace(c):
			i++

		default:
			start := i
			for i < len(stream) && !isDelimiterOrSpace(stream[i]) && stream[i] != '(' && stream[i] != '[' && stream[i] != ']' && stream[i] != '<' {
				i++
			}
			if i == start {
				i++
				break
			}
			token := stream[start:i]

			switch token {
			case "Tm":
				vals := popFloats(6)
				y = vals[5]
				operands = operands[:0]
			case "Td":
				vals := popFloats(2)
				y += vals[1]
				operands = operands[:0]
			case "TD":
				vals := popFloats(2)
				leading = -vals[1]
				y += vals[1]
				operands = operands[:0]
			case "TL":
				vals := popFloats(1)
				leading = vals[0]
				operands = operands[:0]
			case "T*":
				y -= leading
				operands = operands[:0]
			case "Tj", "TJ", "'", "\"":
				emit()
				operands = operands[:0]
			case "BT", "ET":
				operands = operands[:0]
			default:
				if token != "" {
					operands = append(operands, token)
				}
			}
		}
	}

	return fragments
}

// skipInlineDict advances past a balanced << ... >> dictionary, stepping over
// embedded strings so delimiters inside them are not miscounted. Returns the
// index after the closing >>, or the end of the stream if unbalanced.
func skipInlineDict(stream string, start int) int {
	depth := 0
	i := start
	for i < len(stream) {
		switch {
		case strings.HasPrefix(stream[i:], "<<"):
			depth++
			i += 2
		case strings.HasPrefix(stream[i:], ">>"):
			depth--
			i += 2
			if depth == 0 {
				return i
			}
		case stream[i] == '(':
			_, i = parseLiteralString(stream, i)
		case stream[i] == '<':
			_, i = parseHexString(stream, i)
		default:
			i++
		}
	}
	return i
}

func isDelimiterOrSpace(c byte) bool {
	switch c {
	case ' ', '\t', '\r', '\n', '\f', 0:
		return true
	}
	return false
}

// parseLiteralString reads a PDF literal string starting at the opening
// parenthesis, handling nesting and backslash escapes. Returns the decoded
// text and the index after the closing parenthesis.
func parseLiteralString(stream string, start int) (string, int) {
	var out strings.Builder
	depth := 0
	i := start
	for i < len(stream) {
		c := stream[i]
		switch c {
		case '\\':
			if i+1 < len(stream) {
				next := stream[i+1]
				switch next {
				case 'n':
					out.WriteByte('\n')
				case 'r':
					out.WriteByte('\r')
				case 't':
					out.WriteByte('\t')
				case '(', ')', '\\':
					out.WriteByte(next)
				default:
					out.WriteByte(next)
				}
				i += 2
				continue
			}
			i++
		case '(':
			depth++
			if depth > 1 {
				out.WriteByte(c)
			}
			i++
		case ')':
			depth--
			if depth == 0 {
				return out.String(), i + 1
			}
			out.WriteByte(c)
			i++
		default:
			out.WriteByte(c)
			i++
		}
	}
	return out.String(), i
}

// parseHexString reads a PDF hex string starting at '<'. Non-printable
// results are discarded since CID-encoded text cannot be recovered without
// the font's character map.
func parseHexString(stream string, start int) (string, int) {
	end := strings.IndexByte(stream[start:], '>')
	if end < 0 {
		return "", len(stream)
	}
	end += start

	hex := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, stream[start+1:end])

	var out strings.Builder
	for i := 0; i+1 < len(hex); i += 2 {
		value, err := strconv.ParseUint(hex[i:i+2], 16, 8)
		if err != nil {
			return "", end + 1
		}
		b := byte(value)
		if b < 0x20 || b > 0x7e {
			return "", end + 1
		}
		out.WriteByte(b)
	}
	return out.String(), end + 1
}

// isHeadingLine classifies a text line as a heading when it matches a
// numbering marker pattern, or when it is short, entirely upper-case and
// contains at least one letter.
func isHeadingLine(line string) bool {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return false
	}

	for _, pattern := range headingPatterns {
		if pattern.MatchString(trimmed) {
			return true
		}
	}

	if len([]rune(trimmed)) >= maxHeadingLength {
		return false
	}

	hasUpper := false
	for _, r := range trimmed {
		if unicode.IsLower(r) {
			return false
		}
		if unicode.IsUpper(r) {
			hasUpper = true
		}
	}
	return hasUpper
}
