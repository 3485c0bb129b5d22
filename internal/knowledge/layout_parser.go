package knowledge

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/unidoc/unioffice/document"
	"github.com/unidoc/unipdf/v3/extractor"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// PDFLayoutStrategy runs the layout-aware page text extraction and appends
// detected tables as markdown.
type PDFLayoutStrategy struct {
	CollectImages bool
}

func (p *PDFLayoutStrategy) Name() string { return "pdf_layout" }

func (p *PDFLayoutStrategy) Supports(fileType string) bool { return fileType == "pdf" }

func (p *PDFLayoutStrategy) Extract(ctx context.Context, path string) (*ExtractedText, error) {
	var out ExtractedText
	var b strings.Builder

	err := eachPDFPage(ctx, path, func(num int, ex *extractor.Extractor) error {
		pageText, _, _, err := ex.ExtractPageText()
		if err != nil {
			return nil
		}

		var tables []string
		for _, table := range pageText.Tables() {
			rows := make([][]string, 0, len(table.Cells))
			for _, row := range table.Cells {
				cells := make([]string, 0, len(row))
				for _, cell := range row {
					cells = append(cells, cell.Text)
				}
				rows = append(rows, cells)
			}
			if md := markdownTable(rows); md != "" {
				tables = append(tables, md)
			}
		}
		b.WriteString(layoutPage(num, pageText.Text(), tables))
		out.Tables = append(out.Tables, tables...)

		if p.CollectImages {
			out.Images = append(out.Images, pageImages(ex)...)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	out.Text = b.String()
	return &out, nil
}

// layoutPage renders one page under a "## Page N" heading. Pages without
// text or tables render as nothing, so image-only scans stay empty.
func layoutPage(num int, text string, tables []string) string {
	text = strings.TrimSpace(text)
	if text == "" && len(tables) == 0 {
		return ""
	}
	var b strings.Builder
	fmt.Fprintf(&b, "## Page %d\n\n", num)
	if text != "" {
		b.WriteString(text)
		b.WriteString("\n\n")
	}
	for _, md := range tables {
		b.WriteString(md)
		b.WriteString("\n")
	}
	return b.String()
}

// WordLayoutStrategy keeps headings, tables, headers and footers of a .docx.
type WordLayoutStrategy struct{}

func (p *WordLayoutStrategy) Name() string { return "docx_layout" }

func (p *WordLayoutStrategy) Supports(fileType string) bool { return fileType == "docx" }

func (p *WordLayoutStrategy) Extract(ctx context.Context, path string) (*ExtractedText, error) {
	doc, err := document.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open docx: %w", err)
	}
	defer doc.Close()

	var out ExtractedText
	var b strings.Builder

	for _, para := range doc.Paragraphs() {
		text := strings.TrimSpace(paragraphText(para))
		if text == "" {
			continue
		}
		b.WriteString(headingPrefix(para.Style()))
		b.WriteString(text)
		b.WriteString("\n")
	}

	for _, table := range doc.Tables() {
		var rows [][]string
		for _, row := range table.Rows() {
			var cells []string
			for _, cell := range row.Cells() {
				var parts []string
				for _, para := range cell.Paragraphs() {
					if text := strings.TrimSpace(paragraphText(para)); text != "" {
						parts = append(parts, text)
					}
				}
				cells = append(cells, strings.Join(parts, " "))
			}
			rows = append(rows, cells)
		}
		if md := markdownTable(rows); md != "" {
			b.WriteString("\n")
			b.WriteString(md)
			out.Tables = append(out.Tables, md)
		}
	}

	for _, header := range doc.Headers() {
		for _, para := range header.Paragraphs() {
			if text := strings.TrimSpace(paragraphText(para)); text != "" {
				fmt.Fprintf(&b, "Header: %s\n", text)
			}
		}
	}
	for _, footer := range doc.Footers() {
		for _, para := range footer.Paragraphs() {
			if text := strings.TrimSpace(paragraphText(para)); text != "" {
				fmt.Fprintf(&b, "Footer: %s\n", text)
			}
		}
	}

	out.Text = b.String()
	return &out, nil
}

func headingPrefix(style string) string {
	switch style {
	case "Title":
		return "# "
	case "Heading1":
		return "# "
	case "Heading2":
		return "## "
	case "Heading3":
		return "### "
	case "Heading4", "Heading5", "Heading6":
		return "#### "
	default:
		return ""
	}
}

// HTMLLayoutStrategy walks the parsed DOM and renders headings, list items
// and tables as markdown.
type HTMLLayoutStrategy struct{}

func (p *HTMLLayoutStrategy) Name() string { return "html_layout" }

func (p *HTMLLayoutStrategy) Supports(fileType string) bool { return typeIn(fileType, "html", "htm") }

func (p *HTMLLayoutStrategy) Extract(ctx context.Context, path string) (*ExtractedText, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open html: %w", err)
	}
	defer f.Close()

	root, err := html.Parse(f)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	var out ExtractedText
	var b strings.Builder
	renderNode(&b, root, &out.Tables)
	out.Text = collapseBlankLines(b.String())
	return &out, nil
}

func renderNode(b *strings.Builder, n *html.Node, tables *[]string) {
	switch n.Type {
	case html.TextNode:
		if text := strings.TrimSpace(n.Data); text != "" {
			b.WriteString(text)
			b.WriteString(" ")
		}
		return
	case html.ElementNode:
		switch n.DataAtom {
		case atom.Script, atom.Style, atom.Noscript, atom.Template, atom.Svg, atom.Head:
			return
		case atom.Table:
			if md := markdownTable(tableRows(n)); md != "" {
				b.WriteString("\n\n")
				b.WriteString(md)
				b.WriteString("\n")
				*tables = append(*tables, md)
			}
			return
		case atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6:
			level := int(n.Data[1] - '0')
			b.WriteString("\n\n")
			b.WriteString(strings.Repeat("#", level))
			b.WriteString(" ")
			b.WriteString(nodeText(n))
			b.WriteString("\n\n")
			return
		case atom.Li:
			b.WriteString("\n- ")
		case atom.P, atom.Div, atom.Br, atom.Section, atom.Article, atom.Blockquote, atom.Pre:
			b.WriteString("\n")
		}
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		renderNode(b, c, tables)
	}

	if n.Type == html.ElementNode && (n.DataAtom == atom.P || n.DataAtom == atom.Div) {
		b.WriteString("\n")
	}
}

func tableRows(table *html.Node) [][]string {
	var rows [][]string
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.DataAtom == atom.Tr {
			var cells []string
			for c := n.FirstChild; c != nil; c = c.NextSibling {
				if c.Type == html.ElementNode && (c.DataAtom == atom.Td || c.DataAtom == atom.Th) {
					cells = append(cells, nodeText(c))
				}
			}
			rows = append(rows, cells)
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(table)
	return rows
}

func nodeText(n *html.Node) string {
	var parts []string
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			if text := strings.TrimSpace(n.Data); text != "" {
				parts = append(parts, text)
			}
			return
		}
		if n.Type == html.ElementNode && (n.DataAtom == atom.Script || n.DataAtom == atom.Style) {
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.Join(parts, " ")
}

// NormalizedTextStrategy re-reads text files with whitespace normalised. It
// is the last resort for formats without a richer layout model.
type NormalizedTextStrategy struct{}

func (p *NormalizedTextStrategy) Name() string { return "text_normalized" }

func (p *NormalizedTextStrategy) Supports(fileType string) bool {
	return typeIn(fileType, "txt", "md", "markdown")
}

func (p *NormalizedTextStrategy) Extract(ctx context.Context, path string) (*ExtractedText, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	return &ExtractedText{Text: collapseBlankLines(strings.ToValidUTF8(string(raw), ""))}, nil
}
