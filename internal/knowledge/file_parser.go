package knowledge

import (
	"bytes"
	"context"
	"fmt"
	"image/png"
	"io"
	"os"
	"strings"

	"github.com/unidoc/unioffice/document"
	"github.com/unidoc/unipdf/v3/extractor"
	"github.com/unidoc/unipdf/v3/model"
	"golang.org/x/net/html"
)

func typeIn(fileType string, types ...string) bool {
	for _, t := range types {
		if fileType == t {
			return true
		}
	}
	return false
}

// PDFTextStrategy extracts the plain text layer of every page.
type PDFTextStrategy struct {
	CollectImages bool
}

func (p *PDFTextStrategy) Name() string { return "pdf_text" }

func (p *PDFTextStrategy) Supports(fileType string) bool { return fileType == "pdf" }

func (p *PDFTextStrategy) Extract(ctx context.Context, path string) (*ExtractedText, error) {
	var out ExtractedText
	var b strings.Builder

	err := eachPDFPage(ctx, path, func(num int, ex *extractor.Extractor) error {
		text, err := ex.ExtractText()
		if err != nil {
			return nil
		}
		b.WriteString(text)
		b.WriteString("\n")

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

// eachPDFPage opens the PDF at path and calls fn with an extractor per page.
// The file is closed before returning.
func eachPDFPage(ctx context.Context, path string, fn func(num int, ex *extractor.Extractor) error) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()

	pdfReader, err := model.NewPdfReader(f)
	if err != nil {
		return fmt.Errorf("parse pdf: %w", err)
	}

	encrypted, err := pdfReader.IsEncrypted()
	if err != nil {
		return fmt.Errorf("check pdf encryption: %w", err)
	}
	if encrypted {
		ok, err := pdfReader.Decrypt([]byte(""))
		if err != nil || !ok {
			return fmt.Errorf("pdf is password protected")
		}
	}

	numPages, err := pdfReader.GetNumPages()
	if err != nil {
		return fmt.Errorf("count pdf pages: %w", err)
	}

	for i := 1; i <= numPages; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		page, err := pdfReader.GetPage(i)
		if err != nil {
			continue
		}
		ex, err := extractor.New(page)
		if err != nil {
			continue
		}
		if err := fn(i, ex); err != nil {
			return err
		}
	}
	return nil
}

func pageImages(ex *extractor.Extractor) [][]byte {
	pageImgs, err := ex.ExtractPageImages(nil)
	if err != nil || pageImgs == nil {
		return nil
	}

	var out [][]byte
	for _, mark := range pageImgs.Images {
		if mark.Image == nil {
			continue
		}
		goImg, err := mark.Image.ToGoImage()
		if err != nil {
			continue
		}
		var buf bytes.Buffer
		if err := png.Encode(&buf, goImg); err != nil {
			continue
		}
		out = append(out, buf.Bytes())
	}
	return out
}

// WordTextStrategy reads paragraph text from a .docx body.
type WordTextStrategy struct{}

func (p *WordTextStrategy) Name() string { return "docx_text" }

func (p *WordTextStrategy) Supports(fileType string) bool { return fileType == "docx" }

func (p *WordTextStrategy) Extract(ctx context.Context, path string) (*ExtractedText, error) {
	doc, err := document.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open docx: %w", err)
	}
	defer doc.Close()

	var b strings.Builder
	for _, para := range doc.Paragraphs() {
		if text := strings.TrimSpace(paragraphText(para)); text != "" {
			b.WriteString(text)
			b.WriteString("\n")
		}
	}
	return &ExtractedText{Text: b.String()}, nil
}

func paragraphText(para document.Paragraph) string {
	var b strings.Builder
	for _, run := range para.Runs() {
		b.WriteString(run.Text())
	}
	return b.String()
}

// PlainTextStrategy returns text and markdown files as-is.
type PlainTextStrategy struct{}

func (p *PlainTextStrategy) Name() string { return "plain_text" }

func (p *PlainTextStrategy) Supports(fileType string) bool {
	return typeIn(fileType, "txt", "md", "markdown")
}

func (p *PlainTextStrategy) Extract(ctx context.Context, path string) (*ExtractedText, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	return &ExtractedText{Text: strings.ToValidUTF8(string(raw), "")}, nil
}

// HTMLTextStrategy streams text nodes out of an HTML document, skipping
// scripts and styles.
type HTMLTextStrategy struct{}

func (p *HTMLTextStrategy) Name() string { return "html_text" }

func (p *HTMLTextStrategy) Supports(fileType string) bool { return typeIn(fileType, "html", "htm") }

func (p *HTMLTextStrategy) Extract(ctx context.Context, path string) (*ExtractedText, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open html: %w", err)
	}
	defer f.Close()

	var b strings.Builder
	skip := 0
	z := html.NewTokenizer(f)
	for {
		switch z.Next() {
		case html.ErrorToken:
			if z.Err() == io.EOF {
				return &ExtractedText{Text: collapseBlankLines(b.String())}, nil
			}
			return nil, fmt.Errorf("tokenize html: %w", z.Err())
		case html.StartTagToken:
			name, _ := z.TagName()
			if isSkippedTag(string(name)) {
				skip++
			} else if isBlockTag(string(name)) {
				b.WriteString("\n")
			}
		case html.SelfClosingTagToken:
			b.WriteString("\n")
		case html.EndTagToken:
			name, _ := z.TagName()
			if isSkippedTag(string(name)) && skip > 0 {
				skip--
			} else if isBlockTag(string(name)) {
				b.WriteString("\n")
			}
		case html.TextToken:
			if skip == 0 {
				if text := strings.TrimSpace(string(z.Text())); text != "" {
					b.WriteString(text)
					b.WriteString(" ")
				}
			}
		}
	}
}

func isSkippedTag(name string) bool {
	return typeIn(name, "script", "style", "noscript", "template", "svg")
}

func isBlockTag(name string) bool {
	return typeIn(name, "p", "div", "br", "li", "tr", "h1", "h2", "h3", "h4", "h5", "h6",
		"section", "article", "header", "footer", "table", "ul", "ol", "blockquote", "pre")
}

// collapseBlankLines trims every line and keeps at most one empty line in a
// row.
func collapseBlankLines(text string) string {
	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	blank := false
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			if !blank && len(out) > 0 {
				out = append(out, "")
			}
			blank = true
			continue
		}
		blank = false
		out = append(out, line)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}
