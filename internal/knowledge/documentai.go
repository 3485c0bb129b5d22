package knowledge

import (
	"context"
	"fmt"
	"os"
	"strings"

	documentai "cloud.google.com/go/documentai/apiv1"
	"cloud.google.com/go/documentai/apiv1/documentaipb"
	"google.golang.org/api/option"
)

// DocumentAIOptions identifies the OCR processor.
type DocumentAIOptions struct {
	ProjectID   string
	Location    string
	ProcessorID string
}

// DocumentAIStrategy sends a PDF to a Google Document AI OCR processor and
// renders detected tables as markdown. Used only on the fallback path.
type DocumentAIStrategy struct {
	client    *documentai.DocumentProcessorClient
	processor string
}

// NewDocumentAIStrategy connects to the Document AI processor.
func NewDocumentAIStrategy(ctx context.Context, opts DocumentAIOptions) (*DocumentAIStrategy, error) {
	location := strings.TrimSpace(opts.Location)
	if location == "" {
		location = "us"
	}
	if opts.ProjectID == "" || opts.ProcessorID == "" {
		return nil, fmt.Errorf("document ai project and processor are required")
	}

	endpoint := fmt.Sprintf("%s-documentai.googleapis.com:443", location)
	c, err := documentai.NewDocumentProcessorClient(ctx, option.WithEndpoint(endpoint))
	if err != nil {
		return nil, fmt.Errorf("documentai client: %w", err)
	}

	return &DocumentAIStrategy{
		client:    c,
		processor: fmt.Sprintf("projects/%s/locations/%s/processors/%s", opts.ProjectID, location, opts.ProcessorID),
	}, nil
}

func (s *DocumentAIStrategy) Name() string { return "pdf_ocr" }

func (s *DocumentAIStrategy) Supports(fileType string) bool { return fileType == "pdf" }

func (s *DocumentAIStrategy) Extract(ctx context.Context, path string) (*ExtractedText, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read pdf: %w", err)
	}

	resp, err := s.client.ProcessDocument(ctx, &documentaipb.ProcessRequest{
		Name: s.processor,
		Source: &documentaipb.ProcessRequest_RawDocument{
			RawDocument: &documentaipb.RawDocument{
				Content:  data,
				MimeType: "application/pdf",
			},
		},
	})
	data = nil
	if err != nil {
		return nil, fmt.Errorf("documentai ProcessDocument: %w", err)
	}
	if resp == nil || resp.Document == nil {
		return &ExtractedText{}, nil
	}

	doc := resp.Document
	out := &ExtractedText{Text: doc.Text}
	for _, page := range doc.Pages {
		for _, table := range page.Tables {
			if md := documentTableMarkdown(doc.Text, table); md != "" {
				out.Tables = append(out.Tables, md)
			}
		}
	}
	if len(out.Tables) > 0 {
		out.Text = out.Text + "\n\n" + strings.Join(out.Tables, "\n")
	}
	return out, nil
}

// Close closes the Document AI client.
func (s *DocumentAIStrategy) Close() error {
	return s.client.Close()
}

func documentTableMarkdown(full string, t *documentaipb.Document_Page_Table) string {
	if t == nil {
		return ""
	}
	var rows [][]string
	for _, r := range t.HeaderRows {
		rows = append(rows, documentRowCells(full, r))
	}
	for _, r := range t.BodyRows {
		rows = append(rows, documentRowCells(full, r))
	}
	return markdownTable(rows)
}

func documentRowCells(full string, r *documentaipb.Document_Page_Table_TableRow) []string {
	if r == nil {
		return nil
	}
	out := make([]string, 0, len(r.Cells))
	for _, c := range r.Cells {
		if c == nil || c.Layout == nil {
			out = append(out, "")
			continue
		}
		out = append(out, strings.TrimSpace(textFromAnchor(full, c.Layout.TextAnchor)))
	}
	return out
}

func textFromAnchor(full string, anchor *documentaipb.Document_TextAnchor) string {
	if anchor == nil || full == "" {
		return ""
	}
	var b strings.Builder
	for _, seg := range anchor.TextSegments {
		if seg == nil {
			continue
		}
		start, end := int(seg.StartIndex), int(seg.EndIndex)
		if start < 0 {
			start = 0
		}
		if end > len(full) {
			end = len(full)
		}
		if start < end {
			b.WriteString(full[start:end])
		}
	}
	return b.String()
}
