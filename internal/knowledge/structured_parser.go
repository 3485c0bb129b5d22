package knowledge

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/unidoc/unioffice/presentation"
	"github.com/unidoc/unioffice/schema/soo/dml"
	"github.com/unidoc/unioffice/schema/soo/pml"
	"github.com/unidoc/unioffice/spreadsheet"
)

// markdownTable renders rows as a pipe table. The first row is the header.
func markdownTable(rows [][]string) string {
	if len(rows) == 0 {
		return ""
	}
	width := 0
	for _, row := range rows {
		if len(row) > width {
			width = len(row)
		}
	}
	if width == 0 || !hasCellText(rows) {
		return ""
	}

	var b strings.Builder
	writeRow := func(row []string) {
		b.WriteString("|")
		for i := 0; i < width; i++ {
			cell := ""
			if i < len(row) {
				cell = strings.ReplaceAll(strings.TrimSpace(row[i]), "|", "\\|")
				cell = strings.ReplaceAll(cell, "\n", " ")
			}
			b.WriteString(" ")
			b.WriteString(cell)
			b.WriteString(" |")
		}
		b.WriteString("\n")
	}

	writeRow(rows[0])
	b.WriteString("|")
	for i := 0; i < width; i++ {
		b.WriteString(" --- |")
	}
	b.WriteString("\n")
	for _, row := range rows[1:] {
		writeRow(row)
	}
	return b.String()
}

func hasCellText(rows [][]string) bool {
	for _, row := range rows {
		for _, cell := range row {
			if strings.TrimSpace(cell) != "" {
				return true
			}
		}
	}
	return false
}

// SpreadsheetStrategy renders every .xlsx sheet as a markdown table.
type SpreadsheetStrategy struct{}

func (p *SpreadsheetStrategy) Name() string { return "xlsx" }

func (p *SpreadsheetStrategy) Supports(fileType string) bool { return fileType == "xlsx" }

func (p *SpreadsheetStrategy) Extract(ctx context.Context, path string) (*ExtractedText, error) {
	wb, err := spreadsheet.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open xlsx: %w", err)
	}
	defer wb.Close()

	var out ExtractedText
	var b strings.Builder
	for _, sheet := range wb.Sheets() {
		var rows [][]string
		for _, row := range sheet.Rows() {
			var cells []string
			for _, cell := range row.Cells() {
				cells = append(cells, cell.GetString())
			}
			if strings.TrimSpace(strings.Join(cells, "")) != "" {
				rows = append(rows, cells)
			}
		}

		table := markdownTable(rows)
		if table == "" {
			continue
		}
		fmt.Fprintf(&b, "Sheet: %s\n\n%s\n", sheet.Name(), table)
		out.Tables = append(out.Tables, table)
	}

	out.Text = b.String()
	return &out, nil
}

// CSVStrategy renders a CSV file as a markdown table.
type CSVStrategy struct{}

func (p *CSVStrategy) Name() string { return "csv" }

func (p *CSVStrategy) Supports(fileType string) bool { return fileType == "csv" }

func (p *CSVStrategy) Extract(ctx context.Context, path string) (*ExtractedText, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open csv: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	var rows [][]string
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv: %w", err)
		}
		rows = append(rows, record)
	}

	table := markdownTable(rows)
	if table == "" {
		return &ExtractedText{}, nil
	}
	return &ExtractedText{Text: "CSV Data:\n" + table, Tables: []string{table}}, nil
}

// notebookSource accepts both the string and the list-of-lines encodings
// used by .ipynb files.
type notebookSource string

func (s *notebookSource) UnmarshalJSON(data []byte) error {
	var lines []string
	if err := json.Unmarshal(data, &lines); err == nil {
		*s = notebookSource(strings.Join(lines, ""))
		return nil
	}
	var text string
	if err := json.Unmarshal(data, &text); err != nil {
		return err
	}
	*s = notebookSource(text)
	return nil
}

type notebookFile struct {
	Metadata struct {
		LanguageInfo struct {
			Name string `json:"name"`
		} `json:"language_info"`
	} `json:"metadata"`
	Cells []struct {
		CellType string         `json:"cell_type"`
		Source   notebookSource `json:"source"`
		Outputs  []struct {
			OutputType string                    `json:"output_type"`
			Text       notebookSource            `json:"text"`
			Data       map[string]json.RawMessage `json:"data"`
		} `json:"outputs"`
	} `json:"cells"`
}

// NotebookStrategy extracts markdown and code cells of a Jupyter notebook,
// with plain-text outputs.
type NotebookStrategy struct{}

func (p *NotebookStrategy) Name() string { return "ipynb" }

func (p *NotebookStrategy) Supports(fileType string) bool { return fileType == "ipynb" }

func (p *NotebookStrategy) Extract(ctx context.Context, path string) (*ExtractedText, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read notebook: %w", err)
	}

	var nb notebookFile
	if err := json.Unmarshal(raw, &nb); err != nil {
		return nil, fmt.Errorf("decode notebook: %w", err)
	}

	lang := nb.Metadata.LanguageInfo.Name
	if lang == "" {
		lang = "python"
	}

	var b strings.Builder
	for _, cell := range nb.Cells {
		blank := strings.TrimSpace(string(cell.Source)) == ""
		switch cell.CellType {
		case "markdown":
			if !blank {
				fmt.Fprintf(&b, "# Markdown Cell\n%s\n\n", cell.Source)
			}
		case "code":
			if !blank {
				fmt.Fprintf(&b, "# Code Cell\n```%s\n%s\n```\n\n", lang, cell.Source)
			}
			for _, output := range cell.Outputs {
				switch output.OutputType {
				case "execute_result", "display_data":
					var text notebookSource
					if raw, ok := output.Data["text/plain"]; ok && json.Unmarshal(raw, &text) == nil {
						fmt.Fprintf(&b, "Output: %s\n\n", text)
					}
				case "stream":
					if output.Text != "" {
						fmt.Fprintf(&b, "Output: %s\n\n", output.Text)
					}
				}
			}
		}
	}
	return &ExtractedText{Text: b.String()}, nil
}

// SlideStrategy extracts shape text slide by slide from a .pptx deck.
type SlideStrategy struct{}

func (p *SlideStrategy) Name() string { return "pptx" }

func (p *SlideStrategy) Supports(fileType string) bool { return fileType == "pptx" }

func (p *SlideStrategy) Extract(ctx context.Context, path string) (*ExtractedText, error) {
	deck, err := presentation.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open pptx: %w", err)
	}
	defer deck.Close()

	var b strings.Builder
	for i, slide := range deck.Slides() {
		var body strings.Builder
		if sld := slide.X(); sld != nil && sld.CSld != nil && sld.CSld.SpTree != nil {
			writeShapeTree(&body, sld.CSld.SpTree)
		}
		b.WriteString(slideSection(i+1, body.String()))
	}
	return &ExtractedText{Text: b.String()}, nil
}

// slideSection renders one slide; a slide without text renders as nothing.
func slideSection(num int, body string) string {
	body = strings.TrimSpace(body)
	if body == "" {
		return ""
	}
	return fmt.Sprintf("Slide %d:\n%s\n\n", num, body)
}

func writeShapeTree(b *strings.Builder, tree *pml.CT_GroupShape) {
	for _, choice := range tree.Choice {
		for _, sp := range choice.Sp {
			if text := strings.TrimSpace(textBodyString(sp.TxBody)); text != "" {
				b.WriteString(text)
				b.WriteString("\n")
			}
		}
		for _, group := range choice.GrpSp {
			writeShapeTree(b, group)
		}
	}
}

func textBodyString(body *dml.CT_TextBody) string {
	if body == nil {
		return ""
	}
	var lines []string
	for _, para := range body.P {
		var line strings.Builder
		for _, run := range para.EG_TextRun {
			if run.R != nil {
				line.WriteString(run.R.T)
			}
		}
		lines = append(lines, line.String())
	}
	return strings.Join(lines, "\n")
}
