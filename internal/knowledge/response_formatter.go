package knowledge

import (
	"bytes"
	"fmt"
	"os"
	"text/template"
)

// ResponseView is the data handed to the response template.
type ResponseView struct {
	Question    string
	RawResponse string
}

// ResponseFormatter renders generated answers for display.
type ResponseFormatter struct {
	tmpl *template.Template
}

// NewResponseFormatter loads the template at path. An empty path leaves the
// formatter in fallback mode.
func NewResponseFormatter(path string) (*ResponseFormatter, error) {
	if path == "" {
		return &ResponseFormatter{}, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read response template: %w", err)
	}
	return NewResponseFormatterFromString(string(raw))
}

// NewResponseFormatterFromString parses an inline template.
func NewResponseFormatterFromString(text string) (*ResponseFormatter, error) {
	tmpl, err := template.New("response").Option("missingkey=error").Parse(text)
	if err != nil {
		return nil, fmt.Errorf("parse response template: %w", err)
	}
	return &ResponseFormatter{tmpl: tmpl}, nil
}

// Format renders raw through the template, falling back to a fixed layout
// when no template is loaded or rendering fails.
func (f *ResponseFormatter) Format(raw, question string) string {
	if f == nil || f.tmpl == nil {
		return fallbackResponse(raw)
	}
	var buf bytes.Buffer
	if err := f.tmpl.Execute(&buf, ResponseView{Question: question, RawResponse: raw}); err != nil {
		return fallbackResponse(raw)
	}
	return buf.String()
}

func fallbackResponse(raw string) string {
	return "**Answer:**\n\n" + raw + "\n\n---\n\n*This response is based on your uploaded documents.*"
}
