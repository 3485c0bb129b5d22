package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/cramwell/backend-go/internal/knowledge"
	"github.com/spf13/cobra"
)

// newExtractCmd runs extraction and chunking on a local file without
// indexing anything.
func newExtractCmd() *cobra.Command {
	var (
		output     string
		showChunks bool
	)
	cmd := &cobra.Command{
		Use:   "extract [file]",
		Short: "Extract text from a document and report how it would be chunked",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			if _, err := os.Stat(path); err != nil {
				return fmt.Errorf("input file: %w", err)
			}
			return run(cmd, func(ctx context.Context, a *app) error {
				return a.invoke(func(ex *knowledge.Extractor, ch *knowledge.Chunker) error {
					fileType := knowledge.NormalizeFileType(filepath.Base(path))
					if !ex.Supports(fileType) {
						return fmt.Errorf("unsupported file type %q", fileType)
					}
					text, err := ex.Extract(ctx, path, fileType)
					if err != nil {
						return err
					}
					defer text.Release()

					chunks := ch.Split(text.Text)
					out := cmd.OutOrStdout()
					fmt.Fprintf(out, "strategy: %s\ncharacters: %d\nchunks: %d (max %d tokens)\n",
						text.Strategy, len(text.Text), len(chunks), ch.MaxTokens())

					if showChunks {
						for i, c := range chunks {
							fmt.Fprintf(out, "\n--- chunk %d ---\n%s\n", i+1, strings.TrimSpace(c))
						}
					}
					if output != "" {
						if err := os.WriteFile(output, []byte(text.Text), 0o644); err != nil {
							return fmt.Errorf("write output: %w", err)
						}
						fmt.Fprintf(out, "text written to %s\n", output)
					}
					return nil
				})
			})
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "write the extracted text to this file")
	cmd.Flags().BoolVar(&showChunks, "chunks", false, "print every chunk")
	return cmd
}
