package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/cramwell/backend-go/internal/config"
	"github.com/cramwell/backend-go/internal/kafka"
	"github.com/cramwell/backend-go/internal/services"
	"github.com/cramwell/backend-go/internal/storage"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newIngestCmd() *cobra.Command {
	var (
		notebookID string
		objectKey  string
		enqueue    bool
	)

	cmd := &cobra.Command{
		Use:   "ingest [file...]",
		Short: "Extract, chunk and index documents into a notebook",
		Example: `  cramwell ingest --notebook nb-42 syllabus.pdf lecture1.pptx
  cramwell ingest --notebook nb-42 --object-key nb-42/week3.docx
  cramwell ingest --notebook nb-42 --enqueue notes.md`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if objectKey == "" && len(args) == 0 {
				return fmt.Errorf("pass at least one file or --object-key")
			}
			return run(cmd, func(ctx context.Context, a *app) error {
				if enqueue {
					return enqueueFiles(ctx, a, notebookID, args)
				}
				return a.invoke(func(svc *services.IngestionService) error {
					if objectKey != "" {
						res, err := svc.IngestObject(ctx, kafka.IngestJob{NotebookID: notebookID, ObjectKey: objectKey})
						if err != nil {
							return err
						}
						printIngest(cmd, res)
						return nil
					}

					var failed int
					for _, path := range args {
						res, err := svc.Ingest(ctx, services.SourceDocument{
							NotebookID: notebookID,
							Filename:   filepath.Base(path),
							Path:       path,
						})
						if err != nil {
							failed++
							fmt.Fprintf(cmd.ErrOrStderr(), "%s: %v\n", path, err)
							continue
						}
						printIngest(cmd, res)
					}
					if failed > 0 {
						return fmt.Errorf("%d of %d documents failed", failed, len(args))
					}
					return nil
				})
			})
		},
	}

	cmd.Flags().StringVarP(&notebookID, "notebook", "n", "", "notebook id")
	cmd.Flags().StringVar(&objectKey, "object-key", "", "ingest an object already in blob storage")
	cmd.Flags().BoolVar(&enqueue, "enqueue", false, "upload files and queue them for the worker instead of ingesting inline")
	_ = cmd.MarkFlagRequired("notebook")
	return cmd
}

func printIngest(cmd *cobra.Command, res *services.IngestResult) {
	fmt.Fprintf(cmd.OutOrStdout(), "%s: %d chunks via %s\n", res.Filename, res.Chunks, res.Strategy)
}

// enqueueFiles uploads each file under {notebook}/{name} and submits a job.
func enqueueFiles(ctx context.Context, a *app, notebookID string, paths []string) error {
	if !a.cfg.Queue.Enabled {
		return fmt.Errorf("queue is disabled; set queue.enabled or KAFKA_BROKERS")
	}
	return a.invoke(func(cfg *config.Config, stager storage.Stager) error {
		producer, err := kafka.NewProducer(cfg.Queue.Brokers, cfg.Queue.IngestTopic, cfg.Queue.EventTopic, a.log)
		if err != nil {
			return err
		}
		defer producer.Close()

		for _, path := range paths {
			name := filepath.Base(path)
			key := notebookID + "/" + name
			if err := uploadFile(ctx, stager, key, path); err != nil {
				return fmt.Errorf("upload %s: %w", path, err)
			}
			if err := producer.SubmitJob(ctx, kafka.IngestJob{NotebookID: notebookID, ObjectKey: key, Filename: name}); err != nil {
				return err
			}
			a.log.Info("ingest job queued", zap.String("notebook_id", notebookID), zap.String("object_key", key))
		}
		return nil
	})
}

func uploadFile(ctx context.Context, stager storage.Stager, key, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}
	return stager.Upload(ctx, key, f, info.Size(), "application/octet-stream")
}
