package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/cramwell/backend-go/internal/services"
	"github.com/spf13/cobra"
)

func newAskCmd() *cobra.Command {
	var notebookID string
	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Answer a question from a notebook's documents",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			question := strings.Join(args, " ")
			return run(cmd, func(ctx context.Context, a *app) error {
				return a.invoke(func(svc *services.StudyService) error {
					answer, ok := svc.Ask(ctx, notebookID, question)
					if !ok {
						return fmt.Errorf("no answer found in notebook %s", notebookID)
					}
					fmt.Fprintln(cmd.OutOrStdout(), answer)
					return nil
				})
			})
		},
	}
	cmd.Flags().StringVarP(&notebookID, "notebook", "n", "", "notebook id")
	_ = cmd.MarkFlagRequired("notebook")
	return cmd
}

func newGenerateCmd() *cobra.Command {
	var notebookID string
	cmd := &cobra.Command{
		Use:       "generate [summary|exam|flashcards]",
		Short:     "Print a study feature, generating it on a cache miss",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"summary", "exam", "flashcards"},
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, func(ctx context.Context, a *app) error {
				return a.invoke(func(svc *services.StudyService) error {
					content, cached, err := svc.Generate(ctx, notebookID, args[0])
					if err != nil {
						return err
					}
					if cached {
						fmt.Fprintln(cmd.ErrOrStderr(), "(cached)")
					}
					fmt.Fprintln(cmd.OutOrStdout(), content)
					return nil
				})
			})
		},
	}
	cmd.Flags().StringVarP(&notebookID, "notebook", "n", "", "notebook id")
	_ = cmd.MarkFlagRequired("notebook")
	return cmd
}

func newInvalidateCmd() *cobra.Command {
	var notebookID string
	cmd := &cobra.Command{
		Use:   "invalidate [feature]",
		Short: "Drop cached study features of a notebook",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			feature := ""
			if len(args) == 1 {
				feature = args[0]
			}
			return run(cmd, func(ctx context.Context, a *app) error {
				return a.invoke(func(svc *services.StudyService) error {
					ok, err := svc.Clear(ctx, notebookID, feature)
					if err != nil {
						return err
					}
					if !ok {
						return fmt.Errorf("cache backend unavailable")
					}
					fmt.Fprintln(cmd.OutOrStdout(), "invalidated")
					return nil
				})
			})
		},
	}
	cmd.Flags().StringVarP(&notebookID, "notebook", "n", "", "notebook id")
	_ = cmd.MarkFlagRequired("notebook")
	return cmd
}

func newPurgeCmd() *cobra.Command {
	var notebookID string
	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete every vector and cached feature of a notebook",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, func(ctx context.Context, a *app) error {
				return a.invoke(func(svc *services.IngestionService) error {
					if !svc.RemoveNotebook(ctx, notebookID) {
						return fmt.Errorf("notebook %s was not fully removed", notebookID)
					}
					fmt.Fprintf(cmd.OutOrStdout(), "Successfully deleted all documents for notebook %s\n", notebookID)
					return nil
				})
			})
		},
	}
	cmd.Flags().StringVarP(&notebookID, "notebook", "n", "", "notebook id")
	_ = cmd.MarkFlagRequired("notebook")
	return cmd
}
