package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Zerr0-C00L/rdfetch/internal/app"
	"github.com/Zerr0-C00L/rdfetch/internal/models"
	"github.com/Zerr0-C00L/rdfetch/internal/services/debrid"
)

func newResolveCommand(ctx *commandContext) *cobra.Command {
	var batch, file int

	cmd := &cobra.Command{
		Use:   "resolve <hash|magnet>",
		Short: "Resolve a torrent into a direct download link",
		Long: "Adds the torrent to Real-Debrid, selects the requested files and prints the unrestricted link.\n" +
			"Without --batch every file is selected and the first link is returned.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := resultFromArg(args[0])
			if err != nil {
				return err
			}
			choice, err := fileChoice(batch, file)
			if err != nil {
				return err
			}

			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return ctx.withApp(cmd, app.Options{}, func(stack *app.App) error {
				if !stack.Manager.Enabled() {
					return errors.New("Real-Debrid is not authorized; run `rdfetch auth` first")
				}
				if choice != nil {
					// file choices refer to the availability record of the hash
					stack.Manager.CheckResults(runCtx, []models.SearchResult{result})
				}
				url, err := stack.Manager.Resolver.Resolve(runCtx, result, choice)
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, map[string]string{"hash": result.Hash(), "url": url})
				}
				fmt.Fprintln(cmd.OutOrStdout(), url)
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&batch, "batch", -1, "Cached batch index to select")
	cmd.Flags().IntVar(&file, "file", 0, "File index inside the batch")
	return cmd
}

func fileChoice(batch, file int) (*debrid.FileChoice, error) {
	if batch < 0 {
		if file != 0 {
			return nil, errors.New("--file requires --batch")
		}
		return nil, nil
	}
	if file < 0 {
		return nil, fmt.Errorf("--file must not be negative, got %d", file)
	}
	return &debrid.FileChoice{BatchIndex: batch, BatchFileIndex: file}, nil
}
