package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Zerr0-C00L/rdfetch/internal/app"
	"github.com/Zerr0-C00L/rdfetch/internal/magnet"
	"github.com/Zerr0-C00L/rdfetch/internal/models"
	"github.com/Zerr0-C00L/rdfetch/internal/services"
	"github.com/Zerr0-C00L/rdfetch/internal/services/debrid"
)

func newCheckCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "check <hash|magnet>...",
		Short: "Show which torrents are cached on Real-Debrid",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			results, err := resultsFromArgs(args)
			if err != nil {
				return err
			}
			return ctx.withApp(cmd, app.Options{}, func(stack *app.App) error {
				statuses := stack.Manager.CheckResults(cmd.Context(), results)
				if ctx.jsonOutput() {
					return writeJSON(cmd, map[string]any{"results": statuses})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderAvailability(cmd, statuses, stack.Manager.Index.Record))
				return nil
			})
		},
	}
}

func resultsFromArgs(args []string) ([]models.SearchResult, error) {
	results := make([]models.SearchResult, 0, len(args))
	for _, arg := range args {
		result, err := resultFromArg(arg)
		if err != nil {
			return nil, err
		}
		results = append(results, result)
	}
	return results, nil
}

// resultFromArg accepts a magnet link or a bare hex info hash.
func resultFromArg(arg string) (models.SearchResult, error) {
	arg = strings.TrimSpace(arg)
	if strings.HasPrefix(strings.ToLower(arg), "magnet:") {
		info, err := magnet.Parse(arg)
		if err != nil {
			return models.SearchResult{}, err
		}
		title := info.DisplayName
		if title == "" {
			title = info.Hash
		}
		return models.SearchResult{Title: title, Source: "cli", MagnetHash: info.Hash, MagnetLink: arg}, nil
	}
	link, err := magnet.Build(arg, "")
	if err != nil {
		return models.SearchResult{}, err
	}
	hash := models.NormalizeHash(arg)
	return models.SearchResult{Title: hash, Source: "cli", MagnetHash: hash, MagnetLink: link}, nil
}

func renderAvailability(cmd *cobra.Command, statuses []services.ResultStatus, lookup func(string) (debrid.AvailabilityRecord, bool)) string {
	rows := make([][]string, 0, len(statuses))
	for _, st := range statuses {
		batches, files := "-", "-"
		if record, ok := lookup(st.Result.Hash()); ok {
			batches = strconv.Itoa(len(record.Batches))
			files = strconv.Itoa(len(record.Files))
		}
		rows = append(rows, []string{st.Result.Hash(), st.Result.Title, string(st.Status), batches, files})
	}
	return renderTable(cmd.OutOrStdout(),
		[]string{"Hash", "Title", "Status", "Batches", "Files"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight},
	)
}
