package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Zerr0-C00L/rdfetch/internal/app"
	"github.com/Zerr0-C00L/rdfetch/internal/services/debrid"
)

type statusView struct {
	Enabled  bool         `json:"enabled"`
	State    string       `json:"state"`
	APIKey   bool         `json:"apiKey"`
	Cache    bool         `json:"availabilityCache"`
	User     *debrid.User `json:"user,omitempty"`
	UserErr  string       `json:"userError,omitempty"`
	Database string       `json:"database,omitempty"`
}

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the Real-Debrid authorization state",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(cmd, app.Options{}, func(stack *app.App) error {
				view := statusView{
					Enabled: stack.Manager.Enabled(),
					State:   string(stack.Manager.Auth.State()),
					APIKey:  stack.RealDebrid.UsesAPIKey(),
					Cache:   stack.Redis != nil,
				}
				if stack.DB != nil {
					view.Database = string(stack.DB.Dialect())
				}
				if view.Enabled {
					user, err := stack.RealDebrid.User(cmd.Context())
					if err != nil {
						view.UserErr = err.Error()
					} else {
						view.User = user
					}
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, view)
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderStatus(cmd, view))
				return nil
			})
		},
	}
}

func renderStatus(cmd *cobra.Command, view statusView) string {
	rows := [][]string{
		{"Enabled", yesNo(view.Enabled)},
		{"State", view.State},
		{"API key", yesNo(view.APIKey)},
		{"Availability cache", yesNo(view.Cache)},
	}
	if view.Database != "" {
		rows = append(rows, []string{"Database", view.Database})
	}
	if view.User != nil {
		rows = append(rows,
			[]string{"User", view.User.Username},
			[]string{"Account", view.User.Type},
		)
		if view.User.Expiration != "" {
			rows = append(rows, []string{"Premium until", view.User.Expiration})
		}
	}
	if view.UserErr != "" {
		rows = append(rows, []string{"Account error", view.UserErr})
	}
	return renderTable(cmd.OutOrStdout(), []string{"Field", "Value"}, rows, nil)
}
