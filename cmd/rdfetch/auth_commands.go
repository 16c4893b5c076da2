package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"github.com/Zerr0-C00L/rdfetch/internal/app"
	"github.com/Zerr0-C00L/rdfetch/internal/services"
	"github.com/Zerr0-C00L/rdfetch/internal/services/auth"
)

func defaultLockPath() string {
	return filepath.Join(os.TempDir(), "rdfetch-auth.lock")
}

func newAuthCommand(ctx *commandContext) *cobra.Command {
	var lockPath string

	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Authorize this device with Real-Debrid",
		Long:  "Runs the Real-Debrid device authorization flow in the foreground and stores the granted credentials.",
		RunE: func(cmd *cobra.Command, args []string) error {
			lock := flock.New(lockPath)
			ok, err := lock.TryLock()
			if err != nil {
				return fmt.Errorf("acquire lock: %w", err)
			}
			if !ok {
				return fmt.Errorf("another authorization is already running (lock %s)", lockPath)
			}
			defer func() { _ = lock.Unlock() }()

			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			cmd.SetContext(runCtx)

			out := cmd.OutOrStdout()
			opts := app.Options{OnEvent: func(e services.Event) {
				if e.Type != services.EventVerification {
					return
				}
				if session, ok := e.Data.(auth.Session); ok {
					printVerification(out, session)
				}
			}}
			return ctx.withApp(cmd, opts, func(stack *app.App) error {
				if stack.RealDebrid.UsesAPIKey() {
					return errors.New("REAL_DEBRID_API_KEY is set; device authorization is not needed")
				}
				if err := stack.Manager.Auth.Authenticate(runCtx); err != nil {
					if errors.Is(err, context.Canceled) || runCtx.Err() != nil {
						fmt.Fprintln(out, "Authorization cancelled")
						return nil
					}
					return err
				}
				fmt.Fprintln(out, "Real-Debrid authorized")
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&lockPath, "lock", defaultLockPath(), "Lock file preventing concurrent authorizations")
	return cmd
}

func printVerification(out io.Writer, session auth.Session) {
	fmt.Fprintf(out, "Open %s and enter code %s\n", session.VerificationURL, session.UserCode)
	if session.ExpiresAt != nil {
		fmt.Fprintf(out, "The code expires at %s\n", session.ExpiresAt.Local().Format("15:04:05"))
	}
}

func newLogoutCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored Real-Debrid credentials",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(cmd, app.Options{}, func(stack *app.App) error {
				if err := stack.Manager.Auth.Logout(cmd.Context()); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Logged out of Real-Debrid")
				return nil
			})
		},
	}
}
