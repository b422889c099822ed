package cli

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/vietddude/tableadmin/internal/control"
	"github.com/vietddude/tableadmin/internal/metrics"
)

var (
	waitToken   string
	waitCached  bool
	waitTimeout time.Duration
)

var tokenCmd = &cobra.Command{
	Use:   "token [table]",
	Short: "Generate a consistency token for a table",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, app *control.App) error {
			token, err := app.Admin().GenerateConsistencyToken(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Println(token)
			return nil
		})
	},
}

var checkCmd = &cobra.Command{
	Use:   "check [table] [token]",
	Short: "Check once whether a consistency token has replicated",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, app *control.App) error {
			c, err := app.Admin().CheckConsistency(ctx, args[0], args[1])
			if err != nil {
				return err
			}
			fmt.Println(c)
			return nil
		})
	},
}

var waitCmd = &cobra.Command{
	Use:   "wait [table]",
	Short: "Wait until a table's writes have replicated",
	Long: `Wait polls CheckConsistency until the token is consistent. Without --token
a fresh token is generated and cached first; --cached reuses the last cached token.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if waitToken != "" && waitCached {
			return fmt.Errorf("--token and --cached are mutually exclusive")
		}
		table := args[0]
		return withApp(func(ctx context.Context, app *control.App) error {
			if waitTimeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, waitTimeout)
				defer cancel()
			}
			a := app.Admin()

			token := waitToken
			if waitCached {
				cached, ok, err := a.CachedToken(ctx, table)
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("no cached token for %s", table)
				}
				token = cached
			}

			start := time.Now()
			if token == "" {
				f := a.GenerateAndWait(ctx, app.Queue(), table)
				c, err := f.Wait(ctx)
				if err != nil {
					f.Cancel()
					return err
				}
				fmt.Println(c)
				slog.Info("Table consistent", "table", table, "elapsed", time.Since(start))
				return nil
			}

			f := a.AsyncWaitForConsistencyObserved(ctx, app.Queue(), table, token, metrics.Recorder{})
			c, err := f.Wait(ctx)
			if err != nil {
				f.Cancel()
				return err
			}
			fmt.Println(c)
			slog.Info("Table consistent", "table", table, "elapsed", time.Since(start))
			return nil
		})
	},
}

func init() {
	waitCmd.Flags().StringVar(&waitToken, "token", "", "wait for this token instead of generating one")
	waitCmd.Flags().BoolVar(&waitCached, "cached", false, "wait for the last cached token")
	waitCmd.Flags().DurationVar(&waitTimeout, "timeout", 0, "give up after this long (0 waits indefinitely)")

	rootCmd.AddCommand(tokenCmd, checkCmd, waitCmd)
}
