package cli

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/vietddude/tableadmin/internal/control"
	"github.com/vietddude/tableadmin/internal/infra/storage"
)

var (
	journalMethod string
	journalTable  string
	journalFailed bool
	journalLimit  int
)

var journalCmd = &cobra.Command{
	Use:   "journal",
	Short: "Show recorded operations (requires database.url for history across runs)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, app *control.App) error {
			f := storage.ListFilter{
				Method:     journalMethod,
				FailedOnly: journalFailed,
				Limit:      journalLimit,
			}
			if journalTable != "" {
				f.Resource = app.Admin().TableName(journalTable)
			}
			recs, err := app.Journal().Repository().List(ctx, f)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
			_, _ = fmt.Fprintln(w, "STARTED\tMETHOD\tRESOURCE\tATTEMPTS\tCODE\tELAPSED\tATTEMPT CODES")
			for _, r := range recs {
				_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\t%s\n",
					r.StartedAt.Format(time.RFC3339),
					r.Method,
					r.Resource,
					r.Attempts,
					r.Code,
					r.Elapsed.Round(time.Millisecond),
					strings.Join(r.AttemptCodes, ","),
				)
			}
			return w.Flush()
		})
	},
}

func init() {
	journalCmd.Flags().StringVar(&journalMethod, "method", "", "only this RPC method")
	journalCmd.Flags().StringVar(&journalTable, "table", "", "only operations on this table")
	journalCmd.Flags().BoolVar(&journalFailed, "failed", false, "only failed operations")
	journalCmd.Flags().IntVar(&journalLimit, "limit", 50, "maximum rows")

	rootCmd.AddCommand(journalCmd)
}
