package cli

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"cloud.google.com/go/iam/apiv1/iampb"
	"github.com/spf13/cobra"

	"github.com/vietddude/tableadmin/internal/control"
	"github.com/vietddude/tableadmin/internal/infra/bigtable/admin"
)

var (
	iamBindings []string
	iamEtag     string
	iamVersion  int32
)

var iamCmd = &cobra.Command{
	Use:   "iam",
	Short: "Inspect and change table IAM policies",
}

var iamGetCmd = &cobra.Command{
	Use:   "get [table]",
	Short: "Show the IAM policy of a table",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, app *control.App) error {
			p, err := app.Admin().GetIamPolicy(ctx, args[0])
			if err != nil {
				return err
			}
			printPolicy(p)
			return nil
		})
	},
}

var iamSetCmd = &cobra.Command{
	Use:     "set [table]",
	Short:   "Replace the IAM policy of a table",
	Example: `  tableadmin iam set events --binding roles/bigtable.reader=user:a@example.com --etag BwX...`,
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		bindings, err := parseBindings(iamBindings)
		if err != nil {
			return err
		}
		var etag []byte
		if iamEtag != "" {
			if etag, err = base64.StdEncoding.DecodeString(iamEtag); err != nil {
				return fmt.Errorf("invalid --etag: %w", err)
			}
		}
		policy := admin.NewIamPolicy(bindings, etag, iamVersion)
		return withApp(func(ctx context.Context, app *control.App) error {
			p, err := app.Admin().SetIamPolicy(ctx, args[0], policy)
			if err != nil {
				return err
			}
			printPolicy(p)
			return nil
		})
	},
}

var iamTestCmd = &cobra.Command{
	Use:   "test [table] [permission...]",
	Short: "Report which permissions the caller holds on a table",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, app *control.App) error {
			held, err := app.Admin().TestIamPermissions(ctx, args[0], args[1:]...)
			if err != nil {
				return err
			}
			for _, p := range held {
				fmt.Println(p)
			}
			return nil
		})
	},
}

func init() {
	iamSetCmd.Flags().StringArrayVar(&iamBindings, "binding", nil, "role=member (repeatable)")
	iamSetCmd.Flags().StringVar(&iamEtag, "etag", "", "base64 etag from iam get")
	iamSetCmd.Flags().Int32Var(&iamVersion, "version", 1, "policy version")

	iamCmd.AddCommand(iamGetCmd, iamSetCmd, iamTestCmd)
	rootCmd.AddCommand(iamCmd)
}

func parseBindings(values []string) (map[string][]string, error) {
	bindings := make(map[string][]string)
	for _, value := range values {
		role, member, ok := strings.Cut(value, "=")
		if !ok || role == "" || member == "" {
			return nil, fmt.Errorf("binding %q: want role=member", value)
		}
		bindings[role] = append(bindings[role], member)
	}
	return bindings, nil
}

func printPolicy(p *iampb.Policy) {
	fmt.Printf("version: %d\netag: %s\n", p.GetVersion(), base64.StdEncoding.EncodeToString(p.GetEtag()))
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	_, _ = fmt.Fprintln(w, "ROLE\tMEMBER")
	for _, b := range p.GetBindings() {
		for _, m := range b.GetMembers() {
			_, _ = fmt.Fprintf(w, "%s\t%s\n", b.GetRole(), m)
		}
	}
	_ = w.Flush()
}
