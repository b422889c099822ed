package cli

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"cloud.google.com/go/bigtable/admin/apiv2/adminpb"
	"github.com/spf13/cobra"

	"github.com/vietddude/tableadmin/internal/control"
	"github.com/vietddude/tableadmin/internal/infra/bigtable/admin"
)

var (
	listFull      bool
	createFams    []string
	createSplits  []string
	modifyCreate  []string
	modifyUpdate  []string
	modifyDrop    []string
	dropPrefix    string
	dropAll       bool
	deleteConfirm bool
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List the tables of the instance",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		view := adminpb.Table_NAME_ONLY
		if listFull {
			view = adminpb.Table_SCHEMA_VIEW
		}
		return withApp(func(ctx context.Context, app *control.App) error {
			tables, err := app.Admin().ListTables(ctx, view)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
			if listFull {
				_, _ = fmt.Fprintln(w, "TABLE\tFAMILIES")
			} else {
				_, _ = fmt.Fprintln(w, "TABLE")
			}
			for _, t := range tables {
				if listFull {
					_, _ = fmt.Fprintf(w, "%s\t%s\n", admin.TableID(t.GetName()), strings.Join(admin.FamilyNames(t), ","))
				} else {
					_, _ = fmt.Fprintln(w, admin.TableID(t.GetName()))
				}
			}
			return w.Flush()
		})
	},
}

var getCmd = &cobra.Command{
	Use:   "get [table]",
	Short: "Show the column families of a table",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, app *control.App) error {
			t, err := app.Admin().GetTable(ctx, args[0], adminpb.Table_FULL)
			if err != nil {
				return err
			}
			printTable(t)
			return nil
		})
	},
}

var createCmd = &cobra.Command{
	Use:   "create [table]",
	Short: "Create a table",
	Example: `  tableadmin create events --family 'd=versions=1' --family 'meta=age=720h|versions=3'
  tableadmin create events --family d --split a --split m`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		families, err := parseFamilies(createFams)
		if err != nil {
			return err
		}
		tc := admin.TableConfig{ColumnFamilies: families, InitialSplits: createSplits}
		return withApp(func(ctx context.Context, app *control.App) error {
			t, err := app.Admin().CreateTable(ctx, args[0], tc)
			if err != nil {
				return err
			}
			printTable(t)
			return nil
		})
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete [table]",
	Short: "Delete a table and all its data",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if !deleteConfirm {
			return fmt.Errorf("refusing to delete %s without --yes", args[0])
		}
		return withApp(func(ctx context.Context, app *control.App) error {
			if err := app.Admin().DeleteTable(ctx, args[0]); err != nil {
				return err
			}
			fmt.Printf("Deleted %s\n", args[0])
			return nil
		})
	},
}

var modifyCmd = &cobra.Command{
	Use:     "modify [table]",
	Short:   "Create, update or drop column families",
	Example: `  tableadmin modify events --create 'x=versions=2' --update 'd=age=24h' --drop old`,
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		mods, err := parseModifications(modifyCreate, modifyUpdate, modifyDrop)
		if err != nil {
			return err
		}
		if len(mods) == 0 {
			return fmt.Errorf("nothing to modify: pass --create, --update or --drop")
		}
		return withApp(func(ctx context.Context, app *control.App) error {
			t, err := app.Admin().ModifyColumnFamilies(ctx, args[0], mods...)
			if err != nil {
				return err
			}
			printTable(t)
			return nil
		})
	},
}

var dropRowsCmd = &cobra.Command{
	Use:   "drop-rows [table]",
	Short: "Delete rows by key prefix, or every row with --all",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if (dropPrefix == "") == !dropAll {
			return fmt.Errorf("pass exactly one of --prefix or --all")
		}
		return withApp(func(ctx context.Context, app *control.App) error {
			if dropAll {
				if err := app.Admin().DropAllRows(ctx, args[0]); err != nil {
					return err
				}
				fmt.Printf("Dropped all rows from %s\n", args[0])
				return nil
			}
			if err := app.Admin().DropRowsByPrefix(ctx, args[0], dropPrefix); err != nil {
				return err
			}
			fmt.Printf("Dropped rows with prefix %q from %s\n", dropPrefix, args[0])
			return nil
		})
	},
}

func init() {
	listCmd.Flags().BoolVar(&listFull, "families", false, "include column families")
	createCmd.Flags().StringArrayVar(&createFams, "family", nil, "column family as name or name=gc-rule (repeatable)")
	createCmd.Flags().StringArrayVar(&createSplits, "split", nil, "initial split key (repeatable)")
	modifyCmd.Flags().StringArrayVar(&modifyCreate, "create", nil, "family to create, name[=gc-rule] (repeatable)")
	modifyCmd.Flags().StringArrayVar(&modifyUpdate, "update", nil, "family to update, name=gc-rule (repeatable)")
	modifyCmd.Flags().StringArrayVar(&modifyDrop, "drop", nil, "family to drop (repeatable)")
	dropRowsCmd.Flags().StringVar(&dropPrefix, "prefix", "", "row key prefix")
	dropRowsCmd.Flags().BoolVar(&dropAll, "all", false, "drop every row")
	deleteCmd.Flags().BoolVar(&deleteConfirm, "yes", false, "confirm deletion")

	rootCmd.AddCommand(listCmd, getCmd, createCmd, deleteCmd, modifyCmd, dropRowsCmd)
}

func printTable(t *adminpb.Table) {
	fmt.Println(t.GetName())
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	_, _ = fmt.Fprintln(w, "FAMILY\tGC RULE")
	for _, name := range admin.FamilyNames(t) {
		rule := admin.FormatGcRule(t.GetColumnFamilies()[name].GetGcRule())
		if rule == "" {
			rule = "-"
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\n", name, rule)
	}
	_ = w.Flush()
}

// splitFamily splits "name=rule" at the first '='.
func splitFamily(value string) (string, *adminpb.GcRule, error) {
	name, rule, _ := strings.Cut(value, "=")
	name = strings.TrimSpace(name)
	if name == "" {
		return "", nil, fmt.Errorf("family %q: empty name", value)
	}
	gc, err := admin.ParseGcRule(rule)
	if err != nil {
		return "", nil, fmt.Errorf("family %q: %w", name, err)
	}
	return name, gc, nil
}

func parseFamilies(values []string) (map[string]*adminpb.GcRule, error) {
	families := make(map[string]*adminpb.GcRule, len(values))
	for _, value := range values {
		name, gc, err := splitFamily(value)
		if err != nil {
			return nil, err
		}
		if _, dup := families[name]; dup {
			return nil, fmt.Errorf("family %q given twice", name)
		}
		families[name] = gc
	}
	return families, nil
}

func parseModifications(create, update, drop []string) ([]admin.ColumnFamilyModification, error) {
	var mods []admin.ColumnFamilyModification
	for _, value := range create {
		name, gc, err := splitFamily(value)
		if err != nil {
			return nil, err
		}
		mods = append(mods, admin.CreateFamily(name, gc))
	}
	for _, value := range update {
		name, gc, err := splitFamily(value)
		if err != nil {
			return nil, err
		}
		if gc == nil {
			return nil, fmt.Errorf("family %q: update needs a gc rule", name)
		}
		mods = append(mods, admin.UpdateFamily(name, gc))
	}
	for _, name := range drop {
		mods = append(mods, admin.DropFamily(strings.TrimSpace(name)))
	}
	return mods, nil
}
