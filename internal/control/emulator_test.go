package control

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"cloud.google.com/go/bigtable/admin/apiv2/adminpb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vietddude/tableadmin/internal/core/config"
	"github.com/vietddude/tableadmin/internal/infra/bigtable/admin"
)

// TestTableLifecycle_Emulator runs against a local emulator:
//
//	gcloud beta emulators bigtable start --host-port=localhost:8086
//	BIGTABLE_EMULATOR_HOST=localhost:8086 go test ./internal/control -run Emulator
func TestTableLifecycle_Emulator(t *testing.T) {
	if os.Getenv(config.EmulatorHostEnv) == "" {
		t.Skipf("Skipping emulator test. Set %s to run.", config.EmulatorHostEnv)
	}

	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Bigtable.Project = "emulator"
	cfg.Bigtable.Instance = "tableadmin"
	cfg.Polling.Initial = 100 * time.Millisecond
	cfg.Polling.Maximum = time.Second

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	app, err := NewApp(ctx, cfg)
	require.NoError(t, err)
	require.NoError(t, app.Start(ctx))
	defer func() {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer stopCancel()
		assert.NoError(t, app.Stop(stopCtx))
	}()

	a := app.Admin()
	table := fmt.Sprintf("lifecycle_%d", time.Now().UnixNano())

	created, err := a.CreateTable(ctx, table, admin.TableConfig{
		ColumnFamilies: map[string]*adminpb.GcRule{"d": admin.MaxNumVersions(1)},
		InitialSplits:  []string{"m"},
	})
	require.NoError(t, err)
	assert.Equal(t, a.TableName(table), created.GetName())
	defer func() { _ = a.DeleteTable(context.Background(), table) }()

	tables, err := a.ListTables(ctx, adminpb.Table_NAME_ONLY)
	require.NoError(t, err)
	var names []string
	for _, tb := range tables {
		names = append(names, admin.TableID(tb.GetName()))
	}
	assert.Contains(t, names, table)

	modified, err := a.ModifyColumnFamilies(ctx, table,
		admin.CreateFamily("x", admin.MaxAge(time.Hour)),
		admin.DropFamily("d"),
	)
	require.NoError(t, err)
	assert.Equal(t, []string{"x"}, admin.FamilyNames(modified))

	require.NoError(t, a.DropRowsByPrefix(ctx, table, "user#"))

	c, err := a.GenerateAndWait(ctx, app.Queue(), table).Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, admin.Consistent, c)

	token, ok, err := a.CachedToken(ctx, table)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NotEmpty(t, token)

	require.NoError(t, a.DeleteTable(ctx, table))
}
