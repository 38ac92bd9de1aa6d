package service

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"odbcref/internal/core"
	"odbcref/internal/script"
)

func TestRunDefaultScript(t *testing.T) {
	ctx := context.WithValue(context.Background(), core.ContextKeyApiKeyID, int64(3))
	runner, _, runs, _ := newRunner(t)
	target := filepath.Join(t.TempDir(), "target.db")

	run, err := runner.Run(ctx, RunRequest{Driver: "sqlite", DSN: target, Script: script.Default(), Verify: true})
	require.NoError(t, err)
	require.Equal(t, core.StatusSuccess, run.Status)
	require.Len(t, run.Statements, 1, "only the enabled statement runs")
	require.Equal(t, 1, run.Statements[0].Position)

	stored, err := runs.GetByID(run.ID)
	require.NoError(t, err)
	require.Equal(t, run.Statements, stored.Statements)
	require.Equal(t, int64(3), *stored.ApiKeyID)

	// The table now exists, so the same script fails with the driver's error.
	run, err = runner.Run(ctx, RunRequest{Driver: "sqlite", DSN: target, Script: script.Default()})
	require.ErrorContains(t, err, "already exists")
	require.Equal(t, core.StatusError, run.Status)
	require.Equal(t, core.StatusError, run.Statements[0].Status)

	recent, err := runs.GetRecent(10)
	require.NoError(t, err)
	require.Len(t, recent, 2)
}

func TestRunToggledStatements(t *testing.T) {
	ctx := context.Background()
	runner, _, _, _ := newRunner(t)
	target := filepath.Join(t.TempDir(), "target.db")

	s := script.Default()
	require.NoError(t, script.Toggle(s, 2, true))
	require.NoError(t, script.Toggle(s, 3, true))

	run, err := runner.Run(ctx, RunRequest{Driver: "sqlite", DSN: target, Script: s})
	require.NoError(t, err)
	require.Len(t, run.Statements, 3)
	require.Equal(t, []int{1, 2, 3}, []int{run.Statements[0].Position, run.Statements[1].Position, run.Statements[2].Position})

	// test_int was dropped again, so creating it alone succeeds and verifies.
	require.NoError(t, script.Toggle(s, 1, false))
	require.NoError(t, script.Toggle(s, 3, false))
	run, err = runner.Run(ctx, RunRequest{Driver: "sqlite", DSN: target, Script: s, Verify: true})
	require.NoError(t, err)
	require.Equal(t, 2, run.Statements[0].Position)
}

func TestRunUnreachableDataSource(t *testing.T) {
	runner, _, runs, _ := newRunner(t)
	dsn := filepath.Join(t.TempDir(), "missing", "target.db")

	run, runErr := runner.Run(context.Background(), RunRequest{Driver: "sqlite", DSN: dsn, Script: script.Default()})
	require.Error(t, runErr)
	require.Equal(t, core.StatusError, run.Status)
	require.Empty(t, run.Statements, "no statement runs without a connection")

	stored, err := runs.GetByID(run.ID)
	require.NoError(t, err)
	require.Equal(t, core.StatusError, stored.Status)
	require.Equal(t, runErr.Error(), stored.Error)
}

func TestRunStopsAtFirstFailure(t *testing.T) {
	runner, _, _, _ := newRunner(t)
	s := &core.Script{Statements: []core.Statement{
		{SQL: "CREATE TABLE a (id INTEGER)", Enabled: true},
		{SQL: "CREATE TABLE a (id INTEGER)", Enabled: true},
		{SQL: "CREATE TABLE b (id INTEGER)", Enabled: true},
	}}

	run, err := runner.Run(context.Background(), RunRequest{Driver: "sqlite", DSN: filepath.Join(t.TempDir(), "t.db"), Script: s})
	require.ErrorContains(t, err, "statement 2")
	require.Len(t, run.Statements, 2)
	require.Equal(t, core.StatusSuccess, run.Statements[0].Status)
	require.Equal(t, core.StatusError, run.Statements[1].Status)
}

func TestRunProfile(t *testing.T) {
	ctx := context.Background()
	runner, profiles, _, cryptoSvc := newRunner(t)

	enc, err := cryptoSvc.Encrypt(filepath.Join(t.TempDir(), "target.db"))
	require.NoError(t, err)
	p := &core.Profile{Name: "local-sqlite", Driver: "sqlite", ConnectionStringEnc: enc, IsActive: true}
	require.NoError(t, profiles.Create(p))

	run, err := runner.Run(ctx, RunRequest{Profile: "Local SQLite", Script: script.Default()})
	require.NoError(t, err)
	require.Equal(t, p.ID, run.ProfileID)
	require.Equal(t, "sqlite", run.Driver)
	require.Equal(t, "local-sqlite", run.DataSource)

	p.IsActive = false
	require.NoError(t, profiles.Update(p))
	_, err = runner.Run(ctx, RunRequest{Profile: "local-sqlite", Script: script.Default()})
	require.ErrorIs(t, err, core.ErrInactive)

	_, err = runner.Run(ctx, RunRequest{Profile: "missing", Script: script.Default()})
	require.ErrorIs(t, err, core.ErrNotFound)
}

func TestRunParams(t *testing.T) {
	ctx := context.Background()
	runner, _, _, _ := newRunner(t)
	target := filepath.Join(t.TempDir(), "target.db")

	s := &core.Script{Statements: []core.Statement{
		{SQL: script.SmallintTable, Enabled: true},
		{SQL: "INSERT INTO test_smallint_s (id, val) VALUES ({id}, {val:7})", Enabled: true},
	}}
	run, err := runner.Run(ctx, RunRequest{Driver: "sqlite", DSN: target, Script: s, Params: map[string]any{"id": 1}})
	require.NoError(t, err)
	require.Equal(t, int64(1), run.Statements[1].RowsAffected)

	s.Statements[0].Enabled = false
	_, err = runner.Run(ctx, RunRequest{Driver: "sqlite", DSN: target, Script: s})
	require.ErrorContains(t, err, "missing parameters: id")
}

func TestRunRequiresTarget(t *testing.T) {
	runner, _, runs, _ := newRunner(t)
	run, err := runner.Run(context.Background(), RunRequest{Script: script.Default()})
	require.Error(t, err)
	require.NotZero(t, run.ID, "failed runs are recorded too")

	recent, err := runs.GetRecent(1)
	require.NoError(t, err)
	require.Equal(t, core.StatusError, recent[0].Status)
}

func TestConnect(t *testing.T) {
	ctx := context.Background()
	runner, _, runs, _ := newRunner(t)

	conn, err := runner.Connect(ctx, RunRequest{Driver: "sqlite", DSN: filepath.Join(t.TempDir(), "t.db")})
	require.NoError(t, err)
	require.Equal(t, "sqlite", conn.Driver())
	require.NoError(t, conn.Close())

	recent, err := runs.GetRecent(10)
	require.NoError(t, err)
	require.Empty(t, recent, "connecting alone records nothing")
}
