package data

import (
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"odbcref/internal/core"
)

func openTestDB(t testing.TB) *sql.DB {
	require := require.New(t)
	path := filepath.Join(t.TempDir(), dbName)
	t.Log("db path: ", path)

	db, err := InitDB(path)
	require.NoError(err, "failed to open database")
	t.Cleanup(func() { require.NoError(db.Close(), "failed to close database") })
	return db
}

func TestInitDBIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), dbName)
	for i := 0; i < 2; i++ {
		db, err := InitDB(path)
		require.NoError(t, err)
		require.NoError(t, db.Close())
	}
}

func TestProfileRepo(t *testing.T) {
	repo := NewProfileRepo(openTestDB(t))

	p := &core.Profile{Name: "rebol-firebird", Driver: "odbc", ConnectionStringEnc: "enc", IsActive: true}
	require.NoError(t, repo.Create(p))
	require.NotZero(t, p.ID)

	require.Error(t, repo.Create(&core.Profile{Name: "rebol-firebird", Driver: "odbc", ConnectionStringEnc: "x"}), "names are unique")

	got, err := repo.GetByName("rebol-firebird")
	require.NoError(t, err)
	require.Equal(t, p, got)

	p.IsActive = false
	p.Driver = "sqlite"
	require.NoError(t, repo.Update(p))
	got, err = repo.GetByID(p.ID)
	require.NoError(t, err)
	require.False(t, got.IsActive)
	require.Equal(t, "sqlite", got.Driver)

	all, err := repo.GetAll()
	require.NoError(t, err)
	require.Len(t, all, 1)

	require.NoError(t, repo.Delete(p.ID))
	_, err = repo.GetByID(p.ID)
	require.ErrorIs(t, err, core.ErrNotFound)
	_, err = repo.GetByName("rebol-firebird")
	require.ErrorIs(t, err, core.ErrNotFound)
}

func TestRunRepo(t *testing.T) {
	repo := NewRunRepo(openTestDB(t))

	keyID := int64(4)
	started := time.Now().Add(-time.Minute).Truncate(time.Second)
	run := &core.Run{
		StartedAt:  started,
		Driver:     "odbc",
		DataSource: "dsn=rebol-firebird",
		DurationMs: 12,
		Status:     core.StatusError,
		Error:      "table exists",
		ApiKeyID:   &keyID,
		Statements: []core.StatementResult{
			{Position: 1, SQL: "CREATE TABLE a (id INT)", Status: core.StatusSuccess},
			{Position: 2, SQL: "CREATE TABLE a (id INT)", Status: core.StatusError, Error: "table exists"},
		},
	}
	require.NoError(t, repo.Create(run))
	require.NotZero(t, run.ID)

	second := &core.Run{StartedAt: time.Now(), ProfileID: 9, Driver: "sqlite", DataSource: "x.db", Status: core.StatusSuccess}
	require.NoError(t, repo.Create(second))

	recent, err := repo.GetRecent(10)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	require.Equal(t, second.ID, recent[0].ID, "newest first")
	require.Equal(t, int64(9), recent[0].ProfileID)
	require.Nil(t, recent[0].ApiKeyID)
	require.Empty(t, recent[0].Statements)

	got, err := repo.GetByID(run.ID)
	require.NoError(t, err)
	require.True(t, started.Equal(got.StartedAt))
	require.Equal(t, "table exists", got.Error)
	require.Equal(t, &keyID, got.ApiKeyID)
	require.Equal(t, run.Statements, got.Statements)

	_, err = repo.GetByID(999)
	require.ErrorIs(t, err, core.ErrNotFound)
}

func TestApiKeyRepo(t *testing.T) {
	repo := NewApiKeyRepo(openTestDB(t))

	key := &core.ApiKey{KeyPrefix: "abcd1234", KeyHash: "hash", Description: "ci", CreatedAt: time.Now().UTC(), IsActive: true}
	require.NoError(t, repo.Create(key))

	got, err := repo.GetByHash("hash")
	require.NoError(t, err)
	require.Equal(t, key.ID, got.ID)
	require.Nil(t, got.LastUsedAt)

	require.NoError(t, repo.UpdateLastUsed(key.ID))
	got, err = repo.GetByHash("hash")
	require.NoError(t, err)
	require.NotNil(t, got.LastUsedAt)

	keys, err := repo.List()
	require.NoError(t, err)
	require.Len(t, keys, 1)
	require.Equal(t, "ci", keys[0].Description)

	require.NoError(t, repo.Revoke(key.ID))
	_, err = repo.GetByHash("hash")
	require.ErrorIs(t, err, core.ErrNotFound)
}

func TestScriptRepo(t *testing.T) {
	repo := NewScriptRepo(openTestDB(t))

	s := &core.SavedScript{Slug: "smallint", Body: "CREATE TABLE t (id INT);\n#DROP TABLE t;\n"}
	require.NoError(t, repo.Create(s))

	got, err := repo.GetBySlug("smallint")
	require.NoError(t, err)
	require.Equal(t, s.Body, got.Body)
	require.Empty(t, got.Description)

	s.Description = "toggle the drop"
	require.NoError(t, repo.Update(s))
	all, err := repo.GetAll()
	require.NoError(t, err)
	require.Len(t, all, 1)
	require.Equal(t, "toggle the drop", all[0].Description)

	require.NoError(t, repo.Delete(s.ID))
	_, err = repo.GetBySlug("smallint")
	require.ErrorIs(t, err, core.ErrNotFound)
}
