package script

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"odbcref/internal/core"
)

const referenceScript = `
# Python's pyodbc makes a good reference for comparison.
CREATE TABLE test_smallint_s (id INTEGER PRIMARY KEY NOT NULL, val SMALLINT NOT NULL )
#CREATE TABLE test_int (id INTEGER PRIMARY KEY NOT NULL, val INT NOT NULL);
#DROP TABLE test_int;
`

func TestParseReferenceScript(t *testing.T) {
	s, err := Parse(strings.NewReader(referenceScript))
	require.NoError(t, err)
	require.Equal(t, Default(), s)
}

func TestParseMultiLineStatement(t *testing.T) {
	s, err := Parse(strings.NewReader(`
CREATE TABLE t (
  id INTEGER PRIMARY KEY NOT NULL,
  -- the value column
  val SMALLINT NOT NULL
);
-- DROP TABLE t;
INSERT INTO t VALUES (1, 2); INSERT INTO t VALUES (2, ';')
`))
	require.NoError(t, err)
	require.Equal(t, []core.Statement{
		{SQL: "CREATE TABLE t ( id INTEGER PRIMARY KEY NOT NULL, val SMALLINT NOT NULL )", Enabled: true},
		{SQL: "DROP TABLE t"},
		{SQL: "INSERT INTO t VALUES (1, 2)", Enabled: true},
		{SQL: "INSERT INTO t VALUES (2, ';')", Enabled: true},
	}, s.Statements)
}

func TestParseMultiLineSemicolonBlock(t *testing.T) {
	s, err := Parse(strings.NewReader(`INSERT INTO t (id, val)
VALUES (1, 2);
#INSERT INTO t (id, val)
#VALUES (3, 4);
SELECT id
-- newest first
FROM t;
`))
	require.NoError(t, err)
	require.Equal(t, []core.Statement{
		{SQL: "INSERT INTO t (id, val) VALUES (1, 2)", Enabled: true},
		{SQL: "INSERT INTO t (id, val) VALUES (3, 4)"},
		{SQL: "SELECT id FROM t", Enabled: true},
	}, s.Statements)

	var buf bytes.Buffer
	require.NoError(t, Format(&buf, s))
	again, err := Parse(&buf)
	require.NoError(t, err)
	require.Equal(t, s, again, "disabled blocks keep every line")
}

func TestParseDisabledMultiLineBlock(t *testing.T) {
	s, err := Parse(strings.NewReader(`-- CREATE TABLE test_int (
--   id INTEGER PRIMARY KEY NOT NULL,
--   val INT NOT NULL
-- );
CREATE TABLE test_smallint_s (id INTEGER PRIMARY KEY NOT NULL, val SMALLINT NOT NULL )
`))
	require.NoError(t, err)
	require.Equal(t, []core.Statement{
		{SQL: "CREATE TABLE test_int ( id INTEGER PRIMARY KEY NOT NULL, val INT NOT NULL )"},
		{SQL: SmallintTable, Enabled: true},
	}, s.Statements)
}

func TestParseQuotedParens(t *testing.T) {
	s, err := Parse(strings.NewReader("INSERT INTO t VALUES (1, '(')\nDROP TABLE t\n"))
	require.NoError(t, err)
	require.Equal(t, []core.Statement{
		{SQL: "INSERT INTO t VALUES (1, '(')", Enabled: true},
		{SQL: "DROP TABLE t", Enabled: true},
	}, s.Statements)
}

func TestParseErrors(t *testing.T) {
	_, err := Parse(strings.NewReader("CREATE TABLE t (\n id INT"))
	require.ErrorContains(t, err, "unbalanced parentheses")

	_, err = Parse(strings.NewReader("#CREATE TABLE t (\nid INT)"))
	require.ErrorContains(t, err, "commented and an uncommented")
}

func TestFormatRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Format(&buf, Default()))
	require.Equal(t, SmallintTable+";\n#"+IntTable+";\n#"+DropIntTable+";\n", buf.String())

	s, err := Parse(&buf)
	require.NoError(t, err)
	require.Equal(t, Default(), s)
}

func TestToggle(t *testing.T) {
	s := Default()
	require.NoError(t, Toggle(s, 1, false))
	require.NoError(t, Toggle(s, 2, true))
	require.Equal(t, []core.Statement{{SQL: IntTable, Enabled: true}}, s.Enabled())

	require.Error(t, Toggle(s, 0, true))
	require.Error(t, Toggle(s, 4, true))
}

func TestCreatedTables(t *testing.T) {
	s := Default()
	require.Equal(t, []string{"test_smallint_s"}, CreatedTables(s))

	require.NoError(t, Toggle(s, 2, true))
	require.Equal(t, []string{"test_smallint_s", "test_int"}, CreatedTables(s))
}
