package core

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSQLParserParse(t *testing.T) {
	p := NewSQLParser()
	res := p.Parse("INSERT INTO test_smallint_s (id, val) VALUES ({id}, {val:7})")
	require.Equal(t, "INSERT INTO test_smallint_s (id, val) VALUES (?, ?)", res.SQL)
	require.Equal(t, []string{"id", "val"}, res.ParamNames)
	require.Equal(t, map[string]string{"val": "7"}, res.Defaults)
}

func TestSQLParserNoPlaceholders(t *testing.T) {
	p := NewSQLParser()
	sql := "CREATE TABLE test_smallint_s (id INTEGER PRIMARY KEY NOT NULL, val SMALLINT NOT NULL )"
	res := p.Parse(sql)
	require.Equal(t, sql, res.SQL)
	require.Empty(t, res.ParamNames)
}

func TestSQLParserMapValues(t *testing.T) {
	p := NewSQLParser()
	res := p.Parse("SELECT * FROM t WHERE a = {a} AND b = {b:x} AND c = {c}")

	_, err := p.MapValues(res.ParamNames, map[string]any{"b": 2}, res.Defaults)
	require.EqualError(t, err, "missing parameters: a, c")

	args, err := p.MapValues(res.ParamNames, map[string]any{"a": 1, "c": 3}, res.Defaults)
	require.NoError(t, err)
	require.Equal(t, []any{1, "x", 3}, args)
}

func TestSlugify(t *testing.T) {
	require.Equal(t, "rebol-firebird", Slugify("  Rebol Firebird "))
	require.Equal(t, "test-smallint-s", Slugify("test_smallint_s"))
	require.Equal(t, "a-b", Slugify("a -- b!!"))
}

func TestScriptEnabled(t *testing.T) {
	s := &Script{Statements: []Statement{
		{SQL: "A", Enabled: true},
		{SQL: "B"},
		{SQL: "C", Enabled: true},
	}}
	require.Equal(t, []Statement{{SQL: "A", Enabled: true}, {SQL: "C", Enabled: true}}, s.Enabled())
}
