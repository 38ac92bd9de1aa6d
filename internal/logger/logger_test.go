package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInitWritesLogFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")
	require.NoError(t, Init(dir))

	Info.Println("connected to dsn=rebol-firebird")

	data, err := os.ReadFile(filepath.Join(dir, "odbcref.log"))
	require.NoError(t, err)
	require.Contains(t, string(data), "INFO: ")
	require.Contains(t, string(data), "connected to dsn=rebol-firebird")
}
