package config

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
	"unicode/utf16"

	"github.com/stretchr/testify/require"
)

const testKey = "0123456789abcdef0123456789abcdef"

func TestLoadDefaults(t *testing.T) {
	t.Setenv("ODBCREF_KEY", testKey)
	t.Setenv("ODBCREF_DSN", "")
	t.Setenv("ODBCREF_DRIVER", "")
	t.Setenv("PORT", "not-a-number")
	t.Setenv("ODBCREF_LOGIN_TIMEOUT", "")
	t.Setenv("SUPPORTED_DRIVERS", "")
	t.Setenv("ODBCREF_ALLOW_RAW_DSN", "")

	cfg, err := LoadFrom(filepath.Join(t.TempDir(), ".env"))
	require.NoError(t, err)
	require.False(t, cfg.AllowRawDSN)
	require.Equal(t, DefaultDSN, cfg.DSN)
	require.Equal(t, DefaultDriver, cfg.Driver)
	require.Equal(t, DefaultPort, cfg.Port)
	require.Equal(t, DefaultLoginTimeout, cfg.LoginTimeout)
	require.True(t, cfg.Supports("ODBC"))
	require.False(t, cfg.Supports("oracle"))
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("ODBCREF_KEY", testKey)
	t.Setenv("ODBCREF_DSN", "dsn=other")
	t.Setenv("ODBCREF_DRIVER", "sqlite")
	t.Setenv("PORT", "9000")
	t.Setenv("ODBCREF_LOGIN_TIMEOUT", "12")
	t.Setenv("SUPPORTED_DRIVERS", "sqlite, odbc ,")
	t.Setenv("ODBCREF_ALLOW_RAW_DSN", "true")

	cfg, err := LoadFrom(filepath.Join(t.TempDir(), ".env"))
	require.NoError(t, err)
	require.True(t, cfg.AllowRawDSN)
	require.Equal(t, "dsn=other", cfg.DSN)
	require.Equal(t, "sqlite", cfg.Driver)
	require.Equal(t, 9000, cfg.Port)
	require.Equal(t, 12*time.Second, cfg.LoginTimeout)
	require.Equal(t, []string{"sqlite", "odbc"}, cfg.SupportedDrivers)
}

func TestLoadGeneratesKey(t *testing.T) {
	t.Setenv("ODBCREF_KEY", "short")
	envFile := filepath.Join(t.TempDir(), ".env")

	cfg, err := LoadFrom(envFile)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(cfg.Key), 32)

	data, err := os.ReadFile(envFile)
	require.NoError(t, err)
	require.Contains(t, string(data), "ODBCREF_KEY="+cfg.Key)
}

func TestSaveKeyToUTF16EnvFile(t *testing.T) {
	envFile := filepath.Join(t.TempDir(), ".env")

	u16 := utf16.Encode([]rune("PORT=9000\r\nODBCREF_KEY=old\r\n"))
	content := []byte{0xff, 0xfe}
	for _, u := range u16 {
		content = binary.LittleEndian.AppendUint16(content, u)
	}
	require.NoError(t, os.WriteFile(envFile, content, 0600))

	require.NoError(t, saveKeyToEnv(envFile, testKey))

	data, err := os.ReadFile(envFile)
	require.NoError(t, err)
	require.Equal(t, "PORT=9000\nODBCREF_KEY="+testKey+"\n", string(data))
	require.False(t, strings.Contains(string(data), "\x00"))
}
