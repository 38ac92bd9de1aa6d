package config

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	"unicode/utf16"

	"github.com/joho/godotenv"
)

const (
	DefaultDSN          = "dsn=rebol-firebird"
	DefaultDriver       = "odbc"
	DefaultPort         = 8080
	DefaultLoginTimeout = 5 * time.Second
)

type Config struct {
	DSN              string
	Driver           string
	Key              string
	Port             int
	LoginTimeout     time.Duration
	SupportedDrivers []string
	// AllowRawDSN lets HTTP callers name a driver and connection string
	// directly instead of a stored profile.
	AllowRawDSN bool
}

// Load reads .env from the working directory, then the environment.
func Load() (*Config, error) {
	return LoadFrom(".env")
}

// LoadFrom is Load with an explicit env file. A missing file is not an error.
func LoadFrom(envFile string) (*Config, error) {
	_ = godotenv.Load(envFile)

	key := os.Getenv("ODBCREF_KEY")
	if len(key) < 32 {
		fmt.Fprintln(os.Stderr, "ODBCREF_KEY not found or too short. Generating a new secure key...")
		newKey, err := generateRandomKey(32)
		if err != nil {
			return nil, fmt.Errorf("failed to generate key: %w", err)
		}

		if err := saveKeyToEnv(envFile, newKey); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: Failed to save generated key to %s: %v\n", envFile, err)
		} else {
			fmt.Fprintf(os.Stderr, "New ODBCREF_KEY saved to %s.\n", envFile)
		}
		os.Setenv("ODBCREF_KEY", newKey)
		key = newKey
	}

	cfg := &Config{
		DSN:              envOr("ODBCREF_DSN", DefaultDSN),
		Driver:           envOr("ODBCREF_DRIVER", DefaultDriver),
		Key:              key,
		Port:             DefaultPort,
		LoginTimeout:     DefaultLoginTimeout,
		SupportedDrivers: []string{"odbc", "mssql", "mysql", "postgres", "sqlite"},
	}

	if p, err := strconv.Atoi(os.Getenv("PORT")); err == nil && p > 0 {
		cfg.Port = p
	}
	if s, err := strconv.Atoi(os.Getenv("ODBCREF_LOGIN_TIMEOUT")); err == nil && s > 0 {
		cfg.LoginTimeout = time.Duration(s) * time.Second
	}
	if b, err := strconv.ParseBool(os.Getenv("ODBCREF_ALLOW_RAW_DSN")); err == nil {
		cfg.AllowRawDSN = b
	}
	if driversStr := os.Getenv("SUPPORTED_DRIVERS"); driversStr != "" {
		var drivers []string
		for _, d := range strings.Split(driversStr, ",") {
			if d = strings.TrimSpace(d); d != "" {
				drivers = append(drivers, d)
			}
		}
		cfg.SupportedDrivers = drivers
	}

	return cfg, nil
}

// Supports reports whether driver is in the configured driver list.
func (c *Config) Supports(driver string) bool {
	for _, d := range c.SupportedDrivers {
		if strings.EqualFold(d, driver) {
			return true
		}
	}
	return false
}

func envOr(name, def string) string {
	if v := strings.TrimSpace(os.Getenv(name)); v != "" {
		return v
	}
	return def
}

func generateRandomKey(length int) (string, error) {
	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(b), nil
}

func saveKeyToEnv(filename, key string) error {
	content, err := os.ReadFile(filename)
	if os.IsNotExist(err) {
		return os.WriteFile(filename, []byte(fmt.Sprintf("ODBCREF_KEY=%s\nODBCREF_DSN=%s\n", key, DefaultDSN)), 0600)
	} else if err != nil {
		return err
	}

	lines := strings.Split(decodeEnvFile(content), "\n")
	found := false
	newLines := []string{}

	for _, line := range lines {
		trimmed := strings.ReplaceAll(strings.TrimSpace(line), "\x00", "")
		switch {
		case strings.HasPrefix(trimmed, "ODBCREF_KEY="):
			newLines = append(newLines, fmt.Sprintf("ODBCREF_KEY=%s", key))
			found = true
		case trimmed != "":
			newLines = append(newLines, trimmed)
		}
	}

	if !found {
		newLines = append(newLines, fmt.Sprintf("ODBCREF_KEY=%s", key))
	}

	return os.WriteFile(filename, []byte(strings.Join(newLines, "\n")+"\n"), 0600)
}

// decodeEnvFile returns content as UTF-8. Windows editors often save .env as
// UTF-16LE, with or without a BOM; more than 30% NUL bytes is taken to mean
// the latter.
func decodeEnvFile(content []byte) string {
	hasBOM := len(content) >= 2 && content[0] == 0xff && content[1] == 0xfe

	nullCount := 0
	if !hasBOM && len(content) > 10 {
		for _, b := range content {
			if b == 0 {
				nullCount++
			}
		}
	}
	isImplicitUTF16 := !hasBOM && len(content) > 0 && float64(nullCount)/float64(len(content)) > 0.3

	if !hasBOM && !isImplicitUTF16 {
		return string(content)
	}

	data := content
	if hasBOM {
		data = content[2:]
	}
	if len(data)%2 != 0 {
		data = data[:len(data)-1]
	}

	u16s := make([]uint16, len(data)/2)
	for i := range u16s {
		u16s[i] = binary.LittleEndian.Uint16(data[i*2:])
	}
	return string(utf16.Decode(u16s))
}
