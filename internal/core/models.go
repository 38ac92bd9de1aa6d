package core

import (
	"errors"
	"time"
)

var (
	ErrNotFound = errors.New("not found")
	ErrInactive = errors.New("profile is inactive")
	ErrClosed   = errors.New("handle is closed")
)

type contextKey int

const (
	ContextKeyApiKeyID contextKey = iota
)

// Profile is a named data source the tool can connect to.
type Profile struct {
	ID                  int64  `json:"id"`
	Name                string `json:"name"`
	Driver              string `json:"driver"`
	ConnectionStringEnc string `json:"-"` // Encrypted
	IsActive            bool   `json:"is_active"`
}

type ApiKey struct {
	ID          int64      `json:"id"`
	KeyPrefix   string     `json:"key_prefix"`
	KeyHash     string     `json:"-"`
	Description string     `json:"description"`
	IsActive    bool       `json:"is_active"`
	LastUsedAt  *time.Time `json:"last_used_at"`
	CreatedAt   time.Time  `json:"created_at"`
}

// Statement is one line of a comparison script. Disabled statements are the
// commented-out ones: kept in the script but never sent to the driver.
type Statement struct {
	SQL     string `json:"sql"`
	Enabled bool   `json:"enabled"`
}

type Script struct {
	Statements []Statement `json:"statements"`
}

// Enabled returns the statements that will be executed, in order.
func (s *Script) Enabled() []Statement {
	var out []Statement
	for _, st := range s.Statements {
		if st.Enabled {
			out = append(out, st)
		}
	}
	return out
}

// SavedScript is a named script kept in its source form, comments included.
type SavedScript struct {
	ID          int64     `json:"id"`
	Slug        string    `json:"slug"`
	Description string    `json:"description"`
	Body        string    `json:"body"`
	UpdatedAt   time.Time `json:"updated_at"`
}

const (
	StatusSuccess = "SUCCESS"
	StatusError   = "ERROR"
)

// Run is one recorded execution of a script against a data source.
type Run struct {
	ID         int64             `json:"id"`
	StartedAt  time.Time         `json:"started_at"`
	ProfileID  int64             `json:"profile_id"`
	Driver     string            `json:"driver"`
	DataSource string            `json:"data_source"`
	DurationMs int64             `json:"duration_ms"`
	Status     string            `json:"status"`
	Error      string            `json:"error"`
	ApiKeyID   *int64            `json:"api_key_id,omitempty"`
	Statements []StatementResult `json:"statements,omitempty"`
}

type StatementResult struct {
	Position     int    `json:"position"`
	SQL          string `json:"sql"`
	RowsAffected int64  `json:"rows_affected"`
	DurationMs   int64  `json:"duration_ms"`
	Status       string `json:"status"`
	Error        string `json:"error"`
}

type ColumnInfo struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Nullable bool   `json:"nullable"`
}
