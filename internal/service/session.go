package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"odbcref/internal/core"
)

var (
	ErrReadOnly = errors.New("connection is read-only")
	ErrNoResult = errors.New("no result set")
)

var (
	queryStatement  = regexp.MustCompile(`(?i)^(select|with|values|pragma|show|explain|describe|desc)\b`)
	dataChange      = regexp.MustCompile(`(?i)\b(insert|update|delete|merge|create|drop|alter|truncate)\b`)
	leadingComments = regexp.MustCompile(`^\s*(?:(?:--[^\n]*|(?s:/\*.*?\*/))\s*)*`)
)

// readOnlyTx lists the drivers that accept sql.TxOptions.ReadOnly. odbc only
// implements Begin, and mssql rejects the option.
var readOnlyTx = map[string]bool{
	"postgres": true,
	"mysql":    true,
	"sqlite":   true,
}

// isQuery reports whether sqlText returns rows, judged by its first keyword
// after any comments. A WITH that changes data counts as a statement. This is
// a best-effort guess: read-only mode refuses whatever it does not recognise
// as a query, and the driver only enforces read-only access inside a
// transaction on drivers listed in readOnlyTx.
func isQuery(sqlText string) bool {
	text := sqlText[len(leadingComments.FindString(sqlText)):]
	m := queryStatement.FindStringSubmatch(text)
	if m == nil {
		return false
	}
	return !strings.EqualFold(m[1], "with") || !dataChange.MatchString(text)
}

type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	PrepareContext(ctx context.Context, query string) (*sql.Stmt, error)
}

// Connection is one open data source. It pins a single *sql.Conn so that
// transactions and cursors all run on the same driver connection.
type Connection struct {
	driver string

	mu         sync.Mutex
	db         *sql.DB
	conn       *sql.Conn
	tx         *sql.Tx
	readOnly   bool
	autocommit bool
	cursors    map[*Cursor]struct{}
	closed     bool
}

// Open connects to dsn with the named database/sql driver. The login timeout
// bounds both the dial and the initial ping. Drivers such as odbc ignore the
// context while connecting, so the wait is abandoned on timeout and the late
// connection is closed whenever it arrives.
func Open(ctx context.Context, driver, dsn string, loginTimeout time.Duration) (*Connection, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open data source (%s): %w", driver, err)
	}
	db.SetMaxOpenConns(1)

	if loginTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, loginTimeout)
		defer cancel()
	}

	type dialResult struct {
		conn *sql.Conn
		err  error
	}
	done := make(chan dialResult, 1)
	go func() {
		conn, err := db.Conn(ctx)
		if err != nil {
			done <- dialResult{err: fmt.Errorf("failed to connect (%s): %w", driver, err)}
			return
		}
		if err := conn.PingContext(ctx); err != nil {
			conn.Close()
			done <- dialResult{err: fmt.Errorf("failed to ping data source (%s): %w", driver, err)}
			return
		}
		done <- dialResult{conn: conn}
	}()

	var res dialResult
	select {
	case res = <-done:
	case <-ctx.Done():
		go func() {
			if late := <-done; late.conn != nil {
				late.conn.Close()
			}
			db.Close()
		}()
		return nil, fmt.Errorf("failed to connect (%s): %w", driver, ctx.Err())
	}
	if res.err != nil {
		db.Close()
		return nil, res.err
	}

	return &Connection{
		driver:     driver,
		db:         db,
		conn:       res.conn,
		autocommit: true,
		cursors:    make(map[*Cursor]struct{}),
	}, nil
}

func (c *Connection) Driver() string { return c.driver }

// Cursor allocates a statement handle on the connection.
func (c *Connection) Cursor(ctx context.Context) (*Cursor, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, fmt.Errorf("cursor: %w", core.ErrClosed)
	}
	cur := &Cursor{conn: c}
	c.cursors[cur] = struct{}{}
	return cur, nil
}

// SetMode sets the access mode and autocommit. With autocommit off a
// transaction is begun on the next statement and lasts until Commit or
// Rollback; turning autocommit back on commits it.
func (c *Connection) SetMode(ctx context.Context, readWrite, autocommit bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return fmt.Errorf("set mode: %w", core.ErrClosed)
	}
	if c.tx != nil && (autocommit || c.readOnly == readWrite) {
		if err := c.endTx(true); err != nil {
			return err
		}
	}
	c.readOnly = !readWrite
	c.autocommit = autocommit
	return nil
}

func (c *Connection) Commit() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.endTx(true)
}

func (c *Connection) Rollback() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.endTx(false)
}

// endTx must be called with c.mu held. Without an open transaction it is a
// no-op.
func (c *Connection) endTx(commit bool) error {
	if c.tx == nil {
		return nil
	}
	tx := c.tx
	c.tx = nil
	if commit {
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit: %w", err)
		}
		return nil
	}
	if err := tx.Rollback(); err != nil {
		return fmt.Errorf("rollback: %w", err)
	}
	return nil
}

// queryer returns the handle statements should run on, beginning a
// transaction first when autocommit is off.
func (c *Connection) queryer(ctx context.Context) (queryer, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, core.ErrClosed
	}
	if c.autocommit {
		return c.conn, nil
	}
	if c.tx == nil {
		tx, err := c.conn.BeginTx(ctx, &sql.TxOptions{ReadOnly: c.readOnly && readOnlyTx[c.driver]})
		if err != nil {
			return nil, fmt.Errorf("begin transaction: %w", err)
		}
		c.tx = tx
	}
	return c.tx, nil
}

func (c *Connection) isReadOnly() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.readOnly
}

// Close rolls back any open transaction and releases every cursor and the
// driver connection. Closing twice is a no-op.
func (c *Connection) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	cursors := c.cursors
	c.cursors = nil
	c.mu.Unlock()

	for cur := range cursors {
		cur.release()
	}

	c.mu.Lock()
	txErr := c.endTx(false)
	c.mu.Unlock()
	return errors.Join(txErr, c.conn.Close(), c.db.Close())
}

// Result describes an executed statement. Columns is set when the statement
// produced a result set; RowsAffected is -1 when the driver cannot report it.
type Result struct {
	Columns      []string
	RowsAffected int64
}

// Cursor executes statements and fetches their rows. A cursor is not safe for
// concurrent use.
type Cursor struct {
	conn *Connection

	sqlText string
	stmt    *sql.Stmt
	stmtOn  queryer
	rows    *sql.Rows
	closed  bool
}

// Execute runs sqlText with positional args. The prepared statement is kept
// and reused while the same text is executed again.
func (c *Cursor) Execute(ctx context.Context, sqlText string, args ...any) (*Result, error) {
	if c.closed {
		return nil, fmt.Errorf("execute: %w", core.ErrClosed)
	}
	c.closeRows()

	query := isQuery(sqlText)
	if !query && c.conn.isReadOnly() {
		return nil, fmt.Errorf("execute: %w", ErrReadOnly)
	}

	q, err := c.conn.queryer(ctx)
	if err != nil {
		return nil, fmt.Errorf("execute: %w", err)
	}

	if c.stmt == nil || c.sqlText != sqlText || c.stmtOn != q {
		c.closeStmt()
		stmt, err := q.PrepareContext(ctx, sqlText)
		if err != nil {
			return nil, fmt.Errorf("prepare: %w", err)
		}
		c.stmt, c.sqlText, c.stmtOn = stmt, sqlText, q
	}

	if query {
		rows, err := c.stmt.QueryContext(ctx, args...)
		if err != nil {
			return nil, fmt.Errorf("execution error: %w", err)
		}
		columns, err := rows.Columns()
		if err != nil {
			rows.Close()
			return nil, err
		}
		c.rows = rows
		return &Result{Columns: columns, RowsAffected: -1}, nil
	}

	res, err := c.stmt.ExecContext(ctx, args...)
	if err != nil {
		return nil, fmt.Errorf("execution error: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		affected = -1
	}
	return &Result{RowsAffected: affected}, nil
}

// Fetch returns up to limit rows of the current result set, or all remaining
// rows when limit <= 0. Byte slices are returned as strings.
func (c *Cursor) Fetch(ctx context.Context, limit int) ([][]any, error) {
	if c.closed {
		return nil, fmt.Errorf("fetch: %w", core.ErrClosed)
	}
	if c.rows == nil {
		return nil, ErrNoResult
	}

	columns, err := c.rows.Columns()
	if err != nil {
		return nil, err
	}

	var out [][]any
	for limit <= 0 || len(out) < limit {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		if !c.rows.Next() {
			err := c.rows.Err()
			c.closeRows()
			return out, err
		}

		values := make([]any, len(columns))
		valuePtrs := make([]any, len(columns))
		for i := range columns {
			valuePtrs[i] = &values[i]
		}
		if err := c.rows.Scan(valuePtrs...); err != nil {
			return out, err
		}
		for i, v := range values {
			if b, ok := v.([]byte); ok {
				values[i] = string(b)
			}
		}
		out = append(out, values)
	}
	return out, nil
}

// Close releases the statement handle. Closing twice is a no-op.
func (c *Cursor) Close() error {
	if c.closed {
		return nil
	}
	c.conn.mu.Lock()
	delete(c.conn.cursors, c)
	c.conn.mu.Unlock()
	return c.release()
}

func (c *Cursor) release() error {
	if c.closed {
		return nil
	}
	c.closed = true
	return errors.Join(c.closeRows(), c.closeStmt())
}

func (c *Cursor) closeRows() error {
	if c.rows == nil {
		return nil
	}
	err := c.rows.Close()
	c.rows = nil
	return err
}

func (c *Cursor) closeStmt() error {
	if c.stmt == nil {
		return nil
	}
	err := c.stmt.Close()
	c.stmt, c.sqlText, c.stmtOn = nil, "", nil
	return err
}
