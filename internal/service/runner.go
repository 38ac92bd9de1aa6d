package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"odbcref/internal/core"
	"odbcref/internal/logger"
	"odbcref/internal/script"
)

var secretPattern = regexp.MustCompile(`(?i)\b(pwd|password)=[^;]*`)

// RunRequest selects a data source and the script to run against it. When
// Profile is set, Driver and DSN are ignored.
type RunRequest struct {
	Profile string
	Driver  string
	DSN     string
	Script  *core.Script
	Params  map[string]any
	Verify  bool
}

// Runner executes comparison scripts and records every run in the history.
type Runner struct {
	profileRepo  core.ProfileRepository
	runRepo      core.RunRepository
	cryptoSvc    *EncryptionService
	parser       *core.SQLParser
	loginTimeout time.Duration
}

func NewRunner(profileRepo core.ProfileRepository, runRepo core.RunRepository, cryptoSvc *EncryptionService, loginTimeout time.Duration) *Runner {
	return &Runner{
		profileRepo:  profileRepo,
		runRepo:      runRepo,
		cryptoSvc:    cryptoSvc,
		parser:       core.NewSQLParser(),
		loginTimeout: loginTimeout,
	}
}

// Run connects, acquires a cursor, and executes the enabled statements in
// order, stopping at the first failure. The returned run is non-nil even when
// err is set; driver errors are wrapped, never replaced.
func (r *Runner) Run(ctx context.Context, req RunRequest) (run *core.Run, err error) {
	run = &core.Run{
		StartedAt:  time.Now(),
		Driver:     req.Driver,
		DataSource: RedactDSN(req.DSN),
	}
	if id, ok := ctx.Value(core.ContextKeyApiKeyID).(int64); ok {
		run.ApiKeyID = &id
	}

	defer func() {
		run.DurationMs = time.Since(run.StartedAt).Milliseconds()
		run.Status = core.StatusSuccess
		if err != nil {
			run.Status = core.StatusError
			run.Error = err.Error()
		}
		if cerr := r.runRepo.Create(run); cerr != nil {
			logger.Error.Printf("Failed to record run: %v", cerr)
		}
		logger.Info.Printf("Run %d against %s (%s): %s in %dms", run.ID, run.DataSource, run.Driver, run.Status, run.DurationMs)
	}()

	if req.Script == nil {
		return run, errors.New("no script to run")
	}

	driver, dsn, err := r.resolve(req, run)
	if err != nil {
		return run, err
	}

	conn, err := Open(ctx, driver, dsn, r.loginTimeout)
	if err != nil {
		return run, err
	}
	defer conn.Close()

	cur, err := conn.Cursor(ctx)
	if err != nil {
		return run, err
	}
	defer cur.Close()

	for i, st := range req.Script.Statements {
		if !st.Enabled {
			continue
		}
		res, err := r.execute(ctx, cur, i+1, st.SQL, req.Params)
		run.Statements = append(run.Statements, res)
		if err != nil {
			return run, fmt.Errorf("statement %d: %w", i+1, err)
		}
	}

	if req.Verify {
		if err := VerifyTables(ctx, conn, script.CreatedTables(req.Script)); err != nil {
			return run, err
		}
	}
	return run, nil
}

// Connect opens the data source a request names without running a script.
func (r *Runner) Connect(ctx context.Context, req RunRequest) (*Connection, error) {
	driver, dsn, err := r.resolve(req, &core.Run{})
	if err != nil {
		return nil, err
	}
	return Open(ctx, driver, dsn, r.loginTimeout)
}

func (r *Runner) resolve(req RunRequest, run *core.Run) (driver, dsn string, err error) {
	if req.Profile == "" {
		if req.Driver == "" || req.DSN == "" {
			return "", "", errors.New("a profile or a driver and data source is required")
		}
		return req.Driver, req.DSN, nil
	}

	run.DataSource = core.Slugify(req.Profile)
	p, err := r.profileRepo.GetByName(run.DataSource)
	if err != nil {
		return "", "", err
	}
	run.ProfileID = p.ID
	run.Driver = p.Driver
	if !p.IsActive {
		return "", "", fmt.Errorf("profile %q: %w", p.Name, core.ErrInactive)
	}

	dsn, err = r.cryptoSvc.Decrypt(p.ConnectionStringEnc)
	if err != nil {
		return "", "", fmt.Errorf("failed to decrypt connection string: %w", err)
	}
	return p.Driver, dsn, nil
}

func (r *Runner) execute(ctx context.Context, cur *Cursor, position int, sqlText string, params map[string]any) (core.StatementResult, error) {
	start := time.Now()
	res := core.StatementResult{Position: position, SQL: sqlText, Status: core.StatusSuccess}

	err := func() error {
		parsed := r.parser.Parse(sqlText)
		args, err := r.parser.MapValues(parsed.ParamNames, params, parsed.Defaults)
		if err != nil {
			return err
		}
		out, err := cur.Execute(ctx, parsed.SQL, args...)
		if err != nil {
			return err
		}
		res.RowsAffected = out.RowsAffected
		return nil
	}()

	res.DurationMs = time.Since(start).Milliseconds()
	if err != nil {
		res.Status = core.StatusError
		res.Error = err.Error()
	}
	return res, err
}

// RedactDSN hides password values in a connection string.
func RedactDSN(dsn string) string {
	return secretPattern.ReplaceAllString(dsn, "${1}=***")
}
