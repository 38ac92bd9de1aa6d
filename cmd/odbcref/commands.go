package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"
	"golang.org/x/term"

	"odbcref/internal/core"
	"odbcref/internal/logger"
	"odbcref/internal/script"
	"odbcref/internal/service"
)

// intList collects repeated integer flags such as -enable 2 -enable 3.
type intList []int

func (l *intList) String() string { return fmt.Sprint(*l) }

func (l *intList) Set(s string) error {
	n, err := strconv.Atoi(s)
	if err != nil {
		return err
	}
	*l = append(*l, n)
	return nil
}

// paramMap collects repeated -param name=value flags.
type paramMap map[string]any

func (m paramMap) String() string { return fmt.Sprint(map[string]any(m)) }

func (m paramMap) Set(s string) error {
	k, v, ok := strings.Cut(s, "=")
	if !ok || k == "" {
		return fmt.Errorf("expected name=value, got %q", s)
	}
	m[k] = v
	return nil
}

// targetFlags are shared by run and exec.
type targetFlags struct {
	dsn, driver, profile string
}

func (t *targetFlags) register(fs *flag.FlagSet, cfgDSN, cfgDriver string) {
	fs.StringVar(&t.dsn, "dsn", cfgDSN, "ODBC connection string, e.g. 'dsn=rebol-firebird'")
	fs.StringVar(&t.driver, "driver", cfgDriver, "database/sql driver (odbc, mssql, mysql, postgres, sqlite)")
	fs.StringVar(&t.profile, "profile", "", "stored profile name (overrides -dsn and -driver)")
}

func (t *targetFlags) check(a *app) error {
	if t.profile == "" && !a.cfg.Supports(t.driver) {
		return fmt.Errorf("unsupported driver: %s", t.driver)
	}
	return nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt)
}

func handleRun(args []string) int {
	a := setup()
	defer a.Close()

	fs := flag.NewFlagSet("run", flag.ExitOnError)
	var (
		target  targetFlags
		enable  intList
		disable intList
		params  = paramMap{}
	)
	target.register(fs, a.cfg.DSN, a.cfg.Driver)
	scriptFile := fs.String("script", "", "script file (default: the built-in reference script)")
	saved := fs.String("saved", "", "name of a saved script")
	verify := fs.Bool("verify", false, "check that created tables exist afterwards")
	fs.Var(&enable, "enable", "enable statement n (1-based, repeatable)")
	fs.Var(&disable, "disable", "disable statement n (1-based, repeatable)")
	fs.Var(params, "param", "bind {name} placeholders: name=value (repeatable)")
	fs.Parse(args)

	if err := target.check(a); err != nil {
		fmt.Println(err)
		return 1
	}

	var (
		s   *core.Script
		err error
	)
	if *saved != "" {
		s, err = loadSaved(a, *saved)
	} else {
		s, err = loadScript(*scriptFile)
	}
	if err != nil {
		fmt.Printf("Failed to read script: %v\n", err)
		return 1
	}
	for _, n := range enable {
		if err := script.Toggle(s, n, true); err != nil {
			fmt.Println(err)
			return 1
		}
	}
	for _, n := range disable {
		if err := script.Toggle(s, n, false); err != nil {
			fmt.Println(err)
			return 1
		}
	}

	ctx, cancel := signalContext()
	defer cancel()

	run, err := a.runner.Run(ctx, service.RunRequest{
		Profile: target.profile,
		Driver:  target.driver,
		DSN:     target.dsn,
		Script:  s,
		Params:  params,
		Verify:  *verify,
	})
	printRun(run)
	if err != nil {
		fmt.Printf("Run failed: %v\n", err)
		return 1
	}
	return 0
}

func loadScript(path string) (*core.Script, error) {
	if path == "" {
		return script.Default(), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return script.Parse(f)
}

func loadSaved(a *app, name string) (*core.Script, error) {
	saved, err := a.scripts.GetBySlug(core.Slugify(name))
	if err != nil {
		return nil, err
	}
	return script.Parse(strings.NewReader(saved.Body))
}

func handleExec(args []string) int {
	a := setup()
	defer a.Close()
	logger.Discard()

	fs := flag.NewFlagSet("exec", flag.ExitOnError)
	var target targetFlags
	target.register(fs, a.cfg.DSN, a.cfg.Driver)
	limit := fs.Int("limit", 100, "maximum rows to print (0 for all)")
	readOnly := fs.Bool("readonly", false, "refuse statements that are not queries")
	rollback := fs.Bool("rollback", false, "run inside a transaction and roll it back")
	fs.Parse(args)

	sqlText := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if sqlText == "" {
		fmt.Println("Usage: odbcref exec [-dsn s] [-driver d] [-profile p] [-limit n] [-readonly] [-rollback] <sql>")
		return 1
	}
	if err := target.check(a); err != nil {
		fmt.Println(err)
		return 1
	}

	ctx, cancel := signalContext()
	defer cancel()

	conn, err := a.runner.Connect(ctx, service.RunRequest{Profile: target.profile, Driver: target.driver, DSN: target.dsn})
	if err != nil {
		fmt.Println(err)
		return 1
	}
	defer conn.Close()

	if *readOnly || *rollback {
		if err := conn.SetMode(ctx, !*readOnly, !*rollback); err != nil {
			fmt.Println(err)
			return 1
		}
	}

	cur, err := conn.Cursor(ctx)
	if err != nil {
		fmt.Println(err)
		return 1
	}
	defer cur.Close()

	res, err := cur.Execute(ctx, sqlText)
	if err != nil {
		fmt.Println(err)
		return 1
	}

	var rows [][]any
	if len(res.Columns) > 0 {
		if rows, err = cur.Fetch(ctx, *limit); err != nil {
			fmt.Println(err)
			return 1
		}
	}

	if *rollback {
		cur.Close()
		if err := conn.Rollback(); err != nil {
			fmt.Println(err)
			return 1
		}
		defer fmt.Println("Transaction rolled back.")
	}

	if len(res.Columns) == 0 {
		fmt.Printf("OK, %d row(s) affected\n", res.RowsAffected)
		return 0
	}

	table := newTable(res.Columns)
	for _, row := range rows {
		cells := make([]string, len(row))
		for i, v := range row {
			if v == nil {
				cells[i] = "NULL"
			} else {
				cells[i] = fmt.Sprint(v)
			}
		}
		table.Append(cells)
	}
	table.Render()
	fmt.Printf("%d row(s)\n", len(rows))
	return 0
}

// handleColumns describes a table through the catalog, the same lookup
// run -verify uses.
func handleColumns(args []string) int {
	a := setup()
	defer a.Close()
	logger.Discard()

	fs := flag.NewFlagSet("columns", flag.ExitOnError)
	var target targetFlags
	target.register(fs, a.cfg.DSN, a.cfg.Driver)
	fs.Parse(args)

	if fs.NArg() != 1 {
		fmt.Println("Usage: odbcref columns [-dsn s] [-driver d] [-profile p] <table>")
		return 1
	}
	if err := target.check(a); err != nil {
		fmt.Println(err)
		return 1
	}

	ctx, cancel := signalContext()
	defer cancel()

	conn, err := a.runner.Connect(ctx, service.RunRequest{Profile: target.profile, Driver: target.driver, DSN: target.dsn})
	if err != nil {
		fmt.Println(err)
		return 1
	}
	defer conn.Close()

	cols, err := service.Columns(ctx, conn, fs.Arg(0))
	if err != nil {
		fmt.Println(err)
		return 1
	}

	table := newTable([]string{"Column", "Type", "Nullable"})
	for _, c := range cols {
		nullable := "NO"
		if c.Nullable {
			nullable = "YES"
		}
		table.Append([]string{c.Name, c.Type, nullable})
	}
	table.Render()
	return 0
}

func handleProfile(args []string) int {
	if len(args) == 0 {
		fmt.Println("Usage: odbcref profile add|list|remove")
		return 1
	}

	a := setup()
	defer a.Close()

	switch args[0] {
	case "add":
		return profileAdd(a, args[1:])
	case "list":
		return profileList(a)
	case "remove":
		return profileRemove(a, args[1:])
	default:
		fmt.Printf("Unknown profile command: %s\n", args[0])
		return 1
	}
}

func profileAdd(a *app, args []string) int {
	fs := flag.NewFlagSet("profile add", flag.ExitOnError)
	name := fs.String("name", "", "profile name")
	driver := fs.String("driver", "odbc", "database/sql driver")
	inactive := fs.Bool("inactive", false, "store the profile disabled")
	fs.Parse(args)

	slug := core.Slugify(*name)
	if slug == "" {
		fmt.Println("Usage: odbcref profile add -name <name> -driver <driver>")
		return 1
	}
	if !a.cfg.Supports(*driver) {
		fmt.Printf("unsupported driver: %s\n", *driver)
		return 1
	}

	connStr, err := readConnectionString()
	if err != nil {
		fmt.Printf("Failed to read connection string: %v\n", err)
		return 1
	}
	if connStr == "" {
		fmt.Println("Connection string cannot be empty.")
		return 1
	}

	enc, err := a.crypto.Encrypt(connStr)
	if err != nil {
		fmt.Printf("Failed to encrypt connection string: %v\n", err)
		return 1
	}

	p := &core.Profile{Name: slug, Driver: *driver, ConnectionStringEnc: enc, IsActive: !*inactive}
	existing, err := a.profiles.GetByName(slug)
	switch {
	case err == nil:
		p.ID = existing.ID
		err = a.profiles.Update(p)
	case errors.Is(err, core.ErrNotFound):
		err = a.profiles.Create(p)
	}
	if err != nil {
		fmt.Printf("Failed to save profile: %v\n", err)
		return 1
	}

	fmt.Printf("Profile '%s' saved.\n", slug)
	return 0
}

// readConnectionString prompts without echo on a terminal, since connection
// strings usually carry a password, and reads one line otherwise.
func readConnectionString() (string, error) {
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		fmt.Print("Connection string: ")
		b, err := term.ReadPassword(fd)
		fmt.Println()
		return strings.TrimSpace(string(b)), err
	}

	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func profileList(a *app) int {
	profiles, err := a.profiles.GetAll()
	if err != nil {
		fmt.Printf("Failed to list profiles: %v\n", err)
		return 1
	}

	table := newTable([]string{"Name", "Driver", "Active"})
	for _, p := range profiles {
		table.Append([]string{p.Name, p.Driver, strconv.FormatBool(p.IsActive)})
	}
	table.Render()
	return 0
}

func profileRemove(a *app, args []string) int {
	fs := flag.NewFlagSet("profile remove", flag.ExitOnError)
	name := fs.String("name", "", "profile name")
	fs.Parse(args)

	p, err := a.profiles.GetByName(core.Slugify(*name))
	if err != nil {
		fmt.Println(err)
		return 1
	}
	if err := a.profiles.Delete(p.ID); err != nil {
		fmt.Printf("Failed to remove profile: %v\n", err)
		return 1
	}
	fmt.Printf("Profile '%s' removed.\n", p.Name)
	return 0
}

func handleHistory(args []string) int {
	fs := flag.NewFlagSet("history", flag.ExitOnError)
	limit := fs.Int("limit", 20, "number of runs to show")
	fs.Parse(args)

	a := setup()
	defer a.Close()

	runs, err := a.runs.GetRecent(*limit)
	if err != nil {
		fmt.Printf("Failed to read history: %v\n", err)
		return 1
	}

	table := newTable([]string{"ID", "When", "Driver", "Data source", "Status", "Duration", "Error"})
	for _, r := range runs {
		table.Append([]string{
			strconv.FormatInt(r.ID, 10),
			humanize.Time(r.StartedAt),
			r.Driver,
			r.DataSource,
			r.Status,
			formatMs(r.DurationMs),
			r.Error,
		})
	}
	table.Render()
	return 0
}

func handleShow(args []string) int {
	fs := flag.NewFlagSet("show", flag.ExitOnError)
	id := fs.Int64("id", 0, "run id")
	fs.Parse(args)

	a := setup()
	defer a.Close()

	run, err := a.runs.GetByID(*id)
	if err != nil {
		fmt.Println(err)
		return 1
	}
	printRun(run)
	return 0
}

func printRun(run *core.Run) {
	if run == nil {
		return
	}
	fmt.Printf("Run %d: %s against %s (%s), %s, %s\n",
		run.ID, run.Status, run.DataSource, run.Driver,
		humanize.Time(run.StartedAt), formatMs(run.DurationMs))
	if len(run.Statements) == 0 {
		return
	}

	table := newTable([]string{"#", "Statement", "Status", "Rows", "Duration", "Error"})
	for _, st := range run.Statements {
		rows := ""
		if st.RowsAffected >= 0 {
			rows = strconv.FormatInt(st.RowsAffected, 10)
		}
		table.Append([]string{
			strconv.Itoa(st.Position),
			st.SQL,
			st.Status,
			rows,
			formatMs(st.DurationMs),
			st.Error,
		})
	}
	table.Render()
}

func handleApiKey(args []string) int {
	if len(args) == 0 {
		fmt.Println("Usage: odbcref apikey create|list|revoke")
		return 1
	}

	a := setup()
	defer a.Close()

	switch args[0] {
	case "create":
		fs := flag.NewFlagSet("apikey create", flag.ExitOnError)
		desc := fs.String("desc", "", "description")
		fs.Parse(args[1:])

		plain, key, err := service.NewAuthService(a.apiKeys).GenerateApiKey(*desc)
		if err != nil {
			fmt.Printf("Failed to create API key: %v\n", err)
			return 1
		}
		fmt.Printf("API key %d created. It will not be shown again:\n%s\n", key.ID, plain)
		return 0
	case "list":
		keys, err := a.apiKeys.List()
		if err != nil {
			fmt.Printf("Failed to list API keys: %v\n", err)
			return 1
		}
		table := newTable([]string{"ID", "Prefix", "Description", "Active", "Last used"})
		for _, k := range keys {
			lastUsed := "never"
			if k.LastUsedAt != nil {
				lastUsed = humanize.Time(*k.LastUsedAt)
			}
			table.Append([]string{strconv.FormatInt(k.ID, 10), k.KeyPrefix, k.Description, strconv.FormatBool(k.IsActive), lastUsed})
		}
		table.Render()
		return 0
	case "revoke":
		fs := flag.NewFlagSet("apikey revoke", flag.ExitOnError)
		id := fs.Int64("id", 0, "API key ID")
		fs.Parse(args[1:])

		if *id == 0 {
			fmt.Println("Usage: odbcref apikey revoke -id <id>")
			return 1
		}
		if err := a.apiKeys.Revoke(*id); err != nil {
			fmt.Printf("Failed to revoke API key: %v\n", err)
			return 1
		}
		fmt.Printf("API key %d revoked.\n", *id)
		return 0
	default:
		fmt.Printf("Unknown apikey command: %s\n", args[0])
		return 1
	}
}

func handleScript(args []string) int {
	if len(args) == 0 {
		if err := script.Format(os.Stdout, script.Default()); err != nil {
			fmt.Println(err)
			return 1
		}
		return 0
	}

	a := setup()
	defer a.Close()

	switch args[0] {
	case "save":
		return scriptSave(a, args[1:])
	case "list":
		return scriptList(a)
	case "show":
		fs := flag.NewFlagSet("script show", flag.ExitOnError)
		name := fs.String("name", "", "script name")
		fs.Parse(args[1:])

		saved, err := a.scripts.GetBySlug(core.Slugify(*name))
		if err != nil {
			fmt.Println(err)
			return 1
		}
		fmt.Print(saved.Body)
		return 0
	default:
		fmt.Printf("Unknown script command: %s\n", args[0])
		return 1
	}
}

// scriptSave stores the file as written, so commented-out statements survive
// and can be toggled on later runs.
func scriptSave(a *app, args []string) int {
	fs := flag.NewFlagSet("script save", flag.ExitOnError)
	name := fs.String("name", "", "script name")
	desc := fs.String("desc", "", "description")
	file := fs.String("file", "", "script file to save")
	fs.Parse(args)

	slug := core.Slugify(*name)
	if slug == "" || *file == "" {
		fmt.Println("Usage: odbcref script save -name <name> -file <file> [-desc s]")
		return 1
	}

	body, err := os.ReadFile(*file)
	if err != nil {
		fmt.Printf("Failed to read script: %v\n", err)
		return 1
	}
	s, err := script.Parse(strings.NewReader(string(body)))
	if err != nil {
		fmt.Printf("Invalid script: %v\n", err)
		return 1
	}

	saved := &core.SavedScript{Slug: slug, Description: *desc, Body: string(body)}
	existing, err := a.scripts.GetBySlug(slug)
	switch {
	case err == nil:
		saved.ID = existing.ID
		err = a.scripts.Update(saved)
	case errors.Is(err, core.ErrNotFound):
		err = a.scripts.Create(saved)
	}
	if err != nil {
		fmt.Printf("Failed to save script: %v\n", err)
		return 1
	}

	fmt.Printf("Script '%s' saved (%d statements, %d enabled).\n", slug, len(s.Statements), len(s.Enabled()))
	return 0
}

func scriptList(a *app) int {
	scripts, err := a.scripts.GetAll()
	if err != nil {
		fmt.Printf("Failed to list scripts: %v\n", err)
		return 1
	}

	table := newTable([]string{"Name", "Description", "Updated"})
	for _, s := range scripts {
		table.Append([]string{s.Slug, s.Description, humanize.Time(s.UpdatedAt)})
	}
	table.Render()
	return 0
}

func newTable(header []string) *tablewriter.Table {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader(header)
	table.SetAutoWrapText(false)
	return table
}

func formatMs(ms int64) string {
	return (time.Duration(ms) * time.Millisecond).String()
}
