package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"odbcref/internal/api"
	"odbcref/internal/config"
	"odbcref/internal/data"
	"odbcref/internal/logger"
	"odbcref/internal/service"

	// Drivers
	_ "github.com/alexbrainman/odbc"
	_ "github.com/denisenkom/go-mssqldb"
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

func main() {
	if len(os.Args) < 2 {
		// No subcommand: run the reference script against the configured DSN
		os.Exit(handleRun(nil))
	}

	args := os.Args[2:]
	var code int
	switch os.Args[1] {
	case "run":
		code = handleRun(args)
	case "exec":
		code = handleExec(args)
	case "columns":
		code = handleColumns(args)
	case "profile":
		code = handleProfile(args)
	case "history":
		code = handleHistory(args)
	case "show":
		code = handleShow(args)
	case "apikey":
		code = handleApiKey(args)
	case "script":
		code = handleScript(args)
	case "serve":
		code = startServer()
	case "help", "--help", "-h":
		printHelp()
	default:
		fmt.Printf("Unknown command: %s\n", os.Args[1])
		printHelp()
		code = 1
	}
	os.Exit(code)
}

func printHelp() {
	fmt.Println("odbcref - ODBC comparison reference")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  odbcref                                   Run the reference script against ODBCREF_DSN")
	fmt.Println("  odbcref run [-dsn s] [-driver d] [-profile p] [-script file | -saved name]")
	fmt.Println("              [-enable n] [-disable n] [-param k=v] [-verify]")
	fmt.Println("                                            Run a comparison script")
	fmt.Println("  odbcref exec [-dsn s] [-driver d] [-profile p] [-limit n]")
	fmt.Println("               [-readonly] [-rollback] <sql>")
	fmt.Println("                                            Execute one statement and print its rows")
	fmt.Println("  odbcref columns [-profile p] <table>      Describe a table through the catalog")
	fmt.Println("  odbcref profile add -name n -driver d     Store a data source (connection string prompted)")
	fmt.Println("  odbcref profile list                      List stored data sources")
	fmt.Println("  odbcref profile remove -name n            Remove a stored data source")
	fmt.Println("  odbcref history [-limit n]                Show recent runs")
	fmt.Println("  odbcref show -id n                        Show one run with its statements")
	fmt.Println("  odbcref apikey create [-desc s]           Create an API key for the HTTP bridge")
	fmt.Println("  odbcref apikey list                       List API keys")
	fmt.Println("  odbcref apikey revoke -id n               Revoke an API key")
	fmt.Println("  odbcref script                            Print the default script")
	fmt.Println("  odbcref script save -name n -file f       Save a script for later runs")
	fmt.Println("  odbcref script list                       List saved scripts")
	fmt.Println("  odbcref script show -name n               Print a saved script")
	fmt.Println("  odbcref serve                             Start the HTTP bridge")
	fmt.Println("  odbcref help                              Show this help")
}

type app struct {
	cfg      *config.Config
	db       *sql.DB
	profiles *data.ProfileRepo
	scripts  *data.ScriptRepo
	runs     *data.RunRepo
	apiKeys  *data.ApiKeyRepo
	crypto   *service.EncryptionService
	runner   *service.Runner
}

// setup loads config and opens the history database. Failures are fatal.
func setup() *app {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\nCheck .env file or ODBCREF_KEY environment variable.\n", err)
		os.Exit(1)
	}

	db, err := data.InitDB(data.DefaultPath())
	if err != nil {
		fmt.Printf("Failed to init database: %v\n", err)
		os.Exit(1)
	}

	cryptoSvc, err := service.NewEncryptionService(cfg.Key)
	if err != nil {
		fmt.Printf("Failed to init crypto service: %v\n", err)
		os.Exit(1)
	}

	a := &app{
		cfg:      cfg,
		db:       db,
		profiles: data.NewProfileRepo(db),
		scripts:  data.NewScriptRepo(db),
		runs:     data.NewRunRepo(db),
		apiKeys:  data.NewApiKeyRepo(db),
		crypto:   cryptoSvc,
	}
	a.runner = service.NewRunner(a.profiles, a.runs, cryptoSvc, cfg.LoginTimeout)
	return a
}

func (a *app) Close() {
	a.db.Close()
}

func startServer() int {
	if err := logger.Init("logs"); err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		return 1
	}
	logger.Info.Println("Starting odbcref bridge...")

	a := setup()
	defer a.Close()

	authSvc := service.NewAuthService(a.apiKeys)
	handler := api.NewHandler(a.runner, a.profiles, a.scripts, a.runs, authSvc, a.cfg.Supports, a.cfg.AllowRawDSN)

	limiter := api.NewRateLimiter(30, 5) // each run opens a data source connection
	defer limiter.Stop()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Port),
		Handler:           api.NewRouter(handler, limiter),
		ReadHeaderTimeout: 10 * time.Second,
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		logger.Info.Printf("Server listening on port %d", a.cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		logger.Error.Printf("Server startup failed: %v", err)
		return 1
	case <-stop:
	}
	logger.Info.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error.Printf("Server shutdown error: %v", err)
		return 1
	}
	logger.Info.Println("Server stopped")
	return 0
}
