package main

import (
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/exec"
	"runtime"
	"time"
	_ "time/tzdata"

	"github.com/google/shlex"

	"github.com/axeelhrz/clinicview/internal/config"
	"github.com/axeelhrz/clinicview/internal/db"
	"github.com/axeelhrz/clinicview/internal/server"
	"github.com/axeelhrz/clinicview/internal/sync"
)

var (
	version   = "dev"
	commit    = "unknown"
	buildDate = ""
)

const (
	periodicSyncInterval = 15 * time.Minute
	watcherDebounce      = 500 * time.Millisecond
	browserPollInterval  = 100 * time.Millisecond
	browserPollAttempts  = 60
)

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "prune":
			runPrune(os.Args[2:])
			return
		case "update":
			runUpdate(os.Args[2:])
			return
		case "serve":
			runServe(os.Args[2:])
			return
		case "version", "--version", "-v":
			fmt.Printf("clinicview %s (commit %s, built %s)\n",
				version, commit, buildDate)
			return
		case "help", "--help", "-h":
			printUsage()
			return
		}
	}

	runServe(os.Args[1:])
}

func printUsage() {
	fmt.Printf(`clinicview %s - clinical practice dashboard server

Imports center record exports (sessions, patients, alerts) into
SQLite and serves dashboard metrics over a local REST API.

Usage:
  clinicview [flags]          Start the server (default command)
  clinicview serve [flags]    Start the server (explicit)
  clinicview prune [flags]    Delete old sessions for a center
  clinicview update [flags]   Check for and install updates
  clinicview version          Show version information
  clinicview help             Show this help

Server flags:
  -host string        Host to bind to (default "127.0.0.1")
  -port int           Port to listen on (default 8080)
  -records-dir string Directory of center record exports
  -center string      Default center for dashboard queries
  -no-browser         Don't open browser on startup

Prune flags:
  -center string      Center whose sessions to prune (required)
  -before string      Sessions dated before this day (YYYY-MM-DD)
  -dry-run            Show what would be pruned without deleting
  -yes                Skip confirmation prompt

Update flags:
  -check              Check for updates without installing
  -yes                Install without confirmation prompt
  -force              Force check (ignore cache)

Environment variables:
  CLINICVIEW_RECORDS_DIR     Record exports directory
  CLINICVIEW_DATA_DIR        Data directory (database, config)
  CLINICVIEW_HOST            Host to bind to
  CLINICVIEW_PORT            Port to listen on
  CLINICVIEW_DEFAULT_CENTER  Default center for queries

Data is stored in ~/.clinicview/ by default.
`, version)
}

func runServe(args []string) {
	cfg := mustLoadConfig(args)

	database, err := db.Open(cfg.DBPath)
	if err != nil {
		log.Fatalf("opening database: %v", err)
	}
	defer database.Close()

	engine := sync.NewEngine(database, cfg.RecordsDir)

	runInitialSync(engine)

	stopWatcher := startFileWatcher(cfg, engine)
	defer stopWatcher()

	go startPeriodicSync(engine)

	port := server.FindAvailablePort(cfg.Host, cfg.Port)
	if port != cfg.Port {
		fmt.Printf("Port %d in use, using %d\n", cfg.Port, port)
	}
	cfg.Port = port

	srv := server.New(cfg, database, engine,
		server.WithVersion(server.VersionInfo{
			Version:   version,
			Commit:    commit,
			BuildDate: buildDate,
		}),
	)

	url := fmt.Sprintf("http://%s:%d", cfg.Host, cfg.Port)
	fmt.Printf("clinicview %s listening at %s\n", version, url)

	if !cfg.NoBrowser {
		go openBrowser(url)
	}

	if err := srv.ListenAndServe(); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func mustLoadConfig(args []string) config.Config {
	fs := flag.NewFlagSet("clinicview", flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(),
			"Usage: clinicview [serve] [flags]\n\nFlags:\n")
		fs.PrintDefaults()
	}
	config.RegisterServeFlags(fs)
	if err := fs.Parse(args); err != nil {
		log.Fatalf("parsing flags: %v", err)
	}

	cfg, err := config.Load(fs)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		log.Fatalf("creating data dir: %v", err)
	}
	if err := os.MkdirAll(cfg.RecordsDir, 0o755); err != nil {
		log.Fatalf("creating records dir: %v", err)
	}
	return cfg
}

func runInitialSync(engine *sync.Engine) {
	fmt.Println("Running initial sync...")
	stats := engine.SyncAll(printSyncProgress)
	fmt.Printf(
		"\nSync complete: %d files (%d imported, %d skipped,"+
			" %d records)\n",
		stats.TotalFiles, stats.Imported, stats.Skipped,
		stats.Records,
	)
	for _, w := range stats.Warnings {
		log.Printf("warning: %s", w)
	}
}

func printSyncProgress(p sync.Progress) {
	if p.FilesTotal > 0 {
		fmt.Printf(
			"\r  %d/%d files (%.0f%%), %d records",
			p.FilesDone, p.FilesTotal,
			p.Percent(), p.RecordsImported,
		)
	}
}

func startFileWatcher(
	cfg config.Config, engine *sync.Engine,
) func() {
	onChange := func(paths []string) {
		engine.SyncPaths(paths)
	}
	watcher, err := sync.NewWatcher(watcherDebounce, onChange)
	if err != nil {
		log.Printf("warning: file watcher unavailable: %v", err)
		return func() {}
	}

	if _, err := os.Stat(cfg.RecordsDir); err == nil {
		if _, unwatched, err := watcher.WatchRecursive(
			cfg.RecordsDir,
		); err != nil || unwatched > 0 {
			log.Printf(
				"warning: some directories not watched"+
					" (unwatched=%d, err=%v)",
				unwatched, err,
			)
		}
	}
	watcher.Start()
	return watcher.Stop
}

func startPeriodicSync(engine *sync.Engine) {
	ticker := time.NewTicker(periodicSyncInterval)
	defer ticker.Stop()
	for range ticker.C {
		log.Println("Running scheduled sync...")
		engine.SyncAll(nil)
	}
}

func openBrowser(url string) {
	for i := 0; i < browserPollAttempts; i++ {
		time.Sleep(browserPollInterval)
		resp, err := http.Get(url + "/api/v1/stats")
		if err == nil {
			resp.Body.Close()
			break
		}
	}

	argv, err := browserCommand(url)
	if err != nil {
		log.Printf("warning: %v", err)
		return
	}
	if len(argv) == 0 {
		return
	}
	_ = exec.Command(argv[0], argv[1:]...).Run()
}

// browserCommand builds the argv used to open url. $BROWSER
// wins when set and may carry its own flags; otherwise the
// platform opener is used. An empty argv means no opener exists
// for this platform.
func browserCommand(url string) ([]string, error) {
	if b := os.Getenv("BROWSER"); b != "" {
		argv, err := shlex.Split(b)
		if err != nil {
			return nil, fmt.Errorf("parsing $BROWSER: %w", err)
		}
		if len(argv) == 0 {
			return nil, fmt.Errorf("$BROWSER is blank")
		}
		return append(argv, url), nil
	}

	switch runtime.GOOS {
	case "darwin":
		return []string{"open", url}, nil
	case "linux":
		return []string{"xdg-open", url}, nil
	case "windows":
		return []string{
			"rundll32", "url.dll,FileProtocolHandler", url,
		}, nil
	default:
		return nil, nil
	}
}
