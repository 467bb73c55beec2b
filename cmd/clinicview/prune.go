package main

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/axeelhrz/clinicview/internal/config"
	"github.com/axeelhrz/clinicview/internal/db"
)

// PruneConfig holds parsed CLI options for the prune command.
type PruneConfig struct {
	Center string
	Before string
	DryRun bool
	Yes    bool
}

func parsePruneFlags(args []string) (PruneConfig, error) {
	fs := flag.NewFlagSet("prune", flag.ContinueOnError)
	center := fs.String(
		"center", "",
		"Center whose sessions to prune",
	)
	before := fs.String(
		"before", "",
		"Sessions dated before this day (YYYY-MM-DD)",
	)
	dryRun := fs.Bool(
		"dry-run", false,
		"Show what would be pruned without deleting",
	)
	yes := fs.Bool(
		"yes", false,
		"Skip confirmation prompt",
	)

	if err := fs.Parse(args); err != nil {
		return PruneConfig{}, err
	}

	if *center == "" {
		return PruneConfig{}, fmt.Errorf(
			"--center is required",
		)
	}
	if *before == "" {
		return PruneConfig{}, fmt.Errorf(
			"--before is required",
		)
	}
	if _, err := time.Parse("2006-01-02", *before); err != nil {
		return PruneConfig{}, fmt.Errorf(
			"--before must be YYYY-MM-DD, got %q", *before,
		)
	}

	return PruneConfig{
		Center: *center,
		Before: *before,
		DryRun: *dryRun,
		Yes:    *yes,
	}, nil
}

// Pruner executes the prune workflow against a database.
type Pruner struct {
	DB  *db.DB
	Out io.Writer
	In  io.Reader
}

// Prune counts matching sessions, confirms, and deletes them.
func (p *Pruner) Prune(cfg PruneConfig) error {
	if cfg.Center == "" || cfg.Before == "" {
		return fmt.Errorf(
			"center and cutoff day are both required" +
				" (refusing to prune everything)",
		)
	}

	byMonth, total, err := p.DB.SessionCountsBefore(
		cfg.Center, cfg.Before,
	)
	if err != nil {
		return fmt.Errorf("counting sessions: %w", err)
	}

	if total == 0 {
		fmt.Fprintln(p.Out,
			"No sessions match the given filters.")
		return nil
	}

	writeSummary(p.Out, cfg.Center, total, byMonth)

	if cfg.DryRun {
		fmt.Fprintln(p.Out, "\nDry run: no changes made.")
		return nil
	}

	if !cfg.Yes {
		msg := fmt.Sprintf("\nDelete %d sessions?", total)
		if !confirm(p.In, p.Out, msg) {
			fmt.Fprintln(p.Out, "Aborted.")
			return nil
		}
	}

	deleted, err := p.DB.DeleteSessionsBefore(
		cfg.Center, cfg.Before,
	)
	if err != nil {
		return fmt.Errorf("deleting sessions: %w", err)
	}

	fmt.Fprintf(p.Out, "\nDeleted %d sessions.\n", deleted)
	return nil
}

func confirm(r io.Reader, w io.Writer, msg string) bool {
	fmt.Fprintf(w, "%s [y/N] ", msg)
	scanner := bufio.NewScanner(r)
	scanner.Scan()
	ans := strings.ToLower(strings.TrimSpace(scanner.Text()))
	return ans == "y" || ans == "yes"
}

func writeSummary(
	w io.Writer, center string, total int, byMonth map[string]int,
) {
	fmt.Fprintf(w,
		"Found %d sessions in %s\n", total, center,
	)

	months := make([]string, 0, len(byMonth))
	for m := range byMonth {
		months = append(months, m)
	}
	sort.Strings(months)

	fmt.Fprintln(w, "\nBy month:")
	for _, m := range months {
		fmt.Fprintf(w, "  %-10s %d\n", m, byMonth[m])
	}
}

func runPrune(args []string) {
	cfg, err := parsePruneFlags(args)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}

	appCfg, err := config.LoadMinimal()
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	database, err := db.Open(appCfg.DBPath)
	if err != nil {
		log.Fatalf("opening database: %v", err)
	}
	defer database.Close()

	pruner := &Pruner{
		DB:  database,
		Out: os.Stdout,
		In:  os.Stdin,
	}
	if err := pruner.Prune(cfg); err != nil {
		log.Fatalf("prune: %v", err)
	}
}
