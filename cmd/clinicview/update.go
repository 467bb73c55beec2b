package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/axeelhrz/clinicview/internal/config"
	"github.com/axeelhrz/clinicview/internal/update"
)

func runUpdate(args []string) {
	fs := flag.NewFlagSet("update", flag.ExitOnError)
	check := fs.Bool("check", false,
		"Check for updates without installing")
	yes := fs.Bool("yes", false,
		"Install without confirmation prompt")
	force := fs.Bool("force", false,
		"Force check (ignore cache)")
	fs.Usage = func() {
		fmt.Fprintln(fs.Output(),
			"Usage: clinicview update [flags]")
		fmt.Fprintln(fs.Output(), "\nFlags:")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		log.Fatalf("parsing flags: %v", err)
	}

	cfg, err := config.LoadMinimal()
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	info, err := update.Check(version, *force, cfg.DataDir)
	if err != nil {
		log.Fatalf("checking for updates: %v", err)
	}

	if info == nil {
		fmt.Printf("clinicview %s is up to date.\n", version)
		return
	}

	fmt.Printf(
		"Update available: %s -> %s",
		info.CurrentVersion, info.LatestVersion,
	)
	if info.Size > 0 {
		fmt.Printf(" (%s)", update.FormatSize(info.Size))
	}
	fmt.Println()
	if *check {
		return
	}

	if !*yes {
		if !confirm(os.Stdin, os.Stdout, "Install update?") {
			fmt.Println("Update cancelled.")
			return
		}
	}

	progressFn := func(downloaded, total int64) {
		if total > 0 {
			pct := float64(downloaded) / float64(total) * 100
			fmt.Printf(
				"\r  %s / %s (%.0f%%)",
				update.FormatSize(downloaded),
				update.FormatSize(total),
				pct,
			)
		}
	}

	if err := update.Install(info, progressFn); err != nil {
		fmt.Println()
		log.Fatalf("update failed: %v", err)
	}
	fmt.Printf(
		"\nUpdated to %s. Restart clinicview to use the new"+
			" version.\n",
		info.LatestVersion,
	)
}
