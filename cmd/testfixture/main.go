// Command testfixture writes a demo record-export tree for
// manual testing: a few centers with sessions, patients, and
// alerts spread over recent months. Point clinicview's
// -records-dir at the output to browse realistic data.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/axeelhrz/clinicview/internal/testrecords"
)

type centerSpec struct {
	name     string
	patients int
	sessions int
	alerts   int
}

var specs = []centerSpec{
	{"centro-valencia", 8, 40, 3},
	{"centro-madrid", 15, 90, 6},
	{"centro-sevilla", 3, 12, 1},
}

var (
	sessionTypes  = []string{"individual", "pareja", "familiar", "online"}
	tones         = []string{"calm", "anxious", "depressed", "hopeful", "neutral"}
	risks         = []string{"low", "low", "low", "medium", "high"}
	motives       = []string{"anxiety", "depression", "couples therapy", "grief", ""}
	alertTypes    = []string{"risk", "follow_up", "medication"}
	alertUrgency  = []string{"low", "medium", "high"}
	alertStatuses = []string{"activa", "activa", "resuelta", "descartada"}
)

func main() {
	out := flag.String("out", "", "output records directory")
	flag.Parse()
	if *out == "" {
		fmt.Fprintln(os.Stderr, "usage: testfixture -out <dir>")
		os.Exit(1)
	}

	base := time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC)

	for _, spec := range specs {
		if err := writeCenter(*out, spec, base); err != nil {
			log.Fatalf("writing center %s: %v", spec.name, err)
		}
		fmt.Printf(
			"  %s: %d sessions, %d patients, %d alerts\n",
			spec.name, spec.sessions, spec.patients, spec.alerts,
		)
	}

	fmt.Printf("Fixture exports written to %s\n", *out)
}

func writeCenter(
	root string, spec centerSpec, base time.Time,
) error {
	dir := filepath.Join(root, spec.name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	sessions := make([]string, 0, spec.sessions)
	for i := 0; i < spec.sessions; i++ {
		day := base.AddDate(0, 0, -(i * 2)).Format("2006-01-02")
		status := "completed"
		if i%7 == 0 {
			status = "cancelled"
		}
		tone, risk := "", ""
		if i%3 != 0 {
			tone = tones[i%len(tones)]
			risk = risks[i%len(risks)]
		}
		sessions = append(sessions, testrecords.SessionJSON(
			fmt.Sprintf("%s-s%03d", spec.name, i),
			fmt.Sprintf("%s-p%02d", spec.name, i%spec.patients),
			fmt.Sprintf("dr%d", i%3),
			day, sessionTypes[i%len(sessionTypes)], status,
			tone, risk,
		))
	}

	patients := make([]string, 0, spec.patients)
	for i := 0; i < spec.patients; i++ {
		status := "active"
		if i%5 == 4 {
			status = "inactive"
		}
		created := base.AddDate(0, -(i % 6), -i)
		patients = append(patients, testrecords.PatientJSON(
			fmt.Sprintf("%s-p%02d", spec.name, i),
			status, tones[i%len(tones)],
			motives[i%len(motives)],
			testrecords.StoreTimestamp(created.Unix()),
		))
	}

	alerts := make([]string, 0, spec.alerts)
	for i := 0; i < spec.alerts; i++ {
		created := base.AddDate(0, 0, -(i * 5))
		alerts = append(alerts, testrecords.AlertJSON(
			fmt.Sprintf("%s-a%02d", spec.name, i),
			fmt.Sprintf("%s-p%02d", spec.name, i%spec.patients),
			alertTypes[i%len(alertTypes)],
			alertUrgency[i%len(alertUrgency)],
			alertStatuses[i%len(alertStatuses)],
			created.Format(time.RFC3339),
		))
	}

	files := map[string]string{
		"sessions.jsonl": testrecords.JoinJSONL(sessions...),
		"patients.json":  testrecords.ArrayJSON(patients...),
		"alerts.json":    testrecords.ArrayJSON(alerts...),
	}
	for name, content := range files {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(
			path, []byte(content), 0o644,
		); err != nil {
			return err
		}
	}
	return nil
}
