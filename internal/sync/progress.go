package sync

// Phase describes the current import phase.
type Phase string

const (
	PhaseIdle        Phase = "idle"
	PhaseDiscovering Phase = "discovering"
	PhaseImporting   Phase = "importing"
	PhaseDone        Phase = "done"
)

// Progress reports import progress to listeners.
type Progress struct {
	Phase           Phase `json:"phase"`
	FilesTotal      int   `json:"files_total"`
	FilesDone       int   `json:"files_done"`
	RecordsImported int   `json:"records_imported"`
}

// Percent returns the import progress as a percentage (0-100).
func (p Progress) Percent() float64 {
	if p.FilesTotal == 0 {
		return 0
	}
	return float64(p.FilesDone) / float64(p.FilesTotal) * 100
}

// ProgressFunc is called with progress updates during import.
type ProgressFunc func(Progress)

// SyncStats summarizes a full import run.
//
// TotalFiles counts discovered export files. Imported counts
// files whose contents were written to the database. Skipped
// counts files left alone because their mtime was unchanged.
// Failed counts files with read or parse errors.
type SyncStats struct {
	TotalFiles int      `json:"total_files"`
	Imported   int      `json:"imported"`
	Skipped    int      `json:"skipped"`
	Failed     int      `json:"failed"`
	Records    int      `json:"records"`
	Warnings   []string `json:"warnings,omitempty"`
}

// RecordSkip increments the skipped file counter.
func (s *SyncStats) RecordSkip() {
	s.Skipped++
}

// RecordImported notes a written file carrying n records.
func (s *SyncStats) RecordImported(n int) {
	s.Imported++
	s.Records += n
}

// RecordFailed increments the hard-failure counter.
func (s *SyncStats) RecordFailed() {
	s.Failed++
}
