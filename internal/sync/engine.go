package sync

import (
	"database/sql"
	"fmt"
	"log"
	"maps"
	"os"
	"runtime"
	gosync "sync"
	"sync/atomic"
	"time"

	"github.com/axeelhrz/clinicview/internal/db"
	"github.com/axeelhrz/clinicview/internal/metrics"
	"github.com/axeelhrz/clinicview/internal/parser"
)

const maxWorkers = 8

// Engine orchestrates export file discovery and import.
//
// Each export file is an authoritative snapshot of one record
// collection for one center, so a changed file replaces that
// collection wholesale. The generation counter increments on
// every import that wrote to the database; readers key derived
// results on it to know when a recompute is needed.
type Engine struct {
	db         *db.DB
	recordsDir string
	syncMu     gosync.Mutex // serializes full import runs
	mu         gosync.RWMutex
	lastSync   time.Time
	lastStats  SyncStats
	generation atomic.Uint64
	// fileCache tracks the mtime at which each export file was
	// last handled, whether the import succeeded or the file
	// failed to parse. A file is re-read only when its mtime
	// changes.
	cacheMu   gosync.RWMutex
	fileCache map[string]int64
}

// NewEngine creates an import engine. It pre-populates the
// in-memory file cache from the database so that files handled
// in a prior run are not re-read on startup.
func NewEngine(database *db.DB, recordsDir string) *Engine {
	fileCache := make(map[string]int64)
	if loaded, err := database.LoadImportSkips(); err == nil {
		fileCache = loaded
	} else {
		log.Printf("loading import cache: %v", err)
	}

	return &Engine{
		db:         database,
		recordsDir: recordsDir,
		fileCache:  fileCache,
	}
}

// LastSync returns the time of the last completed import.
func (e *Engine) LastSync() time.Time {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.lastSync
}

// LastSyncStats returns statistics from the last import.
func (e *Engine) LastSyncStats() SyncStats {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.lastStats
}

// Generation returns the current data generation. It changes
// exactly when an import writes records to the database.
func (e *Engine) Generation() uint64 {
	return e.generation.Load()
}

// SyncAll discovers and imports every export file under the
// records root.
func (e *Engine) SyncAll(onProgress ProgressFunc) SyncStats {
	e.syncMu.Lock()
	defer e.syncMu.Unlock()
	return e.syncFiles(DiscoverExports(e.recordsDir), onProgress)
}

// SyncPaths imports only the specified changed file paths.
// Paths that don't match the export layout are silently
// ignored.
func (e *Engine) SyncPaths(paths []string) {
	var files []parser.ExportFile
	for _, p := range paths {
		if f, ok := classifyPath(e.recordsDir, p); ok {
			files = append(files, f)
		}
	}
	if len(files) == 0 {
		return
	}

	e.syncMu.Lock()
	defer e.syncMu.Unlock()
	stats := e.syncFiles(files, nil)
	if stats.Imported > 0 {
		log.Printf("sync: %d file(s) imported", stats.Imported)
	}
}

// ResyncAll clears the file cache so the subsequent import
// re-reads every export file. Used when parser fixes require
// re-processing without deleting the database.
func (e *Engine) ResyncAll(onProgress ProgressFunc) SyncStats {
	e.syncMu.Lock()
	defer e.syncMu.Unlock()

	e.cacheMu.Lock()
	e.fileCache = make(map[string]int64)
	e.cacheMu.Unlock()
	if err := e.db.ReplaceImportSkips(
		map[string]int64{},
	); err != nil {
		log.Printf("resync: clear import cache: %v", err)
	}

	return e.syncFiles(DiscoverExports(e.recordsDir), onProgress)
}

type importJob struct {
	importResult
	file parser.ExportFile
}

type importResult struct {
	sessions []metrics.Session
	patients []metrics.Patient
	alerts   []metrics.Alert
	skip     bool
	mtime    int64
	err      error
}

func (e *Engine) syncFiles(
	files []parser.ExportFile, onProgress ProgressFunc,
) SyncStats {
	t0 := time.Now()
	verbose := onProgress == nil

	if onProgress != nil {
		onProgress(Progress{
			Phase:      PhaseImporting,
			FilesTotal: len(files),
		})
	}

	results := e.startWorkers(files)
	stats := e.collectAndWrite(results, len(files), onProgress)
	e.persistFileCache()

	if stats.Imported > 0 {
		e.generation.Add(1)
	}
	if verbose && len(files) > 0 {
		log.Printf(
			"import: %d imported, %d skipped, %d failed in %s",
			stats.Imported, stats.Skipped, stats.Failed,
			time.Since(t0).Round(time.Millisecond),
		)
	}

	e.mu.Lock()
	e.lastSync = time.Now()
	e.lastStats = stats
	e.mu.Unlock()
	return stats
}

// startWorkers fans out file parsing across a worker pool and
// returns a channel of results. Database writes stay on the
// collecting goroutine.
func (e *Engine) startWorkers(
	files []parser.ExportFile,
) <-chan importJob {
	workers := min(max(runtime.NumCPU(), 2), maxWorkers)

	jobs := make(chan parser.ExportFile, len(files))
	results := make(chan importJob, len(files))

	for i := 0; i < workers; i++ {
		go func() {
			for file := range jobs {
				results <- importJob{
					importResult: e.processFile(file),
					file:         file,
				}
			}
		}()
	}

	for _, f := range files {
		jobs <- f
	}
	close(jobs)
	return results
}

// collectAndWrite drains the results channel and writes each
// successfully parsed file to the database as a collection
// replacement.
func (e *Engine) collectAndWrite(
	results <-chan importJob, total int,
	onProgress ProgressFunc,
) SyncStats {
	var stats SyncStats
	stats.TotalFiles = total

	progress := Progress{
		Phase:      PhaseImporting,
		FilesTotal: total,
	}
	step := func() {
		progress.FilesDone++
		if onProgress != nil {
			onProgress(progress)
		}
	}

	for i := 0; i < total; i++ {
		r := <-results

		if r.err != nil {
			stats.RecordFailed()
			if r.mtime != 0 {
				e.cacheFile(r.file.Path, r.mtime)
			}
			log.Printf("import error: %v", r.err)
			step()
			continue
		}
		if r.skip {
			stats.RecordSkip()
			step()
			continue
		}

		n, err := e.writeFile(r.file, r.importResult)
		if err != nil {
			stats.RecordFailed()
			log.Printf(
				"import write %s: %v", r.file.Path, err,
			)
			step()
			continue
		}
		stats.RecordImported(n)
		progress.RecordsImported += n
		e.cacheFile(r.file.Path, r.mtime)
		step()
	}

	progress.Phase = PhaseDone
	if onProgress != nil {
		onProgress(progress)
	}
	return stats
}

func (e *Engine) processFile(
	file parser.ExportFile,
) importResult {
	info, err := os.Stat(file.Path)
	if err != nil {
		return importResult{
			err: fmt.Errorf("stat %s: %w", file.Path, err),
		}
	}
	mtime := info.ModTime().UnixNano()

	e.cacheMu.RLock()
	cachedMtime, cached := e.fileCache[file.Path]
	e.cacheMu.RUnlock()
	if cached && cachedMtime == mtime {
		return importResult{skip: true, mtime: mtime}
	}

	res := importResult{mtime: mtime}
	switch file.Kind {
	case parser.KindSessions:
		res.sessions, res.err = parser.ParseSessions(file.Path)
	case parser.KindPatients:
		res.patients, res.err = parser.ParsePatients(file.Path)
	case parser.KindAlerts:
		res.alerts, res.err = parser.ParseAlerts(file.Path)
	default:
		res.err = fmt.Errorf(
			"unknown export kind: %s", file.Kind,
		)
	}
	return res
}

// writeFile replaces one center's collection with the parsed
// file contents. Returns the number of records written.
func (e *Engine) writeFile(
	file parser.ExportFile, r importResult,
) (int, error) {
	var n int
	err := e.db.Update(func(tx *sql.Tx) error {
		switch file.Kind {
		case parser.KindSessions:
			n = len(r.sessions)
			return db.ReplaceSessions(
				tx, file.Center, r.sessions,
			)
		case parser.KindPatients:
			n = len(r.patients)
			return db.ReplacePatients(
				tx, file.Center, r.patients,
			)
		case parser.KindAlerts:
			n = len(r.alerts)
			return db.ReplaceAlerts(
				tx, file.Center, r.alerts,
			)
		}
		return fmt.Errorf("unknown export kind: %s", file.Kind)
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}

// cacheFile records the mtime at which a file was handled.
func (e *Engine) cacheFile(path string, mtime int64) {
	e.cacheMu.Lock()
	e.fileCache[path] = mtime
	e.cacheMu.Unlock()
}

// persistFileCache writes the in-memory file cache to the
// database so handled files survive process restarts.
func (e *Engine) persistFileCache() {
	e.cacheMu.RLock()
	snapshot := make(map[string]int64, len(e.fileCache))
	maps.Copy(snapshot, e.fileCache)
	e.cacheMu.RUnlock()

	if err := e.db.ReplaceImportSkips(snapshot); err != nil {
		log.Printf("persisting import cache: %v", err)
	}
}
