package sync

import (
	"os"
	"path/filepath"
	"slices"
	"sync"
	"testing"
	"time"
)

func startTestWatcher(
	t *testing.T, onChange func([]string),
) (*Watcher, string) {
	t.Helper()
	dir := t.TempDir()
	w, err := NewWatcher(50*time.Millisecond, onChange)
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	if _, _, err := w.WatchRecursive(dir); err != nil {
		t.Fatalf("WatchRecursive: %v", err)
	}
	w.Start()
	t.Cleanup(w.Stop)
	return w, dir
}

func waitWithTimeout(
	t *testing.T, ch <-chan struct{},
	timeout time.Duration, msg string,
) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(timeout):
		t.Fatal(msg)
	}
}

func TestWatcher_RequiresCallback(t *testing.T) {
	if _, err := NewWatcher(time.Second, nil); err == nil {
		t.Fatal("expected error for nil callback")
	}
}

func TestWatcher_DebouncesBurst(t *testing.T) {
	var mu sync.Mutex
	var got []string
	fired := make(chan struct{}, 1)

	_, dir := startTestWatcher(t, func(paths []string) {
		mu.Lock()
		got = append(got, paths...)
		mu.Unlock()
		select {
		case fired <- struct{}{}:
		default:
		}
	})

	a := filepath.Join(dir, "sessions.jsonl")
	b := filepath.Join(dir, "patients.json")
	for _, p := range []string{a, b} {
		if err := os.WriteFile(p, []byte("{}"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	waitWithTimeout(t, fired, 3*time.Second, "onChange never fired")

	// Both writes settle into one batch or two; the union must
	// cover both paths exactly once each after the debounce.
	deadline := time.Now().Add(2 * time.Second)
	for {
		mu.Lock()
		done := slices.Contains(got, a) && slices.Contains(got, b)
		mu.Unlock()
		if done || time.Now().After(deadline) {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}

	mu.Lock()
	defer mu.Unlock()
	if !slices.Contains(got, a) || !slices.Contains(got, b) {
		t.Fatalf("changed paths = %v, want %s and %s", got, a, b)
	}
}

func TestWatcher_WatchesNewCenterDirs(t *testing.T) {
	fired := make(chan struct{}, 1)
	var mu sync.Mutex
	var got []string

	_, dir := startTestWatcher(t, func(paths []string) {
		mu.Lock()
		got = append(got, paths...)
		mu.Unlock()
		select {
		case fired <- struct{}{}:
		default:
		}
	})

	// A center directory created after Start is picked up and
	// its files generate events.
	centerDir := filepath.Join(dir, "center9")
	if err := os.Mkdir(centerDir, 0o755); err != nil {
		t.Fatal(err)
	}
	time.Sleep(200 * time.Millisecond)

	file := filepath.Join(centerDir, "alerts.json")
	if err := os.WriteFile(file, []byte("[]"), 0o644); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for {
		mu.Lock()
		done := slices.Contains(got, file)
		mu.Unlock()
		if done {
			return
		}
		if time.Now().After(deadline) {
			mu.Lock()
			defer mu.Unlock()
			t.Fatalf("changed paths = %v, want %s", got, file)
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestWatcher_IgnoresNonExportFiles(t *testing.T) {
	var mu sync.Mutex
	var got []string
	fired := make(chan struct{}, 1)

	_, dir := startTestWatcher(t, func(paths []string) {
		mu.Lock()
		got = append(got, paths...)
		mu.Unlock()
		select {
		case fired <- struct{}{}:
		default:
		}
	})

	// Noise first: temp files, sidecars, and unrelated JSON.
	for _, name := range []string{
		"sessions.jsonl.tmp", ".sessions.jsonl.swp",
		"notes.txt", "config.json",
	} {
		p := filepath.Join(dir, name)
		if err := os.WriteFile(p, []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	// Then a real export file, which must be the only trigger.
	export := filepath.Join(dir, "sessions.jsonl")
	if err := os.WriteFile(export, []byte("{}"), 0o644); err != nil {
		t.Fatal(err)
	}

	waitWithTimeout(t, fired, 3*time.Second, "onChange never fired")

	mu.Lock()
	defer mu.Unlock()
	if !slices.Contains(got, export) {
		t.Fatalf("changed paths = %v, want %s", got, export)
	}
	for _, p := range got {
		if p != export {
			t.Errorf("non-export path triggered sync: %s", p)
		}
	}
}

func TestWatcher_StopIsIdempotent(t *testing.T) {
	w, _ := startTestWatcher(t, func([]string) {})
	w.Stop()
	w.Stop()
}
