package sync

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/axeelhrz/clinicview/internal/parser"
)

// kindForName maps an export file name to its record kind.
// Accepted names are sessions/patients/alerts with a .json or
// .jsonl extension. Anything else is not an export file.
func kindForName(name string) (parser.Kind, bool) {
	stem := name
	switch {
	case strings.HasSuffix(name, ".jsonl"):
		stem = strings.TrimSuffix(name, ".jsonl")
	case strings.HasSuffix(name, ".json"):
		stem = strings.TrimSuffix(name, ".json")
	default:
		return "", false
	}
	switch stem {
	case "sessions":
		return parser.KindSessions, true
	case "patients":
		return parser.KindPatients, true
	case "alerts":
		return parser.KindAlerts, true
	}
	return "", false
}

// DiscoverExports walks the records root, where each
// subdirectory is one center, and returns every export file
// found. Hidden directories and non-export files are ignored.
// Returns files sorted by path for deterministic import order.
func DiscoverExports(root string) []parser.ExportFile {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil
	}

	var files []parser.ExportFile
	for _, entry := range entries {
		if !entry.IsDir() ||
			strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		center := entry.Name()
		centerDir := filepath.Join(root, center)

		exports, err := os.ReadDir(centerDir)
		if err != nil {
			continue
		}
		for _, f := range exports {
			if f.IsDir() {
				continue
			}
			kind, ok := kindForName(f.Name())
			if !ok {
				continue
			}
			files = append(files, parser.ExportFile{
				Path:   filepath.Join(centerDir, f.Name()),
				Center: center,
				Kind:   kind,
			})
		}
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].Path < files[j].Path
	})
	return files
}

// classifyPath maps a changed filesystem path to an ExportFile,
// rejecting paths outside the records root or not matching the
// <root>/<center>/<kind>.json(l) layout.
func classifyPath(root, path string) (parser.ExportFile, bool) {
	rel, ok := isUnder(root, path)
	if !ok {
		return parser.ExportFile{}, false
	}
	parts := strings.Split(rel, string(filepath.Separator))
	if len(parts) != 2 {
		return parser.ExportFile{}, false
	}
	center := parts[0]
	if center == "" || strings.HasPrefix(center, ".") {
		return parser.ExportFile{}, false
	}
	kind, ok := kindForName(parts[1])
	if !ok {
		return parser.ExportFile{}, false
	}
	return parser.ExportFile{
		Path:   filepath.Clean(path),
		Center: center,
		Kind:   kind,
	}, true
}

// isUnder checks whether path is strictly inside dir after
// cleaning both paths. Returns the relative path on success.
func isUnder(dir, path string) (string, bool) {
	dir = filepath.Clean(dir)
	path = filepath.Clean(path)
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return "", false
	}
	sep := string(filepath.Separator)
	if rel == "." || rel == ".." ||
		strings.HasPrefix(rel, ".."+sep) {
		return "", false
	}
	return rel, true
}
