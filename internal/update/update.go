// Package update implements self-update from GitHub releases:
// version check with a local cache, checksum-verified download,
// and in-place binary replacement.
package update

import (
	"archive/tar"
	"archive/zip"
	"compress/gzip"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"golang.org/x/mod/semver"
)

const (
	releaseAPIURL = "https://api.github.com/repos/axeelhrz/clinicview/releases/latest"
	cacheFileName = "update_check.json"
	cacheDuration = 1 * time.Hour
	binaryName    = "clinicview"
)

// release is the subset of the GitHub release payload we need.
type release struct {
	TagName string `json:"tag_name"`
	Assets  []struct {
		Name               string `json:"name"`
		Size               int64  `json:"size"`
		BrowserDownloadURL string `json:"browser_download_url"`
	} `json:"assets"`
}

// Info describes an available update.
type Info struct {
	CurrentVersion string
	LatestVersion  string
	DownloadURL    string
	AssetName      string
	Size           int64
	Checksum       string
}

type cachedCheck struct {
	CheckedAt time.Time `json:"checked_at"`
	Version   string    `json:"version"`
}

// Check looks for a newer release. Returns nil when the current
// version is up to date. A recent cached "up to date" answer
// short-circuits the network call unless force is set.
func Check(
	currentVersion string, force bool, cacheDir string,
) (*Info, error) {
	if !semver.IsValid(normalize(currentVersion)) {
		return nil, fmt.Errorf(
			"dev build %q: cannot compare versions",
			currentVersion,
		)
	}

	if !force && upToDatePerCache(currentVersion, cacheDir) {
		return nil, nil
	}

	rel, err := fetchLatestRelease()
	if err != nil {
		return nil, fmt.Errorf("checking for updates: %w", err)
	}
	saveCache(rel.TagName, cacheDir)

	if semver.Compare(
		normalize(rel.TagName), normalize(currentVersion),
	) <= 0 {
		return nil, nil
	}

	assetName := platformAssetName(rel.TagName)
	var info *Info
	var checksumsURL string
	for _, a := range rel.Assets {
		switch a.Name {
		case assetName:
			info = &Info{
				CurrentVersion: currentVersion,
				LatestVersion:  rel.TagName,
				DownloadURL:    a.BrowserDownloadURL,
				AssetName:      a.Name,
				Size:           a.Size,
			}
		case "SHA256SUMS", "checksums.txt":
			checksumsURL = a.BrowserDownloadURL
		}
	}
	if info == nil {
		return nil, fmt.Errorf(
			"no release asset for %s/%s",
			runtime.GOOS, runtime.GOARCH,
		)
	}
	if checksumsURL != "" {
		info.Checksum, _ = fetchChecksum(checksumsURL, assetName)
	}
	return info, nil
}

// Install downloads the release archive, verifies its checksum,
// and replaces the running binary.
func Install(
	info *Info, progressFn func(downloaded, total int64),
) error {
	if info.Checksum == "" {
		return fmt.Errorf(
			"no checksum for %s: refusing unverified binary",
			info.AssetName,
		)
	}

	tempDir, err := os.MkdirTemp("", "clinicview-update-*")
	if err != nil {
		return fmt.Errorf("creating temp dir: %w", err)
	}
	defer os.RemoveAll(tempDir)

	archivePath := filepath.Join(tempDir, info.AssetName)
	gotChecksum, err := downloadFile(
		info.DownloadURL, archivePath, info.Size, progressFn,
	)
	if err != nil {
		return fmt.Errorf("downloading: %w", err)
	}
	if !strings.EqualFold(gotChecksum, info.Checksum) {
		return fmt.Errorf(
			"checksum mismatch: expected %s, got %s",
			info.Checksum, gotChecksum,
		)
	}

	extractDir := filepath.Join(tempDir, "extracted")
	if err := extractArchive(archivePath, extractDir); err != nil {
		return fmt.Errorf("extracting: %w", err)
	}

	name := binaryName
	if runtime.GOOS == "windows" {
		name += ".exe"
	}
	srcPath := filepath.Join(extractDir, name)
	if _, err := os.Stat(srcPath); err != nil {
		return fmt.Errorf("binary %s not found in archive", name)
	}

	currentExe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("finding current executable: %w", err)
	}
	currentExe, err = filepath.EvalSymlinks(currentExe)
	if err != nil {
		return fmt.Errorf("resolving symlinks: %w", err)
	}
	return replaceBinary(
		srcPath, filepath.Join(filepath.Dir(currentExe), name),
	)
}

// normalize renders a version string into the "vMAJOR.MINOR
// .PATCH" form the semver package compares.
func normalize(v string) string {
	return "v" + strings.TrimPrefix(v, "v")
}

func platformAssetName(tag string) string {
	ext := ".tar.gz"
	if runtime.GOOS == "windows" {
		ext = ".zip"
	}
	return fmt.Sprintf(
		"%s_%s_%s_%s%s",
		binaryName, strings.TrimPrefix(tag, "v"),
		runtime.GOOS, runtime.GOARCH, ext,
	)
}

func upToDatePerCache(currentVersion, cacheDir string) bool {
	data, err := os.ReadFile(
		filepath.Join(cacheDir, cacheFileName),
	)
	if err != nil {
		return false
	}
	var cached cachedCheck
	if err := json.Unmarshal(data, &cached); err != nil {
		return false
	}
	if time.Since(cached.CheckedAt) >= cacheDuration {
		return false
	}
	return semver.Compare(
		normalize(cached.Version), normalize(currentVersion),
	) <= 0
}

func saveCache(version, cacheDir string) {
	data, err := json.Marshal(cachedCheck{
		CheckedAt: time.Now(),
		Version:   version,
	})
	if err != nil {
		return
	}
	_ = os.MkdirAll(cacheDir, 0o755)
	_ = os.WriteFile(
		filepath.Join(cacheDir, cacheFileName), data, 0o600,
	)
}

func fetchLatestRelease() (*release, error) {
	req, err := http.NewRequest(http.MethodGet, releaseAPIURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/vnd.github.v3+json")
	req.Header.Set("User-Agent", "clinicview-update")

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf(
			"GitHub API returned %s", resp.Status,
		)
	}

	var rel release
	if err := json.NewDecoder(resp.Body).Decode(&rel); err != nil {
		return nil, err
	}
	return &rel, nil
}

// fetchChecksum downloads a SHA256SUMS-style file and returns
// the hex digest recorded for assetName.
func fetchChecksum(url, assetName string) (string, error) {
	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Get(url)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf(
			"fetching checksums: %s", resp.Status,
		)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	return parseChecksums(string(body), assetName), nil
}

// parseChecksums finds the digest for assetName in "sum name"
// lines. An asterisk prefix on the name (binary mode marker) is
// tolerated.
func parseChecksums(body, assetName string) string {
	for _, line := range strings.Split(body, "\n") {
		fields := strings.Fields(strings.TrimSpace(line))
		if len(fields) < 2 {
			continue
		}
		if strings.TrimPrefix(fields[1], "*") != assetName {
			continue
		}
		sum := strings.ToLower(fields[0])
		if len(sum) == 64 {
			return sum
		}
	}
	return ""
}

func downloadFile(
	url, dest string, totalSize int64,
	progressFn func(downloaded, total int64),
) (string, error) {
	resp, err := http.Get(url)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("download failed: %s", resp.Status)
	}

	out, err := os.Create(dest)
	if err != nil {
		return "", err
	}
	defer out.Close()

	hasher := sha256.New()
	reader := io.TeeReader(resp.Body, hasher)

	var downloaded int64
	buf := make([]byte, 32*1024)
	for {
		n, readErr := reader.Read(buf)
		if n > 0 {
			if _, err := out.Write(buf[:n]); err != nil {
				return "", err
			}
			downloaded += int64(n)
			if progressFn != nil {
				progressFn(downloaded, totalSize)
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return "", readErr
		}
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}

func extractArchive(archivePath, destDir string) error {
	if strings.HasSuffix(archivePath, ".zip") {
		return extractZip(archivePath, destDir)
	}
	return extractTarGz(archivePath, destDir)
}

func extractTarGz(archivePath, destDir string) error {
	file, err := os.Open(archivePath)
	if err != nil {
		return err
	}
	defer file.Close()

	gzr, err := gzip.NewReader(file)
	if err != nil {
		return err
	}
	defer gzr.Close()

	tr := tar.NewReader(gzr)
	for {
		header, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		target, err := securePath(destDir, header.Name)
		if err != nil {
			return fmt.Errorf(
				"invalid tar entry %q: %w", header.Name, err,
			)
		}
		switch header.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := writeEntry(target, tr,
				os.FileMode(header.Mode)); err != nil {
				return err
			}
		}
		// Symlinks and hard links are dropped.
	}
}

func extractZip(archivePath, destDir string) error {
	r, err := zip.OpenReader(archivePath)
	if err != nil {
		return err
	}
	defer r.Close()

	for _, f := range r.File {
		target, err := securePath(destDir, f.Name)
		if err != nil {
			return fmt.Errorf(
				"invalid zip entry %q: %w", f.Name, err,
			)
		}
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return err
		}
		err = writeEntry(target, rc, f.Mode())
		rc.Close()
		if err != nil {
			return err
		}
	}
	return nil
}

func writeEntry(target string, src io.Reader, mode os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	out, err := os.OpenFile(
		target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode,
	)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, src); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// securePath joins an archive entry name onto destDir, refusing
// entries that would escape it.
func securePath(destDir, name string) (string, error) {
	clean := filepath.Clean(name)
	if filepath.IsAbs(clean) || strings.HasPrefix(name, "/") {
		return "", fmt.Errorf("absolute path not allowed")
	}
	if clean == ".." ||
		strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path traversal not allowed")
	}
	return filepath.Join(destDir, clean), nil
}

// replaceBinary swaps dstPath for srcPath with a rename-backed
// rollback, which also works on Windows where the running
// binary cannot be overwritten but can be renamed.
func replaceBinary(srcPath, dstPath string) error {
	backupPath := dstPath + ".old"
	os.Remove(backupPath)

	if _, err := os.Stat(dstPath); err == nil {
		if err := os.Rename(dstPath, backupPath); err != nil {
			return fmt.Errorf("backing up: %w", err)
		}
	}

	if err := copyFile(srcPath, dstPath); err != nil {
		if restoreErr := os.Rename(
			backupPath, dstPath,
		); restoreErr != nil {
			return fmt.Errorf(
				"installing: %w (rollback also failed: %v)",
				err, restoreErr,
			)
		}
		return fmt.Errorf("installing: %w", err)
	}
	if err := os.Chmod(dstPath, 0o755); err != nil {
		return fmt.Errorf("chmod: %w", err)
	}
	os.Remove(backupPath)
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}

// FormatSize formats bytes as a human-readable string.
func FormatSize(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf(
		"%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp],
	)
}
