package update

import (
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"golang.org/x/mod/semver"
)

func TestNormalize(t *testing.T) {
	assert.Equal(t, "v1.2.3", normalize("1.2.3"))
	assert.Equal(t, "v1.2.3", normalize("v1.2.3"))
	assert.True(t, semver.IsValid(normalize("0.5.0")))
	assert.False(t, semver.IsValid(normalize("dev")))
	assert.False(t, semver.IsValid(normalize("")))
}

func TestVersionComparison(t *testing.T) {
	newer := func(latest, current string) bool {
		return semver.Compare(
			normalize(latest), normalize(current),
		) > 0
	}
	assert.True(t, newer("1.2.0", "1.1.9"))
	assert.True(t, newer("v2.0.0", "1.9.9"))
	assert.False(t, newer("1.1.0", "1.1.0"))
	assert.False(t, newer("1.0.9", "1.1.0"))
	assert.False(t, newer("1.2.0-rc.1", "1.2.0"))
}

func TestPlatformAssetName(t *testing.T) {
	name := platformAssetName("v1.4.0")
	assert.True(t, strings.HasPrefix(name, "clinicview_1.4.0_"))
	assert.Contains(t, name, runtime.GOOS)
	assert.Contains(t, name, runtime.GOARCH)
	if runtime.GOOS == "windows" {
		assert.True(t, strings.HasSuffix(name, ".zip"))
	} else {
		assert.True(t, strings.HasSuffix(name, ".tar.gz"))
	}
}

func TestParseChecksums(t *testing.T) {
	sum := strings.Repeat("ab", 32)
	body := "badline\n" +
		sum + "  clinicview_1.0.0_linux_amd64.tar.gz\n" +
		strings.Repeat("cd", 32) + "  *clinicview_1.0.0_windows_amd64.zip\n"

	assert.Equal(t, sum,
		parseChecksums(body, "clinicview_1.0.0_linux_amd64.tar.gz"))
	assert.Equal(t, strings.Repeat("cd", 32),
		parseChecksums(body, "clinicview_1.0.0_windows_amd64.zip"))
	assert.Equal(t, "",
		parseChecksums(body, "clinicview_1.0.0_darwin_arm64.tar.gz"))

	// A truncated digest is rejected.
	assert.Equal(t, "",
		parseChecksums("abcd  short.tar.gz", "short.tar.gz"))
}

func TestUpToDatePerCache(t *testing.T) {
	dir := t.TempDir()

	// No cache file.
	assert.False(t, upToDatePerCache("1.0.0", dir))

	writeCache := func(version string, checkedAt time.Time) {
		data, err := json.Marshal(cachedCheck{
			CheckedAt: checkedAt,
			Version:   version,
		})
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(
			filepath.Join(dir, cacheFileName), data, 0o600,
		))
	}

	// Fresh cache saying the latest equals current.
	writeCache("v1.0.0", time.Now())
	assert.True(t, upToDatePerCache("1.0.0", dir))

	// Fresh cache with a newer release available.
	writeCache("v1.1.0", time.Now())
	assert.False(t, upToDatePerCache("1.0.0", dir))

	// Expired cache forces a re-check.
	writeCache("v1.0.0", time.Now().Add(-2*time.Hour))
	assert.False(t, upToDatePerCache("1.0.0", dir))

	// Corrupt cache is ignored.
	require.NoError(t, os.WriteFile(
		filepath.Join(dir, cacheFileName), []byte("{"), 0o600,
	))
	assert.False(t, upToDatePerCache("1.0.0", dir))
}

func TestSaveCacheRoundTrip(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested")
	saveCache("v2.3.4", dir)

	data, err := os.ReadFile(filepath.Join(dir, cacheFileName))
	require.NoError(t, err)

	var cached cachedCheck
	require.NoError(t, json.Unmarshal(data, &cached))
	assert.Equal(t, "v2.3.4", cached.Version)
	assert.WithinDuration(t, time.Now(), cached.CheckedAt, time.Minute)
}

func TestCheckRejectsDevBuild(t *testing.T) {
	_, err := Check("dev", false, t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dev build")
}

func TestSecurePath(t *testing.T) {
	dest := "/tmp/extract"

	got, err := securePath(dest, "clinicview")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dest, "clinicview"), got)

	got, err = securePath(dest, "sub/dir/file")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dest, "sub/dir/file"), got)

	_, err = securePath(dest, "../escape")
	assert.Error(t, err)

	_, err = securePath(dest, "sub/../../escape")
	assert.Error(t, err)

	_, err = securePath(dest, "/etc/passwd")
	assert.Error(t, err)
}

func TestReplaceBinary(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "new")
	dst := filepath.Join(dir, "installed")

	require.NoError(t, os.WriteFile(src, []byte("v2"), 0o755))
	require.NoError(t, os.WriteFile(dst, []byte("v1"), 0o755))

	require.NoError(t, replaceBinary(src, dst))

	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "v2", string(data))

	// Backup is cleaned up on success.
	_, err = os.Stat(dst + ".old")
	assert.True(t, os.IsNotExist(err))

	info, err := os.Stat(dst)
	require.NoError(t, err)
	if runtime.GOOS != "windows" {
		assert.Equal(t, os.FileMode(0o755), info.Mode().Perm())
	}
}

func TestReplaceBinaryFreshInstall(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "new")
	dst := filepath.Join(dir, "installed")

	require.NoError(t, os.WriteFile(src, []byte("v1"), 0o755))
	require.NoError(t, replaceBinary(src, dst))

	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "v1", string(data))
}

func TestFormatSize(t *testing.T) {
	assert.Equal(t, "512 B", FormatSize(512))
	assert.Equal(t, "1.0 KB", FormatSize(1024))
	assert.Equal(t, "1.5 MB", FormatSize(3*1024*1024/2))
	assert.Equal(t, "2.0 GB", FormatSize(2*1024*1024*1024))
}
