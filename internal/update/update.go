// Package update checks GitHub releases for a newer chatline build.
package update

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"golang.org/x/mod/semver"

	"github.com/wesm/chatline/internal/fileutil"
)

const (
	// ReleasesURL is the GitHub API endpoint for the latest release.
	ReleasesURL      = "https://api.github.com/repos/wesm/chatline/releases/latest"
	cacheFileName    = "update_check.json"
	cacheDuration    = 1 * time.Hour
	devCacheDuration = 15 * time.Minute
)

// Release represents a GitHub release.
type Release struct {
	TagName string `json:"tag_name"`
	HTMLURL string `json:"html_url"`
}

// Info describes an available update.
type Info struct {
	CurrentVersion string
	LatestVersion  string
	ReleaseURL     string
	IsDevBuild     bool
}

// Checker looks up the latest release, caching the answer under CacheDir.
type Checker struct {
	URL      string // defaults to ReleasesURL
	CacheDir string // empty disables the cache
	Client   *http.Client

	now func() time.Time
}

// cachedCheck stores the last update check result.
type cachedCheck struct {
	CheckedAt time.Time `json:"checked_at"`
	Version   string    `json:"version"`
	URL       string    `json:"url,omitempty"`
}

// NewChecker returns a Checker for the public release feed.
func NewChecker(cacheDir string) *Checker {
	return &Checker{
		URL:      ReleasesURL,
		CacheDir: cacheDir,
		Client:   &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *Checker) clock() time.Time {
	if c.now != nil {
		return c.now()
	}
	return time.Now()
}

// Check reports whether a release newer than currentVersion exists. A nil
// Info means the current build is up to date. Dev builds always get the
// latest release back. Unless force is set, answers younger than an hour
// (15 minutes for dev builds) come from the cache.
func (c *Checker) Check(ctx context.Context, currentVersion string, force bool) (*Info, error) {
	cleanVersion := strings.TrimPrefix(currentVersion, "v")
	isDevBuild := isDevBuildVersion(cleanVersion)

	var release *Release
	if !force {
		release = c.cached(isDevBuild)
	}
	if release == nil {
		var err error
		release, err = c.fetchLatestRelease(ctx)
		if err != nil {
			return nil, fmt.Errorf("check for updates: %w", err)
		}
		c.saveCache(release)
	}

	latestVersion := strings.TrimPrefix(release.TagName, "v")
	if !isDevBuild && !isNewer(latestVersion, cleanVersion) {
		return nil, nil
	}
	return &Info{
		CurrentVersion: currentVersion,
		LatestVersion:  release.TagName,
		ReleaseURL:     release.HTMLURL,
		IsDevBuild:     isDevBuild,
	}, nil
}

func (c *Checker) fetchLatestRelease(ctx context.Context) (*Release, error) {
	url := c.URL
	if url == "" {
		url = ReleasesURL
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/vnd.github.v3+json")
	req.Header.Set("User-Agent", "chatline-update")

	client := c.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("GitHub API returned %s", resp.Status)
	}

	var release Release
	if err := json.NewDecoder(resp.Body).Decode(&release); err != nil {
		return nil, err
	}
	if release.TagName == "" {
		return nil, fmt.Errorf("release has no tag")
	}
	return &release, nil
}

// cached returns the cached release if it is still fresh.
func (c *Checker) cached(isDevBuild bool) *Release {
	if c.CacheDir == "" {
		return nil
	}
	data, err := os.ReadFile(filepath.Join(c.CacheDir, cacheFileName))
	if err != nil {
		return nil
	}
	var cached cachedCheck
	if err := json.Unmarshal(data, &cached); err != nil || cached.Version == "" {
		return nil
	}

	window := cacheDuration
	if isDevBuild {
		window = devCacheDuration
	}
	if c.clock().Sub(cached.CheckedAt) >= window {
		return nil
	}
	return &Release{TagName: cached.Version, HTMLURL: cached.URL}
}

func (c *Checker) saveCache(release *Release) {
	if c.CacheDir == "" {
		return
	}
	data, err := json.Marshal(cachedCheck{
		CheckedAt: c.clock(),
		Version:   release.TagName,
		URL:       release.HTMLURL,
	})
	if err != nil {
		return
	}
	fileutil.WritePrivate(filepath.Join(c.CacheDir, cacheFileName), data) //nolint:errcheck
}

// extractBaseSemver extracts the base semver from a version string.
func extractBaseSemver(v string) string {
	v = strings.TrimPrefix(v, "v")
	if len(v) == 0 || v[0] < '0' || v[0] > '9' {
		return ""
	}
	if !strings.Contains(v, ".") {
		return ""
	}
	if idx := strings.Index(v, "-"); idx > 0 {
		v = v[:idx]
	}
	return v
}

// gitDescribePattern matches git describe format: v0.16.1-2-gabcdef or v0.16.1-2-gabcdef-dirty
var gitDescribePattern = regexp.MustCompile(`-\d+-g[0-9a-f]+(-dirty)?$`)

// isDevBuildVersion returns true if the version is a dev build.
func isDevBuildVersion(v string) bool {
	v = strings.TrimPrefix(v, "v")
	if extractBaseSemver(v) == "" {
		return true
	}
	return gitDescribePattern.MatchString(v)
}

// isNewer returns true if v1 is newer than v2. Prereleases are older than
// their base version; git-describe versions count as their base version.
func isNewer(v1, v2 string) bool {
	if extractBaseSemver(v1) == "" || extractBaseSemver(v2) == "" {
		return false
	}
	return semver.Compare(normalizeSemver(v1), normalizeSemver(v2)) > 0
}

// prereleaseNumericPattern matches identifiers like "rc10" or "beta2".
var prereleaseNumericPattern = regexp.MustCompile(`^([A-Za-z]+)(\d+)$`)

// normalizeSemver converts a version string to "v"-prefixed semver. The
// git-describe suffix is dropped and "rc10" becomes "rc.10" so prerelease
// numbers compare numerically.
func normalizeSemver(v string) string {
	v = strings.TrimPrefix(v, "v")
	v = gitDescribePattern.ReplaceAllString(v, "")

	if idx := strings.Index(v, "-"); idx > 0 {
		v = v[:idx] + "-" + normalizePrereleaseIdentifiers(v[idx+1:])
	}
	return "v" + v
}

// normalizePrereleaseIdentifiers splits letter+digit identifiers. Numeric
// parts with leading zeros are left alone since "rc.01" is not valid semver.
func normalizePrereleaseIdentifiers(prerelease string) string {
	parts := strings.Split(prerelease, ".")
	var result []string
	for _, part := range parts {
		if matches := prereleaseNumericPattern.FindStringSubmatch(part); matches != nil {
			letters, digits := matches[1], matches[2]
			if len(digits) > 1 && digits[0] == '0' {
				result = append(result, part)
			} else {
				result = append(result, letters, digits)
			}
		} else {
			result = append(result, part)
		}
	}
	return strings.Join(result, ".")
}
