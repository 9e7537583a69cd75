package cli

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/spf13/cobra"

	"github.com/ploston/dael/internal/style"
)

// update trims the teacher's self-replacing updater (internal/cli/update.go,
// github.com/minio/selfupdate plus tar/zip extraction) down to a
// version-check notice: dael ships as a single binary through package
// managers, which have no safe story for a CLI overwriting itself, but
// telling the user they're behind is still worth doing.
const (
	updateCacheFile = ".dael/update_cache.json"
	cacheExpiry     = 2 * time.Hour
	githubAPIURL    = "https://api.github.com/repos/ploston/dael/releases/latest"
)

// UpdateInfo is the cached result of the last GitHub release check.
type UpdateInfo struct {
	LastChecked   time.Time `json:"last_checked"`
	LatestVersion string    `json:"latest_version"`
	CurrentIsOld  bool      `json:"current_is_old"`
}

// GitHubRelease is the subset of the GitHub releases API response used to
// determine the latest tagged version.
type GitHubRelease struct {
	TagName string `json:"tag_name"`
}

// updateCmd represents the update command
var updateCmd = &cobra.Command{
	Use:   "update",
	Short: "Check whether a newer dael release is available",
	Long: `Check GitHub for the latest dael release and report whether the
running binary is behind.

dael does not replace its own binary; reinstall it through whichever
package manager or download you used originally.`,
	Example: `
  dael update              # Check for a newer release`,
	Run: func(cmd *cobra.Command, args []string) {
		checkForUpdate(cmd, true, true)
	},
}

func init() {
	rootCmd.AddCommand(updateCmd)
}

// checkForUpdate checks if a newer version is available, consulting the
// on-disk cache first unless withoutCache is set.
func checkForUpdate(cmd *cobra.Command, verbose bool, withoutCache bool) *UpdateInfo {
	if !withoutCache {
		updateInfo := loadUpdateCache()
		if updateInfo != nil && time.Since(updateInfo.LastChecked) < cacheExpiry {
			return updateInfo
		}
	}

	latest, err := fetchLatestVersion()
	if err != nil {
		if verbose {
			fmt.Fprintf(cmd.ErrOrStderr(), "%s failed to check for updates: %s\n", style.ErrorIcon(), err)
		}
		return nil
	}

	currentVersion := normalizeVersion(Version)
	latestVersion := normalizeVersion(latest)

	currentSemver, err1 := semver.NewVersion(currentVersion)
	latestSemver, err2 := semver.NewVersion(latestVersion)

	isOutdated := false
	if err1 == nil && err2 == nil {
		isOutdated = currentSemver.LessThan(latestSemver)
	} else {
		isOutdated = currentVersion != latestVersion && Version != "dev"
	}

	updateInfo := &UpdateInfo{
		LastChecked:   time.Now(),
		LatestVersion: latest,
		CurrentIsOld:  isOutdated,
	}
	saveUpdateCache(updateInfo)

	if verbose {
		if isOutdated {
			fmt.Fprintf(cmd.OutOrStdout(), "%s a newer version (%s) is available\n", style.InfoIcon(), latest)
			fmt.Fprintln(cmd.OutOrStdout(), "reinstall dael through your package manager to upgrade.")
		} else {
			fmt.Fprintf(cmd.OutOrStdout(), "%s you are running the latest version (%s)\n", style.SuccessIcon(), Version)
		}
	}

	return updateInfo
}

// fetchLatestVersion gets the latest release tag from the GitHub API.
func fetchLatestVersion() (version string, err error) {
	resp, err := http.Get(githubAPIURL)
	if err != nil {
		return "", fmt.Errorf("failed to fetch release info: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("GitHub API returned status %d", resp.StatusCode)
	}

	var release GitHubRelease
	if err := json.NewDecoder(resp.Body).Decode(&release); err != nil {
		return "", fmt.Errorf("failed to decode release info: %w", err)
	}
	return release.TagName, nil
}

// normalizeVersion removes the 'v' prefix from version strings.
func normalizeVersion(version string) string {
	return strings.TrimPrefix(version, "v")
}

// loadUpdateCache loads cached update information
func loadUpdateCache() *UpdateInfo {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil
	}

	cacheFile := filepath.Join(homeDir, updateCacheFile)
	data, err := os.ReadFile(cacheFile) // #nosec G304 - cacheFile path is controlled
	if err != nil {
		return nil
	}

	var updateInfo UpdateInfo
	if err := json.Unmarshal(data, &updateInfo); err != nil {
		return nil
	}

	return &updateInfo
}

// saveUpdateCache saves update information to cache
func saveUpdateCache(updateInfo *UpdateInfo) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return
	}

	daelDir := filepath.Join(homeDir, ".dael")
	_ = os.MkdirAll(daelDir, 0750)

	cacheFile := filepath.Join(homeDir, updateCacheFile)
	data, err := json.MarshalIndent(updateInfo, "", "  ")
	if err != nil {
		return
	}

	_ = os.WriteFile(cacheFile, data, 0600)
}

// ShouldShowUpdateNotification reports a cached update notice, if one
// exists and is still fresh, for the root command to surface.
func ShouldShowUpdateNotification() *UpdateInfo {
	updateInfo := loadUpdateCache()

	if updateInfo == nil || time.Since(updateInfo.LastChecked) > cacheExpiry {
		return nil
	}

	if updateInfo.CurrentIsOld {
		return updateInfo
	}

	return nil
}
