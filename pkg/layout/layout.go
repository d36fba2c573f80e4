// Package layout describes the on-disk topology for versioned system and
// app trees, their current symlinks, and the supporting cache/metadata/
// state/config directories.
package layout

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gitrustux/rustica/pkg/rpgerrors"
)

// SystemBase and AppsBase are the roots of the versioned system and app
// trees. They are package vars rather than constants, mirroring the
// reference implementation's SystemLayout/AppLayout, which carry their
// root as a public `base` field specifically so it can be pointed at a
// scratch directory in tests; production code never reassigns them.
var (
	SystemBase = "/system"
	AppsBase   = "/apps"
)

const (
	CacheDir  = "/var/cache/rpg"
	MetaDir   = "/var/lib/rpg"
	StateDir  = "/var/run/rpg"
	ConfigDir = "/etc/rpg"

	RegistryPath    = MetaDir + "/registry.json"
	SourcesListPath = ConfigDir + "/sources.list"
)

// SystemCurrentLink is the symlink that selects the active system version.
func SystemCurrentLink() string { return filepath.Join(SystemBase, "current") }

// SystemVersionPath returns the versioned system directory for a raw
// (un-prefixed) version string, prefixing exactly one "v".
func SystemVersionPath(version string) string {
	return filepath.Join(SystemBase, "v"+version)
}

func SystemBootPath(version string) string   { return filepath.Join(SystemVersionPath(version), "boot") }
func SystemKernelPath(version string) string { return filepath.Join(SystemBootPath(version), "kernel") }
func SystemInitrdPath(version string) string { return filepath.Join(SystemBootPath(version), "initrd") }
func SystemBinPath(version string) string    { return filepath.Join(SystemVersionPath(version), "bin") }
func SystemLibPath(version string) string    { return filepath.Join(SystemVersionPath(version), "lib") }
func SystemMetadataPath(version string) string {
	return filepath.Join(SystemVersionPath(version), "metadata.json")
}

// ListSystemVersions lists installed system versions (directories named
// "v<version>" directly under /system), sorted ascending as raw strings. A
// directory whose name does not start with "v" is not a version.
func ListSystemVersions() ([]string, error) {
	return listVersionDirs(SystemBase)
}

// SystemVersionExists reports whether a versioned system directory exists.
func SystemVersionExists(version string) bool {
	return dirExists(SystemVersionPath(version))
}

// CurrentSystemVersion resolves /system/current and returns the version it
// points to, or "" if the symlink does not exist.
func CurrentSystemVersion() (string, error) {
	return resolveCurrentVersion(SystemCurrentLink())
}

// AppPath returns the base directory for an app's versions.
func AppPath(name string) string { return filepath.Join(AppsBase, name) }

// AppVersionPath returns the versioned install directory for an app.
func AppVersionPath(name, version string) string {
	return filepath.Join(AppPath(name), version)
}

// AppCurrentLink is the symlink that selects an app's active version.
func AppCurrentLink(name string) string { return filepath.Join(AppPath(name), "current") }

func AppMetadataPath(name, version string) string {
	return filepath.Join(AppVersionPath(name, version), "metadata.json")
}

func AppExecutablePath(name string) string { return filepath.Join(AppCurrentLink(name), name) }

// ListApps lists installed app names (directories directly under /apps),
// sorted ascending.
func ListApps() ([]string, error) {
	if !dirExists(AppsBase) {
		return nil, nil
	}
	entries, err := os.ReadDir(AppsBase)
	if err != nil {
		return nil, rpgerrors.Wrap(rpgerrors.Layout, err, "listing apps")
	}
	var apps []string
	for _, e := range entries {
		if e.IsDir() {
			apps = append(apps, e.Name())
		}
	}
	sort.Strings(apps)
	return apps, nil
}

// ListAppVersions lists installed versions of a given app (directories
// under /apps/<name> other than "current"), sorted ascending.
func ListAppVersions(name string) ([]string, error) {
	base := AppPath(name)
	if !dirExists(base) {
		return nil, nil
	}
	entries, err := os.ReadDir(base)
	if err != nil {
		return nil, rpgerrors.Wrap(rpgerrors.Layout, err, "listing versions for app %q", name)
	}
	var versions []string
	for _, e := range entries {
		if e.Name() == "current" {
			continue
		}
		if e.IsDir() {
			versions = append(versions, e.Name())
		}
	}
	sort.Strings(versions)
	return versions, nil
}

// AppExists reports whether the app has any installed version directory.
func AppExists(name string) bool { return dirExists(AppPath(name)) }

// AppVersionExists reports whether a specific app version directory exists.
func AppVersionExists(name, version string) bool {
	return dirExists(AppVersionPath(name, version))
}

// CurrentAppVersion resolves an app's current symlink, or "" if absent.
func CurrentAppVersion(name string) (string, error) {
	return resolveCurrentVersion(AppCurrentLink(name))
}

// Stats summarizes the layout's overall footprint.
type Stats struct {
	SystemVersions int
	InstalledApps  int
	CacheSize      int64
	MetadataSize   int64
}

// Initialize creates the base directories (system, apps, cache, metadata,
// state, config) if they do not already exist.
func Initialize() error {
	for _, dir := range []string{SystemBase, AppsBase, CacheDir, MetaDir, StateDir, ConfigDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return rpgerrors.Wrap(rpgerrors.Layout, err, "creating %s", dir)
		}
	}
	return nil
}

// ComputeStats reports layout statistics, including directory sizes under
// the cache and metadata trees.
func ComputeStats() (Stats, error) {
	versions, err := ListSystemVersions()
	if err != nil {
		return Stats{}, err
	}
	apps, err := ListApps()
	if err != nil {
		return Stats{}, err
	}
	cacheSize, err := DirSize(CacheDir)
	if err != nil {
		return Stats{}, err
	}
	metaSize, err := DirSize(MetaDir)
	if err != nil {
		return Stats{}, err
	}
	return Stats{
		SystemVersions: len(versions),
		InstalledApps:  len(apps),
		CacheSize:      cacheSize,
		MetadataSize:   metaSize,
	}, nil
}

// DirSize walks path recursively and sums file sizes. A missing path sizes
// to zero rather than erroring.
func DirSize(path string) (int64, error) {
	if !dirExists(path) {
		return 0, nil
	}
	var total int64
	err := filepath.Walk(path, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			total += info.Size()
		}
		return nil
	})
	if err != nil {
		return 0, rpgerrors.Wrap(rpgerrors.Layout, err, "computing size of %s", path)
	}
	return total, nil
}

func listVersionDirs(base string) ([]string, error) {
	if !dirExists(base) {
		return nil, nil
	}
	entries, err := os.ReadDir(base)
	if err != nil {
		return nil, rpgerrors.Wrap(rpgerrors.Layout, err, "listing versions under %s", base)
	}
	var versions []string
	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), "v") {
			continue
		}
		versions = append(versions, strings.TrimPrefix(e.Name(), "v"))
	}
	sort.Strings(versions)
	return versions, nil
}

func resolveCurrentVersion(link string) (string, error) {
	if !exists(link) {
		return "", nil
	}
	target, err := os.Readlink(link)
	if err != nil {
		return "", rpgerrors.Wrap(rpgerrors.Layout, err, "reading %s", link)
	}
	name := filepath.Base(target)
	if name == "" || name == "." || name == string(filepath.Separator) {
		return "", rpgerrors.New(rpgerrors.Layout, "invalid current symlink at %s", link)
	}
	return strings.TrimPrefix(name, "v"), nil
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func exists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}
