// Package manager implements the Package Manager façade: the single
// public entry point the external CLI drives, wiring together Sources,
// Fetcher, Archive, Layout, and Transaction+Registry into the seven
// operations spec.md §6 names.
package manager

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/datawire/dlib/dlog"

	"github.com/gitrustux/rustica/pkg/config"
	"github.com/gitrustux/rustica/pkg/fetch"
	"github.com/gitrustux/rustica/pkg/layout"
	"github.com/gitrustux/rustica/pkg/registry"
	"github.com/gitrustux/rustica/pkg/rpgerrors"
	"github.com/gitrustux/rustica/pkg/sources"
	"github.com/gitrustux/rustica/pkg/transaction"
	"github.com/gitrustux/rustica/pkg/version"
)

// reservedKind maps the well-known reserved package names to their kind;
// every other name is an App.
var reservedKind = map[string]string{
	"kernel": transaction.KindKernel,
	"system": transaction.KindSystem,
}

// KindForName returns the package kind implied by a package name: "kernel"
// and "system" are reserved, everything else is an App.
func KindForName(name string) string {
	if k, ok := reservedKind[name]; ok {
		return k
	}
	return transaction.KindApp
}

func kindToSourceKind(kind string) sources.Kind {
	switch kind {
	case transaction.KindKernel:
		return sources.KindKernel
	case transaction.KindSystem, transaction.KindBoot:
		return sources.KindSystem
	default:
		return sources.KindApps
	}
}

// Manager is the process-wide façade over the registry, sources, and
// transaction engine. Only one transaction may execute at a time; the
// mutex is the "exclusive write gate" spec.md §5 mandates.
type Manager struct {
	mu       sync.Mutex
	Registry *registry.Registry
	Sources  *sources.List
	Config   *config.Config
	Fetch    fetch.Options
}

// New builds a Manager over already-loaded registry, sources, and config.
func New(reg *registry.Registry, srcs *sources.List, cfg *config.Config) *Manager {
	return &Manager{
		Registry: reg,
		Sources:  srcs,
		Config:   cfg,
		Fetch:    fetch.DefaultOptions(),
	}
}

// Open loads the registry and sources from their default paths and
// initializes the layout, returning a ready-to-use Manager.
func Open() (*Manager, error) {
	if err := layout.Initialize(); err != nil {
		return nil, err
	}
	if err := EnsureCacheDir(); err != nil {
		return nil, err
	}
	reg, err := registry.Load()
	if err != nil {
		return nil, err
	}
	srcs, err := sources.Load()
	if err != nil {
		return nil, err
	}
	cfg, err := config.LoadConfig()
	if err != nil {
		cfg = config.Default()
	}
	return New(reg, srcs, cfg), nil
}

// Save persists the registry. Callers invoke this after any operation that
// mutates Manager state.
func (m *Manager) Save() error { return m.Registry.Save() }

// UpdateCandidate is one entry in check_updates's "available" list.
type UpdateCandidate struct {
	Name           string
	CurrentVersion string
	NewVersion     string
	Size           uint64
	Kind           string
}

// CheckUpdatesResult is check_updates's return shape.
type CheckUpdatesResult struct {
	Available []UpdateCandidate
	Errors    []string
}

// CheckUpdates fetches each enabled source kind's index and compares every
// listed package against the registry's active version. A package present
// in an index but never installed is reported with CurrentVersion
// "not installed" and counted as available, matching the reference
// implementation's documented behavior.
func (m *Manager) CheckUpdates(ctx context.Context) *CheckUpdatesResult {
	result := &CheckUpdatesResult{}

	for _, kind := range []sources.Kind{sources.KindKernel, sources.KindSystem, sources.KindApps} {
		candidates := m.Sources.ByKind(kind)
		if len(candidates) == 0 {
			continue
		}
		idx, err := fetch.FetchIndex(ctx, m.Fetch, candidates)
		if err != nil {
			dlog.Warnf(ctx, "check-updates: fetching %s index: %v", kind, err)
			result.Errors = append(result.Errors, err.Error())
			continue
		}
		for _, entry := range idx.Packages {
			entryVersion, err := version.Parse(entry.Version)
			if err != nil {
				result.Errors = append(result.Errors, err.Error())
				continue
			}
			current := "not installed"
			isUpdate := true
			if active, ok := m.Registry.ActiveVersion(entry.Name); ok {
				current = active.String()
				isUpdate = active.Less(entryVersion)
			}
			if !isUpdate {
				continue
			}
			result.Available = append(result.Available, UpdateCandidate{
				Name:           entry.Name,
				CurrentVersion: current,
				NewVersion:     entry.Version,
				Size:           entry.Size,
				Kind:           packageKind(entry.Name, string(kind)),
			})
		}
	}
	return result
}

func packageKind(name, sourceKind string) string {
	if k, ok := reservedKind[name]; ok {
		return k
	}
	switch sources.Kind(sourceKind) {
	case sources.KindKernel:
		return transaction.KindKernel
	case sources.KindSystem:
		return transaction.KindSystem
	default:
		return transaction.KindApp
	}
}

// Install downloads, verifies, and activates a package. If ver is nil, the
// newest version advertised by the package's source kind's index is used.
// kind overrides the name-derived package kind (pass "" to use
// KindForName(name)).
func (m *Manager) Install(ctx context.Context, name string, ver *version.Version, kind string) *transaction.Result {
	m.mu.Lock()
	defer m.mu.Unlock()

	if kind == "" {
		kind = KindForName(name)
	}
	srcKind := kindToSourceKind(kind)
	candidates := m.Sources.ByKind(srcKind)
	if len(candidates) == 0 {
		return errResult(registry.KindInstall, rpgerrors.New(rpgerrors.AllSourcesFailed, "no enabled %s sources configured", srcKind))
	}

	idx, err := fetch.FetchIndex(ctx, m.Fetch, candidates)
	if err != nil {
		return errResult(registry.KindInstall, err)
	}

	entry, err := resolvePackageEntry(idx, name, ver)
	if err != nil {
		return errResult(registry.KindInstall, err)
	}

	dlog.Infof(ctx, "installing %s@%s", entry.Name, entry.Version)

	dest := filepath.Join(layout.CacheDir, "packages", fmt.Sprintf("%s-%s.rpg", entry.Name, entry.Version))
	dl, err := fetch.FetchPackage(ctx, m.Fetch, candidates, entry.Name, entry.Version, entry.SHA256, dest)
	if err != nil {
		return errResult(registry.KindInstall, err)
	}

	result := transaction.Install(m.Registry, []string{dl.Path}, m.Config.TrustKey)
	if result.Outcome == transaction.Success {
		if err := m.Save(); err != nil {
			dlog.Errorf(ctx, "saving registry after install: %v", err)
		}
	}
	return result
}

func resolvePackageEntry(idx *fetch.RepositoryIndex, name string, ver *version.Version) (fetch.PackageEntry, error) {
	var best *fetch.PackageEntry
	var bestVersion version.Version
	for i := range idx.Packages {
		entry := idx.Packages[i]
		if entry.Name != name {
			continue
		}
		entryVersion, err := version.Parse(entry.Version)
		if err != nil {
			continue
		}
		if ver != nil {
			if entryVersion.Equal(*ver) {
				return entry, nil
			}
			continue
		}
		if best == nil || entryVersion.Greater(bestVersion) {
			e := entry
			best = &e
			bestVersion = entryVersion
		}
	}
	if best == nil {
		return fetch.PackageEntry{}, rpgerrors.New(rpgerrors.PackageNotFound, "package %q not found in repository index", name)
	}
	return *best, nil
}

func errResult(kind registry.TransactionKind, err error) *transaction.Result {
	return &transaction.Result{Kind: kind, Outcome: transaction.Failed, Err: err}
}

// Remove deletes an installed app version: name's currently active version,
// or its newest registered version when none is active. transaction.Remove
// takes an explicit version.
func (m *Manager) Remove(name string) *transaction.Result {
	m.mu.Lock()
	defer m.mu.Unlock()

	active, ok := m.Registry.ActiveVersion(name)
	if !ok {
		versions := m.Registry.Versions(name)
		if len(versions) == 0 {
			return errResult(registry.KindRemove, rpgerrors.New(rpgerrors.PackageNotFound, "%s is not installed", name))
		}
		active = versions[len(versions)-1]
	}
	result := transaction.Remove(m.Registry, name, active)
	if result.Outcome == transaction.Success {
		if err := m.Save(); err != nil {
			return errResult(registry.KindRemove, err)
		}
	}
	return result
}

// Rollback reactivates a previous version of name (system or app).
func (m *Manager) Rollback(name string, target *version.Version) *transaction.Result {
	m.mu.Lock()
	defer m.mu.Unlock()

	var result *transaction.Result
	if name == "system" {
		if target == nil {
			return errResult(registry.KindRollback, rpgerrors.New(rpgerrors.RollbackFailed, "system rollback requires an explicit target version"))
		}
		result = transaction.SwitchSystem(m.Registry, *target)
	} else {
		result = transaction.Rollback(m.Registry, name, target)
	}
	if result.Outcome == transaction.Success {
		if err := m.Save(); err != nil {
			return errResult(result.Kind, err)
		}
	}
	return result
}

// UpdateAllResult is update_all's return shape.
type UpdateAllResult struct {
	Succeeded      []string
	Failed         []FailedUpdate
	RequiresReboot []string
}

// FailedUpdate pairs a package name with the error that stopped its update.
type FailedUpdate struct {
	Name  string
	Error string
}

// updatePlan is one candidate's resolved download job, queued for the
// concurrent fetch stage of UpdateAll.
type updatePlan struct {
	candidate UpdateCandidate
	entry     fetch.PackageEntry
	dest      string
}

// UpdateAll checks for updates across every source kind, downloads every
// available candidate's archive concurrently across a bounded worker pool,
// then activates each downloaded package with its own sequential
// transaction (the write gate still serializes activation one at a time;
// only the network fetch stage runs in parallel).
func (m *Manager) UpdateAll(ctx context.Context) *UpdateAllResult {
	checked := m.CheckUpdates(ctx)
	result := &UpdateAllResult{}

	indexCache := map[sources.Kind]*fetch.RepositoryIndex{}
	var jobs []fetch.PackageJob
	var plans []updatePlan

	for _, candidate := range checked.Available {
		srcKind := kindToSourceKind(candidate.Kind)
		candSources := m.Sources.ByKind(srcKind)
		if len(candSources) == 0 {
			result.Failed = append(result.Failed, FailedUpdate{Name: candidate.Name, Error: "no enabled sources configured"})
			continue
		}

		idx, ok := indexCache[srcKind]
		if !ok {
			var err error
			idx, err = fetch.FetchIndex(ctx, m.Fetch, candSources)
			if err != nil {
				result.Failed = append(result.Failed, FailedUpdate{Name: candidate.Name, Error: err.Error()})
				continue
			}
			indexCache[srcKind] = idx
		}

		newVersion, err := version.Parse(candidate.NewVersion)
		if err != nil {
			result.Failed = append(result.Failed, FailedUpdate{Name: candidate.Name, Error: err.Error()})
			continue
		}
		entry, err := resolvePackageEntry(idx, candidate.Name, &newVersion)
		if err != nil {
			result.Failed = append(result.Failed, FailedUpdate{Name: candidate.Name, Error: err.Error()})
			continue
		}

		dest := filepath.Join(layout.CacheDir, "packages", fmt.Sprintf("%s-%s.rpg", entry.Name, entry.Version))
		jobs = append(jobs, fetch.PackageJob{
			Name: entry.Name, Version: entry.Version, ExpectedSHA256: entry.SHA256,
			OutputPath: dest, Sources: candSources,
		})
		plans = append(plans, updatePlan{candidate: candidate, entry: entry, dest: dest})
	}

	downloads := fetch.FetchPackages(ctx, m.Fetch, jobs, fetch.DefaultPoolSize())

	m.mu.Lock()
	defer m.mu.Unlock()
	for i, dl := range downloads {
		p := plans[i]
		if dl.Err != nil {
			result.Failed = append(result.Failed, FailedUpdate{Name: p.candidate.Name, Error: dl.Err.Error()})
			continue
		}

		dlog.Infof(ctx, "installing %s@%s", p.entry.Name, p.entry.Version)
		txResult := transaction.Install(m.Registry, []string{dl.Result.Path}, m.Config.TrustKey)
		if txResult.Outcome != transaction.Success {
			msg := "unknown error"
			if txResult.Err != nil {
				msg = txResult.Err.Error()
			}
			result.Failed = append(result.Failed, FailedUpdate{Name: p.candidate.Name, Error: msg})
			continue
		}
		if err := m.Save(); err != nil {
			dlog.Errorf(ctx, "saving registry after update of %s: %v", p.candidate.Name, err)
		}
		result.Succeeded = append(result.Succeeded, p.candidate.Name)
		if txResult.RequiresReboot {
			result.RequiresReboot = append(result.RequiresReboot, p.candidate.Name)
		}
	}
	return result
}

// InstalledInfo is one entry in list_installed's result.
type InstalledInfo struct {
	Name        string
	Version     string
	AllVersions []string
	Kind        string
}

// ListInstalled reports every registered package, its active version, and
// every version still on disk.
func (m *Manager) ListInstalled() []InstalledInfo {
	var result []InstalledInfo
	for name, versions := range m.Registry.Packages {
		all := make([]string, len(versions))
		for i, v := range versions {
			all[i] = v.String()
		}
		current := ""
		if active, ok := m.Registry.ActiveVersion(name); ok {
			current = active.String()
		}
		result = append(result, InstalledInfo{
			Name:        name,
			Version:     current,
			AllVersions: all,
			Kind:        KindForName(name),
		})
	}
	return result
}

// StatusResult is status's return shape.
type StatusResult struct {
	TotalPackages  int
	ActivePackages int
	PendingUpdates int
	SourcesTotal   int
	SourcesEnabled int
}

// Status summarizes the manager's overall state.
func (m *Manager) Status() StatusResult {
	srcStats := m.Sources.Stats()
	return StatusResult{
		TotalPackages:  len(m.Registry.Packages),
		ActivePackages: len(m.Registry.Active),
		PendingUpdates: len(m.Registry.Pending),
		SourcesTotal:   srcStats.Total,
		SourcesEnabled: srcStats.Enabled,
	}
}

// ExitCode maps a transaction.Result or bare error to the exit code
// contract spec.md §6 assigns to the CLI.
func ExitCode(result *transaction.Result, err error) int {
	if err != nil {
		return exitCodeForErr(err)
	}
	if result == nil {
		return 0
	}
	switch result.Outcome {
	case transaction.Success:
		return 0
	case transaction.Failed, transaction.RolledBack:
		if result.Err != nil {
			if code := exitCodeForErr(result.Err); code == 3 {
				return 3
			}
		}
		return 1
	default:
		return 0
	}
}

func exitCodeForErr(err error) int {
	var rerr *rpgerrors.Error
	if !asRPGError(err, &rerr) {
		return 2
	}
	switch rerr.Kind {
	case rpgerrors.NetworkError, rpgerrors.Timeout, rpgerrors.AllSourcesFailed:
		return 3
	case rpgerrors.InvalidVersion, rpgerrors.Layout, rpgerrors.PermissionDenied:
		return 2
	default:
		return 1
	}
}

func asRPGError(err error, target **rpgerrors.Error) bool {
	for err != nil {
		if rerr, ok := err.(*rpgerrors.Error); ok {
			*target = rerr
			return true
		}
		unwrapper, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = unwrapper.Unwrap()
	}
	return false
}

// EnsureCacheDir makes sure the package download cache directory exists.
func EnsureCacheDir() error {
	return os.MkdirAll(filepath.Join(layout.CacheDir, "packages"), 0o755)
}
