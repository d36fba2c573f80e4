// Package registry is the persisted, process-wide record of installed
// package versions, active selections, pending activations, and the
// bounded transaction audit log.
package registry

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/gitrustux/rustica/pkg/layout"
	"github.com/gitrustux/rustica/pkg/rpgerrors"
	"github.com/gitrustux/rustica/pkg/version"
)

// maxTransactions is the bound on the retained transaction log; once
// exceeded, the oldest entries are discarded first.
const maxTransactions = 100

// TransactionKind is the operation a Transaction performs.
type TransactionKind string

const (
	KindInstall      TransactionKind = "install"
	KindRemove       TransactionKind = "remove"
	KindUpgrade      TransactionKind = "upgrade"
	KindRollback     TransactionKind = "rollback"
	KindSwitchSystem TransactionKind = "switch_system"
)

// TransactionState is a Transaction's lifecycle state.
type TransactionState string

const (
	StatePrepared    TransactionState = "prepared"
	StateInProgress  TransactionState = "in_progress"
	StateCompleted   TransactionState = "completed"
	StateFailed      TransactionState = "failed"
	StateRolledBack  TransactionState = "rolled_back"
)

// NameVersion pairs a package name with one of its versions.
type NameVersion struct {
	Name    string          `json:"name"`
	Version version.Version `json:"version"`
}

// SymlinkSwap records a single atomic symlink swap so it can be reversed.
type SymlinkSwap struct {
	LinkPath       string  `json:"link_path"`
	PreviousTarget *string `json:"previous_target,omitempty"`
}

// RollbackInfo captures pre-transaction state sufficient to reverse every
// step the transaction took.
type RollbackInfo struct {
	PreviousSystemVersion string        `json:"previous_system_version,omitempty"`
	PreviousAppVersions   []NameVersion `json:"previous_app_versions,omitempty"`
	SymlinkSwaps          []SymlinkSwap `json:"symlink_swaps,omitempty"`
}

// Transaction is the persisted audit record of one orchestrator run.
type Transaction struct {
	ID        string          `json:"id"`
	Kind      TransactionKind `json:"kind"`
	State     TransactionState `json:"state"`
	Packages  []string        `json:"packages"`
	Rollback  RollbackInfo    `json:"rollback_info"`
	CreatedAt time.Time       `json:"created_at"`
	Error     string          `json:"error,omitempty"`
}

// PendingEntry is a package whose files are installed but not yet
// activated (reboot-gated Kernel/System/Boot packages).
type PendingEntry struct {
	Name    string          `json:"name"`
	Version version.Version `json:"version"`
}

// Registry is the persisted, process-wide package database.
type Registry struct {
	Packages     map[string][]version.Version `json:"packages"`
	Active       map[string]version.Version    `json:"active"`
	Pending      []PendingEntry                `json:"pending"`
	Transactions []Transaction                  `json:"transactions"`
}

// New returns an empty, initialized Registry.
func New() *Registry {
	return &Registry{
		Packages: make(map[string][]version.Version),
		Active:   make(map[string]version.Version),
	}
}

// Load reads the registry from its default path
// (/var/lib/rpg/registry.json), returning a fresh empty Registry if the
// file does not yet exist.
func Load() (*Registry, error) {
	return LoadFrom(layout.RegistryPath)
}

// LoadFrom reads the registry from an explicit path.
func LoadFrom(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return New(), nil
	}
	if err != nil {
		return nil, rpgerrors.Wrap(rpgerrors.Io, err, "reading registry %s", path)
	}
	var r Registry
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, rpgerrors.Wrap(rpgerrors.Serialization, err, "parsing registry %s", path)
	}
	if r.Packages == nil {
		r.Packages = make(map[string][]version.Version)
	}
	if r.Active == nil {
		r.Active = make(map[string]version.Version)
	}
	return &r, nil
}

// Save writes the registry to its default path.
func (r *Registry) Save() error {
	return r.SaveTo(layout.RegistryPath)
}

// SaveTo rewrites the registry atomically (write-to-temp, rename).
func (r *Registry) SaveTo(path string) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return rpgerrors.Wrap(rpgerrors.Serialization, err, "marshalling registry")
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return rpgerrors.Wrap(rpgerrors.Io, err, "creating %s", dir)
		}
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		_ = os.Remove(tmp)
		return rpgerrors.Wrap(rpgerrors.Io, err, "writing %s", tmp)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return rpgerrors.Wrap(rpgerrors.Io, err, "renaming %s to %s", tmp, path)
	}
	return nil
}

// RegisterVersion adds v to name's known versions, deduped and kept
// sorted ascending.
func (r *Registry) RegisterVersion(name string, v version.Version) {
	for _, existing := range r.Packages[name] {
		if existing.Equal(v) {
			return
		}
	}
	r.Packages[name] = append(r.Packages[name], v)
	version.SortVersions(r.Packages[name])
}

// RemoveVersion deletes v from name's known versions. If it was the active
// version, the active entry for name is cleared.
func (r *Registry) RemoveVersion(name string, v version.Version) {
	versions := r.Packages[name]
	filtered := versions[:0]
	for _, existing := range versions {
		if !existing.Equal(v) {
			filtered = append(filtered, existing)
		}
	}
	if len(filtered) == 0 {
		delete(r.Packages, name)
	} else {
		r.Packages[name] = filtered
	}
	if active, ok := r.Active[name]; ok && active.Equal(v) {
		delete(r.Active, name)
	}
}

// Versions returns the known versions of name, ascending.
func (r *Registry) Versions(name string) []version.Version {
	return r.Packages[name]
}

// SetActive records name's active version. The version must already be
// registered via RegisterVersion.
func (r *Registry) SetActive(name string, v version.Version) {
	r.Active[name] = v
}

// ActiveVersion returns name's active version and whether one is set.
func (r *Registry) ActiveVersion(name string) (version.Version, bool) {
	v, ok := r.Active[name]
	return v, ok
}

// AddPending records a reboot-gated activation.
func (r *Registry) AddPending(name string, v version.Version) {
	for _, p := range r.Pending {
		if p.Name == name && p.Version.Equal(v) {
			return
		}
	}
	r.Pending = append(r.Pending, PendingEntry{Name: name, Version: v})
}

// ClearPending removes a pending entry, e.g. once a reboot has applied it.
func (r *Registry) ClearPending(name string, v version.Version) {
	var filtered []PendingEntry
	for _, p := range r.Pending {
		if p.Name == name && p.Version.Equal(v) {
			continue
		}
		filtered = append(filtered, p)
	}
	r.Pending = filtered
}

// AppendTransaction appends a completed transaction record, discarding the
// oldest entries beyond the 100-transaction cap.
func (r *Registry) AppendTransaction(t Transaction) {
	r.Transactions = append(r.Transactions, t)
	if len(r.Transactions) > maxTransactions {
		r.Transactions = r.Transactions[len(r.Transactions)-maxTransactions:]
	}
}

// PreviousVersion returns the version immediately preceding v in name's
// sorted version list, and whether one exists.
func (r *Registry) PreviousVersion(name string, v version.Version) (version.Version, bool) {
	versions := r.Packages[name]
	for i, existing := range versions {
		if existing.Equal(v) {
			if i == 0 {
				return version.Version{}, false
			}
			return versions[i-1], true
		}
	}
	return version.Version{}, false
}
