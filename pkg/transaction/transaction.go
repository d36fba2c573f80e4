// Package transaction orchestrates the atomic, rollback-safe mutations of
// the on-disk layout: extracting a package's files into a fresh versioned
// directory, swapping "current" symlinks, and recording the outcome in the
// registry's audit log. A Transaction either fully commits or is reverted
// step by step in the reverse order it applied them.
package transaction

import (
	"crypto/rand"
	"fmt"
	"os"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/gitrustux/rustica/pkg/archive"
	"github.com/gitrustux/rustica/pkg/layout"
	"github.com/gitrustux/rustica/pkg/registry"
	"github.com/gitrustux/rustica/pkg/rpgerrors"
	"github.com/gitrustux/rustica/pkg/version"
)

// Outcome is the terminal state of an executed transaction.
type Outcome string

const (
	Success    Outcome = "success"
	Failed     Outcome = "failed"
	RolledBack Outcome = "rolled_back"
)

// kinds a package Archive's metadata may declare.
const (
	KindApp    = "app"
	KindSystem = "system"
	KindKernel = "kernel"
	KindBoot   = "boot"
)

// Result summarizes what a transaction did.
type Result struct {
	ID             string
	Kind           registry.TransactionKind
	Outcome        Outcome
	Activated      []string
	Pending        []string
	RequiresReboot bool
	Err            error
}

// newID generates a ULID transaction identifier.
func newID() string {
	return ulid.MustNew(ulid.Timestamp(time.Now()), rand.Reader).String()
}

// step is one reversible action already applied during the transaction,
// kept in application order so rollback can undo them LIFO.
type step struct {
	undo func() error
}

type builder struct {
	steps []step
}

func (b *builder) record(undo func() error) {
	b.steps = append(b.steps, step{undo: undo})
}

// rollback reverses every recorded step in LIFO order, collecting (but not
// stopping on) any errors encountered along the way.
func (b *builder) rollback() error {
	var first error
	for i := len(b.steps) - 1; i >= 0; i-- {
		if err := b.steps[i].undo(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Install extracts and activates one or more package archives as a single
// transaction. App packages are activated immediately via an atomic symlink
// swap. System, kernel, and boot packages are staged and left pending: they
// require a reboot (modeled here as a later SwitchSystem/activation step) to
// take effect. If any package fails, every symlink swap, extracted
// directory, and registry mutation from this transaction is reverted, in
// reverse order, before returning.
func Install(reg *registry.Registry, archivePaths []string, trustKeyBase64 string) *Result {
	id := newID()
	b := &builder{}
	var activated, pending []string
	var names []string
	requiresReboot := false

	fail := func(err error) *Result {
		rbErr := b.rollback()
		state := registry.StateFailed
		if len(b.steps) > 0 && rbErr == nil {
			state = registry.StateRolledBack
		}
		msg := err.Error()
		if rbErr != nil {
			msg = fmt.Sprintf("%s (rollback error: %v)", msg, rbErr)
		}
		reg.AppendTransaction(registry.Transaction{
			ID:        id,
			Kind:      registry.KindInstall,
			State:     state,
			Packages:  names,
			CreatedAt: time.Now().UTC(),
			Error:     msg,
		})
		outcome := Failed
		if state == registry.StateRolledBack {
			outcome = RolledBack
		}
		return &Result{ID: id, Kind: registry.KindInstall, Outcome: outcome, Err: err}
	}

	for _, path := range archivePaths {
		ar, err := archive.Open(path)
		if err != nil {
			return fail(err)
		}
		names = append(names, ar.Metadata.Name)

		if trustKeyBase64 != "" {
			ok, err := ar.VerifySignature(trustKeyBase64)
			if err != nil {
				return fail(err)
			}
			if !ok {
				return fail(rpgerrors.New(rpgerrors.SignatureVerification, "signature verification failed for %s", ar.Metadata.Name))
			}
		}

		destDir, err := extractDestination(ar)
		if err != nil {
			return fail(err)
		}
		if err := archive.ExtractFiles(ar.Path, destDir); err != nil {
			return fail(err)
		}
		b.record(func() error { return os.RemoveAll(destDir) })

		v := ar.Metadata.Version
		name := ar.Metadata.Name

		hadVersion := false
		for _, existing := range reg.Versions(name) {
			if existing.Equal(v) {
				hadVersion = true
				break
			}
		}
		reg.RegisterVersion(name, v)
		if !hadVersion {
			nameCopy, vCopy := name, v
			b.record(func() error { reg.RemoveVersion(nameCopy, vCopy); return nil })
		}

		switch ar.Metadata.Kind {
		case KindApp:
			link := layout.AppCurrentLink(name)
			prev, err := atomicSymlinkSwap(link, destDir)
			if err != nil {
				return fail(err)
			}
			linkCopy, prevCopy := link, prev
			b.record(func() error { return revertSymlink(linkCopy, prevCopy) })

			prevActive, hadActive := reg.ActiveVersion(name)
			reg.SetActive(name, v)
			nameCopy := name
			if hadActive {
				pa := prevActive
				b.record(func() error { reg.SetActive(nameCopy, pa); return nil })
			} else {
				b.record(func() error { delete(reg.Active, nameCopy); return nil })
			}
			activated = append(activated, name)
		case KindSystem, KindKernel, KindBoot:
			reg.AddPending(name, v)
			nameCopy, vCopy := name, v
			b.record(func() error { reg.ClearPending(nameCopy, vCopy); return nil })
			pending = append(pending, name)
			requiresReboot = true
		default:
			return fail(rpgerrors.New(rpgerrors.InvalidVersion, "unknown package kind %q", ar.Metadata.Kind))
		}
	}

	reg.AppendTransaction(registry.Transaction{
		ID:        id,
		Kind:      registry.KindInstall,
		State:     registry.StateCompleted,
		Packages:  names,
		CreatedAt: time.Now().UTC(),
	})

	return &Result{
		ID:             id,
		Kind:           registry.KindInstall,
		Outcome:        Success,
		Activated:      activated,
		Pending:        pending,
		RequiresReboot: requiresReboot,
	}
}

// extractDestination computes the versioned install directory for a
// package's declared kind.
func extractDestination(ar *archive.Archive) (string, error) {
	v := ar.Metadata.Version.String()
	switch ar.Metadata.Kind {
	case KindApp:
		return layout.AppVersionPath(ar.Metadata.Name, v), nil
	case KindSystem, KindKernel, KindBoot:
		return layout.SystemVersionPath(v), nil
	default:
		return "", rpgerrors.New(rpgerrors.InvalidVersion, "unknown package kind %q", ar.Metadata.Kind)
	}
}

// Remove deletes an installed app version and its registry entry. It
// refuses to remove the version currently active unless another installed
// version of the app exists to fall back on (the caller is expected to have
// already chosen and activated the fallback, or to accept the app becoming
// inactive). Only the app tree is touched: the reserved names "kernel" and
// "system" are refused, and no directory under the system tree is deleted
// here; such packages are only superseded by installing and activating a
// new version.
func Remove(reg *registry.Registry, name string, v version.Version) *Result {
	id := newID()
	dir := layout.AppVersionPath(name, v.String())

	if name == KindKernel || name == KindSystem {
		err := rpgerrors.New(rpgerrors.TransactionFailed, "refusing to remove %s@%s: system and kernel packages are not removable", name, v)
		reg.AppendTransaction(registry.Transaction{
			ID: id, Kind: registry.KindRemove, State: registry.StateFailed,
			Packages: []string{name}, CreatedAt: time.Now().UTC(), Error: err.Error(),
		})
		return &Result{ID: id, Kind: registry.KindRemove, Outcome: Failed, Err: err}
	}

	if active, ok := reg.ActiveVersion(name); ok && active.Equal(v) {
		if len(reg.Versions(name)) < 2 {
			err := rpgerrors.New(rpgerrors.TransactionFailed, "refusing to remove %s@%s: it is the only installed version and is active", name, v)
			reg.AppendTransaction(registry.Transaction{
				ID: id, Kind: registry.KindRemove, State: registry.StateFailed,
				Packages: []string{name}, CreatedAt: time.Now().UTC(), Error: err.Error(),
			})
			return &Result{ID: id, Kind: registry.KindRemove, Outcome: Failed, Err: err}
		}
	}

	if err := os.RemoveAll(dir); err != nil && !os.IsNotExist(err) {
		wrapped := rpgerrors.Wrap(rpgerrors.TransactionFailed, err, "removing %s", dir)
		reg.AppendTransaction(registry.Transaction{
			ID: id, Kind: registry.KindRemove, State: registry.StateFailed,
			Packages: []string{name}, CreatedAt: time.Now().UTC(), Error: wrapped.Error(),
		})
		return &Result{ID: id, Kind: registry.KindRemove, Outcome: Failed, Err: wrapped}
	}

	reg.RemoveVersion(name, v)
	reg.AppendTransaction(registry.Transaction{
		ID: id, Kind: registry.KindRemove, State: registry.StateCompleted,
		Packages: []string{name}, CreatedAt: time.Now().UTC(),
	})
	return &Result{ID: id, Kind: registry.KindRemove, Outcome: Success}
}

// Rollback reactivates a previously installed version of an app, restoring
// its "current" symlink. If target is nil, the version immediately
// preceding the currently active version is used.
func Rollback(reg *registry.Registry, name string, target *version.Version) *Result {
	id := newID()

	active, hasActive := reg.ActiveVersion(name)
	var targetVersion version.Version
	if target != nil {
		targetVersion = *target
	} else if hasActive {
		prev, ok := reg.PreviousVersion(name, active)
		if !ok {
			err := rpgerrors.New(rpgerrors.RollbackFailed, "no earlier version of %s to roll back to", name)
			return rollbackFailure(reg, id, name, err)
		}
		targetVersion = prev
	} else {
		err := rpgerrors.New(rpgerrors.RollbackFailed, "%s has no active version to roll back from", name)
		return rollbackFailure(reg, id, name, err)
	}

	found := false
	for _, v := range reg.Versions(name) {
		if v.Equal(targetVersion) {
			found = true
			break
		}
	}
	if !found {
		err := rpgerrors.New(rpgerrors.VersionNotFound, "%s@%s is not installed", name, targetVersion)
		return rollbackFailure(reg, id, name, err)
	}

	dir := layout.AppVersionPath(name, targetVersion.String())
	link := layout.AppCurrentLink(name)
	if _, err := atomicSymlinkSwap(link, dir); err != nil {
		return rollbackFailure(reg, id, name, err)
	}

	reg.SetActive(name, targetVersion)
	reg.AppendTransaction(registry.Transaction{
		ID: id, Kind: registry.KindRollback, State: registry.StateCompleted,
		Packages: []string{name}, CreatedAt: time.Now().UTC(),
	})
	return &Result{ID: id, Kind: registry.KindRollback, Outcome: Success, Activated: []string{name}}
}

func rollbackFailure(reg *registry.Registry, id, name string, err error) *Result {
	reg.AppendTransaction(registry.Transaction{
		ID: id, Kind: registry.KindRollback, State: registry.StateFailed,
		Packages: []string{name}, CreatedAt: time.Now().UTC(), Error: err.Error(),
	})
	return &Result{ID: id, Kind: registry.KindRollback, Outcome: Failed, Err: err}
}

// SwitchSystem activates an already-installed (pending) system version by
// swapping /system/current. It always requires a reboot to take effect.
func SwitchSystem(reg *registry.Registry, v version.Version) *Result {
	id := newID()

	if !layout.SystemVersionExists(v.String()) {
		err := rpgerrors.New(rpgerrors.VersionNotFound, "system version %s is not installed", v)
		reg.AppendTransaction(registry.Transaction{
			ID: id, Kind: registry.KindSwitchSystem, State: registry.StateFailed,
			Packages: []string{"system"}, CreatedAt: time.Now().UTC(), Error: err.Error(),
		})
		return &Result{ID: id, Kind: registry.KindSwitchSystem, Outcome: Failed, Err: err}
	}

	dir := layout.SystemVersionPath(v.String())
	link := layout.SystemCurrentLink()
	if _, err := atomicSymlinkSwap(link, dir); err != nil {
		reg.AppendTransaction(registry.Transaction{
			ID: id, Kind: registry.KindSwitchSystem, State: registry.StateFailed,
			Packages: []string{"system"}, CreatedAt: time.Now().UTC(), Error: err.Error(),
		})
		return &Result{ID: id, Kind: registry.KindSwitchSystem, Outcome: Failed, Err: err}
	}

	reg.SetActive("system", v)
	reg.ClearPending("system", v)
	reg.AppendTransaction(registry.Transaction{
		ID: id, Kind: registry.KindSwitchSystem, State: registry.StateCompleted,
		Packages: []string{"system"}, CreatedAt: time.Now().UTC(),
	})
	return &Result{
		ID:             id,
		Kind:           registry.KindSwitchSystem,
		Outcome:        Success,
		Activated:      []string{"system"},
		RequiresReboot: true,
	}
}
